package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	JobsDir string `toml:"jobs_dir"`
	LogDir  string `toml:"log_dir"`
	APIBind string `toml:"api_bind"`
}

// Engine contains configuration for the homr recognition engine.
type Engine struct {
	// Dir is the homr poetry project checkout. The HOMR_DIR environment
	// variable overrides it.
	Dir                 string `toml:"dir"`
	PoetryCommand       string `toml:"poetry_command"`
	TimeoutSeconds      int    `toml:"timeout_seconds"`
	AvailabilitySeconds int    `toml:"availability_timeout_seconds"`
}

// Uploads contains upload acceptance and retention settings.
type Uploads struct {
	MaxUploadMB int `toml:"max_upload_mb"`
	JobTTLHours int `toml:"job_ttl_hours"`
	// MinFreeMB is the disk headroom required on the jobs volume before a
	// new upload is accepted.
	MinFreeMB int `toml:"min_free_mb"`
}

// Enhancement contains the staff-retry image enhancement tunables. The
// defaults were chosen empirically; treat them as starting points.
type Enhancement struct {
	TargetSize int     `toml:"target_size"`
	MaxScale   float64 `toml:"max_scale"`
	ClipLimit  float64 `toml:"clip_limit"`
	TileGrid   int     `toml:"tile_grid"`
	BlockSize  int     `toml:"block_size"`
	Offset     int     `toml:"offset"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for the transcriber.
type Config struct {
	Paths       Paths       `toml:"paths"`
	Engine      Engine      `toml:"engine"`
	Uploads     Uploads     `toml:"uploads"`
	Enhancement Enhancement `toml:"enhancement"`
	Logging     Logging     `toml:"logging"`
}

// Sample returns the embedded sample configuration file contents.
func Sample() string {
	return sampleConfig
}

// CreateSample writes the embedded sample configuration to path.
func CreateSample(path string) error {
	return os.WriteFile(path, []byte(sampleConfig), 0o644)
}

// ExpandPath resolves a leading ~ and returns an absolute path.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/transcriber/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("transcriber.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the configured jobs and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.JobsDir, c.Paths.LogDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// MaxUploadBytes returns the upload cap in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Uploads.MaxUploadMB) * 1024 * 1024
}

// JobTTL returns the retention window for idle jobs.
func (c *Config) JobTTL() time.Duration {
	return time.Duration(c.Uploads.JobTTLHours) * time.Hour
}

// EngineTimeout returns the per-run engine time budget.
func (c *Config) EngineTimeout() time.Duration {
	return time.Duration(c.Engine.TimeoutSeconds) * time.Second
}

// EngineAvailabilityTimeout returns the reachability probe budget.
func (c *Config) EngineAvailabilityTimeout() time.Duration {
	return time.Duration(c.Engine.AvailabilitySeconds) * time.Second
}

func expandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if path == "~" {
			return home, nil
		}
		if len(path) > 1 && (path[1] == '/' || path[1] == filepath.Separator) {
			return filepath.Join(home, path[2:]), nil
		}
	}
	return filepath.Abs(path)
}
