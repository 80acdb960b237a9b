package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, path, exists, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing file")
	}
	if path == "" {
		t.Fatal("expected resolved path for missing file")
	}
	if cfg.Uploads.MaxUploadMB != defaultMaxUploadMB {
		t.Fatalf("MaxUploadMB = %d, want %d", cfg.Uploads.MaxUploadMB, defaultMaxUploadMB)
	}
	if cfg.Uploads.JobTTLHours != defaultJobTTLHours {
		t.Fatalf("JobTTLHours = %d, want %d", cfg.Uploads.JobTTLHours, defaultJobTTLHours)
	}
	if cfg.Engine.TimeoutSeconds != defaultEngineTimeout {
		t.Fatalf("TimeoutSeconds = %d, want %d", cfg.Engine.TimeoutSeconds, defaultEngineTimeout)
	}
}

func TestLoadOverridesFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
jobs_dir = "` + filepath.ToSlash(filepath.Join(dir, "jobs")) + `"
api_bind = "0.0.0.0:9000"

[uploads]
max_upload_mb = 10
job_ttl_hours = 2

[logging]
level = "DEBUG"
format = "json"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists=true")
	}
	if resolved != path {
		t.Fatalf("resolved path = %q, want %q", resolved, path)
	}
	if cfg.Paths.APIBind != "0.0.0.0:9000" {
		t.Fatalf("APIBind = %q", cfg.Paths.APIBind)
	}
	if cfg.Uploads.MaxUploadMB != 10 {
		t.Fatalf("MaxUploadMB = %d, want 10", cfg.Uploads.MaxUploadMB)
	}
	if cfg.MaxUploadBytes() != 10*1024*1024 {
		t.Fatalf("MaxUploadBytes = %d", cfg.MaxUploadBytes())
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("Level = %q, want debug", cfg.Logging.Level)
	}
	// Untouched sections keep their defaults.
	if cfg.Engine.PoetryCommand != defaultPoetryCommand {
		t.Fatalf("PoetryCommand = %q", cfg.Engine.PoetryCommand)
	}
	if cfg.Enhancement.BlockSize != 41 {
		t.Fatalf("BlockSize = %d", cfg.Enhancement.BlockSize)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[uploads]
max_upload_mb = 0

[logging]
format = "xml"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	_, _, _, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "max_upload_mb") {
		t.Fatalf("error missing upload complaint: %v", err)
	}
	if !strings.Contains(err.Error(), "logging.format") {
		t.Fatalf("error missing format complaint: %v", err)
	}
}

func TestHomrDirEnvOverride(t *testing.T) {
	engineDir := t.TempDir()
	t.Setenv("HOMR_DIR", engineDir)

	cfg, _, _, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Engine.Dir != engineDir {
		t.Fatalf("Engine.Dir = %q, want %q", cfg.Engine.Dir, engineDir)
	}
}

func TestExpandPathHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	got, err := expandPath("~/music")
	if err != nil {
		t.Fatalf("expandPath: %v", err)
	}
	if got != filepath.Join(home, "music") {
		t.Fatalf("expandPath = %q", got)
	}
}

func TestValidateOddBlockSize(t *testing.T) {
	cfg := Default()
	cfg.Enhancement.BlockSize = 40
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for even block size")
	}
}

func TestSampleConfigParses(t *testing.T) {
	if Sample() == "" {
		t.Fatal("embedded sample is empty")
	}
	if !strings.Contains(Sample(), "[engine]") {
		t.Fatal("sample missing engine section")
	}
}
