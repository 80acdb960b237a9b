package config

import (
	"os"
	"path/filepath"
	"strings"
)

// normalize expands paths and applies environment overrides.
func (c *Config) normalize() error {
	var err error
	if c.Paths.JobsDir, err = expandPath(c.Paths.JobsDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}

	if override := strings.TrimSpace(os.Getenv("HOMR_DIR")); override != "" {
		c.Engine.Dir = override
	}
	if c.Engine.Dir, err = expandPath(c.Engine.Dir); err != nil {
		return err
	}

	// A homr checkout sitting beside the working directory wins over the
	// built-in default when the configured directory does not exist.
	if _, statErr := os.Stat(c.Engine.Dir); statErr != nil {
		if wd, wdErr := os.Getwd(); wdErr == nil {
			sibling := filepath.Join(filepath.Dir(wd), "homr")
			if info, sErr := os.Stat(sibling); sErr == nil && info.IsDir() {
				c.Engine.Dir = sibling
			}
		}
	}

	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	return nil
}
