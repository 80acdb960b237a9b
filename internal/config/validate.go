package config

import (
	"errors"
	"fmt"
)

// Validate checks configured values for internal consistency.
func (c *Config) Validate() error {
	var problems []error

	if c.Paths.JobsDir == "" {
		problems = append(problems, errors.New("paths.jobs_dir must be set"))
	}
	if c.Paths.APIBind == "" {
		problems = append(problems, errors.New("paths.api_bind must be set"))
	}
	if c.Uploads.MaxUploadMB <= 0 {
		problems = append(problems, fmt.Errorf("uploads.max_upload_mb must be positive, got %d", c.Uploads.MaxUploadMB))
	}
	if c.Uploads.JobTTLHours <= 0 {
		problems = append(problems, fmt.Errorf("uploads.job_ttl_hours must be positive, got %d", c.Uploads.JobTTLHours))
	}
	if c.Engine.TimeoutSeconds <= 0 {
		problems = append(problems, fmt.Errorf("engine.timeout_seconds must be positive, got %d", c.Engine.TimeoutSeconds))
	}
	if c.Enhancement.BlockSize > 0 && c.Enhancement.BlockSize%2 == 0 {
		problems = append(problems, fmt.Errorf("enhancement.block_size must be odd, got %d", c.Enhancement.BlockSize))
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		problems = append(problems, fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format))
	}

	return errors.Join(problems...)
}
