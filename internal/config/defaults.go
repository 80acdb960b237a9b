package config

const (
	defaultJobsDir             = "~/.local/share/transcriber/jobs"
	defaultLogDir              = "~/.local/share/transcriber/logs"
	defaultAPIBind             = "127.0.0.1:7860"
	defaultEngineDir           = "~/homr"
	defaultPoetryCommand       = "poetry"
	defaultEngineTimeout       = 180
	defaultAvailabilityTimeout = 15
	defaultMaxUploadMB         = 40
	defaultJobTTLHours         = 12
	defaultMinFreeMB           = 512
	defaultLogFormat           = ""
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			JobsDir: defaultJobsDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Engine: Engine{
			Dir:                 defaultEngineDir,
			PoetryCommand:       defaultPoetryCommand,
			TimeoutSeconds:      defaultEngineTimeout,
			AvailabilitySeconds: defaultAvailabilityTimeout,
		},
		Uploads: Uploads{
			MaxUploadMB: defaultMaxUploadMB,
			JobTTLHours: defaultJobTTLHours,
			MinFreeMB:   defaultMinFreeMB,
		},
		Enhancement: Enhancement{
			TargetSize: 2200,
			MaxScale:   3.0,
			ClipLimit:  2.8,
			TileGrid:   8,
			BlockSize:  41,
			Offset:     11,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
