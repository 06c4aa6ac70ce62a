package config

const (
	defaultConfigPath             = "~/.config/aveline/config.toml"
	defaultLogDir                 = "~/.local/share/aveline/logs"
	defaultImportDir              = "~/Downloads"
	defaultServerBind             = "127.0.0.1:3000"
	defaultShutdownTimeoutSeconds = 5
	defaultCoverQuality           = 80
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultLogRetentionDays       = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir(),
			LogDir:    defaultLogDir,
			ImportDir: defaultImportDir,
		},
		Server: Server{
			Bind:                   defaultServerBind,
			ShutdownTimeoutSeconds: defaultShutdownTimeoutSeconds,
		},
		Library: Library{
			CoverQuality: defaultCoverQuality,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
