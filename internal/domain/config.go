package domain

import "time"

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Download     DownloadConfig     `mapstructure:"download"`
	Queue        QueueConfig        `mapstructure:"queue"`
	Installer    InstallerConfig    `mapstructure:"installer"`
	Notification NotificationConfig `mapstructure:"notification"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DownloadConfig contains download engine configuration
type DownloadConfig struct {
	StagingDir       string        `mapstructure:"staging_dir"`
	LogsDir          string        `mapstructure:"logs_dir"`
	MaxParallelFiles int           `mapstructure:"max_parallel_files"`
	HTTPTimeout      time.Duration `mapstructure:"http_timeout"`
	ProgressInterval time.Duration `mapstructure:"progress_interval"`
	UserAgent        string        `mapstructure:"user_agent"`
}

// QueueConfig contains coordinator and record store configuration
type QueueConfig struct {
	DatabasePath        string `mapstructure:"database_path"`
	FileMissingRequeues int    `mapstructure:"file_missing_requeues"`
	CleanupAfterInstall bool   `mapstructure:"cleanup_after_install"`
	EventBuffer         int    `mapstructure:"event_buffer"`
}

// InstallerConfig contains installer selection and device access configuration
type InstallerConfig struct {
	Preference    string        `mapstructure:"preference"`     // session, native, privileged
	SDK           int           `mapstructure:"sdk"`            // 0 asks the device
	Root          string        `mapstructure:"root"`           // auto, true, false
	CommandPrefix []string      `mapstructure:"command_prefix"` // e.g. adb -s <serial> shell
	Timeout       time.Duration `mapstructure:"timeout"`
}

// NotificationConfig contains notification-related configuration
type NotificationConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Method  string `mapstructure:"method"` // osascript, notify-send, log
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
}

// TelemetryConfig toggles the metrics exporter
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8484,
		},
		Download: DownloadConfig{
			StagingDir:       "$HOME/.aurora-dl/staging",
			LogsDir:          "$HOME/.aurora-dl/logs",
			MaxParallelFiles: 3,
			ProgressInterval: 500 * time.Millisecond,
			UserAgent:        "aurora-dl/1.0",
		},
		Queue: QueueConfig{
			DatabasePath:        "$HOME/.aurora-dl/records.db",
			FileMissingRequeues: 1,
			CleanupAfterInstall: true,
			EventBuffer:         64,
		},
		Installer: InstallerConfig{
			Preference: string(InstallerSession),
			Root:       "auto",
			Timeout:    5 * time.Minute,
		},
		Notification: NotificationConfig{
			Enabled: true,
			Method:  "log",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
		},
		Telemetry: TelemetryConfig{
			Enabled: true,
		},
	}
}
