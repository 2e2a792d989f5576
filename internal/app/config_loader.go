package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/yourusername/aurora-dl/internal/domain"
)

// EnvPrefix prefixes environment overrides, e.g. AURORA_SERVER_PORT
const EnvPrefix = "AURORA"

// LoadConfig loads configuration from file and environment
func LoadConfig(configPath string) (*domain.Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, domain.DefaultConfig())

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.aurora-dl")
		v.AddConfigPath("/etc/aurora-dl")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// no file in the search path means defaults plus environment
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	expandPaths(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// setDefaults registers every key so environment overrides apply without a file
func setDefaults(v *viper.Viper, d *domain.Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)

	v.SetDefault("download.staging_dir", d.Download.StagingDir)
	v.SetDefault("download.logs_dir", d.Download.LogsDir)
	v.SetDefault("download.max_parallel_files", d.Download.MaxParallelFiles)
	v.SetDefault("download.http_timeout", d.Download.HTTPTimeout)
	v.SetDefault("download.progress_interval", d.Download.ProgressInterval)
	v.SetDefault("download.user_agent", d.Download.UserAgent)

	v.SetDefault("queue.database_path", d.Queue.DatabasePath)
	v.SetDefault("queue.file_missing_requeues", d.Queue.FileMissingRequeues)
	v.SetDefault("queue.cleanup_after_install", d.Queue.CleanupAfterInstall)
	v.SetDefault("queue.event_buffer", d.Queue.EventBuffer)

	v.SetDefault("installer.preference", d.Installer.Preference)
	v.SetDefault("installer.sdk", d.Installer.SDK)
	v.SetDefault("installer.root", d.Installer.Root)
	v.SetDefault("installer.command_prefix", d.Installer.CommandPrefix)
	v.SetDefault("installer.timeout", d.Installer.Timeout)

	v.SetDefault("notification.enabled", d.Notification.Enabled)
	v.SetDefault("notification.method", d.Notification.Method)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output_path", d.Logging.OutputPath)

	v.SetDefault("telemetry.enabled", d.Telemetry.Enabled)
}

func expandPaths(config *domain.Config) {
	config.Download.StagingDir = expandPath(config.Download.StagingDir)
	config.Download.LogsDir = expandPath(config.Download.LogsDir)
	config.Queue.DatabasePath = expandPath(config.Queue.DatabasePath)

	if config.Logging.OutputPath != "stdout" && config.Logging.OutputPath != "stderr" {
		config.Logging.OutputPath = expandPath(config.Logging.OutputPath)
	}
}

// expandPath expands environment variables and a leading ~ in paths
func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return os.ExpandEnv(path)
}

func validateConfig(config *domain.Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}
	if config.Download.StagingDir == "" {
		return fmt.Errorf("download staging directory not configured")
	}
	if config.Download.MaxParallelFiles < 1 {
		return fmt.Errorf("max parallel files must be at least 1")
	}
	if config.Download.HTTPTimeout < 0 {
		return fmt.Errorf("http timeout cannot be negative")
	}
	if config.Queue.DatabasePath == "" {
		return fmt.Errorf("queue database path not configured")
	}
	if config.Queue.FileMissingRequeues < 0 {
		return fmt.Errorf("file missing requeues cannot be negative")
	}
	if !domain.ValidateInstallerKind(domain.InstallerKind(config.Installer.Preference)) {
		return fmt.Errorf("unknown installer preference: %s", config.Installer.Preference)
	}
	switch strings.ToLower(config.Installer.Root) {
	case "auto", "true", "false", "yes", "no":
	default:
		return fmt.Errorf("installer root must be auto, true or false: %s", config.Installer.Root)
	}
	switch config.Notification.Method {
	case "log", "osascript", "notify-send":
	default:
		return fmt.Errorf("unknown notification method: %s", config.Notification.Method)
	}
	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	return nil
}

// SaveConfig writes configuration as YAML
func SaveConfig(config *domain.Config, path string) error {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, config)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
