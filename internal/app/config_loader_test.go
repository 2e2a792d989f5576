package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/aurora-dl/internal/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig_DefaultsFromEmptyFile(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	config, err := LoadConfig(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, 8484, config.Server.Port)
	assert.Equal(t, "/home/tester/.aurora-dl/staging", config.Download.StagingDir)
	assert.Equal(t, "/home/tester/.aurora-dl/records.db", config.Queue.DatabasePath)
	assert.Equal(t, 500*time.Millisecond, config.Download.ProgressInterval)
	assert.Equal(t, 1, config.Queue.FileMissingRequeues)
	assert.Equal(t, "session", config.Installer.Preference)
	assert.Equal(t, "stdout", config.Logging.OutputPath)
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
download:
  staging_dir: /tmp/aurora/staging
  max_parallel_files: 5
  http_timeout: 30s
queue:
  file_missing_requeues: 0
  cleanup_after_install: false
installer:
  preference: privileged
  sdk: 33
  root: "true"
  command_prefix: [adb, -s, emulator-5554, shell]
notification:
  method: notify-send
`)
	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, "/tmp/aurora/staging", config.Download.StagingDir)
	assert.Equal(t, 5, config.Download.MaxParallelFiles)
	assert.Equal(t, 30*time.Second, config.Download.HTTPTimeout)
	assert.Equal(t, 0, config.Queue.FileMissingRequeues)
	assert.False(t, config.Queue.CleanupAfterInstall)
	assert.Equal(t, "privileged", config.Installer.Preference)
	assert.Equal(t, 33, config.Installer.SDK)
	assert.Equal(t, "true", config.Installer.Root)
	assert.Equal(t, []string{"adb", "-s", "emulator-5554", "shell"}, config.Installer.CommandPrefix)
	assert.Equal(t, "notify-send", config.Notification.Method)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("AURORA_SERVER_PORT", "7070")
	t.Setenv("AURORA_INSTALLER_PREFERENCE", "native")
	t.Setenv("AURORA_INSTALLER_COMMAND_PREFIX", "adb,shell")

	config, err := LoadConfig(writeConfig(t, "server:\n  port: 9090\n"))
	require.NoError(t, err)

	assert.Equal(t, 7070, config.Server.Port)
	assert.Equal(t, "native", config.Installer.Preference)
	assert.Equal(t, []string{"adb", "shell"}, config.Installer.CommandPrefix)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad port", "server:\n  port: 70000\n", "invalid server port"},
		{"no parallelism", "download:\n  max_parallel_files: 0\n", "max parallel files"},
		{"negative requeues", "queue:\n  file_missing_requeues: -1\n", "requeues"},
		{"unknown installer", "installer:\n  preference: sideload\n", "unknown installer preference"},
		{"bad root", "installer:\n  root: maybe\n", "installer root"},
		{"unknown method", "notification:\n  method: email\n", "unknown notification method"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	config := domain.DefaultConfig()
	config.Server.Port = 9191
	config.Download.StagingDir = "/srv/aurora/staging"
	config.Installer.Preference = "native"
	config.Installer.CommandPrefix = []string{"adb", "shell"}

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, SaveConfig(config, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9191, loaded.Server.Port)
	assert.Equal(t, "/srv/aurora/staging", loaded.Download.StagingDir)
	assert.Equal(t, "native", loaded.Installer.Preference)
	assert.Equal(t, []string{"adb", "shell"}, loaded.Installer.CommandPrefix)
	assert.Equal(t, config.Download.ProgressInterval, loaded.Download.ProgressInterval)
}
