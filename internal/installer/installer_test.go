package installer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/yourusername/aurora-dl/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeRunner answers commands by prefix and records every call
type fakeRunner struct {
	mu      sync.Mutex
	calls   []string
	outputs map[string]string
	errs    map[string]error
	block   chan struct{}
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		outputs: map[string]string{
			"pm install-create": "Success: created install session [77]",
			"pm install-write":  "Success: streamed 10 bytes",
			"pm install-commit": "Success",
			"pm install -r":     "Success",
		},
		errs: map[string]error{},
	}
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	line := strings.Join(append([]string{name}, args...), " ")
	f.mu.Lock()
	f.calls = append(f.calls, line)
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	best := ""
	for prefix := range f.outputs {
		if strings.HasPrefix(line, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	for prefix, err := range f.errs {
		if strings.HasPrefix(line, prefix) {
			return f.outputs[best], err
		}
	}
	return f.outputs[best], nil
}

func (f *fakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func writeAPKs(t *testing.T, names ...string) []string {
	t.Helper()
	dir := t.TempDir()
	var paths []string
	for _, name := range names {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0644))
		paths = append(paths, path)
	}
	return paths
}

func newTestDispatcher(t *testing.T, preference domain.InstallerKind, device domain.DeviceInfo, runner Runner) *Dispatcher {
	t.Helper()
	d, err := NewDefaultDispatcher(&domain.InstallerConfig{
		Preference: string(preference),
		Timeout:    5 * time.Second,
	}, device, runner, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d
}

func waitResult(t *testing.T, d *Dispatcher) domain.InstallResult {
	t.Helper()
	select {
	case r := <-d.Results():
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for install result")
		return domain.InstallResult{}
	}
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name       string
		preference domain.InstallerKind
		device     domain.DeviceInfo
		apks       int
		expected   domain.InstallerKind
		fallback   domain.InstallerKind
		wantErr    bool
	}{
		{name: "session with splits", preference: domain.InstallerSession, device: domain.DeviceInfo{SDK: 30}, apks: 3, expected: domain.InstallerSession},
		{name: "privileged with root", preference: domain.InstallerPrivileged, device: domain.DeviceInfo{SDK: 30, Rooted: true}, apks: 2, expected: domain.InstallerPrivileged},
		{name: "privileged without root falls back", preference: domain.InstallerPrivileged, device: domain.DeviceInfo{SDK: 30}, apks: 2, expected: domain.InstallerSession, fallback: domain.InstallerPrivileged},
		{name: "old sdk falls back to native", preference: domain.InstallerSession, device: domain.DeviceInfo{SDK: 19}, apks: 1, expected: domain.InstallerNative, fallback: domain.InstallerSession},
		{name: "old sdk with splits unsupported", preference: domain.InstallerSession, device: domain.DeviceInfo{SDK: 19}, apks: 2, expected: domain.InstallerNative, fallback: domain.InstallerSession, wantErr: true},
		{name: "native refuses splits", preference: domain.InstallerNative, device: domain.DeviceInfo{SDK: 30}, apks: 2, expected: domain.InstallerNative, wantErr: true},
		{name: "unknown sdk keeps session", preference: domain.InstallerSession, device: domain.DeviceInfo{}, apks: 2, expected: domain.InstallerSession},
		{name: "no apks", preference: domain.InstallerSession, device: domain.DeviceInfo{SDK: 30}, apks: 0, expected: domain.InstallerSession, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDispatcher(t, tt.preference, tt.device, newFakeRunner())
			choice, err := d.Select("com.example.app", tt.apks)
			assert.Equal(t, tt.expected, choice.Kind)
			assert.Equal(t, tt.fallback, choice.FallbackFrom)
			if tt.wantErr {
				var unsupported *domain.UnsupportedInstallerConfigurationError
				assert.ErrorAs(t, err, &unsupported)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewDispatcher_RejectsUnknownPreference(t *testing.T) {
	_, err := NewDefaultDispatcher(&domain.InstallerConfig{Preference: "magic"}, domain.DeviceInfo{}, newFakeRunner(), zap.NewNop())
	assert.Error(t, err)
}

func TestDispatcher_SessionInstall(t *testing.T) {
	runner := newFakeRunner()
	d := newTestDispatcher(t, domain.InstallerSession, domain.DeviceInfo{SDK: 33}, runner)
	paths := writeAPKs(t, "base_0.apk", "split_1.apk")

	require.NoError(t, d.Install(context.Background(), "com.example.app", paths))
	result := waitResult(t, d)

	assert.NoError(t, result.Err)
	assert.Equal(t, "com.example.app", result.PackageName)
	assert.Equal(t, domain.InstallerSession, result.Strategy)
	assert.Equal(t, domain.InstallSuccess, d.State("com.example.app"))
	assert.Equal(t, []string{
		"pm install-create -r -S 20",
		"pm install-write -S 10 77 0_base_0.apk " + paths[0],
		"pm install-write -S 10 77 1_split_1.apk " + paths[1],
		"pm install-commit 77",
	}, runner.Calls())
}

func TestDispatcher_WarnsWhenPreferenceOverridden(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	d, err := NewDefaultDispatcher(&domain.InstallerConfig{Preference: "privileged"}, domain.DeviceInfo{SDK: 33}, newFakeRunner(), zap.New(core))
	require.NoError(t, err)
	t.Cleanup(d.Close)

	require.NoError(t, d.Install(context.Background(), "com.example.app", writeAPKs(t, "base.apk")))
	result := waitResult(t, d)

	require.NoError(t, result.Err)
	assert.Equal(t, domain.InstallerSession, result.Strategy)
	warnings := logs.FilterMessage("Installer preference overridden by device capabilities").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, "privileged", warnings[0].ContextMap()["preferred"])
	assert.Equal(t, "session", warnings[0].ContextMap()["strategy"])
}

func TestDispatcher_PrivilegedUsesSu(t *testing.T) {
	runner := newFakeRunner()
	runner.outputs["su -c pm install-create"] = "Success: created install session [5]"
	runner.outputs["su -c pm install-write"] = "Success"
	runner.outputs["su -c pm install-commit"] = "Success"
	d := newTestDispatcher(t, domain.InstallerPrivileged, domain.DeviceInfo{SDK: 33, Rooted: true}, runner)
	paths := writeAPKs(t, "base.apk")

	require.NoError(t, d.Install(context.Background(), "com.example.app", paths))
	result := waitResult(t, d)

	require.NoError(t, result.Err)
	assert.Equal(t, domain.InstallerPrivileged, result.Strategy)
	calls := runner.Calls()
	require.Len(t, calls, 3)
	for _, c := range calls {
		assert.True(t, strings.HasPrefix(c, "su -c pm "), c)
	}
	assert.Equal(t, "su -c pm install-commit 5", calls[2])
}

func TestDispatcher_NativeInstall(t *testing.T) {
	runner := newFakeRunner()
	d := newTestDispatcher(t, domain.InstallerNative, domain.DeviceInfo{SDK: 33}, runner)
	paths := writeAPKs(t, "base.apk")

	require.NoError(t, d.Install(context.Background(), "com.example.app", paths))
	result := waitResult(t, d)

	require.NoError(t, result.Err)
	assert.Equal(t, []string{"pm install -r " + paths[0]}, runner.Calls())
}

func TestDispatcher_RejectedByInstaller(t *testing.T) {
	runner := newFakeRunner()
	runner.outputs["pm install-commit"] = "Failure [INSTALL_FAILED_UPDATE_INCOMPATIBLE: signatures do not match]"
	runner.errs["pm install-commit"] = errors.New("exit status 1")
	d := newTestDispatcher(t, domain.InstallerSession, domain.DeviceInfo{SDK: 33}, runner)

	require.NoError(t, d.Install(context.Background(), "com.example.app", writeAPKs(t, "base.apk")))
	result := waitResult(t, d)

	var rejected *domain.InstallerRejectedError
	require.ErrorAs(t, result.Err, &rejected)
	assert.Equal(t, "INSTALL_FAILED_UPDATE_INCOMPATIBLE", rejected.Code)
	assert.Equal(t, "signatures do not match", rejected.Message)
	assert.Equal(t, domain.KindInstallerRejected, domain.ErrorKind(result.Err))
	assert.Equal(t, domain.InstallFailed, d.State("com.example.app"))
}

func TestDispatcher_WriteFailureAbandonsSession(t *testing.T) {
	runner := newFakeRunner()
	runner.outputs["pm install-write"] = "Failure [INSTALL_FAILED_INSUFFICIENT_STORAGE]"
	d := newTestDispatcher(t, domain.InstallerSession, domain.DeviceInfo{SDK: 33}, runner)

	require.NoError(t, d.Install(context.Background(), "com.example.app", writeAPKs(t, "a.apk", "b.apk")))
	result := waitResult(t, d)

	var rejected *domain.InstallerRejectedError
	require.ErrorAs(t, result.Err, &rejected)
	assert.Equal(t, "INSTALL_FAILED_INSUFFICIENT_STORAGE", rejected.Code)

	calls := runner.Calls()
	assert.Equal(t, "pm install-abandon 77", calls[len(calls)-1])
	assert.NotContains(t, calls, "pm install-commit 77")
}

func TestDispatcher_UnsupportedConfiguration(t *testing.T) {
	runner := newFakeRunner()
	d := newTestDispatcher(t, domain.InstallerNative, domain.DeviceInfo{SDK: 33}, runner)

	require.NoError(t, d.Install(context.Background(), "com.example.app", writeAPKs(t, "a.apk", "b.apk")))
	result := waitResult(t, d)

	assert.Equal(t, domain.KindUnsupportedInstaller, domain.ErrorKind(result.Err))
	assert.Empty(t, runner.Calls())
	assert.Equal(t, domain.InstallFailed, d.State("com.example.app"))
}

func TestDispatcher_AlreadyInstalling(t *testing.T) {
	runner := newFakeRunner()
	runner.block = make(chan struct{})
	d := newTestDispatcher(t, domain.InstallerSession, domain.DeviceInfo{SDK: 33}, runner)
	paths := writeAPKs(t, "base.apk")

	require.NoError(t, d.Install(context.Background(), "com.example.app", paths))
	assert.Equal(t, domain.InstallInstalling, d.State("com.example.app"))

	err := d.Install(context.Background(), "com.example.app", paths)
	assert.ErrorIs(t, err, domain.ErrAlreadyInstalling)

	// other packages are independent
	require.NoError(t, d.Install(context.Background(), "com.example.other", paths))

	runner.mu.Lock()
	close(runner.block)
	runner.block = nil
	runner.mu.Unlock()

	first := waitResult(t, d)
	second := waitResult(t, d)
	assert.ElementsMatch(t, []string{"com.example.app", "com.example.other"}, []string{first.PackageName, second.PackageName})

	// a finished package can be installed again
	require.NoError(t, d.Install(context.Background(), "com.example.app", paths))
	waitResult(t, d)
}

func TestDispatcher_CloseRejectsInstall(t *testing.T) {
	d, err := NewDefaultDispatcher(&domain.InstallerConfig{}, domain.DeviceInfo{}, newFakeRunner(), zap.NewNop())
	require.NoError(t, err)
	d.Close()
	d.Close()

	assert.ErrorIs(t, d.Install(context.Background(), "com.example.app", []string{"x"}), ErrClosed)
	_, ok := <-d.Results()
	assert.False(t, ok)
	assert.Equal(t, domain.InstallIdle, d.State("com.example.app"))
}

func TestDispatcher_CloseInterruptsInstall(t *testing.T) {
	runner := newFakeRunner()
	runner.block = make(chan struct{})
	d, err := NewDefaultDispatcher(&domain.InstallerConfig{Timeout: time.Hour}, domain.DeviceInfo{SDK: 33}, runner, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, d.Install(context.Background(), "com.example.app", writeAPKs(t, "base.apk")))
	require.Eventually(t, func() bool { return len(runner.Calls()) > 0 }, 5*time.Second, 10*time.Millisecond)

	closed := make(chan struct{})
	go func() {
		d.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close waited for the blocked install")
	}

	result, ok := <-d.Results()
	require.True(t, ok, "interrupted install still reports a result")
	assert.ErrorIs(t, result.Err, domain.ErrInstallInterrupted)
	assert.Equal(t, domain.KindInterrupted, domain.ErrorKind(result.Err))
	assert.Equal(t, domain.InstallFailed, d.State("com.example.app"))

	_, ok = <-d.Results()
	assert.False(t, ok)
	assert.ErrorIs(t, d.Install(context.Background(), "com.example.app", []string{"x"}), domain.ErrInstallInterrupted)
}

func TestDetectDevice(t *testing.T) {
	runner := newFakeRunner()
	runner.outputs["getprop ro.build.version.sdk"] = "34"
	runner.outputs["su -c id"] = "uid=0(root) gid=0(root)"

	info := DetectDevice(context.Background(), runner, &domain.InstallerConfig{Root: "auto"}, zap.NewNop())
	assert.Equal(t, domain.DeviceInfo{SDK: 34, Rooted: true}, info)

	info = DetectDevice(context.Background(), runner, &domain.InstallerConfig{SDK: 28, Root: "false"}, zap.NewNop())
	assert.Equal(t, domain.DeviceInfo{SDK: 28, Rooted: false}, info)

	runner.errs["su"] = errors.New("su: not found")
	runner.outputs["getprop ro.build.version.sdk"] = "garbage"
	info = DetectDevice(context.Background(), runner, &domain.InstallerConfig{Root: "auto"}, zap.NewNop())
	assert.Equal(t, domain.DeviceInfo{}, info)
}
