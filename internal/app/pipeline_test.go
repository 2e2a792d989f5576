package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/aurora-dl/internal/domain"
	"github.com/yourusername/aurora-dl/internal/engine"
	"github.com/yourusername/aurora-dl/internal/infrastructure"
	"github.com/yourusername/aurora-dl/internal/installer"
)

// scriptedRunner answers pm commands by prefix
type scriptedRunner struct {
	mu      sync.Mutex
	calls   []string
	outputs map[string]string
}

func (r *scriptedRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	line := strings.Join(append([]string{name}, args...), " ")
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, line)
	for prefix, out := range r.outputs {
		if strings.HasPrefix(line, prefix) {
			return out, nil
		}
	}
	return "Success", nil
}

func (r *scriptedRunner) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type pipeline struct {
	coordinator *Coordinator
	runner      *scriptedRunner
	events      <-chan domain.Event
	server      *httptest.Server
	staging     string
}

func newPipeline(t *testing.T, commitOutput string) *pipeline {
	t.Helper()
	files := map[string]string{
		"/base.apk":  "base-apk-bytes",
		"/split.apk": "split-bytes",
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(body))
	}))

	dir := t.TempDir()
	repo, err := infrastructure.NewSQLiteRecordRepository(filepath.Join(dir, "records.db"))
	require.NoError(t, err)

	eng := engine.NewHTTPEngine(&domain.DownloadConfig{
		MaxParallelFiles: 2,
		HTTPTimeout:      5 * time.Second,
		ProgressInterval: 10 * time.Millisecond,
	}, zap.NewNop())

	runner := &scriptedRunner{outputs: map[string]string{
		"pm install-create": "Success: created install session [31]",
		"pm install-commit": commitOutput,
	}}
	dispatcher, err := installer.NewDefaultDispatcher(
		&domain.InstallerConfig{Preference: "session"},
		domain.DeviceInfo{SDK: 34},
		runner,
		zap.NewNop(),
	)
	require.NoError(t, err)

	p := &pipeline{
		runner:  runner,
		server:  server,
		staging: filepath.Join(dir, "staging"),
	}
	p.coordinator = NewCoordinator(repo, eng, dispatcher,
		&domain.QueueConfig{FileMissingRequeues: 1, CleanupAfterInstall: true},
		p.staging, zap.NewNop())
	var unsubscribe func()
	p.events, unsubscribe = p.coordinator.Subscribe(512)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.coordinator.Start(ctx))

	t.Cleanup(func() {
		p.coordinator.Stop()
		unsubscribe()
		eng.Close()
		dispatcher.Close()
		cancel()
		server.Close()
		repo.Close()
	})
	return p
}

func (p *pipeline) record(pkg string, paths ...string) *domain.DownloadRecord {
	files := make([]domain.FileDescriptor, 0, len(paths))
	for _, path := range paths {
		files = append(files, domain.FileDescriptor{URL: p.server.URL + path})
	}
	return domain.NewDownloadRecord(pkg, pkg, 7, files)
}

func (p *pipeline) await(t *testing.T, kind domain.EventKind, pkg string) domain.Event {
	t.Helper()
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-p.events:
			require.True(t, ok, "event stream closed")
			if ev.Kind == kind && ev.PackageName == pkg {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s of %s", kind, pkg)
			return domain.Event{}
		}
	}
}

func TestPipeline_DownloadsAndInstalls(t *testing.T) {
	p := newPipeline(t, "Success")

	_, created, err := p.coordinator.Enqueue(p.record("com.example.app", "/base.apk", "/split.apk"))
	require.NoError(t, err)
	require.True(t, created)

	completed := p.await(t, domain.EventCompleted, "com.example.app")
	assert.Equal(t, int64(len("base-apk-bytes")+len("split-bytes")), completed.Record.DownloadedBytes)

	installed := p.await(t, domain.EventInstalled, "com.example.app")
	assert.Equal(t, "session", installed.Record.InstallStrategy)

	calls := p.runner.Calls()
	require.Len(t, calls, 4)
	assert.Equal(t, "pm install-create -r -S 25", calls[0])
	assert.Contains(t, calls[1], "pm install-write")
	assert.Contains(t, calls[2], "pm install-write")
	assert.Equal(t, "pm install-commit 31", calls[3])

	_, err = p.coordinator.Get("com.example.app")
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
	assert.NoDirExists(t, filepath.Join(p.staging, "com.example.app"))
}

func TestPipeline_InstallRejected(t *testing.T) {
	p := newPipeline(t, "Failure [INSTALL_FAILED_UPDATE_INCOMPATIBLE: signatures do not match]")

	_, _, err := p.coordinator.Enqueue(p.record("com.example.app", "/base.apk"))
	require.NoError(t, err)

	ev := p.await(t, domain.EventInstallFailed, "com.example.app")
	assert.Equal(t, domain.KindInstallerRejected, ev.ErrorKind)
	assert.Contains(t, ev.Error, "INSTALL_FAILED_UPDATE_INCOMPATIBLE")

	rec, err := p.coordinator.Get("com.example.app")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, rec.Status)
	assert.Equal(t, domain.InstallFailed, rec.InstallStatus)
	assert.FileExists(t, rec.Files[0].Path)
}

func TestPipeline_NetworkFailureMovesOn(t *testing.T) {
	p := newPipeline(t, "Success")

	_, _, err := p.coordinator.Enqueue(p.record("com.example.broken", "/missing.apk"))
	require.NoError(t, err)
	_, _, err = p.coordinator.Enqueue(p.record("com.example.app", "/base.apk"))
	require.NoError(t, err)

	failed := p.await(t, domain.EventFailed, "com.example.broken")
	assert.Equal(t, domain.KindNetworkFailure, failed.ErrorKind)

	p.await(t, domain.EventInstalled, "com.example.app")

	rec, err := p.coordinator.Get("com.example.broken")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, rec.Status)
}
