package notification

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/yourusername/aurora-dl/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingPoster struct {
	mu    sync.Mutex
	posts []Notification
	err   error
}

func (p *recordingPoster) Post(n Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.posts = append(p.posts, n)
	return nil
}

func (p *recordingPoster) Posts() []Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Notification(nil), p.posts...)
}

func testRecord() *domain.DownloadRecord {
	return domain.NewDownloadRecord("com.example.app", "Example", 10, []domain.FileDescriptor{
		{URL: "http://host/base.apk", Type: domain.FileBase, Size: 1000},
		{URL: "http://host/split.apk", Type: domain.FileSplit, Size: 1000},
	})
}

func TestRender_DownloadLifecycle(t *testing.T) {
	r := testRecord()

	n, ok := Render(domain.NewEvent(domain.EventQueued, r, nil))
	require.True(t, ok)
	assert.Equal(t, r.GroupID, n.ID)
	assert.Equal(t, ChannelDownloads, n.Channel)
	assert.Equal(t, "Example", n.Title)
	assert.False(t, n.Ongoing)

	r.MarkDownloading()
	r.MarkProgress(500, 2000, 250, 6*time.Second)
	n, ok = Render(domain.NewEvent(domain.EventProgress, r, nil))
	require.True(t, ok)
	assert.True(t, n.Ongoing)
	assert.Equal(t, 25, n.Progress)
	assert.True(t, strings.HasPrefix(n.Body, "25% · 500 B of 2.0 kB · 250 B/s"), n.Body)
	assert.Contains(t, n.Body, "left")

	r.MarkCompleted()
	n, ok = Render(domain.NewEvent(domain.EventCompleted, r, nil))
	require.True(t, ok)
	assert.Equal(t, 100, n.Progress)
	assert.Equal(t, "Downloaded 2.0 kB", n.Body)
	assert.False(t, n.Ongoing)
}

func TestRender_UnknownSizeProgress(t *testing.T) {
	r := domain.NewDownloadRecord("com.example.app", "", 1, []domain.FileDescriptor{{URL: "http://host/a.apk"}})
	r.MarkProgress(2048, 0, 0, 0)

	n, ok := Render(domain.NewEvent(domain.EventProgress, r, nil))
	require.True(t, ok)
	assert.Equal(t, -1, n.Progress)
	assert.Equal(t, "2.0 kB", n.Body)
	assert.Equal(t, "com.example.app", n.Title)
}

func TestRender_SkipsFileCompletionAndRemoval(t *testing.T) {
	r := testRecord()
	_, ok := Render(domain.NewEvent(domain.EventFileCompleted, r, nil))
	assert.False(t, ok)
	_, ok = Render(domain.NewEvent(domain.EventRemoved, r, nil))
	assert.False(t, ok)
}

func TestRender_Failures(t *testing.T) {
	r := testRecord()

	err := &domain.NetworkFailureError{PackageName: r.PackageName, Err: errors.New("connection reset")}
	n, ok := Render(domain.NewEvent(domain.EventFailed, r, err))
	require.True(t, ok)
	assert.Equal(t, ChannelDownloads, n.Channel)
	assert.Contains(t, n.Body, "connection reset")

	rejected := &domain.InstallerRejectedError{PackageName: r.PackageName, Strategy: domain.InstallerSession, Code: "INSTALL_FAILED_UPDATE_INCOMPATIBLE"}
	n, ok = Render(domain.NewEvent(domain.EventInstallFailed, r, rejected))
	require.True(t, ok)
	assert.Equal(t, ChannelInstall, n.Channel)
	assert.True(t, strings.HasPrefix(n.Body, "Installation failed: "))
	assert.Contains(t, n.Body, "INSTALL_FAILED_UPDATE_INCOMPATIBLE")

	unsupported := &domain.UnsupportedInstallerConfigurationError{PackageName: r.PackageName, Strategy: domain.InstallerNative, Reason: "2 split apks"}
	n, ok = Render(domain.NewEvent(domain.EventInstallFailed, r, unsupported))
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(n.Body, "Cannot be installed with the selected installer: "))
}

func TestRender_Install(t *testing.T) {
	r := testRecord()
	n, ok := Render(domain.NewEvent(domain.EventInstalling, r, nil))
	require.True(t, ok)
	assert.Equal(t, ChannelInstall, n.Channel)
	assert.True(t, n.Ongoing)

	n, ok = Render(domain.NewEvent(domain.EventInstalled, r, nil))
	require.True(t, ok)
	assert.Equal(t, "Installed successfully", n.Body)
	assert.False(t, n.Ongoing)
}

func TestRender_IDWithoutRecord(t *testing.T) {
	ev := domain.Event{Kind: domain.EventCancelled, PackageName: "com.example.app"}
	n, ok := Render(ev)
	require.True(t, ok)
	assert.Equal(t, domain.GroupID("com.example.app", 0), n.ID)
}

func TestPresenter_SuppressesDuplicates(t *testing.T) {
	poster := &recordingPoster{}
	p := NewPresenter(poster, zap.NewNop())
	r := testRecord()

	assert.True(t, p.Handle(domain.NewEvent(domain.EventStarted, r, nil)))
	assert.False(t, p.Handle(domain.NewEvent(domain.EventStarted, r, nil)))
	assert.False(t, p.Handle(domain.NewEvent(domain.EventFileCompleted, r, nil)))
	assert.False(t, p.Handle(domain.NewEvent(domain.EventFileCompleted, r, nil)))
	r.MarkCompleted()
	assert.True(t, p.Handle(domain.NewEvent(domain.EventCompleted, r, nil)))

	posts := poster.Posts()
	require.Len(t, posts, 2)
	assert.Equal(t, "Starting download", posts[0].Body)
	assert.Equal(t, "Downloaded 2.0 kB", posts[1].Body)
}

func TestPresenter_RemovalResetsDedup(t *testing.T) {
	poster := &recordingPoster{}
	p := NewPresenter(poster, zap.NewNop())
	r := testRecord()

	assert.True(t, p.Handle(domain.NewEvent(domain.EventQueued, r, nil)))
	p.Handle(domain.NewEvent(domain.EventRemoved, r, nil))
	assert.True(t, p.Handle(domain.NewEvent(domain.EventQueued, r, nil)))
}

func TestPresenter_PostErrorIsNotFatal(t *testing.T) {
	poster := &recordingPoster{err: errors.New("no display")}
	p := NewPresenter(poster, zap.NewNop())
	assert.False(t, p.Handle(domain.NewEvent(domain.EventQueued, testRecord(), nil)))
}

func TestPresenter_Run(t *testing.T) {
	poster := &recordingPoster{}
	p := NewPresenter(poster, zap.NewNop())
	events := make(chan domain.Event, 4)
	r := testRecord()
	events <- domain.NewEvent(domain.EventQueued, r, nil)
	events <- domain.NewEvent(domain.EventInstalled, r, nil)
	close(events)

	done := make(chan struct{})
	go func() {
		p.Run(context.Background(), events)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("presenter did not stop when events closed")
	}
	assert.Len(t, poster.Posts(), 2)
}

func TestNotificationService_Methods(t *testing.T) {
	var calls [][]string
	svc := NewNotificationService(&domain.NotificationConfig{Enabled: true, Method: "notify-send"}, zap.NewNop())
	svc.run = func(name string, args ...string) error {
		calls = append(calls, append([]string{name}, args...))
		return nil
	}

	require.NoError(t, svc.Post(Notification{Channel: ChannelInstall, Title: "Example", Body: "Installed"}))
	require.NoError(t, svc.Post(Notification{Title: "Example", Body: "50%", Ongoing: true}))
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"notify-send", "--app-name=aurora-dl", "--category=" + ChannelInstall, "Example", "Installed"}, calls[0])

	svc.config.Method = "osascript"
	require.NoError(t, svc.Post(Notification{Title: `My "App"`, Body: "done"}))
	require.Len(t, calls, 2)
	assert.Equal(t, `display notification "done" with title "My \"App\""`, calls[1][2])

	svc.run = func(string, ...string) error { return errors.New("exit status 1") }
	assert.Error(t, svc.Post(Notification{Title: "x", Body: "y"}))

	svc.config.Enabled = false
	assert.NoError(t, svc.Post(Notification{Title: "x", Body: "y"}))
}

func TestChannels(t *testing.T) {
	assert.Len(t, Channels, 5)
	seen := make(map[string]bool)
	for _, c := range Channels {
		assert.True(t, strings.HasPrefix(c, "NOTIFICATION_CHANNEL_"), c)
		assert.False(t, seen[c], "duplicate channel %s", c)
		seen[c] = true
	}
}
