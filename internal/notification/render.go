// Package notification turns pipeline events into user notifications.
package notification

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/yourusername/aurora-dl/internal/domain"
)

// Notification channel identifiers
const (
	ChannelDownloads = "NOTIFICATION_CHANNEL_DOWNLOADS"
	ChannelInstall   = "NOTIFICATION_CHANNEL_INSTALL"
	ChannelUpdates   = "NOTIFICATION_CHANNEL_UPDATES"
	ChannelAccount   = "NOTIFICATION_CHANNEL_ACCOUNT"
	ChannelExport    = "NOTIFICATION_CHANNEL_EXPORT"
)

// Channels lists every channel identifier
var Channels = []string{ChannelDownloads, ChannelInstall, ChannelUpdates, ChannelAccount, ChannelExport}

// Notification is the rendered content for one download group
type Notification struct {
	ID       int    `json:"id"`
	Channel  string `json:"channel"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	Progress int    `json:"progress"` // percent, -1 when indeterminate
	Ongoing  bool   `json:"ongoing"`
}

// Render maps an event to notification content. Per-file completions and
// removals render nothing.
func Render(ev domain.Event) (Notification, bool) {
	n := Notification{
		ID:       notificationID(ev),
		Channel:  ChannelDownloads,
		Title:    title(ev),
		Progress: -1,
	}

	switch ev.Kind {
	case domain.EventQueued:
		n.Body = "Waiting in queue"
	case domain.EventStarted:
		n.Body = "Starting download"
		n.Ongoing = true
	case domain.EventProgress:
		if ev.Record == nil {
			return Notification{}, false
		}
		n.Body = progressBody(ev.Record)
		n.Progress = ev.Record.Progress()
		n.Ongoing = true
	case domain.EventCompleted:
		n.Body = "Download complete"
		n.Progress = 100
		if ev.Record != nil && ev.Record.TotalSize > 0 {
			n.Body = fmt.Sprintf("Downloaded %s", humanize.Bytes(uint64(ev.Record.TotalSize)))
		}
	case domain.EventFailed:
		n.Body = "Download failed: " + errorText(ev)
	case domain.EventPaused:
		n.Body = "Download paused"
		if ev.Record != nil && ev.Record.Progress() >= 0 {
			n.Progress = ev.Record.Progress()
		}
	case domain.EventCancelled:
		n.Body = "Download cancelled"
	case domain.EventInstalling:
		n.Channel = ChannelInstall
		n.Body = "Installing"
		n.Ongoing = true
	case domain.EventInstalled:
		n.Channel = ChannelInstall
		n.Body = "Installed successfully"
	case domain.EventInstallFailed:
		n.Channel = ChannelInstall
		if ev.ErrorKind == domain.KindUnsupportedInstaller {
			n.Body = "Cannot be installed with the selected installer: " + errorText(ev)
		} else {
			n.Body = "Installation failed: " + errorText(ev)
		}
	default:
		return Notification{}, false
	}
	return n, true
}

func notificationID(ev domain.Event) int {
	if ev.Record != nil {
		return ev.Record.GroupID
	}
	return domain.GroupID(ev.PackageName, 0)
}

func title(ev domain.Event) string {
	if ev.Record != nil && ev.Record.DisplayName != "" {
		return ev.Record.DisplayName
	}
	return ev.PackageName
}

func errorText(ev domain.Event) string {
	if ev.Error != "" {
		return ev.Error
	}
	if ev.Record != nil && ev.Record.ErrorMessage != "" {
		return ev.Record.ErrorMessage
	}
	return "unknown error"
}

func progressBody(r *domain.DownloadRecord) string {
	var parts []string
	if r.TotalSize > 0 {
		parts = append(parts,
			fmt.Sprintf("%d%%", r.Progress()),
			fmt.Sprintf("%s of %s", humanize.Bytes(uint64(r.DownloadedBytes)), humanize.Bytes(uint64(r.TotalSize))))
	} else {
		parts = append(parts, humanize.Bytes(uint64(r.DownloadedBytes)))
	}
	if r.SpeedBps > 0 {
		parts = append(parts, humanize.Bytes(uint64(r.SpeedBps))+"/s")
	}
	if r.ETAMillis > 0 {
		now := time.Now()
		parts = append(parts, humanize.RelTime(now, now.Add(time.Duration(r.ETAMillis)*time.Millisecond), "left", "left"))
	}
	return strings.Join(parts, " · ")
}
