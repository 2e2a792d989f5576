package notification

import (
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/yourusername/aurora-dl/internal/domain"
)

// NotificationService posts notifications to the desktop or the log
type NotificationService struct {
	config *domain.NotificationConfig
	logger *zap.Logger
	run    func(name string, args ...string) error
}

// NewNotificationService creates a new notification service
func NewNotificationService(config *domain.NotificationConfig, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		config: config,
		logger: logger,
		run: func(name string, args ...string) error {
			return exec.Command(name, args...).Run()
		},
	}
}

// Post sends a notification using the configured method.
// Desktop notifications cannot be updated in place, so ongoing ones are only logged.
func (n *NotificationService) Post(note Notification) error {
	if !n.config.Enabled {
		return nil
	}

	if note.Ongoing || n.config.Method == "log" || n.config.Method == "" {
		n.logger.Info("Notification",
			zap.Int("id", note.ID),
			zap.String("channel", note.Channel),
			zap.String("title", note.Title),
			zap.String("body", note.Body),
			zap.Int("progress", note.Progress))
		return nil
	}

	var err error
	switch n.config.Method {
	case "osascript":
		script := fmt.Sprintf(`display notification "%s" with title "%s"`, appleScriptEscape(note.Body), appleScriptEscape(note.Title))
		err = n.run("osascript", "-e", script)
	case "notify-send":
		err = n.run("notify-send", "--app-name=aurora-dl", "--category="+note.Channel, note.Title, note.Body)
	default:
		n.logger.Warn("Unknown notification method", zap.String("method", n.config.Method))
		return nil
	}

	if err != nil {
		return fmt.Errorf("%s notification failed: %w", n.config.Method, err)
	}
	n.logger.Debug("Notification sent",
		zap.String("title", note.Title),
		zap.String("body", note.Body))
	return nil
}

func appleScriptEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
