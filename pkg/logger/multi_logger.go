package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogCategory represents different log categories
type LogCategory string

const (
	CategoryQueue   LogCategory = "queue"   // Download lifecycle events (JSON)
	CategoryInstall LogCategory = "install" // Install attempts and outcomes (JSON)
	CategoryError   LogCategory = "error"   // Pipeline failures (JSON)
)

// Categories lists every category in a stable order
var Categories = []LogCategory{CategoryQueue, CategoryInstall, CategoryError}

const dateLayout = "20060102"

// MultiLogger writes categorised JSON logs to one file per category and day
type MultiLogger struct {
	config MultiLoggerConfig
	level  zapcore.Level

	mu          sync.Mutex
	currentDate string
	loggers     map[LogCategory]*zap.Logger
	files       []*os.File
	now         func() time.Time
}

// MultiLoggerConfig contains configuration for multi-output logging
type MultiLoggerConfig struct {
	Level   string // debug, info, warn, error
	LogsDir string // Directory for log files
}

// NewMultiLogger creates the logs directory and opens today's category files
func NewMultiLogger(config MultiLoggerConfig) (*MultiLogger, error) {
	if config.LogsDir == "" {
		return nil, fmt.Errorf("logs_dir must be specified")
	}
	if err := os.MkdirAll(config.LogsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	ml := &MultiLogger{
		config: config,
		level:  parseLevel(config.Level, zapcore.InfoLevel),
		now:    time.Now,
	}

	ml.mu.Lock()
	defer ml.mu.Unlock()
	if err := ml.openLocked(ml.now().Format(dateLayout)); err != nil {
		return nil, err
	}
	return ml, nil
}

// openLocked (re)opens every category file for the given date
func (ml *MultiLogger) openLocked(date string) error {
	loggers := make(map[LogCategory]*zap.Logger, len(Categories))
	var files []*os.File

	for _, category := range Categories {
		path := filepath.Join(ml.config.LogsDir, fmt.Sprintf("%s-%s.log", category, date))
		file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			for _, f := range files {
				f.Close()
			}
			return fmt.Errorf("failed to open %s log: %w", category, err)
		}
		files = append(files, file)

		level := ml.level
		if category == CategoryError {
			level = zapcore.ErrorLevel
		}
		loggers[category] = zap.New(zapcore.NewCore(categoryEncoder(), zapcore.AddSync(file), level))
	}

	ml.closeLocked()
	ml.loggers = loggers
	ml.files = files
	ml.currentDate = date
	return nil
}

func categoryEncoder() zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.CallerKey = ""
	return zapcore.NewJSONEncoder(cfg)
}

func (ml *MultiLogger) closeLocked() {
	for _, l := range ml.loggers {
		l.Sync()
	}
	for _, f := range ml.files {
		f.Close()
	}
	ml.loggers = nil
	ml.files = nil
}

// GetLogger returns the logger for a category, rotating files when the day changes
func (ml *MultiLogger) GetLogger(category LogCategory) *zap.Logger {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	if date := ml.now().Format(dateLayout); date != ml.currentDate {
		// keep writing to the old files if the new ones cannot be opened
		_ = ml.openLocked(date)
	}
	if ml.loggers == nil {
		return zap.NewNop()
	}
	if l, ok := ml.loggers[category]; ok {
		return l
	}
	return ml.loggers[CategoryError]
}

// LogQueueEvent logs a download lifecycle event
func (ml *MultiLogger) LogQueueEvent(event string, fields ...zap.Field) {
	ml.GetLogger(CategoryQueue).Info(event, fields...)
}

// LogInstallEvent logs an install attempt or outcome
func (ml *MultiLogger) LogInstallEvent(event string, fields ...zap.Field) {
	ml.GetLogger(CategoryInstall).Info(event, fields...)
}

// LogError logs a pipeline failure
func (ml *MultiLogger) LogError(msg string, fields ...zap.Field) {
	ml.GetLogger(CategoryError).Error(msg, fields...)
}

// Sync flushes all loggers
func (ml *MultiLogger) Sync() error {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	var lastErr error
	for _, l := range ml.loggers {
		if err := l.Sync(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Close flushes and closes all category files
func (ml *MultiLogger) Close() error {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	ml.closeLocked()
	return nil
}
