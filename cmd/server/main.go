package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/aurora-dl/api"
	"github.com/yourusername/aurora-dl/api/handlers"
	"github.com/yourusername/aurora-dl/internal/app"
	"github.com/yourusername/aurora-dl/internal/domain"
	"github.com/yourusername/aurora-dl/internal/engine"
	"github.com/yourusername/aurora-dl/internal/infrastructure"
	"github.com/yourusername/aurora-dl/internal/installer"
	"github.com/yourusername/aurora-dl/internal/notification"
	"github.com/yourusername/aurora-dl/internal/telemetry"
	"github.com/yourusername/aurora-dl/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

var configPath = flag.String("config", "", "Path to config file (default: search ./configs, ~/.aurora-dl, /etc/aurora-dl)")

func main() {
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "aurora-dl-server: %v\n", err)
		os.Exit(1)
	}
}

func run(path string) error {
	config, err := app.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:      config.Logging.Level,
		Format:     config.Logging.Format,
		OutputPath: config.Logging.OutputPath,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	if err := createDirectories(config); err != nil {
		return err
	}

	// queue, install and error categories
	multiLog, err := logger.NewMultiLogger(logger.MultiLoggerConfig{
		Level:   config.Logging.Level,
		LogsDir: config.Download.LogsDir,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize category logs: %w", err)
	}
	defer multiLog.Close()

	log.Info("Starting aurora-dl server",
		zap.String("version", handlers.Version),
		zap.String("host", config.Server.Host),
		zap.Int("port", config.Server.Port),
		zap.String("staging_dir", config.Download.StagingDir),
		zap.String("installer", config.Installer.Preference))

	metrics, err := telemetry.New(telemetry.Config{Enabled: config.Telemetry.Enabled})
	if err != nil {
		return err
	}

	repo, err := infrastructure.NewSQLiteRecordRepository(config.Queue.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	downloads := engine.NewHTTPEngine(&config.Download, log.Named("engine"))

	runner := installer.NewExecRunner(config.Installer.CommandPrefix, log.Named("runner"))
	device := installer.DetectDevice(ctx, runner, &config.Installer, log)
	dispatcher, err := installer.NewDefaultDispatcher(&config.Installer, device, runner, log.Named("installer"))
	if err != nil {
		return fmt.Errorf("failed to initialize installer: %w", err)
	}
	dispatcher.SetEventLogger(multiLog)

	coordinator := app.NewCoordinator(repo, downloads, dispatcher, &config.Queue, config.Download.StagingDir, log.Named("coordinator"))
	coordinator.SetEventLogger(multiLog)
	coordinator.SetMetrics(metrics)

	presenter := notification.NewPresenter(notification.NewNotificationService(&config.Notification, log), log)
	events, unsubscribe := coordinator.Subscribe(config.Queue.EventBuffer)
	defer unsubscribe()
	presenterDone := make(chan struct{})
	go func() {
		defer close(presenterDone)
		presenter.Run(ctx, events)
	}()

	if err := coordinator.Start(ctx); err != nil {
		return fmt.Errorf("failed to start coordinator: %w", err)
	}

	router := api.SetupRouter(api.Dependencies{
		Coordinator: coordinator,
		Installs:    dispatcher,
		Metrics:     metrics.Handler(),
		Recorder:    metrics,
		LogsDir:     config.Download.LogsDir,
		Logger:      log.Named("http"),
	})

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		log.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("HTTP server failed", zap.Error(err))
		runErr = err
	}

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	// the active download stays downloading and resumes on the next start.
	// Aborted installs report interrupted while the coordinator still listens.
	downloads.Close()
	dispatcher.Close()
	if err := coordinator.Stop(); err != nil {
		log.Error("Error stopping coordinator", zap.Error(err))
	}
	<-presenterDone

	if err := metrics.Shutdown(shutdownCtx); err != nil {
		log.Warn("Failed to shut down metrics", zap.Error(err))
	}

	log.Info("Server exited")
	return runErr
}

func createDirectories(config *domain.Config) error {
	dirs := []string{
		config.Download.StagingDir,
		config.Download.LogsDir,
		filepath.Dir(config.Queue.DatabasePath),
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
