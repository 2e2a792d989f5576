package installer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/aurora-dl/internal/domain"
	"github.com/yourusername/aurora-dl/pkg/logger"
)

// ErrClosed is returned by Install after Close
var ErrClosed = fmt.Errorf("install dispatcher closed: %w", domain.ErrInstallInterrupted)

const resultBuffer = 64

// Dispatcher picks a strategy per install request and runs it asynchronously.
// At most one install per package is in flight.
type Dispatcher struct {
	preference  domain.InstallerKind
	device      domain.DeviceInfo
	strategies  map[domain.InstallerKind]Strategy
	timeout     time.Duration
	logger      *zap.Logger
	eventLogger *logger.MultiLogger

	mu      sync.Mutex
	states  map[string]domain.InstallStatus
	closed  bool
	results chan domain.InstallResult
	done    chan struct{}
	wg      sync.WaitGroup

	// closing is cancelled by Close and aborts in-flight installs
	closing  context.Context
	abortAll context.CancelFunc
}

// NewDispatcher creates a dispatcher over the given strategies
func NewDispatcher(config *domain.InstallerConfig, device domain.DeviceInfo, strategies []Strategy, logger *zap.Logger) (*Dispatcher, error) {
	preference := domain.InstallerKind(config.Preference)
	if preference == "" {
		preference = domain.InstallerSession
	}
	if !domain.ValidateInstallerKind(preference) {
		return nil, fmt.Errorf("unknown installer preference: %s", config.Preference)
	}

	byKind := make(map[domain.InstallerKind]Strategy, len(strategies))
	for _, s := range strategies {
		byKind[s.Kind()] = s
	}

	closing, abortAll := context.WithCancel(context.Background())
	return &Dispatcher{
		closing:    closing,
		abortAll:   abortAll,
		preference: preference,
		device:     device,
		strategies: byKind,
		timeout:    config.Timeout,
		logger:     logger,
		states:     make(map[string]domain.InstallStatus),
		results:    make(chan domain.InstallResult, resultBuffer),
		done:       make(chan struct{}),
	}, nil
}

// NewDefaultDispatcher wires the three pm strategies over one runner
func NewDefaultDispatcher(config *domain.InstallerConfig, device domain.DeviceInfo, runner Runner, logger *zap.Logger) (*Dispatcher, error) {
	return NewDispatcher(config, device, []Strategy{
		NewSessionInstaller(runner),
		NewNativeInstaller(runner),
		NewPrivilegedInstaller(runner),
	}, logger)
}

// SetEventLogger enables install lifecycle logging
func (d *Dispatcher) SetEventLogger(ml *logger.MultiLogger) {
	d.eventLogger = ml
}

// Device returns the capabilities used for selection
func (d *Dispatcher) Device() domain.DeviceInfo {
	return d.device
}

// Select chooses the installer for a package with apkCount files
func (d *Dispatcher) Select(packageName string, apkCount int) (domain.InstallerChoice, error) {
	choice, _ := domain.ChoiceFor(d.preference)

	if choice.RequiresRoot && !d.device.Rooted {
		choice, _ = domain.ChoiceFor(domain.InstallerSession)
	}
	if d.device.SDK > 0 && d.device.SDK < choice.MinSDK {
		choice, _ = domain.ChoiceFor(domain.InstallerNative)
	}

	if choice.Kind != d.preference {
		choice.FallbackFrom = d.preference
	}

	if apkCount == 0 {
		return choice, &domain.UnsupportedInstallerConfigurationError{
			PackageName: packageName,
			Strategy:    choice.Kind,
			Reason:      "no apk files to install",
		}
	}
	if apkCount > 1 && !choice.SupportsSplits {
		return choice, &domain.UnsupportedInstallerConfigurationError{
			PackageName: packageName,
			Strategy:    choice.Kind,
			Reason:      fmt.Sprintf("%d split apks need split support (device sdk %d)", apkCount, d.device.SDK),
		}
	}
	if _, ok := d.strategies[choice.Kind]; !ok {
		return choice, &domain.UnsupportedInstallerConfigurationError{
			PackageName: packageName,
			Strategy:    choice.Kind,
			Reason:      "installer not available",
		}
	}
	return choice, nil
}

// Install starts installing the files. The outcome arrives on Results.
func (d *Dispatcher) Install(ctx context.Context, packageName string, paths []string) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	if d.states[packageName] == domain.InstallInstalling {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrAlreadyInstalling, packageName)
	}
	d.states[packageName] = domain.InstallInstalling
	d.wg.Add(1)
	d.mu.Unlock()

	go d.run(ctx, packageName, append([]string(nil), paths...))
	return nil
}

func (d *Dispatcher) run(ctx context.Context, packageName string, paths []string) {
	defer d.wg.Done()

	start := time.Now()
	choice, err := d.Select(packageName, len(paths))
	if err == nil {
		if choice.FallbackFrom != "" {
			d.logger.Warn("Installer preference overridden by device capabilities",
				zap.String("package", packageName),
				zap.String("preferred", string(choice.FallbackFrom)),
				zap.String("strategy", string(choice.Kind)),
				zap.Int("sdk", d.device.SDK),
				zap.Bool("rooted", d.device.Rooted))
		}
		d.logger.Info("Installing package",
			zap.String("package", packageName),
			zap.String("strategy", string(choice.Kind)),
			zap.Int("files", len(paths)))
		d.logInstall("Install started", packageName, choice.Kind, nil)

		ictx, cancel := context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(d.closing, cancel)
		defer stop()
		if d.timeout > 0 {
			var cancelTimeout context.CancelFunc
			ictx, cancelTimeout = context.WithTimeout(ictx, d.timeout)
			defer cancelTimeout()
		}
		err = d.strategies[choice.Kind].Install(ictx, packageName, paths)
		if err != nil && d.closing.Err() != nil {
			err = fmt.Errorf("%w: %w", domain.ErrInstallInterrupted, err)
		}
	}

	status := domain.InstallSuccess
	if err != nil {
		status = domain.InstallFailed
		d.logger.Warn("Install failed",
			zap.String("package", packageName),
			zap.String("strategy", string(choice.Kind)),
			zap.Error(err))
	} else {
		d.logger.Info("Install succeeded",
			zap.String("package", packageName),
			zap.String("strategy", string(choice.Kind)),
			zap.Duration("duration", time.Since(start)))
	}
	d.logInstall("Install finished", packageName, choice.Kind, err)

	d.mu.Lock()
	d.states[packageName] = status
	d.mu.Unlock()

	result := domain.InstallResult{PackageName: packageName, Strategy: choice.Kind, Err: err}
	select {
	case d.results <- result:
		return
	default:
	}
	select {
	case d.results <- result:
	case <-d.done:
		d.logger.Warn("Dropping install result after shutdown", zap.String("package", packageName))
	}
}

func (d *Dispatcher) logInstall(msg, packageName string, kind domain.InstallerKind, err error) {
	if d.eventLogger == nil {
		return
	}
	fields := []zap.Field{
		zap.String("package", packageName),
		zap.String("strategy", string(kind)),
	}
	if err != nil {
		fields = append(fields, zap.String("error_kind", domain.ErrorKind(err)), zap.Error(err))
		d.eventLogger.LogError(msg, fields...)
	}
	d.eventLogger.LogInstallEvent(msg, fields...)
}

// Results delivers one InstallResult per accepted Install call
func (d *Dispatcher) Results() <-chan domain.InstallResult {
	return d.results
}

// State returns the install state of a package
func (d *Dispatcher) State(packageName string) domain.InstallStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.states[packageName]; ok {
		return s
	}
	return domain.InstallIdle
}

// Close aborts in-flight installs, waits for their results and closes the
// results channel. Aborted installs report ErrInstallInterrupted.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.abortAll()
	close(d.done)
	d.wg.Wait()
	close(d.results)
}
