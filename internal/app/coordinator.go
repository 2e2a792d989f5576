package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/aurora-dl/internal/domain"
	"github.com/yourusername/aurora-dl/internal/engine"
	"github.com/yourusername/aurora-dl/internal/telemetry"
	"github.com/yourusername/aurora-dl/pkg/logger"
)

const (
	engineEventBuffer  = 256
	defaultEventBuffer = 64
)

// Installer is the install side driven by the coordinator
type Installer interface {
	Install(ctx context.Context, packageName string, paths []string) error
	Results() <-chan domain.InstallResult
	State(packageName string) domain.InstallStatus
}

// Coordinator owns the download queue. At most one record holds the
// download slot; engine callbacks and install results are applied by a
// single goroutine under mu.
type Coordinator struct {
	repo        domain.RecordRepository
	engine      engine.Engine
	installer   Installer
	config      *domain.QueueConfig
	stagingDir  string
	logger      *zap.Logger
	multiLogger *logger.MultiLogger
	metrics     *telemetry.Metrics

	mu          sync.Mutex
	running     bool
	runCtx      context.Context
	active      string
	activeGroup int
	nextSeq     int64
	seqLoaded   bool

	subMu       sync.Mutex
	subscribers map[int]chan domain.Event
	nextSubID   int

	engineEvents chan engine.Event
	stopChan     chan struct{}
	workerWg     sync.WaitGroup
}

// NewCoordinator creates a coordinator and registers it as an engine listener
func NewCoordinator(
	repo domain.RecordRepository,
	eng engine.Engine,
	installer Installer,
	config *domain.QueueConfig,
	stagingDir string,
	logger *zap.Logger,
) *Coordinator {
	c := &Coordinator{
		repo:         repo,
		engine:       eng,
		installer:    installer,
		config:       config,
		stagingDir:   stagingDir,
		logger:       logger,
		runCtx:       context.Background(),
		subscribers:  make(map[int]chan domain.Event),
		engineEvents: make(chan engine.Event, engineEventBuffer),
		stopChan:     make(chan struct{}),
	}
	eng.AddListener(c.onEngineEvent)
	return c
}

// SetEventLogger enables categorised lifecycle logs
func (c *Coordinator) SetEventLogger(ml *logger.MultiLogger) {
	c.multiLogger = ml
}

// SetMetrics enables metric recording
func (c *Coordinator) SetMetrics(m *telemetry.Metrics) {
	c.metrics = m
}

// onEngineEvent runs on engine goroutines and hands events to the loop
func (c *Coordinator) onEngineEvent(ev engine.Event) {
	select {
	case c.engineEvents <- ev:
	case <-c.stopChan:
	}
}

// Start resumes interrupted downloads, promotes the queue head and starts
// applying engine events and install results
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("coordinator already running")
	}

	n, err := c.repo.ResetInterrupted()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to reset interrupted downloads: %w", err)
	}
	if n > 0 {
		c.logger.Info("Re-queued interrupted downloads", zap.Int64("count", n))
	}
	if err := c.failOrphanedInstallsLocked(); err != nil {
		c.mu.Unlock()
		return err
	}

	c.running = true
	c.runCtx = ctx
	c.promoteLocked()
	c.mu.Unlock()

	c.logQueueEvent("coordinator_started")

	c.workerWg.Add(1)
	go c.loop(ctx)
	return nil
}

// Stop stops the event loop and closes all subscriptions.
// The active record stays downloading and is resumed by the next Start.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return fmt.Errorf("coordinator not running")
	}
	c.running = false
	c.mu.Unlock()

	close(c.stopChan)
	c.workerWg.Wait()

	c.subMu.Lock()
	for id, ch := range c.subscribers {
		close(ch)
		delete(c.subscribers, id)
	}
	c.subMu.Unlock()

	c.logQueueEvent("coordinator_stopped")
	return nil
}

// IsRunning returns whether the event loop is running
func (c *Coordinator) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// ActivePackage returns the package holding the download slot, if any
func (c *Coordinator) ActivePackage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Coordinator) loop(ctx context.Context) {
	defer c.workerWg.Done()

	results := c.installer.Results()
	for {
		select {
		case <-ctx.Done():
			c.drainResults(results)
			return
		case <-c.stopChan:
			c.drainResults(results)
			return
		case ev := <-c.engineEvents:
			c.mu.Lock()
			c.handleEngineEventLocked(ev)
			c.mu.Unlock()
		case res, ok := <-results:
			if !ok {
				results = nil
				continue
			}
			c.mu.Lock()
			c.handleInstallResultLocked(res)
			c.mu.Unlock()
		}
	}
}

// drainResults applies install results already delivered when the loop stops
func (c *Coordinator) drainResults(results <-chan domain.InstallResult) {
	for results != nil {
		select {
		case res, ok := <-results:
			if !ok {
				return
			}
			c.mu.Lock()
			c.handleInstallResultLocked(res)
			c.mu.Unlock()
		default:
			return
		}
	}
}

// installInFlight reports whether the record's install is still running.
// A record can claim installing after its result was lost to a shutdown.
func (c *Coordinator) installInFlight(rec *domain.DownloadRecord) bool {
	return rec.InstallStatus == domain.InstallInstalling &&
		c.installer.State(rec.PackageName) == domain.InstallInstalling
}

// failOrphanedInstallsLocked fails records left installing by a previous run
func (c *Coordinator) failOrphanedInstallsLocked() error {
	records, err := c.repo.FindAll(map[string]interface{}{"install_status": domain.InstallInstalling})
	if err != nil {
		return fmt.Errorf("failed to load interrupted installs: %w", err)
	}
	for _, rec := range records {
		if c.installInFlight(rec) {
			continue
		}
		cause := fmt.Errorf("%w: %s was installing when the pipeline stopped", domain.ErrInstallInterrupted, rec.PackageName)
		rec.MarkInstall(domain.InstallFailed, "", cause)
		if err := c.saveAndEmitLocked(rec, domain.EventInstallFailed, cause); err != nil {
			return err
		}
		c.logger.Warn("Marked interrupted install as failed", zap.String("package", rec.PackageName))
	}
	return nil
}

// Enqueue stores the record as queued. A record already pending or
// installing for the package makes this a no-op returning the existing one.
func (c *Coordinator) Enqueue(record *domain.DownloadRecord) (*domain.DownloadRecord, bool, error) {
	if err := record.Validate(); err != nil {
		return nil, false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	existing, err := c.repo.FindByPackage(record.PackageName)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up %s: %w", record.PackageName, err)
	}
	if existing != nil && (existing.IsPending() || c.installInFlight(existing)) {
		return existing, false, nil
	}

	rec := record.Clone()
	rec.GroupID = domain.GroupID(rec.PackageName, rec.VersionCode)
	rec.ResolvePaths(c.stagingDir)
	rec.DownloadedBytes = 0
	rec.Attempts = 0
	rec.InstallStatus = domain.InstallIdle
	rec.InstallStrategy = ""
	rec.StartedAt = nil
	rec.CompletedAt = nil
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	if err := c.requeueLocked(rec); err != nil {
		return nil, false, err
	}

	c.logger.Info("Download queued",
		zap.String("package", rec.PackageName),
		zap.Int64("version_code", rec.VersionCode),
		zap.Int("files", len(rec.Files)),
		zap.Int64("queue_seq", rec.QueueSeq))

	c.promoteLocked()
	return rec.Clone(), true, nil
}

// Cancel cancels a queued, paused or downloading record
func (c *Coordinator) Cancel(packageName string) (*domain.DownloadRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.findLocked(packageName)
	if err != nil {
		return nil, err
	}

	switch rec.Status {
	case domain.StatusQueued, domain.StatusPaused:
		rec.MarkCancelled()
		if err := c.saveAndEmitLocked(rec, domain.EventCancelled, nil); err != nil {
			return nil, err
		}
	case domain.StatusDownloading:
		c.abortActiveLocked(rec)
		rec.MarkCancelled()
		if err := c.saveAndEmitLocked(rec, domain.EventCancelled, nil); err != nil {
			return nil, err
		}
		c.metrics.RecordDownload(string(domain.StatusCancelled))
		c.promoteLocked()
	default:
		return nil, fmt.Errorf("%w: cannot cancel %s download %s", domain.ErrInvalidTransition, rec.Status, packageName)
	}

	c.logger.Info("Download cancelled", zap.String("package", packageName))
	return rec.Clone(), nil
}

// Pause stops a queued or downloading record, keeping staged files
func (c *Coordinator) Pause(packageName string) (*domain.DownloadRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.findLocked(packageName)
	if err != nil {
		return nil, err
	}

	switch rec.Status {
	case domain.StatusQueued:
		rec.MarkPaused()
		if err := c.saveAndEmitLocked(rec, domain.EventPaused, nil); err != nil {
			return nil, err
		}
	case domain.StatusDownloading:
		c.abortActiveLocked(rec)
		rec.MarkPaused()
		if err := c.saveAndEmitLocked(rec, domain.EventPaused, nil); err != nil {
			return nil, err
		}
		c.promoteLocked()
	default:
		return nil, fmt.Errorf("%w: cannot pause %s download %s", domain.ErrInvalidTransition, rec.Status, packageName)
	}

	c.logger.Info("Download paused", zap.String("package", packageName))
	return rec.Clone(), nil
}

// Resume puts a paused record back at the tail of the queue
func (c *Coordinator) Resume(packageName string) (*domain.DownloadRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.findLocked(packageName)
	if err != nil {
		return nil, err
	}
	if rec.Status != domain.StatusPaused {
		return nil, fmt.Errorf("%w: cannot resume %s download %s", domain.ErrInvalidTransition, rec.Status, packageName)
	}

	if err := c.requeueLocked(rec); err != nil {
		return nil, err
	}
	c.promoteLocked()
	return rec.Clone(), nil
}

// Retry re-enqueues a failed or cancelled record, or a completed one whose
// install failed or is no longer running
func (c *Coordinator) Retry(packageName string) (*domain.DownloadRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.findLocked(packageName)
	if err != nil {
		return nil, err
	}

	installFailed := rec.Status == domain.StatusCompleted &&
		(rec.InstallStatus == domain.InstallFailed || (rec.InstallStatus == domain.InstallInstalling && !c.installInFlight(rec)))
	if !rec.CanRetry() && !installFailed {
		return nil, fmt.Errorf("%w: cannot retry %s download %s", domain.ErrInvalidTransition, rec.Status, packageName)
	}

	rec.Attempts = 0
	rec.DownloadedBytes = 0
	rec.InstallStatus = domain.InstallIdle
	rec.InstallStrategy = ""
	rec.CompletedAt = nil
	if err := c.requeueLocked(rec); err != nil {
		return nil, err
	}

	c.logger.Info("Download retried", zap.String("package", packageName))
	c.promoteLocked()
	return rec.Clone(), nil
}

// Remove cancels the record if active, deletes its staged files and the record
func (c *Coordinator) Remove(packageName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.findLocked(packageName)
	if err != nil {
		return err
	}
	if c.installInFlight(rec) {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyInstalling, packageName)
	}

	wasActive := rec.Status == domain.StatusDownloading && c.active == packageName
	if wasActive {
		c.abortActiveLocked(rec)
		c.metrics.RecordDownload(string(domain.StatusCancelled))
	}

	c.removeStaged(rec)
	if err := c.repo.Delete(packageName); err != nil {
		return fmt.Errorf("failed to delete %s: %w", packageName, err)
	}
	c.emitLocked(domain.NewEvent(domain.EventRemoved, rec, nil))
	c.logger.Info("Download removed", zap.String("package", packageName))

	if wasActive {
		c.promoteLocked()
	}
	return nil
}

// Get returns the record for a package
func (c *Coordinator) Get(packageName string) (*domain.DownloadRecord, error) {
	rec, err := c.repo.FindByPackage(packageName)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrRecordNotFound, packageName)
	}
	return rec, nil
}

// List lists records with optional filters
func (c *Coordinator) List(filters map[string]interface{}) ([]*domain.DownloadRecord, error) {
	return c.repo.FindAll(filters)
}

// Stats returns record statistics
func (c *Coordinator) Stats() (*domain.DownloadStats, error) {
	return c.repo.GetStats()
}

// Subscribe returns a channel of pipeline events and a function releasing it.
// Events are dropped, not queued, when the channel is full.
func (c *Coordinator) Subscribe(buffer int) (<-chan domain.Event, func()) {
	if buffer <= 0 {
		buffer = c.config.EventBuffer
	}
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	ch := make(chan domain.Event, buffer)

	c.subMu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = ch
	c.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			defer c.subMu.Unlock()
			if sub, ok := c.subscribers[id]; ok {
				delete(c.subscribers, id)
				close(sub)
			}
		})
	}
}

func (c *Coordinator) emitLocked(ev domain.Event) {
	c.subMu.Lock()
	for _, ch := range c.subscribers {
		select {
		case ch <- ev:
		default:
			c.logger.Warn("Subscriber full, dropping event",
				zap.String("package", ev.PackageName),
				zap.String("kind", string(ev.Kind)))
			c.metrics.RecordDroppedEvent(string(ev.Kind))
		}
	}
	c.subMu.Unlock()

	if ev.Kind != domain.EventProgress {
		fields := []zap.Field{zap.String("package", ev.PackageName)}
		if ev.Error != "" {
			fields = append(fields, zap.String("error_kind", ev.ErrorKind), zap.String("error", ev.Error))
		}
		c.logQueueEvent("download_"+string(ev.Kind), fields...)
	}
}

func (c *Coordinator) logQueueEvent(event string, fields ...zap.Field) {
	if c.multiLogger != nil {
		c.multiLogger.LogQueueEvent(event, fields...)
	}
}

func (c *Coordinator) logError(msg string, fields ...zap.Field) {
	c.logger.Error(msg, fields...)
	if c.multiLogger != nil {
		c.multiLogger.LogError(msg, fields...)
	}
}

func (c *Coordinator) findLocked(packageName string) (*domain.DownloadRecord, error) {
	rec, err := c.repo.FindByPackage(packageName)
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", packageName, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrRecordNotFound, packageName)
	}
	return rec, nil
}

func (c *Coordinator) saveAndEmitLocked(rec *domain.DownloadRecord, kind domain.EventKind, cause error) error {
	if err := c.repo.Save(rec); err != nil {
		c.logError("Failed to save download record", zap.String("package", rec.PackageName), zap.Error(err))
		return fmt.Errorf("failed to save %s: %w", rec.PackageName, err)
	}
	c.emitLocked(domain.NewEvent(kind, rec, cause))
	return nil
}

func (c *Coordinator) nextSeqLocked() (int64, error) {
	if !c.seqLoaded {
		max, err := c.repo.MaxQueueSeq()
		if err != nil {
			return 0, fmt.Errorf("failed to read queue sequence: %w", err)
		}
		c.nextSeq = max
		c.seqLoaded = true
	}
	c.nextSeq++
	return c.nextSeq, nil
}

// requeueLocked puts the record at the tail of the queue
func (c *Coordinator) requeueLocked(rec *domain.DownloadRecord) error {
	seq, err := c.nextSeqLocked()
	if err != nil {
		return err
	}
	rec.MarkQueued(seq)
	return c.saveAndEmitLocked(rec, domain.EventQueued, nil)
}

// promoteLocked hands the download slot to the earliest queued record
func (c *Coordinator) promoteLocked() {
	if !c.running || c.active != "" {
		return
	}

	queued, err := c.repo.FindQueued()
	if err != nil {
		c.logError("Failed to load queued downloads", zap.Error(err))
		return
	}
	for _, rec := range queued {
		if c.startLocked(rec) {
			return
		}
	}
}

func (c *Coordinator) startLocked(rec *domain.DownloadRecord) bool {
	requests := make([]engine.Request, 0, len(rec.Files))
	for _, f := range rec.Files {
		requests = append(requests, engine.Request{
			URL:  f.URL,
			Path: f.Path,
			Size: f.Size,
			Tag:  string(f.Type),
		})
	}

	if err := c.engine.Enqueue(c.runCtx, rec.GroupID, requests); err != nil {
		c.logError("Failed to start download",
			zap.String("package", rec.PackageName),
			zap.Int("group_id", rec.GroupID),
			zap.Error(err))
		failure := &domain.NetworkFailureError{PackageName: rec.PackageName, Err: err}
		rec.MarkFailed(failure)
		c.metrics.RecordDownload(string(domain.StatusFailed))
		// a record that could not be marked failed would be picked again
		return c.saveAndEmitLocked(rec, domain.EventFailed, failure) != nil
	}

	c.active = rec.PackageName
	c.activeGroup = rec.GroupID
	c.metrics.IncrementActiveDownloads()

	rec.DownloadedBytes = 0
	rec.MarkDownloading()
	if err := c.saveAndEmitLocked(rec, domain.EventStarted, nil); err != nil {
		c.engine.CancelGroup(rec.GroupID)
		c.releaseLocked()
		return false
	}

	c.logger.Info("Download started",
		zap.String("package", rec.PackageName),
		zap.Int("group_id", rec.GroupID),
		zap.Int("files", len(requests)))
	return true
}

func (c *Coordinator) releaseLocked() {
	if c.active == "" {
		return
	}
	c.active = ""
	c.activeGroup = 0
	c.metrics.DecrementActiveDownloads()
}

// abortActiveLocked cancels the engine group of the active record and frees
// the slot. Late callbacks for the group are discarded.
func (c *Coordinator) abortActiveLocked(rec *domain.DownloadRecord) {
	if c.active != rec.PackageName {
		return
	}
	if err := c.engine.CancelGroup(rec.GroupID); err != nil && !errors.Is(err, engine.ErrGroupNotFound) {
		c.logger.Warn("Failed to cancel download group",
			zap.String("package", rec.PackageName),
			zap.Int("group_id", rec.GroupID),
			zap.Error(err))
	}
	c.releaseLocked()
}

func (c *Coordinator) handleEngineEventLocked(ev engine.Event) {
	if c.active == "" || ev.GroupID != c.activeGroup {
		c.logger.Debug("Discarding event for inactive group",
			zap.Int("group_id", ev.GroupID),
			zap.String("kind", string(ev.Kind)))
		return
	}

	rec, err := c.repo.FindByPackage(c.active)
	if err != nil || rec == nil || rec.Status != domain.StatusDownloading {
		c.logger.Debug("Discarding event for record no longer downloading",
			zap.String("package", c.active),
			zap.String("kind", string(ev.Kind)))
		return
	}

	switch ev.Kind {
	case engine.EventProgress:
		rec.MarkProgress(ev.Snapshot.Downloaded, ev.Snapshot.Total, ev.BytesPerSecond, ev.ETA)
		c.saveAndEmitLocked(rec, domain.EventProgress, nil)

	case engine.EventFileCompleted:
		rec.MarkProgress(ev.Snapshot.Downloaded, ev.Snapshot.Total, rec.SpeedBps, time.Duration(rec.ETAMillis)*time.Millisecond)
		if err := c.repo.Save(rec); err != nil {
			c.logError("Failed to save download record", zap.String("package", rec.PackageName), zap.Error(err))
			return
		}
		out := domain.NewEvent(domain.EventFileCompleted, rec, nil)
		out.File = ev.Download.Path
		c.emitLocked(out)

	case engine.EventGroupCompleted:
		rec.MarkProgress(ev.Snapshot.Downloaded, ev.Snapshot.Total, 0, 0)
		c.completeLocked(rec)

	case engine.EventError:
		failure := &domain.NetworkFailureError{PackageName: rec.PackageName, URL: ev.Download.URL, Err: ev.Err}
		c.logError("Download failed",
			zap.String("package", rec.PackageName),
			zap.String("url", ev.Download.URL),
			zap.Error(ev.Err))
		c.releaseLocked()
		rec.MarkFailed(failure)
		c.saveAndEmitLocked(rec, domain.EventFailed, failure)
		c.metrics.RecordDownload(string(domain.StatusFailed))
		c.promoteLocked()

	case engine.EventCancelled:
		// the engine stopped underneath us; the record resumes on the next start
		c.releaseLocked()
		rec.MarkQueued(rec.QueueSeq)
		if err := c.repo.Save(rec); err != nil {
			c.logError("Failed to save download record", zap.String("package", rec.PackageName), zap.Error(err))
		}
	}
}

// completeLocked verifies the staged files and hands them to the installer
func (c *Coordinator) completeLocked(rec *domain.DownloadRecord) {
	c.releaseLocked()

	if err := verifyFiles(c.runCtx, rec); err != nil {
		c.logError("Staged files missing after download",
			zap.String("package", rec.PackageName),
			zap.Error(err))
		rec.MarkFailed(err)
		c.saveAndEmitLocked(rec, domain.EventFailed, err)
		c.metrics.RecordDownload(string(domain.StatusFailed))

		var missing *domain.FileMissingError
		if errors.As(err, &missing) && rec.Attempts < c.config.FileMissingRequeues {
			rec.Attempts++
			if err := c.requeueLocked(rec); err == nil {
				c.logger.Info("Re-queued download after missing files",
					zap.String("package", rec.PackageName),
					zap.Int("attempt", rec.Attempts))
			}
		}
		c.promoteLocked()
		return
	}

	rec.MarkCompleted()
	rec.MarkInstall(domain.InstallInstalling, "", nil)
	c.saveAndEmitLocked(rec, domain.EventCompleted, nil)
	c.metrics.RecordDownload(string(domain.StatusCompleted))
	c.metrics.RecordDownloadedBytes(rec.DownloadedBytes)
	c.logger.Info("Download completed",
		zap.String("package", rec.PackageName),
		zap.Int64("bytes", rec.DownloadedBytes))

	switch err := c.installer.Install(c.runCtx, rec.PackageName, rec.APKPaths()); {
	case err == nil:
		c.emitLocked(domain.NewEvent(domain.EventInstalling, rec, nil))
	case errors.Is(err, domain.ErrAlreadyInstalling):
		// the in-flight install reports for this package
		c.logger.Warn("Install already in flight", zap.String("package", rec.PackageName))
	default:
		rec.MarkInstall(domain.InstallFailed, "", err)
		c.saveAndEmitLocked(rec, domain.EventInstallFailed, err)
		c.logError("Failed to start install", zap.String("package", rec.PackageName), zap.Error(err))
	}

	c.promoteLocked()
}

func (c *Coordinator) handleInstallResultLocked(res domain.InstallResult) {
	rec, err := c.repo.FindByPackage(res.PackageName)
	if err != nil || rec == nil {
		c.logger.Warn("Install result for unknown record", zap.String("package", res.PackageName))
		return
	}
	if rec.InstallStatus != domain.InstallInstalling {
		c.logger.Debug("Discarding stale install result", zap.String("package", res.PackageName))
		return
	}

	if res.Err != nil {
		rec.MarkInstall(domain.InstallFailed, string(res.Strategy), res.Err)
		c.saveAndEmitLocked(rec, domain.EventInstallFailed, res.Err)
		c.metrics.RecordInstall(string(res.Strategy), "failed")
		c.logError("Install failed",
			zap.String("package", res.PackageName),
			zap.String("strategy", string(res.Strategy)),
			zap.String("error_kind", domain.ErrorKind(res.Err)),
			zap.Error(res.Err))
		return
	}

	rec.MarkInstall(domain.InstallSuccess, string(res.Strategy), nil)
	c.metrics.RecordInstall(string(res.Strategy), "success")
	c.logger.Info("Package installed",
		zap.String("package", res.PackageName),
		zap.String("strategy", string(res.Strategy)))

	if !c.config.CleanupAfterInstall {
		c.saveAndEmitLocked(rec, domain.EventInstalled, nil)
		return
	}

	c.removeStaged(rec)
	if err := c.repo.Delete(rec.PackageName); err != nil {
		c.logError("Failed to delete installed record", zap.String("package", rec.PackageName), zap.Error(err))
	}
	c.emitLocked(domain.NewEvent(domain.EventInstalled, rec, nil))
}

// removeStaged deletes the record's files and its staging directory
func (c *Coordinator) removeStaged(rec *domain.DownloadRecord) {
	for _, f := range rec.Files {
		if f.Path == "" {
			continue
		}
		for _, p := range []string{f.Path, f.Path + ".part"} {
			if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
				c.logger.Warn("Failed to remove staged file", zap.String("path", p), zap.Error(err))
			}
		}
	}
	if c.stagingDir == "" {
		return
	}
	if err := os.RemoveAll(filepath.Join(c.stagingDir, rec.PackageName)); err != nil {
		c.logger.Warn("Failed to remove staging directory", zap.String("package", rec.PackageName), zap.Error(err))
	}
}
