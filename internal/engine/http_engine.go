package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/aurora-dl/internal/domain"
)

const (
	dirPerm                 = 0755
	defaultProgressInterval = 500 * time.Millisecond
)

// FetchError ties a transfer failure to the request that caused it
type FetchError struct {
	Request Request
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Request.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// HTTPEngine downloads groups of files over HTTP into their staging paths
type HTTPEngine struct {
	client      *http.Client
	maxParallel int
	interval    time.Duration
	userAgent   string
	logger      *zap.Logger

	mu        sync.Mutex
	listeners []Listener
	groups    map[int]*group
	closed    bool
	wg        sync.WaitGroup
}

type group struct {
	id         int
	requests   []Request
	cancel     context.CancelFunc
	done       chan struct{}
	prev       <-chan struct{}
	cancelled  atomic.Bool
	downloaded atomic.Int64
	total      atomic.Int64
	completed  atomic.Int32
	current    atomic.Int32
}

// NewHTTPEngine creates an engine using the download configuration
func NewHTTPEngine(config *domain.DownloadConfig, logger *zap.Logger) *HTTPEngine {
	maxParallel := config.MaxParallelFiles
	if maxParallel < 1 {
		maxParallel = 1
	}
	interval := config.ProgressInterval
	if interval <= 0 {
		interval = defaultProgressInterval
	}

	return &HTTPEngine{
		client:      &http.Client{Timeout: config.HTTPTimeout},
		maxParallel: maxParallel,
		interval:    interval,
		userAgent:   config.UserAgent,
		logger:      logger,
		groups:      make(map[int]*group),
	}
}

// AddListener registers a group callback
func (e *HTTPEngine) AddListener(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

// Enqueue starts downloading a group in the background
func (e *HTTPEngine) Enqueue(ctx context.Context, groupID int, requests []Request) error {
	if len(requests) == 0 {
		return fmt.Errorf("group %d has no requests", groupID)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	var prev <-chan struct{}
	if old, ok := e.groups[groupID]; ok {
		if !old.cancelled.Load() {
			e.mu.Unlock()
			return fmt.Errorf("%w: %d", ErrGroupExists, groupID)
		}
		// the cancelled run still owns the staging paths until it exits
		prev = old.done
	}

	gctx, cancel := context.WithCancel(ctx)
	g := &group{
		id:       groupID,
		requests: append([]Request(nil), requests...),
		cancel:   cancel,
		done:     make(chan struct{}),
		prev:     prev,
	}
	var total int64
	for _, r := range requests {
		total += r.Size
	}
	g.total.Store(total)

	e.groups[groupID] = g
	e.wg.Add(1)
	e.mu.Unlock()

	e.logger.Info("Download group enqueued",
		zap.Int("group_id", groupID),
		zap.Int("files", len(requests)),
		zap.String("size", humanize.Bytes(uint64(total))))

	go e.run(gctx, g)
	return nil
}

// CancelGroup stops a group. No further events are delivered for it.
// The group stays registered until its transfers have unwound.
func (e *HTTPEngine) CancelGroup(groupID int) error {
	e.mu.Lock()
	g, ok := e.groups[groupID]
	if !ok || g.cancelled.Load() {
		e.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrGroupNotFound, groupID)
	}
	g.cancelled.Store(true)
	e.mu.Unlock()

	g.cancel()
	e.logger.Info("Download group cancelled", zap.Int("group_id", groupID))
	return nil
}

// Close cancels all groups and waits for their goroutines
func (e *HTTPEngine) Close() {
	e.mu.Lock()
	e.closed = true
	for _, g := range e.groups {
		g.cancelled.Store(true)
		g.cancel()
	}
	e.mu.Unlock()

	e.wg.Wait()
	e.client.CloseIdleConnections()
}

func (e *HTTPEngine) run(ctx context.Context, g *group) {
	defer e.wg.Done()
	defer close(g.done)
	defer g.cancel()

	if g.prev != nil {
		select {
		case <-g.prev:
		case <-ctx.Done():
		}
	}

	done := make(chan struct{})
	var reporter sync.WaitGroup
	reporter.Add(1)
	go func() {
		defer reporter.Done()
		e.reportProgress(g, done)
	}()

	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(e.maxParallel)
	for i := range g.requests {
		index := i
		req := g.requests[i]
		eg.Go(func() error {
			return e.fetch(ectx, g, index, req)
		})
	}
	err := eg.Wait()

	close(done)
	reporter.Wait()

	e.mu.Lock()
	if e.groups[g.id] == g {
		delete(e.groups, g.id)
	}
	e.mu.Unlock()

	switch {
	case g.cancelled.Load():
		return
	case err == nil:
		e.logger.Info("Download group completed",
			zap.Int("group_id", g.id),
			zap.String("downloaded", humanize.Bytes(uint64(g.downloaded.Load()))))
		e.emit(g, Event{Kind: EventGroupCompleted})
	case errors.Is(err, context.Canceled):
		e.emit(g, Event{Kind: EventCancelled, Err: err})
	default:
		ev := Event{Kind: EventError, Err: err}
		var fe *FetchError
		if errors.As(err, &fe) {
			ev.Download = fe.Request
		}
		e.logger.Warn("Download group failed", zap.Int("group_id", g.id), zap.Error(err))
		e.emit(g, ev)
	}
}

func (e *HTTPEngine) fetch(ctx context.Context, g *group, index int, req Request) error {
	if info, err := os.Stat(req.Path); err == nil && req.Size > 0 && info.Size() == req.Size {
		g.downloaded.Add(req.Size)
		g.completed.Add(1)
		e.logger.Debug("File already staged", zap.String("path", req.Path))
		e.emit(g, Event{Kind: EventFileCompleted, Download: req})
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(req.Path), dirPerm); err != nil {
		return &FetchError{Request: req, Err: fmt.Errorf("failed to create target directory: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return &FetchError{Request: req, Err: err}
	}
	if e.userAgent != "" {
		httpReq.Header.Set("User-Agent", e.userAgent)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return &FetchError{Request: req, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &FetchError{Request: req, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	if req.Size == 0 && resp.ContentLength > 0 {
		g.total.Add(resp.ContentLength)
	}

	part := req.Path + ".part"
	out, err := os.Create(part)
	if err != nil {
		return &FetchError{Request: req, Err: fmt.Errorf("failed to create target file: %w", err)}
	}

	pr := newProgressReader(resp.Body, &g.downloaded, func() { g.current.Store(int32(index)) })
	_, copyErr := io.Copy(out, pr)
	closeErr := out.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr == nil && req.Size > 0 && pr.read != req.Size {
		copyErr = fmt.Errorf("received %d bytes, expected %d", pr.read, req.Size)
	}
	if copyErr != nil {
		g.downloaded.Add(-pr.read)
		os.Remove(part)
		return &FetchError{Request: req, Err: copyErr}
	}

	if err := os.Rename(part, req.Path); err != nil {
		return &FetchError{Request: req, Err: fmt.Errorf("failed to move file into place: %w", err)}
	}

	g.completed.Add(1)
	e.logger.Debug("Downloaded file",
		zap.String("path", req.Path),
		zap.String("size", humanize.Bytes(uint64(pr.read))))
	e.emit(g, Event{Kind: EventFileCompleted, Download: req})
	return nil
}

func (e *HTTPEngine) reportProgress(g *group, done <-chan struct{}) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	r := rate{last: g.downloaded.Load()}
	lastTick := time.Now()
	var lastEmitted int64 = -1

	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			downloaded := g.downloaded.Load()
			speed := r.sample(downloaded, now.Sub(lastTick).Seconds())
			lastTick = now
			if downloaded == lastEmitted {
				continue
			}
			lastEmitted = downloaded

			total := g.total.Load()
			e.logger.Debug("Download progress",
				zap.Int("group_id", g.id),
				zap.String("downloaded", humanize.Bytes(uint64(downloaded))),
				zap.String("total", humanize.Bytes(uint64(total))),
				zap.String("speed", humanize.Bytes(uint64(speed))+"/s"))

			e.emit(g, Event{
				Kind:           EventProgress,
				Download:       g.requests[int(g.current.Load())],
				ETA:            time.Duration(eta(downloaded, total, speed)) * time.Millisecond,
				BytesPerSecond: speed,
			})
		}
	}
}

func (e *HTTPEngine) emit(g *group, ev Event) {
	if g.cancelled.Load() {
		return
	}
	ev.GroupID = g.id
	ev.Snapshot = GroupSnapshot{
		Downloaded:     g.downloaded.Load(),
		Total:          g.total.Load(),
		CompletedFiles: int(g.completed.Load()),
		TotalFiles:     len(g.requests),
	}

	e.mu.Lock()
	listeners := append([]Listener(nil), e.listeners...)
	e.mu.Unlock()

	for _, l := range listeners {
		l(ev)
	}
}
