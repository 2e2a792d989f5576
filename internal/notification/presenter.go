package notification

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/yourusername/aurora-dl/internal/domain"
)

// Poster delivers rendered notifications to the OS
type Poster interface {
	Post(n Notification) error
}

// Presenter renders events and posts them, skipping repeats
type Presenter struct {
	poster Poster
	logger *zap.Logger

	mu   sync.Mutex
	last map[int]Notification
}

// NewPresenter creates a presenter posting through poster
func NewPresenter(poster Poster, logger *zap.Logger) *Presenter {
	return &Presenter{
		poster: poster,
		logger: logger,
		last:   make(map[int]Notification),
	}
}

// Handle renders one event and posts it. It reports whether a post was made.
func (p *Presenter) Handle(ev domain.Event) bool {
	n, ok := Render(ev)

	p.mu.Lock()
	if ev.Kind == domain.EventRemoved {
		delete(p.last, notificationID(ev))
	}
	if !ok || p.last[n.ID] == n {
		p.mu.Unlock()
		return false
	}
	p.last[n.ID] = n
	p.mu.Unlock()

	if err := p.poster.Post(n); err != nil {
		p.logger.Warn("Failed to post notification",
			zap.String("package", ev.PackageName),
			zap.String("kind", string(ev.Kind)),
			zap.Error(err))
		return false
	}
	return true
}

// Run handles events until ctx is done or the channel closes
func (p *Presenter) Run(ctx context.Context, events <-chan domain.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			p.Handle(ev)
		}
	}
}
