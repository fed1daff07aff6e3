package watcher

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval is the poll period used when none is configured.
const DefaultInterval = 2 * time.Second

// Scanner re-reads a note store and reports whether anything changed.
type Scanner interface {
	Scan(ctx context.Context) (bool, error)
}

// Service polls a vault and notifies subscribers after changes.
type Service struct {
	scanner  Scanner
	interval time.Duration

	mu          sync.Mutex
	subscribers map[int]func()
	nextID      int
	lastChange  time.Time
}

// NewService creates a poller. A non-positive interval selects DefaultInterval.
func NewService(s Scanner, interval time.Duration) *Service {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Service{
		scanner:     s,
		interval:    interval,
		subscribers: make(map[int]func()),
	}
}

// Subscribe registers fn to run after every detected change.
// The returned function removes the subscription.
func (s *Service) Subscribe(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

// CheckNow scans once and notifies subscribers when something changed.
func (s *Service) CheckNow(ctx context.Context) bool {
	changed, err := s.scanner.Scan(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("Watcher: Scan failed", "error", err)
		}
		return false
	}
	if !changed {
		return false
	}

	s.mu.Lock()
	s.lastChange = time.Now()
	fns := make([]func(), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	slog.Debug("Watcher: Vault changed", "subscribers", len(fns))
	for _, fn := range fns {
		fn()
	}
	return true
}

// LastChange returns when the last change was detected.
func (s *Service) LastChange() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastChange
}

// Run polls until ctx is done.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("Watcher: Started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CheckNow(ctx)
		}
	}
}
