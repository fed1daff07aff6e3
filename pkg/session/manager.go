package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"notemap/pkg/model"
	"notemap/pkg/store"
)

// Session is one browser connection attached to a map view.
type Session struct {
	ID     string    `json:"id"`
	ViewID string    `json:"view_id"`
	Opened time.Time `json:"opened"`
}

// Manager tracks open sessions and persists the camera of a view when its last
// session closes.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	cameras  store.CameraStore
}

// NewManager creates a manager. cameras may be nil to disable persistence.
func NewManager(cameras store.CameraStore) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		cameras:  cameras,
	}
}

// Open registers a new session for viewID.
func (m *Manager) Open(viewID string) *Session {
	s := &Session{ID: uuid.NewString(), ViewID: viewID, Opened: time.Now()}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	slog.Debug("Session: Opened", "id", s.ID, "view", viewID)
	return s
}

// Get returns an open session.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Close removes the session and stores the camera it ended with.
func (m *Manager) Close(ctx context.Context, id string, cs model.CameraState) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return
	}

	if m.cameras != nil && !cs.IsZero() {
		if err := Persist(ctx, m.cameras, s.ViewID, cs); err != nil {
			slog.Warn("Session: Failed to persist camera", "view", s.ViewID, "error", err)
		}
	}
	slog.Debug("Session: Closed", "id", id, "view", s.ViewID, "duration", time.Since(s.Opened).Round(time.Second))
}

// Restore returns the camera stored for viewID, if any.
func (m *Manager) Restore(ctx context.Context, viewID string) (model.CameraState, bool) {
	if m.cameras == nil {
		return model.CameraState{}, false
	}
	return TryRestore(ctx, m.cameras, viewID)
}

// List returns the open sessions ordered by opening time.
func (m *Manager) List() []Session {
	m.mu.RLock()
	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, *s)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Opened.Before(out[j].Opened) })
	return out
}

// Count returns the number of open sessions of viewID.
func (m *Manager) Count(viewID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, s := range m.sessions {
		if s.ViewID == viewID {
			n++
		}
	}
	return n
}
