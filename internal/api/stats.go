package api

import (
	"net/http"
	"runtime"
	"sync"
	"time"

	"notemap/pkg/session"
	"notemap/pkg/tracker"
)

// NoteCounter reports the size of the note index.
type NoteCounter interface {
	Len() int
}

// ChangeClock reports when the vault last changed.
type ChangeClock interface {
	LastChange() time.Time
}

// StatsHandler serves /api/stats.
type StatsHandler struct {
	tracker  *tracker.Tracker
	sessions *session.Manager
	hub      *Hub
	notes    NoteCounter
	changes  ChangeClock
	started  time.Time

	mu     sync.Mutex
	maxMem uint64
}

// NewStatsHandler creates a new StatsHandler. notes and changes may be nil.
func NewStatsHandler(t *tracker.Tracker, sessions *session.Manager, hub *Hub, notes NoteCounter, changes ChangeClock) *StatsHandler {
	return &StatsHandler{
		tracker:  t,
		sessions: sessions,
		hub:      hub,
		notes:    notes,
		changes:  changes,
		started:  time.Now(),
	}
}

type ProviderStatsDTO struct {
	CacheHits   int64 `json:"cache_hits"`
	CacheMisses int64 `json:"cache_misses"`
	APISuccess  int64 `json:"api_success"`
	APIInvalid  int64 `json:"api_invalid"`
	APIFailures int64 `json:"api_errors"`
	HitRate     int64 `json:"hit_rate"`
}

type Diagnostics struct {
	MemoryMB    uint64 `json:"memory_mb"`
	MemoryMaxMB uint64 `json:"memory_max_mb"`
	Goroutines  int    `json:"goroutines"`
	UptimeSec   int64  `json:"uptime_sec"`
}

type VaultStats struct {
	Notes      int        `json:"notes"`
	LastChange *time.Time `json:"last_change,omitempty"`
}

type StatsResponse struct {
	Diagnostics Diagnostics                 `json:"diagnostics"`
	Vault       VaultStats                  `json:"vault"`
	Views       int                         `json:"views"`
	Sessions    []session.Session           `json:"sessions"`
	Providers   map[string]ProviderStatsDTO `json:"providers"`
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		Diagnostics: h.diagnostics(),
		Views:       h.hub.Len(),
		Sessions:    h.sessions.List(),
		Providers:   make(map[string]ProviderStatsDTO),
	}
	if h.notes != nil {
		resp.Vault.Notes = h.notes.Len()
	}
	if h.changes != nil {
		if t := h.changes.LastChange(); !t.IsZero() {
			resp.Vault.LastChange = &t
		}
	}

	for provider, stats := range h.tracker.Snapshot() {
		totalCache := stats.CacheHits + stats.CacheMisses
		hitRate := int64(0)
		if totalCache > 0 {
			hitRate = (stats.CacheHits * 100) / totalCache
		}
		resp.Providers[provider] = ProviderStatsDTO{
			CacheHits:   stats.CacheHits,
			CacheMisses: stats.CacheMisses,
			APISuccess:  stats.APISuccess,
			APIInvalid:  stats.APIInvalid,
			APIFailures: stats.APIFailures,
			HitRate:     hitRate,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *StatsHandler) diagnostics() Diagnostics {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	h.mu.Lock()
	if ms.Sys > h.maxMem {
		h.maxMem = ms.Sys
	}
	peak := h.maxMem
	h.mu.Unlock()

	return Diagnostics{
		MemoryMB:    bToMb(ms.Sys),
		MemoryMaxMB: bToMb(peak),
		Goroutines:  runtime.NumGoroutine(),
		UptimeSec:   int64(time.Since(h.started).Seconds()),
	}
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}
