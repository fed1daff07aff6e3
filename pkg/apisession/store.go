// Package apisession keeps small per-client state for API handlers. Browsers
// identify themselves with an opaque client id sent in the X-Client-ID header.
package apisession

import (
	"context"
	"sync"
	"time"
)

type entry[T any] struct {
	value      T
	lastAccess time.Time
}

// Store maps client ids to values of T. Values are copied in and out, so
// callers never share mutable state with the store.
type Store[T any] struct {
	mu      sync.Mutex
	entries map[string]*entry[T]
	ttl     time.Duration
	now     func() time.Time
}

// New creates a store that forgets clients idle for longer than ttl.
func New[T any](ttl time.Duration) *Store[T] {
	return &Store[T]{
		entries: make(map[string]*entry[T]),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the value of a client and refreshes its last access.
// Unknown clients read as the zero value.
func (s *Store[T]) Get(id string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		var zero T
		return zero, false
	}
	e.lastAccess = s.now()
	return e.value, true
}

// Update applies fn to the value of a client, creating it if needed.
func (s *Store[T]) Update(id string, fn func(*T)) T {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		e = &entry[T]{}
		s.entries[id] = e
	}
	fn(&e.value)
	e.lastAccess = s.now()
	return e.value
}

// Delete forgets a client.
func (s *Store[T]) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// Cleanup evicts clients idle for longer than the TTL and returns how many were removed.
func (s *Store[T]) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-s.ttl)
	n := 0
	for id, e := range s.entries {
		if e.lastAccess.Before(cutoff) {
			delete(s.entries, id)
			n++
		}
	}
	return n
}

// Run calls Cleanup every TTL until ctx is done.
func (s *Store[T]) Run(ctx context.Context) {
	if s.ttl <= 0 {
		return
	}
	ticker := time.NewTicker(s.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Cleanup()
		}
	}
}

// Len returns the number of known clients.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
