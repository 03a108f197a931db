// Package session keeps one workflow per browser session in a bounded,
// expiring cache.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/JonMunkholm/excelsql/internal/workflow"
)

// Factory builds the workflow for a new session.
type Factory func(id string) *workflow.Workflow

// Store maps session IDs to workflows. Idle sessions expire after the TTL
// and the least recently used session is evicted when the store is full.
// Evicted workflows are closed, which ends their subscriptions.
type Store struct {
	mu      sync.Mutex
	cache   *expirable.LRU[string, *workflow.Workflow]
	factory Factory
}

// NewStore creates a store holding at most size sessions.
func NewStore(size int, ttl time.Duration, factory Factory) *Store {
	onEvict := func(id string, w *workflow.Workflow) {
		slog.Debug("session evicted", "session_id", id)
		w.Close()
	}
	return &Store{
		cache:   expirable.NewLRU[string, *workflow.Workflow](size, onEvict, ttl),
		factory: factory,
	}
}

// NewID returns a fresh random session ID.
func NewID() string {
	return uuid.NewString()
}

// Valid reports whether id looks like an ID issued by NewID.
func Valid(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// GetOrCreate returns the session's workflow, creating it when unknown or
// expired. The second result is true when a new workflow was created.
// Every access restarts the session's TTL.
func (s *Store) GetOrCreate(id string) (*workflow.Workflow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w, ok := s.cache.Get(id); ok {
		s.cache.Add(id, w)
		return w, false
	}
	w := s.factory(id)
	s.cache.Add(id, w)
	return w, true
}

// Get returns the session's workflow without creating one.
func (s *Store) Get(id string) (*workflow.Workflow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.cache.Get(id)
	if ok {
		s.cache.Add(id, w)
	}
	return w, ok
}

// Remove drops a session and closes its workflow.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Remove(id)
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	return s.cache.Len()
}

// Close drops every session.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Purge()
}
