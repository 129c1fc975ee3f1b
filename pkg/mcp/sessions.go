package mcp

import (
	"sync"

	"github.com/rendis/fieldflow/internal/session"
)

// liveSession pairs an in-memory session with the survey it runs against.
type liveSession struct {
	sess     *session.Session
	surveyID string
	language string
}

// sessionRegistry caches live sessions by ID so consecutive tool calls
// operate on the same in-memory state instead of rebuilding from the store
// on every call. Safe for concurrent use.
type sessionRegistry struct {
	mu   sync.RWMutex
	live map[string]*liveSession
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{live: make(map[string]*liveSession)}
}

// Get returns the live session for an ID, or nil if not cached.
func (r *sessionRegistry) Get(id string) *liveSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.live[id]
}

// Put caches a live session.
func (r *sessionRegistry) Put(id string, ls *liveSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[id] = ls
}

// Remove evicts a session from the cache.
func (r *sessionRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.live, id)
}

// Len returns the number of cached sessions.
func (r *sessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.live)
}
