package web

import (
	"log"
	"sync"
)

// Registry maps identities to their live session, the only process-wide
// mutable state besides the task ledger. It backs conflict detection and
// makes a second connection for the same identity supersede the first.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Register binds the identity to a session, returning the previous session
// if one was still live.
func (r *Registry) Register(userID string, s *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.sessions[userID]
	r.sessions[userID] = s
	if prev != nil && prev != s {
		log.Printf("[Registry] Session for %s superseded", userID)
	}
	return prev
}

// Release unbinds the identity, but only if it still points at s: a newer
// session must not be evicted by its predecessor's cleanup.
func (r *Registry) Release(userID string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[userID] == s {
		delete(r.sessions, userID)
	}
}

// Active returns the identity's live session, if any.
func (r *Registry) Active(userID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[userID]
	return s, ok
}

// Count reports the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
