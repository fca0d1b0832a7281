package emulation

import (
	"sync"

	"github.com/centrifugal/wsgate/internal/wseb"
)

// Registry keeps sessions by ID.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*wseb.Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*wseb.Session)}
}

func (r *Registry) Add(s *wseb.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = s
}

func (r *Registry) Get(id string) (*wseb.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove removes s if it is still registered under its ID.
func (r *Registry) Remove(s *wseb.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[s.ID()] == s {
		delete(r.sessions, s.ID())
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sessions returns snapshot of registered sessions.
func (r *Registry) Sessions() []*wseb.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*wseb.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
