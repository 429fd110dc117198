package relay

import (
	"slices"
	"sync"

	"github.com/die-net/poolsocks/internal/backend"
)

// Registry tracks the sessions a Server has accepted. Terminated sessions
// stay until the next Sweep.
type Registry struct {
	mu       sync.Mutex
	sessions []*Session
}

func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	r.sessions = append(r.sessions, s)
	r.mu.Unlock()
}

// Sweep drops terminated sessions and returns how many remain.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = slices.DeleteFunc(r.sessions, (*Session).Terminated)
	return len(r.sessions)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sessions returns a copy of the registry in insertion order.
func (r *Registry) Sessions() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.sessions)
}

// Snapshot returns one row per registered session.
func (r *Registry) Snapshot() []backend.MinerSnapshot {
	sessions := r.Sessions()
	out := make([]backend.MinerSnapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot())
	}
	return out
}
