// Package session keeps live coaching sessions in memory.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashureev/bateson-coach/internal/domain"
)

// Factory creates a fresh session for id.
type Factory func(id string) *domain.Session

type entry struct {
	sess *domain.Session
	// handedOut is the unix nano time of the last GetOrCreate. It keeps a
	// session alive between the lookup and the turn taking the session lock.
	handedOut atomic.Int64
}

// Registry maps session IDs to live sessions. Sessions never leave the process.
type Registry struct {
	mu         sync.RWMutex
	sessions   map[string]*entry
	newSession Factory
	now        func() time.Time
}

// NewRegistry returns an empty registry that builds sessions with newSession.
func NewRegistry(newSession Factory) *Registry {
	return &Registry{
		sessions:   make(map[string]*entry),
		newSession: newSession,
		now:        time.Now,
	}
}

// Get returns the session for id, if one exists.
func (r *Registry) Get(id string) (*domain.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	return e.sess, true
}

// GetOrCreate returns the session for id, creating it on first use. The
// session counts as active from this call on.
func (r *Registry) GetOrCreate(id string) *domain.Session {
	r.mu.RLock()
	if e, ok := r.sessions[id]; ok {
		e.handedOut.Store(r.now().UnixNano())
		r.mu.RUnlock()
		return e.sess
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		e = &entry{sess: r.newSession(id)}
		r.sessions[id] = e
	}
	e.handedOut.Store(r.now().UnixNano())
	return e.sess
}

// Reset discards the session for id. The next GetOrCreate starts over.
func (r *Registry) Reset(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	return ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep removes sessions idle for longer than ttl and returns their IDs.
func (r *Registry) Sweep(ttl time.Duration) []string {
	r.mu.RLock()
	candidates := make(map[string]*entry, len(r.sessions))
	for id, e := range r.sessions {
		candidates[id] = e
	}
	r.mu.RUnlock()

	// LastSeen waits for a running turn, so it is read outside the registry lock.
	cutoff := r.now().Add(-ttl)
	var expired []string
	for id, e := range candidates {
		if e.sess.LastSeen().Before(cutoff) && handedOutBefore(e, cutoff) {
			expired = append(expired, id)
		}
	}
	if len(expired) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := expired[:0]
	for _, id := range expired {
		// Skip sessions reset and recreated since the scan, and sessions
		// handed to a caller since the scan.
		cur, ok := r.sessions[id]
		if !ok || cur != candidates[id] || !handedOutBefore(cur, cutoff) {
			continue
		}
		delete(r.sessions, id)
		removed = append(removed, id)
	}
	return removed
}

func handedOutBefore(e *entry, cutoff time.Time) bool {
	return e.handedOut.Load() < cutoff.UnixNano()
}
