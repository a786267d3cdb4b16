package app

import "sync"

// SessionRegistry enforces the single-flight invariant for per-customer
// background loops (presence signaling, buffer draining): at most one
// active loop per customer id. It also carries the cancellation marker a
// loop polls between sleeps. Constructed once at startup and injected
// into the coordinators that need it; presence and aggregation each get
// their own registry.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	cancelled bool
	// owned marks a slot held by a running loop. A cancellation requested
	// before any loop existed is an unowned marker.
	owned bool
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*session)}
}

// TryAcquire atomically checks for an existing session and marks one as
// running. ok is true only when no session existed. An unowned
// cancellation marker is consumed in the same critical section and
// reported via wasCancelled, so exactly one caller observes it; a
// cancelled session still owned by a running loop reads as plain busy,
// because the loop's own Release must stay the only thing that frees it.
func (r *SessionRegistry) TryAcquire(id string) (ok bool, wasCancelled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, exists := r.sessions[id]; exists {
		if s.cancelled && !s.owned {
			delete(r.sessions, id)
			return false, true
		}
		return false, false
	}
	r.sessions[id] = &session{owned: true}
	return true, false
}

// RequestCancel marks the session cancelled. When no session exists an
// unowned marker is created, so a loop starting right after still
// observes the cancellation instead of racing past it.
func (r *SessionRegistry) RequestCancel(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, exists := r.sessions[id]; exists {
		s.cancelled = true
		return
	}
	r.sessions[id] = &session{cancelled: true}
}

// Cancelled reports whether a cancellation is pending for id.
func (r *SessionRegistry) Cancelled(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.sessions[id]
	return exists && s.cancelled
}

// Release removes the session record, allowing a fresh loop to start.
// Only an owned slot is released: a stray Release must never delete a
// cancellation marker, and by the time an owner releases, nobody else
// can have re-acquired the id.
func (r *SessionRegistry) Release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, exists := r.sessions[id]; exists && s.owned {
		delete(r.sessions, id)
	}
}

// Active reports whether any session (running or cancelled) exists for id.
func (r *SessionRegistry) Active(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.sessions[id]
	return exists
}
