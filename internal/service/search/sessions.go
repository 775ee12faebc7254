package search

import (
	"errors"
	"sync"
	"time"
)

// ErrSuperseded is returned for a search whose session moved on to a newer
// generation, or was abandoned, before the search finished.
var ErrSuperseded = errors.New("search superseded by a newer request")

type sessionState struct {
	latest    uint64
	abandoned bool
	touched   time.Time
}

// Sessions tracks the newest request generation of each editing session.
// A session with an empty id is never guarded.
type Sessions struct {
	mu           sync.Mutex
	sessions     map[string]*sessionState
	ttl          time.Duration
	tombstoneTTL time.Duration
	now          func() time.Time
}

// abandonedRetention multiplies ttl to get how long an abandoned session
// stays retired.
const abandonedRetention = 48

// NewSessions creates a tracker. Live sessions untouched for ttl are
// forgotten; abandoned ones are kept for abandonedRetention times as long
// so a late request cannot revive them.
func NewSessions(ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Sessions{
		sessions:     make(map[string]*sessionState),
		ttl:          ttl,
		tombstoneTTL: ttl * abandonedRetention,
		now:          time.Now,
	}
}

// Begin records generation gen for session. It returns false when the
// request is already stale.
func (s *Sessions) Begin(session string, gen uint64) bool {
	if session == "" {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.sweepLocked(now)

	st, ok := s.sessions[session]
	if !ok {
		st = &sessionState{}
		s.sessions[session] = st
	}
	st.touched = now
	if st.abandoned || gen < st.latest {
		return false
	}
	st.latest = gen
	return true
}

// Current reports whether gen is still the newest generation of a live
// session.
func (s *Sessions) Current(session string, gen uint64) bool {
	if session == "" {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[session]
	return ok && !st.abandoned && st.latest == gen
}

// Abandon retires session. Requests still in flight for it are discarded.
func (s *Sessions) Abandon(session string) {
	if session == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[session]
	if !ok {
		st = &sessionState{}
		s.sessions[session] = st
	}
	st.abandoned = true
	st.touched = s.now()
}

// Len returns the number of tracked sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Sessions) sweepLocked(now time.Time) {
	for id, st := range s.sessions {
		ttl := s.ttl
		if st.abandoned {
			ttl = s.tombstoneTTL
		}
		if now.Sub(st.touched) > ttl {
			delete(s.sessions, id)
		}
	}
}
