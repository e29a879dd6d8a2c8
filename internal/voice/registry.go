// Package voice tracks active voice calls so the bridge can route
// cross-channel responses into a live call instead of the originating
// channel.
//
// A session is created when a voice-channel request arrives with a call sid
// or when the voice gateway reports a session start, and cleared when the
// gateway reports the call ended or the session times out from inactivity.
package voice

import (
	"sync"
	"time"
)

type session struct {
	callSID      string
	lastActivity time.Time
}

// Registry maps sender identities to their active voice session. Safe for
// concurrent use. Expiry is lazy: entries are checked on read, never swept.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session
	timeout  time.Duration
}

// NewRegistry builds a registry whose sessions expire after timeout of
// inactivity.
func NewRegistry(timeout time.Duration) *Registry {
	return &Registry{
		sessions: make(map[string]*session),
		timeout:  timeout,
	}
}

// Touch registers or refreshes the voice session for sender. The call sid is
// overwritten and the activity clock restarts. A sender holds at most one
// session.
func (r *Registry) Touch(sender, callSID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sender]
	if !ok {
		s = &session{}
		r.sessions[sender] = s
	}
	s.callSID = callSID
	s.lastActivity = time.Now()
}

// Remove deletes every session holding callSID. There should be at most one,
// but the scan tolerates duplicates.
func (r *Registry) Remove(callSID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for sender, s := range r.sessions {
		if s.callSID == callSID {
			delete(r.sessions, sender)
		}
	}
}

// ActiveCallSID returns the call sid for sender if the session has seen
// activity within the timeout, and "" otherwise.
func (r *Registry) ActiveCallSID(sender string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[sender]
	if !ok {
		return "", false
	}
	if time.Since(s.lastActivity) >= r.timeout {
		return "", false
	}
	return s.callSID, true
}
