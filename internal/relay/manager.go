package relay

import (
	"context"
	"sync"
)

// SessionManager tracks live sessions and enforces the connection cap.
type SessionManager struct {
	maxSessions int

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
	done     chan struct{} // closed when closed && len(sessions) == 0
}

func NewSessionManager(maxSessions int) *SessionManager {
	return &SessionManager{
		maxSessions: maxSessions,
		sessions:    make(map[string]*Session),
		done:        make(chan struct{}),
	}
}

// Add starts tracking sess. It fails with ErrTooManyConnections at the cap and
// with ErrServerClosed after Close.
func (sm *SessionManager) Add(sess *Session) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.closed {
		return ErrServerClosed
	}
	if sm.maxSessions > 0 && len(sm.sessions) >= sm.maxSessions {
		return ErrTooManyConnections
	}
	sm.sessions[sess.ID()] = sess
	return nil
}

func (sm *SessionManager) Remove(sess *Session) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if cur, ok := sm.sessions[sess.ID()]; ok && cur == sess {
		delete(sm.sessions, sess.ID())
	}
	sm.signalDoneLocked()
}

func (sm *SessionManager) Len() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}

// Close refuses new sessions and waits for tracked ones to be removed, or
// for ctx to end.
func (sm *SessionManager) Close(ctx context.Context) error {
	sm.mu.Lock()
	sm.closed = true
	sm.signalDoneLocked()
	sm.mu.Unlock()

	select {
	case <-sm.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (sm *SessionManager) signalDoneLocked() {
	if !sm.closed || len(sm.sessions) > 0 {
		return
	}
	select {
	case <-sm.done:
	default:
		close(sm.done)
	}
}
