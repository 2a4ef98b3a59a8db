// Package presence tracks which identities currently hold a live connection,
// so a second connection with the same identity can be refused.
package presence

import (
	"context"
	"errors"
	"sync"
)

var ErrAlreadyOnline = errors.New("identity is already connected")

// Tracker claims an identity for one session at a time
type Tracker interface {
	// Acquire claims playerID for sessionID; ErrAlreadyOnline if another session holds it
	Acquire(ctx context.Context, playerID, sessionID string) error
	// Refresh extends a claim held by sessionID
	Refresh(ctx context.Context, playerID, sessionID string) error
	// Release drops the claim if sessionID still holds it
	Release(ctx context.Context, playerID, sessionID string) error
	Count(ctx context.Context) (int, error)
}

// Local is an in-process Tracker for single-instance deployments
type Local struct {
	mu       sync.Mutex
	sessions map[string]string
}

func NewLocal() *Local {
	return &Local{sessions: make(map[string]string)}
}

func (l *Local) Acquire(_ context.Context, playerID, sessionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if held, ok := l.sessions[playerID]; ok && held != sessionID {
		return ErrAlreadyOnline
	}
	l.sessions[playerID] = sessionID
	return nil
}

func (l *Local) Refresh(_ context.Context, playerID, sessionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sessions[playerID] != sessionID {
		return ErrAlreadyOnline
	}
	return nil
}

func (l *Local) Release(_ context.Context, playerID, sessionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sessions[playerID] == sessionID {
		delete(l.sessions, playerID)
	}
	return nil
}

func (l *Local) Count(context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sessions), nil
}
