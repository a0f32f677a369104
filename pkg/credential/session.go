// Package credential guards the process-wide transport identity.
//
// Some transports only support one active identity per process. A Session
// holds that identity behind a lock, and Executors decide how a call
// interacts with it: Direct calls bypass the lock, Serialize calls hold it,
// and identity-bound calls hold it while their identity is swapped in. The
// previous identity is always restored when an identity-bound call returns,
// including when it fails or panics.
package credential

import (
	"context"
	"sync"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"golang.org/x/sync/semaphore"
)

// Session is a lock-guarded holder of the currently active identity.
type Session struct {
	lock *semaphore.Weighted

	mu      sync.RWMutex
	current Identity
}

var defaultSession = NewSession()

// Default returns the process-wide session.
func Default() *Session {
	return defaultSession
}

func NewSession() *Session {
	return &Session{lock: semaphore.NewWeighted(1), current: System}
}

// Current returns the identity bound right now.
func (s *Session) Current() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// AuthMethod resolves the authentication of the currently bound identity.
func (s *Session) AuthMethod() (transport.AuthMethod, error) {
	return s.Current().AuthMethod()
}

// heldKey marks a context whose call already holds the lock of s.
type heldKey struct{ s *Session }

// guard takes the session lock for a call under ctx and returns the context
// the call runs with. Calls nested under a context that already holds the
// lock of s share it instead of waiting on themselves.
func (s *Session) guard(ctx context.Context) (context.Context, func(), error) {
	if ctx.Value(heldKey{s}) != nil {
		return ctx, func() {}, nil
	}
	if err := s.lock.Acquire(ctx, 1); err != nil {
		return nil, nil, err
	}
	return context.WithValue(ctx, heldKey{s}, struct{}{}), s.release, nil
}

func (s *Session) release() {
	s.lock.Release(1)
}

// swap binds id and returns the identity it replaced. Callers must hold the lock.
func (s *Session) swap(id Identity) Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.current
	s.current = id
	return prev
}
