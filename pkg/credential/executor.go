package credential

import (
	"context"
	"fmt"

	pkgsync "github.com/cyclopsgroup/gitcon/pkg/sync"
)

// Executor runs a call under one policy for the session identity.
type Executor interface {
	Invoke(ctx context.Context, fn func(context.Context) error) error
}

// Call runs fn through e and returns its result.
func Call[T any](ctx context.Context, e Executor, fn func(context.Context) (T, error)) (T, error) {
	var result T
	err := e.Invoke(ctx, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	return result, err
}

// Direct invokes calls immediately without locking. It is only correct when
// no identity override is needed or concurrency is guaranteed elsewhere.
func Direct() Executor {
	return direct{}
}

type direct struct{}

func (direct) Invoke(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

// Serialize invokes calls through next while holding the session lock.
// Guarded executors of the same session nested under it share the lock, so
// Serialize(s, WithIdentity(s, id)) binds id under a single acquisition.
func Serialize(s *Session, next Executor) Executor {
	return &serialized{session: s, next: next}
}

type serialized struct {
	session *Session
	next    Executor
}

func (e *serialized) Invoke(ctx context.Context, fn func(context.Context) error) error {
	ctx, release, err := e.session.guard(ctx)
	if err != nil {
		return err
	}
	defer release()

	return e.next.Invoke(ctx, fn)
}

// checker is implemented by identities whose material can be validated up front.
type checker interface {
	Check() error
}

// WithIdentity invokes calls with id bound to the session. The previously
// bound identity is restored before the lock is released.
func WithIdentity(s *Session, id Identity) Executor {
	return &bound{session: s, identity: id}
}

// WithPrivateKey binds the SSH private key at path for each call.
func WithPrivateKey(s *Session, path string) Executor {
	return WithIdentity(s, KeyFile{Path: path})
}

type bound struct {
	session  *Session
	identity Identity
}

func (e *bound) Invoke(ctx context.Context, fn func(context.Context) error) error {
	if c, ok := e.identity.(checker); ok {
		if err := c.Check(); err != nil {
			return fmt.Errorf("%w: identity %v is not readable: %w", pkgsync.ErrInvalidArgument, e.identity, err)
		}
	}

	ctx, release, err := e.session.guard(ctx)
	if err != nil {
		return err
	}
	defer release()

	prev := e.session.swap(e.identity)
	defer e.session.swap(prev)

	return fn(ctx)
}
