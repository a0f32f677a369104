package repository

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyclopsgroup/gitcon/internal/metrics"
	"github.com/cyclopsgroup/gitcon/internal/pool"
	pkgsync "github.com/cyclopsgroup/gitcon/pkg/sync"
)

// State is the refresh state of a Dynamic repository.
type State int32

const (
	Stopped State = iota
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "stopped"
	}
}

// Dynamic is a Static repository that keeps refreshing its working directory
// in the background. At most one refresh runs at any time. Refresh failures
// are logged and counted, and the next refresh is scheduled regardless.
type Dynamic struct {
	*Static

	delay      DelayFunc
	interval   atomic.Int64 // seconds
	state      atomic.Int32
	refreshing atomic.Bool

	lifecycle sync.Mutex
	pool      *pool.Pool
}

func NewDynamic(dir string, source pkgsync.Source, opts ...Option) *Dynamic {
	o := newOptions(opts)

	d := &Dynamic{
		Static: NewStatic(dir, source, opts...),
		delay:  o.delay,
	}
	d.interval.Store(int64(o.interval / time.Second))

	return d
}

// Init populates the working directory and starts refreshing it.
func (d *Dynamic) Init(ctx context.Context) error {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()

	if state := d.State(); state != Stopped {
		return fmt.Errorf("%w: repository %s is %s", pkgsync.ErrInvalidArgument, d.name, state)
	}

	if err := d.Static.Init(ctx); err != nil {
		return err
	}

	metrics.RepositoryUpdateInterval(d.name, d.updateInterval())

	d.pool = pool.New(1)
	d.state.Store(int32(Running))
	d.pool.Schedule(d.name, time.Now().Add(d.nextDelay()), d.refresh)

	return nil
}

// refresh runs one update and returns when the next one is due, or the zero
// time once the repository is no longer running.
func (d *Dynamic) refresh(ctx context.Context) (next time.Time) {
	if d.State() != Running {
		return time.Time{}
	}

	d.refreshing.Store(true)
	err := d.update(ctx)
	d.refreshing.Store(false)
	if err != nil {
		metrics.RepositoryRefreshFailed(d.name)
		d.logger.Warnf("%v", fmt.Errorf("%w: repository %s: %w", pkgsync.ErrRefresh, d.name, err))
	}

	if d.State() != Running {
		return time.Time{}
	}

	delay := d.nextDelay()
	d.logger.Debugf("Next refresh in %s", delay)
	return time.Now().Add(delay)
}

func (d *Dynamic) update(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	start := time.Now()
	if err := d.source.Update(ctx, d.Dir()); err != nil {
		return err
	}

	metrics.RepositoryRefreshSucceeded(d.name, start)
	d.logger.Debugf("Repository refreshed in %s", time.Since(start))
	return nil
}

func (d *Dynamic) nextDelay() time.Duration {
	return d.delay(d.updateInterval())
}

// Refresh runs a refresh now. If one is in flight, another one follows it
// immediately.
func (d *Dynamic) Refresh() error {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()

	if state := d.State(); state != Running {
		return fmt.Errorf("%w: repository %s is %s", pkgsync.ErrInvalidArgument, d.name, state)
	}

	return d.pool.Trigger(d.name)
}

// Close stops refreshing and removes the working directory. It does not wait
// for a refresh in flight. Calling it more than once is safe.
func (d *Dynamic) Close() error {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()

	if d.state.CompareAndSwap(int32(Running), int32(Stopping)) {
		inFlight := d.refreshing.Load()
		d.pool.Close()
		if inFlight {
			d.logger.Debugf("Closing while a refresh is in flight")
		}
	}

	err := d.Static.Close()
	d.state.Store(int32(Stopped))
	return err
}

func (d *Dynamic) State() State {
	return State(d.state.Load())
}

// SetUpdateIntervalSeconds changes the interval used to schedule the
// following refreshes.
func (d *Dynamic) SetUpdateIntervalSeconds(seconds int64) error {
	if seconds <= 0 {
		return fmt.Errorf("%w: update interval must be positive, got %d", pkgsync.ErrInvalidArgument, seconds)
	}

	d.interval.Store(seconds)
	metrics.RepositoryUpdateInterval(d.name, d.updateInterval())
	return nil
}

func (d *Dynamic) UpdateIntervalSeconds() int64 {
	return d.interval.Load()
}

func (d *Dynamic) updateInterval() time.Duration {
	return time.Duration(d.interval.Load()) * time.Second
}
