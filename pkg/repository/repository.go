// Package repository manages local working directories kept in sync with a
// remote origin and exposes their content as resources.
//
// A Static repository populates its working directory once. A Dynamic
// repository additionally refreshes it in the background until closed.
package repository

import (
	"context"
	"time"

	"github.com/cyclopsgroup/gitcon/internal/logging"
	"github.com/cyclopsgroup/gitcon/pkg/resource"
)

// Repository resolves paths to resources. Resolving never fails: a missing
// path only fails when the resource is read.
type Repository interface {
	Resource(path string) resource.Resource
}

// Lifecycle is implemented by repositories that own local state.
type Lifecycle interface {
	Init(ctx context.Context) error
	Close() error
}

// DefaultUpdateInterval is the refresh interval of a Dynamic repository
// unless configured otherwise.
const DefaultUpdateInterval = 300 * time.Second

type options struct {
	name     string
	logger   *logging.Logger
	delay    DelayFunc
	interval time.Duration
}

type Option func(*options)

// WithName sets the name used in logs and metrics. It defaults to the base
// name of the working directory.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

func WithLogger(logger *logging.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithDelay selects how the wait between two refreshes is derived from the
// update interval.
func WithDelay(delay DelayFunc) Option {
	return func(o *options) {
		o.delay = delay
	}
}

// WithUpdateInterval sets the initial update interval. Values that are not
// at least one second are ignored.
func WithUpdateInterval(interval time.Duration) Option {
	return func(o *options) {
		if interval >= time.Second {
			o.interval = interval
		}
	}
}

func newOptions(opts []Option) options {
	o := options{delay: JitteredDelay, interval: DefaultUpdateInterval}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = logging.Or(o.logger)
	return o
}
