package interp

import (
	"time"

	"github.com/caffeineduck/creek/hostfunc"
)

// Hooks observe the runtime. Any field may be nil.
type Hooks struct {
	OnState func(State)
	OnStart func(d time.Duration, err error)
	OnCall  func(module, fn string, d time.Duration, err error)
}

type config struct {
	registry     *hostfunc.Registry
	startTimeout time.Duration
	hooks        Hooks
}

// Option configures a Runtime.
type Option func(*config)

// WithRegistry sets the host functions the interpreter may call.
func WithRegistry(r *hostfunc.Registry) Option {
	return func(c *config) {
		c.registry = r
	}
}

// WithStartTimeout bounds how long startup may take. Zero, the default,
// waits forever.
func WithStartTimeout(d time.Duration) Option {
	return func(c *config) {
		c.startTimeout = d
	}
}

// WithHooks installs lifecycle observers.
func WithHooks(h Hooks) Option {
	return func(c *config) {
		c.hooks = h
	}
}
