// Package python provides the Python language adapter for creek.
//
// The adapter embeds the bridge program that turns a stock CPython (or a WASI
// build of it) into a call server: it imports bundled script modules on demand,
// calls the requested function, and reports the str() of the result.
package python

import (
	_ "embed"
)

//go:embed bridge.py
var bridge string

// DefaultExecutable is used when no interpreter path is configured.
const DefaultExecutable = "python3"

// Python implements the interp.Language interface.
type Python struct {
	executable string
}

type Option func(*Python)

// WithExecutable sets the interpreter binary (argv[0]).
func WithExecutable(path string) Option {
	return func(p *Python) {
		if path != "" {
			p.executable = path
		}
	}
}

// New returns a Python language adapter.
func New(opts ...Option) *Python {
	p := &Python{executable: DefaultExecutable}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns "python".
func (p *Python) Name() string {
	return "python"
}

// Bootstrap returns the bridge program source.
func (p *Python) Bootstrap() string {
	return bridge
}

// Args returns the interpreter command line. Output is unbuffered so frames
// reach the host as soon as they are written.
func (p *Python) Args(bootstrap string) []string {
	return []string{p.executable, "-u", "-c", bootstrap}
}

// SearchPathEnv returns "PYTHONPATH".
func (p *Python) SearchPathEnv() string {
	return "PYTHONPATH"
}
