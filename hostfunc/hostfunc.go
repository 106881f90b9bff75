package hostfunc

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Func is a host function callable from the interpreter. Arguments arrive as
// decoded JSON; the result must be JSON-encodable.
type Func func(ctx context.Context, args map[string]any) (any, error)

// Observer is notified after every Call. Used for metrics.
type Observer func(name string, d time.Duration, err error)

type Registry struct {
	mu       sync.RWMutex
	funcs    map[string]Func
	observer Observer
}

func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	r.funcs[name] = fn
	r.mu.Unlock()
}

func (r *Registry) Get(name string) (Func, bool) {
	r.mu.RLock()
	fn, ok := r.funcs[name]
	r.mu.RUnlock()
	return fn, ok
}

// List returns the registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetObserver installs o. A nil observer disables notifications.
func (r *Registry) SetObserver(o Observer) {
	r.mu.Lock()
	r.observer = o
	r.mu.Unlock()
}

// Call runs the named function. Unknown names and panics inside the function
// are returned as errors.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (result any, err error) {
	r.mu.RLock()
	fn, ok := r.funcs[name]
	observer := r.observer
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown function: %s", name)
	}
	if args == nil {
		args = map[string]any{}
	}

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			result, err = nil, fmt.Errorf("host function %s panicked: %v", name, p)
		}
		if observer != nil {
			observer(name, time.Since(start), err)
		}
	}()

	return fn(ctx, args)
}
