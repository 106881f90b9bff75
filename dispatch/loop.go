package dispatch

import (
	"context"
	"sync"
)

// Loop runs posted callbacks one at a time, in post order, on the goroutine
// that called Run. It plays the part of a UI main thread.
type Loop struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	stopped bool
}

// NewLoop returns a Loop. Nothing runs until Run is called.
func NewLoop() *Loop {
	l := &Loop{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Post queues fn. It never blocks. Callbacks posted after the loop stopped
// are dropped and Post reports false.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return false
	}
	l.queue = append(l.queue, fn)
	l.cond.Signal()
	return true
}

// Run executes callbacks until ctx is done or Stop is called. Callbacks
// already queued when the loop stops are still run.
func (l *Loop) Run(ctx context.Context) {
	stop := context.AfterFunc(ctx, l.Stop)
	defer stop()

	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.stopped {
			l.cond.Wait()
		}
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		fn()
	}
}

// Stop ends Run once the queue drains.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.cond.Broadcast()
	l.mu.Unlock()
}
