package interp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/caffeineduck/creek/internal/logger"
)

// State is the lifecycle state of a Runtime.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Runtime is the process-wide handle to the embedded interpreter. Construct
// one with New and share it; it starts at most once.
type Runtime struct {
	lang     Language
	launcher Launcher
	cfg      config

	state    atomic.Int32
	readyCh  chan struct{}
	startErr error // written before readyCh is closed

	proto  *protocol
	stdout *lineLog

	mu     sync.Mutex
	proc   Process
	closed bool
}

// New returns an uninitialized Runtime. Nothing is launched until Initialize
// or the first Call.
func New(lang Language, launcher Launcher, opts ...Option) *Runtime {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Runtime{
		lang:     lang,
		launcher: launcher,
		cfg:      cfg,
		readyCh:  make(chan struct{}),
		proto:    newProtocol(context.Background(), cfg.registry),
		stdout:   newLineLog("stdout"),
	}
}

// State returns the current lifecycle state.
func (r *Runtime) State() State {
	return State(r.state.Load())
}

// Backend returns the launcher name.
func (r *Runtime) Backend() string {
	return r.launcher.Name()
}

// markExited moves a ready runtime to failed once its interpreter is gone.
// It reports whether this call made the transition.
func (r *Runtime) markExited() bool {
	if !r.state.CompareAndSwap(int32(StateReady), int32(StateFailed)) {
		return false
	}
	if r.cfg.hooks.OnState != nil {
		r.cfg.hooks.OnState(StateFailed)
	}
	return true
}

func (r *Runtime) setState(s State) {
	r.state.Store(int32(s))
	if r.cfg.hooks.OnState != nil {
		r.cfg.hooks.OnState(s)
	}
}

// Initialize starts the interpreter if nobody has yet. Exactly one caller
// wins and performs the startup, blocking until it completes; it returns true.
// Every other caller returns false immediately. Use AwaitReady to wait.
func (r *Runtime) Initialize(ctx context.Context) bool {
	if !r.state.CompareAndSwap(int32(StateUninitialized), int32(StateInitializing)) {
		return false
	}
	if r.cfg.hooks.OnState != nil {
		r.cfg.hooks.OnState(StateInitializing)
	}

	start := time.Now()
	logger.InfoCtx(ctx, "starting interpreter", logger.KeyBackend, r.launcher.Name())

	err := r.start(context.WithoutCancel(ctx))
	if r.cfg.hooks.OnStart != nil {
		r.cfg.hooks.OnStart(time.Since(start), err)
	}

	if err != nil {
		r.startErr = err
		r.setState(StateFailed)
		logger.ErrorCtx(ctx, "interpreter failed to start",
			logger.KeyBackend, r.launcher.Name(), logger.KeyError, err.Error())
	} else {
		r.setState(StateReady)
		logger.InfoCtx(ctx, "interpreter ready",
			logger.KeyBackend, r.launcher.Name(), logger.KeyDurationMs, logger.Duration(start))
		// The wait goroutine may have seen the exit before the state was ready.
		select {
		case <-r.proto.done():
			r.markExited()
		default:
		}
	}
	close(r.readyCh)
	return true
}

func (r *Runtime) start(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	proc, err := r.launcher.Launch(ctx, r.lang, Output{Stdout: r.stdout, Stderr: r.proto})
	if err != nil {
		r.mu.Unlock()
		return &StartError{Backend: r.launcher.Name(), Err: err}
	}
	r.proc = proc
	r.proto.attach(proc.Stdin())
	r.mu.Unlock()

	go func() {
		err := proc.Wait()
		r.stdout.Flush()
		r.proto.exited(err)
		if !r.isClosed() && r.markExited() {
			logger.Error("interpreter exited", logger.KeyBackend, r.launcher.Name(), logger.KeyError, fmt.Sprint(err))
		}
	}()

	var timeout <-chan time.Time
	if r.cfg.startTimeout > 0 {
		timer := time.NewTimer(r.cfg.startTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-r.proto.ready():
		return nil
	case <-r.proto.done():
		exitErr := r.proto.exitErr
		if exitErr == nil {
			exitErr = errors.New("exited before ready")
		}
		return &StartError{Backend: r.launcher.Name(), Err: exitErr, Output: r.output()}
	case <-timeout:
		proc.Kill()
		return &StartError{
			Backend: r.launcher.Name(),
			Err:     fmt.Errorf("not ready after %v", r.cfg.startTimeout),
			Output:  r.output(),
		}
	}
}

func (r *Runtime) output() []string {
	return append(r.stdout.Tail(), r.proto.text.Tail()...)
}

// AwaitReady blocks until the first startup has completed and returns its
// error, if any. There is no timeout beyond ctx.
func (r *Runtime) AwaitReady(ctx context.Context) error {
	select {
	case <-r.readyCh:
		return r.startErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Call invokes module.fn(args...) in the interpreter and returns str() of the
// result. It starts the interpreter if needed and waits for readiness first.
//
// A None result yields ErrNoResult; an exception yields *ScriptError.
func (r *Runtime) Call(ctx context.Context, module, fn string, args ...any) (string, error) {
	r.Initialize(ctx)
	if err := r.AwaitReady(ctx); err != nil {
		return "", err
	}
	if r.isClosed() {
		return "", ErrClosed
	}

	start := time.Now()
	out, err := r.call(ctx, module, fn, args)
	if r.cfg.hooks.OnCall != nil {
		r.cfg.hooks.OnCall(module, fn, time.Since(start), err)
	}
	return out, err
}

func (r *Runtime) call(ctx context.Context, module, fn string, args []any) (string, error) {
	if args == nil {
		args = []any{}
	}
	id := uuid.NewString()
	select {
	case <-r.proto.done():
		return "", ErrInterpreterExited
	default:
	}

	ch := r.proto.expect(id)
	defer r.proto.forget(id)

	logger.DebugCtx(ctx, "calling interpreter", logger.KeyModule, module, logger.KeyFunc, fn, logger.KeyCallID, id)

	if err := r.proto.send(callMessage{Type: "call", ID: id, Module: module, Fn: fn, Args: args}); err != nil {
		select {
		case <-r.proto.done():
			return "", ErrInterpreterExited
		default:
		}
		return "", fmt.Errorf("send call %s.%s: %w", module, fn, err)
	}

	var res callResult
	select {
	case res = <-ch:
	case <-r.proto.done():
		select {
		case res = <-ch:
		default:
			if r.isClosed() {
				return "", ErrClosed
			}
			return "", ErrInterpreterExited
		}
	case <-ctx.Done():
		return "", ctx.Err()
	}

	switch {
	case res.Error != "":
		return "", &ScriptError{Module: module, Func: fn, Type: res.Type, Message: res.Error, Traceback: res.Traceback}
	case res.None || res.Value == nil:
		return "", ErrNoResult
	default:
		return *res.Value, nil
	}
}

func (r *Runtime) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Close stops the interpreter. Pending and future calls fail with ErrClosed.
func (r *Runtime) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	proc := r.proc
	r.mu.Unlock()

	if proc == nil {
		return nil
	}
	_ = r.proto.send(callMessage{Type: "exit"})
	return proc.Kill()
}
