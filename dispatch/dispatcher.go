package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/caffeineduck/creek/internal/logger"
	"github.com/caffeineduck/creek/interp"
)

// Caller invokes interpreter functions. *interp.Runtime implements it.
type Caller interface {
	Call(ctx context.Context, module, fn string, args ...any) (string, error)
}

// Metrics records handled requests. Implementations must be safe for
// concurrent use.
type Metrics interface {
	RecordRequest(method, code string, d time.Duration)
}

// Dispatcher routes requests to the interpreter.
type Dispatcher struct {
	caller  Caller
	intent  *Intent
	metrics Metrics
	methods map[string]*Method
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithIntent sets the launch intent read by getShareSource.
func WithIntent(i *Intent) Option {
	return func(d *Dispatcher) {
		if i != nil {
			d.intent = i
		}
	}
}

// WithMetrics records every handled request.
func WithMetrics(m Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithMethods replaces the method table.
func WithMethods(methods []Method) Option {
	return func(d *Dispatcher) {
		d.methods = indexMethods(methods)
	}
}

// New returns a Dispatcher serving DefaultMethods through caller.
func New(caller Caller, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		caller:  caller,
		intent:  NewIntent(""),
		methods: indexMethods(DefaultMethods()),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func indexMethods(methods []Method) map[string]*Method {
	index := make(map[string]*Method, len(methods))
	for i := range methods {
		index[methods[i].Name] = &methods[i]
	}
	return index
}

// Intent returns the launch intent.
func (d *Dispatcher) Intent() *Intent {
	return d.intent
}

// Methods returns the method table sorted by name.
func (d *Dispatcher) Methods() []Method {
	out := make([]Method, 0, len(d.methods))
	for _, m := range d.methods {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Handle runs req to completion and returns its response. The call is
// detached from ctx's cancellation: once started it runs until the
// interpreter answers.
func (d *Dispatcher) Handle(ctx context.Context, req Request) (resp Response) {
	ctx = context.WithoutCancel(ctx)
	if lc := logger.FromContext(ctx); lc != nil {
		ctx = logger.WithContext(ctx, lc.WithMethod(req.Method))
	}
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			resp = Response{
				Code:    CodeException,
				Message: fmt.Sprint(p),
				Details: string(debug.Stack()),
			}
		}
		d.observe(ctx, req.Method, resp, time.Since(start))
	}()

	m, ok := d.methods[req.Method]
	if !ok {
		return Failure(CodeNotImplemented, "method %q is not implemented", req.Method)
	}
	if m.Local != nil {
		return m.Local(d)
	}

	args, err := m.bind(req.Args)
	if err != nil {
		return Failure(CodeInvalidArgument, "%s: %v", req.Method, err)
	}

	out, err := d.caller.Call(ctx, m.Module, m.Func, args...)
	if err != nil {
		return d.failure(m, err)
	}
	if out == "" {
		return Failure(m.EmptyCode, "%s returned no result", req.Method)
	}

	resp = Success(out)
	if m.Data != nil {
		resp.Data = m.Data(out)
	}
	return resp
}

func (d *Dispatcher) failure(m *Method, err error) Response {
	var scriptErr *interp.ScriptError
	var startErr *interp.StartError

	switch {
	case errors.Is(err, interp.ErrNoResult):
		return Failure(m.EmptyCode, "%s returned no result", m.Name)
	case errors.As(err, &scriptErr):
		msg := scriptErr.Message
		if scriptErr.Type != "" {
			msg = scriptErr.Type + ": " + msg
		}
		return Response{Code: CodePythonError, Message: msg, Details: scriptErr.Traceback}
	case errors.As(err, &startErr):
		return Response{Code: CodeException, Message: err.Error(), Details: strings.Join(startErr.Output, "\n")}
	default:
		return Response{Code: CodeException, Message: err.Error()}
	}
}

func (d *Dispatcher) observe(ctx context.Context, method string, resp Response, elapsed time.Duration) {
	code := resp.Label()
	if d.metrics != nil {
		d.metrics.RecordRequest(method, code, elapsed)
	}

	args := []any{logger.KeyCode, code, logger.KeyDurationMs, float64(elapsed.Microseconds()) / 1000}
	if logger.FromContext(ctx) == nil {
		args = append([]any{logger.KeyMethod, method}, args...)
	}
	switch {
	case resp.OK:
		logger.InfoCtx(ctx, "request handled", args...)
	case resp.Code == CodeException:
		logger.ErrorCtx(ctx, "request failed", append(args, logger.KeyError, resp.Message)...)
	default:
		logger.WarnCtx(ctx, "request failed", append(args, logger.KeyError, resp.Message)...)
	}
}

// Dispatch handles req on a new goroutine and posts reply onto loop with the
// response. reply always runs on the loop goroutine.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request, loop *Loop, reply func(Response)) {
	go func() {
		resp := d.Handle(ctx, req)
		if !loop.Post(func() { reply(resp) }) {
			logger.WarnCtx(ctx, "reply dropped: loop stopped", logger.KeyMethod, req.Method)
		}
	}()
}
