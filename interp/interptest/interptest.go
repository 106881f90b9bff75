// Package interptest provides an in-process interpreter that speaks the creek
// protocol, for tests that need a Runtime without a real Python.
package interptest

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/caffeineduck/creek/interp"
)

// Host lets a fake function call back into the host registry.
type Host func(fn string, args map[string]any) (any, error)

// Func is a fake script function. Returning (nil, nil) reports None.
// A returned *Exception is reported as a Python exception of that type; any
// other error becomes a RuntimeError.
type Func func(args []any, host Host) (any, error)

// Exception mimics a Python exception.
type Exception struct {
	Type    string
	Message string
}

func (e *Exception) Error() string { return e.Type + ": " + e.Message }

// Language is a minimal interp.Language for the fake.
type Language struct{}

func (Language) Name() string { return "fake" }
func (Language) Bootstrap() string { return "" }
func (Language) Args(bootstrap string) []string { return []string{"fake"} }
func (Language) SearchPathEnv() string { return "" }

// Launcher runs fake interpreters.
type Launcher struct {
	// Funcs maps "module.fn" to its implementation.
	Funcs map[string]Func
	// Gate, when set, delays the ready signal until it is closed.
	Gate chan struct{}
	// LaunchErr makes Launch fail.
	LaunchErr error
	// ExitBeforeReady makes the interpreter print Output and exit with this
	// error instead of becoming ready.
	ExitBeforeReady error
	// Output is written to stderr before the ready signal.
	Output string
	// Exit, once closed, makes a ready interpreter exit.
	Exit chan struct{}

	launches atomic.Int32
	calls    atomic.Int32
}

// NewLauncher returns a Launcher serving funcs.
func NewLauncher(funcs map[string]Func) *Launcher {
	if funcs == nil {
		funcs = map[string]Func{}
	}
	return &Launcher{Funcs: funcs}
}

func (l *Launcher) Name() string { return "fake" }

// Launches reports how many interpreters were started.
func (l *Launcher) Launches() int { return int(l.launches.Load()) }

// Calls reports how many call commands the interpreters received.
func (l *Launcher) Calls() int { return int(l.calls.Load()) }

func (l *Launcher) Launch(ctx context.Context, lang interp.Language, out interp.Output) (interp.Process, error) {
	if l.LaunchErr != nil {
		return nil, l.LaunchErr
	}
	l.launches.Add(1)

	stdinReader, stdinWriter := io.Pipe()
	p := &process{
		launcher: l,
		stdin:    stdinWriter,
		reader:   stdinReader,
		stderr:   out.Stderr,
		waiting:  make(map[string]chan hostResult),
		stopped:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	go p.run()
	return p, nil
}

type hostResult struct {
	Data  any    `json:"data"`
	Error string `json:"error"`
}

type process struct {
	launcher *Launcher
	stdin    *io.PipeWriter
	reader   *io.PipeReader
	stderr   io.Writer

	writeMu sync.Mutex
	nextID  atomic.Int64

	waitMu  sync.Mutex
	waiting map[string]chan hostResult

	stopped chan struct{}
	done    chan struct{}
	exitErr error
	kill    sync.Once
}

func (p *process) Stdin() io.WriteCloser { return p.stdin }

func (p *process) Wait() error {
	<-p.done
	return p.exitErr
}

func (p *process) Kill() error {
	p.kill.Do(func() {
		p.stdin.Close()
		p.reader.Close()
	})
	return nil
}

func (p *process) frame(name string, payload any) {
	text := "\x00" + name
	if payload != nil {
		data, _ := json.Marshal(payload)
		text += ":" + string(data)
	}
	text += "\x00"

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	p.stderr.Write([]byte(text))
}

func (p *process) run() {
	var calls sync.WaitGroup
	defer func() {
		p.reader.Close()
		close(p.stopped)
		calls.Wait()
		close(p.done)
	}()

	if p.launcher.Output != "" {
		p.writeMu.Lock()
		p.stderr.Write([]byte(p.launcher.Output))
		p.writeMu.Unlock()
	}
	if p.launcher.ExitBeforeReady != nil {
		p.exitErr = p.launcher.ExitBeforeReady
		return
	}
	if p.launcher.Gate != nil {
		<-p.launcher.Gate
	}
	p.frame("CREEK_READY", nil)
	if p.launcher.Exit != nil {
		go func() {
			select {
			case <-p.launcher.Exit:
				p.reader.Close()
			case <-p.stopped:
			}
		}()
	}

	scanner := bufio.NewScanner(p.reader)
	scanner.Buffer(make([]byte, 64*1024), 16<<20)
	for scanner.Scan() {
		var msg struct {
			Type   string `json:"type"`
			ID     string `json:"id"`
			Module string `json:"module"`
			Fn     string `json:"fn"`
			Args   []any  `json:"args"`
			hostResult
		}
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "exit":
			return
		case "call":
			p.launcher.calls.Add(1)
			calls.Add(1)
			go func() {
				defer calls.Done()
				p.serveCall(msg.ID, msg.Module, msg.Fn, msg.Args)
			}()
		case "host_result":
			p.waitMu.Lock()
			ch, ok := p.waiting[msg.ID]
			delete(p.waiting, msg.ID)
			p.waitMu.Unlock()
			if ok {
				ch <- msg.hostResult
			}
		}
	}
}

func (p *process) serveCall(id, module, fn string, args []any) {
	resp := map[string]any{"id": id}

	impl, ok := p.launcher.Funcs[module+"."+fn]
	if !ok {
		resp["error"] = fmt.Sprintf("No module named '%s'", module)
		resp["type"] = "ModuleNotFoundError"
		p.frame("CREEK_RESULT", resp)
		return
	}

	value, err := impl(args, p.hostCall)
	var exc *Exception
	switch {
	case errors.As(err, &exc):
		resp["error"] = exc.Message
		resp["type"] = exc.Type
		resp["traceback"] = "Traceback (most recent call last):\n" + exc.Error()
	case err != nil:
		resp["error"] = err.Error()
		resp["type"] = "RuntimeError"
	case value == nil:
		resp["none"] = true
	default:
		resp["value"] = fmt.Sprint(value)
	}
	p.frame("CREEK_RESULT", resp)
}

func (p *process) hostCall(fn string, args map[string]any) (any, error) {
	id := fmt.Sprintf("h%d", p.nextID.Add(1))
	ch := make(chan hostResult, 1)

	p.waitMu.Lock()
	p.waiting[id] = ch
	p.waitMu.Unlock()

	p.frame("CREEK_CALL", map[string]any{"id": id, "fn": fn, "args": args})

	select {
	case res := <-ch:
		if res.Error != "" {
			return nil, errors.New(res.Error)
		}
		return res.Data, nil
	case <-p.stopped:
		return nil, errors.New("interpreter stopped")
	}
}

// NewRuntime returns a Runtime backed by a fake launcher serving funcs.
func NewRuntime(funcs map[string]Func, opts ...interp.Option) (*interp.Runtime, *Launcher) {
	l := NewLauncher(funcs)
	return interp.New(Language{}, l, opts...), l
}
