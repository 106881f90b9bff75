package interp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"github.com/caffeineduck/creek/hostfunc"
	"github.com/caffeineduck/creek/internal/logger"
)

// Frame names written by the bridge on stderr as \x00NAME[:json]\x00.
const (
	frameDelim  = '\x00'
	frameReady  = "CREEK_READY"
	frameResult = "CREEK_RESULT"
	frameCall   = "CREEK_CALL"
)

type callMessage struct {
	Type   string `json:"type"`
	ID     string `json:"id,omitempty"`
	Module string `json:"module,omitempty"`
	Fn     string `json:"fn,omitempty"`
	Args   []any  `json:"args,omitempty"`
}

type hostResultMessage struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

type callResult struct {
	ID        string  `json:"id"`
	Value     *string `json:"value,omitempty"`
	None      bool    `json:"none,omitempty"`
	Error     string  `json:"error,omitempty"`
	Type      string  `json:"type,omitempty"`
	Traceback string  `json:"traceback,omitempty"`
}

type hostCall struct {
	ID   string         `json:"id"`
	Fn   string         `json:"fn"`
	Args map[string]any `json:"args"`
}

// protocol is the interpreter's stderr. It splits frames out of the byte
// stream, routes call results to waiting callers, runs host function calls,
// and passes all other text to the line log.
type protocol struct {
	ctx      context.Context
	registry *hostfunc.Registry
	text     *lineLog

	mu  sync.Mutex
	buf bytes.Buffer

	stdinMu sync.Mutex
	stdin   io.Writer

	pendingMu sync.Mutex
	pending   map[string]chan callResult

	readyOnce sync.Once
	readyCh   chan struct{}

	exitOnce sync.Once
	exitCh   chan struct{}
	exitErr  error
}

func newProtocol(ctx context.Context, registry *hostfunc.Registry) *protocol {
	if registry == nil {
		registry = hostfunc.NewRegistry()
	}
	return &protocol{
		ctx:      ctx,
		registry: registry,
		text:     newLineLog("stderr"),
		pending:  make(map[string]chan callResult),
		readyCh:  make(chan struct{}),
		exitCh:   make(chan struct{}),
	}
}

// attach sets the writer commands are sent to.
func (p *protocol) attach(stdin io.Writer) {
	p.stdinMu.Lock()
	p.stdin = stdin
	p.stdinMu.Unlock()
}

func (p *protocol) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buf.Write(data)
	for {
		content := p.buf.Bytes()
		start := bytes.IndexByte(content, frameDelim)
		if start == -1 {
			p.text.Write(content)
			p.buf.Reset()
			break
		}
		if start > 0 {
			p.text.Write(content[:start])
		}

		end := bytes.IndexByte(content[start+1:], frameDelim)
		if end == -1 {
			rest := append([]byte(nil), content[start:]...)
			p.buf.Reset()
			p.buf.Write(rest)
			break
		}

		frame := string(content[start+1 : start+1+end])
		rest := append([]byte(nil), content[start+end+2:]...)
		p.buf.Reset()
		p.buf.Write(rest)

		p.handleFrame(frame)
	}
	return len(data), nil
}

func (p *protocol) handleFrame(frame string) {
	name, payload, _ := strings.Cut(frame, ":")

	switch name {
	case frameReady:
		p.readyOnce.Do(func() { close(p.readyCh) })

	case frameResult:
		var res callResult
		if err := json.Unmarshal([]byte(payload), &res); err != nil {
			logger.Warn("malformed result frame", logger.Err(err)...)
			return
		}
		p.deliver(res)

	case frameCall:
		var call hostCall
		if err := json.Unmarshal([]byte(payload), &call); err != nil {
			logger.Warn("malformed host call frame", logger.Err(err)...)
			return
		}
		// Never block Write: the interpreter may be waiting on its own stderr.
		go p.runHostCall(call)

	default:
		p.text.Write([]byte(frame + "\n"))
	}
}

func (p *protocol) runHostCall(call hostCall) {
	data, err := p.registry.Call(p.ctx, call.Fn, call.Args)

	resp := hostResultMessage{Type: "host_result", ID: call.ID, Data: data}
	if err != nil {
		resp.Error = err.Error()
		logger.Debug("host function failed", logger.KeyHostFunc, call.Fn, logger.KeyError, err.Error())
	}
	if err := p.send(resp); err != nil {
		logger.Warn("send host result", logger.KeyHostFunc, call.Fn, logger.KeyError, err.Error())
	}
}

// send writes one JSON line to the interpreter.
func (p *protocol) send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		data, _ = json.Marshal(hostResultMessage{Type: "host_result", Error: "internal: failed to marshal message"})
	}
	data = append(data, '\n')

	p.stdinMu.Lock()
	defer p.stdinMu.Unlock()
	if p.stdin == nil {
		return ErrInterpreterExited
	}
	_, err = p.stdin.Write(data)
	return err
}

// expect registers a waiter for call id.
func (p *protocol) expect(id string) <-chan callResult {
	ch := make(chan callResult, 1)
	p.pendingMu.Lock()
	p.pending[id] = ch
	p.pendingMu.Unlock()
	return ch
}

func (p *protocol) forget(id string) {
	p.pendingMu.Lock()
	delete(p.pending, id)
	p.pendingMu.Unlock()
}

func (p *protocol) deliver(res callResult) {
	p.pendingMu.Lock()
	ch, ok := p.pending[res.ID]
	delete(p.pending, res.ID)
	p.pendingMu.Unlock()

	if !ok {
		logger.Debug("result for unknown call", logger.KeyCallID, res.ID)
		return
	}
	ch <- res
}

// exited records that the interpreter is gone. Waiters observe exitCh.
func (p *protocol) exited(err error) {
	p.exitOnce.Do(func() {
		p.exitErr = err
		p.text.Flush()
		close(p.exitCh)
	})
}

func (p *protocol) ready() <-chan struct{} {
	return p.readyCh
}

func (p *protocol) done() <-chan struct{} {
	return p.exitCh
}
