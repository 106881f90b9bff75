// Package channel serves the method channel as JSON lines over a byte
// stream, typically stdin/stdout of a host process.
//
// Each input line is a request:
//
//	{"id": "1", "method": "analyzeLayout", "args": {"imagePath": "/a.jpg"}}
//
// and produces exactly one output line carrying the same id:
//
//	{"id": "1", "ok": true, "payload": "..."}
//
// A line with an "intent" field replaces the launch component instead:
//
//	{"id": "2", "intent": "com.creek.ui.ShareToFiles"}
//
// Requests run concurrently; replies are written in completion order.
package channel

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/caffeineduck/creek/dispatch"
	"github.com/caffeineduck/creek/internal/logger"
)

// DefaultName is the channel name used in logs.
const DefaultName = "com.creek.ui/methods"

const maxLineSize = 16 << 20

// Message is one input line.
type Message struct {
	ID     string         `json:"id,omitempty"`
	Method string         `json:"method,omitempty"`
	Args   map[string]any `json:"args,omitempty"`
	Intent *string        `json:"intent,omitempty"`
}

// Reply is one output line.
type Reply struct {
	ID string `json:"id"`
	dispatch.Response
}

// Server answers method channel requests read from a stream.
type Server struct {
	dispatcher *dispatch.Dispatcher
	name       string
}

// Option configures a Server.
type Option func(*Server)

// WithName sets the channel name reported in logs.
func WithName(name string) Option {
	return func(s *Server) {
		if name != "" {
			s.name = name
		}
	}
}

// NewServer returns a Server dispatching through d.
func NewServer(d *dispatch.Dispatcher, opts ...Option) *Server {
	s := &Server{dispatcher: d, name: DefaultName}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve reads requests from r until EOF or ctx is done and writes replies to
// w. It returns after every accepted request has been answered.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	loop := dispatch.NewLoop()
	enc := json.NewEncoder(w)

	var pending sync.WaitGroup
	readErr := make(chan error, 1)

	write := func(reply Reply) {
		if err := enc.Encode(reply); err != nil {
			logger.Warn("write reply", logger.KeyChannel, s.name, logger.KeyError, err.Error())
		}
	}

	go func() {
		err := s.read(ctx, r, loop, &pending, write)
		pending.Wait()
		loop.Stop()
		readErr <- err
	}()

	loop.Run(context.WithoutCancel(ctx))
	return <-readErr
}

func (s *Server) read(ctx context.Context, r io.Reader, loop *dispatch.Loop, pending *sync.WaitGroup, write func(Reply)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			resp := dispatch.Failure(dispatch.CodeInvalidArgument, "malformed request: %v", err)
			loop.Post(func() { write(Reply{Response: resp}) })
			continue
		}
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}

		reqCtx := logger.WithContext(ctx, logger.NewLogContext(msg.ID, s.name))

		if msg.Intent != nil {
			s.dispatcher.Intent().SetComponent(*msg.Intent)
			logger.InfoCtx(reqCtx, "launch intent updated", logger.KeyComponent, *msg.Intent)
			id, component := msg.ID, *msg.Intent
			loop.Post(func() { write(Reply{ID: id, Response: dispatch.Success(component)}) })
			continue
		}
		if msg.Method == "" {
			id := msg.ID
			loop.Post(func() {
				write(Reply{ID: id, Response: dispatch.Failure(dispatch.CodeInvalidArgument, "method is required")})
			})
			continue
		}

		pending.Add(1)
		id := msg.ID
		s.dispatcher.Dispatch(reqCtx, dispatch.Request{Method: msg.Method, Args: msg.Args}, loop,
			func(resp dispatch.Response) {
				defer pending.Done()
				write(Reply{ID: id, Response: resp})
			})
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", s.name, err)
	}
	return nil
}
