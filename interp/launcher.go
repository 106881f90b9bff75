package interp

import (
	"context"
	"io"
)

// Output receives the interpreter's standard streams.
type Output struct {
	Stdout io.Writer
	Stderr io.Writer
}

// Process is a running interpreter.
type Process interface {
	// Stdin is where protocol commands are written.
	Stdin() io.WriteCloser
	// Wait blocks until the interpreter exits.
	Wait() error
	// Kill stops the interpreter. It is safe to call more than once.
	Kill() error
}

// Launcher starts interpreters.
type Launcher interface {
	// Name identifies the backend in logs and metrics.
	Name() string
	// Launch starts lang's bootstrap program and wires its output to out.
	Launch(ctx context.Context, lang Language, out Output) (Process, error)
}
