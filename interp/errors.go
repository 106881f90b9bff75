package interp

import (
	"errors"
	"fmt"
)

var (
	// ErrNoResult is returned when the called function returned None.
	ErrNoResult = errors.New("function returned no result")

	// ErrInterpreterExited is returned for calls pending or issued after the
	// interpreter process went away.
	ErrInterpreterExited = errors.New("interpreter exited")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("runtime closed")
)

// ScriptError is an exception raised inside the interpreter.
type ScriptError struct {
	Module    string
	Func      string
	Type      string
	Message   string
	Traceback string
}

func (e *ScriptError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("%s.%s: %s", e.Module, e.Func, e.Message)
	}
	return fmt.Sprintf("%s.%s: %s: %s", e.Module, e.Func, e.Type, e.Message)
}

// StartError reports an interpreter that could not reach the ready state.
type StartError struct {
	Backend string
	Err     error
	// Output holds the last lines the interpreter printed before failing.
	Output []string
}

func (e *StartError) Error() string {
	msg := fmt.Sprintf("start %s interpreter: %v", e.Backend, e.Err)
	if len(e.Output) > 0 {
		msg += ": " + e.Output[len(e.Output)-1]
	}
	return msg
}

func (e *StartError) Unwrap() error {
	return e.Err
}
