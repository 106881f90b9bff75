package dispatch

import (
	"encoding/json"
	"fmt"
)

// Error codes carried by failed responses.
const (
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeAnalysisError   = "ANALYSIS_ERROR"
	CodeDownloadError   = "DOWNLOAD_ERROR"
	CodePythonError     = "PYTHON_ERROR"
	CodeException       = "EXCEPTION"
	CodeNotImplemented  = "NOT_IMPLEMENTED"
)

// CodeOK labels successful responses in logs and metrics. It never appears
// in a Response.
const CodeOK = "OK"

// Request is a named method call.
type Request struct {
	Method string         `json:"method"`
	Args   map[string]any `json:"args,omitempty"`
}

// Response is either a success carrying Payload or a failure carrying Code
// and Message.
type Response struct {
	OK      bool           `json:"ok"`
	Payload string         `json:"payload,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Code    string         `json:"code,omitempty"`
	Message string         `json:"message,omitempty"`
	Details string         `json:"details,omitempty"`
}

// Success returns a successful response.
func Success(payload string) Response {
	return Response{OK: true, Payload: payload}
}

// Failure returns a failed response.
func Failure(code, format string, args ...any) Response {
	return Response{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Label is CodeOK for successes and Code otherwise.
func (r Response) Label() string {
	if r.OK {
		return CodeOK
	}
	return r.Code
}

// Err returns nil for successes and an *Error otherwise.
func (r Response) Err() error {
	if r.OK {
		return nil
	}
	return &Error{Code: r.Code, Message: r.Message, Details: r.Details}
}

func (r Response) String() string {
	data, _ := json.Marshal(r)
	return string(data)
}

// Error is a failed response as a Go error.
type Error struct {
	Code    string
	Message string
	Details string
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}
