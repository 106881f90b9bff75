package logger

// Standard field keys. Use these consistently so log lines can be queried.
const (
	// Request
	KeyRequestID  = "request_id"
	KeyChannel    = "channel"
	KeyMethod     = "method"
	KeyCode       = "code"
	KeyDurationMs = "duration_ms"
	KeyComponent  = "component"

	// Interpreter
	KeyBackend = "backend"
	KeyModule  = "module"
	KeyFunc    = "fn"
	KeyCallID  = "call_id"
	KeyStream  = "stream"
	KeyLine    = "line"
	KeyState   = "state"
	KeyPID     = "pid"

	// Host functions
	KeyHostFunc = "host_fn"
	KeyPath     = "path"
	KeyHost     = "host"

	KeyError = "error"
	KeyAddr  = "addr"
)

// Err returns the standard error field pair, or nothing for a nil error.
func Err(err error) []any {
	if err == nil {
		return nil
	}
	return []any{KeyError, err.Error()}
}
