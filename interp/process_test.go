package interp_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caffeineduck/creek/hostfunc"
	"github.com/caffeineduck/creek/interp"
	"github.com/caffeineduck/creek/language/python"
)

const testScript = `
import sys

import creek_host

def analyze_single_image(path):
    return {"path": path, "ratio": 1.5}

def nothing(*args):
    return None

def boom(msg):
    raise ValueError(msg)

def ask_host(key):
    return creek_host.call("kv_get", key=key)

def quit_early(msg=None):
    if msg is None:
        sys.exit()
    sys.exit(msg)

def interrupted():
    raise KeyboardInterrupt
`

// noThreads shadows the threading module the way WASI builds behave: the
// import works but no thread can be started.
const noThreads = `
import _thread

Lock = _thread.allocate_lock

class Event:
    def wait(self, timeout=None):
        raise RuntimeError("can't wait without threads")

class Thread:
    def __init__(self, *args, **kwargs):
        pass

    def start(self):
        raise RuntimeError("can't start new thread")

def _shutdown():
    pass
`

func requirePython(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath(python.DefaultExecutable); err != nil {
		t.Skip("python3 not available")
	}
}

func newProcessRuntime(t *testing.T, registry *hostfunc.Registry, dirs ...string) *interp.Runtime {
	t.Helper()
	requirePython(t)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "creek_testmod.py"), []byte(testScript), 0o644))

	rt := interp.New(python.New(), &interp.ProcessLauncher{ScriptDirs: append(dirs, dir)},
		interp.WithRegistry(registry),
		interp.WithStartTimeout(30*time.Second),
	)
	t.Cleanup(func() { rt.Close() })
	return rt
}

func TestProcessLauncherRoundTrip(t *testing.T) {
	registry := hostfunc.NewRegistry()
	kv := hostfunc.NewKV(hostfunc.DefaultKVConfig())
	kv.Register(registry)
	_, err := kv.Set(context.Background(), map[string]any{"key": "palette", "value": "warm"})
	require.NoError(t, err)

	rt := newProcessRuntime(t, registry)
	ctx := context.Background()

	out, err := rt.Call(ctx, "creek_testmod", "analyze_single_image", "/data/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "{'path': '/data/a.jpg', 'ratio': 1.5}", out)
	assert.Equal(t, interp.StateReady, rt.State())

	_, err = rt.Call(ctx, "creek_testmod", "nothing")
	assert.ErrorIs(t, err, interp.ErrNoResult)

	_, err = rt.Call(ctx, "creek_testmod", "boom", "bad palette")
	var scriptErr *interp.ScriptError
	require.ErrorAs(t, err, &scriptErr)
	assert.Equal(t, "ValueError", scriptErr.Type)
	assert.Equal(t, "bad palette", scriptErr.Message)
	assert.Contains(t, scriptErr.Traceback, "raise ValueError")

	out, err = rt.Call(ctx, "creek_testmod", "ask_host", "palette")
	require.NoError(t, err)
	assert.Equal(t, "warm", out)

	_, err = rt.Call(ctx, "creek_missing", "fn")
	require.ErrorAs(t, err, &scriptErr)
	assert.Equal(t, "ModuleNotFoundError", scriptErr.Type)
}

func TestProcessLauncherMissingExecutable(t *testing.T) {
	rt := interp.New(python.New(python.WithExecutable("/nonexistent/python3")), &interp.ProcessLauncher{})
	_, err := rt.Call(context.Background(), "m", "f")

	var startErr *interp.StartError
	require.ErrorAs(t, err, &startErr)
	assert.Equal(t, "process", startErr.Backend)
	assert.Equal(t, interp.StateFailed, rt.State())
}

func TestProcessExitAfterReady(t *testing.T) {
	rt := newProcessRuntime(t, nil)
	ctx := context.Background()

	_, err := rt.Call(ctx, "os", "_exit", 3)
	assert.ErrorIs(t, err, interp.ErrInterpreterExited)

	_, err = rt.Call(ctx, "creek_testmod", "nothing")
	assert.ErrorIs(t, err, interp.ErrInterpreterExited)
	require.Eventually(t, func() bool { return rt.State() == interp.StateFailed }, 5*time.Second, 10*time.Millisecond)
}

func TestProcessBaseExceptionsBecomeErrors(t *testing.T) {
	rt := newProcessRuntime(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tests := []struct {
		name    string
		fn      string
		args    []any
		typ     string
		message string
	}{
		{"sys.exit with message", "quit_early", []any{"no model file"}, "SystemExit", "no model file"},
		{"bare sys.exit", "quit_early", nil, "SystemExit", "SystemExit"},
		{"KeyboardInterrupt", "interrupted", nil, "KeyboardInterrupt", "KeyboardInterrupt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := rt.Call(ctx, "creek_testmod", tt.fn, tt.args...)

			var scriptErr *interp.ScriptError
			require.ErrorAs(t, err, &scriptErr)
			assert.Equal(t, tt.typ, scriptErr.Type)
			assert.Equal(t, tt.message, scriptErr.Message)
		})
	}

	out, err := rt.Call(ctx, "creek_testmod", "analyze_single_image", "/data/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "{'path': '/data/a.jpg', 'ratio': 1.5}", out)
	assert.Equal(t, interp.StateReady, rt.State())
}

func TestProcessWithoutThreads(t *testing.T) {
	shim := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(shim, "threading.py"), []byte(noThreads), 0o644))

	registry := hostfunc.NewRegistry()
	kv := hostfunc.NewKV(hostfunc.DefaultKVConfig())
	kv.Register(registry)
	_, err := kv.Set(context.Background(), map[string]any{"key": "palette", "value": "warm"})
	require.NoError(t, err)

	rt := newProcessRuntime(t, registry, shim)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	out, err := rt.Call(ctx, "creek_testmod", "analyze_single_image", "/data/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "{'path': '/data/a.jpg', 'ratio': 1.5}", out)

	out, err = rt.Call(ctx, "creek_testmod", "ask_host", "palette")
	require.NoError(t, err)
	assert.Equal(t, "warm", out)

	var scriptErr *interp.ScriptError
	_, err = rt.Call(ctx, "creek_testmod", "quit_early", "no model file")
	require.ErrorAs(t, err, &scriptErr)
	assert.Equal(t, "SystemExit", scriptErr.Type)

	_, err = rt.Call(ctx, "creek_testmod", "nothing")
	assert.ErrorIs(t, err, interp.ErrNoResult)
	assert.Equal(t, interp.StateReady, rt.State())
}

func TestWasmLauncherRequiresModule(t *testing.T) {
	rt := interp.New(python.New(), &interp.WasmLauncher{})
	_, err := rt.Call(context.Background(), "m", "f")
	assert.ErrorContains(t, err, "wasm module path not configured")

	rt = interp.New(python.New(), &interp.WasmLauncher{ModulePath: filepath.Join(t.TempDir(), "python.wasm")})
	_, err = rt.Call(context.Background(), "m", "f")
	assert.ErrorContains(t, err, "read wasm module")
}
