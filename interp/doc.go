// Package interp manages the one embedded Python interpreter a creek process
// talks to.
//
// # Lifecycle
//
// A [Runtime] moves through uninitialized → initializing → ready (or failed)
// and never goes back. A ready runtime whose interpreter exits becomes failed. [Runtime.Initialize] may be called from any number of
// goroutines; exactly one of them launches the interpreter. Everyone else,
// including every [Runtime.Call], waits in [Runtime.AwaitReady]:
//
//	rt := interp.New(python.New(), &interp.ProcessLauncher{ScriptDirs: []string{"./scripts"}},
//	    interp.WithRegistry(registry))
//	defer rt.Close()
//
//	go rt.Initialize(ctx) // warm up in the background
//
//	out, err := rt.Call(ctx, "analyze_layout", "analyze_single_image", "/data/img.jpg")
//
// # Protocol
//
// The host writes JSON lines to the interpreter's stdin and reads
// NUL-delimited frames from its stderr:
//
//	host → interp   {"type":"call","id":"…","module":"…","fn":"…","args":[…]}
//	host → interp   {"type":"host_result","id":"…","data":…,"error":"…"}
//	interp → host   \x00CREEK_READY\x00
//	interp → host   \x00CREEK_RESULT:{"id":"…","value":"…"}\x00
//	interp → host   \x00CREEK_CALL:{"id":"…","fn":"…","args":{…}}\x00
//
// CREEK_CALL frames invoke functions from the runtime's [hostfunc.Registry].
// All other output is logged line by line.
//
// # Launchers
//
// [ProcessLauncher] runs a system Python as a child process. [WasmLauncher]
// runs a WASI build of Python inside wazero with explicit directory mounts.
package interp
