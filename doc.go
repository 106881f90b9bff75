// Package creek hosts the bundled Python analysis scripts behind a method
// channel.
//
// # Overview
//
// One Python interpreter runs per process. It is started once, shared by
// every caller, and reached over a small stdio protocol. Method calls arrive
// by name with an argument mapping and are answered with a uniform envelope:
// a payload on success, or a code, message and details on failure.
//
// # Basic Usage
//
//	rt := interp.New(python.New(), &interp.ProcessLauncher{ScriptDirs: []string{"./scripts"}})
//	defer rt.Close()
//	go rt.Initialize(ctx)
//
//	d := dispatch.New(rt)
//	resp := d.Handle(ctx, dispatch.Request{
//	    Method: "analyzeColorStyle",
//	    Args:   map[string]any{"imagePath": "/data/board.jpg"},
//	})
//	fmt.Println(resp.Payload)
//
// # Host Functions
//
// Scripts may call back into the host through the creek_host module:
//
//	registry := hostfunc.NewDefaultRegistry(hostfunc.Capabilities{
//	    HTTP: &hostfunc.HTTPConfig{AllowedHosts: []string{"www.instagram.com"}},
//	    KV:   &hostfunc.KVConfig{MaxEntries: 1024},
//	})
//	rt := interp.New(python.New(), launcher, interp.WithRegistry(registry))
//
// See the [interp], [dispatch], [channel], [hostfunc] and [language/python]
// packages for details, and cmd/creek for the CLI.
package creek
