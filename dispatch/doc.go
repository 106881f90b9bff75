// Package dispatch routes named method calls to interpreter functions and
// converts their outcome into a uniform response envelope.
//
// A Dispatcher owns a method table. Each entry binds a method name to a
// module.function in the interpreter, the arguments it takes, and the error
// code reported when the function returns nothing:
//
//	d := dispatch.New(rt, dispatch.WithIntent(intent))
//	resp := d.Handle(ctx, dispatch.Request{
//		Method: "analyzeLayout",
//		Args:   map[string]any{"imagePath": "/data/photo.jpg"},
//	})
//
// Handle blocks. Dispatch runs the request on its own goroutine and delivers
// the response through a Loop, a single goroutine that runs callbacks in the
// order they were posted, so replies never race each other:
//
//	loop := dispatch.NewLoop()
//	go loop.Run(ctx)
//	d.Dispatch(ctx, req, loop, func(r dispatch.Response) { write(r) })
//
// Requests are never cancelled once dispatched and no timeouts apply; a
// request runs until the interpreter answers or exits.
package dispatch
