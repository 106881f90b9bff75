package interp

// Language describes how to start an interpreter that speaks the creek
// protocol.
type Language interface {
	// Name returns a unique identifier, e.g. "python".
	Name() string

	// Bootstrap returns the program that runs the protocol loop.
	Bootstrap() string

	// Args returns the full command line (argv[0] included) that runs bootstrap.
	Args(bootstrap string) []string

	// SearchPathEnv names the environment variable holding the module
	// search path, e.g. "PYTHONPATH".
	SearchPathEnv() string
}
