package hostfunc

// Capabilities selects which host functions a registry exposes.
type Capabilities struct {
	HTTP      *HTTPConfig
	Mounts    []Mount
	FSOptions []FSOption
	KV        *KVConfig
}

// NewDefaultRegistry returns a registry with log and time_now plus whatever
// caps enables. HTTP needs at least one allowed host; FS needs at least one mount.
func NewDefaultRegistry(caps Capabilities) *Registry {
	r := NewRegistry()
	r.Register("log", Log)
	r.Register("time_now", TimeNow)

	if caps.HTTP != nil && len(caps.HTTP.AllowedHosts) > 0 {
		NewHTTP(*caps.HTTP).Register(r)
	}
	if len(caps.Mounts) > 0 {
		NewFS(caps.Mounts, caps.FSOptions...).Register(r)
	}
	if caps.KV != nil {
		NewKV(*caps.KV).Register(r)
	}
	return r
}
