// Package hostfunc provides the host functions that bundled Python scripts can
// call back into while they run.
//
// # Overview
//
// The interpreter starts with no host capabilities beyond logging and the
// clock. Everything else is enabled explicitly through a [Registry]:
//
//	registry := hostfunc.NewDefaultRegistry(hostfunc.Capabilities{
//	    HTTP:   &hostfunc.HTTPConfig{AllowedHosts: []string{"instagram.com", "cdninstagram.com"}},
//	    Mounts: []hostfunc.Mount{{VirtualPath: "/data", HostPath: "./data", Mode: hostfunc.MountReadWriteCreate}},
//	    KV:     &cfg,
//	})
//
// Custom functions can be added alongside the built-ins:
//
//	registry.Register("device_info", func(ctx context.Context, args map[string]any) (any, error) {
//	    return map[string]any{"model": "pixel"}, nil
//	})
//
// # Built-in functions
//
//   - log, time_now: always present
//   - http_request, http_get: outbound HTTP limited to [HTTPConfig.AllowedHosts]
//   - fs_read, fs_write, fs_list, fs_exists, fs_mkdir, fs_stat: mount-scoped file access
//   - kv_get, kv_set, kv_delete, kv_keys: a bounded in-memory store shared across calls
//
// Binary payloads (images) travel as base64 when the caller passes
// encoding="base64".
package hostfunc
