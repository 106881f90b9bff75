package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/caffeineduck/creek/dispatch"
	"github.com/caffeineduck/creek/hostfunc"
	"github.com/caffeineduck/creek/internal/bytesize"
	"github.com/caffeineduck/creek/internal/config"
	"github.com/caffeineduck/creek/internal/logger"
	"github.com/caffeineduck/creek/internal/metrics"
	"github.com/caffeineduck/creek/interp"
	"github.com/caffeineduck/creek/language/python"
)

const (
	wasmPageSize = 64 << 10
	// maxWasmPages is the 4 GiB a 32-bit guest can address.
	maxWasmPages = 1 << 16
)

// app is one host process: a runtime, the dispatcher in front of it and the
// optional metrics registry.
type app struct {
	cfg        *config.Config
	runtime    *interp.Runtime
	dispatcher *dispatch.Dispatcher
	registry   *prometheus.Registry
}

func newApp(cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		a.registry = metrics.NewRegistry()
		m = metrics.New(a.registry)
	}

	hosts, err := newHostRegistry(cfg.Host)
	if err != nil {
		return nil, err
	}
	if m != nil {
		hosts.SetObserver(m.RecordHostCall)
	}

	launcher, err := newLauncher(cfg.Runtime)
	if err != nil {
		return nil, err
	}

	a.runtime = interp.New(
		python.New(python.WithExecutable(cfg.Runtime.Python)),
		launcher,
		interp.WithRegistry(hosts),
		interp.WithStartTimeout(cfg.Runtime.StartTimeout),
		interp.WithHooks(m.RuntimeHooks()),
	)

	opts := []dispatch.Option{dispatch.WithIntent(dispatch.NewIntent(cfg.Server.Component))}
	if m != nil {
		opts = append(opts, dispatch.WithMetrics(m))
	}
	a.dispatcher = dispatch.New(a.runtime, opts...)
	return a, nil
}

// start launches the interpreter in the background unless startup is lazy.
func (a *app) start(ctx context.Context) {
	if a.cfg.Runtime.Lazy {
		return
	}
	go a.runtime.Initialize(ctx)
}

func (a *app) close() {
	if err := a.runtime.Close(); err != nil {
		logger.Warn("close interpreter", logger.Err(err)...)
	}
}

func newHostRegistry(hc config.HostConfig) (*hostfunc.Registry, error) {
	caps := hostfunc.Capabilities{
		FSOptions: []hostfunc.FSOption{hostfunc.WithMaxFileSize(hc.FSMaxFileSize.Int64())},
	}
	if len(hc.AllowedHosts) > 0 {
		caps.HTTP = &hostfunc.HTTPConfig{
			AllowedHosts:   hc.AllowedHosts,
			MaxBodySize:    hc.HTTPMaxBody.Int64(),
			RequestTimeout: hc.HTTPTimeout,
		}
	}
	for _, mc := range hc.Mounts {
		mode, err := hostfunc.ParseMountMode(mc.Mode)
		if err != nil {
			return nil, err
		}
		caps.Mounts = append(caps.Mounts, hostfunc.Mount{VirtualPath: mc.Virtual, HostPath: mc.Host, Mode: mode})
	}
	if hc.KV.Enabled {
		caps.KV = &hostfunc.KVConfig{
			MaxKeySize:   hc.KV.MaxKeySize,
			MaxValueSize: int(hc.KV.MaxValueSize.Int64()),
			MaxEntries:   hc.KV.MaxEntries,
		}
	}
	return hostfunc.NewDefaultRegistry(caps), nil
}

func newLauncher(rc config.RuntimeConfig) (interp.Launcher, error) {
	switch rc.Backend {
	case "process":
		return &interp.ProcessLauncher{
			ScriptDirs: []string{rc.ScriptsDir, rc.PackagesDir},
			Dir:        rc.DataDir,
		}, nil
	case "wasm":
		return newWasmLauncher(rc)
	default:
		return nil, fmt.Errorf("unknown runtime backend %q", rc.Backend)
	}
}

func newWasmLauncher(rc config.RuntimeConfig) (*interp.WasmLauncher, error) {
	scripts, err := filepath.Abs(rc.ScriptsDir)
	if err != nil {
		return nil, fmt.Errorf("resolve scripts dir: %w", err)
	}

	l := &interp.WasmLauncher{
		ModulePath:       rc.WasmModule,
		CacheDir:         rc.CacheDir,
		MemoryLimitPages: wasmPages(rc.MemoryLimit),
		Mounts:           []interp.WasmMount{{Guest: "/scripts", Host: scripts, ReadOnly: true}},
		SearchPath:       []string{"/scripts"},
	}
	if info, err := os.Stat(rc.PackagesDir); err == nil && info.IsDir() {
		l.Mounts = append(l.Mounts, interp.WasmMount{Guest: "/packages", Host: rc.PackagesDir, ReadOnly: true})
		l.SearchPath = append(l.SearchPath, "/packages")
	}
	if rc.WasmStdlib != "" {
		l.Mounts = append(l.Mounts, interp.WasmMount{Guest: "/usr/local/lib", Host: rc.WasmStdlib, ReadOnly: true})
	}
	if rc.DataDir != "" {
		l.Mounts = append(l.Mounts, interp.WasmMount{Guest: "/data", Host: rc.DataDir})
	}
	return l, nil
}

func wasmPages(limit bytesize.ByteSize) uint32 {
	pages := uint64(limit) / wasmPageSize
	if pages > maxWasmPages {
		return maxWasmPages
	}
	return uint32(pages)
}
