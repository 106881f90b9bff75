package interp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
)

// Memory limit constants for WasmLauncher.MemoryLimitPages (64KB pages).
const (
	MemoryLimit64MB  uint32 = 1024
	MemoryLimit256MB uint32 = 4096
	MemoryLimit1GB   uint32 = 16384
)

// WasmMount exposes a host directory to the guest.
type WasmMount struct {
	Guest    string
	Host     string
	ReadOnly bool
}

// WasmLauncher runs a WASI build of the interpreter inside wazero. The guest
// sees only the configured mounts; the interpreter's own standard library must
// be one of them.
type WasmLauncher struct {
	// ModulePath is the interpreter .wasm file.
	ModulePath string
	// Mounts are the directories visible to the guest.
	Mounts []WasmMount
	// SearchPath lists guest paths for the language search path variable.
	SearchPath []string
	// CacheDir enables wazero's on-disk compilation cache.
	CacheDir string
	// MemoryLimitPages caps guest memory. Zero keeps the wazero default.
	MemoryLimitPages uint32
	// Env holds extra environment variables.
	Env map[string]string
}

func (l *WasmLauncher) Name() string {
	return "wasm"
}

func (l *WasmLauncher) Launch(ctx context.Context, lang Language, out Output) (Process, error) {
	if l.ModulePath == "" {
		return nil, errors.New("wasm module path not configured")
	}
	wasm, err := os.ReadFile(l.ModulePath)
	if err != nil {
		return nil, fmt.Errorf("read wasm module: %w", err)
	}

	// The interpreter outlives the request that started it.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	var cache wazero.CompilationCache
	if l.CacheDir != "" {
		cache, err = wazero.NewCompilationCacheWithDir(l.CacheDir)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("create compilation cache: %w", err)
		}
		rtConfig = rtConfig.WithCompilationCache(cache)
	}
	if l.MemoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(l.MemoryLimitPages)
	}

	rt := wazero.NewRuntimeWithConfig(runCtx, rtConfig)
	p := &wasmProcess{rt: rt, cache: cache, cancel: cancel, done: make(chan struct{})}

	if _, err := wasi_snapshot_preview1.Instantiate(runCtx, rt); err != nil {
		p.release()
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}

	compiled, err := rt.CompileModule(runCtx, wasm)
	if err != nil {
		p.release()
		return nil, fmt.Errorf("compile %s: %w", lang.Name(), err)
	}

	fsConfig := wazero.NewFSConfig()
	for _, m := range l.Mounts {
		if m.ReadOnly {
			fsConfig = fsConfig.WithReadOnlyDirMount(m.Host, m.Guest)
		} else {
			fsConfig = fsConfig.WithDirMount(m.Host, m.Guest)
		}
	}

	stdinReader, stdinWriter := io.Pipe()
	p.stdinReader, p.stdin = stdinReader, stdinWriter

	moduleConfig := wazero.NewModuleConfig().
		WithStdin(stdinReader).
		WithStdout(out.Stdout).
		WithStderr(out.Stderr).
		WithArgs(lang.Args(lang.Bootstrap())...).
		WithFSConfig(fsConfig).
		WithSysWalltime().
		WithSysNanotime().
		WithSysNanosleep().
		WithRandSource(rand.Reader).
		WithName("")

	if v := lang.SearchPathEnv(); v != "" && len(l.SearchPath) > 0 {
		moduleConfig = moduleConfig.WithEnv(v, strings.Join(l.SearchPath, ":"))
	}
	for k, v := range l.Env {
		moduleConfig = moduleConfig.WithEnv(k, v)
	}

	go func() {
		_, err := rt.InstantiateModule(runCtx, compiled, moduleConfig)
		var exitErr *sys.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 0 {
			err = nil
		}
		p.finish(err)
	}()

	return p, nil
}

type wasmProcess struct {
	rt          wazero.Runtime
	cache       wazero.CompilationCache
	cancel      context.CancelFunc
	stdin       *io.PipeWriter
	stdinReader *io.PipeReader

	done    chan struct{}
	exitErr error
	once    sync.Once
	kill    sync.Once
}

func (p *wasmProcess) Stdin() io.WriteCloser {
	return p.stdin
}

func (p *wasmProcess) Wait() error {
	<-p.done
	return p.exitErr
}

func (p *wasmProcess) finish(err error) {
	p.once.Do(func() {
		p.exitErr = err
		close(p.done)
	})
	p.release()
}

func (p *wasmProcess) Kill() error {
	p.kill.Do(func() {
		if p.stdin != nil {
			p.stdin.Close()
			p.stdinReader.Close()
		}
		p.cancel()
	})
	return nil
}

// release frees the runtime and cache. Closing twice is harmless in wazero.
func (p *wasmProcess) release() {
	ctx := context.Background()
	p.cancel()
	p.rt.Close(ctx)
	if p.cache != nil {
		p.cache.Close(ctx)
	}
}
