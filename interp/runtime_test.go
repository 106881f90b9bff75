package interp_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caffeineduck/creek/hostfunc"
	"github.com/caffeineduck/creek/interp"
	"github.com/caffeineduck/creek/interp/interptest"
)

func echoFuncs() map[string]interptest.Func {
	return map[string]interptest.Func{
		"analyze_layout.analyze_single_image": func(args []any, host interptest.Host) (any, error) {
			return `{"layout":"thirds","image":"` + args[0].(string) + `"}`, nil
		},
		"instagram_downloader.download_instagram_image": func(args []any, host interptest.Host) (any, error) {
			return nil, nil
		},
		"stylesheet_generator.generate_stylesheet": func(args []any, host interptest.Host) (any, error) {
			return nil, &interptest.Exception{Type: "ValueError", Message: "empty json list"}
		},
	}
}

func TestConcurrentInitializeStartsOnce(t *testing.T) {
	rt, launcher := interptest.NewRuntime(nil)
	defer rt.Close()

	gate := make(chan struct{})
	launcher.Gate = gate

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rt.Initialize(context.Background()) {
				winners.Add(1)
			}
		}()
	}

	require.Eventually(t, func() bool { return rt.State() == interp.StateInitializing }, time.Second, time.Millisecond)
	close(gate)
	wg.Wait()

	require.NoError(t, rt.AwaitReady(context.Background()))
	assert.Equal(t, int32(1), winners.Load())
	assert.Equal(t, 1, launcher.Launches())
	assert.Equal(t, interp.StateReady, rt.State())
}

func TestCallBeforeReadyWaits(t *testing.T) {
	rt, launcher := interptest.NewRuntime(echoFuncs())
	defer rt.Close()

	gate := make(chan struct{})
	launcher.Gate = gate
	go rt.Initialize(context.Background())

	type outcome struct {
		out string
		err error
	}
	results := make(chan outcome, 1)
	go func() {
		out, err := rt.Call(context.Background(), "analyze_layout", "analyze_single_image", "/data/a.jpg")
		results <- outcome{out, err}
	}()

	select {
	case <-results:
		t.Fatal("call completed before the interpreter was ready")
	case <-time.After(50 * time.Millisecond):
	}

	close(gate)
	res := <-results
	require.NoError(t, res.err)
	assert.Equal(t, `{"layout":"thirds","image":"/data/a.jpg"}`, res.out)
	assert.Equal(t, 1, launcher.Launches())
}

func TestCallStartsLazily(t *testing.T) {
	rt, launcher := interptest.NewRuntime(echoFuncs())
	defer rt.Close()

	assert.Equal(t, interp.StateUninitialized, rt.State())
	_, err := rt.Call(context.Background(), "analyze_layout", "analyze_single_image", "x.jpg")
	require.NoError(t, err)
	assert.Equal(t, 1, launcher.Launches())
}

func TestCallResults(t *testing.T) {
	rt, _ := interptest.NewRuntime(echoFuncs())
	defer rt.Close()
	ctx := context.Background()

	t.Run("None", func(t *testing.T) {
		_, err := rt.Call(ctx, "instagram_downloader", "download_instagram_image", "https://x/y.jpg", "/tmp")
		assert.ErrorIs(t, err, interp.ErrNoResult)
	})

	t.Run("Exception", func(t *testing.T) {
		_, err := rt.Call(ctx, "stylesheet_generator", "generate_stylesheet", []string{})
		var scriptErr *interp.ScriptError
		require.ErrorAs(t, err, &scriptErr)
		assert.Equal(t, "ValueError", scriptErr.Type)
		assert.Equal(t, "empty json list", scriptErr.Message)
		assert.Contains(t, scriptErr.Traceback, "Traceback")
		assert.Contains(t, err.Error(), "stylesheet_generator.generate_stylesheet")
	})

	t.Run("MissingModule", func(t *testing.T) {
		_, err := rt.Call(ctx, "nope", "fn")
		var scriptErr *interp.ScriptError
		require.ErrorAs(t, err, &scriptErr)
		assert.Equal(t, "ModuleNotFoundError", scriptErr.Type)
	})
}

func TestConcurrentCalls(t *testing.T) {
	release := make(chan struct{})
	var inFlight, peak atomic.Int32

	rt, _ := interptest.NewRuntime(map[string]interptest.Func{
		"slow.run": func(args []any, host interptest.Host) (any, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			<-release
			inFlight.Add(-1)
			return args[0], nil
		},
	})
	defer rt.Close()

	const n = 8
	var wg sync.WaitGroup
	outs := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := rt.Call(context.Background(), "slow", "run", i)
			assert.NoError(t, err)
			outs[i] = out
		}(i)
	}

	require.Eventually(t, func() bool { return peak.Load() == n }, 2*time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	for i, out := range outs {
		assert.Equal(t, strconv.Itoa(i), out)
	}
}

func TestHostFunctionCallback(t *testing.T) {
	registry := hostfunc.NewRegistry()
	registry.Register("kv_get", func(ctx context.Context, args map[string]any) (any, error) {
		return "cached:" + args["key"].(string), nil
	})
	registry.Register("fail", func(ctx context.Context, args map[string]any) (any, error) {
		return nil, errors.New("denied")
	})

	rt, _ := interptest.NewRuntime(map[string]interptest.Func{
		"color_style_infer.analyze_color_style": func(args []any, host interptest.Host) (any, error) {
			v, err := host("kv_get", map[string]any{"key": "model"})
			if err != nil {
				return nil, err
			}
			return v, nil
		},
		"color_style_infer.denied": func(args []any, host interptest.Host) (any, error) {
			_, err := host("fail", nil)
			return nil, err
		},
	}, interp.WithRegistry(registry))
	defer rt.Close()

	out, err := rt.Call(context.Background(), "color_style_infer", "analyze_color_style", "/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "cached:model", out)

	_, err = rt.Call(context.Background(), "color_style_infer", "denied")
	var scriptErr *interp.ScriptError
	require.ErrorAs(t, err, &scriptErr)
	assert.Contains(t, scriptErr.Message, "denied")
}

func TestStartFailures(t *testing.T) {
	t.Run("LaunchError", func(t *testing.T) {
		l := interptest.NewLauncher(nil)
		l.LaunchErr = errors.New("python3: not found")
		rt := interp.New(interptest.Language{}, l)

		_, err := rt.Call(context.Background(), "m", "f")
		var startErr *interp.StartError
		require.ErrorAs(t, err, &startErr)
		assert.Equal(t, "fake", startErr.Backend)
		assert.Equal(t, interp.StateFailed, rt.State())

		assert.False(t, rt.Initialize(context.Background()), "failed runtimes never restart")
		assert.ErrorIs(t, rt.AwaitReady(context.Background()), startErr.Err)
	})

	t.Run("ExitBeforeReady", func(t *testing.T) {
		l := interptest.NewLauncher(nil)
		l.Output = "Traceback (most recent call last):\nImportError: no module named cv2\n"
		l.ExitBeforeReady = errors.New("exit status 1")
		rt := interp.New(interptest.Language{}, l)

		assert.True(t, rt.Initialize(context.Background()))
		err := rt.AwaitReady(context.Background())
		var startErr *interp.StartError
		require.ErrorAs(t, err, &startErr)
		assert.Contains(t, err.Error(), "ImportError: no module named cv2")
	})

	t.Run("Timeout", func(t *testing.T) {
		l := interptest.NewLauncher(nil)
		l.Gate = make(chan struct{})
		defer close(l.Gate)
		rt := interp.New(interptest.Language{}, l, interp.WithStartTimeout(20*time.Millisecond))

		rt.Initialize(context.Background())
		err := rt.AwaitReady(context.Background())
		assert.ErrorContains(t, err, "not ready after")
	})
}

func TestExitAfterReadyFails(t *testing.T) {
	var mu sync.Mutex
	var states []interp.State

	l := interptest.NewLauncher(echoFuncs())
	l.Exit = make(chan struct{})
	rt := interp.New(interptest.Language{}, l, interp.WithHooks(interp.Hooks{
		OnState: func(s interp.State) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		},
	}))
	defer rt.Close()

	_, err := rt.Call(context.Background(), "analyze_layout", "analyze_single_image", "a.jpg")
	require.NoError(t, err)
	assert.Equal(t, interp.StateReady, rt.State())

	close(l.Exit)
	require.Eventually(t, func() bool { return rt.State() == interp.StateFailed }, time.Second, time.Millisecond)

	_, err = rt.Call(context.Background(), "analyze_layout", "analyze_single_image", "a.jpg")
	assert.ErrorIs(t, err, interp.ErrInterpreterExited)
	assert.False(t, rt.Initialize(context.Background()), "failed runtimes never restart")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []interp.State{interp.StateInitializing, interp.StateReady, interp.StateFailed}, states)
}

func TestAwaitReadyHonorsContext(t *testing.T) {
	l := interptest.NewLauncher(nil)
	l.Gate = make(chan struct{})
	rt := interp.New(interptest.Language{}, l)
	defer func() {
		close(l.Gate)
		rt.Close()
	}()

	go rt.Initialize(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, rt.AwaitReady(ctx), context.DeadlineExceeded)
}

func TestClose(t *testing.T) {
	rt, _ := interptest.NewRuntime(echoFuncs())
	_, err := rt.Call(context.Background(), "analyze_layout", "analyze_single_image", "a.jpg")
	require.NoError(t, err)

	require.NoError(t, rt.Close())
	require.NoError(t, rt.Close())

	_, err = rt.Call(context.Background(), "analyze_layout", "analyze_single_image", "a.jpg")
	assert.ErrorIs(t, err, interp.ErrClosed)
}

func TestCloseBeforeStart(t *testing.T) {
	rt, launcher := interptest.NewRuntime(echoFuncs())
	require.NoError(t, rt.Close())

	_, err := rt.Call(context.Background(), "analyze_layout", "analyze_single_image", "a.jpg")
	assert.ErrorIs(t, err, interp.ErrClosed)
	assert.Equal(t, 0, launcher.Launches())
}

func TestHooks(t *testing.T) {
	var mu sync.Mutex
	var states []interp.State
	var started, called atomic.Bool

	rt, _ := interptest.NewRuntime(echoFuncs(), interp.WithHooks(interp.Hooks{
		OnState: func(s interp.State) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		},
		OnStart: func(d time.Duration, err error) { started.Store(err == nil) },
		OnCall:  func(module, fn string, d time.Duration, err error) { called.Store(true) },
	}))
	defer rt.Close()

	_, err := rt.Call(context.Background(), "analyze_layout", "analyze_single_image", "a.jpg")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []interp.State{interp.StateInitializing, interp.StateReady}, states)
	assert.True(t, started.Load())
	assert.True(t, called.Load())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "uninitialized", interp.StateUninitialized.String())
	assert.Equal(t, "initializing", interp.StateInitializing.String())
	assert.Equal(t, "ready", interp.StateReady.String())
	assert.Equal(t, "failed", interp.StateFailed.String())
	assert.Equal(t, "unknown", interp.State(42).String())
}
