package hostfunc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCall(t *testing.T) {
	r := NewRegistry()
	r.Register("greet", func(ctx context.Context, args map[string]any) (any, error) {
		return "hello " + args["name"].(string), nil
	})

	got, err := r.Call(context.Background(), "greet", map[string]any{"name": "creek"})
	require.NoError(t, err)
	assert.Equal(t, "hello creek", got)
}

func TestRegistryUnknownFunction(t *testing.T) {
	_, err := NewRegistry().Call(context.Background(), "missing", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown function: missing")
}

func TestRegistryRecoversPanic(t *testing.T) {
	r := NewRegistry()
	r.Register("boom", func(ctx context.Context, args map[string]any) (any, error) {
		panic("kaboom")
	})

	_, err := r.Call(context.Background(), "boom", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestRegistryObserver(t *testing.T) {
	r := NewRegistry()
	fail := errors.New("nope")
	r.Register("fails", func(ctx context.Context, args map[string]any) (any, error) {
		return nil, fail
	})

	var gotName string
	var gotErr error
	r.SetObserver(func(name string, d time.Duration, err error) {
		gotName, gotErr = name, err
	})

	_, _ = r.Call(context.Background(), "fails", nil)
	assert.Equal(t, "fails", gotName)
	assert.ErrorIs(t, gotErr, fail)
}

func TestRegistryListSorted(t *testing.T) {
	r := NewRegistry()
	noop := func(ctx context.Context, args map[string]any) (any, error) { return nil, nil }
	r.Register("b", noop)
	r.Register("a", noop)
	assert.Equal(t, []string{"a", "b"}, r.List())
}

func TestNewDefaultRegistry(t *testing.T) {
	t.Run("Minimal", func(t *testing.T) {
		r := NewDefaultRegistry(Capabilities{})
		assert.Equal(t, []string{"log", "time_now"}, r.List())
	})

	t.Run("HTTPWithoutHostsStaysOff", func(t *testing.T) {
		r := NewDefaultRegistry(Capabilities{HTTP: &HTTPConfig{}})
		_, ok := r.Get("http_get")
		assert.False(t, ok)
	})

	t.Run("AllCapabilities", func(t *testing.T) {
		kv := DefaultKVConfig()
		r := NewDefaultRegistry(Capabilities{
			HTTP:   &HTTPConfig{AllowedHosts: []string{"example.com"}},
			Mounts: []Mount{{VirtualPath: "/data", HostPath: t.TempDir(), Mode: MountReadOnly}},
			KV:     &kv,
		})
		for _, name := range []string{"http_get", "http_request", "fs_read", "fs_write", "kv_get", "kv_keys"} {
			_, ok := r.Get(name)
			assert.True(t, ok, name)
		}
	})
}

func TestTimeNow(t *testing.T) {
	v, err := TimeNow(context.Background(), nil)
	require.NoError(t, err)
	assert.InDelta(t, float64(time.Now().Unix()), v.(float64), 5)
}

func TestLogRequiresMessage(t *testing.T) {
	_, err := Log(context.Background(), map[string]any{"level": "info"})
	assert.Error(t, err)

	_, err = Log(context.Background(), map[string]any{"message": "loaded model", "level": "debug", "module": "color_style_infer"})
	assert.NoError(t, err)
}
