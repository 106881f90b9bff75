package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caffeineduck/creek/interp"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.Nil(t, New(nil))

	m.RecordRequest("analyzeLayout", "OK", time.Second)
	m.RecordInterpreterCall("analyze_layout", "analyze_single_image", time.Second, nil)
	m.RecordState(interp.StateReady)
	m.RecordStart(time.Second, nil)
	m.RecordHostCall("kv_get", time.Millisecond, nil)
	assert.Equal(t, interp.Hooks{}, m.RuntimeHooks())
}

func TestRecordRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordRequest("analyzeLayout", "OK", 10*time.Millisecond)
	m.RecordRequest("analyzeLayout", "OK", 20*time.Millisecond)
	m.RecordRequest("downloadInstagramImage", "DOWNLOAD_ERROR", time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("analyzeLayout", "OK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("downloadInstagramImage", "DOWNLOAD_ERROR")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.requestDuration))
}

func TestRecordState(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordState(interp.StateInitializing)
	m.RecordState(interp.StateReady)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runtimeState.WithLabelValues("ready")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.runtimeState.WithLabelValues("initializing")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.runtimeState.WithLabelValues("failed")))
}

func TestRecordStartAndHostCalls(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordStart(2*time.Second, nil)
	m.RecordStart(time.Second, errors.New("exit status 1"))
	m.RecordHostCall("http_get", time.Millisecond, nil)
	m.RecordHostCall("http_get", time.Millisecond, errors.New("host not allowed"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.startFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.hostCalls.WithLabelValues("http_get", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.hostCalls.WithLabelValues("http_get", "error")))
}

func TestRuntimeHooksFeedMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())
	hooks := m.RuntimeHooks()
	require.NotNil(t, hooks.OnState)
	require.NotNil(t, hooks.OnCall)

	hooks.OnState(interp.StateFailed)
	hooks.OnCall("color_style_infer", "analyze_color_style", time.Millisecond, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runtimeState.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.interpCalls.WithLabelValues("color_style_infer", "analyze_color_style", "ok")))
}

func TestNewRegistryGathers(t *testing.T) {
	reg := NewRegistry()
	New(reg).RecordRequest("getShareSource", "OK", time.Millisecond)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["creek_requests_total"])
	assert.True(t, names["go_goroutines"])
}
