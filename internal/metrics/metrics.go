// Package metrics exposes creek's prometheus metrics. A nil *Metrics is valid
// and records nothing, so callers never need to check whether metrics are
// enabled.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/caffeineduck/creek/interp"
)

const namespace = "creek"

// Metrics records method channel and interpreter activity.
type Metrics struct {
	requests         *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	interpCalls      *prometheus.CounterVec
	interpDuration   *prometheus.HistogramVec
	runtimeState     *prometheus.GaugeVec
	startDuration    prometheus.Histogram
	startFailures    prometheus.Counter
	hostCalls        *prometheus.CounterVec
	hostCallDuration *prometheus.HistogramVec
}

// NewRegistry returns a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// New registers creek's metrics with reg. It returns nil when reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	f := promauto.With(reg)

	return &Metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Method channel requests by method and result code",
		}, []string{"method", "code"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Method channel request latency",
			Buckets:   []float64{.005, .025, .1, .25, 1, 2.5, 10, 30, 60, 120},
		}, []string{"method"}),
		interpCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interpreter_calls_total",
			Help:      "Interpreter function calls by module, function and outcome",
		}, []string{"module", "fn", "outcome"}),
		interpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "interpreter_call_duration_seconds",
			Help:      "Interpreter function call latency",
			Buckets:   []float64{.005, .025, .1, .25, 1, 2.5, 10, 30, 60, 120},
		}, []string{"module", "fn"}),
		runtimeState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runtime_state",
			Help:      "1 for the interpreter's current lifecycle state, 0 for the others",
		}, []string{"state"}),
		startDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "runtime_start_duration_seconds",
			Help:      "Time from launch to the interpreter's ready signal",
			Buckets:   []float64{.1, .25, .5, 1, 2, 5, 10, 30, 60},
		}),
		startFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runtime_start_failures_total",
			Help:      "Interpreter startups that never became ready",
		}),
		hostCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "host_calls_total",
			Help:      "Host function calls made by scripts",
		}, []string{"fn", "outcome"}),
		hostCallDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "host_call_duration_seconds",
			Help:      "Host function call latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"fn"}),
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordRequest records one handled method channel request.
func (m *Metrics) RecordRequest(method, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, code).Inc()
	m.requestDuration.WithLabelValues(method).Observe(d.Seconds())
}

// RecordInterpreterCall records one call into the interpreter.
func (m *Metrics) RecordInterpreterCall(module, fn string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.interpCalls.WithLabelValues(module, fn, outcome(err)).Inc()
	m.interpDuration.WithLabelValues(module, fn).Observe(d.Seconds())
}

// RecordState marks s as the current lifecycle state.
func (m *Metrics) RecordState(s interp.State) {
	if m == nil {
		return
	}
	for _, st := range []interp.State{interp.StateUninitialized, interp.StateInitializing, interp.StateReady, interp.StateFailed} {
		v := 0.0
		if st == s {
			v = 1
		}
		m.runtimeState.WithLabelValues(st.String()).Set(v)
	}
}

// RecordStart records an interpreter startup attempt.
func (m *Metrics) RecordStart(d time.Duration, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.startFailures.Inc()
		return
	}
	m.startDuration.Observe(d.Seconds())
}

// RecordHostCall records a host function call. Its signature matches
// hostfunc.Observer.
func (m *Metrics) RecordHostCall(name string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.hostCalls.WithLabelValues(name, outcome(err)).Inc()
	m.hostCallDuration.WithLabelValues(name).Observe(d.Seconds())
}

// RuntimeHooks returns interp hooks feeding m. Nil metrics yield empty hooks.
func (m *Metrics) RuntimeHooks() interp.Hooks {
	if m == nil {
		return interp.Hooks{}
	}
	return interp.Hooks{
		OnState: m.RecordState,
		OnStart: m.RecordStart,
		OnCall:  m.RecordInterpreterCall,
	}
}
