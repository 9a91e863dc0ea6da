// Package metrics holds the prometheus collectors of the settlement service.
package metrics

import (
	"strconv"
	"time"

	"github.com/ArowuTest/lottery-settlement/internal/models"
	"github.com/ArowuTest/lottery-settlement/pkg/resilience"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lottery"

// Metrics groups every collector. Create one per registry.
type Metrics struct {
	breakerState *prometheus.GaugeVec
	retries      *prometheus.CounterVec
	runs         *prometheus.CounterVec
	requests     *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per upstream (0 closed, 1 open, 2 half-open).",
		}, []string{"executor"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "retries_total",
			Help:      "Retry attempts per upstream.",
		}, []string{"executor"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "runs_total",
			Help:      "Settlement runs by kind and final status.",
		}, []string{"kind", "status"}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(m.breakerState, m.retries, m.runs, m.requests)
	return m
}

// ExecutorOptions wires breaker transitions and retries of an executor into the
// collectors. The gauge starts at closed.
func (m *Metrics) ExecutorOptions(name string) []resilience.Option {
	m.breakerState.WithLabelValues(name).Set(float64(resilience.StateClosed))
	return []resilience.Option{
		resilience.WithStateChange(func(name string, _, to resilience.State) {
			m.breakerState.WithLabelValues(name).Set(float64(to))
		}),
		resilience.WithRetryHook(func(name string) {
			m.retries.WithLabelValues(name).Inc()
		}),
	}
}

// ObserveRun counts a finished settlement run.
func (m *Metrics) ObserveRun(kind models.RunKind, status models.RunStatus) {
	m.runs.WithLabelValues(string(kind), string(status)).Inc()
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
