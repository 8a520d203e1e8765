// Package metrics exposes Prometheus instrumentation for the pipeline.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds the pipeline's Prometheus metrics.
type Metrics struct {
	// Per-message terminal states
	MessagesTotal *prometheus.CounterVec

	// LLM calls
	LLMCallsTotal *prometheus.CounterVec
	LLMDuration   *prometheus.HistogramVec

	// Destination sync
	SyncTotal *prometheus.CounterVec

	// Notifications
	NotificationsTotal *prometheus.CounterVec

	// Tick level
	TicksTotal   *prometheus.CounterVec
	TickDuration prometheus.Histogram
}

// New creates and registers the pipeline metrics. Registration happens once
// per process; repeated calls return the same instance.
//
// All metrics are prefixed with "mailtriage_":
//   - mailtriage_messages_total{category,state} - messages by final category and terminal state
//   - mailtriage_llm_calls_total{stage,outcome} - LLM requests by pipeline stage
//   - mailtriage_llm_duration_seconds{stage} - LLM request latency
//   - mailtriage_sync_total{outcome} - destination upsert batches
//   - mailtriage_notifications_total{outcome} - digest deliveries
//   - mailtriage_ticks_total{outcome} - pipeline ticks
//   - mailtriage_tick_duration_seconds - tick wall time
func New() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			MessagesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "mailtriage_messages_total",
					Help: "Messages processed by final category and terminal state",
				},
				[]string{"category", "state"},
			),

			LLMCallsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "mailtriage_llm_calls_total",
					Help: "LLM requests by stage and outcome",
				},
				[]string{"stage", "outcome"}, // stage: coarse|deep, outcome: ok|error
			),

			LLMDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "mailtriage_llm_duration_seconds",
					Help:    "LLM request latency in seconds",
					Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1m
				},
				[]string{"stage"},
			),

			SyncTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "mailtriage_sync_total",
					Help: "Destination sync attempts by outcome",
				},
				[]string{"outcome"},
			),

			NotificationsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "mailtriage_notifications_total",
					Help: "Digest notification deliveries by outcome",
				},
				[]string{"outcome"},
			),

			TicksTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "mailtriage_ticks_total",
					Help: "Pipeline ticks by outcome",
				},
				[]string{"outcome"},
			),

			TickDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "mailtriage_tick_duration_seconds",
					Help:    "Wall time of one pipeline tick",
					Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
				},
			),
		}
	})

	return globalMetrics
}

// RecordMessage records one message reaching a terminal state.
func (m *Metrics) RecordMessage(category, state string) {
	m.MessagesTotal.WithLabelValues(category, state).Inc()
}

// RecordLLMCall records one LLM request with its duration.
func (m *Metrics) RecordLLMCall(stage, outcome string, seconds float64) {
	m.LLMCallsTotal.WithLabelValues(stage, outcome).Inc()
	m.LLMDuration.WithLabelValues(stage).Observe(seconds)
}

// RecordLLMBatch records the per-request outcomes of one batched LLM stage
// invocation along with its total duration.
func (m *Metrics) RecordLLMBatch(stage string, ok, failed int, seconds float64) {
	if ok > 0 {
		m.LLMCallsTotal.WithLabelValues(stage, "ok").Add(float64(ok))
	}
	if failed > 0 {
		m.LLMCallsTotal.WithLabelValues(stage, "error").Add(float64(failed))
	}
	m.LLMDuration.WithLabelValues(stage).Observe(seconds)
}

// RecordSync records a destination upsert outcome.
func (m *Metrics) RecordSync(outcome string) {
	m.SyncTotal.WithLabelValues(outcome).Inc()
}

// RecordNotification records a digest delivery outcome.
func (m *Metrics) RecordNotification(outcome string) {
	m.NotificationsTotal.WithLabelValues(outcome).Inc()
}

// RecordTick records a completed tick with its wall time.
func (m *Metrics) RecordTick(outcome string, seconds float64) {
	m.TicksTotal.WithLabelValues(outcome).Inc()
	m.TickDuration.Observe(seconds)
}

// Handler serves the default registry for the watch command's /metrics
// endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
