package observability

import (
	"time"

	"github.com/letschat/chat-api/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the chat API.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	externalErrors  *prometheus.CounterVec
	tokensUsed      *prometheus.CounterVec
	turnsTotal      *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chat_api_operation_duration_seconds",
				Help:    "Duration of operations (chat turn, inference, store).",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chat_api_external_errors_total",
				Help: "Total failed calls to external services (store, auth, inference).",
			},
			[]string{"service"},
		),
		tokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chat_api_llm_tokens_total",
				Help: "Total LLM tokens consumed.",
			},
			[]string{"type"},
		),
		turnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chat_api_turns_total",
				Help: "Total chat turns processed.",
			},
			[]string{"status"},
		),
	}
}

// ExternalErrorCount returns how many failed calls were counted against service.
func (m *Metrics) ExternalErrorCount(service string) float64 {
	return getCounterValue(m.externalErrors, service)
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// RecordTokens records prompt and completion token usage.
func (m *Metrics) RecordTokens(prompt, completion int) {
	m.tokensUsed.WithLabelValues("prompt").Add(float64(prompt))
	m.tokensUsed.WithLabelValues("completion").Add(float64(completion))
}

// IncrTurn increments the chat turn counter with a status label
// ("success" or "error").
func (m *Metrics) IncrTurn(status string) {
	m.turnsTotal.WithLabelValues(status).Inc()
}

// UsageSnapshot summarises the counters for GET /api/metrics/usage.
// Prometheus counters are cumulative, so the period is always "all_time".
func (m *Metrics) UsageSnapshot() *domain.UsageSnapshot {
	prompt := getCounterValue(m.tokensUsed, "prompt")
	completion := getCounterValue(m.tokensUsed, "completion")
	success := getCounterValue(m.turnsTotal, "success")
	failed := getCounterValue(m.turnsTotal, "error")
	total := success + failed

	snap := &domain.UsageSnapshot{
		TotalTurns:       int64(total),
		PromptTokens:     int64(prompt),
		CompletionTokens: int64(completion),
		Period:           "all_time",
	}
	if total > 0 {
		snap.ErrorRate = failed / total
	}
	if success > 0 {
		snap.AvgTokensPerTurn = (prompt + completion) / success
	}
	return snap
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
