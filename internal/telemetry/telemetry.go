package telemetry

import (
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/quizchain/quizchain/config"
	"github.com/quizchain/quizchain/internal/solver"
)

// Telemetry aggregates run metrics and exposes them to prometheus.
// Internally locked so concurrent requests can record without
// coordinating; nothing here is shared request state.
type Telemetry struct {
	cfg    config.TelemetryConfig
	logger *log.Logger

	mu      sync.RWMutex
	metrics Metrics

	requestsTotal   *prometheus.CounterVec
	stepsPerRequest prometheus.Histogram
	modelCalls      *prometheus.CounterVec
	modelLatency    *prometheus.HistogramVec
	renderEscalated prometheus.Counter
}

// Metrics holds aggregate counters for the process lifetime.
type Metrics struct {
	TotalRequests      int64
	RequestsByOutcome  map[solver.Outcome]int64
	TotalSteps         int64
	ModelCalls         map[string]int64
	ModelFailures      map[string]int64
	RenderEscalations  int64
	AverageElapsed     time.Duration
	totalElapsedSummed time.Duration
}

// New creates a Telemetry instance and registers its collectors on reg.
// Pass prometheus.DefaultRegisterer in production; tests use a fresh
// registry.
func New(cfg config.TelemetryConfig, reg prometheus.Registerer) *Telemetry {
	t := &Telemetry{
		cfg:    cfg,
		logger: log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		metrics: Metrics{
			RequestsByOutcome: make(map[solver.Outcome]int64),
			ModelCalls:        make(map[string]int64),
			ModelFailures:     make(map[string]int64),
		},
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quizchain_requests_total",
			Help: "Solve requests by terminal outcome.",
		}, []string{"outcome"}),
		stepsPerRequest: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quizchain_steps_per_request",
			Help:    "Loop iterations per solve request.",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		}),
		modelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quizchain_model_calls_total",
			Help: "LLM calls by model and status.",
		}, []string{"model", "status"}),
		modelLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quizchain_model_latency_seconds",
			Help:    "LLM call latency by model.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 9),
		}, []string{"model"}),
		renderEscalated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quizchain_render_escalations_total",
			Help: "Static fetches escalated to headless rendering.",
		}),
	}
	if cfg.Enabled && reg != nil {
		reg.MustRegister(t.requestsTotal, t.stepsPerRequest, t.modelCalls, t.modelLatency, t.renderEscalated)
	}
	return t
}

// RecordRequest records a finished solve run.
func (t *Telemetry) RecordRequest(outcome solver.Outcome, steps int, elapsed time.Duration) {
	t.mu.Lock()
	t.metrics.TotalRequests++
	t.metrics.RequestsByOutcome[outcome]++
	t.metrics.TotalSteps += int64(steps)
	t.metrics.totalElapsedSummed += elapsed
	t.metrics.AverageElapsed = t.metrics.totalElapsedSummed / time.Duration(t.metrics.TotalRequests)
	t.mu.Unlock()

	t.requestsTotal.WithLabelValues(string(outcome)).Inc()
	t.stepsPerRequest.Observe(float64(steps))
	if t.cfg.PeriodicLogs {
		t.logger.Printf("request done: outcome=%s steps=%d elapsed=%s", outcome, steps, elapsed.Round(time.Millisecond))
	}
}

// RecordModelCall records one LLM invocation.
func (t *Telemetry) RecordModelCall(model string, success bool, latency time.Duration) {
	t.mu.Lock()
	t.metrics.ModelCalls[model]++
	if !success {
		t.metrics.ModelFailures[model]++
	}
	t.mu.Unlock()

	status := "ok"
	if !success {
		status = "error"
	}
	t.modelCalls.WithLabelValues(model, status).Inc()
	t.modelLatency.WithLabelValues(model).Observe(latency.Seconds())
}

// RecordRenderEscalation records a static fetch that escalated to the
// headless browser.
func (t *Telemetry) RecordRenderEscalation() {
	t.mu.Lock()
	t.metrics.RenderEscalations++
	t.mu.Unlock()
	t.renderEscalated.Inc()
}

// Snapshot returns a copy of the aggregate metrics.
func (t *Telemetry) Snapshot() Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := t.metrics
	out.RequestsByOutcome = make(map[solver.Outcome]int64, len(t.metrics.RequestsByOutcome))
	for k, v := range t.metrics.RequestsByOutcome {
		out.RequestsByOutcome[k] = v
	}
	out.ModelCalls = make(map[string]int64, len(t.metrics.ModelCalls))
	for k, v := range t.metrics.ModelCalls {
		out.ModelCalls[k] = v
	}
	out.ModelFailures = make(map[string]int64, len(t.metrics.ModelFailures))
	for k, v := range t.metrics.ModelFailures {
		out.ModelFailures[k] = v
	}
	return out
}
