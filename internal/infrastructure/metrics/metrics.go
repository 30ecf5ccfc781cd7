// Package metrics exposes Prometheus collectors for the validation pipeline
// and its LLM calls.
package metrics

import (
	"sync"
	"time"

	"github.com/garyjia/expense-validator/internal/domain/entity"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
)

var (
	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "expense_pipeline_stage_duration_ms",
			Help:    "Duration of each validation pipeline stage in milliseconds",
			Buckets: []float64{1, 5, 10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		},
		[]string{"stage", "status"},
	)

	ValidationResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expense_validation_results_total",
			Help: "Total number of expense decisions by status (count)",
		},
		[]string{"status"},
	)

	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expense_llm_requests_total",
			Help: "Total number of LLM chat completion calls (count)",
		},
		[]string{"status"},
	)

	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "expense_llm_request_duration_ms",
			Help:    "LLM chat completion latency in milliseconds",
			Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		},
		[]string{"status"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "expense_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	UploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expense_uploads_total",
			Help: "Total number of accepted uploads by category (count)",
		},
		[]string{"category"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expense_rate_limit_requests_total",
			Help: "Total number of HTTP requests seen by the rate limiter (count)",
		},
		[]string{"status"},
	)
)

var registerOnce sync.Once

// Register adds every collector to the default registry. Safe to call more
// than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			StageDuration,
			ValidationResultsTotal,
			LLMRequestsTotal,
			LLMRequestDuration,
			CircuitBreakerState,
			UploadsTotal,
			RateLimitRequestsTotal,
		)
	})
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveLLMRequest records one LLM call
func ObserveLLMRequest(elapsed time.Duration, err error) {
	status := statusLabel(err)
	LLMRequestsTotal.WithLabelValues(status).Inc()
	LLMRequestDuration.WithLabelValues(status).Observe(float64(elapsed) / float64(time.Millisecond))
}

// SetCircuitBreakerState publishes a breaker transition
func SetCircuitBreakerState(name string, state gobreaker.State) {
	var value float64
	switch state {
	case gobreaker.StateClosed:
		value = 0
	case gobreaker.StateHalfOpen:
		value = 1
	case gobreaker.StateOpen:
		value = 2
	}
	CircuitBreakerState.WithLabelValues(name).Set(value)
}

// PipelineObserver implements port.PipelineObserver on top of the package
// collectors
type PipelineObserver struct{}

// NewPipelineObserver creates a new PipelineObserver
func NewPipelineObserver() *PipelineObserver {
	return &PipelineObserver{}
}

// ObserveStage records a stage duration
func (PipelineObserver) ObserveStage(stage string, elapsed time.Duration, err error) {
	StageDuration.WithLabelValues(stage, statusLabel(err)).Observe(float64(elapsed) / float64(time.Millisecond))
}

// ObserveResults counts decisions by status
func (PipelineObserver) ObserveResults(results []entity.ValidationResult) {
	for _, r := range results {
		ValidationResultsTotal.WithLabelValues(string(r.Status)).Inc()
	}
}
