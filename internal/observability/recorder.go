// Package observability wires the application's observability sinks: OTel
// tracing setup (otel.go) and the structured event/metrics sink defined
// here.
//
// The Recorder abstraction carries {operation, duration, outcome} events
// emitted around every external call and persistence write in the workflow.
// It is strictly a side channel: implementations must be non-blocking and
// must never influence control flow. The default implementation fans events
// out to Prometheus and zerolog.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Event outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Event is one measured operation: an external call or a persistence write.
type Event struct {
	Operation string
	Duration  time.Duration
	Outcome   string
}

// Recorder accepts structured operation events. Implementations must be safe
// for concurrent use.
type Recorder interface {
	Record(e Event)
}

var (
	// opDuration records per-operation latency, labeled by outcome.
	opDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "operation_duration_seconds",
			Help:    "Duration of external calls and persistence writes.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "outcome"},
	)

	// validationFailures counts rejected topics by coarse category.
	validationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "validation_failures_total",
			Help: "Total topic validation failures by category.",
		},
		[]string{"field", "category"},
	)

	// workflowExecutions counts finished workflow stages by outcome.
	workflowExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_executions_total",
			Help: "Total workflow stage executions by outcome.",
		},
		[]string{"stage", "outcome"},
	)

	// notificationAttempts counts downstream delivery attempts by outcome.
	notificationAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_attempts_total",
			Help: "Total downstream notification attempts by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(opDuration, validationFailures, workflowExecutions, notificationAttempts)
}

// PromRecorder is the default Recorder: Prometheus histogram plus a zerolog
// event per operation.
type PromRecorder struct {
	Logger zerolog.Logger
}

// Record implements Recorder.
func (r *PromRecorder) Record(e Event) {
	opDuration.WithLabelValues(e.Operation, e.Outcome).Observe(e.Duration.Seconds())
	r.Logger.Info().
		Str("operation", e.Operation).
		Int64("duration_ms", e.Duration.Milliseconds()).
		Str("outcome", e.Outcome).
		Msg("operation measured")
}

// RecordValidationFailure counts one rejected check on a field. Category is
// the coarse bucket from validation.Category.
func RecordValidationFailure(field, category string) {
	validationFailures.WithLabelValues(field, category).Inc()
}

// RecordWorkflowExecution counts one finished stage.
func RecordWorkflowExecution(stage, outcome string) {
	workflowExecutions.WithLabelValues(stage, outcome).Inc()
}

// RecordNotificationAttempt counts one delivery attempt.
func RecordNotificationAttempt(outcome string) {
	notificationAttempts.WithLabelValues(outcome).Inc()
}
