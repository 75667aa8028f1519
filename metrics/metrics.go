// Package metrics provides OpenTelemetry instruments for code executions and
// the meter provider that exports them (OTLP over HTTP or stdout).
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// InstrumentationName identifies the meter used by the service.
const InstrumentationName = "github.com/isdmx/execbox"

// Outcome labels recorded on execbox.executions.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeTimedOut  = "timed_out"
	OutcomeRejected  = "rejected"
	OutcomeError     = "error"
)

// Recorder records execution metrics.
type Recorder struct {
	executions metric.Int64Counter
	duration   metric.Float64Histogram
	active     metric.Int64UpDownCounter
	rejections metric.Int64Counter
	outputSize metric.Int64Histogram
}

// New creates a Recorder on the provider's meter.
func New(p *Provider) (*Recorder, error) {
	return NewRecorder(p.Meter())
}

// NewRecorder creates a Recorder on the given meter.
func NewRecorder(meter metric.Meter) (*Recorder, error) {
	r := &Recorder{}

	var err error

	r.executions, err = meter.Int64Counter(
		"execbox.executions",
		metric.WithDescription("Total number of code execution requests by outcome"),
	)
	if err != nil {
		return nil, err
	}

	r.duration, err = meter.Float64Histogram(
		"execbox.execution.duration",
		metric.WithDescription("Duration of sandboxed executions"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	r.active, err = meter.Int64UpDownCounter(
		"execbox.executions.active",
		metric.WithDescription("Number of executions currently running in a sandbox"),
	)
	if err != nil {
		return nil, err
	}

	r.rejections, err = meter.Int64Counter(
		"execbox.rejections",
		metric.WithDescription("Requests rejected before execution by reason"),
	)
	if err != nil {
		return nil, err
	}

	r.outputSize, err = meter.Int64Histogram(
		"execbox.output.lines",
		metric.WithDescription("Number of console lines captured per execution"),
	)
	if err != nil {
		return nil, err
	}

	return r, nil
}

// ExecutionStarted marks an execution as running. The returned func marks it done.
func (r *Recorder) ExecutionStarted(ctx context.Context, backend string) func() {
	if r == nil {
		return func() {}
	}
	attrs := metric.WithAttributes(attribute.String("backend", backend))
	r.active.Add(ctx, 1, attrs)
	return func() { r.active.Add(ctx, -1, attrs) }
}

// ExecutionFinished records the outcome and duration of one execution.
func (r *Recorder) ExecutionFinished(ctx context.Context, backend, outcome string, duration time.Duration, lines int) {
	if r == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("outcome", outcome),
	)
	r.executions.Add(ctx, 1, attrs)
	r.duration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	r.outputSize.Record(ctx, int64(lines), attrs)
}

// Rejected records a request refused by the validator.
func (r *Recorder) Rejected(ctx context.Context, reason string) {
	if r == nil {
		return
	}
	r.executions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", OutcomeRejected)))
	r.rejections.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
