package otel

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	traceNoop "go.opentelemetry.io/otel/trace/noop"
)

const scopeName = "github.com/hugolhafner/go-tasks"

// Telemetry holds all OpenTelemetry instruments for the task runtime
// When no providers are configured, all instruments are noops with zero overhead
type Telemetry struct {
	Tracer     trace.Tracer
	Propagator propagation.TextMapPropagator

	// Reader metrics
	MessagesConsumed metric.Int64Counter
	ReadRetries      metric.Int64Counter

	// Processing metrics
	ProcessDuration metric.Float64Histogram
	WindowsFired    metric.Int64Counter

	// Dispatch metrics
	MessagesProduced metric.Int64Counter
	ProduceDuration  metric.Float64Histogram
	ResultsDropped   metric.Int64Counter

	// Commit metrics
	Commits        metric.Int64Counter
	CommitDuration metric.Float64Histogram

	// Error metrics
	Errors metric.Int64Counter

	// Runtime state metrics
	InstancesActive metric.Int64UpDownCounter
}

// NewTelemetry creates a Telemetry instance from the given providers.
// all providers are optional and defaulted to noops if nil
func NewTelemetry(tp trace.TracerProvider, mp metric.MeterProvider, prop propagation.TextMapPropagator) (
	*Telemetry, error,
) {
	if tp == nil {
		tp = traceNoop.NewTracerProvider()
	}
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	if prop == nil {
		prop = propagation.TraceContext{}
	}

	meter := mp.Meter(scopeName)
	t := &Telemetry{
		Tracer:     tp.Tracer(scopeName),
		Propagator: prop,
	}

	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&t.MessagesConsumed, "messaging.consumer.messages", "Records taken off the reader queue"},
		{&t.ReadRetries, "task.reader.retries", "Transient read failures retried with backoff"},
		{&t.WindowsFired, "task.window.fired", "Window invocations"},
		{&t.MessagesProduced, "messaging.producer.messages", "Results published"},
		{&t.ResultsDropped, "task.results.dropped", "Results dropped for a missing key"},
		{&t.Commits, "task.commits", "Offset and state commits"},
		{&t.Errors, "task.errors", "Fatal errors by phase"},
	}
	for _, c := range counters {
		if *c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&t.ProcessDuration, "task.process.duration", "Time per process call including dispatch"},
		{&t.ProduceDuration, "task.produce.duration", "Time per Send() call"},
		{&t.CommitDuration, "task.commit.duration", "Time to persist offsets and state"},
	}
	for _, h := range histograms {
		if *h.dst, err = meter.Float64Histogram(h.name, metric.WithDescription(h.desc), metric.WithUnit("s")); err != nil {
			return nil, err
		}
	}

	if t.InstancesActive, err = meter.Int64UpDownCounter(
		"task.instances.active",
		metric.WithDescription("Running task instances (task, partition)"),
	); err != nil {
		return nil, err
	}

	return t, nil
}

// Noop returns a Telemetry instance with all noop instruments
func Noop() *Telemetry {
	t, _ := NewTelemetry(nil, nil, nil)
	return t
}
