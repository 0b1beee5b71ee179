//go:build unit

package otel

import (
	"context"
	"testing"

	"github.com/hugolhafner/go-tasks/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestHeadersCarrier_SetReplacesDuplicates(t *testing.T) {
	headers := []kafka.Header{
		{Key: "traceparent", Value: []byte("old-1")},
		{Key: "other", Value: []byte("x")},
		{Key: "traceparent", Value: []byte("old-2")},
	}
	carrier := HeadersCarrier{Headers: &headers}

	carrier.Set("traceparent", "new")

	assert.Len(t, headers, 3)
	assert.Equal(t, "new", string(headers[0].Value))
	assert.Equal(t, "new", string(headers[2].Value))
	assert.Equal(t, "new", carrier.Get("traceparent"))
	assert.Equal(t, "", carrier.Get("missing"))
}

func TestHeadersCarrier_SetAppends(t *testing.T) {
	var headers []kafka.Header
	carrier := HeadersCarrier{Headers: &headers}

	carrier.Set("tracestate", "k=v")

	assert.Equal(t, []string{"tracestate"}, carrier.Keys())
}

func TestTelemetry_InjectExtractRoundTrip(t *testing.T) {
	t.Parallel()

	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())

	tel, err := NewTelemetry(tp, nil, nil)
	require.NoError(t, err)

	ctx, span := tel.Tracer.Start(context.Background(), "dispatch")
	defer span.End()

	headers := tel.InjectHeaders(ctx, nil)
	_, ok := kafka.HeaderValue(headers, "traceparent")
	require.True(t, ok)

	extracted := trace.SpanContextFromContext(tel.ExtractHeaders(context.Background(), headers))
	require.True(t, extracted.IsValid())
	require.Equal(t, span.SpanContext().TraceID(), extracted.TraceID())
}

func TestTelemetry_InjectWithoutSpanAddsNothing(t *testing.T) {
	t.Parallel()

	headers := Noop().InjectHeaders(context.Background(), nil)
	require.Empty(t, headers)
}
