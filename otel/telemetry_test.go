//go:build unit

package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewTelemetry_WithProviders(t *testing.T) {
	t.Parallel()
	tp := sdktrace.NewTracerProvider()
	mp := sdkmetric.NewMeterProvider()
	defer tp.Shutdown(context.Background())
	defer mp.Shutdown(context.Background())

	tel, err := NewTelemetry(tp, mp, nil)
	require.NoError(t, err)
	require.NotNil(t, tel.Tracer)
	require.NotNil(t, tel.Propagator)
	require.NotNil(t, tel.MessagesConsumed)
	require.NotNil(t, tel.ReadRetries)
	require.NotNil(t, tel.ProcessDuration)
	require.NotNil(t, tel.WindowsFired)
	require.NotNil(t, tel.MessagesProduced)
	require.NotNil(t, tel.ProduceDuration)
	require.NotNil(t, tel.ResultsDropped)
	require.NotNil(t, tel.Commits)
	require.NotNil(t, tel.CommitDuration)
	require.NotNil(t, tel.Errors)
	require.NotNil(t, tel.InstancesActive)
}

func TestNewTelemetry_RecordsToProvider(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	tel, err := NewTelemetry(nil, mp, nil)
	require.NoError(t, err)

	tel.Commits.Add(context.Background(), 2, metric.WithAttributes(AttrCommitKind.String(CommitOffsets)))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	var found bool
	for _, m := range rm.ScopeMetrics[0].Metrics {
		if m.Name != "task.commits" {
			continue
		}
		sum, ok := m.Data.(metricdata.Sum[int64])
		require.True(t, ok)
		require.Len(t, sum.DataPoints, 1)
		require.Equal(t, int64(2), sum.DataPoints[0].Value)
		found = true
	}
	require.True(t, found, "task.commits not collected")
}

func TestNewTelemetry_NilProviders(t *testing.T) {
	t.Parallel()
	tel, err := NewTelemetry(nil, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, tel.Tracer)
	require.NotNil(t, tel.Propagator)
}

func TestNoop(t *testing.T) {
	t.Parallel()
	tel := Noop()
	require.NotNil(t, tel)
	require.NotNil(t, tel.Tracer)
}
