package calendar

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"calbot/internal/instrumentation"
	"calbot/internal/models"
)

// operationCounts returns calbot_calendar_operations_total keyed by "operation/status".
func operationCounts(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "calbot_calendar_operations_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				op, _ := dp.Attributes.Value(attribute.Key("operation"))
				status, _ := dp.Attributes.Value(attribute.Key("status"))
				backend, _ := dp.Attributes.Value(attribute.Key("backend"))
				assert.Equal(t, "memory", backend.AsString())
				counts[op.AsString()+"/"+status.AsString()] += dp.Value
			}
		}
	}
	return counts
}

func TestInstrumentedRecordsOperations(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(ctx) }()
	metrics, err := instrumentation.NewMetrics(mp.Meter("test"))
	require.NoError(t, err)

	p := NewInstrumented(NewMemoryProvider(), "memory", metrics, nil)

	_, err = p.AddEvent(ctx, newEvent(t, "Early", "2025-10-20T08:00:00", "2025-10-20T08:30:00", "UTC"))
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	require.NoError(t, p.Authenticate(ctx))
	created, err := p.AddEvent(ctx, newEvent(t, "Standup", "2025-10-20T09:00:00", "2025-10-20T09:15:00", "UTC"))
	require.NoError(t, err)
	_, err = p.GetEvent(ctx, created.ID)
	require.NoError(t, err)
	_, err = p.ListEvents(ctx, models.DefaultEventFilters())
	require.NoError(t, err)
	_, err = p.UpdateEvent(ctx, created.ID, *created)
	require.NoError(t, err)
	require.NoError(t, p.DeleteEvent(ctx, created.ID))
	assert.ErrorIs(t, p.DeleteEvent(ctx, created.ID), ErrNotFound)

	assert.Equal(t, map[string]int64{
		"add/error":            1,
		"authenticate/success": 1,
		"add/success":          1,
		"get/success":          1,
		"list/success":         1,
		"update/success":       1,
		"delete/success":       1,
		"delete/error":         1,
	}, operationCounts(t, reader))
}

func TestInstrumentedWithoutMetrics(t *testing.T) {
	p := NewInstrumented(NewMemoryProvider(), "memory", nil, nil)
	require.NoError(t, p.Authenticate(context.Background()))
	events, err := p.ListEvents(context.Background(), models.DefaultEventFilters())
	require.NoError(t, err)
	assert.Empty(t, events)
}
