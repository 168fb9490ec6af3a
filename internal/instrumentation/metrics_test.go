package instrumentation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collectNames(t *testing.T, reader *sdkmetric.ManualReader) []string {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var names []string
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names = append(names, m.Name)
		}
	}
	return names
}

func TestMetrics_RecordsEveryInstrument(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(ctx) }()

	m, err := NewMetrics(mp.Meter("test"))
	require.NoError(t, err)

	m.RecordToolInvocation(ctx, "add_calendar_event", StatusSuccess, 20*time.Millisecond)
	m.RecordLLMRequest(ctx, "llama3.1", StatusError, time.Second)
	m.RecordCalendarOperation(ctx, "google", "list", StatusSuccess, 100*time.Millisecond)
	m.RecordChatTurn(ctx, "console", StatusSuccess, 2)

	names := collectNames(t, reader)
	assert.ElementsMatch(t, []string{
		"calbot_tool_invocations_total",
		"calbot_tool_duration_seconds",
		"calbot_llm_requests_total",
		"calbot_llm_request_duration_seconds",
		"calbot_calendar_operations_total",
		"calbot_calendar_operation_duration_seconds",
		"calbot_chat_turns_total",
		"calbot_tool_rounds",
	}, names)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	ctx := context.Background()
	var m *Metrics
	m.RecordToolInvocation(ctx, "x", StatusSuccess, time.Millisecond)
	m.RecordLLMRequest(ctx, "x", StatusSuccess, time.Millisecond)
	m.RecordCalendarOperation(ctx, "memory", "add", StatusSuccess, time.Millisecond)
	m.RecordChatTurn(ctx, "console", StatusSuccess, 0)

	empty := &Metrics{}
	empty.RecordToolInvocation(ctx, "x", StatusSuccess, time.Millisecond)
}

func TestProvider_Disabled(t *testing.T) {
	p, err := NewProvider("calbot", false)
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	assert.NotNil(t, p.Metrics())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestProvider_ServesPrometheus(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p, err := NewProvider("calbot", true)
	require.NoError(t, err)
	defer func() { _ = p.Shutdown(ctx) }()

	p.Metrics().RecordToolInvocation(ctx, "list_calendar_events", StatusSuccess, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "calbot_tool_invocations_total")
}

func TestProvider_Router(t *testing.T) {
	p, err := NewProvider("calbot", false)
	require.NoError(t, err)
	router := p.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/metrics", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
