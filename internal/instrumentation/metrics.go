package instrumentation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	attrTool      = "tool"
	attrStatus    = "status"
	attrModel     = "model"
	attrBackend   = "backend"
	attrOperation = "operation"
	attrTransport = "transport"
)

// Status values shared by every recorder.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Metrics records assistant activity. A nil or zero Metrics is a no-op recorder.
type Metrics struct {
	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	llmRequestsTotal metric.Int64Counter
	llmDuration      metric.Float64Histogram

	calendarOperationsTotal   metric.Int64Counter
	calendarOperationDuration metric.Float64Histogram

	chatTurnsTotal metric.Int64Counter
	toolRounds     metric.Int64Histogram
}

// NewMetrics creates every instrument on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.toolInvocationsTotal, err = meter.Int64Counter(
		"calbot_tool_invocations_total",
		metric.WithDescription("Total number of calendar tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create calbot_tool_invocations_total counter: %w", err)
	}

	m.toolDuration, err = meter.Float64Histogram(
		"calbot_tool_duration_seconds",
		metric.WithDescription("Calendar tool execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create calbot_tool_duration_seconds histogram: %w", err)
	}

	m.llmRequestsTotal, err = meter.Int64Counter(
		"calbot_llm_requests_total",
		metric.WithDescription("Total number of language model completion requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create calbot_llm_requests_total counter: %w", err)
	}

	m.llmDuration, err = meter.Float64Histogram(
		"calbot_llm_request_duration_seconds",
		metric.WithDescription("Language model completion latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create calbot_llm_request_duration_seconds histogram: %w", err)
	}

	m.calendarOperationsTotal, err = meter.Int64Counter(
		"calbot_calendar_operations_total",
		metric.WithDescription("Total number of calendar backend operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create calbot_calendar_operations_total counter: %w", err)
	}

	m.calendarOperationDuration, err = meter.Float64Histogram(
		"calbot_calendar_operation_duration_seconds",
		metric.WithDescription("Calendar backend operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create calbot_calendar_operation_duration_seconds histogram: %w", err)
	}

	m.chatTurnsTotal, err = meter.Int64Counter(
		"calbot_chat_turns_total",
		metric.WithDescription("Total number of conversational turns handled"),
		metric.WithUnit("{turn}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create calbot_chat_turns_total counter: %w", err)
	}

	m.toolRounds, err = meter.Int64Histogram(
		"calbot_tool_rounds",
		metric.WithDescription("Tool invocation rounds used per turn"),
		metric.WithUnit("{round}"),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 3, 4, 5),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create calbot_tool_rounds histogram: %w", err)
	}

	return m, nil
}

// RecordToolInvocation records one tool call with its outcome and duration.
func (m *Metrics) RecordToolInvocation(ctx context.Context, tool, status string, duration time.Duration) {
	if m == nil || m.toolInvocationsTotal == nil || m.toolDuration == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrTool, tool),
		attribute.String(attrStatus, status),
	)
	m.toolInvocationsTotal.Add(ctx, 1, attrs)
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordLLMRequest records one completion request against model.
func (m *Metrics) RecordLLMRequest(ctx context.Context, model, status string, duration time.Duration) {
	if m == nil || m.llmRequestsTotal == nil || m.llmDuration == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrModel, model),
		attribute.String(attrStatus, status),
	)
	m.llmRequestsTotal.Add(ctx, 1, attrs)
	m.llmDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordCalendarOperation records one backend call.
//
// Parameters:
//   - backend: "google", "caldav" or "memory"
//   - operation: add, get, list, update, delete or authenticate
//   - status: StatusSuccess or StatusError
func (m *Metrics) RecordCalendarOperation(ctx context.Context, backend, operation, status string, duration time.Duration) {
	if m == nil || m.calendarOperationsTotal == nil || m.calendarOperationDuration == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrBackend, backend),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	)
	m.calendarOperationsTotal.Add(ctx, 1, attrs)
	m.calendarOperationDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordChatTurn records a finished turn and how many tool rounds it used.
func (m *Metrics) RecordChatTurn(ctx context.Context, transport, status string, rounds int) {
	if m == nil || m.chatTurnsTotal == nil || m.toolRounds == nil {
		return
	}
	m.chatTurnsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrTransport, transport),
		attribute.String(attrStatus, status),
	))
	m.toolRounds.Record(ctx, int64(rounds))
}
