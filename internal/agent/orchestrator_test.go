package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calbot/internal/calendar"
	"calbot/internal/tools"
)

type scriptedModel struct {
	responses []*Message
	err       error
	requests  []ChatRequest
}

func (m *scriptedModel) Complete(_ context.Context, req ChatRequest) (*Message, error) {
	snapshot := ChatRequest{Messages: append([]Message(nil), req.Messages...), Tools: req.Tools}
	m.requests = append(m.requests, snapshot)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.responses) == 0 {
		return &Message{Role: RoleAssistant, Content: "done"}, nil
	}
	resp := m.responses[0]
	if len(m.responses) > 1 {
		m.responses = m.responses[1:]
	}
	return resp, nil
}

type fakeExecutor struct {
	calls []ToolCall
}

func (e *fakeExecutor) ListTools() []ToolDefinition {
	return []ToolDefinition{{Name: "list_calendar_events", Description: "list", Parameters: []byte(`{"type":"object"}`)}}
}

func (e *fakeExecutor) Execute(_ context.Context, call ToolCall) string {
	e.calls = append(e.calls, call)
	return "result of " + call.Name
}

func fixedClock() time.Time {
	return time.Date(2025, 10, 17, 9, 30, 0, 0, time.UTC)
}

func newTestOrchestrator(t *testing.T, model ChatModel, exec ToolExecutor, opts ...Option) *Orchestrator {
	t.Helper()
	opts = append([]Option{WithClock(fixedClock)}, opts...)
	o, err := New(model, exec, "Asia/Riyadh", opts...)
	require.NoError(t, err)
	return o
}

func TestNewRejectsUnknownTimezone(t *testing.T) {
	_, err := New(&scriptedModel{}, &fakeExecutor{}, "Mars/Olympus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid timezone")
}

func TestChatPlainAnswer(t *testing.T) {
	model := &scriptedModel{responses: []*Message{{Role: RoleAssistant, Content: "Hello!"}}}
	o := newTestOrchestrator(t, model, &fakeExecutor{})

	answer := o.Chat(context.Background(), "hi")
	assert.Equal(t, "Hello!", answer)

	require.Len(t, model.requests, 1)
	msgs := model.requests[0].Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleSystem, msgs[0].Role)
	assert.Equal(t, SystemPrompt, msgs[0].Content)
	assert.Equal(t, RoleUser, msgs[1].Role)
	assert.Len(t, model.requests[0].Tools, 1)

	assert.Equal(t, []HistoryEntry{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "Hello!"},
	}, o.History())
}

func TestChatContextMessageUsesUserTimezone(t *testing.T) {
	model := &scriptedModel{}
	o := newTestOrchestrator(t, model, &fakeExecutor{})

	o.Chat(context.Background(), "what's on today?")

	content := model.requests[0].Messages[1].Content
	// 09:30 UTC is 12:30 in Riyadh.
	assert.Equal(t,
		"Current date and time: Friday, October 17, 2025 at 12:30 PM\n\nUser's timezone: Asia/Riyadh\n\nUser request: what's on today?",
		content)
}

func TestChatHistoryCarriesRawMessages(t *testing.T) {
	model := &scriptedModel{responses: []*Message{
		{Role: RoleAssistant, Content: "first"},
		{Role: RoleAssistant, Content: "second"},
	}}
	o := newTestOrchestrator(t, model, &fakeExecutor{})

	o.Chat(context.Background(), "one")
	o.Chat(context.Background(), "two")

	require.Len(t, model.requests, 2)
	msgs := model.requests[1].Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, Message{Role: RoleUser, Content: "one"}, msgs[1])
	assert.Equal(t, Message{Role: RoleAssistant, Content: "first"}, msgs[2])
	assert.True(t, strings.HasSuffix(msgs[3].Content, "User request: two"))
}

func TestChatExecutesToolsAndFeedsResultsBack(t *testing.T) {
	model := &scriptedModel{responses: []*Message{
		{Role: RoleAssistant, ToolCalls: []ToolCall{
			{ID: "call_a", Name: "list_calendar_events", Arguments: `{}`},
			{Name: "get_calendar_event", Arguments: `{"event_id":"x"}`},
		}},
		{Role: RoleAssistant, Content: "You have one meeting."},
	}}
	exec := &fakeExecutor{}
	o := newTestOrchestrator(t, model, exec)

	answer := o.Chat(context.Background(), "what's on?")
	assert.Equal(t, "You have one meeting.", answer)

	require.Len(t, exec.calls, 2)
	assert.Equal(t, "call_a", exec.calls[0].ID)
	assert.NotEmpty(t, exec.calls[1].ID)

	require.Len(t, model.requests, 2)
	msgs := model.requests[1].Messages
	require.Len(t, msgs, 5)
	assert.Equal(t, RoleAssistant, msgs[2].Role)
	assert.Len(t, msgs[2].ToolCalls, 2)
	assert.Equal(t, Message{Role: RoleTool, Content: "result of list_calendar_events", ToolCallID: "call_a", Name: "list_calendar_events"}, msgs[3])
	assert.Equal(t, exec.calls[1].ID, msgs[4].ToolCallID)

	// Intermediate tool traffic is not kept in history.
	assert.Len(t, o.History(), 2)
}

func TestChatStopsAtIterationLimit(t *testing.T) {
	looping := &Message{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c", Name: "list_calendar_events", Arguments: `{}`}}}
	model := &scriptedModel{responses: []*Message{looping}}
	exec := &fakeExecutor{}
	o := newTestOrchestrator(t, model, exec)

	answer := o.Chat(context.Background(), "loop forever")
	assert.Equal(t, IterationLimitAnswer, answer)
	assert.Len(t, model.requests, DefaultMaxIterations)
	assert.Len(t, exec.calls, DefaultMaxIterations)
	assert.Len(t, o.History(), 2)
}

func TestChatIterationLimitKeepsLastText(t *testing.T) {
	model := &scriptedModel{responses: []*Message{
		{Role: RoleAssistant, Content: "checking", ToolCalls: []ToolCall{{ID: "c", Name: "list_calendar_events", Arguments: `{}`}}},
	}}
	o := newTestOrchestrator(t, model, &fakeExecutor{}, WithMaxIterations(2))

	assert.Equal(t, "checking", o.Chat(context.Background(), "loop"))
	assert.Len(t, model.requests, 2)
}

func TestChatModelErrorLeavesHistoryUnchanged(t *testing.T) {
	model := &scriptedModel{err: errors.New("connection refused")}
	o := newTestOrchestrator(t, model, &fakeExecutor{})

	answer := o.Chat(context.Background(), "hi")
	assert.True(t, strings.HasPrefix(answer, "An error occurred while processing your request: "))
	assert.Contains(t, answer, "connection refused")
	assert.Empty(t, o.History())
}

func TestChatCancelledContext(t *testing.T) {
	model := &scriptedModel{}
	o := newTestOrchestrator(t, model, &fakeExecutor{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	answer := o.Chat(ctx, "hi")
	assert.Contains(t, answer, "context canceled")
	assert.Empty(t, model.requests)
	assert.Empty(t, o.History())
}

func TestClearHistory(t *testing.T) {
	model := &scriptedModel{}
	o := newTestOrchestrator(t, model, &fakeExecutor{})

	o.Chat(context.Background(), "hi")
	require.NotEmpty(t, o.History())

	o.ClearHistory()
	assert.Empty(t, o.History())

	o.Chat(context.Background(), "again")
	assert.Len(t, model.requests[1].Messages, 2)
}

func TestToolExecutorWrapsToolset(t *testing.T) {
	provider := calendar.NewMemoryProvider()
	require.NoError(t, provider.Authenticate(context.Background()))

	exec, err := NewToolExecutor(tools.New(provider))
	require.NoError(t, err)

	defs := exec.ListTools()
	require.Len(t, defs, 5)
	assert.Equal(t, tools.AddEventTool, defs[0].Name)
	assert.Contains(t, string(defs[0].Parameters), `"title"`)

	out := exec.Execute(context.Background(), ToolCall{Name: tools.ListEventsTool, Arguments: `{}`})
	assert.Equal(t, "No events found matching your criteria.", out)
}
