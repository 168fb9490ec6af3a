package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sashabaranov/go-openai/jsonschema"

	"calbot/internal/calendar"
	"calbot/internal/instrumentation"
	"calbot/internal/logging"
)

// Tool names exposed to the language model.
const (
	AddEventTool    = "add_calendar_event"
	ListEventsTool  = "list_calendar_events"
	GetEventTool    = "get_calendar_event"
	UpdateEventTool = "update_calendar_event"
	DeleteEventTool = "delete_calendar_event"
)

// Tool describes one callable operation for the model.
type Tool struct {
	Name        string
	Description string
	Parameters  jsonschema.Definition

	invoke func(ctx context.Context, args json.RawMessage) Result
}

// Result is the outcome of a tool call. Failed results still carry a readable Text.
type Result struct {
	Text   string
	Failed bool
}

// Toolset binds the calendar tools to a Provider.
type Toolset struct {
	provider calendar.Provider
	logger   *slog.Logger
	metrics  *instrumentation.Metrics
	tools    []Tool
}

// Option configures a Toolset.
type Option func(*Toolset)

func WithLogger(logger *slog.Logger) Option {
	return func(t *Toolset) {
		t.logger = logger
	}
}

func WithMetrics(metrics *instrumentation.Metrics) Option {
	return func(t *Toolset) {
		t.metrics = metrics
	}
}

// New builds the five calendar tools over provider.
func New(provider calendar.Provider, opts ...Option) *Toolset {
	t := &Toolset{provider: provider}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = logging.WithComponent(t.logger, "tools")

	t.tools = []Tool{
		{
			Name:        AddEventTool,
			Description: "Add a new event to the user's calendar. Times are local to the given timezone and must not include an offset.",
			Parameters:  addEventSchema(),
			invoke:      bind(t, AddEventTool, "add event", t.addEvent),
		},
		{
			Name:        ListEventsTool,
			Description: "List calendar events, optionally within a date range or matching a search query.",
			Parameters:  listEventsSchema(),
			invoke:      bind(t, ListEventsTool, "list events", t.listEvents),
		},
		{
			Name:        GetEventTool,
			Description: "Get the full details of one calendar event by its ID.",
			Parameters:  eventIDSchema("The ID of the event to retrieve"),
			invoke:      bind(t, GetEventTool, "get event", t.getEvent),
		},
		{
			Name:        UpdateEventTool,
			Description: "Update an existing calendar event. Only the fields provided are changed.",
			Parameters:  updateEventSchema(),
			invoke:      bind(t, UpdateEventTool, "update event", t.updateEvent),
		},
		{
			Name:        DeleteEventTool,
			Description: "Delete an event from the calendar. Confirm with the user before calling this.",
			Parameters:  eventIDSchema("The ID of the event to delete"),
			invoke:      bind(t, DeleteEventTool, "delete event", t.deleteEvent),
		},
	}
	return t
}

// Tools returns the tool definitions in a stable order.
func (t *Toolset) Tools() []Tool {
	out := make([]Tool, len(t.tools))
	copy(out, t.tools)
	return out
}

// Call runs the named tool with JSON arguments and returns its text result.
func (t *Toolset) Call(ctx context.Context, name, arguments string) string {
	return t.Invoke(ctx, name, arguments).Text
}

// Invoke runs the named tool and reports whether it failed.
func (t *Toolset) Invoke(ctx context.Context, name, arguments string) Result {
	for _, tool := range t.tools {
		if tool.Name == name {
			return tool.invoke(ctx, json.RawMessage(arguments))
		}
	}
	t.logger.Warn("Model requested unknown tool", logging.Tool(name))
	return Result{Text: fmt.Sprintf("Unknown tool: %s", name), Failed: true}
}

// bind decodes the arguments into In, runs fn, and logs and records the outcome.
func bind[In any](t *Toolset, name, verb string, fn func(context.Context, In) (string, error)) func(context.Context, json.RawMessage) Result {
	return func(ctx context.Context, raw json.RawMessage) Result {
		start := time.Now()
		var in In
		text, err := "", decodeArguments(raw, &in)
		if err == nil {
			text, err = fn(ctx, in)
		}
		elapsed := time.Since(start)

		if err != nil {
			t.logger.Warn("Tool call failed", logging.Tool(name), logging.Err(err), "duration", elapsed)
			t.metrics.RecordToolInvocation(ctx, name, instrumentation.StatusError, elapsed)
			return Result{Text: failure(verb, err), Failed: true}
		}
		t.logger.Info("Tool call succeeded", logging.Tool(name), "duration", elapsed)
		t.metrics.RecordToolInvocation(ctx, name, instrumentation.StatusSuccess, elapsed)
		return Result{Text: text}
	}
}

type argumentError struct {
	err error
}

func (e *argumentError) Error() string {
	return fmt.Sprintf("invalid arguments: %v", e.err)
}

func (e *argumentError) Unwrap() error {
	return e.err
}

func decodeArguments(raw json.RawMessage, v any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &argumentError{err: err}
	}
	return nil
}

// failure renders err as the text the model sees.
func failure(verb string, err error) string {
	detail := err.Error()
	var opErr *calendar.OperationError
	switch {
	case errors.Is(err, calendar.ErrNotAuthenticated):
		detail = "Not authenticated with calendar service"
	case errors.As(err, &opErr):
		detail = opErr.Err.Error()
	}
	return fmt.Sprintf("Failed to %s: %s", verb, detail)
}
