package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"calbot/internal/instrumentation"
	"calbot/internal/logging"
)

// DefaultMaxIterations bounds the model rounds per user message.
const DefaultMaxIterations = 5

// Orchestrator holds one conversation with the model and runs its tool rounds.
// Chat calls are serialized.
type Orchestrator struct {
	model         ChatModel
	executor      ToolExecutor
	timezone      string
	location      *time.Location
	systemPrompt  string
	maxIterations int
	transport     string
	now           func() time.Time
	logger        *slog.Logger
	metrics       *instrumentation.Metrics

	mu      sync.Mutex
	history []Message
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithClock overrides the time source used for the date context.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

func WithMaxIterations(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxIterations = n
		}
	}
}

func WithSystemPrompt(prompt string) Option {
	return func(o *Orchestrator) {
		o.systemPrompt = prompt
	}
}

func WithMetrics(metrics *instrumentation.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = metrics
	}
}

// WithTransport names the surface driving this conversation, for metrics.
func WithTransport(name string) Option {
	return func(o *Orchestrator) {
		o.transport = name
	}
}

// New creates an orchestrator for a user in the given IANA timezone.
func New(model ChatModel, executor ToolExecutor, timezone string, opts ...Option) (*Orchestrator, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}
	o := &Orchestrator{
		model:         model,
		executor:      executor,
		timezone:      timezone,
		location:      loc,
		systemPrompt:  SystemPrompt,
		maxIterations: DefaultMaxIterations,
		transport:     "unknown",
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.WithComponent(o.logger, "agent")
	return o, nil
}

// Timezone returns the user's IANA timezone name.
func (o *Orchestrator) Timezone() string {
	return o.timezone
}

// Chat sends one user message through the model and returns the final answer.
// Failures are reported in the returned text and leave the history untouched.
func (o *Orchestrator) Chat(ctx context.Context, userMessage string) string {
	o.mu.Lock()
	defer o.mu.Unlock()

	answer, rounds, err := o.run(ctx, userMessage)
	if err != nil {
		o.logger.Error("Chat failed", slog.Int("rounds", rounds), logging.Err(err))
		o.metrics.RecordChatTurn(ctx, o.transport, instrumentation.StatusError, rounds)
		return fmt.Sprintf("An error occurred while processing your request: %v", err)
	}

	o.history = append(o.history,
		Message{Role: RoleUser, Content: userMessage},
		Message{Role: RoleAssistant, Content: answer},
	)
	o.metrics.RecordChatTurn(ctx, o.transport, instrumentation.StatusSuccess, rounds)
	return answer
}

func (o *Orchestrator) run(ctx context.Context, userMessage string) (string, int, error) {
	messages := make([]Message, 0, len(o.history)+2)
	messages = append(messages, Message{Role: RoleSystem, Content: o.systemPrompt})
	messages = append(messages, o.history...)
	messages = append(messages, Message{
		Role:    RoleUser,
		Content: ContextMessage(o.now().In(o.location), o.timezone, userMessage),
	})

	defs := o.executor.ListTools()
	var lastText string

	for round := 1; round <= o.maxIterations; round++ {
		if err := ctx.Err(); err != nil {
			return "", round - 1, err
		}

		resp, err := o.model.Complete(ctx, ChatRequest{Messages: messages, Tools: defs})
		if err != nil {
			return "", round, fmt.Errorf("model request failed: %w", err)
		}
		if resp.Content != "" {
			lastText = resp.Content
		}

		if len(resp.ToolCalls) == 0 {
			o.logger.Debug("Model answered", slog.Int("rounds", round))
			return resp.Content, round, nil
		}

		assistant := *resp
		assistant.Role = RoleAssistant
		assistant.ToolCalls = make([]ToolCall, len(resp.ToolCalls))
		for i, call := range resp.ToolCalls {
			if call.ID == "" {
				call.ID = fmt.Sprintf("call_%d_%d", round, i)
			}
			assistant.ToolCalls[i] = call
		}
		messages = append(messages, assistant)

		for _, call := range assistant.ToolCalls {
			o.logger.Info("Executing tool",
				logging.Tool(call.Name),
				slog.String("args", logging.Truncate(call.Arguments, 200)),
			)
			result := o.executor.Execute(ctx, call)
			messages = append(messages, Message{
				Role:       RoleTool,
				Content:    result,
				ToolCallID: call.ID,
				Name:       call.Name,
			})
		}
	}

	o.logger.Warn("Iteration limit reached", slog.Int("max_iterations", o.maxIterations))
	if lastText == "" {
		lastText = IterationLimitAnswer
	}
	return lastText, o.maxIterations, nil
}

// ClearHistory drops the conversation history.
func (o *Orchestrator) ClearHistory() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.history = nil
}

// History returns the conversation so far as role/content pairs.
func (o *Orchestrator) History() []HistoryEntry {
	o.mu.Lock()
	defer o.mu.Unlock()
	entries := make([]HistoryEntry, 0, len(o.history))
	for _, m := range o.history {
		entries = append(entries, HistoryEntry{Role: m.Role, Content: m.Content})
	}
	return entries
}
