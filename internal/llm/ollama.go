// Package llm talks to an Ollama server through its OpenAI-compatible API.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	gobreaker "github.com/sony/gobreaker/v2"

	"calbot/internal/agent"
	"calbot/internal/instrumentation"
	"calbot/internal/logging"
)

const defaultTimeout = 120 * time.Second

// ErrNoChoices is returned when the server answers without a message.
var ErrNoChoices = errors.New("model returned no choices")

// OllamaClient is a chat model backed by Ollama with function calling enabled.
type OllamaClient struct {
	model       string
	temperature float32
	httpClient  *http.Client
	logger      *slog.Logger
	metrics     *instrumentation.Metrics

	api     *openai.Client
	breaker *gobreaker.CircuitBreaker[openai.ChatCompletionResponse]
}

// Option configures an OllamaClient.
type Option func(*OllamaClient)

func WithHTTPClient(c *http.Client) Option {
	return func(o *OllamaClient) {
		o.httpClient = c
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *OllamaClient) {
		o.logger = l
	}
}

func WithMetrics(m *instrumentation.Metrics) Option {
	return func(o *OllamaClient) {
		o.metrics = m
	}
}

// NewOllamaClient creates a client for the Ollama server at baseURL, e.g. http://localhost:11434.
func NewOllamaClient(baseURL, model string, temperature float64, opts ...Option) *OllamaClient {
	c := &OllamaClient{
		model:       model,
		temperature: requestTemperature(temperature),
		httpClient:  &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.WithComponent(c.logger, "llm")

	cfg := openai.DefaultConfig("ollama")
	cfg.BaseURL = strings.TrimSuffix(baseURL, "/") + "/v1"
	cfg.HTTPClient = c.httpClient
	c.api = openai.NewClientWithConfig(cfg)

	c.breaker = gobreaker.NewCircuitBreaker[openai.ChatCompletionResponse](gobreaker.Settings{
		Name:        "ollama-" + model,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("Circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			// Cancelled requests do not count as failures.
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return c
}

// requestTemperature maps 0 to the smallest positive float32; the request field is omitempty.
func requestTemperature(t float64) float32 {
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

// Complete sends the conversation and tool definitions and returns the assistant reply.
func (c *OllamaClient) Complete(ctx context.Context, req agent.ChatRequest) (*agent.Message, error) {
	start := time.Now()
	resp, err := c.breaker.Execute(func() (openai.ChatCompletionResponse, error) {
		return c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.model,
			Messages:    toOpenAIMessages(req.Messages),
			Tools:       toOpenAITools(req.Tools),
			Temperature: c.temperature,
		})
	})
	elapsed := time.Since(start)

	if err != nil {
		c.metrics.RecordLLMRequest(ctx, c.model, instrumentation.StatusError, elapsed)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("language model unavailable (circuit breaker for %s): %w", c.model, err)
		}
		return nil, fmt.Errorf("chat completion with %s failed: %w", c.model, err)
	}
	c.metrics.RecordLLMRequest(ctx, c.model, instrumentation.StatusSuccess, elapsed)

	if len(resp.Choices) == 0 {
		return nil, ErrNoChoices
	}
	msg := fromOpenAIMessage(resp.Choices[0].Message)
	c.logger.Debug("Chat completion",
		"duration", elapsed,
		"tool_calls", len(msg.ToolCalls),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return msg, nil
}

func toOpenAIMessages(msgs []agent.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		om := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, om)
	}
	return out
}

func toOpenAITools(defs []agent.ToolDefinition) []openai.Tool {
	if len(defs) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(defs))
	for _, d := range defs {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		})
	}
	return out
}

func fromOpenAIMessage(m openai.ChatCompletionMessage) *agent.Message {
	msg := &agent.Message{
		Role:    agent.RoleAssistant,
		Content: m.Content,
	}
	for _, tc := range m.ToolCalls {
		args := tc.Function.Arguments
		if strings.TrimSpace(args) == "" {
			args = "{}"
		}
		msg.ToolCalls = append(msg.ToolCalls, agent.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return msg
}
