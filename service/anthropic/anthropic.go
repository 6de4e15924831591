// Package anthropic provides a service handler executing LLM prompt tasks
// via the Anthropic Messages API. The handler is registered like any other
// backend service; the prompt comes from the task's extension properties and
// input variables.
package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hupe1980/taskmesh/core"
)

// Extension properties and variables consumed by the handler.
const (
	propPrompt = "prompt"
	propModel  = "model"
	varInput   = "input"
	varOutput  = "completion"
)

// Options configures the Anthropic handler (service name, model id, max
// tokens, API key). Extend via functional options to preserve stability.
type Options struct {
	Name        string
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Handler wraps the Anthropic Messages API behind core.ServiceHandler.
type Handler struct {
	client *anthropic.Client
	opts   Options
}

var _ core.ServiceHandler = (*Handler)(nil)

// NewHandler creates a handler using the official client.
func NewHandler(optFns ...func(o *Options)) *Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Handler{client: &client, opts: opts}
}

// NewHandlerFromClient creates a handler from an existing client.
func NewHandlerFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Handler{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Name:        "anthropic-llm",
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

// Name returns the service name this handler is registered under.
func (h *Handler) Name() string { return h.opts.Name }

// Invoke runs the task's prompt against the model and returns the completion
// as the "completion" output variable.
func (h *Handler) Invoke(ctx context.Context, inv core.Invocation) (core.Variables, error) {
	prompt, ok := inv.Descriptor.Property(propPrompt)
	if !ok {
		return nil, fmt.Errorf("task %s declares no %q property", inv.Task.ID, propPrompt)
	}

	model := h.opts.Model
	if m, ok := inv.Descriptor.Property(propModel); ok {
		model = anthropic.Model(m)
	}

	var messages []anthropic.MessageParam
	if input, ok := inv.Task.Variables[varInput].(string); ok && input != "" {
		messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(input)))
	}
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)))

	resp, err := h.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       model,
		Messages:    messages,
		MaxTokens:   h.opts.MaxTokens,
		Temperature: anthropic.Float(h.opts.Temperature),
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.AsText().Text
		}
	}

	return core.Variables{
		varOutput:     text,
		"model":       string(resp.Model),
		"stop_reason": string(resp.StopReason),
	}, nil
}
