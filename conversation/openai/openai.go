// Package openai implements core.ConversationStore on the OpenAI Assistants
// thread API, giving LLM-backed services durable multi-turn context keyed by
// thread id.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/hupe1980/taskmesh/core"
)

// Options configure the OpenAI conversation store.
type Options struct {
	// Metadata is attached to every created thread, useful for tracing
	// threads back to their orchestrator.
	Metadata map[string]string
}

// Store wraps the OpenAI thread endpoints behind core.ConversationStore.
type Store struct {
	client *openai.Client
	opts   Options
}

var _ core.ConversationStore = (*Store)(nil)

// NewStore creates a store using the default client (API key from env).
func NewStore(optFns ...func(o *Options)) *Store {
	client := openai.NewClient()
	return NewStoreFromClient(&client, optFns...)
}

// NewStoreFromClient creates a store from an existing client.
func NewStoreFromClient(client *openai.Client, optFns ...func(o *Options)) *Store {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Store{client: client, opts: opts}
}

// CreateThread provisions a new empty thread upstream.
func (s *Store) CreateThread(ctx context.Context) (core.ThreadHandle, error) {
	params := openai.BetaThreadNewParams{}
	if len(s.opts.Metadata) > 0 {
		metadata := make(openai.Metadata, len(s.opts.Metadata))
		for k, v := range s.opts.Metadata {
			metadata[k] = v
		}
		params.Metadata = metadata
	}
	thread, err := s.client.Beta.Threads.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai create thread: %w", err)
	}
	return core.ThreadHandle(thread.ID), nil
}

// ValidateThread checks the thread still exists. A 404 maps to (false, nil)
// so the caller replaces the mapping; any other error is surfaced.
func (s *Store) ValidateThread(ctx context.Context, handle core.ThreadHandle) (bool, error) {
	_, err := s.client.Beta.Threads.Get(ctx, string(handle))
	if err == nil {
		return true, nil
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == 404 {
		return false, nil
	}
	return false, fmt.Errorf("openai validate thread: %w", err)
}

// SendMessage appends a message to the thread.
func (s *Store) SendMessage(ctx context.Context, handle core.ThreadHandle, role, text string) error {
	messageRole := openai.BetaThreadMessageNewParamsRoleUser
	if role == "assistant" {
		messageRole = openai.BetaThreadMessageNewParamsRoleAssistant
	}
	_, err := s.client.Beta.Threads.Messages.New(ctx, string(handle), openai.BetaThreadMessageNewParams{
		Role: messageRole,
		Content: openai.BetaThreadMessageNewParamsContentUnion{
			OfString: openai.String(text),
		},
	})
	if err != nil {
		return fmt.Errorf("openai send message: %w", err)
	}
	return nil
}
