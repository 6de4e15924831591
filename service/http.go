package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/hupe1980/taskmesh/core"
)

// HTTPOptions configures an HTTPHandler.
type HTTPOptions struct {
	// Timeout bounds one invocation round trip. The dispatcher additionally
	// bounds calls with its own per-call timeout.
	Timeout time.Duration
	// AssistantID, when set, marks the handler conversational: the
	// dispatcher resolves a thread per process instance and the handle is
	// forwarded in the request payload.
	AssistantID string
	// Headers are added to every request (auth tokens, tenant ids).
	Headers map[string]string
}

// invocationPayload is the request body posted to the backend service.
type invocationPayload struct {
	TaskID            string            `json:"taskId"`
	ProcessInstanceID string            `json:"processInstanceId,omitempty"`
	Topic             string            `json:"topic"`
	Variables         core.Variables    `json:"variables"`
	Properties        []core.Property   `json:"properties"`
	Thread            core.ThreadHandle `json:"thread,omitempty"`
}

// invocationReply is the response body: either output variables or an error
// payload.
type invocationReply struct {
	Variables core.Variables `json:"variables"`
	Error     string         `json:"error"`
}

// HTTPHandler invokes a backend service over HTTP request/response: input is
// the task variables plus the resolved extension properties (and the thread
// handle for conversational services), output a mapping of result variables.
type HTTPHandler struct {
	name     string
	client   *resty.Client
	endpoint string
	opts     HTTPOptions
}

var (
	_ core.ServiceHandler = (*HTTPHandler)(nil)
	_ core.Conversational = (*HTTPHandler)(nil)
)

// NewHTTPHandler creates a handler serving the given service name at the
// given endpoint URL.
func NewHTTPHandler(name, endpoint string, optFns ...func(o *HTTPOptions)) *HTTPHandler {
	opts := HTTPOptions{Timeout: 60 * time.Second}
	for _, fn := range optFns {
		fn(&opts)
	}
	client := resty.New().SetTimeout(opts.Timeout)
	for k, v := range opts.Headers {
		client.SetHeader(k, v)
	}
	return &HTTPHandler{name: name, client: client, endpoint: endpoint, opts: opts}
}

// Name returns the declared service name this handler serves.
func (h *HTTPHandler) Name() string { return h.name }

// AssistantID implements core.Conversational. Empty means the handler is
// treated as non-conversational.
func (h *HTTPHandler) AssistantID() string { return h.opts.AssistantID }

// Invoke posts the invocation payload and returns the service's output
// variables. An error payload in the response surfaces as an error.
func (h *HTTPHandler) Invoke(ctx context.Context, inv core.Invocation) (core.Variables, error) {
	payload := invocationPayload{
		TaskID:            inv.Task.ID,
		ProcessInstanceID: inv.Task.ProcessInstanceID,
		Topic:             inv.Task.Topic,
		Variables:         inv.Task.Variables,
		Properties:        inv.Descriptor.Properties,
		Thread:            inv.Thread,
	}
	var reply invocationReply
	resp, err := h.client.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&reply).
		Post(h.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invoke %s: %w", h.name, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("invoke %s: service returned %s", h.name, resp.Status())
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("invoke %s: %s", h.name, reply.Error)
	}
	return reply.Variables, nil
}
