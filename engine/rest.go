package engine

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sethvargo/go-retry"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
)

// Options configures the REST client.
type Options struct {
	// RequestTimeout bounds non-polling calls. FetchAndLock gets the long
	// poll timeout from the request itself plus a grace period.
	RequestTimeout time.Duration
	// RetryAttempts applies to idempotent GETs only; mutations are never
	// retried here so the engine's own semantics stay authoritative.
	RetryAttempts uint64
	// RetryBackoffBase seeds the exponential backoff between GET retries.
	RetryBackoffBase time.Duration
	// Logger receives request-level diagnostics.
	Logger logging.Logger
}

// RESTClient talks to the engine's REST API. Safe for concurrent use by
// multiple dispatch workers.
type RESTClient struct {
	client *resty.Client
	opts   Options
}

var _ core.EngineClient = (*RESTClient)(nil)

// NewRESTClient creates a client for the engine API rooted at baseURL
// (e.g. "http://localhost:8080/engine-rest").
func NewRESTClient(baseURL string, optFns ...func(o *Options)) (*RESTClient, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid engine base URL: %w", err)
	}
	if !parsed.IsAbs() || parsed.Host == "" {
		return nil, fmt.Errorf("engine base URL must be absolute with scheme and host, got: %s", baseURL)
	}

	opts := Options{
		RequestTimeout:   30 * time.Second,
		RetryAttempts:    2,
		RetryBackoffBase: 200 * time.Millisecond,
		Logger:           logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(opts.RequestTimeout).
		SetHeader("Accept", "application/json")

	return &RESTClient{client: client, opts: opts}, nil
}

type fetchAndLockBody struct {
	WorkerID             string         `json:"workerId"`
	MaxTasks             int            `json:"maxTasks"`
	AsyncResponseTimeout int64          `json:"asyncResponseTimeout,omitempty"`
	Topics               []topicSubBody `json:"topics"`
}

type topicSubBody struct {
	TopicName    string `json:"topicName"`
	LockDuration int64  `json:"lockDuration"`
}

// FetchAndLock claims up to req.MaxTasks tasks. The request is held open for
// req.LongPollTimeout when set; cancellation of ctx aborts the poll.
func (c *RESTClient) FetchAndLock(ctx context.Context, req core.FetchAndLockRequest) ([]core.ExternalTask, error) {
	body := fetchAndLockBody{
		WorkerID: req.WorkerID,
		MaxTasks: req.MaxTasks,
		Topics:   make([]topicSubBody, 0, len(req.Topics)),
	}
	if req.LongPollTimeout > 0 {
		body.AsyncResponseTimeout = req.LongPollTimeout.Milliseconds()
	}
	for _, t := range req.Topics {
		body.Topics = append(body.Topics, topicSubBody{TopicName: t.Name, LockDuration: t.LockDuration.Milliseconds()})
	}

	var tasks []core.ExternalTask
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&tasks).
		Post("/external-task/fetchAndLock")
	if err != nil {
		return nil, fmt.Errorf("fetch and lock: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch and lock: engine returned %s", resp.Status())
	}
	for i := range tasks {
		tasks[i].WorkerID = req.WorkerID
	}
	return tasks, nil
}

// Complete reports successful execution with output variables.
func (c *RESTClient) Complete(ctx context.Context, taskID string, output core.Variables) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]any{"variables": output}).
		Post("/external-task/" + url.PathEscape(taskID) + "/complete")
	if err != nil {
		return fmt.Errorf("complete task %s: %w", taskID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("complete task %s: engine returned %s", taskID, resp.Status())
	}
	return nil
}

// Fail reports a typed failure with the retry hint carried by the failure.
func (c *RESTClient) Fail(ctx context.Context, taskID string, failure *core.TaskFailure) error {
	body := map[string]any{
		"errorMessage": failure.Message,
		"errorDetails": failure.Error(),
		"retries":      failure.Retries,
	}
	if failure.RetryDelay > 0 {
		body["retryTimeout"] = failure.RetryDelay.Milliseconds()
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		Post("/external-task/" + url.PathEscape(taskID) + "/failure")
	if err != nil {
		return fmt.Errorf("fail task %s: %w", taskID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("fail task %s: engine returned %s", taskID, resp.Status())
	}
	return nil
}

// ProcessInstanceEnded reports whether the engine still knows the instance
// as running. A 404 on the instance resource means it has ended.
func (c *RESTClient) ProcessInstanceEnded(ctx context.Context, processInstanceID string) (bool, error) {
	var ended bool
	err := c.retryGet(ctx, func(ctx context.Context) error {
		resp, err := c.client.R().
			SetContext(ctx).
			Get("/process-instance/" + url.PathEscape(processInstanceID))
		if err != nil {
			return err
		}
		if resp.StatusCode() == http.StatusNotFound {
			ended = true
			return nil
		}
		if resp.IsError() {
			return fmt.Errorf("engine returned %s", resp.Status())
		}
		ended = false
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("query instance %s: %w", processInstanceID, err)
	}
	return ended, nil
}

type definitionXMLBody struct {
	ID     string `json:"id"`
	BPMXML string `json:"bpmn20Xml"`
}

// DefinitionXML fetches the raw XML of a process definition. A 404 maps to
// core.ErrDefinitionNotFound.
func (c *RESTClient) DefinitionXML(ctx context.Context, definitionID string) (string, error) {
	var body definitionXMLBody
	err := c.retryGet(ctx, func(ctx context.Context) error {
		resp, err := c.client.R().
			SetContext(ctx).
			SetResult(&body).
			Get("/process-definition/" + url.PathEscape(definitionID) + "/xml")
		if err != nil {
			return err
		}
		if resp.StatusCode() == http.StatusNotFound {
			// Definitive answer, not worth a retry.
			return nil
		}
		if resp.IsError() {
			return fmt.Errorf("engine returned %s", resp.Status())
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("fetch definition %s: %w", definitionID, err)
	}
	if body.BPMXML == "" {
		return "", fmt.Errorf("%w: %s", core.ErrDefinitionNotFound, definitionID)
	}
	return body.BPMXML, nil
}

// retryGet retries idempotent reads with exponential backoff. Transport and
// server errors are retryable; fn signalling success or a definitive answer
// ends the loop.
func (c *RESTClient) retryGet(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(c.opts.RetryAttempts, retry.NewExponential(c.opts.RetryBackoffBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			c.opts.Logger.Debug("engine read failed, may retry", "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
}
