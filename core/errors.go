package core

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDefinitionNotFound is returned when a process definition id is
	// unknown to the engine. Fatal for the task: reported, not retried.
	ErrDefinitionNotFound = errors.New("process definition not found")

	// ErrRoutingUnresolved is returned when no registered handler matches a
	// task's declared service coordinates. Fatal for the task.
	ErrRoutingUnresolved = errors.New("no handler matches declared service")

	// ErrMalformedDefinition is returned when definition XML fails to parse.
	// The entry is never cached; the raw fetch is retried on next access.
	ErrMalformedDefinition = errors.New("malformed process definition")

	// ErrThreadNotFound is returned by conversation stores when a handle no
	// longer resolves upstream.
	ErrThreadNotFound = errors.New("conversation thread not found")
)

// FailureKind classifies a task failure for the engine's audit trail and
// drives the retryable flag.
type FailureKind string

const (
	FailureDefinitionNotFound   FailureKind = "DEFINITION_NOT_FOUND"
	FailureRoutingUnresolved    FailureKind = "ROUTING_UNRESOLVED"
	FailureServiceUnavailable   FailureKind = "SERVICE_UNAVAILABLE"
	FailureServiceTimeout       FailureKind = "SERVICE_TIMEOUT"
	FailureConversationCreation FailureKind = "CONVERSATION_CREATION_FAILED"
	FailureCacheCorruption      FailureKind = "CACHE_CORRUPTION"
)

// Retryable reports whether failures of this kind are transient and worth a
// retry hint. Fatal kinds are reported to the engine without one.
func (k FailureKind) Retryable() bool {
	switch k {
	case FailureServiceUnavailable, FailureServiceTimeout, FailureConversationCreation:
		return true
	default:
		return false
	}
}

// TaskFailure is the structured failure reported back to the engine. It
// carries enough detail (task id, process instance id, kind, retryable
// flag) for the engine's own visualization and audit trail.
type TaskFailure struct {
	TaskID            string        `json:"taskId"`
	ProcessInstanceID string        `json:"processInstanceId"`
	Kind              FailureKind   `json:"kind"`
	Message           string        `json:"message"`
	Retryable         bool          `json:"retryable"`
	Retries           int           `json:"retries"`
	RetryDelay        time.Duration `json:"retryDelay"`

	cause error
}

// NewTaskFailure builds a failure for the given task. The retryable flag
// follows the kind; retry count and delay hints are filled in by the
// dispatcher from its configuration.
func NewTaskFailure(task ExternalTask, kind FailureKind, cause error) *TaskFailure {
	msg := string(kind)
	if cause != nil {
		msg = cause.Error()
	}
	return &TaskFailure{
		TaskID:            task.ID,
		ProcessInstanceID: task.ProcessInstanceID,
		Kind:              kind,
		Message:           msg,
		Retryable:         kind.Retryable(),
		cause:             cause,
	}
}

// Error implements the error interface.
func (f *TaskFailure) Error() string {
	return fmt.Sprintf("task %s failed (%s): %s", f.TaskID, f.Kind, f.Message)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (f *TaskFailure) Unwrap() error { return f.cause }
