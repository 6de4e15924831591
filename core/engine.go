package core

import (
	"context"
	"time"
)

// TopicSubscription declares interest in one task topic when fetching work
// from the engine. LockDuration bounds how long a claimed task remains
// exclusively owned before the engine may re-offer it.
type TopicSubscription struct {
	Name         string
	LockDuration time.Duration
}

// FetchAndLockRequest parameterizes one poll against the engine's external
// task queue.
type FetchAndLockRequest struct {
	// WorkerID identifies this dispatcher instance; the engine records it as
	// the lock owner on every returned task.
	WorkerID string

	// MaxTasks caps how many tasks a single poll may claim.
	MaxTasks int

	// Topics lists the subscriptions to match against.
	Topics []TopicSubscription

	// LongPollTimeout, when non-zero, asks the engine to hold the request
	// open until work arrives or the timeout elapses.
	LongPollTimeout time.Duration
}

// EngineClient is the narrow protocol surface the dispatcher needs from the
// workflow engine.
//
// Implementations SHOULD:
//   - Respect context cancellation on every call (FetchAndLock may block for
//     the long-poll duration and must unblock on cancel)
//   - Return errors verbatim rather than retrying non-idempotent calls
//   - Treat Complete and Fail as terminal for the task's current lock
type EngineClient interface {
	// FetchAndLock claims up to req.MaxTasks tasks matching the given topic
	// subscriptions. Claimed tasks are exclusively leased to req.WorkerID.
	FetchAndLock(ctx context.Context, req FetchAndLockRequest) ([]ExternalTask, error)

	// Complete reports successful task execution with output variables.
	Complete(ctx context.Context, taskID string, output Variables) error

	// Fail reports a typed failure including the retry hint carried by the
	// failure itself. The engine's own retry/compensation logic governs what
	// happens next.
	Fail(ctx context.Context, taskID string, failure *TaskFailure) error

	// ProcessInstanceEnded reports whether the engine considers the given
	// process instance finished.
	ProcessInstanceEnded(ctx context.Context, processInstanceID string) (bool, error)

	// DefinitionXML fetches the raw XML of a process definition, typically
	// on a definition-cache miss. Returns ErrDefinitionNotFound when the id
	// is unknown to the engine.
	DefinitionXML(ctx context.Context, definitionID string) (string, error)
}
