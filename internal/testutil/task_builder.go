package testutil

import (
	"time"

	"github.com/hupe1980/taskmesh/core"
)

// TaskBuilder provides a fluent helper for constructing external tasks in
// tests. Example:
//
//	task := NewTaskBuilder("task-1").Instance("p1").Topic("summarize").Build()
//
// Chain only the parts you need; sensible defaults are applied.
type TaskBuilder struct {
	id           string
	topic        string
	instanceID   string
	definitionID string
	activityID   string
	retries      int
	variables    core.Variables
}

// NewTaskBuilder creates a builder for a task with the given id.
func NewTaskBuilder(id string) *TaskBuilder {
	return &TaskBuilder{id: id, topic: "default", instanceID: "inst-1", definitionID: "def-1", retries: 3}
}

// Topic sets the topic the task was published under (chainable).
func (b *TaskBuilder) Topic(t string) *TaskBuilder { b.topic = t; return b }

// Instance sets the owning process instance id (chainable).
func (b *TaskBuilder) Instance(id string) *TaskBuilder { b.instanceID = id; return b }

// Definition sets the process definition id (chainable).
func (b *TaskBuilder) Definition(id string) *TaskBuilder { b.definitionID = id; return b }

// Activity sets the activity (task node) id within the definition (chainable).
func (b *TaskBuilder) Activity(id string) *TaskBuilder { b.activityID = id; return b }

// Retries sets the remaining retry count reported by the engine (chainable).
func (b *TaskBuilder) Retries(n int) *TaskBuilder { b.retries = n; return b }

// Variable sets one input variable on the task (chainable).
func (b *TaskBuilder) Variable(key string, val any) *TaskBuilder {
	if b.variables == nil {
		b.variables = core.Variables{}
	}
	b.variables[key] = val
	return b
}

// Build constructs the core.ExternalTask value.
func (b *TaskBuilder) Build() core.ExternalTask {
	activity := b.activityID
	if activity == "" {
		activity = b.id
	}
	return core.ExternalTask{
		ID:                  b.id,
		Topic:               b.topic,
		ProcessInstanceID:   b.instanceID,
		ProcessDefinitionID: b.definitionID,
		ActivityID:          activity,
		Retries:             b.retries,
		LockExpiration:      time.Now().Add(time.Minute),
		Variables:           b.variables,
	}
}
