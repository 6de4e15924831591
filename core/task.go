package core

import "time"

// Variables is the generic key/value payload exchanged with the engine and
// with backend services (task input variables, service output variables).
type Variables map[string]any

// Clone returns a shallow copy so callers can mutate results without
// affecting the original map.
func (v Variables) Clone() Variables {
	if v == nil {
		return nil
	}
	out := make(Variables, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// ExternalTask is a unit of work leased from the workflow engine via
// fetch-and-lock. While the lock is held the task is exclusively owned by
// this dispatcher instance; it must be completed or failed before
// LockExpiration, after which the engine may hand it to another worker.
type ExternalTask struct {
	ID                  string    `json:"id"`
	Topic               string    `json:"topicName"`
	ProcessInstanceID   string    `json:"processInstanceId"`
	ProcessDefinitionID string    `json:"processDefinitionId"`
	ActivityID          string    `json:"activityId"`
	WorkerID            string    `json:"workerId"`
	Retries             int       `json:"retries"`
	LockExpiration      time.Time `json:"lockExpirationTime"`
	Variables           Variables `json:"variables"`
}

// TaskResult pairs a routed task with its outcome. Exactly one of Output
// and Failure is set.
type TaskResult struct {
	Task    ExternalTask
	Output  Variables
	Failure *TaskFailure
}

// Succeeded reports whether the task produced output rather than a failure.
func (r TaskResult) Succeeded() bool { return r.Failure == nil }
