package core

import "context"

// Invocation bundles everything a service handler needs to execute one task:
// the leased task, its resolved descriptor (service coordinates plus the
// verbatim extension properties) and, for conversational services, the
// thread handle carrying prior context.
type Invocation struct {
	Task       ExternalTask
	Descriptor TaskDescriptor

	// Thread is empty unless the resolved handler is conversational and the
	// task carries a process instance id to key the thread on.
	Thread ThreadHandle
}

// ServiceHandler executes the actual work of a task against a backend
// service. TaskMesh itself never performs the work; it only selects and
// invokes the handler.
//
// Invoke must honor ctx cancellation and deadlines; the dispatcher bounds
// every call with a per-call timeout.
type ServiceHandler interface {
	// Name returns the declared service name this handler serves.
	Name() string

	// Invoke runs the task and returns its output variables.
	Invoke(ctx context.Context, inv Invocation) (Variables, error)
}

// Conversational marks a ServiceHandler whose backend requires persistent
// multi-turn context. The dispatcher consults the thread manager for such
// handlers before invoking them, passing the resolved handle on the
// Invocation.
type Conversational interface {
	// AssistantID identifies the assistant whose threads carry the context.
	AssistantID() string
}
