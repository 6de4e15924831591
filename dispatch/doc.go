// Package dispatch implements the task orchestration loop: claiming external
// tasks from the engine under a lease, resolving their routing against the
// definition cache, invoking the matched service handler (consulting the
// thread manager for conversational services), and reporting completion or a
// typed failure back to the engine.
//
// Dispatch workers run in parallel and drain gracefully on shutdown:
// claiming stops immediately while in-flight reports are allowed to finish.
package dispatch
