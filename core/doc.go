// Package core provides the foundational domain types and interfaces used by
// TaskMesh. It defines the core abstractions for:
//
//   - External tasks (units of work leased from the workflow engine)
//   - Process definitions and task descriptors (parsed routing metadata)
//   - The engine task-queue protocol (fetch-and-lock, complete, fail, query)
//   - Pluggable service handlers and conversation stores
//   - The typed task-failure taxonomy reported back to the engine
//
// The package intentionally keeps implementation concerns (caching, REST
// transport, dispatch orchestration) out of scope, exposing small interfaces
// to enable custom backends and extensions.
package core
