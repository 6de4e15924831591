// Package engine implements core.EngineClient against the workflow engine's
// REST task-queue protocol: fetch-and-lock polling, task completion and
// failure reports, process-instance status queries and definition XML
// retrieval.
package engine
