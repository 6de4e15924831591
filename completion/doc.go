// Package completion decides when a process instance has truly finished.
// It reconciles competing signals (pending task backlog, the engine's own
// completion report, topic coverage, idle time) through a pure
// per-instance state machine evaluated on a fixed poll interval, so the
// transition rules unit-test without timers.
package completion
