package completion

import "time"

// State is the lifecycle position of one process instance.
type State int

const (
	// StateActive means the instance has (or recently had) tasks in flight.
	StateActive State = iota
	// StateIdleCandidate means no tasks are in flight but no completion
	// signal has fired yet.
	StateIdleCandidate
	// StateComplete is terminal: dispatch for the instance shuts down and
	// its state is cleaned up.
	StateComplete
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateIdleCandidate:
		return "IDLE_CANDIDATE"
	case StateComplete:
		return "COMPLETE"
	default:
		return "UNKNOWN"
	}
}

// Config holds the tunable thresholds of the state machine. Both are
// deliberately independent so they can be tested in isolation.
type Config struct {
	// IdleThreshold is the extended idle time after which an instance with
	// no active tasks is declared complete as a failsafe.
	IdleThreshold time.Duration
	// WarmupDelay suppresses the idle failsafe right after an instance is
	// first observed, so discovery latency cannot trigger a false positive.
	WarmupDelay time.Duration
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{IdleThreshold: 5 * time.Minute, WarmupDelay: 30 * time.Second}
}

// Snapshot is the immutable input to one transition evaluation.
type Snapshot struct {
	ActiveTaskCount    int
	KnownTopics        map[string]bool
	ProcessedTopics    map[string]bool
	LastActivity       time.Time
	FirstObserved      time.Time
	EngineReportedDone bool
}

// TopicsCovered reports whether every topic discovered so far has been
// serviced at least once. An empty known set does not count as covered:
// nothing has been discovered yet.
func (s Snapshot) TopicsCovered() bool {
	if len(s.KnownTopics) == 0 {
		return false
	}
	for topic := range s.KnownTopics {
		if !s.ProcessedTopics[topic] {
			return false
		}
	}
	return true
}

// Evaluate applies the transition rules in strict priority order and returns
// the next state. It is a pure function of its inputs.
//
// Rules:
//  1. Active tasks force ACTIVE regardless of any other signal.
//  2. Engine-reported completion wins next.
//  3. Full topic coverage with no active tasks completes the instance.
//  4. Extended idle with no active tasks completes as a failsafe, suppressed
//     during the warm-up window after first observation.
func Evaluate(current State, snap Snapshot, cfg Config, now time.Time) State {
	if current == StateComplete {
		return StateComplete
	}
	if snap.ActiveTaskCount > 0 {
		return StateActive
	}
	if snap.EngineReportedDone {
		return StateComplete
	}
	if snap.TopicsCovered() {
		return StateComplete
	}
	warm := now.Sub(snap.FirstObserved) > cfg.WarmupDelay
	if warm && now.Sub(snap.LastActivity) > cfg.IdleThreshold {
		return StateComplete
	}
	return StateIdleCandidate
}
