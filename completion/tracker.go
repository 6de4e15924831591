package completion

import (
	"sync"
	"time"

	"github.com/hupe1980/taskmesh/logging"
)

// instanceState is the mutable per-instance record. Owned exclusively by
// the Tracker; external reads go through Snapshot copies.
type instanceState struct {
	state           State
	activeTasks     int
	knownTopics     map[string]bool
	processedTopics map[string]bool
	lastActivity    time.Time
	firstObserved   time.Time
	engineDone      bool
}

// TrackerOptions configures a Tracker.
type TrackerOptions struct {
	// TombstoneTTL is how long a removed instance's id keeps refusing
	// late claims before it may be observed as a fresh instance again.
	TombstoneTTL time.Duration
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
	// Logger receives late-report warnings.
	Logger logging.Logger
}

// Tracker owns the completion state table. It is fed by the dispatcher on
// every claim and report and read by the Detector on every poll. Instances
// whose state reached COMPLETE reject further activity: late reports are
// logged, never re-processed.
type Tracker struct {
	mu         sync.Mutex
	instances  map[string]*instanceState
	tombstones map[string]time.Time
	retention  time.Duration
	now        func() time.Time
	logger     logging.Logger
}

// NewTracker constructs an empty tracker.
func NewTracker(optFns ...func(o *TrackerOptions)) *Tracker {
	opts := TrackerOptions{TombstoneTTL: 10 * time.Minute, Now: time.Now, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Tracker{
		instances:  make(map[string]*instanceState),
		tombstones: make(map[string]time.Time),
		retention:  opts.TombstoneTTL,
		now:        opts.Now,
		logger:     opts.Logger,
	}
}

// TaskClaimed records a claimed task for the instance, creating its state on
// first observation. Returns false when the instance already completed (the
// claim is then stale and the caller should drop the task).
func (t *Tracker) TaskClaimed(processInstanceID, topic string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.buriedLocked(processInstanceID) {
		t.logger.Warn("task claimed for recently completed instance, ignoring",
			"process_instance_id", processInstanceID, "topic", topic)
		return false
	}
	st := t.getOrCreateLocked(processInstanceID)
	if st.state == StateComplete {
		t.logger.Warn("task claimed for completed instance, ignoring", "process_instance_id", processInstanceID, "topic", topic)
		return false
	}
	st.activeTasks++
	st.knownTopics[topic] = true
	st.lastActivity = t.now()
	return true
}

// TaskReported records a finished task (success or failure) for the
// instance. Returns false for unknown or already completed instances; such
// late reports are logged and otherwise discarded.
func (t *Tracker) TaskReported(processInstanceID, topic string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.instances[processInstanceID]
	if !ok || st.state == StateComplete {
		t.logger.Warn("late task report discarded", "process_instance_id", processInstanceID, "topic", topic)
		return false
	}
	if st.activeTasks > 0 {
		st.activeTasks--
	}
	st.processedTopics[topic] = true
	st.lastActivity = t.now()
	return true
}

// SetEngineDone records the engine's completion report for the instance.
func (t *Tracker) SetEngineDone(processInstanceID string, done bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.instances[processInstanceID]; ok {
		st.engineDone = done
	}
}

// Snapshot returns a copy of the instance's current state for evaluation.
func (t *Tracker) Snapshot(processInstanceID string) (State, Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.instances[processInstanceID]
	if !ok {
		return StateActive, Snapshot{}, false
	}
	return st.state, snapshotLocked(st), true
}

// Transition moves the instance to next and reports whether the move was a
// change. Transitions out of COMPLETE are refused: the state is terminal.
// A transition to COMPLETE is also refused while tasks are in flight, so a
// claim that raced an evaluation round can never be completed away.
func (t *Tracker) Transition(processInstanceID string, next State) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.instances[processInstanceID]
	if !ok || st.state == next || st.state == StateComplete {
		return false
	}
	if next == StateComplete && st.activeTasks > 0 {
		t.logger.Warn("completion refused, tasks in flight",
			"process_instance_id", processInstanceID, "active_tasks", st.activeTasks)
		return false
	}
	st.state = next
	return true
}

// Remove destroys the instance's state after completion cleanup finished.
// The id is tombstoned for the configured retention so stale claims arriving
// after cleanup are refused instead of resurrecting the instance.
func (t *Tracker) Remove(processInstanceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.instances, processInstanceID)
	t.tombstones[processInstanceID] = t.now().Add(t.retention)
}

// buriedLocked reports whether the id has an unexpired tombstone, purging
// expired ones as it scans.
func (t *Tracker) buriedLocked(processInstanceID string) bool {
	now := t.now()
	for id, expiry := range t.tombstones {
		if !expiry.After(now) {
			delete(t.tombstones, id)
		}
	}
	_, ok := t.tombstones[processInstanceID]
	return ok
}

// InstanceIDs lists the currently tracked instances.
func (t *Tracker) InstanceIDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.instances))
	for id := range t.instances {
		ids = append(ids, id)
	}
	return ids
}

func (t *Tracker) getOrCreateLocked(processInstanceID string) *instanceState {
	st, ok := t.instances[processInstanceID]
	if !ok {
		now := t.now()
		st = &instanceState{
			state:           StateActive,
			knownTopics:     make(map[string]bool),
			processedTopics: make(map[string]bool),
			lastActivity:    now,
			firstObserved:   now,
		}
		t.instances[processInstanceID] = st
	}
	return st
}

func snapshotLocked(st *instanceState) Snapshot {
	known := make(map[string]bool, len(st.knownTopics))
	for k, v := range st.knownTopics {
		known[k] = v
	}
	processed := make(map[string]bool, len(st.processedTopics))
	for k, v := range st.processedTopics {
		processed[k] = v
	}
	return Snapshot{
		ActiveTaskCount:    st.activeTasks,
		KnownTopics:        known,
		ProcessedTopics:    processed,
		LastActivity:       st.lastActivity,
		FirstObserved:      st.firstObserved,
		EngineReportedDone: st.engineDone,
	}
}
