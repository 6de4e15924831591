package completion

import (
	"context"
	"time"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
)

// DetectorOptions configures a Detector.
type DetectorOptions struct {
	// Config holds the transition thresholds.
	Config Config
	// PollInterval is the fixed evaluation cadence.
	PollInterval time.Duration
	// QueryTimeout bounds one engine status query.
	QueryTimeout time.Duration
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
	// Logger receives poll diagnostics.
	Logger logging.Logger
}

// Detector evaluates the completion state machine for every tracked
// instance on a fixed interval. It runs independently of the dispatch
// workers.
//
// Engine unavailability never forces a transition: a failed status query
// leaves the instance frozen in its last known state until the next poll.
type Detector struct {
	tracker    *Tracker
	engine     core.EngineClient
	cfg        Config
	interval   time.Duration
	timeout    time.Duration
	now        func() time.Time
	logger     logging.Logger
	onComplete []func(processInstanceID string)
}

// NewDetector constructs a detector over the given tracker and engine.
func NewDetector(tracker *Tracker, engine core.EngineClient, optFns ...func(o *DetectorOptions)) *Detector {
	opts := DetectorOptions{
		Config:       DefaultConfig(),
		PollInterval: 10 * time.Second,
		QueryTimeout: 5 * time.Second,
		Now:          time.Now,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Detector{
		tracker:  tracker,
		engine:   engine,
		cfg:      opts.Config,
		interval: opts.PollInterval,
		timeout:  opts.QueryTimeout,
		now:      opts.Now,
		logger:   opts.Logger,
	}
}

// OnComplete registers a callback fired once per instance when it reaches
// COMPLETE, before its state is destroyed. Callbacks perform cleanup:
// releasing thread mappings, dropping predictor history, stopping dispatch
// for the instance.
func (d *Detector) OnComplete(fn func(processInstanceID string)) {
	d.onComplete = append(d.onComplete, fn)
}

// Run evaluates all tracked instances on the poll interval until ctx is
// cancelled.
func (d *Detector) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Poll(ctx)
		}
	}
}

// Poll runs one evaluation round over every tracked instance.
func (d *Detector) Poll(ctx context.Context) {
	for _, id := range d.tracker.InstanceIDs() {
		d.evaluateInstance(ctx, id)
	}
}

func (d *Detector) evaluateInstance(ctx context.Context, processInstanceID string) {
	start := d.now()
	state, snap, ok := d.tracker.Snapshot(processInstanceID)
	if !ok || state == StateComplete {
		return
	}

	// The engine query only matters when rule 1 cannot decide; with tasks
	// in flight the instance stays ACTIVE regardless.
	if snap.ActiveTaskCount == 0 {
		queryCtx, cancel := context.WithTimeout(ctx, d.timeout)
		ended, err := d.engine.ProcessInstanceEnded(queryCtx, processInstanceID)
		cancel()
		if err != nil {
			// Freeze: the detector's own availability must never cause a
			// false completion.
			d.logger.Warn("engine status query failed, keeping state", "process_instance_id", processInstanceID, "error", err)
			return
		}
		d.tracker.SetEngineDone(processInstanceID, ended)
		snap.EngineReportedDone = ended
	}

	next := Evaluate(state, snap, d.cfg, d.now())
	if l, ok := d.logger.(*logging.TaskMeshLogger); ok {
		l.LogCompletionPoll(processInstanceID, next.String(), snap.ActiveTaskCount, d.now().Sub(start))
	}
	if !d.tracker.Transition(processInstanceID, next) {
		return
	}
	if next == StateComplete {
		d.logger.Info("process instance complete", "process_instance_id", processInstanceID)
		for _, fn := range d.onComplete {
			fn(processInstanceID)
		}
		d.tracker.Remove(processInstanceID)
	}
}
