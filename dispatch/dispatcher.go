package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/taskmesh/cache"
	"github.com/hupe1980/taskmesh/completion"
	"github.com/hupe1980/taskmesh/conversation"
	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/sequence"
	"github.com/hupe1980/taskmesh/service"
)

// Options configures a Dispatcher.
type Options struct {
	// WorkerID identifies this dispatcher instance towards the engine. A
	// random id is generated when left empty.
	WorkerID string

	// Topics lists the topic subscriptions every poll matches against.
	Topics []core.TopicSubscription

	// MaxTasksPerPoll caps how many tasks a single fetch-and-lock may claim.
	MaxTasksPerPoll int

	// LongPollTimeout asks the engine to hold an empty poll open until work
	// arrives or the timeout elapses.
	LongPollTimeout time.Duration

	// PollInterval is the pause between polls that returned no work, on top
	// of any long-poll wait. Zero relies on long polling alone.
	PollInterval time.Duration

	// InvocationTimeout bounds one service handler call.
	InvocationTimeout time.Duration

	// RetryDelay is the retry hint attached to transient failures reported
	// to the engine.
	RetryDelay time.Duration

	// InitialRetries is the retry count reported when the engine supplied
	// none on the task, so a first transient failure is not an immediate
	// incident.
	InitialRetries int

	// PrefetchLimit caps how many predicted definitions are warmed after
	// each reported task.
	PrefetchLimit int

	// Workers is the number of concurrent claim/route/report loops Run
	// spawns.
	Workers int

	// DrainTimeout bounds how long in-flight reports may keep running after
	// shutdown is requested.
	DrainTimeout time.Duration

	// Definitions serves routing metadata. Defaults to a fresh cache.
	Definitions *cache.DefinitionCache

	// Predictor learns task sequences for prefetching. Defaults to a fresh
	// bounded predictor.
	Predictor *sequence.Predictor

	// Prefetcher warms predicted definitions. Defaults to one over
	// Definitions and the engine client.
	Prefetcher *sequence.Prefetcher

	// Threads manages conversation continuity for conversational handlers.
	// Defaults to an in-memory store.
	Threads *conversation.Manager

	// Tracker records per-instance activity for completion detection.
	Tracker *completion.Tracker

	// Logger receives dispatch outcomes.
	Logger logging.Logger
}

// Dispatcher runs the task orchestration loop: claim leased tasks from the
// engine, resolve each task's service coordinates from its process
// definition, invoke the matched handler and report the outcome back.
//
// A handler error never touches the engine's own retry bookkeeping directly;
// it is reported as a typed failure and the engine decides what happens next.
type Dispatcher struct {
	engine   core.EngineClient
	registry *service.Registry

	defs       *cache.DefinitionCache
	predictor  *sequence.Predictor
	prefetcher *sequence.Prefetcher
	threads    *conversation.Manager
	tracker    *completion.Tracker

	// instanceLocks serializes conversational dispatch per process
	// instance, so thread continuity sees reports in claim order.
	instanceMu    sync.Mutex
	instanceLocks map[string]*sync.Mutex

	opts   Options
	logger logging.Logger
}

// New constructs a Dispatcher over the given engine client and handler
// registry. Collaborators not supplied via options are created with
// in-memory defaults.
func New(engine core.EngineClient, registry *service.Registry, optFns ...func(o *Options)) (*Dispatcher, error) {
	opts := Options{
		WorkerID:          "taskmesh-" + uuid.NewString(),
		MaxTasksPerPoll:   10,
		LongPollTimeout:   30 * time.Second,
		InvocationTimeout: 60 * time.Second,
		RetryDelay:        10 * time.Second,
		InitialRetries:    3,
		PrefetchLimit:     2,
		Workers:           4,
		DrainTimeout:      30 * time.Second,
		Logger:            logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Definitions == nil {
		opts.Definitions = cache.NewDefinitionCache()
	}
	if opts.Predictor == nil {
		p, err := sequence.NewPredictor()
		if err != nil {
			return nil, fmt.Errorf("create predictor: %w", err)
		}
		opts.Predictor = p
	}
	if opts.Prefetcher == nil {
		opts.Prefetcher = sequence.NewPrefetcher(opts.Definitions, engine)
	}
	if opts.Threads == nil {
		opts.Threads = conversation.NewManager(conversation.NewInMemoryStore())
	}
	if opts.Tracker == nil {
		opts.Tracker = completion.NewTracker()
	}

	return &Dispatcher{
		engine:        engine,
		registry:      registry,
		defs:          opts.Definitions,
		predictor:     opts.Predictor,
		prefetcher:    opts.Prefetcher,
		threads:       opts.Threads,
		tracker:       opts.Tracker,
		instanceLocks: make(map[string]*sync.Mutex),
		opts:          opts,
		logger:        opts.Logger,
	}, nil
}

// WorkerID returns the id this dispatcher locks tasks under.
func (d *Dispatcher) WorkerID() string { return d.opts.WorkerID }

// ClaimBatch polls the engine once and returns the claimed tasks. Tasks
// belonging to instances already detected as complete are dropped; their
// lease simply expires and the engine re-offers them elsewhere.
func (d *Dispatcher) ClaimBatch(ctx context.Context) ([]core.ExternalTask, error) {
	tasks, err := d.engine.FetchAndLock(ctx, core.FetchAndLockRequest{
		WorkerID:        d.opts.WorkerID,
		MaxTasks:        d.opts.MaxTasksPerPoll,
		Topics:          d.opts.Topics,
		LongPollTimeout: d.opts.LongPollTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch and lock: %w", err)
	}

	claimed := tasks[:0]
	for _, task := range tasks {
		if task.ProcessInstanceID != "" && !d.tracker.TaskClaimed(task.ProcessInstanceID, task.Topic) {
			d.logger.Warn("claim refused for completed instance",
				"task_id", task.ID, "process_instance_id", task.ProcessInstanceID)
			continue
		}
		claimed = append(claimed, task)
	}
	return claimed, nil
}

// ClaimNext polls the engine for a single task. Returns nil when no work is
// available within the long-poll window.
func (d *Dispatcher) ClaimNext(ctx context.Context) (*core.ExternalTask, error) {
	tasks, err := d.engine.FetchAndLock(ctx, core.FetchAndLockRequest{
		WorkerID:        d.opts.WorkerID,
		MaxTasks:        1,
		Topics:          d.opts.Topics,
		LongPollTimeout: d.opts.LongPollTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch and lock: %w", err)
	}
	for _, task := range tasks {
		if task.ProcessInstanceID != "" && !d.tracker.TaskClaimed(task.ProcessInstanceID, task.Topic) {
			continue
		}
		return &task, nil
	}
	return nil, nil
}

// Route resolves and invokes a single task, returning its outcome. Routing
// never mutates engine state; pair it with ReportResult.
func (d *Dispatcher) Route(ctx context.Context, task core.ExternalTask) core.TaskResult {
	desc, err := d.resolveDescriptor(ctx, task)
	if err != nil {
		return d.failure(task, resolutionKind(err), err)
	}

	handler, err := d.registry.Resolve(desc)
	if err != nil {
		return d.failure(task, core.FailureRoutingUnresolved, err)
	}

	inv := core.Invocation{Task: task, Descriptor: desc}
	if conv, ok := handler.(core.Conversational); ok && conv.AssistantID() != "" {
		handle, err := d.threads.GetOrCreateThread(ctx, task.ProcessInstanceID, conv.AssistantID())
		if err != nil {
			return d.failure(task, core.FailureConversationCreation, err)
		}
		inv.Thread = handle
	}

	callCtx, cancel := context.WithTimeout(ctx, d.opts.InvocationTimeout)
	defer cancel()

	start := time.Now()
	output, err := handler.Invoke(callCtx, inv)
	dur := time.Since(start)
	if err != nil {
		d.logger.Warn("service call failed",
			"service", handler.Name(), "task_id", task.ID, "duration", dur, "error", err)
		if errors.Is(err, context.DeadlineExceeded) {
			return d.failure(task, core.FailureServiceTimeout, err)
		}
		return d.failure(task, core.FailureServiceUnavailable, err)
	}

	d.logger.Debug("service call succeeded",
		"service", handler.Name(), "task_id", task.ID, "duration", dur)
	return core.TaskResult{Task: task, Output: output}
}

// RouteBatch routes a batch of tasks grouped by their resolved service, so a
// handler sees its share of the batch back to back. Task outcomes are
// isolated: one task's failure never affects its batch peers. Results are
// returned in input order.
func (d *Dispatcher) RouteBatch(ctx context.Context, tasks []core.ExternalTask) []core.TaskResult {
	results := make([]core.TaskResult, len(tasks))

	groups := make(map[string][]int)
	order := make([]string, 0, len(tasks))
	for i, task := range tasks {
		desc, err := d.resolveDescriptor(ctx, task)
		if err != nil {
			results[i] = d.failure(task, resolutionKind(err), err)
			continue
		}
		name := desc.ServiceName
		if _, seen := groups[name]; !seen {
			order = append(order, name)
		}
		groups[name] = append(groups[name], i)
	}

	for _, name := range order {
		for _, i := range groups[name] {
			results[i] = d.Route(ctx, tasks[i])
		}
	}
	return results
}

// Dispatch routes one task and reports its outcome, the unit of work a
// dispatch worker performs per claimed task. When the task resolves to a
// conversational handler, route and report run under a per-instance lock:
// concurrent workers holding tasks of the same process instance take turns,
// so thread continuity sees reports reach the engine in claim order.
// Non-conversational tasks carry no ordering guarantee and skip the lock.
func (d *Dispatcher) Dispatch(ctx, reportCtx context.Context, task core.ExternalTask) error {
	if task.ProcessInstanceID != "" && d.conversational(ctx, task) {
		lock := d.instanceLock(task.ProcessInstanceID)
		lock.Lock()
		defer lock.Unlock()
	}
	return d.ReportResult(reportCtx, d.Route(ctx, task))
}

// conversational reports whether the task resolves to a handler that needs
// thread continuity. Resolution failures answer false; Route surfaces them
// as typed failures on its own.
func (d *Dispatcher) conversational(ctx context.Context, task core.ExternalTask) bool {
	desc, err := d.resolveDescriptor(ctx, task)
	if err != nil {
		return false
	}
	handler, err := d.registry.Resolve(desc)
	if err != nil {
		return false
	}
	conv, ok := handler.(core.Conversational)
	return ok && conv.AssistantID() != ""
}

func (d *Dispatcher) instanceLock(processInstanceID string) *sync.Mutex {
	d.instanceMu.Lock()
	defer d.instanceMu.Unlock()
	lock, ok := d.instanceLocks[processInstanceID]
	if !ok {
		lock = &sync.Mutex{}
		d.instanceLocks[processInstanceID] = lock
	}
	return lock
}

// ReportResult reports one routed outcome to the engine and feeds the
// completion tracker and sequence predictor. A report error leaves the task
// leased; the lock expires and the engine re-offers it.
func (d *Dispatcher) ReportResult(ctx context.Context, res core.TaskResult) error {
	task := res.Task
	var err error
	if res.Succeeded() {
		err = d.engine.Complete(ctx, task.ID, res.Output)
	} else {
		err = d.engine.Fail(ctx, task.ID, res.Failure)
	}
	if err != nil {
		d.logger.Error("report failed, task stays leased",
			"task_id", task.ID, "process_instance_id", task.ProcessInstanceID, "error", err)
		return fmt.Errorf("report task %s: %w", task.ID, err)
	}

	if task.ProcessInstanceID != "" {
		d.tracker.TaskReported(task.ProcessInstanceID, task.Topic)
		d.observeSequence(ctx, task)
	}
	d.logger.Info("task reported",
		"task_id", task.ID, "topic", task.Topic, "success", res.Succeeded())
	return nil
}

// CleanupInstance releases per-instance state once an instance completes:
// its conversation mappings and its sequence history. Learned transition
// frequencies are kept.
func (d *Dispatcher) CleanupInstance(processInstanceID string) {
	removed := d.threads.RemoveInstance(processInstanceID)
	d.predictor.Forget(processInstanceID)
	d.instanceMu.Lock()
	delete(d.instanceLocks, processInstanceID)
	d.instanceMu.Unlock()
	d.logger.Debug("instance state released",
		"process_instance_id", processInstanceID, "threads_removed", removed)
}

func (d *Dispatcher) observeSequence(ctx context.Context, task core.ExternalTask) {
	id := sequence.TransitionID(task.ProcessDefinitionID, task.ActivityID)
	d.predictor.Observe(task.ProcessInstanceID, id)
	if d.opts.PrefetchLimit > 0 {
		d.prefetcher.PrefetchPredicted(ctx, d.predictor.PredictNext(id), d.opts.PrefetchLimit)
	}
}

// resolveDescriptor serves the task's descriptor from the definition cache,
// fetching and parsing the definition once on a cold miss.
func (d *Dispatcher) resolveDescriptor(ctx context.Context, task core.ExternalTask) (core.TaskDescriptor, error) {
	if desc, ok := d.defs.GetTaskProperties(task.ProcessDefinitionID, task.ActivityID); ok {
		return desc, nil
	}

	rawXML, err := d.engine.DefinitionXML(ctx, task.ProcessDefinitionID)
	if err != nil {
		return core.TaskDescriptor{}, fmt.Errorf("fetch definition %s: %w", task.ProcessDefinitionID, err)
	}
	def, err := d.defs.Put(task.ProcessDefinitionID, rawXML)
	if err != nil {
		return core.TaskDescriptor{}, err
	}
	desc, ok := def.Task(task.ActivityID)
	if !ok {
		return core.TaskDescriptor{}, fmt.Errorf("activity %s not declared in definition %s: %w",
			task.ActivityID, task.ProcessDefinitionID, core.ErrRoutingUnresolved)
	}
	return desc, nil
}

func (d *Dispatcher) failure(task core.ExternalTask, kind core.FailureKind, cause error) core.TaskResult {
	f := core.NewTaskFailure(task, kind, cause)
	if f.Retryable {
		if task.Retries > 0 {
			f.Retries = task.Retries - 1
		} else {
			// Engine supplied no retry count: this is the first failure,
			// seed the budget instead of escalating immediately.
			f.Retries = d.opts.InitialRetries
		}
		f.RetryDelay = d.opts.RetryDelay
	}
	return core.TaskResult{Task: task, Failure: f}
}

func resolutionKind(err error) core.FailureKind {
	switch {
	case errors.Is(err, core.ErrDefinitionNotFound):
		return core.FailureDefinitionNotFound
	case errors.Is(err, core.ErrMalformedDefinition):
		return core.FailureCacheCorruption
	case errors.Is(err, core.ErrRoutingUnresolved):
		return core.FailureRoutingUnresolved
	default:
		return core.FailureServiceUnavailable
	}
}
