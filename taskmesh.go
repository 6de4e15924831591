// Package taskmesh provides a high-level façade over the dispatcher and its
// collaborators (definition cache, sequence prefetcher, conversation manager,
// completion detector). Most applications interact with this package by:
//  1. Creating a TaskMesh via New() (optionally overriding the engine client,
//     conversation store or any tuning knob via the config)
//  2. Registering one or more service handlers
//  3. Calling Run(ctx) to start claiming and dispatching external tasks
//
// All defaults are safe for local development against an engine on
// localhost; production deployments supply their own configuration and a
// provider-backed conversation store.
package taskmesh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/taskmesh/cache"
	"github.com/hupe1980/taskmesh/completion"
	"github.com/hupe1980/taskmesh/config"
	"github.com/hupe1980/taskmesh/conversation"
	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/dispatch"
	"github.com/hupe1980/taskmesh/engine"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/sequence"
	"github.com/hupe1980/taskmesh/service"
)

// Options configures the TaskMesh instance.
type Options struct {
	// Config supplies all tuning knobs. Defaults to config.Default().
	Config *config.Config

	// Engine overrides the REST client built from Config, mainly for tests
	// and embedded engines.
	Engine core.EngineClient

	// ConversationStore backs thread continuity for conversational
	// handlers. Defaults to an in-memory store.
	ConversationStore core.ConversationStore

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// TaskMesh is the high-level façade aggregating the dispatcher, the
// definition cache and the completion detector.
type TaskMesh struct {
	cfg        *config.Config
	engine     core.EngineClient
	registry   *service.Registry
	defs       *cache.DefinitionCache
	threads    *conversation.Manager
	tracker    *completion.Tracker
	dispatcher *dispatch.Dispatcher
	detector   *completion.Detector
	logger     logging.Logger
}

// New creates a TaskMesh instance with optional overrides. Any unset
// collaborator is initialized from the configuration.
func New(optFns ...func(o *Options)) (*TaskMesh, error) {
	opts := Options{
		Config: config.Default(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	engineClient := opts.Engine
	if engineClient == nil {
		c, err := engine.NewRESTClient(cfg.Engine.BaseURL, func(o *engine.Options) {
			o.RequestTimeout = cfg.Engine.RequestTimeout
			o.Logger = opts.Logger
		})
		if err != nil {
			return nil, fmt.Errorf("create engine client: %w", err)
		}
		engineClient = c
	}

	defs := cache.NewDefinitionCache(func(o *cache.DefinitionOptions) {
		o.DefinitionTTL = cfg.Cache.DefinitionTTL
		o.PropertyTTL = cfg.Cache.PropertyTTL
		o.Logger = opts.Logger
	})

	store := opts.ConversationStore
	if store == nil {
		store = conversation.NewInMemoryStore()
	}
	threads := conversation.NewManager(store, func(o *conversation.Options) {
		o.Logger = opts.Logger
	})

	tracker := completion.NewTracker(func(o *completion.TrackerOptions) {
		o.Logger = opts.Logger
	})

	registry := service.NewRegistry()

	topics := make([]core.TopicSubscription, 0, len(cfg.Dispatch.Topics))
	for _, name := range cfg.Dispatch.Topics {
		topics = append(topics, core.TopicSubscription{Name: name, LockDuration: cfg.Dispatch.LockDuration})
	}

	dispatcher, err := dispatch.New(engineClient, registry, func(o *dispatch.Options) {
		if cfg.Dispatch.WorkerID != "" {
			o.WorkerID = cfg.Dispatch.WorkerID
		}
		o.Topics = topics
		o.MaxTasksPerPoll = cfg.Dispatch.MaxTasksPerPoll
		o.LongPollTimeout = cfg.Dispatch.LongPollTimeout
		o.PollInterval = cfg.Dispatch.PollInterval
		o.InvocationTimeout = cfg.Dispatch.InvocationTimeout
		o.RetryDelay = cfg.Dispatch.RetryDelay
		o.InitialRetries = cfg.Dispatch.InitialRetries
		o.PrefetchLimit = cfg.Dispatch.PrefetchLimit
		o.Workers = cfg.Dispatch.Workers
		o.DrainTimeout = cfg.Dispatch.DrainTimeout
		o.Definitions = defs
		o.Prefetcher = sequence.NewPrefetcher(defs, engineClient, func(po *sequence.PrefetchOptions) {
			po.Logger = opts.Logger
		})
		o.Threads = threads
		o.Tracker = tracker
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, err
	}

	detector := completion.NewDetector(tracker, engineClient, func(o *completion.DetectorOptions) {
		o.Config = completion.Config{
			IdleThreshold: cfg.Completion.IdleThreshold,
			WarmupDelay:   cfg.Completion.WarmupDelay,
		}
		o.PollInterval = cfg.Completion.PollInterval
		o.Logger = opts.Logger
	})
	detector.OnComplete(dispatcher.CleanupInstance)

	return &TaskMesh{
		cfg:        cfg,
		engine:     engineClient,
		registry:   registry,
		defs:       defs,
		threads:    threads,
		tracker:    tracker,
		dispatcher: dispatcher,
		detector:   detector,
		logger:     opts.Logger,
	}, nil
}

// Register adds a service handler under its declared name as the default
// version.
func (m *TaskMesh) Register(h core.ServiceHandler) { m.registry.Register(h) }

// RegisterVersion adds a service handler under an explicit version.
func (m *TaskMesh) RegisterVersion(h core.ServiceHandler, version string) {
	m.registry.RegisterVersion(h, version)
}

// Dispatcher exposes the underlying dispatcher, mainly for manual
// claim/route/report control in tests and embedded setups.
func (m *TaskMesh) Dispatcher() *dispatch.Dispatcher { return m.dispatcher }

// Definitions exposes the definition cache for metrics and warm-up.
func (m *TaskMesh) Definitions() *cache.DefinitionCache { return m.defs }

// Tracker exposes the completion state table.
func (m *TaskMesh) Tracker() *completion.Tracker { return m.tracker }

// OnInstanceComplete registers a callback fired once per instance when
// completion is detected, after the built-in state cleanup.
func (m *TaskMesh) OnInstanceComplete(fn func(processInstanceID string)) {
	m.detector.OnComplete(fn)
}

// Run starts the dispatch workers, the completion detector and the cache
// sweep loop, blocking until ctx is cancelled and the workers drained.
func (m *TaskMesh) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		m.detector.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		m.sweepLoop(ctx)
	}()

	m.dispatcher.Run(ctx)
	wg.Wait()
	return ctx.Err()
}

func (m *TaskMesh) sweepLoop(ctx context.Context) {
	interval := m.cfg.Cache.SweepInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := m.defs.SweepExpired()
			hits, misses := m.defs.Metrics()
			m.logger.Debug("definition cache swept",
				"removed", removed, "hits", hits, "misses", misses)
		}
	}
}
