package sequence

import (
	"context"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/hupe1980/taskmesh/cache"
	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
)

// TransitionID builds the definition-qualified id the dispatcher feeds into
// the predictor, so a prediction can be resolved back to a definition.
func TransitionID(definitionID, activityID string) string {
	return definitionID + "#" + activityID
}

// DefinitionOf returns the definition component of a transition id.
func DefinitionOf(transitionID string) string {
	if i := strings.IndexByte(transitionID, '#'); i >= 0 {
		return transitionID[:i]
	}
	return transitionID
}

// PrefetchOptions configures a Prefetcher.
type PrefetchOptions struct {
	// MaxInFlight bounds concurrent prefetch fetches.
	MaxInFlight int
	// FetchTimeout bounds one prefetch round trip.
	FetchTimeout time.Duration
	// Attempts is the number of tries per prefetch before giving up until
	// the next occurrence.
	Attempts uint64
	// BackoffBase seeds the exponential backoff between attempts.
	BackoffBase time.Duration
	// Logger receives prefetch outcomes.
	Logger logging.Logger
}

// Prefetcher warms the definition cache with definitions predicted to be
// needed soon. It is strictly advisory: fetches run off the dispatch path on
// their own goroutines, failures are logged and simply retried on the next
// occurrence of the same prediction.
type Prefetcher struct {
	cache  *cache.DefinitionCache
	engine core.EngineClient
	sem    chan struct{}
	opts   PrefetchOptions
}

// NewPrefetcher constructs a prefetcher over the given cache and engine.
func NewPrefetcher(defs *cache.DefinitionCache, engine core.EngineClient, optFns ...func(o *PrefetchOptions)) *Prefetcher {
	opts := PrefetchOptions{
		MaxInFlight:  4,
		FetchTimeout: 10 * time.Second,
		Attempts:     2,
		BackoffBase:  250 * time.Millisecond,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Prefetcher{cache: defs, engine: engine, sem: make(chan struct{}, opts.MaxInFlight), opts: opts}
}

// Prefetch warms the cache for definitionID if it is not already warm. The
// call returns immediately; the fetch, if any, happens on its own goroutine
// and is detached from ctx's cancellation, bounded only by FetchTimeout.
// The dispatch call that triggered the prediction often finishes (and its
// context dies) long before the fetch does.
func (p *Prefetcher) Prefetch(ctx context.Context, definitionID string) {
	if definitionID == "" {
		return
	}
	if _, ok := p.cache.Get(definitionID); ok {
		return
	}
	select {
	case p.sem <- struct{}{}:
	default:
		// All prefetch slots busy; this is advisory work, drop it.
		return
	}
	fetchCtx := context.WithoutCancel(ctx)
	go func() {
		defer func() { <-p.sem }()
		p.fetch(fetchCtx, definitionID)
	}()
}

// PrefetchPredicted warms the definitions referenced by ranked predictions,
// at most limit of them.
func (p *Prefetcher) PrefetchPredicted(ctx context.Context, preds []Prediction, limit int) {
	for i, pred := range preds {
		if i >= limit {
			return
		}
		p.Prefetch(ctx, DefinitionOf(pred.ID))
	}
}

func (p *Prefetcher) fetch(ctx context.Context, definitionID string) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.FetchTimeout)
	defer cancel()

	backoff := retry.WithMaxRetries(p.opts.Attempts, retry.NewExponential(p.opts.BackoffBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		rawXML, err := p.engine.DefinitionXML(ctx, definitionID)
		if err != nil {
			return retry.RetryableError(err)
		}
		if _, err := p.cache.Put(definitionID, rawXML); err != nil {
			// Malformed XML will not get better on retry.
			return err
		}
		return nil
	})
	if err != nil {
		p.opts.Logger.Warn("prefetch failed", "definition_id", definitionID, "error", err)
		return
	}
	p.opts.Logger.Debug("prefetched definition", "definition_id", definitionID)
}
