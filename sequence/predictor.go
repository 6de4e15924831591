package sequence

import (
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Prediction is one ranked candidate for the task likely to follow another.
type Prediction struct {
	ID    string
	Count int
}

// Options configures a Predictor.
type Options struct {
	// MaxTransitions caps the number of distinct "from" ids tracked; the
	// least recently touched entry is evicted at the cap.
	MaxTransitions int
	// MaxInstances caps how many process instances keep a recent-task
	// history at once.
	MaxInstances int
	// HistoryDepth bounds the per-instance history of recently completed ids.
	HistoryDepth int
}

// Predictor maintains a bounded transition frequency table: for each
// observed id, how often each successor followed it. Ids are opaque; the
// dispatcher feeds definition-qualified task ids so predictions map back to
// definitions for prefetching.
//
// All operations are in-memory and non-blocking, safe for the critical
// dispatch path.
type Predictor struct {
	mu          sync.Mutex
	transitions *lru.Cache[string, map[string]int]
	histories   *lru.Cache[string, []string]
	depth       int
}

// NewPredictor constructs a predictor with bounded state.
func NewPredictor(optFns ...func(o *Options)) (*Predictor, error) {
	opts := Options{MaxTransitions: 512, MaxInstances: 1024, HistoryDepth: 16}
	for _, fn := range optFns {
		fn(&opts)
	}
	transitions, err := lru.New[string, map[string]int](opts.MaxTransitions)
	if err != nil {
		return nil, err
	}
	histories, err := lru.New[string, []string](opts.MaxInstances)
	if err != nil {
		return nil, err
	}
	return &Predictor{transitions: transitions, histories: histories, depth: opts.HistoryDepth}, nil
}

// Observe records that id was completed within the given process instance,
// counting a transition from the previously observed id of that instance.
func (p *Predictor) Observe(processInstanceID, id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	history, _ := p.histories.Get(processInstanceID)
	if n := len(history); n > 0 {
		from := history[n-1]
		counts, ok := p.transitions.Get(from)
		if !ok {
			counts = map[string]int{}
		}
		counts[id]++
		p.transitions.Add(from, counts)
	}

	history = append(history, id)
	if len(history) > p.depth {
		history = history[len(history)-p.depth:]
	}
	p.histories.Add(processInstanceID, history)
}

// PredictNext returns the observed successors of id ranked by frequency,
// highest first; ties break lexicographically for stable output.
func (p *Predictor) PredictNext(id string) []Prediction {
	p.mu.Lock()
	counts, ok := p.transitions.Get(id)
	if !ok {
		p.mu.Unlock()
		return nil
	}
	preds := make([]Prediction, 0, len(counts))
	for next, n := range counts {
		preds = append(preds, Prediction{ID: next, Count: n})
	}
	p.mu.Unlock()

	sort.Slice(preds, func(i, j int) bool {
		if preds[i].Count != preds[j].Count {
			return preds[i].Count > preds[j].Count
		}
		return preds[i].ID < preds[j].ID
	})
	return preds
}

// Forget drops the recent-task history of a process instance, typically once
// the instance completes. Learned transition frequencies are kept.
func (p *Predictor) Forget(processInstanceID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.histories.Remove(processInstanceID)
}
