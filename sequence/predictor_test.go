package sequence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredictor_RanksByFrequency(t *testing.T) {
	p, err := NewPredictor()
	require.NoError(t, err)

	// a -> b twice, a -> c once, across two instances.
	p.Observe("p1", "a")
	p.Observe("p1", "b")
	p.Observe("p2", "a")
	p.Observe("p2", "b")
	p.Observe("p3", "a")
	p.Observe("p3", "c")

	preds := p.PredictNext("a")
	require.Len(t, preds, 2)
	assert.Equal(t, Prediction{ID: "b", Count: 2}, preds[0])
	assert.Equal(t, Prediction{ID: "c", Count: 1}, preds[1])
}

func TestPredictor_TiesBreakLexicographically(t *testing.T) {
	p, err := NewPredictor()
	require.NoError(t, err)

	p.Observe("p1", "a")
	p.Observe("p1", "z")
	p.Observe("p2", "a")
	p.Observe("p2", "b")

	preds := p.PredictNext("a")
	require.Len(t, preds, 2)
	assert.Equal(t, "b", preds[0].ID)
	assert.Equal(t, "z", preds[1].ID)
}

func TestPredictor_NoObservationsNoPredictions(t *testing.T) {
	p, err := NewPredictor()
	require.NoError(t, err)
	assert.Empty(t, p.PredictNext("unknown"))
}

func TestPredictor_TransitionsOnlyWithinInstance(t *testing.T) {
	p, err := NewPredictor()
	require.NoError(t, err)

	// Interleaved instances must not create cross-instance transitions.
	p.Observe("p1", "a")
	p.Observe("p2", "x")
	p.Observe("p1", "b")

	preds := p.PredictNext("x")
	assert.Empty(t, preds)
	preds = p.PredictNext("a")
	require.Len(t, preds, 1)
	assert.Equal(t, "b", preds[0].ID)
}

func TestPredictor_BoundedTransitionTable(t *testing.T) {
	p, err := NewPredictor(func(o *Options) { o.MaxTransitions = 2 })
	require.NoError(t, err)

	p.Observe("p1", "a")
	p.Observe("p1", "b")
	p.Observe("p1", "c")
	p.Observe("p1", "d") // evicts the oldest "from" entry ("a")

	assert.Empty(t, p.PredictNext("a"))
	assert.NotEmpty(t, p.PredictNext("c"))
}

func TestPredictor_HistoryDepthBounded(t *testing.T) {
	p, err := NewPredictor(func(o *Options) { o.HistoryDepth = 2 })
	require.NoError(t, err)

	p.Observe("p1", "a")
	p.Observe("p1", "b")
	p.Observe("p1", "c")

	history, ok := p.histories.Get("p1")
	require.True(t, ok)
	assert.Equal(t, []string{"b", "c"}, history)
}

func TestPredictor_Forget(t *testing.T) {
	p, err := NewPredictor()
	require.NoError(t, err)

	p.Observe("p1", "a")
	p.Forget("p1")
	p.Observe("p1", "b")

	// No transition a -> b recorded after the history was dropped.
	assert.Empty(t, p.PredictNext("a"))
}

func TestTransitionID_RoundTrip(t *testing.T) {
	id := TransitionID("def-1", "t1")
	assert.Equal(t, "def-1#t1", id)
	assert.Equal(t, "def-1", DefinitionOf(id))
	assert.Equal(t, "bare", DefinitionOf("bare"))
}
