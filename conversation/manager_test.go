package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/taskmesh/core"
)

// failingStore fails thread creation to exercise error propagation.
type failingStore struct{ err error }

var _ core.ConversationStore = (*failingStore)(nil)

func (f *failingStore) CreateThread(context.Context) (core.ThreadHandle, error) { return "", f.err }

func (f *failingStore) ValidateThread(context.Context, core.ThreadHandle) (bool, error) {
	return false, nil
}

func (f *failingStore) SendMessage(context.Context, core.ThreadHandle, string, string) error {
	return f.err
}

func TestManager_SameKeyReturnsSameHandle(t *testing.T) {
	store := NewInMemoryStore()
	m := NewManager(store)

	h1, err := m.GetOrCreateThread(context.Background(), "p1", "a1")
	require.NoError(t, err)
	h2, err := m.GetOrCreateThread(context.Background(), "p1", "a1")
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Equal(t, 1, m.Len())
}

func TestManager_DistinctInstancesAreIsolated(t *testing.T) {
	store := NewInMemoryStore()
	m := NewManager(store)

	h1, err := m.GetOrCreateThread(context.Background(), "p1", "a1")
	require.NoError(t, err)
	h2, err := m.GetOrCreateThread(context.Background(), "p2", "a1")
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

func TestManager_InvalidatedThreadReplaced(t *testing.T) {
	store := NewInMemoryStore()
	m := NewManager(store)

	c1, err := m.GetOrCreateThread(context.Background(), "p1", "a1")
	require.NoError(t, err)

	// Upstream deletes the thread out-of-band.
	store.Invalidate(c1)

	c2, err := m.GetOrCreateThread(context.Background(), "p1", "a1")
	require.NoError(t, err)
	assert.NotEqual(t, c1, c2)

	// The new mapping is now stable.
	c3, err := m.GetOrCreateThread(context.Background(), "p1", "a1")
	require.NoError(t, err)
	assert.Equal(t, c2, c3)
}

func TestManager_EmptyInstanceOptsOutOfPersistence(t *testing.T) {
	store := NewInMemoryStore()
	m := NewManager(store)

	h1, err := m.GetOrCreateThread(context.Background(), "", "a1")
	require.NoError(t, err)
	h2, err := m.GetOrCreateThread(context.Background(), "", "a1")
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
	assert.Zero(t, m.Len())
}

func TestManager_CreateFailurePropagates(t *testing.T) {
	wantErr := errors.New("upstream down")
	m := NewManager(&failingStore{err: wantErr})

	_, err := m.GetOrCreateThread(context.Background(), "p1", "a1")
	require.Error(t, err)
	assert.ErrorIs(t, err, wantErr)
	assert.Zero(t, m.Len())
}

func TestManager_CompositeKeyAvoidsCollisions(t *testing.T) {
	store := NewInMemoryStore()
	m := NewManager(store)

	// With naive string concatenation these two pairs would collide
	// ("p1:x" + "a1" vs "p1" + "x:a1").
	h1, err := m.GetOrCreateThread(context.Background(), "p1:x", "a1")
	require.NoError(t, err)
	h2, err := m.GetOrCreateThread(context.Background(), "p1", "x:a1")
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
	assert.Equal(t, 2, m.Len())
}

func TestManager_RemoveInstance(t *testing.T) {
	store := NewInMemoryStore()
	m := NewManager(store)

	_, err := m.GetOrCreateThread(context.Background(), "p1", "a1")
	require.NoError(t, err)
	_, err = m.GetOrCreateThread(context.Background(), "p1", "a2")
	require.NoError(t, err)
	_, err = m.GetOrCreateThread(context.Background(), "p2", "a1")
	require.NoError(t, err)

	assert.Equal(t, 2, m.RemoveInstance("p1"))
	assert.Equal(t, 1, m.Len())
}

func TestInMemoryStore_SendToMissingThread(t *testing.T) {
	store := NewInMemoryStore()
	err := store.SendMessage(context.Background(), "thread_missing", "user", "hi")
	assert.ErrorIs(t, err, core.ErrThreadNotFound)
}
