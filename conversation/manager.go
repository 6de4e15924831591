package conversation

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
)

// Key identifies one conversation mapping. A proper composite type rather
// than a joined string, so identifiers containing separator characters can
// never collide.
type Key struct {
	ProcessInstanceID string
	AssistantID       string
}

// Options configures a Manager.
type Options struct {
	Logger logging.Logger
}

// Manager owns the thread mapping table: at most one live thread per
// (process instance, assistant) pair. Lookups validate the cached handle
// upstream; a thread deleted out-of-band is replaced transparently instead
// of failing the dispatch.
//
// Concurrency: callers for the same key are serialized so a pair never ends
// up with two live threads; callers for different keys never contend beyond
// the map accesses themselves.
type Manager struct {
	store  core.ConversationStore
	logger logging.Logger

	mu      sync.Mutex
	threads map[Key]core.ThreadHandle
	locks   map[Key]*sync.Mutex
}

// NewManager constructs a Manager over the given conversation store.
func NewManager(store core.ConversationStore, optFns ...func(o *Options)) *Manager {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Manager{
		store:   store,
		logger:  opts.Logger,
		threads: make(map[Key]core.ThreadHandle),
		locks:   make(map[Key]*sync.Mutex),
	}
}

// GetOrCreateThread returns the live thread for (processInstanceID,
// assistantID), creating one if the mapping is missing or the cached thread
// no longer exists upstream.
//
// An empty processInstanceID opts out of persistence: a fresh thread is
// created and never recorded, so no continuity is carried.
func (m *Manager) GetOrCreateThread(ctx context.Context, processInstanceID, assistantID string) (core.ThreadHandle, error) {
	if processInstanceID == "" {
		return m.createThread(ctx)
	}

	key := Key{ProcessInstanceID: processInstanceID, AssistantID: assistantID}
	lock := m.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	if handle, ok := m.lookup(key); ok {
		valid, err := m.store.ValidateThread(ctx, handle)
		if err != nil {
			return "", fmt.Errorf("validate thread %s: %w", handle, err)
		}
		if valid {
			return handle, nil
		}
		m.logger.Info("stale thread replaced", "process_instance_id", processInstanceID, "assistant_id", assistantID)
		m.remove(key)
	}

	handle, err := m.createThread(ctx)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.threads[key] = handle
	m.mu.Unlock()
	return handle, nil
}

// RemoveInstance drops every mapping scoped to the given process instance,
// typically during completion cleanup. The upstream threads are left intact;
// only the mapping is released.
func (m *Manager) RemoveInstance(processInstanceID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for key := range m.threads {
		if key.ProcessInstanceID == processInstanceID {
			delete(m.threads, key)
			delete(m.locks, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of live mappings.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.threads)
}

func (m *Manager) createThread(ctx context.Context) (core.ThreadHandle, error) {
	handle, err := m.store.CreateThread(ctx)
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	return handle, nil
}

func (m *Manager) lookup(key Key) (core.ThreadHandle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	handle, ok := m.threads[key]
	return handle, ok
}

func (m *Manager) remove(key Key) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.threads, key)
}

func (m *Manager) keyLock(key Key) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[key] = lock
	}
	return lock
}
