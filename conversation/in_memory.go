package conversation

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/hupe1980/taskmesh/core"
)

// message is one appended entry in an in-memory thread.
type message struct {
	Role string
	Text string
}

// InMemoryStore is a volatile ConversationStore keeping threads in a process
// local map. It is safe for concurrent access and best suited for tests or
// ephemeral demo setups. Invalidate simulates an out-of-band deletion on the
// upstream service.
type InMemoryStore struct {
	mu      sync.RWMutex
	threads map[core.ThreadHandle][]message
}

var _ core.ConversationStore = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty in-memory conversation store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{threads: make(map[core.ThreadHandle][]message)}
}

// CreateThread provisions a new empty thread with a unique handle.
func (s *InMemoryStore) CreateThread(_ context.Context) (core.ThreadHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	handle := core.ThreadHandle("thread_" + uuid.NewString())
	s.threads[handle] = nil
	return handle, nil
}

// ValidateThread reports whether the handle still resolves.
func (s *InMemoryStore) ValidateThread(_ context.Context, handle core.ThreadHandle) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.threads[handle]
	return ok, nil
}

// SendMessage appends a message to an existing thread.
func (s *InMemoryStore) SendMessage(_ context.Context, handle core.ThreadHandle, role, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[handle]; !ok {
		return core.ErrThreadNotFound
	}
	s.threads[handle] = append(s.threads[handle], message{Role: role, Text: text})
	return nil
}

// Invalidate deletes a thread, simulating out-of-band removal upstream.
func (s *InMemoryStore) Invalidate(handle core.ThreadHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, handle)
}

// Messages returns a copy of the thread's messages for assertions in tests.
func (s *InMemoryStore) Messages(handle core.ThreadHandle) []message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := make([]message, len(s.threads[handle]))
	copy(msgs, s.threads[handle])
	return msgs
}
