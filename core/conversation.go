package core

import "context"

// ThreadHandle is an opaque reference to a persisted multi-turn conversation
// on an upstream conversational service.
type ThreadHandle string

// ConversationStore is the persistence surface for conversation threads:
// create a new thread, check an existing one still exists upstream, and
// append a message to it.
type ConversationStore interface {
	// CreateThread provisions a new empty conversation upstream.
	CreateThread(ctx context.Context) (ThreadHandle, error)

	// ValidateThread performs a lightweight existence check. A false result
	// with nil error means the thread was deleted out-of-band and the caller
	// should replace its mapping.
	ValidateThread(ctx context.Context, handle ThreadHandle) (bool, error)

	// SendMessage appends a message to the thread.
	SendMessage(ctx context.Context, handle ThreadHandle, role, text string) error
}
