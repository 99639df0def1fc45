// Package storage defines the durable home of a single conversation.
//
// Every backend saves the whole conversation at once: there are no partial
// updates and no indexed access. A Save that returns nil must be fully
// visible to the next Load, and a failed or interrupted Save must leave the
// previous conversation intact.
package storage

import (
	"context"

	"github.com/papercomputeco/chatkeep/pkg/llm"
)

// Store holds exactly one conversation.
type Store interface {
	// Load returns the persisted conversation, or an empty one when nothing
	// has been saved yet. The result is never nil and may be mutated freely.
	Load(ctx context.Context) (llm.Conversation, error)

	// Save replaces the persisted conversation with conv.
	Save(ctx context.Context, conv llm.Conversation) error

	// Clear is equivalent to saving an empty conversation.
	Clear(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// Locker is implemented by stores that can exclude other processes from a
// load-modify-save sequence. The returned function releases the lock.
type Locker interface {
	Lock(ctx context.Context) (unlock func() error, err error)
}

// CorruptPolicy decides what Load does with state that exists but cannot be parsed.
type CorruptPolicy string

const (
	// CorruptReset moves the bad state aside and loads an empty conversation.
	CorruptReset CorruptPolicy = "reset"
	// CorruptStrict fails the load with an *Error.
	CorruptStrict CorruptPolicy = "strict"
)
