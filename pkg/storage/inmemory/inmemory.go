// Package inmemory provides a Store that lives for the lifetime of the process.
package inmemory

import (
	"context"
	"sync"

	"github.com/papercomputeco/chatkeep/pkg/llm"
	"github.com/papercomputeco/chatkeep/pkg/storage"
)

// Store keeps the conversation in memory. It is safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	conv llm.Conversation
}

var _ storage.Store = (*Store)(nil)

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{}
}

func (s *Store) Load(_ context.Context) (llm.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conv.Clone(), nil
}

func (s *Store) Save(_ context.Context, conv llm.Conversation) error {
	if err := conv.Validate(); err != nil {
		return &storage.Error{Op: "save", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conv = conv.Clone()
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	return s.Save(ctx, nil)
}

func (s *Store) Close() error {
	return nil
}
