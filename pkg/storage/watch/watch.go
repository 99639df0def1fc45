// Package watch caches a file-backed conversation in memory. The cache is
// only a copy: it is dropped whenever the backing file changes on disk and
// refilled from the underlying store on the next Load.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/papercomputeco/chatkeep/pkg/llm"
	"github.com/papercomputeco/chatkeep/pkg/storage"
)

// Store wraps a storage.Store whose state lives in a single file.
type Store struct {
	inner   storage.Store
	path    string
	watcher *fsnotify.Watcher
	logger  *zap.Logger

	mu     sync.Mutex
	cached llm.Conversation
	valid  bool

	// invalidated receives a value after each external change, for tests.
	invalidated chan struct{}
	done        chan struct{}
	wg          sync.WaitGroup
}

var _ storage.Store = (*Store)(nil)

// New watches the directory containing path. Directories are watched rather
// than the file because atomic saves replace the file by rename.
func New(inner storage.Store, path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &storage.Error{Op: "open", Path: path, Err: err}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &storage.Error{Op: "open", Path: path, Err: fmt.Errorf("create watcher: %w", err)}
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, &storage.Error{Op: "open", Path: path, Err: fmt.Errorf("watch directory: %w", err)}
	}

	s := &Store{
		inner:       inner,
		path:        abs,
		watcher:     watcher,
		logger:      logger,
		invalidated: make(chan struct{}, 1),
		done:        make(chan struct{}),
	}

	s.wg.Add(1)
	go s.run()

	return s, nil
}

func (s *Store) run() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			s.invalidate(event)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			// Without events we can no longer trust the cache.
			s.logger.Warn("conversation watcher error", zap.Error(err))
			s.invalidate(fsnotify.Event{Name: s.path})
		}
	}
}

func (s *Store) invalidate(event fsnotify.Event) {
	s.mu.Lock()
	s.valid = false
	s.cached = nil
	s.mu.Unlock()

	s.logger.Debug("conversation cache invalidated",
		zap.String("path", event.Name),
		zap.String("op", event.Op.String()),
	)

	select {
	case s.invalidated <- struct{}{}:
	default:
	}
}

// Invalidated signals after the cache was dropped because of a file change.
func (s *Store) Invalidated() <-chan struct{} {
	return s.invalidated
}

// Load serves the cached conversation, reloading it when invalid.
func (s *Store) Load(ctx context.Context) (llm.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.valid {
		return s.cached.Clone(), nil
	}

	conv, err := s.inner.Load(ctx)
	if err != nil {
		return nil, err
	}

	s.cached = conv.Clone()
	s.valid = true
	return conv, nil
}

// Save writes through and refreshes the cache.
func (s *Store) Save(ctx context.Context, conv llm.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.inner.Save(ctx, conv); err != nil {
		s.valid = false
		return err
	}

	s.cached = conv.Clone()
	s.valid = true
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	return s.Save(ctx, nil)
}

// Lock delegates to the wrapped store when it supports locking. Once the lock
// is held the cache is dropped: another process may have written the file
// before its change event arrived, so loads under the lock read the file.
func (s *Store) Lock(ctx context.Context) (func() error, error) {
	locker, ok := s.inner.(storage.Locker)
	if !ok {
		return func() error { return nil }, nil
	}

	unlock, err := locker.Lock(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.valid = false
	s.cached = nil
	s.mu.Unlock()

	return unlock, nil
}

// Close stops watching and closes the wrapped store.
func (s *Store) Close() error {
	close(s.done)
	werr := s.watcher.Close()
	s.wg.Wait()

	if err := s.inner.Close(); err != nil {
		return err
	}
	return werr
}
