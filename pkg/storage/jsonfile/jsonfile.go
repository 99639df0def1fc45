// Package jsonfile stores the conversation as a single JSON array on disk:
//
//	[{"role": "user", "content": "hi"}, {"role": "assistant", "content": "hello!"}]
//
// The file is rewritten in full on every save through a temporary file and an
// atomic rename, so readers only ever observe a complete conversation.
package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/papercomputeco/chatkeep/pkg/llm"
	"github.com/papercomputeco/chatkeep/pkg/storage"
)

// DefaultPath is the store file used when none is configured.
const DefaultPath = "conversation.json"

const lockRetryDelay = 25 * time.Millisecond

// Options configures a Store.
type Options struct {
	// OnCorrupt decides how Load treats a file that exists but does not
	// parse. Defaults to storage.CorruptReset.
	OnCorrupt storage.CorruptPolicy

	Logger *zap.Logger
}

// Store is a storage.Store and storage.Locker backed by one JSON file.
type Store struct {
	path      string
	lock      *flock.Flock
	onCorrupt storage.CorruptPolicy
	logger    *zap.Logger
}

var (
	_ storage.Store  = (*Store)(nil)
	_ storage.Locker = (*Store)(nil)
)

// New returns a store for path, creating its parent directory.
// The file itself is not created until the first save.
func New(path string, opts Options) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, &storage.Error{Op: "open", Path: path, Err: err}
		}
	}

	if opts.OnCorrupt == "" {
		opts.OnCorrupt = storage.CorruptReset
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Store{
		path:      path,
		lock:      flock.New(path + ".lock"),
		onCorrupt: opts.OnCorrupt,
		logger:    opts.Logger,
	}, nil
}

// Path returns the file backing the store.
func (s *Store) Path() string {
	return s.path
}

// EnsureExists writes an empty conversation when the file is missing.
func (s *Store) EnsureExists(ctx context.Context) error {
	_, err := os.Stat(s.path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return &storage.Error{Op: "open", Path: s.path, Err: err}
	}

	s.logger.Info("initializing empty conversation store", zap.String("path", s.path))
	return s.Save(ctx, nil)
}

// Load reads the conversation. A missing or zero-length file is an empty
// conversation; a malformed one is handled according to the corrupt policy.
func (s *Store) Load(_ context.Context) (llm.Conversation, error) {
	data, err := os.ReadFile(s.path) // #nosec G304 - path is operator configured
	if errors.Is(err, os.ErrNotExist) {
		return llm.Conversation{}, nil
	}
	if err != nil {
		return nil, &storage.Error{Op: "load", Path: s.path, Err: err}
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return llm.Conversation{}, nil
	}

	conv, err := decode(data)
	if err != nil {
		return s.handleCorrupt(err)
	}

	return conv, nil
}

func decode(data []byte) (llm.Conversation, error) {
	var conv llm.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("unmarshal conversation: %w", err)
	}
	if conv == nil {
		// "null" decodes without error
		return nil, errors.New("conversation is not a JSON array")
	}
	if err := conv.Validate(); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *Store) handleCorrupt(reason error) (llm.Conversation, error) {
	corrupt := &storage.CorruptError{Reason: reason}

	if s.onCorrupt == storage.CorruptStrict {
		return nil, &storage.Error{Op: "load", Path: s.path, Err: corrupt}
	}

	aside := fmt.Sprintf("%s.corrupt-%d", s.path, time.Now().Unix())
	if err := os.Rename(s.path, aside); err != nil {
		s.logger.Warn("could not move corrupt conversation aside",
			zap.String("path", s.path),
			zap.Error(err),
		)
	} else {
		s.logger.Warn("corrupt conversation moved aside, starting fresh",
			zap.String("path", s.path),
			zap.String("moved_to", aside),
			zap.Error(corrupt),
		)
	}

	return llm.Conversation{}, nil
}

// Save replaces the file contents with conv.
func (s *Store) Save(_ context.Context, conv llm.Conversation) error {
	if err := conv.Validate(); err != nil {
		return &storage.Error{Op: "save", Path: s.path, Err: err}
	}

	data, err := json.MarshalIndent(conv.Clone(), "", "  ")
	if err != nil {
		return &storage.Error{Op: "save", Path: s.path, Err: fmt.Errorf("marshal conversation: %w", err)}
	}
	data = append(data, '\n')

	if err := s.writeAtomic(data); err != nil {
		return &storage.Error{Op: "save", Path: s.path, Err: err}
	}

	s.logger.Debug("conversation saved",
		zap.String("path", s.path),
		zap.Int("turns", len(conv)),
	)
	return nil
}

func (s *Store) writeAtomic(data []byte) error {
	dir, base := filepath.Split(s.path)
	if dir == "" {
		dir = "."
	}

	tmp, err := os.CreateTemp(dir, base+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}

// Clear truncates the conversation to empty.
func (s *Store) Clear(ctx context.Context) error {
	return s.Save(ctx, nil)
}

// Lock takes an exclusive advisory lock on <path>.lock, waiting until ctx is done.
func (s *Store) Lock(ctx context.Context) (func() error, error) {
	ok, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, &storage.Error{Op: "lock", Path: s.lock.Path(), Err: err}
	}
	if !ok {
		return nil, &storage.Error{Op: "lock", Path: s.lock.Path(), Err: errors.New("lock not acquired")}
	}
	return s.lock.Unlock, nil
}

// Close releases the file lock if it is still held.
func (s *Store) Close() error {
	if s.lock.Locked() {
		return s.lock.Unlock()
	}
	return nil
}
