// Package sqlite stores the conversation in SQLite as a content-addressed
// chain of turns. A head pointer names the last turn; saving inserts any new
// nodes and moves the head in one transaction, so a conversation is never
// observed half written. Nodes are never deleted: clearing only resets the
// head, and identical histories share their nodes.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/papercomputeco/chatkeep/pkg/llm"
	"github.com/papercomputeco/chatkeep/pkg/merkle"
	"github.com/papercomputeco/chatkeep/pkg/storage"
)

const headName = "default"

const lockRetryDelay = 25 * time.Millisecond

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	hash        TEXT PRIMARY KEY,
	parent_hash TEXT,
	role        TEXT NOT NULL,
	content     TEXT NOT NULL,
	created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes(parent_hash);

CREATE TABLE IF NOT EXISTS heads (
	name       TEXT PRIMARY KEY,
	hash       TEXT,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// DefaultPath returns ~/.chatkeep/chatkeep.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not resolve home directory: %w", err)
	}
	return filepath.Join(home, ".chatkeep", "chatkeep.db"), nil
}

// Options configures a Store.
type Options struct {
	OnCorrupt storage.CorruptPolicy
	Logger    *zap.Logger
}

// Store is a storage.Store, storage.Locker and merkle.Storer backed by SQLite.
type Store struct {
	db        *sql.DB
	path      string
	lock      *flock.Flock // nil for ":memory:"
	onCorrupt storage.CorruptPolicy
	logger    *zap.Logger
}

var (
	_ storage.Store  = (*Store)(nil)
	_ storage.Locker = (*Store)(nil)
	_ merkle.Storer  = (*Store)(nil)
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New opens (creating if needed) the database at path.
// Use ":memory:" for an in-memory database.
func New(ctx context.Context, path string, opts Options) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, &storage.Error{Op: "open", Path: path, Err: err}
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, &storage.Error{Op: "open", Path: path, Err: err}
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, &storage.Error{Op: "open", Path: path, Err: fmt.Errorf("create schema: %w", err)}
	}

	if opts.OnCorrupt == "" {
		opts.OnCorrupt = storage.CorruptReset
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &Store{
		db:        db,
		path:      path,
		onCorrupt: opts.OnCorrupt,
		logger:    opts.Logger,
	}
	if path != ":memory:" {
		s.lock = flock.New(path + ".lock")
	}
	return s, nil
}

// Load walks the chain from the head back to its root.
func (s *Store) Load(ctx context.Context) (llm.Conversation, error) {
	head, err := s.head(ctx, s.db)
	if err != nil {
		return nil, &storage.Error{Op: "load", Path: s.path, Err: err}
	}
	if head == "" {
		return llm.Conversation{}, nil
	}

	ancestry, err := ancestry(ctx, s.db, head)
	if err == nil {
		err = checkRooted(ancestry)
	}
	if err != nil {
		return s.handleCorrupt(ctx, err)
	}

	nodes := merkle.Reverse(ancestry)
	conv := make(llm.Conversation, len(nodes))
	for i, n := range nodes {
		conv[i] = n.Turn
	}

	if err := conv.Validate(); err != nil {
		return s.handleCorrupt(ctx, err)
	}

	return conv, nil
}

func checkRooted(ancestry []*merkle.Node) error {
	root := ancestry[len(ancestry)-1]
	if root.ParentHash != nil {
		return merkle.ErrNotFound{Hash: *root.ParentHash}
	}
	return nil
}

func (s *Store) handleCorrupt(ctx context.Context, reason error) (llm.Conversation, error) {
	corrupt := &storage.CorruptError{Reason: reason}

	if s.onCorrupt == storage.CorruptStrict {
		return nil, &storage.Error{Op: "load", Path: s.path, Err: corrupt}
	}

	s.logger.Warn("corrupt conversation chain, resetting head",
		zap.String("path", s.path),
		zap.Error(corrupt),
	)
	if err := s.setHead(ctx, s.db, ""); err != nil {
		return nil, &storage.Error{Op: "load", Path: s.path, Err: err}
	}

	return llm.Conversation{}, nil
}

// Save stores every turn of conv as a node and points the head at the last one.
func (s *Store) Save(ctx context.Context, conv llm.Conversation) error {
	if err := conv.Validate(); err != nil {
		return &storage.Error{Op: "save", Path: s.path, Err: err}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &storage.Error{Op: "save", Path: s.path, Err: fmt.Errorf("begin transaction: %w", err)}
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	nodes := merkle.Chain(conv)
	var added int
	for _, n := range nodes {
		isNew, err := put(ctx, tx, n)
		if err != nil {
			return &storage.Error{Op: "save", Path: s.path, Err: err}
		}
		if isNew {
			added++
		}
	}

	head := ""
	if len(nodes) > 0 {
		head = nodes[len(nodes)-1].Hash
	}
	if err := s.setHead(ctx, tx, head); err != nil {
		return &storage.Error{Op: "save", Path: s.path, Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &storage.Error{Op: "save", Path: s.path, Err: fmt.Errorf("commit: %w", err)}
	}

	s.logger.Debug("conversation saved",
		zap.String("path", s.path),
		zap.Int("turns", len(conv)),
		zap.Int("new_nodes", added),
	)
	return nil
}

// Clear resets the head; stored nodes are kept.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.setHead(ctx, s.db, ""); err != nil {
		return &storage.Error{Op: "clear", Path: s.path, Err: err}
	}
	return nil
}

// Lock takes an exclusive advisory lock on <path>.lock, waiting until ctx is
// done. Every handle on the same database file excludes the others, across
// processes. In-memory databases have a single handle and need no lock.
func (s *Store) Lock(ctx context.Context) (func() error, error) {
	if s.lock == nil {
		return func() error { return nil }, nil
	}

	ok, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, &storage.Error{Op: "lock", Path: s.lock.Path(), Err: err}
	}
	if !ok {
		return nil, &storage.Error{Op: "lock", Path: s.lock.Path(), Err: errors.New("lock not acquired")}
	}
	return s.lock.Unlock, nil
}

// Close releases the lock if it is still held and closes the database.
func (s *Store) Close() error {
	if s.lock != nil && s.lock.Locked() {
		_ = s.lock.Unlock()
	}
	return s.db.Close()
}

// Put stores a node. If the node already exists (by hash), this is a no-op.
func (s *Store) Put(ctx context.Context, node *merkle.Node) (bool, error) {
	return put(ctx, s.db, node)
}

// Get retrieves a node by its hash.
func (s *Store) Get(ctx context.Context, hash string) (*merkle.Node, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT hash, parent_hash, role, content FROM nodes WHERE hash = ?`, hash)

	node, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, merkle.ErrNotFound{Hash: hash}
	}
	if err != nil {
		return nil, fmt.Errorf("get node: %w", err)
	}
	return node, nil
}

// Ancestry returns the path from a node back to its root (node first, root last).
func (s *Store) Ancestry(ctx context.Context, hash string) ([]*merkle.Node, error) {
	return ancestry(ctx, s.db, hash)
}

// NodeCount returns the number of stored nodes across all saves.
func (s *Store) NodeCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count nodes: %w", err)
	}
	return n, nil
}

func put(ctx context.Context, q queryer, node *merkle.Node) (bool, error) {
	if node == nil {
		return false, errors.New("cannot store nil node")
	}

	res, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO nodes (hash, parent_hash, role, content) VALUES (?, ?, ?, ?)`,
		node.Hash, node.ParentHash, string(node.Turn.Role), node.Turn.Content,
	)
	if err != nil {
		return false, fmt.Errorf("insert node %s: %w", node.Hash, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert node %s: %w", node.Hash, err)
	}
	return n > 0, nil
}

func ancestry(ctx context.Context, q queryer, hash string) ([]*merkle.Node, error) {
	rows, err := q.QueryContext(ctx, `
WITH RECURSIVE chain(hash, parent_hash, role, content, depth) AS (
	SELECT hash, parent_hash, role, content, 0 FROM nodes WHERE hash = ?
	UNION ALL
	SELECT n.hash, n.parent_hash, n.role, n.content, c.depth + 1
	FROM nodes n JOIN chain c ON n.hash = c.parent_hash
)
SELECT hash, parent_hash, role, content FROM chain ORDER BY depth`, hash)
	if err != nil {
		return nil, fmt.Errorf("query ancestry: %w", err)
	}
	defer rows.Close()

	var nodes []*merkle.Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ancestry: %w", err)
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ancestry: %w", err)
	}

	if len(nodes) == 0 {
		return nil, merkle.ErrNotFound{Hash: hash}
	}
	return nodes, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNode(row scanner) (*merkle.Node, error) {
	var (
		node   merkle.Node
		parent sql.NullString
		role   string
	)
	if err := row.Scan(&node.Hash, &parent, &role, &node.Turn.Content); err != nil {
		return nil, err
	}
	node.Turn.Role = llm.Role(role)
	if parent.Valid {
		node.ParentHash = &parent.String
	}
	return &node, nil
}

func (s *Store) head(ctx context.Context, q queryer) (string, error) {
	var hash sql.NullString
	err := q.QueryRowContext(ctx, `SELECT hash FROM heads WHERE name = ?`, headName).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read head: %w", err)
	}
	return hash.String, nil
}

func (s *Store) setHead(ctx context.Context, q queryer, hash string) error {
	var value any
	if hash != "" {
		value = hash
	}

	_, err := q.ExecContext(ctx, `
INSERT INTO heads (name, hash, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(name) DO UPDATE SET hash = excluded.hash, updated_at = excluded.updated_at`,
		headName, value)
	if err != nil {
		return fmt.Errorf("set head: %w", err)
	}
	return nil
}
