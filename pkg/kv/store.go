// pkg/kv/store.go
package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // embedded SQLite driver
)

// Store is a durable namespaced key-value store backed by an embedded
// SQLite file. One file is shared by every agent process using the same
// profile directory, so a write from one process becomes visible to the
// others. Each namespace holds a single serialized value plus a version
// counter that increases on every write; watchers poll the counters to
// detect changes made by other processes.
type Store struct {
	db *sqlx.DB
}

// Open opens (creating if necessary) the store file inside dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}
	path := filepath.Join(dir, "records.db")

	db, err := sqlx.Connect("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}
	// Writers queue on the single SQLite write lock.
	db.SetMaxOpenConns(1)

	schema := `CREATE TABLE IF NOT EXISTS namespaces (
		name       TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		version    INTEGER NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize record store schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the current value and version of a namespace. A namespace
// that was never written returns (nil, 0, nil).
func (s *Store) Get(ctx context.Context, namespace string) ([]byte, int64, error) {
	var row struct {
		Value   []byte `db:"value"`
		Version int64  `db:"version"`
	}
	err := s.db.GetContext(ctx, &row, `SELECT value, version FROM namespaces WHERE name = ?`, namespace)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read namespace %s: %w", namespace, err)
	}
	return row.Value, row.Version, nil
}

// Put overwrites a namespace value, bumping its version. Last writer wins.
func (s *Store) Put(ctx context.Context, namespace string, value []byte) error {
	return s.Update(ctx, func(tx Txn) error {
		return tx.Put(namespace, value)
	})
}

// Txn exposes reads and writes scoped to one store transaction. Writes
// through the same Txn commit atomically, which makes it the unit for any
// read-modify-write that carries an invariant: the value read inside the
// Txn cannot be changed by another process before the write lands.
type Txn interface {
	Get(namespace string) ([]byte, error)
	Put(namespace string, value []byte) error
}

type storeTxn struct {
	ctx     context.Context
	tx      *sqlx.Tx
	written map[string]int64 // version committed by a Put in this txn
}

func (t *storeTxn) Get(namespace string) ([]byte, error) {
	var value []byte
	err := t.tx.GetContext(t.ctx, &value, `SELECT value FROM namespaces WHERE name = ?`, namespace)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read namespace %s: %w", namespace, err)
	}
	return value, nil
}

func (t *storeTxn) Put(namespace string, value []byte) error {
	version, ok := t.written[namespace]
	if !ok {
		var current int64
		err := t.tx.GetContext(t.ctx, &current, `SELECT version FROM namespaces WHERE name = ?`, namespace)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to read namespace version %s: %w", namespace, err)
		}
		version = current + 1
	}
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO namespaces (name, value, version, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value, version = excluded.version, updated_at = excluded.updated_at`,
		namespace, value, version, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write namespace %s: %w", namespace, err)
	}
	t.written[namespace] = version
	return nil
}

// Update runs fn inside one store transaction. If fn returns an error the
// transaction is rolled back and nothing is persisted.
func (s *Store) Update(ctx context.Context, fn func(tx Txn) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin store transaction: %w", err)
	}
	t := &storeTxn{ctx: ctx, tx: tx, written: make(map[string]int64)}
	if err := fn(t); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit store transaction: %w", err)
	}
	return nil
}

// Versions returns the current version of each listed namespace.
func (s *Store) Versions(ctx context.Context, namespaces []string) (map[string]int64, error) {
	out := make(map[string]int64, len(namespaces))
	for _, ns := range namespaces {
		_, v, err := s.Get(ctx, ns)
		if err != nil {
			return nil, err
		}
		out[ns] = v
	}
	return out, nil
}
