package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// SQLiteStateStore implements StateStore on a local SQLite file. All keys are
// namespaced by scope, so several embedding origins can share one file.
type SQLiteStateStore struct {
	db    *sql.DB
	scope string
}

// NewSQLiteState opens (or creates) a state file at dbPath for scope.
func NewSQLiteState(dbPath, scope string) (*SQLiteStateStore, error) {
	db, err := openSQLite(dbPath)
	if err != nil {
		return nil, err
	}

	query := `
	CREATE TABLE IF NOT EXISTS client_state (
		scope TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (scope, key)
	);`
	if _, err := db.Exec(query); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state schema: %w", err)
	}

	return &SQLiteStateStore{db: db, scope: scope}, nil
}

// Get returns the value stored under key.
func (s *SQLiteStateStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM client_state WHERE scope = ? AND key = ?`, s.scope, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get state %q: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key.
func (s *SQLiteStateStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO client_state (scope, key, value) VALUES (?, ?, ?)
		ON CONFLICT(scope, key) DO UPDATE SET value = excluded.value`,
		s.scope, key, value)
	if err != nil {
		return fmt.Errorf("set state %q: %w", key, err)
	}
	return nil
}

// Delete removes keys within a single transaction.
func (s *SQLiteStateStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin state delete: %w", err)
	}
	for _, key := range keys {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM client_state WHERE scope = ? AND key = ?`, s.scope, key); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("delete state %q: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit state delete: %w", err)
	}
	return nil
}

// Close closes the state file.
func (s *SQLiteStateStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close state database: %w", err)
	}
	return nil
}

// MemoryStateStore is a StateStore that lives only as long as the process.
type MemoryStateStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryState creates an empty in-memory state store.
func NewMemoryState() *MemoryStateStore {
	return &MemoryStateStore{values: make(map[string]string)}
}

// Get returns the value stored under key.
func (m *MemoryStateStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

// Set stores value under key.
func (m *MemoryStateStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// Delete removes keys.
func (m *MemoryStateStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

// Close is a no-op.
func (m *MemoryStateStore) Close() error { return nil }
