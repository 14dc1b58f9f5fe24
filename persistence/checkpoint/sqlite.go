package checkpoint

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a single-file SQLite database, using
// the same WAL/busy-timeout configuration as graph/store.SQLiteStore.
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
}

// NewSQLiteStore opens (creating if needed) a checkpoint database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("checkpoint: %s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS checkpoints (
			id TEXT PRIMARY KEY,
			thread_id TEXT NOT NULL,
			parent_id TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL,
			created_at_ms INTEGER NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("checkpoint: create table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_checkpoints_thread ON checkpoints(thread_id, created_at_ms)"); err != nil {
		return fmt.Errorf("checkpoint: create index: %w", err)
	}
	return nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, cp Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (id, thread_id, parent_id, state, created_at_ms)
		VALUES (?, ?, ?, ?, ?)
	`, cp.ID, cp.ThreadID, cp.ParentID, string(cp.StateJSON), cp.CreatedAtMS)
	if err != nil {
		return fmt.Errorf("checkpoint: save: %w", err)
	}
	return nil
}

// Latest implements Store.
func (s *SQLiteStore) Latest(ctx context.Context, threadID string) (Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cp Checkpoint
	var state string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, thread_id, parent_id, state, created_at_ms
		FROM checkpoints
		WHERE thread_id = ?
		ORDER BY created_at_ms DESC
		LIMIT 1
	`, threadID).Scan(&cp.ID, &cp.ThreadID, &cp.ParentID, &state, &cp.CreatedAtMS)
	if err == sql.ErrNoRows {
		return Checkpoint{}, ErrNotFound
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("checkpoint: latest: %w", err)
	}
	cp.StateJSON = []byte(state)
	return cp, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cp Checkpoint
	var state string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, thread_id, parent_id, state, created_at_ms
		FROM checkpoints
		WHERE id = ?
	`, id).Scan(&cp.ID, &cp.ThreadID, &cp.ParentID, &state, &cp.CreatedAtMS)
	if err == sql.ErrNoRows {
		return Checkpoint{}, ErrNotFound
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("checkpoint: get: %w", err)
	}
	cp.StateJSON = []byte(state)
	return cp, nil
}

// DeleteThread implements Store.
func (s *SQLiteStore) DeleteThread(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("checkpoint: delete thread: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
