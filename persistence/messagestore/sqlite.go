package messagestore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a single-file SQLite database,
// grounded on graph/store.SQLiteStore's WAL/busy-timeout/transaction
// idioms.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (creating if needed) a message/trace database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("messagestore: open sqlite: %w", err)
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
			return nil, fmt.Errorf("messagestore: %s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS threads (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			created_at_ms INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			thread_id TEXT NOT NULL,
			message_index INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at_ms INTEGER NOT NULL,
			PRIMARY KEY (thread_id, message_index)
		)`,
		`CREATE TABLE IF NOT EXISTS trace_events (
			message_id TEXT NOT NULL,
			thread_id TEXT NOT NULL,
			run_id TEXT NOT NULL,
			event_index INTEGER NOT NULL,
			kind TEXT NOT NULL,
			payload TEXT NOT NULL,
			timestamp_ms INTEGER NOT NULL,
			PRIMARY KEY (message_id, event_index)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("messagestore: create table: %w", err)
		}
	}
	return nil
}

// EnsureThread implements Store.
func (s *SQLiteStore) EnsureThread(ctx context.Context, threadID, name string, createdAtMS int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO threads (id, name, created_at_ms)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, threadID, name, createdAtMS)
	if err != nil {
		return fmt.Errorf("messagestore: ensure thread: %w", err)
	}
	return nil
}

// AppendMessage implements Store, assigning the next dense
// message_index inside a transaction so concurrent appends to the same
// thread never collide or leave a gap, and returning the assigned
// (message_id, index) per spec.md's append_message.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg Message) (string, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", 0, fmt.Errorf("messagestore: append message: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var index int
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(message_index) + 1, 0) FROM messages WHERE thread_id = ?
	`, msg.ThreadID).Scan(&index); err != nil {
		return "", 0, fmt.Errorf("messagestore: append message: next index: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (thread_id, message_index, role, content, created_at_ms)
		VALUES (?, ?, ?, ?, ?)
	`, msg.ThreadID, index, msg.Role, msg.Content, msg.CreatedAtMS); err != nil {
		return "", 0, fmt.Errorf("messagestore: append message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", 0, fmt.Errorf("messagestore: append message: commit: %w", err)
	}
	return messageID(msg.ThreadID, index), index, nil
}

// messageID computes the composite key a message is addressed by
// everywhere else in this package (TraceEvent.MessageID, GetHistory).
func messageID(threadID string, index int) string {
	return threadID + "#" + strconv.Itoa(index)
}

// Messages implements Store.
func (s *SQLiteStore) Messages(ctx context.Context, threadID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT thread_id, message_index, role, content, created_at_ms
		FROM messages
		WHERE thread_id = ?
		ORDER BY message_index ASC
	`, threadID)
	if err != nil {
		return nil, fmt.Errorf("messagestore: messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ThreadID, &m.MessageIndex, &m.Role, &m.Content, &m.CreatedAtMS); err != nil {
			return nil, fmt.Errorf("messagestore: scan message: %w", err)
		}
		m.MessageID = messageID(m.ThreadID, m.MessageIndex)
		out = append(out, m)
	}
	return out, rows.Err()
}

// ReconcileTrace implements Store's replace-when-longer semantics,
// keyed by messageID rather than (thread_id, run_id): a message is
// reconciled exactly once, regardless of which run produced its trace.
func (s *SQLiteStore) ReconcileTrace(ctx context.Context, messageID string, events []TraceEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("messagestore: reconcile trace: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM trace_events WHERE message_id = ?
	`, messageID).Scan(&existing); err != nil {
		return fmt.Errorf("messagestore: reconcile trace: count: %w", err)
	}

	if len(events) <= existing {
		return tx.Commit() // shorter or equal resubmission: keep what's stored
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM trace_events WHERE message_id = ?
	`, messageID); err != nil {
		return fmt.Errorf("messagestore: reconcile trace: delete: %w", err)
	}

	for _, e := range events {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO trace_events (message_id, thread_id, run_id, event_index, kind, payload, timestamp_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, messageID, e.ThreadID, e.RunID, e.EventIndex, e.Kind, string(e.Payload), e.TimestampMS); err != nil {
			return fmt.Errorf("messagestore: reconcile trace: insert: %w", err)
		}
	}

	return tx.Commit()
}

// Trace implements Store.
func (s *SQLiteStore) Trace(ctx context.Context, messageID string) ([]TraceEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, thread_id, run_id, event_index, kind, payload, timestamp_ms
		FROM trace_events
		WHERE message_id = ?
		ORDER BY event_index ASC
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("messagestore: trace: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []TraceEvent
	for rows.Next() {
		var e TraceEvent
		var payload string
		if err := rows.Scan(&e.MessageID, &e.ThreadID, &e.RunID, &e.EventIndex, &e.Kind, &payload, &e.TimestampMS); err != nil {
			return nil, fmt.Errorf("messagestore: scan trace event: %w", err)
		}
		e.Payload = []byte(payload)
		out = append(out, e)
	}
	return out, rows.Err()
}

// TraceCount implements Store.
func (s *SQLiteStore) TraceCount(ctx context.Context, messageID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM trace_events WHERE message_id = ?
	`, messageID).Scan(&count); err != nil {
		return 0, fmt.Errorf("messagestore: trace count: %w", err)
	}
	return count, nil
}

// DeleteThread implements Store, removing a thread and every message
// and trace event belonging to it. Trace events are keyed by
// message_id, not thread_id, so they are removed via the message_id
// prefix ("<thread_id>#") the composite key always carries.
func (s *SQLiteStore) DeleteThread(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("messagestore: delete thread: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	prefix := threadID + "#"
	if _, err := tx.ExecContext(ctx, `DELETE FROM trace_events WHERE substr(message_id, 1, length(?)) = ?`, prefix, prefix); err != nil {
		return fmt.Errorf("messagestore: delete thread: trace events: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("messagestore: delete thread: messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM threads WHERE id = ?`, threadID); err != nil {
		return fmt.Errorf("messagestore: delete thread: thread: %w", err)
	}

	return tx.Commit()
}

// ListThreads implements Store.
func (s *SQLiteStore) ListThreads(ctx context.Context) ([]ThreadSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at_ms FROM threads ORDER BY created_at_ms ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("messagestore: list threads: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ThreadSummary
	for rows.Next() {
		var t ThreadSummary
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAtMS); err != nil {
			return nil, fmt.Errorf("messagestore: scan thread: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetHistory implements Store by fetching threadID's messages and, for
// each, its persisted trace (empty for user messages, which never
// carry one).
func (s *SQLiteStore) GetHistory(ctx context.Context, threadID string) ([]MessageWithTrace, error) {
	msgs, err := s.Messages(ctx, threadID)
	if err != nil {
		return nil, err
	}

	out := make([]MessageWithTrace, len(msgs))
	for i, m := range msgs {
		trace, err := s.Trace(ctx, m.MessageID)
		if err != nil {
			return nil, err
		}
		out[i] = MessageWithTrace{Message: m, Trace: trace}
	}
	return out, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
