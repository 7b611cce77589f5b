// ABOUTME: SQLite-backed session registry using modernc.org/sqlite
// ABOUTME: Maps namespaced session keys to stable session IDs with automatic schema creation

package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound indicates no session exists for the given key.
var ErrNotFound = errors.New("session not found")

// Session binds an external conversation to the gateway's session model.
type Session struct {
	ID         string
	Key        string
	CreatedAt  time.Time
	LastSeenAt time.Time
}

// SQLiteStore persists sessions in SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a session store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "session-store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id           TEXT PRIMARY KEY,
			session_key  TEXT NOT NULL UNIQUE,
			created_at   TIMESTAMP NOT NULL,
			last_seen_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_key ON sessions(session_key);
	`)
	return err
}

// Ensure returns the session for key, creating it on first use and bumping
// last_seen_at otherwise.
func (s *SQLiteStore) Ensure(ctx context.Context, key string) (*Session, error) {
	now := time.Now().UTC()

	existing, err := s.Get(ctx, key)
	if err == nil {
		_, err = s.db.ExecContext(ctx,
			"UPDATE sessions SET last_seen_at = ? WHERE id = ?", now, existing.ID)
		if err != nil {
			return nil, fmt.Errorf("updating session: %w", err)
		}
		existing.LastSeenAt = now
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	sess := &Session{
		ID:         uuid.New().String(),
		Key:        key,
		CreatedAt:  now,
		LastSeenAt: now,
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO sessions (id, session_key, created_at, last_seen_at) VALUES (?, ?, ?, ?)",
		sess.ID, sess.Key, sess.CreatedAt, sess.LastSeenAt)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	s.logger.Debug("session created", "session_id", sess.ID, "session_key", key)
	return sess, nil
}

// Get returns the session for key, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, key string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, session_key, created_at, last_seen_at FROM sessions WHERE session_key = ?", key)

	var sess Session
	err := row.Scan(&sess.ID, &sess.Key, &sess.CreatedAt, &sess.LastSeenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	return &sess, nil
}

// Count returns the number of registered sessions.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting sessions: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
