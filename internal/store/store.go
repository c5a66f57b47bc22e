// Package store provides the local snapshot store for MasterNote.
//
// State is persisted as one JSON blob per domain key (tasks, chat sessions,
// habits, notes, settings) in an embedded SQLite database with WAL mode.
// The store is read once at startup and thereafter treated as a write-only
// mirror of in-memory state. Two processes sharing the same file are not
// coordinated: last writer wins.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Domain keys. These identify the per-domain snapshot slots and match the
// storage identities the application has always used.
const (
	KeyTasks         = "masternote-storage"
	KeySessions      = "bart_chats_backup"
	KeyHabits        = "bart_habits"
	KeyNotes         = "nexus_notes"
	KeyProjects      = "nexus_projects"
	KeySettings      = "bart_settings"
	KeyTheme         = "bart_theme"
	KeySelectedModel = "selected_model"
)

// ConversationHistoryKey returns the snapshot key for the legacy conversation
// history of a user. An empty user id maps to the guest slot.
func ConversationHistoryKey(userID string) string {
	if userID == "" {
		userID = "guest"
	}
	return "conversation_history_" + userID
}

// Store wraps the SQLite connection holding the per-domain snapshots.
type Store struct {
	conn   *sql.DB
	path   string
	logger *log.Logger
}

// Open creates a snapshot store at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent reads and
// the schema is created if missing. The caller MUST call Close() when done.
func Open(path string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path, logger: logger}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := s.conn.Exec(pragma); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`
	if _, err := s.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// RawDB returns the underlying sql.DB connection so other components (the
// outbox) can share the same database file.
func (s *Store) RawDB() *sql.DB {
	return s.conn
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Printf("Warning: failed to checkpoint WAL: %v", err)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	s.conn = nil
	return nil
}

// Get loads the snapshot stored under key into v.
//
// Returns false when no snapshot exists. An unparsable snapshot is treated
// the same as a missing one: it is logged and v is left at its default, so
// storage corruption never crashes startup.
func (s *Store) Get(key string, v any) (bool, error) {
	var raw string
	err := s.conn.QueryRow("SELECT value FROM snapshots WHERE key = ?", key).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read snapshot %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		s.logger.Printf("Warning: snapshot %s is corrupt, using defaults: %v", key, err)
		return false, nil
	}
	return true, nil
}

// Put stores v as the snapshot under key, replacing any previous value.
func (s *Store) Put(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot %s: %w", key, err)
	}
	query := `
	INSERT INTO snapshots (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at
	`
	if _, err := s.conn.Exec(query, key, string(data), time.Now().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", key, err)
	}
	return nil
}

// Delete removes the snapshot under key. Missing keys are a no-op.
func (s *Store) Delete(key string) error {
	if _, err := s.conn.Exec("DELETE FROM snapshots WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete snapshot %s: %w", key, err)
	}
	return nil
}

// Keys returns all snapshot keys currently present.
func (s *Store) Keys() ([]string, error) {
	rows, err := s.conn.Query("SELECT key FROM snapshots ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshot keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshot keys: %w", err)
	}
	return keys, nil
}
