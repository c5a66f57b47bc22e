// Package outbox implements the durable write queue between local state and
// the hosted backend.
//
// Local mutations are authoritative and never wait on the network. Instead,
// each mutation enqueues an operation row here; a dispatcher drains due rows
// in the background with exponential backoff. The queue survives restarts
// because it shares the application's SQLite database.
package outbox

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/masternote/masternote/internal/chat"
	"github.com/masternote/masternote/internal/task"
)

// Operation names the remote action an entry represents.
const (
	OpUpsertTask     = "upsert_task"
	OpDeleteTask     = "delete_task"
	OpPutPreferences = "put_preferences"
)

// Entry statuses.
const (
	StatusPending = "pending"
	StatusFailed  = "failed"
)

const (
	baseBackoff = time.Second
	maxBackoff  = 5 * time.Minute
	maxAttempts = 8
)

// Entry is one queued remote operation.
type Entry struct {
	ID            int64
	Operation     string
	Payload       []byte
	Attempts      int
	NextAttemptAt time.Time
	Status        string
}

// Queue is the persistent operation queue. It satisfies the mirror
// interfaces of the local stores, so a store mutation becomes an enqueue.
type Queue struct {
	mu     sync.Mutex
	db     *sql.DB
	logger *log.Logger
	now    func() time.Time
}

// New prepares the queue schema on the given database.
func New(db *sql.DB, logger *log.Logger) (*Queue, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[outbox] ", log.LstdFlags)
	}
	q := &Queue{db: db, logger: logger, now: time.Now}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS outbox (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			operation TEXT NOT NULL,
			payload TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			next_attempt_at INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending'
		)
	`); err != nil {
		return nil, fmt.Errorf("failed to create outbox table: %w", err)
	}
	return q, nil
}

// Enqueue appends a pending operation, due immediately.
func (q *Queue) Enqueue(operation string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", operation, err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	_, err = q.db.Exec(
		`INSERT INTO outbox (operation, payload, attempts, next_attempt_at, status)
		 VALUES (?, ?, 0, ?, ?)`,
		operation, string(data), q.now().UnixNano(), StatusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", operation, err)
	}
	return nil
}

// Due returns pending entries whose next attempt time has passed, oldest
// first, up to limit.
func (q *Queue) Due(limit int) ([]Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	rows, err := q.db.Query(
		`SELECT id, operation, payload, attempts, next_attempt_at, status
		 FROM outbox
		 WHERE status = ? AND next_attempt_at <= ?
		 ORDER BY id ASC
		 LIMIT ?`,
		StatusPending, q.now().UnixNano(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var payload string
		var nextAt int64
		if err := rows.Scan(&e.ID, &e.Operation, &payload, &e.Attempts, &nextAt, &e.Status); err != nil {
			return nil, fmt.Errorf("failed to scan outbox row: %w", err)
		}
		e.Payload = []byte(payload)
		e.NextAttemptAt = time.Unix(0, nextAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkDone removes a delivered entry.
func (q *Queue) MarkDone(id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, err := q.db.Exec(`DELETE FROM outbox WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete outbox entry %d: %w", id, err)
	}
	return nil
}

// MarkFailed records a failed delivery attempt. The entry is rescheduled
// with exponential backoff until the attempt limit, after which it is
// parked as failed and skipped by Due.
func (q *Queue) MarkFailed(id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	var attempts int
	if err := q.db.QueryRow(`SELECT attempts FROM outbox WHERE id = ?`, id).Scan(&attempts); err != nil {
		return fmt.Errorf("failed to read outbox entry %d: %w", id, err)
	}
	attempts++
	if attempts >= maxAttempts {
		if _, err := q.db.Exec(
			`UPDATE outbox SET attempts = ?, status = ? WHERE id = ?`,
			attempts, StatusFailed, id,
		); err != nil {
			return fmt.Errorf("failed to park outbox entry %d: %w", id, err)
		}
		q.logger.Printf("Warning: outbox entry %d parked after %d attempts", id, attempts)
		return nil
	}

	next := q.now().Add(backoff(attempts))
	if _, err := q.db.Exec(
		`UPDATE outbox SET attempts = ?, next_attempt_at = ? WHERE id = ?`,
		attempts, next.UnixNano(), id,
	); err != nil {
		return fmt.Errorf("failed to reschedule outbox entry %d: %w", id, err)
	}
	return nil
}

// PendingCount reports how many entries still await delivery.
func (q *Queue) PendingCount() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var n int
	err := q.db.QueryRow(`SELECT COUNT(*) FROM outbox WHERE status = ?`, StatusPending).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count outbox entries: %w", err)
	}
	return n, nil
}

// FailedCount reports how many entries were parked after exhausting retries.
func (q *Queue) FailedCount() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var n int
	err := q.db.QueryRow(`SELECT COUNT(*) FROM outbox WHERE status = ?`, StatusFailed).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count failed entries: %w", err)
	}
	return n, nil
}

// RetryFailed returns parked entries to the pending pool, due immediately,
// and reports how many were re-queued.
func (q *Queue) RetryFailed() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	res, err := q.db.Exec(
		`UPDATE outbox SET status = ?, attempts = 0, next_attempt_at = ? WHERE status = ?`,
		StatusPending, q.now().UnixNano(), StatusFailed,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to retry parked entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(n), nil
}

func backoff(attempts int) time.Duration {
	d := baseBackoff << (attempts - 1)
	if d > maxBackoff || d <= 0 {
		return maxBackoff
	}
	return d
}

// UpsertTask enqueues a task upsert. Implements the task store's mirror.
func (q *Queue) UpsertTask(t task.Task) {
	if err := q.Enqueue(OpUpsertTask, t); err != nil {
		q.logger.Printf("Warning: failed to queue task upsert: %v", err)
	}
}

// DeleteTask enqueues a task deletion. Implements the task store's mirror.
func (q *Queue) DeleteTask(id string) {
	if err := q.Enqueue(OpDeleteTask, id); err != nil {
		q.logger.Printf("Warning: failed to queue task delete: %v", err)
	}
}

// PutPreferences enqueues a chat preferences merge. Implements the chat
// store's settings mirror.
func (q *Queue) PutPreferences(p chat.Preferences) {
	if err := q.Enqueue(OpPutPreferences, p); err != nil {
		q.logger.Printf("Warning: failed to queue preferences: %v", err)
	}
}
