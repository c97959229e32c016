// Package terminal is the client side of the sync protocol: a durable
// FIFO operation queue, the reconciler that drains it, and the
// connectivity monitor that starts and stops the drain.
package terminal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"tillsync/internal/domain"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Queue is the terminal's durable write-ahead intention log. Every action
// is appended here first, online or not, so replay semantics are uniform.
type Queue struct {
	db         *sqlx.DB
	terminalID string
	notify     chan struct{}
}

func OpenQueue(dsn, terminalID string) (*Queue, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		return nil, err
	}

	schema := `
CREATE TABLE IF NOT EXISTS queued_operations(
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  id TEXT NOT NULL UNIQUE,
  resource TEXT NOT NULL,
  intent TEXT NOT NULL,
  payload TEXT NOT NULL,
  idempotency_token TEXT NOT NULL,
  retry_count INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending','in_flight','failed')),
  reason TEXT,
  created_at TEXT DEFAULT CURRENT_TIMESTAMP
);
`
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}
	return &Queue{db: db, terminalID: terminalID, notify: make(chan struct{}, 1)}, nil
}

func (q *Queue) Close() error { return q.db.Close() }

// Notify signals when new work lands; the reconciler selects on it while
// idle.
func (q *Queue) Notify() <-chan struct{} { return q.notify }

// Enqueue durably appends an operation. Never touches the network and
// never blocks on connectivity state. The operation id doubles as the
// idempotency token the server dedups on.
func (q *Queue) Enqueue(ctx context.Context, resource, intent string, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	id := fmt.Sprintf("%s-%s", q.terminalID, uuid.NewString())
	_, err = q.db.ExecContext(ctx, `
	  INSERT INTO queued_operations(id, resource, intent, payload, idempotency_token, status, created_at)
	  VALUES(?, ?, ?, ?, ?, 'pending', CURRENT_TIMESTAMP)
	`, id, resource, intent, string(raw), id)
	if err != nil {
		return "", err
	}
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return id, nil
}

// Peek returns the head of the queue without removing it, or nil when no
// retryable operation remains. Dead-lettered rows are skipped; everything
// else replays in strict seq order, including an in_flight row left over
// from a crash mid-submit (the idempotency token makes that replay safe).
func (q *Queue) Peek(ctx context.Context) (*domain.QueuedOperation, error) {
	var op domain.QueuedOperation
	err := q.db.GetContext(ctx, &op, `
	  SELECT seq, id, resource, intent, payload, idempotency_token,
	         retry_count, status, COALESCE(reason,'') AS reason, created_at
	  FROM queued_operations
	  WHERE status != 'failed'
	  ORDER BY seq
	  LIMIT 1
	`)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &op, nil
}

// MarkInFlight flags the head while a submission is outstanding.
func (q *Queue) MarkInFlight(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `UPDATE queued_operations SET status='in_flight' WHERE id=?`, id)
	return err
}

// MarkRetryable returns an op to pending and bumps its persisted retry
// counter after a transient failure.
func (q *Queue) MarkRetryable(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `
	  UPDATE queued_operations SET status='pending', retry_count=retry_count+1 WHERE id=?
	`, id)
	return err
}

// MarkAcknowledged removes a confirmed operation. Called only after the
// server reported success or already-applied.
func (q *Queue) MarkAcknowledged(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM queued_operations WHERE id=?`, id)
	return err
}

// MarkFailedPermanent dead-letters an operation: kept for the operator,
// excluded from replay, and no longer blocking later operations.
func (q *Queue) MarkFailedPermanent(ctx context.Context, id, reason string) error {
	_, err := q.db.ExecContext(ctx, `
	  UPDATE queued_operations SET status='failed', reason=? WHERE id=?
	`, reason, id)
	return err
}

// DeadLetters lists permanently failed operations, oldest first.
func (q *Queue) DeadLetters(ctx context.Context) ([]domain.QueuedOperation, error) {
	var out []domain.QueuedOperation
	err := q.db.SelectContext(ctx, &out, `
	  SELECT seq, id, resource, intent, payload, idempotency_token,
	         retry_count, status, COALESCE(reason,'') AS reason, created_at
	  FROM queued_operations
	  WHERE status = 'failed'
	  ORDER BY seq
	`)
	return out, err
}

// Depth counts operations still awaiting acknowledgement.
func (q *Queue) Depth(ctx context.Context) (int, error) {
	var n int
	err := q.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM queued_operations WHERE status != 'failed'`)
	return n, err
}
