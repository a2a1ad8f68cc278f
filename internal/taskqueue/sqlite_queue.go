package taskqueue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// SQLiteQueue is a persistent task queue backed by SQLite. It uses simple
// FIFO semantics within eligibility order, based on an auto-incrementing
// row ID, and supports delayed tasks via the not_before column.
type SQLiteQueue struct {
	db           *sql.DB
	pollInterval time.Duration
}

// NewSQLiteQueue initializes the tasks table in the given DB and returns a
// new queue.
func NewSQLiteQueue(db *sql.DB) (*SQLiteQueue, error) {
	q := &SQLiteQueue{
		db:           db,
		pollInterval: 20 * time.Millisecond,
	}
	if err := q.initSchema(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *SQLiteQueue) initSchema() error {
	_, err := q.db.Exec(`
		CREATE TABLE IF NOT EXISTS wf_tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			instance_id TEXT,
			job_name TEXT,
			payload BLOB,
			enqueued_at INTEGER NOT NULL,
			not_before INTEGER NOT NULL
		);
	`)
	return err
}

var _ Queue = (*SQLiteQueue)(nil)

func (q *SQLiteQueue) Enqueue(ctx context.Context, t Task) error {
	var payload []byte
	if t.Payload != nil {
		var err error
		payload, err = json.Marshal(t.Payload)
		if err != nil {
			return err
		}
	}

	now := time.Now()
	enqueuedAt := now.UnixNano()

	var notBefore int64
	if t.NotBefore.IsZero() {
		notBefore = enqueuedAt
	} else {
		notBefore = t.NotBefore.UnixNano()
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO wf_tasks (type, instance_id, job_name, payload, enqueued_at, not_before)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(t.Type),
		t.InstanceID,
		t.JobName,
		payload,
		enqueuedAt,
		notBefore,
	)
	return err
}

func (q *SQLiteQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		now := time.Now().UnixNano()

		tx, err := q.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, err
		}

		var (
			id          int64
			typeStr     string
			instanceID  sql.NullString
			jobName     sql.NullString
			payload     []byte
			enqueuedInt int64
			notBefore   int64
		)

		row := tx.QueryRowContext(ctx, `
			SELECT id, type, instance_id, job_name, payload, enqueued_at, not_before
			FROM wf_tasks
			WHERE not_before <= ?
			ORDER BY not_before, id
			LIMIT 1`, now)
		err = row.Scan(&id, &typeStr, &instanceID, &jobName, &payload, &enqueuedInt, &notBefore)
		if err != nil {
			_ = tx.Rollback()
			if errors.Is(err, sql.ErrNoRows) {
				// Nothing eligible: sleep a bit and retry.
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(q.pollInterval):
					continue
				}
			}
			return nil, err
		}

		// Delete the row we just claimed.
		if _, err := tx.ExecContext(ctx, `DELETE FROM wf_tasks WHERE id = ?`, id); err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}

		var decoded map[string]string
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &decoded); err != nil {
				return nil, err
			}
		}

		task := &Task{
			Type:       TaskType(typeStr),
			InstanceID: instanceID.String,
			JobName:    jobName.String,
			Payload:    decoded,
			EnqueuedAt: time.Unix(0, enqueuedInt),
			NotBefore:  time.Unix(0, notBefore),
		}
		return task, nil
	}
}

func (q *SQLiteQueue) Len() int {
	var n int
	if err := q.db.QueryRow(`SELECT COUNT(*) FROM wf_tasks`).Scan(&n); err != nil {
		return 0
	}
	return n
}
