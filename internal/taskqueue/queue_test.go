package taskqueue

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openSQLiteQueue(t *testing.T) Queue {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	q, err := NewSQLiteQueue(db)
	require.NoError(t, err)
	return q
}

func runQueueSuite(t *testing.T, open func(t *testing.T) Queue) {
	ctx := context.Background()

	t.Run("fifo order", func(t *testing.T) {
		q := open(t)
		require.NoError(t, q.Enqueue(ctx, Task{Type: TaskTypeExecute, InstanceID: "first"}))
		require.NoError(t, q.Enqueue(ctx, Task{Type: TaskTypeExecute, InstanceID: "second"}))
		assert.Equal(t, 2, q.Len())

		got, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, "first", got.InstanceID)

		got, err = q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, "second", got.InstanceID)
		assert.Equal(t, 0, q.Len())
	})

	t.Run("not before delays eligibility", func(t *testing.T) {
		q := open(t)
		require.NoError(t, q.Enqueue(ctx, Task{
			Type:       TaskTypeScheduled,
			JobName:    "later",
			NotBefore:  time.Now().Add(120 * time.Millisecond),
			EnqueuedAt: time.Now(),
		}))
		require.NoError(t, q.Enqueue(ctx, Task{Type: TaskTypeExecute, InstanceID: "now"}))

		// The immediately eligible task wins even though it was enqueued
		// second.
		start := time.Now()
		got, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, "now", got.InstanceID)

		got, err = q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, "later", got.JobName)
		assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	})

	t.Run("dequeue honors context cancellation", func(t *testing.T) {
		q := open(t)
		cctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()

		_, err := q.Dequeue(cctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("payload roundtrip", func(t *testing.T) {
		q := open(t)
		require.NoError(t, q.Enqueue(ctx, Task{
			Type:    TaskTypeScheduled,
			JobName: "flowline.delay",
			Payload: map[string]string{"instanceId": "in-1", "stepId": "wait"},
		}))

		got, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, TaskTypeScheduled, got.Type)
		assert.Equal(t, "flowline.delay", got.JobName)
		assert.Equal(t, map[string]string{"instanceId": "in-1", "stepId": "wait"}, got.Payload)
	})
}

func TestInMemoryQueue(t *testing.T) {
	runQueueSuite(t, func(t *testing.T) Queue { return NewInMemoryQueue() })
}

func TestSQLiteQueue(t *testing.T) {
	runQueueSuite(t, openSQLiteQueue)
}

func TestQueueSchedulerRoutesToHandler(t *testing.T) {
	ctx := context.Background()
	q := NewInMemoryQueue()
	s := NewQueueScheduler(q)

	var fired []map[string]string
	s.OnDue("flowline.delay", func(ctx context.Context, payload map[string]string) error {
		fired = append(fired, payload)
		return nil
	})

	id, err := s.Schedule(ctx, "flowline.delay", time.Now(), map[string]string{"instanceId": "in-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	task, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, TaskTypeScheduled, task.Type)

	require.NoError(t, s.Fire(ctx, task.JobName, task.Payload))
	require.Len(t, fired, 1)
	assert.Equal(t, "in-1", fired[0]["instanceId"])
}

func TestQueueSchedulerUnknownJob(t *testing.T) {
	s := NewQueueScheduler(NewInMemoryQueue())
	err := s.Fire(context.Background(), "nobody-home", nil)
	assert.Error(t, err)
}
