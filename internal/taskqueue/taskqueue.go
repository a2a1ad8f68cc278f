package taskqueue

import (
	"context"
	"time"
)

// TaskType identifies what the worker should do.
type TaskType string

const (
	// TaskTypeExecute re-enters the engine for an instance (initial kickoff
	// after dispatch, or one task per branch after a fork).
	TaskTypeExecute TaskType = "execute-instance"

	// TaskTypeScheduled delivers a due scheduler job (delay expiry, step
	// timeout) to its registered handler.
	TaskTypeScheduled TaskType = "scheduled-job"
)

// Task represents a unit of work for the worker.
type Task struct {
	ID   string
	Type TaskType

	// For execute-instance tasks.
	InstanceID string

	// For scheduled-job tasks.
	JobName string
	Payload map[string]string

	EnqueuedAt time.Time

	// NotBefore is the earliest time this task should be eligible for
	// processing. Zero value means "immediately".
	NotBefore time.Time
}

// Queue is a simple async task queue interface.
type Queue interface {
	// Enqueue adds a task to the queue. It should respect ctx for
	// cancellation.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue removes and returns the next eligible task, blocking until
	// one is available or the context is cancelled.
	Dequeue(ctx context.Context) (*Task, error)

	// Len returns the approximate number of tasks queued.
	Len() int
}
