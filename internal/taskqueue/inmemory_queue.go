package taskqueue

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryQueue is a Queue implementation backed by a mutex-protected
// slice ordered by eligibility time. It is safe for concurrent use and
// supports delayed tasks via NotBefore.
type InMemoryQueue struct {
	mu    sync.Mutex
	tasks []Task

	pollInterval time.Duration
}

// NewInMemoryQueue creates a new in-memory queue.
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		pollInterval: 10 * time.Millisecond,
	}
}

var _ Queue = (*InMemoryQueue)(nil)

func (q *InMemoryQueue) Enqueue(ctx context.Context, t Task) error {
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now()
	}
	if t.NotBefore.IsZero() {
		t.NotBefore = t.EnqueuedAt
	}

	q.mu.Lock()
	q.tasks = append(q.tasks, t)
	sort.SliceStable(q.tasks, func(i, j int) bool {
		return q.tasks[i].NotBefore.Before(q.tasks[j].NotBefore)
	})
	q.mu.Unlock()
	return nil
}

func (q *InMemoryQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		q.mu.Lock()
		if len(q.tasks) > 0 && !q.tasks[0].NotBefore.After(time.Now()) {
			t := q.tasks[0]
			q.tasks = q.tasks[1:]
			q.mu.Unlock()
			return &t, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.pollInterval):
		}
	}
}

func (q *InMemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
