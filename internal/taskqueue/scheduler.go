package taskqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/solenne/flowline/pkg/api"
)

// QueueScheduler implements api.Scheduler on top of a Queue: scheduled
// jobs become delayed tasks, and the worker feeds due tasks back through
// Fire. With a durable queue (SQLite) the schedule survives restarts.
type QueueScheduler struct {
	queue Queue

	mu       sync.RWMutex
	handlers map[string]api.ScheduledHandler
}

var _ api.Scheduler = (*QueueScheduler)(nil)

// NewQueueScheduler creates a scheduler backed by the given queue.
func NewQueueScheduler(q Queue) *QueueScheduler {
	return &QueueScheduler{
		queue:    q,
		handlers: make(map[string]api.ScheduledHandler),
	}
}

func (s *QueueScheduler) Schedule(ctx context.Context, job string, runAt time.Time, payload map[string]string) (string, error) {
	id := uuid.NewString()
	t := Task{
		ID:         id,
		Type:       TaskTypeScheduled,
		JobName:    job,
		Payload:    payload,
		EnqueuedAt: time.Now(),
		NotBefore:  runAt,
	}
	if err := s.queue.Enqueue(ctx, t); err != nil {
		return "", err
	}
	return id, nil
}

func (s *QueueScheduler) OnDue(job string, h api.ScheduledHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[job] = h
}

// Fire routes a due scheduled task to its registered handler. The worker
// calls it for every TaskTypeScheduled task it dequeues.
func (s *QueueScheduler) Fire(ctx context.Context, job string, payload map[string]string) error {
	s.mu.RLock()
	h, ok := s.handlers[job]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("taskqueue: no handler registered for job %q", job)
	}
	return h(ctx, payload)
}
