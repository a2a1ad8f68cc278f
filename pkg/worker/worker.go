// Package worker processes queued engine work: instance execution tasks
// and due scheduler jobs. It contains no workflow logic of its own; it
// exists so that dispatch kickoffs and delayed re-entries can run outside
// the caller's request path.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/solenne/flowline/internal/taskqueue"
	"github.com/solenne/flowline/pkg/api"
)

// Worker drains a task queue and feeds each task back into the engine.
type Worker struct {
	engine api.Engine
	queue  taskqueue.Queue
	sched  *taskqueue.QueueScheduler
}

// New creates a worker. sched may be nil when the queue carries only
// execute-instance tasks.
func New(engine api.Engine, queue taskqueue.Queue, sched *taskqueue.QueueScheduler) *Worker {
	return &Worker{engine: engine, queue: queue, sched: sched}
}

// EnqueueExecute queues an instance for asynchronous execution. It
// satisfies the engine's Enqueuer collaborator.
func (w *Worker) EnqueueExecute(ctx context.Context, instanceID string) error {
	return w.queue.Enqueue(ctx, taskqueue.Task{
		ID:         uuid.NewString(),
		Type:       taskqueue.TaskTypeExecute,
		InstanceID: instanceID,
		EnqueuedAt: time.Now(),
	})
}

// ProcessOne blocks for the next eligible task and processes it. It
// returns the context error when ctx is cancelled while waiting.
func (w *Worker) ProcessOne(ctx context.Context) error {
	task, err := w.queue.Dequeue(ctx)
	if err != nil {
		return err
	}
	return w.process(ctx, task)
}

// Run processes tasks until ctx is cancelled. Task failures do not stop
// the loop; failed instances are already recorded by the engine.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if err := w.ProcessOne(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
		}
	}
}

func (w *Worker) process(ctx context.Context, task *taskqueue.Task) error {
	switch task.Type {
	case taskqueue.TaskTypeExecute:
		err := w.engine.Execute(ctx, task.InstanceID)
		if err != nil && (api.IsInvalidState(err) || errors.Is(err, api.ErrNotFound)) {
			// The instance moved on (or was removed) before the task ran.
			return nil
		}
		return err
	case taskqueue.TaskTypeScheduled:
		if w.sched == nil {
			return errors.New("worker: scheduled task received but no scheduler configured")
		}
		return w.sched.Fire(ctx, task.JobName, task.Payload)
	default:
		return errors.New("worker: unknown task type " + string(task.Type))
	}
}
