package flowline

import (
	"context"
	"sync"

	"github.com/solenne/flowline/internal/engine"
	"github.com/solenne/flowline/internal/persistence"
	"github.com/solenne/flowline/internal/taskqueue"
	"github.com/solenne/flowline/pkg/api"
	"github.com/solenne/flowline/pkg/worker"
)

// LocalRunner bundles an in-memory engine with a task queue, a
// queue-backed scheduler, and background workers. Dispatch kickoffs and
// delayed re-entries flow through the queue, so a single LocalRunner
// behaves like a small deployment without any external infrastructure.
type LocalRunner struct {
	Engine api.Engine

	queue  *taskqueue.InMemoryQueue
	sched  *taskqueue.QueueScheduler
	worker *worker.Worker

	mu     sync.Mutex
	cancel context.CancelFunc
	done   sync.WaitGroup
}

// NewLocalRunner creates a runner. Call StartWorkers before dispatching
// and Stop when done.
func NewLocalRunner(opts Options) *LocalRunner {
	store := persistence.NewInMemoryStore()
	queue := taskqueue.NewInMemoryQueue()
	sched := taskqueue.NewQueueScheduler(queue)

	r := &LocalRunner{queue: queue, sched: sched}

	scheduler := opts.Scheduler
	if scheduler == nil {
		scheduler = sched
	}

	eng := engine.New(engine.Config{
		Definitions: store,
		Instances:   store,
		Scheduler:   scheduler,
		Notifier:    opts.Notifier,
		Audit:       opts.Audit,
		Actions:     opts.Actions,
		Observer:    opts.Observer,
		Enqueuer:    queueEnqueuer{queue: queue},
	})
	r.Engine = eng
	r.worker = worker.New(eng, queue, sched)
	return r
}

// queueEnqueuer routes asynchronous kickoffs through the runner's queue
// so the background workers pick them up.
type queueEnqueuer struct {
	queue taskqueue.Queue
}

func (q queueEnqueuer) EnqueueExecute(ctx context.Context, instanceID string) error {
	return q.queue.Enqueue(ctx, taskqueue.Task{
		Type:       taskqueue.TaskTypeExecute,
		InstanceID: instanceID,
	})
}

// Worker returns the underlying worker, for callers that want to drive
// task processing themselves instead of StartWorkers.
func (r *LocalRunner) Worker() *worker.Worker {
	return r.worker
}

// StartWorkers launches n background workers. Calling it again while
// workers run is a no-op.
func (r *LocalRunner) StartWorkers(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	if n <= 0 {
		n = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	for i := 0; i < n; i++ {
		r.done.Add(1)
		go func() {
			defer r.done.Done()
			_ = r.worker.Run(ctx)
		}()
	}
}

// Stop cancels the workers and waits for them to drain.
func (r *LocalRunner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	r.done.Wait()
}
