package flowline

import (
	"context"
	"database/sql"
	"sync"

	"github.com/solenne/flowline/internal/engine"
	"github.com/solenne/flowline/internal/persistence"
	"github.com/solenne/flowline/internal/taskqueue"
	"github.com/solenne/flowline/pkg/api"
	"github.com/solenne/flowline/pkg/worker"
)

// SQLiteBundle is a durable single-node deployment: definitions,
// instances, the task queue and the schedule all live in one SQLite
// database, so pending delays and queued kickoffs survive a restart.
type SQLiteBundle struct {
	Engine api.Engine

	worker *worker.Worker

	mu     sync.Mutex
	cancel context.CancelFunc
	done   sync.WaitGroup
}

// NewSQLiteBundle wires an engine, queue and scheduler over the given
// database handle. The caller owns the handle; use one per bundle. For
// the modernc.org/sqlite driver, open with _pragma=busy_timeout to avoid
// writer contention between the engine and the worker.
func NewSQLiteBundle(db *sql.DB, opts Options) (*SQLiteBundle, error) {
	store, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	queue, err := taskqueue.NewSQLiteQueue(db)
	if err != nil {
		return nil, err
	}
	sched := taskqueue.NewQueueScheduler(queue)

	scheduler := opts.Scheduler
	if scheduler == nil {
		scheduler = sched
	}

	b := &SQLiteBundle{}
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
	b.Engine = eng
	b.worker = worker.New(eng, queue, sched)
	return b, nil
}

// Worker returns the underlying worker for manual task processing.
func (b *SQLiteBundle) Worker() *worker.Worker {
	return b.worker
}

// StartWorkers launches n background workers. Calling it again while
// workers run is a no-op.
func (b *SQLiteBundle) StartWorkers(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		return
	}
	if n <= 0 {
		n = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	for i := 0; i < n; i++ {
		b.done.Add(1)
		go func() {
			defer b.done.Done()
			_ = b.worker.Run(ctx)
		}()
	}
}

// Stop cancels the workers and waits for them to drain.
func (b *SQLiteBundle) Stop() {
	b.mu.Lock()
	cancel := b.cancel
	b.cancel = nil
	b.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	b.done.Wait()
}
