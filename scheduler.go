package flowline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/solenne/flowline/pkg/api"
)

// TimerScheduler is a process-local Scheduler built on time.AfterFunc.
// Scheduled jobs do not survive a restart; deployments that need durable
// delays should use a queue-backed scheduler (see LocalRunner and
// NewSQLiteBundle).
type TimerScheduler struct {
	mu       sync.Mutex
	handlers map[string]api.ScheduledHandler
	timers   map[string]*time.Timer
	closed   bool
}

var _ api.Scheduler = (*TimerScheduler)(nil)

// NewTimerScheduler creates an empty timer scheduler.
func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{
		handlers: make(map[string]api.ScheduledHandler),
		timers:   make(map[string]*time.Timer),
	}
}

func (s *TimerScheduler) Schedule(ctx context.Context, job string, runAt time.Time, payload map[string]string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", fmt.Errorf("scheduler is closed")
	}

	id := uuid.NewString()
	s.timers[id] = time.AfterFunc(time.Until(runAt), func() {
		s.mu.Lock()
		h, ok := s.handlers[job]
		delete(s.timers, id)
		closed := s.closed
		s.mu.Unlock()

		if closed || !ok {
			return
		}
		// Late or conflicting callbacks are dropped by the handler.
		_ = h(context.Background(), payload)
	})
	return id, nil
}

func (s *TimerScheduler) OnDue(job string, h api.ScheduledHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[job] = h
}

// Close stops all pending timers. Jobs already firing may still run their
// handler once.
func (s *TimerScheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
