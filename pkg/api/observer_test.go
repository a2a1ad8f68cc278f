package api

import (
	"context"
	"testing"
	"time"
)

type countingObserver struct {
	NoopObserver
	starts int
}

func (c *countingObserver) OnInstanceStart(ctx context.Context, inst *WorkflowInstance) {
	c.starts++
}

func TestNewCompositeObserverCollapses(t *testing.T) {
	if _, ok := NewCompositeObserver().(NoopObserver); !ok {
		t.Fatal("no observers should collapse to NoopObserver")
	}
	if _, ok := NewCompositeObserver(nil, nil).(NoopObserver); !ok {
		t.Fatal("all-nil observers should collapse to NoopObserver")
	}

	single := &countingObserver{}
	if got := NewCompositeObserver(nil, single); got != Observer(single) {
		t.Fatal("a single observer should be returned unwrapped")
	}
}

func TestCompositeObserverFansOut(t *testing.T) {
	a := &countingObserver{}
	b := &countingObserver{}
	composite := NewCompositeObserver(a, b)

	composite.OnInstanceStart(context.Background(), &WorkflowInstance{ID: "in-1"})
	if a.starts != 1 || b.starts != 1 {
		t.Fatalf("fan-out failed: a=%d b=%d", a.starts, b.starts)
	}
}

func TestBasicMetricsSnapshot(t *testing.T) {
	ctx := context.Background()
	m := NewBasicMetrics()
	inst := &WorkflowInstance{ID: "in-1"}
	step := Step{ID: "s"}

	m.OnInstanceStart(ctx, inst)
	m.OnInstanceStart(ctx, inst)
	m.OnInstanceStart(ctx, inst)
	m.OnInstanceCompleted(ctx, inst)
	m.OnInstanceFailed(ctx, inst, context.Canceled)

	m.OnStepCompleted(ctx, inst, step, nil, 100*time.Millisecond)
	m.OnStepCompleted(ctx, inst, step, nil, 300*time.Millisecond)
	m.OnStepCompleted(ctx, inst, step, context.Canceled, time.Hour) // failures excluded

	snap := m.Snapshot()
	if snap.InstancesStarted != 3 || snap.InstancesCompleted != 1 || snap.InstancesFailed != 1 {
		t.Fatalf("unexpected counters: %+v", snap)
	}
	if snap.InFlightInstances != 1 {
		t.Fatalf("InFlightInstances = %d, want 1", snap.InFlightInstances)
	}
	if snap.StepsCompleted != 2 {
		t.Fatalf("StepsCompleted = %d, want 2", snap.StepsCompleted)
	}
	if snap.AvgStepDuration != 200*time.Millisecond {
		t.Fatalf("AvgStepDuration = %v, want 200ms", snap.AvgStepDuration)
	}
}
