package flowline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForStatus(t *testing.T, eng Engine, instanceID string, want InstanceStatus) *WorkflowInstance {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		inst, err := eng.GetInstance(context.Background(), instanceID)
		require.NoError(t, err)
		if inst.Status == want {
			return inst
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("instance %s never reached %s", instanceID, want)
	return nil
}

func waitForStepInProgress(t *testing.T, eng Engine, instanceID, stepID string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		inst, err := eng.GetInstance(context.Background(), instanceID)
		require.NoError(t, err)
		if rec := inst.StepRecord(stepID); rec != nil && rec.Status == StepStatusInProgress {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("step %s on instance %s never became IN_PROGRESS", stepID, instanceID)
}

func TestLocalRunnerDispatchAndApprove(t *testing.T) {
	runner := NewLocalRunner(Options{})
	runner.StartWorkers(2)
	defer runner.Stop()

	eng := runner.Engine
	ctx := context.Background()

	def, err := NewDefinition("Review").
		Tenant("acme").
		SubjectType("article").
		Active().
		On(TriggerContentCreated).
		Approval("review", "Review", ApprovalConfig{Approvers: []string{"editor-1"}}, "notify").
		Notification("notify", "Notify", NotificationConfig{
			Recipients: []string{"author"}, Title: "t", Message: "m",
		}).
		Build()
	require.NoError(t, err)
	created, err := eng.CreateDefinition(ctx, def)
	require.NoError(t, err)

	inst, err := eng.Dispatch(ctx, Event{
		Type:    TriggerContentCreated,
		Tenant:  "acme",
		Subject: SubjectRef{ContentID: "c-1", SubjectType: "article"},
		Actor:   "author",
	})
	require.NoError(t, err)
	require.NotNil(t, inst)
	assert.Equal(t, created.ID, inst.WorkflowID)

	// The queued kickoff runs on a worker and suspends at the approval.
	waitForStepInProgress(t, eng, inst.ID, "review")

	_, err = eng.CompleteStep(ctx, CompleteStepRequest{
		InstanceID: inst.ID, StepID: "review", ActorID: "editor-1",
	})
	require.NoError(t, err)

	done := waitForStatus(t, eng, inst.ID, InstanceCompleted)
	assert.Equal(t, "completed", done.Result["status"])
}

func TestLocalRunnerDelayElapsesThroughQueue(t *testing.T) {
	runner := NewLocalRunner(Options{})
	runner.StartWorkers(1)
	defer runner.Stop()

	eng := runner.Engine
	ctx := context.Background()

	def, err := NewDefinition("Cooling off").
		Tenant("acme").
		Active().
		On(TriggerContentPublished).
		Delay("wait", "Wait", DelayConfig{Duration: 2, Unit: UnitSeconds}, "notify").
		Notification("notify", "Notify", NotificationConfig{
			Recipients: []string{"author"}, Title: "t", Message: "m",
		}).
		Build()
	require.NoError(t, err)
	_, err = eng.CreateDefinition(ctx, def)
	require.NoError(t, err)

	start := time.Now()
	inst, err := eng.Dispatch(ctx, Event{
		Type:    TriggerContentPublished,
		Tenant:  "acme",
		Subject: SubjectRef{ContentID: "c-1"},
	})
	require.NoError(t, err)
	require.NotNil(t, inst)

	waitForStepInProgress(t, eng, inst.ID, "wait")
	mid, err := eng.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, InstanceRunning, mid.Status)
	assert.Equal(t, StepStatusInProgress, mid.StepRecord("wait").Status)

	done := waitForStatus(t, eng, inst.ID, InstanceCompleted)
	assert.GreaterOrEqual(t, time.Since(start), 2*time.Second, "the delay must actually elapse")
	assert.Equal(t, StepStatusCompleted, done.StepRecord("wait").Status)
}

func TestTimerSchedulerFiresHandler(t *testing.T) {
	s := NewTimerScheduler()
	defer s.Close()

	fired := make(chan map[string]string, 1)
	s.OnDue("ping", func(ctx context.Context, payload map[string]string) error {
		fired <- payload
		return nil
	})

	_, err := s.Schedule(context.Background(), "ping", time.Now().Add(30*time.Millisecond), map[string]string{"k": "v"})
	require.NoError(t, err)

	select {
	case payload := <-fired:
		assert.Equal(t, "v", payload["k"])
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled job never fired")
	}
}

func TestTimerSchedulerCloseStopsPendingJobs(t *testing.T) {
	s := NewTimerScheduler()

	fired := make(chan struct{}, 1)
	s.OnDue("ping", func(ctx context.Context, payload map[string]string) error {
		fired <- struct{}{}
		return nil
	})

	_, err := s.Schedule(context.Background(), "ping", time.Now().Add(50*time.Millisecond), nil)
	require.NoError(t, err)
	s.Close()

	select {
	case <-fired:
		t.Fatal("closed scheduler must not fire")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestInMemoryEngineEndToEnd(t *testing.T) {
	actions := NewActionRegistry()
	actions.Register("content.publish", func(ctx context.Context, params map[string]any, actx ActionContext) (map[string]any, error) {
		return map[string]any{"published": true}, nil
	})
	audit := NewMemoryAuditRecorder()

	eng := NewInMemoryEngine(Options{Actions: actions, Audit: audit})
	ctx := context.Background()

	def, err := NewDefinition("Publish").
		Tenant("acme").
		Active().
		Action("publish", "Publish", ActionConfig{Action: "content.publish", SaveAs: "out"}).
		Build()
	require.NoError(t, err)
	created, err := eng.CreateDefinition(ctx, def)
	require.NoError(t, err)

	inst, err := eng.CreateInstance(ctx, created.ID, SubjectRef{ContentID: "c-9"}, nil, "tester")
	require.NoError(t, err)
	require.NoError(t, eng.Execute(ctx, inst.ID))

	done, err := eng.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, InstanceCompleted, done.Status)

	out, ok := done.Data["out"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, out["published"])

	// The audit trail covers the whole lifecycle.
	actionsSeen := make(map[string]bool)
	for _, e := range audit.Entries() {
		actionsSeen[e.Action] = true
	}
	for _, want := range []string{"workflow.created", "instance.created", "instance.started", "step.completed", "instance.completed"} {
		assert.True(t, actionsSeen[want], "missing audit action %s", want)
	}
}
