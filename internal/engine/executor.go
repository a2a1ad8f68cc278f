package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/solenne/flowline/pkg/api"
)

// stepOutcome is the result of running a single step. A suspended step
// stays IN_PROGRESS and waits for an external completion; otherwise the
// step auto-completes and the cursor advances, optionally to the branch
// the executor resolved.
type stepOutcome struct {
	suspend    bool
	result     map[string]any
	nextStepID string
}

func (e *engineImpl) runStep(ctx context.Context, inst *api.WorkflowInstance, def *api.WorkflowDefinition, step api.Step) (stepOutcome, error) {
	switch step.Type {
	case api.StepApproval:
		return e.runApproval(ctx, inst, step)
	case api.StepNotification:
		return e.runNotification(ctx, inst, step)
	case api.StepCondition:
		return e.runCondition(inst, step)
	case api.StepAction:
		return e.runAction(ctx, inst, step)
	case api.StepDelay:
		return e.runDelay(ctx, inst, step)
	case api.StepFork:
		return stepOutcome{result: map[string]any{"branches": step.Next}}, nil
	case api.StepJoin:
		return e.runJoin(inst, def, step), nil
	default:
		return stepOutcome{}, fmt.Errorf("unsupported step type %q", step.Type)
	}
}

// runApproval notifies every approver and suspends the step until one of
// them completes or rejects it.
func (e *engineImpl) runApproval(ctx context.Context, inst *api.WorkflowInstance, step api.Step) (stepOutcome, error) {
	cfg := step.Approval
	if cfg == nil {
		return stepOutcome{}, fmt.Errorf("approval step %q has no config", step.ID)
	}

	title := fmt.Sprintf("Approval required: %s", step.Name)
	message := step.Description
	if message == "" {
		message = fmt.Sprintf("Step %q is awaiting your approval", step.Name)
	}
	data := map[string]any{"instanceId": inst.ID, "stepId": step.ID}

	for _, approver := range cfg.Approvers {
		if err := e.notifier.Send(ctx, approver, api.NotifyApprovalRequested, title, message, data); err != nil {
			return stepOutcome{}, err
		}
	}

	if cfg.AutoAssign && len(cfg.Approvers) > 0 {
		assignee := cfg.Approvers[0]
		ensureStepRecord(inst, step.ID).Assignee = assignee
		if err := e.notifier.Send(ctx, assignee, api.NotifyApprovalAssigned, title, message, data); err != nil {
			return stepOutcome{}, err
		}
	}

	if err := e.scheduleTimeout(ctx, inst, step); err != nil {
		return stepOutcome{}, err
	}
	return stepOutcome{suspend: true}, nil
}

// runNotification delivers the configured message to every recipient. A
// delivery failure fails the step.
func (e *engineImpl) runNotification(ctx context.Context, inst *api.WorkflowInstance, step api.Step) (stepOutcome, error) {
	cfg := step.Notification
	if cfg == nil {
		return stepOutcome{}, fmt.Errorf("notification step %q has no config", step.ID)
	}

	data := map[string]any{"instanceId": inst.ID, "stepId": step.ID}
	for _, recipient := range cfg.Recipients {
		if err := e.notifier.Send(ctx, recipient, api.NotifyStepMessage, cfg.Title, cfg.Message, data); err != nil {
			return stepOutcome{}, err
		}
	}
	return stepOutcome{
		result: map[string]any{"recipients": cfg.Recipients},
	}, nil
}

// runCondition evaluates the predicate against the instance data and
// routes to the matching branch.
func (e *engineImpl) runCondition(inst *api.WorkflowInstance, step api.Step) (stepOutcome, error) {
	cfg := step.Condition
	if cfg == nil {
		return stepOutcome{}, fmt.Errorf("condition step %q has no config", step.ID)
	}

	matched, err := cfg.Predicate.Evaluate(inst.Data)
	if err != nil {
		return stepOutcome{}, fmt.Errorf("condition step %q: %w", step.ID, err)
	}

	next := cfg.FalseStepID
	if matched {
		next = cfg.TrueStepID
	}
	return stepOutcome{
		result:     map[string]any{"matched": matched},
		nextStepID: next,
	}, nil
}

// runAction invokes the named action through the ActionRunner. With SaveAs
// set, the action result is merged into the instance data for downstream
// conditions.
func (e *engineImpl) runAction(ctx context.Context, inst *api.WorkflowInstance, step api.Step) (stepOutcome, error) {
	cfg := step.Action
	if cfg == nil {
		return stepOutcome{}, fmt.Errorf("action step %q has no config", step.ID)
	}
	if e.actions == nil {
		return stepOutcome{}, &api.ActionExecutionError{
			Action: cfg.Action,
			Err:    errors.New("no action runner configured"),
		}
	}

	res, err := e.actions.Invoke(ctx, cfg.Action, cfg.Params, api.ActionContext{
		InstanceID: inst.ID,
		Tenant:     inst.Tenant,
		Subject:    inst.Subject,
		Data:       inst.Data,
	})
	if err != nil {
		var aerr *api.ActionExecutionError
		if errors.As(err, &aerr) {
			return stepOutcome{}, err
		}
		return stepOutcome{}, &api.ActionExecutionError{Action: cfg.Action, Err: err}
	}

	if cfg.SaveAs != "" && res != nil {
		if inst.Data == nil {
			inst.Data = make(map[string]any)
		}
		inst.Data[cfg.SaveAs] = res
	}

	result := map[string]any{"action": cfg.Action}
	for k, v := range res {
		result[k] = v
	}
	return stepOutcome{result: result}, nil
}

// runDelay schedules a wake-up callback and suspends the step until the
// scheduler completes it.
func (e *engineImpl) runDelay(ctx context.Context, inst *api.WorkflowInstance, step api.Step) (stepOutcome, error) {
	cfg := step.Delay
	if cfg == nil {
		return stepOutcome{}, fmt.Errorf("delay step %q has no config", step.ID)
	}
	if e.scheduler == nil {
		return stepOutcome{}, fmt.Errorf("delay step %q: no scheduler configured", step.ID)
	}

	resumeAt := time.Now().Add(cfg.AsDuration())
	jobID, err := e.scheduler.Schedule(ctx, JobDelay, resumeAt, map[string]string{
		"instanceId": inst.ID,
		"stepId":     step.ID,
	})
	if err != nil {
		return stepOutcome{}, fmt.Errorf("delay step %q: %w", step.ID, err)
	}

	ensureStepRecord(inst, step.ID).Result = map[string]any{
		"scheduledJobId": jobID,
		"resumeAt":       resumeAt.Format(time.RFC3339),
	}

	if err := e.scheduleTimeout(ctx, inst, step); err != nil {
		return stepOutcome{}, err
	}
	return stepOutcome{suspend: true}, nil
}

// runJoin fires when the last incoming branch arrives; the barrier
// bookkeeping lives in advance.
func (e *engineImpl) runJoin(inst *api.WorkflowInstance, def *api.WorkflowDefinition, step api.Step) stepOutcome {
	return stepOutcome{
		result: map[string]any{
			"joined":   inst.Joins[step.ID],
			"expected": def.JoinArity(step.ID),
		},
	}
}

// scheduleTimeout arms the step timeout for suspending steps that declare
// one.
func (e *engineImpl) scheduleTimeout(ctx context.Context, inst *api.WorkflowInstance, step api.Step) error {
	if step.TimeoutSeconds <= 0 || e.scheduler == nil {
		return nil
	}
	deadline := time.Now().Add(time.Duration(step.TimeoutSeconds) * time.Second)
	_, err := e.scheduler.Schedule(ctx, JobStepTimeout, deadline, map[string]string{
		"instanceId": inst.ID,
		"stepId":     step.ID,
	})
	return err
}
