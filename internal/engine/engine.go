package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/solenne/flowline/internal/persistence"
	"github.com/solenne/flowline/pkg/api"
)

// Scheduler job names the engine registers handlers for.
const (
	JobDelay       = "flowline.delay"
	JobStepTimeout = "flowline.step_timeout"
)

// Enqueuer hands instance execution to an asynchronous worker. When no
// enqueuer is configured, the engine falls back to a goroutine.
type Enqueuer interface {
	EnqueueExecute(ctx context.Context, instanceID string) error
}

// Config describes how to construct an engine.
type Config struct {
	Definitions persistence.DefinitionStore
	Instances   persistence.InstanceStore

	Scheduler api.Scheduler
	Notifier  api.NotificationGateway
	Audit     api.AuditRecorder
	Actions   api.ActionRunner
	Observer  api.Observer

	// Enqueuer, when set, carries asynchronous kickoffs (dispatch, fork
	// branches) through a task queue instead of a goroutine.
	Enqueuer Enqueuer
}

type engineImpl struct {
	definitions persistence.DefinitionStore
	instances   persistence.InstanceStore

	scheduler api.Scheduler
	notifier  api.NotificationGateway
	audit     api.AuditRecorder
	actions   api.ActionRunner
	observer  api.Observer
	enqueuer  Enqueuer
}

var _ api.Engine = (*engineImpl)(nil)

// New creates an engine from the given configuration and registers its
// scheduler handlers for delay expiry and step timeouts.
func New(cfg Config) api.Engine {
	e := &engineImpl{
		definitions: cfg.Definitions,
		instances:   cfg.Instances,
		scheduler:   cfg.Scheduler,
		notifier:    cfg.Notifier,
		audit:       cfg.Audit,
		actions:     cfg.Actions,
		observer:    cfg.Observer,
		enqueuer:    cfg.Enqueuer,
	}
	if e.notifier == nil {
		e.notifier = api.NoopNotificationGateway{}
	}
	if e.audit == nil {
		e.audit = api.NoopAuditRecorder{}
	}
	if e.observer == nil {
		e.observer = api.NoopObserver{}
	}
	if e.scheduler != nil {
		e.scheduler.OnDue(JobDelay, e.handleDelayDue)
		e.scheduler.OnDue(JobStepTimeout, e.handleStepTimeout)
	}
	return e
}

// --- definition operations ---

func (e *engineImpl) CreateDefinition(ctx context.Context, def api.WorkflowDefinition) (*api.WorkflowDefinition, error) {
	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	if def.Status == "" {
		def.Status = api.DefinitionDraft
	}
	def.Version = 1
	now := time.Now()
	def.CreatedAt = now
	def.UpdatedAt = now

	if err := def.Validate(); err != nil {
		return nil, err
	}
	if err := e.checkDefaultConflict(ctx, &def); err != nil {
		return nil, err
	}

	if err := e.definitions.SaveDefinition(ctx, &def); err != nil {
		return nil, err
	}
	e.record(ctx, "workflow.created", "workflow", def.ID, def.CreatedBy, map[string]any{
		"name":    def.Name,
		"version": def.Version,
	})
	return &def, nil
}

func (e *engineImpl) UpdateDefinition(ctx context.Context, def api.WorkflowDefinition) (*api.WorkflowDefinition, error) {
	if def.ID == "" {
		return nil, fmt.Errorf("%w: definition id is required", api.ErrNotFound)
	}
	latest, err := e.definitions.GetDefinition(ctx, def.ID)
	if err != nil {
		return nil, e.mapDefinitionErr(err, def.ID)
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}
	if err := e.checkDefaultConflict(ctx, &def); err != nil {
		return nil, err
	}

	def.Version = latest.Version + 1
	def.CreatedAt = latest.CreatedAt
	def.UpdatedAt = time.Now()

	if err := e.definitions.SaveDefinition(ctx, &def); err != nil {
		return nil, err
	}
	e.record(ctx, "workflow.updated", "workflow", def.ID, "", map[string]any{
		"version": def.Version,
	})
	return &def, nil
}

func (e *engineImpl) DeleteDefinition(ctx context.Context, id string) error {
	active, err := e.instances.CountActive(ctx, id)
	if err != nil {
		return err
	}
	if active > 0 {
		return fmt.Errorf("%w: %d non-terminal instance(s)", api.ErrDefinitionInUse, active)
	}
	if err := e.definitions.DeleteDefinition(ctx, id); err != nil {
		return e.mapDefinitionErr(err, id)
	}
	e.record(ctx, "workflow.deleted", "workflow", id, "", nil)
	return nil
}

func (e *engineImpl) GetDefinition(ctx context.Context, id string) (*api.WorkflowDefinition, error) {
	def, err := e.definitions.GetDefinition(ctx, id)
	if err != nil {
		return nil, e.mapDefinitionErr(err, id)
	}
	return def, nil
}

func (e *engineImpl) ListDefinitions(ctx context.Context, opts api.DefinitionListOptions) ([]*api.WorkflowDefinition, error) {
	return e.definitions.ListDefinitions(ctx, persistence.DefinitionFilter{
		Tenant:      opts.Tenant,
		SubjectType: opts.SubjectType,
		Status:      opts.Status,
	})
}

func (e *engineImpl) GetDefaultDefinition(ctx context.Context, subjectType, tenant string) (*api.WorkflowDefinition, error) {
	// Only ACTIVE definitions are dispatchable; an archived or disabled
	// default never wins.
	defs, err := e.definitions.ListDefinitions(ctx, persistence.DefinitionFilter{
		Tenant:      tenant,
		SubjectType: subjectType,
		Status:      api.DefinitionActive,
	})
	if err != nil {
		return nil, err
	}
	for _, def := range defs {
		if def.IsDefault {
			return def, nil
		}
	}
	return nil, fmt.Errorf("%w: no default definition for subject type %q", api.ErrNotFound, subjectType)
}

// checkDefaultConflict enforces the at-most-one-default invariant per
// subject type and tenant.
func (e *engineImpl) checkDefaultConflict(ctx context.Context, def *api.WorkflowDefinition) error {
	if !def.IsDefault {
		return nil
	}
	others, err := e.definitions.ListDefinitions(ctx, persistence.DefinitionFilter{
		Tenant:      def.Tenant,
		SubjectType: def.SubjectType,
	})
	if err != nil {
		return err
	}
	for _, other := range others {
		if other.IsDefault && other.ID != def.ID {
			return fmt.Errorf("%w: %s", api.ErrDefaultConflict, other.ID)
		}
	}
	return nil
}

// --- instance operations ---

func (e *engineImpl) CreateInstance(ctx context.Context, workflowID string, subject api.SubjectRef, data map[string]any, createdBy string) (*api.WorkflowInstance, error) {
	def, err := e.definitions.GetDefinition(ctx, workflowID)
	if err != nil {
		return nil, e.mapDefinitionErr(err, workflowID)
	}
	if def.Status == api.DefinitionArchived {
		return nil, fmt.Errorf("workflow %s is archived", workflowID)
	}

	inst := e.newInstance(def, subject, data, createdBy)
	if err := e.instances.SaveInstance(ctx, inst); err != nil {
		return nil, err
	}
	e.record(ctx, "instance.created", "workflow_instance", inst.ID, createdBy, map[string]any{
		"workflowId":      inst.WorkflowID,
		"workflowVersion": inst.WorkflowVersion,
	})
	return inst, nil
}

func (e *engineImpl) newInstance(def *api.WorkflowDefinition, subject api.SubjectRef, data map[string]any, createdBy string) *api.WorkflowInstance {
	if data == nil {
		data = make(map[string]any)
	}
	return &api.WorkflowInstance{
		ID:              uuid.NewString(),
		Tenant:          def.Tenant,
		WorkflowID:      def.ID,
		WorkflowVersion: def.Version,
		Subject:         subject,
		Status:          api.InstancePending,
		Cursors:         []string{def.StartStepID},
		Steps: []api.InstanceStep{
			{StepID: def.StartStepID, Status: api.StepPending},
		},
		Data:      data,
		CreatedAt: time.Now(),
		CreatedBy: createdBy,
	}
}

func (e *engineImpl) GetInstance(ctx context.Context, id string) (*api.WorkflowInstance, error) {
	inst, err := e.instances.GetInstance(ctx, id)
	if err != nil {
		if errors.Is(err, persistence.ErrInstanceNotFound) {
			return nil, fmt.Errorf("%w: instance %s", api.ErrNotFound, id)
		}
		return nil, err
	}
	return inst, nil
}

func (e *engineImpl) ListInstances(ctx context.Context, opts api.InstanceListOptions) ([]*api.WorkflowInstance, error) {
	return e.instances.ListInstances(ctx, persistence.InstanceFilter{
		Tenant:     opts.Tenant,
		WorkflowID: opts.WorkflowID,
		Status:     opts.Status,
	})
}

// Execute drives the instance forward until every active cursor is either
// suspended or the instance reaches a terminal status. It reloads the
// instance on every pass, so it is idempotent and safely re-enterable.
func (e *engineImpl) Execute(ctx context.Context, instanceID string) error {
	for {
		inst, err := e.GetInstance(ctx, instanceID)
		if err != nil {
			return err
		}
		if inst.Status.Terminal() || inst.Status == api.InstanceSuspended {
			return nil
		}

		def, err := e.definitionFor(ctx, inst)
		if err != nil {
			serr := &api.StructuralInconsistencyError{InstanceID: inst.ID, StepID: inst.CurrentStepID()}
			_ = e.failInstance(ctx, inst, serr, failureResult(serr, ""))
			return serr
		}

		if inst.Status == api.InstancePending {
			now := time.Now()
			inst.Status = api.InstanceRunning
			inst.StartedAt = &now
			if err := e.update(ctx, inst); err != nil {
				return err
			}
			e.observer.OnInstanceStart(ctx, inst)
			e.record(ctx, "instance.started", "workflow_instance", inst.ID, "", nil)
		}

		// Pick the next runnable cursor; suspended steps stay IN_PROGRESS
		// and are skipped.
		stepID := ""
		for _, c := range inst.Cursors {
			rec := inst.StepRecord(c)
			if rec == nil || rec.Status == api.StepPending {
				stepID = c
				break
			}
		}
		if stepID == "" {
			return nil
		}

		step, ok := def.StepByID(stepID)
		if !ok {
			serr := &api.StructuralInconsistencyError{InstanceID: inst.ID, StepID: stepID}
			_ = e.failInstance(ctx, inst, serr, failureResult(serr, stepID))
			return serr
		}

		rec := ensureStepRecord(inst, stepID)
		if rec.Status == api.StepPending {
			rec.Status = api.StepInProgress
			if rec.StartedAt == nil {
				now := time.Now()
				rec.StartedAt = &now
			}
		}
		if err := e.update(ctx, inst); err != nil {
			return err
		}
		e.observer.OnStepStart(ctx, inst, step)

		outcome, err := e.runStep(ctx, inst, def, step)
		if err != nil {
			now := time.Now()
			rec.Status = api.StepFailed
			rec.CompletedAt = &now
			rec.Result = map[string]any{"error": err.Error()}
			e.observer.OnStepCompleted(ctx, inst, step, err, stepDuration(rec))
			_ = e.failInstance(ctx, inst, err, failureResult(err, stepID))
			return err
		}

		if outcome.suspend {
			// The step stays IN_PROGRESS until an external completion,
			// rejection or scheduler callback arrives.
			if err := e.update(ctx, inst); err != nil {
				return err
			}
			continue
		}

		if err := e.advance(ctx, inst, def, step, outcome.result, outcome.nextStepID, "system"); err != nil {
			if api.IsStructuralInconsistency(err) {
				_ = e.failInstance(ctx, inst, err, failureResult(err, stepID))
			}
			return err
		}
		if err := e.update(ctx, inst); err != nil {
			return err
		}
	}
}

// CompleteStep completes a suspended (or pending) step on behalf of an
// external actor and then drives the instance forward.
func (e *engineImpl) CompleteStep(ctx context.Context, req api.CompleteStepRequest) (*api.WorkflowInstance, error) {
	inst, err := e.GetInstance(ctx, req.InstanceID)
	if err != nil {
		return nil, err
	}
	if err := checkStepActive(inst, req.StepID, "complete step"); err != nil {
		return nil, err
	}

	def, err := e.definitionFor(ctx, inst)
	if err != nil {
		return nil, err
	}
	step, ok := def.StepByID(req.StepID)
	if !ok {
		serr := &api.StructuralInconsistencyError{InstanceID: inst.ID, StepID: req.StepID}
		_ = e.failInstance(ctx, inst, serr, failureResult(serr, req.StepID))
		return inst, serr
	}

	if req.Notes != "" {
		inst.StepRecord(req.StepID).Notes = req.Notes
	}

	if err := e.advance(ctx, inst, def, step, req.Result, req.NextStepID, req.ActorID); err != nil {
		if api.IsStructuralInconsistency(err) {
			_ = e.failInstance(ctx, inst, err, failureResult(err, req.StepID))
		}
		return inst, err
	}
	if err := e.update(ctx, inst); err != nil {
		return inst, err
	}

	// Drive auto-completing successors to the next suspension point.
	execErr := e.Execute(ctx, req.InstanceID)
	refreshed, err := e.GetInstance(ctx, req.InstanceID)
	if err != nil {
		return inst, err
	}
	return refreshed, execErr
}

// RejectStep rejects a suspended step. The instance fails terminally with
// a rejected result; rejection is an outcome, not an error.
func (e *engineImpl) RejectStep(ctx context.Context, instanceID, stepID, actorID, reason string) (*api.WorkflowInstance, error) {
	inst, err := e.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if err := checkStepActive(inst, stepID, "reject step"); err != nil {
		return nil, err
	}

	now := time.Now()
	rec := inst.StepRecord(stepID)
	rec.Status = api.StepRejected
	rec.CompletedAt = &now
	rec.Notes = reason

	inst.Status = api.InstanceFailed
	inst.CompletedAt = &now
	inst.Cursors = nil
	inst.Result = map[string]any{
		"status": "rejected",
		"stepId": stepID,
		"reason": reason,
	}

	if err := e.update(ctx, inst); err != nil {
		return inst, err
	}
	e.record(ctx, "step.rejected", "workflow_instance", inst.ID, actorID, map[string]any{
		"stepId": stepID,
		"reason": reason,
	})
	e.observer.OnInstanceFailed(ctx, inst, fmt.Errorf("step %q rejected: %s", stepID, reason))
	return inst, nil
}

// AssignStep sets or overwrites the assignee of an in-flight step and
// notifies them. The step status is unchanged.
func (e *engineImpl) AssignStep(ctx context.Context, instanceID, stepID, assigneeID, assignerID string) (*api.WorkflowInstance, error) {
	inst, err := e.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst.Status.Terminal() {
		return nil, &api.InvalidStateError{Op: "assign step", InstanceID: instanceID, Status: inst.Status}
	}
	rec := inst.StepRecord(stepID)
	if rec == nil || !inst.HasCursor(stepID) {
		return nil, &api.InvalidStateError{
			Op: "assign step", InstanceID: instanceID, Status: inst.Status,
			Detail: fmt.Sprintf("step %q is not active", stepID),
		}
	}

	rec.Assignee = assigneeID
	if err := e.update(ctx, inst); err != nil {
		return inst, err
	}
	e.record(ctx, "step.assigned", "workflow_instance", inst.ID, assignerID, map[string]any{
		"stepId":   stepID,
		"assignee": assigneeID,
	})
	if err := e.notifier.Send(ctx, assigneeID, api.NotifyApprovalAssigned,
		"Workflow step assigned to you",
		fmt.Sprintf("You have been assigned step %q", stepID),
		map[string]any{"instanceId": inst.ID, "stepId": stepID},
	); err != nil {
		return inst, err
	}
	return inst, nil
}

// Cancel cancels an instance. Outstanding scheduler callbacks and approval
// completions are rejected when they later arrive.
func (e *engineImpl) Cancel(ctx context.Context, instanceID, actorID string) (*api.WorkflowInstance, error) {
	inst, err := e.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	switch inst.Status {
	case api.InstancePending, api.InstanceRunning, api.InstanceSuspended:
	default:
		return nil, &api.InvalidStateError{Op: "cancel", InstanceID: instanceID, Status: inst.Status}
	}

	now := time.Now()
	inst.Status = api.InstanceCancelled
	inst.CancelledAt = &now
	inst.Cursors = nil

	if err := e.update(ctx, inst); err != nil {
		return inst, err
	}
	e.record(ctx, "instance.cancelled", "workflow_instance", inst.ID, actorID, nil)
	e.observer.OnInstanceCancelled(ctx, inst)
	return inst, nil
}

func (e *engineImpl) Pause(ctx context.Context, instanceID, actorID string) (*api.WorkflowInstance, error) {
	inst, err := e.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst.Status != api.InstanceRunning {
		return nil, &api.InvalidStateError{Op: "pause", InstanceID: instanceID, Status: inst.Status}
	}
	inst.Status = api.InstanceSuspended
	if err := e.update(ctx, inst); err != nil {
		return inst, err
	}
	e.record(ctx, "instance.paused", "workflow_instance", inst.ID, actorID, nil)
	return inst, nil
}

func (e *engineImpl) Resume(ctx context.Context, instanceID, actorID string) (*api.WorkflowInstance, error) {
	inst, err := e.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst.Status != api.InstanceSuspended {
		return nil, &api.InvalidStateError{Op: "resume", InstanceID: instanceID, Status: inst.Status}
	}
	inst.Status = api.InstanceRunning
	if err := e.update(ctx, inst); err != nil {
		return inst, err
	}
	e.record(ctx, "instance.resumed", "workflow_instance", inst.ID, actorID, nil)
	if err := e.Execute(ctx, instanceID); err != nil {
		return inst, err
	}
	return e.GetInstance(ctx, instanceID)
}

// --- internals ---

// advance completes the current step and moves the cursor(s) to the next
// step(s). All validation happens before any mutation, so an
// InvalidTransitionError leaves the instance untouched.
func (e *engineImpl) advance(ctx context.Context, inst *api.WorkflowInstance, def *api.WorkflowDefinition, step api.Step, result map[string]any, nextStepID, actorID string) error {
	var targets []string
	switch {
	case nextStepID != "":
		if !containsString(step.BranchTargets(), nextStepID) {
			return &api.InvalidTransitionError{
				InstanceID: inst.ID,
				FromStepID: step.ID,
				ToStepID:   nextStepID,
				Reason:     "not a branch target of the current step",
			}
		}
		targets = []string{nextStepID}
	case step.Type == api.StepFork:
		targets = step.Next
	case len(step.Next) == 1:
		targets = step.Next
	case len(step.Next) == 0:
		targets = nil
	default:
		// Multi-target step whose executor did not resolve the branch.
		// Guessing here would silently pick an arbitrary path.
		return &api.InvalidTransitionError{
			InstanceID: inst.ID,
			FromStepID: step.ID,
			Reason:     "ambiguous next step; the executor did not resolve the branch",
		}
	}

	resolved := make(map[string]api.Step, len(targets))
	for _, t := range targets {
		next, ok := def.StepByID(t)
		if !ok {
			return &api.StructuralInconsistencyError{InstanceID: inst.ID, StepID: t}
		}
		resolved[t] = next
	}

	now := time.Now()
	rec := ensureStepRecord(inst, step.ID)
	rec.Status = api.StepCompleted
	rec.CompletedAt = &now
	if result != nil {
		rec.Result = result
	}
	e.record(ctx, "step.completed", "workflow_instance", inst.ID, actorID, map[string]any{
		"stepId": step.ID,
	})
	e.observer.OnStepCompleted(ctx, inst, step, nil, stepDuration(rec))

	removeCursor(inst, step.ID)
	for _, t := range targets {
		next := resolved[t]
		if next.Type == api.StepJoin {
			if inst.Joins == nil {
				inst.Joins = make(map[string]int)
			}
			inst.Joins[t]++
			ensureStepRecord(inst, t)
			// The barrier releases only when every incoming branch has
			// arrived.
			if inst.Joins[t] >= def.JoinArity(t) {
				reopenStepRecord(inst, t)
				addCursor(inst, t)
			}
			continue
		}
		reopenStepRecord(inst, t)
		addCursor(inst, t)
	}

	if len(inst.Cursors) == 0 {
		inst.Status = api.InstanceCompleted
		inst.CompletedAt = &now
		if inst.Result == nil {
			inst.Result = map[string]any{"status": "completed"}
		}
		e.record(ctx, "instance.completed", "workflow_instance", inst.ID, actorID, nil)
		e.observer.OnInstanceCompleted(ctx, inst)
	}
	return nil
}

// failInstance transitions the instance to FAILED and persists it.
func (e *engineImpl) failInstance(ctx context.Context, inst *api.WorkflowInstance, cause error, result map[string]any) error {
	now := time.Now()
	inst.Status = api.InstanceFailed
	inst.CompletedAt = &now
	inst.Cursors = nil
	inst.Result = result

	err := e.update(ctx, inst)
	e.record(ctx, "instance.failed", "workflow_instance", inst.ID, "", map[string]any{
		"error": cause.Error(),
	})
	e.observer.OnInstanceFailed(ctx, inst, cause)
	return err
}

// update persists the instance, translating the store's optimistic
// version conflict into the public error type.
func (e *engineImpl) update(ctx context.Context, inst *api.WorkflowInstance) error {
	if err := e.instances.UpdateInstance(ctx, inst); err != nil {
		if errors.Is(err, persistence.ErrVersionConflict) {
			return &api.ConcurrentModificationError{InstanceID: inst.ID}
		}
		return err
	}
	return nil
}

// definitionFor resolves the definition version the instance pinned at
// creation time.
func (e *engineImpl) definitionFor(ctx context.Context, inst *api.WorkflowInstance) (*api.WorkflowDefinition, error) {
	if inst.WorkflowVersion > 0 {
		return e.definitions.GetDefinitionVersion(ctx, inst.WorkflowID, inst.WorkflowVersion)
	}
	return e.definitions.GetDefinition(ctx, inst.WorkflowID)
}

func (e *engineImpl) mapDefinitionErr(err error, id string) error {
	if errors.Is(err, persistence.ErrDefinitionNotFound) {
		return fmt.Errorf("%w: workflow %s", api.ErrNotFound, id)
	}
	return err
}

// record writes an audit entry. Audit failures never affect workflow
// state.
func (e *engineImpl) record(ctx context.Context, action, entityType, entityID, actorID string, metadata map[string]any) {
	_ = e.audit.Record(ctx, action, entityType, entityID, actorID, metadata)
}

// handleDelayDue is the scheduler callback for expired Delay steps. Late
// callbacks against cancelled or already-advanced instances are dropped.
// A wakeup that loses the sequence race to an unrelated writer retries
// while the delay step is still in flight.
func (e *engineImpl) handleDelayDue(ctx context.Context, payload map[string]string) error {
	instanceID := payload["instanceId"]
	stepID := payload["stepId"]
	for {
		_, err := e.CompleteStep(ctx, api.CompleteStepRequest{
			InstanceID: instanceID,
			StepID:     stepID,
			ActorID:    "scheduler",
			Result:     map[string]any{"delayed": true},
		})
		switch {
		case err == nil:
			return nil
		case api.IsConcurrentModification(err):
			inst, gerr := e.GetInstance(ctx, instanceID)
			if gerr != nil || inst.Status.Terminal() || !inst.HasCursor(stepID) {
				return nil
			}
		case api.IsInvalidState(err), errors.Is(err, api.ErrNotFound):
			return nil
		default:
			return err
		}
	}
}

// handleStepTimeout fails an instance whose suspended step outlived its
// timeout. A step that already completed makes the callback a no-op.
func (e *engineImpl) handleStepTimeout(ctx context.Context, payload map[string]string) error {
	instanceID := payload["instanceId"]
	stepID := payload["stepId"]

	inst, err := e.GetInstance(ctx, instanceID)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			return nil
		}
		return err
	}
	if inst.Status.Terminal() || !inst.HasCursor(stepID) {
		return nil
	}
	rec := inst.StepRecord(stepID)
	if rec == nil || rec.Status != api.StepInProgress {
		return nil
	}

	now := time.Now()
	rec.Status = api.StepFailed
	rec.CompletedAt = &now
	rec.Result = map[string]any{"error": "step timed out"}

	err = e.failInstance(ctx, inst, fmt.Errorf("step %q timed out", stepID), map[string]any{
		"status": "timeout",
		"stepId": stepID,
	})
	if api.IsConcurrentModification(err) {
		// A racing completion won; the timeout no longer applies.
		return nil
	}
	return err
}

// kickoff starts instance execution without blocking the caller.
func (e *engineImpl) kickoff(ctx context.Context, instanceID string) error {
	if e.enqueuer != nil {
		return e.enqueuer.EnqueueExecute(ctx, instanceID)
	}
	go func() {
		_ = e.Execute(context.Background(), instanceID)
	}()
	return nil
}

// --- small helpers ---

func checkStepActive(inst *api.WorkflowInstance, stepID, op string) error {
	if inst.Status != api.InstanceRunning && inst.Status != api.InstancePending {
		return &api.InvalidStateError{Op: op, InstanceID: inst.ID, Status: inst.Status}
	}
	if !inst.HasCursor(stepID) {
		return &api.InvalidStateError{
			Op: op, InstanceID: inst.ID, Status: inst.Status,
			Detail: fmt.Sprintf("step %q is not active", stepID),
		}
	}
	rec := inst.StepRecord(stepID)
	if rec == nil || (rec.Status != api.StepInProgress && rec.Status != api.StepPending) {
		return &api.InvalidStateError{
			Op: op, InstanceID: inst.ID, Status: inst.Status,
			Detail: fmt.Sprintf("step %q is not in flight", stepID),
		}
	}
	return nil
}

func ensureStepRecord(inst *api.WorkflowInstance, stepID string) *api.InstanceStep {
	if rec := inst.StepRecord(stepID); rec != nil {
		return rec
	}
	inst.Steps = append(inst.Steps, api.InstanceStep{StepID: stepID, Status: api.StepPending})
	return &inst.Steps[len(inst.Steps)-1]
}

// reopenStepRecord returns the record for stepID, resetting a finished
// record to a fresh PENDING visit. Graphs that loop back to an earlier
// step run it again instead of leaving a dead cursor behind.
func reopenStepRecord(inst *api.WorkflowInstance, stepID string) *api.InstanceStep {
	rec := ensureStepRecord(inst, stepID)
	switch rec.Status {
	case api.StepCompleted, api.StepFailed, api.StepRejected, api.StepSkipped:
		rec.Status = api.StepPending
		rec.StartedAt = nil
		rec.CompletedAt = nil
		rec.Result = nil
		rec.Notes = ""
		rec.Assignee = ""
	}
	return rec
}

func addCursor(inst *api.WorkflowInstance, stepID string) {
	if !inst.HasCursor(stepID) {
		inst.Cursors = append(inst.Cursors, stepID)
	}
}

func removeCursor(inst *api.WorkflowInstance, stepID string) {
	for i, c := range inst.Cursors {
		if c == stepID {
			inst.Cursors = append(inst.Cursors[:i], inst.Cursors[i+1:]...)
			return
		}
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func stepDuration(rec *api.InstanceStep) time.Duration {
	if rec.StartedAt == nil || rec.CompletedAt == nil {
		return 0
	}
	return rec.CompletedAt.Sub(*rec.StartedAt)
}

func failureResult(err error, stepID string) map[string]any {
	result := map[string]any{
		"status": "failed",
		"error":  err.Error(),
	}
	if stepID != "" {
		result["stepId"] = stepID
	}
	return result
}
