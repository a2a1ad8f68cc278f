package api

import "context"

// CompleteStepRequest carries the parameters of an external step
// completion (an approval decision, a scheduler callback).
type CompleteStepRequest struct {
	InstanceID string
	StepID     string
	ActorID    string

	// Result is recorded on the InstanceStep.
	Result map[string]any
	Notes  string

	// NextStepID optionally selects the outgoing edge. It must be one of
	// the current step's branch targets, else the engine rejects the
	// completion with an InvalidTransitionError.
	NextStepID string
}

// Engine is the workflow orchestration API: definition authoring, trigger
// dispatch, and instance lifecycle.
type Engine interface {
	// CreateDefinition validates and persists a new definition at version 1.
	// Status defaults to DRAFT; only ACTIVE definitions are dispatched.
	CreateDefinition(ctx context.Context, def WorkflowDefinition) (*WorkflowDefinition, error)

	// UpdateDefinition validates and persists a new version of an existing
	// definition. Running instances keep executing the version they pinned
	// at creation time.
	UpdateDefinition(ctx context.Context, def WorkflowDefinition) (*WorkflowDefinition, error)

	// DeleteDefinition removes a definition and its version history. It
	// fails with ErrDefinitionInUse while any of its instances is
	// non-terminal.
	DeleteDefinition(ctx context.Context, id string) error

	// GetDefinition returns the latest version of a definition.
	GetDefinition(ctx context.Context, id string) (*WorkflowDefinition, error)

	// ListDefinitions returns latest versions matching the options, in
	// stable creation-time order.
	ListDefinitions(ctx context.Context, opts DefinitionListOptions) ([]*WorkflowDefinition, error)

	// GetDefaultDefinition returns the definition flagged as default for a
	// subject type within a tenant, if any.
	GetDefaultDefinition(ctx context.Context, subjectType, tenant string) (*WorkflowDefinition, error)

	// Dispatch matches the event against active definitions and creates at
	// most one instance. A non-matching event is a no-op returning
	// (nil, nil). Execution is kicked off asynchronously; Dispatch does
	// not block on it.
	Dispatch(ctx context.Context, ev Event) (*WorkflowInstance, error)

	// CreateInstance starts a workflow manually against the latest version
	// of the given definition. The instance is created PENDING; Execute
	// drives it forward.
	CreateInstance(ctx context.Context, workflowID string, subject SubjectRef, data map[string]any, createdBy string) (*WorkflowInstance, error)

	// GetInstance looks up an instance by ID.
	GetInstance(ctx context.Context, id string) (*WorkflowInstance, error)

	// ListInstances returns instances matching the options.
	ListInstances(ctx context.Context, opts InstanceListOptions) ([]*WorkflowInstance, error)

	// Execute drives the instance to its next suspension point or terminal
	// status. It is idempotent and safely re-enterable: executing a
	// terminal or suspended instance is a no-op.
	Execute(ctx context.Context, instanceID string) error

	// CompleteStep completes a suspended step. Legal only while the step
	// is an active cursor and the instance is PENDING or RUNNING.
	CompleteStep(ctx context.Context, req CompleteStepRequest) (*WorkflowInstance, error)

	// RejectStep rejects a suspended step, failing the instance with a
	// rejected result. Rejection is a first-class terminal outcome,
	// distinct from errors.
	RejectStep(ctx context.Context, instanceID, stepID, actorID, reason string) (*WorkflowInstance, error)

	// AssignStep sets or overwrites the assignee of an in-flight step
	// without changing its status, and notifies the assignee.
	AssignStep(ctx context.Context, instanceID, stepID, assigneeID, assignerID string) (*WorkflowInstance, error)

	// Cancel cancels an instance. Legal from PENDING, RUNNING and
	// SUSPENDED only; outstanding scheduler callbacks and approvals for
	// the instance are rejected when they arrive late.
	Cancel(ctx context.Context, instanceID, actorID string) (*WorkflowInstance, error)

	// Pause suspends a RUNNING instance; Resume moves it back to RUNNING
	// and re-enters execution.
	Pause(ctx context.Context, instanceID, actorID string) (*WorkflowInstance, error)
	Resume(ctx context.Context, instanceID, actorID string) (*WorkflowInstance, error)
}
