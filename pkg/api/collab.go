package api

import (
	"context"
	"time"
)

// Notification kinds sent through the NotificationGateway.
const (
	NotifyApprovalRequested = "workflow.approval_requested"
	NotifyApprovalAssigned  = "workflow.approval_assigned"
	NotifyStepMessage       = "workflow.notification"
)

// ScheduledHandler processes a due scheduler job.
type ScheduledHandler func(ctx context.Context, payload map[string]string) error

// Scheduler is the delayed re-entry collaborator. Delay steps and step
// timeouts are scheduled through it; when a job comes due, the handler
// registered for its name is invoked.
//
// A cancelled instance makes late callbacks harmless: the engine rejects
// them with an InvalidStateError, which handlers drop.
type Scheduler interface {
	// Schedule enqueues a named job to run at or after runAt and returns
	// an opaque job ID.
	Schedule(ctx context.Context, job string, runAt time.Time, payload map[string]string) (string, error)

	// OnDue registers the handler for a job name. Registering again
	// replaces the previous handler.
	OnDue(job string, h ScheduledHandler)
}

// NotificationGateway delivers user-facing notifications. Delivery
// transport (email, push, in-app) is outside the engine's scope.
type NotificationGateway interface {
	Send(ctx context.Context, userID, kind, title, message string, data map[string]any) error
}

// AuditRecorder receives audit-grade records of every state transition.
type AuditRecorder interface {
	Record(ctx context.Context, action, entityType, entityID, actorID string, metadata map[string]any) error
}

// ActionContext carries instance context into an action invocation.
type ActionContext struct {
	InstanceID string
	Tenant     string
	Subject    SubjectRef
	Data       map[string]any
}

// ActionRunner bridges Action steps to external mutators (content update
// and publish, email delivery, webhooks). A non-nil error fails the step
// and its instance.
type ActionRunner interface {
	Invoke(ctx context.Context, action string, params map[string]any, actx ActionContext) (map[string]any, error)
}

// NoopNotificationGateway discards all notifications. It is the default
// when no gateway is configured.
type NoopNotificationGateway struct{}

func (NoopNotificationGateway) Send(ctx context.Context, userID, kind, title, message string, data map[string]any) error {
	return nil
}

// NoopAuditRecorder discards all audit records.
type NoopAuditRecorder struct{}

func (NoopAuditRecorder) Record(ctx context.Context, action, entityType, entityID, actorID string, metadata map[string]any) error {
	return nil
}
