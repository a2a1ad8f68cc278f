package flowline

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/solenne/flowline/internal/engine"
	"github.com/solenne/flowline/internal/persistence"
	"github.com/solenne/flowline/pkg/api"
)

// Core types re-exported so embedders only import the root package.
type (
	WorkflowDefinition = api.WorkflowDefinition
	Step               = api.Step
	Trigger            = api.Trigger
	Predicate          = api.Predicate
	Position           = api.Position

	ApprovalConfig     = api.ApprovalConfig
	NotificationConfig = api.NotificationConfig
	ConditionConfig    = api.ConditionConfig
	ActionConfig       = api.ActionConfig
	DelayConfig        = api.DelayConfig

	WorkflowInstance = api.WorkflowInstance
	InstanceStep     = api.InstanceStep
	SubjectRef       = api.SubjectRef
	Event            = api.Event

	Engine              = api.Engine
	CompleteStepRequest = api.CompleteStepRequest

	DefinitionListOptions = api.DefinitionListOptions
	InstanceListOptions   = api.InstanceListOptions

	Observer            = api.Observer
	Scheduler           = api.Scheduler
	NotificationGateway = api.NotificationGateway
	AuditRecorder       = api.AuditRecorder
	ActionRunner        = api.ActionRunner
	ActionContext       = api.ActionContext

	DefinitionStatus = api.DefinitionStatus
	InstanceStatus   = api.InstanceStatus
	StepStatus       = api.StepStatus
	StepType         = api.StepType
	TriggerType      = api.TriggerType
	DelayUnit        = api.DelayUnit
)

// Definition lifecycle.
const (
	DefinitionDraft    = api.DefinitionDraft
	DefinitionActive   = api.DefinitionActive
	DefinitionInactive = api.DefinitionInactive
	DefinitionArchived = api.DefinitionArchived
)

// Instance lifecycle.
const (
	InstancePending   = api.InstancePending
	InstanceRunning   = api.InstanceRunning
	InstanceCompleted = api.InstanceCompleted
	InstanceFailed    = api.InstanceFailed
	InstanceCancelled = api.InstanceCancelled
	InstanceSuspended = api.InstanceSuspended
)

// Step types.
const (
	StepApproval     = api.StepApproval
	StepNotification = api.StepNotification
	StepCondition    = api.StepCondition
	StepAction       = api.StepAction
	StepDelay        = api.StepDelay
	StepFork         = api.StepFork
	StepJoin         = api.StepJoin
)

// Step record statuses.
const (
	StepStatusPending    = api.StepPending
	StepStatusInProgress = api.StepInProgress
	StepStatusCompleted  = api.StepCompleted
	StepStatusRejected   = api.StepRejected
	StepStatusSkipped    = api.StepSkipped
	StepStatusFailed     = api.StepFailed
)

// Trigger types.
const (
	TriggerContentCreated   = api.TriggerContentCreated
	TriggerContentUpdated   = api.TriggerContentUpdated
	TriggerContentPublished = api.TriggerContentPublished
	TriggerContentDeleted   = api.TriggerContentDeleted
	TriggerMediaUploaded    = api.TriggerMediaUploaded
	TriggerUserCreated      = api.TriggerUserCreated
	TriggerUserUpdated      = api.TriggerUserUpdated
	TriggerUserDeleted      = api.TriggerUserDeleted
	TriggerScheduled        = api.TriggerScheduled
	TriggerManual           = api.TriggerManual
	TriggerAPI              = api.TriggerAPI
)

// Delay units.
const (
	UnitSeconds = api.UnitSeconds
	UnitMinutes = api.UnitMinutes
	UnitHours   = api.UnitHours
	UnitDays    = api.UnitDays
)

// Sentinel errors.
var (
	ErrNotFound        = api.ErrNotFound
	ErrDefaultConflict = api.ErrDefaultConflict
	ErrDefinitionInUse = api.ErrDefinitionInUse
)

// Options configures the optional collaborators of an engine. Zero value
// means: no observer, notifications and audit records discarded, no
// actions, and a process-local timer scheduler.
type Options struct {
	Observer  api.Observer
	Notifier  api.NotificationGateway
	Audit     api.AuditRecorder
	Actions   api.ActionRunner
	Scheduler api.Scheduler
}

func (o Options) scheduler() api.Scheduler {
	if o.Scheduler != nil {
		return o.Scheduler
	}
	return NewTimerScheduler()
}

// NewInMemoryEngine creates an engine with volatile storage. Suited for
// tests and for embedders that re-register definitions at startup.
func NewInMemoryEngine(opts Options) Engine {
	store := persistence.NewInMemoryStore()
	return engine.New(engine.Config{
		Definitions: store,
		Instances:   store,
		Scheduler:   opts.scheduler(),
		Notifier:    opts.Notifier,
		Audit:       opts.Audit,
		Actions:     opts.Actions,
		Observer:    opts.Observer,
	})
}

// NewSQLiteEngine creates an engine persisting definitions and instances
// in the given SQLite database. The schema is created on first use.
// Delayed re-entry still uses the process-local timer scheduler unless
// Options.Scheduler is set; NewSQLiteBundle wires a durable one.
func NewSQLiteEngine(db *sql.DB, opts Options) (Engine, error) {
	store, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	return engine.New(engine.Config{
		Definitions: store,
		Instances:   store,
		Scheduler:   opts.scheduler(),
		Notifier:    opts.Notifier,
		Audit:       opts.Audit,
		Actions:     opts.Actions,
		Observer:    opts.Observer,
	}), nil
}

// NewPostgresEngine creates an engine persisting definitions and
// instances in PostgreSQL through the given pool. The schema is created
// on first use.
func NewPostgresEngine(ctx context.Context, pool *pgxpool.Pool, opts Options) (Engine, error) {
	store, err := persistence.NewPostgresStore(ctx, pool)
	if err != nil {
		return nil, err
	}
	return engine.New(engine.Config{
		Definitions: store,
		Instances:   store,
		Scheduler:   opts.scheduler(),
		Notifier:    opts.Notifier,
		Audit:       opts.Audit,
		Actions:     opts.Actions,
		Observer:    opts.Observer,
	}), nil
}

// NewRedisEngine creates an engine that keeps instances in Redis and
// definitions in process memory. Definitions are authored artifacts the
// embedder re-registers at startup; instance state is what needs to be
// shared across processes.
func NewRedisEngine(client *redis.Client, keyPrefix string, opts Options) Engine {
	return engine.New(engine.Config{
		Definitions: persistence.NewInMemoryStore(),
		Instances:   persistence.NewRedisInstanceStore(client, keyPrefix),
		Scheduler:   opts.scheduler(),
		Notifier:    opts.Notifier,
		Audit:       opts.Audit,
		Actions:     opts.Actions,
		Observer:    opts.Observer,
	})
}

// Observer helpers re-exported from pkg/api.
var (
	NewCompositeObserver = api.NewCompositeObserver
	NewLoggingObserver   = api.NewLoggingObserver
	NewBasicMetrics      = api.NewBasicMetrics
)

type (
	NoopObserver         = api.NoopObserver
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
)
