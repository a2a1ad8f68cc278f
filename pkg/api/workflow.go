package api

import "time"

// DefinitionStatus represents the lifecycle state of a workflow definition.
type DefinitionStatus string

const (
	DefinitionDraft    DefinitionStatus = "DRAFT"
	DefinitionActive   DefinitionStatus = "ACTIVE"
	DefinitionInactive DefinitionStatus = "INACTIVE"
	DefinitionArchived DefinitionStatus = "ARCHIVED"
)

// StepType discriminates the tagged Step variants.
type StepType string

const (
	StepApproval     StepType = "approval"
	StepNotification StepType = "notification"
	StepCondition    StepType = "condition"
	StepAction       StepType = "action"
	StepDelay        StepType = "delay"
	StepFork         StepType = "fork"
	StepJoin         StepType = "join"
)

// TriggerType is a domain event that can start a workflow instance.
type TriggerType string

const (
	TriggerContentCreated   TriggerType = "content-created"
	TriggerContentUpdated   TriggerType = "content-updated"
	TriggerContentPublished TriggerType = "content-published"
	TriggerContentDeleted   TriggerType = "content-deleted"
	TriggerMediaUploaded    TriggerType = "media-uploaded"
	TriggerUserCreated      TriggerType = "user-created"
	TriggerUserUpdated      TriggerType = "user-updated"
	TriggerUserDeleted      TriggerType = "user-deleted"
	TriggerScheduled        TriggerType = "scheduled"
	TriggerManual           TriggerType = "manual"
	TriggerAPI              TriggerType = "api"
)

// DelayUnit is the time unit of a Delay step's duration.
type DelayUnit string

const (
	UnitSeconds DelayUnit = "seconds"
	UnitMinutes DelayUnit = "minutes"
	UnitHours   DelayUnit = "hours"
	UnitDays    DelayUnit = "days"
)

// ApprovalConfig configures an Approval step.
type ApprovalConfig struct {
	// Approvers is the non-empty set of principal IDs that may complete
	// or reject the step.
	Approvers []string `json:"approvers" yaml:"approvers"`

	// AutoAssign assigns the first approver on entry and notifies them.
	AutoAssign bool `json:"autoAssign,omitempty" yaml:"autoAssign,omitempty"`
}

// NotificationConfig configures a Notification step.
type NotificationConfig struct {
	Recipients []string `json:"recipients" yaml:"recipients"`
	Title      string   `json:"title" yaml:"title"`
	Message    string   `json:"message" yaml:"message"`
}

// ConditionConfig configures a Condition step. The predicate is evaluated
// against the instance data map; the step then routes to TrueStepID or
// FalseStepID. Both targets are required.
type ConditionConfig struct {
	Predicate   Predicate `json:"predicate" yaml:"predicate"`
	TrueStepID  string    `json:"trueStepId" yaml:"trueStepId"`
	FalseStepID string    `json:"falseStepId" yaml:"falseStepId"`
}

// ActionConfig configures an Action step, which invokes a named external
// operation through the ActionRunner collaborator.
type ActionConfig struct {
	Action string         `json:"action" yaml:"action"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`

	// SaveAs, if non-empty, stores the action result in the instance data
	// map under this key so downstream Condition steps can branch on it.
	SaveAs string `json:"saveAs,omitempty" yaml:"saveAs,omitempty"`
}

// DelayConfig configures a Delay step.
type DelayConfig struct {
	Duration int64     `json:"duration" yaml:"duration"`
	Unit     DelayUnit `json:"unit" yaml:"unit"`
}

// AsDuration converts the configured duration + unit into a time.Duration.
func (d DelayConfig) AsDuration() time.Duration {
	base := time.Duration(d.Duration)
	switch d.Unit {
	case UnitMinutes:
		return base * time.Minute
	case UnitHours:
		return base * time.Hour
	case UnitDays:
		return base * 24 * time.Hour
	default:
		return base * time.Second
	}
}

// Position is optional editor placement metadata carried with a step.
type Position struct {
	X int `json:"x,omitempty" yaml:"x,omitempty"`
	Y int `json:"y,omitempty" yaml:"y,omitempty"`
}

// Step is a typed node in a workflow graph. Exactly one of the config
// pointers should be set, matching Type; Fork and Join carry no config.
type Step struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Type        StepType `json:"type" yaml:"type"`

	// Next lists the IDs of the steps that follow this one. Fork steps
	// require at least two entries; Condition steps route via their
	// configured branch targets instead.
	Next []string `json:"next,omitempty" yaml:"next,omitempty"`

	Position Position `json:"position,omitempty" yaml:"position,omitempty"`

	Approval     *ApprovalConfig     `json:"approval,omitempty" yaml:"approval,omitempty"`
	Notification *NotificationConfig `json:"notification,omitempty" yaml:"notification,omitempty"`
	Condition    *ConditionConfig    `json:"condition,omitempty" yaml:"condition,omitempty"`
	Action       *ActionConfig       `json:"action,omitempty" yaml:"action,omitempty"`
	Delay        *DelayConfig        `json:"delay,omitempty" yaml:"delay,omitempty"`

	// TimeoutSeconds, when > 0 on a suspending step (Approval, Delay),
	// forces the step and its instance to FAILED if no completion arrives
	// in time.
	TimeoutSeconds int `json:"timeoutSeconds,omitempty" yaml:"timeoutSeconds,omitempty"`
}

// BranchTargets returns the set of step IDs reachable from this step in a
// single transition: Next plus, for Condition steps, the configured
// true/false branch targets.
func (s Step) BranchTargets() []string {
	targets := append([]string(nil), s.Next...)
	if s.Type == StepCondition && s.Condition != nil {
		targets = append(targets, s.Condition.TrueStepID, s.Condition.FalseStepID)
	}
	return targets
}

// Suspending reports whether the step type parks the instance until an
// external completion (approval decision, scheduler callback) arrives.
func (s Step) Suspending() bool {
	return s.Type == StepApproval || s.Type == StepDelay
}

// Trigger binds a domain event to a workflow definition.
type Trigger struct {
	Type TriggerType `json:"type" yaml:"type"`

	// SubjectType, if non-empty, restricts the trigger to events about
	// subjects of this type.
	SubjectType string `json:"subjectType,omitempty" yaml:"subjectType,omitempty"`

	// Filter, if non-nil, is an extra predicate evaluated against the
	// event data.
	Filter *Predicate `json:"filter,omitempty" yaml:"filter,omitempty"`
}

// WorkflowDefinition is the authored, versioned step graph plus its
// trigger bindings. Definitions are owned by a tenant and referenced
// (never owned) by instances: an instance pins the definition version
// that was current when it was created.
type WorkflowDefinition struct {
	ID          string           `json:"id"`
	Tenant      string           `json:"tenant"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Status      DefinitionStatus `json:"status"`

	// SubjectType optionally scopes the definition to one subject type
	// (for example "article" or "media").
	SubjectType string `json:"subjectType,omitempty"`

	Steps       []Step    `json:"steps"`
	Triggers    []Trigger `json:"triggers,omitempty"`
	StartStepID string    `json:"startStepId"`

	// Version increments on every update. Instances resolve their graph
	// through the version captured at creation time.
	Version int `json:"version"`

	// IsDefault marks the preferred definition when several match a
	// dispatched event. At most one default may exist per subject type
	// and tenant.
	IsDefault bool `json:"isDefault,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	CreatedBy string    `json:"createdBy,omitempty"`
}

// StepByID returns the step with the given ID, if present.
func (d *WorkflowDefinition) StepByID(id string) (Step, bool) {
	for _, s := range d.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return Step{}, false
}

// JoinArity returns the number of steps in the definition that list the
// given step among their branch targets. For Join steps this is the number
// of incoming branches the barrier waits for.
func (d *WorkflowDefinition) JoinArity(id string) int {
	n := 0
	for _, s := range d.Steps {
		for _, t := range s.BranchTargets() {
			if t == id {
				n++
			}
		}
	}
	return n
}
