package flowline

import (
	"errors"

	"github.com/solenne/flowline/pkg/api"
)

// DefinitionBuilder assembles a WorkflowDefinition step by step. The first
// added step becomes the start step unless Start is called; Build runs the
// same validation the engine applies on create.
type DefinitionBuilder struct {
	def api.WorkflowDefinition
}

// NewDefinition starts a builder for a definition with the given name.
func NewDefinition(name string) *DefinitionBuilder {
	return &DefinitionBuilder{
		def: api.WorkflowDefinition{
			Name:   name,
			Status: api.DefinitionDraft,
		},
	}
}

// Tenant sets the owning tenant.
func (b *DefinitionBuilder) Tenant(tenant string) *DefinitionBuilder {
	b.def.Tenant = tenant
	return b
}

// Description sets the free-form description.
func (b *DefinitionBuilder) Description(d string) *DefinitionBuilder {
	b.def.Description = d
	return b
}

// SubjectType scopes the definition to one subject type.
func (b *DefinitionBuilder) SubjectType(t string) *DefinitionBuilder {
	b.def.SubjectType = t
	return b
}

// Status sets the lifecycle status; Active is a shorthand for the common
// case.
func (b *DefinitionBuilder) Status(s api.DefinitionStatus) *DefinitionBuilder {
	b.def.Status = s
	return b
}

// Active marks the definition ACTIVE so it is eligible for dispatch.
func (b *DefinitionBuilder) Active() *DefinitionBuilder {
	return b.Status(api.DefinitionActive)
}

// Default flags this definition as the tenant's default for its subject
// type.
func (b *DefinitionBuilder) Default() *DefinitionBuilder {
	b.def.IsDefault = true
	return b
}

// On adds a trigger for the given event type.
func (b *DefinitionBuilder) On(t api.TriggerType) *DefinitionBuilder {
	b.def.Triggers = append(b.def.Triggers, api.Trigger{Type: t})
	return b
}

// OnFiltered adds a trigger restricted by subject type and an optional
// data predicate.
func (b *DefinitionBuilder) OnFiltered(t api.TriggerType, subjectType string, filter *api.Predicate) *DefinitionBuilder {
	b.def.Triggers = append(b.def.Triggers, api.Trigger{
		Type:        t,
		SubjectType: subjectType,
		Filter:      filter,
	})
	return b
}

// Start overrides the start step.
func (b *DefinitionBuilder) Start(stepID string) *DefinitionBuilder {
	b.def.StartStepID = stepID
	return b
}

// Step appends an arbitrary step.
func (b *DefinitionBuilder) Step(s api.Step) *DefinitionBuilder {
	if b.def.StartStepID == "" {
		b.def.StartStepID = s.ID
	}
	b.def.Steps = append(b.def.Steps, s)
	return b
}

// Approval appends an approval step routing to next.
func (b *DefinitionBuilder) Approval(id, name string, cfg api.ApprovalConfig, next ...string) *DefinitionBuilder {
	return b.Step(api.Step{ID: id, Name: name, Type: api.StepApproval, Approval: &cfg, Next: next})
}

// Notification appends a notification step routing to next.
func (b *DefinitionBuilder) Notification(id, name string, cfg api.NotificationConfig, next ...string) *DefinitionBuilder {
	return b.Step(api.Step{ID: id, Name: name, Type: api.StepNotification, Notification: &cfg, Next: next})
}

// Condition appends a condition step. Routing comes from the config's
// true/false branch targets.
func (b *DefinitionBuilder) Condition(id, name string, cfg api.ConditionConfig) *DefinitionBuilder {
	return b.Step(api.Step{ID: id, Name: name, Type: api.StepCondition, Condition: &cfg})
}

// Action appends an action step routing to next.
func (b *DefinitionBuilder) Action(id, name string, cfg api.ActionConfig, next ...string) *DefinitionBuilder {
	return b.Step(api.Step{ID: id, Name: name, Type: api.StepAction, Action: &cfg, Next: next})
}

// Delay appends a delay step routing to next.
func (b *DefinitionBuilder) Delay(id, name string, cfg api.DelayConfig, next ...string) *DefinitionBuilder {
	return b.Step(api.Step{ID: id, Name: name, Type: api.StepDelay, Delay: &cfg, Next: next})
}

// Fork appends a fork step spawning one branch per target.
func (b *DefinitionBuilder) Fork(id, name string, branches ...string) *DefinitionBuilder {
	return b.Step(api.Step{ID: id, Name: name, Type: api.StepFork, Next: branches})
}

// Join appends a join barrier routing to next once every incoming branch
// has arrived.
func (b *DefinitionBuilder) Join(id, name string, next ...string) *DefinitionBuilder {
	return b.Step(api.Step{ID: id, Name: name, Type: api.StepJoin, Next: next})
}

// Timeout sets TimeoutSeconds on the most recently added step.
func (b *DefinitionBuilder) Timeout(seconds int) *DefinitionBuilder {
	if n := len(b.def.Steps); n > 0 {
		b.def.Steps[n-1].TimeoutSeconds = seconds
	}
	return b
}

// Build validates the assembled definition and returns it.
func (b *DefinitionBuilder) Build() (api.WorkflowDefinition, error) {
	if len(b.def.Steps) == 0 {
		return api.WorkflowDefinition{}, errors.New("definition has no steps")
	}
	if err := b.def.Validate(); err != nil {
		return api.WorkflowDefinition{}, err
	}
	return b.def, nil
}
