package api

// Validate checks the structural integrity of the definition's step graph.
// It is the single gate for persisting a definition: the engine runs it on
// create and on every update.
//
// It returns a *GraphError listing every problem found:
//   - missing or unresolved start step
//   - duplicate step IDs
//   - next/branch targets that resolve to no step
//   - missing type-specific required config
//   - Fork steps with fewer than two branches
//   - Condition branches that target a Join step
func (d *WorkflowDefinition) Validate() error {
	ge := &GraphError{}

	if d.Name == "" {
		ge.addf("name is required")
	}
	if len(d.Steps) == 0 {
		ge.addf("at least one step is required")
	}

	ids := make(map[string]StepType, len(d.Steps))
	for _, s := range d.Steps {
		if s.ID == "" {
			ge.addf("step %q has no id", s.Name)
			continue
		}
		if _, dup := ids[s.ID]; dup {
			ge.addf("duplicate step id %q", s.ID)
		}
		ids[s.ID] = s.Type
	}

	if d.StartStepID == "" {
		ge.addf("startStepId is required")
	} else if _, ok := ids[d.StartStepID]; !ok {
		ge.addf("startStepId %q does not resolve to a step", d.StartStepID)
	}

	for _, s := range d.Steps {
		for _, next := range s.Next {
			if _, ok := ids[next]; !ok {
				ge.addf("step %q: next step %q does not resolve", s.ID, next)
			}
		}
		d.validateStepConfig(ge, s, ids)
	}

	if len(ge.Issues) > 0 {
		return ge
	}
	return nil
}

func (d *WorkflowDefinition) validateStepConfig(ge *GraphError, s Step, ids map[string]StepType) {
	switch s.Type {
	case StepApproval:
		if s.Approval == nil || len(s.Approval.Approvers) == 0 {
			ge.addf("approval step %q requires at least one approver", s.ID)
		}
	case StepNotification:
		if s.Notification == nil {
			ge.addf("notification step %q requires notification config", s.ID)
			return
		}
		if len(s.Notification.Recipients) == 0 {
			ge.addf("notification step %q requires at least one recipient", s.ID)
		}
		if s.Notification.Title == "" {
			ge.addf("notification step %q requires a title", s.ID)
		}
		if s.Notification.Message == "" {
			ge.addf("notification step %q requires a message", s.ID)
		}
	case StepCondition:
		if s.Condition == nil {
			ge.addf("condition step %q requires condition config", s.ID)
			return
		}
		if s.Condition.TrueStepID == "" || s.Condition.FalseStepID == "" {
			ge.addf("condition step %q requires both true and false branch targets", s.ID)
		}
		// Only one branch fires at runtime, so a branch pointing straight
		// at a join would leave the barrier short forever.
		if s.Condition.TrueStepID != "" {
			if typ, ok := ids[s.Condition.TrueStepID]; !ok {
				ge.addf("condition step %q: true branch %q does not resolve", s.ID, s.Condition.TrueStepID)
			} else if typ == StepJoin {
				ge.addf("condition step %q: true branch may not target join step %q", s.ID, s.Condition.TrueStepID)
			}
		}
		if s.Condition.FalseStepID != "" {
			if typ, ok := ids[s.Condition.FalseStepID]; !ok {
				ge.addf("condition step %q: false branch %q does not resolve", s.ID, s.Condition.FalseStepID)
			} else if typ == StepJoin {
				ge.addf("condition step %q: false branch may not target join step %q", s.ID, s.Condition.FalseStepID)
			}
		}
	case StepAction:
		if s.Action == nil || s.Action.Action == "" {
			ge.addf("action step %q requires an action name", s.ID)
		}
	case StepDelay:
		if s.Delay == nil || s.Delay.Duration <= 0 {
			ge.addf("delay step %q requires a positive duration", s.ID)
			return
		}
		switch s.Delay.Unit {
		case UnitSeconds, UnitMinutes, UnitHours, UnitDays:
		default:
			ge.addf("delay step %q has unknown unit %q", s.ID, s.Delay.Unit)
		}
	case StepFork:
		if len(s.Next) < 2 {
			ge.addf("fork step %q requires at least two branches", s.ID)
		}
	case StepJoin:
		// No mandatory config; arity is derived from incoming edges.
	default:
		ge.addf("step %q has unknown type %q", s.ID, s.Type)
	}
}
