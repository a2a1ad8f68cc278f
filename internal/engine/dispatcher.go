package engine

import (
	"context"

	"github.com/solenne/flowline/internal/persistence"
	"github.com/solenne/flowline/pkg/api"
)

// Dispatch matches the event against the tenant's active definitions and
// starts at most one instance. Candidates are considered in creation-time
// order; a definition flagged as default wins over earlier non-defaults.
func (e *engineImpl) Dispatch(ctx context.Context, ev api.Event) (*api.WorkflowInstance, error) {
	defs, err := e.definitions.ListDefinitions(ctx, persistence.DefinitionFilter{
		Tenant: ev.Tenant,
		Status: api.DefinitionActive,
	})
	if err != nil {
		return nil, err
	}

	var matches []*api.WorkflowDefinition
	for _, def := range defs {
		if def.SubjectType != "" && ev.Subject.SubjectType != "" && def.SubjectType != ev.Subject.SubjectType {
			continue
		}
		if !matchesTrigger(def, ev) {
			continue
		}
		matches = append(matches, def)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	chosen := matches[0]
	for _, m := range matches {
		if m.IsDefault {
			chosen = m
			break
		}
	}

	inst := e.newInstance(chosen, ev.Subject, ev.Data, ev.Actor)
	if err := e.instances.SaveInstance(ctx, inst); err != nil {
		return nil, err
	}
	e.record(ctx, "instance.created", "workflow_instance", inst.ID, ev.Actor, map[string]any{
		"workflowId":      inst.WorkflowID,
		"workflowVersion": inst.WorkflowVersion,
		"trigger":         string(ev.Type),
	})

	if err := e.kickoff(ctx, inst.ID); err != nil {
		return inst, err
	}
	return inst, nil
}

// matchesTrigger reports whether any of the definition's triggers accepts
// the event.
func matchesTrigger(def *api.WorkflowDefinition, ev api.Event) bool {
	for _, tr := range def.Triggers {
		if tr.Type != ev.Type {
			continue
		}
		if tr.SubjectType != "" && tr.SubjectType != ev.Subject.SubjectType {
			continue
		}
		if tr.Filter != nil {
			ok, err := tr.Filter.Evaluate(ev.Data)
			if err != nil || !ok {
				continue
			}
		}
		return true
	}
	return false
}
