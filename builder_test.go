package flowline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solenne/flowline/pkg/api"
)

func TestBuilderAssemblesDefinition(t *testing.T) {
	def, err := NewDefinition("Article review").
		Tenant("acme").
		SubjectType("article").
		Active().
		Default().
		On(TriggerContentCreated).
		Approval("review", "Editorial review", ApprovalConfig{Approvers: []string{"editor-1"}}, "gate").
		Condition("gate", "Quality gate", ConditionConfig{
			Predicate:   Predicate{Field: "score", Operator: api.OpGte, Value: 80},
			TrueStepID:  "publish",
			FalseStepID: "rework",
		}).
		Action("publish", "Publish", ActionConfig{Action: "content.publish"}).
		Notification("rework", "Rework", NotificationConfig{
			Recipients: []string{"author"}, Title: "t", Message: "m",
		}).
		Build()
	require.NoError(t, err)

	assert.Equal(t, "Article review", def.Name)
	assert.Equal(t, "acme", def.Tenant)
	assert.Equal(t, DefinitionActive, def.Status)
	assert.True(t, def.IsDefault)
	assert.Equal(t, "review", def.StartStepID, "first step becomes the start step")
	require.Len(t, def.Triggers, 1)
	assert.Equal(t, TriggerContentCreated, def.Triggers[0].Type)
	require.Len(t, def.Steps, 4)
	assert.Equal(t, StepApproval, def.Steps[0].Type)
	assert.Equal(t, []string{"gate"}, def.Steps[0].Next)
}

func TestBuilderForkJoinAndTimeout(t *testing.T) {
	def, err := NewDefinition("Parallel").
		Fork("split", "Split", "a", "b").
		Approval("a", "A", ApprovalConfig{Approvers: []string{"x"}}, "merge").
		Timeout(3600).
		Approval("b", "B", ApprovalConfig{Approvers: []string{"y"}}, "merge").
		Join("merge", "Merge").
		Build()
	require.NoError(t, err)

	assert.Equal(t, "split", def.StartStepID)
	assert.Equal(t, 3600, def.Steps[1].TimeoutSeconds, "Timeout applies to the most recent step")
	assert.Zero(t, def.Steps[2].TimeoutSeconds)
	assert.Equal(t, 2, def.JoinArity("merge"))
}

func TestBuilderStartOverride(t *testing.T) {
	def, err := NewDefinition("Override").
		Notification("a", "A", NotificationConfig{Recipients: []string{"u"}, Title: "t", Message: "m"}).
		Notification("b", "B", NotificationConfig{Recipients: []string{"u"}, Title: "t", Message: "m"}).
		Start("b").
		Build()
	require.NoError(t, err)
	assert.Equal(t, "b", def.StartStepID)
}

func TestBuilderRejectsInvalidGraph(t *testing.T) {
	_, err := NewDefinition("Broken").
		Approval("review", "Review", ApprovalConfig{}, "ghost").
		Build()
	require.Error(t, err)
	assert.True(t, api.IsGraphError(err))

	_, err = NewDefinition("Empty").Build()
	assert.Error(t, err)
}
