package persistence

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/solenne/flowline/pkg/api"
)

type combinedStore interface {
	DefinitionStore
	InstanceStore
}

func openSQLiteStore(t *testing.T) combinedStore {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "flowline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewSQLiteStore(db)
	require.NoError(t, err)
	return store
}

func testDefinition(id, tenant string, version int) *api.WorkflowDefinition {
	return &api.WorkflowDefinition{
		ID:          id,
		Tenant:      tenant,
		Name:        "Review " + id,
		Status:      api.DefinitionActive,
		SubjectType: "article",
		StartStepID: "review",
		Version:     version,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Steps: []api.Step{
			{
				ID: "review", Name: "Review", Type: api.StepApproval,
				Approval: &api.ApprovalConfig{Approvers: []string{"editor-1"}},
			},
		},
	}
}

func testInstance(id, workflowID string) *api.WorkflowInstance {
	return &api.WorkflowInstance{
		ID:              id,
		Tenant:          "acme",
		WorkflowID:      workflowID,
		WorkflowVersion: 1,
		Status:          api.InstanceRunning,
		Cursors:         []string{"review"},
		Steps: []api.InstanceStep{
			{StepID: "review", Status: api.StepInProgress},
		},
		Data:      map[string]any{"k": "v"},
		CreatedAt: time.Now(),
	}
}

func runStoreSuite(t *testing.T, open func(t *testing.T) combinedStore) {
	ctx := context.Background()

	t.Run("definition versions", func(t *testing.T) {
		store := open(t)

		v1 := testDefinition("wf-1", "acme", 1)
		require.NoError(t, store.SaveDefinition(ctx, v1))

		v2 := testDefinition("wf-1", "acme", 2)
		v2.Name = "Review wf-1 revised"
		require.NoError(t, store.SaveDefinition(ctx, v2))

		latest, err := store.GetDefinition(ctx, "wf-1")
		require.NoError(t, err)
		assert.Equal(t, 2, latest.Version)
		assert.Equal(t, "Review wf-1 revised", latest.Name)

		pinned, err := store.GetDefinitionVersion(ctx, "wf-1", 1)
		require.NoError(t, err)
		assert.Equal(t, 1, pinned.Version)
		assert.Equal(t, "Review wf-1", pinned.Name)

		_, err = store.GetDefinitionVersion(ctx, "wf-1", 9)
		assert.ErrorIs(t, err, ErrDefinitionNotFound)

		require.NoError(t, store.DeleteDefinition(ctx, "wf-1"))
		_, err = store.GetDefinition(ctx, "wf-1")
		assert.ErrorIs(t, err, ErrDefinitionNotFound)
		_, err = store.GetDefinitionVersion(ctx, "wf-1", 1)
		assert.ErrorIs(t, err, ErrDefinitionNotFound, "delete must remove every version")
	})

	t.Run("definition listing", func(t *testing.T) {
		store := open(t)

		first := testDefinition("wf-a", "acme", 1)
		first.CreatedAt = time.Now().Add(-time.Hour)
		require.NoError(t, store.SaveDefinition(ctx, first))

		second := testDefinition("wf-b", "acme", 1)
		second.Status = api.DefinitionDraft
		require.NoError(t, store.SaveDefinition(ctx, second))

		other := testDefinition("wf-c", "globex", 1)
		require.NoError(t, store.SaveDefinition(ctx, other))

		all, err := store.ListDefinitions(ctx, DefinitionFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "wf-a", all[0].ID, "creation-time order")

		acme, err := store.ListDefinitions(ctx, DefinitionFilter{Tenant: "acme"})
		require.NoError(t, err)
		assert.Len(t, acme, 2)

		active, err := store.ListDefinitions(ctx, DefinitionFilter{Tenant: "acme", Status: api.DefinitionActive})
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, "wf-a", active[0].ID)
	})

	t.Run("instance roundtrip", func(t *testing.T) {
		store := open(t)

		inst := testInstance("in-1", "wf-1")
		require.NoError(t, store.SaveInstance(ctx, inst))
		assert.EqualValues(t, 1, inst.Seq, "save initializes the sequence")

		got, err := store.GetInstance(ctx, "in-1")
		require.NoError(t, err)
		assert.Equal(t, api.InstanceRunning, got.Status)
		assert.Equal(t, []string{"review"}, got.Cursors)
		assert.Equal(t, "v", got.Data["k"])
		require.Len(t, got.Steps, 1)
		assert.Equal(t, api.StepInProgress, got.Steps[0].Status)

		_, err = store.GetInstance(ctx, "ghost")
		assert.ErrorIs(t, err, ErrInstanceNotFound)
	})

	t.Run("optimistic sequence", func(t *testing.T) {
		store := open(t)

		inst := testInstance("in-2", "wf-1")
		require.NoError(t, store.SaveInstance(ctx, inst))

		fresh, err := store.GetInstance(ctx, "in-2")
		require.NoError(t, err)
		stale, err := store.GetInstance(ctx, "in-2")
		require.NoError(t, err)

		fresh.Status = api.InstanceCompleted
		require.NoError(t, store.UpdateInstance(ctx, fresh))
		assert.EqualValues(t, 2, fresh.Seq, "successful update bumps the sequence")

		stale.Status = api.InstanceCancelled
		err = store.UpdateInstance(ctx, stale)
		assert.ErrorIs(t, err, ErrVersionConflict)

		got, err := store.GetInstance(ctx, "in-2")
		require.NoError(t, err)
		assert.Equal(t, api.InstanceCompleted, got.Status, "losing write must not apply")

		ghost := testInstance("ghost", "wf-1")
		ghost.Seq = 1
		assert.ErrorIs(t, store.UpdateInstance(ctx, ghost), ErrInstanceNotFound)
	})

	t.Run("instance listing and active count", func(t *testing.T) {
		store := open(t)

		running := testInstance("in-a", "wf-1")
		running.CreatedAt = time.Now().Add(-time.Minute)
		require.NoError(t, store.SaveInstance(ctx, running))

		done := testInstance("in-b", "wf-1")
		done.Status = api.InstanceCompleted
		require.NoError(t, store.SaveInstance(ctx, done))

		other := testInstance("in-c", "wf-2")
		other.Tenant = "globex"
		require.NoError(t, store.SaveInstance(ctx, other))

		all, err := store.ListInstances(ctx, InstanceFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "in-a", all[0].ID)

		byWorkflow, err := store.ListInstances(ctx, InstanceFilter{WorkflowID: "wf-1"})
		require.NoError(t, err)
		assert.Len(t, byWorkflow, 2)

		byStatus, err := store.ListInstances(ctx, InstanceFilter{Status: api.InstanceCompleted})
		require.NoError(t, err)
		require.Len(t, byStatus, 1)
		assert.Equal(t, "in-b", byStatus[0].ID)

		n, err := store.CountActive(ctx, "wf-1")
		require.NoError(t, err)
		assert.Equal(t, 1, n, "completed instances do not count as active")
	})
}

func TestInMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) combinedStore { return NewInMemoryStore() })
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, openSQLiteStore)
}

func TestInMemoryStoreClonesOnRead(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	inst := testInstance("in-x", "wf-1")
	require.NoError(t, store.SaveInstance(ctx, inst))

	got, err := store.GetInstance(ctx, "in-x")
	require.NoError(t, err)
	got.Status = api.InstanceFailed
	got.Data["k"] = "mutated"

	again, err := store.GetInstance(ctx, "in-x")
	require.NoError(t, err)
	assert.Equal(t, api.InstanceRunning, again.Status)
	assert.Equal(t, "v", again.Data["k"])
}
