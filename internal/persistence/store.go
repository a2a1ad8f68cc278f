package persistence

import (
	"context"
	"errors"

	"github.com/solenne/flowline/pkg/api"
)

var (
	// ErrDefinitionNotFound is returned when a workflow definition (or a
	// requested version of one) is not found.
	ErrDefinitionNotFound = errors.New("definition not found")

	// ErrInstanceNotFound is returned when a workflow instance is not found.
	ErrInstanceNotFound = errors.New("instance not found")

	// ErrVersionConflict is returned by UpdateInstance when the optimistic
	// sequence check fails: another writer updated the instance first.
	ErrVersionConflict = errors.New("instance version conflict")
)

// DefinitionFilter selects definitions from the store. Empty fields mean
// "no filter".
type DefinitionFilter struct {
	Tenant      string
	SubjectType string
	Status      api.DefinitionStatus
}

// DefinitionStore stores workflow definitions with full version history.
// Every version is retained so that running instances can always resolve
// the version they pinned at creation time.
type DefinitionStore interface {
	// SaveDefinition persists def as a new version row. The caller is
	// responsible for setting def.Version.
	SaveDefinition(ctx context.Context, def *api.WorkflowDefinition) error

	// GetDefinition returns the latest version of the definition.
	GetDefinition(ctx context.Context, id string) (*api.WorkflowDefinition, error)

	// GetDefinitionVersion returns one specific version.
	GetDefinitionVersion(ctx context.Context, id string, version int) (*api.WorkflowDefinition, error)

	// DeleteDefinition removes the definition and all of its versions.
	DeleteDefinition(ctx context.Context, id string) error

	// ListDefinitions returns the latest version of each matching
	// definition in stable creation-time order.
	ListDefinitions(ctx context.Context, f DefinitionFilter) ([]*api.WorkflowDefinition, error)
}

// InstanceFilter selects instances from the store. Empty fields mean "no
// filter".
type InstanceFilter struct {
	Tenant     string
	WorkflowID string
	Status     api.InstanceStatus
}

// InstanceStore stores workflow instances.
//
// UpdateInstance is a compare-and-swap on inst.Seq: the update applies only
// if the stored sequence equals inst.Seq, and on success both the stored
// row and inst carry Seq+1. A failed comparison returns ErrVersionConflict;
// this is the engine's lost-update guard.
type InstanceStore interface {
	SaveInstance(ctx context.Context, inst *api.WorkflowInstance) error
	UpdateInstance(ctx context.Context, inst *api.WorkflowInstance) error
	GetInstance(ctx context.Context, id string) (*api.WorkflowInstance, error)
	ListInstances(ctx context.Context, f InstanceFilter) ([]*api.WorkflowInstance, error)

	// CountActive returns the number of non-terminal instances pinned to
	// the given workflow definition.
	CountActive(ctx context.Context, workflowID string) (int, error)
}
