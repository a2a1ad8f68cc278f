package api

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a definition or instance lookup misses.
var ErrNotFound = errors.New("not found")

// ErrDefaultConflict is returned when marking a definition as default while
// another default already exists for the same subject type and tenant.
var ErrDefaultConflict = errors.New("another default definition exists for this subject type")

// ErrDefinitionInUse is returned when deleting a definition that still has
// non-terminal instances.
var ErrDefinitionInUse = errors.New("definition has running instances")

// GraphError reports why a workflow definition failed validation. It is
// surfaced synchronously to the definition author; an invalid definition
// is never persisted.
type GraphError struct {
	Issues []string
}

func (e *GraphError) Error() string {
	return "invalid workflow definition: " + strings.Join(e.Issues, "; ")
}

func (e *GraphError) addf(format string, args ...any) {
	e.Issues = append(e.Issues, fmt.Sprintf(format, args...))
}

// IsGraphError reports whether err is a definition validation failure.
func IsGraphError(err error) bool {
	var g *GraphError
	return errors.As(err, &g)
}

// InvalidStateError means the requested operation is illegal for the
// instance's current status (for example cancelling a completed instance,
// or completing a step that is not in flight).
type InvalidStateError struct {
	Op         string
	InstanceID string
	Status     InstanceStatus
	Detail     string
}

func (e *InvalidStateError) Error() string {
	msg := fmt.Sprintf("%s: instance %s in status %s", e.Op, e.InstanceID, e.Status)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// IsInvalidState reports whether err is an InvalidStateError.
func IsInvalidState(err error) bool {
	var e *InvalidStateError
	return errors.As(err, &e)
}

// InvalidTransitionError means an explicit next step was requested that is
// not reachable from the current step, or a multi-target step completed
// without its executor resolving the branch.
type InvalidTransitionError struct {
	InstanceID string
	FromStepID string
	ToStepID   string
	Reason     string
}

func (e *InvalidTransitionError) Error() string {
	if e.ToStepID != "" {
		return fmt.Sprintf("invalid transition from %q to %q on instance %s: %s",
			e.FromStepID, e.ToStepID, e.InstanceID, e.Reason)
	}
	return fmt.Sprintf("invalid transition from %q on instance %s: %s",
		e.FromStepID, e.InstanceID, e.Reason)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var e *InvalidTransitionError
	return errors.As(err, &e)
}

// ConcurrentModificationError is the lost-update guard: two writers raced
// on the same instance and this one lost the optimistic version check.
type ConcurrentModificationError struct {
	InstanceID string
}

func (e *ConcurrentModificationError) Error() string {
	return "concurrent modification of instance " + e.InstanceID
}

// IsConcurrentModification reports whether err is a lost-update rejection.
func IsConcurrentModification(err error) bool {
	var e *ConcurrentModificationError
	return errors.As(err, &e)
}

// ActionExecutionError wraps a failure reported by the ActionRunner. The
// owning step and instance transition to FAILED.
type ActionExecutionError struct {
	Action string
	Err    error
}

func (e *ActionExecutionError) Error() string {
	return fmt.Sprintf("action %q failed: %v", e.Action, e.Err)
}

func (e *ActionExecutionError) Unwrap() error { return e.Err }

// StructuralInconsistencyError means an instance references a step absent
// from its pinned definition version. This is fatal and non-retryable.
type StructuralInconsistencyError struct {
	InstanceID string
	StepID     string
}

func (e *StructuralInconsistencyError) Error() string {
	return fmt.Sprintf("instance %s references unknown step %q", e.InstanceID, e.StepID)
}

// IsStructuralInconsistency reports whether err is a fatal graph mismatch.
func IsStructuralInconsistency(err error) bool {
	var e *StructuralInconsistencyError
	return errors.As(err, &e)
}
