package api

import "time"

// InstanceStatus represents the lifecycle state of a workflow instance.
type InstanceStatus string

const (
	InstancePending   InstanceStatus = "PENDING"
	InstanceRunning   InstanceStatus = "RUNNING"
	InstanceCompleted InstanceStatus = "COMPLETED"
	InstanceFailed    InstanceStatus = "FAILED"
	InstanceCancelled InstanceStatus = "CANCELLED"
	InstanceSuspended InstanceStatus = "SUSPENDED"
)

// Terminal reports whether the status admits no further transitions.
func (s InstanceStatus) Terminal() bool {
	switch s {
	case InstanceCompleted, InstanceFailed, InstanceCancelled:
		return true
	}
	return false
}

// StepStatus represents the state of a single visited step.
type StepStatus string

const (
	StepPending    StepStatus = "PENDING"
	StepInProgress StepStatus = "IN_PROGRESS"
	StepCompleted  StepStatus = "COMPLETED"
	StepRejected   StepStatus = "REJECTED"
	StepSkipped    StepStatus = "SKIPPED"
	StepFailed     StepStatus = "FAILED"
)

// InstanceStep records one step the instance has visited or is on.
type InstanceStep struct {
	StepID      string         `json:"stepId"`
	Status      StepStatus     `json:"status"`
	StartedAt   *time.Time     `json:"startedAt,omitempty"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
	Assignee    string         `json:"assignee,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	Notes       string         `json:"notes,omitempty"`
}

// SubjectRef identifies the domain object an instance runs against. All
// fields are optional; manual workflows may carry none.
type SubjectRef struct {
	ContentID   string `json:"contentId,omitempty"`
	SubjectType string `json:"subjectType,omitempty"`
	UserID      string `json:"userId,omitempty"`
	MediaID     string `json:"mediaId,omitempty"`
}

// Event is a domain event handed to the trigger dispatcher.
type Event struct {
	Type    TriggerType    `json:"type"`
	Tenant  string         `json:"tenant"`
	Subject SubjectRef     `json:"subject"`
	Actor   string         `json:"actor,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// WorkflowInstance is one execution of a pinned definition version.
//
// Cursors holds the IDs of the steps the instance is currently on. Linear
// flows have at most one cursor; a Fork step spawns one cursor per branch
// and a Join barrier merges them back.
type WorkflowInstance struct {
	ID     string `json:"id"`
	Tenant string `json:"tenant"`

	WorkflowID      string `json:"workflowId"`
	WorkflowVersion int    `json:"workflowVersion"`

	Subject SubjectRef     `json:"subject"`
	Status  InstanceStatus `json:"status"`

	Cursors []string       `json:"cursors,omitempty"`
	Steps   []InstanceStep `json:"steps"`

	// Data is the free-form map read and written by Condition and Action
	// steps.
	Data map[string]any `json:"data,omitempty"`

	// Result summarizes the terminal outcome (completed, rejected, failed,
	// timeout) once the instance reaches a terminal status.
	Result map[string]any `json:"result,omitempty"`

	// Joins counts branch arrivals per Join step ID.
	Joins map[string]int `json:"joins,omitempty"`

	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	CreatedBy   string     `json:"createdBy,omitempty"`

	// Seq is the optimistic concurrency token. Every persisted update
	// compares and increments it; a losing concurrent writer gets a
	// ConcurrentModificationError.
	Seq int64 `json:"seq"`
}

// CurrentStepID returns the single active cursor, or "" when the instance
// is terminal or forked into multiple branches.
func (w *WorkflowInstance) CurrentStepID() string {
	if len(w.Cursors) == 1 {
		return w.Cursors[0]
	}
	return ""
}

// HasCursor reports whether stepID is an active cursor.
func (w *WorkflowInstance) HasCursor(stepID string) bool {
	for _, c := range w.Cursors {
		if c == stepID {
			return true
		}
	}
	return false
}

// StepRecord returns the InstanceStep for stepID, if the instance has
// visited it. The returned pointer aliases the instance's slice.
func (w *WorkflowInstance) StepRecord(stepID string) *InstanceStep {
	for i := range w.Steps {
		if w.Steps[i].StepID == stepID {
			return &w.Steps[i]
		}
	}
	return nil
}

// DefinitionListOptions filters ListDefinitions. Zero values mean "no
// filter" for that field.
type DefinitionListOptions struct {
	Tenant      string
	SubjectType string
	Status      DefinitionStatus
}

// InstanceListOptions filters ListInstances. Zero values mean "no filter"
// for that field.
type InstanceListOptions struct {
	Tenant     string
	WorkflowID string
	Status     InstanceStatus
}
