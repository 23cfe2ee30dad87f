package domain

import (
	"time"
)

// Workflow constraints.
const (
	MinWorkflowTTLHours     = 1
	MaxWorkflowTTLHours     = 168
	DefaultWorkflowTTLHours = 24
)

// WorkflowStatus is the lifecycle status of a workflow.
type WorkflowStatus string

const (
	WorkflowPending    WorkflowStatus = "pending"
	WorkflowInProgress WorkflowStatus = "in_progress"
	WorkflowCompleted  WorkflowStatus = "completed"
	WorkflowFailed     WorkflowStatus = "failed"
)

// Valid reports whether s is a known workflow status.
func (s WorkflowStatus) Valid() bool {
	switch s {
	case WorkflowPending, WorkflowInProgress, WorkflowCompleted, WorkflowFailed:
		return true
	}
	return false
}

// WorkflowState is the persisted state of one TDD workflow run.
type WorkflowState struct {
	// WorkflowID has the form AAA-000000 and never changes after creation.
	WorkflowID string `json:"workflow_id"`

	Status             WorkflowStatus `json:"status"`
	FeatureDescription string         `json:"feature_description"`
	CurrentStage       string         `json:"current_stage"`
	Metadata           Metadata       `json:"metadata,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`

	// TTLHours bounds the record lifetime, 1 to 168 hours.
	TTLHours int `json:"ttl_hours"`
}

// NewWorkflowState creates a pending workflow with the default lifetime.
func NewWorkflowState(id, featureDescription, stage string) *WorkflowState {
	now := time.Now().UTC()
	return &WorkflowState{
		WorkflowID:         id,
		Status:             WorkflowPending,
		FeatureDescription: featureDescription,
		CurrentStage:       stage,
		Metadata:           Metadata{},
		CreatedAt:          now,
		LastUpdated:        now,
		TTLHours:           DefaultWorkflowTTLHours,
	}
}

func (w *WorkflowState) Kind() Kind              { return KindWorkflow }
func (w *WorkflowState) EntityID() string        { return w.WorkflowID }
func (w *WorkflowState) OwnerWorkflowID() string { return w.WorkflowID }

// CloneEntity implements Entity.
func (w *WorkflowState) CloneEntity() Entity { return w.Clone() }

// Clone returns a deep copy.
func (w *WorkflowState) Clone() *WorkflowState {
	c := *w
	c.Metadata = w.Metadata.Clone()
	return &c
}

// Touch moves LastUpdated to now unless that would move it backward.
func (w *WorkflowState) Touch(now time.Time) {
	if now.After(w.LastUpdated) {
		w.LastUpdated = now
	}
}

// TTL returns the record lifetime derived from TTLHours.
func (w *WorkflowState) TTL() time.Duration {
	return time.Duration(w.TTLHours) * time.Hour
}

// Equal reports whether two states hold the same values.
func (w *WorkflowState) Equal(o *WorkflowState) bool {
	if w == nil || o == nil {
		return w == o
	}
	return w.WorkflowID == o.WorkflowID &&
		w.Status == o.Status &&
		w.FeatureDescription == o.FeatureDescription &&
		w.CurrentStage == o.CurrentStage &&
		w.Metadata.Equal(o.Metadata) &&
		w.CreatedAt.Equal(o.CreatedAt) &&
		w.LastUpdated.Equal(o.LastUpdated) &&
		w.TTLHours == o.TTLHours
}

// Validate validates the workflow state against all of its constraints.
func (w *WorkflowState) Validate() error {
	var v violations

	if !ValidWorkflowID(w.WorkflowID) {
		v.add("workflow_id %q must match AAA-000000", w.WorkflowID)
	}
	if !w.Status.Valid() {
		v.add("status %q is not one of pending, in_progress, completed, failed", w.Status)
	}
	v.requireTime("created_at", w.CreatedAt)
	v.requireTime("last_updated", w.LastUpdated)
	if !w.CreatedAt.IsZero() && !w.LastUpdated.IsZero() && w.LastUpdated.Before(w.CreatedAt) {
		v.add("last_updated must not be before created_at")
	}
	if w.TTLHours < MinWorkflowTTLHours || w.TTLHours > MaxWorkflowTTLHours {
		v.add("ttl_hours %d must be within [%d,%d]", w.TTLHours, MinWorkflowTTLHours, MaxWorkflowTTLHours)
	}
	w.Metadata.validate(&v)

	return v.err()
}

func (w *WorkflowState) checkUpdate(prev *WorkflowState) violations {
	var v violations
	if w.WorkflowID != prev.WorkflowID {
		v.add("workflow_id is immutable")
	}
	if !w.CreatedAt.Equal(prev.CreatedAt) {
		v.add("created_at is immutable")
	}
	if w.LastUpdated.Before(prev.LastUpdated) {
		v.add("last_updated must not move backward")
	}
	if w.LastUpdated.Before(w.CreatedAt) {
		v.add("last_updated must not be before created_at")
	}
	return v
}
