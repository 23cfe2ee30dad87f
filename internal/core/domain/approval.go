package domain

import (
	"time"

	"github.com/google/uuid"
)

// Approval constraints.
const (
	DefaultApprovalTTL = time.Hour
	MaxApprovalTTL     = 7 * 24 * time.Hour
)

// RequestType is what an approval request asks a human to sign off.
type RequestType string

const (
	RequestTest   RequestType = "test"
	RequestCode   RequestType = "code"
	RequestDeploy RequestType = "deploy"
)

// Valid reports whether t is a known request type.
func (t RequestType) Valid() bool {
	switch t {
	case RequestTest, RequestCode, RequestDeploy:
		return true
	}
	return false
}

// ApprovalStatus is the state of an approval request.
//
//	pending -> approved | rejected | expired
//
// The three targets are terminal.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalExpired  ApprovalStatus = "expired"
)

// Valid reports whether s is a known approval status.
func (s ApprovalStatus) Valid() bool {
	switch s {
	case ApprovalPending, ApprovalApproved, ApprovalRejected, ApprovalExpired:
		return true
	}
	return false
}

// Terminal reports whether no further status transition is allowed.
func (s ApprovalStatus) Terminal() bool {
	return s == ApprovalApproved || s == ApprovalRejected || s == ApprovalExpired
}

// ApprovalRequest asks a human reviewer to approve a workflow artefact.
type ApprovalRequest struct {
	ApprovalID  string         `json:"approval_id"`
	WorkflowID  string         `json:"workflow_id"`
	RequestType RequestType    `json:"request_type"`
	Content     string         `json:"content"`
	Requester   string         `json:"requester"`
	CreatedAt   time.Time      `json:"created_at"`
	ExpiresAt   time.Time      `json:"expires_at"`
	Status      ApprovalStatus `json:"status"`

	// DecidedAt and Notes are set when a reviewer approves or rejects.
	DecidedAt *time.Time `json:"decided_at,omitempty"`
	Notes     string     `json:"notes,omitempty"`
}

// NewApprovalRequest creates a pending request with a random UUID.
// A zero ttl selects DefaultApprovalTTL.
func NewApprovalRequest(workflowID string, requestType RequestType, content, requester string, ttl time.Duration) *ApprovalRequest {
	if ttl <= 0 {
		ttl = DefaultApprovalTTL
	}
	now := time.Now().UTC()
	return &ApprovalRequest{
		ApprovalID:  uuid.NewString(),
		WorkflowID:  workflowID,
		RequestType: requestType,
		Content:     content,
		Requester:   requester,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
		Status:      ApprovalPending,
	}
}

func (a *ApprovalRequest) Kind() Kind              { return KindApproval }
func (a *ApprovalRequest) EntityID() string        { return a.ApprovalID }
func (a *ApprovalRequest) OwnerWorkflowID() string { return a.WorkflowID }

// CloneEntity implements Entity.
func (a *ApprovalRequest) CloneEntity() Entity { return a.Clone() }

// Clone returns a deep copy.
func (a *ApprovalRequest) Clone() *ApprovalRequest {
	c := *a
	if a.DecidedAt != nil {
		t := *a.DecidedAt
		c.DecidedAt = &t
	}
	return &c
}

// IsExpired reports whether a pending request has passed its deadline.
func (a *ApprovalRequest) IsExpired(now time.Time) bool {
	return a.Status == ApprovalPending && !now.Before(a.ExpiresAt)
}

// ExpireIfDue moves a pending request past its deadline to expired.
// It reports whether the status changed.
func (a *ApprovalRequest) ExpireIfDue(now time.Time) bool {
	if !a.IsExpired(now) {
		return false
	}
	a.Status = ApprovalExpired
	return true
}

// Decide records a reviewer decision on the request.
// Transition rules are enforced by CheckUpdate, not here.
func (a *ApprovalRequest) Decide(approved bool, notes string, now time.Time) {
	if approved {
		a.Status = ApprovalApproved
	} else {
		a.Status = ApprovalRejected
	}
	a.Notes = notes
	decided := now
	a.DecidedAt = &decided
}

// Validate validates the request against all of its constraints.
func (a *ApprovalRequest) Validate() error {
	var v violations

	if !ValidApprovalID(a.ApprovalID) {
		v.add("approval_id %q must be a UUID", a.ApprovalID)
	}
	if !ValidWorkflowID(a.WorkflowID) {
		v.add("workflow_id %q must match AAA-000000", a.WorkflowID)
	}
	if !a.RequestType.Valid() {
		v.add("request_type %q is not one of test, code, deploy", a.RequestType)
	}
	if !a.Status.Valid() {
		v.add("status %q is not one of pending, approved, rejected, expired", a.Status)
	}
	if a.Requester == "" {
		v.add("requester is required")
	}
	v.requireTime("created_at", a.CreatedAt)
	v.requireTime("expires_at", a.ExpiresAt)
	if !a.CreatedAt.IsZero() && !a.ExpiresAt.IsZero() && !a.ExpiresAt.After(a.CreatedAt) {
		v.add("expires_at must be after created_at")
	}
	if a.DecidedAt != nil {
		if a.Status != ApprovalApproved && a.Status != ApprovalRejected {
			v.add("decided_at is only allowed on approved or rejected requests")
		}
		if a.DecidedAt.Before(a.CreatedAt) {
			v.add("decided_at must not be before created_at")
		}
	}

	return v.err()
}

func (a *ApprovalRequest) checkUpdate(prev *ApprovalRequest) violations {
	var v violations
	if a.ApprovalID != prev.ApprovalID {
		v.add("approval_id is immutable")
	}
	if a.WorkflowID != prev.WorkflowID {
		v.add("workflow_id is immutable")
	}
	if !a.CreatedAt.Equal(prev.CreatedAt) {
		v.add("created_at is immutable")
	}
	if prev.Status.Terminal() && a.Status != prev.Status {
		v.add("status %s is terminal, cannot move to %s", prev.Status, a.Status)
	}
	return v
}
