package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNewApprovalRequest(t *testing.T) {
	a := NewApprovalRequest("ABC-000001", RequestCode, "diff", "alice", 0)

	if !ValidApprovalID(a.ApprovalID) {
		t.Fatalf("ApprovalID %q is not a UUID", a.ApprovalID)
	}
	if a.Status != ApprovalPending {
		t.Errorf("Status = %q, want pending", a.Status)
	}
	if got := a.ExpiresAt.Sub(a.CreatedAt); got != DefaultApprovalTTL {
		t.Errorf("expiry window = %v, want %v", got, DefaultApprovalTTL)
	}
	if err := a.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
}

func TestApprovalStatus_Terminal(t *testing.T) {
	tests := []struct {
		status   ApprovalStatus
		terminal bool
	}{
		{ApprovalPending, false},
		{ApprovalApproved, true},
		{ApprovalRejected, true},
		{ApprovalExpired, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}

func TestApprovalRequest_ExpireIfDue(t *testing.T) {
	a := NewApprovalRequest("ABC-000001", RequestTest, "", "bob", time.Minute)

	if a.ExpireIfDue(a.CreatedAt.Add(30 * time.Second)) {
		t.Fatal("request expired before its deadline")
	}
	if !a.ExpireIfDue(a.ExpiresAt) {
		t.Fatal("request should expire at its deadline")
	}
	if a.Status != ApprovalExpired {
		t.Errorf("Status = %q, want expired", a.Status)
	}
	if a.ExpireIfDue(a.ExpiresAt.Add(time.Hour)) {
		t.Error("an expired request cannot expire again")
	}
}

func TestApprovalRequest_Decide(t *testing.T) {
	a := NewApprovalRequest("ABC-000001", RequestDeploy, "v1.2", "carol", 0)
	at := a.CreatedAt.Add(time.Minute)

	a.Decide(false, "flaky tests", at)

	if a.Status != ApprovalRejected {
		t.Errorf("Status = %q, want rejected", a.Status)
	}
	if a.DecidedAt == nil || !a.DecidedAt.Equal(at) {
		t.Errorf("DecidedAt = %v, want %v", a.DecidedAt, at)
	}
	if a.Notes != "flaky tests" {
		t.Errorf("Notes = %q", a.Notes)
	}
	if err := a.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
}

func TestApprovalRequest_Validate(t *testing.T) {
	a := &ApprovalRequest{
		ApprovalID:  "not-a-uuid",
		WorkflowID:  "ABC-000001",
		RequestType: "merge",
		Status:      "waiting",
		CreatedAt:   time.Now(),
		ExpiresAt:   time.Now().Add(-time.Hour),
	}

	err := a.Validate()
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("Validate() = %v, want ErrValidation", err)
	}
	// approval_id, request_type, status, requester, expires_at ordering
	if got := ViolationsOf(err); len(got) != 5 {
		t.Fatalf("violations = %d (%v), want 5", len(got), got)
	}
}

func TestApprovalRequest_CloneIsDeep(t *testing.T) {
	a := NewApprovalRequest("ABC-000001", RequestCode, "", "dave", 0)
	a.Decide(true, "", a.CreatedAt.Add(time.Second))

	c := a.Clone()
	*c.DecidedAt = c.DecidedAt.Add(time.Hour)
	if a.DecidedAt.Equal(*c.DecidedAt) {
		t.Error("clone shares DecidedAt with original")
	}
}
