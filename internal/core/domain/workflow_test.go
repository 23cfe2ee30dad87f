package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func validWorkflow() *WorkflowState {
	w := NewWorkflowState("ABC-000001", "login form", "red")
	w.Metadata["owner"] = StringValue("ci")
	return w
}

func TestNewWorkflowState(t *testing.T) {
	w := NewWorkflowState("ABC-000001", "feature", "red")

	if w.Status != WorkflowPending {
		t.Errorf("Status = %q, want %q", w.Status, WorkflowPending)
	}
	if w.TTLHours != DefaultWorkflowTTLHours {
		t.Errorf("TTLHours = %d, want %d", w.TTLHours, DefaultWorkflowTTLHours)
	}
	if !w.CreatedAt.Equal(w.LastUpdated) {
		t.Error("CreatedAt and LastUpdated should start equal")
	}
	if err := w.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
}

func TestValidWorkflowID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"ABC-000001", true},
		{"TST-123456", true},
		{"abc-000001", false},
		{"AB-000001", false},
		{"ABCD-000001", false},
		{"ABC-00001", false},
		{"ABC000001", false},
		{"TST-123456; FLUSHALL", false},
		{"TST-123456\r\n", false},
		{"../TST-123456", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := ValidWorkflowID(tt.id); got != tt.want {
			t.Errorf("ValidWorkflowID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestWorkflowState_ValidateReportsAll(t *testing.T) {
	w := &WorkflowState{
		WorkflowID: "bad",
		Status:     "unknown",
		TTLHours:   0,
	}

	err := w.Validate()
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("Validate() = %v, want ErrValidation", err)
	}
	got := ViolationsOf(err)
	// id, status, created_at, last_updated, ttl_hours
	if len(got) != 5 {
		t.Fatalf("violations = %d (%v), want 5", len(got), got)
	}
}

func TestWorkflowState_TTLBounds(t *testing.T) {
	for _, hours := range []int{0, -1, 169, 1000} {
		w := validWorkflow()
		w.TTLHours = hours
		if err := w.Validate(); !errors.Is(err, ErrValidation) {
			t.Errorf("ttl_hours=%d: Validate() = %v, want ErrValidation", hours, err)
		}
	}
	for hours := MinWorkflowTTLHours; hours <= MaxWorkflowTTLHours; hours++ {
		w := validWorkflow()
		w.TTLHours = hours
		if err := w.Validate(); err != nil {
			t.Fatalf("ttl_hours=%d: Validate() = %v", hours, err)
		}
		if w.TTL() != time.Duration(hours)*time.Hour {
			t.Fatalf("TTL() = %v, want %dh", w.TTL(), hours)
		}
	}
}

func TestWorkflowState_LastUpdatedBeforeCreated(t *testing.T) {
	w := validWorkflow()
	w.LastUpdated = w.CreatedAt.Add(-time.Second)

	err := w.Validate()
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("Validate() = %v, want ErrValidation", err)
	}
	if !strings.Contains(err.Error(), "last_updated") {
		t.Errorf("error %q should mention last_updated", err)
	}
}

func TestWorkflowState_CloneIsDeep(t *testing.T) {
	w := validWorkflow()
	w.Metadata["tags"] = ListValue("a", "b")

	c := w.Clone()
	if !c.Equal(w) {
		t.Fatal("clone should equal original")
	}
	c.Metadata["owner"] = StringValue("other")
	if w.Metadata["owner"].Str() != "ci" {
		t.Error("modifying clone metadata changed original")
	}
}

func TestWorkflowState_Touch(t *testing.T) {
	w := validWorkflow()
	before := w.LastUpdated

	w.Touch(before.Add(-time.Minute))
	if !w.LastUpdated.Equal(before) {
		t.Error("Touch moved LastUpdated backward")
	}

	later := before.Add(time.Minute)
	w.Touch(later)
	if !w.LastUpdated.Equal(later) {
		t.Errorf("LastUpdated = %v, want %v", w.LastUpdated, later)
	}
}
