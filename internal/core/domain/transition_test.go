package domain

import (
	"errors"
	"testing"
	"time"
)

func TestCheckUpdate_Workflow(t *testing.T) {
	prev := validWorkflow()

	tests := []struct {
		name    string
		mutate  func(*WorkflowState)
		wantErr bool
	}{
		{"status change", func(w *WorkflowState) { w.Status = WorkflowInProgress }, false},
		{"forward touch", func(w *WorkflowState) { w.LastUpdated = w.LastUpdated.Add(time.Second) }, false},
		{"last_updated backward", func(w *WorkflowState) { w.LastUpdated = w.LastUpdated.Add(-time.Second) }, true},
		{"id change", func(w *WorkflowState) { w.WorkflowID = "XYZ-000001" }, true},
		{"created_at change", func(w *WorkflowState) { w.CreatedAt = w.CreatedAt.Add(-time.Hour) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := prev.Clone()
			tt.mutate(next)
			err := CheckUpdate(prev, next)
			if tt.wantErr && !errors.Is(err, ErrConflict) {
				t.Fatalf("CheckUpdate() = %v, want ErrConflict", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("CheckUpdate() = %v, want nil", err)
			}
		})
	}
}

func TestCheckUpdate_ApprovalMonotonic(t *testing.T) {
	statuses := []ApprovalStatus{ApprovalPending, ApprovalApproved, ApprovalRejected, ApprovalExpired}

	for _, from := range statuses {
		for _, to := range statuses {
			prev := NewApprovalRequest("ABC-000001", RequestCode, "", "eve", 0)
			prev.Status = from
			next := prev.Clone()
			next.Status = to

			err := CheckUpdate(prev, next)
			wantConflict := from.Terminal() && from != to
			if wantConflict && !errors.Is(err, ErrConflict) {
				t.Errorf("%s -> %s: CheckUpdate() = %v, want ErrConflict", from, to, err)
			}
			if !wantConflict && err != nil {
				t.Errorf("%s -> %s: CheckUpdate() = %v, want nil", from, to, err)
			}
		}
	}
}

func TestCheckUpdate_TestResults(t *testing.T) {
	prev, _ := NewTestResults("ABC-000001", "unit")
	next := prev.Clone()
	next.Passed = 10
	if err := CheckUpdate(prev, next); err != nil {
		t.Fatalf("CheckUpdate() = %v", err)
	}

	next.WorkflowID = "XYZ-000002"
	if err := CheckUpdate(prev, next); !errors.Is(err, ErrConflict) {
		t.Fatalf("CheckUpdate() = %v, want ErrConflict", err)
	}
}

func TestCheckUpdate_KindChange(t *testing.T) {
	w := validWorkflow()
	a := NewApprovalRequest("ABC-000001", RequestCode, "", "eve", 0)
	if err := CheckUpdate(w, a); !errors.Is(err, ErrConflict) {
		t.Fatalf("CheckUpdate() = %v, want ErrConflict", err)
	}
}

func TestMetricSample_Validate(t *testing.T) {
	m := &MetricSample{Name: "tests.passed", Value: 3, RecordedAt: time.Now()}
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}

	bad := &MetricSample{Name: "Bad Name*", Labels: map[string]string{"": "x"}}
	if got := ViolationsOf(bad.Validate()); len(got) != 3 {
		t.Fatalf("violations = %v, want 3", got)
	}
}
