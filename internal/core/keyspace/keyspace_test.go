package keyspace

import (
	"errors"
	"testing"
	"time"

	"github.com/yndnr/railstate-go/internal/core/domain"
)

func TestKey(t *testing.T) {
	ks := MustNew("")

	tests := []struct {
		kind domain.Kind
		id   string
		want string
	}{
		{domain.KindWorkflow, "ABC-000001", "ai_rails_workflow_ABC-000001"},
		{domain.KindApproval, "1b4e28ba-2fa1-11d2-883f-0016d3cca427", "ai_rails_approval_1b4e28ba-2fa1-11d2-883f-0016d3cca427"},
		{domain.KindTest, "tr-01j9", "ai_rails_test_tr-01j9"},
	}
	for _, tt := range tests {
		got, err := ks.Key(tt.kind, tt.id)
		if err != nil {
			t.Fatalf("Key(%s, %q) = %v", tt.kind, tt.id, err)
		}
		if got != tt.want {
			t.Errorf("Key(%s, %q) = %q, want %q", tt.kind, tt.id, got, tt.want)
		}
	}
}

func TestKey_RejectsInjection(t *testing.T) {
	ks := MustNew("")
	for _, id := range []string{
		"TST-123456; FLUSHALL",
		"TST-123456\r\nDEL x",
		"../../etc/passwd",
		"*",
		"",
	} {
		if _, err := ks.Key(domain.KindWorkflow, id); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("Key(%q) = %v, want ErrValidation", id, err)
		}
	}
	if _, err := ks.Key(domain.KindApproval, "ABC-000001"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("approval key with workflow id: err = %v, want ErrValidation", err)
	}
}

func TestNew_Prefix(t *testing.T) {
	ks, err := New("team.a")
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	if ks.Lock("ws") != "team.a_lock_ws" {
		t.Errorf("Lock() = %q", ks.Lock("ws"))
	}
	if _, err := New("bad prefix*"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("New(bad) = %v, want ErrValidation", err)
	}
}

func TestParse(t *testing.T) {
	ks := MustNew("")
	kind, id, ok := ks.Parse("ai_rails_workflow_ABC-000001")
	if !ok || kind != domain.KindWorkflow || id != "ABC-000001" {
		t.Fatalf("Parse() = %s, %q, %v", kind, id, ok)
	}
	if _, _, ok := ks.Parse("other_workflow_ABC-000001"); ok {
		t.Error("Parse() accepted a foreign prefix")
	}
	if _, _, ok := ks.Parse("ai_rails_lock_x"); ok {
		t.Error("Parse() accepted a lock key")
	}
}

func TestMetric(t *testing.T) {
	ks := MustNew("")
	ts := time.UnixMilli(1700000000123).UTC()

	key, err := ks.Metric("tests.passed", ts)
	if err != nil {
		t.Fatalf("Metric() = %v", err)
	}
	if key != "ai_rails_metric_tests.passed_1700000000123" {
		t.Errorf("Metric() = %q", key)
	}
	got, ok := ks.ParseMetric("tests.passed", key)
	if !ok || !got.Equal(ts) {
		t.Errorf("ParseMetric() = %v, %v, want %v", got, ok, ts)
	}
	if _, err := ks.Metric("Bad*", ts); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("Metric(bad) = %v, want ErrValidation", err)
	}
}
