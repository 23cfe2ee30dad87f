package domain

import (
	"crypto/rand"
	"math"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Test result constraints.
const (
	DefaultTestResultTTL = 7 * 24 * time.Hour
	MaxFailureDetails    = 1000

	// TestIDPrefix is the prefix of generated test ids.
	TestIDPrefix = "tr-"
)

// FailureDetail describes one failing test case.
type FailureDetail struct {
	TestName  string `json:"test_name"`
	Message   string `json:"message,omitempty"`
	File      string `json:"file,omitempty"`
	Line      int    `json:"line,omitempty"`
	Traceback string `json:"traceback,omitempty"`
}

// TestResults summarises one execution of a test suite.
type TestResults struct {
	TestID          string          `json:"test_id"`
	WorkflowID      string          `json:"workflow_id"`
	TestSuite       string          `json:"test_suite"`
	Passed          int             `json:"passed"`
	Failed          int             `json:"failed"`
	Skipped         int             `json:"skipped"`
	DurationSeconds float64         `json:"duration_seconds"`
	FailureDetails  []FailureDetail `json:"failure_details,omitempty"`
	CoveragePercent *float64        `json:"coverage_percent,omitempty"`
	ExecutedAt      time.Time       `json:"executed_at"`
}

// NewTestResults creates an empty summary for suite with a generated id.
func NewTestResults(workflowID, suite string) (*TestResults, error) {
	id, err := GenerateTestID()
	if err != nil {
		return nil, err
	}
	return &TestResults{
		TestID:     id,
		WorkflowID: workflowID,
		TestSuite:  suite,
		ExecutedAt: time.Now().UTC(),
	}, nil
}

// GenerateTestID returns tr-{ulid_lowercase}.
func GenerateTestID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", ErrStorage.WithCause(err)
	}
	return TestIDPrefix + strings.ToLower(id.String()), nil
}

func (r *TestResults) Kind() Kind              { return KindTest }
func (r *TestResults) EntityID() string        { return r.TestID }
func (r *TestResults) OwnerWorkflowID() string { return r.WorkflowID }

// CloneEntity implements Entity.
func (r *TestResults) CloneEntity() Entity { return r.Clone() }

// Clone returns a deep copy.
func (r *TestResults) Clone() *TestResults {
	c := *r
	if r.FailureDetails != nil {
		c.FailureDetails = append([]FailureDetail(nil), r.FailureDetails...)
	}
	if r.CoveragePercent != nil {
		p := *r.CoveragePercent
		c.CoveragePercent = &p
	}
	return &c
}

// Total returns the number of test cases that ran or were skipped.
func (r *TestResults) Total() int {
	return r.Passed + r.Failed + r.Skipped
}

// Validate validates the summary against all of its constraints.
func (r *TestResults) Validate() error {
	var v violations

	if !ValidTestID(r.TestID) {
		v.add("test_id %q contains characters outside [A-Za-z0-9_.:-] or is too long", r.TestID)
	}
	if !ValidWorkflowID(r.WorkflowID) {
		v.add("workflow_id %q must match AAA-000000", r.WorkflowID)
	}
	if r.TestSuite == "" {
		v.add("test_suite is required")
	}
	if r.Passed < 0 {
		v.add("passed must be non-negative")
	}
	if r.Failed < 0 {
		v.add("failed must be non-negative")
	}
	if r.Skipped < 0 {
		v.add("skipped must be non-negative")
	}
	if math.IsNaN(r.DurationSeconds) || math.IsInf(r.DurationSeconds, 0) || r.DurationSeconds < 0 {
		v.add("duration_seconds must be a non-negative number")
	}
	if r.CoveragePercent != nil {
		p := *r.CoveragePercent
		if math.IsNaN(p) || p < 0 || p > 100 {
			v.add("coverage_percent must be within [0,100]")
		}
	}
	if len(r.FailureDetails) > MaxFailureDetails {
		v.add("failure_details has %d entries, limit is %d", len(r.FailureDetails), MaxFailureDetails)
	}
	for i, d := range r.FailureDetails {
		if d.TestName == "" {
			v.add("failure_details[%d].test_name is required", i)
		}
		if d.Line < 0 {
			v.add("failure_details[%d].line must be non-negative", i)
		}
	}
	v.requireTime("executed_at", r.ExecutedAt)

	return v.err()
}

func (r *TestResults) checkUpdate(prev *TestResults) violations {
	var v violations
	if r.TestID != prev.TestID {
		v.add("test_id is immutable")
	}
	if r.WorkflowID != prev.WorkflowID {
		v.add("workflow_id is immutable")
	}
	return v
}
