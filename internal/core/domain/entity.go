package domain

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Kind names a persisted record type. The value is part of the key namespace.
type Kind string

const (
	KindWorkflow Kind = "workflow"
	KindApproval Kind = "approval"
	KindTest     Kind = "test"
)

// Kinds lists every entity kind in key-namespace order.
var Kinds = []Kind{KindWorkflow, KindApproval, KindTest}

// Valid reports whether k is a known entity kind.
func (k Kind) Valid() bool {
	switch k {
	case KindWorkflow, KindApproval, KindTest:
		return true
	}
	return false
}

// Entity is implemented by the three persisted record types.
type Entity interface {
	// Kind returns the record type.
	Kind() Kind
	// EntityID returns the id used in the record's key.
	EntityID() string
	// OwnerWorkflowID returns the workflow the record refers to.
	OwnerWorkflowID() string
	// Validate checks every constraint and reports all violations at once.
	Validate() error
	// CloneEntity returns a deep copy.
	CloneEntity() Entity
}

var (
	workflowIDPattern = regexp.MustCompile(`^[A-Z]{3}-[0-9]{6}$`)
	testIDPattern     = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]{0,127}$`)
)

// ValidWorkflowID reports whether id matches AAA-000000.
func ValidWorkflowID(id string) bool {
	return workflowIDPattern.MatchString(id)
}

// ValidApprovalID reports whether id is a canonical 36-character UUID.
func ValidApprovalID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// ValidTestID reports whether id is safe to embed in a key.
func ValidTestID(id string) bool {
	return testIDPattern.MatchString(id)
}

// ValidateID checks id against the id rules of kind.
// Ids become part of storage keys, so anything outside the rules is rejected.
func ValidateID(kind Kind, id string) error {
	var ok bool
	switch kind {
	case KindWorkflow:
		ok = ValidWorkflowID(id)
	case KindApproval:
		ok = ValidApprovalID(id)
	case KindTest:
		ok = ValidTestID(id)
	default:
		return ErrValidation.WithViolations([]string{fmt.Sprintf("unknown kind %q", kind)})
	}
	if !ok {
		return ErrValidation.WithViolations([]string{fmt.Sprintf("%s id %q is malformed", kind, id)})
	}
	return nil
}

// violations accumulates constraint failures for a single Validate call.
type violations []string

func (v *violations) add(format string, args ...any) {
	*v = append(*v, fmt.Sprintf(format, args...))
}

func (v *violations) requireTime(field string, t time.Time) {
	if t.IsZero() {
		v.add("%s is required", field)
	}
}

func (v violations) err() error {
	if len(v) == 0 {
		return nil
	}
	return ErrValidation.WithViolations(v)
}
