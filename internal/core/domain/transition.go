package domain

import "fmt"

// CheckUpdate verifies that next is an allowed successor of prev.
// It returns ErrConflict listing every broken invariant.
func CheckUpdate(prev, next Entity) error {
	if prev.Kind() != next.Kind() {
		return ErrConflict.WithDetailsf("record kind changed from %s to %s", prev.Kind(), next.Kind())
	}

	var v violations
	switch p := prev.(type) {
	case *WorkflowState:
		v = next.(*WorkflowState).checkUpdate(p)
	case *ApprovalRequest:
		v = next.(*ApprovalRequest).checkUpdate(p)
	case *TestResults:
		v = next.(*TestResults).checkUpdate(p)
	default:
		return ErrConflict.WithDetails(fmt.Sprintf("unsupported record type %T", prev))
	}

	if len(v) > 0 {
		return ErrConflict.WithViolations(v)
	}
	return nil
}
