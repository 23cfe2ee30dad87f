// Package ttl assigns and enforces record lifetimes.
//
// Default lifetimes per kind are fixed: workflow 24h, approval 1h,
// test results 7d, lock 5m. A workflow may choose ttl_hours within
// [1,168]. A pending approval is kept until its expires_at plus the
// approval retention, so a lapsed request still reads back as expired.
package ttl

import (
	"fmt"
	"time"

	"github.com/yndnr/railstate-go/internal/config"
	"github.com/yndnr/railstate-go/internal/core/domain"
)

// Fixed default lifetimes.
const (
	WorkflowDefault = time.Duration(domain.DefaultWorkflowTTLHours) * time.Hour
	ApprovalDefault = domain.DefaultApprovalTTL
	TestDefault     = domain.DefaultTestResultTTL
	LockDefault     = 5 * time.Minute
)

// Clock returns the current time.
type Clock func() time.Time

// Policy computes the lifetime of each write.
type Policy struct {
	approvalRetention time.Duration
	metric            time.Duration
	now               Clock
}

// New creates a Policy from configuration. A nil clock selects time.Now.
func New(cfg config.TTLSection, now Clock) *Policy {
	if now == nil {
		now = time.Now
	}
	p := &Policy{
		approvalRetention: cfg.ApprovalRetention,
		metric:            cfg.Metric,
		now:               now,
	}
	if p.approvalRetention <= 0 {
		p.approvalRetention = config.DefaultApprovalRetention
	}
	if p.metric <= 0 {
		p.metric = config.DefaultMetricTTL
	}
	return p
}

// Now returns the policy clock reading.
func (p *Policy) Now() time.Time { return p.now() }

// Default returns the default lifetime of kind.
func Default(kind domain.Kind) time.Duration {
	switch kind {
	case domain.KindWorkflow:
		return WorkflowDefault
	case domain.KindApproval:
		return ApprovalDefault
	case domain.KindTest:
		return TestDefault
	}
	return 0
}

// ApplyDefaults fills unset lifetime fields of e before validation.
func (p *Policy) ApplyDefaults(e domain.Entity) {
	switch v := e.(type) {
	case *domain.WorkflowState:
		if v.TTLHours == 0 {
			v.TTLHours = domain.DefaultWorkflowTTLHours
		}
	case *domain.ApprovalRequest:
		if v.ExpiresAt.IsZero() && !v.CreatedAt.IsZero() {
			v.ExpiresAt = v.CreatedAt.Add(ApprovalDefault)
		}
	}
}

// ForEntity returns the lifetime to attach to a write of e.
func (p *Policy) ForEntity(e domain.Entity) (time.Duration, error) {
	switch v := e.(type) {
	case *domain.WorkflowState:
		if v.TTLHours < domain.MinWorkflowTTLHours || v.TTLHours > domain.MaxWorkflowTTLHours {
			return 0, domain.ErrValidation.WithViolations([]string{
				fmt.Sprintf("ttl_hours %d must be within [%d,%d]", v.TTLHours, domain.MinWorkflowTTLHours, domain.MaxWorkflowTTLHours),
			})
		}
		return v.TTL(), nil
	case *domain.ApprovalRequest:
		return p.approvalTTL(v)
	case *domain.TestResults:
		return TestDefault, nil
	}
	return 0, domain.ErrValidation.WithDetailsf("no lifetime rule for %T", e)
}

func (p *Policy) approvalTTL(a *domain.ApprovalRequest) (time.Duration, error) {
	if a.Status.Terminal() {
		return p.approvalRetention, nil
	}
	remaining := a.ExpiresAt.Sub(p.now())
	if remaining <= 0 {
		return 0, domain.ErrValidation.WithViolations([]string{"expires_at is already in the past"})
	}
	if remaining > domain.MaxApprovalTTL {
		return 0, domain.ErrValidation.WithViolations([]string{
			fmt.Sprintf("expires_at is more than %s away", domain.MaxApprovalTTL),
		})
	}
	return remaining + p.approvalRetention, nil
}

// ExpiresAt returns the absolute expiry of a write made now with ttl.
func (p *Policy) ExpiresAt(ttl time.Duration) time.Time {
	return p.now().Add(ttl).UTC()
}

// Expired reports whether a record stored at storedAt with ttl has lapsed.
func (p *Policy) Expired(storedAt time.Time, ttl time.Duration) bool {
	return Expired(storedAt, ttl, p.now())
}

// Expired reports whether storedAt+ttl is not after now. A non-positive ttl never expires.
func Expired(storedAt time.Time, ttl time.Duration, now time.Time) bool {
	if ttl <= 0 {
		return false
	}
	return !now.Before(storedAt.Add(ttl))
}

// Lock returns the lifetime of an update lock.
func (p *Policy) Lock() time.Duration { return LockDefault }

// Metric returns the lifetime of a metric sample.
func (p *Policy) Metric() time.Duration { return p.metric }

// ApprovalRetention returns how long a decided approval is kept.
func (p *Policy) ApprovalRetention() time.Duration { return p.approvalRetention }
