package state

import (
	"context"
	"fmt"

	"github.com/yndnr/railstate-go/internal/core/domain"
	"github.com/yndnr/railstate-go/internal/storage"
)

// initialVersion is the envelope version of a freshly saved record.
const initialVersion = 1

// Mutator changes a record in place during Update. It may run a second
// time against the fallback store if the networked store fails mid-update.
type Mutator func(domain.Entity) error

// Save validates e, attaches its lifetime and creates it. Records are
// created once: saving an id that is already stored fails with ErrConflict
// and leaves the stored record untouched; use Update to change it.
// Nothing is written when validation or the size check fails.
func (s *Store) Save(ctx context.Context, e domain.Entity) error {
	e = e.CloneEntity()
	data, lifetime, err := s.encode(e, initialVersion)
	if err != nil {
		return err
	}
	key, err := s.ks.Key(e.Kind(), e.EntityID())
	if err != nil {
		return err
	}
	return s.run(ctx, "save", func(b storage.Backend) error {
		created, err := b.SetNX(ctx, key, data, lifetime)
		if err != nil {
			return err
		}
		if !created {
			return domain.ErrConflict.WithDetailsf("%s %s already exists", e.Kind(), e.EntityID())
		}
		return nil
	})
}

// Get returns the record of kind with id or ErrNotFound. A pending
// approval past its expires_at is reported as expired.
func (s *Store) Get(ctx context.Context, kind domain.Kind, id string) (domain.Entity, error) {
	key, err := s.ks.Key(kind, id)
	if err != nil {
		return nil, err
	}
	var out domain.Entity
	err = s.run(ctx, "get", func(b storage.Backend) error {
		env, err := s.read(ctx, b, kind, key)
		if err != nil {
			return err
		}
		out = env.Entity
		return nil
	})
	switch {
	case err == nil:
		s.counters.hits.Add(1)
	case domain.IsDomainError(err, domain.ErrNotFound.Code):
		s.counters.misses.Add(1)
	}
	if err != nil {
		return nil, err
	}
	if a, ok := out.(*domain.ApprovalRequest); ok {
		a.ExpireIfDue(s.policy.Now())
	}
	return out, nil
}

// Delete removes the record of kind with id. Deleting an absent record is
// not an error.
func (s *Store) Delete(ctx context.Context, kind domain.Kind, id string) error {
	key, err := s.ks.Key(kind, id)
	if err != nil {
		return err
	}
	return s.run(ctx, "delete", func(b storage.Backend) error {
		return b.Delete(ctx, key)
	})
}

// Update applies fn to the stored record under the record's lease and
// writes the result. The returned record is what was stored.
//
// fn receives a private copy. A workflow whose last_updated fn leaves
// untouched gets it set to the current time. Changes that break an update
// invariant fail with ErrConflict; the stored record is left unchanged.
func (s *Store) Update(ctx context.Context, kind domain.Kind, id string, fn Mutator) (domain.Entity, error) {
	key, err := s.ks.Key(kind, id)
	if err != nil {
		return nil, err
	}
	resource := fmt.Sprintf("%s_%s", kind, id)

	var out domain.Entity
	err = s.run(ctx, "update", func(b storage.Backend) error {
		return s.guard.Do(ctx, b, resource, func(ctx context.Context) error {
			next, version, err := s.mutate(ctx, b, kind, key, fn)
			if err != nil {
				return err
			}
			if err := s.write(ctx, b, key, next, version); err != nil {
				return err
			}
			out = next
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out.CloneEntity(), nil
}

// mutate reads the current record and returns the checked successor.
func (s *Store) mutate(ctx context.Context, b storage.Backend, kind domain.Kind, key string, fn Mutator) (domain.Entity, uint64, error) {
	env, err := s.read(ctx, b, kind, key)
	if err != nil {
		return nil, 0, err
	}
	now := s.policy.Now()
	prev := env.Entity
	if a, ok := prev.(*domain.ApprovalRequest); ok {
		a.ExpireIfDue(now)
	}

	next := prev.CloneEntity()
	if err := fn(next); err != nil {
		return nil, 0, err
	}
	if w, ok := next.(*domain.WorkflowState); ok && w.LastUpdated.Equal(prev.(*domain.WorkflowState).LastUpdated) {
		w.Touch(now)
	}
	if err := domain.CheckUpdate(prev, next); err != nil {
		return nil, 0, err
	}
	return next, env.Version + 1, nil
}

// GetWorkflow returns the workflow state with id.
func (s *Store) GetWorkflow(ctx context.Context, id string) (*domain.WorkflowState, error) {
	e, err := s.Get(ctx, domain.KindWorkflow, id)
	if err != nil {
		return nil, err
	}
	return e.(*domain.WorkflowState), nil
}

// GetApproval returns the approval request with id.
func (s *Store) GetApproval(ctx context.Context, id string) (*domain.ApprovalRequest, error) {
	e, err := s.Get(ctx, domain.KindApproval, id)
	if err != nil {
		return nil, err
	}
	return e.(*domain.ApprovalRequest), nil
}

// GetTestResults returns the test results with id.
func (s *Store) GetTestResults(ctx context.Context, id string) (*domain.TestResults, error) {
	e, err := s.Get(ctx, domain.KindTest, id)
	if err != nil {
		return nil, err
	}
	return e.(*domain.TestResults), nil
}

// UpdateWorkflow is Update for workflow states.
func (s *Store) UpdateWorkflow(ctx context.Context, id string, fn func(*domain.WorkflowState) error) (*domain.WorkflowState, error) {
	e, err := s.Update(ctx, domain.KindWorkflow, id, func(e domain.Entity) error {
		return fn(e.(*domain.WorkflowState))
	})
	if err != nil {
		return nil, err
	}
	return e.(*domain.WorkflowState), nil
}

// UpdateApproval is Update for approval requests.
func (s *Store) UpdateApproval(ctx context.Context, id string, fn func(*domain.ApprovalRequest) error) (*domain.ApprovalRequest, error) {
	e, err := s.Update(ctx, domain.KindApproval, id, func(e domain.Entity) error {
		return fn(e.(*domain.ApprovalRequest))
	})
	if err != nil {
		return nil, err
	}
	return e.(*domain.ApprovalRequest), nil
}

// DecideApproval approves or rejects a pending request. Deciding a request
// that is already approved, rejected or expired fails with ErrConflict.
// The decided request is kept for ttl.approval_retention.
func (s *Store) DecideApproval(ctx context.Context, id string, approved bool, notes string) (*domain.ApprovalRequest, error) {
	return s.UpdateApproval(ctx, id, func(a *domain.ApprovalRequest) error {
		if a.Status.Terminal() {
			return domain.ErrConflict.WithDetailsf("approval %s is already %s", a.ApprovalID, a.Status)
		}
		a.Decide(approved, notes, s.policy.Now())
		return nil
	})
}
