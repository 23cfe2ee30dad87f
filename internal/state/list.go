package state

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/yndnr/railstate-go/internal/core/domain"
	"github.com/yndnr/railstate-go/internal/storage"
)

// Page size bounds.
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

var idPrefixPattern = regexp.MustCompile(`^[A-Za-z0-9_.:-]{0,128}$`)

// ListOptions selects one page of a listing.
type ListOptions struct {
	// Cursor is the NextCursor of the previous page; empty starts over.
	Cursor string
	// Limit bounds the keys visited for the page, clamped to
	// [1, MaxPageSize]. Zero selects DefaultPageSize.
	Limit int
}

func (o ListOptions) limit() int {
	switch {
	case o.Limit <= 0:
		return DefaultPageSize
	case o.Limit > MaxPageSize:
		return MaxPageSize
	}
	return o.Limit
}

// Page is one page of records. Items may hold fewer than Limit records
// when visited keys were expired or filtered out; only an empty
// NextCursor ends the listing.
type Page struct {
	Items      []domain.Entity
	NextCursor string
}

// cursor is "<backend>:<kind>:<backend cursor>". The backend part pins the
// listing to the store that issued it.
type cursor struct {
	backend string
	kind    domain.Kind
	inner   string
}

func (c cursor) String() string {
	return c.backend + ":" + string(c.kind) + ":" + c.inner
}

func parseCursor(raw string) (cursor, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return cursor{}, domain.ErrValidation.WithViolations([]string{"cursor is malformed"})
	}
	return cursor{backend: parts[0], kind: domain.Kind(parts[1]), inner: parts[2]}, nil
}

// resume returns the backend cursor for b, rejecting cursors issued by the
// other store.
func (c cursor) resume(b storage.Backend) (string, error) {
	if c.backend != b.Name() {
		return "", domain.ErrValidation.WithViolations([]string{
			fmt.Sprintf("cursor was issued by the %s store, the listing now runs on the %s store; restart it", c.backend, b.Name()),
		})
	}
	return c.inner, nil
}

// ListByPrefix returns records of kind whose id starts with idPrefix.
func (s *Store) ListByPrefix(ctx context.Context, kind domain.Kind, idPrefix string, opts ListOptions) (*Page, error) {
	if !kind.Valid() {
		return nil, domain.ErrValidation.WithViolations([]string{fmt.Sprintf("kind %q is unknown", kind)})
	}
	if !idPrefixPattern.MatchString(idPrefix) {
		return nil, domain.ErrValidation.WithViolations([]string{fmt.Sprintf("id prefix %q contains unsupported characters", idPrefix)})
	}
	var cur *cursor
	if opts.Cursor != "" {
		c, err := parseCursor(opts.Cursor)
		if err != nil {
			return nil, err
		}
		if c.kind != kind {
			return nil, domain.ErrValidation.WithViolations([]string{"cursor belongs to another listing"})
		}
		cur = &c
	}

	var page *Page
	err := s.run(ctx, "list", func(b storage.Backend) error {
		inner := ""
		if cur != nil {
			var err error
			if inner, err = cur.resume(b); err != nil {
				return err
			}
		}
		p, next, err := s.scanKind(ctx, b, kind, s.ks.KindPrefix(kind)+idPrefix, inner, opts.limit(), nil)
		if err != nil {
			return err
		}
		if next != "" {
			p.NextCursor = cursor{backend: b.Name(), kind: kind, inner: next}.String()
		}
		page = p
		return nil
	})
	return page, err
}

// ListByWorkflow returns the approval requests and test results that
// reference workflowID. Approvals are listed first.
func (s *Store) ListByWorkflow(ctx context.Context, workflowID string, opts ListOptions) (*Page, error) {
	if !domain.ValidWorkflowID(workflowID) {
		return nil, domain.ErrValidation.WithViolations([]string{fmt.Sprintf("workflow_id %q must match AAA-000000", workflowID)})
	}
	kinds := []domain.Kind{domain.KindApproval, domain.KindTest}
	cur := cursor{kind: kinds[0]}
	resuming := false
	if opts.Cursor != "" {
		c, err := parseCursor(opts.Cursor)
		if err != nil {
			return nil, err
		}
		if c.kind != domain.KindApproval && c.kind != domain.KindTest {
			return nil, domain.ErrValidation.WithViolations([]string{"cursor belongs to another listing"})
		}
		cur, resuming = c, true
	}

	owned := func(e domain.Entity) bool { return e.OwnerWorkflowID() == workflowID }

	var page *Page
	err := s.run(ctx, "list", func(b storage.Backend) error {
		inner := ""
		if resuming {
			var err error
			if inner, err = cur.resume(b); err != nil {
				return err
			}
		}
		p, next, err := s.scanKind(ctx, b, cur.kind, s.ks.KindPrefix(cur.kind), inner, opts.limit(), owned)
		if err != nil {
			return err
		}
		switch {
		case next != "":
			p.NextCursor = cursor{backend: b.Name(), kind: cur.kind, inner: next}.String()
		case cur.kind == domain.KindApproval:
			// Approvals done; the test results start on the next page.
			p.NextCursor = cursor{backend: b.Name(), kind: domain.KindTest}.String()
		}
		page = p
		return nil
	})
	return page, err
}

// scanKind reads one scan page of keys under prefix. Expired and corrupt
// records are skipped; keep, when set, filters the rest.
func (s *Store) scanKind(ctx context.Context, b storage.Backend, kind domain.Kind, prefix, inner string, limit int, keep func(domain.Entity) bool) (*Page, string, error) {
	keys, next, err := b.Scan(ctx, prefix, inner, limit)
	if err != nil {
		return nil, "", err
	}
	page := &Page{Items: make([]domain.Entity, 0, len(keys))}
	for _, key := range keys {
		env, err := s.read(ctx, b, kind, key)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrNotFound):
			continue
		case errors.Is(err, domain.ErrCorruptRecord):
			s.logger.Warn("skipping corrupt record", "key", key, "error", err)
			continue
		default:
			return nil, "", err
		}
		if keep != nil && !keep(env.Entity) {
			continue
		}
		if a, ok := env.Entity.(*domain.ApprovalRequest); ok {
			a.ExpireIfDue(s.policy.Now())
		}
		page.Items = append(page.Items, env.Entity)
	}
	return page, next, nil
}

// Count returns the approximate number of keys on the active backend.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.run(ctx, "count", func(b storage.Backend) error {
		var err error
		n, err = b.Count(ctx)
		return err
	})
	return n, err
}
