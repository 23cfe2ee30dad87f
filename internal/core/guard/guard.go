// Package guard serialises read-modify-write cycles per resource.
//
// A lease is a single key {prefix}_lock_{resource} written with SET NX and
// a short TTL on the backend the update runs against. The value is a
// random owner token, so a holder can only release its own lease. A
// crashed holder's lease expires on its own.
package guard

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/railstate-go/internal/config"
	"github.com/yndnr/railstate-go/internal/core/domain"
	"github.com/yndnr/railstate-go/internal/core/keyspace"
	"github.com/yndnr/railstate-go/internal/core/ttl"
	"github.com/yndnr/railstate-go/internal/storage"
)

// releaseTimeout bounds the compare-and-delete issued on release.
const releaseTimeout = 2 * time.Second

// Guard hands out per-resource leases.
type Guard struct {
	ks       keyspace.Keyspace
	wait     time.Duration
	retry    time.Duration
	leaseTTL time.Duration
	logger   *slog.Logger
}

// Option configures a Guard.
type Option func(*Guard)

// WithLeaseTTL overrides the lease lifetime (default 5m).
func WithLeaseTTL(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.leaseTTL = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		g.logger = logger
	}
}

// New creates a Guard for keys under ks.
func New(ks keyspace.Keyspace, cfg config.LockSection, opts ...Option) *Guard {
	g := &Guard{
		ks:       ks,
		wait:     cfg.Wait,
		retry:    cfg.RetryInterval,
		leaseTTL: ttl.LockDefault,
		logger:   slog.Default(),
	}
	if g.wait <= 0 {
		g.wait = config.DefaultLockWait
	}
	if g.retry <= 0 {
		g.retry = config.DefaultLockRetryInterval
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Lease is a held lock. Release it exactly once; extra calls are no-ops.
type Lease struct {
	backend storage.Backend
	key     string
	token   []byte
	once    sync.Once
	logger  *slog.Logger
}

// Key returns the lock key.
func (l *Lease) Key() string { return l.key }

// Acquire takes the lease on resource, polling until lock.wait elapses.
// Backend errors are returned as is so the caller can reroute.
func (g *Guard) Acquire(ctx context.Context, backend storage.Backend, resource string) (*Lease, error) {
	key := g.ks.Lock(resource)
	token := []byte(ulid.Make().String())
	deadline := time.Now().Add(g.wait)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		ok, err := backend.SetNX(ctx, key, token, g.leaseTTL)
		if err != nil {
			return nil, err
		}
		if ok {
			return &Lease{backend: backend, key: key, token: token, logger: g.logger}, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, domain.ErrLockTimeout.WithDetailsf("%s held by another writer for more than %s", resource, g.wait)
		}
		step := min(g.retry, remaining)
		if timer == nil {
			timer = time.NewTimer(step)
		} else {
			timer.Reset(step)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// Release frees the lease if this holder still owns it. It runs even when
// ctx is already cancelled.
func (l *Lease) Release(ctx context.Context) error {
	var err error
	l.once.Do(func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()

		var released bool
		released, err = l.backend.CompareAndDelete(rctx, l.key, l.token)
		if err == nil && !released {
			l.logger.Warn("lease expired before release", "key", l.key)
		}
	})
	return err
}

// Do runs fn while holding the lease on resource.
func (g *Guard) Do(ctx context.Context, backend storage.Backend, resource string, fn func(context.Context) error) error {
	lease, err := g.Acquire(ctx, backend, resource)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := lease.Release(ctx); rerr != nil {
			g.logger.Warn("failed to release lease", "key", lease.key, "error", rerr)
		}
	}()
	return fn(ctx)
}
