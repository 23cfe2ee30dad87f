package state

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/yndnr/railstate-go/internal/config"
	"github.com/yndnr/railstate-go/internal/core/codec"
	"github.com/yndnr/railstate-go/internal/core/domain"
	"github.com/yndnr/railstate-go/internal/core/guard"
	"github.com/yndnr/railstate-go/internal/core/keyspace"
	"github.com/yndnr/railstate-go/internal/core/ttl"
	"github.com/yndnr/railstate-go/internal/storage"
	"github.com/yndnr/railstate-go/internal/storage/memory"
	"github.com/yndnr/railstate-go/internal/storage/remote"
)

// Observer receives one call per completed operation.
type Observer interface {
	ObserveOp(op, backend string, err error, elapsed time.Duration)
}

// Store is the State API. It is safe for concurrent use.
type Store struct {
	ks     keyspace.Keyspace
	codec  *codec.Codec
	policy *ttl.Policy
	guard  *guard.Guard

	client   *remote.Client  // nil when injected or disabled
	manager  *remote.Manager // nil when the networked store is disabled
	fallback *memory.Store   // nil when the fallback is disabled

	logger   *slog.Logger
	observer Observer
	counters counters
}

type counters struct {
	hits            atomic.Uint64
	misses          atomic.Uint64
	degraded        atomic.Uint64
	conflicts       atomic.Uint64
	lockTimeouts    atomic.Uint64
	fallbackRejects atomic.Uint64
}

// Option configures a Store.
type Option func(*options)

type options struct {
	now      ttl.Clock
	logger   *slog.Logger
	primary  remote.Primary
	observer Observer
	probe    memory.MemoryProbe
}

// WithClock sets the time source for TTLs and expiry checks.
func WithClock(now ttl.Clock) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithPrimary replaces the networked store client built from store.url.
func WithPrimary(p remote.Primary) Option {
	return func(o *options) {
		o.primary = p
	}
}

// WithObserver registers an operation observer.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// WithMemoryProbe replaces the host memory sampler of the fallback store.
func WithMemoryProbe(probe memory.MemoryProbe) Option {
	return func(o *options) {
		o.probe = probe
	}
}

// New builds a Store from cfg. No connection is opened until the first
// operation; call Start to run the health loop and the fallback sweeper.
func New(cfg *config.Config, opts ...Option) (*Store, error) {
	if err := config.Verify(cfg); err != nil {
		return nil, domain.ErrConnConfig.WithDetails("invalid configuration").WithCause(err)
	}
	o := options{now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	ks, err := keyspace.New(cfg.Store.KeyPrefix)
	if err != nil {
		return nil, err
	}
	s := &Store{
		ks:       ks,
		codec:    codec.New(cfg.Codec),
		policy:   ttl.New(cfg.TTL, o.now),
		guard:    guard.New(ks, cfg.Lock, guard.WithLogger(o.logger)),
		logger:   o.logger,
		observer: o.observer,
	}

	if cfg.Fallback.Enabled {
		memOpts := []memory.Option{
			memory.WithClock(o.now),
			memory.WithLogger(o.logger),
			memory.WithPrefixCounters(kindPrefixes(ks)...),
		}
		if o.probe != nil {
			memOpts = append(memOpts, memory.WithMemoryProbe(o.probe))
		}
		s.fallback = memory.New(cfg.Fallback, memOpts...)
	}

	if cfg.Store.Enabled {
		primary := o.primary
		if primary == nil {
			c, err := remote.NewClient(cfg.Store, remote.WithClientLogger(o.logger))
			if err != nil {
				return nil, err
			}
			s.client = c
			primary = c
		}
		s.manager = remote.NewManager(cfg.Store, primary, remote.WithManagerLogger(o.logger))
	}

	s.logger.Info("state store configured",
		"store_enabled", cfg.Store.Enabled,
		"store_url", config.MaskURL(cfg.Store.URL),
		"fallback_enabled", cfg.Fallback.Enabled,
		"key_prefix", ks.Prefix(),
	)
	return s, nil
}

// Start runs the background tasks until ctx is done or Close is called.
func (s *Store) Start(ctx context.Context) {
	if s.manager != nil {
		s.manager.Start(ctx)
	}
	if s.fallback != nil {
		s.fallback.Start(ctx)
	}
}

// Close stops the background tasks and releases pooled connections.
func (s *Store) Close() error {
	if s.manager != nil {
		s.manager.Close()
	}
	if s.client != nil {
		s.client.Close()
	}
	if s.fallback != nil {
		return s.fallback.Close()
	}
	return nil
}

// Keyspace returns the key layout in use.
func (s *Store) Keyspace() keyspace.Keyspace { return s.ks }

// run executes op on the routed backend. A connectivity fault on the
// networked store reroutes op to the fallback store once.
func (s *Store) run(ctx context.Context, name string, op func(storage.Backend) error) error {
	start := time.Now()
	backend, err := s.dispatch(ctx, name, op)
	s.account(err)
	if s.observer != nil {
		s.observer.ObserveOp(name, backend, err, time.Since(start))
	}
	return err
}

func (s *Store) dispatch(ctx context.Context, name string, op func(storage.Backend) error) (string, error) {
	if s.manager != nil {
		route := s.manager.Route()
		if route.Mode == remote.ModeConnected {
			err := op(route.Backend)
			if !domain.IsConnectivity(err) {
				s.manager.ReportSuccess()
				return route.Backend.Name(), err
			}
			s.manager.ReportFailure(err)
			if s.fallback == nil {
				return route.Backend.Name(), err
			}
			s.manager.WarnDegraded(name, err)
		}
		if s.fallback == nil {
			return "", domain.ErrConnTransient.WithDetails("backing store disabled and no fallback store configured")
		}
		s.counters.degraded.Add(1)
	}
	if s.fallback == nil {
		return "", domain.ErrConnConfig.WithDetails("no backend configured")
	}

	err := op(s.fallback)
	if errors.Is(err, domain.ErrFallbackExhausted) {
		s.counters.fallbackRejects.Add(1)
		s.logger.Error("fallback store rejected write", "op", name, "error", err)
	}
	return s.fallback.Name(), ctxErr(ctx, err)
}

// ctxErr prefers the context error when ctx ended during op.
func ctxErr(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil && !domain.IsDomainError(err, "") {
		return ctx.Err()
	}
	return err
}

func (s *Store) account(err error) {
	switch {
	case errors.Is(err, domain.ErrConflict):
		s.counters.conflicts.Add(1)
	case errors.Is(err, domain.ErrLockTimeout):
		s.counters.lockTimeouts.Add(1)
	}
}

// read loads and decodes key. Records whose absolute expiry has passed are
// removed and reported as not found.
func (s *Store) read(ctx context.Context, b storage.Backend, kind domain.Kind, key string) (*codec.Envelope, error) {
	data, err := b.Get(ctx, key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, notFound(kind, key)
	}
	if err != nil {
		return nil, err
	}
	env, err := s.codec.Decode(kind, data)
	if err != nil {
		return nil, err
	}
	if env.Expired(s.policy.Now()) {
		if err := b.Delete(ctx, key); err != nil {
			s.logger.Debug("failed to remove expired record", "key", key, "error", err)
		}
		return nil, notFound(kind, key)
	}
	return env, nil
}

// write attaches the lifetime of e and stores it at version.
func (s *Store) write(ctx context.Context, b storage.Backend, key string, e domain.Entity, version uint64) error {
	data, lifetime, err := s.encode(e, version)
	if err != nil {
		return err
	}
	return b.Set(ctx, key, data, lifetime)
}

func (s *Store) encode(e domain.Entity, version uint64) ([]byte, time.Duration, error) {
	s.policy.ApplyDefaults(e)
	if err := e.Validate(); err != nil {
		return nil, 0, err
	}
	lifetime, err := s.policy.ForEntity(e)
	if err != nil {
		return nil, 0, err
	}
	now := s.policy.Now()
	data, err := s.codec.Encode(e, version, now, now.Add(lifetime))
	if err != nil {
		return nil, 0, err
	}
	return data, lifetime, nil
}

func kindPrefixes(ks keyspace.Keyspace) []string {
	out := make([]string, len(domain.Kinds))
	for i, kind := range domain.Kinds {
		out[i] = ks.KindPrefix(kind)
	}
	return out
}

func notFound(kind domain.Kind, key string) error {
	return domain.ErrNotFound.WithDetailsf("%s %s", kind, key)
}
