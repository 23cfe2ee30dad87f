package state

import (
	"context"
	"time"

	"github.com/yndnr/railstate-go/internal/core/domain"
	"github.com/yndnr/railstate-go/internal/storage"
)

// statsTimeout bounds the key counts issued by Stats.
const statsTimeout = 2 * time.Second

// KindCountLimit caps the per-kind key count; counting stops there.
const KindCountLimit = 10000

// Health is the summary reported by Health.
type Health struct {
	// Enabled reports whether the networked store serves operations.
	Enabled bool `json:"enabled"`
	// Degraded reports whether operations run on the fallback store
	// because the networked store is unhealthy.
	Degraded bool `json:"degraded"`
	PoolUsed int  `json:"pool_used"`
	PoolSize int  `json:"pool_size"`
}

// Stats is a snapshot of the store counters.
type Stats struct {
	Health

	// Backend names the store currently serving operations.
	Backend string `json:"backend"`

	Hits            uint64 `json:"hits"`
	Misses          uint64 `json:"misses"`
	DegradedOps     uint64 `json:"degraded_ops"`
	Transitions     uint64 `json:"transitions"`
	Conflicts       uint64 `json:"conflicts"`
	LockTimeouts    uint64 `json:"lock_timeouts"`
	FallbackRejects uint64 `json:"fallback_rejects"`

	// Keys is the approximate key count of Backend, or -1 if it could not
	// be read.
	Keys int64 `json:"keys"`

	// Kinds holds the approximate key count of each record kind on
	// Backend. A kind is missing when its count could not be read.
	Kinds map[domain.Kind]KindCount `json:"kinds,omitempty"`

	FallbackBytes     int64  `json:"fallback_bytes"`
	FallbackReclaimed uint64 `json:"fallback_reclaimed"`
}

// KindCount is the key count of one record kind.
type KindCount struct {
	Keys int64 `json:"keys"`
	// Capped reports that counting stopped at KindCountLimit or at the
	// backend's scan bound, so Keys is a lower bound.
	Capped bool `json:"capped,omitempty"`
}

// Health reports the routing state and pool utilisation.
func (s *Store) Health() Health {
	var h Health
	if s.manager != nil {
		h.Enabled = s.manager.Enabled()
		h.Degraded = !h.Enabled
		h.PoolUsed, h.PoolSize = s.manager.PoolStats()
	}
	return h
}

// Stats returns the current counters. It never reroutes and never counts
// as an operation.
func (s *Store) Stats(ctx context.Context) Stats {
	st := Stats{
		Health:          s.Health(),
		Hits:            s.counters.hits.Load(),
		Misses:          s.counters.misses.Load(),
		DegradedOps:     s.counters.degraded.Load(),
		Conflicts:       s.counters.conflicts.Load(),
		LockTimeouts:    s.counters.lockTimeouts.Load(),
		FallbackRejects: s.counters.fallbackRejects.Load(),
		Keys:            -1,
	}
	if s.manager != nil {
		st.Transitions = s.manager.Transitions()
	}
	if s.fallback != nil {
		st.FallbackBytes = s.fallback.Bytes()
		st.FallbackReclaimed = s.fallback.Reclaimed()
	}

	b := s.active()
	if b == nil {
		return st
	}
	st.Backend = b.Name()
	ctx, cancel := context.WithTimeout(ctx, statsTimeout)
	defer cancel()
	if n, err := b.Count(ctx); err == nil {
		st.Keys = n
	} else {
		s.logger.Debug("key count unavailable", "backend", b.Name(), "error", err)
		return st
	}
	st.Kinds = make(map[domain.Kind]KindCount, len(domain.Kinds))
	for _, kind := range domain.Kinds {
		n, capped, err := b.CountPrefix(ctx, s.ks.KindPrefix(kind), KindCountLimit)
		if err != nil {
			s.logger.Debug("kind count unavailable", "backend", b.Name(), "kind", kind, "error", err)
			continue
		}
		st.Kinds[kind] = KindCount{Keys: n, Capped: capped}
	}
	return st
}

// active returns the backend the next operation would use.
func (s *Store) active() storage.Backend {
	if s.manager != nil {
		if r := s.manager.Route(); r.Backend != nil {
			return r.Backend
		}
	}
	if s.fallback != nil {
		return s.fallback
	}
	return nil
}

// Ping checks the backend that serves operations. It is meant for health
// endpoints: it never reroutes, never counts as an operation and only
// touches the circuit through a regular health check.
func (s *Store) Ping(ctx context.Context) error {
	if s.manager != nil && s.manager.Enabled() {
		err := s.manager.Probe(ctx)
		if err == nil || s.fallback == nil {
			return err
		}
		s.logger.Debug("backing store health check failed, fallback store will serve", "error", err)
	}
	if s.fallback == nil {
		return domain.ErrConnTransient.WithDetails("backing store disabled and no fallback store configured")
	}
	return s.fallback.Ping(ctx)
}

// Probe checks the networked store directly, bypassing routing. A
// successful probe re-enables a degraded store.
func (s *Store) Probe(ctx context.Context) error {
	if s.manager == nil {
		return domain.ErrConnConfig.WithDetails("backing store disabled")
	}
	return s.manager.Probe(ctx)
}
