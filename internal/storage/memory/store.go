package memory

import (
	"bytes"
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/yndnr/railstate-go/internal/config"
	"github.com/yndnr/railstate-go/internal/core/domain"
	"github.com/yndnr/railstate-go/internal/core/ttl"
	"github.com/yndnr/railstate-go/internal/storage"
	"github.com/yndnr/railstate-go/pkg/cmap"
)

// Name is the backend name reported in stats.
const Name = "memory"

// pressureCacheTTL bounds how often host memory usage is sampled.
const pressureCacheTTL = time.Second

type entry struct {
	value    []byte
	storedAt time.Time
	ttl      time.Duration
}

func (e entry) expired(now time.Time) bool {
	return ttl.Expired(e.storedAt, e.ttl, now)
}

// MemoryProbe returns the host memory usage in percent.
type MemoryProbe func() (float64, error)

// Store is the in-process fallback backend.
type Store struct {
	items   *cmap.Map[entry]
	entries atomic.Int64
	bytes   atomic.Int64

	maxEntries      int
	maxBytes        int64
	pressurePercent int
	sweepInterval   time.Duration

	now    func() time.Time
	probe  MemoryProbe
	logger *slog.Logger

	pressureMu      sync.Mutex
	pressureChecked time.Time
	pressureHigh    bool

	reclaimed atomic.Uint64

	// counted holds the prefixes registered with WithPrefixCounters.
	counted []prefixCounter

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

var _ storage.Backend = (*Store)(nil)

type prefixCounter struct {
	prefix string
	n      atomic.Int64
}

// Option configures the Store.
type Option func(*Store)

// WithClock sets the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithPrefixCounters keeps a live key count for each prefix so that
// CountPrefix never walks the map for them.
func WithPrefixCounters(prefixes ...string) Option {
	return func(s *Store) {
		s.counted = make([]prefixCounter, len(prefixes))
		for i, p := range prefixes {
			s.counted[i].prefix = p
		}
	}
}

// WithMemoryProbe replaces the host memory sampler.
func WithMemoryProbe(probe MemoryProbe) Option {
	return func(s *Store) {
		s.probe = probe
	}
}

// New creates a fallback store. Call Start to run the sweeper.
func New(cfg config.FallbackSection, opts ...Option) *Store {
	s := &Store{
		items:           cmap.New[entry](),
		maxEntries:      cfg.MaxEntries,
		maxBytes:        cfg.MaxBytes,
		pressurePercent: cfg.MemoryPressurePercent,
		sweepInterval:   cfg.SweepInterval,
		now:             time.Now,
		probe:           hostMemoryUsage,
		logger:          slog.Default(),
		done:            make(chan struct{}),
	}
	if s.sweepInterval <= 0 {
		s.sweepInterval = config.DefaultSweepInterval
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func hostMemoryUsage() (float64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

// Name implements storage.Backend.
func (s *Store) Name() string { return Name }

// Get implements storage.Backend. An expired key is removed and reported absent.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	e, ok := s.items.Get(key)
	if !ok {
		return nil, storage.ErrKeyNotFound
	}
	if e.expired(s.now()) {
		s.removeIfExpired(key)
		return nil, storage.ErrKeyNotFound
	}
	return bytes.Clone(e.value), nil
}

// Set implements storage.Backend.
func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.checkPressure(); err != nil {
		return err
	}
	var err error
	s.items.Compute(key, func(old entry, exists bool) (entry, cmap.Action) {
		if err = s.admit(old, exists, len(value)); err != nil {
			return old, cmap.Keep
		}
		return s.store(key, exists, value, ttl), cmap.Store
	})
	return err
}

// SetNX implements storage.Backend. An expired holder counts as absent.
func (s *Store) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := s.checkPressure(); err != nil {
		return false, err
	}
	now := s.now()
	var (
		set bool
		err error
	)
	s.items.Compute(key, func(old entry, exists bool) (entry, cmap.Action) {
		if exists && !old.expired(now) {
			return old, cmap.Keep
		}
		if err = s.admit(old, exists, len(value)); err != nil {
			return old, cmap.Keep
		}
		set = true
		return s.store(key, exists, value, ttl), cmap.Store
	})
	return set, err
}

// Delete implements storage.Backend.
func (s *Store) Delete(_ context.Context, key string) error {
	if e, ok := s.items.Pop(key); ok {
		s.forget(key, e)
	}
	return nil
}

// CompareAndDelete implements storage.Backend.
func (s *Store) CompareAndDelete(_ context.Context, key string, expected []byte) (bool, error) {
	now := s.now()
	deleted := false
	s.items.Compute(key, func(old entry, exists bool) (entry, cmap.Action) {
		if !exists || old.expired(now) || !bytes.Equal(old.value, expected) {
			return old, cmap.Keep
		}
		deleted = true
		s.forget(key, old)
		return old, cmap.Remove
	})
	return deleted, nil
}

// Scan implements storage.Backend. Keys are returned in sorted order and the
// cursor is the last key returned, so concurrent writes never shift a page.
func (s *Store) Scan(_ context.Context, prefix, cursor string, count int) ([]string, string, error) {
	if count <= 0 {
		return nil, "", nil
	}
	now := s.now()
	var matched []string
	s.items.Range(func(key string, e entry) bool {
		if strings.HasPrefix(key, prefix) && key > cursor && !e.expired(now) {
			matched = append(matched, key)
		}
		return true
	})
	sort.Strings(matched)

	if len(matched) <= count {
		return matched, "", nil
	}
	page := matched[:count]
	return page, page[len(page)-1], nil
}

// Count implements storage.Backend.
func (s *Store) Count(_ context.Context) (int64, error) {
	return int64(s.items.Count()), nil
}

// CountPrefix implements storage.Backend. Prefixes registered with
// WithPrefixCounters are answered from their counter, which includes
// expired keys not yet reclaimed. Any other prefix is counted by walking
// the map, stopping at limit.
func (s *Store) CountPrefix(_ context.Context, prefix string, limit int) (int64, bool, error) {
	for i := range s.counted {
		if s.counted[i].prefix == prefix {
			return s.counted[i].n.Load(), false, nil
		}
	}
	now := s.now()
	var n int64
	capped := false
	s.items.Range(func(key string, e entry) bool {
		if !strings.HasPrefix(key, prefix) || e.expired(now) {
			return true
		}
		if limit > 0 && n >= int64(limit) {
			capped = true
			return false
		}
		n++
		return true
	})
	return n, capped, nil
}

// Ping implements storage.Backend.
func (s *Store) Ping(_ context.Context) error { return nil }

// Bytes returns the total size of stored values.
func (s *Store) Bytes() int64 { return s.bytes.Load() }

// Reclaimed returns the number of expired keys removed so far.
func (s *Store) Reclaimed() uint64 { return s.reclaimed.Load() }

// admit reserves room for a write of size n against the entry and byte
// limits. It runs under the shard lock of the key being written; other
// shards write concurrently, so each limit is reserved with a CAS on its
// counter and never overshoots. On success the counters already include
// the write.
func (s *Store) admit(old entry, exists bool, n int) error {
	if !exists && !reserve(&s.entries, 1, int64(s.maxEntries)) {
		return domain.ErrFallbackExhausted.WithDetailsf("entry limit %d reached", s.maxEntries)
	}
	delta := int64(n)
	if exists {
		delta -= int64(len(old.value))
	}
	if !reserve(&s.bytes, delta, s.maxBytes) {
		if !exists {
			s.entries.Add(-1)
		}
		return domain.ErrFallbackExhausted.WithDetailsf("byte limit %d reached", s.maxBytes)
	}
	return nil
}

// reserve adds delta to c unless the result would exceed limit. A
// non-positive limit disables the check; shrinking always succeeds.
func reserve(c *atomic.Int64, delta, limit int64) bool {
	if limit <= 0 || delta <= 0 {
		c.Add(delta)
		return true
	}
	for {
		cur := c.Load()
		if cur+delta > limit {
			return false
		}
		if c.CompareAndSwap(cur, cur+delta) {
			return true
		}
	}
}

// store builds the entry for an admitted write.
func (s *Store) store(key string, exists bool, value []byte, ttl time.Duration) entry {
	if !exists {
		s.countPrefix(key, 1)
	}
	return entry{value: bytes.Clone(value), storedAt: s.now(), ttl: ttl}
}

// forget updates the counters for an entry leaving the map.
func (s *Store) forget(key string, e entry) {
	s.entries.Add(-1)
	s.bytes.Add(-int64(len(e.value)))
	s.countPrefix(key, -1)
}

func (s *Store) countPrefix(key string, delta int64) {
	for i := range s.counted {
		if strings.HasPrefix(key, s.counted[i].prefix) {
			s.counted[i].n.Add(delta)
		}
	}
}

func (s *Store) removeIfExpired(key string) {
	now := s.now()
	s.items.Compute(key, func(old entry, exists bool) (entry, cmap.Action) {
		if !exists || !old.expired(now) {
			return old, cmap.Keep
		}
		s.forget(key, old)
		s.reclaimed.Add(1)
		return old, cmap.Remove
	})
}

// checkPressure fails writes while host memory usage is above the limit.
func (s *Store) checkPressure() error {
	if s.pressurePercent <= 0 || s.probe == nil {
		return nil
	}
	s.pressureMu.Lock()
	defer s.pressureMu.Unlock()

	now := s.now()
	if s.pressureChecked.IsZero() || now.Sub(s.pressureChecked) >= pressureCacheTTL {
		used, err := s.probe()
		s.pressureChecked = now
		if err != nil {
			s.logger.Warn("memory probe failed", "error", err)
			s.pressureHigh = false
		} else {
			s.pressureHigh = used >= float64(s.pressurePercent)
		}
	}
	if s.pressureHigh {
		return domain.ErrFallbackExhausted.WithDetailsf("host memory usage above %d%%", s.pressurePercent)
	}
	return nil
}

// Sweep removes every expired key and returns how many were removed.
func (s *Store) Sweep() int {
	now := s.now()
	removed := s.items.DeleteIf(func(key string, e entry) bool {
		if !e.expired(now) {
			return false
		}
		s.forget(key, e)
		return true
	})
	s.reclaimed.Add(uint64(removed))
	return removed
}

// Start runs the sweeper until ctx is done or Close is called.
func (s *Store) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.sweepLoop(ctx)
	})
}

func (s *Store) sweepLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Debug("fallback sweep reclaimed expired keys", "count", n)
			}
		}
	}
}

// Close stops the sweeper and waits for it to exit.
func (s *Store) Close() error {
	s.stopOnce.Do(func() { close(s.done) })
	s.wg.Wait()
	return nil
}
