package remote

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"github.com/yndnr/railstate-go/internal/config"
	"github.com/yndnr/railstate-go/internal/core/domain"
	"github.com/yndnr/railstate-go/internal/storage"
)

// Mode tags the route chosen for an operation.
type Mode int

const (
	// ModeConnected routes to the networked store.
	ModeConnected Mode = iota
	// ModeDegraded routes to the fallback store.
	ModeDegraded
)

func (m Mode) String() string {
	if m == ModeConnected {
		return "connected"
	}
	return "degraded"
}

// Route is the backend an operation should use. Backend is nil when Mode
// is ModeDegraded; the caller owns the fallback store.
type Route struct {
	Mode    Mode
	Backend storage.Backend
}

// Primary is the networked backend placed under the circuit breaker.
type Primary interface {
	storage.Backend
	Probe(ctx context.Context) error
	PoolStats() (used, size int)
}

// degradedLogInterval bounds how often degraded-mode warnings are logged.
const degradedLogInterval = 30 * time.Second

// Manager routes operations to the networked store while it is healthy
// and to the fallback store while it is not.
//
//	enabled --(failure_threshold consecutive failures)--> disabled
//	disabled --(one successful probe)--> enabled
//
// While enabled the store is probed every health_interval. While disabled
// it is probed on exponential backoff between reconnect_min and
// reconnect_max.
type Manager struct {
	primary   Primary
	enabled   atomic.Bool
	failures  atomic.Int64
	flips     atomic.Uint64
	threshold int64

	interval     time.Duration
	probeTimeout time.Duration
	reconnectMin time.Duration
	reconnectMax time.Duration

	logger   *slog.Logger
	degraded rate.Sometimes

	wake      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a manager for primary. The circuit starts closed
// (enabled); call Start to run the health loop.
func NewManager(cfg config.StoreSection, primary Primary, opts ...ManagerOption) *Manager {
	m := &Manager{
		primary:      primary,
		threshold:    int64(cfg.FailureThreshold),
		interval:     cfg.HealthInterval,
		probeTimeout: cfg.ConnectTimeout + cfg.SocketTimeout,
		reconnectMin: cfg.ReconnectMin,
		reconnectMax: cfg.ReconnectMax,
		logger:       slog.Default(),
		degraded:     rate.Sometimes{Interval: degradedLogInterval},
		wake:         make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
	if m.threshold < 1 {
		m.threshold = 1
	}
	if m.interval <= 0 {
		m.interval = config.DefaultHealthInterval
	}
	if m.probeTimeout <= 0 {
		m.probeTimeout = config.DefaultConnectTimeout
	}
	for _, opt := range opts {
		opt(m)
	}
	m.enabled.Store(true)
	return m
}

// Route returns the tagged route for the next operation.
func (m *Manager) Route() Route {
	if m.enabled.Load() {
		return Route{Mode: ModeConnected, Backend: m.primary}
	}
	return Route{Mode: ModeDegraded}
}

// Enabled reports whether the networked store is in use.
func (m *Manager) Enabled() bool { return m.enabled.Load() }

// Transitions returns the number of enable/disable flips so far.
func (m *Manager) Transitions() uint64 { return m.flips.Load() }

// PoolStats returns the networked store pool utilisation.
func (m *Manager) PoolStats() (used, size int) { return m.primary.PoolStats() }

// ReportFailure records a failed networked operation. Only connectivity
// faults count toward the threshold.
func (m *Manager) ReportFailure(err error) {
	if !domain.IsConnectivity(err) {
		return
	}
	n := m.failures.Add(1)
	if n < m.threshold || !m.enabled.CompareAndSwap(true, false) {
		return
	}
	m.flips.Add(1)
	m.logger.Warn("backing store disabled, routing to fallback store",
		"consecutive_failures", n,
		"error", err,
	)
	m.notify()
}

// ReportSuccess records a successful networked operation. It resets the
// failure count of a closed circuit but never reopens a disabled one: an
// operation routed before the circuit opened may finish after it, and
// only a health check may re-enable the store.
func (m *Manager) ReportSuccess() {
	if m.enabled.Load() {
		m.failures.Store(0)
	}
}

// enable closes the circuit after a successful health check.
func (m *Manager) enable() {
	m.failures.Store(0)
	if !m.enabled.CompareAndSwap(false, true) {
		return
	}
	m.flips.Add(1)
	m.logger.Info("backing store enabled")
	m.notify()
}

// WarnDegraded logs that op ran on the fallback store, at most once per
// degradedLogInterval.
func (m *Manager) WarnDegraded(op string, err error) {
	m.degraded.Do(func() {
		m.logger.Warn("operation served by fallback store", "op", op, "error", err)
	})
}

// Probe runs one health probe and applies its result to the circuit.
func (m *Manager) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	err := m.primary.Probe(ctx)
	if err != nil {
		m.ReportFailure(err)
		return err
	}
	m.enable()
	return nil
}

func (m *Manager) notify() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Start runs the health loop until ctx is done or Close is called.
func (m *Manager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		m.wg.Add(1)
		go m.run(ctx)
	})
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()

	b := backoff.NewExponentialBackOff()
	if m.reconnectMin > 0 {
		b.InitialInterval = m.reconnectMin
	}
	if m.reconnectMax > 0 {
		b.MaxInterval = m.reconnectMax
	}

	timer := time.NewTimer(m.nextDelay(b))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case <-m.wake:
			b.Reset()
		case <-timer.C:
			if err := m.Probe(ctx); err != nil {
				m.logger.Debug("backing store probe failed", "error", err)
			}
		}
		timer.Reset(m.nextDelay(b))
	}
}

func (m *Manager) nextDelay(b *backoff.ExponentialBackOff) time.Duration {
	if m.enabled.Load() {
		b.Reset()
		return m.interval
	}
	d := b.NextBackOff()
	if d == backoff.Stop || d <= 0 {
		d = b.MaxInterval
	}
	return d
}

// Close stops the health loop and waits for it to exit.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.done) })
	m.wg.Wait()
}
