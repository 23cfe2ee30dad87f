package metric

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/railstate-go/internal/state"
)

// collectTimeout bounds a single scrape of the stats source.
const collectTimeout = 3 * time.Second

// StatsSource provides a stats snapshot. *state.Store satisfies it.
type StatsSource interface {
	Stats(ctx context.Context) state.Stats
}

// Collector exports a StatsSource snapshot on every scrape.
type Collector struct {
	src StatsSource

	enabled           *prometheus.Desc
	degraded          *prometheus.Desc
	poolUsed          *prometheus.Desc
	poolSize          *prometheus.Desc
	hits              *prometheus.Desc
	misses            *prometheus.Desc
	degradedOps       *prometheus.Desc
	transitions       *prometheus.Desc
	conflicts         *prometheus.Desc
	lockTimeouts      *prometheus.Desc
	fallbackRejects   *prometheus.Desc
	keys              *prometheus.Desc
	kindKeys          *prometheus.Desc
	fallbackBytes     *prometheus.Desc
	fallbackReclaimed *prometheus.Desc
}

// NewCollector creates a collector over src.
func NewCollector(src StatsSource) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &Collector{
		src:               src,
		enabled:           desc("store_enabled", "1 if the networked store serves operations."),
		degraded:          desc("store_degraded", "1 if operations run on the fallback store."),
		poolUsed:          desc("pool_connections_used", "Connections currently acquired from the pool."),
		poolSize:          desc("pool_connections_max", "Configured pool size."),
		hits:              desc("reads_hit_total", "Reads that found a record."),
		misses:            desc("reads_miss_total", "Reads that found no record."),
		degradedOps:       desc("degraded_operations_total", "Operations served by the fallback store."),
		transitions:       desc("circuit_transitions_total", "Connection manager routing flips."),
		conflicts:         desc("conflicts_total", "Updates rejected as conflicts."),
		lockTimeouts:      desc("lock_timeouts_total", "Updates that timed out waiting for a lease."),
		fallbackRejects:   desc("fallback_rejects_total", "Writes rejected by an exhausted fallback store."),
		keys:              desc("keys", "Approximate key count of the active backend.", "backend"),
		kindKeys:          desc("kind_keys", "Keys per entity kind on the active backend; a capped count is a lower bound.", "backend", "kind"),
		fallbackBytes:     desc("fallback_bytes", "Bytes held by the fallback store."),
		fallbackReclaimed: desc("fallback_reclaimed_total", "Expired entries reclaimed by the fallback store."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.enabled, c.degraded, c.poolUsed, c.poolSize,
		c.hits, c.misses, c.degradedOps, c.transitions,
		c.conflicts, c.lockTimeouts, c.fallbackRejects,
		c.keys, c.kindKeys, c.fallbackBytes, c.fallbackReclaimed,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), collectTimeout)
	defer cancel()
	st := c.src.Stats(ctx)

	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}
	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}

	gauge(c.enabled, boolValue(st.Enabled))
	gauge(c.degraded, boolValue(st.Degraded))
	gauge(c.poolUsed, float64(st.PoolUsed))
	gauge(c.poolSize, float64(st.PoolSize))
	counter(c.hits, st.Hits)
	counter(c.misses, st.Misses)
	counter(c.degradedOps, st.DegradedOps)
	counter(c.transitions, st.Transitions)
	counter(c.conflicts, st.Conflicts)
	counter(c.lockTimeouts, st.LockTimeouts)
	counter(c.fallbackRejects, st.FallbackRejects)
	if st.Keys >= 0 && st.Backend != "" {
		gauge(c.keys, float64(st.Keys), st.Backend)
	}
	for kind, n := range st.Kinds {
		gauge(c.kindKeys, float64(n.Keys), st.Backend, string(kind))
	}
	gauge(c.fallbackBytes, float64(st.FallbackBytes))
	counter(c.fallbackReclaimed, st.FallbackReclaimed)
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
