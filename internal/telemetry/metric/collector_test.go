package metric

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yndnr/railstate-go/internal/config"
	"github.com/yndnr/railstate-go/internal/core/domain"
	"github.com/yndnr/railstate-go/internal/state"
)

type staticStats state.Stats

func (s staticStats) Stats(context.Context) state.Stats { return state.Stats(s) }

func TestCollector(t *testing.T) {
	src := staticStats{
		Health:      state.Health{Enabled: true, PoolUsed: 3, PoolSize: 50},
		Backend:     "remote",
		Hits:        7,
		Misses:      2,
		Transitions: 1,
		Keys:        42,
	}
	c := NewCollector(src)

	expected := `
# HELP railstate_keys Approximate key count of the active backend.
# TYPE railstate_keys gauge
railstate_keys{backend="remote"} 42
# HELP railstate_pool_connections_used Connections currently acquired from the pool.
# TYPE railstate_pool_connections_used gauge
railstate_pool_connections_used 3
# HELP railstate_reads_hit_total Reads that found a record.
# TYPE railstate_reads_hit_total counter
railstate_reads_hit_total 7
# HELP railstate_store_degraded 1 if operations run on the fallback store.
# TYPE railstate_store_degraded gauge
railstate_store_degraded 0
# HELP railstate_store_enabled 1 if the networked store serves operations.
# TYPE railstate_store_enabled gauge
railstate_store_enabled 1
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"railstate_keys",
		"railstate_pool_connections_used",
		"railstate_reads_hit_total",
		"railstate_store_degraded",
		"railstate_store_enabled",
	)
	if err != nil {
		t.Fatalf("CollectAndCompare: %v", err)
	}

	if got := testutil.CollectAndCount(c); got != 14 {
		t.Fatalf("metric count = %d, want 14", got)
	}
}

func TestCollectorUnknownKeys(t *testing.T) {
	c := NewCollector(staticStats{Keys: -1, Health: state.Health{Degraded: true}})

	if got := testutil.CollectAndCount(c, "railstate_keys"); got != 0 {
		t.Fatalf("railstate_keys count = %d, want 0", got)
	}
	if got := testutil.CollectAndCount(c, "railstate_store_degraded"); got != 1 {
		t.Fatalf("railstate_store_degraded count = %d, want 1", got)
	}
}

func TestCollectorKindKeys(t *testing.T) {
	c := NewCollector(staticStats{
		Backend: "memory",
		Keys:    5,
		Kinds: map[domain.Kind]state.KindCount{
			domain.KindWorkflow: {Keys: 2},
			domain.KindTest:     {Keys: 3},
		},
	})

	expected := `
# HELP railstate_kind_keys Keys per entity kind on the active backend; a capped count is a lower bound.
# TYPE railstate_kind_keys gauge
railstate_kind_keys{backend="memory",kind="test"} 3
railstate_kind_keys{backend="memory",kind="workflow"} 2
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected), "railstate_kind_keys"); err != nil {
		t.Fatalf("CollectAndCompare: %v", err)
	}
	if got := testutil.CollectAndCount(c); got != 16 {
		t.Fatalf("metric count = %d, want 16", got)
	}
}

func TestRegistryOverStore(t *testing.T) {
	r := NewRegistry()
	cfg := config.Default()
	cfg.Store.Enabled = false
	cfg.Fallback.MemoryPressurePercent = 0

	st, err := state.New(cfg, state.WithObserver(r))
	if err != nil {
		t.Fatalf("state.New: %v", err)
	}
	defer st.Close()
	r.MustRegister(NewCollector(st))

	ctx := context.Background()
	w := domain.NewWorkflowState("ABC-000001", "login page", "red")
	if err := st.Save(ctx, w); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := st.GetWorkflow(ctx, "ABC-000002"); err == nil {
		t.Fatal("GetWorkflow(missing) error = nil, want not found")
	}

	if got := testutil.ToFloat64(r.OpsTotal.WithLabelValues("save", "memory", ResultOK)); got != 1 {
		t.Fatalf("save ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.OpsTotal.WithLabelValues("get", "memory", "RS-STOR-4040")); got != 1 {
		t.Fatalf("get not found = %v, want 1", got)
	}

	n, err := testutil.GatherAndCount(r.Gatherer(), "railstate_keys", "railstate_reads_miss_total")
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}
	if n != 2 {
		t.Fatalf("gathered %d series, want 2", n)
	}
}
