package state

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yndnr/railstate-go/internal/config"
	"github.com/yndnr/railstate-go/internal/core/domain"
	"github.com/yndnr/railstate-go/internal/storage/memory"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now().UTC()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// flakyPrimary stands in for the networked store. While down every call
// fails with a transient connectivity error.
type flakyPrimary struct {
	*memory.Store
	down  atomic.Bool
	calls atomic.Int64
}

func newFlakyPrimary(clock *testClock) *flakyPrimary {
	return &flakyPrimary{Store: memory.New(config.FallbackSection{}, memory.WithClock(clock.Now))}
}

func (p *flakyPrimary) fail() error {
	p.calls.Add(1)
	if p.down.Load() {
		return domain.ErrConnTransient.WithDetails("connection refused")
	}
	return nil
}

func (p *flakyPrimary) Name() string { return "remote" }

func (p *flakyPrimary) Get(ctx context.Context, key string) ([]byte, error) {
	if err := p.fail(); err != nil {
		return nil, err
	}
	return p.Store.Get(ctx, key)
}

func (p *flakyPrimary) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := p.fail(); err != nil {
		return err
	}
	return p.Store.Set(ctx, key, value, ttl)
}

func (p *flakyPrimary) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := p.fail(); err != nil {
		return false, err
	}
	return p.Store.SetNX(ctx, key, value, ttl)
}

func (p *flakyPrimary) Delete(ctx context.Context, key string) error {
	if err := p.fail(); err != nil {
		return err
	}
	return p.Store.Delete(ctx, key)
}

func (p *flakyPrimary) CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error) {
	if err := p.fail(); err != nil {
		return false, err
	}
	return p.Store.CompareAndDelete(ctx, key, expected)
}

func (p *flakyPrimary) Scan(ctx context.Context, prefix, cursor string, count int) ([]string, string, error) {
	if err := p.fail(); err != nil {
		return nil, "", err
	}
	return p.Store.Scan(ctx, prefix, cursor, count)
}

func (p *flakyPrimary) Count(ctx context.Context) (int64, error) {
	if err := p.fail(); err != nil {
		return 0, err
	}
	return p.Store.Count(ctx)
}

func (p *flakyPrimary) CountPrefix(ctx context.Context, prefix string, limit int) (int64, bool, error) {
	if err := p.fail(); err != nil {
		return 0, false, err
	}
	return p.Store.CountPrefix(ctx, prefix, limit)
}

func (p *flakyPrimary) Ping(context.Context) error { return p.fail() }

func (p *flakyPrimary) Probe(context.Context) error { return p.fail() }

func (p *flakyPrimary) PoolStats() (int, int) { return 0, 4 }

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Store.Enabled = false
	cfg.Store.FailureThreshold = 2
	cfg.Store.RetryAttempts = 1
	cfg.Store.ReconnectMin = time.Millisecond
	cfg.Store.ReconnectMax = 5 * time.Millisecond
	cfg.Store.ConnectTimeout = time.Second
	cfg.Store.SocketTimeout = time.Second
	cfg.Store.AcquireTimeout = time.Second
	cfg.Lock.Wait = 2 * time.Second
	cfg.Lock.RetryInterval = time.Millisecond
	cfg.Fallback.MemoryPressurePercent = 0
	return cfg
}

func newMemoryStore(t *testing.T, clock *testClock) *Store {
	t.Helper()
	s, err := New(testConfig(), WithClock(clock.Now))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newFailoverStore(t *testing.T, clock *testClock, cfg *config.Config) (*Store, *flakyPrimary) {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	cfg.Store.Enabled = true
	p := newFlakyPrimary(clock)
	s, err := New(cfg, WithClock(clock.Now), WithPrimary(p))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, p
}

func newWorkflow(clock *testClock, id string) *domain.WorkflowState {
	now := clock.Now()
	return &domain.WorkflowState{
		WorkflowID:         id,
		Status:             domain.WorkflowPending,
		FeatureDescription: "add login throttling",
		CurrentStage:       "test_generation",
		Metadata: domain.Metadata{
			"attempt":  domain.NumberValue(1),
			"reviewed": domain.BoolValue(false),
			"files":    domain.ListValue("auth.go", "auth_test.go"),
			"model":    domain.StringValue("default"),
		},
		CreatedAt:   now,
		LastUpdated: now,
		TTLHours:    24,
	}
}

func newApproval(clock *testClock, workflowID, id string) *domain.ApprovalRequest {
	now := clock.Now()
	return &domain.ApprovalRequest{
		ApprovalID:  id,
		WorkflowID:  workflowID,
		RequestType: domain.RequestCode,
		Content:     "diff --git a/auth.go b/auth.go",
		Requester:   "tdd-agent",
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Hour),
		Status:      domain.ApprovalPending,
	}
}

func newTestResults(clock *testClock, workflowID, id string) *domain.TestResults {
	cov := 87.5
	return &domain.TestResults{
		TestID:          id,
		WorkflowID:      workflowID,
		TestSuite:       "unit",
		Passed:          10,
		Failed:          1,
		Skipped:         2,
		DurationSeconds: 1.25,
		FailureDetails:  []domain.FailureDetail{{TestName: "TestLogin", Message: "want 429", File: "auth_test.go", Line: 42}},
		CoveragePercent: &cov,
		ExecutedAt:      clock.Now(),
	}
}
