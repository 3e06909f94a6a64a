package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/scholargate/scholargate/internal/breaker"
	"github.com/scholargate/scholargate/internal/config"
	"github.com/scholargate/scholargate/internal/fetcher"
	"github.com/scholargate/scholargate/internal/observability"
	"github.com/scholargate/scholargate/internal/ratelimit"
	"github.com/scholargate/scholargate/internal/source"
	"github.com/scholargate/scholargate/internal/store"
	"github.com/scholargate/scholargate/internal/types"
	"github.com/scholargate/scholargate/internal/validator"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

const highQualityPage = `<html><head><title>Merit Scholarship 2026</title>
<meta name="viewport" content="width=device-width">
<script type="application/ld+json">{}</script></head>
<body>
<nav>menu</nav>
<h1>Merit Scholarship</h1>
<p>Apply now for this scholarship and fellowship grant. Submit your application form before the deadline.
Contact us at help@example.edu for eligibility criteria. Register for this academic award today.</p>
<form action="/apply"><input type="submit" value="Apply Now"></form>
<img src="a.png" alt="logo">
</body></html>`

type stubFetcher struct {
	body []byte
}

func (s *stubFetcher) Get(_ context.Context, rawURL string) (*fetcher.Result, error) {
	return &fetcher.Result{URL: rawURL, StatusCode: 200, Body: s.body, Duration: 10 * time.Millisecond}, nil
}
func (s *stubFetcher) Head(ctx context.Context, rawURL string) (*fetcher.Result, error) {
	return s.Get(ctx, rawURL)
}
func (s *stubFetcher) Close() error { return nil }

type fakeAdapter struct {
	id         string
	baseURL    string
	candidates []*types.CandidateRecord
	err        error
	calls      atomic.Int64
}

func (f *fakeAdapter) Identifier() string { return f.id }
func (f *fakeAdapter) BaseURL() string    { return f.baseURL }
func (f *fakeAdapter) Fetch(_ context.Context) ([]*types.CandidateRecord, error) {
	f.calls.Add(1)
	return f.candidates, f.err
}

func testLimiter() *ratelimit.Limiter {
	return ratelimit.New(config.RateLimitConfig{
		GlobalFloor: time.Millisecond,
		Default:     config.RateLimitBucketSpec{MinSpacing: time.Millisecond, Concurrency: 4},
	})
}

func testCfg() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Orchestrator.GlobalConcurrency = 2
	cfg.Orchestrator.JobTimeout = 5 * time.Second
	cfg.Orchestrator.JobHistorySize = 5
	return cfg
}

func buildOrchestrator(t *testing.T, adapter source.Adapter, src *types.Source, body []byte) (*Orchestrator, store.Store) {
	t.Helper()
	cfg := testCfg()
	reg := source.NewRegistry()
	reg.Register(adapter)

	breakers := breaker.NewRegistry(cfg.Breaker.FailureThreshold, cfg.Breaker.Cooldown, nil)
	v := validator.New(&stubFetcher{body: body}, testLimiter(), cfg.Validator, testLogger)
	st := store.NewMemoryStore()

	o := New(cfg, []*types.Source{src}, reg, breakers, v, st, observability.NewMetrics(testLogger), testLogger)
	return o, st
}

func TestRunSourceAdmitsHighQualityCandidate(t *testing.T) {
	src := &types.Source{ID: "src-1", Enabled: true, BaseURL: "https://example.edu"}
	adapter := &fakeAdapter{id: "src-1", baseURL: src.BaseURL, candidates: []*types.CandidateRecord{
		{SourceID: "src-1", Title: "Merit Scholarship 2026", Provider: "State Govt", ApplicationURL: "https://example.edu/apply"},
	}}
	o, st := buildOrchestrator(t, adapter, src, []byte(highQualityPage))

	job, err := o.RunSource(context.Background(), "src-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Outcome != types.OutcomeSuccess {
		t.Errorf("expected success outcome, got %v (first error %q)", job.Outcome, job.FirstError)
	}
	if job.Admitted != 1 {
		t.Errorf("expected 1 admitted candidate, got %d", job.Admitted)
	}

	active, _ := st.FindActive(context.Background())
	if len(active) != 1 {
		t.Errorf("expected 1 active stored record, got %d", len(active))
	}

	status := o.Status()
	if status.TotalAdmitted != 1 {
		t.Errorf("expected status.TotalAdmitted == 1, got %d", status.TotalAdmitted)
	}
}

func TestRunSourceSkippedWhenDisabled(t *testing.T) {
	src := &types.Source{ID: "src-2", Enabled: false, BaseURL: "https://example.edu"}
	adapter := &fakeAdapter{id: "src-2", baseURL: src.BaseURL}
	o, _ := buildOrchestrator(t, adapter, src, []byte(highQualityPage))

	job, err := o.RunSource(context.Background(), "src-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Outcome != types.OutcomeSkippedDisabled {
		t.Errorf("expected skipped-disabled outcome, got %v", job.Outcome)
	}
	if adapter.calls.Load() != 0 {
		t.Error("expected adapter to never be invoked for a disabled source")
	}
}

func TestRunSourceSkippedWhenBreakerOpen(t *testing.T) {
	src := &types.Source{ID: "src-3", Enabled: true, BaseURL: "https://example.edu"}
	adapter := &fakeAdapter{id: "src-3", baseURL: src.BaseURL, err: errors.New("upstream unreachable")}
	o, _ := buildOrchestrator(t, adapter, src, []byte(highQualityPage))

	ctx := context.Background()
	for i := 0; i < o.cfg.Breaker.FailureThreshold; i++ {
		o.RunSource(ctx, "src-3")
	}

	job, err := o.RunSource(ctx, "src-3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Outcome != types.OutcomeSkippedOpenBreaker {
		t.Errorf("expected skipped-open-breaker outcome after %d failures, got %v", o.cfg.Breaker.FailureThreshold, job.Outcome)
	}
}

func TestRunSourceCountsThreeEmptyRunsAsOneBreakerFailure(t *testing.T) {
	src := &types.Source{ID: "src-5", Enabled: true, BaseURL: "https://example.edu"}
	adapter := &fakeAdapter{id: "src-5", baseURL: src.BaseURL} // no candidates, no error
	o, _ := buildOrchestrator(t, adapter, src, []byte(highQualityPage))

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		job, err := o.RunSource(ctx, "src-5")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if job.Outcome != types.OutcomeSuccess {
			t.Errorf("run %d: expected success outcome for an empty-but-error-free fetch, got %v", i, job.Outcome)
		}
	}

	snapshot := o.breakers.Snapshot("src-5")
	if snapshot.State != "closed" {
		t.Errorf("expected breaker still closed after 2 empty runs, got %v", snapshot.State)
	}

	if _, err := o.RunSource(ctx, "src-5"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snapshot = o.breakers.Snapshot("src-5")
	if snapshot.ConsecutiveFails != 1 {
		t.Errorf("expected 3 consecutive empty runs to count as exactly 1 breaker failure, got %d", snapshot.ConsecutiveFails)
	}
}

func TestRunAllNowRejectsConcurrentInvocation(t *testing.T) {
	src := &types.Source{ID: "src-4", Enabled: true, BaseURL: "https://example.edu"}
	release := make(chan struct{})
	adapter := &blockingAdapter{id: "src-4", baseURL: src.BaseURL, release: release}
	o, _ := buildOrchestrator(t, adapter, src, []byte(highQualityPage))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		o.RunAllNow(context.Background())
	}()

	// Give the first RunAllNow time to set the in-flight flag and block
	// inside the adapter's Fetch.
	time.Sleep(30 * time.Millisecond)

	_, err := o.RunAllNow(context.Background())
	if err == nil {
		t.Error("expected the second concurrent RunAllNow to be rejected")
	}

	close(release)
	wg.Wait()
}

type panickingAdapter struct {
	id      string
	baseURL string
}

func (a *panickingAdapter) Identifier() string { return a.id }
func (a *panickingAdapter) BaseURL() string    { return a.baseURL }
func (a *panickingAdapter) Fetch(_ context.Context) ([]*types.CandidateRecord, error) {
	panic("adapter exploded")
}

func TestRunSourceRecoversFromAdapterPanic(t *testing.T) {
	src := &types.Source{ID: "src-6", Enabled: true, BaseURL: "https://example.edu"}
	adapter := &panickingAdapter{id: "src-6", baseURL: src.BaseURL}
	o, _ := buildOrchestrator(t, adapter, src, []byte(highQualityPage))

	job, err := o.RunSource(context.Background(), "src-6")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Outcome != types.OutcomeFailed {
		t.Errorf("expected a panicking adapter to yield a failed outcome, got %v", job.Outcome)
	}
	if job.FirstError == "" {
		t.Error("expected the panic message to be recorded as the job's error")
	}
}

type blockingAdapter struct {
	id      string
	baseURL string
	release chan struct{}
}

func (a *blockingAdapter) Identifier() string { return a.id }
func (a *blockingAdapter) BaseURL() string    { return a.baseURL }
func (a *blockingAdapter) Fetch(ctx context.Context) ([]*types.CandidateRecord, error) {
	select {
	case <-a.release:
	case <-ctx.Done():
	}
	return nil, nil
}
