package source

import (
	"context"
	"testing"
	"time"

	"github.com/scholargate/scholargate/internal/config"
	"github.com/scholargate/scholargate/internal/fetcher"
	"github.com/scholargate/scholargate/internal/ratelimit"
)

type stubFetcher struct {
	body []byte
}

func (s *stubFetcher) Get(_ context.Context, rawURL string) (*fetcher.Result, error) {
	return &fetcher.Result{URL: rawURL, StatusCode: 200, Body: s.body}, nil
}
func (s *stubFetcher) Head(ctx context.Context, rawURL string) (*fetcher.Result, error) {
	return s.Get(ctx, rawURL)
}
func (s *stubFetcher) Close() error { return nil }

func testLimiter() *ratelimit.Limiter {
	return ratelimit.New(config.RateLimitConfig{
		GlobalFloor: time.Millisecond,
		Default:     config.RateLimitBucketSpec{MinSpacing: time.Millisecond, Concurrency: 2},
	})
}

const listingHTML = `<html><body>
<div class="entry">
  <h3 class="title">Merit Scholarship</h3>
  <span class="provider">State Govt</span>
  <a class="link" href="/apply/1">Apply</a>
  <span class="deadline">2099-01-01</span>
  <span class="amount">10000</span>
</div>
<div class="entry">
  <h3 class="title">Need-based Grant</h3>
  <span class="provider">Trust Co</span>
  <a class="link" href="/apply/2">Apply</a>
  <span class="deadline">2099-02-01</span>
  <span class="amount">5000</span>
</div>
</body></html>`

func TestListingAdapterExtractsEntries(t *testing.T) {
	a := NewListingAdapter("listing-1", "https://example.edu", "https://example.edu/scholarships",
		ListingSelectors{Entry: ".entry", Title: ".title", Provider: ".provider", URL: ".link", Deadline: ".deadline", Amount: ".amount"},
		&stubFetcher{body: []byte(listingHTML)}, testLimiter())

	candidates, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}
	if candidates[0].Title != "Merit Scholarship" || candidates[0].ApplicationURL != "/apply/1" {
		t.Errorf("unexpected first candidate: %+v", candidates[0])
	}
}

func TestListingAdapterSkipsEmptyTitleEntries(t *testing.T) {
	html := `<html><body><div class="entry"><h3 class="title"></h3></div></body></html>`
	a := NewListingAdapter("listing-2", "https://example.edu", "https://example.edu/scholarships",
		ListingSelectors{Entry: ".entry", Title: ".title"},
		&stubFetcher{body: []byte(html)}, testLimiter())

	candidates, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candidates) != 0 {
		t.Errorf("expected no candidates for entries with an empty title, got %d", len(candidates))
	}
}

const feedJSON = `[
  {"title": "Research Fellowship", "provider": "National Lab", "applicationUrl": "https://lab.example/apply"},
  {"title": "", "provider": "Should Be Skipped"}
]`

func TestFeedAdapterExtractsEntries(t *testing.T) {
	a := NewFeedAdapter("feed-1", "https://lab.example", "https://lab.example/feed.json",
		&stubFetcher{body: []byte(feedJSON)}, testLimiter())

	candidates, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate (entry with empty title skipped), got %d", len(candidates))
	}
	if candidates[0].Title != "Research Fellowship" {
		t.Errorf("unexpected candidate: %+v", candidates[0])
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	a := NewFeedAdapter("feed-2", "https://x.example", "https://x.example/feed.json", &stubFetcher{}, testLimiter())
	r.Register(a)

	got, err := r.Get("feed-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Identifier() != "feed-2" {
		t.Errorf("expected feed-2, got %s", got.Identifier())
	}

	if _, err := r.Get("missing"); err == nil {
		t.Error("expected error for unregistered source id")
	}
}
