package source

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/scholargate/scholargate/internal/fetcher"
	"github.com/scholargate/scholargate/internal/ratelimit"
	"github.com/scholargate/scholargate/internal/types"
)

// feedEntry is the expected shape of one element in a JSON-feed
// source's array response.
type feedEntry struct {
	Title          string `json:"title"`
	Provider       string `json:"provider"`
	ApplicationURL string `json:"applicationUrl"`
	Description    string `json:"description"`
	Eligibility    string `json:"eligibility"`
	Deadline       string `json:"deadline"`
	Amount         string `json:"amount"`
	Category       string `json:"category"`
	Audience       string `json:"audience"`
	EducationLevel string `json:"educationLevel"`
}

// FeedAdapter pulls candidates from a source that exposes a JSON array
// of scholarship entries directly, skipping HTML parsing entirely —
// a second illustrative shape alongside ListingAdapter's DOM-scraping
// shape, so the Adapter interface is exercised against more than one
// kind of upstream.
type FeedAdapter struct {
	id      string
	baseURL string
	feedURL string
	fetcher fetcher.Fetcher
	limiter *ratelimit.Limiter
}

// NewFeedAdapter builds a FeedAdapter.
func NewFeedAdapter(id, baseURL, feedURL string, f fetcher.Fetcher, limiter *ratelimit.Limiter) *FeedAdapter {
	return &FeedAdapter{id: id, baseURL: baseURL, feedURL: feedURL, fetcher: f, limiter: limiter}
}

func (a *FeedAdapter) Identifier() string { return a.id }
func (a *FeedAdapter) BaseURL() string    { return a.baseURL }

func (a *FeedAdapter) Fetch(ctx context.Context) ([]*types.CandidateRecord, error) {
	domain := hostOf(a.feedURL)
	release, err := a.limiter.Acquire(ctx, domain)
	if err != nil {
		return nil, err
	}
	defer release()

	res, err := a.fetcher.Get(ctx, a.feedURL)
	if err != nil {
		return nil, err
	}

	var entries []feedEntry
	if err := json.Unmarshal(res.Body, &entries); err != nil {
		return nil, fmt.Errorf("decode feed from %s: %w", a.feedURL, err)
	}

	candidates := make([]*types.CandidateRecord, 0, len(entries))
	for _, e := range entries {
		if e.Title == "" || e.ApplicationURL == "" {
			continue
		}
		candidates = append(candidates, &types.CandidateRecord{
			SourceID:       a.id,
			Title:          e.Title,
			Provider:       e.Provider,
			ApplicationURL: e.ApplicationURL,
			SourceURL:      a.feedURL,
			Description:    e.Description,
			Eligibility:    e.Eligibility,
			DeadlineRaw:    e.Deadline,
			AmountRaw:      e.Amount,
			Category:       e.Category,
			Audience:       e.Audience,
			EducationLevel: e.EducationLevel,
			DiscoveredAt:   time.Now(),
		})
	}
	return candidates, nil
}
