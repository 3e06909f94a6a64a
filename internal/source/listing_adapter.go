package source

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/scholargate/scholargate/internal/fetcher"
	"github.com/scholargate/scholargate/internal/ratelimit"
	"github.com/scholargate/scholargate/internal/types"
)

// ListingAdapter scrapes a single HTML listing page whose scholarship
// entries share a common CSS structure: one container selector per
// entry, with title/provider/url/deadline/amount sub-selectors. It is
// a generic, reusable shape for sites that render scholarships as
// repeated DOM blocks, grounded on the teacher's CSSParser extraction
// idiom (doc.Find(selector).Each(...)).
type ListingAdapter struct {
	id        string
	baseURL   string
	listingURL string
	selectors ListingSelectors
	fetcher   fetcher.Fetcher
	limiter   *ratelimit.Limiter
}

// ListingSelectors configures the CSS selectors for one entry block.
type ListingSelectors struct {
	Entry       string
	Title       string
	Provider    string
	URL         string
	Deadline    string
	Amount      string
	Eligibility string
}

// NewListingAdapter builds a ListingAdapter. It never receives a store
// handle — it can only produce candidates, never persist them.
func NewListingAdapter(id, baseURL, listingURL string, selectors ListingSelectors, f fetcher.Fetcher, limiter *ratelimit.Limiter) *ListingAdapter {
	return &ListingAdapter{
		id:         id,
		baseURL:    baseURL,
		listingURL: listingURL,
		selectors:  selectors,
		fetcher:    f,
		limiter:    limiter,
	}
}

func (a *ListingAdapter) Identifier() string { return a.id }
func (a *ListingAdapter) BaseURL() string    { return a.baseURL }

func (a *ListingAdapter) Fetch(ctx context.Context) ([]*types.CandidateRecord, error) {
	domain := hostOf(a.listingURL)
	release, err := a.limiter.Acquire(ctx, domain)
	if err != nil {
		return nil, err
	}
	defer release()

	res, err := a.fetcher.Get(ctx, a.listingURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(res.Body)))
	if err != nil {
		return nil, err
	}

	var candidates []*types.CandidateRecord
	doc.Find(a.selectors.Entry).Each(func(_ int, sel *goquery.Selection) {
		title := strings.TrimSpace(sel.Find(a.selectors.Title).First().Text())
		if title == "" {
			return
		}
		href, _ := sel.Find(a.selectors.URL).First().Attr("href")
		candidates = append(candidates, &types.CandidateRecord{
			SourceID:       a.id,
			Title:          title,
			Provider:       strings.TrimSpace(sel.Find(a.selectors.Provider).First().Text()),
			ApplicationURL: href,
			SourceURL:      a.listingURL,
			Eligibility:    strings.TrimSpace(sel.Find(a.selectors.Eligibility).First().Text()),
			DeadlineRaw:    strings.TrimSpace(sel.Find(a.selectors.Deadline).First().Text()),
			AmountRaw:      strings.TrimSpace(sel.Find(a.selectors.Amount).First().Text()),
			DiscoveredAt:   time.Now(),
		})
	})

	return candidates, nil
}

func hostOf(rawURL string) string {
	u := rawURL
	if i := strings.Index(u, "://"); i >= 0 {
		u = u[i+3:]
	}
	if i := strings.IndexAny(u, "/?#"); i >= 0 {
		u = u[:i]
	}
	return u
}
