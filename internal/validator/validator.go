// Package validator fetches a candidate's application link and scores
// the page content 0-100 (SPEC_FULL.md §4.5). Only validator.go (v2,
// goquery-based) is wired into the orchestrator; legacy.go (v1,
// htmlquery/xpath-based) is kept side by side as an explicitly unwired
// reference implementation — see the doc comment on LegacyValidator.
package validator

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/scholargate/scholargate/internal/config"
	"github.com/scholargate/scholargate/internal/fetcher"
	"github.com/scholargate/scholargate/internal/ratelimit"
	"github.com/scholargate/scholargate/internal/types"
)

// scholarshipVocabulary is the case-insensitive keyword set that marks
// a page as scholarship-relevant.
var scholarshipVocabulary = []string{
	"scholarship", "fellowship", "grant", "bursary", "financial aid",
	"education funding", "student assistance", "academic award",
	"application form", "apply now", "eligibility", "criteria",
	"deadline", "submit", "register", "enrollment",
}

// redFlags mark a page as broken, expired, or otherwise not a live
// application target.
var redFlags = []string{
	"page not found", "404", "error", "expired", "closed", "maintenance",
	"temporarily unavailable", "access denied", "under construction",
	"coming soon", "invalid request",
}

var contactKeywords = []string{
	"contact us", "contact@", "helpdesk", "phone", "email us", "support",
}

var deadlineKeywords = []string{
	"deadline", "last date", "closing date", "due date", "apply by",
}

var applicationFormKeywords = []string{"apply", "register", "application"}

const minTitleLen = 10

// ContentAnalysis is the content-scan section of a ValidationResult.
type ContentAnalysis struct {
	ScholarshipRelevant bool
	TitleMatches        bool
	HasApplicationForm  bool
	HasContactInfo      bool
	HasDeadlineInfo     bool
}

// Accessibility is the page-hygiene section of a ValidationResult.
type Accessibility struct {
	MobileCompatible  bool
	HasNavigation     bool
	HasStructuredData bool
	HasAltText        bool
	HasHeadings       bool
}

// Result is the outcome of validating one candidate's application link.
type Result struct {
	Accessible      bool
	FinalURL        string
	IsSecure        bool
	HTTPStatus      int
	ContentAnalysis ContentAnalysis
	Accessibility   Accessibility
	QualityScore    int
	Errors          []string
	Warnings        []string
}

// Admitted reports whether the result clears the admission threshold.
func (r *Result) Admitted(threshold int) bool {
	return r.QualityScore >= threshold
}

// Validator fetches and scores candidate application links.
type Validator struct {
	fetcher    fetcher.Fetcher
	limiter    *ratelimit.Limiter
	logger     *slog.Logger
	batchSize  int
	batchPause time.Duration
}

// New builds a Validator. f is shared across all sources. Every fetch
// first acquires limiter for the application link's domain, so link
// validation obeys the same per-domain politeness policy as source
// discovery (SPEC_FULL.md §4.9).
func New(f fetcher.Fetcher, limiter *ratelimit.Limiter, cfg config.ValidatorConfig, logger *slog.Logger) *Validator {
	batchSize := cfg.BatchSize
	if batchSize < 1 {
		batchSize = 3
	}
	pause := cfg.BatchPause
	if pause <= 0 {
		pause = time.Second
	}
	return &Validator{
		fetcher:    f,
		limiter:    limiter,
		logger:     logger.With("component", "validator"),
		batchSize:  batchSize,
		batchPause: pause,
	}
}

// Validate fetches candidate.ApplicationURL and scores the response.
func (v *Validator) Validate(ctx context.Context, candidate *types.CandidateRecord) (*Result, error) {
	res := &Result{}

	if isGenericLanding(candidate.ApplicationURL) {
		res.Errors = append(res.Errors, "Generic URL — requires specific application link")
		res.QualityScore = 0
		return res, nil
	}

	parsed, err := url.Parse(candidate.ApplicationURL)
	if err != nil {
		res.Errors = append(res.Errors, "invalid application URL: "+err.Error())
		return res, nil
	}
	res.IsSecure = parsed.Scheme == "https"

	release, err := v.limiter.Acquire(ctx, parsed.Host)
	if err != nil {
		res.Errors = append(res.Errors, "rate limiter: "+err.Error())
		return res, nil
	}
	fetchRes, err := v.fetcher.Get(ctx, candidate.ApplicationURL)
	release()
	if err != nil {
		res.Accessible = false
		res.Errors = append(res.Errors, err.Error())
		return res, nil
	}

	res.Accessible = fetchRes.StatusCode < 400
	res.FinalURL = fetchRes.FinalURL
	res.HTTPStatus = fetchRes.StatusCode

	httpScore := 0
	switch {
	case fetchRes.StatusCode == 200:
		httpScore = 30
	case fetchRes.StatusCode < 400:
		httpScore = 20
	}

	doc, docErr := goquery.NewDocumentFromReader(strings.NewReader(string(fetchRes.Body)))
	if docErr != nil {
		res.Warnings = append(res.Warnings, "could not parse document: "+docErr.Error())
		res.QualityScore = clampScore(httpScore)
		return res, nil
	}

	bodyText := strings.ToLower(doc.Text())
	pageTitle := strings.ToLower(strings.TrimSpace(doc.Find("title").First().Text()))

	keywordHits := countMatches(bodyText, scholarshipVocabulary)
	redFlagHits := countMatches(bodyText, redFlags)
	hasContact := countMatches(bodyText, contactKeywords) > 0
	hasDeadline := countMatches(bodyText, deadlineKeywords) > 0
	hasForm := doc.Find("form").Length() > 0 || hasApplicationLinkText(doc)

	titleMatches := titleTokenMatch(candidate.Title, bodyText, pageTitle)

	res.ContentAnalysis = ContentAnalysis{
		ScholarshipRelevant: keywordHits >= 3 && redFlagHits == 0,
		TitleMatches:        titleMatches,
		HasApplicationForm:  hasForm,
		HasContactInfo:      hasContact,
		HasDeadlineInfo:     hasDeadline,
	}

	res.Accessibility = Accessibility{
		MobileCompatible:  doc.Find(`meta[name="viewport"]`).Length() > 0,
		HasNavigation:     doc.Find("nav").Length() > 0 || doc.Find(`[role="navigation"]`).Length() > 0,
		HasStructuredData: doc.Find(`script[type="application/ld+json"]`).Length() > 0,
		HasAltText:        altTextMajority(doc),
		HasHeadings:       doc.Find("h1,h2,h3").Length() > 0,
	}

	score := httpScore
	if res.IsSecure {
		score += 5
	}
	if fetchRes.Duration < 3*time.Second {
		score += 5
	}
	if res.ContentAnalysis.ScholarshipRelevant {
		score += 15
	}
	if res.ContentAnalysis.TitleMatches {
		score += 10
	}
	if res.ContentAnalysis.HasApplicationForm {
		score += 10
	}

	contentQuality := contentQualitySubscore(len(bodyText), keywordHits, hasForm, hasContact, hasDeadline, redFlagHits)
	score += int(float64(contentQuality) * 0.15)

	if res.Accessibility.MobileCompatible {
		score += 3
	}
	if res.Accessibility.HasNavigation {
		score += 2
	}
	if res.Accessibility.HasStructuredData {
		score += 2
	}
	if res.Accessibility.HasAltText {
		score += 2
	}
	if res.Accessibility.HasHeadings {
		score += 1
	}

	res.QualityScore = clampScore(score)
	return res, nil
}

// BatchResult pairs a candidate with its validation outcome.
type BatchResult struct {
	Candidate *types.CandidateRecord
	Result    *Result
	Err       error
}

// ValidateBatch validates candidates in bounded parallelism, pausing
// between batches, matching spec.md §4.5's batch-mode requirement.
func (v *Validator) ValidateBatch(ctx context.Context, candidates []*types.CandidateRecord) []BatchResult {
	out := make([]BatchResult, len(candidates))

	for start := 0; start < len(candidates); start += v.batchSize {
		end := start + v.batchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		batch := candidates[start:end]

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(v.batchSize)
		for i, c := range batch {
			i, c := i, c
			g.Go(func() error {
				res, err := v.Validate(gctx, c)
				out[start+i] = BatchResult{Candidate: c, Result: res, Err: err}
				return nil
			})
		}
		_ = g.Wait()

		if end < len(candidates) {
			select {
			case <-ctx.Done():
				return out
			case <-time.After(v.batchPause):
			}
		}
	}

	return out
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func countMatches(text string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			n++
		}
	}
	return n
}

func hasApplicationLinkText(doc *goquery.Document) bool {
	found := false
	doc.Find("a,button").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := strings.ToLower(strings.TrimSpace(sel.Text()))
		for _, kw := range applicationFormKeywords {
			if strings.Contains(text, kw) {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

func titleTokenMatch(title, bodyText, pageTitle string) bool {
	tokens := strings.Fields(strings.ToLower(title))
	var significant []string
	for _, t := range tokens {
		if len(t) > 3 {
			significant = append(significant, t)
		}
	}
	if len(significant) == 0 {
		return false
	}
	hits := 0
	for _, t := range significant {
		if strings.Contains(bodyText, t) || strings.Contains(pageTitle, t) {
			hits++
		}
	}
	return float64(hits)/float64(len(significant)) >= 0.6
}

func altTextMajority(doc *goquery.Document) bool {
	total := 0
	withAlt := 0
	doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
		total++
		if alt, ok := sel.Attr("alt"); ok && strings.TrimSpace(alt) != "" {
			withAlt++
		}
	})
	if total == 0 {
		return false
	}
	return float64(withAlt)/float64(total) > 0.5
}

func contentQualitySubscore(bodyLen, keywordHits int, hasForm, hasContact, hasDeadline bool, redFlagHits int) int {
	score := 0
	if bodyLen > 500 {
		score += 10
	}
	if bodyLen > 1000 {
		score += 10
	}
	switch {
	case keywordHits >= 5:
		score += 20
	case keywordHits >= 3:
		score += 10
	}
	if hasForm {
		score += 15
	}
	if hasContact {
		score += 10
	}
	if hasDeadline {
		score += 10
	}
	score -= 15 * redFlagHits
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// isGenericLanding rejects bare-root aggregator pages that carry no
// scholarship-specific path, per spec.md §4.5's fast-reject rule.
func isGenericLanding(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := strings.Trim(u.Path, "/")
	if path != "" || u.RawQuery != "" {
		return false
	}
	return isKnownAggregatorHost(u.Hostname())
}

var knownAggregatorHosts = map[string]bool{
	"scholarships.gov.in":    true,
	"buddy4study.com":        true,
	"vidyasaarathi.co.in":    true,
	"nsp.gov.in":             true,
}

func isKnownAggregatorHost(host string) bool {
	host = strings.ToLower(strings.TrimPrefix(host, "www."))
	return knownAggregatorHosts[host]
}
