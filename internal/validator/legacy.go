package validator

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"

	"github.com/scholargate/scholargate/internal/fetcher"
	"github.com/scholargate/scholargate/internal/types"
)

// LegacyValidator is the v1, XPath-based scorer. It predates the
// canonical goquery-based Validator in validator.go and disagreed with
// it on title-matching and keyword-scan details (spec.md §9's open
// question). It is kept here as a reference implementation with its
// own tests, but the orchestrator never calls it — Validator (v2) is
// the only one wired into the ingestion path.
type LegacyValidator struct {
	fetcher fetcher.Fetcher
	logger  *slog.Logger
}

// NewLegacyValidator builds the v1 validator.
func NewLegacyValidator(f fetcher.Fetcher, logger *slog.Logger) *LegacyValidator {
	return &LegacyValidator{
		fetcher: f,
		logger:  logger.With("component", "validator_legacy"),
	}
}

// Validate scores a candidate's application link using XPath queries
// instead of goquery's CSS selectors. The HTTP, security, latency,
// relevance, title-match and form weights mirror v2; the
// content-quality and accessibility terms are not scored. The
// title-match rule here checks substring containment of the whole
// title rather than per-token matching, which is the discrepancy
// spec.md §9 flags.
func (v *LegacyValidator) Validate(ctx context.Context, candidate *types.CandidateRecord) (*Result, error) {
	res := &Result{}

	if isGenericLanding(candidate.ApplicationURL) {
		res.Errors = append(res.Errors, "Generic URL — requires specific application link")
		return res, nil
	}

	fetchRes, err := v.fetcher.Get(ctx, candidate.ApplicationURL)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res, nil
	}
	res.Accessible = fetchRes.StatusCode < 400
	res.FinalURL = fetchRes.FinalURL
	res.IsSecure = strings.HasPrefix(strings.ToLower(fetchRes.FinalURL), "https://")

	doc, err := html.Parse(strings.NewReader(string(fetchRes.Body)))
	if err != nil {
		res.Warnings = append(res.Warnings, "parse error: "+err.Error())
		return res, nil
	}

	bodyText := strings.ToLower(v.queryText(doc, "//body"))
	keywordHits := countMatches(bodyText, scholarshipVocabulary)
	redFlagHits := countMatches(bodyText, redFlags)

	res.ContentAnalysis = ContentAnalysis{
		ScholarshipRelevant: keywordHits >= 3 && redFlagHits == 0,
		TitleMatches:        strings.Contains(bodyText, strings.ToLower(candidate.Title)),
		HasApplicationForm:  v.nodeExists(doc, "//form"),
		HasContactInfo:      countMatches(bodyText, contactKeywords) > 0,
		HasDeadlineInfo:     countMatches(bodyText, deadlineKeywords) > 0,
	}

	score := 0
	switch {
	case fetchRes.StatusCode == 200:
		score += 30
	case fetchRes.StatusCode < 400:
		score += 20
	}
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

	res.QualityScore = clampScore(score)
	return res, nil
}

func (v *LegacyValidator) queryText(doc *html.Node, expr string) string {
	node, err := htmlquery.Query(doc, expr)
	if err != nil || node == nil {
		return ""
	}
	return htmlquery.InnerText(node)
}

func (v *LegacyValidator) nodeExists(doc *html.Node, expr string) bool {
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return false
	}
	node := htmlquery.QuerySelector(doc, compiled)
	return node != nil
}
