// Package normalize cleans up a CandidateRecord into a ValidatedRecord's
// field shape: whitespace, relative URL resolution, deadline parsing,
// and allow-list clamping (SPEC_FULL.md §4.6).
package normalize

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/scholargate/scholargate/internal/types"
)

const minTitleLen = 10

// defaultDeadlineSentinelDays is the fallback horizon used when no deadline
// can be parsed, overridable via config.ValidatorConfig.DeadlineSentinelDays.
const defaultDeadlineSentinelDays = 60

var amountStripRe = regexp.MustCompile(`[^0-9.,\-]`)

// dateLayouts mirrors DateNormalizeMiddleware's attempt list, with the
// Indian dd/mm/yyyy layout tried before the ambiguous US mm/dd/yyyy one
// per spec.md §4.6 (the source population is India-weighted).
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
	"01/02/2006",
	time.RFC3339,
	"2 January 2006",
	"2 Jan 2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

var validCategories = map[string]bool{
	"Merit-based": true, "Need-based": true, "Sports": true, "Arts": true,
	"Engineering": true, "Medical": true, "Research": true, "Minority": true,
	"Other": true,
}

var validAudiences = map[string]bool{
	"SC/ST": true, "OBC": true, "General": true, "Minority": true,
	"Women": true, "Disabled": true, "All": true,
}

var validEducationLevels = map[string]bool{
	"School": true, "Undergraduate": true, "Postgraduate": true,
	"Doctoral": true, "All": true,
}

// Options configures Normalize's sentinel horizon; zero value uses the
// package default of 60 days.
type Options struct {
	DeadlineSentinelDays int
}

// Normalize trims, resolves, parses, and clamps a CandidateRecord into
// a ValidatedRecord shell. Provenance's SourceID/SourceURL/FetchedAt
// are filled in here; the quality score and Provenance.ValidatedAt are
// set later by the orchestrator. It returns an error when the record
// fails the basic schema check (missing title/applicationURL/provider)
// per spec.md §4.6 step 5, when the title is shorter than minTitleLen,
// or when the applicationURL cannot be resolved to an absolute URL.
func Normalize(c *types.CandidateRecord, baseURL string, opts Options) (*types.ValidatedRecord, error) {
	title := collapseWhitespace(c.Title)
	provider := collapseWhitespace(c.Provider)
	appURL := collapseWhitespace(c.ApplicationURL)
	description := collapseWhitespace(c.Description)
	eligibility := collapseWhitespace(c.Eligibility)

	if title == "" || appURL == "" || provider == "" {
		return nil, &types.NormalizeError{Field: "title/applicationURL/provider", Err: errMissingRequiredField}
	}
	if len(title) < minTitleLen {
		return nil, &types.NormalizeError{Field: "title", Err: errTitleTooShort}
	}

	resolvedURL, err := resolveURL(appURL, baseURL)
	if err != nil {
		return nil, &types.NormalizeError{Field: "applicationURL", Err: err}
	}

	sentinelDays := opts.DeadlineSentinelDays
	if sentinelDays <= 0 {
		sentinelDays = defaultDeadlineSentinelDays
	}
	deadline, assumed := parseDeadline(c.DeadlineRaw, sentinelDays)

	return &types.ValidatedRecord{
		Title:           title,
		Provider:        provider,
		ApplicationURL:  resolvedURL,
		SourceURL:       c.SourceURL,
		Description:     description,
		Eligibility:     eligibility,
		Deadline:        deadline,
		DeadlineAssumed: assumed,
		AmountText:      normalizeAmount(c.AmountRaw),
		Category:        clampCategory(c.Category),
		Audience:        clampAudience(c.Audience),
		EducationLevel:  clampEducationLevel(c.EducationLevel),
		Provenance: types.Provenance{
			SourceID:  c.SourceID,
			SourceURL: c.SourceURL,
			FetchedAt: c.DiscoveredAt,
		},
	}, nil
}

func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

func resolveURL(rawURL, baseURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	if baseURL == "" {
		return "", errRelativeURLNoBase
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(u).String(), nil
}

// parseDeadline tries each layout in dateLayouts in order. If nothing
// parses, or the parsed date's calendar day is already before today, it
// substitutes a sentinel sentinelDays in the future and reports
// assumed=true. A deadline of today counts as a valid future date
// (spec.md §8) — comparing calendar days rather than full timestamps
// keeps a midnight-parsed "today" from losing to the current
// wall-clock time.
func parseDeadline(raw string, sentinelDays int) (deadline time.Time, assumed bool) {
	raw = strings.TrimSpace(raw)
	if raw != "" {
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				if !startOfDay(t).Before(startOfDay(time.Now())) {
					return t, false
				}
				break
			}
		}
	}
	return time.Now().AddDate(0, 0, sentinelDays), true
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// normalizeAmount strips currency symbols and thousands separators,
// disambiguating European (1.234,56) from US (1,234.56) grouping by
// comparing the last comma and last dot position.
func normalizeAmount(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	numeric := amountStripRe.ReplaceAllString(raw, "")
	if numeric == "" {
		return ""
	}
	if strings.Contains(numeric, ",") {
		lastComma := strings.LastIndex(numeric, ",")
		lastDot := strings.LastIndex(numeric, ".")
		if lastComma > lastDot {
			numeric = strings.ReplaceAll(numeric, ".", "")
			numeric = strings.Replace(numeric, ",", ".", 1)
		} else {
			numeric = strings.ReplaceAll(numeric, ",", "")
		}
	}
	if _, err := strconv.ParseFloat(numeric, 64); err != nil {
		return ""
	}
	return numeric
}

func clampCategory(v string) string {
	v = strings.TrimSpace(v)
	if validCategories[v] {
		return v
	}
	return "Other"
}

func clampAudience(v string) string {
	v = strings.TrimSpace(v)
	if validAudiences[v] {
		return v
	}
	return "All"
}

func clampEducationLevel(v string) string {
	v = strings.TrimSpace(v)
	if validEducationLevels[v] {
		return v
	}
	return "All"
}
