package types

import "time"

// CandidateRecord is the transient, unvalidated record an
// internal/source.Adapter yields from a single source page. It never
// reaches internal/store directly — it must pass through the link
// validator and normalizer first.
type CandidateRecord struct {
	SourceID        string
	Title           string
	Provider        string
	ApplicationURL  string
	SourceURL       string // the listing/feed page this candidate was scraped from
	Description     string
	Eligibility     string
	DeadlineRaw     string // as scraped, before date parsing
	AmountRaw       string
	Category        string
	Audience        string
	EducationLevel  string
	DiscoveredAt    time.Time
}

// Clone returns an independent copy, safe to hand to a concurrent
// validation worker without sharing mutable state with the adapter
// that produced it.
func (c *CandidateRecord) Clone() *CandidateRecord {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Provenance records where a ValidatedRecord's data came from, kept
// for audit and for the ingestion gate's merge-if-more-informative
// decision.
type Provenance struct {
	SourceID   string
	SourceURL  string
	FetchedAt  time.Time
	ValidatedAt time.Time
}

// ValidatedRecord is a CandidateRecord that has passed link validation
// and normalization. Only ValidatedRecords with QualityScore >= the
// configured admission threshold are handed to internal/ingest.
type ValidatedRecord struct {
	Title          string
	Provider       string
	ApplicationURL string
	SourceURL      string
	Description    string
	Eligibility    string
	Deadline       time.Time
	// DeadlineAssumed is true when no parseable deadline was found, or
	// the parsed one was already past, and internal/normalize
	// substituted the sentinel (60 days out by default) in its place.
	// Callers that need a hard deadline must check this flag.
	DeadlineAssumed bool
	AmountText     string
	Category       string
	Audience       string
	EducationLevel string
	QualityScore   int // 0-100, admission threshold applied by internal/orchestrator before ingest
	HTTPStatus     int
	Provenance     Provenance
}

// UpsertKey returns the record's two duplicate keys together: the
// (title, provider) pair and the application URL. internal/ingest
// looks a record up by the pair first, then by the URL.
func (v *ValidatedRecord) UpsertKey() (title, provider, url string) {
	return v.Title, v.Provider, v.ApplicationURL
}

// Clone returns an independent copy.
func (v *ValidatedRecord) Clone() *ValidatedRecord {
	if v == nil {
		return nil
	}
	clone := *v
	return &clone
}

// MoreInformativeThan reports whether v has strictly more populated
// fields than other.
func (v *ValidatedRecord) MoreInformativeThan(other *ValidatedRecord) bool {
	if other == nil {
		return true
	}
	return populatedFieldCount(v) > populatedFieldCount(other)
}

func populatedFieldCount(v *ValidatedRecord) int {
	n := 0
	if v.Description != "" {
		n++
	}
	if v.Eligibility != "" {
		n++
	}
	if !v.Deadline.IsZero() && !v.DeadlineAssumed {
		n++
	}
	if v.AmountText != "" {
		n++
	}
	if v.Category != "" {
		n++
	}
	if v.Audience != "" {
		n++
	}
	if v.EducationLevel != "" {
		n++
	}
	return n
}
