// Package ingest is the admission gate between the validator and the
// record store: deduplication, merge-on-duplicate, and the
// anti-synthesis placeholder scan (SPEC_FULL.md §4.7-4.8).
package ingest

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/scholargate/scholargate/internal/store"
	"github.com/scholargate/scholargate/internal/types"
)

// placeholderMarkers are scanned case-insensitively across the title,
// provider, description and eligibility of a record about to be
// admitted (the application URL is not scanned). A match means a
// source adapter synthesized data instead of extracting it, which
// violates spec.md §4.8's anti-synthesis invariant.
var placeholderMarkers = []string{
	"test", "sample", "mock", "demo", "example", "placeholder",
	"dummy", "fake", "template",
}

// Gate admits validated records into the store, merging duplicates
// into the stored entry and rejecting placeholder-looking records.
type Gate struct {
	store  store.Store
	logger *slog.Logger
}

// New builds a Gate over the given store.
func New(s store.Store, logger *slog.Logger) *Gate {
	return &Gate{store: s, logger: logger.With("component", "ingest_gate")}
}

// Outcome describes what the gate did with one record.
type Outcome int

const (
	OutcomeInserted Outcome = iota
	OutcomeMerged
	OutcomeDuplicateNoChange
	OutcomeRejectedPlaceholder
)

// Admit runs one ValidatedRecord through the gate: placeholder scan,
// duplicate lookup, merge-or-insert. It is idempotent per call.
func (g *Gate) Admit(ctx context.Context, sourceID string, rec *types.ValidatedRecord) (Outcome, error) {
	if marker, field := scanForPlaceholder(rec); marker != "" {
		g.logger.Warn("rejecting record with placeholder marker",
			"source", sourceID, "field", field, "marker", marker, "title", rec.Title)
		return OutcomeRejectedPlaceholder, types.ErrSynthesizedField
	}

	existing, err := g.findExisting(ctx, rec)
	if err != nil {
		return 0, &types.StoreError{Op: "admit-lookup", Err: err}
	}

	now := time.Now().Unix()

	if existing == nil {
		stored := &store.StoredRecord{
			ValidatedRecord: *rec,
			IsActive:        true,
			LinkStatus:      store.LinkStatusVerified,
			LastValidated:   now,
		}
		if _, err := g.store.Upsert(ctx, stored); err != nil {
			return 0, err
		}
		return OutcomeInserted, nil
	}

	merged := mergeIfMoreInformative(existing, rec)
	existing.LinkStatus = store.LinkStatusVerified
	existing.LastValidated = now
	existing.QualityScore = rec.QualityScore

	if _, err := g.store.Upsert(ctx, existing); err != nil {
		return 0, err
	}
	if merged {
		return OutcomeMerged, nil
	}
	return OutcomeDuplicateNoChange, nil
}

func (g *Gate) findExisting(ctx context.Context, rec *types.ValidatedRecord) (*store.StoredRecord, error) {
	if existing, err := g.store.FindByKey(ctx, rec.Title, rec.Provider); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}
	return g.store.FindByURL(ctx, rec.ApplicationURL)
}

// mergeIfMoreInformative updates existing's mutable fields in place
// when rec's corresponding value is strictly more informative
// (non-empty where existing is empty, or strictly longer for
// description and eligibility), per spec.md §4.7 step 2. Returns whether anything changed.
func mergeIfMoreInformative(existing *store.StoredRecord, rec *types.ValidatedRecord) bool {
	changed := false

	if len(rec.Description) > len(existing.Description) {
		existing.Description = rec.Description
		changed = true
	}
	if len(rec.Eligibility) > len(existing.Eligibility) {
		existing.Eligibility = rec.Eligibility
		changed = true
	}
	if existing.AmountText == "" && rec.AmountText != "" {
		existing.AmountText = rec.AmountText
		changed = true
	}
	if (existing.Deadline.IsZero() || existing.DeadlineAssumed) && !rec.DeadlineAssumed && !rec.Deadline.IsZero() {
		existing.Deadline = rec.Deadline
		existing.DeadlineAssumed = false
		changed = true
	}

	return changed
}

// scanForPlaceholder returns the first placeholder marker found, and
// the field it was found in, or ("", "") if none.
func scanForPlaceholder(rec *types.ValidatedRecord) (marker, field string) {
	fields := map[string]string{
		"title":       rec.Title,
		"provider":    rec.Provider,
		"description": rec.Description,
		"eligibility": rec.Eligibility,
	}
	for name, value := range fields {
		lower := strings.ToLower(value)
		for _, m := range placeholderMarkers {
			if strings.Contains(lower, m) {
				return m, name
			}
		}
	}
	return "", ""
}
