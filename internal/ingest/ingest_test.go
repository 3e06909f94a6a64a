package ingest

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/scholargate/scholargate/internal/store"
	"github.com/scholargate/scholargate/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func TestAdmitInsertsNewRecord(t *testing.T) {
	s := store.NewMemoryStore()
	g := New(s, testLogger)

	rec := &types.ValidatedRecord{
		Title: "Merit Scholarship Award", Provider: "State Govt",
		ApplicationURL: "https://gov.example/apply", QualityScore: 85,
	}

	outcome, err := g.Admit(context.Background(), "src-1", rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeInserted {
		t.Errorf("expected OutcomeInserted, got %v", outcome)
	}

	found, _ := s.FindByKey(context.Background(), rec.Title, rec.Provider)
	if found == nil || !found.IsActive {
		t.Error("expected record to be stored as active")
	}
}

func TestAdmitRejectsPlaceholderMarker(t *testing.T) {
	s := store.NewMemoryStore()
	g := New(s, testLogger)

	rec := &types.ValidatedRecord{
		Title: "Sample Engineering Award", Provider: "Example Trust",
		ApplicationURL: "https://trust.example/apply",
	}

	outcome, err := g.Admit(context.Background(), "src-1", rec)
	if err == nil {
		t.Fatal("expected rejection error for placeholder marker")
	}
	if outcome != OutcomeRejectedPlaceholder {
		t.Errorf("expected OutcomeRejectedPlaceholder, got %v", outcome)
	}

	found, _ := s.FindByKey(context.Background(), rec.Title, rec.Provider)
	if found != nil {
		t.Error("expected placeholder record to never reach the store")
	}
}

func TestAdmitMergesMoreInformativeDuplicate(t *testing.T) {
	s := store.NewMemoryStore()
	g := New(s, testLogger)
	ctx := context.Background()

	first := &types.ValidatedRecord{
		Title: "Engineering Merit Grant", Provider: "Foundation Co",
		ApplicationURL: "https://foundation.example/apply", Description: "", QualityScore: 70,
	}
	g.Admit(ctx, "src-1", first)

	second := &types.ValidatedRecord{
		Title: "Engineering Merit Grant", Provider: "Foundation Co",
		ApplicationURL: "https://foundation.example/apply",
		Description:    "Full description of the grant now available.",
		QualityScore:   75,
	}
	outcome, err := g.Admit(ctx, "src-1", second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeMerged {
		t.Errorf("expected OutcomeMerged, got %v", outcome)
	}

	found, _ := s.FindByKey(ctx, first.Title, first.Provider)
	if found.Description == "" {
		t.Error("expected description to be merged in from the more informative duplicate")
	}
	if found.QualityScore != 75 {
		t.Errorf("expected quality score refreshed to 75, got %d", found.QualityScore)
	}
}

func TestAdmitDuplicateNoNewInformationReportsNoChange(t *testing.T) {
	s := store.NewMemoryStore()
	g := New(s, testLogger)
	ctx := context.Background()

	rec := &types.ValidatedRecord{
		Title: "Arts Merit Award", Provider: "Council Trust",
		ApplicationURL: "https://council.example/apply",
		Description:    "A full paragraph describing the award already.",
	}
	g.Admit(ctx, "src-1", rec)

	shorter := &types.ValidatedRecord{
		Title: "Arts Merit Award", Provider: "Council Trust",
		ApplicationURL: "https://council.example/apply",
		Description:    "short",
	}
	outcome, err := g.Admit(ctx, "src-1", shorter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeDuplicateNoChange {
		t.Errorf("expected OutcomeDuplicateNoChange, got %v", outcome)
	}
}

func TestAdmitMergesLongerEligibilityText(t *testing.T) {
	s := store.NewMemoryStore()
	g := New(s, testLogger)
	ctx := context.Background()

	first := &types.ValidatedRecord{
		Title: "Research Fellowship Award", Provider: "Foundation Co",
		ApplicationURL: "https://foundation.example/apply", Eligibility: "",
	}
	g.Admit(ctx, "src-1", first)

	second := &types.ValidatedRecord{
		Title: "Research Fellowship Award", Provider: "Foundation Co",
		ApplicationURL: "https://foundation.example/apply",
		Eligibility:    "Open to undergraduate and postgraduate students under 25.",
	}
	outcome, err := g.Admit(ctx, "src-1", second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeMerged {
		t.Errorf("expected OutcomeMerged, got %v", outcome)
	}

	found, _ := s.FindByKey(ctx, first.Title, first.Provider)
	if found.Eligibility == "" {
		t.Error("expected eligibility text to be merged in from the more informative duplicate")
	}
}

func TestAdmitByApplicationURLWhenTitleDiffers(t *testing.T) {
	s := store.NewMemoryStore()
	g := New(s, testLogger)
	ctx := context.Background()

	rec := &types.ValidatedRecord{
		Title: "Initial Title Award", Provider: "Provider Name",
		ApplicationURL: "https://provider.example/apply",
	}
	g.Admit(ctx, "src-1", rec)

	renamed := &types.ValidatedRecord{
		Title: "Renamed Title Award", Provider: "Provider Name Changed",
		ApplicationURL: "https://provider.example/apply",
	}
	outcome, err := g.Admit(ctx, "src-1", renamed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome == OutcomeInserted {
		t.Error("expected applicationURL match to be treated as a duplicate, not a fresh insert")
	}
}
