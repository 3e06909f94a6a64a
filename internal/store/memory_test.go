package store

import (
	"context"
	"testing"

	"github.com/scholargate/scholargate/internal/types"
)

func TestMemoryStoreUpsertInsertsOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	rec := &StoredRecord{
		ValidatedRecord: types.ValidatedRecord{Title: "Merit Award", Provider: "State Govt", ApplicationURL: "https://a.example/apply"},
		IsActive:        true,
	}

	inserted, err := s.Upsert(ctx, rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !inserted {
		t.Error("expected first upsert to report inserted=true")
	}

	inserted, err = s.Upsert(ctx, rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inserted {
		t.Error("expected second upsert of the same key to report inserted=false")
	}
}

func TestMemoryStoreFindByKeyAndURL(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	rec := &StoredRecord{
		ValidatedRecord: types.ValidatedRecord{Title: "Engineering Grant", Provider: "Trust Co", ApplicationURL: "https://b.example/apply"},
	}
	s.Upsert(ctx, rec)

	found, err := s.FindByKey(ctx, "Engineering Grant", "Trust Co")
	if err != nil || found == nil {
		t.Fatalf("expected to find by key, got %v, err %v", found, err)
	}

	found, err = s.FindByURL(ctx, "https://b.example/apply")
	if err != nil || found == nil {
		t.Fatalf("expected to find by URL, got %v, err %v", found, err)
	}
}

func TestMemoryStoreFindActiveFiltersInactive(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Upsert(ctx, &StoredRecord{ValidatedRecord: types.ValidatedRecord{Title: "Active One", Provider: "P"}, IsActive: true})
	s.Upsert(ctx, &StoredRecord{ValidatedRecord: types.ValidatedRecord{Title: "Inactive One", Provider: "P"}, IsActive: false})

	active, err := s.FindActive(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(active) != 1 || active[0].Title != "Active One" {
		t.Errorf("expected exactly the active record, got %+v", active)
	}
}
