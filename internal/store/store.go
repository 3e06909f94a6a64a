// Package store persists ValidatedRecords, keyed by (title, provider)
// or applicationURL, supporting the find/upsert contract of
// SPEC_FULL.md §6.
package store

import (
	"context"

	"github.com/scholargate/scholargate/internal/types"
)

// StoredRecord is a ValidatedRecord plus the store's own bookkeeping
// fields (spec.md §3's isActive/linkStatus flags).
type StoredRecord struct {
	types.ValidatedRecord
	IsActive      bool
	LinkStatus    string
	LastValidated int64 // unix seconds
}

const (
	LinkStatusVerified = "verified"
	LinkStatusUnknown  = "unknown"
)

// Store is the interface for all record store backends.
type Store interface {
	// FindByKey looks up a record by its normalized (title, provider) pair.
	FindByKey(ctx context.Context, title, provider string) (*StoredRecord, error)

	// FindByURL looks up a record by its application URL.
	FindByURL(ctx context.Context, applicationURL string) (*StoredRecord, error)

	// Upsert inserts or updates a record, returning whether it was newly inserted.
	Upsert(ctx context.Context, record *StoredRecord) (inserted bool, err error)

	// FindActive returns every record with IsActive set.
	FindActive(ctx context.Context) ([]*StoredRecord, error)

	// Close releases resources.
	Close(ctx context.Context) error

	// Name returns the backend identifier.
	Name() string
}
