package config

import "testing"

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Store.URI = "mongodb://localhost:27017"
	cfg.Sources = []SourceConfig{
		{ID: "src-1", Priority: 1, Enabled: true, BaseURL: "https://example.edu",
			Kind: "listing", ListingURL: "https://example.edu/scholarships"},
	}
	return cfg
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("expected valid config to pass, got: %v", err)
	}
}

func TestValidateRejectsListingSourceWithoutListingURL(t *testing.T) {
	cfg := validConfig()
	cfg.Sources[0].Kind = "listing"
	cfg.Sources[0].ListingURL = ""

	if err := Validate(cfg); err == nil {
		t.Error("expected an error for a listing source missing listing_url")
	}
}

func TestValidateRejectsFeedSourceWithoutFeedURL(t *testing.T) {
	cfg := validConfig()
	cfg.Sources[0].Kind = "feed"
	cfg.Sources[0].FeedURL = ""

	if err := Validate(cfg); err == nil {
		t.Error("expected an error for a feed source missing feed_url")
	}
}

func TestValidateRejectsUnknownSourceKind(t *testing.T) {
	cfg := validConfig()
	cfg.Sources[0].Kind = "rss"

	if err := Validate(cfg); err == nil {
		t.Error("expected an error for an unrecognized source kind")
	}
}

func TestValidateRejectsDuplicateSourceIDs(t *testing.T) {
	cfg := validConfig()
	cfg.Sources = append(cfg.Sources, cfg.Sources[0])

	if err := Validate(cfg); err == nil {
		t.Error("expected an error for duplicate source ids")
	}
}

func TestValidateRejectsMissingStoreURI(t *testing.T) {
	cfg := validConfig()
	cfg.Store.URI = ""

	if err := Validate(cfg); err == nil {
		t.Error("expected an error for a missing store.uri")
	}
}
