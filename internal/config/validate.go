package config

import (
	"fmt"
	"net/url"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Orchestrator.GlobalConcurrency < 1 {
		return fmt.Errorf("orchestrator.global_concurrency must be >= 1, got %d", cfg.Orchestrator.GlobalConcurrency)
	}
	if cfg.Orchestrator.JobTimeout <= 0 {
		return fmt.Errorf("orchestrator.job_timeout must be > 0")
	}

	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}
	if cfg.Fetcher.MaxRedirects < 0 {
		return fmt.Errorf("fetcher.max_redirects must be >= 0")
	}
	if cfg.Fetcher.TotalTimeout <= 0 {
		return fmt.Errorf("fetcher.total_timeout must be > 0")
	}

	if cfg.RateLimit.Default.Concurrency < 1 {
		return fmt.Errorf("rate_limit.default.concurrency must be >= 1")
	}
	for _, b := range cfg.RateLimit.Buckets {
		if b.Suffix == "" {
			return fmt.Errorf("rate_limit bucket has an empty suffix")
		}
		if b.Spec.Concurrency < 1 {
			return fmt.Errorf("rate_limit bucket %q concurrency must be >= 1", b.Suffix)
		}
	}

	if cfg.Breaker.FailureThreshold < 1 {
		return fmt.Errorf("breaker.failure_threshold must be >= 1, got %d", cfg.Breaker.FailureThreshold)
	}
	if cfg.Breaker.Cooldown <= 0 {
		return fmt.Errorf("breaker.cooldown must be > 0")
	}

	if cfg.Validator.AdmissionThreshold < 0 || cfg.Validator.AdmissionThreshold > 100 {
		return fmt.Errorf("validator.admission_threshold must be 0-100, got %d", cfg.Validator.AdmissionThreshold)
	}
	if cfg.Validator.BatchSize < 1 {
		return fmt.Errorf("validator.batch_size must be >= 1, got %d", cfg.Validator.BatchSize)
	}

	if cfg.Store.URI == "" {
		return fmt.Errorf("store.uri must be set")
	}
	if cfg.Store.Database == "" {
		return fmt.Errorf("store.database must be set")
	}
	if cfg.Store.Collection == "" {
		return fmt.Errorf("store.collection must be set")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	seen := make(map[string]bool, len(cfg.Sources))
	for _, s := range cfg.Sources {
		if s.ID == "" {
			return fmt.Errorf("source entry missing id")
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate source id %q", s.ID)
		}
		seen[s.ID] = true
		if s.Priority != 1 && s.Priority != 2 {
			return fmt.Errorf("source %q priority must be 1 or 2, got %d", s.ID, s.Priority)
		}
		if err := ValidateURL(s.BaseURL); err != nil {
			return fmt.Errorf("source %q base_url invalid: %w", s.ID, err)
		}
		switch s.Kind {
		case "listing":
			if s.ListingURL == "" {
				return fmt.Errorf("source %q kind=listing requires listing_url", s.ID)
			}
		case "feed":
			if s.FeedURL == "" {
				return fmt.Errorf("source %q kind=feed requires feed_url", s.ID)
			}
		default:
			return fmt.Errorf("source %q kind must be 'listing' or 'feed', got %q", s.ID, s.Kind)
		}
	}

	return nil
}

// ValidateURL checks if a URL string is valid for fetching.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
