package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for Scholargate.
type Config struct {
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator" yaml:"orchestrator"`
	Fetcher      FetcherConfig      `mapstructure:"fetcher"      yaml:"fetcher"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"   yaml:"rate_limit"`
	Breaker      BreakerConfig      `mapstructure:"breaker"      yaml:"breaker"`
	Validator    ValidatorConfig    `mapstructure:"validator"    yaml:"validator"`
	Store        StoreConfig        `mapstructure:"store"        yaml:"store"`
	API          APIConfig          `mapstructure:"api"          yaml:"api"`
	Logging      LoggingConfig      `mapstructure:"logging"      yaml:"logging"`
	Metrics      MetricsConfig      `mapstructure:"metrics"      yaml:"metrics"`
	Sources      []SourceConfig     `mapstructure:"sources"      yaml:"sources"`
}

// OrchestratorConfig controls job dispatch.
type OrchestratorConfig struct {
	GlobalConcurrency int           `mapstructure:"global_concurrency" yaml:"global_concurrency"`
	JobTimeout        time.Duration `mapstructure:"job_timeout"        yaml:"job_timeout"`
	HighTierInterval  time.Duration `mapstructure:"high_tier_interval" yaml:"high_tier_interval"`
	StdTierInterval   time.Duration `mapstructure:"std_tier_interval"  yaml:"std_tier_interval"`
	JobHistorySize    int           `mapstructure:"job_history_size"   yaml:"job_history_size"`
}

// FetcherConfig controls the shared HTTP fetcher.
type FetcherConfig struct {
	FollowRedirects bool          `mapstructure:"follow_redirects"  yaml:"follow_redirects"`
	MaxRedirects    int           `mapstructure:"max_redirects"     yaml:"max_redirects"`
	MaxBodySize     int64         `mapstructure:"max_body_size"     yaml:"max_body_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"   yaml:"connect_timeout"`
	TotalTimeout    time.Duration `mapstructure:"total_timeout"     yaml:"total_timeout"`
	IdleConnTimeout time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    yaml:"max_idle_conns"`
	MaxRetries      int           `mapstructure:"max_retries"       yaml:"max_retries"`
	RetryBaseDelay  time.Duration `mapstructure:"retry_base_delay"  yaml:"retry_base_delay"`
	UserAgents      []string      `mapstructure:"user_agents"       yaml:"user_agents"`
}

// RateLimitConfig controls per-domain politeness.
type RateLimitConfig struct {
	GlobalFloor time.Duration        `mapstructure:"global_floor" yaml:"global_floor"`
	Buckets     []RateLimitBucket    `mapstructure:"buckets"      yaml:"buckets"`
	Default     RateLimitBucketSpec  `mapstructure:"default"      yaml:"default"`
}

// RateLimitBucket associates a domain-suffix pattern with a policy.
type RateLimitBucket struct {
	Suffix string              `mapstructure:"suffix" yaml:"suffix"`
	Spec   RateLimitBucketSpec `mapstructure:"spec"   yaml:"spec"`
}

// RateLimitBucketSpec is one politeness policy: minimum spacing
// between requests to a domain, and the max concurrent requests to it.
type RateLimitBucketSpec struct {
	MinSpacing  time.Duration `mapstructure:"min_spacing"  yaml:"min_spacing"`
	Concurrency int           `mapstructure:"concurrency"  yaml:"concurrency"`
}

// BreakerConfig controls the per-source circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold" yaml:"failure_threshold"`
	Cooldown         time.Duration `mapstructure:"cooldown"          yaml:"cooldown"`
}

// ValidatorConfig controls link validation and scoring.
type ValidatorConfig struct {
	AdmissionThreshold int           `mapstructure:"admission_threshold" yaml:"admission_threshold"`
	BatchSize          int           `mapstructure:"batch_size"          yaml:"batch_size"`
	BatchPause         time.Duration `mapstructure:"batch_pause"         yaml:"batch_pause"`
	DeadlineSentinelDays int         `mapstructure:"deadline_sentinel_days" yaml:"deadline_sentinel_days"`
}

// StoreConfig controls the record store backend.
type StoreConfig struct {
	URI        string `mapstructure:"uri"        yaml:"uri"`
	Database   string `mapstructure:"database"   yaml:"database"`
	Collection string `mapstructure:"collection" yaml:"collection"`
}

// APIConfig controls the status/control HTTP surface.
type APIConfig struct {
	Enabled           bool          `mapstructure:"enabled"             yaml:"enabled"`
	Addr              string        `mapstructure:"addr"                yaml:"addr"`
	CallerRateLimit   int           `mapstructure:"caller_rate_limit"   yaml:"caller_rate_limit"`
	CallerRateWindow  time.Duration `mapstructure:"caller_rate_window"  yaml:"caller_rate_window"`
}

// SourceConfig declares one upstream source and, via Kind, which
// built-in adapter cmd/scholargate should construct and register for
// it (spec.md §4.8's "adapters register themselves ... via explicit
// Register calls from the entrypoint").
type SourceConfig struct {
	ID       string        `mapstructure:"id"       yaml:"id"`
	Name     string        `mapstructure:"name"     yaml:"name"`
	Priority int           `mapstructure:"priority" yaml:"priority"`
	Enabled  bool          `mapstructure:"enabled"  yaml:"enabled"`
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	BaseURL  string        `mapstructure:"base_url" yaml:"base_url"`

	Kind       string           `mapstructure:"kind"        yaml:"kind"` // "listing" or "feed"
	ListingURL string           `mapstructure:"listing_url" yaml:"listing_url"`
	FeedURL    string           `mapstructure:"feed_url"    yaml:"feed_url"`
	Selectors  ListingSelectors `mapstructure:"selectors"   yaml:"selectors"`
}

// ListingSelectors mirrors internal/source.ListingSelectors so
// configuration can declare the CSS selectors for a listing adapter
// without internal/config importing internal/source.
type ListingSelectors struct {
	Entry       string `mapstructure:"entry"       yaml:"entry"`
	Title       string `mapstructure:"title"       yaml:"title"`
	Provider    string `mapstructure:"provider"    yaml:"provider"`
	URL         string `mapstructure:"url"         yaml:"url"`
	Deadline    string `mapstructure:"deadline"    yaml:"deadline"`
	Amount      string `mapstructure:"amount"      yaml:"amount"`
	Eligibility string `mapstructure:"eligibility" yaml:"eligibility"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Orchestrator: OrchestratorConfig{
			GlobalConcurrency: 3,
			JobTimeout:        10 * time.Minute,
			HighTierInterval:  30 * time.Minute,
			StdTierInterval:   60 * time.Minute,
			JobHistorySize:    20,
		},
		Fetcher: FetcherConfig{
			FollowRedirects: true,
			MaxRedirects:    5,
			MaxBodySize:     10 * 1024 * 1024,
			ConnectTimeout:  15 * time.Second,
			TotalTimeout:    30 * time.Second,
			IdleConnTimeout: 90 * time.Second,
			MaxIdleConns:    100,
			MaxRetries:      3,
			RetryBaseDelay:  2 * time.Second,
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			},
		},
		RateLimit: RateLimitConfig{
			GlobalFloor: 1000 * time.Millisecond,
			Buckets: []RateLimitBucket{
				{Suffix: ".gov.in", Spec: RateLimitBucketSpec{MinSpacing: 8000 * time.Millisecond, Concurrency: 1}},
				{Suffix: ".edu.in", Spec: RateLimitBucketSpec{MinSpacing: 5000 * time.Millisecond, Concurrency: 2}},
				{Suffix: ".ac.in", Spec: RateLimitBucketSpec{MinSpacing: 5000 * time.Millisecond, Concurrency: 2}},
				{Suffix: "scholarships.gov.in", Spec: RateLimitBucketSpec{MinSpacing: 3000 * time.Millisecond, Concurrency: 3}},
				{Suffix: "buddy4study.com", Spec: RateLimitBucketSpec{MinSpacing: 3000 * time.Millisecond, Concurrency: 3}},
				{Suffix: "vidyasaarathi.co.in", Spec: RateLimitBucketSpec{MinSpacing: 3000 * time.Millisecond, Concurrency: 3}},
				{Suffix: "nsp.gov.in", Spec: RateLimitBucketSpec{MinSpacing: 3000 * time.Millisecond, Concurrency: 3}},
			},
			Default: RateLimitBucketSpec{MinSpacing: 4000 * time.Millisecond, Concurrency: 2},
		},
		Breaker: BreakerConfig{
			FailureThreshold: 3,
			Cooldown:         5 * time.Minute,
		},
		Validator: ValidatorConfig{
			AdmissionThreshold:   70,
			BatchSize:            3,
			BatchPause:           1 * time.Second,
			DeadlineSentinelDays: 60,
		},
		Store: StoreConfig{
			Database:   "scholargate",
			Collection: "records",
		},
		API: APIConfig{
			Enabled:          true,
			Addr:             ":8088",
			CallerRateLimit:  10,
			CallerRateWindow: time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}
