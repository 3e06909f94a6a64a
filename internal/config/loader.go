package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file and environment.
// Priority (highest to lowest): env vars > config file > defaults.
// No command-line flags are bound; configPath only selects the file.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix("SCHOLARGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("scholargate")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".scholargate"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is okay if not explicitly specified.
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	return Load(path)
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("orchestrator.global_concurrency", cfg.Orchestrator.GlobalConcurrency)
	v.SetDefault("orchestrator.job_timeout", cfg.Orchestrator.JobTimeout)
	v.SetDefault("orchestrator.high_tier_interval", cfg.Orchestrator.HighTierInterval)
	v.SetDefault("orchestrator.std_tier_interval", cfg.Orchestrator.StdTierInterval)
	v.SetDefault("orchestrator.job_history_size", cfg.Orchestrator.JobHistorySize)

	v.SetDefault("fetcher.follow_redirects", cfg.Fetcher.FollowRedirects)
	v.SetDefault("fetcher.max_redirects", cfg.Fetcher.MaxRedirects)
	v.SetDefault("fetcher.max_body_size", cfg.Fetcher.MaxBodySize)
	v.SetDefault("fetcher.connect_timeout", cfg.Fetcher.ConnectTimeout)
	v.SetDefault("fetcher.total_timeout", cfg.Fetcher.TotalTimeout)
	v.SetDefault("fetcher.idle_conn_timeout", cfg.Fetcher.IdleConnTimeout)
	v.SetDefault("fetcher.max_idle_conns", cfg.Fetcher.MaxIdleConns)
	v.SetDefault("fetcher.max_retries", cfg.Fetcher.MaxRetries)
	v.SetDefault("fetcher.retry_base_delay", cfg.Fetcher.RetryBaseDelay)
	v.SetDefault("fetcher.user_agents", cfg.Fetcher.UserAgents)

	v.SetDefault("rate_limit.global_floor", cfg.RateLimit.GlobalFloor)
	v.SetDefault("rate_limit.default.min_spacing", cfg.RateLimit.Default.MinSpacing)
	v.SetDefault("rate_limit.default.concurrency", cfg.RateLimit.Default.Concurrency)

	v.SetDefault("breaker.failure_threshold", cfg.Breaker.FailureThreshold)
	v.SetDefault("breaker.cooldown", cfg.Breaker.Cooldown)

	v.SetDefault("validator.admission_threshold", cfg.Validator.AdmissionThreshold)
	v.SetDefault("validator.batch_size", cfg.Validator.BatchSize)
	v.SetDefault("validator.batch_pause", cfg.Validator.BatchPause)
	v.SetDefault("validator.deadline_sentinel_days", cfg.Validator.DeadlineSentinelDays)

	v.SetDefault("store.database", cfg.Store.Database)
	v.SetDefault("store.collection", cfg.Store.Collection)

	v.SetDefault("api.enabled", cfg.API.Enabled)
	v.SetDefault("api.addr", cfg.API.Addr)
	v.SetDefault("api.caller_rate_limit", cfg.API.CallerRateLimit)
	v.SetDefault("api.caller_rate_window", cfg.API.CallerRateWindow)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.output", cfg.Logging.Output)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}
