// Command scholargate runs the scholarship acquisition pipeline: a
// periodic orchestrator pulling candidates from source adapters,
// validating application links, and upserting admitted records into
// the record store, exposed through a trigger/status HTTP surface.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/scholargate/scholargate/internal/api"
	"github.com/scholargate/scholargate/internal/breaker"
	"github.com/scholargate/scholargate/internal/clock"
	"github.com/scholargate/scholargate/internal/config"
	"github.com/scholargate/scholargate/internal/fetcher"
	"github.com/scholargate/scholargate/internal/observability"
	"github.com/scholargate/scholargate/internal/orchestrator"
	"github.com/scholargate/scholargate/internal/ratelimit"
	"github.com/scholargate/scholargate/internal/source"
	"github.com/scholargate/scholargate/internal/store"
	"github.com/scholargate/scholargate/internal/types"
	"github.com/scholargate/scholargate/internal/validator"
)

// Exit codes per spec.md §6.
const (
	exitSuccess         = 0
	exitConfigError     = 1
	exitStoreUnreachable = 2
	exitAllSourcesFailed = 3
	exitCancelled        = 4
)

var (
	cfgFile string
	verbose bool
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := &cobra.Command{
		Use:   "scholargate",
		Short: "Scholarship acquisition pipeline",
		Long: `Scholargate periodically scrapes scholarship listings from configured
sources, validates and scores each application link, normalizes the
record, and ingests it into the record store — deduplicating against
what is already known.`,
	}
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	exitCode := exitSuccess
	rootCmd.AddCommand(
		runAllCmd(&exitCode),
		runSourceCmd(&exitCode),
		statusCmd(&exitCode),
		breakersCmd(&exitCode),
		serveCmd(&exitCode),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		if exitCode == exitSuccess {
			exitCode = exitConfigError
		}
	}
	return exitCode
}

func setupLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// deps bundles the constructed components every subcommand needs.
type deps struct {
	cfg    *config.Config
	orch   *orchestrator.Orchestrator
	store  store.Store
	logger *slog.Logger
}

// buildDeps loads configuration and wires every component exactly
// once, mirroring cmd/webstalk/main.go's runCrawl setup sequence.
func buildDeps(logger *slog.Logger) (*deps, int, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, exitConfigError, fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, exitConfigError, fmt.Errorf("invalid config: %w", err)
	}

	httpFetcher, err := fetcher.NewHTTPFetcher(cfg, logger)
	if err != nil {
		return nil, exitConfigError, fmt.Errorf("create fetcher: %w", err)
	}

	limiter := ratelimit.New(cfg.RateLimit)

	st, err := store.NewMongoStore(cfg.Store.URI, cfg.Store.Database, cfg.Store.Collection, logger)
	if err != nil {
		return nil, exitStoreUnreachable, fmt.Errorf("connect store: %w", err)
	}

	var metrics *observability.Metrics
	var breakerReg prometheus.Registerer
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(logger)
		breakerReg = metrics.Registry()
		if err := metrics.StartServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			logger.Warn("metrics server failed to start", "error", err)
		}
	}

	breakers := breaker.NewRegistry(cfg.Breaker.FailureThreshold, cfg.Breaker.Cooldown, breakerReg)

	v := validator.New(httpFetcher, limiter, cfg.Validator, logger)

	sources := make([]*types.Source, 0, len(cfg.Sources))
	reg := source.NewRegistry()
	for _, sc := range cfg.Sources {
		sources = append(sources, &types.Source{
			ID: sc.ID, Name: sc.Name, Priority: sc.Priority,
			Enabled: sc.Enabled, Interval: sc.Interval, BaseURL: sc.BaseURL,
		})
		reg.Register(buildAdapter(sc, httpFetcher, limiter))
	}

	orch := orchestrator.New(cfg, sources, reg, breakers, v, st, metrics, logger)

	return &deps{cfg: cfg, orch: orch, store: st, logger: logger}, exitSuccess, nil
}

// buildAdapter constructs the adapter declared by sc.Kind, per
// SPEC_FULL.md §4.8's explicit-Register-call wiring.
func buildAdapter(sc config.SourceConfig, f fetcher.Fetcher, limiter *ratelimit.Limiter) source.Adapter {
	switch sc.Kind {
	case "feed":
		return source.NewFeedAdapter(sc.ID, sc.BaseURL, sc.FeedURL, f, limiter)
	default:
		selectors := source.ListingSelectors{
			Entry: sc.Selectors.Entry, Title: sc.Selectors.Title, Provider: sc.Selectors.Provider,
			URL: sc.Selectors.URL, Deadline: sc.Selectors.Deadline, Amount: sc.Selectors.Amount,
			Eligibility: sc.Selectors.Eligibility,
		}
		return source.NewListingAdapter(sc.ID, sc.BaseURL, sc.ListingURL, selectors, f, limiter)
	}
}

func runAllCmd(exitCode *int) *cobra.Command {
	return &cobra.Command{
		Use:   "run-all",
		Short: "Run one job for every enabled source and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger()
			d, code, err := buildDeps(logger)
			if err != nil {
				*exitCode = code
				return err
			}
			defer d.store.Close(context.Background())

			ctx, cancel := signalContext()
			defer cancel()

			summary, err := d.orch.RunAllNow(ctx)
			if err != nil {
				*exitCode = exitConfigError
				return err
			}

			failed := 0
			for _, job := range summary.Jobs {
				if job.Outcome == types.OutcomeFailed {
					failed++
				}
				logger.Info("job finished", "source", job.SourceID, "outcome", job.Outcome,
					"candidates", job.Candidates, "admitted", job.Admitted)
			}
			if ctx.Err() != nil {
				*exitCode = exitCancelled
				return nil
			}
			if len(summary.Jobs) > 0 && failed == len(summary.Jobs) {
				*exitCode = exitAllSourcesFailed
			}
			return nil
		},
	}
}

func runSourceCmd(exitCode *int) *cobra.Command {
	return &cobra.Command{
		Use:   "run <source-id>",
		Short: "Run one job for a single source and exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger()
			d, code, err := buildDeps(logger)
			if err != nil {
				*exitCode = code
				return err
			}
			defer d.store.Close(context.Background())

			ctx, cancel := signalContext()
			defer cancel()

			job, err := d.orch.RunSource(ctx, args[0])
			if err != nil {
				*exitCode = exitConfigError
				return err
			}
			logger.Info("job finished", "source", job.SourceID, "outcome", job.Outcome,
				"candidates", job.Candidates, "admitted", job.Admitted)
			if ctx.Err() != nil {
				*exitCode = exitCancelled
			} else if job.Outcome == types.OutcomeFailed {
				*exitCode = exitAllSourcesFailed
			}
			return nil
		},
	}
}

func statusCmd(exitCode *int) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print orchestrator status",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger()
			d, code, err := buildDeps(logger)
			if err != nil {
				*exitCode = code
				return err
			}
			defer d.store.Close(context.Background())

			status := d.orch.Status()
			fmt.Printf("Candidates: %d  Admitted: %d  Rejected: %d\n",
				status.TotalCandidates, status.TotalAdmitted, status.TotalRejected)
			for _, s := range status.Sources {
				fmt.Printf("  %-20s enabled=%-5v breaker=%-10s last=%v\n",
					s.Source.ID, s.Source.Enabled, s.Breaker.State, lastOutcome(s.LastJob))
			}
			return nil
		},
	}
}

func breakersCmd(exitCode *int) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "breakers",
		Short: "Inspect or reset circuit breakers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Force every circuit breaker back to closed",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger()
			d, code, err := buildDeps(logger)
			if err != nil {
				*exitCode = code
				return err
			}
			defer d.store.Close(context.Background())
			d.orch.ResetBreakers()
			fmt.Println("breakers reset")
			return nil
		},
	})
	return cmd
}

func serveCmd(exitCode *int) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the scheduler and the status/control HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger()
			d, code, err := buildDeps(logger)
			if err != nil {
				*exitCode = code
				return err
			}
			defer d.store.Close(context.Background())

			clk := clock.New(d.orch.Sources(), d.cfg.Orchestrator.HighTierInterval, d.cfg.Orchestrator.StdTierInterval,
				func(ctx context.Context, sourceID string) { d.orch.RunSource(ctx, sourceID) }, logger)

			ctx, cancel := signalContext()
			defer cancel()
			clk.Start(ctx)

			if d.cfg.API.Enabled {
				srv := api.NewServer(d.cfg.API.Addr, d.orch, d.cfg.API.CallerRateLimit, d.cfg.API.CallerRateWindow, logger)
				if err := srv.Start(); err != nil {
					*exitCode = exitConfigError
					return err
				}
			}

			<-ctx.Done()
			logger.Info("shutting down")
			clk.Stop()
			if ctx.Err() != nil {
				*exitCode = exitCancelled
			}
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("scholargate %s\n", config.Version)
		},
	}
}

func lastOutcome(job *types.ScrapeJob) string {
	if job == nil {
		return "never run"
	}
	return string(job.Outcome)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
