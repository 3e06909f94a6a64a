// Package observability exports pipeline counters through a real
// Prometheus registry, the way internal/breaker already registers its
// state gauge, rather than the hand-rolled text exposition the teacher
// used for its webstalk_* metrics.
package observability

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every counter/gauge the pipeline updates, namespaced
// under scholargate_ to match internal/breaker's scholargate_breaker_state.
type Metrics struct {
	FetchesTotal      *prometheus.CounterVec
	CandidatesTotal   prometheus.Counter
	AdmittedTotal     prometheus.Counter
	RejectedTotal     prometheus.Counter
	DuplicatesTotal   prometheus.Counter
	ValidationErrors  prometheus.Counter
	BytesDownloaded   prometheus.Counter
	JobDuration       *prometheus.HistogramVec
	ActiveJobs        prometheus.Gauge

	registry *prometheus.Registry
	logger   *slog.Logger
}

// NewMetrics builds a Metrics bound to a fresh registry and registers
// every collector. Passing the returned registry into breaker.NewRegistry
// keeps the breaker state gauge on the same /metrics endpoint.
func NewMetrics(logger *slog.Logger) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		FetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scholargate",
			Subsystem: "fetch",
			Name:      "total",
			Help:      "Total fetch attempts by source and outcome.",
		}, []string{"source_id", "outcome"}),
		CandidatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scholargate",
			Subsystem: "pipeline",
			Name:      "candidates_total",
			Help:      "Total candidate records extracted by source adapters.",
		}),
		AdmittedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scholargate",
			Subsystem: "pipeline",
			Name:      "admitted_total",
			Help:      "Total records admitted into the store.",
		}),
		RejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scholargate",
			Subsystem: "pipeline",
			Name:      "rejected_total",
			Help:      "Total records rejected by validation or ingestion.",
		}),
		DuplicatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scholargate",
			Subsystem: "pipeline",
			Name:      "duplicates_total",
			Help:      "Total records recognized as duplicates of an existing entry.",
		}),
		ValidationErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scholargate",
			Subsystem: "pipeline",
			Name:      "validation_errors_total",
			Help:      "Total validation failures (fetch errors on application links).",
		}),
		BytesDownloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scholargate",
			Subsystem: "fetch",
			Name:      "bytes_downloaded_total",
			Help:      "Total response bytes downloaded across all fetches.",
		}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "scholargate",
			Subsystem: "job",
			Name:      "duration_seconds",
			Help:      "Scrape job duration by source and outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source_id", "outcome"}),
		ActiveJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "scholargate",
			Subsystem: "job",
			Name:      "active",
			Help:      "Number of scrape jobs currently executing.",
		}),
		registry: reg,
		logger:   logger.With("component", "metrics"),
	}

	reg.MustRegister(
		m.FetchesTotal, m.CandidatesTotal, m.AdmittedTotal, m.RejectedTotal,
		m.DuplicatesTotal, m.ValidationErrors, m.BytesDownloaded, m.JobDuration, m.ActiveJobs,
	)

	return m
}

// Registry exposes the underlying prometheus.Registerer so callers
// (e.g. internal/breaker's gauge) can register onto the same endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer starts a standalone metrics HTTP server on port at path,
// the way the teacher's StartServer launched ListenAndServe in the
// background.
func (m *Metrics) StartServer(port int, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	addr := fmt.Sprintf(":%d", port)
	m.logger.Info("metrics server starting", "addr", addr, "path", path)

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			m.logger.Error("metrics server error", "error", err)
		}
	}()

	return nil
}

// RecordFetch increments the fetch counter for sourceID/outcome and
// adds responseBytes to the download total.
func (m *Metrics) RecordFetch(sourceID, outcome string, responseBytes int) {
	m.FetchesTotal.WithLabelValues(sourceID, outcome).Inc()
	if responseBytes > 0 {
		m.BytesDownloaded.Add(float64(responseBytes))
	}
}

// RecordJob records one terminated job's duration and outcome.
func (m *Metrics) RecordJob(sourceID, outcome string, seconds float64) {
	m.JobDuration.WithLabelValues(sourceID, outcome).Observe(seconds)
}
