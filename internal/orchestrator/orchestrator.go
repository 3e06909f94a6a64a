// Package orchestrator dispatches per-source scrape jobs, combining
// the teacher's engine state machine with its scheduler's worker-pool
// pattern (SPEC_FULL.md §4.9). A job pulls candidates from a source
// adapter and drives each one through Normalize -> Validate -> Ingest,
// governed by the breaker registry and rate limiter.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/scholargate/scholargate/internal/breaker"
	"github.com/scholargate/scholargate/internal/config"
	"github.com/scholargate/scholargate/internal/ingest"
	"github.com/scholargate/scholargate/internal/normalize"
	"github.com/scholargate/scholargate/internal/observability"
	"github.com/scholargate/scholargate/internal/source"
	"github.com/scholargate/scholargate/internal/store"
	"github.com/scholargate/scholargate/internal/types"
	"github.com/scholargate/scholargate/internal/validator"
)

// Counters tracks running totals since process start.
type Counters struct {
	TotalCandidates atomic.Int64
	TotalAdmitted   atomic.Int64
	TotalRejected   atomic.Int64
}

// SourceStatus is one source's entry in Status().
type SourceStatus struct {
	Source      types.Source
	Breaker     types.BreakerState
	LastJob     *types.ScrapeJob
}

// Status is the orchestrator's full status snapshot.
type Status struct {
	Sources         []SourceStatus
	TotalCandidates int64
	TotalAdmitted   int64
	TotalRejected   int64
}

// RunSummary is returned by RunAllNow once every dispatched job has
// terminated.
type RunSummary struct {
	Jobs []*types.ScrapeJob
}

// Orchestrator owns the per-source mutexes, breaker registry, rate
// limiter, and source adapter registry, and drives the per-job
// algorithm in SPEC_FULL.md §4.9.
type Orchestrator struct {
	cfg       *config.Config
	logger    *slog.Logger
	sources   map[string]*types.Source
	adapters  *source.Registry
	breakers  *breaker.Registry
	validator *validator.Validator
	store     store.Store
	gate      *ingest.Gate
	metrics   *observability.Metrics

	globalSem *semaphore.Weighted
	jobTimeout time.Duration

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	historyMu sync.Mutex
	history   map[string]*types.JobRing

	zeroStreakMu sync.Mutex
	zeroStreak   map[string]int

	runAllInFlight atomic.Bool

	counters Counters
}

// New builds an Orchestrator. sources declares every known source in
// configuration order; adapters must carry a registered Adapter for
// every enabled source (missing adapters cause that source's jobs to
// fail with a recorded error, not a panic). metrics may be nil, in
// which case no Prometheus collectors are updated.
func New(cfg *config.Config, sources []*types.Source, adapters *source.Registry, breakers *breaker.Registry, v *validator.Validator, st store.Store, metrics *observability.Metrics, logger *slog.Logger) *Orchestrator {
	o := &Orchestrator{
		cfg:        cfg,
		logger:     logger.With("component", "orchestrator"),
		sources:    make(map[string]*types.Source, len(sources)),
		adapters:   adapters,
		breakers:   breakers,
		validator:  v,
		store:      st,
		gate:       ingest.New(st, logger),
		metrics:    metrics,
		globalSem:  semaphore.NewWeighted(int64(cfg.Orchestrator.GlobalConcurrency)),
		jobTimeout: cfg.Orchestrator.JobTimeout,
		locks:      make(map[string]*sync.Mutex),
		history:    make(map[string]*types.JobRing),
		zeroStreak: make(map[string]int),
	}
	for _, s := range sources {
		o.sources[s.ID] = s
		o.history[s.ID] = types.NewJobRing(cfg.Orchestrator.JobHistorySize)
	}
	return o
}

// Sources returns every configured source, for use by the caller that
// builds a clock.Clock on top of this orchestrator.
func (o *Orchestrator) Sources() []*types.Source {
	out := make([]*types.Source, 0, len(o.sources))
	for _, s := range o.sources {
		out = append(out, s)
	}
	return out
}

// RunAllNow fans out over every enabled source in parallel, bounded by
// the configured global concurrency cap, and returns once every
// dispatched job has terminated. A second call made while one is
// already running returns types.ErrRunAllInFlight immediately.
func (o *Orchestrator) RunAllNow(ctx context.Context) (*RunSummary, error) {
	if !o.runAllInFlight.CompareAndSwap(false, true) {
		return nil, types.ErrRunAllInFlight
	}
	defer o.runAllInFlight.Store(false)

	var wg sync.WaitGroup
	var mu sync.Mutex
	jobs := make([]*types.ScrapeJob, 0, len(o.sources))

	for _, s := range o.sources {
		s := s
		wg.Add(1)
		go func() {
			defer wg.Done()
			job := o.runOne(ctx, s.ID)
			mu.Lock()
			jobs = append(jobs, job)
			mu.Unlock()
		}()
	}
	wg.Wait()

	return &RunSummary{Jobs: jobs}, nil
}

// RunSource dispatches a single ad-hoc job for sourceID and returns
// its terminal ScrapeJob.
func (o *Orchestrator) RunSource(ctx context.Context, sourceID string) (*types.ScrapeJob, error) {
	if _, ok := o.sources[sourceID]; !ok {
		return nil, fmt.Errorf("unknown source %q", sourceID)
	}
	return o.runOne(ctx, sourceID), nil
}

// runOne acquires the global concurrency slot and the source's own
// mutex (so no two jobs for the same source ever run concurrently),
// then executes the per-job algorithm. A panic anywhere below is
// recovered and turned into a failed outcome: a single source's bug
// never brings down the orchestrator or the process it runs in
// (spec.md §7).
func (o *Orchestrator) runOne(ctx context.Context, sourceID string) (job *types.ScrapeJob) {
	src := o.sources[sourceID]
	job = &types.ScrapeJob{SourceID: sourceID, Start: time.Now()}

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("job panicked", "source", sourceID, "panic", r)
			job.Finish(types.OutcomeFailed, fmt.Sprintf("panic: %v", r))
			o.recordJob(sourceID, job)
		}
	}()

	if !src.Enabled {
		job.Finish(types.OutcomeSkippedDisabled, "")
		o.recordJob(sourceID, job)
		return job
	}

	lock := o.lockFor(sourceID)
	lock.Lock()
	defer lock.Unlock()

	if err := o.globalSem.Acquire(ctx, 1); err != nil {
		job.Finish(types.OutcomeFailed, "cancelled")
		o.recordJob(sourceID, job)
		return job
	}
	defer o.globalSem.Release(1)

	allowed, _ := o.breakers.Allow(sourceID)
	if !allowed {
		job.Finish(types.OutcomeSkippedOpenBreaker, "")
		o.recordJob(sourceID, job)
		return job
	}

	jobCtx, cancel := context.WithTimeout(ctx, o.jobTimeout)
	defer cancel()

	if o.metrics != nil {
		o.metrics.ActiveJobs.Inc()
		defer o.metrics.ActiveJobs.Dec()
	}

	o.executeJob(jobCtx, src, job)
	o.recordJob(sourceID, job)
	if o.metrics != nil {
		o.metrics.RecordJob(sourceID, string(job.Outcome), job.Duration().Seconds())
	}
	return job
}

// executeJob runs steps 3-5 of SPEC_FULL.md §4.9's per-job algorithm.
func (o *Orchestrator) executeJob(ctx context.Context, src *types.Source, job *types.ScrapeJob) {
	adapter, err := o.adapters.Get(src.ID)
	if err != nil {
		o.breakers.RecordFailure(src.ID)
		job.Finish(types.OutcomeFailed, err.Error())
		return
	}

	candidates, err := adapter.Fetch(ctx)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			job.Finish(types.OutcomeFailed, "cancelled")
			return
		}
		o.breakers.RecordFailure(src.ID)
		job.Finish(types.OutcomeFailed, err.Error())
		if o.metrics != nil {
			o.metrics.RecordFetch(src.ID, "error", 0)
		}
		return
	}
	if o.metrics != nil {
		o.metrics.RecordFetch(src.ID, "ok", 0)
		o.metrics.CandidatesTotal.Add(float64(len(candidates)))
	}

	job.Candidates = len(candidates)
	o.counters.TotalCandidates.Add(int64(len(candidates)))

	if len(candidates) == 0 {
		// A fetch with no adapter error but zero candidates is a soft
		// failure only after three consecutive occurrences (spec.md
		// §4.3) — a single empty run is not itself penalized.
		if o.bumpZeroStreak(src.ID) >= 3 {
			o.breakers.RecordFailure(src.ID)
			o.resetZeroStreak(src.ID)
		}
		job.Finish(types.OutcomeSuccess, "")
		return
	}
	o.resetZeroStreak(src.ID)

	for _, candidate := range candidates {
		if ctx.Err() != nil {
			job.Finish(types.OutcomeFailed, "cancelled")
			return
		}
		o.processCandidate(ctx, src, candidate, job)
	}

	// The adapter fetch itself raised no error, so per spec.md §4.9
	// step 5 this job counts as a breaker success regardless of how
	// many individual candidates were admitted.
	o.breakers.RecordSuccess(src.ID)
	job.Finish(types.OutcomeSuccess, "")
}

func (o *Orchestrator) bumpZeroStreak(sourceID string) int {
	o.zeroStreakMu.Lock()
	defer o.zeroStreakMu.Unlock()
	o.zeroStreak[sourceID]++
	return o.zeroStreak[sourceID]
}

func (o *Orchestrator) resetZeroStreak(sourceID string) {
	o.zeroStreakMu.Lock()
	defer o.zeroStreakMu.Unlock()
	o.zeroStreak[sourceID] = 0
}

// processCandidate runs one candidate through Normalizer -> Validator
// -> Ingestion Gate, sequentially, per SPEC_FULL.md §4.9 step 4.
func (o *Orchestrator) processCandidate(ctx context.Context, src *types.Source, candidate *types.CandidateRecord, job *types.ScrapeJob) {
	validated, err := normalize.Normalize(candidate, src.BaseURL, normalize.Options{DeadlineSentinelDays: o.cfg.Validator.DeadlineSentinelDays})
	if err != nil {
		job.Rejected++
		if job.FirstError == "" {
			job.FirstError = err.Error()
		}
		return
	}

	// Validate the normalized (trimmed, resolved) title and URL rather
	// than the raw scraped values.
	toValidate := *candidate
	toValidate.Title = validated.Title
	toValidate.ApplicationURL = validated.ApplicationURL
	result, err := o.validator.Validate(ctx, &toValidate)
	if err != nil {
		job.ValidationFailures++
		if o.metrics != nil {
			o.metrics.ValidationErrors.Inc()
		}
		if job.FirstError == "" {
			job.FirstError = err.Error()
		}
		return
	}
	validated.QualityScore = result.QualityScore
	validated.HTTPStatus = result.HTTPStatus

	if !result.Admitted(o.cfg.Validator.AdmissionThreshold) {
		job.Rejected++
		o.counters.TotalRejected.Add(1)
		if o.metrics != nil {
			o.metrics.RejectedTotal.Inc()
		}
		return
	}

	validated.Provenance.ValidatedAt = time.Now()
	outcome, err := o.gate.Admit(ctx, src.ID, validated)
	switch {
	case err == nil && outcome == ingest.OutcomeInserted:
		job.Admitted++
		o.counters.TotalAdmitted.Add(1)
		if o.metrics != nil {
			o.metrics.AdmittedTotal.Inc()
		}
	case err == nil && (outcome == ingest.OutcomeMerged || outcome == ingest.OutcomeDuplicateNoChange):
		job.Duplicates++
		if o.metrics != nil {
			o.metrics.DuplicatesTotal.Inc()
		}
	default:
		job.Rejected++
		o.counters.TotalRejected.Add(1)
		if o.metrics != nil {
			o.metrics.RejectedTotal.Inc()
		}
		if err != nil && job.FirstError == "" {
			job.FirstError = err.Error()
		}
	}
}

func (o *Orchestrator) lockFor(sourceID string) *sync.Mutex {
	o.locksMu.Lock()
	defer o.locksMu.Unlock()
	l, ok := o.locks[sourceID]
	if !ok {
		l = &sync.Mutex{}
		o.locks[sourceID] = l
	}
	return l
}

func (o *Orchestrator) recordJob(sourceID string, job *types.ScrapeJob) {
	o.historyMu.Lock()
	defer o.historyMu.Unlock()
	ring, ok := o.history[sourceID]
	if !ok {
		ring = types.NewJobRing(o.cfg.Orchestrator.JobHistorySize)
		o.history[sourceID] = ring
	}
	ring.Push(job)
}

// Status aggregates breaker states, last-job outcomes, and running
// totals, exactly as SPEC_FULL.md §4.9 describes.
func (o *Orchestrator) Status() Status {
	o.historyMu.Lock()
	statuses := make([]SourceStatus, 0, len(o.sources))
	for id, src := range o.sources {
		ring := o.history[id]
		var last *types.ScrapeJob
		if ring != nil {
			last = ring.Last()
		}
		statuses = append(statuses, SourceStatus{
			Source:  *src,
			Breaker: o.breakers.Snapshot(id),
			LastJob: last,
		})
	}
	o.historyMu.Unlock()

	return Status{
		Sources:         statuses,
		TotalCandidates: o.counters.TotalCandidates.Load(),
		TotalAdmitted:   o.counters.TotalAdmitted.Load(),
		TotalRejected:   o.counters.TotalRejected.Load(),
	}
}

// RecentJobs returns the last N recorded jobs for sourceID, newest first.
func (o *Orchestrator) RecentJobs(sourceID string) []*types.ScrapeJob {
	o.historyMu.Lock()
	defer o.historyMu.Unlock()
	ring, ok := o.history[sourceID]
	if !ok {
		return nil
	}
	return ring.Recent()
}

// ResetBreakers forces every breaker back to CLOSED.
func (o *Orchestrator) ResetBreakers() {
	o.breakers.ResetAll()
}
