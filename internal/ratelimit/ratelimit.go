// Package ratelimit paces outbound requests per domain so the
// orchestrator never hammers a source faster than its configured
// politeness policy allows (SPEC_FULL.md §4.2).
package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/scholargate/scholargate/internal/config"
)

// domainTiming bookkeeps the last fetch time for one domain, mirroring
// the hostTiming shape used for per-host pacing in comparable crawler
// rate limiters.
type domainTiming struct {
	mu       sync.Mutex
	lastSent time.Time
	sem      *semaphore.Weighted
	spacing  time.Duration
}

// Limiter enforces a per-domain minimum spacing and concurrency cap,
// plus a single global floor across all domains combined.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*domainTiming
	buckets []config.RateLimitBucket
	def     config.RateLimitBucketSpec
	global  *rate.Limiter
}

// New builds a Limiter from the configured bucket table. The global
// floor is enforced with golang.org/x/time/rate; per-domain spacing
// and concurrency are enforced with a bespoke mutex-guarded entry plus
// golang.org/x/sync/semaphore.
func New(cfg config.RateLimitConfig) *Limiter {
	floor := cfg.GlobalFloor
	if floor <= 0 {
		floor = time.Second
	}
	return &Limiter{
		entries: make(map[string]*domainTiming),
		buckets: cfg.Buckets,
		def:     cfg.Default,
		global:  rate.NewLimiter(rate.Every(floor), 1),
	}
}

// Acquire blocks until a request to domain is permitted under both
// the global floor and the domain's own policy, then reserves one of
// that domain's concurrency slots. The returned release func must be
// called exactly once, after the request completes, to free the slot.
func (l *Limiter) Acquire(ctx context.Context, domain string) (release func(), err error) {
	if err := l.global.Wait(ctx); err != nil {
		return nil, err
	}

	entry := l.entryFor(domain)

	if err := entry.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	entry.mu.Lock()
	wait := entry.spacing - time.Since(entry.lastSent)
	entry.mu.Unlock()

	if wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			entry.sem.Release(1)
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	entry.mu.Lock()
	entry.lastSent = time.Now()
	entry.mu.Unlock()

	return func() { entry.sem.Release(1) }, nil
}

func (l *Limiter) entryFor(domain string) *domainTiming {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.entries[domain]; ok {
		return e
	}
	spec := l.specFor(domain)
	e := &domainTiming{
		sem:     semaphore.NewWeighted(int64(spec.Concurrency)),
		spacing: spec.MinSpacing,
	}
	l.entries[domain] = e
	return e
}

// specFor returns the bucket policy matching domain's suffix, falling
// back to the default policy. Matching is longest-suffix-wins so a
// more specific suffix (".ac.in") beats a shorter one if both match.
func (l *Limiter) specFor(domain string) config.RateLimitBucketSpec {
	best := l.def
	bestLen := -1
	for _, b := range l.buckets {
		if strings.HasSuffix(domain, b.Suffix) && len(b.Suffix) > bestLen {
			best = b.Spec
			bestLen = len(b.Suffix)
		}
	}
	return best
}
