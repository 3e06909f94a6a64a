// Package breaker implements a per-source circuit breaker that shields
// a struggling upstream from repeated scrape attempts (SPEC_FULL.md §4.3).
package breaker

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/scholargate/scholargate/internal/types"
)

// State is a circuit breaker's current position.
type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half-open"
)

// breakerData holds one source's breaker bookkeeping, mirroring the
// cache-map-of-per-domain-data shape used for robots.txt caching.
type breakerData struct {
	state            State
	consecutiveFails int
	openedAt         time.Time
}

// Registry tracks one breaker per source ID.
type Registry struct {
	mu               sync.RWMutex
	entries          map[string]*breakerData
	failureThreshold int
	cooldown         time.Duration

	stateGauge *prometheus.GaugeVec
}

// NewRegistry builds a Registry. threshold consecutive failures opens
// a source's breaker; it stays open for cooldown before allowing one
// half-open probe.
func NewRegistry(threshold int, cooldown time.Duration, reg prometheus.Registerer) *Registry {
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "scholargate",
		Subsystem: "breaker",
		Name:      "state",
		Help:      "Circuit breaker state per source (0=closed, 1=half-open, 2=open).",
	}, []string{"source_id"})
	if reg != nil {
		reg.MustRegister(gauge)
	}

	return &Registry{
		entries:          make(map[string]*breakerData),
		failureThreshold: threshold,
		cooldown:         cooldown,
		stateGauge:       gauge,
	}
}

// Allow reports whether sourceID's breaker currently permits a new
// scrape attempt. A CLOSED breaker always allows. An OPEN breaker
// allows only after the cooldown elapses, at which point it flips to
// HALF_OPEN. A HALF_OPEN breaker allows every attempt until
// RecordSuccess or RecordFailure moves it out of that state; it does
// not limit itself to a single probe.
func (r *Registry) Allow(sourceID string) (bool, types.BreakerState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.entryLocked(sourceID)
	switch e.state {
	case Closed:
		return true, r.snapshotLocked(sourceID, e)
	case HalfOpen:
		return true, r.snapshotLocked(sourceID, e)
	case Open:
		if time.Since(e.openedAt) >= r.cooldown {
			e.state = HalfOpen
			r.setGauge(sourceID, e.state)
			return true, r.snapshotLocked(sourceID, e)
		}
		return false, r.snapshotLocked(sourceID, e)
	}
	return true, r.snapshotLocked(sourceID, e)
}

// RecordSuccess closes the breaker and resets its failure counter.
func (r *Registry) RecordSuccess(sourceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.entryLocked(sourceID)
	e.state = Closed
	e.consecutiveFails = 0
	r.setGauge(sourceID, e.state)
}

// RecordFailure increments the failure counter. In CLOSED state it
// opens the breaker once the threshold is reached; in HALF_OPEN state
// a single failure reopens it immediately.
func (r *Registry) RecordFailure(sourceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.entryLocked(sourceID)
	switch e.state {
	case HalfOpen:
		e.state = Open
		e.openedAt = time.Now()
	case Closed:
		e.consecutiveFails++
		if e.consecutiveFails >= r.failureThreshold {
			e.state = Open
			e.openedAt = time.Now()
		}
	case Open:
		// already open, nothing to do
	}
	r.setGauge(sourceID, e.state)
}

// Reset forces sourceID's breaker back to CLOSED, used by the admin
// reset operation.
func (r *Registry) Reset(sourceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.entryLocked(sourceID)
	e.state = Closed
	e.consecutiveFails = 0
	e.openedAt = time.Time{}
	r.setGauge(sourceID, e.state)
}

// ResetAll forces every known breaker back to CLOSED.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, e := range r.entries {
		e.state = Closed
		e.consecutiveFails = 0
		e.openedAt = time.Time{}
		r.setGauge(id, e.state)
	}
}

// Snapshot returns a read-only view of sourceID's breaker.
func (r *Registry) Snapshot(sourceID string) types.BreakerState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[sourceID]
	if !ok {
		return types.BreakerState{SourceID: sourceID, State: string(Closed)}
	}
	return r.snapshotLocked(sourceID, e)
}

// SnapshotAll returns every known breaker's state.
func (r *Registry) SnapshotAll() []types.BreakerState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.BreakerState, 0, len(r.entries))
	for id, e := range r.entries {
		out = append(out, r.snapshotLocked(id, e))
	}
	return out
}

func (r *Registry) entryLocked(sourceID string) *breakerData {
	e, ok := r.entries[sourceID]
	if !ok {
		e = &breakerData{state: Closed}
		r.entries[sourceID] = e
	}
	return e
}

func (r *Registry) snapshotLocked(sourceID string, e *breakerData) types.BreakerState {
	return types.BreakerState{
		SourceID:         sourceID,
		State:            string(e.state),
		ConsecutiveFails: e.consecutiveFails,
		OpenedAt:         e.openedAt,
	}
}

func (r *Registry) setGauge(sourceID string, s State) {
	var v float64
	switch s {
	case Closed:
		v = 0
	case HalfOpen:
		v = 1
	case Open:
		v = 2
	}
	r.stateGauge.WithLabelValues(sourceID).Set(v)
}
