// Package clock fires periodic per-source triggers on a tiered
// schedule, coalescing overlapping triggers for the same source
// (SPEC_FULL.md §4.1). It is grounded on the teacher's autoCheckpoint
// ticker-select loop in internal/engine/engine.go, generalized to one
// ticker per source instead of one ticker for the whole engine.
package clock

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/scholargate/scholargate/internal/types"
)

// Trigger is called when a source's periodic interval elapses or
// TriggerNow is invoked. The source counts as in flight until Trigger
// returns, so overlapping triggers are coalesced only while the
// callback itself is running.
type Trigger func(ctx context.Context, sourceID string)

// Clock fires one periodic trigger per configured source, overridden
// by the source's own interval when set, falling back to its priority
// tier's default otherwise.
type Clock struct {
	sources     []*types.Source
	highTier    time.Duration
	stdTier     time.Duration
	trigger     Trigger
	logger      *slog.Logger
	inFlight    sync.Map // sourceID -> struct{}
	started     atomic.Bool
	stopOnce    sync.Once
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

// New builds a Clock. trigger is invoked from a dedicated goroutine
// per source whenever that source's tick fires and no trigger for it
// is already in flight.
func New(sources []*types.Source, highTier, stdTier time.Duration, trigger Trigger, logger *slog.Logger) *Clock {
	return &Clock{
		sources:  sources,
		highTier: highTier,
		stdTier:  stdTier,
		trigger:  trigger,
		logger:   logger.With("component", "clock"),
		stopCh:   make(chan struct{}),
	}
}

// Start launches one ticker goroutine per source. Idempotent — a
// second call is a no-op while the clock is already running.
func (c *Clock) Start(ctx context.Context) {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	for _, src := range c.sources {
		interval := src.EffectiveInterval(c.highTier, c.stdTier)
		c.wg.Add(1)
		go c.fireLoop(ctx, src.ID, interval)
	}
}

// Stop halts all ticker goroutines and waits for them to exit.
func (c *Clock) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

func (c *Clock) fireLoop(ctx context.Context, sourceID string, interval time.Duration) {
	defer c.wg.Done()
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.TriggerNow(ctx, sourceID)
		}
	}
}

// TriggerNow fires an ad-hoc trigger for sourceID immediately,
// coalescing with any trigger already in flight for it — additional
// triggers for a busy source are dropped and logged rather than
// queued, per SPEC_FULL.md §4.1.
func (c *Clock) TriggerNow(ctx context.Context, sourceID string) {
	if _, already := c.inFlight.LoadOrStore(sourceID, struct{}{}); already {
		c.logger.Info("dropped overlapping trigger", "source_id", sourceID)
		return
	}
	defer c.inFlight.Delete(sourceID)
	c.trigger(ctx, sourceID)
}
