package clock

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/scholargate/scholargate/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func TestClockFiresOnInterval(t *testing.T) {
	var fires atomic.Int64
	src := &types.Source{ID: "s1", Priority: types.PriorityHigh}
	c := New([]*types.Source{src}, 20*time.Millisecond, time.Hour, func(_ context.Context, id string) {
		if id == "s1" {
			fires.Add(1)
		}
	}, testLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Stop()

	time.Sleep(100 * time.Millisecond)
	if fires.Load() < 2 {
		t.Errorf("expected at least 2 fires in 100ms on a 20ms interval, got %d", fires.Load())
	}
}

func TestTriggerNowCoalescesOverlapping(t *testing.T) {
	var running sync.WaitGroup
	var calls atomic.Int64
	release := make(chan struct{})

	c := New(nil, time.Hour, time.Hour, func(_ context.Context, id string) {
		calls.Add(1)
		running.Done()
		<-release
	}, testLogger)

	running.Add(1)
	go c.TriggerNow(context.Background(), "src")
	running.Wait() // first trigger is now blocked inside the handler

	// Second trigger while the first is in flight must be dropped.
	c.TriggerNow(context.Background(), "src")

	close(release)
	time.Sleep(20 * time.Millisecond)

	if calls.Load() != 1 {
		t.Errorf("expected exactly 1 call due to coalescing, got %d", calls.Load())
	}
}

func TestTriggerNowAllowsSequentialCalls(t *testing.T) {
	var calls atomic.Int64
	c := New(nil, time.Hour, time.Hour, func(_ context.Context, id string) {
		calls.Add(1)
	}, testLogger)

	c.TriggerNow(context.Background(), "src")
	c.TriggerNow(context.Background(), "src")

	if calls.Load() != 2 {
		t.Errorf("expected 2 sequential calls to both run, got %d", calls.Load())
	}
}
