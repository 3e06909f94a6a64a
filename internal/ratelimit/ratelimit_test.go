package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/scholargate/scholargate/internal/config"
)

func testConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		GlobalFloor: time.Millisecond,
		Buckets: []config.RateLimitBucket{
			{Suffix: ".gov.in", Spec: config.RateLimitBucketSpec{MinSpacing: 50 * time.Millisecond, Concurrency: 1}},
			{Suffix: ".ac.in", Spec: config.RateLimitBucketSpec{MinSpacing: 20 * time.Millisecond, Concurrency: 2}},
		},
		Default: config.RateLimitBucketSpec{MinSpacing: 5 * time.Millisecond, Concurrency: 2},
	}
}

func TestSpecForLongestSuffixWins(t *testing.T) {
	l := New(testConfig())

	spec := l.specFor("scholarships.ac.in")
	if spec.MinSpacing != 20*time.Millisecond {
		t.Errorf("expected .ac.in bucket, got spacing %v", spec.MinSpacing)
	}

	spec = l.specFor("unknown.example.com")
	if spec.MinSpacing != 5*time.Millisecond {
		t.Errorf("expected default bucket, got spacing %v", spec.MinSpacing)
	}
}

func TestAcquireEnforcesMinSpacing(t *testing.T) {
	l := New(testConfig())
	ctx := context.Background()

	start := time.Now()
	release, err := l.Acquire(ctx, "example.gov.in")
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	release()

	release, err = l.Acquire(ctx, "example.gov.in")
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	release()
	elapsed := time.Since(start)

	if elapsed < 50*time.Millisecond {
		t.Errorf("expected second acquire to wait out the .gov.in spacing, elapsed %v", elapsed)
	}
}

func TestAcquireRespectsContextCancellation(t *testing.T) {
	l := New(testConfig())
	ctx, cancel := context.WithCancel(context.Background())

	release, err := l.Acquire(ctx, "slow.gov.in")
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	defer release()

	cancel()
	if _, err := l.Acquire(ctx, "slow.gov.in"); err == nil {
		t.Error("expected cancelled context to abort Acquire")
	}
}
