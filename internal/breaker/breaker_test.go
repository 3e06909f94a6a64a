package breaker

import (
	"testing"
	"time"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	r := NewRegistry(3, 50*time.Millisecond, nil)

	for i := 0; i < 2; i++ {
		allow, _ := r.Allow("src-a")
		if !allow {
			t.Fatalf("expected allow before threshold reached (i=%d)", i)
		}
		r.RecordFailure("src-a")
	}

	allow, snap := r.Allow("src-a")
	if !allow {
		t.Fatalf("breaker should still allow before the 3rd failure")
	}
	r.RecordFailure("src-a")

	allow, snap = r.Allow("src-a")
	if allow {
		t.Errorf("breaker should be open after 3 consecutive failures")
	}
	if snap.State != string(Open) {
		t.Errorf("expected state open, got %s", snap.State)
	}
}

func TestBreakerHalfOpenAfterCooldown(t *testing.T) {
	r := NewRegistry(1, 10*time.Millisecond, nil)

	r.RecordFailure("src-b")
	allow, _ := r.Allow("src-b")
	if allow {
		t.Fatalf("breaker should be open immediately after threshold failure")
	}

	time.Sleep(20 * time.Millisecond)

	allow, snap := r.Allow("src-b")
	if !allow {
		t.Errorf("breaker should allow one probe after cooldown")
	}
	if snap.State != string(HalfOpen) {
		t.Errorf("expected half-open state, got %s", snap.State)
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	r := NewRegistry(1, 10*time.Millisecond, nil)
	r.RecordFailure("src-c")
	time.Sleep(15 * time.Millisecond)
	r.Allow("src-c") // transitions to half-open

	r.RecordFailure("src-c")
	allow, snap := r.Allow("src-c")
	if allow {
		t.Errorf("a failed probe should reopen the breaker immediately")
	}
	if snap.State != string(Open) {
		t.Errorf("expected state open after failed probe, got %s", snap.State)
	}
}

func TestBreakerSuccessCloses(t *testing.T) {
	r := NewRegistry(2, time.Minute, nil)
	r.RecordFailure("src-d")
	r.RecordSuccess("src-d")

	snap := r.Snapshot("src-d")
	if snap.State != string(Closed) {
		t.Errorf("expected closed after success, got %s", snap.State)
	}
	if snap.ConsecutiveFails != 0 {
		t.Errorf("expected failure counter reset, got %d", snap.ConsecutiveFails)
	}
}

func TestResetAll(t *testing.T) {
	r := NewRegistry(1, time.Minute, nil)
	r.RecordFailure("src-e")
	if allow, _ := r.Allow("src-e"); allow {
		t.Fatalf("expected breaker open before reset")
	}

	r.ResetAll()
	if allow, snap := r.Allow("src-e"); !allow || snap.State != string(Closed) {
		t.Errorf("expected breaker closed after ResetAll, got allow=%v state=%s", allow, snap.State)
	}
}
