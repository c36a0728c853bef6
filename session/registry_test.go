package session

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/hupe1980/paymesh/core"
)

func TestRegistryCreateAndGet(t *testing.T) {
	r := NewRegistry()

	sess, err := r.Create(context.Background())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !strings.HasPrefix(sess.ID, "sess_") {
		t.Errorf("id %q should have sess_ prefix", sess.ID)
	}
	if len(sess.ID) != len("sess_")+16 {
		t.Errorf("id %q has wrong length", sess.ID)
	}
	if sess.Status() != core.StatusActive {
		t.Errorf("status = %q, want active", sess.Status())
	}

	got, err := r.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != sess {
		t.Error("Get should return the same session instance")
	}
}

func TestRegistryGetUnknown(t *testing.T) {
	r := NewRegistry()

	_, err := r.Get("sess_missing")
	if core.KindOf(err) != core.KindSessionNotFound {
		t.Fatalf("kind = %q, want session_not_found", core.KindOf(err))
	}
}

func TestRegistryCapacityEviction(t *testing.T) {
	r := NewRegistry(func(o *Options) { o.MaxSessions = 2 })

	ctx := context.Background()
	first, err := r.Create(ctx)
	if err != nil {
		t.Fatalf("Create first: %v", err)
	}
	second, err := r.Create(ctx)
	if err != nil {
		t.Fatalf("Create second: %v", err)
	}

	// Make the first session the least recently active.
	time.Sleep(5 * time.Millisecond)
	second.Touch()

	third, err := r.Create(ctx)
	if err != nil {
		t.Fatalf("Create third: %v", err)
	}

	if _, err := r.Get(first.ID); core.KindOf(err) != core.KindSessionNotFound {
		t.Errorf("first session should be evicted, got err %v", err)
	}
	if _, err := r.Get(second.ID); err != nil {
		t.Errorf("second session should survive: %v", err)
	}
	if _, err := r.Get(third.ID); err != nil {
		t.Errorf("third session should exist: %v", err)
	}
	if r.Len() != 2 {
		t.Errorf("Len = %d, want 2", r.Len())
	}
	if r.Stats().Evicted != 1 {
		t.Errorf("Evicted = %d, want 1", r.Stats().Evicted)
	}
}

func TestRegistryCapacityAllRunning(t *testing.T) {
	r := NewRegistry(func(o *Options) { o.MaxSessions = 1 })

	ctx := context.Background()
	sess, err := r.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := r.BeginTurn(sess.ID); err != nil {
		t.Fatalf("BeginTurn: %v", err)
	}

	_, err = r.Create(ctx)
	if core.KindOf(err) != core.KindCapacity {
		t.Fatalf("kind = %q, want capacity_exceeded", core.KindOf(err))
	}

	// Releasing the turn makes the session evictable again.
	r.EndTurn(sess.ID)
	if _, err := r.Create(ctx); err != nil {
		t.Fatalf("Create after EndTurn: %v", err)
	}
}

func TestRegistryLazyExpiry(t *testing.T) {
	r := NewRegistry(func(o *Options) { o.IdleTimeout = 20 * time.Millisecond })

	sess, err := r.Create(context.Background())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	_, err = r.Get(sess.ID)
	if core.KindOf(err) != core.KindSessionExpired {
		t.Fatalf("kind = %q, want session_expired", core.KindOf(err))
	}

	// The session is gone after the lazy expiry.
	_, err = r.Get(sess.ID)
	if core.KindOf(err) != core.KindSessionNotFound {
		t.Fatalf("kind = %q, want session_not_found", core.KindOf(err))
	}
	if r.Stats().Expired != 1 {
		t.Errorf("Expired = %d, want 1", r.Stats().Expired)
	}
}

func TestRegistryRunningSessionNeverExpires(t *testing.T) {
	r := NewRegistry(func(o *Options) { o.IdleTimeout = 10 * time.Millisecond })

	sess, err := r.Create(context.Background())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := r.BeginTurn(sess.ID); err != nil {
		t.Fatalf("BeginTurn: %v", err)
	}

	time.Sleep(30 * time.Millisecond)

	if n := r.Sweep(); n != 0 {
		t.Errorf("Sweep removed %d, want 0 while running", n)
	}
	if _, err := r.Get(sess.ID); err != nil {
		t.Errorf("running session must stay reachable: %v", err)
	}

	r.EndTurn(sess.ID)
	if _, err := r.Get(sess.ID); err != nil {
		t.Errorf("EndTurn refreshes activity, session should survive: %v", err)
	}
}

func TestRegistrySweep(t *testing.T) {
	r := NewRegistry(func(o *Options) { o.IdleTimeout = 10 * time.Millisecond })

	ctx := context.Background()
	running, err := r.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := r.Create(ctx); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := r.Create(ctx); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := r.BeginTurn(running.ID); err != nil {
		t.Fatalf("BeginTurn: %v", err)
	}

	time.Sleep(30 * time.Millisecond)

	if n := r.Sweep(); n != 2 {
		t.Errorf("Sweep removed %d, want 2", n)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}

func TestRegistryConcurrentTurn(t *testing.T) {
	r := NewRegistry()

	sess, err := r.Create(context.Background())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := r.BeginTurn(sess.ID); err != nil {
		t.Fatalf("first BeginTurn: %v", err)
	}
	if _, err := r.BeginTurn(sess.ID); core.KindOf(err) != core.KindConcurrentTurn {
		t.Fatalf("kind = %q, want concurrent_turn", core.KindOf(err))
	}

	r.EndTurn(sess.ID)
	if sess.Status() != core.StatusIdle {
		t.Errorf("status = %q, want idle after EndTurn", sess.Status())
	}
	if _, err := r.BeginTurn(sess.ID); err != nil {
		t.Fatalf("BeginTurn after EndTurn: %v", err)
	}
}

func TestRegistryBeginTurnUnknown(t *testing.T) {
	r := NewRegistry()

	_, err := r.BeginTurn("sess_missing")
	if core.KindOf(err) != core.KindSessionNotFound {
		t.Fatalf("kind = %q, want session_not_found", core.KindOf(err))
	}
}

func TestRegistryDeleteIdempotent(t *testing.T) {
	r := NewRegistry()

	sess, err := r.Create(context.Background())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	r.Delete(sess.ID)
	r.Delete(sess.ID)

	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

func TestRegistryStats(t *testing.T) {
	r := NewRegistry(func(o *Options) { o.MaxSessions = 10 })

	ctx := context.Background()
	a, _ := r.Create(ctx)
	b, _ := r.Create(ctx)
	if _, err := r.Create(ctx); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := r.BeginTurn(a.ID); err != nil {
		t.Fatalf("BeginTurn: %v", err)
	}
	r.EndTurn(b.ID) // no-op: b is active, not running

	if _, err := r.BeginTurn(b.ID); err != nil {
		t.Fatalf("BeginTurn: %v", err)
	}
	r.EndTurn(b.ID)

	stats := r.Stats()
	if stats.Total != 3 {
		t.Errorf("Total = %d, want 3", stats.Total)
	}
	if stats.Running != 1 {
		t.Errorf("Running = %d, want 1", stats.Running)
	}
	if stats.Idle != 1 {
		t.Errorf("Idle = %d, want 1", stats.Idle)
	}
	if stats.Active != 1 {
		t.Errorf("Active = %d, want 1", stats.Active)
	}
	if stats.Created != 3 {
		t.Errorf("Created = %d, want 3", stats.Created)
	}
	if stats.MaxSessions != 10 {
		t.Errorf("MaxSessions = %d, want 10", stats.MaxSessions)
	}
}

func TestRegistrySnapshotsOrder(t *testing.T) {
	r := NewRegistry()

	ctx := context.Background()
	older, _ := r.Create(ctx)
	newer, _ := r.Create(ctx)

	time.Sleep(5 * time.Millisecond)
	newer.Touch()

	snaps := r.Snapshots()
	if len(snaps) != 2 {
		t.Fatalf("len = %d, want 2", len(snaps))
	}
	if snaps[0].ID != newer.ID {
		t.Errorf("first snapshot = %s, want most recently active %s", snaps[0].ID, newer.ID)
	}
	if snaps[1].ID != older.ID {
		t.Errorf("second snapshot = %s, want %s", snaps[1].ID, older.ID)
	}
}

func TestRegistryJanitor(t *testing.T) {
	r := NewRegistry(func(o *Options) {
		o.IdleTimeout = 10 * time.Millisecond
		o.SweepInterval = 20 * time.Millisecond
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	if _, err := r.Create(ctx); err != nil {
		t.Fatalf("Create: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for r.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if r.Len() != 0 {
		t.Errorf("janitor did not remove the idle session, Len = %d", r.Len())
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestRegistryMaintenanceScheduleInvalid(t *testing.T) {
	r := NewRegistry(func(o *Options) { o.MaintenanceSchedule = "not a cron expr" })

	err := r.Start(context.Background())
	if core.KindOf(err) != core.KindConfiguration {
		t.Fatalf("kind = %q, want configuration_error", core.KindOf(err))
	}
}
