//go:build unix

package ptypool

import (
	"testing"
	"time"
)

func testPoolConfig() Config {
	cfg := DefaultConfig()
	cfg.DefaultShell = "/bin/sh"
	cfg.InitialPoolSize = 2
	cfg.MaxPoolSize = 2
	cfg.MaxActive = 2
	cfg.WarmupDelay = 5 * time.Millisecond
	cfg.WarmupTimeout = 3 * time.Second
	cfg.RecycleReadyTimeout = 2 * time.Second
	cfg.RefillAfterClaimDelay = 5 * time.Millisecond
	cfg.MaxPTYAge = time.Hour
	return cfg
}

func TestClaimReturnsWarmHandleAfterWarmup(t *testing.T) {
	p := New(testPoolConfig(), testLogger())
	p.WarmupInBackground()
	time.Sleep(300 * time.Millisecond)

	h, err := p.Claim("session-1")
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	defer p.Release("session-1", h)

	if h.State() != StateActive {
		t.Errorf("State() = %q, want %q", h.State(), StateActive)
	}
}

func TestClaimRejectsDuplicateKey(t *testing.T) {
	p := New(testPoolConfig(), testLogger())

	h, err := p.Claim("dup")
	if err != nil {
		t.Fatalf("first Claim failed: %v", err)
	}
	defer p.Release("dup", h)

	_, err = p.Claim("dup")
	if err == nil {
		t.Fatal("second Claim with same key succeeded, want ErrDuplicate")
	}
	if kind, _ := KindOf(err); kind != KindDuplicate {
		t.Errorf("kind = %q, want %q", kind, KindDuplicate)
	}
}

func TestClaimOverCapacityReportsCapacityError(t *testing.T) {
	cfg := testPoolConfig()
	cfg.MaxActive = 2
	p := New(cfg, testLogger())

	h1, err := p.Claim("s1")
	if err != nil {
		t.Fatalf("Claim s1 failed: %v", err)
	}
	defer p.Release("s1", h1)

	h2, err := p.Claim("s2")
	if err != nil {
		t.Fatalf("Claim s2 failed: %v", err)
	}
	defer p.Release("s2", h2)

	_, err = p.Claim("s3")
	if err == nil {
		t.Fatal("Claim beyond max_active succeeded, want ErrCapacity")
	}
	if kind, _ := KindOf(err); kind != KindCapacity {
		t.Errorf("kind = %q, want %q", kind, KindCapacity)
	}

	stats := p.Stats()
	if stats.Active != 2 {
		t.Errorf("stats.Active = %d, want 2", stats.Active)
	}
}

func TestStaleHandleNeverHandedOutByClaimSkipsAndRespawns(t *testing.T) {
	cfg := testPoolConfig()
	cfg.MaxPTYAge = 0 // every idle handle is immediately "stale"
	p := New(cfg, testLogger())
	p.WarmupInBackground()
	time.Sleep(300 * time.Millisecond)

	h, err := p.Claim("fresh")
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	defer p.Release("fresh", h)

	if h.Age() > time.Second {
		t.Errorf("claimed handle's age = %v, want a freshly spawned handle", h.Age())
	}
}

func TestReleaseRecyclesWithinPoolSizeBound(t *testing.T) {
	cfg := testPoolConfig()
	cfg.InitialPoolSize = 2
	cfg.MaxPoolSize = 2
	cfg.RecycleEnabled = true
	p := New(cfg, testLogger())
	p.WarmupInBackground()
	time.Sleep(400 * time.Millisecond)

	h, err := p.Claim("recycled")
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	p.Release("recycled", h)

	deadline := time.Now().Add(cfg.RecycleReadyTimeout + 500*time.Millisecond)
	for time.Now().Before(deadline) {
		if p.Stats().Idle >= 2 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	if stats := p.Stats(); stats.Idle > cfg.MaxPoolSize {
		t.Errorf("Stats().Idle = %d, want <= %d", stats.Idle, cfg.MaxPoolSize)
	}
}

func TestShutdownDrainsIdleAndActive(t *testing.T) {
	p := New(testPoolConfig(), testLogger())
	p.WarmupInBackground()
	time.Sleep(300 * time.Millisecond)

	if _, err := p.Claim("active-1"); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}

	p.Shutdown()

	stats := p.Stats()
	if stats.Idle != 0 || stats.Active != 0 {
		t.Errorf("Stats() after shutdown = %+v, want idle=0 active=0", stats)
	}
}

func TestDebugRoundtripEchoesMarker(t *testing.T) {
	p := New(testPoolConfig(), testLogger())

	marker, err := p.DebugRoundtrip()
	if err != nil {
		t.Fatalf("DebugRoundtrip failed: %v", err)
	}
	if marker == "" {
		t.Error("DebugRoundtrip returned empty marker")
	}
}
