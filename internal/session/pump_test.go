//go:build unix

package session

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/trybotster/synkd/internal/ptypool"
)

func spawnPumpTestHandle(t *testing.T) *ptypool.Handle {
	t.Helper()
	cfg := ptypool.DefaultConfig()
	cfg.DefaultShell = "/bin/sh"
	cfg.InitialPoolSize = 1
	cfg.MaxPoolSize = 1
	cfg.MaxActive = 1
	cfg.WarmupDelay = 5 * time.Millisecond
	cfg.WarmupTimeout = 3 * time.Second
	pool := ptypool.New(cfg, zerolog.Nop())
	t.Cleanup(pool.Shutdown)

	h, err := pool.Claim("pump-test")
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	return h
}

func TestPumpForwardsOutputEvents(t *testing.T) {
	h := spawnPumpTestHandle(t)
	bus := NewBus()
	sb := ptypool.NewScrollback()
	p := newPump(1, h, sb, bus, zerolog.Nop())

	events, unsub := bus.Subscribe(16)
	defer unsub()

	p.Start()
	defer func() {
		p.Stop()
		p.Join()
	}()

	if err := h.WriteString("echo pump-marker\n"); err != nil {
		t.Fatalf("WriteString failed: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Output != nil && containsBytes(ev.Output.Data, "pump-marker") {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for pump-marker in output events")
		}
	}
}

func TestPumpFiltersDSRQueryBeforeEmittingOutput(t *testing.T) {
	h := spawnPumpTestHandle(t)
	bus := NewBus()
	sb := ptypool.NewScrollback()
	p := newPump(1, h, sb, bus, zerolog.Nop())

	events, unsub := bus.Subscribe(16)
	defer unsub()

	p.Start()
	defer func() {
		p.Stop()
		p.Join()
	}()

	// The query sits between "before" and "after" on one printf line, so
	// only filtered command output reads "beforeafter"; the shell's echo of
	// the typed command keeps the literal "\033[6n" text between them.
	if err := h.WriteString("printf 'before\\033[6nafter\\n'\n"); err != nil {
		t.Fatalf("WriteString failed: %v", err)
	}

	deadline := time.After(3 * time.Second)
	var seen []byte
	for {
		select {
		case ev := <-events:
			if ev.Output != nil {
				seen = append(seen, ev.Output.Data...)
				if containsBytes(seen, "beforeafter") {
					if containsBytes(seen, "\x1b[6n") {
						t.Fatalf("DSR query leaked into output events: %q", seen)
					}
					return
				}
			}
		case <-deadline:
			t.Fatalf("timed out waiting for before/after in output events, saw %q", seen)
		}
	}
}

func TestPumpEmitsExitEventOnEOF(t *testing.T) {
	h := spawnPumpTestHandle(t)
	bus := NewBus()
	sb := ptypool.NewScrollback()
	p := newPump(1, h, sb, bus, zerolog.Nop())

	events, unsub := bus.Subscribe(16)
	defer unsub()

	p.Start()

	if err := h.WriteString("exit\n"); err != nil {
		t.Fatalf("WriteString failed: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Exit != nil {
				if ev.Exit.ExitCode != -1 {
					t.Errorf("ExitCode = %d, want -1", ev.Exit.ExitCode)
				}
				p.Join()
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for exit event")
		}
	}
}

func containsBytes(haystack []byte, needle string) bool {
	n := len(needle)
	for i := 0; i+n <= len(haystack); i++ {
		if string(haystack[i:i+n]) == needle {
			return true
		}
	}
	return false
}
