//go:build unix

package ptypool

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Config is an immutable snapshot of pool tuning knobs, taken under lock
// and then used outside it.
type Config struct {
	InitialPoolSize int
	MaxPoolSize     int
	MaxActive       int

	RecycleEnabled bool
	MaxPTYAge      time.Duration

	WarmupDelay         time.Duration
	WarmupTimeout       time.Duration
	RecycleReadyTimeout time.Duration
	RefillAfterClaimDelay time.Duration

	DefaultShell string
	DefaultRows  uint16
	DefaultCols  uint16
}

// DefaultConfig returns the pool defaults named in the spec.
func DefaultConfig() Config {
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/bash"
	}
	return Config{
		InitialPoolSize:       2,
		MaxPoolSize:           4,
		MaxActive:             12,
		RecycleEnabled:        true,
		MaxPTYAge:             30 * time.Minute,
		WarmupDelay:           100 * time.Millisecond,
		WarmupTimeout:         5 * time.Second,
		RecycleReadyTimeout:   2 * time.Second,
		RefillAfterClaimDelay: 100 * time.Millisecond,
		DefaultShell:          shell,
		DefaultRows:           24,
		DefaultCols:           80,
	}
}

// Stats is the read-only snapshot returned by debug_pool_stats.
type Stats struct {
	Idle         int
	Active       int
	SpawningIdle int
}

// Pool owns a bounded set of warm idle PTY handles and an accounting table
// of active claims. All mutations are serialized through mu; long-running
// work (spawn, readiness wait, kill) happens outside the lock.
type Pool struct {
	mu sync.Mutex

	idle    []*Handle
	active  map[string]int // session key -> pid (0 if unknown)
	config  Config
	spawningIdle int

	fatal atomic.Bool
	log   zerolog.Logger
}

// New constructs a pool with the given config. Callers should follow with
// WarmupInBackground to populate the idle deque.
func New(cfg Config, log zerolog.Logger) *Pool {
	return &Pool{
		idle:   make([]*Handle, 0, cfg.MaxPoolSize),
		active: make(map[string]int),
		config: cfg,
		log:    log.With().Str("component", "ptypool").Logger(),
	}
}

// withRecover runs fn under the pool lock, recovering any panic by marking
// the pool fatal and re-panicking — this is the Go-idiomatic stand-in for
// "poisoned mutex recovery": a corrupted critical section taints the whole
// instance rather than silently continuing.
func (p *Pool) withRecover(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.fatal.Store(true)
			p.log.Error().Interface("panic", r).Msg("pool lock critical section panicked; pool marked fatal")
			panic(r)
		}
	}()
	fn()
}

func (p *Pool) checkFatal() error {
	if p.fatal.Load() {
		return newErr(KindInternalFatal, "pool is in a fatal state after a prior internal panic", nil)
	}
	return nil
}

// Stats returns idle/active/spawning-idle counts.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Idle: len(p.idle), Active: len(p.active), SpawningIdle: p.spawningIdle}
}

// MaxActive is a read-only accessor for the Session Manager.
func (p *Pool) MaxActive() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.config.MaxActive
}

// Reconfigure swaps the config in place; affects future spawns and refills
// only, never retroactively killing existing handles.
func (p *Pool) Reconfigure(cfg Config) {
	if p.checkFatal() != nil {
		return
	}
	p.mu.Lock()
	p.config = cfg
	p.mu.Unlock()
}

func (p *Pool) snapshotConfig() Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.config
}

func (p *Pool) spawnAndWarm(cfg Config, tokenPrefix string) (*Handle, error) {
	h, err := spawnShellPTY(cfg.DefaultShell, loginArgForShell(cfg.DefaultShell), cfg.DefaultRows, cfg.DefaultCols, os.Environ(), p.log)
	if err != nil {
		return nil, err
	}
	token := nextUniqueToken(tokenPrefix)
	if err := h.WarmToIdle(token, cfg.WarmupTimeout); err != nil {
		h.Kill(3 * time.Second)
		return nil, err
	}
	return h, nil
}

// WarmupInBackground spawns handles one at a time up to InitialPoolSize on
// a worker goroutine, pacing spawns by WarmupDelay. If the idle deque is
// already full when a spawn completes, the excess handle is killed rather
// than leaked. Non-fatal errors are logged and do not abort the loop.
func (p *Pool) WarmupInBackground() {
	go func() {
		cfg := p.snapshotConfig()
		for i := 0; i < cfg.InitialPoolSize; i++ {
			if i > 0 {
				time.Sleep(cfg.WarmupDelay)
			}
			h, err := p.spawnAndWarm(cfg, fmt.Sprintf("warm%d", i))
			if err != nil {
				p.log.Warn().Err(err).Msg("warmup spawn failed")
				continue
			}

			var full bool
			p.withRecover(func() {
				p.mu.Lock()
				defer p.mu.Unlock()
				if len(p.idle) >= cfg.MaxPoolSize {
					full = true
					return
				}
				p.idle = append(p.idle, h)
			})
			if full {
				h.Kill(3 * time.Second)
			}
		}
	}()
}

// Claim allocates a PTY for sessionKey, preferring a warm idle handle.
func (p *Pool) Claim(sessionKey string) (*Handle, error) {
	if err := p.checkFatal(); err != nil {
		return nil, err
	}

	var found *Handle
	var failErr error

	p.withRecover(func() {
		p.mu.Lock()
		defer p.mu.Unlock()

		if _, exists := p.active[sessionKey]; exists {
			failErr = newErr(KindDuplicate, sessionKey, nil)
			return
		}
		if len(p.active) >= p.config.MaxActive {
			failErr = newErr(KindCapacity, sessionKey, nil)
			return
		}

		for len(p.idle) > 0 {
			h := p.idle[0]
			p.idle = p.idle[1:]
			if h.Age() > p.config.MaxPTYAge {
				go h.Kill(3 * time.Second)
				continue
			}
			found = h
			break
		}

		if found != nil {
			found.setState(StateActive)
			p.active[sessionKey] = found.Pid()
		}
	})

	if failErr != nil {
		return nil, failErr
	}

	if found == nil {
		cfg := p.snapshotConfig()
		h, err := p.spawnAndWarm(cfg, "claim")
		if err != nil {
			return nil, err
		}
		h.setState(StateActive)

		p.withRecover(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.active[sessionKey] = h.Pid()
		})
		found = h
	}

	p.scheduleRefillIfNeeded()
	return found, nil
}

// Release returns handle to the pool: recycled to Idle on success, killed
// otherwise. Never fails the caller, except that a pool already marked
// fatal skips recycling and just kills the handle.
func (p *Pool) Release(sessionKey string, h *Handle) {
	if p.checkFatal() != nil {
		h.Kill(3 * time.Second)
		return
	}
	p.releaseOrRecycle(sessionKey, h, false)
}

// Recycle is an alias for Release that always attempts recycling
// regardless of RecycleEnabled (the spec's "force" parameter).
func (p *Pool) Recycle(sessionKey string, h *Handle) {
	if p.checkFatal() != nil {
		h.Kill(3 * time.Second)
		return
	}
	p.releaseOrRecycle(sessionKey, h, true)
}

func (p *Pool) releaseOrRecycle(sessionKey string, h *Handle, force bool) {
	cfg := p.detachAccounting(sessionKey)
	p.releaseDetached(h, cfg, force)
}

func (p *Pool) detachAccounting(sessionKey string) Config {
	var cfg Config
	p.withRecover(func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.active, sessionKey)
		cfg = p.config
	})
	return cfg
}

// DetachActive atomically removes sessionKey from the active map and
// returns a config snapshot for later use by a restart's old-handle
// cleanup.
func (p *Pool) DetachActive(sessionKey string) Config {
	return p.detachAccounting(sessionKey)
}

// ReleaseDetached runs the recycle-or-kill decision outside the lock using
// a previously captured config snapshot.
func (p *Pool) ReleaseDetached(h *Handle, cfg Config, force bool) {
	p.releaseDetached(h, cfg, force)
}

func (p *Pool) releaseDetached(h *Handle, cfg Config, force bool) {
	if (cfg.RecycleEnabled || force) && h.Age() < cfg.MaxPTYAge {
		token := nextUniqueToken("recycle")
		if err := h.RecycleToIdle(token, cfg.RecycleReadyTimeout); err == nil {
			var full bool
			p.withRecover(func() {
				p.mu.Lock()
				defer p.mu.Unlock()
				if len(p.idle) >= p.config.MaxPoolSize {
					full = true
					return
				}
				p.idle = append(p.idle, h)
			})
			if full {
				h.Kill(3 * time.Second)
			}
			p.scheduleRefillIfNeeded()
			return
		}
	}
	h.Kill(3 * time.Second)
	p.scheduleRefillIfNeeded()
}

// AttachActive re-inserts sessionKey into the active map, used by restart's
// claim-failure rollback path.
func (p *Pool) AttachActive(sessionKey string, pid int) {
	p.withRecover(func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.active[sessionKey] = pid
	})
}

// scheduleRefillIfNeeded spawns a worker goroutine to top the idle deque
// back up to desired = min(InitialPoolSize, MaxPoolSize), collapsing bursts
// of claims via RefillAfterClaimDelay and spawningIdle bookkeeping.
func (p *Pool) scheduleRefillIfNeeded() {
	var shouldSpawn bool
	var cfg Config

	p.withRecover(func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		cfg = p.config
		desired := cfg.InitialPoolSize
		if cfg.MaxPoolSize < desired {
			desired = cfg.MaxPoolSize
		}
		if len(p.idle)+p.spawningIdle >= desired {
			return
		}
		p.spawningIdle++
		shouldSpawn = true
	})

	if !shouldSpawn {
		return
	}

	go func() {
		time.Sleep(cfg.RefillAfterClaimDelay)
		h, err := p.spawnAndWarm(cfg, "refill")

		var full bool
		p.withRecover(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.spawningIdle--
			if err != nil {
				return
			}
			desired := p.config.InitialPoolSize
			if p.config.MaxPoolSize < desired {
				desired = p.config.MaxPoolSize
			}
			if len(p.idle) >= desired || len(p.idle) >= p.config.MaxPoolSize {
				full = true
				return
			}
			p.idle = append(p.idle, h)
		})

		if err != nil {
			p.log.Warn().Err(err).Msg("refill spawn failed")
			return
		}
		if full {
			h.Kill(3 * time.Second)
		}
	}()
}

// Shutdown drains idle and active under lock, then kills all idle handles
// and best-effort signals all known active pids. Does not wait for
// sessions' output pumps; that is the Session Manager's job.
func (p *Pool) Shutdown() {
	if p.checkFatal() != nil {
		p.log.Error().Msg("pool already fatal; shutdown proceeds on a best-effort basis")
	}

	var idle []*Handle
	var activePids []int

	p.withRecover(func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		idle = p.idle
		p.idle = nil
		for _, pid := range p.active {
			if pid != 0 {
				activePids = append(activePids, pid)
			}
		}
		p.active = make(map[string]int)
	})

	for _, h := range idle {
		h.Kill(3 * time.Second)
	}
	for _, pid := range activePids {
		killPidBestEffort(pid)
	}
}

// DebugRoundtrip claims a throwaway key, writes a canary marker, waits up
// to 2s via waitForReady, then releases. Used as a health check. The wait
// ends on the marker or on a prompt-looking tail, whichever is seen first,
// so success does not prove the marker itself was read back; the returned
// string is the marker that was written, not captured output.
func (p *Pool) DebugRoundtrip() (string, error) {
	key := nextUniqueToken("debug-roundtrip-key")
	h, err := p.Claim(key)
	if err != nil {
		return "", err
	}
	defer p.Release(key, h)

	token := nextUniqueToken("echo")
	marker := "__SYNK_ECHO__:" + token
	if err := h.WriteString(fmt.Sprintf("echo %s\n", marker)); err != nil {
		return "", err
	}
	if err := h.waitForReady(marker, 2*time.Second); err != nil {
		return "", err
	}
	return marker, nil
}
