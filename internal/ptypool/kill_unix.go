//go:build unix

package ptypool

import (
	"syscall"
	"time"
)

// killPidBestEffort sends SIGTERM then, after a short grace period, SIGKILL
// to pid, ignoring errors — used for shutdown's best-effort cleanup of pids
// the pool only knows by number (the owning Handle may already be gone).
// The 50ms gap mirrors process_pool.rs's shutdown grace sleep between the
// two signals.
func killPidBestEffort(pid int) {
	_ = syscall.Kill(pid, syscall.SIGTERM)
	time.Sleep(50 * time.Millisecond)
	_ = syscall.Kill(pid, syscall.SIGKILL)
}
