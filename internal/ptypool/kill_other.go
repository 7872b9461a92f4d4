//go:build !unix

package ptypool

import (
	"fmt"
	"os/exec"
)

// killPidBestEffort falls back to taskkill on non-unix platforms, per the
// design note that the pool's termination path has no signal equivalent
// there; best-effort only, errors are ignored.
func killPidBestEffort(pid int) {
	_ = exec.Command("taskkill", "/PID", fmt.Sprintf("%d", pid), "/T", "/F").Run()
}
