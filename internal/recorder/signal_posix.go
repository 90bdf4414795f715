// SPDX-License-Identifier: MIT

//go:build !windows

package recorder

import (
	"os"
	"syscall"
)

// sendTerminate sends SIGTERM so the capture binary can finalise its
// container before exiting.
func sendTerminate(proc *os.Process) error {
	return proc.Signal(syscall.SIGTERM)
}
