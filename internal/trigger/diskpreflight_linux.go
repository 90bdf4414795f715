// SPDX-License-Identifier: MIT

//go:build linux

package trigger

import "syscall"

// checkDiskFree reports the free bytes available at path's mount and whether
// that meets requiredBytes, via the same Statfs call
// internal/diagnostics.Runner.checkDiskSpace uses.
func checkDiskFree(path string, requiredBytes int64) (freeBytes int64, ok bool, skipped bool, err error) {
	var stat syscall.Statfs_t
	if statErr := syscall.Statfs(path, &stat); statErr != nil {
		return 0, false, false, statErr
	}

	// #nosec G115 -- Bsize/Bavail are always non-negative on Linux filesystems
	free := int64(stat.Bavail) * int64(stat.Bsize)
	return free, free >= requiredBytes, false, nil
}
