// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package ioqueue

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
)

// LogicalCPUCount returns the number of logical CPUs visible to the
// process, sampled via gopsutil rather than runtime.NumCPU so it
// reflects container cgroup limits. Falls back to runtime.NumCPU on any
// gopsutil error (e.g. a sandboxed /proc).
func LogicalCPUCount() int {
	n, err := cpu.Counts(true)
	if err != nil || n < 1 {
		return runtime.NumCPU()
	}
	return n
}

// DefaultWorkerCount returns 2x the logical CPU count, the default
// worker pool size and accept backlog multiplier.
func DefaultWorkerCount() int {
	return 2 * LogicalCPUCount()
}
