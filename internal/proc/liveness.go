package proc

import (
	"github.com/shirou/gopsutil/v4/process"
)

// Liveness reports whether a process ID refers to a live process.
// The coordinator depends on this interface so tests can substitute
// deterministic fakes for the host process table.
type Liveness interface {
	IsAlive(pid int) bool
}

// Checker probes the host process table via gopsutil.
//
// gopsutil abstracts the platform differences (kill(0) semantics on
// Unix, handle queries on Windows) behind a single existence check,
// so devport carries no per-OS liveness code of its own.
type Checker struct{}

// NewChecker creates a new Checker instance.
func NewChecker() *Checker {
	return &Checker{}
}

var _ Liveness = (*Checker)(nil)

// IsAlive reports whether the process with the given ID exists.
// Non-positive pids are never alive. A probe error is treated as
// "not alive" so that stale leases are reclaimed rather than leaked.
func (c *Checker) IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	exists, err := process.PidExists(int32(pid))
	if err != nil {
		return false
	}
	return exists
}
