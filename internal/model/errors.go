package model

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the three surfaced failure kinds of an acquire.
// Use errors.Is against these; the typed errors below wrap them and
// carry the context needed to act on the failure.
//
// The fourth failure kind of the registry — a corrupt persisted file —
// is deliberately absent: it is recovered internally by treating the
// registry as empty and is never surfaced to callers.
var (
	// ErrLockTimeout means the registry lock could not be acquired
	// within the configured bound. The registry was not read or
	// modified; the caller may retry.
	ErrLockTimeout = errors.New("registry lock timeout")

	// ErrAlreadyRunning means the project's existing lease is owned
	// by processes that are still alive on both ports. Starting a
	// second session for the same project is refused.
	ErrAlreadyRunning = errors.New("project already running")

	// ErrNoFreePort means the free-port scan reached the end of the
	// valid port range without finding a candidate.
	ErrNoFreePort = errors.New("no free port available")
)

// LockTimeoutError reports a failed lock acquisition with the path and
// wait bound for diagnostics.
type LockTimeoutError struct {
	// Path is the lock file that could not be acquired.
	Path string

	// Timeout is the bound that expired.
	Timeout time.Duration
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("could not acquire registry lock %s within %s", e.Path, e.Timeout)
}

// Unwrap ties the typed error to the ErrLockTimeout sentinel.
func (e *LockTimeoutError) Unwrap() error {
	return ErrLockTimeout
}

// AlreadyRunningError reports a refused double-start, carrying the
// conflicting project, ports and pids so the caller can point the user
// at the live session.
type AlreadyRunningError struct {
	// Project is the project whose lease is actively owned.
	Project string

	// Ports is the port pair held by the running session.
	Ports LeasePorts

	// PidFrontend and PidBackend are the live owning processes.
	PidFrontend int
	PidBackend  int
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("project %q is already running (frontend pid %d on port %d, backend pid %d on port %d)",
		e.Project, e.PidFrontend, e.Ports.Frontend, e.PidBackend, e.Ports.Backend)
}

// Unwrap ties the typed error to the ErrAlreadyRunning sentinel.
func (e *AlreadyRunningError) Unwrap() error {
	return ErrAlreadyRunning
}

// NoFreePortError reports an exhausted port scan with the range that
// was searched.
type NoFreePortError struct {
	// Start is the port the scan began at.
	Start int
}

func (e *NoFreePortError) Error() string {
	return fmt.Sprintf("no free port found scanning %d-%d", e.Start, MaxPort)
}

// Unwrap ties the typed error to the ErrNoFreePort sentinel.
func (e *NoFreePortError) Unwrap() error {
	return ErrNoFreePort
}
