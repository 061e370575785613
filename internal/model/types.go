package model

import (
	"fmt"
	"regexp"
	"time"
)

// MaxPort is the highest valid TCP port number (2^16 - 1).
// Port scans that exceed this value fail with ErrNoFreePort.
const MaxPort = 65535

// Default start ports for allocation scans when no hint is configured.
// 3000 is the conventional dev web server port, 8000 the conventional
// dev API port.
const (
	DefaultFrontendStart = 3000
	DefaultBackendStart  = 8000
)

// Lease binds a project name to its frontend/backend port pair.
//
// The JSON field names define the on-disk registry format and must not
// change: registries written by older devport versions are read back
// field-for-field.
type Lease struct {
	// FrontendPort is the TCP port assigned to the project's frontend
	// process. Immutable once written; a reassignment replaces the
	// whole Lease.
	FrontendPort int `json:"frontend_port"`

	// BackendPort is the TCP port assigned to the project's backend
	// process. Always distinct from FrontendPort.
	BackendPort int `json:"backend_port"`

	// LastUsed is the UTC timestamp of the most recent successful
	// acquire for this project.
	LastUsed time.Time `json:"last_used"`

	// PidFrontend is the process ID last recorded as owning the
	// frontend port. nil means no process is currently running.
	PidFrontend *int `json:"pid_frontend"`

	// PidBackend is the process ID last recorded as owning the
	// backend port. nil means no process is currently running.
	PidBackend *int `json:"pid_backend"`
}

// LeasePorts is the resolved port pair returned by an acquire.
type LeasePorts struct {
	// Frontend is the TCP port for the project's frontend process.
	Frontend int `json:"frontendPort"`

	// Backend is the TCP port for the project's backend process.
	Backend int `json:"backendPort"`
}

// Ports returns the lease's port pair in the acquire result shape.
func (l *Lease) Ports() LeasePorts {
	return LeasePorts{Frontend: l.FrontendPort, Backend: l.BackendPort}
}

// ClearPids drops both process claims while keeping the port
// assignment. This is the "reconciliation" operation: the project is
// no longer running, but its ports stay reserved for the next session.
func (l *Lease) ClearPids() {
	l.PidFrontend = nil
	l.PidBackend = nil
}

// Validate checks the lease's internal consistency: both ports in
// range and distinct from each other.
func (l *Lease) Validate() error {
	if l.FrontendPort < 1 || l.FrontendPort > MaxPort {
		return fmt.Errorf("lease: frontend port %d out of range (1-%d)", l.FrontendPort, MaxPort)
	}
	if l.BackendPort < 1 || l.BackendPort > MaxPort {
		return fmt.Errorf("lease: backend port %d out of range (1-%d)", l.BackendPort, MaxPort)
	}
	if l.FrontendPort == l.BackendPort {
		return fmt.Errorf("lease: frontend and backend port are both %d", l.FrontendPort)
	}
	return nil
}

// Snapshot is the full registry state: project name to Lease.
//
// A Snapshot is only authoritative while the registry lock is held;
// unlocked reads (e.g., the list command) are advisory.
type Snapshot map[string]*Lease

// ReservedPorts returns every frontend and backend port claimed by any
// lease in the snapshot. This is the registry half of the allocation
// exclusion set: a new lease must not collide with any of these, even
// for projects that are not currently running.
func (s Snapshot) ReservedPorts() map[int]struct{} {
	reserved := make(map[int]struct{}, len(s)*2)
	for _, lease := range s {
		reserved[lease.FrontendPort] = struct{}{}
		reserved[lease.BackendPort] = struct{}{}
	}
	return reserved
}

// Validate checks snapshot-wide port uniqueness: no two leases may
// share a port value across either field, and each lease must be
// internally valid.
func (s Snapshot) Validate() error {
	// Key: port number, value: project that owns it.
	seen := make(map[int]string)

	for project, lease := range s {
		if err := lease.Validate(); err != nil {
			return fmt.Errorf("project %q: %w", project, err)
		}
		for _, p := range []int{lease.FrontendPort, lease.BackendPort} {
			if owner, exists := seen[p]; exists {
				return fmt.Errorf("port %d is assigned to both %q and %q", p, owner, project)
			}
			seen[p] = project
		}
	}
	return nil
}

// ReconcileDead clears the pid fields of every lease whose recorded
// processes are all dead, per the given liveness check. A lease with
// at least one live pid is left untouched: the project counts as
// running while any of its processes survives.
//
// Ports are never touched here — reconciliation only withdraws the
// running-process claim, not the port assignment.
//
// Returns the names of the projects whose claims were cleared.
func (s Snapshot) ReconcileDead(isAlive func(pid int) bool) []string {
	var cleared []string
	for project, lease := range s {
		if lease.PidFrontend == nil && lease.PidBackend == nil {
			continue
		}
		if pidAlive(lease.PidFrontend, isAlive) || pidAlive(lease.PidBackend, isAlive) {
			continue
		}
		lease.ClearPids()
		cleared = append(cleared, project)
	}
	return cleared
}

// pidAlive reports whether an optional pid refers to a live process.
// A nil pid means "not running" and is never alive.
func pidAlive(pid *int, isAlive func(pid int) bool) bool {
	return pid != nil && isAlive(*pid)
}

// nameRegex validates project names: alphanumeric plus dot, underscore
// and hyphen, starting and ending with an alphanumeric character.
// Directory basenames like "my-app" or "api.v2" all pass.
var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9._-]*[a-zA-Z0-9])?$`)

// ValidateName checks if the given name is a valid project name.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("project name must not be empty")
	}
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("invalid project name %q: must contain only alphanumeric characters, dots, underscores and hyphens, and start/end with alphanumeric", name)
	}
	return nil
}

// ExitCode defines standard CLI exit codes. These codes allow scripts
// (typically the session launcher wrapping devport) to programmatically
// determine the outcome of a command.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitLockTimeout indicates the registry lock could not be
	// acquired within the configured bound. The caller may retry.
	ExitLockTimeout ExitCode = 2

	// ExitAlreadyRunning indicates the project's lease is actively
	// owned by live processes. The caller must not start a second
	// session for the same project.
	ExitAlreadyRunning ExitCode = 3

	// ExitPortAllocationFailed indicates the free-port scan exhausted
	// the valid port range.
	ExitPortAllocationFailed ExitCode = 4

	// ExitInvalidProject indicates the project name or project
	// configuration is invalid.
	ExitInvalidProject ExitCode = 5
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
