package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// intPtr is a test helper for building optional pid fields.
func intPtr(v int) *int {
	return &v
}

// TestLease_Validate verifies per-lease consistency checks: port ranges
// and the frontend/backend distinctness rule.
func TestLease_Validate(t *testing.T) {
	tests := []struct {
		name     string
		lease    Lease
		hasError bool
	}{
		{"valid pair", Lease{FrontendPort: 3000, BackendPort: 8000}, false},
		{"adjacent ports", Lease{FrontendPort: 3000, BackendPort: 3001}, false},
		{"equal ports", Lease{FrontendPort: 3000, BackendPort: 3000}, true},
		{"frontend zero", Lease{FrontendPort: 0, BackendPort: 8000}, true},
		{"backend above max", Lease{FrontendPort: 3000, BackendPort: 70000}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.lease.Validate()
			if tt.hasError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestLease_ClearPids verifies that clearing pids keeps the port
// assignment intact. Reconciliation must never discard ports.
func TestLease_ClearPids(t *testing.T) {
	lease := &Lease{
		FrontendPort: 3000,
		BackendPort:  8000,
		PidFrontend:  intPtr(1234),
		PidBackend:   intPtr(5678),
	}

	lease.ClearPids()

	assert.Nil(t, lease.PidFrontend)
	assert.Nil(t, lease.PidBackend)
	assert.Equal(t, 3000, lease.FrontendPort, "ports must survive a pid clear")
	assert.Equal(t, 8000, lease.BackendPort)
}

// TestSnapshot_ReservedPorts verifies that the exclusion set covers
// every frontend and backend port of every lease.
func TestSnapshot_ReservedPorts(t *testing.T) {
	snap := Snapshot{
		"alpha": {FrontendPort: 3000, BackendPort: 8000},
		"beta":  {FrontendPort: 3001, BackendPort: 8001},
	}

	reserved := snap.ReservedPorts()

	assert.Len(t, reserved, 4)
	for _, p := range []int{3000, 3001, 8000, 8001} {
		assert.Contains(t, reserved, p)
	}
}

// TestSnapshot_Validate_Unique verifies registry-wide port uniqueness:
// no two projects may share a port across either field.
func TestSnapshot_Validate_Unique(t *testing.T) {
	valid := Snapshot{
		"alpha": {FrontendPort: 3000, BackendPort: 8000},
		"beta":  {FrontendPort: 3001, BackendPort: 8001},
	}
	assert.NoError(t, valid.Validate())

	// beta's backend collides with alpha's frontend.
	crossField := Snapshot{
		"alpha": {FrontendPort: 3000, BackendPort: 8000},
		"beta":  {FrontendPort: 3001, BackendPort: 3000},
	}
	assert.Error(t, crossField.Validate(), "cross-field port sharing must be rejected")
}

// TestSnapshot_ReconcileDead verifies the no-dual-dead rule: a lease's
// pid claims are cleared only when every recorded process is dead.
func TestSnapshot_ReconcileDead(t *testing.T) {
	snap := Snapshot{
		// Both dead: claims must be cleared.
		"dead": {FrontendPort: 3000, BackendPort: 8000, PidFrontend: intPtr(100), PidBackend: intPtr(101)},
		// One survivor: lease must be left untouched.
		"half": {FrontendPort: 3001, BackendPort: 8001, PidFrontend: intPtr(200), PidBackend: intPtr(201)},
		// Never started: nothing to do.
		"idle": {FrontendPort: 3002, BackendPort: 8002},
	}

	alive := map[int]bool{200: true}
	cleared := snap.ReconcileDead(func(pid int) bool { return alive[pid] })

	require.Equal(t, []string{"dead"}, cleared)

	assert.Nil(t, snap["dead"].PidFrontend)
	assert.Nil(t, snap["dead"].PidBackend)
	assert.Equal(t, 3000, snap["dead"].FrontendPort, "reclaimed lease keeps its ports")

	assert.NotNil(t, snap["half"].PidFrontend, "lease with a live pid must not be reconciled")
	assert.NotNil(t, snap["half"].PidBackend)
}

// TestValidateName verifies project name validation against the
// directory-basename shapes devport derives names from.
func TestValidateName(t *testing.T) {
	valid := []string{"alpha", "my-app", "api.v2", "snake_case", "a", "a1-b2"}
	for _, name := range valid {
		assert.NoError(t, ValidateName(name), "name %q should be valid", name)
	}

	invalid := []string{"", "-leading", "trailing-", ".hidden", "has space", "sla/sh"}
	for _, name := range invalid {
		assert.Error(t, ValidateName(name), "name %q should be invalid", name)
	}
}

// TestCLIError verifies exit-code carrying, message formatting, and
// errors.Is traversal through the wrapped chain.
func TestCLIError(t *testing.T) {
	plain := NewCLIError(ExitLockTimeout, "could not lock registry")
	assert.Equal(t, "could not lock registry", plain.Error())
	assert.Equal(t, ExitLockTimeout, plain.Code)

	wrapped := WrapCLIError(ExitAlreadyRunning, "acquire failed", ErrAlreadyRunning)
	assert.Contains(t, wrapped.Error(), "acquire failed")
	assert.True(t, errors.Is(wrapped, ErrAlreadyRunning), "CLIError must unwrap to the underlying sentinel")
}

// TestTypedErrors_Sentinels verifies that each typed error matches its
// sentinel via errors.Is, so callers can switch on failure kind without
// losing the per-failure context.
func TestTypedErrors_Sentinels(t *testing.T) {
	lockErr := &LockTimeoutError{Path: "/tmp/registry.json.lock", Timeout: 10 * time.Second}
	assert.True(t, errors.Is(lockErr, ErrLockTimeout))
	assert.Contains(t, lockErr.Error(), "registry.json.lock")

	runErr := &AlreadyRunningError{
		Project:     "alpha",
		Ports:       LeasePorts{Frontend: 3000, Backend: 8000},
		PidFrontend: 111,
		PidBackend:  222,
	}
	assert.True(t, errors.Is(runErr, ErrAlreadyRunning))
	assert.Contains(t, runErr.Error(), "alpha")
	assert.Contains(t, runErr.Error(), "111")

	scanErr := &NoFreePortError{Start: 3000}
	assert.True(t, errors.Is(scanErr, ErrNoFreePort))
	assert.Contains(t, scanErr.Error(), "65535")
}
