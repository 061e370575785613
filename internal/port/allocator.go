package port

import (
	"fmt"

	"github.com/shinji-kodama/devport/internal/model"
)

// Allocator finds free ports by linear scan from a start port upward.
//
// A candidate port is accepted iff it is absent from the exclusion set
// AND the Probe reports no current listener. The exclusion set makes
// registry knowledge explicit: it carries every port already assigned
// to any lease (including stopped sessions, which the probe cannot
// see) plus any just-chosen sibling port, so the two checks together
// enforce both registry-wide uniqueness and pair distinctness.
type Allocator struct {
	// prober checks OS-level listener state. Injected via constructor
	// to allow deterministic test doubles.
	prober Prober
}

// NewAllocator creates a new Allocator using the given prober.
// The prober must not be nil.
func NewAllocator(prober Prober) *Allocator {
	return &Allocator{prober: prober}
}

// FindFreePort scans from startPort upward and returns the first port
// that is neither excluded nor currently listening.
//
// The scan is sequential with no wraparound: the same inputs always
// select the same port, which keeps allocations predictable and
// debuggable. The scan stops at 65535; exhausting the range fails
// with an error matching model.ErrNoFreePort.
func (a *Allocator) FindFreePort(startPort int, excluded map[int]struct{}) (int, error) {
	if startPort < 1 || startPort > model.MaxPort {
		return 0, fmt.Errorf("start port %d out of range (1-%d)", startPort, model.MaxPort)
	}

	for candidate := startPort; candidate <= model.MaxPort; candidate++ {
		if _, taken := excluded[candidate]; taken {
			continue
		}
		if a.prober.IsListening(candidate) {
			continue
		}
		return candidate, nil
	}

	return 0, &model.NoFreePortError{Start: startPort}
}

// AllocatePair finds a frontend/backend port pair for a new lease.
//
// The frontend port is found first from frontendStart. The backend
// search then excludes the just-chosen frontend port explicitly, in
// addition to the shared exclusion set, so the pair is always distinct
// even when the two start ranges overlap.
//
// The caller's excluded set is not modified.
func (a *Allocator) AllocatePair(frontendStart, backendStart int, excluded map[int]struct{}) (model.LeasePorts, error) {
	frontend, err := a.FindFreePort(frontendStart, excluded)
	if err != nil {
		return model.LeasePorts{}, fmt.Errorf("allocate frontend port: %w", err)
	}

	// Union of the registry exclusions and the frontend port we just
	// picked, built locally to leave the caller's set untouched.
	backendExcluded := make(map[int]struct{}, len(excluded)+1)
	for p := range excluded {
		backendExcluded[p] = struct{}{}
	}
	backendExcluded[frontend] = struct{}{}

	backend, err := a.FindFreePort(backendStart, backendExcluded)
	if err != nil {
		return model.LeasePorts{}, fmt.Errorf("allocate backend port: %w", err)
	}

	return model.LeasePorts{Frontend: frontend, Backend: backend}, nil
}
