package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/shinji-kodama/devport/internal/model"
	"github.com/shinji-kodama/devport/internal/port"
	"github.com/shinji-kodama/devport/internal/proc"
	"github.com/shinji-kodama/devport/internal/registry"
)

// Coordinator resolves port leases for projects against the shared
// registry. It is safe for use from multiple processes concurrently;
// all registry access happens under the store's advisory lock.
type Coordinator struct {
	store    *registry.Store
	prober   port.Prober
	alloc    *port.Allocator
	liveness proc.Liveness
}

// New creates a Coordinator over the given store, prober and liveness
// checker. The allocator is derived from the prober so both the reuse
// check and the allocation scan consult the same listener state.
func New(store *registry.Store, prober port.Prober, liveness proc.Liveness) *Coordinator {
	return &Coordinator{
		store:    store,
		prober:   prober,
		alloc:    port.NewAllocator(prober),
		liveness: liveness,
	}
}

// AcquireOptions tunes a single Acquire call.
type AcquireOptions struct {
	// FrontendStart is the start port for the frontend allocation
	// scan. Zero means model.DefaultFrontendStart.
	FrontendStart int

	// BackendStart is the start port for the backend allocation
	// scan. Zero means model.DefaultBackendStart.
	BackendStart int

	// ForceNew bypasses lease reuse and always runs a fresh
	// allocation from the start ports. Set when the caller supplied
	// both port hints explicitly (e.g., DEVPORT_FRONTEND_PORT and
	// DEVPORT_BACKEND_PORT together).
	ForceNew bool
}

// Acquire resolves the port pair the named project should use right
// now and persists the resulting lease.
//
// Decision order, all under the registry lock:
//
//  1. Leases whose recorded processes are all dead are reconciled
//     (pid claims cleared, ports kept).
//  2. If the project's lease is owned by live processes on both
//     ports, the acquire is refused with model.ErrAlreadyRunning —
//     double-starting a project is a caller error, never silently
//     resolved.
//  3. If the project has a lease and neither of its ports currently
//     has a listener, the same pair is returned (idempotent reuse).
//  4. Otherwise a fresh pair is allocated, excluding every port
//     reserved by other projects' leases.
//
// The returned lease has no pid claims; the caller records them via
// RecordPids once it has actually spawned the session processes.
func (c *Coordinator) Acquire(ctx context.Context, project string, opts AcquireOptions) (model.LeasePorts, error) {
	if err := model.ValidateName(project); err != nil {
		return model.LeasePorts{}, err
	}

	unlock, err := c.store.WithLock(ctx)
	if err != nil {
		return model.LeasePorts{}, err
	}
	defer unlock()

	snap, err := c.store.Load()
	if err != nil {
		return model.LeasePorts{}, err
	}

	snap.ReconcileDead(c.liveness.IsAlive)

	if existing, ok := snap[project]; ok {
		// Reconciliation already cleared fully-dead claims, so any
		// surviving pid pair here belongs to a live session.
		if c.bothAlive(existing) {
			return model.LeasePorts{}, &model.AlreadyRunningError{
				Project:     project,
				Ports:       existing.Ports(),
				PidFrontend: *existing.PidFrontend,
				PidBackend:  *existing.PidBackend,
			}
		}

		if !opts.ForceNew && c.reusable(existing) {
			existing.LastUsed = time.Now().UTC()
			if err := c.store.Save(snap); err != nil {
				return model.LeasePorts{}, err
			}
			return existing.Ports(), nil
		}

		// The lease is being replaced: drop it before computing the
		// exclusion set so its ports do not block the new allocation.
		// If they are genuinely busy, the probe rejects them anyway.
		delete(snap, project)
	}

	pair, err := c.alloc.AllocatePair(
		defaultPort(opts.FrontendStart, model.DefaultFrontendStart),
		defaultPort(opts.BackendStart, model.DefaultBackendStart),
		snap.ReservedPorts(),
	)
	if err != nil {
		return model.LeasePorts{}, err
	}

	snap[project] = &model.Lease{
		FrontendPort: pair.Frontend,
		BackendPort:  pair.Backend,
		LastUsed:     time.Now().UTC(),
	}
	if err := c.store.Save(snap); err != nil {
		return model.LeasePorts{}, err
	}
	return pair, nil
}

// RecordPids attaches the spawned session processes to the project's
// lease. Called by the launch layer after both processes are up.
func (c *Coordinator) RecordPids(ctx context.Context, project string, pidFrontend, pidBackend int) error {
	if pidFrontend <= 0 || pidBackend <= 0 {
		return fmt.Errorf("record pids for %q: pids must be positive (got frontend=%d backend=%d)",
			project, pidFrontend, pidBackend)
	}

	return c.store.Update(ctx, func(snap model.Snapshot) error {
		lease, ok := snap[project]
		if !ok {
			return fmt.Errorf("record pids: no lease for project %q (acquire first)", project)
		}
		lease.PidFrontend = &pidFrontend
		lease.PidBackend = &pidBackend
		return nil
	})
}

// Release clears the project's running-process claims on orderly
// shutdown. The port assignment stays in place for the next session.
//
// Releasing a project with no lease is a no-op: a crashed session that
// never persisted one has nothing to clear, and the next Acquire
// reconciles any stale pids it left behind.
func (c *Coordinator) Release(ctx context.Context, project string) error {
	return c.store.Update(ctx, func(snap model.Snapshot) error {
		if lease, ok := snap[project]; ok {
			lease.ClearPids()
		}
		return nil
	})
}

// bothAlive reports whether the lease has live owners on both ports.
func (c *Coordinator) bothAlive(lease *model.Lease) bool {
	return lease.PidFrontend != nil && c.liveness.IsAlive(*lease.PidFrontend) &&
		lease.PidBackend != nil && c.liveness.IsAlive(*lease.PidBackend)
}

// reusable reports whether the lease's ports can be handed back
// as-is: neither has a current listener, so no process the registry
// does not know about has squatted them.
func (c *Coordinator) reusable(lease *model.Lease) bool {
	return !c.prober.IsListening(lease.FrontendPort) && !c.prober.IsListening(lease.BackendPort)
}

// defaultPort substitutes the fallback when no start hint was given.
func defaultPort(hint, fallback int) int {
	if hint > 0 {
		return hint
	}
	return fallback
}
