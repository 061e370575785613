package coordinator

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/devport/internal/model"
	"github.com/shinji-kodama/devport/internal/registry"
)

// fakeProber reports only the listed ports as listening, giving tests
// full control over apparent host socket state.
type fakeProber struct {
	listening map[int]bool
}

func (f *fakeProber) IsListening(p int) bool {
	return f.listening[p]
}

// fakeLiveness reports only the listed pids as alive.
type fakeLiveness struct {
	alive map[int]bool
}

func (f *fakeLiveness) IsAlive(pid int) bool {
	return f.alive[pid]
}

// fixture bundles a coordinator with its fakes and backing store so
// tests can both drive the API and inspect persisted state.
type fixture struct {
	coord    *Coordinator
	store    *registry.Store
	prober   *fakeProber
	liveness *fakeLiveness
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := registry.NewStore(filepath.Join(t.TempDir(), "registry.json"))
	prober := &fakeProber{listening: make(map[int]bool)}
	liveness := &fakeLiveness{alive: make(map[int]bool)}
	return &fixture{
		coord:    New(store, prober, liveness),
		store:    store,
		prober:   prober,
		liveness: liveness,
	}
}

// snapshot loads the persisted registry for assertions.
func (f *fixture) snapshot(t *testing.T) model.Snapshot {
	t.Helper()
	snap, err := f.store.Load()
	require.NoError(t, err)
	return snap
}

// TestAcquire_FreshProjects verifies first-time allocation with
// defaults: alpha gets (3000, 8000), and an immediately following
// beta acquire respects alpha's reservation and gets the next free
// pair, never alpha's ports.
func TestAcquire_FreshProjects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alpha, err := f.coord.Acquire(ctx, "alpha", AcquireOptions{})
	require.NoError(t, err)
	assert.Equal(t, model.LeasePorts{Frontend: 3000, Backend: 8000}, alpha)

	beta, err := f.coord.Acquire(ctx, "beta", AcquireOptions{})
	require.NoError(t, err)
	assert.Equal(t, model.LeasePorts{Frontend: 3001, Backend: 8001}, beta)

	// The persisted snapshot must satisfy registry-wide uniqueness.
	assert.NoError(t, f.snapshot(t).Validate())
}

// TestAcquire_IdempotentReuse verifies that a project whose ports are
// free and whose pids are dead gets the same pair back on every
// acquire.
func TestAcquire_IdempotentReuse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.coord.Acquire(ctx, "alpha", AcquireOptions{})
	require.NoError(t, err)

	second, err := f.coord.Acquire(ctx, "alpha", AcquireOptions{})
	require.NoError(t, err)

	assert.Equal(t, first, second, "a stopped project keeps its port pair")
	assert.Len(t, f.snapshot(t), 1)
}

// TestAcquire_AlreadyRunning verifies the double-start refusal: with
// both recorded pids alive, acquire fails with ErrAlreadyRunning and
// leaves the registry untouched.
func TestAcquire_AlreadyRunning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ports, err := f.coord.Acquire(ctx, "alpha", AcquireOptions{})
	require.NoError(t, err)
	require.NoError(t, f.coord.RecordPids(ctx, "alpha", 100, 101))

	f.liveness.alive[100] = true
	f.liveness.alive[101] = true

	_, err = f.coord.Acquire(ctx, "alpha", AcquireOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrAlreadyRunning))

	// The error carries enough context to act on the conflict.
	var runErr *model.AlreadyRunningError
	require.True(t, errors.As(err, &runErr))
	assert.Equal(t, "alpha", runErr.Project)
	assert.Equal(t, ports, runErr.Ports)
	assert.Equal(t, 100, runErr.PidFrontend)

	// The lease still records the live session.
	lease := f.snapshot(t)["alpha"]
	require.NotNil(t, lease.PidFrontend)
	assert.Equal(t, 100, *lease.PidFrontend)
}

// TestAcquire_DeadLeaseReclamation verifies self-healing after a
// crash: stale pids from a dead session are cleared, the ports are
// reused, and the persisted lease carries no claims until the next
// RecordPids.
func TestAcquire_DeadLeaseReclamation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.coord.Acquire(ctx, "alpha", AcquireOptions{})
	require.NoError(t, err)
	require.NoError(t, f.coord.RecordPids(ctx, "alpha", 100, 101))
	// Pids 100/101 are not in the alive set: the session has crashed.

	second, err := f.coord.Acquire(ctx, "alpha", AcquireOptions{})
	require.NoError(t, err)
	assert.Equal(t, first, second, "reclaimed lease reuses its ports")

	lease := f.snapshot(t)["alpha"]
	assert.Nil(t, lease.PidFrontend, "stale claim must be cleared in the persisted lease")
	assert.Nil(t, lease.PidBackend)
}

// TestAcquire_SquattedPortReallocates verifies lease replacement: when
// an outside process listens on one of the project's ports, the
// project gets a fresh pair and the registry stays collision-free.
func TestAcquire_SquattedPortReallocates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.coord.Acquire(ctx, "alpha", AcquireOptions{})
	require.NoError(t, err)

	// Something devport does not own has taken alpha's frontend port.
	f.prober.listening[first.Frontend] = true

	second, err := f.coord.Acquire(ctx, "alpha", AcquireOptions{})
	require.NoError(t, err)

	assert.NotEqual(t, first.Frontend, second.Frontend, "squatted port must not be handed out again")
	assert.Equal(t, model.LeasePorts{Frontend: 3001, Backend: 8000}, second)

	snap := f.snapshot(t)
	assert.Len(t, snap, 1, "replacement must not leave the old lease behind")
	assert.NoError(t, snap.Validate())
}

// TestAcquire_HalfDeadSessionWithListener verifies the replacement
// path when one process of a session survives and still holds its
// port: the lease is neither refused (not both alive) nor reused (a
// port is listening), so a fresh pair is allocated.
func TestAcquire_HalfDeadSessionWithListener(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.coord.Acquire(ctx, "alpha", AcquireOptions{})
	require.NoError(t, err)
	require.NoError(t, f.coord.RecordPids(ctx, "alpha", 100, 101))

	// The backend survived and still listens; the frontend died.
	f.liveness.alive[101] = true
	f.prober.listening[first.Backend] = true

	second, err := f.coord.Acquire(ctx, "alpha", AcquireOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, first.Backend, second.Backend)
	assert.NoError(t, f.snapshot(t).Validate())
}

// TestAcquire_ForceNew verifies the explicit-hint override: with both
// start hints given, reuse is bypassed and the scan starts at the
// hints even though the existing lease's ports are free.
func TestAcquire_ForceNew(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.coord.Acquire(ctx, "alpha", AcquireOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3000, first.Frontend)

	second, err := f.coord.Acquire(ctx, "alpha", AcquireOptions{
		FrontendStart: 3100,
		BackendStart:  8100,
		ForceNew:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, model.LeasePorts{Frontend: 3100, Backend: 8100}, second)
}

// TestAcquire_InvalidName verifies that a malformed project name is
// rejected before the registry is even locked.
func TestAcquire_InvalidName(t *testing.T) {
	f := newFixture(t)

	_, err := f.coord.Acquire(context.Background(), "bad name", AcquireOptions{})
	assert.Error(t, err)
}

// TestAcquire_LockContention verifies that an acquire against a held
// registry lock fails with ErrLockTimeout instead of blocking forever.
func TestAcquire_LockContention(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	holder := registry.NewStore(path)
	contended := registry.NewStore(path, registry.WithLockTimeout(150*time.Millisecond))

	unlock, err := holder.WithLock(context.Background())
	require.NoError(t, err)
	defer unlock()

	coord := New(contended, &fakeProber{listening: map[int]bool{}}, &fakeLiveness{alive: map[int]bool{}})
	_, err = coord.Acquire(context.Background(), "alpha", AcquireOptions{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrLockTimeout))
}

// TestRecordPids verifies pid recording and the acquire-first
// requirement.
func TestRecordPids(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.coord.Acquire(ctx, "alpha", AcquireOptions{})
	require.NoError(t, err)

	require.NoError(t, f.coord.RecordPids(ctx, "alpha", 4242, 4243))

	lease := f.snapshot(t)["alpha"]
	require.NotNil(t, lease.PidFrontend)
	require.NotNil(t, lease.PidBackend)
	assert.Equal(t, 4242, *lease.PidFrontend)
	assert.Equal(t, 4243, *lease.PidBackend)

	// Unknown project: nothing to attach pids to.
	assert.Error(t, f.coord.RecordPids(ctx, "ghost", 1, 2))

	// Non-positive pids are caller bugs, rejected up front.
	assert.Error(t, f.coord.RecordPids(ctx, "alpha", 0, 4243))
}

// TestRelease verifies orderly shutdown: pid claims are cleared, the
// port assignment survives, and releasing an unknown project is a
// harmless no-op.
func TestRelease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ports, err := f.coord.Acquire(ctx, "alpha", AcquireOptions{})
	require.NoError(t, err)
	require.NoError(t, f.coord.RecordPids(ctx, "alpha", 100, 101))

	require.NoError(t, f.coord.Release(ctx, "alpha"))

	lease := f.snapshot(t)["alpha"]
	assert.Nil(t, lease.PidFrontend)
	assert.Nil(t, lease.PidBackend)
	assert.Equal(t, ports.Frontend, lease.FrontendPort, "release keeps the port assignment")

	assert.NoError(t, f.coord.Release(ctx, "never-acquired"))
}
