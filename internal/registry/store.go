package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/shinji-kodama/devport/internal/model"
)

const (
	// DefaultLockTimeout bounds how long WithLock waits for the
	// registry lock before giving up. Registry critical sections are
	// a handful of file operations and port probes; ten seconds of
	// contention means something is wrong with the holder.
	DefaultLockTimeout = 10 * time.Second

	// lockRetryInterval is the polling interval between lock
	// acquisition attempts. 50ms balances responsiveness after the
	// holder releases against busy-poll overhead.
	lockRetryInterval = 50 * time.Millisecond

	// forceBreakGrace is the second, shorter wait applied after a
	// force-break removed the lock file. If the lock still cannot be
	// taken, some other process re-acquired it first and the normal
	// timeout error is returned.
	forceBreakGrace = 2 * time.Second

	// lockSuffix is appended to the registry path to form the
	// sidecar lock file path.
	lockSuffix = ".lock"
)

// Store reads, writes, and locks the registry file.
//
// A Store is cheap to construct and carries no open handles between
// calls; each WithLock opens and closes its own lock file descriptor.
type Store struct {
	// path is the registry JSON file.
	path string

	// lockPath is the sidecar advisory lock file (path + ".lock").
	lockPath string

	// lockTimeout bounds lock acquisition in WithLock.
	lockTimeout time.Duration

	// forceBreakOnTimeout selects the lock-timeout policy. When
	// false (default), a timeout fails the operation with
	// model.ErrLockTimeout and the caller decides whether to retry.
	// When true, the lock file is removed after the timeout and
	// acquisition is retried once — the legacy "assume the holder is
	// dead" behavior. Force-breaking is a documented correctness
	// hazard: a live but slow holder keeps its flock on the removed
	// inode while a new acquirer locks a fresh one, and the two can
	// then race on the registry. It exists for environments where a
	// wedged session must never block new ones.
	forceBreakOnTimeout bool
}

// Option configures a Store.
type Option func(*Store)

// WithLockTimeout sets the bound on lock acquisition. Non-positive
// values fall back to DefaultLockTimeout.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// WithForceBreakOnTimeout enables or disables the force-break lock
// timeout policy. See the Store field documentation for the hazard
// trade-off.
func WithForceBreakOnTimeout(enabled bool) Option {
	return func(s *Store) {
		s.forceBreakOnTimeout = enabled
	}
}

// NewStore creates a Store for the registry file at path.
// The file and its parent directory need not exist yet; they are
// created on first lock/write.
func NewStore(path string, opts ...Option) *Store {
	s := &Store{
		path:        path,
		lockPath:    path + lockSuffix,
		lockTimeout: DefaultLockTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the registry file path.
func (s *Store) Path() string {
	return s.path
}

// WithLock acquires the registry's advisory lock, blocking up to the
// configured timeout, and returns the function that releases it.
//
// The returned release function is safe to call exactly once and must
// be called on every exit path — callers defer it immediately:
//
//	unlock, err := store.WithLock(ctx)
//	if err != nil { ... }
//	defer unlock()
//
// On timeout the configured policy applies: fail with an error
// matching model.ErrLockTimeout, or (force-break enabled) clear the
// lock file and retry once before failing.
func (s *Store) WithLock(ctx context.Context) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(s.lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create registry directory: %w", err)
	}

	unlock, err := s.tryLock(ctx, s.lockTimeout)
	if err == nil {
		return unlock, nil
	}
	if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		// Caller cancellation is not a timeout; report it as-is.
		return nil, fmt.Errorf("acquire registry lock: %w", ctx.Err())
	}

	if !s.forceBreakOnTimeout {
		return nil, &model.LockTimeoutError{Path: s.lockPath, Timeout: s.lockTimeout}
	}

	// Force-break: assume the holder is dead, clear its token, and
	// try once more with a short grace window.
	if rmErr := os.Remove(s.lockPath); rmErr != nil && !os.IsNotExist(rmErr) {
		return nil, fmt.Errorf("force-break registry lock %s: %w", s.lockPath, rmErr)
	}
	unlock, err = s.tryLock(ctx, forceBreakGrace)
	if err != nil {
		return nil, &model.LockTimeoutError{Path: s.lockPath, Timeout: s.lockTimeout + forceBreakGrace}
	}
	return unlock, nil
}

// tryLock attempts one bounded flock acquisition, polling at
// lockRetryInterval. On success the lock file carries the holder's
// pid — diagnostics only, never consulted for correctness.
func (s *Store) tryLock(ctx context.Context, timeout time.Duration) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fl := flock.New(s.lockPath)
	locked, err := fl.TryLockContext(lockCtx, lockRetryInterval)
	if err != nil || !locked {
		_ = fl.Close()
		if err == nil {
			err = fmt.Errorf("lock not acquired")
		}
		return nil, fmt.Errorf("acquire registry lock %s: %w", s.lockPath, err)
	}

	// Best-effort holder pid for humans inspecting a contended lock.
	_ = os.WriteFile(s.lockPath, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644)

	return func() {
		// Close releases the flock and the descriptor. The lock file
		// itself stays on disk: removing it here could invalidate a
		// lock concurrently acquired by another process on the same
		// path.
		_ = fl.Close()
	}, nil
}

// Load parses the persisted registry into a Snapshot.
//
// A missing file is a normal first run and yields an empty snapshot.
// A corrupt file also yields an empty snapshot: recovering by
// reallocation is always safe because uniqueness is re-enforced on
// write, whereas failing here would wedge every project on the host.
// Only genuine I/O errors (e.g., permissions) are returned.
func (s *Store) Load() (model.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.Snapshot{}, nil
		}
		return nil, fmt.Errorf("read registry %s: %w", s.path, err)
	}

	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		// Corrupt registry: treated as empty, never surfaced.
		return model.Snapshot{}, nil
	}
	if snap == nil {
		snap = model.Snapshot{}
	}
	return snap, nil
}

// Save atomically replaces the registry file with the given snapshot.
//
// The snapshot is validated first so a port-uniqueness violation can
// never reach disk, then written to a temporary file in the registry's
// directory and renamed over the target. Readers either see the
// previous snapshot or the new one, never a partial write.
func (s *Store) Save(snap model.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("refusing to persist inconsistent registry: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create registry directory: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	data = append(data, '\n')

	// The temp file must live in the same directory as the registry:
	// rename is only atomic within a filesystem.
	tmp, err := os.CreateTemp(dir, ".registry-*.tmp")
	if err != nil {
		return fmt.Errorf("create registry temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write registry temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync registry temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close registry temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("chmod registry temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace registry: %w", err)
	}
	return nil
}

// Update runs fn against the current snapshot inside one locked
// load-modify-save cycle. fn mutates the snapshot in place; returning
// an error aborts the update without persisting anything.
func (s *Store) Update(ctx context.Context, fn func(model.Snapshot) error) error {
	unlock, err := s.WithLock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	snap, err := s.Load()
	if err != nil {
		return err
	}
	if err := fn(snap); err != nil {
		return err
	}
	return s.Save(snap)
}
