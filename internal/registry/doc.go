// Package registry persists the shared port-lease registry file and
// mediates cross-process access to it.
//
// The registry is a single JSON file mapping project names to leases,
// owned collectively by every devport invocation on the host. The
// Store provides three guarantees around it:
//
//   - Mutual exclusion: WithLock acquires an OS advisory lock (flock)
//     on a sidecar .lock file, blocking up to a configured timeout.
//     All mutations happen under the lock, giving a total order of
//     load-reconcile-decide-persist cycles across processes.
//   - Atomic persistence: Save writes to a temporary file in the same
//     directory and renames it over the registry, so a concurrent
//     reader — or a crash mid-write — never observes a half-written
//     file.
//   - Corrupt-file tolerance: a missing or unparseable registry loads
//     as an empty snapshot. Losing a corrupt file only costs a port
//     reallocation; uniqueness is re-enforced on every write.
//
// The advisory lock is cooperative: it protects against well-behaved
// devport processes, not against callers that bypass the Store.
package registry
