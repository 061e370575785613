// Package coordinator implements the acquire/release lifecycle of
// project port leases.
//
// The Coordinator ties the registry store, the port probe, the
// free-port allocator and the process liveness checker into one
// locked decision cycle:
//
//	lock → load → reconcile dead leases → decide (refuse / reuse /
//	allocate) → persist → unlock
//
// Every decision is made against the snapshot loaded under the lock,
// so two concurrent acquires — same project or different projects —
// are totally ordered and can never hand out colliding ports.
package coordinator
