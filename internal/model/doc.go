// Package model defines the domain types for the devport CLI.
//
// The central entity is the Lease: a durable binding between a project
// name and a frontend/backend TCP port pair, plus the process IDs that
// last claimed those ports. All leases are persisted together in a
// Snapshot — the registry file shared by every devport invocation on
// the host.
//
// Key design decision: ports in a Lease are immutable once assigned.
// A project keeps its port pair across sessions; ports only change when
// a fresh allocation replaces the whole Lease. Process IDs, by contrast,
// are transient claims that are cleared on release or when the owning
// processes are found dead.
package model
