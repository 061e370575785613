// Package proc answers process liveness questions for the devport
// registry.
//
// Liveness is a zero-effect existence probe: no signal is delivered to
// the target process. Any failure to determine existence is treated as
// "not alive", which biases the registry toward reclaiming stale
// leases rather than leaking them — the worst case of a wrong answer
// is a harmless port reallocation, never a stuck project.
package proc
