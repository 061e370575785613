// Package port implements TCP port probing and free-port allocation
// for the devport registry.
//
// The Probe answers "is some listener currently accepting on this
// port?" by attempting to bind via net.Listen, with a loopback dial as
// a secondary check when the bind fails. The Allocator finds free
// ports by linear scan from a start port, skipping ports that are
// either probed as listening or present in an explicit exclusion set
// (ports already reserved in the registry, plus the sibling port of
// the pair being allocated).
//
// Probing is best-effort reservation, not guaranteed exclusivity: a
// port can be taken between the probe and the eventual bind by the
// session launcher. The launcher's bind failure is the final arbiter.
package port
