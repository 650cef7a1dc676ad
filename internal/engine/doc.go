// Package engine implements the respawn scheduling core: recurrence rule
// parsing, next-occurrence computation, and the once-per-occurrence alert
// state machine.
//
// Everything in this package is pure: the current instant and the zone are
// injected, so results are deterministic regardless of the host timezone.
package engine
