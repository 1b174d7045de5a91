// Package relay is the single authoritative owner of the physical
// outputs. Everything above it requests logical (index, state) changes;
// the controller decides whether mechanical-protection guards permit the
// change and a driver translates the confirmed decision to hardware.
package relay

import "boilerctl/internal/models"

// Driver executes one confirmed logical command on whatever the outputs
// are wired to. An unconfirmed command must be reported as an error; the
// controller treats "not confirmed" exactly like "failed".
type Driver interface {
	// Apply drives relay r to the requested state and verifies it landed.
	Apply(r models.Relay, on bool) error

	// Close releases the output hardware, leaving every relay open.
	Close() error
}
