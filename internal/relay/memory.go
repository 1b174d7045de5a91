package relay

import (
	"fmt"
	"sync"

	"boilerctl/internal/models"
)

// MemoryDriver keeps relay states in memory. It backs simulation mode
// and doubles as a scriptable failure source in tests.
type MemoryDriver struct {
	mu     sync.Mutex
	states [models.RelayCount]bool

	// Applies counts successful Apply calls, for asserting that no-op
	// requests never reach the bus.
	Applies int

	// FailWith, if set, is returned by every Apply call.
	FailWith error

	// FailRelay scopes FailWith to a single relay when FailOne is true.
	FailRelay models.Relay
	FailOne   bool
}

// NewMemoryDriver returns a driver with every relay open.
func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{}
}

// Apply records the state, or fails if a scripted error applies.
func (d *MemoryDriver) Apply(r models.Relay, on bool) error {
	if !r.Valid() {
		return fmt.Errorf("invalid relay %d", r)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.FailWith != nil && (!d.FailOne || d.FailRelay == r) {
		return d.FailWith
	}
	d.states[r] = on
	d.Applies++
	return nil
}

// Close opens every relay.
func (d *MemoryDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.states = [models.RelayCount]bool{}
	return nil
}

// State reports the recorded state of one relay.
func (d *MemoryDriver) State(r models.Relay) bool {
	if !r.Valid() {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.states[r]
}
