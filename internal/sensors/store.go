// Package sensors owns the shared sensor snapshot and the feeds that
// populate it: an MQTT subscriber for deployments with a real sensor bus
// and a plant simulator for development on a bare machine.
package sensors

import (
	"errors"
	"sync/atomic"
	"time"

	"boilerctl/internal/logger"
	"boilerctl/internal/models"
)

// lockTimeout bounds every acquisition of the store lock. A blocked
// caller must not stall a control cycle indefinitely; it falls back to
// the last published snapshot instead.
const lockTimeout = 100 * time.Millisecond

// ErrLockTimeout is returned by writers that could not take the store
// lock in time. The reading is dropped; the next cycle retries.
var ErrLockTimeout = errors.New("sensors: store lock timeout")

// Channel identifies one temperature input.
type Channel uint8

const (
	ChannelBoilerSupply Channel = iota
	ChannelBoilerReturn
	ChannelTank
	ChannelOutside
	ChannelInside
)

func (c Channel) String() string {
	switch c {
	case ChannelBoilerSupply:
		return "boiler_supply"
	case ChannelBoilerReturn:
		return "boiler_return"
	case ChannelTank:
		return "tank"
	case ChannelOutside:
		return "outside"
	case ChannelInside:
		return "inside"
	default:
		return "unknown"
	}
}

// TemperatureReadings is one full set of temperature channels, used by
// feeds that sample everything in a single pass.
type TemperatureReadings struct {
	BoilerSupply models.Temperature
	BoilerReturn models.Temperature
	Tank         models.Temperature
	Outside      models.Temperature
	Inside       models.Temperature
}

// SnapshotStore holds the shared sensor snapshot. Exactly one feed
// writes at a time; consumers read copies. The lock is a capacity-one
// channel so every acquisition can carry a timeout, and the last fully
// published snapshot is kept in an atomic pointer so a reader that loses
// the timeout race still gets a coherent (if slightly old) copy.
type SnapshotStore struct {
	log *logger.Logger

	mu  chan struct{}
	cur models.SensorSnapshot

	last         atomic.Pointer[models.SensorSnapshot]
	readTimeouts atomic.Uint32
}

// NewSnapshotStore returns a store with every channel unpopulated.
func NewSnapshotStore(log *logger.Logger) *SnapshotStore {
	s := &SnapshotStore{
		log: log,
		mu:  make(chan struct{}, 1),
		cur: models.SensorSnapshot{
			BoilerSupply:   models.TempUnknown,
			BoilerReturn:   models.TempUnknown,
			TankTemp:       models.TempUnknown,
			OutsideTemp:    models.TempUnknown,
			InsideTemp:     models.TempUnknown,
			SystemPressure: models.PressureInvalid,
		},
	}
	s.publish()
	return s
}

func (s *SnapshotStore) acquire() bool {
	select {
	case s.mu <- struct{}{}:
		return true
	case <-time.After(lockTimeout):
		return false
	}
}

func (s *SnapshotStore) release() {
	<-s.mu
}

// publish refreshes the fallback copy. Callers must hold the lock (or,
// in NewSnapshotStore, be the only reference holder).
func (s *SnapshotStore) publish() {
	snap := s.cur
	s.last.Store(&snap)
}

// Snapshot returns a copy of the current snapshot. The boolean reports
// whether the copy came from under the lock; false means the lock timed
// out and the last published snapshot was used instead. Consecutive
// false results are counted so the health monitor can escalate a stuck
// writer instead of silently running on frozen data.
func (s *SnapshotStore) Snapshot() (models.SensorSnapshot, bool) {
	if !s.acquire() {
		n := s.readTimeouts.Add(1)
		s.log.Warnf("sensor store read fell back to last snapshot (consecutive timeouts: %d)", n)
		return *s.last.Load(), false
	}
	snap := s.cur
	s.release()
	s.readTimeouts.Store(0)
	return snap, true
}

// ConsecutiveReadTimeouts reports how many Snapshot calls in a row hit
// the lock timeout.
func (s *SnapshotStore) ConsecutiveReadTimeouts() int {
	return int(s.readTimeouts.Load())
}

// SetTemperature updates a single channel. The validity flag is derived
// from the value: feeds report a failed reading as TempInvalid.
func (s *SnapshotStore) SetTemperature(ch Channel, value models.Temperature, now time.Time) error {
	if !s.acquire() {
		return ErrLockTimeout
	}
	defer s.release()

	valid := value.Valid()
	switch ch {
	case ChannelBoilerSupply:
		s.cur.BoilerSupply, s.cur.BoilerSupplyValid = value, valid
	case ChannelBoilerReturn:
		s.cur.BoilerReturn, s.cur.BoilerReturnValid = value, valid
	case ChannelTank:
		s.cur.TankTemp, s.cur.TankTempValid = value, valid
	case ChannelOutside:
		s.cur.OutsideTemp, s.cur.OutsideTempValid = value, valid
	case ChannelInside:
		s.cur.InsideTemp, s.cur.InsideTempValid = value, valid
	default:
		return nil
	}
	s.cur.UpdatedAt = now
	s.publish()
	return nil
}

// SetTemperatures replaces all temperature channels in one pass.
func (s *SnapshotStore) SetTemperatures(r TemperatureReadings, now time.Time) error {
	if !s.acquire() {
		return ErrLockTimeout
	}
	defer s.release()

	s.cur.BoilerSupply, s.cur.BoilerSupplyValid = r.BoilerSupply, r.BoilerSupply.Valid()
	s.cur.BoilerReturn, s.cur.BoilerReturnValid = r.BoilerReturn, r.BoilerReturn.Valid()
	s.cur.TankTemp, s.cur.TankTempValid = r.Tank, r.Tank.Valid()
	s.cur.OutsideTemp, s.cur.OutsideTempValid = r.Outside, r.Outside.Valid()
	s.cur.InsideTemp, s.cur.InsideTempValid = r.Inside, r.Inside.Valid()
	s.cur.UpdatedAt = now
	s.publish()
	return nil
}

// SetPressure updates the system pressure channel.
func (s *SnapshotStore) SetPressure(value models.Pressure, now time.Time) error {
	if !s.acquire() {
		return ErrLockTimeout
	}
	defer s.release()

	s.cur.SystemPressure = value
	s.cur.SystemPressureValid = value.Valid()
	s.cur.PressureUpdatedAt = now
	s.publish()
	return nil
}

// SetEmergencyStop mirrors the hardwired stop input into the snapshot.
func (s *SnapshotStore) SetEmergencyStop(engaged bool, now time.Time) error {
	if !s.acquire() {
		return ErrLockTimeout
	}
	defer s.release()

	s.cur.EmergencyStop = engaged
	s.cur.UpdatedAt = now
	s.publish()
	return nil
}

// SetCommOK records whether the sensor transport is alive. Unlike the
// reading setters it blocks until the lock is free: connection state
// changes are rare and must not be lost.
func (s *SnapshotStore) SetCommOK(ok bool) {
	s.mu <- struct{}{}
	defer s.release()

	s.cur.CommOK = ok
	s.publish()
}
