package control

import (
	"sync"
	"time"

	"boilerctl/internal/logger"
	"boilerctl/internal/models"
)

// pumpOverrun is how long a circulation pump keeps running after its
// circuit goes inactive, carrying residual heat out of the exchanger.
const pumpOverrun = 5 * time.Minute

// PumpController owns the circulation pumps and the diverter valve. A
// circuit's pump runs while the circuit is active and for the overrun
// window after it stops; reactivation cancels the overrun. The valve
// follows the water pump so overrun flow keeps going through the tank
// coil. Every off-to-on transition of a pump bumps its persisted start
// counter.
//
// The burner loop drives SetModeActive and Update; the failsafe handler
// calls ForceOn from whatever goroutine triggered the escalation, hence
// the lock. Relay commands are issued outside it.
type PumpController struct {
	log     *logger.Logger
	relays  RelayBank
	runtime *RuntimeTracker

	mu            sync.Mutex
	heatingActive bool
	waterActive   bool
	heatingUntil  time.Time
	waterUntil    time.Time
	heatingOn     bool
	waterOn       bool
}

func NewPumpController(relays RelayBank, runtime *RuntimeTracker, log *logger.Logger) *PumpController {
	return &PumpController{log: log, relays: relays, runtime: runtime}
}

// SetModeActive records a circuit going active or inactive. Activation
// cancels any overrun in progress; deactivation of an active circuit
// arms the overrun window. Deactivating an already-inactive circuit does
// not re-arm it.
func (p *PumpController) SetModeActive(mode models.BurnerMode, active bool, now time.Time) {
	p.mu.Lock()
	switch mode {
	case models.ModeHeating:
		if active {
			p.heatingActive = true
			p.heatingUntil = time.Time{}
		} else if p.heatingActive {
			p.heatingActive = false
			p.heatingUntil = now.Add(pumpOverrun)
			p.log.Infof("pumps: heating overrun armed for %v", pumpOverrun)
		}
	case models.ModeWater:
		if active {
			p.waterActive = true
			p.waterUntil = time.Time{}
		} else if p.waterActive {
			p.waterActive = false
			p.waterUntil = now.Add(pumpOverrun)
			p.log.Infof("pumps: water overrun armed for %v", pumpOverrun)
		}
	}
	p.mu.Unlock()
}

// Update drives the pump and valve relays toward the current model. A
// guard rejection (dwell, rate limit) leaves the request standing and is
// retried on the next cycle.
func (p *PumpController) Update(now time.Time) {
	p.mu.Lock()
	heatOn := p.heatingActive || (!p.heatingUntil.IsZero() && now.Before(p.heatingUntil))
	waterOn := p.waterActive || (!p.waterUntil.IsZero() && now.Before(p.waterUntil))
	if !heatOn && !p.heatingUntil.IsZero() {
		p.heatingUntil = time.Time{}
		p.log.Infof("pumps: heating overrun finished")
	}
	if !waterOn && !p.waterUntil.IsZero() {
		p.waterUntil = time.Time{}
		p.log.Infof("pumps: water overrun finished")
	}
	heatStarted := heatOn && !p.heatingOn
	waterStarted := waterOn && !p.waterOn
	p.heatingOn, p.waterOn = heatOn, waterOn
	p.mu.Unlock()

	if heatStarted {
		p.runtime.IncHeatingPumpStart()
	}
	if waterStarted {
		p.runtime.IncWaterPumpStart()
	}
	p.apply(models.RelayHeatingPump, heatOn)
	p.apply(models.RelayWaterPump, waterOn)
	p.apply(models.RelayValve, waterOn)
}

func (p *PumpController) apply(r models.Relay, on bool) {
	if p.relays.Mask().Get(r) == on && p.relays.Desired().Get(r) == on {
		return
	}
	if err := p.relays.Set(r, on); err != nil {
		p.log.Debugf("pumps: %v -> %v deferred: %v", r, on, err)
	}
}

// StopAll drops both circuits and any overrun in progress. The dwell
// guard may defer the physical off; Update keeps requesting until the
// state converges.
func (p *PumpController) StopAll(now time.Time) {
	p.mu.Lock()
	p.heatingActive = false
	p.waterActive = false
	p.heatingUntil = time.Time{}
	p.waterUntil = time.Time{}
	p.mu.Unlock()
	p.Update(now)
}

// ForceOn latches both circuits active, matching the posture the relay
// layer forces on severe escalations. The latch holds until the burner
// loop re-runs its mode bookkeeping after recovery.
func (p *PumpController) ForceOn() {
	p.mu.Lock()
	p.heatingActive = true
	p.waterActive = true
	p.heatingUntil = time.Time{}
	p.waterUntil = time.Time{}
	p.mu.Unlock()
}

// OverrunRemaining reports how much overrun time is left for a circuit,
// zero when none is armed.
func (p *PumpController) OverrunRemaining(mode models.BurnerMode, now time.Time) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	var until time.Time
	switch mode {
	case models.ModeHeating:
		until = p.heatingUntil
	case models.ModeWater:
		until = p.waterUntil
	}
	if until.IsZero() || !now.Before(until) {
		return 0
	}
	return until.Sub(now)
}
