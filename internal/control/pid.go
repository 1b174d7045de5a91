package control

import (
	"errors"
	"fmt"
	"time"

	"boilerctl/internal/config"
	"boilerctl/internal/logger"
	"boilerctl/internal/models"
)

// lockTimeout bounds every internal lock acquisition in this package. A
// caller that cannot get a lock within this window treats the call as
// failed and falls back to its per-site policy instead of blocking the
// control loop.
const lockTimeout = 100 * time.Millisecond

// ErrLockTimeout is returned by mutating calls that could not acquire
// their lock within lockTimeout.
var ErrLockTimeout = errors.New("control: lock timeout")

// gainScale is the fixed-point scale for PID gains: Kp=2000 means 2.0.
const gainScale = 1000

// DefaultTuning is the compiled-in PID tuning used until the repository
// carries a saved row for the loop. Gains are scaled by 1000; the output
// clamp is in tenths on the modulation scale, so ±1000 spans ±100.0.
var DefaultTuning = models.PIDTuning{
	Kp:        2000,
	Ki:        100,
	Kd:        500,
	OutputMin: -1000,
	OutputMax: 1000,
}

// PID is a fixed-point PID controller. All arithmetic runs on int64
// intermediates over tenths-of-a-degree inputs; no floating point enters
// the control path. The derivative acts on the process value rather than
// the error, so setpoint steps do not kick the output, and the integral
// only accumulates while the output is away from its clamp.
type PID struct {
	log    *logger.Logger
	name   string
	params *config.SafetyParams

	mu chan struct{}

	kp, ki, kd int32
	outputMin  models.Temperature
	outputMax  models.Temperature

	integral   int64
	previousPV models.Temperature
	firstRun   bool
	lastOutput models.Temperature
}

// NewPID builds a controller for one loop. The integral clamp is read
// from params on every update so runtime tuning of the anti-windup
// bounds takes effect without a restart.
func NewPID(name string, t models.PIDTuning, params *config.SafetyParams, log *logger.Logger) *PID {
	return &PID{
		log:       log,
		name:      name,
		params:    params,
		mu:        make(chan struct{}, 1),
		kp:        t.Kp,
		ki:        t.Ki,
		kd:        t.Kd,
		outputMin: t.OutputMin,
		outputMax: t.OutputMax,
		firstRun:  true,
	}
}

func (p *PID) acquire() bool {
	select {
	case p.mu <- struct{}{}:
		return true
	case <-time.After(lockTimeout):
		return false
	}
}

func (p *PID) release() { <-p.mu }

// Update runs one PID cycle and returns the new output in tenths on the
// modulation scale. When the lock cannot be acquired within the bounded
// timeout the previous output is returned unchanged: a repeated stale
// command is safer than a zero that would slam the burner off.
func (p *PID) Update(current, target models.Temperature, dt time.Duration) models.Temperature {
	// Integral bounds come from the shared parameter store; read them
	// before taking our own lock so no two locks are ever held at once.
	view := p.params.Snapshot()

	if !p.acquire() {
		p.log.Errorf("pid %s: lock timeout, reusing previous output %v", p.name, p.lastOutput)
		return p.lastOutput
	}
	defer p.release()

	if !current.Valid() || !target.Valid() {
		p.log.Warnf("pid %s: invalid input (pv=%v sp=%v), holding output", p.name, current, target)
		return p.lastOutput
	}

	dtMs := dt.Milliseconds()
	if dtMs <= 0 {
		p.log.Warnf("pid %s: zero time delta, using 1ms", p.name)
		dtMs = 1
	}

	errTenths := int64(target) - int64(current)

	pTerm := (int64(p.kp) * errTenths) / gainScale

	var dTerm int64
	if p.firstRun {
		p.firstRun = false
	} else {
		pvDelta := int64(current) - int64(p.previousPV)
		dRaw := (int64(p.kd) * -pvDelta * 1000) / dtMs
		dTerm = dRaw / gainScale
	}
	p.previousPV = current

	iTerm := (int64(p.ki) * p.integral) / gainScale

	// Conditional integration: freeze the accumulator while the
	// tentative output is pinned at a clamp and the error would push it
	// further in.
	tentative := pTerm + iTerm + dTerm
	saturatedHigh := tentative >= int64(p.outputMax) && errTenths > 0
	saturatedLow := tentative <= int64(p.outputMin) && errTenths < 0
	if !saturatedHigh && !saturatedLow {
		p.integral += (errTenths * dtMs) / 1000
		if p.integral > int64(view.PIDIntegralMax) {
			p.integral = int64(view.PIDIntegralMax)
		}
		if p.integral < int64(view.PIDIntegralMin) {
			p.integral = int64(view.PIDIntegralMin)
		}
		iTerm = (int64(p.ki) * p.integral) / gainScale
	}

	out := pTerm + iTerm + dTerm
	if out > int64(p.outputMax) {
		out = int64(p.outputMax)
	}
	if out < int64(p.outputMin) {
		out = int64(p.outputMin)
	}

	p.lastOutput = models.Temperature(out)
	return p.lastOutput
}

// Reset clears the accumulated state so the next Update starts a fresh
// cycle with no derivative history.
func (p *PID) Reset() error {
	if !p.acquire() {
		p.log.Errorf("pid %s: lock timeout on reset", p.name)
		return ErrLockTimeout
	}
	defer p.release()
	p.integral = 0
	p.previousPV = 0
	p.firstRun = true
	p.lastOutput = 0
	p.log.Infof("pid %s: state reset", p.name)
	return nil
}

// Tuning returns the active gains and output clamp.
func (p *PID) Tuning() (models.PIDTuning, error) {
	if !p.acquire() {
		return models.PIDTuning{}, ErrLockTimeout
	}
	defer p.release()
	return models.PIDTuning{
		Kp:        p.kp,
		Ki:        p.ki,
		Kd:        p.kd,
		OutputMin: p.outputMin,
		OutputMax: p.outputMax,
	}, nil
}

// SetTuning swaps gains and output clamp on a live controller. The
// accumulated integral is kept: re-tuning mid-burn must not drop the
// output to zero.
func (p *PID) SetTuning(t models.PIDTuning) error {
	if err := ValidateTuning(t); err != nil {
		return err
	}
	if !p.acquire() {
		return ErrLockTimeout
	}
	defer p.release()
	p.kp, p.ki, p.kd = t.Kp, t.Ki, t.Kd
	p.outputMin, p.outputMax = t.OutputMin, t.OutputMax
	p.log.Infof("pid %s: tuning changed kp=%d ki=%d kd=%d output=[%d,%d]",
		p.name, t.Kp, t.Ki, t.Kd, t.OutputMin, t.OutputMax)
	return nil
}

// ValidateTuning rejects gain sets that cannot form a stable controller:
// negative gains, an inverted output clamp, or a clamp that excludes zero.
func ValidateTuning(t models.PIDTuning) error {
	if t.Kp < 0 || t.Ki < 0 || t.Kd < 0 {
		return fmt.Errorf("pid tuning: negative gain kp=%d ki=%d kd=%d", t.Kp, t.Ki, t.Kd)
	}
	if t.OutputMin >= t.OutputMax {
		return fmt.Errorf("pid tuning: output clamp [%d,%d] inverted", t.OutputMin, t.OutputMax)
	}
	if t.OutputMin > 0 || t.OutputMax < 0 {
		return fmt.Errorf("pid tuning: output clamp [%d,%d] excludes zero", t.OutputMin, t.OutputMax)
	}
	return nil
}
