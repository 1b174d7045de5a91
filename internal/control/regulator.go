package control

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"boilerctl/internal/config"
	"boilerctl/internal/logger"
	"boilerctl/internal/models"
)

const (
	regulateInterval = time.Second

	// waterChargeDelta is how far above the tank temperature the boiler
	// target sits while charging, so heat keeps flowing into the coil.
	waterChargeDelta models.Temperature = 100 // 10.0°C

	boilerTargetMin models.Temperature = 300 // 30.0°C
	boilerTargetMax models.Temperature = 850 // 85.0°C

	waterBandMin models.Temperature = 200 // 20.0°C
	waterBandMax models.Temperature = 750 // 75.0°C
	waterBandGap models.Temperature = 50  // 5.0°C

	// PID adjustment thresholds, in tenths. Below the maintain floor the
	// burner goes out; the band between maintain and half keeps the
	// previous decision, which is the hysteresis that stops hunting
	// around the setpoint.
	adjMaintainAt models.Temperature = 30
	adjHalfAt     models.Temperature = 50
	adjFullAt     models.Temperature = 100

	defaultHeatingTarget models.Temperature = 650 // 65.0°C
	defaultWaterLow      models.Temperature = 450 // 45.0°C
	defaultWaterHigh     models.Temperature = 650 // 65.0°C
)

// Regulator runs the temperature cascade: it picks the circuit to serve,
// feeds the boiler supply PID, maps the adjustment onto a discrete power
// demand and pushes it to the state machine every cycle. Water charging
// preempts heating.
//
// Setpoints and enables are atomics so the API layer writes them without
// touching the loop; everything else belongs to the loop goroutine.
type Regulator struct {
	log     *logger.Logger
	store   SnapshotSource
	machine *Machine
	flap    *AntiFlap
	pid     *PID

	heatingEnabled atomic.Bool
	waterEnabled   atomic.Bool
	heatingTarget  atomic.Int32
	waterLow       atomic.Int32
	waterHigh      atomic.Int32
	powerPref      atomic.Uint32
	output         atomic.Pointer[models.ControlOutput]
	waterCharging  atomic.Bool

	lastRun    time.Time
	lastAdj    models.Temperature
	haveAdj    bool
	lastActive bool
	lastHigh   bool
	lastMode   models.BurnerMode

	clock func() time.Time
}

func NewRegulator(store SnapshotSource, machine *Machine, flap *AntiFlap, pid *PID, log *logger.Logger) *Regulator {
	r := &Regulator{
		log:     log,
		store:   store,
		machine: machine,
		flap:    flap,
		pid:     pid,
		clock:   time.Now,
	}
	r.heatingTarget.Store(int32(defaultHeatingTarget))
	r.waterLow.Store(int32(defaultWaterLow))
	r.waterHigh.Store(int32(defaultWaterHigh))
	r.powerPref.Store(uint32(models.PowerAuto))
	return r
}

// EnableHeating switches the heating circuit on or off.
func (r *Regulator) EnableHeating(on bool) {
	if r.heatingEnabled.Swap(on) != on {
		r.log.Infof("regulator: heating circuit %v", onOff(on))
	}
}

// EnableWater switches the hot-water circuit on or off.
func (r *Regulator) EnableWater(on bool) {
	if r.waterEnabled.Swap(on) != on {
		r.log.Infof("regulator: water circuit %v", onOff(on))
	}
}

func onOff(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}

// HeatingEnabled reports whether the heating circuit is on.
func (r *Regulator) HeatingEnabled() bool { return r.heatingEnabled.Load() }

// WaterEnabled reports whether the hot-water circuit is on.
func (r *Regulator) WaterEnabled() bool { return r.waterEnabled.Load() }

// SetHeatingTarget updates the boiler supply setpoint for heating.
func (r *Regulator) SetHeatingTarget(t models.Temperature) error {
	if !t.Valid() || t < boilerTargetMin || t > boilerTargetMax {
		return fmt.Errorf("%w: heating target %v (allowed %v to %v)",
			config.ErrOutOfRange, t, boilerTargetMin, boilerTargetMax)
	}
	if models.Temperature(r.heatingTarget.Swap(int32(t))) != t {
		r.log.Infof("regulator: heating target %s°C", t)
	}
	return nil
}

// HeatingTarget returns the heating setpoint.
func (r *Regulator) HeatingTarget() models.Temperature {
	return models.Temperature(r.heatingTarget.Load())
}

// SetWaterBand updates the tank charge band: charging starts below low
// and stops at high.
func (r *Regulator) SetWaterBand(low, high models.Temperature) error {
	if !low.Valid() || !high.Valid() || low < waterBandMin || high > waterBandMax || low+waterBandGap > high {
		return fmt.Errorf("%w: water band %v to %v (allowed %v to %v, %v apart)",
			config.ErrOutOfRange, low, high, waterBandMin, waterBandMax, waterBandGap)
	}
	r.waterLow.Store(int32(low))
	r.waterHigh.Store(int32(high))
	r.log.Infof("regulator: water band %s°C to %s°C", low, high)
	return nil
}

// WaterBand returns the tank charge band.
func (r *Regulator) WaterBand() (low, high models.Temperature) {
	return models.Temperature(r.waterLow.Load()), models.Temperature(r.waterHigh.Load())
}

// SetPowerPreference biases the published demand: Auto lets the
// adjustment thresholds decide, Half caps the burner at half power, Full
// requests full power whenever the burner is on. The state machine still
// derates above its high-power block temperature.
func (r *Regulator) SetPowerPreference(p models.PowerLevel) error {
	switch p {
	case models.PowerAuto, models.PowerHalf, models.PowerFull:
	default:
		return fmt.Errorf("%w: power preference %v", config.ErrOutOfRange, p)
	}
	if models.PowerLevel(r.powerPref.Swap(uint32(p))) != p {
		r.log.Infof("regulator: power preference %v", p)
	}
	return nil
}

// PowerPreference returns the current power preference.
func (r *Regulator) PowerPreference() models.PowerLevel {
	return models.PowerLevel(r.powerPref.Load())
}

func (r *Regulator) preferredHigh(active, high bool) bool {
	switch models.PowerLevel(r.powerPref.Load()) {
	case models.PowerHalf:
		return false
	case models.PowerFull:
		return active
	}
	return high
}

// Modulation returns the current modulation percentage, zero while the
// burner is commanded off.
func (r *Regulator) Modulation() int {
	return r.Output().Modulation
}

// Output returns the decision published by the last regulation cycle.
// Changed is false when the cycle only re-sent content the actuation
// path already had.
func (r *Regulator) Output() models.ControlOutput {
	if o := r.output.Load(); o != nil {
		return *o
	}
	return models.ControlOutput{}
}

func (r *Regulator) setOutput(o models.ControlOutput) {
	r.output.Store(&o)
}

// refreshOutput re-stamps a held decision. The power preference still
// applies live, the same way the re-pushed demand applies it.
func (r *Regulator) refreshOutput(d models.HeatDemand) {
	o := r.Output()
	o.BurnerOn = d.Active
	o.Power = demandPower(d)
	o.Changed = false
	r.setOutput(o)
}

func demandPower(d models.HeatDemand) models.PowerLevel {
	switch {
	case !d.Active:
		return models.PowerOff
	case d.HighPower:
		return models.PowerFull
	default:
		return models.PowerHalf
	}
}

// WaterCharging reports whether a tank charge is in progress.
func (r *Regulator) WaterCharging() bool { return r.waterCharging.Load() }

// OnFailsafe clears accumulated control state so recovery starts from
// scratch instead of a stale integral. Registered as the regulator's
// failsafe handler.
func (r *Regulator) OnFailsafe(level models.FailsafeLevel, reason models.FailsafeReason) {
	if err := r.pid.Reset(); err != nil {
		r.log.Warnf("regulator: pid reset on failsafe: %v", err)
	}
	r.setOutput(models.ControlOutput{})
}

// Run drives the regulation loop until the context ends.
func (r *Regulator) Run(ctx context.Context) {
	ticker := time.NewTicker(regulateInterval)
	defer ticker.Stop()
	r.log.Infof("regulator: control loop started")
	for {
		select {
		case <-ctx.Done():
			r.log.Infof("regulator: control loop stopping")
			return
		case <-ticker.C:
			r.regulate(r.clock())
		}
	}
}

func (r *Regulator) regulate(now time.Time) {
	dt := regulateInterval
	if !r.lastRun.IsZero() {
		dt = now.Sub(r.lastRun)
	}
	r.lastRun = now

	snap, ok := r.store.Snapshot()
	if !ok {
		return
	}

	mode, target := r.pickCircuit(snap)
	if mode == models.ModeOff {
		prev := r.Output()
		r.setOutput(models.ControlOutput{
			Changed: prev.BurnerOn || prev.Power != models.PowerOff,
		})
		r.lastActive = false
		r.lastHigh = false
		r.haveAdj = false
		r.lastMode = models.ModeOff
		r.pushDemand(models.HeatDemand{})
		return
	}

	if mode != r.lastMode {
		// The integral built serving one circuit means nothing to the
		// other.
		if err := r.pid.Reset(); err != nil {
			r.log.Warnf("regulator: pid reset: %v", err)
		}
		r.haveAdj = false
		r.lastMode = mode
	}

	if !snap.BoilerSupplyValid {
		// Hold the last decision; persistent sensor trouble belongs to
		// the safety layers.
		d := r.lastDemand(mode, target)
		r.refreshOutput(d)
		r.pushDemand(d)
		return
	}

	adj := r.pid.Update(snap.BoilerSupply, target, dt)

	if r.haveAdj && !r.flap.SignificantChange(r.lastAdj, adj) {
		d := r.lastDemand(mode, target)
		r.refreshOutput(d)
		r.pushDemand(d)
		return
	}
	r.lastAdj = adj
	r.haveAdj = true

	active, high := r.lastActive, r.lastHigh
	switch {
	case adj >= adjFullAt:
		active, high = true, true
	case adj >= adjHalfAt:
		active, high = true, false
	case adj >= adjMaintainAt:
		// Inside the hysteresis band: keep the previous decision.
	default:
		active, high = false, false
	}
	r.lastActive, r.lastHigh = active, high

	d := models.HeatDemand{
		Active:    active,
		Mode:      mode,
		Target:    target,
		HighPower: r.preferredHigh(active, high),
	}
	mod := 0
	if active {
		mod = clampInt(50+int(adj)/10, 0, 100)
	}
	prev := r.Output()
	r.setOutput(models.ControlOutput{
		BurnerOn:   active,
		Power:      demandPower(d),
		Modulation: mod,
		Changed:    active != prev.BurnerOn || demandPower(d) != prev.Power,
	})
	r.pushDemand(d)
}

// pickCircuit applies water priority: a tank charge in progress claims
// the burner until the tank reaches the top of the band. A failed tank
// sensor drops the charge on the spot.
func (r *Regulator) pickCircuit(snap models.SensorSnapshot) (models.BurnerMode, models.Temperature) {
	if r.waterEnabled.Load() && snap.TankTempValid && snap.TankTemp.Valid() {
		low := models.Temperature(r.waterLow.Load())
		high := models.Temperature(r.waterHigh.Load())
		if r.waterCharging.Load() {
			if snap.TankTemp.GreaterOrEqual(high) {
				r.waterCharging.Store(false)
				r.log.Infof("regulator: tank charged to %s°C", snap.TankTemp)
			}
		} else if snap.TankTemp.Less(low) {
			r.waterCharging.Store(true)
			r.log.Infof("regulator: tank at %s°C, charging to %s°C", snap.TankTemp, high)
		}
	} else if r.waterCharging.Swap(false) {
		r.log.Warnf("regulator: tank reading unavailable, charge dropped")
	}

	if r.waterCharging.Load() {
		target := clampTemp(snap.TankTemp.Add(waterChargeDelta), boilerTargetMin, boilerTargetMax)
		return models.ModeWater, target
	}
	if r.heatingEnabled.Load() {
		return models.ModeHeating, models.Temperature(r.heatingTarget.Load())
	}
	return models.ModeOff, 0
}

func (r *Regulator) lastDemand(mode models.BurnerMode, target models.Temperature) models.HeatDemand {
	return models.HeatDemand{
		Active:    r.lastActive,
		Mode:      mode,
		Target:    target,
		HighPower: r.preferredHigh(r.lastActive, r.lastHigh),
	}
}

func (r *Regulator) pushDemand(d models.HeatDemand) {
	if err := r.machine.SetDemand(d); err != nil {
		r.log.Errorf("regulator: push demand: %v", err)
	}
}

func clampTemp(t, lo, hi models.Temperature) models.Temperature {
	if t < lo {
		return lo
	}
	if t > hi {
		return hi
	}
	return t
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
