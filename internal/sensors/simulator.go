package sensors

import (
	"context"
	"time"

	"boilerctl/internal/models"
)

// ----------- Plant model constants -----------
const (
	simAmbientC    = 21.0 // room around the boiler
	simOutsideC    = 8.0  // fixed outdoor reading
	simTankStartC  = 35.0 // standing tank charge at boot
	simInsideWarmC = 22.5 // indoor temp with heating running
	simInsideColdC = 16.0 // indoor temp drift without heating

	simHalfPowerCPerSec = 0.4  // supply rise while firing at half power
	simFullPowerCPerSec = 0.8  // supply rise while firing at full power
	simFlameCapC        = 96.0 // flame cannot push supply past this
	simIdleCoolCPerSec  = 0.06 // supply drift toward ambient, burner off

	simCircuitDropC      = 12.0  // supply-to-return drop with heating pump on
	simMixCPerSec        = 0.5   // return chase rate while circulating
	simStagnantCPerSec   = 0.05  // return equalizing toward supply, pump off
	simTankChargeCPerSec = 0.12  // tank rise while water pump moves heat
	simTankCoolCPerSec   = 0.005 // insulated tank standing loss
	simInsideCPerSec     = 0.004 // indoor temperature inertia

	simPressureBaseBar = 1.5   // system pressure at 20 °C supply
	simPressureBarPerC = 0.004 // thermal expansion rise per °C above that
)

// RelaySource lets the simulator observe the commanded outputs so the
// modeled plant responds to them.
type RelaySource interface {
	Mask() models.RelayMask
}

// Simulator generates plausible sensor readings into the store so the
// whole control stack runs on a machine with no boiler attached. The
// plant math is deliberately coarse; it only has to move the right
// direction at the right rough speed.
type Simulator struct {
	store  *SnapshotStore
	relays RelaySource

	supplyC float64
	returnC float64
	tankC   float64
	insideC float64

	lastTick time.Time
}

// NewSimulator returns a simulator for a cold boiler with a half-warm tank.
func NewSimulator(store *SnapshotStore, relays RelaySource) *Simulator {
	return &Simulator{
		store:   store,
		relays:  relays,
		supplyC: simAmbientC,
		returnC: simAmbientC,
		tankC:   simTankStartC,
		insideC: simInsideColdC,
	}
}

// Run ticks at the given interval until ctx is canceled.
func (s *Simulator) Run(ctx context.Context, tick time.Duration) {
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			s.step(now)
		}
	}
}

// step advances the plant by the wall-clock time since the previous step
// and publishes the result. The first call seeds the clock and publishes
// the boot state.
func (s *Simulator) step(now time.Time) {
	if s.lastTick.IsZero() {
		s.lastTick = now
		s.store.SetCommOK(true)
		s.publish(now)
		return
	}
	elapsed := now.Sub(s.lastTick).Seconds()
	s.lastTick = now
	if elapsed <= 0 {
		return
	}

	mask := s.relays.Mask()
	firing := mask.Get(models.RelayBurnerEnable) || mask.Get(models.RelayWaterMode)
	fullPower := firing && mask.Get(models.RelayPowerBoost)
	heatingPump := mask.Get(models.RelayHeatingPump)
	waterPump := mask.Get(models.RelayWaterPump)

	// Supply: flame pushes it up, otherwise it drifts toward ambient.
	if firing {
		rate := simHalfPowerCPerSec
		if fullPower {
			rate = simFullPowerCPerSec
		}
		s.supplyC += rate * elapsed
		if s.supplyC > simFlameCapC {
			s.supplyC = simFlameCapC
		}
	} else {
		s.supplyC = stepToward(s.supplyC, simAmbientC, simIdleCoolCPerSec*elapsed)
	}

	// Return: trails supply by the circuit drop while circulating,
	// slowly equalizes with supply when the water is stagnant.
	if heatingPump {
		s.returnC = stepToward(s.returnC, s.supplyC-simCircuitDropC, simMixCPerSec*elapsed)
	} else {
		s.returnC = stepToward(s.returnC, s.supplyC, simStagnantCPerSec*elapsed)
	}

	// Tank: charges toward supply while the water pump moves heat,
	// otherwise loses a little through the insulation.
	if waterPump {
		s.tankC = stepToward(s.tankC, s.supplyC, simTankChargeCPerSec*elapsed)
	} else {
		s.tankC = stepToward(s.tankC, simAmbientC, simTankCoolCPerSec*elapsed)
	}

	// Indoor temperature follows the heating circuit with big inertia.
	if heatingPump {
		s.insideC = stepToward(s.insideC, simInsideWarmC, simInsideCPerSec*elapsed)
	} else {
		s.insideC = stepToward(s.insideC, simInsideColdC, simInsideCPerSec*elapsed)
	}

	s.publish(now)
}

func (s *Simulator) publish(now time.Time) {
	_ = s.store.SetTemperatures(TemperatureReadings{
		BoilerSupply: models.TempFromCelsius(s.supplyC),
		BoilerReturn: models.TempFromCelsius(s.returnC),
		Tank:         models.TempFromCelsius(s.tankC),
		Outside:      models.TempFromCelsius(simOutsideC),
		Inside:       models.TempFromCelsius(s.insideC),
	}, now)

	bar := simPressureBaseBar + (s.supplyC-20.0)*simPressureBarPerC
	_ = s.store.SetPressure(models.PressureFromBar(bar), now)
}

// stepToward moves cur toward target by at most maxStep.
func stepToward(cur, target, maxStep float64) float64 {
	if cur < target {
		cur += maxStep
		if cur > target {
			cur = target
		}
	} else if cur > target {
		cur -= maxStep
		if cur < target {
			cur = target
		}
	}
	return cur
}
