package control

import "boilerctl/internal/models"

// FuelCommands computes the relay commands that move the fuel outputs
// from their current state to the requested mode and power. Commands are
// ordered so the boost relay is never energized without its base: drops
// come first with boost ahead of its base, then the wanted base, then
// boost. Bits already in the right state produce no command.
//
// The diverter valve is not a fuel output; it follows the water pump in
// the pump controller so residual heat keeps flowing to the tank during
// overrun.
func FuelCommands(current models.RelayMask, mode models.BurnerMode, level models.PowerLevel) []models.RelayCommand {
	wantHeat := mode == models.ModeHeating && level != models.PowerOff
	wantWater := mode == models.ModeWater && level != models.PowerOff
	wantBoost := (wantHeat || wantWater) && level == models.PowerFull

	var cmds []models.RelayCommand
	add := func(r models.Relay, on bool) {
		if current.Get(r) != on {
			cmds = append(cmds, models.RelayCommand{Relay: r, On: on})
		}
	}

	if !wantBoost {
		add(models.RelayPowerBoost, false)
	}
	if !wantHeat {
		add(models.RelayBurnerEnable, false)
	}
	if !wantWater {
		add(models.RelayWaterMode, false)
	}

	if wantHeat {
		add(models.RelayBurnerEnable, true)
	}
	if wantWater {
		add(models.RelayWaterMode, true)
	}
	if wantBoost {
		add(models.RelayPowerBoost, true)
	}
	return cmds
}

// FlameActive reports whether a confirmed base fuel path is energized.
// With no flame-eye input the confirmed fuel relays stand in for flame
// supervision.
func FlameActive(mask models.RelayMask) bool {
	return mask.Get(models.RelayBurnerEnable) || mask.Get(models.RelayWaterMode)
}
