//go:build linux

package relay

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"

	"boilerctl/internal/models"
)

// GPIODriver drives the relay board through the Linux GPIO character
// device. One line per logical relay, in index order; boards that switch
// on a low level are handled with the active-low option so the rest of
// the code only ever sees logical states.
type GPIODriver struct {
	chip  *gpiocdev.Chip
	lines [models.RelayCount]*gpiocdev.Line
}

// NewGPIODriver opens the chip and claims one output line per relay,
// all initialized open.
func NewGPIODriver(chipName string, offsets []int, activeLow bool) (*GPIODriver, error) {
	if len(offsets) != models.RelayCount {
		return nil, fmt.Errorf("need %d gpio line offsets, got %d", models.RelayCount, len(offsets))
	}

	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	d := &GPIODriver{chip: chip}
	for i, offset := range offsets {
		opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0)}
		if activeLow {
			opts = append(opts, gpiocdev.AsActiveLow)
		}
		line, err := chip.RequestLine(offset, opts...)
		if err != nil {
			d.closeLines()
			return nil, fmt.Errorf("request line %d for %s: %w", offset, models.Relay(i), err)
		}
		d.lines[i] = line
	}
	return d, nil
}

// Apply sets the line and reads it back; a readback mismatch counts as
// an unconfirmed command.
func (d *GPIODriver) Apply(r models.Relay, on bool) error {
	if !r.Valid() || d.lines[r] == nil {
		return fmt.Errorf("invalid relay %d", r)
	}

	want := 0
	if on {
		want = 1
	}
	if err := d.lines[r].SetValue(want); err != nil {
		return fmt.Errorf("set %s: %w", r, err)
	}
	got, err := d.lines[r].Value()
	if err != nil {
		return fmt.Errorf("confirm %s: %w", r, err)
	}
	if got != want {
		return fmt.Errorf("%s not confirmed: wrote %d, read %d", r, want, got)
	}
	return nil
}

// Close opens every relay before releasing the lines, so a process exit
// never leaves fuel or pumps energized.
func (d *GPIODriver) Close() error {
	var errs []error
	for i, line := range d.lines {
		if line == nil {
			continue
		}
		if err := line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("open %s: %w", models.Relay(i), err))
		}
	}
	d.closeLines()
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func (d *GPIODriver) closeLines() {
	for _, line := range d.lines {
		if line != nil {
			_ = line.Close()
		}
	}
	if d.chip != nil {
		_ = d.chip.Close()
	}
}
