//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealPort drives output lines on actual hardware using the Linux GPIO
// character device.
type RealPort struct {
	chip  *gpiocdev.Chip
	lines map[int]*gpiocdev.Line
	specs map[int]Line
}

// NewRealPort opens the chip and requests every line as an output at its
// logical inactive level. Failing to claim any line releases everything
// already claimed and returns an error.
func NewRealPort(chipName string, lines []Line) (*RealPort, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	p := &RealPort{
		chip:  chip,
		lines: make(map[int]*gpiocdev.Line, len(lines)),
		specs: make(map[int]Line, len(lines)),
	}

	for _, spec := range lines {
		opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0)}
		if spec.ActiveLow {
			opts = append(opts, gpiocdev.AsActiveLow)
		}
		line, err := chip.RequestLine(spec.Pin, opts...)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("request line %s (pin %d): %w", spec.Name, spec.Pin, err)
		}
		p.lines[spec.Pin] = line
		p.specs[spec.Pin] = spec
	}

	return p, nil
}

// SetLine drives the line to its logical active or inactive level.
func (p *RealPort) SetLine(pin int, active bool) error {
	line, ok := p.lines[pin]
	if !ok {
		return fmt.Errorf("set line: pin %d not claimed", pin)
	}

	v := 0
	if active {
		v = 1
	}
	if err := line.SetValue(v); err != nil {
		return fmt.Errorf("set line %s (pin %d) to %d: %w", p.specs[pin].Name, pin, v, err)
	}
	return nil
}

// Close drives every line inactive and releases GPIO resources.
// Lines are returned at their fail-safe level so a daemon restart or system
// shutdown never leaves an amplifier enabled or the supply on.
func (p *RealPort) Close() error {
	var errs []error

	for pin, line := range p.lines {
		if err := line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("reset %s (pin %d): %w", p.specs[pin].Name, pin, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s (pin %d): %w", p.specs[pin].Name, pin, err))
		}
	}
	if p.chip != nil {
		if err := p.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
