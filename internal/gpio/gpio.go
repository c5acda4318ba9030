// Package gpio provides GPIO output control with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Line describes a single output line claimed at startup.
type Line struct {
	// Pin is the BCM line offset on the GPIO chip.
	Pin int

	// Name identifies the line in logs and errors (e.g. "KAB9_1/mute").
	Name string

	// ActiveLow inverts the electrical level: logical active drives the
	// line low. Used for the power supply and amplifier enable lines,
	// whose fail-safe (unpowered) level is high.
	ActiveLow bool
}

// Port drives GPIO output lines.
//
// Every line is requested as an output at its logical inactive level before
// any control logic runs, so an unstarted or crashed controller always
// leaves the hardware at its fail-safe defaults.
type Port interface {
	// SetLine drives the line to its logical active or inactive level.
	// A failure is a hardware fault and must be escalated by the caller.
	SetLine(pin int, active bool) error

	// Close drives every line inactive and releases GPIO resources.
	Close() error
}
