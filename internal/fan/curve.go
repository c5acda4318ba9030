// Package fan maps temperatures to PWM fan speeds via the sysfs PWM
// interface.
package fan

// Curve converts a temperature to a PWM duty cycle in nanoseconds.
// Below MinTemp the fan is off; at MaxTemp and above it runs at MaxDuty;
// in between the duty is interpolated linearly between MinDuty and
// MaxDuty. Once the fan is running it keeps spinning until the
// temperature falls below MinTemp-Hysteresis, so it does not oscillate
// around the start threshold.
type Curve struct {
	MinTemp    float64 // °C, fan starts
	MaxTemp    float64 // °C, fan at MaxDuty
	Hysteresis float64 // °C
	MinDuty    int     // ns, lowest duty that reliably spins the fan
	MaxDuty    int     // ns

	running bool
}

// Duty returns the duty cycle for the given temperature.
func (c *Curve) Duty(temp float64) int {
	min := c.MinTemp
	if c.running {
		min = c.MinTemp - c.Hysteresis
	}

	switch {
	case temp < min:
		c.running = false
		return 0
	case temp >= c.MaxTemp:
		c.running = true
		return c.MaxDuty
	}

	c.running = true
	if temp < c.MinTemp {
		// Inside the hysteresis band: keep the fan at its minimum
		// speed instead of extrapolating below it.
		return c.MinDuty
	}
	ratio := (temp - c.MinTemp) / (c.MaxTemp - c.MinTemp)
	return c.MinDuty + int(float64(c.MaxDuty-c.MinDuty)*ratio)
}

// Running reports whether the fan is currently considered spinning.
func (c *Curve) Running() bool {
	return c.running
}
