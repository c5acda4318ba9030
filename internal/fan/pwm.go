package fan

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// DefaultChipPath is the sysfs directory of the Pi's PWM controller.
const DefaultChipPath = "/sys/class/pwm/pwmchip0"

// PWM drives one channel of a sysfs PWM chip.
type PWM struct {
	chip         string
	channel      int
	period       int
	shutdownDuty int
	current      int
	exported     bool
}

// NewPWM exports the channel if needed, sets the period and enables
// output. period and shutdownDuty are in nanoseconds; shutdownDuty is
// applied before the channel is disabled on Close.
func NewPWM(chip string, channel, period, shutdownDuty int) (*PWM, error) {
	p := &PWM{
		chip:         chip,
		channel:      channel,
		period:       period,
		shutdownDuty: shutdownDuty,
		current:      -1,
	}

	if _, err := os.Stat(p.channelPath()); os.IsNotExist(err) {
		if err := writeSysfs(filepath.Join(chip, "export"), strconv.Itoa(channel)); err != nil {
			return nil, fmt.Errorf("export pwm%d: %w", channel, err)
		}
		p.exported = true
		// The kernel needs a moment to create the channel directory.
		time.Sleep(100 * time.Millisecond)
	}

	if err := writeSysfs(filepath.Join(p.channelPath(), "period"), strconv.Itoa(period)); err != nil {
		return nil, fmt.Errorf("set period: %w", err)
	}
	if err := writeSysfs(filepath.Join(p.channelPath(), "enable"), "1"); err != nil {
		return nil, fmt.Errorf("enable pwm%d: %w", channel, err)
	}
	return p, nil
}

// SetDuty sets the duty cycle in nanoseconds, clamped to [0, period].
func (p *PWM) SetDuty(duty int) error {
	if duty < 0 {
		duty = 0
	}
	if duty > p.period {
		duty = p.period
	}
	if duty == p.current {
		return nil
	}
	if err := writeSysfs(filepath.Join(p.channelPath(), "duty_cycle"), strconv.Itoa(duty)); err != nil {
		return fmt.Errorf("set duty cycle: %w", err)
	}
	log.Printf("fan: speed %.1f%% (duty %d ns)", float64(duty)/float64(p.period)*100, duty)
	p.current = duty
	return nil
}

// Duty returns the last duty cycle written, or -1 before the first write.
func (p *PWM) Duty() int {
	return p.current
}

// Close parks the fan at the shutdown duty, disables the channel and
// unexports it if this process exported it. Failures during teardown
// are logged, not returned.
func (p *PWM) Close() error {
	if err := p.SetDuty(p.shutdownDuty); err != nil {
		log.Printf("fan: set shutdown duty: %v", err)
	}
	time.Sleep(500 * time.Millisecond)

	if err := writeSysfs(filepath.Join(p.channelPath(), "enable"), "0"); err != nil {
		log.Printf("fan: disable pwm%d: %v", p.channel, err)
	}
	if p.exported {
		if err := writeSysfs(filepath.Join(p.chip, "unexport"), strconv.Itoa(p.channel)); err != nil {
			log.Printf("fan: unexport pwm%d: %v", p.channel, err)
		}
	}
	return nil
}

func (p *PWM) channelPath() string {
	return filepath.Join(p.chip, fmt.Sprintf("pwm%d", p.channel))
}

func writeSysfs(path, value string) error {
	return os.WriteFile(path, []byte(value), 0o644)
}
