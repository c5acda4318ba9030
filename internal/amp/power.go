package amp

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sweeney/amp-control/internal/gpio"
)

// Power controls the shared main supply line. The line is safety-inverted:
// its electrical default (daemon absent or crashed) is the OFF level, so
// logical ON is the non-default level.
type Power struct {
	pin     int
	port    gpio.Port
	timeout time.Duration

	// busy reports whether any channel group is audible. Checked by the
	// deactivation timer callback; must be lock-free on the group side.
	busy func() bool

	// fatal escalates a GPIO failure from the timer goroutine. Called
	// without the lock held.
	fatal func(error)

	mu         sync.Mutex
	state      atomic.Int32
	deactivate pendingTimer
}

// NewPower creates the supply controller in the Off state.
func NewPower(pin int, port gpio.Port, timeout time.Duration) *Power {
	return &Power{pin: pin, port: port, timeout: timeout}
}

// State returns the current state tag. Lock-free.
func (p *Power) State() PowerState {
	return PowerState(p.state.Load())
}

// IsActive reports whether the supply is on. Lock-free.
func (p *Power) IsActive() bool { return p.State() == PowerOn }

func (p *Power) setState(s PowerState) {
	p.state.Store(int32(s))
}

// Activate turns the supply on. The pending deactivation timer is cancelled
// unconditionally, before the state check: when power is already on but a
// power-off timer is armed from an earlier idle period, a new playback start
// must clear that timer even though no line level changes.
func (p *Power) Activate() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.deactivate.pending() {
		log.Printf("amp: power: cancelling pending deactivation")
	}
	p.deactivate.cancel()

	if p.State() == PowerOn {
		return nil
	}

	log.Printf("amp: power: activating supply")
	if err := p.port.SetLine(p.pin, true); err != nil {
		return err
	}
	p.setState(PowerOn)
	return nil
}

// ScheduleDeactivation arms (or re-arms) the power-off timer, replacing any
// existing one.
func (p *Power) ScheduleDeactivation() {
	p.mu.Lock()
	defer p.mu.Unlock()
	log.Printf("amp: power: scheduling deactivation in %v", p.timeout)
	p.deactivate.schedule(p.timeout, p.deactivateNow)
}

// deactivateNow is the power-off timer callback.
func (p *Power) deactivateNow() {
	if err := p.tryDeactivate(); err != nil && p.fatal != nil {
		p.fatal(err)
	}
}

// tryDeactivate turns the supply off unless a group became active since the
// timer was armed.
func (p *Power) tryDeactivate() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.busy != nil && p.busy() {
		log.Printf("amp: power: deactivation aborted, channel groups active")
		return nil
	}
	if p.State() == PowerOff {
		log.Printf("amp: power: deactivation timer fired with supply already off")
		return nil
	}

	log.Printf("amp: power: deactivating supply")
	if err := p.port.SetLine(p.pin, false); err != nil {
		return err
	}
	p.setState(PowerOff)
	return nil
}

// ForceOff drives the supply to its fail-safe level immediately, cancelling
// any pending timer. Used by the emergency stop and the shutdown path; a
// write failure is logged, not escalated, to keep those sequences moving.
func (p *Power) ForceOff() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.deactivate.cancel()
	if err := p.port.SetLine(p.pin, false); err != nil {
		log.Printf("amp: power: forced off: supply write failed: %v", err)
	}
	p.setState(PowerOff)
	log.Printf("amp: power: supply off")
}
