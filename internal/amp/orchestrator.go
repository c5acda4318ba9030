package amp

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/sweeney/amp-control/internal/gpio"
)

// Config assembles the orchestrator and its controllers.
type Config struct {
	Port        gpio.Port
	Timing      Timing
	PowerPin    int
	ErrorLEDPin int
	Groups      []GroupSpec
}

// Orchestrator owns the player→group registry, fans inbound events out to
// the controllers, and sequences the critical-error and shutdown paths.
// A single instance is constructed at startup and passed explicitly to every
// handler; there are no package-level globals.
type Orchestrator struct {
	port        gpio.Port
	power       *Power
	groups      []*Group
	players     map[string]*Group
	errorLEDPin int

	ctx    context.Context
	cancel context.CancelFunc

	// onFault hands off to the status exporter for a final snapshot after
	// the emergency stop has de-energized the hardware.
	onFault func()

	errMu    sync.Mutex
	lastErr  error
	errorLED atomic.Bool
}

// New builds the orchestrator, the power controller and one controller per
// configured group, and wires the callbacks between them.
func New(cfg Config) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())

	o := &Orchestrator{
		port:        cfg.Port,
		errorLEDPin: cfg.ErrorLEDPin,
		players:     make(map[string]*Group),
		ctx:         ctx,
		cancel:      cancel,
	}

	o.power = NewPower(cfg.PowerPin, cfg.Port, cfg.Timing.PowerTimeout)
	o.power.busy = o.anyGroupActive
	o.power.fatal = o.CriticalError

	for _, spec := range cfg.Groups {
		g := NewGroup(spec, cfg.Port, cfg.Timing)
		g.ctx = ctx
		g.onIdle = o.CheckPowerDeactivation
		g.fatal = o.CriticalError
		o.groups = append(o.groups, g)
		for player := range spec.Players {
			o.players[player] = g
		}
	}

	return o
}

// SetFaultHook registers the final-snapshot hand-off run at the end of the
// critical-error sequence.
func (o *Orchestrator) SetFaultHook(fn func()) {
	o.onFault = fn
}

// InitHardware brings every group to its defined initial levels. A failure
// here is fatal at startup: the daemon must not run with lines it could not
// drive.
func (o *Orchestrator) InitHardware() error {
	for _, g := range o.groups {
		if err := g.InitHardware(); err != nil {
			return fmt.Errorf("init %s: %w", g.Name, err)
		}
	}
	log.Printf("amp: initialized %d channel groups, %d players", len(o.groups), len(o.players))
	return nil
}

// Groups returns the channel-group controllers in configuration order.
func (o *Orchestrator) Groups() []*Group {
	return o.groups
}

// Power returns the supply controller.
func (o *Orchestrator) Power() *Power {
	return o.power
}

// HandleEvent processes one inbound player notification. Unknown players
// are logged and ignored — the transport has already acknowledged ingestion.
// Pause counts as activation: a paused player keeps its group awake until an
// explicit stop.
func (o *Orchestrator) HandleEvent(player string, state PlayerState) {
	g, ok := o.players[player]
	if !ok {
		log.Printf("amp: unknown player %q, ignoring", player)
		return
	}

	switch state {
	case PlayerPlay, PlayerPause:
		log.Printf("amp: player %s starting playback (%s)", player, state)
		// Activate unconditionally: even with the supply already on this
		// must cancel a pending power-off timer.
		if err := o.power.Activate(); err != nil {
			o.CriticalError(fmt.Errorf("activate power supply: %w", err))
			return
		}
		if err := g.ActivatePlayer(player); err != nil {
			o.CriticalError(fmt.Errorf("activate %s on %s: %w", player, g.Name, err))
			return
		}
	case PlayerStop:
		log.Printf("amp: player %s stopping playback", player)
		if err := g.DeactivatePlayer(player); err != nil {
			o.CriticalError(fmt.Errorf("deactivate %s on %s: %w", player, g.Name, err))
			return
		}
		o.CheckPowerDeactivation()
	default:
		log.Printf("amp: player %s: unknown state %d, ignoring", player, int(state))
	}
}

// CheckPowerDeactivation arms the power-off timer when every group is idle
// and the supply is on. Runs after every stop event and after every suspend
// completion. Reads group state lock-free, so it is safe from inside a
// group's own call chain.
func (o *Orchestrator) CheckPowerDeactivation() {
	if o.anyGroupActive() {
		return
	}
	if !o.power.IsActive() {
		return
	}
	log.Printf("amp: all channel groups idle, scheduling power-off")
	o.power.ScheduleDeactivation()
}

func (o *Orchestrator) anyGroupActive() bool {
	for _, g := range o.groups {
		if g.IsActive() {
			return true
		}
	}
	return false
}

// CriticalError executes the emergency stop: record the fault, light the
// error indicator, force every group to Suspended, cut the supply, then
// hand off for a final status snapshot. Hardware is de-energized before the
// process reports failure. Callers must not hold any entity lock.
func (o *Orchestrator) CriticalError(err error) {
	log.Printf("amp: CRITICAL: %v", err)

	o.errMu.Lock()
	if o.lastErr == nil {
		o.lastErr = err
	}
	o.errMu.Unlock()

	o.setErrorLED(true)

	log.Printf("amp: emergency stop: suspending all channel groups")
	for _, g := range o.groups {
		g.ForceSuspend()
	}

	log.Printf("amp: emergency stop: deactivating power supply")
	o.power.ForceOff()

	if o.onFault != nil {
		o.onFault()
	}
}

// Shutdown executes the hardware half of the graceful stop: mute whatever is
// audible, force every group to Suspended, cut the supply, then light the
// error indicator — lit meaning "daemon not running". The caller stops the
// status ticker before calling this and writes the final snapshot and
// releases socket/PID artifacts after it returns.
func (o *Orchestrator) Shutdown() {
	o.cancel()

	log.Printf("amp: shutdown: muting active channel groups")
	for _, g := range o.groups {
		if g.IsActive() {
			if err := g.Mute(); err != nil {
				log.Printf("amp: shutdown: mute %s failed: %v", g.Name, err)
			}
		}
	}

	log.Printf("amp: shutdown: suspending all channel groups")
	for _, g := range o.groups {
		g.ForceSuspend()
	}

	log.Printf("amp: shutdown: deactivating power supply")
	o.power.ForceOff()

	o.setErrorLED(true)
}

// ErrorLEDActive reports whether the error indicator has been driven active.
func (o *Orchestrator) ErrorLEDActive() bool {
	return o.errorLED.Load()
}

// LastError returns the first recorded critical fault, if any.
func (o *Orchestrator) LastError() error {
	o.errMu.Lock()
	defer o.errMu.Unlock()
	return o.lastErr
}

func (o *Orchestrator) setErrorLED(on bool) {
	if err := o.port.SetLine(o.errorLEDPin, on); err != nil {
		log.Printf("amp: error led write failed: %v", err)
	}
	o.errorLED.Store(on)
}
