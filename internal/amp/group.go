package amp

import (
	"context"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sweeney/amp-control/internal/gpio"
)

// GroupSpec describes one channel group as configured at startup.
type GroupSpec struct {
	ID        int
	Name      string
	EnablePin int
	MutePin   int
	LEDPin    int

	// TempSensor is an optional 1-wire sensor id read by the status
	// exporter, not by the control logic.
	TempSensor string

	// Players maps player name to display label. Read-only after startup.
	Players map[string]string
}

// Group controls one amplifier channel group. It owns three GPIO lines
// (enable, mute, indicator LED), the set of currently active players routed
// to it, and the pending suspend timer.
type Group struct {
	ID         int
	Name       string
	TempSensor string
	Labels     map[string]string

	enablePin int
	mutePin   int
	ledPin    int

	port   gpio.Port
	timing Timing

	// ctx interrupts the settle waits on shutdown.
	ctx context.Context

	// onIdle runs after a suspend attempt finishes (completed or aborted)
	// so the orchestrator can check for whole-system idleness. Called
	// without the lock held.
	onIdle func()

	// fatal escalates a GPIO failure from the suspend timer goroutine,
	// where no caller can receive the error. Called without the lock held.
	fatal func(error)

	mu      sync.Mutex
	state   atomic.Int32
	active  map[string]struct{}
	suspend pendingTimer
}

// NewGroup creates a controller in the Suspended state. The orchestrator
// wires the onIdle/fatal callbacks and the shutdown context.
func NewGroup(spec GroupSpec, port gpio.Port, timing Timing) *Group {
	labels := make(map[string]string, len(spec.Players))
	for name, label := range spec.Players {
		if label == "" {
			label = name
		}
		labels[name] = label
	}
	return &Group{
		ID:         spec.ID,
		Name:       spec.Name,
		TempSensor: spec.TempSensor,
		Labels:     labels,
		enablePin:  spec.EnablePin,
		mutePin:    spec.MutePin,
		ledPin:     spec.LEDPin,
		port:       port,
		timing:     timing,
		ctx:        context.Background(),
		active:     make(map[string]struct{}),
	}
}

// State returns the current state tag. Lock-free.
func (g *Group) State() GroupState {
	return GroupState(g.state.Load())
}

// IsActive reports whether the group is audible. Lock-free.
func (g *Group) IsActive() bool { return g.State() == GroupOn }

// IsMuted reports whether the group is muted. Lock-free.
func (g *Group) IsMuted() bool { return g.State() == GroupMuted }

// IsSuspended reports whether the group is suspended. Lock-free.
func (g *Group) IsSuspended() bool { return g.State() == GroupSuspended }

func (g *Group) setState(s GroupState) {
	g.state.Store(int32(s))
}

// InitHardware asserts the mute line so the group starts muted as well as
// suspended. The port already drove enable and LED to their inactive levels
// when the lines were claimed.
func (g *Group) InitHardware() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.port.SetLine(g.mutePin, true); err != nil {
		return err
	}
	log.Printf("amp: %s: hardware initialized (enable=%d mute=%d led=%d)",
		g.Name, g.enablePin, g.mutePin, g.ledPin)
	return nil
}

// ActivatePlayer marks a player active and wakes the group as needed:
// a suspended group is resumed, a muted one unmuted (a restart during the
// mute window must never leave the channel inaudible). Any pending suspend
// is cancelled before returning.
func (g *Group) ActivatePlayer(player string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.active[player] = struct{}{}

	var err error
	switch g.State() {
	case GroupSuspended:
		err = g.resumeLocked()
	case GroupMuted:
		err = g.unmuteLocked()
	case GroupOn:
		// already audible, nothing to drive
	}

	g.suspend.cancel()
	return err
}

// DeactivatePlayer marks a player inactive. When the last player stops, the
// group is muted immediately — zero delay, so the stop never pops — and a
// suspend is scheduled. Deactivating an already-inactive player is a no-op.
func (g *Group) DeactivatePlayer(player string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.active[player]; !ok {
		return nil
	}
	delete(g.active, player)
	if len(g.active) > 0 {
		return nil
	}

	if err := g.muteLocked(); err != nil {
		return err
	}
	log.Printf("amp: %s: scheduling suspend in %v", g.Name, g.timing.SuspendDelay)
	g.suspend.schedule(g.timing.SuspendDelay, g.suspendNow)
	return nil
}

// Mute mutes an audible group. Part of the shutdown sequence.
func (g *Group) Mute() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.muteLocked()
}

// resumeLocked wakes a suspended group: enable, settle, unmute, LED on.
func (g *Group) resumeLocked() error {
	if g.State() != GroupSuspended {
		log.Printf("amp: %s: resume requested in state %s, ignoring", g.Name, g.State())
		return nil
	}
	log.Printf("amp: %s: resuming", g.Name)
	if err := g.port.SetLine(g.enablePin, true); err != nil {
		return err
	}
	g.settle(g.timing.GPIODelay)
	if err := g.port.SetLine(g.mutePin, false); err != nil {
		return err
	}
	if err := g.port.SetLine(g.ledPin, true); err != nil {
		return err
	}
	g.setState(GroupOn)
	log.Printf("amp: %s: on", g.Name)
	return nil
}

// unmuteLocked makes a muted group audible again. Calling it from Suspended
// is a programming anomaly: warn and drive nothing.
func (g *Group) unmuteLocked() error {
	if g.State() != GroupMuted {
		log.Printf("amp: %s: unmute requested in state %s, ignoring", g.Name, g.State())
		return nil
	}
	if err := g.port.SetLine(g.mutePin, false); err != nil {
		return err
	}
	g.setState(GroupOn)
	log.Printf("amp: %s: unmuted", g.Name)
	return nil
}

// muteLocked silences an audible group. No delay.
func (g *Group) muteLocked() error {
	if g.State() != GroupOn {
		log.Printf("amp: %s: mute requested in state %s, ignoring", g.Name, g.State())
		return nil
	}
	if err := g.port.SetLine(g.mutePin, true); err != nil {
		return err
	}
	g.setState(GroupMuted)
	log.Printf("amp: %s: muted", g.Name)
	return nil
}

// suspendNow is the suspend timer callback.
func (g *Group) suspendNow() {
	if err := g.trySuspend(); err != nil {
		if g.fatal != nil {
			g.fatal(err)
		}
		return
	}
	if g.onIdle != nil {
		g.onIdle()
	}
}

// trySuspend runs the delayed suspend sequence. Everything is re-validated
// under fresh lock acquisitions: an unbounded amount of time has passed
// since scheduling, and players may restart at any point, including during
// the mute-settle wait. The lock is released for that wait so concurrent
// activations are never starved.
func (g *Group) trySuspend() error {
	g.mu.Lock()
	if g.State() != GroupMuted {
		// Another transition superseded this timer. Not an error.
		log.Printf("amp: %s: suspend timer fired in state %s, nothing to do", g.Name, g.State())
		g.mu.Unlock()
		return nil
	}
	if len(g.active) > 0 {
		log.Printf("amp: %s: players active again, aborting suspend", g.Name)
		err := g.unmuteLocked()
		g.mu.Unlock()
		return err
	}
	g.mu.Unlock()

	g.settle(g.timing.MuteDelay)
	if g.ctx.Err() != nil {
		// Shutting down; the shutdown path forces suspension itself.
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.State() != GroupMuted {
		log.Printf("amp: %s: suspend superseded during mute settle, nothing to do", g.Name)
		return nil
	}
	if len(g.active) > 0 {
		log.Printf("amp: %s: players active again, aborting suspend", g.Name)
		return g.unmuteLocked()
	}

	log.Printf("amp: %s: suspending", g.Name)
	if err := g.port.SetLine(g.enablePin, false); err != nil {
		return err
	}
	g.settle(g.timing.GPIODelay)
	if err := g.port.SetLine(g.ledPin, false); err != nil {
		return err
	}
	g.setState(GroupSuspended)
	log.Printf("amp: %s: suspended", g.Name)
	return nil
}

// ForceSuspend drives the group to Suspended immediately: mute, cut enable,
// LED off, no settle delays, pending timer cancelled. Used by the emergency
// stop and the shutdown path. Write failures are logged and the remaining
// lines are still driven — the goal is to de-energize as much as possible.
func (g *Group) ForceSuspend() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.suspend.cancel()

	writes := []struct {
		pin    int
		active bool
		what   string
	}{
		{g.mutePin, true, "mute"},
		{g.enablePin, false, "enable"},
		{g.ledPin, false, "led"},
	}
	for _, w := range writes {
		if err := g.port.SetLine(w.pin, w.active); err != nil {
			log.Printf("amp: %s: forced suspend: %s write failed: %v", g.Name, w.what, err)
		}
	}
	g.setState(GroupSuspended)
	log.Printf("amp: %s: forced suspend complete", g.Name)
}

// ActivePlayers returns the names of currently active players, sorted.
func (g *Group) ActivePlayers() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	names := make([]string, 0, len(g.active))
	for name := range g.active {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// settle pauses between dependent GPIO writes. A real scheduling suspension,
// interrupted early on shutdown.
func (g *Group) settle(d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-g.ctx.Done():
	case <-t.C:
	}
}
