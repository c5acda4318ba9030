package amp

import "time"

// Timing collects the delays driving the state machines.
type Timing struct {
	// SuspendDelay: how long a muted, idle group stays muted before the
	// suspend sequence starts.
	SuspendDelay time.Duration
	// MuteDelay: settle time between muting and cutting the enable line.
	MuteDelay time.Duration
	// GPIODelay: hardware settle time between dependent GPIO writes.
	GPIODelay time.Duration
	// PowerTimeout: how long the supply stays on after the last group
	// goes idle.
	PowerTimeout time.Duration
}

// pendingTimer is a replaceable handle for a delayed transition. Each entity
// owns at most one per purpose; scheduling always discards the previous
// handle first, so two fire-able timers for the same purpose never coexist.
//
// Cancellation is best-effort: a callback that has already started runs to
// its own precondition check and aborts itself there. The entity's lock
// guards the handle.
type pendingTimer struct {
	t *time.Timer
}

// schedule replaces any pending timer with a new one firing after d.
func (p *pendingTimer) schedule(d time.Duration, fn func()) {
	p.cancel()
	p.t = time.AfterFunc(d, fn)
}

// cancel stops and discards the pending timer, if any.
func (p *pendingTimer) cancel() {
	if p.t != nil {
		p.t.Stop()
		p.t = nil
	}
}

// pending reports whether a timer handle is armed.
func (p *pendingTimer) pending() bool {
	return p.t != nil
}
