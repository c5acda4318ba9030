// Package amp contains the amplifier control core: the per-channel-group
// state machines, the shared power supply controller and the orchestrator
// that maps player events onto them.
//
// Locking discipline: every mutating operation takes its entity's lock for
// the duration of the transition. The Is*/State predicates are lock-free
// atomic loads — they are called from inside locked call chains (a finishing
// suspend triggers the power idle check, which reads every group) and must
// never block.
package amp

// GroupState is the state of one amplifier channel group. It always
// reflects the GPIO levels last driven, never a desired-but-unapplied state.
type GroupState int32

const (
	// GroupSuspended: enable line inactive, LED off. Initial state.
	GroupSuspended GroupState = iota
	// GroupMuted: enabled but mute line asserted.
	GroupMuted
	// GroupOn: enabled, unmuted, LED lit.
	GroupOn
)

func (s GroupState) String() string {
	switch s {
	case GroupSuspended:
		return "SUSPENDED"
	case GroupMuted:
		return "MUTED"
	case GroupOn:
		return "ON"
	}
	return "UNKNOWN"
}

// PowerState is the state of the shared supply.
type PowerState int32

const (
	PowerOff PowerState = iota
	PowerOn
)

func (s PowerState) String() string {
	if s == PowerOn {
		return "ON"
	}
	return "OFF"
}

// PlayerState is the requested playback state carried by an inbound event.
type PlayerState int

const (
	PlayerStop  PlayerState = 0
	PlayerPlay  PlayerState = 1
	PlayerPause PlayerState = 2
)

func (s PlayerState) String() string {
	switch s {
	case PlayerStop:
		return "STOP"
	case PlayerPlay:
		return "PLAY"
	case PlayerPause:
		return "PAUSE"
	}
	return "UNKNOWN"
}

// ValidPlayerState reports whether v is a state the transport may accept.
func ValidPlayerState(v int) bool {
	switch PlayerState(v) {
	case PlayerStop, PlayerPlay, PlayerPause:
		return true
	}
	return false
}
