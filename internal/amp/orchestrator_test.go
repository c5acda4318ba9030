package amp

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sweeney/amp-control/internal/gpio"
)

const (
	testErrorLEDPin = 26

	testEnablePin2 = 6
	testMutePin2   = 25
	testLEDPin2    = 27
)

func newTestOrchestrator(port *gpio.FakePort) *Orchestrator {
	return New(Config{
		Port:        port,
		Timing:      testTiming(),
		PowerPin:    testPowerPin,
		ErrorLEDPin: testErrorLEDPin,
		Groups: []GroupSpec{
			{
				ID: 1, Name: "KAB9_1",
				EnablePin: testEnablePin, MutePin: testMutePin, LEDPin: testLEDPin,
				Players: map[string]string{"wohnzimmer": "Wohnzimmer", "kueche": "Küche"},
			},
			{
				ID: 2, Name: "KAB9_2",
				EnablePin: testEnablePin2, MutePin: testMutePin2, LEDPin: testLEDPin2,
				Players: map[string]string{"schlafzimmer": "Schlafzimmer"},
			},
		},
	})
}

func TestHandleEventUnknownPlayer(t *testing.T) {
	port := gpio.NewFakePort()
	o := newTestOrchestrator(port)
	o.InitHardware()
	writes := len(port.Writes())

	o.HandleEvent("badezimmer", PlayerPlay)

	if got := len(port.Writes()); got != writes {
		t.Error("unknown player must not touch hardware")
	}
	if o.power.IsActive() {
		t.Error("unknown player must not activate the supply")
	}
}

func TestHandleEventPlayActivatesPowerAndGroup(t *testing.T) {
	port := gpio.NewFakePort()
	o := newTestOrchestrator(port)
	o.InitHardware()

	o.HandleEvent("wohnzimmer", PlayerPlay)

	if !o.power.IsActive() {
		t.Error("supply must be on")
	}
	g := o.players["wohnzimmer"]
	if !g.IsActive() {
		t.Errorf("expected group ON, got %s", g.State())
	}
	other := o.players["schlafzimmer"]
	if !other.IsSuspended() {
		t.Errorf("unrelated group must stay suspended, got %s", other.State())
	}
}

func TestHandleEventPauseTreatedAsPlay(t *testing.T) {
	port := gpio.NewFakePort()
	o := newTestOrchestrator(port)
	o.InitHardware()

	o.HandleEvent("wohnzimmer", PlayerPause)

	if !o.power.IsActive() {
		t.Error("supply must be on after pause")
	}
	if g := o.players["wohnzimmer"]; !g.IsActive() {
		t.Errorf("expected group ON after pause, got %s", g.State())
	}
}

func TestHandleEventStopMutesGroup(t *testing.T) {
	port := gpio.NewFakePort()
	o := newTestOrchestrator(port)
	o.InitHardware()
	o.HandleEvent("wohnzimmer", PlayerPlay)

	o.HandleEvent("wohnzimmer", PlayerStop)

	g := o.players["wohnzimmer"]
	if !g.IsMuted() {
		t.Fatalf("expected group MUTED, got %s", g.State())
	}
	if !o.power.IsActive() {
		t.Error("supply must stay on until the power timeout elapses")
	}
}

// The full idle cycle: play, stop, suspend after the suspend delay, supply
// off after the power timeout.
func TestFullIdleCycle(t *testing.T) {
	port := gpio.NewFakePort()
	o := newTestOrchestrator(port)
	o.InitHardware()
	g := o.players["wohnzimmer"]

	o.HandleEvent("wohnzimmer", PlayerPlay)
	if !g.IsActive() || !o.power.IsActive() {
		t.Fatalf("after play: group %s, power %s", g.State(), o.power.State())
	}

	o.HandleEvent("wohnzimmer", PlayerStop)
	if !g.IsMuted() {
		t.Fatalf("after stop: expected MUTED, got %s", g.State())
	}

	waitFor(t, g.IsSuspended, time.Second, "group to suspend")
	if !o.power.IsActive() {
		t.Fatal("supply must still be on right after suspension")
	}

	waitFor(t, func() bool { return !o.power.IsActive() }, time.Second, "supply to power off")
	if port.Level(testPowerPin) {
		t.Error("supply line must be at its fail-safe OFF level")
	}
}

// A play for any player while a power-off timer is pending cancels it,
// whether or not the supply needed switching.
func TestPlayCancelsPendingPowerOff(t *testing.T) {
	port := gpio.NewFakePort()
	o := newTestOrchestrator(port)
	o.InitHardware()

	o.HandleEvent("wohnzimmer", PlayerPlay)
	o.HandleEvent("wohnzimmer", PlayerStop) // group muted, power-off armed

	o.HandleEvent("schlafzimmer", PlayerPlay)

	// Well past the 200ms power timeout.
	time.Sleep(300 * time.Millisecond)
	if !o.power.IsActive() {
		t.Fatal("pending power-off must be cancelled by a new play")
	}
}

func TestStopOnOneGroupLeavesOthersPlaying(t *testing.T) {
	port := gpio.NewFakePort()
	o := newTestOrchestrator(port)
	o.InitHardware()

	o.HandleEvent("wohnzimmer", PlayerPlay)
	o.HandleEvent("schlafzimmer", PlayerPlay)
	o.HandleEvent("wohnzimmer", PlayerStop)

	// One group still audible: no power-off may be armed.
	time.Sleep(300 * time.Millisecond)
	if !o.power.IsActive() {
		t.Fatal("supply must stay on while any group is audible")
	}
	if g := o.players["schlafzimmer"]; !g.IsActive() {
		t.Errorf("unrelated group state changed: %s", g.State())
	}
}

// A hardware write failure during resume runs the emergency sequence in
// order: error LED, group shutdown, supply off, then the fault hook.
func TestCriticalFaultOrdering(t *testing.T) {
	port := gpio.NewFakePort()
	o := newTestOrchestrator(port)
	o.InitHardware()

	var hookWrites atomic.Int32
	o.SetFaultHook(func() {
		hookWrites.Store(int32(len(port.Writes())))
	})

	injected := errors.New("simulated hardware fault")
	port.FailOn(testEnablePin, injected)

	o.HandleEvent("wohnzimmer", PlayerPlay)

	if !o.ErrorLEDActive() {
		t.Fatal("error indicator must be active")
	}
	if !port.Level(testErrorLEDPin) {
		t.Fatal("error LED line must be driven")
	}
	for _, g := range o.groups {
		if !g.IsSuspended() {
			t.Errorf("group %s not suspended after emergency stop: %s", g.Name, g.State())
		}
	}
	if o.power.IsActive() {
		t.Error("supply must be off after emergency stop")
	}
	if !errors.Is(o.LastError(), injected) {
		t.Errorf("fault not recorded: %v", o.LastError())
	}

	// Relative order: LED on → group mute → supply off → fault hook.
	writes := port.Writes()
	ledIdx, muteIdx, powerOffIdx := -1, -1, -1
	for i, w := range writes {
		switch {
		case w.Pin == testErrorLEDPin && w.Active && ledIdx == -1:
			ledIdx = i
		case w.Pin == testMutePin && w.Active && i > 0 && ledIdx != -1 && muteIdx == -1:
			muteIdx = i
		case w.Pin == testPowerPin && !w.Active:
			powerOffIdx = i
		}
	}
	if ledIdx == -1 || muteIdx == -1 || powerOffIdx == -1 {
		t.Fatalf("missing emergency writes: led=%d mute=%d power=%d (%v)", ledIdx, muteIdx, powerOffIdx, writes)
	}
	if !(ledIdx < muteIdx && muteIdx < powerOffIdx) {
		t.Errorf("emergency writes out of order: led=%d mute=%d power=%d", ledIdx, muteIdx, powerOffIdx)
	}
	if int(hookWrites.Load()) != len(writes) {
		t.Error("fault hook must run after all emergency writes")
	}
}

func TestShutdownSequence(t *testing.T) {
	port := gpio.NewFakePort()
	o := newTestOrchestrator(port)
	o.InitHardware()
	o.HandleEvent("wohnzimmer", PlayerPlay)
	mark := len(port.Writes())

	o.Shutdown()

	for _, g := range o.groups {
		if !g.IsSuspended() {
			t.Errorf("group %s not suspended after shutdown: %s", g.Name, g.State())
		}
	}
	if o.power.IsActive() {
		t.Error("supply must be off after shutdown")
	}
	if !o.ErrorLEDActive() || !port.Level(testErrorLEDPin) {
		t.Error("error indicator must be lit after shutdown (means: daemon not running)")
	}

	// Relative order: mute → enable off → supply off → LED on.
	writes := port.Writes()[mark:]
	muteIdx, enableOffIdx, powerOffIdx, ledIdx := -1, -1, -1, -1
	for i, w := range writes {
		switch {
		case w.Pin == testMutePin && w.Active && muteIdx == -1:
			muteIdx = i
		case w.Pin == testEnablePin && !w.Active && enableOffIdx == -1:
			enableOffIdx = i
		case w.Pin == testPowerPin && !w.Active && powerOffIdx == -1:
			powerOffIdx = i
		case w.Pin == testErrorLEDPin && w.Active && ledIdx == -1:
			ledIdx = i
		}
	}
	if muteIdx == -1 || enableOffIdx == -1 || powerOffIdx == -1 || ledIdx == -1 {
		t.Fatalf("missing shutdown writes: mute=%d enable=%d power=%d led=%d", muteIdx, enableOffIdx, powerOffIdx, ledIdx)
	}
	if !(muteIdx < enableOffIdx && enableOffIdx < powerOffIdx && powerOffIdx < ledIdx) {
		t.Errorf("shutdown writes out of order: mute=%d enable=%d power=%d led=%d", muteIdx, enableOffIdx, powerOffIdx, ledIdx)
	}
}

func TestSnapshot(t *testing.T) {
	port := gpio.NewFakePort()
	o := newTestOrchestrator(port)
	o.InitHardware()
	o.HandleEvent("wohnzimmer", PlayerPlay)

	snap := o.Snapshot()

	if len(snap.Groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(snap.Groups))
	}
	g1 := snap.Groups[0]
	if g1.Name != "KAB9_1" || g1.State != GroupOn || !g1.Active {
		t.Errorf("unexpected group 1 status: %+v", g1)
	}
	if len(g1.ActivePlayers) != 1 || g1.ActivePlayers[0] != "wohnzimmer" {
		t.Errorf("unexpected active players: %v", g1.ActivePlayers)
	}
	if g1.Players["wohnzimmer"] != "Wohnzimmer" {
		t.Errorf("labels missing from snapshot: %v", g1.Players)
	}
	if snap.Groups[1].State != GroupSuspended {
		t.Errorf("unexpected group 2 state: %s", snap.Groups[1].State)
	}
	if snap.Power.State != PowerOn || !snap.Power.Active {
		t.Errorf("unexpected power status: %+v", snap.Power)
	}
	if snap.ErrorLED || snap.Fault != "" {
		t.Errorf("unexpected fault indication: %+v", snap)
	}
}

func TestConcurrentEventsKeepSetConsistent(t *testing.T) {
	port := gpio.NewFakePort()
	o := newTestOrchestrator(port)
	o.InitHardware()

	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 25; j++ {
				o.HandleEvent("wohnzimmer", PlayerPlay)
				o.HandleEvent("kueche", PlayerPlay)
				o.HandleEvent("wohnzimmer", PlayerStop)
				o.HandleEvent("kueche", PlayerStop)
			}
		}()
	}
	for i := 0; i < 4; i++ {
		<-done
	}

	// Quiescent now: both players stopped last in every goroutine, so the
	// set must drain and the group must end muted or later suspended.
	g := o.players["wohnzimmer"]
	if got := g.ActivePlayers(); len(got) != 0 {
		t.Errorf("active set not drained after concurrent events: %v", got)
	}
	if g.IsActive() {
		t.Errorf("group still audible after all stops: %s", g.State())
	}
}
