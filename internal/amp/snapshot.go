package amp

// GroupStatus is a point-in-time view of one channel group.
type GroupStatus struct {
	ID            int
	Name          string
	State         GroupState
	Active        bool
	ActivePlayers []string
	Players       map[string]string
	TempSensor    string
}

// PowerStatus is a point-in-time view of the supply.
type PowerStatus struct {
	State  PowerState
	Active bool
}

// Snapshot is a point-in-time view of the whole controller, exposed to the
// status exporter and the web server. Value type — safe to use after the
// locks are released.
type Snapshot struct {
	Groups   []GroupStatus
	Power    PowerStatus
	ErrorLED bool
	Fault    string
}

// Snapshot copies the current controller state. Takes each group's lock
// briefly for the active-player set; never called from inside a locked
// call chain.
func (o *Orchestrator) Snapshot() Snapshot {
	snap := Snapshot{
		Power: PowerStatus{
			State:  o.power.State(),
			Active: o.power.IsActive(),
		},
		ErrorLED: o.ErrorLEDActive(),
	}
	if err := o.LastError(); err != nil {
		snap.Fault = err.Error()
	}

	for _, g := range o.groups {
		snap.Groups = append(snap.Groups, GroupStatus{
			ID:            g.ID,
			Name:          g.Name,
			State:         g.State(),
			Active:        g.IsActive(),
			ActivePlayers: g.ActivePlayers(),
			Players:       g.Labels,
			TempSensor:    g.TempSensor,
		})
	}
	return snap
}
