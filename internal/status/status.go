// Package status builds the daemon's status document and writes it
// periodically (and on demand) to the status file for external consumers
// such as the telegraf exporter.
package status

import (
	"strconv"
	"time"

	"github.com/sweeney/amp-control/internal/amp"
)

// Source provides a point-in-time view of the controller.
type Source interface {
	Snapshot() amp.Snapshot
}

// TempReader reads a 1-wire temperature sensor. Optional — a nil reader
// leaves temperatures out of the document.
type TempReader interface {
	ReadSensor(id string) (float64, error)
}

// Config echoes daemon configuration into the status document.
type Config struct {
	SocketPath   string
	HTTPAddr     string
	SuspendDelay time.Duration
	MuteDelay    time.Duration
	GPIODelay    time.Duration
	PowerTimeout time.Duration
}

// Document is the top-level status JSON envelope.
type Document struct {
	Status Inner `json:"status"`
}

// Inner contains the status details. Field names are part of the exporter
// contract — the telegraf side reads power_supply, error_led, soundcards
// and timestamp.
type Inner struct {
	Event         string               `json:"event,omitempty"`
	Reason        string               `json:"reason,omitempty"`
	Timestamp     float64              `json:"timestamp"`
	StartTime     string               `json:"start_time"`
	UptimeSeconds int64                `json:"uptime_seconds"`
	PowerSupply   EntityJSON           `json:"power_supply"`
	ErrorLED      EntityJSON           `json:"error_led"`
	Fault         string               `json:"fault,omitempty"`
	Soundcards    map[string]GroupJSON `json:"soundcards"`
	Config        ConfigJSON           `json:"config"`
}

// EntityJSON reports a two-state entity (supply, error LED).
type EntityJSON struct {
	State  string `json:"state"`
	Active bool   `json:"active"`
}

// GroupJSON reports one channel group.
type GroupJSON struct {
	ID            int               `json:"id"`
	Name          string            `json:"name"`
	State         string            `json:"state"`
	Active        bool              `json:"active"`
	PlayerCount   int               `json:"player_count"`
	ActivePlayers []string          `json:"active_players"`
	Players       map[string]string `json:"players"`
	Temperature   *float64          `json:"temperature"`
}

// ConfigJSON echoes the timing and path configuration.
type ConfigJSON struct {
	SocketPath      string `json:"socket_path"`
	HTTPAddr        string `json:"http_addr,omitempty"`
	SuspendDelaySec int64  `json:"suspend_delay_s"`
	MuteDelaySec    int64  `json:"mute_delay_s"`
	GPIODelayMs     int64  `json:"gpio_delay_ms"`
	PowerTimeoutSec int64  `json:"power_timeout_s"`
}

func onOff(active bool) string {
	if active {
		return "ON"
	}
	return "OFF"
}

// Build assembles the status document from a controller snapshot.
// temps maps sensor id to the last reading; missing sensors stay null.
func Build(snap amp.Snapshot, temps map[string]float64, cfg Config, start, now time.Time) Document {
	inner := Inner{
		Timestamp:     float64(now.UnixNano()) / 1e9,
		StartTime:     start.UTC().Format(time.RFC3339),
		UptimeSeconds: int64(now.Sub(start).Truncate(time.Second).Seconds()),
		PowerSupply: EntityJSON{
			State:  snap.Power.State.String(),
			Active: snap.Power.Active,
		},
		ErrorLED: EntityJSON{
			State:  onOff(snap.ErrorLED),
			Active: snap.ErrorLED,
		},
		Fault:      snap.Fault,
		Soundcards: make(map[string]GroupJSON, len(snap.Groups)),
		Config: ConfigJSON{
			SocketPath:      cfg.SocketPath,
			HTTPAddr:        cfg.HTTPAddr,
			SuspendDelaySec: int64(cfg.SuspendDelay.Seconds()),
			MuteDelaySec:    int64(cfg.MuteDelay.Seconds()),
			GPIODelayMs:     cfg.GPIODelay.Milliseconds(),
			PowerTimeoutSec: int64(cfg.PowerTimeout.Seconds()),
		},
	}

	for _, g := range snap.Groups {
		gj := GroupJSON{
			ID:            g.ID,
			Name:          g.Name,
			State:         g.State.String(),
			Active:        g.Active,
			PlayerCount:   len(g.ActivePlayers),
			ActivePlayers: g.ActivePlayers,
			Players:       g.Players,
		}
		if gj.ActivePlayers == nil {
			gj.ActivePlayers = []string{}
		}
		if g.TempSensor != "" {
			if v, ok := temps[g.TempSensor]; ok {
				t := v
				gj.Temperature = &t
			}
		}
		inner.Soundcards[strconv.Itoa(g.ID)] = gj
	}

	return Document{Status: inner}
}
