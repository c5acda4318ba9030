// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"
)

// Topic is the MQTT topic for player events.
const Topic = "audio/amp/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "audio/amp/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a player event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event PlayerEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// PlayerEvent represents a player state change routed through the daemon.
type PlayerEvent struct {
	Timestamp  time.Time
	Player     string // e.g., "wohnzimmer"
	State      string // "PLAY", "PAUSE" or "STOP"
	Group      string // channel group name, e.g., "KAB9_1"
	GroupState string // group state after the event, e.g., "ON"
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, fault).
type SystemEvent struct {
	Timestamp time.Time
	Event     string // e.g., "STARTUP", "SHUTDOWN", "FAULT"
	Reason    string // e.g., "SIGTERM", or the fault text
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Audio AudioPayload `json:"audio"`
}

// AudioPayload contains the player event details.
type AudioPayload struct {
	Timestamp  string `json:"timestamp"`
	Event      string `json:"event"`
	Player     string `json:"player"`
	Group      string `json:"group"`
	GroupState string `json:"group_state"`
}

// FormatPayload creates the JSON payload for a player event.
func FormatPayload(event PlayerEvent) ([]byte, error) {
	payload := Payload{
		Audio: AudioPayload{
			Timestamp:  event.Timestamp.UTC().Format(time.RFC3339),
			Event:      event.State,
			Player:     event.Player,
			Group:      event.Group,
			GroupState: event.GroupState,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
