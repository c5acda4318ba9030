package main

import (
	"log"
	"time"

	"github.com/sweeney/amp-control/internal/amp"
	"github.com/sweeney/amp-control/internal/mqtt"
)

// eventHandler routes socket events into the orchestrator and mirrors
// them to MQTT when a broker is configured.
type eventHandler struct {
	orch   *amp.Orchestrator
	pub    mqtt.Publisher // nil when MQTT is disabled
	groups map[string]*amp.Group
}

func newEventHandler(orch *amp.Orchestrator, pub mqtt.Publisher) *eventHandler {
	h := &eventHandler{
		orch:   orch,
		pub:    pub,
		groups: make(map[string]*amp.Group),
	}
	for _, g := range orch.Groups() {
		for _, player := range playerNames(g) {
			h.groups[player] = g
		}
	}
	return h
}

func playerNames(g *amp.Group) []string {
	names := make([]string, 0, len(g.Labels))
	for name := range g.Labels {
		names = append(names, name)
	}
	return names
}

// HandleEvent implements socket.Handler.
func (h *eventHandler) HandleEvent(player string, state amp.PlayerState) {
	h.orch.HandleEvent(player, state)

	if h.pub == nil {
		return
	}
	g, ok := h.groups[player]
	if !ok {
		return
	}
	err := h.pub.Publish(mqtt.PlayerEvent{
		Timestamp:  time.Now(),
		Player:     player,
		State:      state.String(),
		Group:      g.Name,
		GroupState: g.State().String(),
	})
	if err != nil {
		// Publish failures must never stall event handling.
		log.Printf("mqtt: publish player event: %v", err)
	}
}
