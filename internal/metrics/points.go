// Package metrics exports daemon state to InfluxDB.
package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/sweeney/amp-control/internal/amp"
)

// Measurement is the InfluxDB measurement all points are written under.
const Measurement = "amp_status"

// BuildPoints converts a state snapshot into InfluxDB points: one for the
// power supply, one for the error LED and one per channel group. Temperatures
// are attached to group points when a reading is available.
func BuildPoints(snap amp.Snapshot, temps map[string]float64, now time.Time) []*write.Point {
	points := make([]*write.Point, 0, len(snap.Groups)+2)

	points = append(points, write.NewPoint(Measurement,
		map[string]string{"type": "power_supply"},
		map[string]interface{}{
			"state":  snap.Power.State.String(),
			"active": snap.Power.Active,
		},
		now,
	))

	ledState := "OFF"
	if snap.ErrorLED {
		ledState = "ON"
	}
	points = append(points, write.NewPoint(Measurement,
		map[string]string{"type": "error_led"},
		map[string]interface{}{
			"state":  ledState,
			"active": snap.ErrorLED,
		},
		now,
	))

	for _, g := range snap.Groups {
		fields := map[string]interface{}{
			"state":          g.State.String(),
			"active":         g.Active,
			"player_count":   len(g.ActivePlayers),
			"active_players": strings.Join(g.ActivePlayers, ","),
		}
		if temp, ok := temps[g.TempSensor]; ok && g.TempSensor != "" {
			fields["temperature"] = temp
		}
		points = append(points, write.NewPoint(Measurement,
			map[string]string{
				"type":           "soundcard",
				"soundcard_id":   strconv.Itoa(g.ID),
				"soundcard_name": g.Name,
			},
			fields,
			now,
		))
	}

	return points
}
