// Package config loads and validates the amp-control YAML configuration.
// Configuration is read once at startup and never re-read while running.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/amp-control/internal/gpio"
)

// Debug-mode timeouts, matching the values the daemon has always used for
// bench testing.
const (
	debugSuspendDelay = 1 * time.Minute
	debugPowerTimeout = 2 * time.Minute
)

// Config is the root configuration for the amp-control daemon.
type Config struct {
	Daemon   DaemonConfig  `yaml:"daemon"`
	Timing   TimingConfig  `yaml:"timing"`
	GPIO     GPIOConfig    `yaml:"gpio"`
	Groups   []GroupConfig `yaml:"groups"`
	MQTT     MQTTConfig    `yaml:"mqtt"`
	InfluxDB InfluxConfig  `yaml:"influxdb"`
}

// DaemonConfig contains process-level paths and intervals.
type DaemonConfig struct {
	SocketPath     string   `yaml:"socket_path"`
	PIDFile        string   `yaml:"pid_file"`
	StatusFile     string   `yaml:"status_file"`
	StatusInterval Duration `yaml:"status_interval"`
	HTTPAddr       string   `yaml:"http_addr"`
}

// TimingConfig contains the delays driving the state machines.
type TimingConfig struct {
	// SuspendDelay is how long a muted, idle channel group stays muted
	// before it is suspended.
	SuspendDelay Duration `yaml:"suspend_delay"`

	// MuteDelay is the pause between muting and cutting the enable line
	// inside the suspend sequence.
	MuteDelay Duration `yaml:"mute_delay"`

	// GPIODelay is the hardware settle time between dependent GPIO writes.
	GPIODelay Duration `yaml:"gpio_delay"`

	// PowerTimeout is how long the supply stays on after the last group
	// goes idle.
	PowerTimeout Duration `yaml:"power_timeout"`
}

// GPIOConfig contains chip-level GPIO settings.
type GPIOConfig struct {
	Chip        string `yaml:"chip"`
	PowerPin    int    `yaml:"power_pin"`
	ErrorLEDPin int    `yaml:"error_led_pin"`
}

// GroupConfig describes one amplifier channel group.
type GroupConfig struct {
	ID        int    `yaml:"id"`
	Name      string `yaml:"name"`
	EnablePin int    `yaml:"enable_pin"`
	MutePin   int    `yaml:"mute_pin"`
	LEDPin    int    `yaml:"led_pin"`

	// TempSensor is an optional 1-wire sensor id (e.g. 28-00000034e4f3)
	// read by the status exporter, not by the control logic.
	TempSensor string `yaml:"temp_sensor"`

	// Players maps player name to a human-readable display label.
	Players map[string]string `yaml:"players"`
}

// MQTTConfig contains MQTT publishing settings.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
}

// InfluxConfig contains InfluxDB telemetry settings.
type InfluxConfig struct {
	Enabled  bool     `yaml:"enabled"`
	URL      string   `yaml:"url"`
	Token    string   `yaml:"token"`
	Org      string   `yaml:"org"`
	Bucket   string   `yaml:"bucket"`
	Interval Duration `yaml:"interval"`
}

// Load reads, parses, defaults and validates the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates raw YAML configuration.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Daemon.SocketPath == "" {
		c.Daemon.SocketPath = "/var/run/amp_control.sock"
	}
	if c.Daemon.PIDFile == "" {
		c.Daemon.PIDFile = "/var/run/amp_control.pid"
	}
	if c.Daemon.StatusFile == "" {
		c.Daemon.StatusFile = "/var/run/amp_control.status.json"
	}
	if c.Daemon.StatusInterval == 0 {
		c.Daemon.StatusInterval = Duration(30 * time.Second)
	}
	if c.Timing.SuspendDelay == 0 {
		c.Timing.SuspendDelay = Duration(15 * time.Minute)
	}
	if c.Timing.MuteDelay == 0 {
		c.Timing.MuteDelay = Duration(5 * time.Second)
	}
	if c.Timing.GPIODelay == 0 {
		c.Timing.GPIODelay = Duration(time.Second)
	}
	if c.Timing.PowerTimeout == 0 {
		c.Timing.PowerTimeout = Duration(30 * time.Minute)
	}
	if c.GPIO.Chip == "" {
		c.GPIO.Chip = "gpiochip0"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "amp-control"
	}
	if c.InfluxDB.Interval == 0 {
		c.InfluxDB.Interval = Duration(30 * time.Second)
	}
}

// ApplyDebug shortens the idle timeouts for bench testing.
func (c *Config) ApplyDebug() {
	c.Timing.SuspendDelay = Duration(debugSuspendDelay)
	c.Timing.PowerTimeout = Duration(debugPowerTimeout)
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if len(c.Groups) == 0 {
		return fmt.Errorf("no channel groups configured")
	}

	pins := map[int]string{
		c.GPIO.PowerPin:    "gpio.power_pin",
		c.GPIO.ErrorLEDPin: "gpio.error_led_pin",
	}
	if len(pins) != 2 {
		return fmt.Errorf("power_pin and error_led_pin must differ")
	}

	ids := make(map[int]bool)
	names := make(map[string]bool)
	players := make(map[string]string)

	for i := range c.Groups {
		g := &c.Groups[i]
		if g.Name == "" {
			return fmt.Errorf("group %d: name is required", g.ID)
		}
		if ids[g.ID] {
			return fmt.Errorf("group %s: duplicate id %d", g.Name, g.ID)
		}
		ids[g.ID] = true
		if names[g.Name] {
			return fmt.Errorf("duplicate group name %s", g.Name)
		}
		names[g.Name] = true

		for pin, label := range map[int]string{
			g.EnablePin: "enable_pin",
			g.MutePin:   "mute_pin",
			g.LEDPin:    "led_pin",
		} {
			if prev, taken := pins[pin]; taken {
				return fmt.Errorf("group %s: %s %d already used by %s", g.Name, label, pin, prev)
			}
			pins[pin] = fmt.Sprintf("%s.%s", g.Name, label)
		}
		if g.EnablePin == g.MutePin || g.EnablePin == g.LEDPin || g.MutePin == g.LEDPin {
			return fmt.Errorf("group %s: enable/mute/led pins must differ", g.Name)
		}

		if len(g.Players) == 0 {
			return fmt.Errorf("group %s: no players configured", g.Name)
		}
		for player := range g.Players {
			if owner, taken := players[player]; taken {
				return fmt.Errorf("player %s assigned to both %s and %s", player, owner, g.Name)
			}
			players[player] = g.Name
		}
	}

	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt enabled but no broker configured")
	}
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			return fmt.Errorf("influxdb enabled but no url configured")
		}
		if c.InfluxDB.Bucket == "" {
			return fmt.Errorf("influxdb enabled but no bucket configured")
		}
	}

	return nil
}

// Lines returns the GPIO line specs for every output the daemon claims.
// Polarity is fixed by the hardware: the supply and amplifier enable lines
// are active-low (electrical high is the fail-safe OFF/suspended level),
// mute and LED lines are active-high.
func (c *Config) Lines() []gpio.Line {
	lines := []gpio.Line{
		{Pin: c.GPIO.PowerPin, Name: "power", ActiveLow: true},
		{Pin: c.GPIO.ErrorLEDPin, Name: "error-led"},
	}
	for _, g := range c.Groups {
		lines = append(lines,
			gpio.Line{Pin: g.EnablePin, Name: g.Name + "/enable", ActiveLow: true},
			gpio.Line{Pin: g.MutePin, Name: g.Name + "/mute"},
			gpio.Line{Pin: g.LEDPin, Name: g.Name + "/led"},
		)
	}
	return lines
}
