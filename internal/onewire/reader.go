// Package onewire reads DS18B20 temperature sensors via the kernel's
// 1-wire sysfs interface.
package onewire

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultBasePath is where the w1 kernel driver exposes slave devices.
const DefaultBasePath = "/sys/bus/w1/devices"

// Reader reads temperatures from w1_slave files below a base directory.
type Reader struct {
	base string
}

// NewReader creates a Reader. An empty base selects DefaultBasePath.
func NewReader(base string) *Reader {
	if base == "" {
		base = DefaultBasePath
	}
	return &Reader{base: base}
}

// ReadSensor returns the temperature of the given sensor in degrees Celsius.
func (r *Reader) ReadSensor(id string) (float64, error) {
	path := filepath.Join(r.base, id, "w1_slave")
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read sensor %s: %w", id, err)
	}
	temp, err := ParseSlave(string(data))
	if err != nil {
		return 0, fmt.Errorf("sensor %s: %w", id, err)
	}
	return temp, nil
}

// MaxTemperature reads all given sensors and returns the highest value.
// Individual sensor failures are logged and skipped; an error is returned
// only when no sensor could be read.
func (r *Reader) MaxTemperature(ids []string) (float64, error) {
	var (
		max   float64
		found bool
	)
	for _, id := range ids {
		temp, err := r.ReadSensor(id)
		if err != nil {
			log.Printf("onewire: %v", err)
			continue
		}
		if !found || temp > max {
			max = temp
			found = true
		}
	}
	if !found {
		return 0, fmt.Errorf("no readable sensor among %v", ids)
	}
	return max, nil
}

// ParseSlave extracts the temperature from w1_slave file contents. The
// driver emits two lines: a CRC status line ending in YES or NO, and a
// data line carrying the raw value after "t=" in milli-degrees.
func ParseSlave(data string) (float64, error) {
	lines := strings.Split(strings.TrimRight(data, "\n"), "\n")
	if len(lines) < 2 {
		return 0, fmt.Errorf("short w1_slave contents")
	}
	if !strings.HasSuffix(strings.TrimSpace(lines[0]), "YES") {
		return 0, fmt.Errorf("CRC check failed")
	}
	_, raw, ok := strings.Cut(lines[1], "t=")
	if !ok {
		return 0, fmt.Errorf("no t= marker in data line")
	}
	milli, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse temperature %q: %w", raw, err)
	}
	return float64(milli) / 1000.0, nil
}
