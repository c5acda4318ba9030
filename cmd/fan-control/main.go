// Command fan-control drives the rack case fan from DS18B20 temperature
// readings via the Pi's sysfs PWM interface.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sweeney/amp-control/internal/fan"
	"github.com/sweeney/amp-control/internal/onewire"
)

// After this many consecutive read failures the fan is parked at the
// fail-safe duty until a sensor recovers.
const maxReadFailures = 3

func main() {
	sensorList := flag.String("sensors", "28-00000034e4f3,28-00000050cf0c", "Comma-separated DS18B20 sensor IDs")
	chip := flag.String("pwm-chip", fan.DefaultChipPath, "Sysfs PWM chip directory")
	channel := flag.Int("pwm-channel", 2, "PWM channel")
	period := flag.Int("period", 40000, "PWM period in ns (40000 = 25 kHz)")
	minDuty := flag.Int("min-duty", 10000, "Lowest duty that reliably spins the fan (ns)")
	maxDuty := flag.Int("max-duty", 40000, "Duty at maximum temperature (ns)")
	shutdownDuty := flag.Int("shutdown-duty", 20000, "Duty applied when the daemon exits (ns)")
	failDuty := flag.Int("fail-duty", 20000, "Duty applied on persistent sensor failure (ns)")
	tempMin := flag.Float64("temp-min", 40.0, "Temperature at which the fan starts (°C)")
	tempMax := flag.Float64("temp-max", 60.0, "Temperature of maximum fan speed (°C)")
	hysteresis := flag.Float64("hysteresis", 2.0, "Stop hysteresis below temp-min (°C)")
	interval := flag.Duration("interval", 20*time.Second, "Update interval")
	flag.Parse()

	sensors := strings.Split(*sensorList, ",")
	for i := range sensors {
		sensors[i] = strings.TrimSpace(sensors[i])
	}

	if err := run(sensors, *chip, *channel, *period, *minDuty, *maxDuty,
		*shutdownDuty, *failDuty, *tempMin, *tempMax, *hysteresis, *interval); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(sensors []string, chip string, channel, period, minDuty, maxDuty, shutdownDuty, failDuty int,
	tempMin, tempMax, hysteresis float64, interval time.Duration) error {

	pwm, err := fan.NewPWM(chip, channel, period, shutdownDuty)
	if err != nil {
		return fmt.Errorf("init pwm: %w", err)
	}
	defer pwm.Close()

	reader := onewire.NewReader("")
	curve := &fan.Curve{
		MinTemp:    tempMin,
		MaxTemp:    tempMax,
		Hysteresis: hysteresis,
		MinDuty:    minDuty,
		MaxDuty:    maxDuty,
	}

	log.Printf("fan-control started: sensors=%v range=%.1f-%.1f°C interval=%v",
		sensors, tempMin, tempMax, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	readTemp := func() (float64, error) { return reader.MaxTemperature(sensors) }
	runLoop(readTemp, pwm, curve, failDuty, ticker.C, sigCh)

	log.Printf("fan-control stopped")
	return nil
}

// dutySetter is the part of fan.PWM the control loop needs.
type dutySetter interface {
	SetDuty(duty int) error
}

// runLoop adjusts the fan on every tick until a signal arrives. The first
// adjustment happens immediately.
func runLoop(readTemp func() (float64, error), pwm dutySetter, curve *fan.Curve, failDuty int, tick <-chan time.Time, sig <-chan os.Signal) {
	failures := 0

	adjust := func() {
		temp, err := readTemp()
		if err != nil {
			failures++
			log.Printf("fan: read temperature (attempt %d/%d): %v", failures, maxReadFailures, err)
			if failures >= maxReadFailures {
				if err := pwm.SetDuty(failDuty); err != nil {
					log.Printf("fan: set fail-safe duty: %v", err)
				}
			}
			return
		}
		failures = 0
		log.Printf("fan: temperature %.1f°C", temp)
		if err := pwm.SetDuty(curve.Duty(temp)); err != nil {
			log.Printf("fan: set duty: %v", err)
		}
	}

	adjust()
	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			return
		case <-tick:
			adjust()
		}
	}
}
