// Command amp-control arbitrates the shared power supply and amplifier
// channel groups of a multi-room audio rack. Player state changes arrive
// on a unix socket; the daemon sequences the GPIO lines, suspends idle
// hardware and exports its state via a status file, HTTP, MQTT and
// InfluxDB.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/amp-control/internal/amp"
	"github.com/sweeney/amp-control/internal/config"
	"github.com/sweeney/amp-control/internal/gpio"
	"github.com/sweeney/amp-control/internal/metrics"
	"github.com/sweeney/amp-control/internal/mqtt"
	"github.com/sweeney/amp-control/internal/onewire"
	"github.com/sweeney/amp-control/internal/pidfile"
	"github.com/sweeney/amp-control/internal/socket"
	"github.com/sweeney/amp-control/internal/status"
	"github.com/sweeney/amp-control/internal/web"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	configPath := flag.String("config", "/etc/amp_control/config.yaml", "Configuration file")
	debug := flag.Bool("debug", false, "Shorten idle timeouts for bench testing")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("amp-control " + version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	if *debug {
		cfg.ApplyDebug()
		log.Printf("debug mode: suspend_delay=%v power_timeout=%v",
			cfg.Timing.SuspendDelay.Std(), cfg.Timing.PowerTimeout.Std())
	}

	if err := run(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfg *config.Config) error {
	if err := pidfile.Acquire(cfg.Daemon.PIDFile); err != nil {
		return err
	}
	defer pidfile.Remove(cfg.Daemon.PIDFile)

	port, err := gpio.NewRealPort(cfg.GPIO.Chip, cfg.Lines())
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer port.Close()

	specs := make([]amp.GroupSpec, 0, len(cfg.Groups))
	sensors := make([]string, 0, len(cfg.Groups))
	for _, g := range cfg.Groups {
		specs = append(specs, amp.GroupSpec{
			ID:         g.ID,
			Name:       g.Name,
			EnablePin:  g.EnablePin,
			MutePin:    g.MutePin,
			LEDPin:     g.LEDPin,
			TempSensor: g.TempSensor,
			Players:    g.Players,
		})
		if g.TempSensor != "" {
			sensors = append(sensors, g.TempSensor)
		}
	}

	orch := amp.New(amp.Config{
		Port: port,
		Timing: amp.Timing{
			SuspendDelay: cfg.Timing.SuspendDelay.Std(),
			MuteDelay:    cfg.Timing.MuteDelay.Std(),
			GPIODelay:    cfg.Timing.GPIODelay.Std(),
			PowerTimeout: cfg.Timing.PowerTimeout.Std(),
		},
		PowerPin:    cfg.GPIO.PowerPin,
		ErrorLEDPin: cfg.GPIO.ErrorLEDPin,
		Groups:      specs,
	})
	if err := orch.InitHardware(); err != nil {
		return fmt.Errorf("init hardware: %w", err)
	}

	var temps status.TempReader
	if len(sensors) > 0 {
		temps = onewire.NewReader("")
	}

	statusCfg := status.Config{
		SocketPath:   cfg.Daemon.SocketPath,
		HTTPAddr:     cfg.Daemon.HTTPAddr,
		SuspendDelay: cfg.Timing.SuspendDelay.Std(),
		MuteDelay:    cfg.Timing.MuteDelay.Std(),
		GPIODelay:    cfg.Timing.GPIODelay.Std(),
		PowerTimeout: cfg.Timing.PowerTimeout.Std(),
	}
	writer := status.NewWriter(cfg.Daemon.StatusFile, orch, temps, statusCfg, cfg.Daemon.StatusInterval.Std())
	go writer.Run()

	var publisher mqtt.Publisher
	if cfg.MQTT.Enabled {
		p, err := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID)
		if err != nil {
			// The rack must keep working without the broker.
			log.Printf("mqtt: %v, continuing without broker", err)
		} else {
			publisher = p
			defer publisher.Close()
			publishSystem(publisher, "STARTUP", "")
		}
	}

	orch.SetFaultHook(func() {
		if err := writer.WriteNow(); err != nil {
			log.Printf("status: write after fault: %v", err)
		}
		if publisher != nil {
			reason := ""
			if err := orch.LastError(); err != nil {
				reason = err.Error()
			}
			publishSystem(publisher, "FAULT", reason)
		}
	})

	var exporter *metrics.Exporter
	if cfg.InfluxDB.Enabled {
		exporter, err = metrics.NewExporter(metrics.Options{
			URL:    cfg.InfluxDB.URL,
			Token:  cfg.InfluxDB.Token,
			Org:    cfg.InfluxDB.Org,
			Bucket: cfg.InfluxDB.Bucket,
		}, orch, temps, sensors, cfg.InfluxDB.Interval.Std())
		if err != nil {
			log.Printf("metrics: %v, continuing without influxdb", err)
		} else {
			go exporter.Run()
		}
	}

	if cfg.Daemon.HTTPAddr != "" {
		srv := web.New(cfg.Daemon.HTTPAddr, orch, statusCfg)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("web: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.Daemon.HTTPAddr)
	}

	handler := newEventHandler(orch, publisher)
	server, err := socket.New(cfg.Daemon.SocketPath, handler)
	if err != nil {
		return fmt.Errorf("open event socket: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	log.Printf("amp-control %s started: socket=%s groups=%d", version, cfg.Daemon.SocketPath, len(cfg.Groups))

	var reason string
	select {
	case s := <-sigCh:
		log.Printf("received %v, shutting down", s)
		reason = signalName(s)
	case err := <-serveErr:
		if err != nil {
			log.Printf("socket server failed: %v, shutting down", err)
			reason = "SOCKET_ERROR"
		}
	}

	// Hardware first: stop the periodic writer, run the ordered shutdown
	// sequence, then record the final state for external consumers.
	writer.Stop()
	orch.Shutdown()
	if err := writer.WriteNow(); err != nil {
		log.Printf("status: final write: %v", err)
	}
	if publisher != nil {
		publishSystem(publisher, "SHUTDOWN", reason)
	}
	if exporter != nil {
		exporter.Stop()
	}
	if err := server.Close(); err != nil {
		log.Printf("close socket server: %v", err)
	}

	log.Printf("amp-control stopped")
	return nil
}

func publishSystem(p mqtt.Publisher, event, reason string) {
	err := p.PublishSystem(mqtt.SystemEvent{
		Timestamp: time.Now(),
		Event:     event,
		Reason:    reason,
	})
	if err != nil {
		log.Printf("mqtt: publish %s: %v", event, err)
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}
