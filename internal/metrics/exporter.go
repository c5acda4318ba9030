package metrics

import (
	"context"
	"fmt"
	"log"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/sweeney/amp-control/internal/status"
)

const writeTimeout = 10 * time.Second

// Exporter periodically writes state snapshots to InfluxDB.
type Exporter struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	source   status.Source
	temps    status.TempReader
	sensors  []string
	interval time.Duration

	stop chan struct{}
	done chan struct{}
}

// Options configures the InfluxDB connection.
type Options struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// NewExporter creates an exporter and verifies connectivity with a ping.
// sensors lists the 1-wire sensor IDs to read on each export; temps may
// be nil when no sensors are configured.
func NewExporter(opts Options, source status.Source, temps status.TempReader, sensors []string, interval time.Duration) (*Exporter, error) {
	client := influxdb2.NewClient(opts.URL, opts.Token)

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	ok, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("ping influxdb: %w", err)
	}
	if !ok {
		client.Close()
		return nil, fmt.Errorf("influxdb at %s is not healthy", opts.URL)
	}

	return &Exporter{
		client:   client,
		writeAPI: client.WriteAPIBlocking(opts.Org, opts.Bucket),
		source:   source,
		temps:    temps,
		sensors:  sensors,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Run exports on every interval tick until Stop is called.
func (e *Exporter) Run() {
	defer close(e.done)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := e.Export(); err != nil {
				log.Printf("metrics: export failed: %v", err)
			}
		case <-e.stop:
			return
		}
	}
}

// Stop terminates the export loop and closes the client.
func (e *Exporter) Stop() {
	select {
	case <-e.stop:
	default:
		close(e.stop)
	}
	<-e.done
	e.client.Close()
}

// Export writes one round of points for the current snapshot.
func (e *Exporter) Export() error {
	points := BuildPoints(e.source.Snapshot(), e.readTemps(), time.Now())

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := e.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("write points: %w", err)
	}
	return nil
}

func (e *Exporter) readTemps() map[string]float64 {
	if e.temps == nil || len(e.sensors) == 0 {
		return nil
	}
	temps := make(map[string]float64, len(e.sensors))
	for _, id := range e.sensors {
		if _, done := temps[id]; done {
			continue
		}
		v, err := e.temps.ReadSensor(id)
		if err != nil {
			log.Printf("metrics: read sensor %s: %v", id, err)
			continue
		}
		temps[id] = v
	}
	return temps
}
