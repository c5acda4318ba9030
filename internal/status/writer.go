package status

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/sweeney/amp-control/internal/amp"
)

// Writer periodically serializes the controller snapshot to the status file.
// Writes are atomic (temp file + rename) so a reader never sees a torn
// document.
type Writer struct {
	path     string
	source   Source
	temps    TempReader
	cfg      Config
	interval time.Duration
	start    time.Time

	stop chan struct{}
	done chan struct{}
}

// NewWriter creates a Writer. temps may be nil.
func NewWriter(path string, source Source, temps TempReader, cfg Config, interval time.Duration) *Writer {
	return &Writer{
		path:     path,
		source:   source,
		temps:    temps,
		cfg:      cfg,
		interval: interval,
		start:    time.Now(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run writes the status file on every interval tick until Stop is called.
func (w *Writer) Run() {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	if err := w.WriteNow(); err != nil {
		log.Printf("status: initial write: %v", err)
	}
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			if err := w.WriteNow(); err != nil {
				log.Printf("status: write: %v", err)
			}
		}
	}
}

// Stop halts the periodic writes and waits for the loop to exit. WriteNow
// remains usable afterwards — the shutdown path uses it for the final
// snapshot.
func (w *Writer) Stop() {
	select {
	case <-w.stop:
	default:
		close(w.stop)
	}
	<-w.done
}

// WriteNow takes a snapshot and writes the status file once.
func (w *Writer) WriteNow() error {
	snap := w.source.Snapshot()
	doc := Build(snap, w.readTemps(snap), w.cfg, w.start, time.Now())

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}

	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	if err := os.Rename(tmp, w.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace status file: %w", err)
	}
	return nil
}

// readTemps polls every configured sensor once. Read failures are logged
// and the sensor is simply absent from the document.
func (w *Writer) readTemps(snap amp.Snapshot) map[string]float64 {
	if w.temps == nil {
		return nil
	}
	temps := make(map[string]float64)
	for _, g := range snap.Groups {
		if g.TempSensor == "" {
			continue
		}
		if _, done := temps[g.TempSensor]; done {
			continue
		}
		v, err := w.temps.ReadSensor(g.TempSensor)
		if err != nil {
			log.Printf("status: sensor %s: %v", g.TempSensor, err)
			continue
		}
		temps[g.TempSensor] = v
	}
	return temps
}
