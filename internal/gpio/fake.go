package gpio

import "sync"

// Write records a single SetLine call.
type Write struct {
	Pin    int
	Active bool
}

// FakePort is a test double that records writes and reports line levels.
// Safe for concurrent use — controller timers write from their own
// goroutines.
type FakePort struct {
	mu     sync.Mutex
	levels map[int]bool
	writes []Write
	fail   map[int]error
	closed bool
}

// NewFakePort creates a FakePort with every line at its inactive level.
func NewFakePort() *FakePort {
	return &FakePort{
		levels: make(map[int]bool),
		fail:   make(map[int]error),
	}
}

// SetLine records the write and updates the line level.
// Returns the injected error for the pin, if any, without updating state.
func (f *FakePort) SetLine(pin int, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fail[pin]; err != nil {
		return err
	}
	f.levels[pin] = active
	f.writes = append(f.writes, Write{Pin: pin, Active: active})
	return nil
}

// Close marks the port as closed.
func (f *FakePort) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (f *FakePort) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Level returns the current logical level of a line.
func (f *FakePort) Level(pin int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.levels[pin]
}

// Writes returns a copy of all recorded writes in order.
func (f *FakePort) Writes() []Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Write, len(f.writes))
	copy(out, f.writes)
	return out
}

// WriteCount returns the number of writes to a specific pin.
func (f *FakePort) WriteCount(pin int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, w := range f.writes {
		if w.Pin == pin {
			n++
		}
	}
	return n
}

// FailOn injects an error to be returned by every SetLine on the pin.
func (f *FakePort) FailOn(pin int, err error) {
	f.mu.Lock()
	f.fail[pin] = err
	f.mu.Unlock()
}

// ClearFailures removes all injected errors.
func (f *FakePort) ClearFailures() {
	f.mu.Lock()
	f.fail = make(map[int]error)
	f.mu.Unlock()
}
