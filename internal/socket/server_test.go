package socket

import (
	"bufio"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/amp-control/internal/amp"
)

type recordedEvent struct {
	Player string
	State  amp.PlayerState
}

type fakeHandler struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakeHandler) HandleEvent(player string, state amp.PlayerState) {
	f.mu.Lock()
	f.events = append(f.events, recordedEvent{player, state})
	f.mu.Unlock()
}

func (f *fakeHandler) Events() []recordedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedEvent, len(f.events))
	copy(out, f.events)
	return out
}

func startTestServer(t *testing.T) (string, *fakeHandler) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "amp.sock")
	handler := &fakeHandler{}
	srv, err := New(path, handler)
	if err != nil {
		t.Fatalf("start server: %v", err)
	}
	go srv.Serve()
	t.Cleanup(func() { srv.Close() })
	return path, handler
}

func dial(t *testing.T, path string) net.Conn {
	t.Helper()
	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.SetDeadline(time.Now().Add(2 * time.Second))
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestServerHandsOffEventAndAcks(t *testing.T) {
	path, handler := startTestServer(t)
	conn := dial(t, path)

	if _, err := conn.Write([]byte("wohnzimmer:1\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if reply != "OK\n" {
		t.Errorf("expected OK, got %q", reply)
	}

	events := handler.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0] != (recordedEvent{"wohnzimmer", amp.PlayerPlay}) {
		t.Errorf("unexpected event: %+v", events[0])
	}
}

func TestServerAcksUnknownPlayerToo(t *testing.T) {
	// The transport acknowledges ingestion; recognizing the name is the
	// orchestrator's business.
	path, _ := startTestServer(t)
	conn := dial(t, path)

	conn.Write([]byte("does-not-exist:0\n"))
	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if reply != "OK\n" {
		t.Errorf("expected OK, got %q", reply)
	}
}

func TestServerSequentialEventsInOrder(t *testing.T) {
	path, handler := startTestServer(t)
	conn := dial(t, path)
	r := bufio.NewReader(conn)

	for _, msg := range []string{"wohnzimmer:1\n", "wohnzimmer:2\n", "wohnzimmer:0\n"} {
		if _, err := conn.Write([]byte(msg)); err != nil {
			t.Fatalf("write: %v", err)
		}
		if reply, err := r.ReadString('\n'); err != nil || reply != "OK\n" {
			t.Fatalf("ack for %q: %q, %v", msg, reply, err)
		}
	}

	events := handler.Events()
	want := []amp.PlayerState{amp.PlayerPlay, amp.PlayerPause, amp.PlayerStop}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(events))
	}
	for i, w := range want {
		if events[i].State != w {
			t.Errorf("event %d: expected state %v, got %v", i, w, events[i].State)
		}
	}
}

func TestServerRejectsMalformedLines(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"no separator", "wohnzimmer\n"},
		{"empty player", ":1\n"},
		{"non-numeric state", "wohnzimmer:play\n"},
		{"state out of range", "wohnzimmer:9\n"},
		{"negative state", "wohnzimmer:-1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, handler := startTestServer(t)
			conn := dial(t, path)

			conn.Write([]byte(tt.line))

			// The server drops the connection without an ack.
			reply, err := bufio.NewReader(conn).ReadString('\n')
			if err == nil {
				t.Errorf("expected connection close, got reply %q", reply)
			}
			if events := handler.Events(); len(events) != 0 {
				t.Errorf("malformed line reached the handler: %+v", events)
			}
		})
	}
}

func TestServerReplacesStaleSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "amp.sock")
	first, err := New(path, &fakeHandler{})
	if err != nil {
		t.Fatalf("first server: %v", err)
	}
	// Simulate a crash: the socket file stays behind.
	first.ln.Close()

	second, err := New(path, &fakeHandler{})
	if err != nil {
		t.Fatalf("second server must replace the stale socket: %v", err)
	}
	second.Close()
}

func TestParseLine(t *testing.T) {
	player, state, err := parseLine("kueche:2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if player != "kueche" || state != amp.PlayerPause {
		t.Errorf("got %q/%v", player, state)
	}

	// Whitespace around the fields is tolerated.
	player, state, err = parseLine("  terrasse : 0 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if player != "terrasse" || state != amp.PlayerStop {
		t.Errorf("got %q/%v", player, state)
	}
}
