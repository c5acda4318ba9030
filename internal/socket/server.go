// Package socket implements the local event transport: a unix stream socket
// accepting newline-terminated "<player>:<state>" messages from player
// callback hooks. Malformed messages are rejected here and never reach the
// orchestrator; well-formed ones are acknowledged with "OK" after hand-off,
// whether or not the player name is recognized.
package socket

import (
	"bufio"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/sweeney/amp-control/internal/amp"
)

// Handler receives validated player events.
type Handler interface {
	HandleEvent(player string, state amp.PlayerState)
}

// Server accepts event connections on a unix socket.
type Server struct {
	path    string
	ln      net.Listener
	handler Handler

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool

	wg sync.WaitGroup
}

// New binds the socket, replacing a stale file left by a crashed instance,
// and makes it world-writable so player hooks running as other users can
// connect.
func New(path string, handler Handler) (*Server, error) {
	_ = os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o666); err != nil {
		ln.Close()
		return nil, fmt.Errorf("chmod %s: %w", path, err)
	}

	return &Server{
		path:    path,
		ln:      ln,
		handler: handler,
		conns:   make(map[net.Conn]struct{}),
	}, nil
}

// Serve accepts connections until Close. Each connection gets its own
// goroutine; events arriving on one connection are processed in order, so a
// client that waits for each acknowledgment sees its events applied in the
// order it sent them.
func (s *Server) Serve() error {
	log.Printf("socket: listening on %s", s.path)
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		player, state, err := parseLine(line)
		if err != nil {
			log.Printf("socket: rejecting message %q: %v", line, err)
			return
		}

		s.handler.HandleEvent(player, state)

		if _, err := conn.Write([]byte("OK\n")); err != nil {
			log.Printf("socket: write ack: %v", err)
			return
		}
	}
}

// parseLine validates "<player>:<state>" with state in {0,1,2}.
func parseLine(line string) (string, amp.PlayerState, error) {
	name, stateStr, ok := strings.Cut(line, ":")
	if !ok {
		return "", 0, fmt.Errorf("expected <player>:<state>")
	}
	name = strings.TrimSpace(name)
	stateStr = strings.TrimSpace(stateStr)
	if name == "" {
		return "", 0, fmt.Errorf("empty player name")
	}
	v, err := strconv.Atoi(stateStr)
	if err != nil {
		return "", 0, fmt.Errorf("state %q is not a number", stateStr)
	}
	if !amp.ValidPlayerState(v) {
		return "", 0, fmt.Errorf("state %d out of range", v)
	}
	return name, amp.PlayerState(v), nil
}

// Close stops accepting, closes open connections and removes the socket
// file.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	err := s.ln.Close()
	s.wg.Wait()
	os.Remove(s.path)
	return err
}
