// Command amp-event sends a player state change to the amp-control daemon.
// It is the hook players call on playback transitions:
//
//	amp-event wohnzimmer 1
//
// States: 0 = stop, 1 = play, 2 = pause.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sweeney/amp-control/internal/amp"
)

func main() {
	socketPath := flag.String("socket", "/var/run/amp_control.sock", "Daemon event socket")
	timeout := flag.Duration("timeout", 5*time.Second, "Connect and response timeout")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <player> <state>\n", os.Args[0])
		fmt.Fprintf(flag.CommandLine.Output(), "States: 0 = stop, 1 = play, 2 = pause\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}
	player := flag.Arg(0)
	state, err := strconv.Atoi(flag.Arg(1))
	if err != nil || !amp.ValidPlayerState(state) {
		log.Fatalf("invalid state %q (expected 0, 1 or 2)", flag.Arg(1))
	}

	if err := sendEvent(*socketPath, player, state, *timeout); err != nil {
		log.Fatalf("send event: %v", err)
	}
}

// sendEvent delivers one "<player>:<state>" line and waits for the
// daemon's acknowledgement.
func sendEvent(path, player string, state int, timeout time.Duration) error {
	conn, err := net.DialTimeout("unix", path, timeout)
	if err != nil {
		return fmt.Errorf("connect to daemon: %w", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(timeout))

	if _, err := fmt.Fprintf(conn, "%s:%d\n", player, state); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return fmt.Errorf("read acknowledgement: %w", err)
	}
	if strings.TrimSpace(reply) != "OK" {
		return fmt.Errorf("unexpected reply %q", strings.TrimSpace(reply))
	}
	return nil
}
