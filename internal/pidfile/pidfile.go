// Package pidfile guards against running two daemon instances at once.
package pidfile

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// Acquire writes the current process ID to path. If the file already
// exists and its PID belongs to a live process, Acquire fails; a stale
// file left behind by a dead process is removed and replaced.
func Acquire(path string) error {
	if data, err := os.ReadFile(path); err == nil {
		pid, perr := strconv.Atoi(strings.TrimSpace(string(data)))
		if perr == nil && processAlive(pid) {
			return fmt.Errorf("already running with pid %d (%s)", pid, path)
		}
		log.Printf("pidfile: removing stale %s", path)
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("remove stale pidfile: %w", err)
		}
	}

	pid := strconv.Itoa(os.Getpid())
	if err := os.WriteFile(path, []byte(pid+"\n"), 0o644); err != nil {
		return fmt.Errorf("write pidfile: %w", err)
	}
	return nil
}

// Remove deletes the pidfile. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove pidfile: %w", err)
	}
	return nil
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 probes for existence without delivering anything.
	return proc.Signal(syscall.Signal(0)) == nil
}
