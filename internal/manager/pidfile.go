package manager

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// acquirePidFile claims single-instance ownership. A pid file whose process
// is gone is treated as stale and taken over.
func acquirePidFile(path string) (func(), error) {
	if pid, ok := readPidFile(path); ok {
		if processAlive(pid) {
			return nil, fmt.Errorf("manager already running (pid %d)", pid)
		}
		// Stale pid file from a crashed manager.
		_ = os.Remove(path)
	}

	pid := os.Getpid()
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil { //nolint:gosec // G306: pid file is world-readable on purpose
		return nil, fmt.Errorf("writing pid file: %w", err)
	}
	return func() { _ = os.Remove(path) }, nil
}

// RunningPid returns the pid of a live manager for this hive dir, or 0.
func RunningPid(path string) int {
	pid, ok := readPidFile(path)
	if !ok || !processAlive(pid) {
		return 0
	}
	return pid
}

func readPidFile(path string) (int, bool) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path lives under the hive dir
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// processAlive probes a pid with signal 0.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
