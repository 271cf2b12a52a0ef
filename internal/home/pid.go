package home

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// PidFileName is the file the running server records its process ID in.
const PidFileName = "folio.pid"

// PidPath returns the path to the server PID file.
func (d *Dir) PidPath() string {
	return filepath.Join(d.path, PidFileName)
}

// WritePid records the current process ID.
func (d *Dir) WritePid() error {
	return os.WriteFile(d.PidPath(), []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// RemovePid removes the PID file.
func (d *Dir) RemovePid() {
	_ = os.Remove(d.PidPath())
}

// RunningPid returns the PID of a live server recorded in the PID file.
// A missing file, unreadable contents or a dead process all yield 0.
func (d *Dir) RunningPid() int {
	pid, err := readPid(d.PidPath())
	if err != nil || !isProcessAlive(pid) {
		return 0
	}
	return pid
}

func readPid(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid pid file contents: %w", err)
	}
	return pid, nil
}

func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 checks existence without sending a real signal.
	return proc.Signal(syscall.Signal(0)) == nil
}
