// Package lockfile provides a PID-file lock so only one long-running
// warden process operates on a data directory at a time.
package lockfile

import (
	"fmt"
	"os"
	"strconv"
	"syscall"
)

// Lock is a held PID-file lock.
type Lock struct {
	path string
}

// Acquire takes the lock at path. A live PID in an existing file means
// another instance is running; a stale file is removed and replaced.
func Acquire(path string) (*Lock, error) {
	if data, err := os.ReadFile(path); err == nil {
		pid, err := strconv.Atoi(string(data))
		if err == nil && pid != os.Getpid() {
			if process, err := os.FindProcess(pid); err == nil {
				if err := process.Signal(syscall.Signal(0)); err == nil {
					return nil, fmt.Errorf("another instance is running (PID %d)", pid)
				}
			}
		}
		// Stale PID file.
		_ = os.Remove(path)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0600); err != nil {
		return nil, fmt.Errorf("write pid file: %w", err)
	}
	return &Lock{path: path}, nil
}

// Release removes the PID file.
func (l *Lock) Release() {
	_ = os.Remove(l.path)
}
