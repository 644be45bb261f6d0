// Package pidfile enforces a single running instance of the location
// daemon per PID file path, grounded on the teacher's
// pkg/pidfile/pidfile.go: write the process's PID to a file at
// startup, refuse to start if a live process already owns it, remove a
// stale file left behind by a crashed instance, and verify ownership
// before removing on clean shutdown. Stale-file removal is logged
// through internal/logx with the same structured key/value convention
// as every other ambient component in this tree, rather than happening
// silently as it does in the teacher's version.
package pidfile

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/corelocation/engine/internal/logx"
)

// File represents a PID file used to enforce single-instance operation.
type File struct {
	path   string
	pid    int
	logger *logx.Logger
}

// New creates a File at path, bound to the current process's PID. A nil
// logger is replaced with a no-op logger so callers (and existing
// tests) may omit it.
func New(path string, logger *logx.Logger) *File {
	if logger == nil {
		logger = logx.Noop()
	}
	return &File{path: path, pid: os.Getpid(), logger: logger}
}

// Path returns the PID file's path.
func (f *File) Path() string { return f.path }

// Create writes the current PID to the file, first clearing out a
// stale file left by a process that is no longer running. It returns
// an error if a live process already holds the file.
func (f *File) Create() error {
	if f.exists() {
		existingPID, err := f.readExistingPID()
		if err != nil {
			return fmt.Errorf("pidfile: read existing %s: %w", f.path, err)
		}
		if f.isProcessRunning(existingPID) {
			return fmt.Errorf("pidfile: another instance is already running with pid %d", existingPID)
		}
		f.logger.Warn("removing stale pid file", "path", f.path, "stale_pid", existingPID)
		if err := os.Remove(f.path); err != nil {
			return fmt.Errorf("pidfile: remove stale pidfile %s: %w", f.path, err)
		}
	}

	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("pidfile: create directory %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(f.path, []byte(fmt.Sprintf("%d\n", f.pid)), 0o644); err != nil {
		return fmt.Errorf("pidfile: write %s: %w", f.path, err)
	}
	return nil
}

// Remove deletes the PID file, but only if it still contains this
// process's PID — a safeguard against removing a newer instance's file
// after a delayed shutdown.
func (f *File) Remove() error {
	if !f.exists() {
		return nil
	}

	existingPID, err := f.readExistingPID()
	if err != nil {
		return os.Remove(f.path)
	}
	if existingPID != f.pid {
		return fmt.Errorf("pidfile: %s now belongs to pid %d, not removing", f.path, existingPID)
	}
	return os.Remove(f.path)
}

// ForceRemove removes the PID file unconditionally, for operator-driven
// cleanup of a known-stale file.
func (f *File) ForceRemove() error {
	return os.Remove(f.path)
}

// CheckRunning reports whether another live instance currently holds
// the PID file, and if so its PID.
func (f *File) CheckRunning() (running bool, pid int, err error) {
	if !f.exists() {
		return false, 0, nil
	}

	existingPID, err := f.readExistingPID()
	if err != nil {
		return false, 0, fmt.Errorf("pidfile: read %s: %w", f.path, err)
	}
	if f.isProcessRunning(existingPID) {
		return true, existingPID, nil
	}
	return false, existingPID, nil
}

func (f *File) exists() bool {
	_, err := os.Stat(f.path)
	return err == nil
}

func (f *File) readExistingPID() (int, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return 0, err
	}
	pidStr := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return 0, fmt.Errorf("invalid pid in file: %q", pidStr)
	}
	return pid, nil
}

// isProcessRunning checks liveness by shelling out to whichever
// process-listing tool the host provides, since the engine targets
// more than one OS and os.FindProcess alone does not report liveness
// portably.
func (f *File) isProcessRunning(pid int) bool {
	if cmd := exec.Command("ps", "-p", strconv.Itoa(pid)); cmd.Run() == nil {
		return true
	}
	if cmd := exec.Command("sh", "-c", "ps | grep '^"+strconv.Itoa(pid)+" '"); cmd.Run() == nil {
		return true
	}
	if cmd := exec.Command("tasklist", "/FI", "PID eq "+strconv.Itoa(pid)); cmd.Run() == nil {
		return true
	}
	return false
}
