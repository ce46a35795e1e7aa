// Package lock keeps two migrator processes from running against the same
// checkpoint at once.
//
// The guard is a PID file next to the checkpoint. It is advisory: a file
// left by a process that no longer exists is treated as stale and replaced.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// Suffix is appended to the guarded path to name the PID file.
const Suffix = ".pid"

// RunGuard guards one checkpoint path.
type RunGuard struct {
	path string
}

// NewRunGuard creates a guard for the checkpoint at checkpointPath.
func NewRunGuard(checkpointPath string) *RunGuard {
	return &RunGuard{path: checkpointPath + Suffix}
}

// Path returns the PID file location.
func (g *RunGuard) Path() string {
	return g.path
}

// Acquire records the current process as the owner. It fails with
// *AlreadyRunningError when a live process holds the guard.
func (g *RunGuard) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(g.path), 0o755); err != nil {
		return fmt.Errorf("create guard directory: %w", err)
	}

	for range 2 {
		f, err := os.OpenFile(g.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, werr := f.WriteString(strconv.Itoa(os.Getpid()))
			cerr := f.Close()
			if werr != nil || cerr != nil {
				_ = os.Remove(g.path)
				return fmt.Errorf("write pid file: %w", errors.Join(werr, cerr))
			}
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("create pid file: %w", err)
		}
		if err := g.clearStale(); err != nil {
			return err
		}
	}
	return fmt.Errorf("pid file %s keeps reappearing", g.path)
}

// clearStale removes the PID file unless its owner is still alive.
func (g *RunGuard) clearStale() error {
	data, err := os.ReadFile(g.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read pid file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err == nil && pid != os.Getpid() && processExists(pid) {
		return &AlreadyRunningError{PID: pid, Path: g.path}
	}
	if err := os.Remove(g.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale pid file: %w", err)
	}
	return nil
}

// Release removes the PID file. Safe to call when it does not exist.
func (g *RunGuard) Release() {
	_ = os.Remove(g.path)
}

// AlreadyRunningError reports the live process holding the guard.
type AlreadyRunningError struct {
	PID  int
	Path string
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("already running (pid %d, %s)", e.PID, e.Path)
}

func processExists(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix FindProcess always succeeds; signal 0 probes for existence.
	err = process.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
