package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/speckit-dev/speckit/internal/errors"
)

const lockFileName = ".speckit.lock"

// RunLock prevents two orchestrator processes from driving the same feature
// at once. The lock is a PID file next to the task document; stale files
// left by dead processes are reclaimed automatically.
type RunLock struct {
	path string
}

// NewRunLock creates a lock manager for the given feature directory.
func NewRunLock(featureDir string) *RunLock {
	return &RunLock{path: filepath.Join(featureDir, lockFileName)}
}

// Path returns the lock file location.
func (l *RunLock) Path() string { return l.path }

// Acquire takes the lock or fails if another live process holds it.
func (l *RunLock) Acquire() error {
	if err := l.create(); err == nil {
		return nil
	} else if !os.IsExist(err) {
		return errors.Wrap(err, "creating lock file")
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		return errors.Wrap(err, "reading existing lock file")
	}

	pid, convErr := strconv.Atoi(strings.TrimSpace(string(data)))
	if convErr == nil && processExists(pid) {
		return errors.NewPrerequisiteError(
			fmt.Sprintf("another run is already active (PID %d)", pid),
			errors.ErrRunLocked).
			WithPath(l.path).
			WithHelp("Wait for the other run to finish, or delete the lock file if that process is gone.")
	}

	// Garbled PID or dead owner: reclaim once.
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing stale lock file")
	}
	if err := l.create(); err != nil {
		if os.IsExist(err) {
			return errors.NewPrerequisiteError(
				"lock file reappeared while reclaiming it", errors.ErrRunLocked).
				WithPath(l.path).
				WithHelp("Another run grabbed the lock first; wait for it to finish.")
		}
		return errors.Wrap(err, "creating lock file")
	}
	return nil
}

func (l *RunLock) create() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	_, werr := fmt.Fprintf(f, "%d", os.Getpid())
	cerr := f.Close()
	if werr != nil || cerr != nil {
		os.Remove(l.path)
		if werr != nil {
			return werr
		}
		return cerr
	}
	return nil
}

// Release removes the lock file. Idempotent.
func (l *RunLock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing lock file")
	}
	return nil
}

// processExists probes pid with signal 0.
func processExists(pid int) bool {
	if pid <= 0 {
		return false
	}
	if pid == os.Getpid() {
		return true
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
