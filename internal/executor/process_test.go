package executor

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func TestRunCommandCapturesBothStreams(t *testing.T) {
	cmd := newCommand(context.Background(), "sh", "-c", "echo error >&2; echo ok")

	stdout, stderr, err := runCommand(cmd, nil)
	if err != nil {
		t.Fatalf("runCommand() error = %v", err)
	}
	if !strings.Contains(string(stdout), "ok") {
		t.Errorf("stdout = %q", stdout)
	}
	if !strings.Contains(string(stderr), "error") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestRunCommandLargeOutputNoDeadlock(t *testing.T) {
	// 200k lines is far beyond the pipe buffer; draining must keep up
	// while the child writes.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := newCommand(ctx, "sh", "-c", `i=0; while [ $i -lt 200000 ]; do echo "line $i"; i=$((i+1)); done`)

	start := time.Now()
	stdout, _, err := runCommand(cmd, nil)
	if err != nil {
		t.Fatalf("runCommand() error = %v after %v", err, time.Since(start))
	}
	if lines := strings.Count(string(stdout), "\n"); lines < 200000 {
		t.Errorf("got %d lines, want 200000", lines)
	}
}

func TestRunCommandExitError(t *testing.T) {
	cmd := newCommand(context.Background(), "sh", "-c", "exit 7")

	_, _, err := runCommand(cmd, nil)
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("runCommand() error = %v, want *exec.ExitError", err)
	}
	if exitErr.ExitCode() != 7 {
		t.Errorf("ExitCode() = %d, want 7", exitErr.ExitCode())
	}
}

func TestProcessManagerTracking(t *testing.T) {
	pm := NewProcessManager()
	if pm.Count() != 0 {
		t.Fatalf("Count() = %d, want 0", pm.Count())
	}

	cmd := newCommand(context.Background(), "sh", "-c", "exec sleep 5")
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}
	pm.Track(cmd)
	if pm.Count() != 1 {
		t.Errorf("Count() after Track = %d, want 1", pm.Count())
	}

	if err := pm.KillAll(); err != nil {
		t.Errorf("KillAll() error = %v", err)
	}
	cmd.Wait()

	pm.Untrack(cmd)
	if pm.Count() != 0 {
		t.Errorf("Count() after Untrack = %d, want 0", pm.Count())
	}
}

func TestRunCommandTracksForDuration(t *testing.T) {
	pm := NewProcessManager()
	cmd := newCommand(context.Background(), "sh", "-c", "true")

	if _, _, err := runCommand(cmd, pm); err != nil {
		t.Fatalf("runCommand() error = %v", err)
	}
	if pm.Count() != 0 {
		t.Errorf("Count() = %d, want 0 after completion", pm.Count())
	}
}
