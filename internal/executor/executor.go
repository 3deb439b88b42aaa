// Package executor adapts external task runners behind one interface. The
// orchestrator offers tasks; an executor performs each one out of process
// and reports the outcome. Task execution is opaque here: this package
// never inspects the target codebase, it only launches, waits, and
// classifies.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/speckit-dev/speckit/internal/logging"
)

// TaskRequest describes one unit of work offered to an executor.
type TaskRequest struct {
	ID          string
	Description string
	Phase       string
	Story       string // story label ("US1"), empty outside story phases
	Test        bool   // test-authoring task

	// Context the external actor may need.
	FeatureDir string
	SpecPath   string
	PlanPath   string
	TasksPath  string
	WorkDir    string // where the executor process runs, usually the repo root
}

// TaskResult is an executor's verdict on one task. Success false with a nil
// error is a real task failure; transport problems (could not spawn, could
// not understand the reply) surface as the error return instead.
type TaskResult struct {
	ID       string
	Success  bool
	Output   string // trailing output, for the log and the TUI
	Detail   string // failure detail when Success is false
	Duration time.Duration
}

// Executor runs tasks to completion.
type Executor interface {
	// Execute blocks until the task finishes or ctx expires. The error
	// return is reserved for transport failures; task-level outcomes are
	// carried in TaskResult.
	Execute(ctx context.Context, req TaskRequest) (TaskResult, error)

	// Name identifies the executor in logs and the journal.
	Name() string
}

// Config selects and parameterizes an executor.
type Config struct {
	Kind    string   // "claude" (default), "script", "dryrun"
	Command string   // script kind: the binary to run
	Args    []string // script kind: arguments placed before the task ID
	Model   string   // claude kind: model override
	WorkDir string   // overrides TaskRequest.WorkDir when set
}

// New builds the configured executor.
func New(cfg Config, pm *ProcessManager, log *logging.Logger) (Executor, error) {
	if log == nil {
		log = logging.NewNop()
	}
	switch cfg.Kind {
	case "", "claude":
		return NewClaudeExecutor(cfg, pm, log), nil
	case "script":
		return NewScriptExecutor(cfg, pm, log)
	case "dryrun":
		return NewDryRunExecutor(log), nil
	default:
		return nil, fmt.Errorf("unknown executor kind %q (claude, script, or dryrun)", cfg.Kind)
	}
}

// tail returns the last n lines of s, trimmed.
func tail(s string, n int) string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
