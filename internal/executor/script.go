package executor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/speckit-dev/speckit/internal/errors"
	"github.com/speckit-dev/speckit/internal/logging"
)

// ScriptExecutor runs a configured command once per task: the task ID is
// appended to the argument list and the full task context travels in
// SPECKIT_* environment variables. Exit status zero marks the task done;
// any other exit status marks it failed.
type ScriptExecutor struct {
	command string
	args    []string
	workDir string
	pm      *ProcessManager
	log     *logging.Logger
}

func NewScriptExecutor(cfg Config, pm *ProcessManager, log *logging.Logger) (*ScriptExecutor, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("script executor requires a command")
	}
	return &ScriptExecutor{
		command: cfg.Command,
		args:    cfg.Args,
		workDir: cfg.WorkDir,
		pm:      pm,
		log:     log.Named("script"),
	}, nil
}

func (e *ScriptExecutor) Name() string { return "script" }

func (e *ScriptExecutor) Execute(ctx context.Context, req TaskRequest) (TaskResult, error) {
	start := time.Now()
	res := TaskResult{ID: req.ID}

	args := append(append([]string{}, e.args...), req.ID)
	cmd := newCommand(ctx, e.command, args...)
	cmd.Dir = workDirFor(e.workDir, req)
	cmd.Env = append(os.Environ(), taskEnv(req)...)

	e.log.Debug("dispatching task",
		zap.String("task", req.ID),
		zap.String("command", e.command))

	stdout, stderr, runErr := runCommand(cmd, e.pm)
	res.Duration = time.Since(start)
	res.Output = tail(string(stdout), outputTail)

	if ctx.Err() != nil {
		return res, errors.NewExecutionError("script invocation interrupted", ctx.Err()).
			WithTaskID(req.ID)
	}
	if runErr == nil {
		res.Success = true
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		// The script ran to completion and said no: a task failure, not a
		// transport one.
		res.Detail = tail(string(stderr), outputTail)
		if res.Detail == "" {
			res.Detail = fmt.Sprintf("exit status %d", exitErr.ExitCode())
		}
		return res, nil
	}

	return res, errors.NewExecutionError("script executor failed to run", runErr).
		WithTaskID(req.ID).
		WithRetryable(true)
}

func taskEnv(req TaskRequest) []string {
	env := []string{
		"SPECKIT_TASK_ID=" + req.ID,
		"SPECKIT_TASK_DESCRIPTION=" + req.Description,
		"SPECKIT_PHASE=" + req.Phase,
		"SPECKIT_STORY=" + req.Story,
		fmt.Sprintf("SPECKIT_TEST=%t", req.Test),
	}
	if req.FeatureDir != "" {
		env = append(env, "SPECKIT_FEATURE_DIR="+req.FeatureDir)
	}
	if req.SpecPath != "" {
		env = append(env, "SPECKIT_SPEC_FILE="+req.SpecPath)
	}
	if req.PlanPath != "" {
		env = append(env, "SPECKIT_PLAN_FILE="+req.PlanPath)
	}
	if req.TasksPath != "" {
		env = append(env, "SPECKIT_TASKS_FILE="+req.TasksPath)
	}
	return env
}
