package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/speckit-dev/speckit/internal/errors"
	"github.com/speckit-dev/speckit/internal/logging"
)

const (
	claudeBinary = "claude"

	// outputTail bounds how much executor output travels with a result.
	outputTail = 40
)

// ClaudeExecutor drives the Claude Code CLI in non-interactive mode: one
// `claude -p <prompt> --output-format json` invocation per task.
type ClaudeExecutor struct {
	model   string
	workDir string
	pm      *ProcessManager
	log     *logging.Logger
}

func NewClaudeExecutor(cfg Config, pm *ProcessManager, log *logging.Logger) *ClaudeExecutor {
	return &ClaudeExecutor{
		model:   cfg.Model,
		workDir: cfg.WorkDir,
		pm:      pm,
		log:     log.Named("claude"),
	}
}

func (e *ClaudeExecutor) Name() string { return "claude" }

// claudeReply is the JSON document the CLI prints in -p mode.
type claudeReply struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	IsError   bool   `json:"is_error"`
	Result    string `json:"result"`
	SessionID string `json:"session_id"`
}

func (e *ClaudeExecutor) Execute(ctx context.Context, req TaskRequest) (TaskResult, error) {
	start := time.Now()
	res := TaskResult{ID: req.ID}

	cmd := newCommand(ctx, claudeBinary, e.buildArgs(req)...)
	cmd.Dir = workDirFor(e.workDir, req)

	e.log.Debug("dispatching task",
		zap.String("task", req.ID),
		zap.String("dir", cmd.Dir))

	stdout, stderr, runErr := runCommand(cmd, e.pm)
	res.Duration = time.Since(start)

	if ctx.Err() != nil {
		return res, errors.NewExecutionError("claude invocation interrupted", ctx.Err()).
			WithTaskID(req.ID)
	}

	reply, parseErr := parseClaudeReply(stdout)
	switch {
	case parseErr == nil && reply.IsError:
		res.Success = false
		res.Detail = tail(reply.Result, outputTail)
		if res.Detail == "" {
			res.Detail = tail(string(stderr), outputTail)
		}
		res.Output = res.Detail
		return res, nil
	case parseErr == nil && runErr == nil:
		res.Success = true
		res.Output = tail(reply.Result, outputTail)
		return res, nil
	default:
		// No intelligible reply: the transport failed, not the task.
		cause := runErr
		if cause == nil {
			cause = parseErr
		}
		return res, errors.NewExecutionError(
			fmt.Sprintf("claude gave no usable reply (stderr: %s)", tail(string(stderr), 5)), cause).
			WithTaskID(req.ID).
			WithRetryable(true)
	}
}

func (e *ClaudeExecutor) buildArgs(req TaskRequest) []string {
	args := []string{"-p", buildPrompt(req), "--output-format", "json"}
	if e.model != "" {
		args = append(args, "--model", e.model)
	}
	return args
}

func parseClaudeReply(data []byte) (claudeReply, error) {
	var reply claudeReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return claudeReply{}, fmt.Errorf("unmarshaling claude reply: %w", err)
	}
	return reply, nil
}

// buildPrompt frames one task for an agent that reads the feature's
// documents itself.
func buildPrompt(req TaskRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Complete task %s from the implementation task list.\n\n", req.ID)
	fmt.Fprintf(&b, "Task: %s\n", req.Description)
	if req.Phase != "" {
		fmt.Fprintf(&b, "Phase: %s\n", req.Phase)
	}
	if req.Story != "" {
		fmt.Fprintf(&b, "User story: %s\n", req.Story)
	}
	if req.Test {
		b.WriteString("\nThis is a test-authoring task: write the test described above. ")
		b.WriteString("The test is expected to fail until the implementation tasks land. ")
		b.WriteString("Do not implement the feature itself.\n")
	}

	b.WriteString("\nContext documents:\n")
	if req.SpecPath != "" {
		fmt.Fprintf(&b, "- Specification: %s\n", req.SpecPath)
	}
	if req.PlanPath != "" {
		fmt.Fprintf(&b, "- Implementation plan: %s\n", req.PlanPath)
	}
	if req.TasksPath != "" {
		fmt.Fprintf(&b, "- Task list: %s\n", req.TasksPath)
	}

	tasksName := "the task list"
	if req.TasksPath != "" {
		tasksName = filepath.Base(req.TasksPath)
	}
	fmt.Fprintf(&b, "\nComplete only this task, then stop. Do not edit %s; completion is recorded by the caller.\n", tasksName)
	return b.String()
}

func workDirFor(configured string, req TaskRequest) string {
	if configured != "" {
		return configured
	}
	return req.WorkDir
}
