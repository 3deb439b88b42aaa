package executor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/speckit-dev/speckit/internal/errors"
	"github.com/speckit-dev/speckit/internal/logging"
)

func scriptExec(t *testing.T, command string, args ...string) *ScriptExecutor {
	t.Helper()
	e, err := NewScriptExecutor(Config{Kind: "script", Command: command, Args: args}, nil, logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestScriptSuccess(t *testing.T) {
	e := scriptExec(t, "sh", "-c", `echo "handled $1"`, "--")

	res, err := e.Execute(context.Background(), TaskRequest{ID: "T001", Description: "do it"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.Success {
		t.Fatalf("result = %+v, want success", res)
	}
	if !strings.Contains(res.Output, "handled T001") {
		t.Errorf("Output = %q, want appended task ID visible to script", res.Output)
	}
}

func TestScriptTaskFailureIsNotTransport(t *testing.T) {
	e := scriptExec(t, "sh", "-c", "echo boom >&2; exit 3", "--")

	res, err := e.Execute(context.Background(), TaskRequest{ID: "T002"})
	if err != nil {
		t.Fatalf("Execute() error = %v, want nil for a plain non-zero exit", err)
	}
	if res.Success {
		t.Fatal("non-zero exit reported as success")
	}
	if !strings.Contains(res.Detail, "boom") {
		t.Errorf("Detail = %q, want stderr captured", res.Detail)
	}
}

func TestScriptSpawnFailureIsTransport(t *testing.T) {
	e := scriptExec(t, "definitely-not-a-real-binary-2f9c")

	_, err := e.Execute(context.Background(), TaskRequest{ID: "T003"})
	if err == nil {
		t.Fatal("Execute() error = nil, want transport failure")
	}
	if !errors.IsRetryable(err) {
		t.Errorf("transport failure not marked retryable: %v", err)
	}
}

func TestScriptEnvCarriesTaskContext(t *testing.T) {
	script := `test "$SPECKIT_TASK_ID" = T004 &&
test "$SPECKIT_TEST" = true &&
test "$SPECKIT_STORY" = US2 &&
test "$SPECKIT_TASKS_FILE" = /tmp/tasks.md`
	e := scriptExec(t, "sh", "-c", script, "--")

	res, err := e.Execute(context.Background(), TaskRequest{
		ID:        "T004",
		Test:      true,
		Story:     "US2",
		TasksPath: "/tmp/tasks.md",
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.Success {
		t.Errorf("environment mismatch, detail: %s", res.Detail)
	}
}

func TestScriptHonorsContextTimeout(t *testing.T) {
	e := scriptExec(t, "sh", "-c", "exec sleep 5", "--")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := e.Execute(ctx, TaskRequest{ID: "T005"})
	if err == nil {
		t.Fatal("Execute() error = nil, want interruption")
	}
	if time.Since(start) > 3*time.Second {
		t.Error("Execute() did not stop with the context")
	}
	if errors.IsRetryable(err) {
		t.Errorf("interruption marked retryable: %v", err)
	}
}
