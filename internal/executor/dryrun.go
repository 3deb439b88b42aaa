package executor

import (
	"context"

	"go.uber.org/zap"

	"github.com/speckit-dev/speckit/internal/logging"
)

// DryRunExecutor acknowledges every task without running anything. Used by
// --dry-run together with a no-op status writer to preview a run.
type DryRunExecutor struct {
	log *logging.Logger
}

func NewDryRunExecutor(log *logging.Logger) *DryRunExecutor {
	return &DryRunExecutor{log: log.Named("dryrun")}
}

func (e *DryRunExecutor) Name() string { return "dryrun" }

func (e *DryRunExecutor) Execute(_ context.Context, req TaskRequest) (TaskResult, error) {
	e.log.Info("would execute task",
		zap.String("task", req.ID),
		zap.String("description", req.Description))
	return TaskResult{
		ID:      req.ID,
		Success: true,
		Output:  "dry run: " + req.Description,
	}, nil
}
