// Package orchestrator drives a parsed task document through an external
// executor: phases in document order, dependency layers in sequence within
// each phase, parallel batches dispatched concurrently under a limit. Every
// outcome is written back to the document and the journal before the next
// dispatch decision.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/speckit-dev/speckit/internal/errors"
	"github.com/speckit-dev/speckit/internal/events"
	"github.com/speckit-dev/speckit/internal/executor"
	"github.com/speckit-dev/speckit/internal/journal"
	"github.com/speckit-dev/speckit/internal/logging"
	"github.com/speckit-dev/speckit/internal/scheduler"
	"github.com/speckit-dev/speckit/internal/taskdoc"
	"github.com/speckit-dev/speckit/internal/workspace"
)

// Config wires the runner's collaborators and policies.
type Config struct {
	Executor executor.Executor
	// Writer persists checkbox state. Nil falls back to NopWriter.
	Writer taskdoc.Writer
	// Journal records runs and task outcomes. Nil disables the ledger.
	Journal journal.Journal
	// Bus receives run/phase/task events. Nil disables publishing.
	Bus *events.EventBus
	Log *logging.Logger
	// Run carries the feature's artifact paths into executor requests.
	Run *workspace.RunContext

	// RunID is filled with a fresh UUID when empty.
	RunID string

	// MaxParallel caps concurrent tasks within a parallel batch.
	MaxParallel int
	// FailFast aborts the run after the first failed task; batch members
	// already dispatched finish and are recorded.
	FailFast bool
	// BestEffort starts phases whose predecessors are incomplete instead
	// of skipping them, flagging the bypass in the summary.
	BestEffort bool
	// StoryStrictPriority makes higher-priority story phases hard
	// prerequisites of lower-priority ones.
	StoryStrictPriority bool
	// TaskTimeout bounds one task execution.
	TaskTimeout time.Duration
	Retry       RetryConfig
}

// Runner executes a plan.
type Runner struct {
	cfg  Config
	doc  *taskdoc.Document
	plan *scheduler.Plan
	exec executor.Executor
	log  *logging.Logger

	// jctx survives run cancellation so in-flight outcomes still reach
	// the journal.
	jctx context.Context

	mu  sync.Mutex // guards doc state transitions, writer, journal, sum
	sum *Summary
}

// NewRunner creates a runner for a parsed document and its plan.
func NewRunner(cfg Config, doc *taskdoc.Document, plan *scheduler.Plan) *Runner {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 4
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 30 * time.Minute
	}
	if cfg.Writer == nil {
		cfg.Writer = taskdoc.NopWriter{}
	}
	if cfg.Log == nil {
		cfg.Log = logging.NewNop()
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if (cfg.Retry == RetryConfig{}) {
		cfg.Retry = DefaultRetryConfig()
	}

	r := &Runner{
		cfg:  cfg,
		doc:  doc,
		plan: plan,
		log:  cfg.Log.WithRun(cfg.RunID),
	}
	r.exec = newResilientExecutor(cfg.Executor, cfg.Retry, r.log, r.onRetry)
	return r
}

// Run walks the plan to completion. The summary is always returned, even
// when the run failed or was aborted. The error is nil only when every
// pending task completed.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	r.jctx = context.WithoutCancel(ctx)
	r.sum = newSummary(r.cfg.RunID, r.doc, r.plan)
	r.sum.StartedAt = start

	if r.cfg.Journal != nil {
		run := &journal.Run{
			ID:         r.cfg.RunID,
			FeatureDir: r.featureDir(),
			TasksFile:  r.doc.Path,
			Executor:   r.cfg.Executor.Name(),
			StartedAt:  start,
		}
		if err := r.cfg.Journal.BeginRun(r.jctx, run); err != nil {
			return r.sum, errors.Wrap(err, "opening run ledger")
		}
	}

	r.publish(events.TopicRun, events.RunStartedEvent{
		RunID:        r.cfg.RunID,
		FeatureDir:   r.featureDir(),
		TasksPath:    r.doc.Path,
		TotalTasks:   r.sum.Total,
		PendingTasks: r.sum.Pending,
		Timestamp:    time.Now(),
	})
	r.log.Info("run started",
		zap.String("executor", r.cfg.Executor.Name()),
		zap.Int("total", r.sum.Total),
		zap.Int("pending", r.sum.Pending),
		zap.Int("max_parallel", r.cfg.MaxParallel))

	runErr := r.walk(ctx)

	r.sum.Duration = time.Since(start)
	r.sum.Verdict = verdictFor(runErr)
	if r.cfg.Journal != nil {
		if err := r.cfg.Journal.FinishRun(r.jctx, r.cfg.RunID, r.sum.Verdict,
			r.sum.Done, r.sum.Failed, r.sum.Skipped); err != nil {
			r.log.Warn("closing run ledger", zap.Error(err))
		}
	}
	r.publish(events.TopicRun, events.RunCompletedEvent{
		RunID:     r.cfg.RunID,
		Completed: r.sum.Done,
		Failed:    r.sum.Failed,
		Skipped:   r.sum.Skipped,
		Duration:  r.sum.Duration,
		Timestamp: time.Now(),
	})
	r.log.Info("run finished",
		zap.String("verdict", r.sum.Verdict),
		zap.Int("done", r.sum.Done),
		zap.Int("failed", r.sum.Failed),
		zap.Int("skipped", r.sum.Skipped),
		zap.Duration("elapsed", r.sum.Duration))

	return r.sum, runErr
}

func verdictFor(err error) string {
	switch {
	case err == nil:
		return journal.VerdictSucceeded
	case errors.Is(err, errors.ErrRunAborted), errors.Is(err, errors.ErrDocumentModified):
		return journal.VerdictAborted
	default:
		return journal.VerdictFailed
	}
}

// walk runs the phases in document order.
func (r *Runner) walk(ctx context.Context) error {
	for i := range r.plan.Phases {
		pp := &r.plan.Phases[i]
		phase := pp.Phase

		if len(pp.Layers) == 0 {
			reason := "no pending tasks"
			if len(phase.Tasks) == 0 {
				reason = "empty phase"
			}
			r.publish(events.TopicPhase, events.PhaseSkippedEvent{
				Number: phase.Ordinal, Name: phase.Name, Reason: reason, Timestamp: time.Now(),
			})
			continue
		}

		if err := ctx.Err(); err != nil {
			r.skipFrom(i, "run canceled")
			return errors.Wrap(errors.ErrRunAborted, fmt.Sprintf("canceled before phase %q", phase.Name))
		}

		if reason := r.blockedBy(i); reason != "" {
			if !r.cfg.BestEffort {
				r.log.Warn("phase skipped", zap.String("phase", phase.Name), zap.String("reason", reason))
				r.skipPhase(pp, reason)
				continue
			}
			r.mu.Lock()
			r.sum.Warnings = append(r.sum.Warnings,
				fmt.Sprintf("phase %q ran despite %s (best effort)", phase.Name, reason))
			r.mu.Unlock()
			r.log.Warn("phase gating bypassed", zap.String("phase", phase.Name), zap.String("reason", reason))
		}

		if err := r.runPhase(ctx, pp); err != nil {
			r.skipFrom(i+1, skipReasonFor(err))
			return err
		}
	}

	if failed := r.failedCount(); failed > 0 {
		return errors.Wrapf(errors.ErrTaskFailed, "%d task(s) failed", failed)
	}
	return nil
}

func skipReasonFor(err error) string {
	switch {
	case errors.Is(err, errors.ErrRunAborted):
		return "run canceled"
	case errors.Is(err, errors.ErrDocumentModified):
		return "task list changed on disk"
	case errors.Is(err, errors.ErrTaskFailed):
		return "run aborted after first failure"
	default:
		return "run aborted"
	}
}

// blockedBy reports why phase i may not start under strict gating, or ""
// when it may. Any earlier phase with non-done tasks blocks it, except that
// one story never blocks a different story (unless StoryStrictPriority puts
// the earlier, higher-priority story ahead of this one).
func (r *Runner) blockedBy(i int) string {
	cur := r.plan.Phases[i].Phase
	for j := 0; j < i; j++ {
		prev := r.plan.Phases[j].Phase
		if prev.IsStory() && cur.IsStory() && prev.Story != cur.Story {
			if !r.cfg.StoryStrictPriority || prev.Priority >= cur.Priority {
				continue
			}
		}
		for _, t := range prev.Tasks {
			if t.Status != taskdoc.StatusDone {
				return fmt.Sprintf("incomplete phase %q (task %s %s)", prev.Name, t.ID, t.Status)
			}
		}
	}
	return ""
}

// runPhase drives one phase's layers. The returned error is fatal for the
// run; ordinary task failures are tallied, halt the phase's remaining
// layers, and return nil.
func (r *Runner) runPhase(ctx context.Context, pp *scheduler.PhasePlan) error {
	phase := pp.Phase
	r.publish(events.TopicPhase, events.PhaseStartedEvent{
		Number:    phase.Ordinal,
		Name:      phase.Name,
		Story:     phase.Story,
		Pending:   len(phase.Pending()),
		Timestamp: time.Now(),
	})
	plog := r.log.WithPhase(phase.Name)
	plog.Info("phase started", zap.Int("layers", len(pp.Layers)))

	halted := ""
	for _, layer := range pp.Layers {
		if err := ctx.Err(); err != nil {
			r.skipPhaseRest(pp, "run canceled")
			return errors.Wrap(errors.ErrRunAborted,
				fmt.Sprintf("canceled before layer %d of phase %q", layer.Index, phase.Name))
		}
		if halted != "" {
			r.skipLayer(layer, phase.Index, halted)
			continue
		}

		r.publish(events.TopicPhase, events.LayerDispatchedEvent{
			PhaseNumber: phase.Ordinal,
			Layer:       layer.Index,
			IDs:         layerIDs(layer),
			Timestamp:   time.Now(),
		})

		failedBefore := r.failedCount()
		for _, batch := range layer.Batches {
			if err := r.runBatch(ctx, batch, phase.Index); err != nil {
				r.skipPhaseRest(pp, skipReasonFor(err))
				return err
			}
			if r.cfg.FailFast && r.failedCount() > 0 {
				r.skipPhaseRest(pp, "run aborted after first failure")
				return errors.Wrap(errors.ErrTaskFailed, "aborting after first failure")
			}
		}
		if r.failedCount() > failedBefore {
			halted = fmt.Sprintf("failure in phase %q", phase.Name)
		}
	}

	done, failed := r.phaseCounts(phase.Index)
	r.publish(events.TopicPhase, events.PhaseCompletedEvent{
		Number:    phase.Ordinal,
		Name:      phase.Name,
		Completed: done,
		Failed:    failed,
		Timestamp: time.Now(),
	})
	plog.Info("phase finished", zap.Int("done", done), zap.Int("failed", failed))
	return nil
}

// runBatch dispatches one batch and blocks until every member reported.
func (r *Runner) runBatch(ctx context.Context, batch scheduler.Batch, phaseIdx int) error {
	if !batch.Parallel {
		return r.dispatch(ctx, batch.Tasks[0], phaseIdx)
	}

	var g errgroup.Group
	g.SetLimit(r.cfg.MaxParallel)
	for _, t := range batch.Tasks {
		t := t
		g.Go(func() error {
			return r.dispatch(ctx, t, phaseIdx)
		})
	}
	return g.Wait()
}

// dispatch runs one task through the executor and records its outcome.
// A non-nil return is fatal for the run (the document write failed);
// ordinary failures are recorded and return nil.
func (r *Runner) dispatch(ctx context.Context, t *taskdoc.Task, phaseIdx int) error {
	r.mu.Lock()
	for _, dep := range t.DependsOn {
		d := r.doc.Task(dep)
		if d != nil && d.Status != taskdoc.StatusDone {
			reason := fmt.Sprintf("dependency %s %s", d.ID, d.Status)
			r.mu.Unlock()
			r.skipTask(t, phaseIdx, reason)
			return nil
		}
	}
	if err := t.MarkInProgress(); err != nil {
		r.mu.Unlock()
		return errors.Wrapf(err, "dispatching %s", t.ID)
	}
	r.mu.Unlock()

	r.publish(events.TopicTask, events.TaskStartedEvent{
		ID:          t.ID,
		Description: t.Description,
		Attempt:     1,
		Timestamp:   time.Now(),
	})
	tlog := r.log.WithTask(t.ID)
	tlog.Info("task started")

	// Cancellation is honored at layer boundaries; a task already handed
	// to the executor runs to completion under its own timeout.
	taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.TaskTimeout)
	defer cancel()

	start := time.Now()
	res, execErr := r.exec.Execute(taskCtx, r.request(t))
	elapsed := time.Since(start)

	r.mu.Lock()
	defer r.mu.Unlock()

	if execErr != nil {
		_ = t.MarkFailed()
		_ = r.cfg.Writer.Record(t)
		r.recordJournal(t, execErr.Error(), elapsed)
		r.sum.tally(phaseIdx, taskdoc.StatusFailed)
		r.publish(events.TopicTask, events.TaskFailedEvent{
			ID: t.ID, Err: execErr, Duration: elapsed, Timestamp: time.Now(),
		})
		tlog.Error("task dispatch failed", zap.Error(execErr), zap.Duration("elapsed", elapsed))
		return nil
	}

	r.publishOutput(t.ID, res.Output)

	if !res.Success {
		_ = t.MarkFailed()
		_ = r.cfg.Writer.Record(t)
		detail := res.Detail
		if detail == "" {
			detail = "executor reported failure"
		}
		failure := errors.NewExecutionError(detail, errors.ErrTaskFailed).
			WithTaskID(t.ID).
			WithPhase(r.doc.Phases[phaseIdx].Name)
		r.recordJournal(t, detail, elapsed)
		r.sum.tally(phaseIdx, taskdoc.StatusFailed)
		r.publish(events.TopicTask, events.TaskFailedEvent{
			ID: t.ID, Err: failure, Duration: elapsed, Timestamp: time.Now(),
		})
		tlog.Error("task failed", zap.String("detail", detail), zap.Duration("elapsed", elapsed))
		return nil
	}

	_ = t.MarkDone()
	if err := r.cfg.Writer.Record(t); err != nil {
		// The task succeeded but its completion could not be persisted.
		// Count it done for this run's summary and abort before anything
		// else dispatches against a diverged document.
		r.recordJournal(t, "completed, but recording the checkbox failed: "+err.Error(), elapsed)
		r.sum.tally(phaseIdx, taskdoc.StatusDone)
		r.publish(events.TopicTask, events.TaskCompletedEvent{
			ID: t.ID, Duration: elapsed, Checked: false, Timestamp: time.Now(),
		})
		tlog.Error("recording completion failed", zap.Error(err))
		return errors.Wrapf(err, "recording completion of %s", t.ID)
	}
	r.recordJournal(t, "", elapsed)
	r.sum.tally(phaseIdx, taskdoc.StatusDone)
	r.publish(events.TopicTask, events.TaskCompletedEvent{
		ID: t.ID, Duration: elapsed, Checked: true, Timestamp: time.Now(),
	})
	tlog.Info("task completed", zap.Duration("elapsed", elapsed))
	return nil
}

// skipTask marks a pending task skipped and records it. Safe to call on
// tasks that already reached a terminal state; those are left alone.
func (r *Runner) skipTask(t *taskdoc.Task, phaseIdx int, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.Status != taskdoc.StatusPending {
		return
	}
	_ = t.MarkSkipped()
	_ = r.cfg.Writer.Record(t)
	r.recordJournal(t, reason, 0)
	r.sum.tally(phaseIdx, taskdoc.StatusSkipped)
	r.publish(events.TopicTask, events.TaskSkippedEvent{
		ID: t.ID, Reason: reason, Timestamp: time.Now(),
	})
	r.log.Info("task skipped", zap.String("task", t.ID), zap.String("reason", reason))
}

func (r *Runner) skipLayer(layer scheduler.Layer, phaseIdx int, reason string) {
	for _, b := range layer.Batches {
		for _, t := range b.Tasks {
			r.skipTask(t, phaseIdx, reason)
		}
	}
}

// skipPhaseRest skips every still-pending task of the phase.
func (r *Runner) skipPhaseRest(pp *scheduler.PhasePlan, reason string) {
	for _, layer := range pp.Layers {
		r.skipLayer(layer, pp.Phase.Index, reason)
	}
}

// skipPhase skips a whole phase that never started.
func (r *Runner) skipPhase(pp *scheduler.PhasePlan, reason string) {
	r.publish(events.TopicPhase, events.PhaseSkippedEvent{
		Number: pp.Phase.Ordinal, Name: pp.Phase.Name, Reason: reason, Timestamp: time.Now(),
	})
	r.skipPhaseRest(pp, reason)
}

// skipFrom skips phase i and everything after it.
func (r *Runner) skipFrom(i int, reason string) {
	for ; i < len(r.plan.Phases); i++ {
		pp := &r.plan.Phases[i]
		if len(pp.Layers) == 0 {
			continue
		}
		r.skipPhase(pp, reason)
	}
}

// recordJournal writes one task outcome to the ledger. Callers hold r.mu.
func (r *Runner) recordJournal(t *taskdoc.Task, detail string, d time.Duration) {
	if r.cfg.Journal == nil {
		return
	}
	phase := r.doc.Phases[t.PhaseIndex]
	rec := journal.TaskRecord{
		RunID:    r.cfg.RunID,
		TaskID:   t.ID,
		Phase:    phase.Name,
		Story:    phase.Story,
		Status:   t.Status.String(),
		Detail:   detail,
		Duration: d,
	}
	if err := r.cfg.Journal.RecordTask(r.jctx, rec); err != nil {
		r.log.Warn("recording task outcome", zap.String("task", t.ID), zap.Error(err))
	}
}

func (r *Runner) request(t *taskdoc.Task) executor.TaskRequest {
	phase := r.doc.Phases[t.PhaseIndex]
	req := executor.TaskRequest{
		ID:          t.ID,
		Description: t.Description,
		Phase:       phase.Name,
		Story:       phase.Story,
		Test:        t.Test,
		TasksPath:   r.doc.Path,
	}
	if rc := r.cfg.Run; rc != nil {
		req.FeatureDir = rc.FeatureDir
		req.SpecPath = rc.SpecPath
		req.PlanPath = rc.PlanPath
		req.WorkDir = rc.RepoRoot
	}
	return req
}

func (r *Runner) featureDir() string {
	if r.cfg.Run != nil {
		return r.cfg.Run.FeatureDir
	}
	return ""
}

// onRetry republishes the task's start with the upcoming attempt number so
// live views can show transport retries.
func (r *Runner) onRetry(req executor.TaskRequest, attempt int, err error, next time.Duration) {
	r.publish(events.TopicTask, events.TaskStartedEvent{
		ID:          req.ID,
		Description: req.Description,
		Attempt:     attempt + 1,
		Timestamp:   time.Now(),
	})
}

func (r *Runner) publish(topic string, ev events.Event) {
	if r.cfg.Bus != nil {
		r.cfg.Bus.Publish(topic, ev)
	}
}

// publishOutput splits executor output into line events.
func (r *Runner) publishOutput(taskID, output string) {
	if r.cfg.Bus == nil || output == "" {
		return
	}
	for _, line := range strings.Split(strings.TrimRight(output, "\n"), "\n") {
		if line == "" {
			continue
		}
		r.cfg.Bus.Publish(events.TopicTask, events.TaskOutputEvent{
			ID: taskID, Line: line, Timestamp: time.Now(),
		})
	}
}

func (r *Runner) failedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sum.Failed
}

func (r *Runner) phaseCounts(phaseIdx int) (done, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ps := r.sum.Phases[phaseIdx]
	return ps.Done, ps.Failed
}

func layerIDs(layer scheduler.Layer) []string {
	var ids []string
	for _, b := range layer.Batches {
		ids = append(ids, b.IDs()...)
	}
	return ids
}
