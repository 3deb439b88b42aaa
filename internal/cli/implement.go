package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/speckit-dev/speckit/internal/config"
	"github.com/speckit-dev/speckit/internal/events"
	"github.com/speckit-dev/speckit/internal/executor"
	"github.com/speckit-dev/speckit/internal/journal"
	"github.com/speckit-dev/speckit/internal/logging"
	"github.com/speckit-dev/speckit/internal/orchestrator"
	"github.com/speckit-dev/speckit/internal/prereq"
	"github.com/speckit-dev/speckit/internal/report"
	"github.com/speckit-dev/speckit/internal/scheduler"
	"github.com/speckit-dev/speckit/internal/taskdoc"
	"github.com/speckit-dev/speckit/internal/tui"
	"github.com/speckit-dev/speckit/internal/workspace"
)

var (
	implFeatureDir     string
	implTasksFile      string
	implSkipChecklists bool
	implFailFast       bool
	implBestEffort     bool
	implMaxParallel    int
	implExecutor       string
	implDryRun         bool
	implTUI            bool
)

var implementCmd = &cobra.Command{
	Use:   "implement",
	Short: "Execute the feature's task list",
	Long: `Implement executes the feature's tasks.md end to end: it verifies the
spec and plan exist, evaluates checklists, schedules pending tasks phase by
phase with dependency-ordered layers inside each phase, dispatches them to
the configured executor, and checks off completed tasks in the document.

A failed task halts the rest of its user story; other stories keep
running. Later phases are skipped once an earlier phase is incomplete
unless --best-effort is set.`,
	Example: `  speckit implement
  speckit implement --feature-dir specs/001-user-auth --max-parallel 8
  speckit implement --dry-run --verbose`,
	RunE: runImplement,
}

func init() {
	rootCmd.AddCommand(implementCmd)

	f := implementCmd.Flags()
	f.StringVar(&implFeatureDir, "feature-dir", "", "feature directory (default: detected from the current branch)")
	f.StringVar(&implTasksFile, "tasks-file", "", "task list path (default <feature-dir>/tasks.md)")
	f.BoolVar(&implSkipChecklists, "skip-checklists", false, "do not evaluate checklists before running")
	f.BoolVar(&implFailFast, "fail-fast", false, "abort the run at the first failed task")
	f.BoolVar(&implBestEffort, "best-effort", false, "start phases even when earlier phases are incomplete")
	f.IntVar(&implMaxParallel, "max-parallel", 0, "concurrent task limit (default from config)")
	f.StringVar(&implExecutor, "executor", "", "executor kind: claude, script, or dryrun")
	f.BoolVar(&implDryRun, "dry-run", false, "preview the run without executing tasks or writing status")
	f.BoolVar(&implTUI, "tui", false, "show the interactive progress view")

	implementCmd.MarkFlagsMutuallyExclusive("fail-fast", "best-effort")
}

func runImplement(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rc, err := workspace.Resolve(workspace.Options{
		FeatureDir: implFeatureDir,
		TasksFile:  implTasksFile,
	})
	if err != nil {
		return err
	}

	cfg, err := loadConfig(rc.RepoRoot)
	if err != nil {
		return err
	}
	applyImplementFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	runID := uuid.NewString()
	if cfg.Log.File == "" && !implDryRun {
		cfg.Log.File = filepath.Join(rc.RepoRoot, ".speckit", "logs", runID+".json")
	}
	if implTUI && logLevel == "" {
		// Console log lines would tear the TUI; the per-run file keeps
		// the full trace.
		cfg.Log.Level = "error"
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()
	log = log.WithRun(runID)

	if !implDryRun {
		lock := workspace.NewRunLock(rc.FeatureDir)
		if err := lock.Acquire(); err != nil {
			return err
		}
		defer lock.Release()
	}

	policy, err := prereq.ParsePolicy(cfg.ChecklistPolicy)
	if err != nil {
		return err
	}
	gateRes, err := prereq.NewGate(policy, log).Check(rc)
	if err != nil {
		return err
	}
	for _, w := range gateRes.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
	}

	doc, err := taskdoc.ParseFile(rc.TasksPath)
	if err != nil {
		return err
	}
	plan, err := scheduler.BuildPlan(doc)
	if err != nil {
		return err
	}

	var jnl journal.Journal
	if !implDryRun {
		j, err := journal.Open(ctx, cfg.ResolveJournalPath(rc.RepoRoot))
		if err != nil {
			return err
		}
		defer j.Close()
		jnl = j
	}

	var writer taskdoc.Writer = taskdoc.NopWriter{}
	if !implDryRun {
		sw, err := taskdoc.NewStatusWriter(doc)
		if err != nil {
			return err
		}
		writer = sw
	}

	pm := executor.NewProcessManager()
	exec, err := executor.New(executor.Config{
		Kind:    cfg.Executor.Kind,
		Command: cfg.Executor.Command,
		Args:    cfg.Executor.Args,
		Model:   cfg.Executor.Model,
		WorkDir: rc.RepoRoot,
	}, pm, log)
	if err != nil {
		return err
	}

	bus := events.NewEventBus()
	runner := orchestrator.NewRunner(orchestrator.Config{
		Executor:            exec,
		Writer:              writer,
		Journal:             jnl,
		Bus:                 bus,
		Log:                 log,
		Run:                 rc,
		RunID:               runID,
		MaxParallel:         cfg.MaxParallel,
		FailFast:            cfg.FailFast,
		BestEffort:          cfg.BestEffort,
		StoryStrictPriority: cfg.StoryStrictPriority,
		TaskTimeout:         cfg.TaskTimeout,
	}, doc, plan)

	// The first interrupt cancels ctx and lets in-flight tasks finish; a
	// second one kills their processes outright.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go killOnSecondSignal(ctx, pm, log, watchDone)

	if implTUI {
		return runTUI(ctx, cmd.OutOrStdout(), runner, bus, gateRes)
	}
	return runConsole(ctx, cmd.OutOrStdout(), runner, bus, gateRes)
}

// applyImplementFlags layers command-line choices over the loaded config.
func applyImplementFlags(cfg *config.Config) {
	if implFailFast {
		cfg.FailFast = true
		cfg.BestEffort = false
	}
	if implBestEffort {
		cfg.BestEffort = true
		cfg.FailFast = false
	}
	if implMaxParallel > 0 {
		cfg.MaxParallel = implMaxParallel
	}
	if implExecutor != "" {
		cfg.Executor.Kind = implExecutor
	}
	if implDryRun {
		cfg.Executor.Kind = "dryrun"
	}
	if implSkipChecklists {
		cfg.ChecklistPolicy = string(prereq.PolicySkip)
	}
}

// runConsole drives the run with the line-oriented reporter and prints the
// closing tables.
func runConsole(ctx context.Context, out io.Writer, runner *orchestrator.Runner, bus *events.EventBus, gate *prereq.Result) error {
	rep := report.New(bus, out, verbose)
	rep.Start()
	publishChecklists(bus, gate)

	sum, runErr := runner.Run(ctx)

	bus.Close()
	rep.Wait()

	if sum != nil {
		report.Summary(out, sum)
	}
	return runErr
}

// runTUI runs the orchestrator in a goroutine and mirrors its events into
// the interactive view. The view owns the terminal until the user quits;
// quitting mid-run aborts at the next layer boundary.
func runTUI(ctx context.Context, out io.Writer, runner *orchestrator.Runner, bus *events.EventBus, gate *prereq.Result) error {
	model := tui.New(bus)
	publishChecklists(bus, gate)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	var (
		sum    *orchestrator.Summary
		runErr error
	)
	runnerDone := make(chan struct{})
	go func() {
		defer close(runnerDone)
		sum, runErr = runner.Run(runCtx)
		bus.Close()
	}()

	p := tea.NewProgram(model, tea.WithAltScreen())
	go func() {
		// On interrupt the runner stops on its own; close the view too
		// instead of waiting for a keypress.
		<-runnerDone
		if ctx.Err() != nil {
			p.Quit()
		}
	}()

	_, uiErr := p.Run()
	cancelRun()
	<-runnerDone

	if sum != nil {
		report.Summary(out, sum)
	}
	if runErr != nil {
		return runErr
	}
	return uiErr
}

// publishChecklists replays the gate's checklist tallies onto the bus so
// both views render them alongside run events.
func publishChecklists(bus *events.EventBus, gate *prereq.Result) {
	for _, st := range gate.Checklists {
		bus.Publish(events.TopicRun, events.ChecklistEvaluatedEvent{
			Name:      st.Name,
			Total:     st.Total,
			Done:      st.Done,
			Passed:    st.Passed(),
			Timestamp: time.Now(),
		})
	}
}

// killOnSecondSignal waits for the run context to be canceled by an
// interrupt, then hard-kills executor processes if another one arrives
// before the run winds down.
func killOnSecondSignal(ctx context.Context, pm *executor.ProcessManager, log *logging.Logger, done <-chan struct{}) {
	select {
	case <-done:
		return
	case <-ctx.Done():
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case <-sig:
		log.Warn("second interrupt, killing task processes")
		if err := pm.KillAll(); err != nil {
			log.Warn("killing task processes", zap.Error(err))
		}
	case <-done:
	}
}
