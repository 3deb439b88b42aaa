package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/speckit-dev/speckit/internal/prereq"
	"github.com/speckit-dev/speckit/internal/report"
	"github.com/speckit-dev/speckit/internal/scheduler"
	"github.com/speckit-dev/speckit/internal/taskdoc"
	"github.com/speckit-dev/speckit/internal/workspace"
)

var (
	valFeatureDir string
	valTasksFile  string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Parse the task list and preview its schedule",
	Long: `Validate parses tasks.md without executing anything: it reports parse
problems, shows the phase and layer schedule the implement command would
follow, and tallies the feature's checklists.`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	f := validateCmd.Flags()
	f.StringVar(&valFeatureDir, "feature-dir", "", "feature directory (default: detected from the current branch)")
	f.StringVar(&valTasksFile, "tasks-file", "", "task list path (default <feature-dir>/tasks.md)")
}

func runValidate(cmd *cobra.Command, args []string) error {
	rc, err := workspace.Resolve(workspace.Options{
		FeatureDir: valFeatureDir,
		TasksFile:  valTasksFile,
	})
	if err != nil {
		return err
	}

	doc, err := taskdoc.ParseFile(rc.TasksPath)
	if err != nil {
		return err
	}
	plan, err := scheduler.BuildPlan(doc)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d tasks, %d pending\n",
		displayPath(rc.RepoRoot, rc.TasksPath), len(doc.Tasks()), plan.PendingTasks())
	printSchedule(out, plan)

	statuses, err := prereq.EvaluateChecklists(rc.ChecklistDir)
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	report.Checklists(out, statuses)
	return nil
}

// printSchedule lists each phase's layers the way the runner would dispatch
// them: batches in order, parallel batches bracketed.
func printSchedule(out io.Writer, plan *scheduler.Plan) {
	for _, pp := range plan.Phases {
		fmt.Fprintf(out, "\nPhase %d: %s\n", pp.Phase.Ordinal, pp.Phase.Name)
		if len(pp.Layers) == 0 {
			fmt.Fprintln(out, "  no pending tasks")
			continue
		}
		for _, layer := range pp.Layers {
			parts := make([]string, 0, len(layer.Batches))
			for _, b := range layer.Batches {
				ids := strings.Join(b.IDs(), " ")
				if b.Parallel {
					ids = "[" + ids + "]"
				}
				parts = append(parts, ids)
			}
			fmt.Fprintf(out, "  layer %d: %s\n", layer.Index, strings.Join(parts, " "))
		}
	}
}

// displayPath shortens path relative to root when it sits inside it.
func displayPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}
