package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/speckit-dev/speckit/internal/errors"
	"github.com/speckit-dev/speckit/internal/journal"
	"github.com/speckit-dev/speckit/internal/workspace"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent implementation runs",
	Long: `Runs reads the project's run ledger and lists the most recent
implementation runs, newest first.`,
	RunE: runRuns,
}

func init() {
	rootCmd.AddCommand(runsCmd)

	runsCmd.Flags().IntVar(&runsLimit, "limit", 10, "number of runs to show")
}

func runRuns(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	wd, err := os.Getwd()
	if err != nil {
		return errors.Wrap(err, "resolving working directory")
	}
	root := workspace.ProjectRoot(wd)

	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}

	dbPath := cfg.ResolveJournalPath(root)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Fprintln(cmd.OutOrStdout(), "no runs recorded")
		return nil
	}

	jnl, err := journal.Open(ctx, dbPath)
	if err != nil {
		return err
	}
	defer jnl.Close()

	runs, err := jnl.RecentRuns(ctx, runsLimit)
	if err != nil {
		return err
	}

	renderRuns(cmd.OutOrStdout(), runs)
	return nil
}

func renderRuns(out io.Writer, runs []journal.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(out, "no runs recorded")
		return
	}

	fmt.Fprintf(out, "%-10s %-10s %-17s %-28s %s\n", "RUN", "VERDICT", "STARTED", "TASKS", "FEATURE")
	for _, r := range runs {
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		tasks := fmt.Sprintf("%d done, %d failed, %d skipped", r.Completed, r.Failed, r.Skipped)
		fmt.Fprintf(out, "%-10s %-10s %-17s %-28s %s\n",
			id, r.Verdict, r.StartedAt.Local().Format("2006-01-02 15:04"), tasks, r.FeatureDir)
	}
}
