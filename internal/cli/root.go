// Package cli defines the speckit command tree. Each subcommand lives in
// its own file and registers itself with the root in init, sharing the
// persistent flags declared here.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/speckit-dev/speckit/internal/config"
	"github.com/speckit-dev/speckit/internal/errors"
	"github.com/speckit-dev/speckit/internal/logging"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "speckit",
	Short: "Execute spec-driven feature task lists",
	Long: `speckit drives the implementation stage of a spec-driven feature:
it reads the feature's tasks.md, schedules tasks phase by phase with
dependency-ordered layers inside each phase, dispatches them to an
executor, and checks them off as they complete.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "config file (default .speckit/config.yaml)")
	pf.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, or error")
	pf.StringVar(&logFormat, "log-format", "", "log format: console or json")
	pf.BoolVarP(&verbose, "verbose", "v", false, "stream task output to the console")
}

// Execute runs the command tree and maps the outcome to a process exit
// code: 0 success, 1 missing prerequisite, 2 execution failure, 3
// malformed task document.
func Execute(ctx context.Context) int {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		printError(os.Stderr, err)
	}
	return errors.ExitCode(err)
}

// printError renders the failure plus, for prerequisite problems, the
// remediation hint carried on the error.
func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "error: %v\n", err)
	var preErr *errors.PrerequisiteError
	if errors.As(err, &preErr) && preErr.Help != "" {
		fmt.Fprintln(w, preErr.Help)
	}
}

// loadConfig reads the layered configuration anchored at workDir and puts
// the persistent logging flags on top.
func loadConfig(workDir string) (*config.Config, error) {
	cfg, err := config.Load(config.Options{File: cfgFile, WorkDir: workDir})
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	return logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
}
