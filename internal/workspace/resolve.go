// Package workspace resolves the filesystem surroundings of a run: the
// repository root, the feature directory holding the spec/plan/tasks
// documents, and the optional artifacts the prerequisite stage reports on.
// Everything downstream receives an explicit RunContext instead of
// consulting process-wide state.
package workspace

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/speckit-dev/speckit/internal/errors"
)

// Well-known names inside a feature directory.
const (
	SpecFile      = "spec.md"
	PlanFile      = "plan.md"
	TasksFile     = "tasks.md"
	ChecklistsDir = "checklists"

	specsDirName = "specs"
)

// optionalDocNames are surfaced when present but never required.
var optionalDocNames = []string{"data-model.md", "research.md", "quickstart.md"}

// RunContext carries every path one run needs.
type RunContext struct {
	RepoRoot     string
	FeatureDir   string
	SpecPath     string
	PlanPath     string
	TasksPath    string
	ChecklistDir string
	OptionalDocs []string
	Branch       string
}

// Options narrow or override feature-dir detection.
type Options struct {
	WorkDir    string // defaults to the current directory
	FeatureDir string // skips detection entirely
	TasksFile  string // replaces <feature>/tasks.md
}

// Resolve locates the feature directory and builds the RunContext. Without
// an explicit FeatureDir it walks up from WorkDir to the first ancestor
// holding a specs/ directory, then picks the feature inside it: the
// directory matching the current git branch if one does, otherwise the
// single directory containing a plan.md. Anything ambiguous is an error
// asking for --feature-dir rather than a guess.
func Resolve(opts Options) (*RunContext, error) {
	workDir := opts.WorkDir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, errors.Wrap(err, "resolving working directory")
		}
		workDir = wd
	}
	workDir, err := filepath.Abs(workDir)
	if err != nil {
		return nil, errors.Wrap(err, "resolving working directory")
	}

	branch := gitBranch(workDir)

	featureDir := opts.FeatureDir
	if featureDir != "" {
		featureDir = absFrom(workDir, featureDir)
		info, statErr := os.Stat(featureDir)
		if statErr != nil || !info.IsDir() {
			return nil, errors.NewPrerequisiteError(
				"feature directory does not exist", errors.ErrFeatureDirNotFound).
				WithPath(featureDir).
				WithHelp("Pass --feature-dir an existing directory containing plan.md and tasks.md.")
		}
	} else {
		featureDir, err = detectFeatureDir(workDir, branch)
		if err != nil {
			return nil, err
		}
	}

	rc := &RunContext{
		RepoRoot:     repoRoot(workDir, featureDir),
		FeatureDir:   featureDir,
		SpecPath:     filepath.Join(featureDir, SpecFile),
		PlanPath:     filepath.Join(featureDir, PlanFile),
		TasksPath:    filepath.Join(featureDir, TasksFile),
		ChecklistDir: filepath.Join(featureDir, ChecklistsDir),
		Branch:       branch,
	}
	if opts.TasksFile != "" {
		rc.TasksPath = absFrom(workDir, opts.TasksFile)
	}
	rc.OptionalDocs = discoverOptionalDocs(featureDir)

	return rc, nil
}

func absFrom(base, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(base, path)
}

func detectFeatureDir(workDir, branch string) (string, error) {
	for dir := workDir; ; {
		specsDir := filepath.Join(dir, specsDirName)
		if info, err := os.Stat(specsDir); err == nil && info.IsDir() {
			return pickFeatureDir(specsDir, branch)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", errors.NewPrerequisiteError(
		"no specs directory found", errors.ErrFeatureDirNotFound).
		WithArtifact(specsDirName).
		WithHelp("Run from inside an initialized project, or pass --feature-dir.")
}

func pickFeatureDir(specsDir, branch string) (string, error) {
	if branch != "" {
		byBranch := filepath.Join(specsDir, branch)
		if fileExists(filepath.Join(byBranch, PlanFile)) {
			return byBranch, nil
		}
	}

	entries, err := os.ReadDir(specsDir)
	if err != nil {
		return "", errors.Wrap(err, "scanning specs directory")
	}
	var candidates []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(specsDir, e.Name())
		if fileExists(filepath.Join(dir, PlanFile)) {
			candidates = append(candidates, dir)
		}
	}

	switch len(candidates) {
	case 0:
		return "", errors.NewPrerequisiteError(
			"no feature directory with a plan.md under "+specsDir, errors.ErrFeatureDirNotFound).
			WithArtifact(PlanFile).
			WithHelp("Run the plan command to create one, or pass --feature-dir.")
	case 1:
		return candidates[0], nil
	default:
		names := make([]string, len(candidates))
		for i, c := range candidates {
			names[i] = filepath.Base(c)
		}
		return "", errors.NewPrerequisiteError(
			"multiple feature directories found: "+strings.Join(names, ", "), errors.ErrFeatureDirNotFound).
			WithPath(specsDir).
			WithHelp("Pass --feature-dir to choose one, or check out the feature's branch.")
	}
}

func discoverOptionalDocs(featureDir string) []string {
	var docs []string
	for _, name := range optionalDocNames {
		if fileExists(filepath.Join(featureDir, name)) {
			docs = append(docs, name)
		}
	}
	if info, err := os.Stat(filepath.Join(featureDir, "contracts")); err == nil && info.IsDir() {
		docs = append(docs, "contracts/")
	}
	return docs
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// gitBranch returns the checked-out branch, or "" outside a repository or
// on a detached HEAD.
func gitBranch(dir string) string {
	out, err := exec.Command("git", "-C", dir, "rev-parse", "--abbrev-ref", "HEAD").Output()
	if err != nil {
		return ""
	}
	branch := strings.TrimSpace(string(out))
	if branch == "HEAD" {
		return ""
	}
	return branch
}

// repoRoot prefers git's answer, then the specs/ layout, then the working
// directory itself.
func repoRoot(workDir, featureDir string) string {
	if root := gitToplevel(workDir); root != "" {
		return root
	}
	if filepath.Base(filepath.Dir(featureDir)) == specsDirName {
		return filepath.Dir(filepath.Dir(featureDir))
	}
	return workDir
}

// ProjectRoot locates the directory run-relative paths (the journal, run
// logs) resolve against, without requiring a feature directory: git's
// toplevel when inside a repository, otherwise the nearest ancestor holding
// a specs/ directory, otherwise workDir itself.
func ProjectRoot(workDir string) string {
	if root := gitToplevel(workDir); root != "" {
		return root
	}
	for dir := workDir; ; {
		if info, err := os.Stat(filepath.Join(dir, specsDirName)); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return workDir
}

func gitToplevel(dir string) string {
	out, err := exec.Command("git", "-C", dir, "rev-parse", "--show-toplevel").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
