// Package prereq is the gate between CLI invocation and task execution: it
// verifies the upstream artifacts (specification, plan, optional
// checklists) exist and are minimally ready. Missing prerequisites are a
// caller-fixable problem, so the gate reports once and never retries.
package prereq

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/speckit-dev/speckit/internal/errors"
	"github.com/speckit-dev/speckit/internal/logging"
	"github.com/speckit-dev/speckit/internal/workspace"
)

// ChecklistPolicy decides what incomplete checklists do to the run.
type ChecklistPolicy string

const (
	// PolicyWarn surfaces incomplete checklists in the summary and proceeds.
	PolicyWarn ChecklistPolicy = "warn"
	// PolicyBlock turns any incomplete checklist into a fatal error.
	PolicyBlock ChecklistPolicy = "block"
	// PolicySkip leaves checklists unread.
	PolicySkip ChecklistPolicy = "skip"
)

// ParsePolicy validates a configured policy name.
func ParsePolicy(s string) (ChecklistPolicy, error) {
	switch ChecklistPolicy(strings.ToLower(s)) {
	case PolicyWarn, "":
		return PolicyWarn, nil
	case PolicyBlock:
		return PolicyBlock, nil
	case PolicySkip:
		return PolicySkip, nil
	default:
		return "", fmt.Errorf("unknown checklist policy %q (warn, block, or skip)", s)
	}
}

// Result is the gate's report for a passing run.
type Result struct {
	OptionalDocs []string
	Checklists   []ChecklistStatus
	Warnings     []string
}

// Gate validates a resolved RunContext.
type Gate struct {
	policy ChecklistPolicy
	log    *logging.Logger
}

func NewGate(policy ChecklistPolicy, log *logging.Logger) *Gate {
	if log == nil {
		log = logging.NewNop()
	}
	return &Gate{policy: policy, log: log}
}

// Check runs every prerequisite in order: mandatory documents, checklist
// policy, ignore-file preflight. The first fatal finding aborts; warnings
// accumulate into the Result.
func (g *Gate) Check(rc *workspace.RunContext) (*Result, error) {
	if err := requireDocument(rc.SpecPath, "spec.md", errors.ErrSpecMissing,
		"Run the specify command to create the feature specification."); err != nil {
		return nil, err
	}
	plan, err := readRequired(rc.PlanPath, "plan.md", errors.ErrPlanMissing,
		"Run the plan command to create the implementation plan.")
	if err != nil {
		return nil, err
	}

	res := &Result{OptionalDocs: rc.OptionalDocs}

	switch g.policy {
	case PolicySkip:
		g.log.Debug("checklist evaluation skipped")
	default:
		statuses, err := EvaluateChecklists(rc.ChecklistDir)
		if err != nil {
			return nil, err
		}
		res.Checklists = statuses

		var incomplete []string
		for _, st := range statuses {
			g.log.Debug("checklist evaluated",
				zap.String("name", st.Name),
				zap.Int("total", st.Total),
				zap.Int("done", st.Done))
			if !st.Passed() {
				incomplete = append(incomplete, st.Name)
			}
		}
		if len(incomplete) > 0 {
			msg := "incomplete checklists: " + strings.Join(incomplete, ", ")
			if g.policy == PolicyBlock {
				return nil, errors.NewPrerequisiteError(msg, errors.ErrChecklistIncomplete).
					WithArtifact(strings.Join(incomplete, ", ")).
					WithPath(rc.ChecklistDir).
					WithHelp("Complete the checklist items, or rerun with --skip-checklists.")
			}
			res.Warnings = append(res.Warnings, msg)
		}
	}

	res.Warnings = append(res.Warnings, IgnorePreflight(rc.RepoRoot, plan)...)

	return res, nil
}

func requireDocument(path, artifact string, sentinel error, help string) error {
	_, err := readRequired(path, artifact, sentinel, help)
	return err
}

func readRequired(path, artifact string, sentinel error, help string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewPrerequisiteError(artifact+" is required", sentinel).
				WithArtifact(artifact).
				WithPath(path).
				WithHelp(help)
		}
		return nil, errors.Wrapf(err, "reading %s", artifact)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.NewPrerequisiteError(artifact+" is empty", sentinel).
			WithArtifact(artifact).
			WithPath(path).
			WithHelp(help)
	}
	return data, nil
}
