package orchestrator

import (
	"sort"
	"time"

	"github.com/speckit-dev/speckit/internal/scheduler"
	"github.com/speckit-dev/speckit/internal/taskdoc"
)

// PhaseSummary tallies one phase's outcomes.
type PhaseSummary struct {
	Name     string
	Story    string // "" for non-story phases
	Priority int
	Done     int
	Failed   int
	Skipped  int
}

// StorySummary aggregates the phases of one user story.
type StorySummary struct {
	Story    string
	Priority int
	Done     int
	Failed   int
	Skipped  int
}

// Summary is the run's final report: per-phase and per-story outcome
// counts plus the overall verdict.
type Summary struct {
	RunID     string
	Verdict   string
	StartedAt time.Time
	Duration  time.Duration

	// Total counts every task in the document; Pending counts the ones
	// this run set out to dispatch.
	Total   int
	Pending int
	Done    int
	Failed  int
	Skipped int

	// Phases follows document order, one entry per phase.
	Phases   []PhaseSummary
	Warnings []string
}

func newSummary(runID string, doc *taskdoc.Document, plan *scheduler.Plan) *Summary {
	s := &Summary{
		RunID:   runID,
		Total:   len(doc.Tasks()),
		Pending: plan.PendingTasks(),
	}
	for _, p := range doc.Phases {
		s.Phases = append(s.Phases, PhaseSummary{
			Name:     p.Name,
			Story:    p.Story,
			Priority: p.Priority,
		})
	}
	return s
}

// tally records one terminal outcome against its phase. Callers hold the
// runner's mutex.
func (s *Summary) tally(phaseIdx int, st taskdoc.Status) {
	ps := &s.Phases[phaseIdx]
	switch st {
	case taskdoc.StatusDone:
		ps.Done++
		s.Done++
	case taskdoc.StatusFailed:
		ps.Failed++
		s.Failed++
	case taskdoc.StatusSkipped:
		ps.Skipped++
		s.Skipped++
	}
}

// Succeeded reports whether every pending task completed.
func (s *Summary) Succeeded() bool {
	return s.Failed == 0 && s.Skipped == 0 && s.Done == s.Pending
}

// Stories aggregates story phases by story label, ordered by priority rank.
func (s *Summary) Stories() []StorySummary {
	byStory := make(map[string]*StorySummary)
	for _, ps := range s.Phases {
		if ps.Story == "" {
			continue
		}
		st, ok := byStory[ps.Story]
		if !ok {
			st = &StorySummary{Story: ps.Story, Priority: ps.Priority}
			byStory[ps.Story] = st
		}
		st.Done += ps.Done
		st.Failed += ps.Failed
		st.Skipped += ps.Skipped
	}

	out := make([]StorySummary, 0, len(byStory))
	for _, st := range byStory {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Story < out[j].Story
	})
	return out
}
