package orchestrator

import (
	"testing"

	"github.com/speckit-dev/speckit/internal/scheduler"
	"github.com/speckit-dev/speckit/internal/taskdoc"
)

func TestSummaryStories(t *testing.T) {
	doc, err := taskdoc.Parse([]byte(`# Tasks: Story Totals

## Phase 1: Setup
- [ ] T001 scaffold

## Phase 2: User Story 2 - Search (Priority: P2)
- [ ] T002 [US2] index

## Phase 3: User Story 1 - Login (Priority: P1)
- [ ] T003 [US1] endpoint
- [ ] T004 [US1] session

## Phase 4: User Story 1 - Login hardening (Priority: P1)
- [ ] T005 [US1] lockout
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	plan, err := scheduler.BuildPlan(doc)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}

	s := newSummary("run-1", doc, plan)
	if s.Total != 5 || s.Pending != 5 {
		t.Fatalf("totals = %d/%d, want 5/5", s.Total, s.Pending)
	}

	s.tally(0, taskdoc.StatusDone)    // T001
	s.tally(1, taskdoc.StatusSkipped) // T002
	s.tally(2, taskdoc.StatusDone)    // T003
	s.tally(2, taskdoc.StatusFailed)  // T004
	s.tally(3, taskdoc.StatusSkipped) // T005

	if s.Done != 2 || s.Failed != 1 || s.Skipped != 2 {
		t.Errorf("global tally = %d/%d/%d, want 2/1/2", s.Done, s.Failed, s.Skipped)
	}
	if s.Succeeded() {
		t.Error("Succeeded() with failures and skips")
	}

	stories := s.Stories()
	if len(stories) != 2 {
		t.Fatalf("got %d stories, want 2", len(stories))
	}
	// Priority rank orders stories, not document position; both US1 phases
	// fold into one row.
	if stories[0].Story != "US1" || stories[0].Done != 1 || stories[0].Failed != 1 || stories[0].Skipped != 1 {
		t.Errorf("US1 = %+v, want 1 done, 1 failed, 1 skipped", stories[0])
	}
	if stories[1].Story != "US2" || stories[1].Skipped != 1 {
		t.Errorf("US2 = %+v, want 1 skipped", stories[1])
	}
}

func TestSummarySucceeded(t *testing.T) {
	doc, err := taskdoc.Parse([]byte(`# Tasks: Clean

## Phase 1: Setup
- [ ] T001 one
- [ ] T002 two
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	plan, err := scheduler.BuildPlan(doc)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}

	s := newSummary("run-2", doc, plan)
	s.tally(0, taskdoc.StatusDone)
	if s.Succeeded() {
		t.Error("Succeeded() before all pending tasks finished")
	}
	s.tally(0, taskdoc.StatusDone)
	if !s.Succeeded() {
		t.Error("Succeeded() = false with every pending task done")
	}
}
