package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestJournal(t *testing.T) *SQLiteJournal {
	t.Helper()
	j, err := OpenMemory(context.Background())
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestOpenCreatesParentDirectories(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), ".speckit", "runs.db")

	j, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer j.Close()

	run := &Run{FeatureDir: "/repo/specs/001-auth", TasksFile: "tasks.md", Executor: "claude"}
	if err := j.BeginRun(ctx, run); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}

	runs, err := j.RecentRuns(ctx, 5)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != run.ID {
		t.Fatalf("RecentRuns = %+v, want the run just begun", runs)
	}
}

func TestBeginRunFillsDefaults(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	run := &Run{FeatureDir: "/repo/specs/001-auth", TasksFile: "tasks.md", Executor: "dryrun"}
	if err := j.BeginRun(ctx, run); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}

	if run.ID == "" {
		t.Error("BeginRun left ID empty")
	}
	if run.StartedAt.IsZero() {
		t.Error("BeginRun left StartedAt zero")
	}
	if run.Verdict != VerdictRunning {
		t.Errorf("Verdict = %q, want %q", run.Verdict, VerdictRunning)
	}
}

func TestRecordTaskUpserts(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	run := &Run{FeatureDir: "/repo/specs/001-auth", TasksFile: "tasks.md", Executor: "script"}
	if err := j.BeginRun(ctx, run); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}

	rec := TaskRecord{
		RunID:    run.ID,
		TaskID:   "T001",
		Phase:    "Foundational",
		Status:   "failed",
		Detail:   "exit status 1",
		Duration: 1500 * time.Millisecond,
	}
	if err := j.RecordTask(ctx, rec); err != nil {
		t.Fatalf("RecordTask: %v", err)
	}

	rec.Status = "done"
	rec.Detail = ""
	rec.Duration = 2 * time.Second
	if err := j.RecordTask(ctx, rec); err != nil {
		t.Fatalf("RecordTask (second): %v", err)
	}

	recs, err := j.RunResults(ctx, run.ID)
	if err != nil {
		t.Fatalf("RunResults: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1 after upsert", len(recs))
	}
	got := recs[0]
	if got.Status != "done" || got.Detail != "" || got.Duration != 2*time.Second {
		t.Errorf("upserted record = %+v", got)
	}
}

func TestRunResultsOrderedByRecording(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	run := &Run{FeatureDir: "/repo/specs/002-api", TasksFile: "tasks.md", Executor: "script"}
	if err := j.BeginRun(ctx, run); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}

	for _, rec := range []TaskRecord{
		{RunID: run.ID, TaskID: "T003", Phase: "Setup", Status: "done"},
		{RunID: run.ID, TaskID: "T001", Phase: "Setup", Status: "done"},
		{RunID: run.ID, TaskID: "T002", Phase: "User Story 1", Story: "US1", Status: "skipped", Detail: "dependency T001 failed"},
	} {
		if err := j.RecordTask(ctx, rec); err != nil {
			t.Fatalf("RecordTask(%s): %v", rec.TaskID, err)
		}
	}

	recs, err := j.RunResults(ctx, run.ID)
	if err != nil {
		t.Fatalf("RunResults: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	byID := make(map[string]TaskRecord, len(recs))
	for _, r := range recs {
		byID[r.TaskID] = r
	}
	for _, want := range []string{"T001", "T002", "T003"} {
		if _, ok := byID[want]; !ok {
			t.Errorf("RunResults missing %s", want)
		}
	}
	if got := byID["T002"]; got.Story != "US1" || got.Detail != "dependency T001 failed" {
		t.Errorf("T002 = %+v, want story US1 with skip detail", got)
	}
}

func TestFinishRun(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	run := &Run{FeatureDir: "/repo/specs/001-auth", TasksFile: "tasks.md", Executor: "claude"}
	if err := j.BeginRun(ctx, run); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}

	if err := j.FinishRun(ctx, run.ID, VerdictFailed, 4, 1, 2); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	runs, err := j.RecentRuns(ctx, 1)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	got := runs[0]
	if got.Verdict != VerdictFailed {
		t.Errorf("Verdict = %q, want %q", got.Verdict, VerdictFailed)
	}
	if got.Completed != 4 || got.Failed != 1 || got.Skipped != 2 {
		t.Errorf("tallies = %d/%d/%d, want 4/1/2", got.Completed, got.Failed, got.Skipped)
	}
	if got.FinishedAt.IsZero() {
		t.Error("FinishedAt still zero after FinishRun")
	}
}

func TestFinishRunUnknownID(t *testing.T) {
	j := newTestJournal(t)
	if err := j.FinishRun(context.Background(), "no-such-run", VerdictSucceeded, 0, 0, 0); err == nil {
		t.Fatal("FinishRun on unknown run succeeded, want error")
	}
}

func TestRecentRunsNewestFirst(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		run := &Run{
			FeatureDir: "/repo/specs/001-auth",
			TasksFile:  "tasks.md",
			Executor:   "dryrun",
			StartedAt:  base.Add(time.Duration(i) * time.Hour),
		}
		if err := j.BeginRun(ctx, run); err != nil {
			t.Fatalf("BeginRun(%d): %v", i, err)
		}
		ids = append(ids, run.ID)
	}

	runs, err := j.RecentRuns(ctx, 2)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2 (limit)", len(runs))
	}
	if runs[0].ID != ids[2] || runs[1].ID != ids[1] {
		t.Errorf("RecentRuns order = [%s %s], want newest first [%s %s]",
			runs[0].ID, runs[1].ID, ids[2], ids[1])
	}
}
