// Package taskdoc models the task list document consumed by the implement
// command: an ordered sequence of phases, each holding tasks with checkbox
// completion state, dependency references, and parallel/test markers. The
// parser builds the model from the document text; the status writer patches
// completion state back without disturbing any other byte.
package taskdoc

import (
	"fmt"
)

// Status is the runtime execution state of a task within a single run.
// Pending tasks move to InProgress when dispatched, then to exactly one of
// Done or Failed. Skipped marks tasks never dispatched because their story
// halted, an earlier phase gated them, or the run was canceled.
type Status int

const (
	// StatusPending means the task has not been dispatched yet.
	StatusPending Status = iota
	// StatusInProgress means the task was handed to the executor and has not reported.
	StatusInProgress
	// StatusDone means the task completed successfully (or was already checked at parse).
	StatusDone
	// StatusFailed means the executor reported failure. Terminal for the run.
	StatusFailed
	// StatusSkipped means the task was never dispatched.
	StatusSkipped
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusInProgress:
		return "in-progress"
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is final for this run.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed || s == StatusSkipped
}

// Task is the atomic unit of work.
type Task struct {
	// ID is the stable task identifier, e.g. "T001".
	ID string
	// Description is the raw text following the identifier and markers,
	// preserved verbatim including any trailing dependency list.
	Description string
	// Parallel marks the task as eligible to run concurrently with other
	// parallel tasks in the same layer (resources disjoint from siblings).
	Parallel bool
	// Test marks a test-authoring task. Its completion means the test was
	// written and is expected to fail; implementation tasks in the same
	// story wait for it.
	Test bool
	// Story is the owning user story label ("US1") or empty outside
	// story phases.
	Story string
	// DependsOn lists identifiers of tasks that must be done first.
	// All referenced identifiers appear earlier in the document.
	DependsOn []string
	// Checked is the checkbox state read from the document.
	Checked bool
	// Status is the runtime state. Checked tasks start at StatusDone.
	Status Status
	// Line is the 1-based document line the task was parsed from.
	Line int
	// PhaseIndex is the index of the owning phase within the document.
	PhaseIndex int
}

// MarkInProgress transitions the task from pending to in-progress.
func (t *Task) MarkInProgress() error {
	if t.Status != StatusPending {
		return fmt.Errorf("cannot start task %s: status is %s", t.ID, t.Status)
	}
	t.Status = StatusInProgress
	return nil
}

// MarkDone transitions the task to done.
func (t *Task) MarkDone() error {
	if t.Status != StatusInProgress {
		return fmt.Errorf("cannot complete task %s: status is %s", t.ID, t.Status)
	}
	t.Status = StatusDone
	return nil
}

// MarkFailed transitions the task to failed.
func (t *Task) MarkFailed() error {
	if t.Status != StatusInProgress {
		return fmt.Errorf("cannot fail task %s: status is %s", t.ID, t.Status)
	}
	t.Status = StatusFailed
	return nil
}

// MarkSkipped transitions a pending task to skipped.
func (t *Task) MarkSkipped() error {
	if t.Status != StatusPending {
		return fmt.Errorf("cannot skip task %s: status is %s", t.ID, t.Status)
	}
	t.Status = StatusSkipped
	return nil
}

// Phase is a named stage of the document.
type Phase struct {
	// Name is the full header text after the ordinal, e.g.
	// "User Story 1 - Login (Priority: P1)".
	Name string
	// Ordinal is the number in the phase header. Execution follows document
	// order; the ordinal is carried for reporting.
	Ordinal int
	// Index is the phase's position in the document, starting at 0.
	Index int
	// Story is the user story label ("US2") when this is a story phase.
	Story string
	// Priority is the story's priority rank; lower runs first. Zero for
	// non-story phases.
	Priority int
	// Tasks in document order. May be empty; empty phases are preserved
	// for round-trip fidelity and skipped by the scheduler.
	Tasks []*Task
	// Line is the 1-based document line of the phase header.
	Line int
}

// IsStory reports whether this is a user story phase.
func (p *Phase) IsStory() bool {
	return p.Story != ""
}

// Pending returns the phase's tasks that are not yet in a terminal state.
func (p *Phase) Pending() []*Task {
	var out []*Task
	for _, t := range p.Tasks {
		if !t.Status.Terminal() {
			out = append(out, t)
		}
	}
	return out
}

// span locates one task's checkbox cell inside the source bytes.
type span struct {
	// offset is the byte index of the character between '[' and ']'.
	offset int
}

// Document is the parsed task list.
type Document struct {
	// Path is the file the document was read from, empty for in-memory parses.
	Path string
	// Phases in document order.
	Phases []*Phase

	source      []byte
	fingerprint [32]byte
	tasks       map[string]*Task
	spans       map[string]span
}

// Task returns the task with the given identifier, or nil.
func (d *Document) Task(id string) *Task {
	return d.tasks[id]
}

// Tasks returns all tasks in document order.
func (d *Document) Tasks() []*Task {
	var out []*Task
	for _, p := range d.Phases {
		out = append(out, p.Tasks...)
	}
	return out
}

// Source returns the raw document bytes as of the last parse or write.
func (d *Document) Source() []byte {
	return d.source
}

// Fingerprint returns the content hash of Source.
func (d *Document) Fingerprint() [32]byte {
	return d.fingerprint
}

// AllDone reports whether every task in the document is checked done.
func (d *Document) AllDone() bool {
	for _, t := range d.Tasks() {
		if t.Status != StatusDone {
			return false
		}
	}
	return true
}
