package events

import (
	"time"
)

// Event is implemented by everything published on the bus. TaskID returns
// "" for run- and phase-level events.
type Event interface {
	EventType() string
	TaskID() string
}

// Topics group events by granularity. Console reporters usually subscribe
// to everything; the TUI splits panes by topic.
const (
	TopicRun   = "run"
	TopicPhase = "phase"
	TopicTask  = "task"
)

// Event type constants.
const (
	EventTypeRunStarted         = "run.started"
	EventTypeRunCompleted       = "run.completed"
	EventTypeChecklistEvaluated = "run.checklist"
	EventTypePhaseStarted       = "phase.started"
	EventTypePhaseCompleted     = "phase.completed"
	EventTypePhaseSkipped       = "phase.skipped"
	EventTypeLayerDispatched    = "phase.layer"
	EventTypeTaskStarted        = "task.started"
	EventTypeTaskOutput         = "task.output"
	EventTypeTaskCompleted      = "task.completed"
	EventTypeTaskFailed         = "task.failed"
	EventTypeTaskSkipped        = "task.skipped"
)

// RunStartedEvent is published once, after the prerequisite gate passed and
// the plan is built.
type RunStartedEvent struct {
	RunID        string
	FeatureDir   string
	TasksPath    string
	TotalTasks   int
	PendingTasks int
	Timestamp    time.Time
}

func (e RunStartedEvent) EventType() string { return EventTypeRunStarted }
func (e RunStartedEvent) TaskID() string    { return "" }

// RunCompletedEvent closes a run, successful or not.
type RunCompletedEvent struct {
	RunID     string
	Completed int
	Failed    int
	Skipped   int
	Duration  time.Duration
	Timestamp time.Time
}

func (e RunCompletedEvent) EventType() string { return EventTypeRunCompleted }
func (e RunCompletedEvent) TaskID() string    { return "" }

// ChecklistEvaluatedEvent reports one checklist file's tally from the
// prerequisite stage.
type ChecklistEvaluatedEvent struct {
	Name      string
	Total     int
	Done      int
	Passed    bool
	Timestamp time.Time
}

func (e ChecklistEvaluatedEvent) EventType() string { return EventTypeChecklistEvaluated }
func (e ChecklistEvaluatedEvent) TaskID() string    { return "" }

// PhaseStartedEvent is published when the runner enters a phase that has
// pending tasks.
type PhaseStartedEvent struct {
	Number    int
	Name      string
	Story     string // story label ("US1"), empty when not story-scoped
	Pending   int
	Timestamp time.Time
}

func (e PhaseStartedEvent) EventType() string { return EventTypePhaseStarted }
func (e PhaseStartedEvent) TaskID() string    { return "" }

// PhaseCompletedEvent is published when a phase's layers are exhausted.
type PhaseCompletedEvent struct {
	Number    int
	Name      string
	Completed int
	Failed    int
	Timestamp time.Time
}

func (e PhaseCompletedEvent) EventType() string { return EventTypePhaseCompleted }
func (e PhaseCompletedEvent) TaskID() string    { return "" }

// PhaseSkippedEvent is published when gating rules keep a phase from
// running, with the tasks inside marked skipped.
type PhaseSkippedEvent struct {
	Number    int
	Name      string
	Reason    string
	Timestamp time.Time
}

func (e PhaseSkippedEvent) EventType() string { return EventTypePhaseSkipped }
func (e PhaseSkippedEvent) TaskID() string    { return "" }

// LayerDispatchedEvent announces the set of tasks a dependency layer is
// about to offer to the executor.
type LayerDispatchedEvent struct {
	PhaseNumber int
	Layer       int
	IDs         []string
	Timestamp   time.Time
}

func (e LayerDispatchedEvent) EventType() string { return EventTypeLayerDispatched }
func (e LayerDispatchedEvent) TaskID() string    { return "" }

// TaskStartedEvent is published when a task is handed to the executor.
// Attempt counts transport retries, starting at 1.
type TaskStartedEvent struct {
	ID          string
	Description string
	Attempt     int
	Timestamp   time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) TaskID() string    { return e.ID }

// TaskOutputEvent carries one line of executor output.
type TaskOutputEvent struct {
	ID        string
	Line      string
	Timestamp time.Time
}

func (e TaskOutputEvent) EventType() string { return EventTypeTaskOutput }
func (e TaskOutputEvent) TaskID() string    { return e.ID }

// TaskCompletedEvent is published after a task succeeded and its checkbox
// write settled.
type TaskCompletedEvent struct {
	ID        string
	Duration  time.Duration
	Checked   bool
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) TaskID() string    { return e.ID }

// TaskFailedEvent is published when the executor reports failure or the
// transport gives up.
type TaskFailedEvent struct {
	ID        string
	Err       error
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) TaskID() string    { return e.ID }

// TaskSkippedEvent is published for tasks the run never dispatched:
// dependents of failures, tasks behind a halted story, or everything left
// after a fail-fast abort.
type TaskSkippedEvent struct {
	ID        string
	Reason    string
	Timestamp time.Time
}

func (e TaskSkippedEvent) EventType() string { return EventTypeTaskSkipped }
func (e TaskSkippedEvent) TaskID() string    { return e.ID }
