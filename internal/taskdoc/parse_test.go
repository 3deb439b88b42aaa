package taskdoc

import (
	"strings"
	"testing"

	"github.com/speckit-dev/speckit/internal/errors"
)

const sampleDoc = `# Tasks: Demo Feature

## Phase 1: Setup
- [ ] T001 Initialize project scaffolding

## Phase 2: User Story 1 - Login (Priority: P1)
- [ ] T002 [US1] [TEST] Contract test for POST /login
- [ ] T003 [US1] Implement login endpoint (depends on: T002)

## Phase 3: User Story 2 - Profiles (Priority: P2)
- [x] T004 [P] [US2] Create profile model
- [ ] T005 [P] [US2] Create profile service
`

func TestParseStructure(t *testing.T) {
	doc, err := Parse([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if len(doc.Phases) != 3 {
		t.Fatalf("got %d phases, want 3", len(doc.Phases))
	}

	setup := doc.Phases[0]
	if setup.Name != "Setup" || setup.Ordinal != 1 || setup.IsStory() {
		t.Errorf("setup phase = %+v, want plain phase named Setup with ordinal 1", setup)
	}

	us1 := doc.Phases[1]
	if us1.Story != "US1" || us1.Priority != 1 {
		t.Errorf("phase 2 story = %q priority = %d, want US1 priority 1", us1.Story, us1.Priority)
	}
	if len(us1.Tasks) != 2 {
		t.Fatalf("US1 has %d tasks, want 2", len(us1.Tasks))
	}

	tests := []struct {
		id       string
		parallel bool
		test     bool
		story    string
		deps     []string
		checked  bool
	}{
		{id: "T001", story: ""},
		{id: "T002", test: true, story: "US1"},
		{id: "T003", story: "US1", deps: []string{"T002"}},
		{id: "T004", parallel: true, story: "US2", checked: true},
		{id: "T005", parallel: true, story: "US2"},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			task := doc.Task(tt.id)
			if task == nil {
				t.Fatalf("task %s not found", tt.id)
			}
			if task.Parallel != tt.parallel {
				t.Errorf("Parallel = %v, want %v", task.Parallel, tt.parallel)
			}
			if task.Test != tt.test {
				t.Errorf("Test = %v, want %v", task.Test, tt.test)
			}
			if task.Story != tt.story {
				t.Errorf("Story = %q, want %q", task.Story, tt.story)
			}
			if len(task.DependsOn) != len(tt.deps) {
				t.Fatalf("DependsOn = %v, want %v", task.DependsOn, tt.deps)
			}
			for i, dep := range tt.deps {
				if task.DependsOn[i] != dep {
					t.Errorf("DependsOn[%d] = %q, want %q", i, task.DependsOn[i], dep)
				}
			}
			if task.Checked != tt.checked {
				t.Errorf("Checked = %v, want %v", task.Checked, tt.checked)
			}
			if tt.checked && task.Status != StatusDone {
				t.Errorf("Status = %v, want done for checked task", task.Status)
			}
		})
	}
}

func TestParseViolations(t *testing.T) {
	tests := []struct {
		name        string
		source      string
		wantErr     error
		errContains string
	}{
		{
			name: "forward dependency into later phase",
			source: `## Phase 1: Setup
- [ ] T001 First (depends on: T002)

## Phase 2: Foundational
- [ ] T002 Second
`,
			wantErr:     errors.ErrUnknownDependency,
			errContains: "T001 depends on T002",
		},
		{
			name: "dependency on undefined identifier",
			source: `## Phase 1: Setup
- [ ] T001 First (depends on: T999)
`,
			wantErr: errors.ErrUnknownDependency,
		},
		{
			name: "self dependency",
			source: `## Phase 1: Setup
- [ ] T001 First (depends on: T001)
`,
			wantErr: errors.ErrUnknownDependency,
		},
		{
			name: "duplicate identifier",
			source: `## Phase 1: Setup
- [ ] T001 First
- [ ] T001 Again
`,
			wantErr:     errors.ErrDuplicateTaskID,
			errContains: "already defined at line 2",
		},
		{
			name:    "task before any phase",
			source:  "- [ ] T001 Orphan\n",
			wantErr: errors.ErrTaskOutsidePhase,
		},
		{
			name: "story tag in wrong story phase",
			source: `## Phase 1: User Story 1 - Login
- [ ] T001 [US2] Misfiled task
`,
			wantErr: errors.ErrStoryTagMismatch,
		},
		{
			name: "story tag in plain phase",
			source: `## Phase 1: Setup
- [ ] T001 [US1] Misfiled task
`,
			wantErr: errors.ErrStoryTagMismatch,
		},
		{
			name: "corrupted checkbox",
			source: `## Phase 1: Setup
- [?] T001 Broken state
`,
			wantErr: errors.ErrMalformedTaskLine,
		},
		{
			name: "checkbox line without identifier",
			source: `## Phase 1: Setup
- [ ] missing identifier
`,
			wantErr: errors.ErrMalformedTaskLine,
		},
		{
			name: "dependency list without identifiers",
			source: `## Phase 1: Setup
- [ ] T001 Vague (depends on: the other one)
`,
			wantErr: errors.ErrMalformedTaskLine,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.source))
			if err == nil {
				t.Fatal("Parse() succeeded, want error")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Parse() error = %v, want %v", err, tt.wantErr)
			}
			var docErr *errors.DocumentError
			if !errors.As(err, &docErr) {
				t.Fatalf("Parse() error type = %T, want *errors.DocumentError", err)
			}
			if docErr.Line == 0 {
				t.Error("DocumentError has no line context")
			}
			if tt.errContains != "" && !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.errContains)
			}
		})
	}
}

func TestRoundTripFidelity(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{name: "sample document", source: sampleDoc},
		{
			name: "empty phases and prose preserved",
			source: `# Tasks

Intro prose stays put.

## Phase 1: Setup

## Phase 2: Polish
- [ ] T001 Tidy docs
  - indented note, not a task
---
trailing prose, no newline at end`,
		},
		{
			name:   "crlf line endings",
			source: "## Phase 1: Setup\r\n- [ ] T001 Windows line endings\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse([]byte(tt.source))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got := string(doc.Source()); got != tt.source {
				t.Errorf("Source() = %q, want input %q", got, tt.source)
			}
		})
	}
}

func TestParseEmptyPhaseSkippedButPreserved(t *testing.T) {
	source := `## Phase 1: Setup

## Phase 2: Foundational
- [ ] T001 Only task
`
	doc, err := Parse([]byte(source))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(doc.Phases) != 2 {
		t.Fatalf("got %d phases, want 2", len(doc.Phases))
	}
	if len(doc.Phases[0].Tasks) != 0 {
		t.Errorf("empty phase has %d tasks", len(doc.Phases[0].Tasks))
	}
	if len(doc.Phases[1].Tasks) != 1 {
		t.Errorf("second phase has %d tasks, want 1", len(doc.Phases[1].Tasks))
	}
}

func TestParseMarkerOrderIrrelevant(t *testing.T) {
	source := `## Phase 1: User Story 3 - Export
- [ ] T001 [TEST] [P] [US3] Export contract test
`
	doc, err := Parse([]byte(source))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	task := doc.Task("T001")
	if !task.Test || !task.Parallel || task.Story != "US3" {
		t.Errorf("markers = test:%v parallel:%v story:%q, want all set", task.Test, task.Parallel, task.Story)
	}
	if task.Description != "Export contract test" {
		t.Errorf("Description = %q, markers should be stripped", task.Description)
	}
}

func TestParsePriorityDefaultsToStoryNumber(t *testing.T) {
	source := `## Phase 4: User Story 2 - Sharing
- [ ] T001 Share things
`
	doc, err := Parse([]byte(source))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if doc.Phases[0].Priority != 2 {
		t.Errorf("Priority = %d, want story number 2", doc.Phases[0].Priority)
	}
}

func TestAllDone(t *testing.T) {
	doc, err := Parse([]byte("## Phase 1: Setup\n- [x] T001 Done already\n- [X] T002 Also done\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !doc.AllDone() {
		t.Error("AllDone() = false for fully checked document")
	}

	doc2, err := Parse([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if doc2.AllDone() {
		t.Error("AllDone() = true for document with pending tasks")
	}
}
