package scheduler

import (
	"reflect"
	"testing"

	"github.com/speckit-dev/speckit/internal/errors"
	"github.com/speckit-dev/speckit/internal/taskdoc"
)

func mustParse(t *testing.T, source string) *taskdoc.Document {
	t.Helper()
	doc, err := taskdoc.Parse([]byte(source))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return doc
}

// flattenBatches returns every batch's task IDs in dispatch order.
func flattenBatches(p *Plan) [][]string {
	var out [][]string
	for _, pp := range p.Phases {
		for _, layer := range pp.Layers {
			for _, b := range layer.Batches {
				out = append(out, b.IDs())
			}
		}
	}
	return out
}

func TestBuildPlanBatchOrder(t *testing.T) {
	doc := mustParse(t, `## Phase 1: Setup
- [ ] T001 Configure environment

## Phase 2: User Story 1 - Login (Priority: P1)
- [ ] T002 [US1] [TEST] Failing login contract test
- [ ] T003 [US1] Implement login endpoint (depends on: T002)

## Phase 3: User Story 2 - Search (Priority: P2)
- [ ] T004 [P] [US2] Build search index
- [ ] T005 [P] [US2] Build search API
`)

	plan, err := BuildPlan(doc)
	if err != nil {
		t.Fatalf("BuildPlan() error = %v", err)
	}

	want := [][]string{{"T001"}, {"T002"}, {"T003"}, {"T004", "T005"}}
	if got := flattenBatches(plan); !reflect.DeepEqual(got, want) {
		t.Errorf("batches = %v, want %v", got, want)
	}

	// The two parallel tasks must be one concurrent offer, not two.
	us2 := plan.Phases[2]
	if len(us2.Layers) != 1 || len(us2.Layers[0].Batches) != 1 {
		t.Fatalf("US2 plan = %+v, want a single one-batch layer", us2.Layers)
	}
	if !us2.Layers[0].Batches[0].Parallel {
		t.Error("US2 batch not marked parallel")
	}
}

func TestBuildPlanTestTasksLeadWithoutExplicitDeps(t *testing.T) {
	doc := mustParse(t, `## Phase 1: User Story 1 - Export
- [ ] T001 [US1] [TEST] Export format test
- [ ] T002 [US1] [TEST] Export error test
- [ ] T003 [US1] Implement exporter
- [ ] T004 [US1] Wire exporter into CLI
`)

	plan, err := BuildPlan(doc)
	if err != nil {
		t.Fatalf("BuildPlan() error = %v", err)
	}

	// T003/T004 carry no parallel marker, so they stay sequential even
	// though they share a layer.
	want := [][]string{{"T001"}, {"T002"}, {"T003"}, {"T004"}}
	if got := flattenBatches(plan); !reflect.DeepEqual(got, want) {
		t.Errorf("batches = %v, want %v", got, want)
	}

	layers := plan.Phases[0].Layers
	if len(layers) != 2 {
		t.Fatalf("got %d layers, want 2 (tests lead, implementation follows)", len(layers))
	}
}

func TestBuildPlanTestExplicitlyAfterImplementation(t *testing.T) {
	// The test depends on an implementation task; the implicit test-first
	// edge must yield to the explicit chain instead of fabricating a cycle.
	doc := mustParse(t, `## Phase 1: User Story 1 - Migration
- [ ] T001 [US1] Introduce schema v2
- [ ] T002 [US1] [TEST] Migration test (depends on: T001)
- [ ] T003 [US1] Migrate handlers
`)

	plan, err := BuildPlan(doc)
	if err != nil {
		t.Fatalf("BuildPlan() error = %v", err)
	}

	want := [][]string{{"T001"}, {"T002"}, {"T003"}}
	if got := flattenBatches(plan); !reflect.DeepEqual(got, want) {
		t.Errorf("batches = %v, want %v", got, want)
	}
}

func TestBuildPlanInterleavedConstraintsCycle(t *testing.T) {
	// Two test/implementation pairs whose explicit dependencies point at
	// each other's halves. The test-first constraint cannot be satisfied.
	doc := mustParse(t, `## Phase 1: User Story 1 - Tangle
- [ ] T001 [US1] Implement half A
- [ ] T002 [US1] [TEST] Test half A (depends on: T001)
- [ ] T003 [US1] Implement half B
- [ ] T004 [US1] [TEST] Test half B (depends on: T003)
`)

	_, err := BuildPlan(doc)
	if err == nil {
		t.Fatal("BuildPlan() succeeded, want cycle error")
	}
	if !errors.Is(err, errors.ErrDependencyCycle) {
		t.Errorf("BuildPlan() error = %v, want ErrDependencyCycle", err)
	}
	var docErr *errors.DocumentError
	if !errors.As(err, &docErr) {
		t.Fatalf("BuildPlan() error type = %T, want *errors.DocumentError", err)
	}
	if docErr.Section == "" {
		t.Error("cycle error missing phase context")
	}
}

func TestBuildPlanSkipsCheckedTasks(t *testing.T) {
	doc := mustParse(t, `## Phase 1: Setup
- [x] T001 Already configured
- [ ] T002 Remaining work (depends on: T001)
`)

	plan, err := BuildPlan(doc)
	if err != nil {
		t.Fatalf("BuildPlan() error = %v", err)
	}

	want := [][]string{{"T002"}}
	if got := flattenBatches(plan); !reflect.DeepEqual(got, want) {
		t.Errorf("batches = %v, want %v", got, want)
	}
}

func TestBuildPlanAllDoneIsEmpty(t *testing.T) {
	doc := mustParse(t, `## Phase 1: Setup
- [x] T001 Done
- [X] T002 Done too (depends on: T001)
`)

	plan, err := BuildPlan(doc)
	if err != nil {
		t.Fatalf("BuildPlan() error = %v", err)
	}
	if n := plan.PendingTasks(); n != 0 {
		t.Errorf("PendingTasks() = %d, want 0", n)
	}
	if got := flattenBatches(plan); len(got) != 0 {
		t.Errorf("batches = %v, want none", got)
	}
}

func TestBuildPlanCrossPhaseDependency(t *testing.T) {
	doc := mustParse(t, `## Phase 1: Setup
- [ ] T001 Install toolchain

## Phase 2: Foundational
- [ ] T002 Generate client (depends on: T001)
`)

	plan, err := BuildPlan(doc)
	if err != nil {
		t.Fatalf("BuildPlan() error = %v", err)
	}

	// The cross-phase reference does not create an extra layer: phase
	// ordering already guarantees T001 runs first.
	if len(plan.Phases[1].Layers) != 1 {
		t.Errorf("phase 2 layers = %d, want 1", len(plan.Phases[1].Layers))
	}
	want := [][]string{{"T001"}, {"T002"}}
	if got := flattenBatches(plan); !reflect.DeepEqual(got, want) {
		t.Errorf("batches = %v, want %v", got, want)
	}
}

func TestBuildPlanEmptyPhase(t *testing.T) {
	doc := mustParse(t, `## Phase 1: Setup

## Phase 2: Polish
- [ ] T001 Sweep up
`)

	plan, err := BuildPlan(doc)
	if err != nil {
		t.Fatalf("BuildPlan() error = %v", err)
	}
	if len(plan.Phases) != 2 {
		t.Fatalf("plan has %d phases, want 2 (empty phase preserved)", len(plan.Phases))
	}
	if len(plan.Phases[0].Layers) != 0 {
		t.Errorf("empty phase has %d layers, want 0", len(plan.Phases[0].Layers))
	}
}

func TestPartitionBatchesMixedLayer(t *testing.T) {
	doc := mustParse(t, `## Phase 1: Setup
- [ ] T001 [P] Lint config
- [ ] T002 Install hooks
- [ ] T003 [P] CI config
`)

	plan, err := BuildPlan(doc)
	if err != nil {
		t.Fatalf("BuildPlan() error = %v", err)
	}

	// One parallel batch at the first parallel task's position, singletons
	// for the rest, document order throughout.
	want := [][]string{{"T001", "T003"}, {"T002"}}
	if got := flattenBatches(plan); !reflect.DeepEqual(got, want) {
		t.Errorf("batches = %v, want %v", got, want)
	}
}

func TestBuildPlanDiamond(t *testing.T) {
	doc := mustParse(t, `## Phase 1: Foundational
- [ ] T001 Base model
- [ ] T002 [P] Reader (depends on: T001)
- [ ] T003 [P] Writer (depends on: T001)
- [ ] T004 Facade (depends on: T002, T003)
`)

	plan, err := BuildPlan(doc)
	if err != nil {
		t.Fatalf("BuildPlan() error = %v", err)
	}

	want := [][]string{{"T001"}, {"T002", "T003"}, {"T004"}}
	if got := flattenBatches(plan); !reflect.DeepEqual(got, want) {
		t.Errorf("batches = %v, want %v", got, want)
	}
}
