// Package scheduler turns a parsed task document into an execution plan:
// phases in document order, each phase partitioned into dependency-respecting
// layers, each layer into batches the executor may receive concurrently.
package scheduler

import (
	"fmt"
	"strings"

	"github.com/gammazero/toposort"

	"github.com/speckit-dev/speckit/internal/errors"
	"github.com/speckit-dev/speckit/internal/taskdoc"
)

// graph models one phase's dependency structure: the document's explicit
// references plus implicit edges that put test-authoring tasks ahead of
// implementation tasks in the same phase.
type graph struct {
	tasks map[string]*taskdoc.Task
	order []string            // task IDs in document order
	deps  map[string][]string // effective dependencies per task ID
}

func buildGraph(phase *taskdoc.Phase) *graph {
	g := &graph{
		tasks: make(map[string]*taskdoc.Task, len(phase.Tasks)),
		deps:  make(map[string][]string, len(phase.Tasks)),
	}

	for _, t := range phase.Tasks {
		g.tasks[t.ID] = t
		g.order = append(g.order, t.ID)
	}

	// Only in-phase references shape the layers. Dependencies on earlier
	// phases are re-verified at dispatch time instead: phase gating usually
	// discharges them, but best-effort runs can reach here with an earlier
	// phase still incomplete.
	var testIDs []string
	for _, t := range phase.Tasks {
		for _, depID := range t.DependsOn {
			if _, ok := g.tasks[depID]; ok {
				g.deps[t.ID] = append(g.deps[t.ID], depID)
			}
		}
		if t.Test {
			testIDs = append(testIDs, t.ID)
		}
	}

	// Write-test-before-implement: every implementation task waits for every
	// test task of the phase. The edge is skipped when the test explicitly
	// depends on that implementation task, otherwise the two constraints
	// would form a cycle the author never wrote.
	for _, t := range phase.Tasks {
		if t.Test {
			continue
		}
		have := make(map[string]bool, len(g.deps[t.ID]))
		for _, d := range g.deps[t.ID] {
			have[d] = true
		}
		for _, testID := range testIDs {
			if have[testID] || g.reachable(testID, t.ID) {
				continue
			}
			g.deps[t.ID] = append(g.deps[t.ID], testID)
		}
	}

	return g
}

// reachable reports whether from depends, transitively and explicitly, on to.
func (g *graph) reachable(from, to string) bool {
	seen := make(map[string]bool)
	stack := []string{from}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == to {
			return true
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		if t, ok := g.tasks[id]; ok {
			stack = append(stack, t.DependsOn...)
		}
	}
	return false
}

// validate runs a topological sort over the effective dependency graph.
// The parser already rejects unknown references, so the only way to fail
// here is a cycle introduced by the test-first constraint contradicting an
// explicit dependency chain.
func (g *graph) validate(phaseName string) error {
	var edges []toposort.Edge
	for _, id := range g.order {
		deps := g.deps[id]
		if len(deps) == 0 {
			// Edge from nil ensures dependency-free tasks are included.
			edges = append(edges, toposort.Edge{nil, id})
			continue
		}
		for _, depID := range deps {
			// Edge (depID, id) means depID must come before id.
			edges = append(edges, toposort.Edge{depID, id})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return errors.NewDocumentError(
			fmt.Sprintf("tasks in phase %q cannot be ordered", phaseName),
			errors.ErrDependencyCycle).
			WithSection(phaseName)
	}

	order := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}
	if len(order) != len(g.tasks) {
		missing := make([]string, 0)
		found := make(map[string]bool, len(order))
		for _, id := range order {
			found[id] = true
		}
		for _, id := range g.order {
			if !found[id] {
				missing = append(missing, id)
			}
		}
		return errors.NewDocumentError(
			fmt.Sprintf("ordering lost %d tasks: %s", len(missing), strings.Join(missing, ", ")),
			errors.ErrDependencyCycle).
			WithSection(phaseName)
	}

	return nil
}

// layers partitions the pending tasks into dependency levels: a task enters
// a layer only once every dependency sits in an earlier layer or is already
// done. Within a layer, tasks keep document order.
func (g *graph) layers() [][]*taskdoc.Task {
	indegree := make(map[string]int, len(g.tasks))
	dependents := make(map[string][]string, len(g.tasks))

	for _, id := range g.order {
		t := g.tasks[id]
		if t.Status == taskdoc.StatusDone {
			continue
		}
		indegree[id] = 0
		for _, depID := range g.deps[id] {
			dep := g.tasks[depID]
			if dep.Status == taskdoc.StatusDone {
				continue
			}
			indegree[id]++
			dependents[depID] = append(dependents[depID], id)
		}
	}

	var out [][]*taskdoc.Task
	remaining := len(indegree)
	for remaining > 0 {
		var layer []*taskdoc.Task
		for _, id := range g.order {
			if deg, ok := indegree[id]; ok && deg == 0 {
				layer = append(layer, g.tasks[id])
			}
		}
		if len(layer) == 0 {
			// Unreachable once validate passed; bail rather than spin.
			break
		}
		for _, t := range layer {
			delete(indegree, t.ID)
			remaining--
			for _, depID := range dependents[t.ID] {
				if _, ok := indegree[depID]; ok {
					indegree[depID]--
				}
			}
		}
		out = append(out, layer)
	}
	return out
}
