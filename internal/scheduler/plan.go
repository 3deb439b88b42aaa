package scheduler

import (
	"github.com/speckit-dev/speckit/internal/taskdoc"
)

// Batch is a set of tasks offered to the executor together. Parallel batches
// carry no ordering constraints between their members; sequential batches
// always hold exactly one task.
type Batch struct {
	Tasks    []*taskdoc.Task
	Parallel bool
}

// IDs returns the batch's task identifiers in order.
func (b Batch) IDs() []string {
	out := make([]string, len(b.Tasks))
	for i, t := range b.Tasks {
		out[i] = t.ID
	}
	return out
}

// Layer is one dependency level of a phase. Layers run strictly in sequence;
// the next layer never starts before every task here reached a terminal
// state.
type Layer struct {
	Index   int
	Batches []Batch
}

// PhasePlan is the schedule for a single phase.
type PhasePlan struct {
	Phase  *taskdoc.Phase
	Layers []Layer
}

// Plan is the full execution schedule for a document.
type Plan struct {
	Doc    *taskdoc.Document
	Phases []PhasePlan
}

// BuildPlan computes the execution schedule for a parsed document: phases in
// document order, layers per phase, batches per layer. Tasks already checked
// done are excluded; a fully completed document yields a plan with no
// batches at all.
func BuildPlan(doc *taskdoc.Document) (*Plan, error) {
	plan := &Plan{Doc: doc}

	for _, phase := range doc.Phases {
		pp := PhasePlan{Phase: phase}
		if len(phase.Tasks) > 0 {
			g := buildGraph(phase)
			if err := g.validate(phase.Name); err != nil {
				return nil, err
			}
			for i, tasks := range g.layers() {
				pp.Layers = append(pp.Layers, Layer{Index: i, Batches: partitionBatches(tasks)})
			}
		}
		plan.Phases = append(plan.Phases, pp)
	}

	return plan, nil
}

// partitionBatches splits one layer into batches. All parallel-eligible
// tasks form a single concurrent batch, placed at the document position of
// its first member; every unmarked task runs alone, in document order.
func partitionBatches(tasks []*taskdoc.Task) []Batch {
	var parallel []*taskdoc.Task
	for _, t := range tasks {
		if t.Parallel {
			parallel = append(parallel, t)
		}
	}

	var batches []Batch
	emitted := false
	for _, t := range tasks {
		if t.Parallel {
			if !emitted {
				batches = append(batches, Batch{Tasks: parallel, Parallel: true})
				emitted = true
			}
			continue
		}
		batches = append(batches, Batch{Tasks: []*taskdoc.Task{t}})
	}
	return batches
}

// PendingTasks counts tasks the plan would dispatch.
func (p *Plan) PendingTasks() int {
	n := 0
	for _, pp := range p.Phases {
		for _, layer := range pp.Layers {
			for _, b := range layer.Batches {
				n += len(b.Tasks)
			}
		}
	}
	return n
}
