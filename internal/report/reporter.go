// Package report renders run progress as styled console output. It is the
// plain-terminal sibling of the TUI: fed by the same event bus, one line
// per noteworthy event, safe to pipe into CI logs.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/speckit-dev/speckit/internal/events"
)

var (
	styleOK   = lipgloss.NewStyle().Foreground(lipgloss.Color("green")).Bold(true)
	styleFail = lipgloss.NewStyle().Foreground(lipgloss.Color("red")).Bold(true)
	styleWarn = lipgloss.NewStyle().Foreground(lipgloss.Color("yellow")).Bold(true)
	styleSkip = lipgloss.NewStyle().Foreground(lipgloss.Color("yellow"))
	styleDim  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	styleHead = lipgloss.NewStyle().Bold(true)
)

// Reporter drains an event subscription and prints progress lines.
type Reporter struct {
	out     io.Writer
	sub     <-chan events.Event
	verbose bool
	done    chan struct{}
}

// New subscribes to every topic on the bus. Subscribe before the run
// starts publishing or the leading events are lost.
func New(bus *events.EventBus, out io.Writer, verbose bool) *Reporter {
	return &Reporter{
		out:     out,
		sub:     bus.SubscribeAll(512),
		verbose: verbose,
		done:    make(chan struct{}),
	}
}

// Start begins draining on its own goroutine.
func (r *Reporter) Start() {
	go func() {
		defer close(r.done)
		for ev := range r.sub {
			r.render(ev)
		}
	}()
}

// Wait blocks until the bus closed and every buffered event was printed.
func (r *Reporter) Wait() {
	<-r.done
}

func (r *Reporter) render(ev events.Event) {
	switch e := ev.(type) {
	case events.RunStartedEvent:
		fmt.Fprintf(r.out, "%s %s\n", styleHead.Render("Implementing"), e.TasksPath)
		fmt.Fprintln(r.out, styleDim.Render(
			fmt.Sprintf("  run %s, %d of %d tasks pending", shortID(e.RunID), e.PendingTasks, e.TotalTasks)))

	case events.ChecklistEvaluatedEvent:
		fmt.Fprintf(r.out, "  checklist %-24s %s\n", e.Name, checklistCell(e.Passed, e.Done, e.Total))

	case events.PhaseStartedEvent:
		fmt.Fprintf(r.out, "\n%s\n", styleHead.Render(fmt.Sprintf("Phase %d: %s", e.Number, e.Name)))

	case events.PhaseSkippedEvent:
		fmt.Fprintf(r.out, "\n%s %s\n",
			styleHead.Render(fmt.Sprintf("Phase %d: %s", e.Number, e.Name)),
			styleSkip.Render("skipped: "+e.Reason))

	case events.LayerDispatchedEvent:
		if r.verbose {
			fmt.Fprintln(r.out, styleDim.Render(fmt.Sprintf("  layer %d: %v", e.Layer, e.IDs)))
		}

	case events.TaskStartedEvent:
		if e.Attempt > 1 {
			fmt.Fprintf(r.out, "  %s %s (attempt %d)\n", styleWarn.Render("↻"), e.ID, e.Attempt)
		} else if r.verbose {
			fmt.Fprintf(r.out, "  %s %s  %s\n", styleDim.Render("…"), e.ID, styleDim.Render(e.Description))
		}

	case events.TaskOutputEvent:
		if r.verbose {
			fmt.Fprintln(r.out, styleDim.Render("    │ "+e.Line))
		}

	case events.TaskCompletedEvent:
		fmt.Fprintf(r.out, "  %s %s  %s\n",
			styleOK.Render("✓"), e.ID, styleDim.Render("("+fmtDuration(e.Duration)+")"))

	case events.TaskFailedEvent:
		fmt.Fprintf(r.out, "  %s %s  %v\n", styleFail.Render("✗"), e.ID, e.Err)

	case events.TaskSkippedEvent:
		fmt.Fprintf(r.out, "  %s %s  %s\n", styleSkip.Render("↷"), e.ID, styleDim.Render(e.Reason))

	case events.RunCompletedEvent:
		verdict := styleOK.Render("Run complete:")
		if e.Failed > 0 {
			verdict = styleFail.Render("Run failed:")
		} else if e.Skipped > 0 {
			verdict = styleWarn.Render("Run incomplete:")
		}
		fmt.Fprintf(r.out, "\n%s %d done, %d failed, %d skipped in %s\n",
			verdict, e.Completed, e.Failed, e.Skipped, fmtDuration(e.Duration))
	}
}

func checklistCell(passed bool, done, total int) string {
	switch {
	case passed:
		return fmt.Sprintf("%s  (%d/%d)", styleOK.Render("✓ PASS"), done, total)
	case total == 0:
		return styleDim.Render("- EMPTY")
	default:
		return fmt.Sprintf("%s  (%d/%d)", styleFail.Render("✗ FAIL"), done, total)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// fmtDuration trims sub-perceptual precision for display.
func fmtDuration(d time.Duration) string {
	switch {
	case d >= time.Minute:
		d = d.Round(time.Second)
	case d >= time.Second:
		d = d.Round(100 * time.Millisecond)
	default:
		d = d.Round(time.Millisecond)
	}
	return d.String()
}
