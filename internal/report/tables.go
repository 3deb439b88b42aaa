package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/speckit-dev/speckit/internal/orchestrator"
	"github.com/speckit-dev/speckit/internal/prereq"
)

// Checklists prints one table row per checklist file. Used by the validate
// command; during implement runs the same tallies arrive as events.
func Checklists(out io.Writer, statuses []prereq.ChecklistStatus) {
	if len(statuses) == 0 {
		fmt.Fprintln(out, styleDim.Render("no checklists found"))
		return
	}

	nameW := len("CHECKLIST")
	for _, st := range statuses {
		if len(st.Name) > nameW {
			nameW = len(st.Name)
		}
	}

	fmt.Fprintf(out, "%s  %s\n",
		styleHead.Render(pad("CHECKLIST", nameW)), styleHead.Render("STATUS"))
	for _, st := range statuses {
		fmt.Fprintf(out, "%s  %s\n", pad(st.Name, nameW), checklistCell(st.Passed(), st.Done, st.Total))
	}
}

// Summary prints the run's closing tables: per-phase outcomes, per-story
// rollups, and any warnings the run accumulated.
func Summary(out io.Writer, sum *orchestrator.Summary) {
	fmt.Fprintln(out)
	phaseTable(out, sum.Phases)

	if stories := sum.Stories(); len(stories) > 0 {
		fmt.Fprintln(out)
		storyTable(out, stories)
	}

	if len(sum.Warnings) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, styleWarn.Render("warnings:"))
		for _, w := range sum.Warnings {
			fmt.Fprintf(out, "  - %s\n", w)
		}
	}
}

func phaseTable(out io.Writer, phases []orchestrator.PhaseSummary) {
	nameW := len("PHASE")
	for _, ps := range phases {
		if len(ps.Name) > nameW {
			nameW = len(ps.Name)
		}
	}

	fmt.Fprintln(out, styleHead.Render(
		fmt.Sprintf("%s  %4s  %6s  %7s", pad("PHASE", nameW), "DONE", "FAILED", "SKIPPED")))
	for _, ps := range phases {
		fmt.Fprintf(out, "%s  %4d  %s  %s\n",
			pad(ps.Name, nameW), ps.Done,
			countCell(ps.Failed, 6, styleFail),
			countCell(ps.Skipped, 7, styleSkip))
	}
}

func storyTable(out io.Writer, stories []orchestrator.StorySummary) {
	fmt.Fprintln(out, styleHead.Render(
		fmt.Sprintf("%s  %8s  %4s  %6s  %7s", pad("STORY", 5), "PRIORITY", "DONE", "FAILED", "SKIPPED")))
	for _, st := range stories {
		fmt.Fprintf(out, "%s  %8s  %4d  %s  %s\n",
			pad(st.Story, 5), fmt.Sprintf("P%d", st.Priority), st.Done,
			countCell(st.Failed, 6, styleFail),
			countCell(st.Skipped, 7, styleSkip))
	}
}

// countCell right-aligns a count in w columns, coloring it only when
// non-zero so clean runs stay visually quiet. Styling happens after the
// padding: escape codes carry no width.
func countCell(n, w int, style lipgloss.Style) string {
	cell := fmt.Sprintf("%*d", w, n)
	if n > 0 {
		return style.Render(cell)
	}
	return cell
}

func pad(s string, w int) string {
	if len(s) >= w {
		return s
	}
	return s + strings.Repeat(" ", w-len(s))
}
