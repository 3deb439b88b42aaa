package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/speckit-dev/speckit/internal/events"
)

// RunPaneModel is the run-level progress display: the current phase, the
// checklist tallies from the gate, and an overall progress bar.
type RunPaneModel struct {
	tasksPath  string
	phase      string
	checklists []string

	pending int
	total   int
	done    int
	failed  int
	skipped int
	running int

	finished bool
	width    int
	height   int
	focused  bool
}

// NewRunPaneModel creates an empty run pane.
func NewRunPaneModel() RunPaneModel {
	return RunPaneModel{}
}

// Update handles messages for the run pane.
func (m RunPaneModel) Update(msg tea.Msg) (RunPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case events.RunStartedEvent:
		m.tasksPath = msg.TasksPath
		m.total = msg.TotalTasks
		m.pending = msg.PendingTasks

	case events.ChecklistEvaluatedEvent:
		verdict := "PASS"
		if !msg.Passed {
			verdict = "FAIL"
		}
		m.checklists = append(m.checklists,
			fmt.Sprintf("%s %s (%d/%d)", msg.Name, verdict, msg.Done, msg.Total))

	case events.PhaseStartedEvent:
		m.phase = fmt.Sprintf("Phase %d: %s", msg.Number, msg.Name)

	case events.PhaseSkippedEvent:
		m.phase = fmt.Sprintf("Phase %d: %s (skipped: %s)", msg.Number, msg.Name, msg.Reason)

	case events.TaskStartedEvent:
		if msg.Attempt == 1 {
			m.running++
		}

	case events.TaskCompletedEvent:
		m.running--
		m.done++

	case events.TaskFailedEvent:
		m.running--
		m.failed++

	case events.TaskSkippedEvent:
		m.skipped++

	case events.RunCompletedEvent:
		m.finished = true
		m.running = 0
		m.done = msg.Completed
		m.failed = msg.Failed
		m.skipped = msg.Skipped
	}

	return m, nil
}

// View renders the run pane.
func (m RunPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	header := m.phase
	if header == "" {
		header = "Waiting for run..."
	}
	if m.finished {
		header = m.verdictLine()
	}
	b.WriteString(StyleTitle.Render(header))
	b.WriteString("\n")

	if len(m.checklists) > 0 {
		b.WriteString(StyleDim.Render("checklists: " + strings.Join(m.checklists, ", ")))
		b.WriteString("\n")
	}

	settled := m.done + m.failed + m.skipped
	if m.pending > 0 {
		barWidth := min(m.width-16, 48)
		doneW := (m.done * barWidth) / m.pending
		failedW := (m.failed * barWidth) / m.pending
		skippedW := (m.skipped * barWidth) / m.pending
		pendingW := barWidth - doneW - failedW - skippedW

		bar := StyleStatusDone.Render(strings.Repeat("=", max(0, doneW)))
		bar += StyleStatusFailed.Render(strings.Repeat("!", max(0, failedW)))
		bar += StyleStatusSkipped.Render(strings.Repeat("-", max(0, skippedW)))
		bar += StyleStatusPending.Render(strings.Repeat(".", max(0, pendingW)))

		b.WriteString(fmt.Sprintf("[%s] %d/%d\n", bar, settled, m.pending))
	}

	b.WriteString(fmt.Sprintf("%s %s  %s %s  %s %s  %s %s",
		StyleStatusDone.Render("✓"), fmt.Sprintf("%d", m.done),
		StyleStatusFailed.Render("✗"), fmt.Sprintf("%d", m.failed),
		StyleStatusSkipped.Render("↷"), fmt.Sprintf("%d", m.skipped),
		StyleStatusRunning.Render("●"), fmt.Sprintf("%d", m.running)))

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

func (m RunPaneModel) verdictLine() string {
	switch {
	case m.failed > 0:
		return StyleStatusFailed.Render("Run failed") + StyleDim.Render(" (press q to quit)")
	case m.skipped > 0:
		return StyleStatusSkipped.Render("Run incomplete") + StyleDim.Render(" (press q to quit)")
	default:
		return StyleStatusDone.Render("Run complete") + StyleDim.Render(" (press q to quit)")
	}
}

// SetSize updates the pane dimensions.
func (m *RunPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *RunPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
