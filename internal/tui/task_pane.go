package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/speckit-dev/speckit/internal/events"
)

// TaskState mirrors one task's progress as seen on the bus.
type TaskState struct {
	ID          string
	Description string
	Status      string // "running", "done", "failed", "skipped"
	Output      []string
	Attempt     int
	StartTime   time.Time
	Duration    time.Duration
}

// TaskPaneModel is the task list plus the selected task's output viewport.
type TaskPaneModel struct {
	tasks       map[string]*TaskState // task ID -> state
	taskOrder   []string              // insertion order for display
	selectedIdx int
	follow      bool // selection tracks the newest task until the user moves it
	viewport    viewport.Model
	spinner     spinner.Model
	width       int
	height      int
	focused     bool
	updateTag   int // for debouncing output refreshes
}

// NewTaskPaneModel creates an empty task pane.
func NewTaskPaneModel() TaskPaneModel {
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = StyleStatusRunning
	return TaskPaneModel{
		tasks:    make(map[string]*TaskState),
		follow:   true,
		viewport: viewport.New(0, 0),
		spinner:  sp,
	}
}

// Init starts the spinner ticking.
func (m TaskPaneModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// tickMsg is used for debouncing viewport updates.
type tickMsg struct {
	tag int
}

// Update handles messages for the task pane.
func (m TaskPaneModel) Update(msg tea.Msg) (TaskPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)

	case tea.KeyMsg:
		if !m.focused {
			break
		}

		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.taskOrder)-1 {
				m.selectedIdx++
				m.follow = false
				m.updateViewportContent()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.follow = false
				m.updateViewportContent()
			}
		default:
			// Other keys scroll the viewport.
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.TaskStartedEvent:
		if st, exists := m.tasks[msg.ID]; exists {
			// A repeated start is a transport retry on the same dispatch.
			st.Attempt = msg.Attempt
			st.Output = append(st.Output, fmt.Sprintf("[retrying, attempt %d]", msg.Attempt))
			if m.selectedTaskID() == msg.ID {
				m.updateViewportContent()
			}
			break
		}
		m.tasks[msg.ID] = &TaskState{
			ID:          msg.ID,
			Description: msg.Description,
			Status:      "running",
			Attempt:     msg.Attempt,
			StartTime:   msg.Timestamp,
		}
		m.taskOrder = append(m.taskOrder, msg.ID)
		if m.follow {
			m.selectedIdx = len(m.taskOrder) - 1
			m.updateViewportContent()
		}

	case events.TaskOutputEvent:
		if st, exists := m.tasks[msg.ID]; exists {
			st.Output = append(st.Output, msg.Line)
			if m.selectedTaskID() == msg.ID {
				m.updateTag++
				tag := m.updateTag
				return m, tea.Tick(50*time.Millisecond, func(time.Time) tea.Msg {
					return tickMsg{tag: tag}
				})
			}
		}

	case events.TaskCompletedEvent:
		if st, exists := m.tasks[msg.ID]; exists {
			st.Status = "done"
			st.Duration = msg.Duration
			st.Output = append(st.Output, fmt.Sprintf("[completed in %v]", msg.Duration))
			if m.selectedTaskID() == msg.ID {
				m.updateViewportContent()
			}
		}

	case events.TaskFailedEvent:
		if st, exists := m.tasks[msg.ID]; exists {
			st.Status = "failed"
			st.Duration = msg.Duration
			st.Output = append(st.Output, fmt.Sprintf("[failed: %v]", msg.Err))
			if m.selectedTaskID() == msg.ID {
				m.updateViewportContent()
			}
		}

	case events.TaskSkippedEvent:
		// Skipped tasks never start; list them anyway so the cascade after
		// a failure is visible.
		if _, exists := m.tasks[msg.ID]; !exists {
			m.tasks[msg.ID] = &TaskState{
				ID:     msg.ID,
				Status: "skipped",
				Output: []string{"[skipped: " + msg.Reason + "]"},
			}
			m.taskOrder = append(m.taskOrder, msg.ID)
		}

	case tickMsg:
		// Only refresh when this tick matches the newest tag (debouncing).
		if msg.tag == m.updateTag {
			m.updateViewportContent()
		}
	}

	return m, cmd
}

// View renders the task pane.
func (m TaskPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	listWidth := 28
	viewportWidth := m.width - listWidth - 4 // account for borders and padding

	listContent := m.renderTaskList(listWidth)
	viewportContent := m.viewport.View()

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		listContent,
		lipgloss.NewStyle().
			Width(viewportWidth).
			Height(m.height-2).
			Render(viewportContent),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

// renderTaskList renders the task list column.
func (m TaskPaneModel) renderTaskList(width int) string {
	var b strings.Builder

	title := StyleTitle.Render("Tasks")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(width, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.taskOrder) == 0 {
		b.WriteString(StyleStatusPending.Render("Waiting..."))
	} else {
		for i, id := range m.taskOrder {
			st := m.tasks[id]
			icon := m.statusIcon(st.Status)
			label := st.ID
			if st.Description != "" {
				label += " " + st.Description
			}
			if len(label) > width-4 {
				label = label[:width-7] + "..."
			}

			line := fmt.Sprintf("%s %s", icon, label)
			if i == m.selectedIdx {
				line = StyleSelected.Render(line)
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.height - 2).
		Render(b.String())
}

// statusIcon returns a styled status indicator. Running tasks share the
// pane's spinner frame.
func (m TaskPaneModel) statusIcon(status string) string {
	switch status {
	case "running":
		return m.spinner.View()
	case "done":
		return StyleStatusDone.Render("✓")
	case "failed":
		return StyleStatusFailed.Render("✗")
	case "skipped":
		return StyleStatusSkipped.Render("↷")
	default:
		return StyleStatusPending.Render("○")
	}
}

// selectedTaskID returns the task ID of the currently selected row.
func (m TaskPaneModel) selectedTaskID() string {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.taskOrder) {
		return m.taskOrder[m.selectedIdx]
	}
	return ""
}

// updateViewportContent swaps in the selected task's output.
func (m *TaskPaneModel) updateViewportContent() {
	id := m.selectedTaskID()
	if id == "" {
		m.viewport.SetContent("Waiting for tasks...")
		return
	}

	st, exists := m.tasks[id]
	if !exists {
		m.viewport.SetContent("Waiting for tasks...")
		return
	}

	m.viewport.SetContent(strings.Join(st.Output, "\n"))
	m.viewport.GotoBottom()
}

// resizeViewport resizes the viewport based on pane dimensions.
func (m *TaskPaneModel) resizeViewport() {
	listWidth := 28
	viewportWidth := m.width - listWidth - 4
	viewportHeight := m.height - 4 // account for borders

	if viewportWidth < 10 {
		viewportWidth = 10
	}
	if viewportHeight < 5 {
		viewportHeight = 5
	}

	m.viewport.Width = viewportWidth
	m.viewport.Height = viewportHeight
}

// SetSize updates the pane dimensions.
func (m *TaskPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *TaskPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
