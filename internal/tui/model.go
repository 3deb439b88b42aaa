// Package tui is the live, read-only view of a run: a task list with the
// selected task's output, and a run progress pane. The run itself is
// driven elsewhere; the TUI only mirrors events from the bus.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/speckit-dev/speckit/internal/events"
)

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneTasks PaneID = iota
	PaneRun
)

// Model is the root Bubble Tea model for the TUI.
type Model struct {
	taskPane TaskPaneModel
	runPane  RunPaneModel
	focused  PaneID
	eventSub <-chan events.Event
	width    int
	height   int
	quitting bool
}

// New creates a new TUI model subscribed to every topic on the bus.
func New(bus *events.EventBus) Model {
	return Model{
		taskPane: NewTaskPaneModel(),
		runPane:  NewRunPaneModel(),
		focused:  PaneTasks,
		eventSub: bus.SubscribeAll(512),
	}
}

// Init initializes the model and returns the initial command.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.taskPane.Init(), waitForEvent(m.eventSub))
}

// waitForEvent returns a command that waits for the next event from the bus.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil // bus closed; final state stays on screen
		}
		return event
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			m.quitting = true
			return m, tea.Quit

		case KeyTab, KeyShiftTab:
			m.focused = (m.focused + 1) % 2
			m.updateFocusStates()

		case KeyPane1:
			m.focused = PaneTasks
			m.updateFocusStates()

		case KeyPane2:
			m.focused = PaneRun
			m.updateFocusStates()

		default:
			// Delegate to the focused pane.
			var cmd tea.Cmd
			switch m.focused {
			case PaneTasks:
				m.taskPane, cmd = m.taskPane.Update(msg)
			case PaneRun:
				m.runPane, cmd = m.runPane.Update(msg)
			}
			cmds = append(cmds, cmd)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()

	case events.Event:
		// Both panes pick the event kinds they care about.
		var cmd tea.Cmd
		m.taskPane, cmd = m.taskPane.Update(msg)
		cmds = append(cmds, cmd)
		m.runPane, _ = m.runPane.Update(msg)
		cmds = append(cmds, waitForEvent(m.eventSub))

	default:
		// Spinner ticks and debounce ticks belong to the task pane.
		var cmd tea.Cmd
		m.taskPane, cmd = m.taskPane.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.taskPane.View(),
		m.runPane.View(),
		HelpView())
}

// splitHeights divides the available height between the task pane and the
// run pane, reserving one line for the help bar.
func (m Model) splitHeights() (top, bottom int) {
	available := m.height - 1
	bottom = 7
	if available < 14 {
		bottom = available / 2
	}
	top = available - bottom
	return top, bottom
}

// computeLayout pushes dimensions into the child models.
func (m *Model) computeLayout() {
	top, bottom := m.splitHeights()
	m.taskPane.SetSize(m.width, top)
	m.runPane.SetSize(m.width, bottom)
	m.updateFocusStates()
}

// updateFocusStates updates the focus state of all panes.
func (m *Model) updateFocusStates() {
	m.taskPane.SetFocused(m.focused == PaneTasks)
	m.runPane.SetFocused(m.focused == PaneRun)
}
