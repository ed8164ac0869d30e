package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/emezac/dawn-sub002/internal/events"
)

// TaskState tracks one task's progress for display.
type TaskState struct {
	TaskID   string
	Name     string
	Kind     string
	Status   string // "running", "completed", "failed", "skipped"
	Attempts int
	Duration time.Duration
}

// TaskPaneModel is the task status list pane.
type TaskPaneModel struct {
	tasks     map[string]*TaskState
	taskOrder []string // insertion order for display
	spinner   spinner.Model
	width     int
	height    int
	focused   bool
}

// NewTaskPaneModel creates a new task pane model.
func NewTaskPaneModel() TaskPaneModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = statusStyle("running")
	return TaskPaneModel{
		tasks:   make(map[string]*TaskState),
		spinner: sp,
	}
}

// Init starts the spinner tick loop.
func (m TaskPaneModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles messages for the task pane.
func (m TaskPaneModel) Update(msg tea.Msg) (TaskPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case events.TaskStartedEvent:
		state := m.state(msg.TaskID)
		state.Name = msg.Name
		state.Kind = msg.Kind
		state.Status = "running"
		state.Attempts = 1

	case events.TaskRetryingEvent:
		state := m.state(msg.TaskID)
		state.Status = "running"
		state.Attempts = msg.Attempt + 1

	case events.TaskCompletedEvent:
		state := m.state(msg.TaskID)
		state.Status = "completed"
		state.Attempts = msg.Attempts
		state.Duration = msg.Duration

	case events.TaskFailedEvent:
		state := m.state(msg.TaskID)
		state.Status = "failed"
		state.Attempts = msg.Attempts
		state.Duration = msg.Duration

	case events.TaskSkippedEvent:
		state := m.state(msg.TaskID)
		state.Status = "skipped"
	}

	return m, nil
}

// state returns the display state for a task, creating it on first sight.
func (m *TaskPaneModel) state(taskID string) *TaskState {
	if s, ok := m.tasks[taskID]; ok {
		return s
	}
	s := &TaskState{TaskID: taskID}
	m.tasks[taskID] = s
	m.taskOrder = append(m.taskOrder, taskID)
	return s
}

// View renders the task pane.
func (m TaskPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder
	title := stylePaneTitle.Render("Tasks")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	if len(m.taskOrder) == 0 {
		b.WriteString(styleDimmed.Render("waiting for run..."))
	}

	for _, id := range m.taskOrder {
		state := m.tasks[id]
		var marker string
		switch state.Status {
		case "running":
			marker = m.spinner.View()
		case "completed":
			marker = statusStyle(state.Status).Render("ok")
		case "failed":
			marker = statusStyle(state.Status).Render("!!")
		case "skipped":
			marker = styleDimmed.Render("--")
		default:
			marker = styleDimmed.Render("..")
		}

		line := fmt.Sprintf("%s %s", marker, state.TaskID)
		if state.Attempts > 1 {
			line += fmt.Sprintf(" (attempt %d)", state.Attempts)
		}
		if state.Duration > 0 {
			line += fmt.Sprintf("  %s", state.Duration.Round(time.Millisecond))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	style := styleUnfocusedBorder
	if m.focused {
		style = styleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

// SetSize updates the pane dimensions.
func (m *TaskPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *TaskPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
