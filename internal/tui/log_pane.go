package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/emezac/dawn-sub002/internal/events"
)

// LogPaneModel is the scrollable event log pane.
type LogPaneModel struct {
	lines    []string
	viewport viewport.Model
	width    int
	height   int
	focused  bool
}

// NewLogPaneModel creates a new log pane model.
func NewLogPaneModel() LogPaneModel {
	return LogPaneModel{viewport: viewport.New(0, 0)}
}

// Update handles messages for the log pane.
func (m LogPaneModel) Update(msg tea.Msg) (LogPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !m.focused {
			return m, nil
		}
		switch {
		case key.Matches(msg, keys.ScrollUp):
			m.viewport.LineUp(1)
		case key.Matches(msg, keys.ScrollDown):
			m.viewport.LineDown(1)
		}
		return m, nil

	case events.RunStartedEvent:
		m.append(msg.Timestamp, fmt.Sprintf("run %s started (%d tasks)", short(msg.ID), msg.TaskCount))

	case events.RunFinishedEvent:
		line := fmt.Sprintf("run %s finished: %s in %s", short(msg.ID), msg.Status, msg.Duration.Round(time.Millisecond))
		if msg.Error != "" {
			line += " (" + msg.Error + ")"
		}
		m.append(msg.Timestamp, line)

	case events.TaskStartedEvent:
		m.append(msg.Timestamp, fmt.Sprintf("task %s started (%s)", msg.TaskID, msg.Kind))

	case events.TaskCompletedEvent:
		m.append(msg.Timestamp, fmt.Sprintf("task %s completed in %s", msg.TaskID, msg.Duration.Round(time.Millisecond)))

	case events.TaskFailedEvent:
		m.append(msg.Timestamp, statusStyle("failed").Render(
			fmt.Sprintf("task %s failed [%s]: %s", msg.TaskID, msg.ErrorCode, msg.Error)))

	case events.TaskSkippedEvent:
		m.append(msg.Timestamp, fmt.Sprintf("task %s skipped: %s", msg.TaskID, msg.Reason))

	case events.TaskRetryingEvent:
		m.append(msg.Timestamp, fmt.Sprintf("task %s retrying in %s (attempt %d)", msg.TaskID, msg.Delay, msg.Attempt))

	case events.ErrorPropagatedEvent:
		m.append(msg.Timestamp, fmt.Sprintf("error propagated %s -> %s", msg.SourceTask, msg.TargetTask))
	}

	return m, nil
}

// append adds one timestamped line and keeps the viewport pinned to the
// bottom unless the user scrolled away.
func (m *LogPaneModel) append(ts time.Time, line string) {
	atBottom := m.viewport.AtBottom()
	m.lines = append(m.lines, fmt.Sprintf("%s  %s", ts.Format("15:04:05"), line))
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	if atBottom {
		m.viewport.GotoBottom()
	}
}

// View renders the log pane.
func (m LogPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	title := stylePaneTitle.Render("Events")
	header := title + "\n" + strings.Repeat("=", lipgloss.Width(title)) + "\n"

	style := styleUnfocusedBorder
	if m.focused {
		style = styleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(header + m.viewport.View())
}

// SetSize updates the pane dimensions.
func (m *LogPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.viewport.Width = w - 4
	m.viewport.Height = h - 5 // border, title, underline
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
}

// SetFocused updates the focus state.
func (m *LogPaneModel) SetFocused(focused bool) {
	m.focused = focused
}

// short truncates a run id for display.
func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
