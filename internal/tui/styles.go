package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Pane chrome
var (
	styleFocusedBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62"))

	styleUnfocusedBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240"))

	stylePaneTitle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	styleHelpBar = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

// styleDimmed covers everything inert: pending and skipped tasks,
// placeholder text.
var styleDimmed = lipgloss.NewStyle().
	Foreground(lipgloss.Color("240"))

// taskStatusStyles maps a task's lifecycle status to its display style.
var taskStatusStyles = map[string]lipgloss.Style{
	"running":   lipgloss.NewStyle().Foreground(lipgloss.Color("yellow")).Bold(true),
	"completed": lipgloss.NewStyle().Foreground(lipgloss.Color("green")).Bold(true),
	"failed":    lipgloss.NewStyle().Foreground(lipgloss.Color("red")).Bold(true),
}

// statusStyle returns the style for a task status; unknown statuses and
// the inert ones render dimmed.
func statusStyle(status string) lipgloss.Style {
	if s, ok := taskStatusStyles[status]; ok {
		return s
	}
	return styleDimmed
}
