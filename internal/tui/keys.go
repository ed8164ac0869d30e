package tui

import (
	"github.com/charmbracelet/bubbles/key"
)

// keyMap holds the monitor's key bindings.
type keyMap struct {
	Quit       key.Binding
	CycleFocus key.Binding
	TasksPane  key.Binding
	LogPane    key.Binding
	ScrollUp   key.Binding
	ScrollDown key.Binding
}

var keys = keyMap{
	Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	CycleFocus: key.NewBinding(key.WithKeys("tab", "shift+tab"), key.WithHelp("tab", "cycle focus")),
	TasksPane:  key.NewBinding(key.WithKeys("1"), key.WithHelp("1", "tasks")),
	LogPane:    key.NewBinding(key.WithKeys("2"), key.WithHelp("2", "events")),
	ScrollUp:   key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("k", "scroll up")),
	ScrollDown: key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("j", "scroll down")),
}

// helpView renders the one-line help bar.
func helpView() string {
	return styleHelpBar.Render("tab: cycle focus | 1/2: jump to pane | j/k: scroll | q: quit")
}
