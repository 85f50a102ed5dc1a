package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// Run boots the TUI program and blocks until it exits.
func Run(ctx context.Context, deps Deps) error {
	m := initialModel(ctx, deps)
	program := tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen())
	final, err := program.Run()
	if fm, ok := final.(model); ok {
		fm.closeStory()
	}
	return err
}
