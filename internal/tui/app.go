package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/relay/internal/journal"
)

// Watch runs the watch view for one task until the user quits.
func Watch(taskID string, states StateViewer, signals SignalReader, jnl *journal.Journal) error {
	if taskID == "" {
		return fmt.Errorf("tui: task id is required")
	}
	if states == nil {
		return fmt.Errorf("tui: state viewer is required")
	}
	model := NewWatchModel(taskID, states, signals, jnl)
	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("tui: watch %s: %w", taskID, err)
	}
	return nil
}
