package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
)

// Run owns the terminal until the user quits or ctx ends. Controller
// events published through sink are delivered to the running program.
func Run(ctx context.Context, intents Intents, sink *Sink) error {
	program := tea.NewProgram(
		NewModel(ctx, intents),
		tea.WithAltScreen(),
		tea.WithReportFocus(),
		tea.WithContext(ctx),
	)
	sink.Attach(program)
	_, err := program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
