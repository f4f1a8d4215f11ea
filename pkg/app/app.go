package app

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kerbaras/comicdl/pkg/app/screens"
)

type App struct {
	engine screens.Engine
}

func NewApp(engine screens.Engine) *App {
	return &App{engine: engine}
}

// Run blocks until the user quits. Running tasks keep going; the caller
// decides whether to close the engine.
func (a *App) Run(ctx context.Context) error {
	events, unsubscribe := a.engine.Subscribe(256)
	defer unsubscribe()

	model := screens.NewRootScreen(ctx, a.engine, events)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
