package screens

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kerbaras/comicdl/pkg/data"
	"github.com/kerbaras/comicdl/pkg/services"
)

// Engine is what the dashboard drives.
type Engine interface {
	Add(ctx context.Context, req services.AddRequest) (*services.AddResult, error)
	Start(ctx context.Context, id int64) error
	Pause(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
	StartAll(ctx context.Context) int
	PauseAll(ctx context.Context) int
	PauseWaiting(ctx context.Context) int
	DeleteAll(ctx context.Context) int
	List() []data.TaskSummary
	Get(id int64) (data.TaskSummary, error)
	Subscribe(buffer int) (<-chan services.ProgressEvent, func())
	Export(ctx context.Context, id int64, outDir string) (string, error)
}

var _ Engine = (*services.Controller)(nil)

type SwitchScreenMsg struct {
	Screen string
	Data   interface{}
}

// Messages
type tasksLoadedMsg struct {
	tasks []data.TaskSummary
}

type actionDoneMsg struct {
	status string
	err    error
}

type eventsClosedMsg struct{}

func waitForEvent(events <-chan services.ProgressEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return ev
	}
}
