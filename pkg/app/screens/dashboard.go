package screens

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kerbaras/comicdl/pkg/app/components"
	"github.com/kerbaras/comicdl/pkg/app/styles"
	"github.com/kerbaras/comicdl/pkg/services"
)

type DashboardScreen struct {
	ctx      context.Context
	engine   Engine
	events   <-chan services.ProgressEvent
	list     *components.TaskList
	progress *components.ProgressTracker
	width    int
	height   int
	status   string
	err      error
}

func NewDashboardScreen(ctx context.Context, engine Engine, events <-chan services.ProgressEvent) *DashboardScreen {
	return &DashboardScreen{
		ctx:      ctx,
		engine:   engine,
		events:   events,
		list:     components.NewTaskList(),
		progress: components.NewProgressTracker(80),
	}
}

func (s *DashboardScreen) Init() tea.Cmd {
	return tea.Batch(s.loadTasks, waitForEvent(s.events))
}

func (s *DashboardScreen) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		s.width = msg.Width
		s.height = msg.Height
		s.list.Width = msg.Width - 4
		s.list.Height = msg.Height - 12
		s.progress.SetWidth(msg.Width - 4)

	case tea.KeyMsg:
		return s, s.handleKey(msg.String())

	case tasksLoadedMsg:
		s.list.SetItems(msg.tasks)

	case services.ProgressEvent:
		s.progress.Update(msg)
		if !s.list.Apply(msg) {
			return s, tea.Batch(s.loadTasks, waitForEvent(s.events))
		}
		return s, waitForEvent(s.events)

	case eventsClosedMsg:
		s.progress.Clear()

	case actionDoneMsg:
		s.status = msg.status
		s.err = msg.err
		return s, s.loadTasks
	}

	return s, nil
}

func (s *DashboardScreen) handleKey(key string) tea.Cmd {
	switch key {
	case "up", "k":
		s.list.Prev()
	case "down", "j":
		s.list.Next()
	case "r":
		return s.loadTasks
	case "S":
		return s.bulk("Started", s.engine.StartAll)
	case "P":
		return s.bulk("Paused", s.engine.PauseAll)
	case "W":
		return s.bulk("Paused waiting", s.engine.PauseWaiting)
	case "D":
		return s.bulk("Deleted", s.engine.DeleteAll)
	}

	selected := s.list.Selected()
	if selected == nil {
		return nil
	}
	id := selected.ID
	switch key {
	case "s":
		return s.action(fmt.Sprintf("Started task #%d", id), func() error { return s.engine.Start(s.ctx, id) })
	case "p":
		return s.action(fmt.Sprintf("Paused task #%d", id), func() error { return s.engine.Pause(s.ctx, id) })
	case "d":
		return s.action(fmt.Sprintf("Deleted task #%d", id), func() error { return s.engine.Delete(s.ctx, id) })
	case "e":
		return func() tea.Msg {
			path, err := s.engine.Export(s.ctx, id, "")
			return actionDoneMsg{status: "Exported " + path, err: err}
		}
	case "enter":
		return func() tea.Msg {
			return SwitchScreenMsg{Screen: "details", Data: id}
		}
	}
	return nil
}

func (s *DashboardScreen) View() string {
	if s.width == 0 {
		return "Loading..."
	}

	header := styles.TitleStyle.Render("Download Tasks")

	var statusLine string
	switch {
	case s.err != nil:
		statusLine = styles.StatusError.Render(fmt.Sprintf("Error: %s", s.err)) + "\n\n"
	case s.status != "":
		statusLine = styles.StatusCompleted.Render(s.status) + "\n\n"
	}

	active := s.progress.View()
	if active != "" {
		active += "\n"
	}

	help := styles.HelpStyle.Render(
		"↑/k ↓/j: navigate • s/p: start/pause • S/P: start/pause all • W: pause waiting • d/D: delete/delete all • e: export • enter: details • r: refresh • tab: switch view • q: quit",
	)

	return fmt.Sprintf("%s\n\n%s%s%s\n%s", header, statusLine, active, s.list.View(), help)
}

// Commands
func (s *DashboardScreen) loadTasks() tea.Msg {
	return tasksLoadedMsg{tasks: s.engine.List()}
}

func (s *DashboardScreen) action(status string, op func() error) tea.Cmd {
	return func() tea.Msg {
		if err := op(); err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{status: status}
	}
}

func (s *DashboardScreen) bulk(verb string, op func(context.Context) int) tea.Cmd {
	return func() tea.Msg {
		n := op(s.ctx)
		return actionDoneMsg{status: fmt.Sprintf("%s %d tasks", verb, n)}
	}
}
