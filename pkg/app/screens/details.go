package screens

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kerbaras/comicdl/pkg/app/components"
	"github.com/kerbaras/comicdl/pkg/app/styles"
	"github.com/kerbaras/comicdl/pkg/data"
	"github.com/kerbaras/comicdl/pkg/services"
)

// DetailsScreen shows one task with its recorded item errors.
type DetailsScreen struct {
	ctx    context.Context
	engine Engine
	taskID int64
	task   *data.TaskSummary
	width  int
	height int
	status string
	err    error
}

type taskLoadedMsg struct {
	task data.TaskSummary
	err  error
}

func NewDetailsScreen(ctx context.Context, engine Engine, taskID int64) *DetailsScreen {
	return &DetailsScreen{ctx: ctx, engine: engine, taskID: taskID}
}

func (s *DetailsScreen) TaskID() int64 {
	return s.taskID
}

func (s *DetailsScreen) Init() tea.Cmd {
	return s.loadTask
}

func (s *DetailsScreen) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		s.width = msg.Width
		s.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "s":
			return s, s.action("Started", s.engine.Start)
		case "p":
			return s, s.action("Paused", s.engine.Pause)
		case "e":
			return s, func() tea.Msg {
				path, err := s.engine.Export(s.ctx, s.taskID, "")
				return actionDoneMsg{status: "Exported " + path, err: err}
			}
		case "r":
			return s, s.loadTask
		case "esc", "backspace":
			return s, func() tea.Msg {
				return SwitchScreenMsg{Screen: "dashboard"}
			}
		}

	case services.ProgressEvent:
		if msg.TaskID != s.taskID {
			return s, nil
		}
		if msg.Deleted {
			return s, func() tea.Msg {
				return SwitchScreenMsg{Screen: "dashboard"}
			}
		}
		return s, s.loadTask

	case taskLoadedMsg:
		if msg.err != nil {
			s.err = msg.err
			return s, nil
		}
		s.task = &msg.task

	case actionDoneMsg:
		s.status = msg.status
		s.err = msg.err
		return s, s.loadTask
	}

	return s, nil
}

func (s *DetailsScreen) View() string {
	if s.width == 0 {
		return "Loading..."
	}
	if s.task == nil {
		if s.err != nil {
			return styles.StatusError.Render(fmt.Sprintf("Error: %s", s.err))
		}
		return "Loading..."
	}

	t := s.task
	header := styles.TitleStyle.Render(fmt.Sprintf("Task #%d %s", t.ID, t.ComicName))

	var statusLine string
	switch {
	case s.err != nil:
		statusLine = styles.StatusError.Render(fmt.Sprintf("Error: %s", s.err)) + "\n\n"
	case s.status != "":
		statusLine = styles.StatusCompleted.Render(s.status) + "\n\n"
	}

	info := lipgloss.JoinVertical(lipgloss.Left,
		styles.StatusStyle(t.Status).Render(string(t.Status)),
		styles.TextStyle.Render(fmt.Sprintf("Kind: %s", t.Kind)),
		styles.MutedStyle.Render(fmt.Sprintf("URL: %s", t.URL)),
		styles.MutedStyle.Render(fmt.Sprintf("Path: %s", t.LocalPath)),
		styles.TextStyle.Render(fmt.Sprintf("Items: %d/%d (%s%%)", t.DoneCount, t.TotalCount, t.Progress)),
		components.SimpleProgress(t.DoneCount, t.TotalCount, max(s.width-8, 10)),
	)

	help := styles.HelpStyle.Render("s: start • p: pause • e: export • r: refresh • esc: back • q: quit")

	return fmt.Sprintf("%s\n\n%s%s\n\n%s\n%s", header, statusLine, info, s.renderErrors(), help)
}

func (s *DetailsScreen) renderErrors() string {
	if len(s.task.Errors) == 0 {
		return styles.MutedStyle.Render("No item errors")
	}
	var b strings.Builder
	b.WriteString(styles.SubtitleStyle.Render(fmt.Sprintf("%d item errors:", len(s.task.Errors))))
	b.WriteString("\n")
	limit := max(s.height-16, 5)
	for i, e := range s.task.Errors {
		if i == limit {
			b.WriteString(styles.MutedStyle.Render(fmt.Sprintf("... and %d more", len(s.task.Errors)-limit)))
			b.WriteString("\n")
			break
		}
		b.WriteString(styles.StatusError.Render(e))
		b.WriteString("\n")
	}
	return b.String()
}

func (s *DetailsScreen) loadTask() tea.Msg {
	t, err := s.engine.Get(s.taskID)
	return taskLoadedMsg{task: t, err: err}
}

func (s *DetailsScreen) action(verb string, op func(context.Context, int64) error) tea.Cmd {
	return func() tea.Msg {
		if err := op(s.ctx, s.taskID); err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{status: fmt.Sprintf("%s task #%d", verb, s.taskID)}
	}
}
