package screens

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kerbaras/comicdl/pkg/app/styles"
	"github.com/kerbaras/comicdl/pkg/data"
	"github.com/kerbaras/comicdl/pkg/services"
)

var addKinds = []data.Kind{data.KindAll, data.KindVolumes, data.KindChapters, data.KindExtras, data.KindCurrent}

// AddScreen takes a comic or chapter URL and creates tasks for it.
type AddScreen struct {
	ctx     context.Context
	engine  Engine
	input   textinput.Model
	kind    int
	partial bool
	adding  bool
	result  *services.AddResult
	width   int
	height  int
	err     error
}

type tasksAddedMsg struct {
	result *services.AddResult
	err    error
}

func NewAddScreen(ctx context.Context, engine Engine) *AddScreen {
	ti := textinput.New()
	ti.Placeholder = "https://www.antbyw.com/plugin.php?id=jameson_manhua&c=index&a=bofang&kuid=..."
	ti.Focus()
	ti.CharLimit = 512
	ti.Width = 60

	return &AddScreen{
		ctx:    ctx,
		engine: engine,
		input:  ti,
	}
}

func (s *AddScreen) Init() tea.Cmd {
	return textinput.Blink
}

// Focused reports whether key presses go to the URL input.
func (s *AddScreen) Focused() bool {
	return s.input.Focused()
}

func (s *AddScreen) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		s.width = msg.Width
		s.height = msg.Height
		s.input.Width = max(msg.Width-10, 20)

	case tea.KeyMsg:
		if s.adding {
			return s, nil
		}
		switch msg.String() {
		case "enter", "ctrl+s":
			url := strings.TrimSpace(s.input.Value())
			if url == "" {
				return s, nil
			}
			s.adding = true
			s.err = nil
			return s, s.addTasks(url, msg.String() == "ctrl+s")
		case "ctrl+k":
			s.kind = (s.kind + 1) % len(addKinds)
			return s, nil
		case "ctrl+a":
			s.partial = !s.partial
			return s, nil
		case "esc":
			if s.input.Focused() {
				s.input.Blur()
			} else {
				s.input.Focus()
				cmd = textinput.Blink
			}
			return s, cmd
		}

	case tasksAddedMsg:
		s.adding = false
		s.result = msg.result
		s.err = msg.err
		if msg.err == nil {
			s.input.Reset()
		}
		return s, nil
	}

	if s.input.Focused() {
		s.input, cmd = s.input.Update(msg)
	}
	return s, cmd
}

func (s *AddScreen) View() string {
	if s.width == 0 {
		return "Loading..."
	}

	header := styles.TitleStyle.Render("Add Download")

	inputStyle := styles.RowStyle
	if s.input.Focused() {
		inputStyle = styles.FocusedInputStyle
	}
	inputView := inputStyle.Render(s.input.View())

	options := styles.SubtitleStyle.Render(fmt.Sprintf("kind: %s • allow partial: %t", addKinds[s.kind], s.partial))

	var resultView string
	switch {
	case s.adding:
		resultView = styles.StatusDownloading.Render("Resolving...")
	case s.err != nil:
		resultView = styles.StatusError.Render(fmt.Sprintf("Error: %s", s.err))
	case s.result != nil:
		resultView = s.renderResult()
	}

	help := styles.HelpStyle.Render(
		"enter: add • ctrl+s: add and start • ctrl+k: cycle kind • ctrl+a: toggle partial • esc: focus • tab: switch view",
	)

	return fmt.Sprintf("%s\n\n%s\n%s\n\n%s\n%s", header, inputView, options, resultView, help)
}

func (s *AddScreen) renderResult() string {
	var b strings.Builder
	for _, t := range s.result.Created {
		b.WriteString(styles.StatusCompleted.Render(fmt.Sprintf("Created task #%d %s (%s)", t.ID, t.ComicName, t.Kind)))
		b.WriteString("\n")
	}
	for _, t := range s.result.Existing {
		b.WriteString(styles.MutedStyle.Render(fmt.Sprintf("Task #%d %s (%s) already exists", t.ID, t.ComicName, t.Kind)))
		b.WriteString("\n")
	}
	for _, label := range s.result.Skipped {
		b.WriteString(styles.StatusWaiting.Render(fmt.Sprintf("Skipped category %q", label)))
		b.WriteString("\n")
	}
	return b.String()
}

func (s *AddScreen) addTasks(url string, start bool) tea.Cmd {
	req := services.AddRequest{
		URL:          url,
		Kind:         addKinds[s.kind],
		AllowPartial: s.partial,
		Start:        start,
	}
	return func() tea.Msg {
		res, err := s.engine.Add(s.ctx, req)
		return tasksAddedMsg{result: res, err: err}
	}
}
