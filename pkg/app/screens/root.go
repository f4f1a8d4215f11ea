package screens

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kerbaras/comicdl/pkg/app/styles"
	"github.com/kerbaras/comicdl/pkg/services"
)

type screenType int

const (
	dashboardView screenType = iota
	addView
	detailsView
)

type RootScreen struct {
	ctx    context.Context
	engine Engine

	currentView screenType
	dashboard   *DashboardScreen
	add         *AddScreen
	details     *DetailsScreen

	width  int
	height int
}

// NewRootScreen wires the screens to engine. The dashboard consumes events
// for as long as the program runs.
func NewRootScreen(ctx context.Context, engine Engine, events <-chan services.ProgressEvent) *RootScreen {
	return &RootScreen{
		ctx:         ctx,
		engine:      engine,
		currentView: dashboardView,
		dashboard:   NewDashboardScreen(ctx, engine, events),
		add:         NewAddScreen(ctx, engine),
	}
}

func (r *RootScreen) Init() tea.Cmd {
	return r.dashboard.Init()
}

func (r *RootScreen) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		r.width = msg.Width
		r.height = msg.Height
		// Every screen keeps its own size
		_, dcmd := r.dashboard.Update(msg)
		_, acmd := r.add.Update(msg)
		if r.details != nil {
			r.details.Update(msg)
		}
		return r, tea.Batch(dcmd, acmd)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return r, tea.Quit
		case "q":
			if !(r.currentView == addView && r.add.Focused()) {
				return r, tea.Quit
			}
		case "tab":
			if r.currentView == detailsView {
				break
			}
			if r.currentView == dashboardView {
				r.currentView = addView
				return r, r.add.Init()
			}
			r.currentView = dashboardView
			return r, r.dashboard.loadTasks
		}

	case services.ProgressEvent:
		// The dashboard owns the subscription whatever screen is shown.
		_, dcmd := r.dashboard.Update(msg)
		if r.currentView == detailsView && r.details != nil {
			_, cmd = r.details.Update(msg)
		}
		return r, tea.Batch(dcmd, cmd)

	case eventsClosedMsg, tasksLoadedMsg:
		_, cmd = r.dashboard.Update(msg)
		return r, cmd

	case SwitchScreenMsg:
		switch msg.Screen {
		case "dashboard":
			r.currentView = dashboardView
			r.details = nil
			cmd = r.dashboard.loadTasks
		case "add":
			r.currentView = addView
			cmd = r.add.Init()
		case "details":
			if id, ok := msg.Data.(int64); ok {
				r.details = NewDetailsScreen(r.ctx, r.engine, id)
				r.details.Update(tea.WindowSizeMsg{Width: r.width, Height: r.height})
				r.currentView = detailsView
				cmd = r.details.Init()
			}
		}
		return r, cmd
	}

	switch r.currentView {
	case dashboardView:
		_, cmd = r.dashboard.Update(msg)
	case addView:
		_, cmd = r.add.Update(msg)
	case detailsView:
		if r.details != nil {
			_, cmd = r.details.Update(msg)
		}
	}
	return r, cmd
}

func (r *RootScreen) View() string {
	var content string
	switch r.currentView {
	case dashboardView:
		content = r.dashboard.View()
	case addView:
		content = r.add.View()
	case detailsView:
		if r.details != nil {
			content = r.details.View()
		}
	}

	return fmt.Sprintf("%s\n\n%s", r.renderTabs(), content)
}

func (r *RootScreen) renderTabs() string {
	if r.currentView == detailsView {
		return ""
	}

	tasksTab := styles.InactiveTabStyle.Render("Tasks")
	addTab := styles.InactiveTabStyle.Render("Add")
	if r.currentView == dashboardView {
		tasksTab = styles.ActiveTabStyle.Render("Tasks")
	} else {
		addTab = styles.ActiveTabStyle.Render("Add")
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, tasksTab, addTab)
}
