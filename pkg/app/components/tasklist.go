package components

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/kerbaras/comicdl/pkg/app/styles"
	"github.com/kerbaras/comicdl/pkg/data"
	"github.com/kerbaras/comicdl/pkg/services"
)

type TaskList struct {
	Items         []data.TaskSummary
	SelectedIndex int
	Width         int
	Height        int
}

func NewTaskList() *TaskList {
	return &TaskList{
		Items:  []data.TaskSummary{},
		Width:  80,
		Height: 20,
	}
}

func (l *TaskList) SetItems(items []data.TaskSummary) {
	l.Items = items
	if l.SelectedIndex >= len(items) && len(items) > 0 {
		l.SelectedIndex = len(items) - 1
	}
	if len(items) == 0 {
		l.SelectedIndex = 0
	}
}

// Apply folds a progress event into the matching row. It reports false when
// the task is not listed, which means the list needs a reload.
func (l *TaskList) Apply(ev services.ProgressEvent) bool {
	for i := range l.Items {
		if l.Items[i].ID != ev.TaskID {
			continue
		}
		if ev.Deleted {
			l.SetItems(append(l.Items[:i:i], l.Items[i+1:]...))
			return true
		}
		item := &l.Items[i]
		item.Status = ev.Status
		item.Progress = ev.Progress
		item.TotalCount = ev.TotalCount
		item.DoneCount = ev.DoneCount
		item.Errors = append([]string(nil), ev.Errors...)
		item.Done = ev.TotalCount > 0 && ev.DoneCount == ev.TotalCount
		return true
	}
	return ev.Deleted
}

func (l *TaskList) Next() {
	if len(l.Items) == 0 {
		return
	}
	l.SelectedIndex++
	if l.SelectedIndex >= len(l.Items) {
		l.SelectedIndex = 0
	}
}

func (l *TaskList) Prev() {
	if len(l.Items) == 0 {
		return
	}
	l.SelectedIndex--
	if l.SelectedIndex < 0 {
		l.SelectedIndex = len(l.Items) - 1
	}
}

func (l *TaskList) Selected() *data.TaskSummary {
	if len(l.Items) == 0 || l.SelectedIndex >= len(l.Items) {
		return nil
	}
	return &l.Items[l.SelectedIndex]
}

func (l *TaskList) View() string {
	if len(l.Items) == 0 {
		empty := styles.MutedStyle.Render("No download tasks")
		return lipgloss.Place(l.Width, l.Height, lipgloss.Center, lipgloss.Center, empty)
	}

	var rows []string
	for i, item := range l.Items {
		rowStyle := styles.RowStyle
		if i == l.SelectedIndex {
			rowStyle = styles.ActiveRowStyle
		}

		name := item.ComicName
		if name == "" {
			name = item.URL
		}
		title := lipgloss.JoinHorizontal(lipgloss.Top,
			styles.TextStyle.Bold(true).Render(fmt.Sprintf("#%d %s", item.ID, name)),
			"  ",
			styles.SubtitleStyle.Render(string(item.Kind)),
		)

		status := styles.StatusStyle(item.Status).Render(string(item.Status))
		counts := styles.MutedStyle.Render(fmt.Sprintf("%d/%d items  %s%%", item.DoneCount, item.TotalCount, item.Progress))
		line := lipgloss.JoinHorizontal(lipgloss.Top, status, "  ", counts)
		if len(item.Errors) > 0 {
			line = lipgloss.JoinHorizontal(lipgloss.Top, line, "  ",
				styles.StatusError.Render(fmt.Sprintf("%d errors", len(item.Errors))))
		}

		content := lipgloss.JoinVertical(lipgloss.Left,
			title,
			line,
			SimpleProgress(item.DoneCount, item.TotalCount, max(l.Width-8, 10)),
		)
		rows = append(rows, rowStyle.Width(max(l.Width-4, 20)).Render(content))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}
