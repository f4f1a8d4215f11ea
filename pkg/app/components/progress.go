package components

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/kerbaras/comicdl/pkg/app/styles"
	"github.com/kerbaras/comicdl/pkg/data"
	"github.com/kerbaras/comicdl/pkg/services"
)

// ProgressTracker keeps the latest event of every running task.
type ProgressTracker struct {
	downloads map[int64]services.ProgressEvent
	width     int
}

func NewProgressTracker(width int) *ProgressTracker {
	return &ProgressTracker{
		downloads: make(map[int64]services.ProgressEvent),
		width:     width,
	}
}

func (p *ProgressTracker) SetWidth(width int) {
	p.width = width
}

func (p *ProgressTracker) Update(ev services.ProgressEvent) {
	if ev.Deleted || ev.Status != data.StatusDownloading {
		delete(p.downloads, ev.TaskID)
		return
	}
	p.downloads[ev.TaskID] = ev
}

func (p *ProgressTracker) Clear() {
	p.downloads = make(map[int64]services.ProgressEvent)
}

func (p *ProgressTracker) HasActive() bool {
	return len(p.downloads) > 0
}

func (p *ProgressTracker) View() string {
	if len(p.downloads) == 0 {
		return ""
	}

	ids := make([]int64, 0, len(p.downloads))
	for id := range p.downloads {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, cmp.Compare[int64])

	var b strings.Builder
	b.WriteString(styles.TitleStyle.Render("Active Downloads"))
	b.WriteString("\n")

	for _, id := range ids {
		ev := p.downloads[id]
		b.WriteString(styles.TextStyle.Render(fmt.Sprintf("Task #%d", id)))
		b.WriteString("  ")
		b.WriteString(styles.StatusStyle(ev.Status).Render(
			fmt.Sprintf("%s (%d/%d items - %s%%)", ev.Status, ev.DoneCount, ev.TotalCount, ev.Progress)))
		b.WriteString("\n")
		if bar := renderProgressBar(ev.DoneCount, ev.TotalCount, p.width-4); bar != "" {
			b.WriteString(bar)
			b.WriteString("\n")
		}
		if len(ev.Errors) > 0 {
			b.WriteString(styles.StatusError.Render(fmt.Sprintf("%d items failed", len(ev.Errors))))
			b.WriteString("\n")
		}
	}

	return b.String()
}

func renderProgressBar(current, total, width int) string {
	if total == 0 || width <= 0 {
		return ""
	}

	filled := min(current*width/total, width)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return styles.ProgressBarStyle.Render(bar)
}

// SimpleProgress renders a bare progress bar.
func SimpleProgress(current, total, width int) string {
	return renderProgressBar(current, total, width)
}
