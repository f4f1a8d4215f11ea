package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/kerbaras/comicdl/pkg/app/styles"
	"github.com/kerbaras/comicdl/pkg/data"
	"github.com/kerbaras/comicdl/pkg/services"
)

// runTracker sums item counts over the tasks a command follows.
type runTracker struct {
	done   map[int64]int
	totals map[int64]int
}

func newRunTracker(tasks []data.TaskSummary) *runTracker {
	t := &runTracker{done: map[int64]int{}, totals: map[int64]int{}}
	for _, task := range tasks {
		if task.Status.IsActive() {
			t.done[task.ID] = task.DoneCount
			t.totals[task.ID] = task.TotalCount
		}
	}
	return t
}

func (t *runTracker) apply(ev services.ProgressEvent) {
	if ev.Deleted {
		delete(t.done, ev.TaskID)
		delete(t.totals, ev.TaskID)
		return
	}
	if _, ok := t.totals[ev.TaskID]; !ok && !ev.Status.IsActive() {
		return
	}
	t.done[ev.TaskID] = ev.DoneCount
	t.totals[ev.TaskID] = ev.TotalCount
}

func (t *runTracker) sums() (done, total int) {
	for id, n := range t.totals {
		total += n
		done += t.done[id]
	}
	return done, total
}

func (t *runTracker) ids() []int64 {
	ids := make([]int64, 0, len(t.totals))
	for id := range t.totals {
		ids = append(ids, id)
	}
	return ids
}

// follow draws one bar over every active task until none is left or ctx
// ends. Interrupted tasks stay queued for the next run.
func follow(ctx context.Context, env *env) error {
	events, cancel := env.ctl.Subscribe(256)
	defer cancel()

	tracker := newRunTracker(env.ctl.List())
	done, total := tracker.sums()
	bar := progressbar.NewOptions(max(total, 1),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("downloading"),
		progressbar.OptionSetItsString("img"),
		progressbar.OptionShowIts(),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	_ = bar.Set(done)

	finished := make(chan struct{})
	go func() {
		env.ctl.Wait()
		close(finished)
	}()

	for {
		select {
		case <-ctx.Done():
			_ = bar.Exit()
			fmt.Println("\nInterrupted, unfinished tasks resume on the next run")
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			tracker.apply(ev)
			done, total := tracker.sums()
			bar.ChangeMax(max(total, 1))
			_ = bar.Set(done)
			if ev.Status == data.StatusFailed || ev.Status == data.StatusFinished {
				_ = bar.Clear()
				fmt.Println(styles.StatusStyle(ev.Status).Render(
					fmt.Sprintf("Task #%d %s (%d/%d items)", ev.TaskID, ev.Status, ev.DoneCount, ev.TotalCount)))
			}
		case <-finished:
			_ = bar.Finish()
			fmt.Println()
			return summarize(env, tracker.ids())
		}
	}
}

func summarize(env *env, ids []int64) error {
	failed := 0
	for _, id := range ids {
		t, err := env.ctl.Get(id)
		if err != nil {
			continue
		}
		if t.Status == data.StatusFailed {
			failed++
			for _, e := range t.Errors {
				fmt.Println(styles.MutedStyle.Render(fmt.Sprintf("  #%d %s", id, e)))
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d tasks failed", failed, len(ids))
	}
	fmt.Println(styles.StatusCompleted.Render(fmt.Sprintf("✓ %d tasks done", len(ids))))
	return nil
}
