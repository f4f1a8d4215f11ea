package services

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/kerbaras/comicdl/pkg/data"
)

var ErrSchedulerClosed = errors.New("scheduler is shutting down")

// StopFlag is the cooperative stop signal of one run. Workers poll it
// between items; nothing in flight is interrupted.
type StopFlag struct {
	raised atomic.Bool
}

func (f *StopFlag) Raise()       { f.raised.Store(true) }
func (f *StopFlag) Raised() bool { return f.raised.Load() }

// ProgressFunc receives checkpoints while a run is in progress, with the
// item errors recorded so far.
type ProgressFunc func(cp data.Checkpoint, total int, errs []string)

// Outcome is what a run leaves behind once it has been finalised in the
// store.
type Outcome struct {
	Status     data.TaskStatus
	Checkpoint data.Checkpoint
	Total      int
	Errors     []string
}

// Runner executes one task until it finishes, fails or observes stop.
type Runner interface {
	Run(ctx context.Context, id int64, stop *StopFlag, report ProgressFunc) Outcome
}

type entry struct {
	summary data.TaskSummary
	queued  uint64    // admission order while waiting
	stop    *StopFlag // set while a run is in progress
	paused  bool      // stop was requested by the user
	restart bool      // started again before the paused run returned
}

// Scheduler owns the in-memory mirror of every task and admits at most
// maxActive of them into downloading at once.
type Scheduler struct {
	store     TaskStore
	runner    Runner
	events    *Broadcaster
	logger    *zap.SugaredLogger
	maxActive int

	mu      sync.RWMutex
	entries map[int64]*entry
	active  int
	seq     uint64
	closing bool

	ctx context.Context
	wg  sync.WaitGroup
}

func NewScheduler(store TaskStore, runner Runner, events *Broadcaster, maxActive int, logger *zap.SugaredLogger) *Scheduler {
	if maxActive < 1 {
		maxActive = 1
	}
	return &Scheduler{
		store:     store,
		runner:    runner,
		events:    events,
		logger:    logger.With("component", "scheduler"),
		maxActive: maxActive,
		entries:   make(map[int64]*entry),
		ctx:       context.Background(),
	}
}

// Load restores the mirror and admits the tasks it queued again.
func (s *Scheduler) Load(ctx context.Context) error {
	if err := s.Restore(ctx); err != nil {
		return err
	}
	s.Resume()
	return nil
}

// Restore fills the mirror from the store. Tasks left downloading or
// waiting by a previous process are queued again, oldest first, but not
// admitted until Resume or the next Start.
func (s *Scheduler) Restore(ctx context.Context) error {
	summaries, err := s.store.ListTasks(ctx)
	if err != nil {
		return err
	}
	slices.SortFunc(summaries, func(a, b *data.TaskSummary) int {
		return cmp.Compare(a.ID, b.ID)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sum := range summaries {
		e := &entry{summary: *sum}
		s.entries[sum.ID] = e
		if sum.Status.IsActive() {
			s.logger.Infow("Requeueing interrupted task", "task", sum.ID, "status", sum.Status)
			s.queueLocked(ctx, e)
		}
	}
	return nil
}

// Resume fills free slots from the waiting queue.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admitLocked()
}

// Add puts a freshly created task into the mirror.
func (s *Scheduler) Add(sum data.TaskSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[sum.ID] = &entry{summary: sum}
	s.publishLocked(sum)
}

// Start moves a stopped or failed task into downloading when a slot is
// free and into waiting otherwise. Active and finished tasks are left as
// they are, except that a paused run which has not returned yet is queued
// again once it does.
func (s *Scheduler) Start(ctx context.Context, id int64) error {
	return s.start(ctx, id, true)
}

// Queue moves a stopped or failed task into waiting without admitting it.
// It runs on the next Resume.
func (s *Scheduler) Queue(ctx context.Context, id int64) error {
	return s.start(ctx, id, false)
}

func (s *Scheduler) start(ctx context.Context, id int64, admit bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return data.ErrTaskNotFound
	}
	return s.startLocked(ctx, e, admit)
}

// Pause stops a task. A downloading task is only signalled; its status
// changes when the worker returns.
func (s *Scheduler) Pause(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return data.ErrTaskNotFound
	}
	s.pauseLocked(ctx, e, true)
	return nil
}

// StartAll starts every stopped or failed task in creation order and
// returns how many were started or queued.
func (s *Scheduler) StartAll(ctx context.Context) int {
	return s.startAll(ctx, true)
}

// QueueAll queues every stopped or failed task without admitting any.
func (s *Scheduler) QueueAll(ctx context.Context) int {
	return s.startAll(ctx, false)
}

func (s *Scheduler) startAll(ctx context.Context, admit bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.byIDLocked() {
		switch e.summary.Status {
		case data.StatusStopped, data.StatusFailed:
			if err := s.startLocked(ctx, e, admit); err == nil {
				n++
			}
		}
	}
	return n
}

// PauseAll stops every downloading and waiting task.
func (s *Scheduler) PauseAll(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.byIDLocked() {
		if e.summary.Status.IsActive() {
			s.pauseLocked(ctx, e, true)
			n++
		}
	}
	return n
}

// PauseWaiting stops the waiting tasks and leaves downloads running.
func (s *Scheduler) PauseWaiting(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.byIDLocked() {
		if e.summary.Status == data.StatusWaiting {
			s.pauseLocked(ctx, e, false)
			n++
		}
	}
	return n
}

// Delete removes a task that is not downloading.
func (s *Scheduler) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return data.ErrTaskNotFound
	}
	if e.summary.Status == data.StatusDownloading {
		return data.ErrTaskActive
	}
	if err := s.store.DeleteTask(ctx, id); err != nil {
		return err
	}
	s.removeLocked(e)
	return nil
}

// DeleteAll removes every task that is not downloading. Store failures are
// logged per task and do not stop the others.
func (s *Scheduler) DeleteAll(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.byIDLocked() {
		if e.summary.Status == data.StatusDownloading {
			continue
		}
		if err := s.store.DeleteTask(ctx, e.summary.ID); err != nil {
			s.logger.Warnw("Failed to delete task", "task", e.summary.ID, "error", err)
		}
		s.removeLocked(e)
		n++
	}
	return n
}

// List returns the mirror in display order.
func (s *Scheduler) List() []data.TaskSummary {
	s.mu.RLock()
	out := make([]data.TaskSummary, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, copySummary(e.summary))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if pa, pb := a.Status.Precedence(), b.Status.Precedence(); pa != pb {
			return pa < pb
		}
		if a.DoneCount != b.DoneCount {
			return a.DoneCount > b.DoneCount
		}
		if a.TotalCount != b.TotalCount {
			return a.TotalCount < b.TotalCount
		}
		return a.ID < b.ID
	})
	return out
}

func (s *Scheduler) Get(id int64) (data.TaskSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return data.TaskSummary{}, data.ErrTaskNotFound
	}
	return copySummary(e.summary), nil
}

// Pending counts tasks that are downloading or waiting.
func (s *Scheduler) Pending() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.entries {
		if e.summary.Status.IsActive() {
			n++
		}
	}
	return n
}

// Progress records a checkpoint of a running task.
func (s *Scheduler) Progress(id int64, cp data.Checkpoint, total int, errs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return
	}
	e.summary.Progress = cp.Progress
	e.summary.DoneCount = cp.DoneCount
	e.summary.TotalCount = total
	e.summary.Errors = append([]string(nil), errs...)
	s.publishLocked(e.summary)
}

// Wait blocks until no run is in progress.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Close signals every run to stop and waits for them. Runs interrupted
// this way are left waiting so the next Load resumes them.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closing = true
	for _, e := range s.entries {
		if e.stop != nil {
			e.stop.Raise()
		}
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) startLocked(ctx context.Context, e *entry, admit bool) error {
	switch e.summary.Status {
	case data.StatusDownloading:
		// The run has not seen the stop flag yet; queue it again once it
		// returns.
		if e.paused {
			e.paused = false
			e.restart = true
		}
		return nil
	case data.StatusWaiting, data.StatusFinished:
		return nil
	}
	if s.closing {
		return ErrSchedulerClosed
	}
	e.paused = false
	if admit && s.active < s.maxActive {
		s.launchLocked(e)
		return nil
	}
	s.queueLocked(ctx, e)
	return nil
}

func (s *Scheduler) pauseLocked(ctx context.Context, e *entry, signal bool) {
	switch e.summary.Status {
	case data.StatusDownloading:
		if signal && e.stop != nil {
			e.paused = true
			e.restart = false
			e.stop.Raise()
		}
	case data.StatusWaiting:
		s.setStatusLocked(ctx, e, data.StatusStopped)
	}
}

func (s *Scheduler) queueLocked(ctx context.Context, e *entry) {
	s.seq++
	e.queued = s.seq
	s.setStatusLocked(ctx, e, data.StatusWaiting)
}

func (s *Scheduler) launchLocked(e *entry) {
	stop := &StopFlag{}
	e.stop = stop
	s.active++
	s.setStatusLocked(s.ctx, e, data.StatusDownloading)

	id := e.summary.ID
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		out := s.runner.Run(s.ctx, id, stop, func(cp data.Checkpoint, total int, errs []string) {
			s.Progress(id, cp, total, errs)
		})
		s.finish(id, out)
	}()
}

// admitLocked promotes waiting tasks, oldest queued first, while slots
// are free.
func (s *Scheduler) admitLocked() {
	for !s.closing && s.active < s.maxActive {
		var next *entry
		for _, e := range s.entries {
			if e.summary.Status != data.StatusWaiting {
				continue
			}
			if next == nil || e.queued < next.queued {
				next = e
			}
		}
		if next == nil {
			return
		}
		s.launchLocked(next)
	}
}

func (s *Scheduler) finish(id int64, out Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active--

	if e, ok := s.entries[id]; ok {
		e.stop = nil
		e.summary.Progress = out.Checkpoint.Progress
		e.summary.DoneCount = out.Checkpoint.DoneCount
		e.summary.TotalCount = out.Total
		e.summary.Errors = append([]string(nil), out.Errors...)
		e.summary.Done = out.Status == data.StatusFinished
		restart := e.restart
		e.restart = false

		if out.Status == data.StatusStopped && (restart || s.closing && !e.paused) {
			s.queueLocked(s.ctx, e)
		} else {
			e.summary.Status = out.Status
			s.publishLocked(e.summary)
		}
		s.logger.Infow("Task run ended", "task", id, "status", e.summary.Status,
			"done", out.Checkpoint.DoneCount, "total", out.Total, "errors", len(out.Errors))
	}
	s.admitLocked()
}

// setStatusLocked updates the mirror and persists the status. The mirror
// stays authoritative when the store write fails.
func (s *Scheduler) setStatusLocked(ctx context.Context, e *entry, status data.TaskStatus) {
	e.summary.Status = status
	if err := s.store.UpdateStatus(ctx, e.summary.ID, status); err != nil {
		s.logger.Warnw("Failed to persist status", "task", e.summary.ID, "status", status, "error", err)
	}
	s.publishLocked(e.summary)
}

func (s *Scheduler) removeLocked(e *entry) {
	delete(s.entries, e.summary.ID)
	if s.events != nil {
		ev := eventFor(e.summary)
		ev.Deleted = true
		s.events.Publish(ev)
	}
}

func (s *Scheduler) publishLocked(sum data.TaskSummary) {
	if s.events != nil {
		s.events.Publish(eventFor(sum))
	}
}

func (s *Scheduler) byIDLocked() []*entry {
	out := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b *entry) int {
		return cmp.Compare(a.summary.ID, b.summary.ID)
	})
	return out
}

func copySummary(s data.TaskSummary) data.TaskSummary {
	s.Errors = append([]string(nil), s.Errors...)
	return s
}
