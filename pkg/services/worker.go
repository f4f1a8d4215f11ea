package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/kerbaras/comicdl/pkg/data"
	"github.com/kerbaras/comicdl/pkg/integrations"
	"github.com/kerbaras/comicdl/pkg/logging"
	"github.com/kerbaras/comicdl/pkg/utils"
)

type WorkerConfig struct {
	Concurrency     int           // images in flight per task
	Retries         int           // fetch attempts per image
	Timeout         time.Duration // per attempt
	CheckpointEvery int           // completions between checkpoints
	ASCIIPaths      bool
}

func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Concurrency:     10,
		Retries:         utils.DefaultAttempts,
		Timeout:         utils.DefaultTimeout,
		CheckpointEvery: 10,
	}
}

// Worker downloads the items of one task at a time per Run call. It is
// safe to run several tasks concurrently.
type Worker struct {
	store      TaskStore
	fetcher    *utils.Fetcher
	transcoder integrations.Transcoder
	notifier   Notifier
	cfg        WorkerConfig
	logger     *zap.SugaredLogger
}

func NewWorker(store TaskStore, fetcher *utils.Fetcher, transcoder integrations.Transcoder, notifier Notifier, cfg WorkerConfig, logger *zap.SugaredLogger) *Worker {
	def := DefaultWorkerConfig()
	if cfg.Concurrency < 1 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Retries < 1 {
		cfg.Retries = def.Retries
	}
	if cfg.CheckpointEvery < 1 {
		cfg.CheckpointEvery = def.CheckpointEvery
	}
	f := fetcher.WithAttempts(cfg.Retries)
	if cfg.Timeout > 0 {
		f.Timeout = cfg.Timeout
	}
	return &Worker{
		store:      store,
		fetcher:    f,
		transcoder: transcoder,
		notifier:   notifier,
		cfg:        cfg,
		logger:     logger.With("component", "worker"),
	}
}

var _ Runner = (*Worker)(nil)

// Run downloads every item of the task that is not done yet and finalises
// the task in the store. It returns once no item is in flight.
func (w *Worker) Run(ctx context.Context, id int64, stop *StopFlag, report ProgressFunc) Outcome {
	logger := w.logger.With("task", id)

	task, err := w.store.GetTask(ctx, id)
	if err != nil {
		logger.Errorw("Failed to load task", "error", err)
		return Outcome{Status: data.StatusFailed, Errors: []string{err.Error()}}
	}
	desc, err := data.DecodeDescriptor(task.Descriptor)
	if err != nil {
		errs := []string{err.Error()}
		cp := data.Checkpoint{Progress: task.Progress, DoneCount: task.DoneCount, Descriptor: task.Descriptor}
		_ = logging.LogIfError(logger, w.store.FinalizeTask(context.WithoutCancel(ctx), id, cp, errs, data.StatusFailed),
			"Failed to finalise task")
		return Outcome{Status: data.StatusFailed, Checkpoint: cp, Total: task.TotalCount, Errors: errs}
	}

	r := &taskRun{
		w:       w,
		task:    task,
		desc:    desc,
		total:   desc.TotalCount(),
		fetcher: w.fetcher.WithReferer(task.URL),
		stop:    stop,
		report:  report,
		logger:  logger,
	}
	logger.Infow("Starting download", "comic", task.ComicName, "kind", task.Kind,
		"done", desc.DoneCount(), "total", r.total)

	r.execute(ctx)
	return r.finish(ctx)
}

type itemJob struct {
	cat, group, item int
	label, name, src string
}

type taskRun struct {
	w       *Worker
	task    *data.Task
	total   int
	fetcher *utils.Fetcher
	stop    *StopFlag
	report  ProgressFunc
	logger  *zap.SugaredLogger

	descMu sync.Mutex
	desc   *data.Descriptor

	ckMu      sync.Mutex // serialises checkpoints so snapshots never go back
	completed atomic.Int64

	errMu sync.Mutex
	errs  []string
}

func (r *taskRun) stopped(ctx context.Context) bool {
	return r.stop.Raised() || ctx.Err() != nil
}

// jobs lists the items left to download in descriptor order. Done items
// never take a permit.
func (r *taskRun) jobs() []itemJob {
	var out []itemJob
	for ci, c := range r.desc.Categories {
		for gi, g := range c.Groups {
			for ii, it := range g.Items {
				if it.Done {
					continue
				}
				out = append(out, itemJob{cat: ci, group: gi, item: ii, label: c.Label, name: g.Name, src: it.Src})
			}
		}
	}
	return out
}

func (r *taskRun) execute(ctx context.Context) {
	sem := semaphore.NewWeighted(int64(r.w.cfg.Concurrency))
	var wg sync.WaitGroup

	for _, job := range r.jobs() {
		if r.stopped(ctx) {
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		if r.stopped(ctx) {
			sem.Release(1)
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			if r.stopped(ctx) {
				return
			}
			r.download(ctx, job)
		}()
	}
	wg.Wait()
}

func (r *taskRun) download(ctx context.Context, job itemJob) {
	body, err := r.fetcher.Fetch(ctx, job.src)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.fail(job, err)
		return
	}

	img, err := r.w.transcoder.Transcode(body)
	if err != nil {
		var de *data.DecodeError
		if errors.As(err, &de) {
			de.Src = job.src
		} else {
			err = &data.DecodeError{Src: job.src, Err: err}
		}
		r.fail(job, err)
		return
	}

	path := utils.ItemPath(r.task.LocalPath, job.label, job.group, job.name, job.item, ".jpg", r.w.cfg.ASCIIPaths)
	if err := utils.WriteFileAtomic(path, img); err != nil {
		r.fail(job, &data.IOError{Path: path, Err: err})
		return
	}

	r.descMu.Lock()
	r.desc.MarkDone(job.cat, job.group, job.item)
	r.descMu.Unlock()

	if n := r.completed.Add(1); n%int64(r.w.cfg.CheckpointEvery) == 0 {
		r.checkpoint(ctx)
	}
}

func (r *taskRun) fail(job itemJob, err error) {
	msg := fmt.Sprintf("%s/%s #%d: %v", job.label, job.name, job.item+1, err)
	r.logger.Warnw("Item failed", "category", job.label, "group", job.name, "index", job.item+1, "error", err)
	r.errMu.Lock()
	r.errs = append(r.errs, msg)
	r.errMu.Unlock()
}

func (r *taskRun) failures() []string {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return append([]string(nil), r.errs...)
}

func (r *taskRun) snapshot() (data.Checkpoint, error) {
	r.descMu.Lock()
	snap := r.desc.Clone()
	r.descMu.Unlock()

	enc, err := snap.Encode()
	if err != nil {
		return data.Checkpoint{}, err
	}
	done := snap.DoneCount()
	return data.Checkpoint{
		Progress:   data.FormatProgress(done, r.total),
		DoneCount:  done,
		Descriptor: enc,
	}, nil
}

// checkpoint pushes the current progress to the store and the mirror. A
// failed store write is logged and the run goes on.
func (r *taskRun) checkpoint(ctx context.Context) {
	r.ckMu.Lock()
	defer r.ckMu.Unlock()

	cp, err := r.snapshot()
	if err != nil {
		r.logger.Errorw("Failed to snapshot progress", "error", err)
		return
	}
	if err := r.w.store.UpdateProgress(context.WithoutCancel(ctx), r.task.ID, cp); err != nil {
		r.logger.Warnw("Failed to checkpoint progress", "error", err)
	}
	if r.report != nil {
		r.report(cp, r.total, r.failures())
	}
}

func (r *taskRun) finish(ctx context.Context) Outcome {
	r.ckMu.Lock()
	defer r.ckMu.Unlock()

	ctx = context.WithoutCancel(ctx)
	cp, err := r.snapshot()
	if err != nil {
		r.fail(itemJob{label: "task", name: r.task.ComicName, item: -1}, err)
		cp = data.Checkpoint{Progress: r.task.Progress, DoneCount: r.task.DoneCount, Descriptor: r.task.Descriptor}
	}

	errs := r.failures()

	var status data.TaskStatus
	switch {
	case len(errs) > 0:
		status = data.StatusFailed
	case cp.DoneCount == r.total:
		status = data.StatusFinished
	default:
		status = data.StatusStopped
	}

	if err := r.w.store.FinalizeTask(ctx, r.task.ID, cp, errs, status); err != nil {
		r.logger.Errorw("Failed to finalise task", "error", err)
	}
	r.logger.Infow("Download ended", "status", status, "done", cp.DoneCount, "total", r.total, "errors", len(errs))

	if status != data.StatusStopped && r.w.notifier != nil {
		sum := r.task.Summary()
		sum.Status = status
		sum.Progress = cp.Progress
		sum.DoneCount = cp.DoneCount
		sum.TotalCount = r.total
		sum.Errors = errs
		sum.Done = status == data.StatusFinished
		if err := r.w.notifier.Notify(ctx, sum); err != nil {
			r.logger.Warnw("Failed to send notification", "error", err)
		}
	}

	return Outcome{Status: status, Checkpoint: cp, Total: r.total, Errors: errs}
}
