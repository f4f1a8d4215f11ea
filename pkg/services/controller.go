package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/kerbaras/comicdl/pkg/cache"
	"github.com/kerbaras/comicdl/pkg/config"
	"github.com/kerbaras/comicdl/pkg/data"
	"github.com/kerbaras/comicdl/pkg/integrations"
	"github.com/kerbaras/comicdl/pkg/sources"
	"github.com/kerbaras/comicdl/pkg/utils"
)

// Router picks the resolver for a source URL.
type Router interface {
	Route(rawURL string) (sources.Resolver, error)
}

var _ Router = (*sources.Registry)(nil)

type AddRequest struct {
	URL          string
	Kind         data.Kind
	Author       string
	AllowPartial bool // create tasks even if some groups did not resolve
	Start        bool // start the created tasks right away
}

type AddResult struct {
	Created  []data.TaskSummary
	Existing []data.TaskSummary // (kind, url) pairs that already had a task
	Skipped  []string           // categories that match no task kind
}

// ControllerConfig holds the collaborators of a Controller. NewController
// fills it from the application config.
type ControllerConfig struct {
	Store       TaskStore
	Router      Router
	Runner      Runner
	MaxActive   int
	DownloadDir string
	ExportDir   string
	ASCIIPaths  bool
	Logger      *zap.SugaredLogger
}

// Controller is the entry point of every front end: ingress, lifecycle
// commands, listing and the progress channel.
type Controller struct {
	store       TaskStore
	router      Router
	scheduler   *Scheduler
	events      *Broadcaster
	downloadDir string
	exportDir   string
	ascii       bool
	logger      *zap.SugaredLogger

	addMu   sync.Mutex // keeps the (kind, url) check and the insert together
	closers []func() error
}

func NewControllerWithConfig(cfg ControllerConfig) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	events := NewBroadcaster()
	return &Controller{
		store:       cfg.Store,
		router:      cfg.Router,
		scheduler:   NewScheduler(cfg.Store, cfg.Runner, events, cfg.MaxActive, logger),
		events:      events,
		downloadDir: cfg.DownloadDir,
		exportDir:   cfg.ExportDir,
		ascii:       cfg.ASCIIPaths,
		logger:      logger.With("component", "controller"),
	}
}

// NewController wires the full engine from cfg. Tasks a previous process
// left active come back as waiting; call Resume to run them.
func NewController(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (*Controller, error) {
	if err := os.MkdirAll(cfg.DownloadDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}

	pages, err := cache.New(cfg.CacheDir(), cfg.MemoryCacheMB)
	if err != nil {
		return nil, err
	}

	fetcher := utils.NewFetcher(cfg.PageAttempts, cfg.PageTimeout)
	if cfg.UserAgent != "" {
		fetcher.UserAgent = cfg.UserAgent
	}
	registry := sources.NewRegistry(cfg.AllowedDomains,
		sources.NewAntbyw(fetcher, pages, cfg.ResolveBatchSize, logger),
		sources.NewMangaDex(cfg.MangaDexAPI, fetcher, pages, cfg.ResolveBatchSize, logger),
	)

	repo, err := data.OpenRepository(cfg.DBPath())
	if err != nil {
		pages.Close()
		return nil, fmt.Errorf("failed to open task store: %w", err)
	}

	settings := integrations.ImageSettings{
		Quality:   cfg.JPEGQuality,
		MaxWidth:  cfg.MaxWidth,
		MaxHeight: cfg.MaxHeight,
		Grayscale: cfg.Grayscale,
	}
	if cfg.Device != "" {
		if settings, err = integrations.DeviceSettings(cfg.Device, settings); err != nil {
			repo.Close()
			pages.Close()
			return nil, err
		}
	}
	images := integrations.NewImageProcessor(settings)
	worker := NewWorker(repo, fetcher, images, NewLogNotifier(logger), WorkerConfig{
		Concurrency:     cfg.ItemConcurrency,
		Retries:         cfg.ItemRetries,
		Timeout:         cfg.ItemTimeout,
		CheckpointEvery: cfg.CheckpointEvery,
		ASCIIPaths:      cfg.ASCIIPaths,
	}, logger)

	c := NewControllerWithConfig(ControllerConfig{
		Store:       repo,
		Router:      registry,
		Runner:      worker,
		MaxActive:   cfg.MaxActiveTasks,
		DownloadDir: cfg.DownloadDir,
		ExportDir:   cfg.ExportDir,
		ASCIIPaths:  cfg.ASCIIPaths,
		Logger:      logger,
	})
	c.closers = append(c.closers, repo.Close, pages.Close)

	if err := c.scheduler.Restore(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}
	return c, nil
}

// Add resolves a source URL and creates its tasks: one for a chapter page
// or a single category, one per category for KindAll. A (kind, url) pair
// that already has a task is reported in Existing and not created again.
func (c *Controller) Add(ctx context.Context, req AddRequest) (*AddResult, error) {
	if req.Kind == "" {
		req.Kind = data.KindAll
	}
	resolver, err := c.router.Route(req.URL)
	if err != nil {
		return nil, err
	}
	c.logger.Infow("Resolving", "url", req.URL, "kind", req.Kind, "source", resolver.Name())

	listing, err := resolver.Resolve(ctx, req.URL, req.Kind)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", req.URL, err)
	}

	c.addMu.Lock()
	defer c.addMu.Unlock()

	result := &AddResult{}
	switch l := listing.(type) {
	case *data.ComicListing:
		if !l.Done && !req.AllowPartial {
			return nil, &data.IncompleteListingError{URL: req.URL, Pending: l.Pending()}
		}
		if req.Kind == data.KindCurrent {
			return nil, fmt.Errorf("%s is a comic page, not a chapter", req.URL)
		}
		desc, err := data.ListingDescriptor(l)
		if err != nil {
			return nil, err
		}
		kinds := []data.Kind{req.Kind}
		if req.Kind == data.KindAll {
			kinds = data.CategoryKinds
			for _, cat := range desc.Categories {
				if !data.Kind(cat.Label).IsCategory() {
					c.logger.Warnw("Skipping unrecognised category", "url", req.URL, "category", cat.Label, "groups", len(cat.Groups))
					result.Skipped = append(result.Skipped, cat.Label)
				}
			}
		}
		for _, kind := range kinds {
			sub, ok := desc.Select(string(kind))
			if !ok {
				if req.Kind != data.KindAll {
					return nil, fmt.Errorf("%s has no %s", req.URL, kind)
				}
				continue
			}
			if err := c.create(ctx, kind, req, l.ComicName, sub, result); err != nil {
				return result, err
			}
		}
	case *data.ChapterListing:
		if !l.Done && !req.AllowPartial {
			return nil, &data.IncompleteListingError{URL: req.URL, Pending: []string{l.ChapterName}}
		}
		desc, err := data.ListingDescriptor(l)
		if err != nil {
			return nil, err
		}
		if err := c.create(ctx, data.KindCurrent, req, l.ComicName, desc, result); err != nil {
			return result, err
		}
	default:
		return nil, fmt.Errorf("unsupported listing %T", listing)
	}

	if req.Start {
		for _, t := range result.Created {
			if err := c.scheduler.Start(ctx, t.ID); err != nil {
				return result, err
			}
		}
	}
	return result, nil
}

func (c *Controller) create(ctx context.Context, kind data.Kind, req AddRequest, comic string, desc *data.Descriptor, result *AddResult) error {
	existing, err := c.store.FindTasks(ctx, kind, req.URL)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		c.logger.Infow("Task already exists", "task", existing[0].ID, "kind", kind, "url", req.URL)
		result.Existing = append(result.Existing, existing[0].Summary())
		return nil
	}

	encoded, err := desc.Encode()
	if err != nil {
		return err
	}
	total := desc.TotalCount()
	task, err := c.store.CreateTask(ctx, &data.Task{
		Kind:       kind,
		Status:     data.StatusStopped,
		LocalPath:  utils.TaskDir(c.downloadDir, req.Author, comic, c.ascii),
		Descriptor: encoded,
		URL:        req.URL,
		Author:     req.Author,
		ComicName:  comic,
		Progress:   data.FormatProgress(0, total),
		TotalCount: total,
	})
	if err != nil {
		return err
	}
	sum := task.Summary()
	c.scheduler.Add(sum)
	result.Created = append(result.Created, sum)
	c.logger.Infow("Created task", "task", task.ID, "kind", kind, "comic", comic, "items", total)
	return nil
}

func (c *Controller) Start(ctx context.Context, id int64) error { return c.scheduler.Start(ctx, id) }
func (c *Controller) Queue(ctx context.Context, id int64) error { return c.scheduler.Queue(ctx, id) }
func (c *Controller) Pause(ctx context.Context, id int64) error { return c.scheduler.Pause(ctx, id) }
func (c *Controller) Delete(ctx context.Context, id int64) error {
	return c.scheduler.Delete(ctx, id)
}

func (c *Controller) StartAll(ctx context.Context) int     { return c.scheduler.StartAll(ctx) }
func (c *Controller) QueueAll(ctx context.Context) int     { return c.scheduler.QueueAll(ctx) }
func (c *Controller) PauseAll(ctx context.Context) int     { return c.scheduler.PauseAll(ctx) }
func (c *Controller) PauseWaiting(ctx context.Context) int { return c.scheduler.PauseWaiting(ctx) }
func (c *Controller) DeleteAll(ctx context.Context) int    { return c.scheduler.DeleteAll(ctx) }

func (c *Controller) List() []data.TaskSummary { return c.scheduler.List() }

func (c *Controller) Get(id int64) (data.TaskSummary, error) { return c.scheduler.Get(id) }

// Pending counts tasks that are downloading or waiting.
func (c *Controller) Pending() int { return c.scheduler.Pending() }

// Subscribe returns the progress channel and its cancel func.
func (c *Controller) Subscribe(buffer int) (<-chan ProgressEvent, func()) {
	return c.events.Subscribe(buffer)
}

// Resume admits waiting tasks into free slots.
func (c *Controller) Resume() { c.scheduler.Resume() }

// Wait blocks until no task is running.
func (c *Controller) Wait() { c.scheduler.Wait() }

// Export compiles the downloaded images of a task into an EPub under
// outDir, or the configured export directory when outDir is empty.
func (c *Controller) Export(ctx context.Context, id int64, outDir string) (string, error) {
	task, err := c.store.GetTask(ctx, id)
	if err != nil {
		return "", err
	}
	desc, err := data.DecodeDescriptor(task.Descriptor)
	if err != nil {
		return "", err
	}
	if outDir == "" {
		outDir = c.exportDir
	}
	path, err := integrations.NewEPubBuilder(outDir, c.ascii).Build(task, desc)
	if err != nil {
		return "", err
	}
	c.logger.Infow("Exported task", "task", id, "path", path)
	return path, nil
}

// Close stops every run, waits for them and releases the store.
func (c *Controller) Close() error {
	c.scheduler.Close()
	c.events.Close()
	var errs []error
	for _, closer := range c.closers {
		errs = append(errs, closer())
	}
	return errors.Join(errs...)
}
