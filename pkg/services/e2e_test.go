package services

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kerbaras/comicdl/pkg/data"
	"github.com/kerbaras/comicdl/pkg/integrations"
	"github.com/kerbaras/comicdl/pkg/logging"
	"github.com/kerbaras/comicdl/pkg/utils"
)

// E2E tests for the full pipeline over a real task database

func newE2EController(t *testing.T, listing data.Listing) (*Controller, *data.Repository) {
	t.Helper()
	dir := t.TempDir()
	repo, err := data.OpenRepository(filepath.Join(dir, "tasks.duckdb"))
	require.NoError(t, err)

	fetcher := utils.NewFetcher(3, time.Second)
	fetcher.Backoff = 0
	worker := NewWorker(repo, fetcher, integrations.NewImageProcessor(integrations.DefaultImageSettings()),
		NewLogNotifier(logging.Nop()), WorkerConfig{Concurrency: 3, Retries: 3, Timeout: time.Second, CheckpointEvery: 2}, logging.Nop())

	c := NewControllerWithConfig(ControllerConfig{
		Store:       repo,
		Router:      &mockRouter{resolver: &mockResolver{listing: listing}},
		Runner:      worker,
		MaxActive:   1,
		DownloadDir: filepath.Join(dir, "downloads"),
		ExportDir:   filepath.Join(dir, "exports"),
		Logger:      logging.Nop(),
	})
	c.closers = append(c.closers, repo.Close)
	return c, repo
}

func imageListing(srv string) *data.ComicListing {
	l := &data.ComicListing{PageID: "1", Source: "mock", ComicName: "E2E Comic", Done: true}
	n := 0
	for _, label := range []string{"volumes", "chapters"} {
		cat := data.Category{Label: label}
		for g := 1; g <= 2; g++ {
			group := data.Group{Name: fmt.Sprintf("%s %d", label, g), Count: 3, Done: true}
			for i := 0; i < 3; i++ {
				group.Items = append(group.Items, data.Item{Src: fmt.Sprintf("%s/img/%d.png", srv, n)})
				n++
			}
			cat.Groups = append(cat.Groups, group)
		}
		l.Categories = append(l.Categories, cat)
	}
	return l
}

func TestE2E_FullDownloadPipeline(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping E2E test in short mode")
	}

	srv := newImageServer(t)
	c, repo := newE2EController(t, imageListing(srv.URL))
	defer c.Close()
	ctx := context.Background()

	events, cancel := c.Subscribe(64)
	defer cancel()

	res, err := c.Add(ctx, AddRequest{URL: "https://example.com/comic/1", Kind: data.KindAll, Start: true})
	require.NoError(t, err)
	require.Len(t, res.Created, 2)

	c.Wait()

	for _, created := range res.Created {
		sum, err := c.Get(created.ID)
		require.NoError(t, err)
		assert.Equal(t, data.StatusFinished, sum.Status)
		assert.Equal(t, 6, sum.DoneCount)
		assert.True(t, sum.Done)

		stored, err := repo.GetTask(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, data.StatusFinished, stored.Status)
		assert.Equal(t, "100.00", stored.Progress)
		assert.Empty(t, stored.Errors)
	}
	assert.Equal(t, 12, srv.requests())

	sawFinished := 0
	for len(events) > 0 {
		if ev := <-events; ev.Status == data.StatusFinished {
			sawFinished++
		}
	}
	assert.Equal(t, 2, sawFinished)

	path, err := c.Export(ctx, res.Created[1].ID, "")
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Equal(t, "E2E Comic_chapters.epub", filepath.Base(path))
}

func TestE2E_ResumeAfterRestart(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping E2E test in short mode")
	}

	srv := newImageServer(t)
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "tasks.duckdb")

	repo, err := data.OpenRepository(dbPath)
	require.NoError(t, err)
	desc := testDescriptor(srv.URL, 2, 3, 2)
	encoded, err := desc.Encode()
	require.NoError(t, err)
	task, err := repo.CreateTask(context.Background(), &data.Task{
		Kind:       data.KindChapters,
		Status:     data.StatusDownloading, // left behind by a crashed process
		LocalPath:  filepath.Join(dir, "downloads", "Resume"),
		Descriptor: encoded,
		URL:        "https://example.com/comic/2",
		ComicName:  "Resume",
		Progress:   data.FormatProgress(2, 6),
		TotalCount: 6,
		DoneCount:  2,
	})
	require.NoError(t, err)

	fetcher := utils.NewFetcher(3, time.Second)
	fetcher.Backoff = 0
	worker := NewWorker(repo, fetcher, integrations.NewImageProcessor(integrations.DefaultImageSettings()),
		nil, WorkerConfig{Concurrency: 2, Retries: 3, Timeout: time.Second, CheckpointEvery: 1}, logging.Nop())
	s := NewScheduler(repo, worker, NewBroadcaster(), 1, logging.Nop())
	require.NoError(t, s.Load(context.Background()))
	s.Wait()

	sum, err := s.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, data.StatusFinished, sum.Status)
	assert.Equal(t, 6, sum.DoneCount)
	assert.Equal(t, 4, srv.requests())
	require.NoError(t, repo.Close())
}
