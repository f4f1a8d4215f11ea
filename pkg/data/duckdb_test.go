package data

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *Repository {
	t.Helper()

	repo, err := OpenRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to init DB: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sampleTask(kind Kind, url string) *Task {
	desc := &Descriptor{Categories: []Category{{
		Label: string(kind),
		Groups: []Group{{
			Name:  "第1话",
			Href:  url + "&zjid=1",
			Items: []Item{{Src: "https://img.example/1.jpg"}, {Src: "https://img.example/2.jpg"}},
			Count: 2,
		}},
	}}}
	encoded, _ := desc.Encode()
	return &Task{
		Kind:       kind,
		Status:     StatusStopped,
		LocalPath:  "/tmp/comics/Test",
		Descriptor: encoded,
		URL:        url,
		ComicName:  "Test",
		Progress:   FormatProgress(0, 2),
		TotalCount: 2,
	}
}

func TestCreateAndGetTask(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	created, err := repo.CreateTask(ctx, sampleTask(KindChapters, "https://www.antbyw.com/plugin.php?kuid=1"))
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	got, err := repo.GetTask(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, KindChapters, got.Kind)
	assert.Equal(t, StatusStopped, got.Status)
	assert.Equal(t, 2, got.TotalCount)
	assert.Empty(t, got.Errors)

	desc, err := DecodeDescriptor(got.Descriptor)
	require.NoError(t, err)
	assert.Equal(t, 2, desc.TotalCount())
}

func TestCreateTaskAssignsDistinctIDs(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	a, err := repo.CreateTask(ctx, sampleTask(KindChapters, "https://a"))
	require.NoError(t, err)
	b, err := repo.CreateTask(ctx, sampleTask(KindVolumes, "https://a"))
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestGetMissingTask(t *testing.T) {
	repo := setupTestDB(t)

	_, err := repo.GetTask(context.Background(), 404)
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestListTasksOmitsDescriptor(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	for _, k := range CategoryKinds {
		_, err := repo.CreateTask(ctx, sampleTask(k, "https://x"))
		require.NoError(t, err)
	}

	list, err := repo.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, KindVolumes, list[0].Kind)
	assert.Equal(t, "Test", list[2].ComicName)
}

func TestFindTasksByKindAndURL(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	_, err := repo.CreateTask(ctx, sampleTask(KindChapters, "https://one"))
	require.NoError(t, err)
	_, err = repo.CreateTask(ctx, sampleTask(KindVolumes, "https://one"))
	require.NoError(t, err)

	found, err := repo.FindTasks(ctx, KindChapters, "https://one")
	require.NoError(t, err)
	assert.Len(t, found, 1)

	found, err = repo.FindTasks(ctx, KindExtras, "https://one")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestUpdateStatusAndProgress(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	task, err := repo.CreateTask(ctx, sampleTask(KindChapters, "https://p"))
	require.NoError(t, err)

	require.NoError(t, repo.UpdateStatus(ctx, task.ID, StatusDownloading))

	desc, err := DecodeDescriptor(task.Descriptor)
	require.NoError(t, err)
	desc.MarkDone(0, 0, 0)
	encoded, err := desc.Encode()
	require.NoError(t, err)

	require.NoError(t, repo.UpdateProgress(ctx, task.ID, Checkpoint{
		Progress:   FormatProgress(1, 2),
		DoneCount:  1,
		Descriptor: encoded,
	}))

	got, err := repo.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDownloading, got.Status)
	assert.Equal(t, "50.00", got.Progress)
	assert.Equal(t, 1, got.DoneCount)

	stored, err := DecodeDescriptor(got.Descriptor)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.DoneCount())
}

func TestFinalizeTask(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	task, err := repo.CreateTask(ctx, sampleTask(KindChapters, "https://f"))
	require.NoError(t, err)

	err = repo.FinalizeTask(ctx, task.ID, Checkpoint{Progress: "50.00", DoneCount: 1, Descriptor: task.Descriptor},
		[]string{"https://img.example/2.jpg: timeout"}, StatusFailed)
	require.NoError(t, err)

	got, err := repo.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, []string{"https://img.example/2.jpg: timeout"}, got.Errors)
	assert.False(t, got.Done)

	err = repo.FinalizeTask(ctx, task.ID, Checkpoint{Progress: "100.00", DoneCount: 2, Descriptor: task.Descriptor}, nil, StatusFinished)
	require.NoError(t, err)

	got, err = repo.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, got.Done)
	assert.Empty(t, got.Errors)
}

func TestDeleteTask(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	task, err := repo.CreateTask(ctx, sampleTask(KindChapters, "https://d"))
	require.NoError(t, err)

	require.NoError(t, repo.DeleteTask(ctx, task.ID))

	_, err = repo.GetTask(ctx, task.ID)
	assert.ErrorIs(t, err, ErrTaskNotFound)
	assert.ErrorIs(t, repo.DeleteTask(ctx, task.ID), ErrTaskNotFound)
}

func TestUpdateMissingTask(t *testing.T) {
	repo := setupTestDB(t)

	err := repo.UpdateStatus(context.Background(), 99, StatusWaiting)
	assert.ErrorIs(t, err, ErrTaskNotFound)
}
