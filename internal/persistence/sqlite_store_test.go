package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/MimeLyc/rembg-studio/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore_JobsRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewSQLiteStore(filepath.Join(dir, "rembg.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	job := &jobs.Job{
		ID:        "job-1",
		Mode:      jobs.ModeDirectory,
		Source:    "manual",
		Input:     "/photos/in",
		OutputDir: "/photos/out",
		Options: jobs.Options{
			Model:          "u2net",
			UseGPU:         true,
			BGColor:        [3]int{0, 0, 0},
			FilenameFormat: "{name}_no_bg.png",
		},
		Status:    jobs.StatusSucceeded,
		Total:     3,
		Succeeded: 2,
		Outputs:   []string{"/photos/out/a_no_bg.png", "/photos/out/b_no_bg.png"},
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		UpdatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, store.UpsertJob(ctx, job))

	all, err := store.LoadJobs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, job.ID, all[0].ID)
	assert.Equal(t, job.Mode, all[0].Mode)
	assert.Equal(t, job.Status, all[0].Status)
	assert.Equal(t, job.Options, all[0].Options)
	assert.Equal(t, job.Outputs, all[0].Outputs)
	assert.Equal(t, 3, all[0].Total)
	assert.Equal(t, 2, all[0].Succeeded)
}

func TestSQLiteStore_UpsertUpdatesExisting(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewSQLiteStore(filepath.Join(dir, "rembg.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	job := &jobs.Job{
		ID:        "job-1",
		Mode:      jobs.ModeImage,
		Input:     "/photos/cat.jpg",
		Status:    jobs.StatusRunning,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.UpsertJob(ctx, job))

	job.Status = jobs.StatusSucceeded
	job.Total = 1
	job.Succeeded = 1
	job.Outputs = []string{"/photos/cat_no_bg.png"}
	job.UpdatedAt = time.Now().UTC()
	require.NoError(t, store.UpsertJob(ctx, job))

	all, err := store.LoadJobs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, jobs.StatusSucceeded, all[0].Status)
	assert.Equal(t, []string{"/photos/cat_no_bg.png"}, all[0].Outputs)
}

func TestSQLiteStore_MarkInterrupted(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewSQLiteStore(filepath.Join(dir, "rembg.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	for i, status := range []jobs.Status{jobs.StatusRunning, jobs.StatusSucceeded} {
		require.NoError(t, store.UpsertJob(ctx, &jobs.Job{
			ID:        "job-" + string(rune('a'+i)),
			Mode:      jobs.ModeImage,
			Input:     "/photos/cat.jpg",
			Status:    status,
			CreatedAt: time.Now().UTC().Add(time.Duration(i) * time.Second),
			UpdatedAt: time.Now().UTC(),
		}))
	}

	n, err := store.MarkInterrupted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all, err := store.LoadJobs(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, jobs.StatusFailed, all[0].Status)
	assert.Equal(t, "interrupted by restart", all[0].Error)
	assert.Equal(t, jobs.StatusSucceeded, all[1].Status)
}

func TestSQLiteStore_DeleteJob(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewSQLiteStore(filepath.Join(dir, "rembg.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	require.NoError(t, store.UpsertJob(ctx, &jobs.Job{
		ID:        "job-1",
		Mode:      jobs.ModeImage,
		Input:     "/photos/cat.jpg",
		Status:    jobs.StatusCancelled,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}))
	require.NoError(t, store.DeleteJob(ctx, "job-1"))

	all, err := store.LoadJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
