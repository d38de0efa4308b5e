package history

import (
	"context"
	"database/sql"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func writeTestImage(t *testing.T, width, height int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	path := filepath.Join(t.TempDir(), "page.jpg")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, jpeg.Encode(f, img, nil))
	return path
}

func TestJobLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	jobID, err := store.CreateJob(ctx, "scan.pdf")
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	require.NoError(t, store.AddPage(ctx, jobID, 1, writeTestImage(t, 800, 600), "page one text", 0.91))
	require.NoError(t, store.AddPage(ctx, jobID, 2, "", "page two text", 0.87))

	require.NoError(t, store.CompleteJob(ctx, jobID, "page one text\n\npage two text\n\n", 2))

	job, err := store.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, job.Status)
	assert.Equal(t, 2, job.TotalPages)
	require.NotNil(t, job.FullText)
	assert.Contains(t, *job.FullText, "page one text")
	require.NotNil(t, job.CompletedAt)
	assert.Nil(t, job.ErrorMessage)

	require.Len(t, job.Pages, 2)
	assert.Equal(t, 1, job.Pages[0].PageNumber)
	assert.Equal(t, 2, job.Pages[1].PageNumber)
	assert.InDelta(t, 0.91, job.Pages[0].Confidence, 1e-9)

	// First page had a real image, second did not.
	require.NotNil(t, job.Pages[0].ImagePath)
	assert.Equal(t, fmt.Sprintf("/static/images/%s/page_1.jpg", jobID), *job.Pages[0].ImagePath)
	assert.Nil(t, job.Pages[1].ImagePath)

	// Thumbnail landed on disk.
	_, err = os.Stat(filepath.Join(store.ImagesDir(), jobID, "page_1.jpg"))
	assert.NoError(t, err)
}

func TestFailJob(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	jobID, err := store.CreateJob(ctx, "broken.pdf")
	require.NoError(t, err)
	require.NoError(t, store.FailJob(ctx, jobID, "pdftoppm failed: exit status 1"))

	job, err := store.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)
	assert.Contains(t, *job.ErrorMessage, "pdftoppm")
}

func TestUpdateUnknownJob(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	assert.Error(t, store.CompleteJob(ctx, "missing", "", 0))
	assert.Error(t, store.FailJob(ctx, "missing", "boom"))
}

func TestListJobs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		_, err := store.CreateJob(ctx, fmt.Sprintf("doc-%02d.pdf", i))
		require.NoError(t, err)
	}
	_, err := store.CreateJob(ctx, "invoice.pdf")
	require.NoError(t, err)

	t.Run("pagination", func(t *testing.T) {
		list, err := store.ListJobs(ctx, 1, 10, "")
		require.NoError(t, err)
		assert.Equal(t, 26, list.Total)
		assert.Equal(t, 3, list.Pages)
		assert.Len(t, list.Jobs, 10)

		last, err := store.ListJobs(ctx, 3, 10, "")
		require.NoError(t, err)
		assert.Len(t, last.Jobs, 6)
	})

	t.Run("search by filename", func(t *testing.T) {
		list, err := store.ListJobs(ctx, 1, 10, "invoice")
		require.NoError(t, err)
		assert.Equal(t, 1, list.Total)
		require.Len(t, list.Jobs, 1)
		assert.Equal(t, "invoice.pdf", list.Jobs[0].Filename)
	})

	t.Run("bounds are clamped", func(t *testing.T) {
		list, err := store.ListJobs(ctx, 0, 1000, "")
		require.NoError(t, err)
		assert.Equal(t, 1, list.Page)
		assert.Equal(t, 20, list.Limit)
	})
}

func TestDeleteJob(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	jobID, err := store.CreateJob(ctx, "scan.pdf")
	require.NoError(t, err)
	require.NoError(t, store.AddPage(ctx, jobID, 1, writeTestImage(t, 640, 480), "text", 0.9))

	thumb := filepath.Join(store.ImagesDir(), jobID, "page_1.jpg")
	_, err = os.Stat(thumb)
	require.NoError(t, err)

	deleted, err := store.DeleteJob(ctx, jobID)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = store.GetJob(ctx, jobID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	_, err = os.Stat(thumb)
	assert.True(t, os.IsNotExist(err))

	deleted, err = store.DeleteJob(ctx, jobID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestGetStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	empty, err := store.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, empty)

	done, err := store.CreateJob(ctx, "done.pdf")
	require.NoError(t, err)
	require.NoError(t, store.AddPage(ctx, done, 1, "", "a", 0.8))
	require.NoError(t, store.AddPage(ctx, done, 2, "", "b", 0.6))
	require.NoError(t, store.CompleteJob(ctx, done, "a\n\nb\n\n", 2))

	failed, err := store.CreateJob(ctx, "bad.pdf")
	require.NoError(t, err)
	require.NoError(t, store.FailJob(ctx, failed, "boom"))

	stats, err := store.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalJobs)
	assert.Equal(t, 1, stats.CompletedJobs)
	assert.Equal(t, 1, stats.FailedJobs)
	assert.Equal(t, 2, stats.PagesProcessed)
	assert.InDelta(t, 0.7, stats.MeanConfidence, 1e-9)
}

func TestSaveThumbnail(t *testing.T) {
	t.Run("downscales wide images", func(t *testing.T) {
		src := writeTestImage(t, 1600, 1200)
		dest := filepath.Join(t.TempDir(), "thumb", "page_1.jpg")
		require.NoError(t, SaveThumbnail(src, dest))

		f, err := os.Open(dest)
		require.NoError(t, err)
		defer f.Close()
		cfg, _, err := image.DecodeConfig(f)
		require.NoError(t, err)
		assert.Equal(t, 400, cfg.Width)
		assert.Equal(t, 300, cfg.Height)
	})

	t.Run("keeps small images at original size", func(t *testing.T) {
		src := writeTestImage(t, 320, 200)
		dest := filepath.Join(t.TempDir(), "page_1.jpg")
		require.NoError(t, SaveThumbnail(src, dest))

		f, err := os.Open(dest)
		require.NoError(t, err)
		defer f.Close()
		cfg, _, err := image.DecodeConfig(f)
		require.NoError(t, err)
		assert.Equal(t, 320, cfg.Width)
	})

	t.Run("missing source", func(t *testing.T) {
		err := SaveThumbnail(filepath.Join(t.TempDir(), "absent.jpg"), filepath.Join(t.TempDir(), "t.jpg"))
		assert.Error(t, err)
	})
}
