package jobstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hunselvm/genai/internal/domain"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestFileStoreSaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)

	job, err := store.Create(domain.ModeImages,
		[]domain.ProcessingItem{{ID: "a", Prompt: "a castle on a cliff at golden hour", Count: 2}},
		map[string]string{"aspect_ratio": domain.ImageAspectLandscape})
	require.NoError(t, err)
	require.Len(t, job.JobID, 8)

	job.Status = domain.JobStatusRunning
	job.Update("a", domain.ProcessingResult{
		ID:     "a",
		Prompt: "a castle on a cliff at golden hour",
		Status: domain.StatusCompleted,
		URLs:   []string{"http://x/a.png"},
	})
	require.NoError(t, store.Save(job))

	loaded, err := store.Load(job.JobID)
	require.NoError(t, err)
	assert.Equal(t, job.Results, loaded.Results)
	assert.Equal(t, job.CompletedCount, loaded.CompletedCount)
	assert.Equal(t, job.FailedCount, loaded.FailedCount)
	assert.Equal(t, job.Settings, loaded.Settings)
}

func TestFileStoreLoadMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Load("nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestListResumableSkipsCorruptAndSortsNewestFirst(t *testing.T) {
	store := newTestStore(t)

	older, err := store.Create(domain.ModeVideos, []domain.ProcessingItem{{ID: "a"}}, nil)
	require.NoError(t, err)
	older.Status = domain.JobStatusRunning
	older.LastUpdated = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, store.Save(older))

	newer, err := store.Create(domain.ModeImages, []domain.ProcessingItem{{ID: "b"}}, nil)
	require.NoError(t, err)
	newer.Status = domain.JobStatusPaused
	newer.LastUpdated = time.Now().UTC()
	require.NoError(t, store.Save(newer))

	done, err := store.Create(domain.ModeImages, []domain.ProcessingItem{{ID: "c"}}, nil)
	require.NoError(t, err)
	done.Status = domain.JobStatusCompleted
	require.NoError(t, store.Save(done))

	// A truncated record must not abort the scan.
	require.NoError(t, os.WriteFile(filepath.Join(store.dir, "corrupt.json"), []byte(`{"job_id": "cor`), 0o644))

	resumable, err := store.ListResumable()
	require.NoError(t, err)
	require.Len(t, resumable, 2)
	assert.Equal(t, newer.JobID, resumable[0].JobID)
	assert.Equal(t, older.JobID, resumable[1].JobID)
}

func TestDeleteJob(t *testing.T) {
	store := newTestStore(t)
	job, err := store.Create(domain.ModeImages, []domain.ProcessingItem{{ID: "a"}}, nil)
	require.NoError(t, err)

	require.NoError(t, store.Delete(job.JobID))
	assert.ErrorIs(t, store.Delete(job.JobID), ErrJobNotFound)
}

func TestCleanupOlderThan(t *testing.T) {
	store := newTestStore(t)

	old, err := store.Create(domain.ModeImages, []domain.ProcessingItem{{ID: "a"}}, nil)
	require.NoError(t, err)
	fresh, err := store.Create(domain.ModeImages, []domain.ProcessingItem{{ID: "b"}}, nil)
	require.NoError(t, err)

	// Age the first record's file by backdating its mtime.
	oldPath := store.path(old.JobID)
	past := time.Now().Add(-8 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(oldPath, past, past))

	deleted, err := store.CleanupOlderThan(7 * 24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = store.Load(old.JobID)
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = store.Load(fresh.JobID)
	assert.NoError(t, err)
}
