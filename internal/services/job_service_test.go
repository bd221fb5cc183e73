package services

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nottavi/forget/internal/database/models"
)

func TestClaim_MovesJobsToRunningOnce(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	service := NewJobService(db)

	require.NoError(t, service.Enqueue(models.JobKindSweepAccount, 1, nil, time.Now().Add(-time.Minute)))
	require.NoError(t, service.Enqueue(models.JobKindSweepAccount, 2, nil, time.Now().Add(-time.Minute)))
	// Not yet due; must not be claimed
	require.NoError(t, service.Enqueue(models.JobKindSweepAccount, 3, nil, time.Now().Add(time.Hour)))

	claimed, err := service.Claim(10)
	require.NoError(t, err)
	assert.Len(t, claimed, 2)

	// A second claim finds nothing: the first one owns the jobs
	again, err := service.Claim(10)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestEnqueueSweepUnlessPending_Deduplicates(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	service := NewJobService(db)

	require.NoError(t, service.EnqueueSweepUnlessPending(5, time.Now()))
	require.NoError(t, service.EnqueueSweepUnlessPending(5, time.Now()))
	require.NoError(t, service.EnqueueSweepUnlessPending(5, time.Now()))

	pending, err := service.PendingCount()
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending, "one sweep per account at a time")
}

func TestRetry_ParksJobAfterMaxAttempts(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	service := NewJobService(db)
	require.NoError(t, service.Enqueue(models.JobKindSweepAccount, 1, nil, time.Now().Add(-time.Minute)))

	cause := errors.New("provider exploded")
	for attempt := 0; attempt < maxJobAttempts; attempt++ {
		claimed, err := service.Claim(1)
		require.NoError(t, err)
		if len(claimed) == 0 {
			// Still backing off; pull the job forward so the test does not sleep
			require.NoError(t, db.Model(&models.Job{}).
				Where("status = ?", models.JobStatusPending).
				Update("run_at", time.Now().Add(-time.Minute)).Error)
			claimed, err = service.Claim(1)
			require.NoError(t, err)
		}
		require.Len(t, claimed, 1)
		require.NoError(t, service.Retry(&claimed[0], cause, time.Millisecond))
	}

	var job models.Job
	require.NoError(t, db.First(&job).Error)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Contains(t, job.LastError, "provider exploded")
}

func TestReschedule_ResetsAttempts(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	service := NewJobService(db)
	require.NoError(t, service.Enqueue(models.JobKindSweepAccount, 1, nil, time.Now().Add(-time.Minute)))

	claimed, err := service.Claim(1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, 1, claimed[0].Attempts)

	// Rate limits are not failures: the attempt counter starts over
	runAt := time.Now().Add(15 * time.Minute)
	require.NoError(t, service.Reschedule(claimed[0].ID, runAt))

	var job models.Job
	require.NoError(t, db.First(&job, claimed[0].ID).Error)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, 0, job.Attempts)
}

func TestFail_ParksJobImmediately(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	service := NewJobService(db)
	require.NoError(t, service.Enqueue(models.JobKindImportChunk, 1, models.ImportChunkPayload{ArchiveID: 1, ChunkName: "2015_03.js"}, time.Now().Add(-time.Minute)))

	claimed, err := service.Claim(1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	require.NoError(t, service.Fail(claimed[0].ID, ErrArchiveCorrupt))

	var job models.Job
	require.NoError(t, db.First(&job, claimed[0].ID).Error)
	assert.Equal(t, models.JobStatusFailed, job.Status)
}

func TestPruneFinished_RemovesOldEntries(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	service := NewJobService(db)
	require.NoError(t, service.Enqueue(models.JobKindSweepAccount, 1, nil, time.Now().Add(-time.Minute)))

	claimed, err := service.Claim(1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.NoError(t, service.Complete(claimed[0].ID))

	// Younger than the cutoff: kept
	pruned, err := service.PruneFinished(time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 0, pruned)

	// Older than the cutoff: gone
	pruned, err = service.PruneFinished(time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, pruned)
}
