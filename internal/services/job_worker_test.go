package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nottavi/forget/internal/database/models"
	"github.com/nottavi/forget/internal/provider"
)

func newWorkerFixture(t *testing.T, db *gorm.DB, fetcher provider.Fetcher) (*JobWorker, *JobService, *AccountService) {
	accountService := NewAccountService(db, testEncryptionKey)
	postService := NewPostService(db)
	logService := NewLogService(db)
	jobService := NewJobService(db)
	archiveService := NewArchiveService(db, postService, jobService)

	fetchers := map[models.Service]provider.Fetcher{}
	if fetcher != nil {
		fetchers[models.ServiceTwitter] = fetcher
	}
	fetchService := NewFetchService(accountService, postService, logService, fetchers)

	worker := NewJobWorker(jobService, accountService, nil, fetchService, archiveService, logService, 1)
	return worker, jobService, accountService
}

func claimOne(t *testing.T, jobService *JobService) models.Job {
	claimed, err := jobService.Claim(1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	return claimed[0]
}

func TestRunImportChunk_MissingChunkParksJobAndLogs(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	worker, jobService, accountService := newWorkerFixture(t, db, nil)
	account := createTestAccount(t, accountService)

	archiveService := NewArchiveService(db, NewPostService(db), jobService)
	body := buildArchive(t, map[string]string{"2015_03.js": marchChunk})
	archive, err := archiveService.Upload(account.ID, body)
	require.NoError(t, err)

	// A payload naming a chunk the archive never contained cannot be
	// cured by retrying
	payload := models.ImportChunkPayload{ArchiveID: archive.ID, ChunkName: "1999_12.js"}
	require.NoError(t, jobService.Enqueue(models.JobKindImportChunk, account.ID, payload, time.Now().Add(-time.Minute)))

	var job models.Job
	require.NoError(t, db.Where("kind = ? AND payload LIKE ?", models.JobKindImportChunk, "%1999_12%").First(&job).Error)

	require.NoError(t, worker.runImportChunk(&job))

	var got models.Job
	require.NoError(t, db.First(&got, job.ID).Error)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Contains(t, got.LastError, "chunk not found")

	// The failure must land in the account's activity log, not just the
	// process log
	var n int64
	require.NoError(t, db.Model(&models.Log{}).
		Where("account_id = ? AND action = ?", account.ID, "chunk_failed").
		Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestRunFetch_StoresPostsAndCompletes(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	fetcher := &scriptedFetcher{pages: [][]provider.FetchedPost{
		{fetchedPost("801", 48 * time.Hour), fetchedPost("800", 72 * time.Hour)},
	}}
	worker, jobService, accountService := newWorkerFixture(t, db, fetcher)
	account := createTestAccount(t, accountService)

	require.NoError(t, jobService.EnqueueUnlessPending(models.JobKindFetchAccount, account.ID, time.Now().Add(-time.Minute)))
	job := claimOne(t, jobService)

	require.NoError(t, worker.runFetch(&job))

	var got models.Job
	require.NoError(t, db.First(&got, job.ID).Error)
	assert.Equal(t, models.JobStatusDone, got.Status)

	var n int64
	require.NoError(t, db.Model(&models.Post{}).Where("account_id = ?", account.ID).Count(&n).Error)
	assert.EqualValues(t, 2, n)
}

func TestRunFetch_DormantAccountCompletesWithoutFetching(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	fetcher := &scriptedFetcher{}
	worker, jobService, accountService := newWorkerFixture(t, db, fetcher)
	account := createTestAccount(t, accountService)
	require.NoError(t, accountService.MarkDormant(account.ID))

	require.NoError(t, jobService.EnqueueUnlessPending(models.JobKindFetchAccount, account.ID, time.Now().Add(-time.Minute)))
	job := claimOne(t, jobService)

	require.NoError(t, worker.runFetch(&job))

	var got models.Job
	require.NoError(t, db.First(&got, job.ID).Error)
	assert.Equal(t, models.JobStatusDone, got.Status, "a dormant account's fetch is dropped, not retried")
	assert.Equal(t, 0, fetcher.calls)
}
