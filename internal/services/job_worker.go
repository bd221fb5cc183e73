package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nottavi/forget/internal/database/models"
)

const (
	// jobPollInterval is how often idle workers check the queue
	jobPollInterval = 5 * time.Second
	// jobRetryBaseDelay seeds the exponential backoff for failed jobs
	jobRetryBaseDelay = 30 * time.Second
	// rateLimitBackoff is how long a rate-limited sweep waits before its
	// remainder is retried
	rateLimitBackoff = 15 * time.Minute
)

// JobWorker drains the durable queue. It claims due entries in batches
// and dispatches them by kind; handlers are idempotent so a crashed
// worker's requeued jobs can safely run again.
type JobWorker struct {
	jobService     *JobService
	accountService *AccountService
	sweepService   *SweepService
	fetchService   *FetchService
	archiveService *ArchiveService
	logService     *LogService

	workers  int
	stopChan chan struct{}
	running  bool
	mu       sync.Mutex
	wg       sync.WaitGroup
}

// NewJobWorker creates a new worker pool
func NewJobWorker(jobService *JobService, accountService *AccountService,
	sweepService *SweepService, fetchService *FetchService,
	archiveService *ArchiveService, logService *LogService, workers int) *JobWorker {
	if workers <= 0 {
		workers = 2
	}
	return &JobWorker{
		jobService:     jobService,
		accountService: accountService,
		sweepService:   sweepService,
		fetchService:   fetchService,
		archiveService: archiveService,
		logService:     logService,
		workers:        workers,
		stopChan:       make(chan struct{}),
	}
}

// Start launches the worker goroutines
func (w *JobWorker) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	log.Printf("[JobWorker] Starting %d workers", w.workers)

	jobs := make(chan models.Job)

	// 单个分发协程领取任务，多个工作协程执行
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer close(jobs)

		ticker := time.NewTicker(jobPollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-w.stopChan:
				return
			case <-ticker.C:
			}

			claimed, err := w.jobService.Claim(w.workers)
			if err != nil {
				log.Printf("[JobWorker] Claim failed: %v", err)
				continue
			}
			for _, job := range claimed {
				select {
				case jobs <- job:
				case <-w.stopChan:
					// 未执行的任务留在 running 状态，启动时会被重新入队
					return
				}
			}
		}
	}()

	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			for job := range jobs {
				w.execute(job)
			}
		}()
	}
}

// Stop shuts the pool down and waits for in-flight jobs to finish
func (w *JobWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.stopChan)
	w.running = false
	w.mu.Unlock()

	w.wg.Wait()
	log.Println("[JobWorker] Stopped")
}

func (w *JobWorker) execute(job models.Job) {
	var err error
	switch job.Kind {
	case models.JobKindSweepAccount:
		err = w.runSweep(&job)
	case models.JobKindFetchAccount:
		err = w.runFetch(&job)
	case models.JobKindImportChunk:
		err = w.runImportChunk(&job)
	default:
		err = fmt.Errorf("unknown job kind %q", job.Kind)
	}

	if err != nil {
		log.Printf("[JobWorker] Job %d (%s, account %d) attempt %d failed: %v",
			job.ID, job.Kind, job.AccountID, job.Attempts, err)
		if retryErr := w.jobService.Retry(&job, err, jobRetryBaseDelay); retryErr != nil {
			log.Printf("[JobWorker] Failed to retry job %d: %v", job.ID, retryErr)
		}
	}
}

// runSweep executes one deletion pass. A rate-limited pass is not a
// failure: the job goes back to pending at a later time with its attempt
// counter reset, and already-deleted posts stay deleted.
func (w *JobWorker) runSweep(job *models.Job) error {
	account, err := w.accountService.GetAccountByID(job.AccountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return w.jobService.Fail(job.ID, err)
		}
		return err
	}

	// 账户在排队期间被关闭或休眠时直接完成任务
	if !account.PolicyEnabled || account.Dormant {
		return w.jobService.Complete(job.ID)
	}

	result, err := w.sweepService.RunPass(context.Background(), account)
	if err != nil {
		return err
	}

	if result.RateLimited {
		log.Printf("[JobWorker] Sweep for account %d rate limited after %d deletions, %d remaining",
			account.ID, result.Deleted, result.Remaining)
		return w.jobService.Reschedule(job.ID, time.Now().Add(rateLimitBackoff))
	}

	return w.jobService.Complete(job.ID)
}

// runFetch pulls the account's timeline into the post store. The fetch
// walk upserts page by page, so a retried job only re-reads what the
// previous attempt already stored.
func (w *JobWorker) runFetch(job *models.Job) error {
	account, err := w.accountService.GetAccountByID(job.AccountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return w.jobService.Fail(job.ID, err)
		}
		return err
	}

	// 休眠账户拿不到可用凭证，等重新登录后再抓取
	if account.Dormant {
		return w.jobService.Complete(job.ID)
	}

	count, err := w.fetchService.FetchAccount(context.Background(), account)
	if err != nil {
		return err
	}

	log.Printf("[JobWorker] Fetched %d new posts for account %d", count, account.ID)
	return w.jobService.Complete(job.ID)
}

// runImportChunk imports one archive month file. Corrupt chunks are
// parked immediately since retrying cannot fix the payload.
func (w *JobWorker) runImportChunk(job *models.Job) error {
	var payload models.ImportChunkPayload
	if err := json.Unmarshal([]byte(job.Payload), &payload); err != nil {
		w.logService.LogImportFailure(job.AccountID, 0, "", err)
		return w.jobService.Fail(job.ID, err)
	}

	count, err := w.archiveService.ImportChunk(payload.ArchiveID, payload.ChunkName)
	if err != nil {
		if errors.Is(err, ErrArchiveCorrupt) || errors.Is(err, ErrChunkNotFound) || errors.Is(err, ErrArchiveNotFound) {
			w.logService.LogImportFailure(job.AccountID, payload.ArchiveID, payload.ChunkName, err)
			return w.jobService.Fail(job.ID, err)
		}
		return err
	}

	log.Printf("[JobWorker] Imported chunk %s of archive %d: %d new posts",
		payload.ChunkName, payload.ArchiveID, count)
	return w.jobService.Complete(job.ID)
}
