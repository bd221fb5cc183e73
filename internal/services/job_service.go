package services

import (
	"encoding/json"
	"time"

	"github.com/nottavi/forget/internal/database/models"
	"gorm.io/gorm"
)

// maxJobAttempts caps retries before a job is parked as failed
const maxJobAttempts = 5

// JobService is the durable work queue. Entries survive restarts; the
// worker pool claims them with at-least-once delivery, so every handler
// behind a job kind must be idempotent.
type JobService struct {
	db *gorm.DB
}

// NewJobService creates a new JobService instance
func NewJobService(db *gorm.DB) *JobService {
	return &JobService{db: db}
}

// Enqueue adds a queue entry. runAt in the future defers execution.
func (s *JobService) Enqueue(kind models.JobKind, accountID uint, payload interface{}, runAt time.Time) error {
	var payloadJSON string
	if payload != nil {
		bytes, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		payloadJSON = string(bytes)
	}

	return s.db.Create(&models.Job{
		Kind:      kind,
		AccountID: accountID,
		Payload:   payloadJSON,
		Status:    models.JobStatusPending,
		RunAt:     runAt,
	}).Error
}

// EnqueueUnlessPending enqueues a kind for an account unless a copy is
// already waiting or running, so a slow run is not stacked behind
// another copy of itself.
func (s *JobService) EnqueueUnlessPending(kind models.JobKind, accountID uint, runAt time.Time) error {
	var n int64
	err := s.db.Model(&models.Job{}).
		Where("account_id = ? AND kind = ? AND status IN ?",
			accountID, kind,
			[]models.JobStatus{models.JobStatusPending, models.JobStatusRunning}).
		Count(&n).Error
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	return s.Enqueue(kind, accountID, nil, runAt)
}

// EnqueueSweepUnlessPending enqueues a deletion pass for an account
// unless one is already queued
func (s *JobService) EnqueueSweepUnlessPending(accountID uint, runAt time.Time) error {
	return s.EnqueueUnlessPending(models.JobKindSweepAccount, accountID, runAt)
}

// Claim atomically moves up to limit due jobs from pending to running
// and returns them. The transition happens inside one transaction so two
// workers never claim the same entry.
func (s *JobService) Claim(limit int) ([]models.Job, error) {
	var claimed []models.Job
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var batch []models.Job
		if err := tx.Where("status = ? AND run_at <= ?", models.JobStatusPending, time.Now()).
			Order("run_at ASC").
			Limit(limit).
			Find(&batch).Error; err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		ids := make([]uint, len(batch))
		for i, j := range batch {
			ids[i] = j.ID
		}
		if err := tx.Model(&models.Job{}).
			Where("id IN ? AND status = ?", ids, models.JobStatusPending).
			Updates(map[string]interface{}{
				"status":   models.JobStatusRunning,
				"attempts": gorm.Expr("attempts + 1"),
			}).Error; err != nil {
			return err
		}
		for i := range batch {
			batch[i].Status = models.JobStatusRunning
			batch[i].Attempts++
		}
		claimed = batch
		return nil
	})
	return claimed, err
}

// Complete marks a job done
func (s *JobService) Complete(jobID uint) error {
	return s.db.Model(&models.Job{}).
		Where("id = ?", jobID).
		Update("status", models.JobStatusDone).Error
}

// Retry reschedules a running job. Attempts past the cap park the job as
// failed instead; the backoff doubles per attempt.
func (s *JobService) Retry(job *models.Job, cause error, baseDelay time.Duration) error {
	if job.Attempts >= maxJobAttempts {
		return s.db.Model(&models.Job{}).
			Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"status":     models.JobStatusFailed,
				"last_error": cause.Error(),
			}).Error
	}

	// 指数退避：第 n 次尝试等待 baseDelay * 2^(n-1)
	delay := baseDelay
	for i := 1; i < job.Attempts; i++ {
		delay *= 2
	}

	return s.db.Model(&models.Job{}).
		Where("id = ?", job.ID).
		Updates(map[string]interface{}{
			"status":     models.JobStatusPending,
			"run_at":     time.Now().Add(delay),
			"last_error": cause.Error(),
		}).Error
}

// Fail parks a job as permanently failed, bypassing retry. Used when the
// cause cannot be cured by waiting (a corrupt archive chunk, a deleted
// account).
func (s *JobService) Fail(jobID uint, cause error) error {
	return s.db.Model(&models.Job{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"status":     models.JobStatusFailed,
			"last_error": cause.Error(),
		}).Error
}

// Reschedule pushes a running job back to pending at a fixed time
// without counting it as a failure (used when a pass is rate limited).
func (s *JobService) Reschedule(jobID uint, runAt time.Time) error {
	return s.db.Model(&models.Job{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"status":   models.JobStatusPending,
			"run_at":   runAt,
			"attempts": 0,
		}).Error
}

// PruneFinished removes done and failed entries older than the cutoff so
// the queue table does not grow without bound
func (s *JobService) PruneFinished(olderThan time.Time) (int64, error) {
	res := s.db.Where("status IN ? AND updated_at < ?",
		[]models.JobStatus{models.JobStatusDone, models.JobStatusFailed}, olderThan).
		Delete(&models.Job{})
	return res.RowsAffected, res.Error
}

// PendingCount returns how many entries are waiting, for observability
func (s *JobService) PendingCount() (int64, error) {
	var n int64
	err := s.db.Model(&models.Job{}).
		Where("status = ?", models.JobStatusPending).
		Count(&n).Error
	return n, err
}
