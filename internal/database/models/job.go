package models

import (
	"time"
)

// JobKind identifies the work a queue entry carries
type JobKind string

const (
	JobKindSweepAccount JobKind = "sweep_account"
	JobKindImportChunk  JobKind = "import_chunk"
	JobKindFetchAccount JobKind = "fetch_account"
)

// JobStatus is the lifecycle state of a queue entry
type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusFailed  JobStatus = "failed"
)

// Job is a durable work-queue entry consumed by the worker pool with
// at-least-once semantics. Handlers must be idempotent: a job may run
// again after a crash mid-execution.
type Job struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Kind      JobKind   `gorm:"size:30;not null;index" json:"kind"`
	AccountID uint      `gorm:"not null;index" json:"account_id"`
	Payload   string    `gorm:"type:text" json:"payload"` // JSON, schema depends on Kind
	Status    JobStatus `gorm:"size:15;not null;default:'pending';index:idx_status_runat" json:"status"`

	// RunAt lets retries and rate-limit reschedules push a job into the
	// future without losing it.
	RunAt     time.Time `gorm:"index:idx_status_runat" json:"run_at"`
	Attempts  int       `gorm:"default:0" json:"attempts"`
	LastError string    `gorm:"type:text" json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ImportChunkPayload is the payload for JobKindImportChunk entries
type ImportChunkPayload struct {
	ArchiveID uint   `json:"archive_id"`
	ChunkName string `json:"chunk_name"`
}
