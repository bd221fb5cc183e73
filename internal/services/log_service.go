package services

import (
	"encoding/json"
	"strings"

	"github.com/nottavi/forget/internal/database/models"
	"gorm.io/gorm"
)

// LogService persists structured events to the logs table. It doubles as
// the error-reporting sink for the sweep and import pipelines: failures
// land here as queryable rows rather than only in the process log.
type LogService struct {
	db       *gorm.DB
	logLevel models.LogLevel
}

// NewLogService creates a new LogService instance
func NewLogService(db *gorm.DB) *LogService {
	return &LogService{
		db:       db,
		logLevel: models.LogLevelInfo, // Default log level
	}
}

// NewLogServiceWithLevel creates a new LogService instance with specified log level
func NewLogServiceWithLevel(db *gorm.DB, level string) *LogService {
	return &LogService{
		db:       db,
		logLevel: parseLogLevel(level),
	}
}

// parseLogLevel converts a string to LogLevel
func parseLogLevel(level string) models.LogLevel {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return models.LogLevelDebug
	case "INFO":
		return models.LogLevelInfo
	case "WARN", "WARNING":
		return models.LogLevelWarn
	case "ERROR":
		return models.LogLevelError
	default:
		return models.LogLevelInfo
	}
}

// shouldLog checks if a log entry should be recorded based on log level
func (s *LogService) shouldLog(level models.LogLevel) bool {
	levelPriority := map[models.LogLevel]int{
		models.LogLevelDebug: 0,
		models.LogLevelInfo:  1,
		models.LogLevelWarn:  2,
		models.LogLevelError: 3,
	}

	return levelPriority[level] >= levelPriority[s.logLevel]
}

// LogEntry represents a log entry to be created
type LogEntry struct {
	AccountID uint
	Level     models.LogLevel
	Module    models.LogModule
	Action    string
	Message   string
	Details   interface{} // Will be serialized to JSON
}

// Log creates a new log entry
func (s *LogService) Log(entry LogEntry) error {
	// Check if this log level should be recorded
	if !s.shouldLog(entry.Level) {
		return nil
	}

	var detailsJSON string
	if entry.Details != nil {
		bytes, err := json.Marshal(entry.Details)
		if err != nil {
			detailsJSON = "{}"
		} else {
			detailsJSON = string(bytes)
		}
	}

	row := &models.Log{
		AccountID: entry.AccountID,
		Level:     string(entry.Level),
		Module:    string(entry.Module),
		Action:    entry.Action,
		Message:   entry.Message,
		Details:   detailsJSON,
	}

	return s.db.Create(row).Error
}

// LogInfo creates an INFO level log entry
func (s *LogService) LogInfo(accountID uint, module models.LogModule, action, message string, details interface{}) error {
	return s.Log(LogEntry{
		AccountID: accountID,
		Level:     models.LogLevelInfo,
		Module:    module,
		Action:    action,
		Message:   message,
		Details:   details,
	})
}

// LogWarn creates a WARN level log entry
func (s *LogService) LogWarn(accountID uint, module models.LogModule, action, message string, details interface{}) error {
	return s.Log(LogEntry{
		AccountID: accountID,
		Level:     models.LogLevelWarn,
		Module:    module,
		Action:    action,
		Message:   message,
		Details:   details,
	})
}

// LogError creates an ERROR level log entry
func (s *LogService) LogError(accountID uint, module models.LogModule, action, message string, details interface{}) error {
	return s.Log(LogEntry{
		AccountID: accountID,
		Level:     models.LogLevelError,
		Module:    module,
		Action:    action,
		Message:   message,
		Details:   details,
	})
}

// SweepDetails records the outcome of one deletion pass
type SweepDetails struct {
	Deleted   int    `json:"deleted"`
	Remaining int    `json:"remaining"`
	Failures  int    `json:"failures"`
	Error     string `json:"error,omitempty"`
}

// LogSweepCompleted logs a completed deletion pass
func (s *LogService) LogSweepCompleted(accountID uint, deleted, failures int) error {
	return s.LogInfo(accountID, models.LogModuleSweep, "pass_completed", "Deletion pass completed", SweepDetails{
		Deleted:  deleted,
		Failures: failures,
	})
}

// LogSweepInterrupted logs a pass stopped early by rate limiting
func (s *LogService) LogSweepInterrupted(accountID uint, deleted, remaining int) error {
	return s.LogWarn(accountID, models.LogModuleSweep, "pass_interrupted", "Deletion pass rate limited, remainder rescheduled", SweepDetails{
		Deleted:   deleted,
		Remaining: remaining,
	})
}

// LogSweepFailure logs a per-post deletion failure within a pass
func (s *LogService) LogSweepFailure(accountID uint, postRemoteID string, err error) error {
	return s.LogError(accountID, models.LogModuleSweep, "delete_failed", "Failed to delete post "+postRemoteID, SweepDetails{
		Failures: 1,
		Error:    err.Error(),
	})
}

// ArchiveDetails records archive upload/import events
type ArchiveDetails struct {
	ArchiveID uint   `json:"archive_id"`
	Chunk     string `json:"chunk,omitempty"`
	Chunks    int    `json:"chunks,omitempty"`
	Imported  int    `json:"imported,omitempty"`
	Skipped   int    `json:"skipped,omitempty"`
	Error     string `json:"error,omitempty"`
}

// LogArchiveChunked logs a successfully chunked archive upload
func (s *LogService) LogArchiveChunked(accountID, archiveID uint, chunks int) error {
	return s.LogInfo(accountID, models.LogModuleArchive, "chunked", "Archive accepted", ArchiveDetails{
		ArchiveID: archiveID,
		Chunks:    chunks,
	})
}

// LogChunkImported logs one imported month chunk
func (s *LogService) LogChunkImported(accountID, archiveID uint, chunk string, imported int) error {
	return s.LogInfo(accountID, models.LogModuleArchive, "chunk_imported", "Archive chunk imported", ArchiveDetails{
		ArchiveID: archiveID,
		Chunk:     chunk,
		Imported:  imported,
	})
}

// LogTweetsSkipped logs tweets dropped from a chunk because their
// timestamps could not be parsed
func (s *LogService) LogTweetsSkipped(accountID, archiveID uint, chunk string, skipped int) error {
	return s.LogWarn(accountID, models.LogModuleArchive, "tweets_skipped", "Tweets with unreadable timestamps were skipped", ArchiveDetails{
		ArchiveID: archiveID,
		Chunk:     chunk,
		Skipped:   skipped,
	})
}

// LogImportFailure logs a failed chunk import
func (s *LogService) LogImportFailure(accountID, archiveID uint, chunk string, err error) error {
	return s.LogError(accountID, models.LogModuleArchive, "chunk_failed", "Archive chunk import failed", ArchiveDetails{
		ArchiveID: archiveID,
		Chunk:     chunk,
		Error:     err.Error(),
	})
}

// FetchDetails records the outcome of one timeline fetch
type FetchDetails struct {
	Fetched int `json:"fetched"`
}

// LogFetchCompleted logs a completed timeline fetch
func (s *LogService) LogFetchCompleted(accountID uint, fetched int) error {
	return s.LogInfo(accountID, models.LogModuleFetch, "fetch_completed", "Timeline fetch completed", FetchDetails{
		Fetched: fetched,
	})
}

// PolicyChangeDetails records enable/disable and settings events
type PolicyChangeDetails struct {
	ScreenName string `json:"screen_name"`
	Field      string `json:"field,omitempty"`
	NewValue   string `json:"new_value,omitempty"`
}

// LogPolicyStatusChanged logs an enable/disable transition
func (s *LogService) LogPolicyStatusChanged(accountID uint, screenName string, enabled bool) error {
	status := "disabled"
	if enabled {
		status = "enabled"
	}
	return s.LogInfo(accountID, models.LogModuleAccount, "status_change", "Policy "+status, PolicyChangeDetails{
		ScreenName: screenName,
		Field:      "policy_enabled",
		NewValue:   status,
	})
}

// LogLogin logs a login attempt
func (s *LogService) LogLogin(accountID uint, screenName, clientIP string, success bool, err error) error {
	details := map[string]interface{}{
		"screen_name": screenName,
		"client_ip":   clientIP,
		"success":     success,
	}
	if err != nil {
		details["error"] = err.Error()
	}

	if success {
		return s.LogInfo(accountID, models.LogModuleAuth, "login", "Login successful", details)
	}
	return s.LogWarn(accountID, models.LogModuleAuth, "login", "Login failed", details)
}

// GetLogs retrieves log entries for an account, newest first
func (s *LogService) GetLogs(accountID uint, limit int) ([]models.Log, error) {
	if limit <= 0 {
		limit = 100
	}
	var logs []models.Log
	err := s.db.Where("account_id = ?", accountID).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}
