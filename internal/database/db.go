package database

import (
	"os"
	"path/filepath"

	"github.com/nottavi/forget/internal/database/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Initialize creates and returns a database connection
func Initialize(dbPath string) (*gorm.DB, error) {
	// Ensure the directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	// Configure GORM logger
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	// Open SQLite database
	db, err := gorm.Open(sqlite.Open(dbPath), gormConfig)
	if err != nil {
		return nil, err
	}

	// Run migrations
	if err := runMigrations(db); err != nil {
		return nil, err
	}

	return db, nil
}

// runMigrations runs all database migrations
func runMigrations(db *gorm.DB) error {
	// Auto-migrate all models
	if err := db.AutoMigrate(
		&models.Account{},
		&models.Post{},
		&models.Session{},
		&models.TwitterArchive{},
		&models.MastodonInstance{},
		&models.Job{},
		&models.Log{},
	); err != nil {
		return err
	}

	// 旧库修复：policy 字段在早期版本缺省值不同
	if db.Migrator().HasTable(&models.Account{}) {
		if !db.Migrator().HasColumn(&models.Account{}, "dormant") {
			db.Migrator().AddColumn(&models.Account{}, "dormant")
		}
		if !db.Migrator().HasColumn(&models.Account{}, "instance_domain") {
			db.Migrator().AddColumn(&models.Account{}, "instance_domain")
		}
	}

	// Requeue jobs that were mid-flight when the previous process died.
	// Running jobs are only ever owned by this single process, so anything
	// still marked running at startup is an orphan.
	db.Model(&models.Job{}).
		Where("status = ?", models.JobStatusRunning).
		Update("status", models.JobStatusPending)

	return nil
}
