package models

import (
	"time"
)

// TwitterArchive is the staging record for an uploaded tweet archive.
// The raw body is kept only until every month chunk has been imported,
// then the row is purged.
type TwitterArchive struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	AccountID uint   `gorm:"not null;index" json:"account_id"`
	Body      []byte `gorm:"type:blob" json:"-"`

	// Chunks is the number of month files found in the archive; zero until
	// chunking has run.
	Chunks         int `gorm:"default:0" json:"chunks"`
	ChunksImported int `gorm:"default:0" json:"chunks_imported"`
	PostsImported  int `gorm:"default:0" json:"posts_imported"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Complete reports whether every chunk of the archive has been imported
func (a *TwitterArchive) Complete() bool {
	return a.Chunks > 0 && a.ChunksImported >= a.Chunks
}
