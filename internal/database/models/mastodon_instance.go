package models

import (
	"time"
)

// MastodonInstance holds the app registration for one Mastodon instance.
// Created lazily the first time somebody tries to log in from that
// instance; Popularity is bumped on every reuse so the login page can
// suggest common instances.
type MastodonInstance struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	Domain string `gorm:"size:255;not null;uniqueIndex" json:"domain"`

	// Client credentials issued by the instance, encrypted at rest
	ClientIDEncrypted     string `gorm:"size:1000" json:"-"`
	ClientSecretEncrypted string `gorm:"size:1000" json:"-"`

	Popularity int `gorm:"default:1" json:"popularity"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
