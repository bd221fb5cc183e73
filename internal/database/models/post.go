package models

import (
	"time"
)

// PostType classifies a post on its home service
type PostType string

const (
	PostTypeOriginal PostType = "tweet"
	PostTypeRetweet  PostType = "retweet"
	PostTypeReply    PostType = "reply"
)

// Post represents a single post owned by an account. Posts are immutable
// once imported except for the soft Deleted marker set after a successful
// remote deletion.
type Post struct {
	ID        uint     `gorm:"primaryKey" json:"id"`
	AccountID uint     `gorm:"not null;index;uniqueIndex:idx_account_remote,priority:1" json:"account_id"`
	RemoteID  string   `gorm:"size:64;not null;uniqueIndex:idx_account_remote,priority:2" json:"remote_id"`
	PostType  PostType `gorm:"size:20;default:'tweet'" json:"post_type"`

	// CreatedAt is the post's timestamp on the remote service, not the
	// import time. Eligibility ages are computed from it.
	CreatedAt time.Time `gorm:"index;not null" json:"created_at"`

	Favourite bool   `gorm:"default:false" json:"favourite"`
	Body      string `gorm:"type:text" json:"body"`

	Deleted   bool       `gorm:"default:false;index" json:"deleted"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`

	ImportedAt time.Time `gorm:"autoCreateTime" json:"imported_at"`
}
