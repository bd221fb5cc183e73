package models

import (
	"time"
)

// Session is a browser session bound to an account. The ID is an opaque
// random token handed to the client as a cookie. Sessions are a weak
// reference: deleting one never deletes the account behind it.
type Session struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	AccountID   uint      `gorm:"not null;index" json:"account_id"`
	LastTouched time.Time `gorm:"index" json:"last_touched"`
	CreatedAt   time.Time `json:"created_at"`

	Account *Account `gorm:"foreignKey:AccountID" json:"account,omitempty"`
}
