package models

import (
	"time"
)

// Service identifies which social network an account belongs to
type Service string

const (
	ServiceTwitter  Service = "twitter"
	ServiceMastodon Service = "mastodon"
)

// IntervalScale is the unit a policy interval is expressed in
type IntervalScale string

const (
	ScaleMinutes IntervalScale = "minutes"
	ScaleHours   IntervalScale = "hours"
	ScaleDays    IntervalScale = "days"
	ScaleWeeks   IntervalScale = "weeks"
	ScaleMonths  IntervalScale = "months"
	ScaleYears   IntervalScale = "years"
)

// ScaleDurations maps each interval scale to its base duration.
// Months and years use calendar approximations, same as the web UI shows.
var ScaleDurations = map[IntervalScale]time.Duration{
	ScaleMinutes: time.Minute,
	ScaleHours:   time.Hour,
	ScaleDays:    24 * time.Hour,
	ScaleWeeks:   7 * 24 * time.Hour,
	ScaleMonths:  30 * 24 * time.Hour,
	ScaleYears:   365 * 24 * time.Hour,
}

// Account represents a linked social media account and its retention policy
type Account struct {
	ID         uint    `gorm:"primaryKey" json:"id"`
	Service    Service `gorm:"size:20;not null;index:idx_service_remote,unique" json:"service"`
	RemoteID   string  `gorm:"size:64;not null;index:idx_service_remote,unique" json:"remote_id"`
	ScreenName string  `gorm:"size:255" json:"screen_name"`

	// Mastodon accounts carry the instance they live on
	InstanceDomain string `gorm:"size:255" json:"instance_domain,omitempty"`

	// OAuth credentials, encrypted at rest (AES-256-GCM)
	AccessTokenEncrypted  string `gorm:"size:1000" json:"-"`
	AccessSecretEncrypted string `gorm:"size:1000" json:"-"` // OAuth1 token secret (Twitter only)

	// Retention policy. Intervals are stored as significand x scale so the
	// UI can round-trip them without losing the unit the user picked.
	PolicyEnabled                  bool          `gorm:"default:false" json:"policy_enabled"`
	PolicyKeepFavourites           bool          `gorm:"default:true" json:"policy_keep_favourites"`
	PolicyKeepLatest               int           `gorm:"default:0" json:"policy_keep_latest"`
	PolicyDeleteEverySignificand   int           `gorm:"default:1" json:"policy_delete_every_significand"`
	PolicyDeleteEveryScale         IntervalScale `gorm:"size:10;default:'days'" json:"policy_delete_every_scale"`
	PolicyKeepYoungerSignificand   int           `gorm:"default:1" json:"policy_keep_younger_significand"`
	PolicyKeepYoungerScale         IntervalScale `gorm:"size:10;default:'days'" json:"policy_keep_younger_scale"`

	// LastDelete anchors the retention clock. Nil until the policy is first
	// enabled; the scheduler only sweeps accounts whose anchor is older than
	// PolicyDeleteEvery.
	LastDelete *time.Time `json:"last_delete,omitempty"`

	// Dormant accounts are excluded from scheduled sweeps (e.g. revoked tokens)
	Dormant bool `gorm:"default:false;index" json:"dormant"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Posts    []Post           `gorm:"foreignKey:AccountID" json:"posts,omitempty"`
	Sessions []Session        `gorm:"foreignKey:AccountID" json:"sessions,omitempty"`
	Archives []TwitterArchive `gorm:"foreignKey:AccountID" json:"archives,omitempty"`
}

// PolicyDeleteEvery returns the configured pass interval as a duration
func (a *Account) PolicyDeleteEvery() time.Duration {
	return intervalDuration(a.PolicyDeleteEverySignificand, a.PolicyDeleteEveryScale)
}

// PolicyKeepYounger returns the configured minimum post age as a duration
func (a *Account) PolicyKeepYounger() time.Duration {
	return intervalDuration(a.PolicyKeepYoungerSignificand, a.PolicyKeepYoungerScale)
}

func intervalDuration(significand int, scale IntervalScale) time.Duration {
	if significand <= 0 {
		return 0
	}
	base, ok := ScaleDurations[scale]
	if !ok {
		base = 24 * time.Hour
	}
	return time.Duration(significand) * base
}
