package services

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/nottavi/forget/internal/database/models"
	"gorm.io/gorm"
)

// ErrSessionNotFound indicates the session token is unknown or expired
var ErrSessionNotFound = errors.New("session not found")

// sessionTokenBytes is the entropy of a session token (64 hex chars)
const sessionTokenBytes = 32

// SessionService manages browser sessions. Tokens are opaque random
// strings stored server-side; there is nothing to forge or decode.
type SessionService struct {
	db  *gorm.DB
	ttl time.Duration
}

// NewSessionService creates a new SessionService instance
func NewSessionService(db *gorm.DB, ttl time.Duration) *SessionService {
	return &SessionService{db: db, ttl: ttl}
}

// Create issues a new session for an account
func (s *SessionService) Create(accountID uint) (*models.Session, error) {
	token, err := generateSessionToken()
	if err != nil {
		return nil, err
	}

	session := &models.Session{
		ID:          token,
		AccountID:   accountID,
		LastTouched: time.Now(),
	}
	if err := s.db.Create(session).Error; err != nil {
		return nil, err
	}
	return session, nil
}

// Resolve looks a token up and returns the session with its account
// preloaded. Expired sessions resolve to ErrSessionNotFound and are
// removed on the way out.
func (s *SessionService) Resolve(token string) (*models.Session, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}

	var session models.Session
	err := s.db.Preload("Account").First(&session, "id = ?", token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	if time.Since(session.LastTouched) > s.ttl {
		s.db.Delete(&models.Session{}, "id = ?", session.ID)
		return nil, ErrSessionNotFound
	}
	return &session, nil
}

// Touch refreshes a session's last-touched timestamp
func (s *SessionService) Touch(token string) error {
	return s.db.Model(&models.Session{}).
		Where("id = ?", token).
		Update("last_touched", time.Now()).Error
}

// Delete removes a session (logout). Deleting a session never touches
// the account behind it.
func (s *SessionService) Delete(token string) error {
	return s.db.Delete(&models.Session{}, "id = ?", token).Error
}

// PruneExpired removes sessions idle for longer than the TTL and returns
// how many were removed
func (s *SessionService) PruneExpired() (int64, error) {
	cutoff := time.Now().Add(-s.ttl)
	res := s.db.Where("last_touched < ?", cutoff).Delete(&models.Session{})
	return res.RowsAffected, res.Error
}

// generateSessionToken generates a cryptographically secure random token
func generateSessionToken() (string, error) {
	bytes := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
