package services

import (
	"errors"

	"github.com/nottavi/forget/internal/database/models"
	"github.com/nottavi/forget/internal/provider"
	"gorm.io/gorm"
)

// InstanceService stores per-instance Mastodon app registrations. It
// implements provider.InstanceRegistry; client credentials are encrypted
// with the same key as account tokens.
type InstanceService struct {
	db            *gorm.DB
	encryptionKey []byte
}

// NewInstanceService creates a new InstanceService instance
func NewInstanceService(db *gorm.DB, encryptionKey []byte) *InstanceService {
	return &InstanceService{db: db, encryptionKey: normalizeKey(encryptionKey)}
}

// Lookup returns the stored registration for a domain, or nil if the
// instance has never been seen
func (s *InstanceService) Lookup(domain string) (*provider.InstanceCredentials, error) {
	var row models.MastodonInstance
	err := s.db.Where("domain = ?", domain).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	clientID, err := decryptToken(s.encryptionKey, row.ClientIDEncrypted)
	if err != nil {
		return nil, err
	}
	clientSecret, err := decryptToken(s.encryptionKey, row.ClientSecretEncrypted)
	if err != nil {
		return nil, err
	}

	return &provider.InstanceCredentials{
		Domain:       row.Domain,
		ClientID:     clientID,
		ClientSecret: clientSecret,
	}, nil
}

// Store persists a registration. Storing an already-known instance only
// bumps its popularity counter.
func (s *InstanceService) Store(creds *provider.InstanceCredentials) error {
	var existing models.MastodonInstance
	err := s.db.Where("domain = ?", creds.Domain).First(&existing).Error
	if err == nil {
		return s.db.Model(&existing).Update("popularity", gorm.Expr("popularity + 1")).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	idEnc, err := encryptToken(s.encryptionKey, creds.ClientID)
	if err != nil {
		return err
	}
	secretEnc, err := encryptToken(s.encryptionKey, creds.ClientSecret)
	if err != nil {
		return err
	}

	return s.db.Create(&models.MastodonInstance{
		Domain:                creds.Domain,
		ClientIDEncrypted:     idEnc,
		ClientSecretEncrypted: secretEnc,
	}).Error
}

// PopularInstances returns the most used instance domains for the login
// page's suggestions
func (s *InstanceService) PopularInstances(limit int) ([]string, error) {
	if limit <= 0 {
		limit = 5
	}
	var rows []models.MastodonInstance
	err := s.db.Order("popularity DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	domains := make([]string, len(rows))
	for i, r := range rows {
		domains[i] = r.Domain
	}
	return domains, nil
}
