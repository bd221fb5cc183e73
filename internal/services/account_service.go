package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/nottavi/forget/internal/database/models"
	"github.com/nottavi/forget/internal/provider"
	"gorm.io/gorm"
)

var (
	// ErrAccountNotFound indicates the account was not found
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountDormant indicates the account is dormant and cannot be swept
	ErrAccountDormant = errors.New("account is dormant")
	// ErrInvalidKeepLatest indicates a negative keep-latest value
	ErrInvalidKeepLatest = errors.New("policy_keep_latest must be >= 0")
	// ErrInvalidSignificand indicates a negative interval significand
	ErrInvalidSignificand = errors.New("interval significand must be >= 0")
	// ErrInvalidScale indicates an interval scale outside the whitelist
	ErrInvalidScale = errors.New("interval scale must be one of minutes, hours, days, weeks, months, years")
)

// staleEnableThreshold: enabling an account whose retention clock is older
// than this requires explicit confirmation (the user may be surprised by
// how much gets swept).
const staleEnableThreshold = 365 * 24 * time.Hour

// AccountService handles linked accounts and their retention policies
type AccountService struct {
	db            *gorm.DB
	encryptionKey []byte // 32 bytes for AES-256
	postService   *PostService
	logService    *LogService
}

// NewAccountService creates a new AccountService instance
func NewAccountService(db *gorm.DB, encryptionKey []byte) *AccountService {
	return &AccountService{
		db:            db,
		encryptionKey: normalizeKey(encryptionKey),
		postService:   NewPostService(db),
		logService:    NewLogService(db),
	}
}

// UpsertFromIdentity creates or refreshes an account from a completed
// login handshake. Tokens are encrypted before they touch the store.
// A dormant account that logs in again is woken up.
func (s *AccountService) UpsertFromIdentity(service models.Service, id *provider.Identity) (*models.Account, error) {
	tokenEnc, err := encryptToken(s.encryptionKey, id.AccessToken)
	if err != nil {
		return nil, err
	}
	var secretEnc string
	if id.AccessSecret != "" {
		secretEnc, err = encryptToken(s.encryptionKey, id.AccessSecret)
		if err != nil {
			return nil, err
		}
	}

	var account models.Account
	err = s.db.Where("service = ? AND remote_id = ?", service, id.RemoteID).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		account = models.Account{
			Service:        service,
			RemoteID:       id.RemoteID,
			ScreenName:     id.ScreenName,
			InstanceDomain: id.InstanceDomain,
		}
	} else if err != nil {
		return nil, err
	}

	account.ScreenName = id.ScreenName
	account.AccessTokenEncrypted = tokenEnc
	account.AccessSecretEncrypted = secretEnc
	account.Dormant = false

	if err := s.db.Save(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// GetAccountByID retrieves an account by ID
func (s *AccountService) GetAccountByID(id uint) (*models.Account, error) {
	var account models.Account
	if err := s.db.First(&account, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// Credentials returns the decrypted provider credentials for an account
func (s *AccountService) Credentials(account *models.Account) (provider.Credentials, error) {
	token, err := decryptToken(s.encryptionKey, account.AccessTokenEncrypted)
	if err != nil {
		return provider.Credentials{}, err
	}
	var secret string
	if account.AccessSecretEncrypted != "" {
		secret, err = decryptToken(s.encryptionKey, account.AccessSecretEncrypted)
		if err != nil {
			return provider.Credentials{}, err
		}
	}
	return provider.Credentials{
		AccessToken:    token,
		AccessSecret:   secret,
		InstanceDomain: account.InstanceDomain,
	}, nil
}

// UpdatePolicyInput carries a partial policy update. Nil fields are left
// untouched. This replaces ad-hoc form field assignment with named,
// individually validated fields.
type UpdatePolicyInput struct {
	KeepFavourites         *bool
	KeepLatest             *int
	DeleteEverySignificand *int
	DeleteEveryScale       *models.IntervalScale
	KeepYoungerSignificand *int
	KeepYoungerScale       *models.IntervalScale
}

// Validate checks every provided field and returns the first typed error
func (in *UpdatePolicyInput) Validate() error {
	if in.KeepLatest != nil && *in.KeepLatest < 0 {
		return ErrInvalidKeepLatest
	}
	if in.DeleteEverySignificand != nil && *in.DeleteEverySignificand < 0 {
		return ErrInvalidSignificand
	}
	if in.KeepYoungerSignificand != nil && *in.KeepYoungerSignificand < 0 {
		return ErrInvalidSignificand
	}
	if in.DeleteEveryScale != nil {
		if _, ok := models.ScaleDurations[*in.DeleteEveryScale]; !ok {
			return ErrInvalidScale
		}
	}
	if in.KeepYoungerScale != nil {
		if _, ok := models.ScaleDurations[*in.KeepYoungerScale]; !ok {
			return ErrInvalidScale
		}
	}
	return nil
}

// UpdatePolicy applies a validated policy update to an account
func (s *AccountService) UpdatePolicy(accountID uint, input UpdatePolicyInput) (*models.Account, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	account, err := s.GetAccountByID(accountID)
	if err != nil {
		return nil, err
	}

	if input.KeepFavourites != nil {
		account.PolicyKeepFavourites = *input.KeepFavourites
	}
	if input.KeepLatest != nil {
		account.PolicyKeepLatest = *input.KeepLatest
	}
	if input.DeleteEverySignificand != nil {
		account.PolicyDeleteEverySignificand = *input.DeleteEverySignificand
	}
	if input.DeleteEveryScale != nil {
		account.PolicyDeleteEveryScale = *input.DeleteEveryScale
	}
	if input.KeepYoungerSignificand != nil {
		account.PolicyKeepYoungerSignificand = *input.KeepYoungerSignificand
	}
	if input.KeepYoungerScale != nil {
		account.PolicyKeepYoungerScale = *input.KeepYoungerScale
	}

	if err := s.db.Save(account).Error; err != nil {
		return nil, err
	}
	return account, nil
}

// EnableWarningKind distinguishes the two confirmation cases
type EnableWarningKind string

const (
	// WarnImmediateDelete - delete_every is zero, everything eligible goes at once
	WarnImmediateDelete EnableWarningKind = "immediate_delete"
	// WarnStaleAccount - the retention clock is unset or very old
	WarnStaleAccount EnableWarningKind = "stale_account"
)

// EnableWarning is returned instead of performing the transition when the
// enable needs explicit confirmation
type EnableWarning struct {
	Kind              EnableWarningKind `json:"kind"`
	EstimatedEligible int               `json:"estimated_eligible"`
	Message           string            `json:"message"`
}

// Enable transitions an account's policy to enabled.
//
// The transition is refused (a warning is returned, the account stays
// disabled) when confirmation is missing and either the pass interval is
// zero or the retention clock is unset/stale. On an actual transition an
// unset clock is anchored to now so no backlog is swept immediately.
func (s *AccountService) Enable(accountID uint, confirmed bool, now time.Time) (*models.Account, *EnableWarning, error) {
	account, err := s.GetAccountByID(accountID)
	if err != nil {
		return nil, nil, err
	}

	if account.PolicyEnabled {
		return account, nil, nil
	}

	if !confirmed {
		if account.PolicyDeleteEvery() == 0 {
			estimate, err := s.EstimateEligible(account, now)
			if err != nil {
				return nil, nil, err
			}
			msg := "You've set the time between deleting posts to 0. Every post that matches your expiration rules will be deleted within minutes."
			if estimate > 0 {
				msg += fmt.Sprintf(" That's about %d posts.", estimate)
			}
			return account, &EnableWarning{
				Kind:              WarnImmediateDelete,
				EstimatedEligible: estimate,
				Message:           msg,
			}, nil
		}
		if account.LastDelete == nil || now.Sub(*account.LastDelete) > staleEnableThreshold {
			return account, &EnableWarning{
				Kind:    WarnStaleAccount,
				Message: "Once you enable Forget, posts that match your expiration rules will be deleted permanently. We can't bring them back. Make sure that you won't miss them.",
			}, nil
		}
	}

	// Anchor the retention clock at enable time, never a historical value
	if account.LastDelete == nil {
		account.LastDelete = &now
	}
	account.PolicyEnabled = true

	if err := s.db.Save(account).Error; err != nil {
		return nil, nil, err
	}

	s.logService.LogPolicyStatusChanged(account.ID, account.ScreenName, true)
	return account, nil, nil
}

// Disable transitions an account's policy to disabled. Always permitted.
func (s *AccountService) Disable(accountID uint) (*models.Account, error) {
	account, err := s.GetAccountByID(accountID)
	if err != nil {
		return nil, err
	}

	if !account.PolicyEnabled {
		return account, nil
	}

	account.PolicyEnabled = false
	if err := s.db.Save(account).Error; err != nil {
		return nil, err
	}

	s.logService.LogPolicyStatusChanged(account.ID, account.ScreenName, false)
	return account, nil
}

// EstimateEligible runs the evaluator over the account's posts in pages
// and returns how many would be deleted under the current policy
func (s *AccountService) EstimateEligible(account *models.Account, now time.Time) (int, error) {
	return countEligible(s.postService, account, now)
}

// ListAccounts returns every linked account, for the admin surface
func (s *AccountService) ListAccounts() ([]models.Account, error) {
	var accounts []models.Account
	err := s.db.Order("id ASC").Find(&accounts).Error
	return accounts, err
}

// MarkDormant flags an account so the scheduler skips it
func (s *AccountService) MarkDormant(accountID uint) error {
	res := s.db.Model(&models.Account{}).Where("id = ?", accountID).Update("dormant", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// AdvanceLastDelete moves the retention clock forward to passStart. The
// clock only ever advances; a stale writer cannot move it backward.
func (s *AccountService) AdvanceLastDelete(accountID uint, passStart time.Time) error {
	return s.db.Model(&models.Account{}).
		Where("id = ? AND (last_delete IS NULL OR last_delete < ?)", accountID, passStart).
		Update("last_delete", passStart).Error
}

// ListSweepDue returns accounts whose next pass is due: policy enabled,
// not dormant, and the retention clock is unset or older than the pass
// interval. The interval is per-account so the age check happens here
// rather than in SQL.
func (s *AccountService) ListSweepDue(now time.Time) ([]models.Account, error) {
	var candidates []models.Account
	err := s.db.Where("policy_enabled = ? AND dormant = ?", true, false).Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	due := make([]models.Account, 0, len(candidates))
	for _, a := range candidates {
		if a.LastDelete == nil || now.Sub(*a.LastDelete) >= a.PolicyDeleteEvery() {
			due = append(due, a)
		}
	}
	return due, nil
}

// DeleteAccount removes an account and everything that hangs off it in
// one transaction: sessions, posts, archives, queued jobs, log rows.
func (s *AccountService) DeleteAccount(accountID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ?", accountID).Delete(&models.Session{}).Error; err != nil {
			return err
		}
		if err := tx.Where("account_id = ?", accountID).Delete(&models.Post{}).Error; err != nil {
			return err
		}
		if err := tx.Where("account_id = ?", accountID).Delete(&models.TwitterArchive{}).Error; err != nil {
			return err
		}
		if err := tx.Where("account_id = ?", accountID).Delete(&models.Job{}).Error; err != nil {
			return err
		}
		if err := tx.Where("account_id = ?", accountID).Delete(&models.Log{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Account{}, accountID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAccountNotFound
		}
		return nil
	})
}
