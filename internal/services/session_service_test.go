package services

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nottavi/forget/internal/database/models"
)

func TestSession_CreateAndResolve(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	accountService := NewAccountService(db, testEncryptionKey)
	account := createTestAccount(t, accountService)

	service := NewSessionService(db, time.Hour)

	session, err := service.Create(account.ID)
	require.NoError(t, err)
	assert.Len(t, session.ID, 64, "token is 32 random bytes hex encoded")

	resolved, err := service.Resolve(session.ID)
	require.NoError(t, err)
	require.NotNil(t, resolved.Account)
	assert.Equal(t, account.ID, resolved.Account.ID)
	assert.Equal(t, "tester", resolved.Account.ScreenName)
}

func TestSession_UnknownAndEmptyTokens(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	service := NewSessionService(db, time.Hour)

	_, err := service.Resolve("")
	assert.True(t, errors.Is(err, ErrSessionNotFound))

	_, err = service.Resolve("deadbeef")
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestSession_ExpiredTokenRejectedAndRemoved(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	accountService := NewAccountService(db, testEncryptionKey)
	account := createTestAccount(t, accountService)

	service := NewSessionService(db, time.Hour)
	session, err := service.Create(account.ID)
	require.NoError(t, err)

	// Age the session past the TTL
	require.NoError(t, db.Model(&models.Session{}).
		Where("id = ?", session.ID).
		Update("last_touched", time.Now().Add(-2*time.Hour)).Error)

	_, err = service.Resolve(session.ID)
	assert.True(t, errors.Is(err, ErrSessionNotFound))

	// The expired row was deleted on the way out
	var count int64
	require.NoError(t, db.Model(&models.Session{}).Where("id = ?", session.ID).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestSession_DeleteLeavesAccountAlone(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	accountService := NewAccountService(db, testEncryptionKey)
	account := createTestAccount(t, accountService)

	// Logout must never touch the account or its policy
	_, warning, err := accountService.Enable(account.ID, true, time.Now())
	require.NoError(t, err)
	require.Nil(t, warning)

	service := NewSessionService(db, time.Hour)
	session, err := service.Create(account.ID)
	require.NoError(t, err)

	require.NoError(t, service.Delete(session.ID))

	got, err := accountService.GetAccountByID(account.ID)
	require.NoError(t, err)
	assert.True(t, got.PolicyEnabled, "logout must not disable the policy")
}

func TestSession_PruneExpired(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	accountService := NewAccountService(db, testEncryptionKey)
	account := createTestAccount(t, accountService)

	service := NewSessionService(db, time.Hour)

	fresh, err := service.Create(account.ID)
	require.NoError(t, err)
	stale, err := service.Create(account.ID)
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.Session{}).
		Where("id = ?", stale.ID).
		Update("last_touched", time.Now().Add(-3*time.Hour)).Error)

	pruned, err := service.PruneExpired()
	require.NoError(t, err)
	assert.EqualValues(t, 1, pruned)

	_, err = service.Resolve(fresh.ID)
	assert.NoError(t, err, "fresh sessions survive pruning")
}
