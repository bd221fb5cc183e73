package services

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/nottavi/forget/internal/database/models"
	"github.com/nottavi/forget/internal/provider"
)

func setupTestDB(t *testing.T) (*gorm.DB, func()) {
	// Create a temporary database file
	tmpFile, err := os.CreateTemp("", "test_*.db")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	tmpFile.Close()

	// Open database
	db, err := gorm.Open(sqlite.Open(tmpFile.Name()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		os.Remove(tmpFile.Name())
		t.Fatalf("Failed to open database: %v", err)
	}

	// Run migrations
	err = db.AutoMigrate(
		&models.Account{},
		&models.Post{},
		&models.Session{},
		&models.TwitterArchive{},
		&models.MastodonInstance{},
		&models.Job{},
		&models.Log{},
	)
	if err != nil {
		os.Remove(tmpFile.Name())
		t.Fatalf("Failed to migrate: %v", err)
	}

	cleanup := func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		os.Remove(tmpFile.Name())
	}

	return db, cleanup
}

var testEncryptionKey = []byte("test-encryption-key-32-bytes!!!!")

func createTestAccount(t *testing.T, service *AccountService) *models.Account {
	account, err := service.UpsertFromIdentity(models.ServiceTwitter, &provider.Identity{
		RemoteID:     "12345",
		ScreenName:   "tester",
		AccessToken:  "token",
		AccessSecret: "secret",
	})
	if err != nil {
		t.Fatalf("Failed to create test account: %v", err)
	}
	return account
}

func seedPosts(t *testing.T, db *gorm.DB, accountID uint, n int, age time.Duration) {
	for i := 0; i < n; i++ {
		post := models.Post{
			AccountID: accountID,
			RemoteID:  fmt.Sprintf("seed-%d-%d", accountID, i),
			CreatedAt: time.Now().Add(-age - time.Duration(i)*time.Minute),
		}
		if err := db.Create(&post).Error; err != nil {
			t.Fatalf("Failed to seed post: %v", err)
		}
	}
}

func TestEstimateEligible_MatchesFullEvaluation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	service := NewAccountService(db, testEncryptionKey)
	account := createTestAccount(t, service)
	now := time.Now()

	// 290 posts cross the store page size; every 7th is a favourite and
	// the last 30 are younger than the keep_younger cutoff
	for i := 0; i < 290; i++ {
		age := 30*24*time.Hour + time.Duration(i)*time.Minute
		if i >= 260 {
			age = time.Duration(i-259) * time.Hour
		}
		post := models.Post{
			AccountID: account.ID,
			RemoteID:  fmt.Sprintf("mix-%03d", i),
			CreatedAt: now.Add(-age),
			Favourite: i%7 == 0,
		}
		if err := db.Create(&post).Error; err != nil {
			t.Fatalf("Failed to seed post: %v", err)
		}
	}

	seven, twentyFive := 7, 25
	days := models.ScaleDays
	keep := true
	if _, err := service.UpdatePolicy(account.ID, UpdatePolicyInput{
		KeepLatest:             &twentyFive,
		KeepFavourites:         &keep,
		KeepYoungerSignificand: &seven,
		KeepYoungerScale:       &days,
	}); err != nil {
		t.Fatalf("UpdatePolicy failed: %v", err)
	}

	account, err := service.GetAccountByID(account.ID)
	if err != nil {
		t.Fatalf("GetAccountByID failed: %v", err)
	}

	var all []models.Post
	if err := db.Where("account_id = ?", account.ID).Find(&all).Error; err != nil {
		t.Fatalf("Failed to load posts: %v", err)
	}
	want := len(EligibleForDelete(account, all, now))

	got, err := service.EstimateEligible(account, now)
	if err != nil {
		t.Fatalf("EstimateEligible failed: %v", err)
	}

	if got != want {
		t.Fatalf("paged estimate %d disagrees with full evaluation %d", got, want)
	}
	if got == 0 {
		t.Fatal("the mixed set must leave something eligible")
	}
}

func TestEnable_ZeroIntervalNeedsConfirmation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	service := NewAccountService(db, testEncryptionKey)
	account := createTestAccount(t, service)
	seedPosts(t, db, account.ID, 5, 48*time.Hour)

	// delete_every = 0 and no confirmation: the enable must be refused
	zero := 0
	if _, err := service.UpdatePolicy(account.ID, UpdatePolicyInput{DeleteEverySignificand: &zero}); err != nil {
		t.Fatalf("UpdatePolicy failed: %v", err)
	}

	updated, warning, err := service.Enable(account.ID, false, time.Now())
	if err != nil {
		t.Fatalf("Enable failed: %v", err)
	}
	if warning == nil {
		t.Fatal("expected a warning, got none")
	}
	if warning.Kind != WarnImmediateDelete {
		t.Fatalf("expected immediate_delete warning, got %s", warning.Kind)
	}
	if warning.EstimatedEligible != 5 {
		t.Fatalf("expected estimate of 5 posts, got %d", warning.EstimatedEligible)
	}
	if updated.PolicyEnabled {
		t.Fatal("account must stay disabled until confirmed")
	}

	// Confirmed: the transition goes through
	updated, warning, err = service.Enable(account.ID, true, time.Now())
	if err != nil {
		t.Fatalf("confirmed Enable failed: %v", err)
	}
	if warning != nil {
		t.Fatalf("confirmed enable must not warn, got %s", warning.Kind)
	}
	if !updated.PolicyEnabled {
		t.Fatal("account must be enabled after confirmation")
	}
}

func TestEnable_StaleClockNeedsConfirmation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	service := NewAccountService(db, testEncryptionKey)
	account := createTestAccount(t, service)

	// Fresh account: LastDelete is nil, so the enable needs confirmation
	updated, warning, err := service.Enable(account.ID, false, time.Now())
	if err != nil {
		t.Fatalf("Enable failed: %v", err)
	}
	if warning == nil || warning.Kind != WarnStaleAccount {
		t.Fatalf("expected stale_account warning, got %+v", warning)
	}
	if updated.PolicyEnabled {
		t.Fatal("account must stay disabled until confirmed")
	}
}

func TestEnable_AnchorsRetentionClock(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	service := NewAccountService(db, testEncryptionKey)
	account := createTestAccount(t, service)

	now := time.Now()
	updated, warning, err := service.Enable(account.ID, true, now)
	if err != nil {
		t.Fatalf("Enable failed: %v", err)
	}
	if warning != nil {
		t.Fatalf("confirmed enable must not warn, got %s", warning.Kind)
	}
	if updated.LastDelete == nil {
		t.Fatal("enable must anchor the retention clock")
	}
	if !updated.LastDelete.Equal(now) {
		t.Fatalf("clock anchored to %v, want %v", updated.LastDelete, now)
	}
}

func TestProperty_EnableDisableIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 10
	properties := gopter.NewProperties(parameters)

	// 连续执行相同的启用/停用操作，状态保持不变
	properties.Property("repeated_transitions_keep_state", prop.ForAll(
		func(repeats int) bool {
			db, cleanup := setupTestDB(t)
			defer cleanup()

			service := NewAccountService(db, testEncryptionKey)
			account := createTestAccount(t, service)

			for i := 0; i < repeats; i++ {
				updated, warning, err := service.Enable(account.ID, true, time.Now())
				if err != nil || warning != nil || !updated.PolicyEnabled {
					return false
				}
			}
			for i := 0; i < repeats; i++ {
				updated, err := service.Disable(account.ID)
				if err != nil || updated.PolicyEnabled {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 4),
	))

	properties.TestingRun(t)
}

func TestAdvanceLastDelete_OnlyMovesForward(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	service := NewAccountService(db, testEncryptionKey)
	account := createTestAccount(t, service)

	later := time.Now()
	earlier := later.Add(-time.Hour)

	if err := service.AdvanceLastDelete(account.ID, later); err != nil {
		t.Fatalf("AdvanceLastDelete failed: %v", err)
	}
	// A stale writer with an older pass start must not move the clock back
	if err := service.AdvanceLastDelete(account.ID, earlier); err != nil {
		t.Fatalf("AdvanceLastDelete failed: %v", err)
	}

	got, err := service.GetAccountByID(account.ID)
	if err != nil {
		t.Fatalf("GetAccountByID failed: %v", err)
	}
	if got.LastDelete == nil || got.LastDelete.Before(later.Add(-time.Second)) {
		t.Fatalf("clock moved backward: %v", got.LastDelete)
	}
}

func TestUpdatePolicy_RejectsInvalidValues(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	service := NewAccountService(db, testEncryptionKey)
	account := createTestAccount(t, service)

	negative := -1
	if _, err := service.UpdatePolicy(account.ID, UpdatePolicyInput{KeepLatest: &negative}); err != ErrInvalidKeepLatest {
		t.Fatalf("expected ErrInvalidKeepLatest, got %v", err)
	}
	if _, err := service.UpdatePolicy(account.ID, UpdatePolicyInput{DeleteEverySignificand: &negative}); err != ErrInvalidSignificand {
		t.Fatalf("expected ErrInvalidSignificand, got %v", err)
	}
	badScale := models.IntervalScale("fortnights")
	if _, err := service.UpdatePolicy(account.ID, UpdatePolicyInput{DeleteEveryScale: &badScale}); err != ErrInvalidScale {
		t.Fatalf("expected ErrInvalidScale, got %v", err)
	}
}

func TestUpsertFromIdentity_WakesDormantAccount(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	service := NewAccountService(db, testEncryptionKey)
	account := createTestAccount(t, service)

	if err := service.MarkDormant(account.ID); err != nil {
		t.Fatalf("MarkDormant failed: %v", err)
	}

	// Logging in again refreshes credentials and clears dormancy
	woken, err := service.UpsertFromIdentity(models.ServiceTwitter, &provider.Identity{
		RemoteID:    "12345",
		ScreenName:  "tester",
		AccessToken: "fresh-token",
	})
	if err != nil {
		t.Fatalf("UpsertFromIdentity failed: %v", err)
	}
	if woken.ID != account.ID {
		t.Fatalf("upsert created a duplicate account: %d != %d", woken.ID, account.ID)
	}
	if woken.Dormant {
		t.Fatal("login must clear the dormant flag")
	}

	creds, err := service.Credentials(woken)
	if err != nil {
		t.Fatalf("Credentials failed: %v", err)
	}
	if creds.AccessToken != "fresh-token" {
		t.Fatalf("credentials not refreshed, got %q", creds.AccessToken)
	}
}
