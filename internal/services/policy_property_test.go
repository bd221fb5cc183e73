package services

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/nottavi/forget/internal/database/models"
)

// The evaluator is pure, so these properties run without a database.
// 策略评估是纯函数，相同输入必须产生相同输出。

func policyAccount(keepLatest int, keepFavourites bool, keepYoungerDays int) *models.Account {
	return &models.Account{
		ID:                           1,
		Service:                      models.ServiceTwitter,
		PolicyEnabled:                true,
		PolicyKeepFavourites:         keepFavourites,
		PolicyKeepLatest:             keepLatest,
		PolicyKeepYoungerSignificand: keepYoungerDays,
		PolicyKeepYoungerScale:       models.ScaleDays,
	}
}

func makePosts(n int, now time.Time) []models.Post {
	posts := make([]models.Post, n)
	for i := 0; i < n; i++ {
		// Oldest post first; one day between posts
		posts[i] = models.Post{
			ID:        uint(i + 1),
			AccountID: 1,
			RemoteID:  fmt.Sprintf("%06d", i+1),
			CreatedAt: now.Add(-time.Duration(n-i) * 24 * time.Hour),
		}
	}
	return posts
}

func TestProperty_KeepLatestAlwaysSurvives(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	// 无论帖子多老，最新的 keep_latest 条永远不会被删除
	properties.Property("newest_keep_latest_posts_never_eligible", prop.ForAll(
		func(total int, keepLatest int) bool {
			now := time.Now()
			account := policyAccount(keepLatest, false, 0)
			posts := makePosts(total, now)

			eligible := EligibleForDelete(account, posts, now)

			if keepLatest >= total {
				return len(eligible) == 0
			}
			if len(eligible) != total-keepLatest {
				return false
			}

			// The survivors must be exactly the newest posts
			for _, p := range eligible {
				if int(p.ID) > total-keepLatest {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 50),
		gen.IntRange(0, 60),
	))

	properties.TestingRun(t)
}

func TestProperty_EvaluatorIsPure(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	// 对相同输入重复求值，结果完全一致
	properties.Property("same_inputs_same_outputs", prop.ForAll(
		func(total, keepLatest, youngerDays int, keepFavourites bool) bool {
			now := time.Now()
			account := policyAccount(keepLatest, keepFavourites, youngerDays)
			posts := makePosts(total, now)
			if total > 2 {
				posts[0].Favourite = true
				posts[total/2].Deleted = true
			}

			first := EligibleForDelete(account, posts, now)
			second := EligibleForDelete(account, posts, now)
			return reflect.DeepEqual(first, second)
		},
		gen.IntRange(0, 40),
		gen.IntRange(0, 10),
		gen.IntRange(0, 30),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestProperty_FavouritesNeverEligible(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	// 开启保留收藏后，收藏的帖子永远不会出现在删除列表里
	properties.Property("favourites_survive_when_policy_keeps_them", prop.ForAll(
		func(total int, favEvery int) bool {
			now := time.Now()
			account := policyAccount(0, true, 0)
			posts := makePosts(total, now)
			for i := range posts {
				if i%favEvery == 0 {
					posts[i].Favourite = true
				}
			}

			eligible := EligibleForDelete(account, posts, now)
			for _, p := range eligible {
				if p.Favourite {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 50),
		gen.IntRange(1, 5),
	))

	properties.TestingRun(t)
}

func TestProperty_YoungPostsSurvive(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	// 比 keep_younger 年轻的帖子不会被删除
	properties.Property("posts_younger_than_threshold_never_eligible", prop.ForAll(
		func(total, youngerDays int) bool {
			now := time.Now()
			account := policyAccount(0, false, youngerDays)
			posts := makePosts(total, now)

			eligible := EligibleForDelete(account, posts, now)
			threshold := time.Duration(youngerDays) * 24 * time.Hour
			for _, p := range eligible {
				if now.Sub(p.CreatedAt) < threshold {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 50),
		gen.IntRange(0, 40),
	))

	properties.TestingRun(t)
}

func TestEligibleForDelete_KeepLatestTen(t *testing.T) {
	// 100 条旧帖 + 保留最新 10 条 => 恰好 90 条待删除
	now := time.Now()
	account := policyAccount(10, false, 0)
	posts := makePosts(100, now)

	eligible := EligibleForDelete(account, posts, now)
	if len(eligible) != 90 {
		t.Fatalf("expected 90 eligible posts, got %d", len(eligible))
	}

	// The ten newest posts (IDs 91..100) must all survive
	for _, p := range eligible {
		if p.ID > 90 {
			t.Fatalf("post %d is among the newest ten but was eligible", p.ID)
		}
	}
}

func TestEligibleForDelete_DeletedPostsIgnored(t *testing.T) {
	now := time.Now()
	account := policyAccount(0, false, 0)
	posts := makePosts(10, now)
	for i := range posts {
		posts[i].Deleted = true
	}

	if eligible := EligibleForDelete(account, posts, now); len(eligible) != 0 {
		t.Fatalf("soft-deleted posts must never be eligible, got %d", len(eligible))
	}
}
