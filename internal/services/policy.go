package services

import (
	"sort"
	"time"

	"github.com/nottavi/forget/internal/database/models"
)

// protectedByPolicy reports whether a post survives the per-post
// exemptions (favourites, minimum age). The keep_latest prefix is rank
// dependent and handled by the callers.
func protectedByPolicy(account *models.Account, p *models.Post, now time.Time) bool {
	if account.PolicyKeepFavourites && p.Favourite {
		return true
	}
	keepYounger := account.PolicyKeepYounger()
	return keepYounger > 0 && now.Sub(p.CreatedAt) < keepYounger
}

// EligibleForDelete applies an account's retention policy to a set of its
// posts and returns the ones that may be deleted now.
//
// The function is pure: identical (account, posts, now) inputs always
// produce the identical result, which is what makes retried passes safe.
// It never reads the store or the clock.
//
// Rules, in order:
//   - posts already soft-deleted are ignored
//   - the newest PolicyKeepLatest posts survive regardless of age
//   - favourites survive when PolicyKeepFavourites is set
//   - posts younger than PolicyKeepYounger survive
func EligibleForDelete(account *models.Account, posts []models.Post, now time.Time) []models.Post {
	live := make([]models.Post, 0, len(posts))
	for _, p := range posts {
		if !p.Deleted {
			live = append(live, p)
		}
	}

	// Newest first; ties broken by remote id so ordering is total
	sort.SliceStable(live, func(i, j int) bool {
		if !live[i].CreatedAt.Equal(live[j].CreatedAt) {
			return live[i].CreatedAt.After(live[j].CreatedAt)
		}
		return live[i].RemoteID > live[j].RemoteID
	})

	keepLatest := account.PolicyKeepLatest
	if keepLatest < 0 {
		keepLatest = 0
	}
	if keepLatest >= len(live) {
		return nil
	}

	var eligible []models.Post
	for i := range live[keepLatest:] {
		p := live[keepLatest+i]
		if protectedByPolicy(account, &p, now) {
			continue
		}
		eligible = append(eligible, p)
	}

	return eligible
}

// forEachEligible streams an account's live posts from the store, newest
// first, and invokes fn on every policy-eligible one. Memory stays
// bounded at one page regardless of how many posts the account has. The
// walk applies the same rules as EligibleForDelete; fn returning stop
// ends the walk early.
func forEachEligible(posts *PostService, account *models.Account, now time.Time,
	fn func(post models.Post) (stop bool, err error)) error {
	skip := account.PolicyKeepLatest
	if skip < 0 {
		skip = 0
	}

	var cursor *models.Post
	for {
		page, err := posts.LiveNewestFirst(account.ID, cursor, postPageSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}

		for i := range page {
			if skip > 0 {
				skip--
				continue
			}
			if protectedByPolicy(account, &page[i], now) {
				continue
			}
			stop, err := fn(page[i])
			if err != nil {
				return err
			}
			if stop {
				return nil
			}
		}

		cursor = &page[len(page)-1]
	}
}

// countEligible counts the posts a pass over the account would delete
// now, without materializing the live set
func countEligible(posts *PostService, account *models.Account, now time.Time) (int, error) {
	n := 0
	err := forEachEligible(posts, account, now, func(models.Post) (bool, error) {
		n++
		return false, nil
	})
	return n, err
}
