package services

import (
	"context"
	"errors"
	"log"

	"github.com/nottavi/forget/internal/database/models"
	"github.com/nottavi/forget/internal/provider"
)

// ErrNoFetcher indicates no provider is wired for the account's service
var ErrNoFetcher = errors.New("no fetcher for service")

// fetchPageCap bounds one fetch run so a provider that never stops
// paging cannot pin a worker forever
const fetchPageCap = 400

// FetchService pulls an account's posts from its provider into the
// store. It runs right after login so the policy has something to work
// on before any archive is uploaded, and again on later logins to pick
// up new posts and refreshed favourite flags.
type FetchService struct {
	accountService *AccountService
	postService    *PostService
	logService     *LogService
	fetchers       map[models.Service]provider.Fetcher
}

// NewFetchService creates a new FetchService instance
func NewFetchService(accountService *AccountService, postService *PostService,
	logService *LogService, fetchers map[models.Service]provider.Fetcher) *FetchService {
	return &FetchService{
		accountService: accountService,
		postService:    postService,
		logService:     logService,
		fetchers:       fetchers,
	}
}

// FetchAccount walks the account's remote timeline newest first and
// upserts every page. The walk stops when the provider's history is
// exhausted or a whole page is already known, so repeat fetches only pay
// for what is new. Returns the number of posts actually added.
func (s *FetchService) FetchAccount(ctx context.Context, account *models.Account) (int, error) {
	if account.Dormant {
		return 0, ErrAccountDormant
	}

	fetcher, ok := s.fetchers[account.Service]
	if !ok {
		return 0, ErrNoFetcher
	}

	creds, err := s.accountService.Credentials(account)
	if err != nil {
		return 0, err
	}

	total := 0
	maxID := ""

	for page := 0; page < fetchPageCap; page++ {
		fetched, err := fetcher.FetchPosts(ctx, creds, account.RemoteID, maxID)
		if err != nil {
			return total, err
		}
		if len(fetched) == 0 {
			break
		}

		posts := make([]models.Post, 0, len(fetched))
		for _, f := range fetched {
			if f.RemoteID == "" || f.CreatedAt.IsZero() {
				continue
			}
			posts = append(posts, models.Post{
				AccountID: account.ID,
				RemoteID:  f.RemoteID,
				PostType:  fetchedPostType(f),
				CreatedAt: f.CreatedAt,
				Favourite: f.Favourite,
				Body:      f.Body,
			})
		}

		created, err := s.postService.UpsertFetched(posts)
		if err != nil {
			return total, err
		}
		total += created

		last := fetched[len(fetched)-1].RemoteID
		if last == maxID {
			// 游标不再前进，说明服务端翻页到底了
			break
		}
		maxID = last

		if created == 0 {
			// The whole page was already stored: the walk has caught up
			// with the history from a previous fetch
			break
		}
	}

	log.Printf("[Fetch] account %d: %d new posts", account.ID, total)
	s.logService.LogFetchCompleted(account.ID, total)
	return total, nil
}

func fetchedPostType(f provider.FetchedPost) models.PostType {
	if f.Reblog {
		return models.PostTypeRetweet
	}
	if f.ReplyToID != "" {
		return models.PostTypeReply
	}
	return models.PostTypeOriginal
}
