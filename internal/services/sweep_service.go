package services

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nottavi/forget/internal/database/models"
	"github.com/nottavi/forget/internal/provider"
)

// ErrNoDeleter indicates no provider is wired for the account's service
var ErrNoDeleter = errors.New("no deleter for service")

// deleteCallTimeout bounds one remote deletion call so a hung provider
// never stalls the worker fleet
const deleteCallTimeout = 30 * time.Second

// PassResult summarizes one deletion pass over a single account
type PassResult struct {
	// Deleted counts posts confirmed gone this pass (including posts the
	// provider had already removed)
	Deleted int `json:"deleted"`
	// Remaining counts eligible posts left when the pass stopped early
	Remaining int `json:"remaining"`
	// Failures counts posts whose deletion failed with a provider error
	Failures int `json:"failures"`
	// RateLimited is set when the provider told us to back off; the
	// remainder of the pass was rescheduled
	RateLimited bool `json:"rate_limited"`
	// WentDormant is set when the account's credentials were rejected
	WentDormant bool `json:"went_dormant"`
}

// Complete reports whether the pass covered every eligible post
func (r PassResult) Complete() bool {
	return !r.RateLimited && !r.WentDormant
}

// SweepService runs deletion passes: evaluate a policy snapshot against
// the account's posts, then delete eligible posts through the provider
// under a token-bucket throttle.
type SweepService struct {
	accountService *AccountService
	postService    *PostService
	logService     *LogService
	deleters       map[models.Service]provider.Deleter

	// global throttle across every account, plus one bucket per account
	global          *rate.Limiter
	perAccountLimit rate.Limit
	perAccount      sync.Map // accountID -> *rate.Limiter
}

// NewSweepService creates a new SweepService instance. Rates are in
// deletions per minute.
func NewSweepService(accountService *AccountService, postService *PostService, logService *LogService,
	deleters map[models.Service]provider.Deleter, globalPerMinute, perAccountPerMinute int) *SweepService {
	if globalPerMinute <= 0 {
		globalPerMinute = 60
	}
	if perAccountPerMinute <= 0 {
		perAccountPerMinute = 10
	}
	return &SweepService{
		accountService:  accountService,
		postService:     postService,
		logService:      logService,
		deleters:        deleters,
		global:          rate.NewLimiter(rate.Limit(float64(globalPerMinute)/60.0), globalPerMinute),
		perAccountLimit: rate.Limit(float64(perAccountPerMinute) / 60.0),
	}
}

func (s *SweepService) accountLimiter(accountID uint) *rate.Limiter {
	if l, ok := s.perAccount.Load(accountID); ok {
		return l.(*rate.Limiter)
	}
	l, _ := s.perAccount.LoadOrStore(accountID, rate.NewLimiter(s.perAccountLimit, 1))
	return l.(*rate.Limiter)
}

// RunPass executes one deletion pass for an account.
//
// The policy is read once at pass start and not re-read mid-pass. Posts
// are streamed from the store one page at a time, so memory stays
// bounded no matter how large the account is. Every successful deletion
// is committed individually, so progress survives a crash or an early
// stop. The retention clock only advances when the pass covers every
// eligible post; a rate-limited pass leaves it untouched and the
// remainder is picked up by the rescheduled job.
func (s *SweepService) RunPass(ctx context.Context, account *models.Account) (PassResult, error) {
	var result PassResult

	if account.Dormant {
		return result, ErrAccountDormant
	}

	deleter, ok := s.deleters[account.Service]
	if !ok {
		return result, ErrNoDeleter
	}

	creds, err := s.accountService.Credentials(account)
	if err != nil {
		return result, err
	}

	passStart := time.Now()

	// Counting first costs one extra cheap walk but lets an interrupted
	// pass report exactly how much work is left
	eligibleTotal, err := countEligible(s.postService, account, passStart)
	if err != nil {
		return result, err
	}

	limiter := s.accountLimiter(account.ID)
	processed := 0

	err = forEachEligible(s.postService, account, passStart, func(post models.Post) (bool, error) {
		if err := s.global.Wait(ctx); err != nil {
			return true, err
		}
		if err := limiter.Wait(ctx); err != nil {
			return true, err
		}

		callCtx, cancel := context.WithTimeout(ctx, deleteCallTimeout)
		res := deleter.DeletePost(callCtx, creds, post.RemoteID)
		cancel()

		switch res.Outcome {
		case provider.DeleteOK, provider.DeleteNotFound:
			// Already-gone posts count as satisfied (idempotent)
			if err := s.postService.MarkDeleted(post.ID, time.Now()); err != nil {
				return true, err
			}
			result.Deleted++

		case provider.DeleteRateLimited:
			result.RateLimited = true
			return true, nil

		case provider.DeleteUnauthorized:
			result.WentDormant = true
			return true, nil

		case provider.DeleteFailed:
			// Recorded per post; the pass keeps going
			result.Failures++
			s.logService.LogSweepFailure(account.ID, post.RemoteID, res.Err)
		}

		processed++
		return false, nil
	})
	if err != nil {
		result.Remaining = eligibleTotal - processed
		return result, err
	}

	if result.RateLimited {
		result.Remaining = eligibleTotal - processed
		s.logService.LogSweepInterrupted(account.ID, result.Deleted, result.Remaining)
		return result, nil
	}

	if result.WentDormant {
		result.Remaining = eligibleTotal - processed
		log.Printf("[Sweep] account %d credentials rejected, marking dormant", account.ID)
		if err := s.accountService.MarkDormant(account.ID); err != nil {
			return result, err
		}
		return result, nil
	}

	// Full coverage: advance the retention clock to the pass start.
	// Per-post provider failures don't hold the clock back; those posts
	// stay live and the next pass retries them.
	if err := s.accountService.AdvanceLastDelete(account.ID, passStart); err != nil {
		return result, err
	}

	s.logService.LogSweepCompleted(account.ID, result.Deleted, result.Failures)
	return result, nil
}
