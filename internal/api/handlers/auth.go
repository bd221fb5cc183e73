package handlers

import (
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nottavi/forget/internal/api/middleware"
	"github.com/nottavi/forget/internal/database/models"
	"github.com/nottavi/forget/internal/provider"
	"github.com/nottavi/forget/internal/services"
)

// loginStateTTL bounds how long a started Mastodon login stays valid
const loginStateTTL = 15 * time.Minute

// pendingMastodonLogin remembers which instance a login started against
// until the callback returns
type pendingMastodonLogin struct {
	domain    string
	createdAt time.Time
}

// AuthHandler handles login handshakes and session lifecycle
type AuthHandler struct {
	twitter         *provider.Twitter
	mastodon        *provider.Mastodon
	accountService  *services.AccountService
	sessionService  *services.SessionService
	instanceService *services.InstanceService
	jobService      *services.JobService
	logService      *services.LogService
	baseURL         string
	cookieTTL       time.Duration

	mu      sync.Mutex
	pending map[string]pendingMastodonLogin // state -> instance
}

// NewAuthHandler creates a new AuthHandler instance
func NewAuthHandler(twitter *provider.Twitter, mastodon *provider.Mastodon,
	accountService *services.AccountService, sessionService *services.SessionService,
	instanceService *services.InstanceService, jobService *services.JobService,
	logService *services.LogService, baseURL string, cookieTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		twitter:         twitter,
		mastodon:        mastodon,
		accountService:  accountService,
		sessionService:  sessionService,
		instanceService: instanceService,
		jobService:      jobService,
		logService:      logService,
		baseURL:         strings.TrimRight(baseURL, "/"),
		cookieTTL:       cookieTTL,
		pending:         make(map[string]pendingMastodonLogin),
	}
}

func (h *AuthHandler) callbackURL(path string) string {
	return h.baseURL + path
}

// TwitterLogin starts the Twitter OAuth1 handshake
// GET /api/auth/twitter
func (h *AuthHandler) TwitterLogin(c *gin.Context) {
	if h.twitter == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "PROVIDER_UNAVAILABLE",
				"message": "Twitter login is not configured",
			},
		})
		return
	}

	url, err := h.twitter.LoginURL(h.callbackURL("/api/auth/twitter/callback"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "PROVIDER_ERROR",
				"message": "Failed to start Twitter login",
			},
		})
		return
	}

	c.Redirect(http.StatusFound, url)
}

// TwitterCallback completes the Twitter handshake and opens a session
// GET /api/auth/twitter/callback
func (h *AuthHandler) TwitterCallback(c *gin.Context) {
	token := c.Query("oauth_token")
	verifier := c.Query("oauth_verifier")
	if token == "" || verifier == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Missing oauth_token or oauth_verifier",
			},
		})
		return
	}

	identity, err := h.twitter.ReceiveVerifier(token, verifier)
	if err != nil {
		h.logService.LogLogin(0, "", c.ClientIP(), false, err)
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "PROVIDER_ERROR",
				"message": "Twitter login failed",
			},
		})
		return
	}

	h.openSession(c, models.ServiceTwitter, identity)
}

// MastodonLoginRequest carries the instance the user wants to log in on
type MastodonLoginRequest struct {
	InstanceDomain string `json:"instance_domain" form:"instance_domain" binding:"required"`
}

// MastodonLogin starts the Mastodon OAuth2 handshake against an instance
// POST /api/auth/mastodon
func (h *AuthHandler) MastodonLogin(c *gin.Context) {
	var req MastodonLoginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Instance domain is required",
			},
		})
		return
	}

	domain := normalizeDomain(req.InstanceDomain)
	state := uuid.New().String()

	url, err := h.mastodon.LoginURL(c.Request.Context(), domain, h.callbackURL("/api/auth/mastodon/callback"), state)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "PROVIDER_ERROR",
				"message": "Failed to reach instance " + domain,
			},
		})
		return
	}

	h.mu.Lock()
	h.prunePendingLocked()
	h.pending[state] = pendingMastodonLogin{domain: domain, createdAt: time.Now()}
	h.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"redirect_url": url,
		},
	})
}

// MastodonCallback completes the Mastodon handshake and opens a session
// GET /api/auth/mastodon/callback
func (h *AuthHandler) MastodonCallback(c *gin.Context) {
	code := c.Query("code")
	state := c.Query("state")

	h.mu.Lock()
	pending, ok := h.pending[state]
	delete(h.pending, state)
	h.mu.Unlock()

	if code == "" || !ok || time.Since(pending.createdAt) > loginStateTTL {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Login expired or state mismatch, please try again",
			},
		})
		return
	}

	identity, err := h.mastodon.ReceiveCode(c.Request.Context(), pending.domain,
		h.callbackURL("/api/auth/mastodon/callback"), code)
	if err != nil {
		h.logService.LogLogin(0, "", c.ClientIP(), false, err)
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "PROVIDER_ERROR",
				"message": "Mastodon login failed",
			},
		})
		return
	}

	h.openSession(c, models.ServiceMastodon, identity)
}

// openSession upserts the account, issues a session and sets the cookie
func (h *AuthHandler) openSession(c *gin.Context, service models.Service, identity *provider.Identity) {
	account, err := h.accountService.UpsertFromIdentity(service, identity)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "Failed to save account",
			},
		})
		return
	}

	session, err := h.sessionService.Create(account.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "Failed to create session",
			},
		})
		return
	}

	h.logService.LogLogin(account.ID, account.ScreenName, c.ClientIP(), true, nil)

	// Pull the timeline in the background so the policy has posts to
	// work on; login succeeds even when the queue write fails
	if err := h.jobService.EnqueueUnlessPending(models.JobKindFetchAccount, account.ID, time.Now()); err != nil {
		log.Printf("[Auth] failed to enqueue fetch for account %d: %v", account.ID, err)
	}

	c.SetCookie(middleware.SessionCookie, session.ID, int(h.cookieTTL.Seconds()), "/", "", false, true)
	c.Redirect(http.StatusFound, "/")
}

// Me returns the logged-in account
// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	account, exists := middleware.GetAccountFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "AUTH_FAILED",
				"message": "Not logged in",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    toAccountResponse(account),
	})
}

// Logout deletes the session behind the cookie. The account and its
// policy are untouched; logging out never disables anything.
// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	session, exists := middleware.GetSessionFromContext(c)
	if exists {
		if err := h.sessionService.Delete(session.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "INTERNAL_ERROR",
					"message": "Failed to delete session",
				},
			})
			return
		}
	}

	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"message": "Logged out"},
	})
}

// PopularInstances lists instances ranked by how many logins they served,
// for the login page picker
// GET /api/instances
func (h *AuthHandler) PopularInstances(c *gin.Context) {
	instances, err := h.instanceService.PopularInstances(10)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "Failed to list instances",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    instances,
	})
}

// prunePendingLocked drops expired login states; caller holds h.mu
func (h *AuthHandler) prunePendingLocked() {
	for state, p := range h.pending {
		if time.Since(p.createdAt) > loginStateTTL {
			delete(h.pending, state)
		}
	}
}

// normalizeDomain strips scheme, path and whitespace from user input
func normalizeDomain(domain string) string {
	domain = strings.TrimSpace(strings.ToLower(domain))
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	if idx := strings.IndexByte(domain, '/'); idx >= 0 {
		domain = domain[:idx]
	}
	return strings.TrimPrefix(domain, "@")
}
