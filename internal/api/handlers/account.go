package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nottavi/forget/internal/api/middleware"
	"github.com/nottavi/forget/internal/database/models"
	"github.com/nottavi/forget/internal/services"
)

// AccountHandler handles account settings and policy state transitions
type AccountHandler struct {
	accountService *services.AccountService
	postService    *services.PostService
	logService     *services.LogService
}

// NewAccountHandler creates a new AccountHandler instance
func NewAccountHandler(accountService *services.AccountService, postService *services.PostService,
	logService *services.LogService) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
		postService:    postService,
		logService:     logService,
	}
}

// UpdateSettingsRequest is a partial policy update; absent fields keep
// their current value
type UpdateSettingsRequest struct {
	KeepFavourites         *bool   `json:"policy_keep_favourites"`
	KeepLatest             *int    `json:"policy_keep_latest"`
	DeleteEverySignificand *int    `json:"policy_delete_every_significand"`
	DeleteEveryScale       *string `json:"policy_delete_every_scale"`
	KeepYoungerSignificand *int    `json:"policy_keep_younger_significand"`
	KeepYoungerScale       *string `json:"policy_keep_younger_scale"`
}

// AccountResponse is the account shape handed to clients. Credentials
// never leave the server.
type AccountResponse struct {
	ID             uint   `json:"id"`
	Service        string `json:"service"`
	ScreenName     string `json:"screen_name"`
	InstanceDomain string `json:"instance_domain,omitempty"`

	PolicyEnabled                bool   `json:"policy_enabled"`
	PolicyKeepFavourites         bool   `json:"policy_keep_favourites"`
	PolicyKeepLatest             int    `json:"policy_keep_latest"`
	PolicyDeleteEverySignificand int    `json:"policy_delete_every_significand"`
	PolicyDeleteEveryScale       string `json:"policy_delete_every_scale"`
	PolicyKeepYoungerSignificand int    `json:"policy_keep_younger_significand"`
	PolicyKeepYoungerScale       string `json:"policy_keep_younger_scale"`

	LastDelete *int64 `json:"last_delete,omitempty"`
	Dormant    bool   `json:"dormant"`
	CreatedAt  int64  `json:"created_at"`
}

// toAccountResponse converts an Account model to AccountResponse
func toAccountResponse(account *models.Account) AccountResponse {
	resp := AccountResponse{
		ID:                           account.ID,
		Service:                      string(account.Service),
		ScreenName:                   account.ScreenName,
		InstanceDomain:               account.InstanceDomain,
		PolicyEnabled:                account.PolicyEnabled,
		PolicyKeepFavourites:         account.PolicyKeepFavourites,
		PolicyKeepLatest:             account.PolicyKeepLatest,
		PolicyDeleteEverySignificand: account.PolicyDeleteEverySignificand,
		PolicyDeleteEveryScale:       string(account.PolicyDeleteEveryScale),
		PolicyKeepYoungerSignificand: account.PolicyKeepYoungerSignificand,
		PolicyKeepYoungerScale:       string(account.PolicyKeepYoungerScale),
		Dormant:                      account.Dormant,
		CreatedAt:                    account.CreatedAt.Unix(),
	}
	if account.LastDelete != nil {
		ts := account.LastDelete.Unix()
		resp.LastDelete = &ts
	}
	return resp
}

// GetSettings returns the current account and policy
// GET /api/settings
func (h *AccountHandler) GetSettings(c *gin.Context) {
	account, exists := middleware.GetAccountFromContext(c)
	if !exists {
		respondNotAuthenticated(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    toAccountResponse(account),
	})
}

// UpdateSettings applies a partial policy update
// PUT /api/settings
func (h *AccountHandler) UpdateSettings(c *gin.Context) {
	account, exists := middleware.GetAccountFromContext(c)
	if !exists {
		respondNotAuthenticated(c)
		return
	}

	var req UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid request body",
				"details": err.Error(),
			},
		})
		return
	}

	input := services.UpdatePolicyInput{
		KeepFavourites:         req.KeepFavourites,
		KeepLatest:             req.KeepLatest,
		DeleteEverySignificand: req.DeleteEverySignificand,
		KeepYoungerSignificand: req.KeepYoungerSignificand,
	}
	if req.DeleteEveryScale != nil {
		scale := models.IntervalScale(*req.DeleteEveryScale)
		input.DeleteEveryScale = &scale
	}
	if req.KeepYoungerScale != nil {
		scale := models.IntervalScale(*req.KeepYoungerScale)
		input.KeepYoungerScale = &scale
	}

	updated, err := h.accountService.UpdatePolicy(account.ID, input)
	if err != nil {
		if errors.Is(err, services.ErrInvalidKeepLatest) ||
			errors.Is(err, services.ErrInvalidSignificand) ||
			errors.Is(err, services.ErrInvalidScale) {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "SETTINGS_INVALID",
					"message": err.Error(),
				},
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "Failed to update settings",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    toAccountResponse(updated),
	})
}

// EnableRequest carries the explicit confirmation for risky enables
type EnableRequest struct {
	Confirmed bool `json:"confirmed"`
}

// Enable turns the deletion policy on. When the transition needs
// confirmation the account stays disabled and the warning is returned
// with code CONFIRM_REQUIRED; the client re-submits with confirmed=true.
// PUT /api/settings/enable
func (h *AccountHandler) Enable(c *gin.Context) {
	account, exists := middleware.GetAccountFromContext(c)
	if !exists {
		respondNotAuthenticated(c)
		return
	}

	var req EnableRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid request body",
			},
		})
		return
	}

	updated, warning, err := h.accountService.Enable(account.ID, req.Confirmed, time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "Failed to enable deletion",
			},
		})
		return
	}

	if warning != nil {
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "CONFIRM_REQUIRED",
				"message": warning.Message,
				"details": warning,
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    toAccountResponse(updated),
	})
}

// Disable turns the deletion policy off. Never needs confirmation.
// PUT /api/settings/disable
func (h *AccountHandler) Disable(c *gin.Context) {
	account, exists := middleware.GetAccountFromContext(c)
	if !exists {
		respondNotAuthenticated(c)
		return
	}

	updated, err := h.accountService.Disable(account.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "Failed to disable deletion",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    toAccountResponse(updated),
	})
}

// Estimate previews how many posts the current policy would delete
// GET /api/settings/estimate
func (h *AccountHandler) Estimate(c *gin.Context) {
	account, exists := middleware.GetAccountFromContext(c)
	if !exists {
		respondNotAuthenticated(c)
		return
	}

	eligible, err := h.accountService.EstimateEligible(account, time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "Failed to estimate eligible posts",
			},
		})
		return
	}

	total, err := h.postService.CountLive(account.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "Failed to count posts",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"eligible": eligible,
			"total":    total,
		},
	})
}

// DeleteAccount removes the account, its posts, sessions, archives and
// queued work in one transaction. The posts on the remote service are
// left alone.
// DELETE /api/settings/account
func (h *AccountHandler) DeleteAccount(c *gin.Context) {
	account, exists := middleware.GetAccountFromContext(c)
	if !exists {
		respondNotAuthenticated(c)
		return
	}

	if err := h.accountService.DeleteAccount(account.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "Failed to delete account",
			},
		})
		return
	}

	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"message": "Account deleted"},
	})
}

// GetLogs returns the account's recent activity log
// GET /api/logs
func (h *AccountHandler) GetLogs(c *gin.Context) {
	account, exists := middleware.GetAccountFromContext(c)
	if !exists {
		respondNotAuthenticated(c)
		return
	}

	logs, err := h.logService.GetLogs(account.ID, 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "Failed to retrieve logs",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    logs,
	})
}

// respondNotAuthenticated is the shared 401 shape for handlers reached
// without a resolved session
func respondNotAuthenticated(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "AUTH_FAILED",
			"message": "Not logged in",
		},
	})
}
