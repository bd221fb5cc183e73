package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nottavi/forget/internal/services"
)

// AdminHandler serves the operator surface, protected by the API key
// rather than a browser session
type AdminHandler struct {
	accountService *services.AccountService
	jobService     *services.JobService
}

// NewAdminHandler creates a new AdminHandler instance
func NewAdminHandler(accountService *services.AccountService, jobService *services.JobService) *AdminHandler {
	return &AdminHandler{
		accountService: accountService,
		jobService:     jobService,
	}
}

// ListAccounts returns every linked account
// GET /api/admin/accounts
func (h *AdminHandler) ListAccounts(c *gin.Context) {
	accounts, err := h.accountService.ListAccounts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "Failed to retrieve accounts",
			},
		})
		return
	}

	response := make([]AccountResponse, 0, len(accounts))
	for i := range accounts {
		response = append(response, toAccountResponse(&accounts[i]))
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    response,
	})
}

// QueueStats reports how much work is waiting
// GET /api/admin/queue
func (h *AdminHandler) QueueStats(c *gin.Context) {
	pending, err := h.jobService.PendingCount()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "Failed to count pending jobs",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"pending_jobs": pending},
	})
}
