package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nottavi/forget/internal/api/middleware"
	"github.com/nottavi/forget/internal/database/models"
	"github.com/nottavi/forget/internal/services"
)

// maxArchiveBytes caps uploads; Twitter archives of heavy accounts run
// to a few hundred MB
const maxArchiveBytes = 512 << 20

// ArchiveHandler handles tweet archive uploads and import progress
type ArchiveHandler struct {
	archiveService *services.ArchiveService
}

// NewArchiveHandler creates a new ArchiveHandler instance
func NewArchiveHandler(archiveService *services.ArchiveService) *ArchiveHandler {
	return &ArchiveHandler{archiveService: archiveService}
}

// ArchiveResponse is the import progress shape handed to clients
type ArchiveResponse struct {
	ID             uint  `json:"id"`
	Chunks         int   `json:"chunks"`
	ChunksImported int   `json:"chunks_imported"`
	PostsImported  int   `json:"posts_imported"`
	CreatedAt      int64 `json:"created_at"`
}

func toArchiveResponse(archive *models.TwitterArchive) ArchiveResponse {
	return ArchiveResponse{
		ID:             archive.ID,
		Chunks:         archive.Chunks,
		ChunksImported: archive.ChunksImported,
		PostsImported:  archive.PostsImported,
		CreatedAt:      archive.CreatedAt.Unix(),
	}
}

// Upload accepts a Twitter archive zip as multipart form field "archive"
// and stages it for import. Only Twitter accounts have archives.
// POST /api/archive
func (h *ArchiveHandler) Upload(c *gin.Context) {
	account, exists := middleware.GetAccountFromContext(c)
	if !exists {
		respondNotAuthenticated(c)
		return
	}

	if account.Service != models.ServiceTwitter {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Archive import is only available for Twitter accounts",
			},
		})
		return
	}

	file, _, err := c.Request.FormFile("archive")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Form field 'archive' is required",
			},
		})
		return
	}
	defer file.Close()

	body, err := io.ReadAll(io.LimitReader(file, maxArchiveBytes+1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "Failed to read upload",
			},
		})
		return
	}
	if len(body) > maxArchiveBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Archive is too large",
			},
		})
		return
	}

	archive, err := h.archiveService.Upload(account.ID, body)
	if err != nil {
		if errors.Is(err, services.ErrArchiveCorrupt) {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "ARCHIVE_CORRUPT",
					"message": "The file is not a readable Twitter archive",
				},
			})
			return
		}
		if errors.Is(err, services.ErrArchiveEmpty) {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "ARCHIVE_EMPTY",
					"message": "The archive contains no tweets",
				},
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "Failed to stage archive",
			},
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"data":    toArchiveResponse(archive),
	})
}

// List returns the account's in-flight archive imports. Finished
// archives are purged, so an empty list means everything has landed.
// GET /api/archive
func (h *ArchiveHandler) List(c *gin.Context) {
	account, exists := middleware.GetAccountFromContext(c)
	if !exists {
		respondNotAuthenticated(c)
		return
	}

	archives, err := h.archiveService.ListArchives(account.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "Failed to list archives",
			},
		})
		return
	}

	response := make([]ArchiveResponse, 0, len(archives))
	for i := range archives {
		response = append(response, toArchiveResponse(&archives[i]))
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    response,
	})
}
