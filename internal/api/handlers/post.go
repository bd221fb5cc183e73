package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nottavi/forget/internal/api/middleware"
	"github.com/nottavi/forget/internal/database/models"
	"github.com/nottavi/forget/internal/services"
)

const (
	defaultPostPageSize = 50
	maxPostPageSize     = 200
)

// PostHandler serves the account's stored post mirror
type PostHandler struct {
	postService *services.PostService
}

// NewPostHandler creates a new PostHandler instance
func NewPostHandler(postService *services.PostService) *PostHandler {
	return &PostHandler{postService: postService}
}

// PostResponse is the post shape handed to clients
type PostResponse struct {
	ID         uint   `json:"id"`
	RemoteID   string `json:"remote_id"`
	PostType   string `json:"post_type"`
	Body       string `json:"body"`
	Favourite  bool   `json:"favourite"`
	CreatedAt  int64  `json:"created_at"`
}

func toPostResponse(post *models.Post) PostResponse {
	return PostResponse{
		ID:         post.ID,
		RemoteID:   post.RemoteID,
		PostType:   string(post.PostType),
		Body:       post.Body,
		Favourite:  post.Favourite,
		CreatedAt:  post.CreatedAt.Unix(),
	}
}

// List returns a page of the account's live posts, oldest first
// GET /api/posts?offset=0&limit=50
func (h *PostHandler) List(c *gin.Context) {
	account, exists := middleware.GetAccountFromContext(c)
	if !exists {
		respondNotAuthenticated(c)
		return
	}

	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPostPageSize)))
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > maxPostPageSize {
		limit = defaultPostPageSize
	}

	posts, err := h.postService.LivePosts(account.ID, offset, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "Failed to retrieve posts",
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

	response := make([]PostResponse, 0, len(posts))
	for i := range posts {
		response = append(response, toPostResponse(&posts[i]))
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"posts":  response,
			"total":  total,
			"offset": offset,
			"limit":  limit,
		},
	})
}
