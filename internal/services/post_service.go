package services

import (
	"time"

	"github.com/nottavi/forget/internal/database/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// postPageSize bounds how many posts a single store read returns, so a
// pass over a very large account never loads everything at once
const postPageSize = 200

// PostService is the store for posts and favourites
type PostService struct {
	db *gorm.DB
}

// NewPostService creates a new PostService instance
func NewPostService(db *gorm.DB) *PostService {
	return &PostService{db: db}
}

// InsertPosts writes a batch of imported posts. Re-inserting a post that
// already exists is a no-op: the natural key is (account_id, remote_id),
// so duplicate imports never create duplicate rows.
// Returns the number of rows actually created.
func (s *PostService) InsertPosts(posts []models.Post) (int, error) {
	if len(posts) == 0 {
		return 0, nil
	}
	res := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&posts)
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

// UpsertFetched writes posts pulled from the provider's timeline. Rows
// that already exist keep their identity but pick up the current
// favourite flag, so a post favourited after import gains its exemption.
// Returns the number of rows actually created.
func (s *PostService) UpsertFetched(posts []models.Post) (int, error) {
	if len(posts) == 0 {
		return 0, nil
	}

	before, err := s.CountAll(posts[0].AccountID)
	if err != nil {
		return 0, err
	}

	err = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}, {Name: "remote_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"favourite"}),
	}).Create(&posts).Error
	if err != nil {
		return 0, err
	}

	after, err := s.CountAll(posts[0].AccountID)
	if err != nil {
		return 0, err
	}
	return int(after - before), nil
}

// LivePosts returns one page of an account's non-deleted posts, oldest
// first, for paged iteration
func (s *PostService) LivePosts(accountID uint, offset, limit int) ([]models.Post, error) {
	if limit <= 0 || limit > postPageSize {
		limit = postPageSize
	}
	var posts []models.Post
	err := s.db.Where("account_id = ? AND deleted = ?", accountID, false).
		Order("created_at ASC, remote_id ASC").
		Offset(offset).
		Limit(limit).
		Find(&posts).Error
	return posts, err
}

// LiveNewestFirst returns one page of an account's non-deleted posts,
// newest first, resuming strictly after the cursor post. The cursor is
// keyset-based so pages stay stable while earlier posts are deleted
// mid-walk.
func (s *PostService) LiveNewestFirst(accountID uint, cursor *models.Post, limit int) ([]models.Post, error) {
	if limit <= 0 || limit > postPageSize {
		limit = postPageSize
	}
	q := s.db.Where("account_id = ? AND deleted = ?", accountID, false)
	if cursor != nil {
		q = q.Where("created_at < ? OR (created_at = ? AND remote_id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.RemoteID)
	}
	var posts []models.Post
	err := q.Order("created_at DESC, remote_id DESC").
		Limit(limit).
		Find(&posts).Error
	return posts, err
}

// MarkDeleted sets the soft-deleted marker on one post. Each marker is
// its own write so partial pass progress is durable.
func (s *PostService) MarkDeleted(postID uint, at time.Time) error {
	return s.db.Model(&models.Post{}).
		Where("id = ? AND deleted = ?", postID, false).
		Updates(map[string]interface{}{"deleted": true, "deleted_at": at}).Error
}

// CountLive returns how many non-deleted posts an account has
func (s *PostService) CountLive(accountID uint) (int64, error) {
	var n int64
	err := s.db.Model(&models.Post{}).
		Where("account_id = ? AND deleted = ?", accountID, false).
		Count(&n).Error
	return n, err
}

// CountAll returns the total number of posts stored for an account
func (s *PostService) CountAll(accountID uint) (int64, error) {
	var n int64
	err := s.db.Model(&models.Post{}).Where("account_id = ?", accountID).Count(&n).Error
	return n, err
}
