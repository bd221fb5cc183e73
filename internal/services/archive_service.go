package services

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/nottavi/forget/internal/database/models"
	"gorm.io/gorm"
)

var (
	// ErrArchiveCorrupt indicates the upload is not a readable archive.
	// Surfaced to the uploader as a dedicated error, not a crash.
	ErrArchiveCorrupt = errors.New("archive is corrupt")
	// ErrArchiveEmpty indicates the archive contains no month files
	ErrArchiveEmpty = errors.New("archive contains no posts")
	// ErrArchiveNotFound indicates the staging record is gone
	ErrArchiveNotFound = errors.New("archive not found")
	// ErrChunkNotFound indicates the named month file is missing
	ErrChunkNotFound = errors.New("archive chunk not found")
)

// tweetsPrefix is where the Twitter export keeps its month files
const tweetsPrefix = "data/js/tweets/"

// ArchiveService stages uploaded tweet archives and imports them into
// the post store, one month chunk at a time
type ArchiveService struct {
	db          *gorm.DB
	postService *PostService
	jobService  *JobService
	logService  *LogService
}

// NewArchiveService creates a new ArchiveService instance
func NewArchiveService(db *gorm.DB, postService *PostService, jobService *JobService) *ArchiveService {
	return &ArchiveService{
		db:          db,
		postService: postService,
		jobService:  jobService,
		logService:  NewLogService(db),
	}
}

// Upload stages an archive body, splits it into month chunks and
// enqueues one import job per chunk so a corrupt month never blocks the
// others. Corrupt or empty uploads are rejected with their dedicated
// errors and leave nothing behind.
func (s *ArchiveService) Upload(accountID uint, body []byte) (*models.TwitterArchive, error) {
	chunks, err := listChunks(body)
	if err != nil {
		return nil, err
	}

	archive := &models.TwitterArchive{
		AccountID: accountID,
		Body:      body,
		Chunks:    len(chunks),
	}
	if err := s.db.Create(archive).Error; err != nil {
		return nil, err
	}

	for _, chunk := range chunks {
		payload := models.ImportChunkPayload{ArchiveID: archive.ID, ChunkName: chunk}
		if err := s.jobService.Enqueue(models.JobKindImportChunk, accountID, payload, time.Now()); err != nil {
			return nil, err
		}
	}

	s.logService.LogArchiveChunked(accountID, archive.ID, len(chunks))
	return archive, nil
}

// listChunks validates the container and returns the ordered month files
func listChunks(body []byte) ([]string, error) {
	r, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, ErrArchiveCorrupt
	}

	var chunks []string
	for _, f := range r.File {
		if strings.HasPrefix(f.Name, tweetsPrefix) && path.Ext(f.Name) == ".js" {
			chunks = append(chunks, path.Base(f.Name))
		}
	}
	if len(chunks) == 0 {
		return nil, ErrArchiveEmpty
	}

	// Month files are named YYYY_MM.js; lexical order is chronological
	sort.Strings(chunks)
	return chunks, nil
}

// ImportChunk imports one month file into the post store. Safe to run
// again after a crash: the post natural key dedupes, so the returned
// count only reflects rows actually created.
func (s *ArchiveService) ImportChunk(archiveID uint, chunkName string) (int, error) {
	var archive models.TwitterArchive
	err := s.db.First(&archive, archiveID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrArchiveNotFound
	}
	if err != nil {
		return 0, err
	}

	raw, err := readChunk(archive.Body, chunkName)
	if err != nil {
		return 0, err
	}

	posts, skipped, err := parseMonthFile(raw, archive.AccountID)
	if err != nil {
		return 0, err
	}
	if skipped > 0 {
		log.Printf("[Archive] chunk %s of archive %d: skipped %d tweets with unreadable timestamps",
			chunkName, archive.ID, skipped)
		s.logService.LogTweetsSkipped(archive.AccountID, archive.ID, chunkName, skipped)
	}

	imported, err := s.postService.InsertPosts(posts)
	if err != nil {
		return 0, err
	}

	// Progress counters are observability, not correctness; the dedupe
	// above is what makes re-imports safe.
	err = s.db.Model(&archive).Updates(map[string]interface{}{
		"chunks_imported": gorm.Expr("chunks_imported + 1"),
		"posts_imported":  gorm.Expr("posts_imported + ?", imported),
	}).Error
	if err != nil {
		return imported, err
	}

	s.logService.LogChunkImported(archive.AccountID, archive.ID, chunkName, imported)

	// The staging body is only needed until every chunk has landed
	s.purgeIfComplete(archive.ID)

	return imported, nil
}

// purgeIfComplete drops the staging record once all chunks are imported
func (s *ArchiveService) purgeIfComplete(archiveID uint) {
	var archive models.TwitterArchive
	if err := s.db.First(&archive, archiveID).Error; err != nil {
		return
	}
	if archive.Complete() {
		s.db.Delete(&models.TwitterArchive{}, archiveID)
	}
}

// ListArchives returns an account's in-flight archives
func (s *ArchiveService) ListArchives(accountID uint) ([]models.TwitterArchive, error) {
	var archives []models.TwitterArchive
	err := s.db.Select("id", "account_id", "chunks", "chunks_imported", "posts_imported", "created_at", "updated_at").
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Find(&archives).Error
	return archives, err
}

func readChunk(body []byte, chunkName string) ([]byte, error) {
	r, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, ErrArchiveCorrupt
	}
	for _, f := range r.File {
		if strings.HasPrefix(f.Name, tweetsPrefix) && path.Base(f.Name) == chunkName {
			rc, err := f.Open()
			if err != nil {
				return nil, ErrArchiveCorrupt
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, ErrChunkNotFound
}

// archiveTweet is the subset of the Grailbird tweet JSON we keep
type archiveTweet struct {
	IDStr             string          `json:"id_str"`
	CreatedAt         string          `json:"created_at"`
	Text              string          `json:"text"`
	RetweetedStatus   json.RawMessage `json:"retweeted_status"`
	InReplyToStatusID string          `json:"in_reply_to_status_id_str"`
}

// parseMonthFile decodes one Grailbird month file. The file is a JS
// assignment ("Grailbird.data.tweets_YYYY_MM = [...]"); everything up to
// the first '=' is stripped before JSON decoding. Tweets whose timestamp
// cannot be parsed are skipped and counted: a zero time would be backfilled
// with the import time and shield the tweet behind any keep_younger
// setting.
func parseMonthFile(raw []byte, accountID uint) ([]models.Post, int, error) {
	if idx := bytes.IndexByte(raw, '='); idx >= 0 {
		raw = raw[idx+1:]
	}

	var tweets []archiveTweet
	if err := json.Unmarshal(bytes.TrimSpace(raw), &tweets); err != nil {
		return nil, 0, ErrArchiveCorrupt
	}

	skipped := 0
	posts := make([]models.Post, 0, len(tweets))
	for _, t := range tweets {
		if t.IDStr == "" {
			continue
		}
		ts, ok := parseTweetTime(t.CreatedAt)
		if !ok {
			skipped++
			continue
		}
		posts = append(posts, models.Post{
			AccountID: accountID,
			RemoteID:  t.IDStr,
			PostType:  tweetType(t),
			CreatedAt: ts,
			Body:      t.Text,
		})
	}
	return posts, skipped, nil
}

func tweetType(t archiveTweet) models.PostType {
	if len(t.RetweetedStatus) > 0 {
		return models.PostTypeRetweet
	}
	if t.InReplyToStatusID != "" {
		return models.PostTypeReply
	}
	return models.PostTypeOriginal
}

// Twitter has used two timestamp layouts across archive generations
var tweetTimeLayouts = []string{
	"2006-01-02 15:04:05 -0700",
	"Mon Jan 02 15:04:05 -0700 2006",
}

func parseTweetTime(s string) (time.Time, bool) {
	for _, layout := range tweetTimeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}
