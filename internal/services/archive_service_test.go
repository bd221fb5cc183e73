package services

import (
	"archive/zip"
	"bytes"
	"errors"
	"testing"

	"github.com/nottavi/forget/internal/database/models"
)

// buildArchive assembles a zip with the given month files under the
// Twitter export layout
func buildArchive(t *testing.T, months map[string]string) []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range months {
		f, err := w.Create("data/js/tweets/" + name)
		if err != nil {
			t.Fatalf("Failed to add %s: %v", name, err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close zip: %v", err)
	}
	return buf.Bytes()
}

const marchChunk = `Grailbird.data.tweets_2015_03 =
[ {
  "id_str" : "101",
  "created_at" : "2015-03-01 10:00:00 +0000",
  "text" : "first tweet"
}, {
  "id_str" : "102",
  "created_at" : "2015-03-02 10:00:00 +0000",
  "text" : "a reply",
  "in_reply_to_status_id_str" : "55"
}, {
  "id_str" : "103",
  "created_at" : "2015-03-03 10:00:00 +0000",
  "text" : "RT something",
  "retweeted_status" : { "id_str" : "99" }
} ]`

const aprilChunk = `Grailbird.data.tweets_2015_04 =
[ {
  "id_str" : "201",
  "created_at" : "2015-04-01 10:00:00 +0000",
  "text" : "april tweet"
} ]`

func TestUpload_RejectsCorruptArchive(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	service := NewArchiveService(db, NewPostService(db), NewJobService(db))

	if _, err := service.Upload(1, []byte("this is not a zip")); !errors.Is(err, ErrArchiveCorrupt) {
		t.Fatalf("expected ErrArchiveCorrupt, got %v", err)
	}
}

func TestUpload_RejectsEmptyArchive(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	service := NewArchiveService(db, NewPostService(db), NewJobService(db))

	body := buildArchive(t, map[string]string{}) // valid zip, no month files
	if _, err := service.Upload(1, body); !errors.Is(err, ErrArchiveEmpty) {
		t.Fatalf("expected ErrArchiveEmpty, got %v", err)
	}
}

func TestUpload_EnqueuesOneJobPerChunk(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	jobService := NewJobService(db)
	service := NewArchiveService(db, NewPostService(db), jobService)

	body := buildArchive(t, map[string]string{
		"2015_03.js": marchChunk,
		"2015_04.js": aprilChunk,
	})

	archive, err := service.Upload(1, body)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if archive.Chunks != 2 {
		t.Fatalf("expected 2 chunks, got %d", archive.Chunks)
	}

	var jobs []models.Job
	if err := db.Where("kind = ?", models.JobKindImportChunk).Find(&jobs).Error; err != nil {
		t.Fatalf("Failed to query jobs: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 import jobs, got %d", len(jobs))
	}
}

func TestImportChunk_ReimportCreatesNothing(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	postService := NewPostService(db)
	service := NewArchiveService(db, postService, NewJobService(db))

	body := buildArchive(t, map[string]string{"2015_03.js": marchChunk})
	archive, err := service.Upload(7, body)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	imported, err := service.ImportChunk(archive.ID, "2015_03.js")
	if err != nil {
		t.Fatalf("ImportChunk failed: %v", err)
	}
	if imported != 3 {
		t.Fatalf("expected 3 imported posts, got %d", imported)
	}

	// 重新导入同一个月份文件：自然键去重，不产生新行
	// The archive row is purged once complete, so re-stage the same body
	archive2, err := service.Upload(7, body)
	if err != nil {
		t.Fatalf("second Upload failed: %v", err)
	}
	imported, err = service.ImportChunk(archive2.ID, "2015_03.js")
	if err != nil {
		t.Fatalf("second ImportChunk failed: %v", err)
	}
	if imported != 0 {
		t.Fatalf("re-import must create nothing, got %d new posts", imported)
	}

	total, err := postService.CountAll(7)
	if err != nil {
		t.Fatalf("CountAll failed: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected 3 posts total, got %d", total)
	}
}

func TestImportChunk_ClassifiesPostTypes(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	service := NewArchiveService(db, NewPostService(db), NewJobService(db))

	body := buildArchive(t, map[string]string{"2015_03.js": marchChunk})
	archive, err := service.Upload(1, body)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if _, err := service.ImportChunk(archive.ID, "2015_03.js"); err != nil {
		t.Fatalf("ImportChunk failed: %v", err)
	}

	expect := map[string]models.PostType{
		"101": models.PostTypeOriginal,
		"102": models.PostTypeReply,
		"103": models.PostTypeRetweet,
	}
	for remoteID, want := range expect {
		var post models.Post
		if err := db.First(&post, "remote_id = ?", remoteID).Error; err != nil {
			t.Fatalf("post %s not found: %v", remoteID, err)
		}
		if post.PostType != want {
			t.Fatalf("post %s: expected type %s, got %s", remoteID, want, post.PostType)
		}
	}
}

func TestImportChunk_PurgesCompletedArchive(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	service := NewArchiveService(db, NewPostService(db), NewJobService(db))

	body := buildArchive(t, map[string]string{"2015_03.js": marchChunk})
	archive, err := service.Upload(1, body)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if _, err := service.ImportChunk(archive.ID, "2015_03.js"); err != nil {
		t.Fatalf("ImportChunk failed: %v", err)
	}

	// Every chunk has landed, so the staging row and its body are gone
	archives, err := service.ListArchives(1)
	if err != nil {
		t.Fatalf("ListArchives failed: %v", err)
	}
	if len(archives) != 0 {
		t.Fatalf("completed archive must be purged, found %d rows", len(archives))
	}
}

func TestImportChunk_MissingChunk(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	service := NewArchiveService(db, NewPostService(db), NewJobService(db))

	body := buildArchive(t, map[string]string{"2015_03.js": marchChunk})
	archive, err := service.Upload(1, body)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	if _, err := service.ImportChunk(archive.ID, "2019_12.js"); !errors.Is(err, ErrChunkNotFound) {
		t.Fatalf("expected ErrChunkNotFound, got %v", err)
	}
}

func TestImportChunk_SkipsUnreadableTimestamps(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	postService := NewPostService(db)
	service := NewArchiveService(db, postService, NewJobService(db))

	// 第一条推文的时间戳损坏:导入时必须跳过,否则零值时间会被
	// 建档时间顶替,让老帖伪装成新帖
	chunk := `Grailbird.data.tweets_2015_05 =
[ {
  "id_str" : "301",
  "created_at" : "not a timestamp",
  "text" : "broken clock"
}, {
  "id_str" : "302",
  "created_at" : "2015-05-02 10:00:00 +0000",
  "text" : "fine"
} ]`
	body := buildArchive(t, map[string]string{"2015_05.js": chunk})
	archive, err := service.Upload(6, body)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	imported, err := service.ImportChunk(archive.ID, "2015_05.js")
	if err != nil {
		t.Fatalf("ImportChunk failed: %v", err)
	}
	if imported != 1 {
		t.Fatalf("expected 1 imported post, got %d", imported)
	}

	var n int64
	if err := db.Model(&models.Post{}).Where("account_id = ? AND remote_id = ?", 6, "301").Count(&n).Error; err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 0 {
		t.Fatal("the tweet with the broken timestamp must not be imported")
	}

	// The skip is visible in the account's activity log
	if err := db.Model(&models.Log{}).Where("account_id = ? AND action = ?", 6, "tweets_skipped").Count(&n).Error; err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one tweets_skipped log row, found %d", n)
	}
}
