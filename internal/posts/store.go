package posts

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// List returns every post, newest first, with category and tags loaded.
func List(db *gorm.DB) ([]Post, error) {
	var posts []Post
	err := db.Preload("Category").Preload("Tags").
		Order("created_at DESC").
		Find(&posts).Error
	return posts, err
}

// Get loads a post by ID.
func Get(db *gorm.DB, id string) (*Post, error) {
	var post Post
	err := db.Preload("Category").Preload("Tags").Where("id = ?", id).First(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// GetPublishedBySlug loads a post that is publicly visible at now.
// Drafts and scheduled posts are reported as not found.
func GetPublishedBySlug(db *gorm.DB, slug string, now time.Time) (*Post, error) {
	var post Post
	err := db.Preload("Category").Preload("Tags").
		Where("slug = ? AND status = ?", slug, StatusPublished).
		First(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, err
	}
	if !post.IsPublished(now) {
		return nil, ErrPostNotFound
	}
	return &post, nil
}

func (in *Input) normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Slug = strings.TrimSpace(in.Slug)
	if in.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidPost)
	}
	if in.Slug == "" {
		in.Slug = GenerateSlug(in.Title)
	}
	if in.Slug == "" {
		return fmt.Errorf("%w: slug is required", ErrInvalidPost)
	}
	if in.Status == "" {
		in.Status = StatusDraft
	}
	if !in.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidPost, in.Status)
	}
	if in.Status == StatusPublished && in.PublishedAt == nil {
		now := time.Now().UTC()
		in.PublishedAt = &now
	}
	return nil
}

func slugTaken(db *gorm.DB, slug, exceptID string) (bool, error) {
	q := db.Model(&Post{}).Where("slug = ?", slug)
	if exceptID != "" {
		q = q.Where("id <> ?", exceptID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func findTags(db *gorm.DB, ids []string) ([]Tag, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var tags []Tag
	if err := db.Where("id IN ?", ids).Find(&tags).Error; err != nil {
		return nil, err
	}
	if len(tags) != len(ids) {
		return nil, fmt.Errorf("%w: unknown tag id", ErrInvalidPost)
	}
	return tags, nil
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

// Create stores a new post authored by authorID.
func Create(db *gorm.DB, logger *slog.Logger, authorID uint, in Input) (*Post, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	taken, err := slugTaken(db, in.Slug, "")
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrSlugTaken
	}
	tags, err := findTags(db, in.TagIDs)
	if err != nil {
		return nil, err
	}

	post := Post{
		ID:           uuid.NewString(),
		Title:        in.Title,
		Slug:         in.Slug,
		Content:      in.Content,
		Excerpt:      in.Excerpt,
		ThumbnailURL: in.ThumbnailURL,
		Status:       in.Status,
		PublishedAt:  in.PublishedAt,
		CategoryID:   nullable(in.CategoryID),
		Tags:         tags,
	}
	if authorID != 0 {
		post.AuthorID = &authorID
	}

	err = sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Omit("Tags.*").Create(&post).Error
	})
	if err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	logger.Info("Post created", slog.String("id", post.ID), slog.String("slug", post.Slug))
	return Get(db, post.ID)
}

// Update replaces the editable fields of a post. Tag links are replaced in
// the same transaction.
func Update(db *gorm.DB, logger *slog.Logger, id string, in Input) (*Post, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	post, err := Get(db, id)
	if err != nil {
		return nil, err
	}
	taken, err := slugTaken(db, in.Slug, id)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrSlugTaken
	}
	tags, err := findTags(db, in.TagIDs)
	if err != nil {
		return nil, err
	}

	err = sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		err := tx.Model(&Post{ID: post.ID}).Updates(map[string]any{
			"title":         in.Title,
			"slug":          in.Slug,
			"content":       in.Content,
			"excerpt":       in.Excerpt,
			"thumbnail_url": in.ThumbnailURL,
			"status":        in.Status,
			"published_at":  in.PublishedAt,
			"category_id":   nullable(in.CategoryID),
		}).Error
		if err != nil {
			return err
		}
		association := tx.Model(&Post{ID: post.ID}).Association("Tags")
		if len(tags) == 0 {
			return association.Clear()
		}
		return association.Replace(tags)
	})
	if err != nil {
		return nil, fmt.Errorf("update post %s: %w", id, err)
	}
	return Get(db, id)
}

// Delete removes a post and its tag links.
func Delete(db *gorm.DB, logger *slog.Logger, id string) error {
	if _, err := Get(db, id); err != nil {
		return err
	}
	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		if err := tx.Model(&Post{ID: id}).Association("Tags").Clear(); err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&Post{}).Error
	})
	if err != nil {
		return fmt.Errorf("delete post %s: %w", id, err)
	}
	logger.Info("Post deleted", slog.String("id", id))
	return nil
}

// CreateTag stores a tag whose slug is derived from its name. Both name and
// slug must be unused.
func CreateTag(db *gorm.DB, logger *slog.Logger, name string) (*Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: tag name is required", ErrInvalidPost)
	}
	slug := GenerateSlug(name)
	if slug == "" {
		return nil, fmt.Errorf("%w: tag name has no usable characters", ErrInvalidPost)
	}

	var count int64
	if err := db.Model(&Tag{}).Where("name = ? OR slug = ?", name, slug).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrTagExists
	}

	tag := Tag{ID: uuid.NewString(), Name: name, Slug: slug}
	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(&tag).Error
	})
	if err != nil {
		return nil, fmt.Errorf("create tag: %w", err)
	}
	return &tag, nil
}

// Summary is the listing view of a post.
type Summary struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Slug   string `json:"slug"`
	Status Status `json:"status"`
}

// SummariesByID loads summaries keyed by post ID. Unknown IDs are left out.
func SummariesByID(db *gorm.DB, ids []string) (map[string]Summary, error) {
	summaries := make(map[string]Summary, len(ids))
	if len(ids) == 0 {
		return summaries, nil
	}
	var rows []Summary
	if err := db.Model(&Post{}).Select("id, title, slug, status").Where("id IN ?", ids).Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		summaries[row.ID] = row
	}
	return summaries, nil
}

// Counts summarizes posts by status.
type Counts struct {
	Total     int64 `json:"total"`
	Published int64 `json:"published"`
	Drafts    int64 `json:"drafts"`
}

func CountByStatus(db *gorm.DB) (Counts, error) {
	var rows []struct {
		Status Status
		Count  int64
	}
	err := db.Model(&Post{}).Select("status, COUNT(*) AS count").Group("status").Scan(&rows).Error
	if err != nil {
		return Counts{}, err
	}
	var c Counts
	for _, row := range rows {
		c.Total += row.Count
		switch row.Status {
		case StatusPublished:
			c.Published = row.Count
		case StatusDraft:
			c.Drafts = row.Count
		}
	}
	return c, nil
}
