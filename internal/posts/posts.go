package posts

import (
	"errors"
	"time"
)

// Status is the publication state of a post.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusDraft || s == StatusPublished
}

var (
	ErrPostNotFound = errors.New("post not found")
	ErrSlugTaken    = errors.New("slug already in use")
	ErrTagExists    = errors.New("tag already exists")
	ErrInvalidPost  = errors.New("invalid post")
)

type Category struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Name      string    `gorm:"uniqueIndex;not null" json:"name"`
	Slug      string    `gorm:"uniqueIndex;not null" json:"slug"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Category) TableName() string { return "categories" }

type Tag struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Name      string    `gorm:"uniqueIndex;not null" json:"name"`
	Slug      string    `gorm:"uniqueIndex;not null" json:"slug"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Tag) TableName() string { return "tags" }

// Post is a blog article. Views reference it by ID.
type Post struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	Title        string     `gorm:"not null" json:"title"`
	Slug         string     `gorm:"uniqueIndex;not null" json:"slug"`
	Content      string     `gorm:"type:text" json:"content"`
	Excerpt      string     `json:"excerpt,omitempty"`
	ThumbnailURL string     `json:"thumbnail_url,omitempty"`
	Status       Status     `gorm:"index;not null;default:draft" json:"status"`
	PublishedAt  *time.Time `gorm:"index" json:"published_at"`
	AuthorID     *uint      `json:"author_id,omitempty"`
	CategoryID   *string    `gorm:"size:36;index" json:"category_id"`
	Category     *Category  `gorm:"constraint:OnDelete:SET NULL" json:"category,omitempty"`
	Tags         []Tag      `gorm:"many2many:post_tags;constraint:OnDelete:CASCADE" json:"tags"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Post) TableName() string { return "posts" }

// IsPublished reports whether the post is visible on the public site at t.
func (p Post) IsPublished(t time.Time) bool {
	if p.Status != StatusPublished {
		return false
	}
	return p.PublishedAt == nil || !p.PublishedAt.After(t)
}

// Input carries the editable fields of a post.
type Input struct {
	Title        string     `json:"title"`
	Slug         string     `json:"slug"`
	Content      string     `json:"content"`
	Excerpt      string     `json:"excerpt"`
	ThumbnailURL string     `json:"thumbnail_url"`
	Status       Status     `json:"status"`
	PublishedAt  *time.Time `json:"published_at"`
	CategoryID   string     `json:"category_id"`
	TagIDs       []string   `json:"tag_ids"`
}
