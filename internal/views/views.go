// Package views records individual blog article views.
package views

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"portfolio/internal/timeframe"
)

// MaxUserAgentLength is the longest user agent, in characters, stored with a
// view.
const MaxUserAgentLength = 500

// Reasons a view was not counted.
const (
	ReasonBot            = "bot"
	ReasonAlreadyCounted = "already_counted"
)

var ErrMissingPostID = errors.New("postId is required")

// RawView is one counted view. ViewDate is the calendar day of ViewedAt in
// the site timezone; together with PostID and IPHash it is unique, so a
// visitor counts at most once per article per day.
type RawView struct {
	ID        uint      `gorm:"primaryKey"`
	PostID    string    `gorm:"not null;index;uniqueIndex:idx_raw_views_visitor_day,priority:1"`
	IPHash    string    `gorm:"column:ip_hash;not null;uniqueIndex:idx_raw_views_visitor_day,priority:2"`
	ViewDate  string    `gorm:"not null;uniqueIndex:idx_raw_views_visitor_day,priority:3"`
	UserAgent string    `gorm:"size:500"`
	ViewedAt  time.Time `gorm:"not null;index"`
}

func (RawView) TableName() string {
	return "raw_views"
}

// NewRawView builds a view row with the day bucket derived from viewedAt.
func NewRawView(postID, ipHash, userAgent string, viewedAt time.Time, loc *time.Location) RawView {
	return RawView{
		PostID:    postID,
		IPHash:    ipHash,
		ViewDate:  timeframe.DayKey(viewedAt, loc),
		UserAgent: TruncateUserAgent(userAgent),
		ViewedAt:  viewedAt.UTC(),
	}
}

// HashIP derives the per-day, per-article visitor identifier. The raw IP is
// never stored; the digest changes every day and differs between articles.
func HashIP(clientIP, postID, day string) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s-%s-%s", clientIP, postID, day)))
	return hex.EncodeToString(hash[:])
}

// TruncateUserAgent keeps the first MaxUserAgentLength characters of ua.
func TruncateUserAgent(ua string) string {
	if len(ua) <= MaxUserAgentLength {
		return ua
	}
	runes := 0
	for i := range ua {
		if runes == MaxUserAgentLength {
			return ua[:i]
		}
		runes++
	}
	return ua
}

// RecordInput is what the public endpoint extracts from a request.
type RecordInput struct {
	PostID    string
	UserAgent string
	ClientIP  string
}

// RecordResult tells the caller whether the view was counted and, if not, why.
type RecordResult struct {
	Counted bool   `json:"counted"`
	Reason  string `json:"reason,omitempty"`
}

// Recorder turns page views into RawView rows.
type Recorder struct {
	Clock    timeframe.TimeProvider
	Location *time.Location
	Logger   *slog.Logger
}

// NewRecorder creates a recorder using the system clock.
func NewRecorder(loc *time.Location, logger *slog.Logger) *Recorder {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		Clock:    &timeframe.DefaultTimeProvider{},
		Location: loc,
		Logger:   logger,
	}
}

// RecordView stores a view unless the user agent is a crawler or the visitor
// already viewed the article today. Deduplication is enforced by the unique
// index, so concurrent requests from the same visitor cannot both count.
func (r *Recorder) RecordView(ctx context.Context, db *gorm.DB, input RecordInput) (RecordResult, error) {
	if input.PostID == "" {
		return RecordResult{}, ErrMissingPostID
	}

	if IsBot(input.UserAgent) {
		return RecordResult{Counted: false, Reason: ReasonBot}, nil
	}

	current := r.Clock.Now(r.Location)
	day := timeframe.DayKey(current, r.Location)
	view := NewRawView(input.PostID, HashIP(input.ClientIP, input.PostID, day), input.UserAgent, current, r.Location)

	var inserted int64
	err := sqlite.PerformWrite(r.Logger, db.WithContext(ctx), func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&view)
		inserted = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return RecordResult{}, fmt.Errorf("record view for post %s: %w", input.PostID, err)
	}

	if inserted == 0 {
		return RecordResult{Counted: false, Reason: ReasonAlreadyCounted}, nil
	}
	return RecordResult{Counted: true}, nil
}

// CountBetween counts raw views with viewed_at inside r.
func CountBetween(db *gorm.DB, r timeframe.Range) (int64, error) {
	r = r.UTC()
	var count int64
	err := db.Model(&RawView{}).
		Where("viewed_at >= ? AND viewed_at < ?", r.From, r.To).
		Count(&count).Error
	return count, err
}
