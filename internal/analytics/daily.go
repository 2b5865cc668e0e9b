package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"portfolio/internal/devices"
	"portfolio/internal/timeframe"
	"portfolio/internal/views"
)

type postDayCounts struct {
	PostID         string
	ViewCount      int
	UniqueVisitors int
}

// dayCountsQuery counts views and distinct visitors per post inside r.
func dayCountsQuery(r timeframe.Range) (string, []any, error) {
	return sq.Select(
		"post_id",
		"COUNT(*) AS view_count",
		"COUNT(DISTINCT ip_hash) AS unique_visitors",
	).
		From(views.RawView{}.TableName()).
		Where(sq.GtOrEq{"viewed_at": r.From}).
		Where(sq.Lt{"viewed_at": r.To}).
		GroupBy("post_id").
		OrderBy("post_id").
		ToSql()
}

// deviceStatsForRange classifies every stored user agent inside r.
func deviceStatsForRange(ctx context.Context, db *gorm.DB, r timeframe.Range) (map[string]devices.Stats, error) {
	rows, err := db.WithContext(ctx).
		Model(&views.RawView{}).
		Select("post_id", "user_agent").
		Where("viewed_at >= ? AND viewed_at < ?", r.From, r.To).
		Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[string]devices.Stats)
	for rows.Next() {
		var postID string
		var userAgent sql.NullString
		if err := rows.Scan(&postID, &userAgent); err != nil {
			return nil, err
		}
		s := stats[postID]
		s.Add(devices.Classify(userAgent.String))
		stats[postID] = s
	}
	return stats, rows.Err()
}

// AggregateDaily rolls up every raw view of the calendar day containing day
// into one DailyAggregate per article, overwriting earlier results for that
// day. All rows are written in a single transaction. It returns the number of
// articles aggregated; articles without views get no row.
func AggregateDaily(ctx context.Context, db *gorm.DB, logger *slog.Logger, day time.Time, loc *time.Location) (int, error) {
	r := timeframe.DayRange(day, loc).UTC()
	dateKey := timeframe.DayKey(day, loc)

	query, args, err := dayCountsQuery(r)
	if err != nil {
		return 0, fmt.Errorf("build daily count query: %w", err)
	}

	var counts []postDayCounts
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&counts).Error; err != nil {
		return 0, fmt.Errorf("count views for %s: %w", dateKey, err)
	}

	if len(counts) == 0 {
		logger.Info("No views to aggregate", slog.String("date", dateKey))
		return 0, nil
	}

	stats, err := deviceStatsForRange(ctx, db, r)
	if err != nil {
		return 0, fmt.Errorf("classify devices for %s: %w", dateKey, err)
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, c := range counts {
			row := DailyAggregate{
				PostID:          c.PostID,
				Date:            dateKey,
				ViewCount:       c.ViewCount,
				UniqueVisitors:  c.UniqueVisitors,
				DeviceStatsJSON: datatypes.JSON(stats[c.PostID].Encode()),
			}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "post_id"}, {Name: "date"}},
				DoUpdates: clause.AssignmentColumns([]string{"view_count", "unique_visitors", "device_stats_json", "updated_at"}),
			}).Create(&row).Error
			if err != nil {
				return fmt.Errorf("upsert daily aggregate for post %s: %w", c.PostID, err)
			}
		}
		return nil
	})
	if err != nil {
		logger.Error("Daily aggregation failed",
			slog.String("date", dateKey),
			slog.Any("error", err))
		return 0, err
	}

	logger.Info("Daily aggregation completed",
		slog.String("date", dateKey),
		slog.Int("posts", len(counts)))
	return len(counts), nil
}
