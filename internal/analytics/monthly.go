package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"portfolio/internal/devices"
	"portfolio/internal/timeframe"
)

type monthTotals struct {
	viewCount      int
	uniqueVisitors int
	devices        devices.Stats
}

// AggregateMonthly rolls the daily aggregates of yearMonth ("YYYY-MM") up into
// one MonthlyAggregate per article, overwriting earlier results for that
// month. Counts are plain sums of the daily rows and device breakdowns are
// merged key by key.
func AggregateMonthly(ctx context.Context, db *gorm.DB, logger *slog.Logger, yearMonth string, loc *time.Location) (int, error) {
	month, err := timeframe.ParseYearMonth(yearMonth, loc)
	if err != nil {
		return 0, err
	}
	r := timeframe.MonthRange(month, loc)
	fromKey := r.From.Format(timeframe.DayLayout)
	toKey := r.To.Format(timeframe.DayLayout)

	var daily []DailyAggregate
	err = db.WithContext(ctx).
		Where("date >= ? AND date < ?", fromKey, toKey).
		Order("post_id, date").
		Find(&daily).Error
	if err != nil {
		return 0, fmt.Errorf("load daily aggregates for %s: %w", yearMonth, err)
	}

	if len(daily) == 0 {
		logger.Info("No daily aggregates to roll up", slog.String("yearMonth", yearMonth))
		return 0, nil
	}

	totals := make(map[string]*monthTotals)
	for _, d := range daily {
		t, ok := totals[d.PostID]
		if !ok {
			t = &monthTotals{}
			totals[d.PostID] = t
		}
		t.viewCount += d.ViewCount
		t.uniqueVisitors += d.UniqueVisitors
		t.devices = t.devices.Merge(d.Devices())
	}

	postIDs := make([]string, 0, len(totals))
	for postID := range totals {
		postIDs = append(postIDs, postID)
	}
	sort.Strings(postIDs)

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, postID := range postIDs {
			t := totals[postID]
			row := MonthlyAggregate{
				PostID:          postID,
				YearMonth:       yearMonth,
				ViewCount:       t.viewCount,
				UniqueVisitors:  t.uniqueVisitors,
				DeviceStatsJSON: datatypes.JSON(t.devices.Encode()),
			}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "post_id"}, {Name: "year_month"}},
				DoUpdates: clause.AssignmentColumns([]string{"view_count", "unique_visitors", "device_stats_json", "updated_at"}),
			}).Create(&row).Error
			if err != nil {
				return fmt.Errorf("upsert monthly aggregate for post %s: %w", postID, err)
			}
		}
		return nil
	})
	if err != nil {
		logger.Error("Monthly aggregation failed",
			slog.String("yearMonth", yearMonth),
			slog.Any("error", err))
		return 0, err
	}

	logger.Info("Monthly aggregation completed",
		slog.String("yearMonth", yearMonth),
		slog.Int("posts", len(postIDs)))
	return len(postIDs), nil
}
