package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	"gorm.io/gorm"

	"portfolio/internal/pkg/async"
	"portfolio/internal/timeframe"
	"portfolio/internal/views"
)

// Storage tiers that together make up an article's lifetime view count.
const (
	tierMonthly = "monthly"
	tierDaily   = "daily"
	tierRaw     = "raw"
)

// TotalViews returns monthly + daily + raw view counts. An empty postID
// totals every article. The three tiers are queried concurrently.
func TotalViews(ctx context.Context, db *gorm.DB, postID string) (int64, error) {
	sumQuery := func(table string, column string) (string, []any, error) {
		q := sq.Select("COALESCE(SUM(" + column + "), 0)").From(table)
		if postID != "" {
			q = q.Where(sq.Eq{"post_id": postID})
		}
		return q.ToSql()
	}
	scalar := func(table, column string) func(ctx context.Context) (int64, error) {
		return func(ctx context.Context) (int64, error) {
			query, args, err := sumQuery(table, column)
			if err != nil {
				return 0, err
			}
			var total int64
			err = db.WithContext(ctx).Raw(query, args...).Scan(&total).Error
			return total, err
		}
	}

	tasks := []async.Task[int64]{
		{Name: tierMonthly, Execute: scalar(MonthlyAggregate{}.TableName(), "view_count")},
		{Name: tierDaily, Execute: scalar(DailyAggregate{}.TableName(), "view_count")},
		{Name: tierRaw, Execute: func(ctx context.Context) (int64, error) {
			q := db.WithContext(ctx).Model(&views.RawView{})
			if postID != "" {
				q = q.Where("post_id = ?", postID)
			}
			var count int64
			err := q.Count(&count).Error
			return count, err
		}},
	}

	var total int64
	for name, result := range async.NewPool[int64](len(tasks)).Execute(ctx, tasks) {
		if result.Err != nil {
			return 0, fmt.Errorf("total %s views: %w", name, result.Err)
		}
		total += result.Data
	}
	return total, nil
}

// PostViews is an article's view count across all tiers.
type PostViews struct {
	PostID string `json:"postId"`
	Views  int64  `json:"views"`
}

type postSum struct {
	PostID string
	Total  int64
}

// PopularPosts returns the limit most viewed articles, most viewed first.
// Ties are broken by post ID so the order is stable.
func PopularPosts(ctx context.Context, db *gorm.DB, limit int) ([]PostViews, error) {
	grouped := func(table, expr string) func(ctx context.Context) ([]postSum, error) {
		return func(ctx context.Context) ([]postSum, error) {
			query, args, err := sq.Select("post_id", expr+" AS total").
				From(table).
				GroupBy("post_id").
				ToSql()
			if err != nil {
				return nil, err
			}
			var rows []postSum
			err = db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error
			return rows, err
		}
	}

	tasks := []async.Task[[]postSum]{
		{Name: tierMonthly, Execute: grouped(MonthlyAggregate{}.TableName(), "SUM(view_count)")},
		{Name: tierDaily, Execute: grouped(DailyAggregate{}.TableName(), "SUM(view_count)")},
		{Name: tierRaw, Execute: grouped(views.RawView{}.TableName(), "COUNT(*)")},
	}

	byPost := make(map[string]int64)
	for name, result := range async.NewPool[[]postSum](len(tasks)).Execute(ctx, tasks) {
		if result.Err != nil {
			return nil, fmt.Errorf("popular posts from %s: %w", name, result.Err)
		}
		for _, row := range result.Data {
			byPost[row.PostID] += row.Total
		}
	}

	ranked := make([]PostViews, 0, len(byPost))
	for postID, total := range byPost {
		ranked = append(ranked, PostViews{PostID: postID, Views: total})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Views != ranked[j].Views {
			return ranked[i].Views > ranked[j].Views
		}
		return ranked[i].PostID < ranked[j].PostID
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// DayViews is one point of the daily series.
type DayViews struct {
	Date  string `json:"date"`
	Views int64  `json:"views"`
}

// DailyViews returns the summed daily aggregates of the trailing days ending
// today. Days without aggregates are present with zero views.
func DailyViews(ctx context.Context, db *gorm.DB, current time.Time, loc *time.Location, days int) ([]DayViews, error) {
	keys := timeframe.LastDays(current, loc, days)
	if len(keys) == 0 {
		return []DayViews{}, nil
	}

	var rows []struct {
		Date  string
		Views int64
	}
	err := db.WithContext(ctx).
		Model(&DailyAggregate{}).
		Select("date, SUM(view_count) AS views").
		Where("date >= ?", keys[0]).
		Group("date").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("daily views: %w", err)
	}

	byDate := make(map[string]int64, len(rows))
	for _, row := range rows {
		byDate[row.Date] = row.Views
	}

	series := make([]DayViews, len(keys))
	for i, key := range keys {
		series[i] = DayViews{Date: key, Views: byDate[key]}
	}
	return series, nil
}

// MonthViews is one point of the monthly history.
type MonthViews struct {
	YearMonth string `json:"yearMonth"`
	Views     int64  `json:"views"`
}

// MonthlyHistory returns the latest months that have monthly aggregates,
// oldest first.
func MonthlyHistory(ctx context.Context, db *gorm.DB, months int) ([]MonthViews, error) {
	var rows []MonthViews
	err := db.WithContext(ctx).
		Model(&MonthlyAggregate{}).
		Select("year_month, SUM(view_count) AS views").
		Group("year_month").
		Order("year_month DESC").
		Limit(months).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("monthly history: %w", err)
	}

	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

// TodayViews counts raw views recorded since local midnight.
func TodayViews(ctx context.Context, db *gorm.DB, current time.Time, loc *time.Location) (int64, error) {
	return views.CountBetween(db.WithContext(ctx), timeframe.DayRange(current, loc))
}
