// Package analytics rolls raw article views up into daily and monthly
// aggregates and answers the dashboard's view-count questions.
package analytics

import (
	"time"

	"gorm.io/datatypes"

	"portfolio/internal/devices"
)

// DailyAggregate is the per-article rollup of one calendar day.
type DailyAggregate struct {
	ID              uint           `gorm:"primaryKey"`
	PostID          string         `gorm:"not null;uniqueIndex:idx_daily_aggregates_post_date,priority:1"`
	Date            string         `gorm:"not null;index;uniqueIndex:idx_daily_aggregates_post_date,priority:2"`
	ViewCount       int            `gorm:"not null;default:0"`
	UniqueVisitors  int            `gorm:"not null;default:0"`
	DeviceStatsJSON datatypes.JSON `gorm:"column:device_stats_json"`
	CreatedAt       time.Time      `gorm:"autoCreateTime"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime"`
}

func (DailyAggregate) TableName() string {
	return "daily_aggregates"
}

// Devices decodes the stored device breakdown.
func (a DailyAggregate) Devices() devices.Stats {
	return devices.Decode(a.DeviceStatsJSON)
}

// MonthlyAggregate is the per-article rollup of one calendar month.
// UniqueVisitors is the sum of the month's daily unique visitors, so a
// visitor returning on several days is counted once per day.
type MonthlyAggregate struct {
	ID              uint           `gorm:"primaryKey"`
	PostID          string         `gorm:"not null;uniqueIndex:idx_monthly_aggregates_post_month,priority:1"`
	YearMonth       string         `gorm:"not null;index;uniqueIndex:idx_monthly_aggregates_post_month,priority:2"`
	ViewCount       int            `gorm:"not null;default:0"`
	UniqueVisitors  int            `gorm:"not null;default:0"`
	DeviceStatsJSON datatypes.JSON `gorm:"column:device_stats_json"`
	CreatedAt       time.Time      `gorm:"autoCreateTime"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime"`
}

func (MonthlyAggregate) TableName() string {
	return "monthly_aggregates"
}

// Devices decodes the stored device breakdown.
func (a MonthlyAggregate) Devices() devices.Stats {
	return devices.Decode(a.DeviceStatsJSON)
}
