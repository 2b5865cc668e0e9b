package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"portfolio/internal/timeframe"
	"portfolio/internal/views"
)

// DefaultRetentionDays is how long raw views are kept when nothing else is
// configured.
const DefaultRetentionDays = 90

const cleanupBatchSize = 1000

// CleanupOldViews deletes raw views recorded before local midnight of today
// minus daysToKeep days. Rows are removed in batches to keep write locks
// short. It returns the number of deleted rows.
func CleanupOldViews(ctx context.Context, db *gorm.DB, logger *slog.Logger, current time.Time, loc *time.Location, daysToKeep int) (int64, error) {
	if daysToKeep < 0 {
		return 0, fmt.Errorf("days to keep must not be negative: %d", daysToKeep)
	}
	cutoff := timeframe.RetentionCutoff(current, loc, daysToKeep).UTC()

	logger.Info("Starting cleanup of old raw views",
		slog.Int("days_kept", daysToKeep),
		slog.Time("cutoff", cutoff))

	table := views.RawView{}.TableName()
	totalDeleted := int64(0)
	for {
		if err := ctx.Err(); err != nil {
			return totalDeleted, err
		}

		result := db.WithContext(ctx).Exec(
			"DELETE FROM "+table+" WHERE id IN (SELECT id FROM "+table+" WHERE viewed_at < ? LIMIT ?)",
			cutoff, cleanupBatchSize,
		)
		if result.Error != nil {
			logger.Error("Failed to delete old raw views",
				slog.Any("error", result.Error),
				slog.Int64("deleted_so_far", totalDeleted))
			return totalDeleted, result.Error
		}

		totalDeleted += result.RowsAffected
		if result.RowsAffected < cleanupBatchSize {
			break
		}

		// Give concurrent view inserts a chance between batches
		time.Sleep(100 * time.Millisecond)
	}

	logger.Info("Cleaned up old raw views",
		slog.Int64("deleted_count", totalDeleted),
		slog.Int("days_kept", daysToKeep))
	return totalDeleted, nil
}
