package http

import (
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"
)

// HealthStatus represents the health check response
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	DBStatus  string    `json:"db_status"`
}

// checkDatabase pings the connection and reports "ok" or "error".
func checkDatabase(db *gorm.DB, logger *slog.Logger) string {
	if db == nil {
		logger.Error("Database connection unavailable")
		return "error"
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Error("Database connection error", slog.Any("error", err))
		return "error"
	}
	if err := sqlDB.Ping(); err != nil {
		logger.Error("Database ping failed", slog.Any("error", err))
		return "error"
	}
	return "ok"
}

func healthStatus(db *gorm.DB, logger *slog.Logger) HealthStatus {
	health := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		DBStatus:  checkDatabase(db, logger),
	}
	if health.DBStatus != "ok" {
		health.Status = "degraded"
	}
	return health
}

// HealthIndexAction handles the health check endpoint
func HealthIndexAction(ctx *cartridge.Context) error {
	return ctx.JSON(healthStatus(ctx.DBManager.GetConnection(), ctx.Logger))
}
