package http

import (
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"portfolio/internal/analytics"
	"portfolio/internal/jobs"
	"portfolio/internal/posts"
	"portfolio/internal/timeframe"
)

const (
	defaultPeriod      = 7
	popularPostsLimit  = 5
	monthlyHistorySize = 12
	deletedPostTitle   = "(deleted post)"
)

var validPeriods = map[int]bool{7: true, 30: true, 60: true, 90: true}

type aggregateResponse struct {
	Success bool `json:"success"`
	jobs.Result
}

// AggregateAction runs aggregation steps on demand. It answers 200 when at
// least one step succeeded (success is false on partial failure), 400 for
// invalid requests and 500 when every step failed.
func AggregateAction(runner *jobs.Runner) func(*cartridge.Context) error {
	return func(ctx *cartridge.Context) error {
		return aggregate(ctx.Ctx, runner, ctx.Logger)
	}
}

func aggregate(c *fiber.Ctx, runner *jobs.Runner, logger *slog.Logger) error {
	var req jobs.Request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}

	result, err := runner.Run(c.UserContext(), req)
	if err != nil {
		if errors.Is(err, jobs.ErrInvalidType) || errors.Is(err, jobs.ErrInvalidDate) || errors.Is(err, jobs.ErrInvalidYearMonth) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"error":   err.Error(),
			})
		}
		logger.Error("Aggregation request failed", slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Aggregation failed",
		})
	}

	status := fiber.StatusOK
	if result.AllFailed() {
		status = fiber.StatusInternalServerError
	}
	return c.Status(status).JSON(aggregateResponse{Success: result.Success(), Result: result})
}

type popularPost struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	Slug      string       `json:"slug"`
	Status    posts.Status `json:"status"`
	ViewCount int64        `json:"viewCount"`
}

type overviewResponse struct {
	Period         int                    `json:"period"`
	TotalPosts     int64                  `json:"totalPosts"`
	PublishedPosts int64                  `json:"publishedPosts"`
	TotalViews     int64                  `json:"totalViews"`
	TodayViews     int64                  `json:"todayViews"`
	PeriodViews    int64                  `json:"periodViews"`
	PopularPosts   []popularPost          `json:"popularPosts"`
	DailyViews     []analytics.DayViews   `json:"dailyViews"`
	MonthlyHistory []analytics.MonthViews `json:"monthlyHistory"`
}

// parsePeriod falls back to the default for missing or unsupported values.
func parsePeriod(raw string) int {
	period, err := strconv.Atoi(raw)
	if err != nil || !validPeriods[period] {
		return defaultPeriod
	}
	return period
}

// OverviewAction serves the admin dashboard numbers.
func OverviewAction(loc *time.Location, clock timeframe.TimeProvider) func(*cartridge.Context) error {
	return func(ctx *cartridge.Context) error {
		return overview(ctx.Ctx, ctx.DB(), loc, clock.Now(loc), ctx.Logger)
	}
}

func buildOverview(c *fiber.Ctx, db *gorm.DB, loc *time.Location, current time.Time, period int) (overviewResponse, error) {
	ctx := c.UserContext()
	resp := overviewResponse{Period: period}

	counts, err := posts.CountByStatus(db)
	if err != nil {
		return resp, err
	}
	resp.TotalPosts = counts.Total
	resp.PublishedPosts = counts.Published

	if resp.TotalViews, err = analytics.TotalViews(ctx, db, ""); err != nil {
		return resp, err
	}
	if resp.TodayViews, err = analytics.TodayViews(ctx, db, current, loc); err != nil {
		return resp, err
	}

	ranked, err := analytics.PopularPosts(ctx, db, popularPostsLimit)
	if err != nil {
		return resp, err
	}
	ids := make([]string, len(ranked))
	for i, r := range ranked {
		ids[i] = r.PostID
	}
	summaries, err := posts.SummariesByID(db, ids)
	if err != nil {
		return resp, err
	}
	resp.PopularPosts = make([]popularPost, len(ranked))
	for i, r := range ranked {
		entry := popularPost{ID: r.PostID, Title: deletedPostTitle, Status: "unknown", ViewCount: r.Views}
		if s, ok := summaries[r.PostID]; ok {
			entry.Title, entry.Slug, entry.Status = s.Title, s.Slug, s.Status
		}
		resp.PopularPosts[i] = entry
	}

	if resp.DailyViews, err = analytics.DailyViews(ctx, db, current, loc, period); err != nil {
		return resp, err
	}
	for _, d := range resp.DailyViews {
		resp.PeriodViews += d.Views
	}

	if resp.MonthlyHistory, err = analytics.MonthlyHistory(ctx, db, monthlyHistorySize); err != nil {
		return resp, err
	}
	return resp, nil
}

func overview(c *fiber.Ctx, db *gorm.DB, loc *time.Location, current time.Time, logger *slog.Logger) error {
	period := parsePeriod(c.Query("period"))
	resp, err := buildOverview(c, db, loc, current, period)
	if err != nil {
		logger.Error("Failed to build analytics overview", slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load analytics",
		})
	}
	return c.JSON(resp)
}
