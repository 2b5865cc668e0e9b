package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/karloscodes/cartridge"

	"portfolio/internal/analytics"
	"portfolio/internal/timeframe"
)

// Type selects which steps a run performs.
type Type string

const (
	TypeDaily   Type = "daily"
	TypeMonthly Type = "monthly"
	TypeCleanup Type = "cleanup"
	TypeAll     Type = "all"
)

var ErrInvalidType = errors.New("invalid type, expected daily, monthly, cleanup or all")

// Date validation errors returned by Run.
var (
	ErrInvalidDate      = timeframe.ErrInvalidDate
	ErrInvalidYearMonth = timeframe.ErrInvalidYearMonth
)

// Request describes one run. Date is optional: YYYY-MM-DD for daily,
// YYYY-MM (or a day inside the month) for monthly. For TypeAll a day drives
// both the daily step and the monthly step of its month, while a month only
// drives the monthly step.
type Request struct {
	Type Type   `json:"type"`
	Date string `json:"date,omitempty"`
}

// StepResult carries the failure of a single step. Error is empty on success.
type StepResult struct {
	Error string `json:"error,omitempty"`
}

func (s StepResult) Failed() bool { return s.Error != "" }

type DailyResult struct {
	StepResult
	Aggregated int    `json:"aggregated"`
	Date       string `json:"date"`
}

type MonthlyResult struct {
	StepResult
	Aggregated int    `json:"aggregated"`
	YearMonth  string `json:"yearMonth"`
}

type CleanupResult struct {
	StepResult
	Deleted  int64 `json:"deleted"`
	DaysKept int   `json:"daysKept"`
}

// Result holds one entry per step that ran.
type Result struct {
	Type    Type           `json:"type"`
	Daily   *DailyResult   `json:"daily,omitempty"`
	Monthly *MonthlyResult `json:"monthly,omitempty"`
	Cleanup *CleanupResult `json:"cleanup,omitempty"`
}

func (r Result) steps() []StepResult {
	var steps []StepResult
	if r.Daily != nil {
		steps = append(steps, r.Daily.StepResult)
	}
	if r.Monthly != nil {
		steps = append(steps, r.Monthly.StepResult)
	}
	if r.Cleanup != nil {
		steps = append(steps, r.Cleanup.StepResult)
	}
	return steps
}

// Success reports whether every step that ran succeeded.
func (r Result) Success() bool {
	for _, s := range r.steps() {
		if s.Failed() {
			return false
		}
	}
	return true
}

// AllFailed reports whether at least one step ran and none succeeded.
func (r Result) AllFailed() bool {
	steps := r.steps()
	if len(steps) == 0 {
		return false
	}
	for _, s := range steps {
		if !s.Failed() {
			return false
		}
	}
	return true
}

// Runner executes aggregation and retention steps against the database.
// Runs are serialized.
type Runner struct {
	dbManager     cartridge.DBManager
	logger        *slog.Logger
	location      *time.Location
	retentionDays int

	Clock timeframe.TimeProvider

	mu sync.Mutex
}

func NewRunner(dbManager cartridge.DBManager, logger *slog.Logger, loc *time.Location, retentionDays int) *Runner {
	if loc == nil {
		loc = time.Local
	}
	if retentionDays <= 0 {
		retentionDays = analytics.DefaultRetentionDays
	}
	return &Runner{
		dbManager:     dbManager,
		logger:        logger,
		location:      loc,
		retentionDays: retentionDays,
		Clock:         &timeframe.DefaultTimeProvider{},
	}
}

type plan struct {
	day       *time.Time
	yearMonth string
}

func (r *Runner) monthOf(value string) (string, error) {
	if t, err := timeframe.ParseYearMonth(value, r.location); err == nil {
		return t.Format(timeframe.MonthLayout), nil
	}
	if t, err := timeframe.ParseDay(value, r.location); err == nil {
		return t.Format(timeframe.MonthLayout), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidYearMonth, value)
}

// resolve validates the request and fixes the target day and month.
func (r *Runner) resolve(req Request, current time.Time) (plan, error) {
	var p plan
	yesterday := timeframe.Yesterday(current, r.location)

	switch req.Type {
	case TypeDaily:
		p.day = &yesterday
		if req.Date != "" {
			day, err := timeframe.ParseDay(req.Date, r.location)
			if err != nil {
				return p, err
			}
			p.day = &day
		}
	case TypeMonthly:
		p.yearMonth = timeframe.PreviousMonth(current, r.location)
		if req.Date != "" {
			month, err := r.monthOf(req.Date)
			if err != nil {
				return p, err
			}
			p.yearMonth = month
		}
	case TypeCleanup:
	case TypeAll:
		p.day = &yesterday
		p.yearMonth = timeframe.PreviousMonth(current, r.location)
		if req.Date == "" {
			break
		}
		if day, err := timeframe.ParseDay(req.Date, r.location); err == nil {
			p.day = &day
			p.yearMonth = day.Format(timeframe.MonthLayout)
			break
		}
		month, err := timeframe.ParseYearMonth(req.Date, r.location)
		if err != nil {
			return p, fmt.Errorf("%w: %q", ErrInvalidDate, req.Date)
		}
		p.yearMonth = month.Format(timeframe.MonthLayout)
	default:
		return p, fmt.Errorf("%w: %q", ErrInvalidType, req.Type)
	}
	return p, nil
}

// isolate runs fn, converting an error or a panic into a step failure
// message. Details go to the log only.
func (r *Runner) isolate(step string, fn func() error) (message string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Panic recovered in analytics step",
				slog.String("step", step),
				slog.Any("panic", rec))
			message = step + " failed"
		}
	}()

	if err := fn(); err != nil {
		r.logger.Error("Analytics step failed",
			slog.String("step", step),
			slog.Any("error", err))
		return step + " failed"
	}
	return ""
}

// Run validates req and executes its steps in order daily, monthly, cleanup.
// A failing step does not stop the following ones. The returned error is
// only set for invalid requests, in which case nothing ran.
func (r *Runner) Run(ctx context.Context, req Request) (Result, error) {
	current := r.Clock.Now(r.location)
	p, err := r.resolve(req, current)
	if err != nil {
		return Result{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	db := r.dbManager.GetConnection()
	result := Result{Type: req.Type}
	started := time.Now()

	if req.Type == TypeDaily || req.Type == TypeAll {
		daily := &DailyResult{Date: p.day.Format(timeframe.DayLayout)}
		daily.Error = r.isolate("daily aggregation", func() error {
			n, err := analytics.AggregateDaily(ctx, db, r.logger, *p.day, r.location)
			daily.Aggregated = n
			return err
		})
		result.Daily = daily
	}

	if req.Type == TypeMonthly || req.Type == TypeAll {
		monthly := &MonthlyResult{YearMonth: p.yearMonth}
		monthly.Error = r.isolate("monthly aggregation", func() error {
			n, err := analytics.AggregateMonthly(ctx, db, r.logger, p.yearMonth, r.location)
			monthly.Aggregated = n
			return err
		})
		result.Monthly = monthly
	}

	if req.Type == TypeCleanup || req.Type == TypeAll {
		cleanup := &CleanupResult{DaysKept: r.retentionDays}
		cleanup.Error = r.isolate("cleanup", func() error {
			n, err := analytics.CleanupOldViews(ctx, db, r.logger, current, r.location, r.retentionDays)
			cleanup.Deleted = n
			return err
		})
		result.Cleanup = cleanup
	}

	r.logger.Info("Analytics run finished",
		slog.String("type", string(req.Type)),
		slog.Bool("success", result.Success()),
		slog.Duration("duration", time.Since(started)))
	return result, nil
}
