// Package timeframe resolves calendar days and months in the site's timezone.
package timeframe

import (
	"errors"
	"fmt"
	"time"

	"github.com/jinzhu/now"
)

const (
	DayLayout   = "2006-01-02"
	MonthLayout = "2006-01"
)

var (
	ErrInvalidDate      = errors.New("invalid date, expected YYYY-MM-DD")
	ErrInvalidYearMonth = errors.New("invalid month, expected YYYY-MM")
)

type TimeProvider interface {
	Now(loc *time.Location) time.Time
}

// DefaultTimeProvider uses the system clock.
type DefaultTimeProvider struct{}

func (p *DefaultTimeProvider) Now(loc *time.Location) time.Time {
	return time.Now().In(loc)
}

// FixedTimeProvider always returns the same instant. Used by tests and
// by manual runs that want to replay a specific day.
type FixedTimeProvider struct {
	Time time.Time
}

func (p *FixedTimeProvider) Now(loc *time.Location) time.Time {
	return p.Time.In(loc)
}

// Range is a half-open interval [From, To).
type Range struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the range.
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.From) && t.Before(r.To)
}

// UTC returns the same range with both ends converted to UTC, which is how
// timestamps are stored.
func (r Range) UTC() Range {
	return Range{From: r.From.UTC(), To: r.To.UTC()}
}

func nowIn(t time.Time, loc *time.Location) *now.Now {
	return now.With(t.In(loc))
}

// DayKey formats the calendar day t falls on in loc.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DayLayout)
}

// MonthKey formats the calendar month t falls on in loc.
func MonthKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(MonthLayout)
}

// StartOfDay returns local midnight of the day t falls on.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	return nowIn(t, loc).BeginningOfDay()
}

// DayRange covers the whole calendar day t falls on. The end is the next
// local midnight, so days with a DST transition are 23 or 25 hours long.
func DayRange(t time.Time, loc *time.Location) Range {
	start := StartOfDay(t, loc)
	return Range{From: start, To: start.AddDate(0, 0, 1)}
}

// MonthRange covers the whole calendar month t falls on.
func MonthRange(t time.Time, loc *time.Location) Range {
	start := nowIn(t, loc).BeginningOfMonth()
	return Range{From: start, To: start.AddDate(0, 1, 0)}
}

// ParseDay parses a YYYY-MM-DD string as local midnight in loc.
func ParseDay(value string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DayLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	return t, nil
}

// ParseYearMonth parses a YYYY-MM string as the first instant of that month
// in loc.
func ParseYearMonth(value string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(MonthLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidYearMonth, value)
	}
	return t, nil
}

// Yesterday returns local midnight of the day before current.
func Yesterday(current time.Time, loc *time.Location) time.Time {
	return StartOfDay(current, loc).AddDate(0, 0, -1)
}

// PreviousMonth returns the YYYY-MM key of the month before current.
func PreviousMonth(current time.Time, loc *time.Location) string {
	start := nowIn(current, loc).BeginningOfMonth()
	return start.AddDate(0, -1, 0).Format(MonthLayout)
}

// RetentionCutoff returns local midnight today minus days.
func RetentionCutoff(current time.Time, loc *time.Location, days int) time.Time {
	return StartOfDay(current, loc).AddDate(0, 0, -days)
}

// LastDays returns the keys of the trailing n days ending today, oldest first.
func LastDays(current time.Time, loc *time.Location, n int) []string {
	today := StartOfDay(current, loc)
	keys := make([]string, 0, n)
	for i := n - 1; i >= 0; i-- {
		keys = append(keys, today.AddDate(0, 0, -i).Format(DayLayout))
	}
	return keys
}

// LastMonths returns the keys of the trailing n months ending with the
// current month, oldest first.
func LastMonths(current time.Time, loc *time.Location, n int) []string {
	month := nowIn(current, loc).BeginningOfMonth()
	keys := make([]string, 0, n)
	for i := n - 1; i >= 0; i-- {
		keys = append(keys, month.AddDate(0, -i, 0).Format(MonthLayout))
	}
	return keys
}
