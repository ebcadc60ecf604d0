package shared

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Fiscal years run July through June and are written "YYYY-YYYY",
// e.g. "2024-2025" covers 2024-07-01 through 2025-06-30.

var fiscalYearPattern = regexp.MustCompile(`^(\d{4})-(\d{4})$`)

// ParseFiscalYear validates the "YYYY-YYYY" format and returns the starting
// calendar year.
func ParseFiscalYear(fy string) (int, error) {
	m := fiscalYearPattern.FindStringSubmatch(fy)
	if m == nil {
		return 0, fmt.Errorf("shared: invalid fiscal year %q, expected YYYY-YYYY", fy)
	}
	start, _ := strconv.Atoi(m[1])
	end, _ := strconv.Atoi(m[2])
	if end != start+1 {
		return 0, fmt.Errorf("shared: fiscal year %q must span consecutive years", fy)
	}
	return start, nil
}

// FiscalYearForDate returns the fiscal year label containing the given date.
func FiscalYearForDate(t time.Time) string {
	year := t.Year()
	if t.Month() >= time.July {
		return fmt.Sprintf("%d-%d", year, year+1)
	}
	return fmt.Sprintf("%d-%d", year-1, year)
}

// FiscalYearBounds returns the inclusive [start, end] dates of a fiscal year.
func FiscalYearBounds(fy string) (time.Time, time.Time, error) {
	start, err := ParseFiscalYear(fy)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	from := time.Date(start, time.July, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(start+1, time.June, 30, 0, 0, 0, 0, time.UTC)
	return from, to, nil
}

// FiscalMonth identifies one calendar month inside a fiscal year.
type FiscalMonth struct {
	Month int // calendar month 1..12
	Year  int // calendar year
	Start time.Time
	End   time.Time
}

// FiscalMonths returns the twelve months of a fiscal year in order, July
// first. The months form a contiguous, non-overlapping partition of the year.
func FiscalMonths(fy string) ([]FiscalMonth, error) {
	startYear, err := ParseFiscalYear(fy)
	if err != nil {
		return nil, err
	}
	months := make([]FiscalMonth, 0, 12)
	cursor := time.Date(startYear, time.July, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		next := cursor.AddDate(0, 1, 0)
		months = append(months, FiscalMonth{
			Month: int(cursor.Month()),
			Year:  cursor.Year(),
			Start: cursor,
			End:   next.AddDate(0, 0, -1),
		})
		cursor = next
	}
	return months, nil
}
