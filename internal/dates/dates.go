// Package dates parses the DD/MM/YYYY strings staff type into invoices and
// measures the day spans the payout and collection rules depend on.
//
// Nothing in here returns an error: a malformed date becomes the zero time,
// which sorts before every valid date.
package dates

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Layout is the display format used across invoices.
const Layout = "02/01/2006"

var dmyPattern = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)

// ParseDMY parses a strict DD/MM/YYYY string (one-digit day and month are accepted).
// Malformed input, including impossible calendar dates, yields the zero time.
func ParseDMY(s string) time.Time {
	m := dmyPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return time.Time{}
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	if month < 1 || month > 12 || day < 1 {
		return time.Time{}
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes 31/02 into March; reject instead
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}
	}
	return t
}

// ParseFlexible accepts DD/MM/YYYY or ISO YYYY-MM-DD, returning the zero time otherwise.
func ParseFlexible(s string) time.Time {
	if t := ParseDMY(s); !t.IsZero() {
		return t
	}
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}
	}
	return t
}

// IsValid reports whether s is a well-formed DD/MM/YYYY date.
func IsValid(s string) bool {
	return !ParseDMY(s).IsZero()
}

// Format renders t as DD/MM/YYYY.
func Format(t time.Time) string {
	return t.Format(Layout)
}

// DaysBetween returns floor(end - start) in whole days, negative when start is after end.
// end is either a date string or a point in time; see DaysSince for the "now" form.
// Either side being malformed yields 0.
func DaysBetween(startStr, endStr string) int {
	start := ParseDMY(startStr)
	end := ParseFlexible(endStr)
	if start.IsZero() || end.IsZero() {
		return 0
	}
	return floorDays(end.Sub(start))
}

// DaysSince returns floor(now - start) in whole days. The calendar day of now is taken in
// now's own location so that a date typed in Buenos Aires counts from local midnight.
func DaysSince(startStr string, now time.Time) int {
	start := ParseDMY(startStr)
	if start.IsZero() {
		return 0
	}
	y, m, d := now.Date()
	wall := time.Date(y, m, d, now.Hour(), now.Minute(), now.Second(), now.Nanosecond(), time.UTC)
	return floorDays(wall.Sub(start))
}

// AddDays returns the date string startStr shifted by n days, or "" when startStr is malformed.
func AddDays(startStr string, n int) string {
	start := ParseDMY(startStr)
	if start.IsZero() {
		return ""
	}
	return Format(start.AddDate(0, 0, n))
}

func floorDays(d time.Duration) int {
	return int(math.Floor(float64(d) / float64(24*time.Hour)))
}
