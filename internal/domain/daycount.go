package domain

import (
	"strings"
	"time"
)

// Convention is a closed day-count convention type. Reference data carries
// free-form codes; ParseConvention maps them onto this enum with an explicit
// fallback arm instead of unbounded string matching.
type Convention string

const (
	// ConventionActualActual - actual days over actual days in the containing
	// period. The default fallback for unrecognized codes.
	ConventionActualActual Convention = "ACT/ACT"
	// ConventionThirtyThreeSixty - bond-basis 30/360 month/day normalization
	ConventionThirtyThreeSixty Convention = "30/360"
	// ConventionActualThreeSixtyFive - actual days over a fixed 365-day year
	ConventionActualThreeSixtyFive Convention = "ACT/365"
)

// ParseConvention maps a reference-data day-count code onto a Convention.
// Unknown codes fall back to Actual/Actual (ok=false) so the projector stays
// resilient to incomplete reference data; the caller should log a warning.
func ParseConvention(code string) (Convention, bool) {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "30/360", "30/360 BOND", "BOND", "30E/360":
		return ConventionThirtyThreeSixty, true
	case "ACT/ACT", "ACTUAL/ACTUAL", "ACT/ACT ISMA":
		return ConventionActualActual, true
	case "ACT/365", "ACT/365F", "ACTUAL/365", "ACT/365 FIXED":
		return ConventionActualThreeSixtyFive, true
	default:
		return ConventionActualActual, false
	}
}

// YearFraction converts a date pair into a fraction of a year under the
// convention. Callers guarantee start <= end by construction; the result is
// always >= 0.
func YearFraction(start, end time.Time, c Convention) float64 {
	if !end.After(start) {
		return 0
	}
	switch c {
	case ConventionThirtyThreeSixty:
		d1 := start.Day()
		if d1 > 30 {
			d1 = 30
		}
		d2 := end.Day()
		if d2 > 30 && d1 == 30 {
			d2 = 30
		}
		days := 360*(end.Year()-start.Year()) + 30*(int(end.Month())-int(start.Month())) + (d2 - d1)
		return float64(days) / 360.0
	case ConventionActualThreeSixtyFive:
		return daysBetween(start, end) / 365.0
	default:
		// Actual/Actual: each calendar year's days count against that
		// year's own length, so a full year is exactly 1.0 whether or
		// not it is a leap year.
		var frac float64
		cur := start
		for cur.Year() < end.Year() {
			boundary := time.Date(cur.Year()+1, time.January, 1, 0, 0, 0, 0, cur.Location())
			frac += daysBetween(cur, boundary) / yearDays(cur.Year())
			cur = boundary
		}
		return frac + daysBetween(cur, end)/yearDays(end.Year())
	}
}

// yearDays returns the day count of the given calendar year.
func yearDays(year int) float64 {
	if year%4 == 0 && (year%100 != 0 || year%400 == 0) {
		return 366
	}
	return 365
}

// daysBetween returns the actual calendar days from start to end.
func daysBetween(start, end time.Time) float64 {
	return end.Sub(start).Hours() / 24.0
}
