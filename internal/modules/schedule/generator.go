// Package schedule generates coupon payment schedules for fixed-income
// securities.
package schedule

import (
	"time"

	"github.com/dkastanis/bondflow/internal/domain"
)

// Generate produces the ordered coupon payment dates between issue and
// maturity for the given payment frequency. Dates are generated backward from
// maturity in 12/paymentsPerYear-month steps until reaching or passing issue;
// any date before issue is discarded. The result is strictly increasing and
// always ends at maturity. Dates are used exactly as generated - no calendar
// or holiday adjustment is applied.
//
// Zero-coupon instruments (paymentsPerYear == 0) get the single-period
// schedule {issue, maturity} so principal-only logic still has two anchor
// dates.
func Generate(issue, maturity time.Time, paymentsPerYear int) ([]time.Time, error) {
	if issue.IsZero() || maturity.IsZero() {
		return nil, domain.NewValidationError("schedule: issue and maturity dates are required")
	}
	if !maturity.After(issue) {
		return nil, domain.NewValidationError("schedule: maturity %s is not after issue %s",
			maturity.Format("2006-01-02"), issue.Format("2006-01-02"))
	}
	if paymentsPerYear == 0 {
		return []time.Time{issue, maturity}, nil
	}
	if paymentsPerYear < 0 || 12%paymentsPerYear != 0 {
		return nil, domain.NewValidationError("schedule: payment frequency %d is invalid", paymentsPerYear)
	}

	months := 12 / paymentsPerYear

	// Walk backward from maturity, then reverse. Each date is anchored on
	// maturity (maturity - i*months) rather than the previous step, so
	// month-end clamping never drifts.
	var reversed []time.Time
	for i := 0; ; i++ {
		d := addMonths(maturity, -i*months)
		if d.Before(issue) {
			break
		}
		reversed = append(reversed, d)
		if d.Equal(issue) {
			break
		}
	}

	dates := make([]time.Time, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		dates = append(dates, reversed[i])
	}
	return dates, nil
}

// addMonths shifts a date by a number of months, clamping to the last day of
// the target month instead of letting Go normalize (Jan 31 + 1 month is
// Feb 28/29, not Mar 2-3).
func addMonths(t time.Time, months int) time.Time {
	target := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, months, 0)
	shifted := t.AddDate(0, months, 0)
	if shifted.Month() == target.Month() {
		return shifted
	}
	// Normalization overflowed into the next month; walk back to month end.
	overflow := shifted.Month()
	for shifted.Month() == overflow {
		shifted = shifted.AddDate(0, 0, -1)
	}
	return shifted
}
