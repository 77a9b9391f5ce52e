// Package cashflows projects the dated, typed cashflow stream of a holding:
// coupon interest per scheduled period plus amortized and maturity principal.
package cashflows

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dkastanis/bondflow/internal/domain"
	"github.com/dkastanis/bondflow/internal/modules/schedule"
)

// Projection is the result of projecting a single holding.
type Projection struct {
	// Combined sums interest and principal per payment date.
	Combined []domain.CombinedFlow
	// Detailed carries one typed record per non-negligible component.
	Detailed []domain.CashflowEvent
	// Start is the accrual start of the first projected period. Zero when no
	// future flows remain.
	Start time.Time
}

// Projector turns a holding's contractual terms and position size into future
// cashflows. It is a pure function of its inputs: nothing is cached or
// mutated between calls.
type Projector struct {
	log zerolog.Logger
}

// NewProjector creates a cashflow projector.
func NewProjector(log zerolog.Logger) *Projector {
	return &Projector{log: log.With().Str("component", "projector").Logger()}
}

// Project generates the holding's future cashflows as of evalDate.
//
// Interest for a period is included when the period's accrual start falls on
// or after evalDate, and is always computed over the full contractual period,
// never prorated to the evaluation date. Principal is included whenever its
// payment date is strictly after evalDate: an evaluation date inside the
// final coupon period still projects the maturity repayment, even though that
// period's coupon has already accrued. An evaluation date past maturity is a
// valid, non-exceptional outcome: the projection is simply empty.
func (p *Projector) Project(h domain.HoldingPosition, evalDate time.Time) (Projection, error) {
	sec := h.Security
	if err := h.Validate(); err != nil {
		return Projection{}, err
	}
	if evalDate.IsZero() {
		return Projection{}, domain.NewValidationError("holding %s: evaluation date is required", h.ID)
	}

	// Matured bond: zero future flows, no error.
	if evalDate.After(sec.MaturityDate) {
		return Projection{}, nil
	}

	dates, err := schedule.Generate(sec.IssueDate, sec.MaturityDate, sec.PaymentsPerYear)
	if err != nil {
		return Projection{}, err
	}

	cutoff := evalDate
	if cutoff.Before(sec.IssueDate) {
		cutoff = sec.IssueDate
	}

	amort := newAmortizer(sec, h.FaceAmount)
	if w := amort.Warning(); w != "" {
		p.log.Warn().Str("cusip", sec.CUSIP).Str("holding", h.ID).Msg(w)
	}

	couponRate := sec.CouponRate.Div(decimal.NewFromInt(100))
	hasCoupon := sec.CouponRate.IsPositive() && sec.PaymentsPerYear > 0

	var proj Projection
	periodStart := sec.IssueDate
	for _, payDate := range dates {
		if !payDate.After(sec.IssueDate) {
			// The issue-date anchor is a period boundary, not a payment.
			continue
		}

		outstandingBefore := amort.Outstanding()
		isMaturity := payDate.Equal(sec.MaturityDate)
		principal := amort.Step(isMaturity)

		interest := decimal.Zero
		if hasCoupon {
			frac := domain.YearFraction(periodStart, payDate, sec.DayCount)
			interest = outstandingBefore.Mul(couponRate).Mul(decimal.NewFromFloat(frac)).Round(2)
		}

		total := decimal.Zero
		if !periodStart.Before(cutoff) && interest.IsPositive() {
			proj.Detailed = append(proj.Detailed, domain.CashflowEvent{
				Date: payDate, Amount: interest, Kind: domain.FlowInterest,
			})
			total = total.Add(interest)
		}
		if payDate.After(evalDate) && principal.IsPositive() {
			proj.Detailed = append(proj.Detailed, domain.CashflowEvent{
				Date: payDate, Amount: principal, Kind: domain.FlowPrincipal,
			})
			total = total.Add(principal)
		}
		if total.IsPositive() {
			if proj.Start.IsZero() {
				proj.Start = periodStart
			}
			proj.Combined = append(proj.Combined, domain.CombinedFlow{Date: payDate, Amount: total})
		}

		if amort.Done() {
			// Fully prepaid before maturity: stop emitting periods.
			break
		}
		periodStart = payDate
	}

	return proj, nil
}
