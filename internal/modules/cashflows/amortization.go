package cashflows

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/dkastanis/bondflow/internal/domain"
)

// amortizer walks outstanding principal across scheduled periods. One
// instance per projection; the running balance starts at face x factor,
// decreases monotonically, never goes negative, and reaches zero at or
// before maturity.
type amortizer struct {
	outstanding  decimal.Decimal
	periodicRate decimal.Decimal
	warning      string
}

// newAmortizer initializes the walk for a security and position size.
// The annual CPR is converted to a per-period rate via compound conversion:
//
//	periodicRate = 1 - (1 - annualCPR)^(1/paymentsPerYear)
//
// An invalid payment frequency with a CPR requested yields a zero periodic
// rate and a warning; amortization still happens in full at maturity.
func newAmortizer(sec domain.SecurityTerms, faceAmount decimal.Decimal) *amortizer {
	a := &amortizer{
		outstanding:  faceAmount.Mul(sec.EffectiveFactor()),
		periodicRate: decimal.Zero,
	}

	if !sec.AllowsPaydown || !sec.AnnualCPR.IsPositive() {
		return a
	}
	if sec.PaymentsPerYear <= 0 {
		a.warning = "prepayment requested with invalid payment frequency; periodic rate treated as zero"
		return a
	}

	annual, _ := sec.AnnualCPR.Div(decimal.NewFromInt(100)).Float64()
	if annual >= 1 {
		annual = 1
	}
	rate := 1 - math.Pow(1-annual, 1/float64(sec.PaymentsPerYear))
	a.periodicRate = decimal.NewFromFloat(rate)
	return a
}

// Outstanding returns the current running balance.
func (a *amortizer) Outstanding() decimal.Decimal {
	return a.outstanding
}

// Warning returns the walk's recorded warning, if any.
func (a *amortizer) Warning() string {
	return a.warning
}

// Done reports whether the bond has fully paid down. Once the balance hits
// zero no further periods are emitted, even before maturity.
func (a *amortizer) Done() bool {
	return !a.outstanding.IsPositive()
}

// Step advances one scheduled period and returns the principal paid in it.
// Prepayment applies first, capped at the outstanding balance; the maturity
// period then pays the full remaining balance regardless of the amortization
// flag. The balance is clamped at zero.
func (a *amortizer) Step(isMaturity bool) decimal.Decimal {
	if a.Done() {
		return decimal.Zero
	}

	principal := decimal.Zero
	if a.periodicRate.IsPositive() {
		prepay := a.outstanding.Mul(a.periodicRate).Round(2)
		if prepay.GreaterThan(a.outstanding) {
			prepay = a.outstanding
		}
		principal = prepay
	}

	if isMaturity {
		// Everything still outstanding comes back at maturity.
		principal = a.outstanding
	}

	a.outstanding = a.outstanding.Sub(principal)
	if a.outstanding.IsNegative() {
		a.outstanding = decimal.Zero
	}
	return principal
}
