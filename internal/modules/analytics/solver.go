// Package analytics solves yield to maturity and derives duration and
// convexity for a priced holding.
package analytics

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/dkastanis/bondflow/internal/domain"
)

// Solver configuration. Iteration is always bounded; non-convergence is
// reported, never looped on.
const (
	maxIterations = 100
	priceTol      = 1e-9
	stepTol       = 1e-12

	// Plausible annualized yield range. Solutions outside it are rejected as
	// solver failures rather than returned as nonsense.
	minAnnualYield = -0.99
	maxAnnualYield = 2.00
)

// cashflowGrid is the solver's working set: per-100-of-face amounts and their
// year fractions from the discounting anchor date.
type cashflowGrid struct {
	times   []float64 // years from settlement anchor, ascending
	amounts []float64 // per 100 of current face
	freq    float64   // compounding periods per year (>= 1)
}

// priceAt returns the present value of the grid discounted at annual rate y
// with the grid's compounding frequency.
func (g cashflowGrid) priceAt(y float64) float64 {
	base := 1 + y/g.freq
	terms := make([]float64, len(g.amounts))
	for i, cf := range g.amounts {
		terms[i] = cf / math.Pow(base, g.freq*g.times[i])
	}
	return floats.Sum(terms)
}

// derivativeAt returns dPV/dy at annual rate y.
func (g cashflowGrid) derivativeAt(y float64) float64 {
	base := 1 + y/g.freq
	terms := make([]float64, len(g.amounts))
	for i, cf := range g.amounts {
		terms[i] = -g.times[i] * cf / math.Pow(base, g.freq*g.times[i]+1)
	}
	return floats.Sum(terms)
}

// solveYield finds the annual rate y such that priceAt(y) equals the quoted
// price, by bracketing the root and refining with Newton steps that fall back
// to bisection whenever they leave the bracket or the derivative degenerates.
func solveYield(g cashflowGrid, price, guess float64) (float64, error) {
	if len(g.amounts) == 0 {
		return 0, domain.NewSolverError("yield solve: no cashflows to discount")
	}
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, domain.NewSolverError("yield solve: malformed price %v", price)
	}

	lo, hi := minAnnualYield, maxAnnualYield
	fLo := g.priceAt(lo) - price
	fHi := g.priceAt(hi) - price

	// Present value is strictly decreasing in yield, so the bracket check is
	// a pure sign test at the bounds.
	if fLo < 0 {
		return 0, domain.NewSolverError(
			"yield solve: root not bracketed, price %.6f exceeds value at %.0f%% yield (guess %.4f)",
			price, minAnnualYield*100, guess)
	}
	if fHi > 0 {
		return 0, domain.NewSolverError(
			"yield solve: root not bracketed, price %.6f below value at %.0f%% yield (guess %.4f)",
			price, maxAnnualYield*100, guess)
	}

	y := guess
	if y <= lo || y >= hi {
		y = (lo + hi) / 2
	}

	for iter := 0; iter < maxIterations; iter++ {
		f := g.priceAt(y) - price
		if math.Abs(f) < priceTol {
			return checkBounds(y)
		}

		// Tighten the bracket around the current point.
		if f > 0 {
			lo = y
		} else {
			hi = y
		}

		next := y
		deriv := g.derivativeAt(y)
		if math.Abs(deriv) > 1e-14 {
			next = y - f/deriv
		}
		if next <= lo || next >= hi || math.IsNaN(next) {
			next = (lo + hi) / 2 // Newton left the bracket; bisect instead
		}

		if math.Abs(next-y) < stepTol {
			return checkBounds(next)
		}
		y = next
	}

	return 0, domain.NewSolverError(
		"yield solve: no convergence after %d iterations (price %.6f, guess %.4f)",
		maxIterations, price, guess)
}

func checkBounds(y float64) (float64, error) {
	if math.IsNaN(y) || math.IsInf(y, 0) || y < minAnnualYield || y > maxAnnualYield {
		return 0, domain.NewSolverError("yield solve: result %v outside plausible range", y)
	}
	return y, nil
}

// riskMeasures holds the sensitivities derived from a solved yield.
type riskMeasures struct {
	macaulay  float64 // years
	modified  float64 // years
	convexity float64
}

// deriveRisk computes Macaulay duration (time-weighted present value over
// price), modified duration (Macaulay adjusted by the periodic yield), and
// second-derivative convexity, all at the same discounting anchor used for
// the yield solve.
func deriveRisk(g cashflowGrid, y, price float64) riskMeasures {
	base := 1 + y/g.freq

	var weighted, convexSum float64
	for i, cf := range g.amounts {
		df := 1 / math.Pow(base, g.freq*g.times[i])
		pv := cf * df
		weighted += g.times[i] * pv
		convexSum += pv * g.times[i] * (g.times[i] + 1/g.freq)
	}

	mac := weighted / price
	return riskMeasures{
		macaulay:  mac,
		modified:  mac / base,
		convexity: convexSum / (price * base * base),
	}
}
