package analytics

import (
	"math"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dkastanis/bondflow/internal/domain"
	"github.com/dkastanis/bondflow/internal/modules/cashflows"
)

// PriceConventionNote documents the inherited clean-price approximation: the
// quoted market price is discounted as if it included accrued interest. This
// is a known accuracy caveat of the reference behavior, reproduced for
// parity rather than silently corrected.
const PriceConventionNote = "clean price discounted as dirty (accrued interest not added)"

// Service runs yield/duration/convexity analytics on priced holdings.
type Service struct {
	projector *cashflows.Projector
	log       zerolog.Logger
}

// NewService creates an analytics service.
func NewService(projector *cashflows.Projector, log zerolog.Logger) *Service {
	return &Service{
		projector: projector,
		log:       log.With().Str("service", "analytics").Logger(),
	}
}

// Analyze solves the holding's yield to maturity against its quoted market
// price and derives Macaulay duration, modified duration and convexity. The
// holding's market date anchors both the cashflow projection and the
// discounting.
//
// On failure the returned result carries only the error reason; on success it
// carries all four measures and the projected cashflows - never both.
func (s *Service) Analyze(h domain.HoldingPosition) (domain.AnalyticsResult, error) {
	if h.MarketPrice == nil || !h.MarketPrice.IsPositive() {
		err := domain.NewValidationError("holding %s: market price must be positive for analytics", h.ID)
		return domain.AnalyticsResult{Error: err.Message}, err
	}
	if !h.FaceAmount.IsPositive() {
		err := domain.NewValidationError("holding %s: face amount must be positive for analytics", h.ID)
		return domain.AnalyticsResult{Error: err.Message}, err
	}

	proj, err := s.projector.Project(h, h.MarketDate)
	if err != nil {
		return domain.AnalyticsResult{Error: err.Error()}, err
	}
	if len(proj.Combined) == 0 {
		// Distinct from the projector's matured-bond non-error: a price
		// cannot be yielded against zero flows.
		derr := domain.NewDomainStateError("holding %s: no future cashflows to price against", h.ID)
		return domain.AnalyticsResult{Error: derr.Message}, derr
	}

	grid := buildGrid(h, proj)
	price, _ := h.MarketPrice.Float64()
	guess := initialGuess(h.Security)

	y, serr := solveYield(grid, price, guess)
	if serr != nil {
		s.log.Warn().Err(serr).Str("holding", h.ID).Float64("price", price).Msg("yield solve failed")
		return domain.AnalyticsResult{Error: serr.Error()}, serr
	}

	risk := deriveRisk(grid, y, price)

	return domain.AnalyticsResult{
		YieldToMaturity:  round6(y * 100),
		MacaulayDuration: round6(risk.macaulay),
		ModifiedDuration: round6(risk.modified),
		Convexity:        round6(risk.convexity),
		Cashflows:        proj.Detailed,
		PriceConvention:  PriceConventionNote,
	}, nil
}

// buildGrid scales the combined flows to a per-100-of-current-face basis and
// converts payment dates into year fractions from the market date under the
// security's day-count convention.
func buildGrid(h domain.HoldingPosition, proj cashflows.Projection) cashflowGrid {
	currentFace, _ := h.CurrentFace().Float64()
	scale := 100 / currentFace

	freq := float64(h.Security.PaymentsPerYear)
	if freq < 1 {
		freq = 1 // zero-coupon instruments discount with annual compounding
	}

	g := cashflowGrid{
		times:   make([]float64, len(proj.Combined)),
		amounts: make([]float64, len(proj.Combined)),
		freq:    freq,
	}
	for i, cf := range proj.Combined {
		amt, _ := cf.Amount.Float64()
		g.amounts[i] = amt * scale
		g.times[i] = domain.YearFraction(h.MarketDate, cf.Date, h.Security.DayCount)
	}
	return g
}

// initialGuess seeds the root-finder from the coupon rate; flat instruments
// start from a small positive rate.
func initialGuess(sec domain.SecurityTerms) float64 {
	guess, _ := sec.CouponRate.Div(decimal.NewFromInt(100)).Float64()
	if guess <= 0 {
		guess = 0.02
	}
	return guess
}

func round6(v float64) *decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	d := decimal.NewFromFloat(v).Round(6)
	return &d
}
