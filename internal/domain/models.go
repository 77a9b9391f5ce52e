// Package domain provides the core fixed-income domain models shared by all modules.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SecurityType classifies a security for concentration reporting
type SecurityType string

const (
	SecurityTypeMunicipal SecurityType = "Municipal"
	SecurityTypeCorporate SecurityType = "Corporate"
	SecurityTypeTreasury  SecurityType = "Treasury"
	SecurityTypeAgency    SecurityType = "Agency"
	SecurityTypeMBS       SecurityType = "MBS"
	SecurityTypeUnknown   SecurityType = "Unknown"
)

// SecurityTerms holds the contractual terms of a fixed-income security.
// Instances are immutable per calculation call: the engine never writes
// through to reference data.
type SecurityTerms struct {
	CUSIP        string          `json:"cusip"`
	Description  string          `json:"description"`
	Type         SecurityType    `json:"type"`
	IssueDate    time.Time       `json:"issue_date"`
	MaturityDate time.Time       `json:"maturity_date"`
	CallDate     *time.Time      `json:"call_date,omitempty"` // informational; no option-adjusted pricing
	CouponRate   decimal.Decimal `json:"coupon_rate"`         // annual rate, percent (4.0 = 4%)
	// PaymentsPerYear is coupon payments per year: 1, 2, 4 or 12.
	// Zero is permitted only for true zero-coupon instruments.
	PaymentsPerYear int        `json:"payments_per_year"`
	DayCount        Convention `json:"day_count"`
	AllowsPaydown   bool       `json:"allows_paydown"`
	// AnnualCPR is the annual conditional prepayment rate, percent.
	// Ignored unless AllowsPaydown is true.
	AnnualCPR decimal.Decimal `json:"annual_cpr"`
	// Factor is the fraction of original face still outstanding (0 < factor <= 1).
	Factor decimal.Decimal `json:"factor"`
}

// IsZeroCoupon reports whether the security is a true zero-coupon instrument.
func (s SecurityTerms) IsZeroCoupon() bool {
	return s.PaymentsPerYear == 0 && s.CouponRate.IsZero()
}

// EffectiveFactor returns the paydown factor, defaulting to 1 when unset.
func (s SecurityTerms) EffectiveFactor() decimal.Decimal {
	if s.Factor.IsZero() {
		return decimal.NewFromInt(1)
	}
	return s.Factor
}

// Validate checks the structural invariants of the security terms.
func (s SecurityTerms) Validate() error {
	if s.CUSIP == "" {
		return NewValidationError("security identifier is missing")
	}
	if s.IssueDate.IsZero() || s.MaturityDate.IsZero() {
		return NewValidationError("security %s: issue and maturity dates are required", s.CUSIP)
	}
	if !s.MaturityDate.After(s.IssueDate) {
		return NewValidationError("security %s: maturity %s is not after issue %s",
			s.CUSIP, s.MaturityDate.Format("2006-01-02"), s.IssueDate.Format("2006-01-02"))
	}
	if s.CouponRate.IsPositive() && s.PaymentsPerYear <= 0 {
		return NewValidationError("security %s: coupon-bearing instrument requires a positive payment frequency", s.CUSIP)
	}
	if s.PaymentsPerYear < 0 {
		return NewValidationError("security %s: payment frequency %d is invalid", s.CUSIP, s.PaymentsPerYear)
	}
	f := s.EffectiveFactor()
	if f.IsNegative() || f.GreaterThan(decimal.NewFromInt(1)) {
		return NewValidationError("security %s: factor %s is outside (0, 1]", s.CUSIP, s.Factor)
	}
	return nil
}

// HoldingPosition is a customer's position in a security, with the quoted
// prices needed for valuation and analytics.
type HoldingPosition struct {
	ID             string        `json:"id"`
	CustomerID     string        `json:"customer_id"`
	Security       SecurityTerms `json:"security"`
	FaceAmount     decimal.Decimal `json:"face_amount"` // original face, > 0
	SettlementDate time.Time     `json:"settlement_date"`
	MarketDate     time.Time     `json:"market_date"` // evaluation date for pricing
	// MarketPrice and BookPrice are quoted per 100 of current face.
	// Either may be absent; value and analytics computations require them.
	MarketPrice *decimal.Decimal `json:"market_price,omitempty"`
	BookPrice   *decimal.Decimal `json:"book_price,omitempty"`
}

// Validate checks everything a projection needs before any numerical work:
// a valid security reference, a positive face amount and a settlement date.
func (h HoldingPosition) Validate() error {
	if err := h.Security.Validate(); err != nil {
		return err
	}
	if !h.FaceAmount.IsPositive() {
		return NewValidationError("holding %s: face amount must be positive", h.ID)
	}
	if h.SettlementDate.IsZero() {
		return NewValidationError("holding %s: settlement date is required", h.ID)
	}
	return nil
}

// CurrentFace returns the face amount adjusted by the paydown factor.
func (h HoldingPosition) CurrentFace() decimal.Decimal {
	return h.FaceAmount.Mul(h.Security.EffectiveFactor())
}

// ParValue is the par value of the position (face x factor).
func (h HoldingPosition) ParValue() decimal.Decimal {
	return h.CurrentFace()
}

// MarketValue returns par x marketPrice / 100, or nil when no market price is quoted.
func (h HoldingPosition) MarketValue() *decimal.Decimal {
	if h.MarketPrice == nil {
		return nil
	}
	v := h.ParValue().Mul(*h.MarketPrice).Div(decimal.NewFromInt(100))
	return &v
}

// BookValue returns par x bookPrice / 100, or nil when no book price is quoted.
func (h HoldingPosition) BookValue() *decimal.Decimal {
	if h.BookPrice == nil {
		return nil
	}
	v := h.ParValue().Mul(*h.BookPrice).Div(decimal.NewFromInt(100))
	return &v
}

// FlowKind distinguishes interest from principal cashflows
type FlowKind string

const (
	FlowInterest  FlowKind = "interest"
	FlowPrincipal FlowKind = "principal"
)

// CashflowEvent is a single dated, typed cash payment. Amounts are exact
// decimals; events are created fresh on every calculation call and never
// mutated.
type CashflowEvent struct {
	Date   time.Time       `json:"date"`
	Amount decimal.Decimal `json:"amount"`
	Kind   FlowKind        `json:"kind"`
}

// CombinedFlow is the per-date total of interest and principal, used by the
// yield solver and by portfolio-level aggregation.
type CombinedFlow struct {
	Date   time.Time       `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

// AnalyticsResult carries yield/duration/convexity for a holding. Either all
// four numeric fields are populated, or Error is set - never both.
type AnalyticsResult struct {
	YieldToMaturity  *decimal.Decimal `json:"yield_to_maturity,omitempty"`  // percent, annualized
	ModifiedDuration *decimal.Decimal `json:"modified_duration,omitempty"`  // years
	MacaulayDuration *decimal.Decimal `json:"macaulay_duration,omitempty"`  // years
	Convexity        *decimal.Decimal `json:"convexity,omitempty"`
	Cashflows        []CashflowEvent  `json:"cashflows"`
	// PriceConvention documents the clean-price approximation used by the
	// solver: the quoted market price is discounted as if it were a dirty
	// price. Carried over from the reference system, not silently corrected.
	PriceConvention string `json:"price_convention,omitempty"`
	Error           string `json:"error,omitempty"`
}

// PortfolioMetrics is a full portfolio valuation, recomputed from scratch on
// every request.
type PortfolioMetrics struct {
	TotalPar     decimal.Decimal `json:"total_par"`
	TotalMarket  decimal.Decimal `json:"total_market"`
	TotalBook    decimal.Decimal `json:"total_book"`
	GainLoss     decimal.Decimal `json:"gain_loss"`
	HoldingCount int             `json:"holding_count"`
	// Concentration maps security type to percentage of total par.
	Concentration map[SecurityType]decimal.Decimal `json:"concentration"`
}

// Offering is a purchasable security quote used by swap simulation. Offerings
// are resolved by the persistence layer before the simulator runs.
type Offering struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"` // per 100 of current face
	Security    SecurityTerms   `json:"security"`
}
