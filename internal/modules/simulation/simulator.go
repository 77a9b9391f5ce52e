// Package simulation runs "what-if" portfolio swaps: remove some holdings,
// add hypothetical purchases, and compare the resulting metrics.
package simulation

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dkastanis/bondflow/internal/domain"
	"github.com/dkastanis/bondflow/internal/modules/portfolio"
)

// ProposedBuy is a hypothetical purchase of an offering.
type ProposedBuy struct {
	OfferingID string          `json:"offering_id"`
	FaceAmount decimal.Decimal `json:"face_amount"`
}

// Request describes a swap simulation for one customer.
type Request struct {
	CustomerID       string        `json:"customer_id"`
	RemoveHoldingIDs []string      `json:"remove_holding_ids"`
	Buys             []ProposedBuy `json:"buys"`
	EvaluationDate   time.Time     `json:"evaluation_date"`
}

// MetricsDelta is the simulated-minus-current difference of every scalar
// metric, plus a per-key difference of the two concentration maps.
type MetricsDelta struct {
	TotalPar      decimal.Decimal                  `json:"total_par"`
	TotalMarket   decimal.Decimal                  `json:"total_market"`
	TotalBook     decimal.Decimal                  `json:"total_book"`
	GainLoss      decimal.Decimal                  `json:"gain_loss"`
	HoldingCount  int                              `json:"holding_count"`
	Concentration map[domain.SecurityType]decimal.Decimal `json:"concentration"`
}

// Result carries the before/after/delta metrics of a simulation.
type Result struct {
	Current   domain.PortfolioMetrics `json:"current"`
	Simulated domain.PortfolioMetrics `json:"simulated"`
	Delta     MetricsDelta            `json:"delta"`
}

// HoldingProvider resolves a customer's current holdings.
type HoldingProvider interface {
	GetByCustomer(customerID string) ([]domain.HoldingPosition, error)
}

// OfferingProvider resolves offering quotes for hypothetical buys.
type OfferingProvider interface {
	GetByID(id string) (domain.Offering, error)
}

// Simulator re-runs the portfolio aggregator on an actual and a hypothetical
// holding set and reports the deltas.
type Simulator struct {
	holdings   HoldingProvider
	offerings  OfferingProvider
	aggregator *portfolio.Aggregator
	log        zerolog.Logger
}

// NewSimulator creates a swap simulator.
func NewSimulator(holdings HoldingProvider, offerings OfferingProvider, aggregator *portfolio.Aggregator, log zerolog.Logger) *Simulator {
	return &Simulator{
		holdings:   holdings,
		offerings:  offerings,
		aggregator: aggregator,
		log:        log.With().Str("service", "simulator").Logger(),
	}
}

// Simulate validates the request, builds the hypothetical holding set and
// aggregates both sets. The whole request is rejected before any computation
// when it is empty or references an unresolvable holding or offering.
func (s *Simulator) Simulate(req Request) (Result, error) {
	if req.CustomerID == "" {
		return Result{}, domain.NewValidationError("simulation: customer id is required")
	}
	if len(req.RemoveHoldingIDs) == 0 && len(req.Buys) == 0 {
		return Result{}, domain.NewValidationError("simulation: nothing to simulate, supply holdings to remove or offerings to buy")
	}

	current, err := s.holdings.GetByCustomer(req.CustomerID)
	if err != nil {
		return Result{}, err
	}

	evalDate := req.EvaluationDate
	if evalDate.IsZero() {
		evalDate = time.Now().UTC().Truncate(24 * time.Hour)
	}

	// Every removal must reference a real holding of this customer.
	byID := make(map[string]bool, len(current))
	for _, h := range current {
		byID[h.ID] = true
	}
	removed := make(map[string]bool, len(req.RemoveHoldingIDs))
	for _, id := range req.RemoveHoldingIDs {
		if !byID[id] {
			return Result{}, domain.NewReferenceDataError("simulation: holding %s not found for customer %s", id, req.CustomerID)
		}
		removed[id] = true
	}

	// Resolve all offerings before building anything.
	buys := make([]domain.HoldingPosition, 0, len(req.Buys))
	for _, buy := range req.Buys {
		if !buy.FaceAmount.IsPositive() {
			return Result{}, domain.NewValidationError("simulation: buy of offering %s needs a positive face amount", buy.OfferingID)
		}
		off, err := s.offerings.GetByID(buy.OfferingID)
		if err != nil {
			return Result{}, err
		}
		buys = append(buys, syntheticHolding(req.CustomerID, off, buy.FaceAmount, evalDate))
	}

	simulated := make([]domain.HoldingPosition, 0, len(current)+len(buys))
	for _, h := range current {
		if !removed[h.ID] {
			simulated = append(simulated, h)
		}
	}
	simulated = append(simulated, buys...)

	currentMetrics := s.aggregator.Aggregate(current)
	simulatedMetrics := s.aggregator.Aggregate(simulated)

	s.log.Info().
		Str("customer", req.CustomerID).
		Int("removed", len(removed)).
		Int("bought", len(buys)).
		Msg("swap simulation completed")

	return Result{
		Current:   currentMetrics,
		Simulated: simulatedMetrics,
		Delta:     diffMetrics(currentMetrics, simulatedMetrics),
	}, nil
}

// syntheticHolding builds a holding record for a hypothetical purchase. No
// real position exists yet, so settlement is the evaluation date and both
// prices start at the offering quote.
func syntheticHolding(customerID string, off domain.Offering, face decimal.Decimal, evalDate time.Time) domain.HoldingPosition {
	price := off.Price
	return domain.HoldingPosition{
		ID:             uuid.New().String(),
		CustomerID:     customerID,
		Security:       off.Security,
		FaceAmount:     face,
		SettlementDate: evalDate,
		MarketDate:     evalDate,
		MarketPrice:    &price,
		BookPrice:      &price,
	}
}

// diffMetrics computes simulated - current for every scalar metric and a
// symmetric per-key difference of the concentration maps.
func diffMetrics(current, simulated domain.PortfolioMetrics) MetricsDelta {
	delta := MetricsDelta{
		TotalPar:      simulated.TotalPar.Sub(current.TotalPar),
		TotalMarket:   simulated.TotalMarket.Sub(current.TotalMarket),
		TotalBook:     simulated.TotalBook.Sub(current.TotalBook),
		GainLoss:      simulated.GainLoss.Sub(current.GainLoss),
		HoldingCount:  simulated.HoldingCount - current.HoldingCount,
		Concentration: make(map[domain.SecurityType]decimal.Decimal),
	}

	for secType, pct := range simulated.Concentration {
		delta.Concentration[secType] = pct.Sub(current.Concentration[secType])
	}
	for secType, pct := range current.Concentration {
		if _, seen := simulated.Concentration[secType]; !seen {
			delta.Concentration[secType] = pct.Neg()
		}
	}

	return delta
}
