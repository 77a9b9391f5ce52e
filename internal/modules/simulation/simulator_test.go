package simulation

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkastanis/bondflow/internal/domain"
	"github.com/dkastanis/bondflow/internal/modules/cashflows"
	"github.com/dkastanis/bondflow/internal/modules/portfolio"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decP(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

type fakeHoldings struct {
	holdings []domain.HoldingPosition
	err      error
}

func (f *fakeHoldings) GetByCustomer(customerID string) ([]domain.HoldingPosition, error) {
	return f.holdings, f.err
}

type fakeOfferings struct {
	offerings map[string]domain.Offering
}

func (f *fakeOfferings) GetByID(id string) (domain.Offering, error) {
	off, ok := f.offerings[id]
	if !ok {
		return domain.Offering{}, domain.NewReferenceDataError("offering %s not found", id)
	}
	return off, nil
}

func testSecurity(cusip string, secType domain.SecurityType) domain.SecurityTerms {
	return domain.SecurityTerms{
		CUSIP:           cusip,
		Type:            secType,
		IssueDate:       date(2022, 1, 1),
		MaturityDate:    date(2027, 1, 1),
		CouponRate:      dec("4"),
		PaymentsPerYear: 2,
		DayCount:        domain.ConventionThirtyThreeSixty,
		Factor:          dec("1"),
	}
}

func testHolding(id string, secType domain.SecurityType, face, market, book string) domain.HoldingPosition {
	return domain.HoldingPosition{
		ID:             id,
		CustomerID:     "C-1",
		Security:       testSecurity("CUSIP"+id, secType),
		FaceAmount:     dec(face),
		SettlementDate: date(2022, 1, 1),
		MarketDate:     date(2024, 6, 30),
		MarketPrice:    decP(market),
		BookPrice:      decP(book),
	}
}

func newTestSimulator(holdings *fakeHoldings, offerings *fakeOfferings) *Simulator {
	agg := portfolio.NewAggregator(cashflows.NewProjector(zerolog.Nop()), zerolog.Nop())
	return NewSimulator(holdings, offerings, agg, zerolog.Nop())
}

func TestSimulateSwap(t *testing.T) {
	holdings := &fakeHoldings{holdings: []domain.HoldingPosition{
		testHolding("H-1", domain.SecurityTypeMunicipal, "100000", "100.00", "100.00"),
		testHolding("H-2", domain.SecurityTypeCorporate, "50000", "98.00", "100.00"),
	}}
	offerings := &fakeOfferings{offerings: map[string]domain.Offering{
		"OFF-1": {
			ID:       "OFF-1",
			Price:    dec("99.00"),
			Security: testSecurity("912828XT5", domain.SecurityTypeTreasury),
		},
	}}

	result, err := newTestSimulator(holdings, offerings).Simulate(Request{
		CustomerID:       "C-1",
		RemoveHoldingIDs: []string{"H-2"},
		Buys:             []ProposedBuy{{OfferingID: "OFF-1", FaceAmount: dec("50000")}},
		EvaluationDate:   date(2024, 6, 30),
	})
	require.NoError(t, err)

	// Current: 100000 + 0.98*50000 market, 150000 book.
	assert.Equal(t, 2, result.Current.HoldingCount)
	assert.True(t, result.Current.TotalMarket.Equal(dec("149000")), "got %s", result.Current.TotalMarket)
	assert.True(t, result.Current.GainLoss.Equal(dec("-1000")), "got %s", result.Current.GainLoss)

	// Simulated: corp replaced by treasury priced at 99.
	assert.Equal(t, 2, result.Simulated.HoldingCount)
	assert.True(t, result.Simulated.TotalPar.Equal(dec("150000")))
	assert.True(t, result.Simulated.TotalMarket.Equal(dec("149500")), "got %s", result.Simulated.TotalMarket)
	// Synthetic buys carry identical market and book prices.
	assert.True(t, result.Simulated.GainLoss.IsZero(), "got %s", result.Simulated.GainLoss)

	// Deltas are simulated minus current.
	assert.True(t, result.Delta.TotalPar.IsZero())
	assert.True(t, result.Delta.TotalMarket.Equal(dec("500")), "got %s", result.Delta.TotalMarket)
	assert.True(t, result.Delta.GainLoss.Equal(dec("1000")), "got %s", result.Delta.GainLoss)
	assert.Equal(t, 0, result.Delta.HoldingCount)

	// Concentration moves from corporate into treasury.
	assert.True(t, result.Delta.Concentration[domain.SecurityTypeMunicipal].IsZero())
	assert.True(t, result.Delta.Concentration[domain.SecurityTypeCorporate].Equal(dec("-33.33")),
		"got %s", result.Delta.Concentration[domain.SecurityTypeCorporate])
	assert.True(t, result.Delta.Concentration[domain.SecurityTypeTreasury].Equal(dec("33.33")),
		"got %s", result.Delta.Concentration[domain.SecurityTypeTreasury])
}

func TestSimulateBuyOnly(t *testing.T) {
	holdings := &fakeHoldings{holdings: []domain.HoldingPosition{
		testHolding("H-1", domain.SecurityTypeMunicipal, "100000", "100.00", "100.00"),
	}}
	offerings := &fakeOfferings{offerings: map[string]domain.Offering{
		"OFF-1": {ID: "OFF-1", Price: dec("100.00"), Security: testSecurity("912828XT5", domain.SecurityTypeTreasury)},
	}}

	result, err := newTestSimulator(holdings, offerings).Simulate(Request{
		CustomerID:     "C-1",
		Buys:           []ProposedBuy{{OfferingID: "OFF-1", FaceAmount: dec("100000")}},
		EvaluationDate: date(2024, 6, 30),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Delta.HoldingCount)
	assert.True(t, result.Delta.TotalPar.Equal(dec("100000")))
}

func TestSimulateRejectsEmptyRequest(t *testing.T) {
	sim := newTestSimulator(&fakeHoldings{}, &fakeOfferings{})

	_, err := sim.Simulate(Request{CustomerID: "C-1", EvaluationDate: date(2024, 6, 30)})
	require.Error(t, err)
	assert.Equal(t, domain.CategoryValidation, domain.CategoryOf(err))

	_, err = sim.Simulate(Request{RemoveHoldingIDs: []string{"H-1"}})
	require.Error(t, err)
	assert.Equal(t, domain.CategoryValidation, domain.CategoryOf(err))
}

func TestSimulateRejectsUnknownHolding(t *testing.T) {
	holdings := &fakeHoldings{holdings: []domain.HoldingPosition{
		testHolding("H-1", domain.SecurityTypeMunicipal, "100000", "100.00", "100.00"),
	}}
	sim := newTestSimulator(holdings, &fakeOfferings{})

	_, err := sim.Simulate(Request{
		CustomerID:       "C-1",
		RemoveHoldingIDs: []string{"H-404"},
		EvaluationDate:   date(2024, 6, 30),
	})
	require.Error(t, err)
	assert.Equal(t, domain.CategoryReferenceData, domain.CategoryOf(err))
	assert.Contains(t, err.Error(), "H-404")
}

func TestSimulateRejectsUnknownOffering(t *testing.T) {
	holdings := &fakeHoldings{holdings: []domain.HoldingPosition{
		testHolding("H-1", domain.SecurityTypeMunicipal, "100000", "100.00", "100.00"),
	}}
	sim := newTestSimulator(holdings, &fakeOfferings{})

	_, err := sim.Simulate(Request{
		CustomerID:     "C-1",
		Buys:           []ProposedBuy{{OfferingID: "OFF-404", FaceAmount: dec("1000")}},
		EvaluationDate: date(2024, 6, 30),
	})
	require.Error(t, err)
	assert.Equal(t, domain.CategoryReferenceData, domain.CategoryOf(err))
}

func TestSimulateRejectsNonPositiveBuy(t *testing.T) {
	holdings := &fakeHoldings{holdings: []domain.HoldingPosition{
		testHolding("H-1", domain.SecurityTypeMunicipal, "100000", "100.00", "100.00"),
	}}
	sim := newTestSimulator(holdings, &fakeOfferings{})

	_, err := sim.Simulate(Request{
		CustomerID:     "C-1",
		Buys:           []ProposedBuy{{OfferingID: "OFF-1", FaceAmount: dec("0")}},
		EvaluationDate: date(2024, 6, 30),
	})
	require.Error(t, err)
	assert.Equal(t, domain.CategoryValidation, domain.CategoryOf(err))
}
