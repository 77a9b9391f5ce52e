package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dkastanis/bondflow/internal/domain"
	"github.com/dkastanis/bondflow/internal/modules/analytics"
	"github.com/dkastanis/bondflow/internal/modules/cashflows"
	"github.com/dkastanis/bondflow/internal/modules/portfolio"
	"github.com/dkastanis/bondflow/internal/modules/simulation"
	"github.com/dkastanis/bondflow/internal/modules/snapshots"
	"github.com/dkastanis/bondflow/internal/modules/universe"
)

// HandlerDeps wires the engine services into the HTTP layer.
type HandlerDeps struct {
	Log        zerolog.Logger
	Holdings   *portfolio.HoldingRepository
	Securities *universe.SecurityRepository
	Offerings  *universe.OfferingRepository
	Projector  *cashflows.Projector
	Analytics  *analytics.Service
	Aggregator *portfolio.Aggregator
	Simulator  *simulation.Simulator
	Snapshots  *snapshots.Repository
}

// Handlers handles bond analytics HTTP requests
type Handlers struct {
	holdings   *portfolio.HoldingRepository
	securities *universe.SecurityRepository
	offerings  *universe.OfferingRepository
	projector  *cashflows.Projector
	analytics  *analytics.Service
	aggregator *portfolio.Aggregator
	simulator  *simulation.Simulator
	snapshots  *snapshots.Repository
	log        zerolog.Logger
}

// NewHandlers creates the API handler set
func NewHandlers(deps HandlerDeps) *Handlers {
	return &Handlers{
		holdings:   deps.Holdings,
		securities: deps.Securities,
		offerings:  deps.Offerings,
		projector:  deps.Projector,
		analytics:  deps.Analytics,
		aggregator: deps.Aggregator,
		simulator:  deps.Simulator,
		snapshots:  deps.Snapshots,
		log:        deps.Log.With().Str("handler", "api").Logger(),
	}
}

// HandleHoldingCashflows returns the projected cashflows for one holding.
// GET /api/holdings/{holdingID}/cashflows?as_of=YYYY-MM-DD
func (h *Handlers) HandleHoldingCashflows(w http.ResponseWriter, r *http.Request) {
	holding, ok := h.lookupHolding(w, r)
	if !ok {
		return
	}

	evalDate, err := evalDateParam(r, holding.SettlementDate)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	proj, err := h.projector.Project(holding, evalDate)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"holding_id":      holding.ID,
			"evaluation_date": evalDate.Format("2006-01-02"),
			"cashflows":       proj.Detailed,
			"combined":        proj.Combined,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleHoldingAnalytics returns yield, duration and convexity for one holding.
// GET /api/holdings/{holdingID}/analytics
func (h *Handlers) HandleHoldingAnalytics(w http.ResponseWriter, r *http.Request) {
	holding, ok := h.lookupHolding(w, r)
	if !ok {
		return
	}

	// Pricing needs an evaluation date; holdings are stored without one.
	evalDate, err := evalDateParam(r, time.Now().UTC().Truncate(24*time.Hour))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	holding.MarketDate = evalDate

	result, err := h.analytics.Analyze(holding)
	if err != nil {
		// The result carries only the failure reason; return it with
		// the mapped status.
		status := http.StatusInternalServerError
		if domain.IsClientError(err) {
			status = http.StatusUnprocessableEntity
		}
		h.writeJSON(w, status, map[string]interface{}{"data": result})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": result})
}

// HandlePortfolioMetrics returns aggregated metrics for a customer's holdings.
// GET /api/portfolio/{customerID}/metrics
func (h *Handlers) HandlePortfolioMetrics(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")

	holdings, err := h.holdings.GetByCustomer(customerID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	metrics := h.aggregator.Aggregate(holdings)

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": metrics,
		"metadata": map[string]interface{}{
			"customer_id": customerID,
			"timestamp":   time.Now().Format(time.RFC3339),
		},
	})
}

// HandlePortfolioCashflows returns date-merged cashflows across a customer's
// holdings.
// GET /api/portfolio/{customerID}/cashflows?as_of=YYYY-MM-DD
func (h *Handlers) HandlePortfolioCashflows(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")

	holdings, err := h.holdings.GetByCustomer(customerID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	evalDate, err := evalDateParam(r, time.Now().UTC().Truncate(24*time.Hour))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flows, err := h.aggregator.CashflowsByDate(r.Context(), holdings, evalDate)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": flows,
		"metadata": map[string]interface{}{
			"customer_id":     customerID,
			"evaluation_date": evalDate.Format("2006-01-02"),
			"holding_count":   len(holdings),
		},
	})
}

// HandleSwapSimulation runs a hypothetical sell/buy portfolio restructure.
// POST /api/portfolio/{customerID}/swap-simulation
func (h *Handlers) HandleSwapSimulation(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")

	var req simulation.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req.CustomerID = customerID
	if req.EvaluationDate.IsZero() {
		req.EvaluationDate = time.Now().UTC().Truncate(24 * time.Hour)
	}

	result, err := h.simulator.Simulate(req)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": result})
}

// HandleLatestSnapshot returns the most recent stored portfolio snapshot.
// GET /api/portfolio/{customerID}/snapshot
func (h *Handlers) HandleLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")

	metrics, takenAt, err := h.snapshots.Latest(customerID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": metrics,
		"metadata": map[string]interface{}{
			"customer_id": customerID,
			"taken_at":    takenAt.Format(time.RFC3339),
		},
	})
}

// HandleListSecurities returns all known security terms.
// GET /api/securities
func (h *Handlers) HandleListSecurities(w http.ResponseWriter, r *http.Request) {
	securities, err := h.securities.GetAll()
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": securities})
}

// HandleGetSecurity returns one security by CUSIP.
// GET /api/securities/{cusip}
func (h *Handlers) HandleGetSecurity(w http.ResponseWriter, r *http.Request) {
	cusip := chi.URLParam(r, "cusip")

	sec, err := h.securities.GetByCUSIP(cusip)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": sec})
}

// HandleListOfferings returns all purchasable offerings.
// GET /api/offerings
func (h *Handlers) HandleListOfferings(w http.ResponseWriter, r *http.Request) {
	offerings, err := h.offerings.GetAll()
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": offerings})
}

// Helper methods

func (h *Handlers) lookupHolding(w http.ResponseWriter, r *http.Request) (domain.HoldingPosition, bool) {
	holdingID := chi.URLParam(r, "holdingID")

	holding, err := h.holdings.GetByID(holdingID)
	if err != nil {
		h.writeEngineError(w, err)
		return domain.HoldingPosition{}, false
	}
	return holding, true
}

// evalDateParam parses the optional as_of query parameter, falling back to
// the given default.
func evalDateParam(r *http.Request, fallback time.Time) (time.Time, error) {
	raw := r.URL.Query().Get("as_of")
	if raw == "" {
		return fallback, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, domain.NewValidationError("invalid as_of date %q, expected YYYY-MM-DD", raw)
	}
	return t, nil
}

// writeEngineError maps engine error categories to HTTP statuses.
func (h *Handlers) writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, sql.ErrNoRows), domain.CategoryOf(err) == domain.CategoryReferenceData:
		status = http.StatusNotFound
	case domain.CategoryOf(err) == domain.CategoryValidation:
		status = http.StatusBadRequest
	case domain.CategoryOf(err) == domain.CategoryDomainState:
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Request failed")
	}
	h.writeJSON(w, status, map[string]string{
		"error":    err.Error(),
		"category": string(domain.CategoryOf(err)),
	})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
