package server

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/dkastanis/bondflow/internal/config"
	"github.com/dkastanis/bondflow/internal/modules/analytics"
	"github.com/dkastanis/bondflow/internal/modules/cashflows"
	"github.com/dkastanis/bondflow/internal/modules/portfolio"
	"github.com/dkastanis/bondflow/internal/modules/simulation"
	"github.com/dkastanis/bondflow/internal/modules/snapshots"
	"github.com/dkastanis/bondflow/internal/modules/universe"
	"github.com/dkastanis/bondflow/internal/scheduler"
)

// newTestServer wires the full API against in-memory databases seeded with
// one municipal bond held by customer C-1.
func newTestServer(t *testing.T) *Server {
	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE securities (
			cusip             TEXT PRIMARY KEY,
			description       TEXT NOT NULL DEFAULT '',
			security_type     TEXT NOT NULL DEFAULT 'Unknown',
			issue_date        TEXT NOT NULL,
			maturity_date     TEXT NOT NULL,
			call_date         TEXT,
			coupon_rate       TEXT NOT NULL DEFAULT '0',
			payments_per_year INTEGER NOT NULL DEFAULT 0,
			day_count         TEXT NOT NULL DEFAULT 'ACT/ACT',
			allows_paydown    INTEGER NOT NULL DEFAULT 0,
			annual_cpr        TEXT NOT NULL DEFAULT '0',
			factor            TEXT NOT NULL DEFAULT '1'
		);
		CREATE TABLE holdings (
			id              TEXT PRIMARY KEY,
			customer_id     TEXT NOT NULL,
			cusip           TEXT NOT NULL,
			face_amount     TEXT NOT NULL,
			settlement_date TEXT NOT NULL,
			market_price    TEXT,
			book_price      TEXT
		);
		CREATE TABLE offerings (
			id          TEXT PRIMARY KEY,
			cusip       TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			price       TEXT NOT NULL
		);
		CREATE TABLE portfolio_snapshots (
			customer_id TEXT NOT NULL,
			taken_at    TEXT NOT NULL,
			payload     BLOB NOT NULL,
			PRIMARY KEY (customer_id, taken_at)
		);

		INSERT INTO securities (cusip, description, security_type, issue_date, maturity_date, coupon_rate, payments_per_year, day_count)
		VALUES ('64971M5E8', 'NYC GO 4.00% 2025', 'Municipal', '2022-01-01', '2025-01-01', '4', 2, '30/360');

		INSERT INTO holdings (id, customer_id, cusip, face_amount, settlement_date, market_price, book_price)
		VALUES ('H-1', 'C-1', '64971M5E8', '100000', '2022-01-01', '100.00', '100.00');

		INSERT INTO offerings (id, cusip, description, price)
		VALUES ('OFF-1', '64971M5E8', 'NYC GO block', '99.50')
	`)
	require.NoError(t, err)

	log := zerolog.Nop()
	securityRepo := universe.NewSecurityRepository(db, log)
	offeringRepo := universe.NewOfferingRepository(db, securityRepo, log)
	holdingRepo := portfolio.NewHoldingRepository(db, securityRepo, log)
	snapshotRepo := snapshots.NewRepository(db, log)

	projector := cashflows.NewProjector(log)
	aggregator := portfolio.NewAggregator(projector, log)

	return New(Config{
		Log:        log,
		Config:     &config.Config{DataDir: t.TempDir()},
		Port:       0,
		DevMode:    true,
		Holdings:   holdingRepo,
		Securities: securityRepo,
		Offerings:  offeringRepo,
		Projector:  projector,
		Analytics:  analytics.NewService(projector, log),
		Aggregator: aggregator,
		Simulator:  simulation.NewSimulator(holdingRepo, offeringRepo, aggregator, log),
		Snapshots:  snapshotRepo,
		Scheduler:  scheduler.New(log),
	})
}

func doRequest(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHandleHoldingCashflows(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/holdings/H-1/cashflows?as_of=2023-06-30", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			HoldingID      string `json:"holding_id"`
			EvaluationDate string `json:"evaluation_date"`
			Combined       []struct {
				Date   string `json:"date"`
				Amount string `json:"amount"`
			} `json:"combined"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, "H-1", resp.Data.HoldingID)
	assert.Equal(t, "2023-06-30", resp.Data.EvaluationDate)
	require.Len(t, resp.Data.Combined, 3)
	assert.Equal(t, "102000.00", resp.Data.Combined[2].Amount)
}

func TestHandleHoldingCashflowsRejectsBadDate(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/holdings/H-1/cashflows?as_of=June-2023", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "as_of")
}

func TestHandleHoldingCashflowsNotFound(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/holdings/H-404/cashflows", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "reference_data", resp["category"])
}

func TestHandleHoldingAnalytics(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/holdings/H-1/analytics?as_of=2023-06-30", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			YieldToMaturity *string `json:"yield_to_maturity"`
			PriceConvention string  `json:"price_convention"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	// Par-priced 4% bond yields approximately its coupon.
	require.NotNil(t, resp.Data.YieldToMaturity)
	ytm, err := strconv.ParseFloat(*resp.Data.YieldToMaturity, 64)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, ytm, 0.05)
	assert.NotEmpty(t, resp.Data.PriceConvention)
}

func TestHandleHoldingAnalyticsMaturedBond(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/holdings/H-1/analytics?as_of=2030-01-01", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandlePortfolioMetrics(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/portfolio/C-1/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			TotalPar     string `json:"total_par"`
			HoldingCount int    `json:"holding_count"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, "100000", resp.Data.TotalPar)
	assert.Equal(t, 1, resp.Data.HoldingCount)
}

func TestHandlePortfolioCashflows(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/portfolio/C-1/cashflows?as_of=2023-06-30", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []struct {
			Interest  string `json:"interest"`
			Principal string `json:"principal"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 3)
	assert.Equal(t, "2000.00", resp.Data[0].Interest)
	assert.Equal(t, "100000", resp.Data[2].Principal)
}

func TestHandleSwapSimulation(t *testing.T) {
	srv := newTestServer(t)

	body := `{
		"remove_holding_ids": ["H-1"],
		"buys": [{"offering_id": "OFF-1", "face_amount": "50000"}],
		"evaluation_date": "2024-06-30T00:00:00Z"
	}`
	rec := doRequest(t, srv, http.MethodPost, "/api/portfolio/C-1/swap-simulation", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			Delta struct {
				TotalPar     string `json:"total_par"`
				HoldingCount int    `json:"holding_count"`
			} `json:"delta"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, "-50000", resp.Data.Delta.TotalPar)
	assert.Equal(t, 0, resp.Data.Delta.HoldingCount)
}

func TestHandleSwapSimulationRejectsEmpty(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/portfolio/C-1/swap-simulation", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSwapSimulationUnknownHolding(t *testing.T) {
	srv := newTestServer(t)

	body := `{"remove_holding_ids": ["H-404"]}`
	rec := doRequest(t, srv, http.MethodPost, "/api/portfolio/C-1/swap-simulation", body)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleLatestSnapshotMissing(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/portfolio/C-1/snapshot", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleListSecurities(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/securities/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "64971M5E8")
}

func TestHandleGetSecurity(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/securities/64971M5E8", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "NYC GO 4.00% 2025")

	rec = doRequest(t, srv, http.MethodGet, "/api/securities/NOPE", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleListOfferings(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/offerings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "OFF-1")
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}
