// Package snapshots persists daily portfolio-metrics snapshots in the cache
// database. Caching lives here, outside the engine: the engine itself
// recomputes from scratch on every call.
package snapshots

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/dkastanis/bondflow/internal/domain"
)

const timeLayout = time.RFC3339

// record is the msgpack payload. Monetary fields are serialized as
// exact-decimal strings, never binary floats.
type record struct {
	TotalPar      string            `msgpack:"total_par"`
	TotalMarket   string            `msgpack:"total_market"`
	TotalBook     string            `msgpack:"total_book"`
	GainLoss      string            `msgpack:"gain_loss"`
	HoldingCount  int               `msgpack:"holding_count"`
	Concentration map[string]string `msgpack:"concentration"`
}

// Repository stores and retrieves metric snapshots.
type Repository struct {
	cacheDB *sql.DB
	log     zerolog.Logger
}

// NewRepository creates a snapshot repository.
func NewRepository(cacheDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		cacheDB: cacheDB,
		log:     log.With().Str("repo", "snapshots").Logger(),
	}
}

// Store saves a customer's metrics at a point in time.
func (r *Repository) Store(customerID string, metrics domain.PortfolioMetrics, takenAt time.Time) error {
	rec := record{
		TotalPar:      metrics.TotalPar.String(),
		TotalMarket:   metrics.TotalMarket.String(),
		TotalBook:     metrics.TotalBook.String(),
		GainLoss:      metrics.GainLoss.String(),
		HoldingCount:  metrics.HoldingCount,
		Concentration: make(map[string]string, len(metrics.Concentration)),
	}
	for secType, pct := range metrics.Concentration {
		rec.Concentration[string(secType)] = pct.String()
	}

	payload, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot for customer %s: %w", customerID, err)
	}

	_, err = r.cacheDB.Exec(
		`INSERT OR REPLACE INTO portfolio_snapshots (customer_id, taken_at, payload) VALUES (?, ?, ?)`,
		customerID, takenAt.UTC().Format(timeLayout), payload,
	)
	if err != nil {
		return fmt.Errorf("failed to store snapshot for customer %s: %w", customerID, err)
	}
	return nil
}

// Latest returns the most recent snapshot for a customer.
func (r *Repository) Latest(customerID string) (domain.PortfolioMetrics, time.Time, error) {
	var (
		takenAt string
		payload []byte
	)
	err := r.cacheDB.QueryRow(
		`SELECT taken_at, payload FROM portfolio_snapshots WHERE customer_id = ? ORDER BY taken_at DESC LIMIT 1`,
		customerID,
	).Scan(&takenAt, &payload)
	if err == sql.ErrNoRows {
		return domain.PortfolioMetrics{}, time.Time{}, domain.NewReferenceDataError("no snapshot for customer %s", customerID)
	}
	if err != nil {
		return domain.PortfolioMetrics{}, time.Time{}, fmt.Errorf("failed to query snapshot for customer %s: %w", customerID, err)
	}

	var rec record
	if err := msgpack.Unmarshal(payload, &rec); err != nil {
		return domain.PortfolioMetrics{}, time.Time{}, fmt.Errorf("failed to decode snapshot for customer %s: %w", customerID, err)
	}

	metrics, err := rec.toMetrics()
	if err != nil {
		return domain.PortfolioMetrics{}, time.Time{}, fmt.Errorf("snapshot for customer %s: %w", customerID, err)
	}

	at, err := time.Parse(timeLayout, takenAt)
	if err != nil {
		return domain.PortfolioMetrics{}, time.Time{}, fmt.Errorf("snapshot for customer %s: bad timestamp %q: %w", customerID, takenAt, err)
	}

	return metrics, at, nil
}

func (rec record) toMetrics() (domain.PortfolioMetrics, error) {
	metrics := domain.PortfolioMetrics{
		HoldingCount:  rec.HoldingCount,
		Concentration: make(map[domain.SecurityType]decimal.Decimal, len(rec.Concentration)),
	}

	var err error
	if metrics.TotalPar, err = decimal.NewFromString(rec.TotalPar); err != nil {
		return domain.PortfolioMetrics{}, fmt.Errorf("bad total par %q: %w", rec.TotalPar, err)
	}
	if metrics.TotalMarket, err = decimal.NewFromString(rec.TotalMarket); err != nil {
		return domain.PortfolioMetrics{}, fmt.Errorf("bad total market %q: %w", rec.TotalMarket, err)
	}
	if metrics.TotalBook, err = decimal.NewFromString(rec.TotalBook); err != nil {
		return domain.PortfolioMetrics{}, fmt.Errorf("bad total book %q: %w", rec.TotalBook, err)
	}
	if metrics.GainLoss, err = decimal.NewFromString(rec.GainLoss); err != nil {
		return domain.PortfolioMetrics{}, fmt.Errorf("bad gain/loss %q: %w", rec.GainLoss, err)
	}
	for secType, pct := range rec.Concentration {
		d, err := decimal.NewFromString(pct)
		if err != nil {
			return domain.PortfolioMetrics{}, fmt.Errorf("bad concentration %q for type %s: %w", pct, secType, err)
		}
		metrics.Concentration[domain.SecurityType(secType)] = d
	}
	return metrics, nil
}
