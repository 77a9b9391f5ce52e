package portfolio

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dkastanis/bondflow/internal/domain"
)

const dateLayout = "2006-01-02"

// SecurityProvider defines the contract for resolving security terms.
// Defined here to avoid an import cycle with the universe package.
type SecurityProvider interface {
	GetByCUSIP(cusip string) (domain.SecurityTerms, error)
}

// HoldingRepository handles holding persistence. Returned holdings carry
// fully populated security terms so the engine never fetches reference data
// itself.
type HoldingRepository struct {
	db         *sql.DB
	securities SecurityProvider
	log        zerolog.Logger
}

// NewHoldingRepository creates a new holding repository.
func NewHoldingRepository(db *sql.DB, securities SecurityProvider, log zerolog.Logger) *HoldingRepository {
	return &HoldingRepository{
		db:         db,
		securities: securities,
		log:        log.With().Str("repo", "holdings").Logger(),
	}
}

const holdingColumns = `id, customer_id, cusip, face_amount, settlement_date, market_price, book_price`

// GetByID returns a single holding.
func (r *HoldingRepository) GetByID(id string) (domain.HoldingPosition, error) {
	row := r.db.QueryRow(`SELECT `+holdingColumns+` FROM holdings WHERE id = ?`, id)
	h, err := r.scanHolding(row)
	if err == sql.ErrNoRows {
		return domain.HoldingPosition{}, domain.NewReferenceDataError("holding %s not found", id)
	}
	if err != nil {
		return domain.HoldingPosition{}, fmt.Errorf("failed to query holding %s: %w", id, err)
	}
	return h, nil
}

// GetByCustomer returns all holdings of a customer.
func (r *HoldingRepository) GetByCustomer(customerID string) ([]domain.HoldingPosition, error) {
	rows, err := r.db.Query(
		`SELECT `+holdingColumns+` FROM holdings WHERE customer_id = ? ORDER BY id`, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings for customer %s: %w", customerID, err)
	}
	defer rows.Close()
	return r.collect(rows)
}

// GetAll returns every holding.
func (r *HoldingRepository) GetAll() ([]domain.HoldingPosition, error) {
	rows, err := r.db.Query(`SELECT ` + holdingColumns + ` FROM holdings ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()
	return r.collect(rows)
}

// Customers returns the distinct customer ids with at least one holding.
func (r *HoldingRepository) Customers() ([]string, error) {
	rows, err := r.db.Query(`SELECT DISTINCT customer_id FROM holdings ORDER BY customer_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Insert stores a holding, assigning an id when none is set.
func (r *HoldingRepository) Insert(h domain.HoldingPosition) (string, error) {
	if err := h.Validate(); err != nil {
		return "", err
	}
	if h.ID == "" {
		h.ID = uuid.New().String()
	}

	var marketPrice, bookPrice interface{}
	if h.MarketPrice != nil {
		marketPrice = h.MarketPrice.String()
	}
	if h.BookPrice != nil {
		bookPrice = h.BookPrice.String()
	}

	_, err := r.db.Exec(
		`INSERT INTO holdings (`+holdingColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.CustomerID, h.Security.CUSIP, h.FaceAmount.String(),
		h.SettlementDate.Format(dateLayout), marketPrice, bookPrice,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert holding %s: %w", h.ID, err)
	}
	return h.ID, nil
}

func (r *HoldingRepository) collect(rows *sql.Rows) ([]domain.HoldingPosition, error) {
	var holdings []domain.HoldingPosition
	for rows.Next() {
		h, err := r.scanHolding(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *HoldingRepository) scanHolding(row rowScanner) (domain.HoldingPosition, error) {
	var (
		h                       domain.HoldingPosition
		cusip, face, settlement string
		marketPrice, bookPrice  sql.NullString
	)

	err := row.Scan(&h.ID, &h.CustomerID, &cusip, &face, &settlement, &marketPrice, &bookPrice)
	if err != nil {
		return domain.HoldingPosition{}, err
	}

	if h.FaceAmount, err = decimal.NewFromString(face); err != nil {
		return domain.HoldingPosition{}, fmt.Errorf("holding %s: bad face amount %q: %w", h.ID, face, err)
	}
	if h.SettlementDate, err = time.Parse(dateLayout, settlement); err != nil {
		return domain.HoldingPosition{}, fmt.Errorf("holding %s: bad settlement date %q: %w", h.ID, settlement, err)
	}
	if marketPrice.Valid {
		p, err := decimal.NewFromString(marketPrice.String)
		if err != nil {
			return domain.HoldingPosition{}, fmt.Errorf("holding %s: bad market price %q: %w", h.ID, marketPrice.String, err)
		}
		h.MarketPrice = &p
	}
	if bookPrice.Valid {
		p, err := decimal.NewFromString(bookPrice.String)
		if err != nil {
			return domain.HoldingPosition{}, fmt.Errorf("holding %s: bad book price %q: %w", h.ID, bookPrice.String, err)
		}
		h.BookPrice = &p
	}

	sec, err := r.securities.GetByCUSIP(cusip)
	if err != nil {
		return domain.HoldingPosition{}, err
	}
	h.Security = sec

	return h, nil
}
