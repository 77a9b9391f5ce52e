package universe

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dkastanis/bondflow/internal/domain"
)

// OfferingRepository handles purchasable-offering persistence. Offerings are
// resolved here before swap simulation runs; the simulator never fetches.
type OfferingRepository struct {
	db         *sql.DB
	securities *SecurityRepository
	log        zerolog.Logger
}

// NewOfferingRepository creates a new offering repository.
func NewOfferingRepository(db *sql.DB, securities *SecurityRepository, log zerolog.Logger) *OfferingRepository {
	return &OfferingRepository{
		db:         db,
		securities: securities,
		log:        log.With().Str("repo", "offerings").Logger(),
	}
}

// GetByID resolves an offering with its full security terms.
func (r *OfferingRepository) GetByID(id string) (domain.Offering, error) {
	var (
		off   domain.Offering
		cusip string
		price string
	)
	err := r.db.QueryRow(
		`SELECT id, cusip, description, price FROM offerings WHERE id = ?`, id,
	).Scan(&off.ID, &cusip, &off.Description, &price)
	if err == sql.ErrNoRows {
		return domain.Offering{}, domain.NewReferenceDataError("offering %s not found", id)
	}
	if err != nil {
		return domain.Offering{}, fmt.Errorf("failed to query offering %s: %w", id, err)
	}

	if off.Price, err = decimal.NewFromString(price); err != nil {
		return domain.Offering{}, fmt.Errorf("offering %s: bad price %q: %w", id, price, err)
	}

	sec, err := r.securities.GetByCUSIP(cusip)
	if err != nil {
		return domain.Offering{}, err
	}
	off.Security = sec

	return off, nil
}

// GetAll returns all offerings with resolved security terms.
func (r *OfferingRepository) GetAll() ([]domain.Offering, error) {
	rows, err := r.db.Query(`SELECT id FROM offerings ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query offerings: %w", err)
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
	if err := rows.Err(); err != nil {
		return nil, err
	}

	offerings := make([]domain.Offering, 0, len(ids))
	for _, id := range ids {
		off, err := r.GetByID(id)
		if err != nil {
			return nil, err
		}
		offerings = append(offerings, off)
	}
	return offerings, nil
}

// Insert adds a new offering.
func (r *OfferingRepository) Insert(off domain.Offering, cusip string) error {
	if off.ID == "" {
		return domain.NewValidationError("offering id is required")
	}
	if !off.Price.IsPositive() {
		return domain.NewValidationError("offering %s: price must be positive", off.ID)
	}
	_, err := r.db.Exec(
		`INSERT INTO offerings (id, cusip, description, price) VALUES (?, ?, ?, ?)`,
		off.ID, cusip, off.Description, off.Price.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert offering %s: %w", off.ID, err)
	}
	return nil
}
