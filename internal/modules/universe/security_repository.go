// Package universe provides read-mostly reference data: security terms and
// purchasable offerings. The engine receives snapshots from here and never
// writes back.
package universe

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dkastanis/bondflow/internal/domain"
)

const dateLayout = "2006-01-02"

// SecurityRepository handles security reference-data persistence.
type SecurityRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSecurityRepository creates a new security repository.
func NewSecurityRepository(db *sql.DB, log zerolog.Logger) *SecurityRepository {
	return &SecurityRepository{
		db:  db,
		log: log.With().Str("repo", "securities").Logger(),
	}
}

const securityColumns = `cusip, description, security_type, issue_date, maturity_date,
	call_date, coupon_rate, payments_per_year, day_count, allows_paydown, annual_cpr, factor`

// GetByCUSIP returns the security terms for an identifier.
func (r *SecurityRepository) GetByCUSIP(cusip string) (domain.SecurityTerms, error) {
	row := r.db.QueryRow(`SELECT `+securityColumns+` FROM securities WHERE cusip = ?`, cusip)
	sec, err := r.scanSecurity(row)
	if err == sql.ErrNoRows {
		return domain.SecurityTerms{}, domain.NewReferenceDataError("security %s not found", cusip)
	}
	if err != nil {
		return domain.SecurityTerms{}, fmt.Errorf("failed to query security %s: %w", cusip, err)
	}
	return sec, nil
}

// GetAll returns all securities.
func (r *SecurityRepository) GetAll() ([]domain.SecurityTerms, error) {
	rows, err := r.db.Query(`SELECT ` + securityColumns + ` FROM securities ORDER BY cusip`)
	if err != nil {
		return nil, fmt.Errorf("failed to query securities: %w", err)
	}
	defer rows.Close()

	var secs []domain.SecurityTerms
	for rows.Next() {
		sec, err := r.scanSecurity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan security: %w", err)
		}
		secs = append(secs, sec)
	}
	return secs, rows.Err()
}

// Upsert inserts or replaces a security.
func (r *SecurityRepository) Upsert(sec domain.SecurityTerms) error {
	if err := sec.Validate(); err != nil {
		return err
	}

	var callDate interface{}
	if sec.CallDate != nil {
		callDate = sec.CallDate.Format(dateLayout)
	}

	_, err := r.db.Exec(`
		INSERT INTO securities (`+securityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cusip) DO UPDATE SET
			description = excluded.description,
			security_type = excluded.security_type,
			issue_date = excluded.issue_date,
			maturity_date = excluded.maturity_date,
			call_date = excluded.call_date,
			coupon_rate = excluded.coupon_rate,
			payments_per_year = excluded.payments_per_year,
			day_count = excluded.day_count,
			allows_paydown = excluded.allows_paydown,
			annual_cpr = excluded.annual_cpr,
			factor = excluded.factor`,
		sec.CUSIP, sec.Description, string(sec.Type),
		sec.IssueDate.Format(dateLayout), sec.MaturityDate.Format(dateLayout), callDate,
		sec.CouponRate.String(), sec.PaymentsPerYear, string(sec.DayCount),
		boolToInt(sec.AllowsPaydown), sec.AnnualCPR.String(), sec.EffectiveFactor().String(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert security %s: %w", sec.CUSIP, err)
	}
	return nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *SecurityRepository) scanSecurity(row rowScanner) (domain.SecurityTerms, error) {
	var (
		sec                                      domain.SecurityTerms
		secType, issueDate, maturityDate         string
		callDate                                 sql.NullString
		couponRate, annualCPR, factor, dayCount  string
		allowsPaydown                            int
	)

	err := row.Scan(&sec.CUSIP, &sec.Description, &secType, &issueDate, &maturityDate,
		&callDate, &couponRate, &sec.PaymentsPerYear, &dayCount, &allowsPaydown, &annualCPR, &factor)
	if err != nil {
		return domain.SecurityTerms{}, err
	}

	sec.Type = domain.SecurityType(secType)
	sec.AllowsPaydown = allowsPaydown != 0

	if sec.IssueDate, err = time.Parse(dateLayout, issueDate); err != nil {
		return domain.SecurityTerms{}, fmt.Errorf("security %s: bad issue date %q: %w", sec.CUSIP, issueDate, err)
	}
	if sec.MaturityDate, err = time.Parse(dateLayout, maturityDate); err != nil {
		return domain.SecurityTerms{}, fmt.Errorf("security %s: bad maturity date %q: %w", sec.CUSIP, maturityDate, err)
	}
	if callDate.Valid {
		cd, err := time.Parse(dateLayout, callDate.String)
		if err != nil {
			return domain.SecurityTerms{}, fmt.Errorf("security %s: bad call date %q: %w", sec.CUSIP, callDate.String, err)
		}
		sec.CallDate = &cd
	}

	if sec.CouponRate, err = decimal.NewFromString(couponRate); err != nil {
		return domain.SecurityTerms{}, fmt.Errorf("security %s: bad coupon rate %q: %w", sec.CUSIP, couponRate, err)
	}
	if sec.AnnualCPR, err = decimal.NewFromString(annualCPR); err != nil {
		return domain.SecurityTerms{}, fmt.Errorf("security %s: bad CPR %q: %w", sec.CUSIP, annualCPR, err)
	}
	if sec.Factor, err = decimal.NewFromString(factor); err != nil {
		return domain.SecurityTerms{}, fmt.Errorf("security %s: bad factor %q: %w", sec.CUSIP, factor, err)
	}

	conv, ok := domain.ParseConvention(dayCount)
	if !ok {
		// Incomplete reference data must not break projections.
		r.log.Warn().Str("cusip", sec.CUSIP).Str("day_count", dayCount).
			Msg("unrecognized day-count code, falling back to ACT/ACT")
	}
	sec.DayCount = conv

	return sec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
