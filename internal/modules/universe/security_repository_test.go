package universe

import (
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/dkastanis/bondflow/internal/domain"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
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

		CREATE TABLE offerings (
			id          TEXT PRIMARY KEY,
			cusip       TEXT NOT NULL REFERENCES securities(cusip),
			description TEXT NOT NULL DEFAULT '',
			price       TEXT NOT NULL
		)
	`)
	require.NoError(t, err)

	return db
}

func sampleSecurity() domain.SecurityTerms {
	callDate := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	return domain.SecurityTerms{
		CUSIP:           "64971M5E8",
		Description:     "NYC GO 4.00% 2025",
		Type:            domain.SecurityTypeMunicipal,
		IssueDate:       time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
		MaturityDate:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		CallDate:        &callDate,
		CouponRate:      decimal.RequireFromString("4"),
		PaymentsPerYear: 2,
		DayCount:        domain.ConventionThirtyThreeSixty,
		AnnualCPR:       decimal.RequireFromString("0"),
		Factor:          decimal.RequireFromString("1"),
	}
}

func TestSecurityUpsertAndGet(t *testing.T) {
	db := setupTestDB(t)
	log := zerolog.Nop()
	repo := NewSecurityRepository(db, log)

	want := sampleSecurity()
	require.NoError(t, repo.Upsert(want))

	got, err := repo.GetByCUSIP("64971M5E8")
	require.NoError(t, err)

	assert.Equal(t, want.CUSIP, got.CUSIP)
	assert.Equal(t, want.Description, got.Description)
	assert.Equal(t, want.Type, got.Type)
	assert.True(t, want.IssueDate.Equal(got.IssueDate))
	assert.True(t, want.MaturityDate.Equal(got.MaturityDate))
	require.NotNil(t, got.CallDate)
	assert.True(t, want.CallDate.Equal(*got.CallDate))
	assert.True(t, want.CouponRate.Equal(got.CouponRate))
	assert.Equal(t, 2, got.PaymentsPerYear)
	assert.Equal(t, domain.ConventionThirtyThreeSixty, got.DayCount)
	assert.False(t, got.AllowsPaydown)
	assert.True(t, got.Factor.Equal(decimal.RequireFromString("1")))
}

func TestSecurityUpsertReplacesExisting(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSecurityRepository(db, zerolog.Nop())

	sec := sampleSecurity()
	require.NoError(t, repo.Upsert(sec))

	sec.Description = "NYC GO 4.00% 2025 (restructured)"
	sec.CouponRate = decimal.RequireFromString("4.25")
	require.NoError(t, repo.Upsert(sec))

	got, err := repo.GetByCUSIP(sec.CUSIP)
	require.NoError(t, err)
	assert.Equal(t, "NYC GO 4.00% 2025 (restructured)", got.Description)
	assert.True(t, got.CouponRate.Equal(decimal.RequireFromString("4.25")))

	all, err := repo.GetAll()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSecurityUpsertRejectsInvalid(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSecurityRepository(db, zerolog.Nop())

	sec := sampleSecurity()
	sec.CUSIP = ""
	err := repo.Upsert(sec)
	require.Error(t, err)
	assert.Equal(t, domain.CategoryValidation, domain.CategoryOf(err))
}

func TestSecurityGetByCUSIPNotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSecurityRepository(db, zerolog.Nop())

	_, err := repo.GetByCUSIP("NOPE")
	require.Error(t, err)
	assert.Equal(t, domain.CategoryReferenceData, domain.CategoryOf(err))
}

func TestSecurityScanFallsBackOnUnknownDayCount(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSecurityRepository(db, zerolog.Nop())

	_, err := db.Exec(`
		INSERT INTO securities (cusip, issue_date, maturity_date, coupon_rate, payments_per_year, day_count)
		VALUES ('912828XT5', '2022-01-01', '2025-01-01', '4', 2, 'NL/365')
	`)
	require.NoError(t, err)

	got, err := repo.GetByCUSIP("912828XT5")
	require.NoError(t, err)
	assert.Equal(t, domain.ConventionActualActual, got.DayCount)
}

func TestOfferingRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	securities := NewSecurityRepository(db, zerolog.Nop())
	offerings := NewOfferingRepository(db, securities, zerolog.Nop())

	require.NoError(t, securities.Upsert(sampleSecurity()))

	off := domain.Offering{
		ID:          "OFF-1",
		Description: "NYC GO block",
		Price:       decimal.RequireFromString("99.50"),
	}
	require.NoError(t, offerings.Insert(off, "64971M5E8"))

	got, err := offerings.GetByID("OFF-1")
	require.NoError(t, err)
	assert.Equal(t, "NYC GO block", got.Description)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("99.50")))
	// Security terms are resolved on read.
	assert.Equal(t, "64971M5E8", got.Security.CUSIP)
	assert.Equal(t, domain.SecurityTypeMunicipal, got.Security.Type)

	all, err := offerings.GetAll()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestOfferingGetByIDNotFound(t *testing.T) {
	db := setupTestDB(t)
	securities := NewSecurityRepository(db, zerolog.Nop())
	offerings := NewOfferingRepository(db, securities, zerolog.Nop())

	_, err := offerings.GetByID("OFF-404")
	require.Error(t, err)
	assert.Equal(t, domain.CategoryReferenceData, domain.CategoryOf(err))
}
