package database

// schemas maps database names to their DDL. Dates are stored as YYYY-MM-DD
// text; monetary and rate fields are stored as exact-decimal text, never
// binary floats.
var schemas = map[string]string{
	"portfolio": portfolioSchema,
	"cache":     cacheSchema,
}

const portfolioSchema = `
CREATE TABLE IF NOT EXISTS securities (
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

CREATE TABLE IF NOT EXISTS holdings (
    id              TEXT PRIMARY KEY,
    customer_id     TEXT NOT NULL,
    cusip           TEXT NOT NULL REFERENCES securities(cusip),
    face_amount     TEXT NOT NULL,
    settlement_date TEXT NOT NULL,
    market_price    TEXT,
    book_price      TEXT
);

CREATE INDEX IF NOT EXISTS idx_holdings_customer ON holdings(customer_id);

CREATE TABLE IF NOT EXISTS offerings (
    id          TEXT PRIMARY KEY,
    cusip       TEXT NOT NULL REFERENCES securities(cusip),
    description TEXT NOT NULL DEFAULT '',
    price       TEXT NOT NULL
);
`

const cacheSchema = `
CREATE TABLE IF NOT EXISTS portfolio_snapshots (
    customer_id TEXT NOT NULL,
    taken_at    TEXT NOT NULL,
    payload     BLOB NOT NULL,
    PRIMARY KEY (customer_id, taken_at)
);
`
