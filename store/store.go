// Package store keeps the sources of a build in a SQLite database.
//
// A Store implements every source port of the engine. Quote lookups resolve
// the latest observation on or before the requested date.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/etnz/pnl"
	"github.com/etnz/pnl/date"
	"github.com/etnz/pnl/logger"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS currencies (
	id TEXT PRIMARY KEY,
	user_code TEXT NOT NULL DEFAULT '',
	is_system BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS instruments (
	id TEXT PRIMARY KEY,
	user_code TEXT NOT NULL DEFAULT '',
	pricing_currency TEXT NOT NULL DEFAULT '',
	accrued_currency TEXT NOT NULL DEFAULT '',
	price_multiplier REAL NOT NULL DEFAULT 0,
	accrued_multiplier REAL NOT NULL DEFAULT 0,
	maturity TEXT NOT NULL DEFAULT '',
	maturity_price REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS accrual_schedules (
	instrument TEXT NOT NULL,
	start_date TEXT NOT NULL,
	first_payment TEXT NOT NULL DEFAULT '',
	end_date TEXT NOT NULL DEFAULT '',
	size REAL NOT NULL,
	period_months INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (instrument, start_date),
	FOREIGN KEY (instrument) REFERENCES instruments(id)
);

CREATE TABLE IF NOT EXISTS factor_schedules (
	instrument TEXT NOT NULL,
	effective TEXT NOT NULL,
	factor REAL NOT NULL,
	PRIMARY KEY (instrument, effective),
	FOREIGN KEY (instrument) REFERENCES instruments(id)
);

CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	user_code TEXT NOT NULL DEFAULT '',
	show_transaction_details BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	class TEXT NOT NULL,
	accounting_date TEXT NOT NULL,
	portfolio TEXT NOT NULL DEFAULT '',
	instrument TEXT NOT NULL DEFAULT '',
	data TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS transactions_portfolio ON transactions(portfolio);
CREATE INDEX IF NOT EXISTS transactions_instrument ON transactions(instrument);

CREATE TABLE IF NOT EXISTS prices (
	policy TEXT NOT NULL DEFAULT '',
	instrument TEXT NOT NULL,
	date TEXT NOT NULL,
	principal REAL NOT NULL,
	accrued REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (policy, instrument, date)
);

CREATE TABLE IF NOT EXISTS fx_rates (
	policy TEXT NOT NULL DEFAULT '',
	currency TEXT NOT NULL,
	date TEXT NOT NULL,
	rate REAL NOT NULL,
	PRIMARY KEY (policy, currency, date)
);
`

// Store is a SQLite backed set of sources.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and ensures its tables exist.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables in %s: %w", path, err)
	}
	logger.L.Debug("database ready", "path", path)
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Sources returns the ports of the store.
func (s *Store) Sources() pnl.Sources {
	return pnl.Sources{
		Transactions: s,
		Instruments:  s,
		Currencies:   s,
		Accounts:     s,
		Prices:       s,
		FX:           s,
	}
}

// notFound wraps pnl.ErrNotFound for sql.ErrNoRows.
func notFound(err error, format string, args ...any) error {
	what := fmt.Sprintf(format, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, pnl.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func parseDate(s string) (date.Date, error) {
	if s == "" {
		return date.Date{}, nil
	}
	return date.Parse(s)
}

// Transactions implements pnl.TransactionSource. The query is applied in
// SQL on instruments, portfolios and classes, and in full on each record.
func (s *Store) Transactions(ctx context.Context, q pnl.Query) ([]pnl.Transaction, error) {
	var where []string
	var args []any
	in := func(column string, values []string) {
		if len(values) == 0 {
			return
		}
		where = append(where, column+" IN ("+strings.TrimSuffix(strings.Repeat("?,", len(values)), ",")+")")
		for _, v := range values {
			args = append(args, v)
		}
	}
	in("instrument", q.Instruments)
	in("portfolio", q.Portfolios)
	classes := make([]string, len(q.Classes))
	for i, c := range q.Classes {
		classes[i] = c.String()
	}
	in("class", classes)

	query := "SELECT data FROM transactions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	rows, err := s.db.QueryContext(ctx, query+" ORDER BY accounting_date, id", args...)
	if err != nil {
		return nil, fmt.Errorf("querying transactions: %w", err)
	}
	defer rows.Close()

	var res []pnl.Transaction
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var t pnl.Transaction
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return nil, fmt.Errorf("decoding transaction: %w", err)
		}
		if q.Match(&t) {
			res = append(res, t)
		}
	}
	return res, rows.Err()
}

// Instrument implements pnl.InstrumentSource.
func (s *Store) Instrument(ctx context.Context, id string) (*pnl.Instrument, error) {
	i := &pnl.Instrument{ID: id}
	var maturity string
	err := s.db.QueryRowContext(ctx, `SELECT user_code, pricing_currency, accrued_currency,
		price_multiplier, accrued_multiplier, maturity, maturity_price
		FROM instruments WHERE id = ?`, id).Scan(
		&i.UserCode, &i.PricingCurrency, &i.AccruedCurrency,
		&i.PriceMultiplier, &i.AccruedMultiplier, &maturity, &i.MaturityPrice)
	if err != nil {
		return nil, notFound(err, "instrument %q", id)
	}
	if i.Maturity, err = parseDate(maturity); err != nil {
		return nil, fmt.Errorf("instrument %q maturity: %w", id, err)
	}
	if i.Accruals, err = s.accruals(ctx, id); err != nil {
		return nil, err
	}
	if i.Factors, err = s.factors(ctx, id); err != nil {
		return nil, err
	}
	return i, nil
}

func (s *Store) accruals(ctx context.Context, id string) ([]pnl.AccrualSchedule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT start_date, first_payment, end_date, size, period_months
		FROM accrual_schedules WHERE instrument = ? ORDER BY start_date`, id)
	if err != nil {
		return nil, fmt.Errorf("querying accruals of %q: %w", id, err)
	}
	defer rows.Close()
	var res []pnl.AccrualSchedule
	for rows.Next() {
		var a pnl.AccrualSchedule
		var start, first, end string
		if err := rows.Scan(&start, &first, &end, &a.Size, &a.PeriodMonths); err != nil {
			return nil, err
		}
		for _, f := range []struct {
			s string
			d *date.Date
		}{{start, &a.Start}, {first, &a.FirstPayment}, {end, &a.End}} {
			if *f.d, err = parseDate(f.s); err != nil {
				return nil, fmt.Errorf("accrual of %q: %w", id, err)
			}
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (s *Store) factors(ctx context.Context, id string) ([]pnl.FactorSchedule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT effective, factor
		FROM factor_schedules WHERE instrument = ? ORDER BY effective`, id)
	if err != nil {
		return nil, fmt.Errorf("querying factors of %q: %w", id, err)
	}
	defer rows.Close()
	var res []pnl.FactorSchedule
	for rows.Next() {
		var f pnl.FactorSchedule
		var effective string
		if err := rows.Scan(&effective, &f.Factor); err != nil {
			return nil, err
		}
		if f.Effective, err = parseDate(effective); err != nil {
			return nil, fmt.Errorf("factor of %q: %w", id, err)
		}
		res = append(res, f)
	}
	return res, rows.Err()
}

// Currency implements pnl.CurrencySource.
func (s *Store) Currency(ctx context.Context, id string) (*pnl.Currency, error) {
	c := &pnl.Currency{ID: id}
	err := s.db.QueryRowContext(ctx, "SELECT user_code, is_system FROM currencies WHERE id = ?", id).Scan(&c.UserCode, &c.IsSystem)
	if err != nil {
		return nil, notFound(err, "currency %q", id)
	}
	return c, nil
}

// SystemCurrency implements pnl.CurrencySource.
func (s *Store) SystemCurrency(ctx context.Context) (*pnl.Currency, error) {
	c := &pnl.Currency{IsSystem: true}
	err := s.db.QueryRowContext(ctx, "SELECT id, user_code FROM currencies WHERE is_system").Scan(&c.ID, &c.UserCode)
	if err != nil {
		return nil, notFound(err, "system currency")
	}
	return c, nil
}

// Account implements pnl.AccountSource.
func (s *Store) Account(ctx context.Context, id string) (*pnl.Account, error) {
	a := &pnl.Account{ID: id}
	err := s.db.QueryRowContext(ctx, "SELECT user_code, show_transaction_details FROM accounts WHERE id = ?", id).Scan(&a.UserCode, &a.ShowTransactionDetails)
	if err != nil {
		return nil, notFound(err, "account %q", id)
	}
	return a, nil
}

// Price implements pnl.PriceSource.
func (s *Store) Price(ctx context.Context, policy, instrument string, on date.Date) (pnl.Price, error) {
	var p pnl.Price
	err := s.db.QueryRowContext(ctx, `SELECT principal, accrued FROM prices
		WHERE policy = ? AND instrument = ? AND date <= ?
		ORDER BY date DESC LIMIT 1`, policy, instrument, on.String()).Scan(&p.Principal, &p.Accrued)
	if err != nil {
		return pnl.Price{}, notFound(err, "price of %q on %s", instrument, on)
	}
	return p, nil
}

// Rate implements pnl.FXSource.
func (s *Store) Rate(ctx context.Context, policy, currency string, on date.Date) (float64, error) {
	var rate float64
	err := s.db.QueryRowContext(ctx, `SELECT rate FROM fx_rates
		WHERE policy = ? AND currency = ? AND date <= ?
		ORDER BY date DESC LIMIT 1`, policy, currency, on.String()).Scan(&rate)
	if err != nil {
		return 0, notFound(err, "fx rate of %q on %s", currency, on)
	}
	return rate, nil
}
