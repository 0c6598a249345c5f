package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/etnz/pnl"
	"github.com/etnz/pnl/logger"
)

// Import writes every record of m into the store, replacing records with
// the same keys. It runs in a single transaction.
func (s *Store) Import(ctx context.Context, m *pnl.Memory) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting import: %w", err)
	}
	defer tx.Rollback()

	if err := importAll(ctx, tx, m); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing import: %w", err)
	}
	logger.FromContext(ctx).Info("sources imported",
		"currencies", len(m.Currencies()),
		"instruments", len(m.Instruments()),
		"accounts", len(m.Accounts()),
		"transactions", len(m.AllTransactions()),
		"prices", len(m.Prices()),
		"fx_rates", len(m.Rates()))
	return nil
}

func importAll(ctx context.Context, tx *sql.Tx, m *pnl.Memory) error {
	exec := func(what, query string, args ...any) error {
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("importing %s: %w", what, err)
		}
		return nil
	}

	for _, c := range m.Currencies() {
		if c.IsSystem {
			if err := exec("currencies", "UPDATE currencies SET is_system = FALSE WHERE id <> ?", c.ID); err != nil {
				return err
			}
		}
		if err := exec("currency "+c.ID, "INSERT OR REPLACE INTO currencies (id, user_code, is_system) VALUES (?, ?, ?)",
			c.ID, c.UserCode, c.IsSystem); err != nil {
			return err
		}
	}

	for _, i := range m.Instruments() {
		if err := exec("instrument "+i.ID, `INSERT OR REPLACE INTO instruments
			(id, user_code, pricing_currency, accrued_currency, price_multiplier, accrued_multiplier, maturity, maturity_price)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			i.ID, i.UserCode, i.PricingCurrency, i.AccruedCurrency, i.PriceMultiplier, i.AccruedMultiplier,
			i.Maturity.String(), i.MaturityPrice); err != nil {
			return err
		}
		if err := exec("accruals of "+i.ID, "DELETE FROM accrual_schedules WHERE instrument = ?", i.ID); err != nil {
			return err
		}
		for _, a := range i.Accruals {
			if err := exec("accrual of "+i.ID, `INSERT INTO accrual_schedules
				(instrument, start_date, first_payment, end_date, size, period_months) VALUES (?, ?, ?, ?, ?, ?)`,
				i.ID, a.Start.String(), a.FirstPayment.String(), a.End.String(), a.Size, a.PeriodMonths); err != nil {
				return err
			}
		}
		if err := exec("factors of "+i.ID, "DELETE FROM factor_schedules WHERE instrument = ?", i.ID); err != nil {
			return err
		}
		for _, f := range i.Factors {
			if err := exec("factor of "+i.ID, "INSERT INTO factor_schedules (instrument, effective, factor) VALUES (?, ?, ?)",
				i.ID, f.Effective.String(), f.Factor); err != nil {
				return err
			}
		}
	}

	for _, a := range m.Accounts() {
		if err := exec("account "+a.ID, "INSERT OR REPLACE INTO accounts (id, user_code, show_transaction_details) VALUES (?, ?, ?)",
			a.ID, a.UserCode, a.ShowTransactionDetails); err != nil {
			return err
		}
	}

	for _, t := range m.AllTransactions() {
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("encoding transaction %q: %w", t.ID, err)
		}
		if err := exec("transaction "+t.ID, `INSERT OR REPLACE INTO transactions
			(id, class, accounting_date, portfolio, instrument, data) VALUES (?, ?, ?, ?, ?, ?)`,
			t.ID, t.Class.String(), t.AccountingDate.String(), t.Portfolio, t.Instrument, string(data)); err != nil {
			return err
		}
	}

	for _, p := range m.Prices() {
		if err := exec("prices", "INSERT OR REPLACE INTO prices (policy, instrument, date, principal, accrued) VALUES (?, ?, ?, ?, ?)",
			p.Policy, p.Instrument, p.Date.String(), p.Price.Principal, p.Price.Accrued); err != nil {
			return err
		}
	}
	for _, r := range m.Rates() {
		if err := exec("fx rates", "INSERT OR REPLACE INTO fx_rates (policy, currency, date, rate) VALUES (?, ?, ?, ?)",
			r.Policy, r.Currency, r.Date.String(), r.Rate); err != nil {
			return err
		}
	}
	return nil
}
