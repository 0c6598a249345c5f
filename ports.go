package pnl

import (
	"context"
	"slices"

	"github.com/etnz/pnl/date"
)

// Price is an instrument quote.
type Price struct {
	Principal float64 `json:"principal"`
	Accrued   float64 `json:"accrued"`
}

// TransactionSource pulls the transactions selected by a query.
//
// Sources may use the query to reduce what they return, the engine applies
// it again on every record anyway.
type TransactionSource interface {
	Transactions(ctx context.Context, q Query) ([]Transaction, error)
}

// InstrumentSource returns instrument metadata by id, or ErrNotFound.
type InstrumentSource interface {
	Instrument(ctx context.Context, id string) (*Instrument, error)
}

// CurrencySource returns currency metadata by id, or ErrNotFound.
type CurrencySource interface {
	Currency(ctx context.Context, id string) (*Currency, error)
	// SystemCurrency returns the currency every FX rate is expressed in.
	SystemCurrency(ctx context.Context) (*Currency, error)
}

// AccountSource returns account metadata by id, or ErrNotFound.
type AccountSource interface {
	Account(ctx context.Context, id string) (*Account, error)
}

// PriceSource returns the price of an instrument on a date for a pricing policy, or ErrNotFound.
type PriceSource interface {
	Price(ctx context.Context, policy, instrument string, on date.Date) (Price, error)
}

// FXSource returns the FX rate of a currency on a date for a pricing policy, or ErrNotFound.
// A rate is the value of one unit of the currency in the system currency.
type FXSource interface {
	Rate(ctx context.Context, policy, currency string, on date.Date) (float64, error)
}

// Sources groups the ports a build reads from.
// Accounts is optional: without it accounts have no metadata and account
// filters are rejected.
type Sources struct {
	Transactions TransactionSource
	Instruments  InstrumentSource
	Currencies   CurrencySource
	Accounts     AccountSource
	Prices       PriceSource
	FX           FXSource
}

// Query selects the transactions of a build.
type Query struct {
	Tenant    string
	DateField DateField
	// Until is the inclusive cut-off date applied to DateField.
	Until date.Date

	Instruments      []string
	Portfolios       []string
	Accounts         []string
	AccountsPosition []string
	AccountsCash     []string
	Strategies1      []string
	Strategies2      []string
	Strategies3      []string
	Classes          []TransactionClass
}

// Match reports whether t is selected by the query.
// Cancelled and deleted transactions never match.
func (q *Query) Match(t *Transaction) bool {
	if t.IsCanceled || t.IsDeleted {
		return false
	}
	if !q.Until.IsZero() && t.dateOf(q.DateField).After(q.Until) {
		return false
	}
	return in(q.Instruments, t.Instrument) &&
		in(q.Portfolios, t.Portfolio) &&
		in(q.Accounts, t.AccountPosition, t.AccountCash, t.AccountInterim) &&
		in(q.AccountsPosition, t.AccountPosition) &&
		in(q.AccountsCash, t.AccountCash) &&
		in(q.Strategies1, t.Strategy1Position, t.Strategy1Cash) &&
		in(q.Strategies2, t.Strategy2Position, t.Strategy2Cash) &&
		in(q.Strategies3, t.Strategy3Position, t.Strategy3Cash) &&
		(len(q.Classes) == 0 || slices.Contains(q.Classes, t.Class))
}

// in reports whether the filter is empty or contains one of the values.
func in(filter []string, values ...string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, v := range values {
		if v != "" && slices.Contains(filter, v) {
			return true
		}
	}
	return false
}
