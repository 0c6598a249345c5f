package pnl

import (
	"context"
	"math"
	"testing"

	"github.com/etnz/pnl/date"
)

// d parses a test date.
func d(s string) date.Date { return date.MustParse(s) }

// newTestMemory returns sources with USD as system currency, EUR, the ACME
// stock priced in USD and accounts ACC, BROKER and INTERIM.
func newTestMemory(t *testing.T) *Memory {
	t.Helper()
	m := NewMemory()
	for _, c := range []Currency{
		{ID: "USD", UserCode: "USD", IsSystem: true},
		{ID: "EUR", UserCode: "EUR"},
	} {
		if err := m.AddCurrency(c); err != nil {
			t.Fatalf("AddCurrency(%s) error = %v", c.ID, err)
		}
	}
	m.AddInstrument(Instrument{ID: "ACME", UserCode: "ACME", PricingCurrency: "USD", AccruedCurrency: "USD"})
	m.AddAccount(Account{ID: "ACC", UserCode: "Main"})
	m.AddAccount(Account{ID: "BROKER", UserCode: "Broker"})
	m.AddAccount(Account{ID: "INTERIM", UserCode: "Pending", ShowTransactionDetails: true})
	return m
}

// trade returns a BUY (qty > 0) or SELL (qty < 0) of ACME settled in USD on
// the same day, booked on P1/ACC.
func trade(id, on string, qty, price float64) Transaction {
	class := Buy
	if qty < 0 {
		class = Sell
	}
	amount := -qty * price
	return Transaction{
		ID:                  id,
		Class:               class,
		TransactionDate:     d(on),
		AccountingDate:      d(on),
		CashDate:            d(on),
		Instrument:          "ACME",
		TransactionCurrency: "USD",
		Position:            qty,
		TradePrice:          price,
		ReferenceFX:         1,
		SettlementCurrency:  "USD",
		Cash:                amount,
		Principal:           amount,
		Portfolio:           "P1",
		AccountPosition:     "ACC",
		AccountCash:         "ACC",
	}
}

// income returns an INSTRUMENT_PL of ACME paying amount of carry in USD,
// booked on P1/ACC.
func income(id, on string, amount float64) Transaction {
	return Transaction{
		ID:                 id,
		Class:              InstrumentPL,
		TransactionDate:    d(on),
		AccountingDate:     d(on),
		CashDate:           d(on),
		Instrument:         "ACME",
		ReferenceFX:        1,
		SettlementCurrency: "USD",
		Cash:               amount,
		Carry:              amount,
		Portfolio:          "P1",
		AccountPosition:    "ACC",
		AccountCash:        "ACC",
	}
}

// build runs a build and fails the test on error.
func build(t *testing.T, m *Memory, o Options) *Report {
	t.Helper()
	b := &Builder{Sources: m.Sources(), Tenant: "test"}
	r, err := b.Build(context.Background(), o)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return r
}

// plOptions returns the options of a P&L report in USD.
func plOptions(rd string) Options {
	return Options{Type: PL, ReportDate: d(rd), ReportCurrency: "USD"}
}

var acmeKey = ItemKey{Type: InstrumentItem, Portfolio: "P1", Account: "ACC", Instrument: "ACME"}

// mustItem returns the item of key in r, failing the test if missing.
func mustItem(t *testing.T, r *Report, key ItemKey) *ReportItem {
	t.Helper()
	it := r.Item(key)
	if it == nil {
		t.Fatalf("no item %+v in report", key)
	}
	return it
}

// virtual returns the debug virtual transaction with id.
func virtual(t *testing.T, r *Report, id string) *VirtualTransaction {
	t.Helper()
	for _, v := range r.Transactions {
		if v.ID == id {
			return v
		}
	}
	t.Fatalf("no virtual transaction %q in report", id)
	return nil
}

func assertClose(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("%s = %v, want %v", name, got, want)
	}
}
