package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/etnz/pnl"
	"github.com/etnz/pnl/date"
	"github.com/google/go-cmp/cmp"
)

func d(s string) date.Date { return date.MustParse(s) }

func testMemory(t *testing.T) *pnl.Memory {
	t.Helper()
	m := pnl.NewMemory()
	for _, c := range []pnl.Currency{{ID: "USD", UserCode: "USD", IsSystem: true}, {ID: "EUR", UserCode: "EUR"}} {
		if err := m.AddCurrency(c); err != nil {
			t.Fatal(err)
		}
	}
	m.AddInstrument(pnl.Instrument{ID: "ACME", UserCode: "ACME", PricingCurrency: "USD"})
	m.AddInstrument(pnl.Instrument{
		ID: "BOND", UserCode: "BOND 5% 2028", PricingCurrency: "EUR", PriceMultiplier: 0.01,
		Maturity: d("2028-01-01"),
		Accruals: []pnl.AccrualSchedule{{Start: d("2023-01-01"), FirstPayment: d("2024-01-01"), End: d("2028-01-01"), Size: 5, PeriodMonths: 12}},
		Factors:  []pnl.FactorSchedule{{Effective: d("2025-01-01"), Factor: 0.5}},
	})
	m.AddAccount(pnl.Account{ID: "ACC", UserCode: "Main", ShowTransactionDetails: true})
	for _, tr := range []struct {
		id, on, portfolio string
		qty, price        float64
	}{
		{"t1", "2023-01-10", "P1", 100, 10},
		{"t2", "2023-02-10", "P1", -40, 12},
		{"t3", "2023-02-11", "P2", 5, 11},
	} {
		class := pnl.Buy
		if tr.qty < 0 {
			class = pnl.Sell
		}
		m.AddTransactions(pnl.Transaction{
			ID: tr.id, Class: class, TransactionDate: d(tr.on), AccountingDate: d(tr.on), CashDate: d(tr.on),
			Instrument: "ACME", TransactionCurrency: "USD", Position: tr.qty, TradePrice: tr.price,
			ReferenceFX: 1, SettlementCurrency: "USD", Cash: -tr.qty * tr.price, Principal: -tr.qty * tr.price,
			Portfolio: tr.portfolio, AccountPosition: "ACC", AccountCash: "ACC",
		})
	}
	m.AddPrice("", "ACME", d("2023-01-10"), pnl.Price{Principal: 10})
	m.AddPrice("", "ACME", d("2023-03-01"), pnl.Price{Principal: 11})
	m.AddRate("", "EUR", d("2023-01-01"), 1.1)
	return m
}

func open(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "pnl.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Import(context.Background(), testMemory(t)); err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	return s
}

var dates = cmp.Comparer(func(a, b date.Date) bool { return a == b })

func TestMetadata(t *testing.T) {
	ctx := context.Background()
	s := open(t)
	m := testMemory(t)

	for _, id := range []string{"ACME", "BOND"} {
		want, _ := m.Instrument(ctx, id)
		got, err := s.Instrument(ctx, id)
		if err != nil {
			t.Fatalf("Instrument(%s) error = %v", id, err)
		}
		if diff := cmp.Diff(want, got, dates); diff != "" {
			t.Errorf("Instrument(%s) mismatch (-want +got):\n%s", id, diff)
		}
	}
	if c, err := s.SystemCurrency(ctx); err != nil || c.ID != "USD" {
		t.Errorf("SystemCurrency() = %v, %v, want USD", c, err)
	}
	if a, err := s.Account(ctx, "ACC"); err != nil || !a.ShowTransactionDetails || a.UserCode != "Main" {
		t.Errorf("Account(ACC) = %+v, %v", a, err)
	}

	for name, err := range map[string]error{
		"instrument": func() error { _, err := s.Instrument(ctx, "NOPE"); return err }(),
		"currency":   func() error { _, err := s.Currency(ctx, "NOPE"); return err }(),
		"account":    func() error { _, err := s.Account(ctx, "NOPE"); return err }(),
	} {
		if !errors.Is(err, pnl.ErrNotFound) {
			t.Errorf("unknown %s error = %v, want ErrNotFound", name, err)
		}
	}
}

func TestQuotes(t *testing.T) {
	ctx := context.Background()
	s := open(t)
	tests := []struct {
		on   string
		want float64
		err  error
	}{
		{"2023-01-09", 0, pnl.ErrNotFound},
		{"2023-01-10", 10, nil},
		{"2023-02-15", 10, nil},
		{"2023-03-01", 11, nil},
		{"2024-01-01", 11, nil},
	}
	for _, tt := range tests {
		p, err := s.Price(ctx, "", "ACME", d(tt.on))
		if !errors.Is(err, tt.err) || p.Principal != tt.want {
			t.Errorf("Price(%s) = %v, %v, want %v, %v", tt.on, p.Principal, err, tt.want, tt.err)
		}
	}
	if _, err := s.Price(ctx, "close", "ACME", d("2023-03-01")); !errors.Is(err, pnl.ErrNotFound) {
		t.Errorf("Price(other policy) error = %v, want ErrNotFound", err)
	}
	if r, err := s.Rate(ctx, "", "EUR", d("2023-06-01")); err != nil || r != 1.1 {
		t.Errorf("Rate(EUR) = %v, %v, want 1.1", r, err)
	}
}

func TestTransactions(t *testing.T) {
	ctx := context.Background()
	s := open(t)
	ids := func(q pnl.Query) []string {
		ts, err := s.Transactions(ctx, q)
		if err != nil {
			t.Fatalf("Transactions() error = %v", err)
		}
		var res []string
		for _, tr := range ts {
			res = append(res, tr.ID)
		}
		return res
	}
	tests := []struct {
		name string
		q    pnl.Query
		want []string
	}{
		{"all", pnl.Query{}, []string{"t1", "t2", "t3"}},
		{"portfolio", pnl.Query{Portfolios: []string{"P2"}}, []string{"t3"}},
		{"class", pnl.Query{Classes: []pnl.TransactionClass{pnl.Sell}}, []string{"t2"}},
		{"until", pnl.Query{DateField: pnl.AccountingDate, Until: d("2023-02-10")}, []string{"t1", "t2"}},
		{"unknown instrument", pnl.Query{Instruments: []string{"BOND"}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ids(tt.q)); diff != "" {
				t.Errorf("Transactions() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// TestBuild checks that a report built from the store matches the one built
// from the imported memory.
func TestBuild(t *testing.T) {
	ctx := context.Background()
	o := pnl.Options{Type: pnl.PL, ReportDate: d("2023-03-01"), ReportCurrency: "USD"}

	want, err := (&pnl.Builder{Sources: testMemory(t).Sources()}).Build(ctx, o)
	if err != nil {
		t.Fatalf("Build(memory) error = %v", err)
	}
	got, err := (&pnl.Builder{Sources: open(t).Sources()}).Build(ctx, o)
	if err != nil {
		t.Fatalf("Build(store) error = %v", err)
	}
	if diff := cmp.Diff(want.Items, got.Items, dates, cmp.AllowUnexported(pnl.ReportItem{})); diff != "" {
		t.Errorf("items mismatch (-memory +store):\n%s", diff)
	}
	if diff := cmp.Diff(want.Summary.PL, got.Summary.PL); diff != "" {
		t.Errorf("summary mismatch (-memory +store):\n%s", diff)
	}
}

func TestThrottled(t *testing.T) {
	s := open(t)
	th := NewThrottled(s, s, time.Hour, 1)
	src := th.Wrap(s.Sources())

	ctx := context.Background()
	if p, err := src.Prices.Price(ctx, "", "ACME", d("2023-03-01")); err != nil || p.Principal != 11 {
		t.Fatalf("Price() = %v, %v, want 11", p, err)
	}
	// The burst is spent: the next lookup would wait an hour.
	ctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if _, err := src.FX.Rate(ctx, "", "EUR", d("2023-03-01")); err == nil {
		t.Error("Rate() error = nil, want a rate limit error")
	}
}

func TestFallback(t *testing.T) {
	s := open(t)
	remote := pnl.NewMemory()
	remote.AddPrice("", "ACME", d("2023-03-01"), pnl.Price{Principal: 99})
	remote.AddPrice("", "BOND", d("2023-03-01"), pnl.Price{Principal: 101})
	remote.AddRate("", "GBP", d("2023-03-01"), 1.2)
	src := (&Fallback{Primary: s, Secondary: remote}).Wrap(s.Sources())

	ctx := context.Background()
	if p, err := src.Prices.Price(ctx, "", "ACME", d("2023-03-01")); err != nil || p.Principal != 11 {
		t.Errorf("Price(ACME) = %v, %v, want the local 11", p, err)
	}
	if p, err := src.Prices.Price(ctx, "", "BOND", d("2023-03-01")); err != nil || p.Principal != 101 {
		t.Errorf("Price(BOND) = %v, %v, want the remote 101", p, err)
	}
	if r, err := src.FX.Rate(ctx, "", "GBP", d("2023-03-02")); err != nil || r != 1.2 {
		t.Errorf("Rate(GBP) = %v, %v, want the remote 1.2", r, err)
	}
	if _, err := src.FX.Rate(ctx, "", "CHF", d("2023-03-02")); !errors.Is(err, pnl.ErrNotFound) {
		t.Errorf("Rate(CHF) error = %v, want ErrNotFound", err)
	}
}
