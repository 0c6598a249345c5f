package pnl

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/etnz/pnl/customfield"
)

func TestBuildAVCOMidClose(t *testing.T) {
	m := newTestMemory(t)
	m.AddTransactions(
		trade("t1", "2023-01-10", 100, 10),
		trade("t2", "2023-02-10", -40, 12),
	)
	m.AddPrice("", "ACME", d("2023-03-01"), Price{Principal: 11})

	o := plOptions("2023-03-01")
	o.Debug = true
	r := build(t, m, o)

	it := mustItem(t, r, acmeKey)
	assertClose(t, "position", it.Position, 60)
	assertClose(t, "realised", it.PL.Closed.Full.Total, 80)
	assertClose(t, "unrealised", it.PL.Opened.Full.Total, 60)
	assertClose(t, "market value", it.MarketValueRes, 660)
	assertClose(t, "gross cost", it.GrossCostRes, 10)
	assertClose(t, "pos return", it.PosReturn, 0.1)
	if it.Group != GroupOpened {
		t.Errorf("group = %s, want %s", it.Group, GroupOpened)
	}
	assertClose(t, "BUY multiplier", virtual(t, r, "t1").Multiplier, 0.4)
	assertClose(t, "SELL multiplier", virtual(t, r, "t2").Multiplier, 1)

	cash := mustItem(t, r, ItemKey{Type: CurrencyItem, Portfolio: "P1", Account: "ACC", Currency: "USD"})
	assertClose(t, "cash", cash.Position, -520)
	assertClose(t, "summary market value", r.Summary.MarketValueRes, 140)
	assertClose(t, "summary P&L", r.Summary.PL.Total.Full.Total, 140)
}

func TestBuildPriceChanges(t *testing.T) {
	m := newTestMemory(t)
	m.AddTransactions(trade("t1", "2023-01-10", 100, 10))
	m.AddPrice("", "ACME", d("2023-02-15"), Price{Principal: 10})
	m.AddPrice("", "ACME", d("2023-03-15"), Price{Principal: 11})

	it := mustItem(t, build(t, m, plOptions("2023-03-20")), acmeKey)
	assertClose(t, "daily price change", it.DailyPriceChange, 0)
	// Month to date compares with the last price of February.
	assertClose(t, "mtd price change", it.MTDPriceChange, 0.1)
}

func TestBuildIncome(t *testing.T) {
	tests := []struct {
		name           string
		ts             []Transaction
		closed, opened float64
	}{
		{"held", []Transaction{trade("t1", "2023-01-02", 100, 10), income("c1", "2023-01-05", 50)}, 0, 50},
		{"sold", []Transaction{
			trade("t1", "2023-01-02", 100, 10), income("c1", "2023-01-05", 50), trade("t2", "2023-01-10", -100, 10),
		}, 50, 0},
		// Half of the position the income was earned on is sold.
		{"half sold", []Transaction{
			trade("t1", "2023-01-02", 100, 10), income("c1", "2023-01-05", 50),
			trade("t2", "2023-01-06", 100, 10), trade("t3", "2023-01-10", -150, 10),
		}, 25, 25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMemory(t)
			m.AddTransactions(tt.ts...)
			m.AddPrice("", "ACME", d("2023-01-02"), Price{Principal: 10})
			it := mustItem(t, build(t, m, plOptions("2023-02-01")), acmeKey)
			assertClose(t, "closed carry", it.PL.Closed.Full.Carry, tt.closed)
			assertClose(t, "opened carry", it.PL.Opened.Full.Carry, tt.opened)
			assertClose(t, "total carry", it.PL.Total.Full.Carry, 50)
		})
	}
}

func TestBuildCostMethods(t *testing.T) {
	tests := []struct {
		method     CostMethod
		realised   float64
		unrealised float64
	}{
		{AVCO, 1000, 500},
		{FIFO, 1500, 0},
	}
	for _, tt := range tests {
		t.Run(tt.method.String(), func(t *testing.T) {
			m := newTestMemory(t)
			m.AddTransactions(
				trade("t1", "2023-01-02", 100, 10),
				trade("t2", "2023-01-03", 100, 20),
				trade("t3", "2023-01-04", -100, 25),
			)
			m.AddPrice("", "ACME", d("2023-01-05"), Price{Principal: 20})
			o := plOptions("2023-01-05")
			o.CostMethod = tt.method
			it := mustItem(t, build(t, m, o), acmeKey)
			assertClose(t, "realised", it.PL.Closed.Full.Total, tt.realised)
			assertClose(t, "unrealised", it.PL.Opened.Full.Total, tt.unrealised)
			assertClose(t, "position", it.Position, 100)
		})
	}
}

func TestBuildInterimCash(t *testing.T) {
	m := newTestMemory(t)
	tr := trade("t1", "2023-06-01", 10, 100)
	tr.CashDate = d("2023-06-05")
	tr.AccountInterim = "INTERIM"
	m.AddTransactions(tr)
	m.AddPrice("", "ACME", d("2023-06-01"), Price{Principal: 100})

	r := build(t, m, Options{Type: Balance, ReportDate: d("2023-06-03"), ReportCurrency: "USD"})
	interim := mustItem(t, r, ItemKey{Type: CurrencyItem, Portfolio: "P1", Account: "INTERIM", Currency: "USD"})
	assertClose(t, "interim cash", interim.Position, -1000)
	if it := r.Item(ItemKey{Type: CurrencyItem, Portfolio: "P1", Account: "ACC", Currency: "USD"}); it != nil {
		t.Errorf("settlement account cash = %v, want no item", it.Position)
	}
	assertClose(t, "position", mustItem(t, r, acmeKey).Position, 10)

	// Once settled, the cash is on the settlement account.
	r = build(t, m, Options{Type: Balance, ReportDate: d("2023-06-05"), ReportCurrency: "USD"})
	cash := mustItem(t, r, ItemKey{Type: CurrencyItem, Portfolio: "P1", Account: "ACC", Currency: "USD"})
	assertClose(t, "settled cash", cash.Position, -1000)
}

func TestBuildTransactionDetails(t *testing.T) {
	m := newTestMemory(t)
	tr := trade("t1", "2023-06-01", 10, 100)
	tr.CashDate = d("2023-06-05")
	tr.AccountInterim = "INTERIM"
	m.AddTransactions(tr)

	o := Options{Type: Balance, ReportDate: d("2023-06-03"), ReportCurrency: "USD", ShowTransactionDetails: true}
	r := build(t, m, o)
	mustItem(t, r, ItemKey{Type: CurrencyItem, Portfolio: "P1", Account: "INTERIM", Currency: "USD", Detail: "t1"})
}

func TestBuildCashInflowFX(t *testing.T) {
	m := newTestMemory(t)
	m.AddTransactions(Transaction{
		ID:                  "in",
		Class:               CashInflow,
		TransactionDate:     d("2023-01-01"),
		AccountingDate:      d("2023-01-01"),
		CashDate:            d("2023-01-01"),
		TransactionCurrency: "USD",
		ReferenceFX:         1.10,
		SettlementCurrency:  "EUR",
		Cash:                1000,
		Principal:           1000,
		Portfolio:           "P1",
		AccountPosition:     "ACC",
		AccountCash:         "ACC",
	})
	m.AddRate("", "EUR", d("2023-01-01"), 1.10)
	m.AddRate("", "EUR", d("2023-06-01"), 1.20)

	r := build(t, m, plOptions("2023-06-01"))
	it := mustItem(t, r, ItemKey{Type: CashInOutItem, Portfolio: "P1", Account: "ACC", Currency: "EUR"})
	assertClose(t, "principal fx", it.PL.Total.FX.Principal, 100)
	assertClose(t, "closed principal fx", it.PL.Closed.FX.Principal, 100)
	if !it.PL.Total.Full.isZero() || !it.PL.Total.Fixed.isZero() || !it.PL.Opened.isZero() {
		t.Errorf("only the fx principal bucket should be set, got %+v", it.PL)
	}
	cash := mustItem(t, r, ItemKey{Type: CurrencyItem, Portfolio: "P1", Account: "ACC", Currency: "EUR"})
	assertClose(t, "cash market value", cash.MarketValueRes, 1200)

	if len(r.InvestedItems) != 1 {
		t.Fatalf("got %d invested items, want 1", len(r.InvestedItems))
	}
	assertClose(t, "invested at historical rate", r.InvestedItems[0].AmountHistRes, 1100)
	assertClose(t, "invested at current rate", r.InvestedItems[0].AmountRes, 1200)
}

func TestBuildMismatch(t *testing.T) {
	m := newTestMemory(t)
	m.AddTransactions(Transaction{
		ID:                 "fee",
		Class:              TransactionPL,
		AccountingDate:     d("2023-01-01"),
		CashDate:           d("2023-01-01"),
		ReferenceFX:        1,
		SettlementCurrency: "USD",
		Cash:               100,
		Principal:          50,
		Carry:              40,
		Overheads:          -10,
		Portfolio:          "P1",
		AccountPosition:    "ACC",
		AccountCash:        "ACC",
		LinkedInstrument:   "L",
	})
	r := build(t, m, plOptions("2023-01-31"))
	it := mustItem(t, r, ItemKey{Type: MismatchItem, Instrument: "L", MismatchPortfolio: "P1", MismatchAccount: "ACC"})
	assertClose(t, "mismatch", it.Mismatch, 20)
	if it.Group != GroupMismatches {
		t.Errorf("group = %s, want %s", it.Group, GroupMismatches)
	}
	other := mustItem(t, r, ItemKey{Type: TransactionPLItem, Portfolio: "P1", Account: "ACC"})
	assertClose(t, "transaction P&L", other.PL.Total.Full.Total, 80)

	// Balance reports have no mismatch item.
	r = build(t, m, Options{Type: Balance, ReportDate: d("2023-01-31"), ReportCurrency: "USD"})
	for _, it := range r.Items {
		if it.Type == MismatchItem {
			t.Errorf("unexpected mismatch item %+v in balance report", it.ItemKey)
		}
	}
}

func TestBuildApproachMultiplier(t *testing.T) {
	tests := []struct {
		end            float64
		opener, closer float64
	}{
		{0.5, 100, 100},
		{1, 0, 200},
		{0, 200, 0},
	}
	for _, tt := range tests {
		m := newTestMemory(t)
		buy, sell := trade("t1", "2023-01-02", 100, 10), trade("t2", "2023-01-03", -100, 12)
		buy.Strategy1Position, sell.Strategy1Position = "S1", "S2"
		m.AddTransactions(buy, sell)
		o := plOptions("2023-01-31")
		o.SetApproachMultiplier(tt.end)
		r := build(t, m, o)

		s1, s2 := acmeKey, acmeKey
		s1.Strategy1, s2.Strategy1 = "S1", "S2"
		assertClose(t, "opener realised", realised(r, s1), tt.opener)
		assertClose(t, "closer realised", realised(r, s2), tt.closer)
		assertClose(t, "total realised", r.Summary.PL.Closed.Full.Total, 200)
	}
}

// realised returns the realised P&L of the item of key, 0 when it was dropped as empty.
func realised(r *Report, key ItemKey) float64 {
	if it := r.Item(key); it != nil {
		return it.PL.Closed.Full.Total
	}
	return 0
}

func TestBuildPLFirstDate(t *testing.T) {
	m := newTestMemory(t)
	m.AddTransactions(
		trade("t1", "2023-01-10", 100, 10),
		trade("t2", "2023-02-10", -40, 12),
	)
	m.AddPrice("", "ACME", d("2023-02-01"), Price{Principal: 10.5})
	m.AddPrice("", "ACME", d("2023-03-01"), Price{Principal: 11})

	o := plOptions("2023-03-01")
	o.PLFirstDate = d("2023-02-01")
	it := mustItem(t, build(t, m, o), acmeKey)
	// 140 of P&L at the report date, 50 at the first date.
	assertClose(t, "P&L since first date", it.PL.Total.Full.Total, 90)
	assertClose(t, "position", it.Position, 60)
}

func TestBuildSplitClosedOpened(t *testing.T) {
	m := newTestMemory(t)
	m.AddTransactions(
		trade("t1", "2023-01-10", 100, 10),
		trade("t2", "2023-02-10", -40, 12),
	)
	m.AddPrice("", "ACME", d("2023-03-01"), Price{Principal: 11})
	o := plOptions("2023-03-01")
	o.SplitClosedOpened = true
	r := build(t, m, o)

	closedKey, openedKey := acmeKey, acmeKey
	closedKey.Subtype, openedKey.Subtype = ClosedPart, OpenedPart
	closed, opened := mustItem(t, r, closedKey), mustItem(t, r, openedKey)
	assertClose(t, "closed P&L", closed.PL.Total.Full.Total, 80)
	assertClose(t, "closed position", closed.Position, 0)
	assertClose(t, "opened P&L", opened.PL.Total.Full.Total, 60)
	assertClose(t, "opened position", opened.Position, 60)
	if closed.Group != GroupClosed || opened.Group != GroupOpened {
		t.Errorf("groups = %s, %s", closed.Group, opened.Group)
	}
}

func TestBuildAllocations(t *testing.T) {
	m := newTestMemory(t)
	t1, t2 := trade("t1", "2023-01-10", 10, 10), trade("t2", "2023-01-10", 5, 10)
	t1.AllocationBalance, t2.AllocationBalance = "GROWTH", "INCOME"
	m.AddTransactions(t1, t2)
	m.AddPrice("", "ACME", d("2023-01-31"), Price{Principal: 12})

	// Cash carries the allocation of its transaction.
	r := build(t, m, Options{Type: Balance, ReportDate: d("2023-01-31"), ReportCurrency: "USD"})
	assertClose(t, "growth", mustItem(t, r, ItemKey{Type: AllocationItem, Allocation: "GROWTH"}).MarketValueRes, 20)
	assertClose(t, "income", mustItem(t, r, ItemKey{Type: AllocationItem, Allocation: "INCOME"}).MarketValueRes, 10)
	// Allocation items do not count twice in the summary.
	assertClose(t, "summary", r.Summary.MarketValueRes, 30)

	o := Options{Type: Balance, ReportDate: d("2023-01-31"), ReportCurrency: "USD", AllocationDetailing: true}
	r = build(t, m, o)
	key := acmeKey
	key.Allocation = "GROWTH"
	assertClose(t, "detailed position", mustItem(t, r, key).Position, 10)
}

func TestBuildGroupingIsLossless(t *testing.T) {
	m := newTestMemory(t)
	a, b, c := trade("t1", "2023-01-10", 10, 10), trade("t2", "2023-01-11", 5, 11), trade("t3", "2023-01-12", -3, 12)
	b.Portfolio, b.AccountPosition = "P2", "BROKER"
	c.Strategy1Position, c.Strategy1Cash = "S1", "S1"
	m.AddTransactions(a, b, c)
	m.AddPrice("", "ACME", d("2023-01-31"), Price{Principal: 13})

	independent := build(t, m, Options{Type: Balance, ReportDate: d("2023-01-31"), ReportCurrency: "USD"})
	ignored := build(t, m, Options{
		Type: Balance, ReportDate: d("2023-01-31"), ReportCurrency: "USD",
		PortfolioMode: Ignore, AccountMode: Ignore, Strategy1Mode: Ignore,
	})
	assertClose(t, "market value", ignored.Summary.MarketValueRes, independent.Summary.MarketValueRes)
	assertClose(t, "collapsed position", mustItem(t, ignored, ItemKey{Type: InstrumentItem, Instrument: "ACME"}).Position, 12)
}

func TestBuildCustomFields(t *testing.T) {
	m := newTestMemory(t)
	m.AddTransactions(trade("t1", "2023-01-10", 10, 10))
	m.AddPrice("", "ACME", d("2023-01-10"), Price{Principal: 12})
	o := plOptions("2023-01-31")
	o.CustomFields = []customfield.Field{
		{UserCode: "double", Expression: "item.market_value_res * 2"},
		{UserCode: "code", Expression: "item.instrument.user_code"},
		{UserCode: "bad", Expression: "item.nope"},
	}
	it := mustItem(t, build(t, m, o), acmeKey)
	want := []customfield.Value{{Field: "double", Value: 240.0}, {Field: "code", Value: "ACME"}, {Field: "bad", Value: customfield.InvalidExpression}}
	if len(it.CustomFields) != len(want) {
		t.Fatalf("got %d custom fields, want %d", len(it.CustomFields), len(want))
	}
	for i, w := range want {
		if it.CustomFields[i] != w {
			t.Errorf("custom field %d = %+v, want %+v", i, it.CustomFields[i], w)
		}
	}
}

func TestBuildBadInput(t *testing.T) {
	m := newTestMemory(t)
	tests := []struct {
		name string
		o    Options
	}{
		{"no report date", Options{ReportCurrency: "USD"}},
		{"unknown currency", Options{ReportDate: d("2023-01-01"), ReportCurrency: "XXX"}},
		{"unknown instrument", Options{ReportDate: d("2023-01-01"), ReportCurrency: "USD", Instruments: []string{"NOPE"}}},
		{"unknown account", Options{ReportDate: d("2023-01-01"), ReportCurrency: "USD", AccountsCash: []string{"NOPE"}}},
		{"first date on balance", Options{ReportDate: d("2023-01-01"), PLFirstDate: d("2022-01-01"), ReportCurrency: "USD"}},
		{"first date after report date", Options{Type: PL, ReportDate: d("2023-01-01"), PLFirstDate: d("2023-02-01"), ReportCurrency: "USD"}},
		{"approach multipliers", Options{ReportDate: d("2023-01-01"), ReportCurrency: "USD", ApproachBeginMultiplier: 0.7, ApproachEndMultiplier: 0.7}},
		{"transaction class", Options{ReportDate: d("2023-01-01"), ReportCurrency: "USD", TransactionClasses: []TransactionClass{42}}},
	}
	b := &Builder{Sources: m.Sources()}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Build(context.Background(), tt.o)
			if !errors.Is(err, ErrBadInput) {
				t.Errorf("Build() error = %v, want ErrBadInput", err)
			}
		})
	}

	t.Run("account filter without accounts", func(t *testing.T) {
		src := m.Sources()
		src.Accounts = nil
		o := plOptions("2023-01-01")
		o.AccountsCash = []string{"ACC"}
		_, err := (&Builder{Sources: src}).Build(context.Background(), o)
		if !errors.Is(err, ErrBadInput) {
			t.Errorf("Build() error = %v, want ErrBadInput", err)
		}
	})
}

func TestBuildCancelled(t *testing.T) {
	m := newTestMemory(t)
	m.AddTransactions(trade("t1", "2023-01-10", 10, 10))
	b := &Builder{Sources: m.Sources()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Build(ctx, plOptions("2023-01-31"))
	if !errors.Is(err, ErrCancelled) || !errors.Is(err, context.Canceled) {
		t.Errorf("Build(cancelled) error = %v, want ErrCancelled and context.Canceled", err)
	}

	b.Timeout = time.Nanosecond
	_, err = b.Build(context.Background(), plOptions("2023-01-31"))
	if !errors.Is(err, ErrCancelled) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Build(timeout) error = %v, want ErrCancelled and context.DeadlineExceeded", err)
	}
}

func TestBuildFilter(t *testing.T) {
	m := newTestMemory(t)
	a, b := trade("t1", "2023-01-10", 10, 10), trade("t2", "2023-01-11", 5, 11)
	b.Portfolio = "P2"
	m.AddTransactions(a, b)

	o := plOptions("2023-01-31")
	o.Portfolios = []string{"P1"}
	r := build(t, m, o)
	assertClose(t, "position", mustItem(t, r, acmeKey).Position, 10)
	for _, it := range r.Items {
		if it.Portfolio == "P2" {
			t.Errorf("unexpected item %+v outside the filter", it.ItemKey)
		}
	}
}

func TestBuildMarketValueFX(t *testing.T) {
	rates := map[string]float64{"USD": 1, "EUR": 1.2, "GBP": 1.5}
	tests := []struct {
		report string
		res    float64
	}{
		{"USD", 1200},
		{"EUR", 1000},
		{"GBP", 800},
	}
	for _, tt := range tests {
		t.Run(tt.report, func(t *testing.T) {
			m := newTestMemory(t)
			if err := m.AddCurrency(Currency{ID: "GBP", UserCode: "GBP"}); err != nil {
				t.Fatalf("AddCurrency(GBP) error = %v", err)
			}
			m.AddInstrument(Instrument{ID: "BUND", UserCode: "BUND", PricingCurrency: "EUR", AccruedCurrency: "EUR"})
			tr := trade("t1", "2023-01-10", 10, 100)
			tr.Instrument, tr.TransactionCurrency, tr.SettlementCurrency = "BUND", "EUR", "EUR"
			m.AddTransactions(tr)
			m.AddPrice("", "BUND", d("2023-01-10"), Price{Principal: 100})
			m.AddRate("", "EUR", d("2023-01-01"), rates["EUR"])
			m.AddRate("", "GBP", d("2023-01-01"), rates["GBP"])

			o := plOptions("2023-01-31")
			o.ReportCurrency = tt.report
			it := mustItem(t, build(t, m, o), ItemKey{Type: InstrumentItem, Portfolio: "P1", Account: "ACC", Instrument: "BUND"})
			assertClose(t, "market value loc", it.MarketValueLoc, 1000)
			assertClose(t, "market value res", it.MarketValueRes, tt.res)
			assertClose(t, "pricing fx", it.PricingCurFX, rates["EUR"]/rates[tt.report])
			assertClose(t, "res from loc", it.MarketValueRes, it.MarketValueLoc*rates["EUR"]/rates[tt.report])
		})
	}
}

// TestBuildRemovalIsMonotone removes one transaction at a time: a position
// never moves in the direction of the removed trade.
func TestBuildRemovalIsMonotone(t *testing.T) {
	onBroker := func(tr Transaction) Transaction {
		tr.AccountPosition, tr.AccountCash = "BROKER", "BROKER"
		return tr
	}
	ts := []Transaction{
		trade("t1", "2023-01-02", 10, 10),
		trade("t2", "2023-01-03", -4, 12),
		onBroker(trade("t3", "2023-01-04", 3, 11)),
		trade("t4", "2023-01-05", 5, 9),
		onBroker(trade("t5", "2023-01-06", -7, 12)),
		trade("t6", "2023-01-07", -13, 13),
		income("c1", "2023-01-08", 20),
	}
	positions := func(t *testing.T, ts []Transaction) map[ItemKey]float64 {
		t.Helper()
		m := newTestMemory(t)
		m.AddTransactions(ts...)
		m.AddPrice("", "ACME", d("2023-01-02"), Price{Principal: 10})
		res := make(map[ItemKey]float64)
		for _, it := range build(t, m, plOptions("2023-02-01")).Items {
			if it.Type == InstrumentItem {
				res[it.ItemKey] += it.Position
			}
		}
		return res
	}
	full := positions(t, ts)
	for i, removed := range ts {
		t.Run(removed.ID, func(t *testing.T) {
			got := positions(t, slices.Delete(slices.Clone(ts), i, i+1))
			keys := make(map[ItemKey]bool)
			for k := range full {
				keys[k] = true
			}
			for k := range got {
				keys[k] = true
			}
			for k := range keys {
				if delta := got[k] - full[k]; delta*removed.Position > 1e-9 {
					t.Errorf("removing %s moves %s/%s from %v to %v", removed.ID, k.Account, k.Instrument, full[k], got[k])
				}
			}
		})
	}
}
