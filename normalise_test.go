package pnl

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNormaliseOrder(t *testing.T) {
	a := trade("b", "2023-01-02", 1, 10)
	b := trade("a", "2023-01-02", 1, 10)
	c := trade("c", "2023-01-01", 1, 10)
	e := trade("e", "2023-01-02", 1, 10)
	e.Code = -1
	cancelled := trade("x", "2023-01-01", 1, 10)
	cancelled.IsCanceled = true

	vts := normalise([]Transaction{a, b, c, e, cancelled}, Query{}, d("2023-12-31"))
	var got []string
	for _, v := range vts {
		got = append(got, v.ID)
	}
	if diff := cmp.Diff([]string{"c", "e", "a", "b"}, got); diff != "" {
		t.Errorf("normalise() order mismatch (-want +got):\n%s", diff)
	}
}

func TestNormaliseCase(t *testing.T) {
	tests := []struct {
		acc, cash, rd string
		want          int
	}{
		{"2023-01-01", "2023-01-03", "2023-01-02", 1},
		{"2023-01-01", "2023-01-03", "2023-01-03", 0},
		{"2023-01-03", "2023-01-01", "2023-01-02", 2},
		{"2023-01-01", "2023-01-01", "2023-01-05", 0},
		{"2023-01-03", "2023-01-04", "2023-01-02", 0},
	}
	for _, tt := range tests {
		tr := trade("t", tt.acc, 1, 1)
		tr.CashDate = d(tt.cash)
		vts := normalise([]Transaction{tr}, Query{}, d(tt.rd))
		if got := vts[0].Case; got != tt.want {
			t.Errorf("case(acc %s, cash %s, report %s) = %d, want %d", tt.acc, tt.cash, tt.rd, got, tt.want)
		}
	}
}

func TestTransferLegs(t *testing.T) {
	tr := Transaction{
		ID: "tr", Class: Transfer, AccountingDate: d("2023-01-01"),
		Instrument: "ACME", Position: 10, SettlementCurrency: "USD",
		Cash: 100, Principal: -100,
		Portfolio: "P1", AccountCash: "ACC", AccountPosition: "BROKER",
		Strategy1Cash: "FROM", Strategy1Position: "TO",
	}
	type leg struct {
		ID, Account, Strategy1 string
		Class                  TransactionClass
		Kind                   VirtualKind
		Position, Principal    float64
	}
	legsOf := func(tr Transaction) []leg {
		var out []leg
		for _, v := range normalise([]Transaction{tr}, Query{}, d("2023-12-31")) {
			if v.AccountPosition != v.AccountCash {
				t.Errorf("leg %s books two accounts %s and %s", v.ID, v.AccountPosition, v.AccountCash)
			}
			out = append(out, leg{v.ID, v.AccountPosition, v.Strategy1Position, v.Class, v.Kind, v.Position, v.Principal})
		}
		return out
	}

	want := []leg{
		{"tr/1", "ACC", "FROM", Sell, Leg, -10, 100},
		{"tr/2", "BROKER", "TO", Buy, Leg, 10, -100},
	}
	if diff := cmp.Diff(want, legsOf(tr)); diff != "" {
		t.Errorf("transfer legs mismatch (-want +got):\n%s", diff)
	}

	tr.Position = -10
	want = []leg{
		{"tr/1", "ACC", "FROM", Buy, Leg, 10, -100},
		{"tr/2", "BROKER", "TO", Sell, Leg, -10, 100},
	}
	if diff := cmp.Diff(want, legsOf(tr)); diff != "" {
		t.Errorf("short transfer legs mismatch (-want +got):\n%s", diff)
	}
}

func TestTransferKeepsCostBasis(t *testing.T) {
	m := newTestMemory(t)
	m.AddTransactions(
		trade("t1", "2023-01-02", 10, 10),
		Transaction{
			ID: "tr", Class: Transfer, AccountingDate: d("2023-01-03"), CashDate: d("2023-01-03"),
			Instrument: "ACME", Position: 10, SettlementCurrency: "USD", ReferenceFX: 1,
			Cash: 100, Principal: 100,
			Portfolio: "P1", AccountCash: "ACC", AccountPosition: "BROKER",
		},
	)
	m.AddPrice("", "ACME", d("2023-01-31"), Price{Principal: 12})
	r := build(t, m, plOptions("2023-01-31"))

	broker := acmeKey
	broker.Account = "BROKER"
	it := mustItem(t, r, broker)
	assertClose(t, "position", it.Position, 10)
	assertClose(t, "gross cost", it.GrossCostRes, 10)
	if it := r.Item(acmeKey); it != nil && !isZero(it.Position) {
		t.Errorf("source account still holds %v", it.Position)
	}
	assertClose(t, "total P&L", r.Summary.PL.Total.Full.Total, 20)
}

func TestFXTransferLegs(t *testing.T) {
	tr := Transaction{
		ID: "fx", Class: FXTransfer, AccountingDate: d("2023-01-01"),
		TransactionCurrency: "EUR", Position: 500, SettlementCurrency: "USD",
		Cash: 3, Principal: 3,
		Portfolio: "P1", AccountCash: "ACC", AccountPosition: "BROKER",
	}
	vts := normalise([]Transaction{tr}, Query{}, d("2023-12-31"))
	if len(vts) != 2 {
		t.Fatalf("got %d legs, want 2", len(vts))
	}
	out, in := vts[0], vts[1]
	if out.Class != FXTrade || in.Class != FXTrade {
		t.Errorf("legs classes = %s, %s, want FX_TRADE", out.Class, in.Class)
	}
	if out.AccountPosition != "ACC" || in.AccountPosition != "BROKER" {
		t.Errorf("legs accounts = %s, %s", out.AccountPosition, in.AccountPosition)
	}
	assertClose(t, "out position", out.Position, -500)
	assertClose(t, "in position", in.Position, 500)
	for _, v := range vts {
		if v.SettlementCurrency != "EUR" || v.Cash != 0 || v.ReferenceFX != 1 {
			t.Errorf("leg %s = %+v, want a EUR leg without cash", v.ID, v)
		}
	}
}

func TestFXTradeValuation(t *testing.T) {
	m := newTestMemory(t)
	m.AddTransactions(Transaction{
		ID: "fx", Class: FXTrade, AccountingDate: d("2023-01-01"), CashDate: d("2023-01-01"),
		TransactionCurrency: "EUR", Position: 1000, SettlementCurrency: "USD", ReferenceFX: 1,
		Cash: -1100, Principal: -1100,
		Portfolio: "P1", AccountPosition: "ACC", AccountCash: "ACC",
	})
	m.AddRate("", "EUR", d("2023-01-01"), 1.10)
	m.AddRate("", "EUR", d("2023-01-31"), 1.20)

	r := build(t, m, plOptions("2023-01-31"))
	it := mustItem(t, r, ItemKey{Type: FXTradeItem, Portfolio: "P1", Account: "ACC", Currency: "EUR"})
	assertClose(t, "fx trade P&L", it.PL.Total.Full.Total, 100)
	assertClose(t, "fx part", it.PL.Total.FX.Total, 100)
	assertClose(t, "fixed part", it.PL.Total.Fixed.Total, 0)

	eur := mustItem(t, r, ItemKey{Type: CurrencyItem, Portfolio: "P1", Account: "ACC", Currency: "EUR"})
	assertClose(t, "EUR cash", eur.Position, 1000)
	assertClose(t, "EUR value", eur.MarketValueRes, 1200)
}
