package pnl

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/etnz/pnl/date"
	"github.com/google/go-cmp/cmp"
)

const sources = `# a small book
{"kind":"currency","id":"USD","user_code":"USD","is_system":true}
{"kind":"currency","id":"EUR","user_code":"EUR"}
{"kind":"instrument","id":"ACME","user_code":"ACME","pricing_currency":"USD"}
{"kind":"account","id":"ACC","user_code":"Main"}

{"kind":"transaction","id":"t1","class":"BUY","accounting_date":"2023-01-10","cash_date":"2023-01-10","instrument":"ACME","position":100,"reference_fx":1,"settlement_currency":"USD","cash":-1000,"principal":-1000,"portfolio":"P1","account_position":"ACC","account_cash":"ACC"}
{"kind":"price","instrument":"ACME","date":"2023-03-01","principal":"11"}
{"kind":"fx","currency":"EUR","date":"2023-01-01","rate":"1.1"}
`

func TestDecodeSources(t *testing.T) {
	m, err := DecodeSources(strings.NewReader(sources))
	if err != nil {
		t.Fatalf("DecodeSources() error = %v", err)
	}
	ctx := context.Background()
	if c, err := m.SystemCurrency(ctx); err != nil || c.ID != "USD" {
		t.Errorf("SystemCurrency() = %v, %v, want USD", c, err)
	}
	ts := m.AllTransactions()
	if len(ts) != 1 || ts[0].Class != Buy || ts[0].Position != 100 || ts[0].AccountingDate != d("2023-01-10") {
		t.Errorf("transactions = %+v", ts)
	}
	if p, err := m.Price(ctx, "", "ACME", d("2023-03-05")); err != nil || p.Principal != 11 {
		t.Errorf("Price() = %v, %v, want 11", p, err)
	}
	if r, err := m.Rate(ctx, "", "EUR", d("2023-02-01")); err != nil || r != 1.1 {
		t.Errorf("Rate() = %v, %v, want 1.1", r, err)
	}
}

func TestDecodeSourcesErrors(t *testing.T) {
	tests := []struct {
		name, input, want string
	}{
		{"bad json", `{"kind":`, "line 1"},
		{"unknown kind", "\n{\"kind\":\"bond\"}", "line 2"},
		{"missing id", `{"kind":"transaction","class":"BUY"}`, "without id"},
		{"bad date", `{"kind":"price","instrument":"A","date":"yesterday","principal":"1"}`, "invalid date"},
		{"two system currencies", `{"kind":"currency","id":"A","is_system":true}
{"kind":"currency","id":"B","is_system":true}`, "line 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSources(strings.NewReader(tt.input))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("DecodeSources() error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestEncodeSources(t *testing.T) {
	m, err := DecodeSources(strings.NewReader(sources))
	if err != nil {
		t.Fatalf("DecodeSources() error = %v", err)
	}
	var buf bytes.Buffer
	if err := EncodeSources(&buf, m); err != nil {
		t.Fatalf("EncodeSources() error = %v", err)
	}
	again, err := DecodeSources(&buf)
	if err != nil {
		t.Fatalf("DecodeSources(encoded) error = %v", err)
	}
	opts := cmp.Comparer(func(a, b date.Date) bool { return a == b })
	if diff := cmp.Diff(m.AllTransactions(), again.AllTransactions(), opts); diff != "" {
		t.Errorf("transactions mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(m.Prices(), again.Prices(), opts); diff != "" {
		t.Errorf("prices mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(m.Currencies(), again.Currencies()); diff != "" {
		t.Errorf("currencies mismatch (-want +got):\n%s", diff)
	}
}
