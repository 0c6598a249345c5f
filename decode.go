package pnl

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/etnz/pnl/date"
	"github.com/shopspring/decimal"
)

// Record kinds of a JSONL source file.
const (
	KindCurrency    = "currency"
	KindInstrument  = "instrument"
	KindAccount     = "account"
	KindTransaction = "transaction"
	KindPrice       = "price"
	KindFX          = "fx"
)

// priceRecord is a price line. Amounts are decimals to keep the written digits.
type priceRecord struct {
	Policy     string          `json:"policy"`
	Instrument string          `json:"instrument"`
	Date       date.Date       `json:"date"`
	Principal  decimal.Decimal `json:"principal"`
	Accrued    decimal.Decimal `json:"accrued"`
}

type fxRecord struct {
	Policy   string          `json:"policy"`
	Currency string          `json:"currency"`
	Date     date.Date       `json:"date"`
	Rate     decimal.Decimal `json:"rate"`
}

// DecodeSources reads a JSONL stream into a Memory source.
//
// Every non blank line is a JSON object with a "kind" field (currency,
// instrument, account, transaction, price or fx) and the fields of that
// record. Lines starting with # are comments.
//
//	{"kind":"currency","id":"USD","user_code":"USD","is_system":true}
//	{"kind":"price","instrument":"ACME","date":"2023-03-01","principal":"11"}
func DecodeSources(r io.Reader) (*Memory, error) {
	m := NewMemory()
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for n := 1; s.Scan(); n++ {
		line := bytes.TrimSpace(s.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		if err := m.decodeLine(line); err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("reading sources: %w", err)
	}
	return m, nil
}

func (m *Memory) decodeLine(line []byte) error {
	var head struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(line, &head); err != nil {
		return err
	}
	switch head.Kind {
	case KindCurrency:
		var c Currency
		if err := json.Unmarshal(line, &c); err != nil {
			return err
		}
		return m.AddCurrency(c)
	case KindInstrument:
		var i Instrument
		if err := json.Unmarshal(line, &i); err != nil {
			return err
		}
		m.AddInstrument(i)
	case KindAccount:
		var a Account
		if err := json.Unmarshal(line, &a); err != nil {
			return err
		}
		m.AddAccount(a)
	case KindTransaction:
		var t Transaction
		if err := json.Unmarshal(line, &t); err != nil {
			return err
		}
		if t.ID == "" {
			return fmt.Errorf("transaction without id")
		}
		m.AddTransactions(t)
	case KindPrice:
		var p priceRecord
		if err := json.Unmarshal(line, &p); err != nil {
			return err
		}
		m.AddPrice(p.Policy, p.Instrument, p.Date, Price{p.Principal.InexactFloat64(), p.Accrued.InexactFloat64()})
	case KindFX:
		var f fxRecord
		if err := json.Unmarshal(line, &f); err != nil {
			return err
		}
		m.AddRate(f.Policy, f.Currency, f.Date, f.Rate.InexactFloat64())
	default:
		return fmt.Errorf("unknown record kind %q", head.Kind)
	}
	return nil
}

// EncodeSources writes m as a JSONL stream readable by DecodeSources.
func EncodeSources(w io.Writer, m *Memory) error {
	enc := json.NewEncoder(w)
	write := func(kind string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(data, &fields); err != nil {
			return err
		}
		fields["kind"], _ = json.Marshal(kind)
		return enc.Encode(fields)
	}
	for _, c := range m.Currencies() {
		if err := write(KindCurrency, c); err != nil {
			return err
		}
	}
	for _, i := range m.Instruments() {
		if err := write(KindInstrument, i); err != nil {
			return err
		}
	}
	for _, a := range m.Accounts() {
		if err := write(KindAccount, a); err != nil {
			return err
		}
	}
	for _, t := range m.AllTransactions() {
		if err := write(KindTransaction, t); err != nil {
			return err
		}
	}
	for _, p := range m.Prices() {
		rec := priceRecord{p.Policy, p.Instrument, p.Date, decimal.NewFromFloat(p.Price.Principal), decimal.NewFromFloat(p.Price.Accrued)}
		if err := write(KindPrice, rec); err != nil {
			return err
		}
	}
	for _, r := range m.Rates() {
		if err := write(KindFX, fxRecord{r.Policy, r.Currency, r.Date, decimal.NewFromFloat(r.Rate)}); err != nil {
			return err
		}
	}
	return nil
}
