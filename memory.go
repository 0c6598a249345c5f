package pnl

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/etnz/pnl/date"
)

// seriesKey identifies a quote series.
type seriesKey struct{ policy, id string }

// Memory is an in-memory implementation of every port.
//
// Quotes resolve to the latest observation on or before the requested date
// within the same pricing policy.
type Memory struct {
	system       string
	currencies   map[string]*Currency
	instruments  map[string]*Instrument
	accounts     map[string]*Account
	transactions []Transaction
	prices       map[seriesKey]*date.History[Price]
	rates        map[seriesKey]*date.History[float64]
}

// NewMemory returns an empty in-memory source.
func NewMemory() *Memory {
	return &Memory{
		currencies:  make(map[string]*Currency),
		instruments: make(map[string]*Instrument),
		accounts:    make(map[string]*Account),
		prices:      make(map[seriesKey]*date.History[Price]),
		rates:       make(map[seriesKey]*date.History[float64]),
	}
}

// Sources returns the ports backed by m.
func (m *Memory) Sources() Sources {
	return Sources{Transactions: m, Instruments: m, Currencies: m, Accounts: m, Prices: m, FX: m}
}

// AddCurrency registers a currency. Adding a second system currency is an error.
func (m *Memory) AddCurrency(c Currency) error {
	if c.IsSystem {
		if m.system != "" && m.system != c.ID {
			return fmt.Errorf("system currency is already %q, cannot add %q", m.system, c.ID)
		}
		m.system = c.ID
	}
	m.currencies[c.ID] = &c
	return nil
}

// AddInstrument registers an instrument.
func (m *Memory) AddInstrument(i Instrument) { m.instruments[i.ID] = &i }

// AddAccount registers an account.
func (m *Memory) AddAccount(a Account) { m.accounts[a.ID] = &a }

// AddTransactions appends transactions.
func (m *Memory) AddTransactions(ts ...Transaction) { m.transactions = append(m.transactions, ts...) }

// AddPrice records the price of an instrument on a day.
func (m *Memory) AddPrice(policy, instrument string, on date.Date, p Price) {
	k := seriesKey{policy, instrument}
	h, ok := m.prices[k]
	if !ok {
		h = new(date.History[Price])
		m.prices[k] = h
	}
	h.Append(on, p)
}

// AddRate records the FX rate of a currency on a day.
func (m *Memory) AddRate(policy, currency string, on date.Date, rate float64) {
	k := seriesKey{policy, currency}
	h, ok := m.rates[k]
	if !ok {
		h = new(date.History[float64])
		m.rates[k] = h
	}
	h.Append(on, rate)
}

// Transactions implements TransactionSource.
func (m *Memory) Transactions(ctx context.Context, q Query) ([]Transaction, error) {
	var res []Transaction
	for i := range m.transactions {
		if q.Match(&m.transactions[i]) {
			res = append(res, m.transactions[i])
		}
	}
	return res, nil
}

// Instrument implements InstrumentSource.
func (m *Memory) Instrument(ctx context.Context, id string) (*Instrument, error) {
	if i, ok := m.instruments[id]; ok {
		return i, nil
	}
	return nil, fmt.Errorf("instrument %q: %w", id, ErrNotFound)
}

// Currency implements CurrencySource.
func (m *Memory) Currency(ctx context.Context, id string) (*Currency, error) {
	if c, ok := m.currencies[id]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("currency %q: %w", id, ErrNotFound)
}

// SystemCurrency implements CurrencySource.
func (m *Memory) SystemCurrency(ctx context.Context) (*Currency, error) {
	if m.system == "" {
		return nil, fmt.Errorf("system currency: %w", ErrNotFound)
	}
	return m.currencies[m.system], nil
}

// Account implements AccountSource.
func (m *Memory) Account(ctx context.Context, id string) (*Account, error) {
	if a, ok := m.accounts[id]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("account %q: %w", id, ErrNotFound)
}

// Price implements PriceSource.
func (m *Memory) Price(ctx context.Context, policy, instrument string, on date.Date) (Price, error) {
	if h, ok := m.prices[seriesKey{policy, instrument}]; ok {
		if p, ok := h.ValueAsOf(on); ok {
			return p, nil
		}
	}
	return Price{}, fmt.Errorf("price of %q on %s: %w", instrument, on, ErrNotFound)
}

// Rate implements FXSource.
func (m *Memory) Rate(ctx context.Context, policy, currency string, on date.Date) (float64, error) {
	if h, ok := m.rates[seriesKey{policy, currency}]; ok {
		if r, ok := h.ValueAsOf(on); ok {
			return r, nil
		}
	}
	return 0, fmt.Errorf("fx rate of %q on %s: %w", currency, on, ErrNotFound)
}

// Currencies returns every currency sorted by id.
func (m *Memory) Currencies() []Currency { return values(m.currencies) }

// Instruments returns every instrument sorted by id.
func (m *Memory) Instruments() []Instrument { return values(m.instruments) }

// Accounts returns every account sorted by id.
func (m *Memory) Accounts() []Account { return values(m.accounts) }

// AllTransactions returns every transaction in insertion order.
func (m *Memory) AllTransactions() []Transaction { return slices.Clone(m.transactions) }

// PriceObservation is one recorded price.
type PriceObservation struct {
	Policy, Instrument string
	Date               date.Date
	Price              Price
}

// RateObservation is one recorded FX rate.
type RateObservation struct {
	Policy, Currency string
	Date             date.Date
	Rate             float64
}

// Prices returns every recorded price, series by series.
func (m *Memory) Prices() []PriceObservation {
	var res []PriceObservation
	for _, k := range sortedKeys(m.prices) {
		for on, p := range m.prices[k].Values() {
			res = append(res, PriceObservation{k.policy, k.id, on, p})
		}
	}
	return res
}

// Rates returns every recorded FX rate, series by series.
func (m *Memory) Rates() []RateObservation {
	var res []RateObservation
	for _, k := range sortedKeys(m.rates) {
		for on, r := range m.rates[k].Values() {
			res = append(res, RateObservation{k.policy, k.id, on, r})
		}
	}
	return res
}

func values[T any](m map[string]*T) []T {
	res := make([]T, 0, len(m))
	for _, id := range slices.Sorted(maps.Keys(m)) {
		res = append(res, *m[id])
	}
	return res
}

func sortedKeys[V any](m map[seriesKey]V) []seriesKey {
	return slices.SortedFunc(maps.Keys(m), func(a, b seriesKey) int {
		if a.policy != b.policy {
			return cmp.Compare(a.policy, b.policy)
		}
		return cmp.Compare(a.id, b.id)
	})
}
