package pnl

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/etnz/pnl/customfield"
	"github.com/etnz/pnl/date"
)

// ItemType is the kind of a report item.
type ItemType int

const (
	InstrumentItem ItemType = iota + 1
	CurrencyItem
	CashInOutItem
	TransactionPLItem
	FXTradeItem
	MismatchItem
	AllocationItem
	SummaryItem
)

var itemTypeNames = map[ItemType]string{
	InstrumentItem:    "INSTRUMENT",
	CurrencyItem:      "CURRENCY",
	CashInOutItem:     "CASH_IN_OUT",
	TransactionPLItem: "TRANSACTION_PL",
	FXTradeItem:       "FX_TRADE",
	MismatchItem:      "MISMATCH",
	AllocationItem:    "ALLOCATION",
	SummaryItem:       "SUMMARY",
}

func (t ItemType) String() string {
	if s, ok := itemTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("ItemType(%d)", int(t))
}

func (t ItemType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// ItemSubtype tells whether an instrument item carries the closed or the
// opened part of a position, or both.
type ItemSubtype int

const (
	Whole ItemSubtype = iota
	ClosedPart
	OpenedPart
)

func (s ItemSubtype) String() string {
	switch s {
	case ClosedPart:
		return "CLOSED"
	case OpenedPart:
		return "OPENED"
	default:
		return ""
	}
}

func (s ItemSubtype) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ItemGroup is the section of a report an item is listed in.
type ItemGroup string

const (
	GroupClosed       ItemGroup = "CLOSED"
	GroupOpened       ItemGroup = "OPENED"
	GroupFXVariations ItemGroup = "FX_VARIATIONS"
	GroupFXTrades     ItemGroup = "FX_TRADES"
	GroupMismatches   ItemGroup = "MISMATCHES"
	GroupOther        ItemGroup = "OTHER"
	GroupAllocations  ItemGroup = "ALLOCATIONS"
)

// ItemKey identifies a report item. Collapsed dimensions are empty.
type ItemKey struct {
	Type              ItemType    `json:"type"`
	Subtype           ItemSubtype `json:"subtype,omitempty"`
	Allocation        string      `json:"allocation,omitempty"`
	Portfolio         string      `json:"portfolio,omitempty"`
	Account           string      `json:"account,omitempty"`
	Strategy1         string      `json:"strategy1,omitempty"`
	Strategy2         string      `json:"strategy2,omitempty"`
	Strategy3         string      `json:"strategy3,omitempty"`
	Instrument        string      `json:"instrument,omitempty"`
	Currency          string      `json:"currency,omitempty"`
	MismatchPortfolio string      `json:"mismatch_portfolio,omitempty"`
	MismatchAccount   string      `json:"mismatch_account,omitempty"`
	// Detail is the source transaction id of a cash item shown per transaction.
	Detail string `json:"detail,omitempty"`
}

func (k ItemKey) compare(o ItemKey) int {
	return cmp.Or(
		cmp.Compare(k.Type, o.Type),
		strings.Compare(k.Allocation, o.Allocation),
		strings.Compare(k.Portfolio, o.Portfolio),
		strings.Compare(k.Account, o.Account),
		strings.Compare(k.Strategy1, o.Strategy1),
		strings.Compare(k.Strategy2, o.Strategy2),
		strings.Compare(k.Strategy3, o.Strategy3),
		strings.Compare(k.Instrument, o.Instrument),
		strings.Compare(k.Currency, o.Currency),
		strings.Compare(k.MismatchPortfolio, o.MismatchPortfolio),
		strings.Compare(k.MismatchAccount, o.MismatchAccount),
		strings.Compare(k.Detail, o.Detail),
		cmp.Compare(k.Subtype, o.Subtype),
	)
}

// ReportItem is one line of a balance or P&L report.
//
// Res fields are in report currency, Loc fields in the instrument pricing
// currency.
type ReportItem struct {
	ItemKey
	Group ItemGroup `json:"group,omitempty"`

	Position       float64 `json:"position"`
	MarketValueRes float64 `json:"market_value_res"`
	MarketValueLoc float64 `json:"market_value_loc"`
	PrincipalPrice float64 `json:"principal_price,omitempty"`
	AccruedPrice   float64 `json:"accrued_price,omitempty"`
	PricingCurFX   float64 `json:"pricing_ccy_cur_fx,omitempty"`

	GrossCostRes         float64 `json:"gross_cost_res,omitempty"`
	NetCostRes           float64 `json:"net_cost_res,omitempty"`
	GrossCostLoc         float64 `json:"gross_cost_loc,omitempty"`
	NetCostLoc           float64 `json:"net_cost_loc,omitempty"`
	PrincipalInvestedRes float64 `json:"principal_invested_res,omitempty"`
	AmountInvestedRes    float64 `json:"amount_invested_res,omitempty"`
	PosReturn            float64 `json:"pos_return,omitempty"`
	NetPosReturn         float64 `json:"net_pos_return,omitempty"`

	YTM              float64 `json:"ytm,omitempty"`
	ModifiedDuration float64 `json:"modified_duration,omitempty"`
	TimeInvestedDays int     `json:"time_invested_days,omitempty"`
	DailyPriceChange float64 `json:"daily_price_change,omitempty"`
	MTDPriceChange   float64 `json:"mtd_price_change,omitempty"`

	Mismatch float64  `json:"mismatch,omitempty"`
	PL       PLVector `json:"pl"`
	PLLoc    PLVector `json:"pl_loc"`

	Transactions []string            `json:"transactions,omitempty"`
	CustomFields []customfield.Value `json:"custom_fields,omitempty"`

	instrument *Instrument
	currency   *Currency
	account    *Account

	// accumulators
	costPrincipal float64
	costNet       float64
	openedOn      date.Date
}

func (it *ReportItem) addTransaction(id string) {
	if len(it.Transactions) > 0 && it.Transactions[len(it.Transactions)-1] == id {
		return
	}
	it.Transactions = append(it.Transactions, id)
}

// isEmpty reports whether the item has no position, no value and no P&L.
func (it *ReportItem) isEmpty() bool {
	return isZero(it.Position) && isZero(it.MarketValueRes) && isZero(it.Mismatch) && it.PL.IsZero()
}

func (it *ReportItem) round() {
	for _, f := range []*float64{
		&it.Position, &it.MarketValueRes, &it.MarketValueLoc, &it.PrincipalPrice, &it.AccruedPrice,
		&it.PricingCurFX, &it.GrossCostRes, &it.NetCostRes, &it.GrossCostLoc, &it.NetCostLoc,
		&it.PrincipalInvestedRes, &it.AmountInvestedRes, &it.PosReturn, &it.NetPosReturn,
		&it.YTM, &it.ModifiedDuration, &it.DailyPriceChange, &it.MTDPriceChange, &it.Mismatch,
	} {
		*f = round(*f)
	}
	it.PL = it.PL.round()
	it.PLLoc = it.PLLoc.round()
}

// Fields returns the item as a tree of snake_case names, the way custom
// field expressions see it. Instrument, currency and account are replaced by
// their metadata when known.
func (it *ReportItem) Fields() map[string]any {
	data, err := json.Marshal(it)
	if err != nil {
		return map[string]any{}
	}
	fields := make(map[string]any)
	if err := json.Unmarshal(data, &fields); err != nil {
		return map[string]any{}
	}
	delete(fields, "custom_fields")
	delete(fields, "transactions")
	if i := it.instrument; i != nil {
		fields["instrument"] = map[string]any{
			"id":               i.ID,
			"user_code":        i.UserCode,
			"pricing_currency": i.PricingCurrency,
			"accrued_currency": i.AccruedCurrency,
			"price_multiplier": i.priceMultiplier(),
			"maturity":         i.Maturity.String(),
		}
	}
	if c := it.currency; c != nil {
		fields["currency"] = map[string]any{"id": c.ID, "user_code": c.UserCode}
	}
	if a := it.account; a != nil {
		fields["account"] = map[string]any{"id": a.ID, "user_code": a.UserCode}
	}
	return fields
}

// ItemAttributes lists every name a custom field expression may access on an item.
func ItemAttributes() []string {
	sample := &ReportItem{
		ItemKey:    ItemKey{Subtype: OpenedPart, Allocation: "x", Portfolio: "x", Account: "x", Strategy1: "x", Strategy2: "x", Strategy3: "x", MismatchPortfolio: "x", MismatchAccount: "x", Detail: "x"},
		instrument: &Instrument{},
		currency:   &Currency{},
		account:    &Account{},
	}
	var names []string
	var walk func(any)
	walk = func(v any) {
		m, ok := v.(map[string]any)
		if !ok {
			return
		}
		for k, child := range m {
			names = append(names, k)
			walk(child)
		}
	}
	walk(sample.Fields())
	slices.Sort(names)
	return slices.Compact(names)
}

// sortItems orders items by key.
func sortItems(items []*ReportItem) {
	slices.SortStableFunc(items, func(a, b *ReportItem) int { return a.ItemKey.compare(b.ItemKey) })
}

// InvestedItem sums the external cash flows of a (portfolio, account, currency).
type InvestedItem struct {
	Portfolio string `json:"portfolio,omitempty"`
	Account   string `json:"account,omitempty"`
	Currency  string `json:"currency"`
	// Amount is in the flow currency.
	Amount float64 `json:"amount"`
	// AmountHistRes is the amount at the rates of the accounting dates.
	AmountHistRes float64  `json:"amount_hist_res"`
	AmountRes     float64  `json:"amount_res"`
	Transactions  []string `json:"transactions"`
}
