package pnl

import (
	"github.com/etnz/pnl/date"
)

// Currency is a currency known to the engine.
//
// The system currency is the one every FX rate is expressed in, its rate is always 1.
type Currency struct {
	ID       string `json:"id"`
	UserCode string `json:"user_code"`
	IsSystem bool   `json:"is_system,omitempty"`
}

// AccrualSchedule describes a coupon stream of an instrument.
//
// Size is the yearly coupon expressed in price units (for a bond priced per
// 100 of nominal, a 5% coupon has a Size of 5). Coupons are paid every
// PeriodMonths months starting on FirstPayment. The coupon accrues from
// Start until End (exclusive) and the last one is paid on End.
type AccrualSchedule struct {
	Start        date.Date `json:"start"`
	FirstPayment date.Date `json:"first_payment"`
	End          date.Date `json:"end"`
	Size         float64   `json:"size"`
	PeriodMonths int       `json:"period_months"`
}

// FactorSchedule sets the outstanding notional factor from an effective date.
type FactorSchedule struct {
	Effective date.Date `json:"effective"`
	Factor    float64   `json:"factor"`
}

// Instrument is the metadata of a traded instrument.
type Instrument struct {
	ID                string            `json:"id"`
	UserCode          string            `json:"user_code"`
	PricingCurrency   string            `json:"pricing_currency"`
	AccruedCurrency   string            `json:"accrued_currency"`
	PriceMultiplier   float64           `json:"price_multiplier"`
	AccruedMultiplier float64           `json:"accrued_multiplier"`
	Maturity          date.Date         `json:"maturity"`
	MaturityPrice     float64           `json:"maturity_price"`
	Accruals          []AccrualSchedule `json:"accruals,omitempty"`
	Factors           []FactorSchedule  `json:"factors,omitempty"`
}

// priceMultiplier returns the price multiplier, 1 when unset.
func (i *Instrument) priceMultiplier() float64 {
	if i.PriceMultiplier == 0 {
		return 1
	}
	return i.PriceMultiplier
}

// accruedMultiplier returns the accrued multiplier, 1 when unset.
func (i *Instrument) accruedMultiplier() float64 {
	if i.AccruedMultiplier == 0 {
		return 1
	}
	return i.AccruedMultiplier
}

// Account is a booking account.
type Account struct {
	ID       string `json:"id"`
	UserCode string `json:"user_code"`
	// ShowTransactionDetails asks reports to keep one item per pending
	// transaction on this account instead of a single aggregated cash line.
	ShowTransactionDetails bool `json:"show_transaction_details,omitempty"`
}

// Transaction is an input transaction record. The engine never mutates it.
type Transaction struct {
	ID    string           `json:"id"`
	Code  int              `json:"code"`
	Class TransactionClass `json:"class"`

	IsCanceled bool `json:"is_canceled,omitempty"`
	IsDeleted  bool `json:"is_deleted,omitempty"`

	TransactionDate date.Date `json:"transaction_date"`
	AccountingDate  date.Date `json:"accounting_date"`
	CashDate        date.Date `json:"cash_date"`

	Instrument          string  `json:"instrument,omitempty"`
	TransactionCurrency string  `json:"transaction_currency,omitempty"`
	Position            float64 `json:"position"`
	TradePrice          float64 `json:"trade_price,omitempty"`
	ReferenceFX         float64 `json:"reference_fx"`

	SettlementCurrency string  `json:"settlement_currency"`
	Cash               float64 `json:"cash"`
	Principal          float64 `json:"principal"`
	Carry              float64 `json:"carry,omitempty"`
	Overheads          float64 `json:"overheads,omitempty"`

	Portfolio         string `json:"portfolio"`
	AccountPosition   string `json:"account_position"`
	AccountCash       string `json:"account_cash"`
	AccountInterim    string `json:"account_interim,omitempty"`
	Strategy1Position string `json:"strategy1_position,omitempty"`
	Strategy1Cash     string `json:"strategy1_cash,omitempty"`
	Strategy2Position string `json:"strategy2_position,omitempty"`
	Strategy2Cash     string `json:"strategy2_cash,omitempty"`
	Strategy3Position string `json:"strategy3_position,omitempty"`
	Strategy3Cash     string `json:"strategy3_cash,omitempty"`
	LinkedInstrument  string `json:"linked_instrument,omitempty"`
	AllocationBalance string `json:"allocation_balance,omitempty"`
	AllocationPL      string `json:"allocation_pl,omitempty"`
	Notes             string `json:"notes,omitempty"`
}

// dateOf returns the date of t used to sort and cut transactions.
func (t *Transaction) dateOf(field DateField) date.Date {
	switch field {
	case AccountingDate:
		return t.AccountingDate
	case CashDate:
		return t.cashDate()
	default:
		if t.TransactionDate.IsZero() {
			return date.Min(t.AccountingDate, t.cashDate())
		}
		return t.TransactionDate
	}
}

// cashDate returns the cash date, or the accounting date when none is set.
func (t *Transaction) cashDate() date.Date {
	if t.CashDate.IsZero() {
		return t.AccountingDate
	}
	return t.CashDate
}
