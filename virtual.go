package pnl

import (
	"fmt"

	"github.com/etnz/pnl/date"
)

// VirtualKind tells where a virtual transaction comes from.
type VirtualKind int

const (
	// Elementary is a transaction passed through as is.
	Elementary VirtualKind = iota
	// Leg is one of the two halves of a TRANSFER or FX_TRANSFER.
	Leg
	// Approach moves realised P&L between the opening and the closing side of a matched lot pair.
	Approach
)

// LotKey identifies the inventory a trade opens or closes.
type LotKey struct {
	Portfolio  string
	Account    string
	Instrument string
}

func (k LotKey) String() string {
	return fmt.Sprintf("(%s, %s, %s)", k.Portfolio, k.Account, k.Instrument)
}

// Pairing records that a quantity of a lot was matched against another transaction.
// Delta is the matched quantity as a fraction of the owner's position.
type Pairing struct {
	ID    string  `json:"id"`
	Delta float64 `json:"delta"`

	with *VirtualTransaction
	// opener is true when with opened the lot, so the owner is the closing side.
	opener bool
}

// CostBasis is the result of lot matching under one cost method.
type CostBasis struct {
	// Multiplier is the fraction of the position already closed, in [0,1].
	Multiplier float64   `json:"multiplier"`
	ClosedBy   []Pairing `json:"closed_by,omitempty"`
	// Rolling is the signed position of the lot key after this transaction.
	Rolling float64 `json:"rolling"`
}

// VirtualTransaction is the valuation record derived from one elementary transaction.
//
// Fields are set in stages: the normaliser copies the transaction, lot
// matching sets the cost bases, and valuation sets quotes and P&L.
type VirtualTransaction struct {
	ID       string           `json:"id"`
	SourceID string           `json:"source_id"`
	Code     int              `json:"code"`
	Class    TransactionClass `json:"class"`
	Kind     VirtualKind      `json:"kind"`

	TransactionDate date.Date `json:"transaction_date"`
	AccountingDate  date.Date `json:"accounting_date"`
	CashDate        date.Date `json:"cash_date"`
	Case            int       `json:"case"`

	InstrumentID        string      `json:"instrument,omitempty"`
	Instrument          *Instrument `json:"-"`
	TransactionCurrency string      `json:"transaction_currency,omitempty"`
	SettlementCurrency  string      `json:"settlement_currency"`
	Position            float64     `json:"position"`
	TradePrice          float64     `json:"trade_price"`
	ReferenceFX         float64     `json:"reference_fx"`
	Cash                float64     `json:"cash"`
	Principal           float64     `json:"principal"`
	Carry               float64     `json:"carry"`
	Overheads           float64     `json:"overheads"`

	Portfolio         string `json:"portfolio"`
	AccountPosition   string `json:"account_position"`
	AccountCash       string `json:"account_cash"`
	AccountInterim    string `json:"account_interim"`
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

	AVCO CostBasis `json:"avco"`
	FIFO CostBasis `json:"fifo"`
	// Multiplier, ClosedBy and RollingPosition are copied from the cost basis
	// of the report cost method.
	Multiplier      float64   `json:"multiplier"`
	ClosedBy        []Pairing `json:"closed_by,omitempty"`
	RollingPosition float64   `json:"rolling_position"`

	// Quotes. FX rates are cross rates against the report currency.
	PrincipalPrice   float64 `json:"principal_price"`
	AccruedPrice     float64 `json:"accrued_price"`
	ReportCurFX      float64 `json:"report_ccy_cur_fx"`
	ReportCashHistFX float64 `json:"report_ccy_cash_hist_fx"`
	ReportAccHistFX  float64 `json:"report_ccy_acc_hist_fx"`
	PricingCurFX     float64 `json:"instr_pricing_ccy_cur_fx"`
	AccruedCurFX     float64 `json:"instr_accrued_ccy_cur_fx"`
	TrnCashHistFX    float64 `json:"trn_ccy_cash_hist_fx"`
	TrnAccHistFX     float64 `json:"trn_ccy_acc_hist_fx"`
	TrnCurFX         float64 `json:"trn_ccy_cur_fx"`
	StlCashHistFX    float64 `json:"stl_ccy_cash_hist_fx"`
	StlAccHistFX     float64 `json:"stl_ccy_acc_hist_fx"`
	StlCurFX         float64 `json:"stl_ccy_cur_fx"`

	// Valuation.
	InstrPrincipal       float64  `json:"instr_principal"`
	InstrPrincipalRes    float64  `json:"instr_principal_res"`
	InstrAccrued         float64  `json:"instr_accrued"`
	InstrAccruedRes      float64  `json:"instr_accrued_res"`
	CashRes              float64  `json:"cash_res"`
	PLFXMul              float64  `json:"pl_fx_mul"`
	PLFixedMul           float64  `json:"pl_fixed_mul"`
	PL                   PLVector `json:"pl"`
	Mismatch             float64  `json:"mismatch"`
	GrossCostRes         float64  `json:"gross_cost_res"`
	NetCostRes           float64  `json:"net_cost_res"`
	PrincipalInvestedRes float64  `json:"principal_invested_res"`
	AmountInvestedRes    float64  `json:"amount_invested_res"`
	YTM                  float64  `json:"ytm"`
	TimeInvestedDays     int      `json:"time_invested_days"`
	TimeInvested         float64  `json:"time_invested"`
	// RemainingPositionPercent is the share of the item position still held by this transaction.
	RemainingPositionPercent float64 `json:"remaining_pos_size_percent"`
	WeightedYTM              float64 `json:"weighted_ytm"`
	WeightedTimeInvested     float64 `json:"weighted_time_invested"`
}

// newVirtual copies a transaction into a virtual transaction.
func newVirtual(t *Transaction) *VirtualTransaction {
	return &VirtualTransaction{
		ID:                  t.ID,
		SourceID:            t.ID,
		Code:                t.Code,
		Class:               t.Class,
		TransactionDate:     t.dateOf(TransactionDate),
		AccountingDate:      t.AccountingDate,
		CashDate:            t.cashDate(),
		InstrumentID:        t.Instrument,
		TransactionCurrency: t.TransactionCurrency,
		SettlementCurrency:  t.SettlementCurrency,
		Position:            t.Position,
		TradePrice:          t.TradePrice,
		ReferenceFX:         t.ReferenceFX,
		Cash:                t.Cash,
		Principal:           t.Principal,
		Carry:               t.Carry,
		Overheads:           t.Overheads,
		Portfolio:           t.Portfolio,
		AccountPosition:     t.AccountPosition,
		AccountCash:         t.AccountCash,
		AccountInterim:      t.AccountInterim,
		Strategy1Position:   t.Strategy1Position,
		Strategy1Cash:       t.Strategy1Cash,
		Strategy2Position:   t.Strategy2Position,
		Strategy2Cash:       t.Strategy2Cash,
		Strategy3Position:   t.Strategy3Position,
		Strategy3Cash:       t.Strategy3Cash,
		LinkedInstrument:    t.LinkedInstrument,
		AllocationBalance:   t.AllocationBalance,
		AllocationPL:        t.AllocationPL,
		Notes:               t.Notes,
	}
}

// clone returns a shallow copy of t with fresh cost bases.
func (t *VirtualTransaction) clone() *VirtualTransaction {
	c := *t
	c.AVCO, c.FIFO = CostBasis{}, CostBasis{}
	c.ClosedBy = nil
	return &c
}

// setCase classifies t relative to the report date:
// 1 when accounted but not settled, 2 when settled but not accounted, 0 otherwise.
func (t *VirtualTransaction) setCase(rd date.Date) {
	acc, cash := t.AccountingDate, t.CashDate
	switch {
	case !acc.After(rd) && rd.Before(cash):
		t.Case = 1
	case !cash.After(rd) && rd.Before(acc):
		t.Case = 2
	default:
		t.Case = 0
	}
}

// basis returns the cost basis of a method.
func (t *VirtualTransaction) basis(m CostMethod) *CostBasis {
	if m == FIFO {
		return &t.FIFO
	}
	return &t.AVCO
}

// choose copies the cost basis of method m into the reported fields.
func (t *VirtualTransaction) choose(m CostMethod) {
	b := t.basis(m)
	t.Multiplier = b.Multiplier
	t.ClosedBy = b.ClosedBy
	t.RollingPosition = b.Rolling
}

// lotKey returns the inventory key of t, collapsing ignored dimensions.
func (t *VirtualTransaction) lotKey(o *Options) LotKey {
	return LotKey{
		Portfolio:  o.PortfolioMode.pick(t.Portfolio),
		Account:    o.AccountMode.pick(t.AccountPosition),
		Instrument: t.InstrumentID,
	}
}

// interimOr returns the account holding pending cash, account when none is set.
func (t *VirtualTransaction) interimOr(account string) string {
	if t.AccountInterim == "" {
		return account
	}
	return t.AccountInterim
}
