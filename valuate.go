package pnl

import (
	"context"
	"math"

	"github.com/etnz/pnl/date"
)

// valuate prices every virtual transaction at report date rd and computes
// its P&L vector. It returns vts followed by the approach adjustments of the
// report cost method.
func (bc *BuildContext) valuate(ctx context.Context, vts []*VirtualTransaction, rd date.Date) ([]*VirtualTransaction, error) {
	for _, v := range vts {
		if err := ctx.Err(); err != nil {
			return nil, cancelled("valuation", err)
		}
		bc.quote(ctx, v, rd)
		switch {
		case v.Class.isCashFlow():
			v.valuateCashFlow()
		case v.Class == FXTrade:
			v.valuateFXTrade()
		default:
			v.valuateTrade(rd)
		}
	}
	return append(vts, bc.approach(vts)...), nil
}

// quote resolves the instrument and every quote v needs, as cross rates
// against the report currency.
func (bc *BuildContext) quote(ctx context.Context, v *VirtualTransaction, rd date.Date) {
	report := bc.Options.ReportCurrency
	fx := func(ccy string, on date.Date) float64 { return bc.FX.Cross(ctx, ccy, report, on) }

	v.ReportCurFX = bc.FX.Get(ctx, report, rd)
	v.ReportCashHistFX = bc.FX.Get(ctx, report, v.CashDate)
	v.ReportAccHistFX = bc.FX.Get(ctx, report, v.AccountingDate)

	if v.InstrumentID != "" {
		v.Instrument = bc.instrument(ctx, v.InstrumentID)
	}
	if i := v.Instrument; i != nil {
		q := bc.Prices.Get(ctx, i.ID, rd)
		v.PrincipalPrice = q.Principal
		v.AccruedPrice = q.Accrued
		if v.AccruedPrice == 0 && len(i.Accruals) > 0 {
			v.AccruedPrice = i.accruedPrice(rd)
		}
		v.PricingCurFX = fx(i.PricingCurrency, rd)
		accrued := i.AccruedCurrency
		if accrued == "" {
			accrued = i.PricingCurrency
		}
		v.AccruedCurFX = fx(accrued, rd)
	}

	trn := v.TransactionCurrency
	if trn == "" {
		trn = v.SettlementCurrency
	}
	v.TrnCashHistFX = fx(trn, v.CashDate)
	v.TrnAccHistFX = fx(trn, v.AccountingDate)
	v.TrnCurFX = fx(trn, rd)
	v.StlCashHistFX = fx(v.SettlementCurrency, v.CashDate)
	v.StlAccHistFX = fx(v.SettlementCurrency, v.AccountingDate)
	v.StlCurFX = fx(v.SettlementCurrency, rd)

	if v.ReferenceFX == 0 {
		// Market rate between the settlement and the transaction currency.
		v.ReferenceFX = div(v.StlAccHistFX, v.TrnAccHistFX)
	}
	v.PLFXMul = v.StlCurFX - v.ReferenceFX*v.TrnAccHistFX
	v.PLFixedMul = v.ReferenceFX * v.TrnAccHistFX
	v.CashRes = finite(v.Cash * v.StlCurFX)
}

// valuateTrade values BUY, SELL, INSTRUMENT_PL and TRANSACTION_PL.
func (v *VirtualTransaction) valuateTrade(rd date.Date) {
	pm, am := 1.0, 1.0
	if v.Instrument != nil {
		pm, am = v.Instrument.priceMultiplier(), v.Instrument.accruedMultiplier()
	}
	v.InstrPrincipal = finite(v.Position * pm * v.PrincipalPrice)
	v.InstrPrincipalRes = finite(v.InstrPrincipal * v.PricingCurFX)
	v.InstrAccrued = finite(v.Position * am * v.AccruedPrice)
	v.InstrAccruedRes = finite(v.InstrAccrued * v.AccruedCurFX)

	c := components(v.Principal, v.Carry, v.Overheads)
	v.PL = split(Decomposition{
		Full:  c.scale(v.StlCurFX),
		FX:    c.scale(v.PLFXMul),
		Fixed: c.scale(v.PLFixedMul),
	}, v.Multiplier)
	v.Mismatch = finite(v.Cash - c.Total)

	if !v.Class.isTrade() {
		return
	}
	open := 1 - v.Multiplier
	v.PrincipalInvestedRes = finite(v.Principal * v.PLFixedMul * open)
	v.AmountInvestedRes = finite(c.Total * v.PLFixedMul * open)
	v.GrossCostRes = div(-v.Principal*v.PLFixedMul, v.Position*pm)
	v.NetCostRes = div(-(v.Principal+v.Overheads)*v.PLFixedMul, v.Position*pm)
	v.TimeInvestedDays = rd.Sub(v.AccountingDate)
	v.TimeInvested = float64(v.TimeInvestedDays) / 365
	if i := v.Instrument; i != nil && len(i.Accruals) > 0 {
		v.YTM = i.yieldToMaturity(v.AccountingDate, v.TradePrice)
	}
}

// valuateCashFlow values CASH_INFLOW and CASH_OUTFLOW: their only P&L is the
// FX variation of the amount since the accounting date.
func (v *VirtualTransaction) valuateCashFlow() {
	var d Decomposition
	d.FX = components(v.Cash*v.PLFXMul, 0, 0)
	v.PL = split(d, 1)
	v.Mismatch = 0
}

// valuateFXTrade values an FX_TRADE as two currency legs: Position units of
// the transaction currency against the cash components in the settlement
// currency. It has no fixed decomposition.
func (v *VirtualTransaction) valuateFXTrade() {
	bought := v.Position * v.TrnCurFX
	boughtFX := v.Position * (v.TrnCurFX - v.TrnAccHistFX)
	stlFX := v.StlCurFX - v.StlAccHistFX
	var d Decomposition
	d.Full = components(bought+v.Principal*v.StlCurFX, v.Carry*v.StlCurFX, v.Overheads*v.StlCurFX)
	d.FX = components(boughtFX+v.Principal*stlFX, v.Carry*stlFX, v.Overheads*stlFX)
	v.PL = split(d, 1)
	v.Mismatch = finite(v.Cash - (v.Principal + v.Carry + v.Overheads))
}

// approach returns, for every pairing of the report cost method, the two
// adjustments that split the realised P&L R of the matched quantity between
// the groups of both sides: the opening side keeps ApproachBeginMultiplier
// of R and the closing side ApproachEndMultiplier of R.
func (bc *BuildContext) approach(vts []*VirtualTransaction) []*VirtualTransaction {
	begin, end := bc.Options.ApproachBeginMultiplier, bc.Options.ApproachEndMultiplier
	var adjustments []*VirtualTransaction
	for _, closer := range vts {
		if !closer.Class.isTrade() || closer.Kind == Approach {
			continue
		}
		for _, p := range closer.ClosedBy {
			if !p.opener || p.with == nil {
				continue
			}
			opener := p.with
			qty := math.Abs(closer.Position) * p.Delta
			cost := opener.PL.Total.scale(div(qty, math.Abs(opener.Position)))
			proceeds := closer.PL.Total.scale(div(qty, math.Abs(closer.Position)))
			// The opening group holds cost and the closing group holds proceeds.
			moved := proceeds.scale(begin).add(cost.scale(-end))

			id := opener.ID + ">" + closer.ID
			adjustments = append(adjustments,
				adjustment(opener, closer.Class, id+"/a1", moved),
				adjustment(closer, opener.Class, id+"/a2", moved.scale(-1)))
		}
	}
	return adjustments
}

// adjustment returns a zero position copy of v booking d as realised P&L.
func adjustment(v *VirtualTransaction, class TransactionClass, id string, d Decomposition) *VirtualTransaction {
	a := v.clone()
	a.ID, a.Class, a.Kind = id, class, Approach
	a.Position, a.Cash, a.Principal, a.Carry, a.Overheads = 0, 0, 0, 0, 0
	a.CashRes, a.InstrPrincipal, a.InstrPrincipalRes, a.InstrAccrued, a.InstrAccruedRes = 0, 0, 0, 0, 0
	a.Mismatch, a.YTM, a.GrossCostRes, a.NetCostRes = 0, 0, 0, 0
	a.PrincipalInvestedRes, a.AmountInvestedRes = 0, 0
	a.Multiplier, a.AVCO.Multiplier, a.FIFO.Multiplier = 1, 1, 1
	a.PL = PLVector{Total: d, Closed: d}
	return a
}
