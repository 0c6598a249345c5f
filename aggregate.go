package pnl

import (
	"context"
	"maps"
	"slices"

	"github.com/etnz/pnl/date"
)

// aggregator groups valuated virtual transactions into report items.
type aggregator struct {
	bc *BuildContext
	o  *Options
	rd date.Date
	// detailed puts the allocation in item keys.
	detailed bool
	items    map[ItemKey]*ReportItem
	openers  map[ItemKey][]*VirtualTransaction
}

// aggregate returns the items of vts at report date rd, closed and unrounded.
func (bc *BuildContext) aggregate(ctx context.Context, vts []*VirtualTransaction, rd date.Date, detailed bool) (map[ItemKey]*ReportItem, error) {
	a := &aggregator{
		bc:       bc,
		o:        &bc.Options,
		rd:       rd,
		detailed: detailed,
		items:    make(map[ItemKey]*ReportItem),
		openers:  make(map[ItemKey][]*VirtualTransaction),
	}
	for _, v := range vts {
		if err := ctx.Err(); err != nil {
			return nil, cancelled("aggregation", err)
		}
		a.add(ctx, v)
	}
	for _, key := range slices.SortedFunc(maps.Keys(a.items), ItemKey.compare) {
		if err := ctx.Err(); err != nil {
			return nil, cancelled("aggregation", err)
		}
		a.close(ctx, a.items[key])
	}
	return a.items, nil
}

func (a *aggregator) allocation(v *VirtualTransaction) string {
	if !a.detailed {
		return ""
	}
	if a.o.Type == PL {
		return a.o.AllocationMode.pick(v.AllocationPL)
	}
	return a.o.AllocationMode.pick(v.AllocationBalance)
}

// positionKey returns the key of v on its position side.
func (a *aggregator) positionKey(t ItemType, v *VirtualTransaction) ItemKey {
	o := a.o
	return ItemKey{
		Type:       t,
		Allocation: a.allocation(v),
		Portfolio:  o.PortfolioMode.pick(v.Portfolio),
		Account:    o.AccountMode.pick(v.AccountPosition),
		Strategy1:  o.Strategy1Mode.pick(v.Strategy1Position),
		Strategy2:  o.Strategy2Mode.pick(v.Strategy2Position),
		Strategy3:  o.Strategy3Mode.pick(v.Strategy3Position),
		Instrument: v.InstrumentID,
	}
}

// strategies of one side of a transaction.
type strategies [3]string

func (v *VirtualTransaction) positionStrategies() strategies {
	return strategies{v.Strategy1Position, v.Strategy2Position, v.Strategy3Position}
}

func (v *VirtualTransaction) cashStrategies() strategies {
	return strategies{v.Strategy1Cash, v.Strategy2Cash, v.Strategy3Cash}
}

// cashKey returns the key of an amount of currency on account.
func (a *aggregator) cashKey(t ItemType, v *VirtualTransaction, account, currency string, s strategies) ItemKey {
	o := a.o
	return ItemKey{
		Type:       t,
		Allocation: a.allocation(v),
		Portfolio:  o.PortfolioMode.pick(v.Portfolio),
		Account:    o.AccountMode.pick(account),
		Strategy1:  o.Strategy1Mode.pick(s[0]),
		Strategy2:  o.Strategy2Mode.pick(s[1]),
		Strategy3:  o.Strategy3Mode.pick(s[2]),
		Currency:   currency,
	}
}

// item returns the item of key, creating it with its metadata if needed.
func (a *aggregator) item(ctx context.Context, key ItemKey, group ItemGroup) *ReportItem {
	if it, ok := a.items[key]; ok {
		return it
	}
	it := &ReportItem{ItemKey: key, Group: group}
	if key.Instrument != "" {
		it.instrument = a.bc.instrument(ctx, key.Instrument)
	}
	if key.Currency != "" {
		it.currency = a.bc.currency(ctx, key.Currency)
	}
	if key.Account != "" {
		it.account = a.bc.account(ctx, key.Account)
	}
	a.items[key] = it
	return it
}

// add books v into the items it contributes to.
//
// A transaction is accounted unless it is in case 2 (settled, not accounted
// yet): only accounted transactions contribute positions and P&L.
func (a *aggregator) add(ctx context.Context, v *VirtualTransaction) {
	accounted := v.Case != 2
	switch {
	case v.Class.isCashFlow():
		if accounted {
			key := a.cashKey(CashInOutItem, v, v.AccountCash, v.SettlementCurrency, v.cashStrategies())
			it := a.item(ctx, key, GroupFXVariations)
			it.PL = it.PL.add(v.PL)
			it.addTransaction(v.SourceID)
		}
		a.cash(ctx, v, v.SettlementCurrency, v.AccountCash, v.Cash, v.cashStrategies())
		return
	case v.Class == FXTrade:
		if accounted {
			key := a.positionKey(FXTradeItem, v)
			key.Instrument, key.Currency = "", v.TransactionCurrency
			it := a.item(ctx, key, GroupFXTrades)
			it.PL = it.PL.add(v.PL)
			it.addTransaction(v.SourceID)
		}
		a.cash(ctx, v, v.TransactionCurrency, v.AccountPosition, v.Position, v.positionStrategies())
		a.cash(ctx, v, v.SettlementCurrency, v.AccountCash, v.Cash, v.cashStrategies())
	case v.Class == TransactionPL:
		if accounted {
			it := a.item(ctx, a.positionKey(TransactionPLItem, v), GroupOther)
			it.PL = it.PL.add(v.PL)
			it.addTransaction(v.SourceID)
		}
		a.cash(ctx, v, v.SettlementCurrency, v.AccountCash, v.Cash, v.cashStrategies())
	default:
		if accounted {
			a.position(ctx, v)
		}
		if v.Kind != Approach {
			a.cash(ctx, v, v.SettlementCurrency, v.AccountCash, v.Cash, v.cashStrategies())
		}
	}
	if accounted && a.o.Type == PL && v.Kind != Approach && !isZero(v.Mismatch) {
		a.mismatch(ctx, v)
	}
}

// position books the instrument side of a trade.
func (a *aggregator) position(ctx context.Context, v *VirtualTransaction) {
	key := a.positionKey(InstrumentItem, v)
	it := a.item(ctx, key, GroupOpened)
	it.PL = it.PL.add(v.PL)
	if v.Kind != Approach {
		it.addTransaction(v.SourceID)
	}
	if !v.Class.isTrade() {
		return
	}
	open := 1 - v.Multiplier
	remaining := v.Position * open
	it.Position += remaining
	it.costPrincipal += v.Principal * v.PLFixedMul * open
	it.costNet += (v.Principal + v.Overheads) * v.PLFixedMul * open
	it.PrincipalInvestedRes += v.PrincipalInvestedRes
	it.AmountInvestedRes += v.AmountInvestedRes
	if !isZero(remaining) {
		if it.openedOn.IsZero() || v.AccountingDate.Before(it.openedOn) {
			it.openedOn = v.AccountingDate
		}
		a.openers[key] = append(a.openers[key], v)
	}
}

// cash books amount of currency on account, according to the case of v:
// case 1 books it on the interim account, case 2 books it on account and its
// opposite on the interim account.
func (a *aggregator) cash(ctx context.Context, v *VirtualTransaction, currency, account string, amount float64, s strategies) {
	if currency == "" || isZero(amount) {
		return
	}
	switch v.Case {
	case 1:
		a.addCash(ctx, v, currency, v.interimOr(account), amount, s)
	case 2:
		a.addCash(ctx, v, currency, account, amount, s)
		a.addCash(ctx, v, currency, v.interimOr(account), -amount, s)
	default:
		a.addCash(ctx, v, currency, account, amount, s)
	}
}

func (a *aggregator) addCash(ctx context.Context, v *VirtualTransaction, currency, account string, amount float64, s strategies) {
	key := a.cashKey(CurrencyItem, v, account, currency, s)
	if a.showDetails(ctx, v, account) {
		key.Detail = v.SourceID
	}
	it := a.item(ctx, key, GroupFXVariations)
	it.Position += amount
	it.addTransaction(v.SourceID)
}

// showDetails reports whether a pending cash amount of v on account is kept
// as its own item.
func (a *aggregator) showDetails(ctx context.Context, v *VirtualTransaction, account string) bool {
	if v.Case == 0 || !a.o.ShowTransactionDetails {
		return false
	}
	acc := a.bc.account(ctx, account)
	return acc != nil && acc.ShowTransactionDetails
}

// mismatch books the difference between the cash and the components of v on
// the item of its linked instrument.
func (a *aggregator) mismatch(ctx context.Context, v *VirtualTransaction) {
	instrument := v.LinkedInstrument
	if instrument == "" {
		instrument = v.InstrumentID
	}
	key := ItemKey{
		Type:              MismatchItem,
		Allocation:        a.allocation(v),
		Instrument:        instrument,
		MismatchPortfolio: a.o.PortfolioMode.pick(v.Portfolio),
		MismatchAccount:   a.o.AccountMode.pick(v.AccountPosition),
	}
	it := a.item(ctx, key, GroupMismatches)
	m := v.Mismatch * v.StlCurFX
	it.Mismatch += m
	d := Decomposition{Full: components(m, 0, 0)}
	it.PL = it.PL.add(split(d, 1))
	it.addTransaction(v.SourceID)
}

// close computes the values of it that depend on its final position.
func (a *aggregator) close(ctx context.Context, it *ReportItem) {
	switch it.Type {
	case InstrumentItem:
		a.closeInstrument(ctx, it)
	case CurrencyItem:
		fx := a.bc.FX.Cross(ctx, it.Currency, a.o.ReportCurrency, a.rd)
		it.PricingCurFX = fx
		it.MarketValueLoc = it.Position
		it.MarketValueRes = finite(it.Position * fx)
		it.PLLoc = it.PL.scale(div(1, fx))
	default:
		it.PLLoc = it.PL
	}
}

func (a *aggregator) closeInstrument(ctx context.Context, it *ReportItem) {
	i := it.instrument
	if i == nil {
		return
	}
	rd := a.rd
	report := a.o.ReportCurrency
	pm, am := i.priceMultiplier(), i.accruedMultiplier()

	q := a.bc.Prices.Get(ctx, i.ID, rd)
	accrued := q.Accrued
	if accrued == 0 && len(i.Accruals) > 0 {
		accrued = i.accruedPrice(rd)
	}
	accruedCcy := i.AccruedCurrency
	if accruedCcy == "" {
		accruedCcy = i.PricingCurrency
	}
	pricingFX := a.bc.FX.Cross(ctx, i.PricingCurrency, report, rd)
	accruedFX := a.bc.FX.Cross(ctx, accruedCcy, report, rd)

	it.PrincipalPrice, it.AccruedPrice, it.PricingCurFX = q.Principal, accrued, pricingFX
	mv := components(it.Position*pm*q.Principal*pricingFX, it.Position*am*accrued*accruedFX, 0)
	it.MarketValueRes = mv.Total
	it.MarketValueLoc = div(mv.Total, pricingFX)

	// The market value of the open position is its unrealised value.
	it.PL.Total.Full = it.PL.Total.Full.add(mv)
	it.PL.Total.Fixed = it.PL.Total.Fixed.add(mv)
	it.PL.Opened.Full = it.PL.Opened.Full.add(mv)
	it.PL.Opened.Fixed = it.PL.Opened.Fixed.add(mv)
	it.PLLoc = it.PL.scale(div(1, pricingFX))

	it.GrossCostRes = div(-it.costPrincipal, it.Position*pm)
	it.NetCostRes = div(-it.costNet, it.Position*pm)
	it.GrossCostLoc = div(it.GrossCostRes, pricingFX)
	it.NetCostLoc = div(it.NetCostRes, pricingFX)
	opened := it.PL.Opened.Full
	it.PosReturn = div(opened.Principal+opened.Carry, -it.PrincipalInvestedRes)
	it.NetPosReturn = div(opened.Total, -it.AmountInvestedRes)

	if isZero(it.Position) {
		it.Group = GroupClosed
		it.Position = 0
	} else {
		it.Group = GroupOpened
		if len(i.Accruals) > 0 {
			it.YTM = i.yieldToMaturity(rd, q.Principal)
			it.ModifiedDuration = i.duration(rd, it.YTM)
		}
	}
	if !it.openedOn.IsZero() {
		it.TimeInvestedDays = rd.Sub(it.openedOn)
	}
	it.DailyPriceChange = a.priceChange(ctx, it, 1, rd.Add(-1))
	it.MTDPriceChange = a.priceChange(ctx, it, rd.Day(), rd.Add(-rd.Day()))

	for _, v := range a.openers[it.ItemKey] {
		v.RemainingPositionPercent = div(v.Position*(1-v.Multiplier), it.Position)
		v.WeightedYTM = v.YTM * v.RemainingPositionPercent
		v.WeightedTimeInvested = v.TimeInvested * v.RemainingPositionPercent
	}
}

// priceChange returns the relative change of the principal price of it since
// date since, or since its purchase when it was bought less than days ago.
func (a *aggregator) priceChange(ctx context.Context, it *ReportItem, days int, since date.Date) float64 {
	if isZero(it.Position) {
		return 0
	}
	ref := it.GrossCostLoc
	if it.TimeInvestedDays > days {
		ref = a.bc.Prices.Get(ctx, it.Instrument, since).Principal
	}
	return div(it.PrincipalPrice-ref, ref)
}

// subtract removes from items the P&L of the same keys in base.
func subtract(items, base map[ItemKey]*ReportItem) {
	for key, it := range items {
		b, ok := base[key]
		if !ok {
			continue
		}
		it.PL = it.PL.sub(b.PL)
		it.PLLoc = it.PLLoc.sub(b.PLLoc)
		it.Mismatch -= b.Mismatch
	}
}

// splitClosedOpened replaces every instrument item by a CLOSED item holding
// its realised P&L and an OPENED item holding its position and unrealised
// P&L. Empty CLOSED items are dropped unless includeZero.
func splitClosedOpened(items []*ReportItem, includeZero bool) []*ReportItem {
	out := make([]*ReportItem, 0, len(items)+len(items)/2)
	for _, it := range items {
		if it.Type != InstrumentItem {
			out = append(out, it)
			continue
		}
		closed := *it
		closed.Subtype, closed.Group = ClosedPart, GroupClosed
		closed.Position, closed.MarketValueRes, closed.MarketValueLoc = 0, 0, 0
		closed.YTM, closed.ModifiedDuration = 0, 0
		closed.PL = PLVector{Total: it.PL.Closed, Closed: it.PL.Closed}
		closed.PLLoc = PLVector{Total: it.PLLoc.Closed, Closed: it.PLLoc.Closed}
		if includeZero || !closed.PL.IsZero() {
			out = append(out, &closed)
		}

		opened := *it
		opened.Subtype, opened.Group = OpenedPart, GroupOpened
		opened.PL = PLVector{Total: it.PL.Opened, Opened: it.PL.Opened}
		opened.PLLoc = PLVector{Total: it.PLLoc.Opened, Opened: it.PLLoc.Opened}
		if !opened.isEmpty() {
			out = append(out, &opened)
		}
	}
	return out
}

// allocations rolls the instrument items of a detailed aggregation up by allocation.
func allocations(detailed map[ItemKey]*ReportItem) []*ReportItem {
	byAllocation := make(map[string]*ReportItem)
	for _, key := range slices.SortedFunc(maps.Keys(detailed), ItemKey.compare) {
		it := detailed[key]
		if it.Type != InstrumentItem && it.Type != CurrencyItem {
			continue
		}
		al, ok := byAllocation[key.Allocation]
		if !ok {
			al = &ReportItem{ItemKey: ItemKey{Type: AllocationItem, Allocation: key.Allocation}, Group: GroupAllocations}
			byAllocation[key.Allocation] = al
		}
		al.MarketValueRes += it.MarketValueRes
		al.PL = al.PL.add(it.PL)
		al.Transactions = append(al.Transactions, it.Transactions...)
	}
	out := slices.Collect(maps.Values(byAllocation))
	for _, al := range out {
		slices.Sort(al.Transactions)
		al.Transactions = slices.Compact(al.Transactions)
		al.PLLoc = al.PL
	}
	sortItems(out)
	return out
}

// summary sums market values and P&L of items.
func summary(items []*ReportItem) *ReportItem {
	s := &ReportItem{ItemKey: ItemKey{Type: SummaryItem}}
	for _, it := range items {
		switch it.Type {
		case AllocationItem:
			continue
		case InstrumentItem, CurrencyItem:
			s.MarketValueRes += it.MarketValueRes
		}
		s.Mismatch += it.Mismatch
		s.PL = s.PL.add(it.PL)
	}
	s.PLLoc = s.PL
	return s
}

// invested sums the external cash flows of vts by portfolio, account and currency.
func (bc *BuildContext) invested(vts []*VirtualTransaction) []*InvestedItem {
	o := &bc.Options
	type key struct{ portfolio, account, currency string }
	byKey := make(map[key]*InvestedItem)
	var out []*InvestedItem
	for _, v := range vts {
		if !v.Class.isCashFlow() {
			continue
		}
		k := key{o.PortfolioMode.pick(v.Portfolio), o.AccountMode.pick(v.AccountCash), v.SettlementCurrency}
		it, ok := byKey[k]
		if !ok {
			it = &InvestedItem{Portfolio: k.portfolio, Account: k.account, Currency: k.currency}
			byKey[k] = it
			out = append(out, it)
		}
		it.Amount += v.Cash
		it.AmountHistRes += finite(v.Cash * v.PLFixedMul)
		it.AmountRes += v.CashRes
		it.Transactions = append(it.Transactions, v.SourceID)
	}
	for _, it := range out {
		it.Amount, it.AmountHistRes, it.AmountRes = round(it.Amount), round(it.AmountHistRes), round(it.AmountRes)
	}
	slices.SortFunc(out, func(a, b *InvestedItem) int {
		return ItemKey{Portfolio: a.Portfolio, Account: a.Account, Currency: a.Currency}.compare(
			ItemKey{Portfolio: b.Portfolio, Account: b.Account, Currency: b.Currency})
	})
	return out
}
