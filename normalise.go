package pnl

import (
	"math"
	"sort"

	"github.com/etnz/pnl/date"
)

// normalise turns the transactions of a build into the ordered sequence of
// elementary virtual transactions.
//
// Transactions not matched by q are dropped. The result is sorted by
// (accounting date, code, id), TRANSFER and FX_TRANSFER are replaced by their
// two legs, and every virtual transaction is classified against rd.
func normalise(ts []Transaction, q Query, rd date.Date) []*VirtualTransaction {
	selected := make([]*Transaction, 0, len(ts))
	for i := range ts {
		if q.Match(&ts[i]) {
			selected = append(selected, &ts[i])
		}
	}
	sort.SliceStable(selected, func(i, j int) bool {
		a, b := selected[i], selected[j]
		if c := a.AccountingDate.Compare(b.AccountingDate); c != 0 {
			return c < 0
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return a.ID < b.ID
	})

	vts := make([]*VirtualTransaction, 0, len(selected)+len(selected)/4)
	for _, t := range selected {
		switch t.Class {
		case Transfer:
			vts = append(vts, transferLegs(t)...)
		case FXTransfer:
			vts = append(vts, fxTransferLegs(t)...)
		default:
			vts = append(vts, newVirtual(t))
		}
	}
	for _, v := range vts {
		v.setCase(rd)
	}
	return vts
}

// transferLegs splits a TRANSFER into a SELL on the source account
// (AccountCash) and a BUY on the destination account (AccountPosition).
// A negative position swaps the classes.
func transferLegs(t *Transaction) []*VirtualTransaction {
	out, in := newVirtual(t), newVirtual(t)
	out.Class, in.Class = Sell, Buy
	sign := 1.0
	if t.Position < 0 {
		out.Class, in.Class = Buy, Sell
		sign = -1
	}
	out.book(t.AccountCash, t.Strategy1Cash, t.Strategy2Cash, t.Strategy3Cash)
	in.book(t.AccountPosition, t.Strategy1Position, t.Strategy2Position, t.Strategy3Position)

	out.Position = -sign * math.Abs(t.Position)
	out.Cash = sign * math.Abs(t.Cash)
	out.Principal = sign * math.Abs(t.Principal)
	out.Carry = sign * math.Abs(t.Carry)
	out.Overheads = sign * math.Abs(t.Overheads)

	in.Position = -out.Position
	in.Cash = -out.Cash
	in.Principal = -out.Principal
	in.Carry = -out.Carry
	in.Overheads = -out.Overheads

	return legs(t, out, in)
}

// fxTransferLegs splits an FX_TRANSFER into two FX_TRADE legs moving
// Position units of the transaction currency from AccountCash to
// AccountPosition.
func fxTransferLegs(t *Transaction) []*VirtualTransaction {
	out, in := newVirtual(t), newVirtual(t)
	out.Class, in.Class = FXTrade, FXTrade
	out.book(t.AccountCash, t.Strategy1Cash, t.Strategy2Cash, t.Strategy3Cash)
	in.book(t.AccountPosition, t.Strategy1Position, t.Strategy2Position, t.Strategy3Position)

	sign := 1.0
	if t.Position < 0 {
		sign = -1
	}
	for _, v := range []*VirtualTransaction{out, in} {
		v.InstrumentID, v.Instrument = "", nil
		v.SettlementCurrency = t.TransactionCurrency
		v.ReferenceFX = 1
		v.Cash, v.Principal, v.Carry, v.Overheads = 0, 0, 0, 0
	}
	out.Position = -sign * math.Abs(t.Position)
	in.Position = sign * math.Abs(t.Position)
	return legs(t, out, in)
}

func legs(t *Transaction, first, second *VirtualTransaction) []*VirtualTransaction {
	first.ID, second.ID = t.ID+"/1", t.ID+"/2"
	first.Kind, second.Kind = Leg, Leg
	return []*VirtualTransaction{first, second}
}

// book moves both sides of v onto one account and set of strategies.
func (v *VirtualTransaction) book(account, s1, s2, s3 string) {
	v.AccountPosition, v.AccountCash = account, account
	v.Strategy1Position, v.Strategy1Cash = s1, s1
	v.Strategy2Position, v.Strategy2Cash = s2, s2
	v.Strategy3Position, v.Strategy3Cash = s3, s3
}
