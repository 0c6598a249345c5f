package pnl

import (
	"fmt"
	"math"
)

const (
	// snapTolerance is the drift under which a multiplier is rounded to 0 or 1.
	snapTolerance = 1e-10
	// violationTolerance is the drift over which a cost basis invariant is broken.
	violationTolerance = 1e-6
)

// inventory is the open position of one lot key under one cost method.
type inventory struct {
	rolling float64
	// open holds the trades not entirely closed yet, oldest first.
	open []*VirtualTransaction
}

// matcher assigns cost basis multipliers under one cost method.
type matcher struct {
	method CostMethod
	books  map[LotKey]*inventory
}

func newMatcher(method CostMethod) *matcher {
	return &matcher{method: method, books: make(map[LotKey]*inventory)}
}

func (m *matcher) inventory(key LotKey) *inventory {
	inv, ok := m.books[key]
	if !ok {
		inv = &inventory{}
		m.books[key] = inv
	}
	return inv
}

// match processes the next trade t of lot key.
func (m *matcher) match(t *VirtualTransaction, key LotKey) error {
	inv := m.inventory(key)
	b := t.basis(m.method)
	p := t.Position

	k := -1.0
	if !isZero(inv.rolling) {
		k = -p / inv.rolling
	}
	switch {
	case k > 1 && !isClose(k, 1):
		// t closes the whole inventory and opens the residual.
		for _, o := range inv.open {
			m.pair(o, t, math.Abs(o.Position)*(1-o.basis(m.method).Multiplier))
			o.basis(m.method).Multiplier = 1
		}
		b.Multiplier = 1 / k
		inv.rolling = p * (1 - 1/k)
		inv.open = []*VirtualTransaction{t}
	case isClose(k, 1):
		for _, o := range inv.open {
			m.pair(o, t, math.Abs(o.Position)*(1-o.basis(m.method).Multiplier))
			o.basis(m.method).Multiplier = 1
		}
		b.Multiplier = 1
		inv.rolling = 0
		inv.open = nil
	case k > 0:
		if m.method == FIFO {
			m.closeFIFO(inv, t)
		} else {
			m.closeAVCO(inv, t, k)
		}
	default:
		b.Multiplier = 0
		inv.rolling += p
		inv.open = append(inv.open, t)
	}
	b.Rolling = inv.rolling

	if err := m.snap(t, key); err != nil {
		return err
	}
	for _, o := range inv.open {
		if err := m.snap(o, key); err != nil {
			return err
		}
	}
	return nil
}

// closeAVCO closes a fraction k of every open trade.
func (m *matcher) closeAVCO(inv *inventory, t *VirtualTransaction, k float64) {
	open := inv.open[:0]
	for _, o := range inv.open {
		ob := o.basis(m.method)
		d := k * (1 - ob.Multiplier)
		m.pair(o, t, math.Abs(o.Position)*d)
		ob.Multiplier += d
		if isClose(ob.Multiplier, 1) {
			ob.Multiplier = 1
			continue
		}
		open = append(open, o)
	}
	inv.open = open
	t.basis(m.method).Multiplier = 1
	inv.rolling += t.Position
}

// closeFIFO closes the oldest open trades first, up to the size of t.
func (m *matcher) closeFIFO(inv *inventory, t *VirtualTransaction) {
	size := math.Abs(t.Position)
	remaining := size
	i := 0
	for ; i < len(inv.open) && remaining > tolerance; i++ {
		o := inv.open[i]
		ob := o.basis(m.method)
		available := math.Abs(o.Position) * (1 - ob.Multiplier)
		if available <= remaining+tolerance {
			m.pair(o, t, available)
			ob.Multiplier = 1
			remaining -= available
			continue
		}
		m.pair(o, t, remaining)
		ob.Multiplier += remaining / math.Abs(o.Position)
		remaining = 0
		break
	}
	// Lots before i are closed, lot i (if any) is partially closed.
	inv.open = inv.open[i:]

	b := t.basis(m.method)
	b.Multiplier = math.Abs((size - math.Max(remaining, 0)) / size)
	inv.rolling += t.Position * b.Multiplier
}

// pair records that qty units of opener o were closed by t.
func (m *matcher) pair(o, t *VirtualTransaction, qty float64) {
	if qty <= 0 {
		return
	}
	ob, tb := o.basis(m.method), t.basis(m.method)
	ob.ClosedBy = append(ob.ClosedBy, Pairing{ID: t.ID, Delta: div(qty, math.Abs(o.Position)), with: t})
	tb.ClosedBy = append(tb.ClosedBy, Pairing{ID: o.ID, Delta: div(qty, math.Abs(t.Position)), with: o, opener: true})
}

// snap rounds the multiplier of t to 0 or 1 when within snapTolerance and
// clamps it to [0,1]. A multiplier out of range by more than
// violationTolerance is an error.
func (m *matcher) snap(t *VirtualTransaction, key LotKey) error {
	b := t.basis(m.method)
	v := b.Multiplier
	if math.IsNaN(v) || v < -violationTolerance || v > 1+violationTolerance {
		return &CostBasisError{Key: key, Transaction: t.ID, Detail: fmt.Sprintf("%s multiplier %v out of [0,1]", m.method, v)}
	}
	switch {
	case math.Abs(v) < snapTolerance, v < 0:
		v = 0
	case math.Abs(v-1) < snapTolerance, v > 1:
		v = 1
	}
	b.Multiplier = v
	return nil
}

// check verifies the invariants of every lot key once all trades are matched:
// the remaining positions add up to the rolling position, and the pairings
// of every trade add up to its multiplier.
func (m *matcher) check(trades []*VirtualTransaction, keys []LotKey) error {
	remaining := make(map[LotKey]float64)
	scale := make(map[LotKey]float64)
	for i, t := range trades {
		b := t.basis(m.method)
		remaining[keys[i]] += t.Position * (1 - b.Multiplier)
		scale[keys[i]] += math.Abs(t.Position)

		var sum float64
		for _, p := range b.ClosedBy {
			sum += p.Delta
		}
		if math.Abs(sum-b.Multiplier) > violationTolerance {
			return &CostBasisError{Key: keys[i], Transaction: t.ID,
				Detail: fmt.Sprintf("%s pairings sum to %v, multiplier is %v", m.method, sum, b.Multiplier)}
		}
	}
	for i := len(trades) - 1; i >= 0; i-- {
		key := keys[i]
		r, ok := remaining[key]
		if !ok {
			continue
		}
		delete(remaining, key)
		rolling := m.books[key].rolling
		if math.Abs(r-rolling) > violationTolerance*math.Max(1, scale[key]) {
			return &CostBasisError{Key: key, Transaction: trades[i].ID,
				Detail: fmt.Sprintf("%s remaining position %v differs from rolling position %v", m.method, r, rolling)}
		}
	}
	return nil
}

// matchLots computes the AVCO and FIFO cost bases of every virtual
// transaction, then copies those of the report cost method into the
// reported fields.
//
// Trades (BUY and SELL) take part in lot matching. INSTRUMENT_PL records
// the rolling position of its lot key and is realised in proportion of the
// position it was earned on that has been closed since. Every other class
// is fully closed.
func matchLots(vts []*VirtualTransaction, o *Options) error {
	matchers := []*matcher{newMatcher(AVCO), newMatcher(FIFO)}
	var trades []*VirtualTransaction
	var keys []LotKey
	lotKeys := make([]LotKey, len(vts))
	for i, t := range vts {
		key := t.lotKey(o)
		lotKeys[i] = key
		switch {
		case t.Class.isTrade() && t.InstrumentID != "":
			for _, m := range matchers {
				if err := m.match(t, key); err != nil {
					return err
				}
			}
			trades = append(trades, t)
			keys = append(keys, key)
		case t.Class == InstrumentPL:
			for _, m := range matchers {
				b := t.basis(m.method)
				b.Multiplier = 1
				b.Rolling = m.inventory(key).rolling
			}
		default:
			t.AVCO.Multiplier, t.FIFO.Multiplier = 1, 1
		}
	}
	for _, m := range matchers {
		if err := m.check(trades, keys); err != nil {
			return err
		}
		realiseIncome(vts, lotKeys, m.method)
	}
	for _, t := range vts {
		t.choose(o.CostMethod)
	}
	return nil
}

// realiseIncome sets the multiplier of every INSTRUMENT_PL to the closed
// share of its lot key, 1 - |open before / open at the end|, where "open
// before" counts what remains at the report date of the trades booked
// before the income. Income of a lot key with nothing left open is realised.
func realiseIncome(vts []*VirtualTransaction, keys []LotKey, method CostMethod) {
	balance := make(map[LotKey]float64)
	for i, t := range vts {
		if t.Class.isTrade() && t.InstrumentID != "" {
			balance[keys[i]] += t.Position * (1 - t.basis(method).Multiplier)
		}
	}
	before := make(map[LotKey]float64)
	for i, t := range vts {
		key := keys[i]
		switch {
		case t.Class.isTrade() && t.InstrumentID != "":
			before[key] += t.Position * (1 - t.basis(method).Multiplier)
		case t.Class == InstrumentPL:
			m := 1.0
			if !isZero(balance[key]) {
				m = 1 - math.Abs(before[key]/balance[key])
			}
			t.basis(method).Multiplier = math.Min(1, math.Max(0, m))
		}
	}
}
