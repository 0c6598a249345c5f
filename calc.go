package pnl

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/etnz/pnl/date"
)

// newton finds a root of f(x)-y with the Newton-Raphson method, starting from x0.
// ffp returns the tuple (f(x), f'(x)).
func newton(y, x0 float64, ffp func(float64) (float64, float64)) (float64, error) {
	const maxIter = 20
	const precision = 1e-9
	x := x0
	for k := 0; k < maxIter; k++ {
		y1, u1 := ffp(x)
		if math.Abs(y-y1) <= precision {
			return x, nil
		}
		if u1 == 0 || math.IsNaN(u1) {
			return 0, fmt.Errorf("newton: zero derivative at %f", x)
		}
		x -= (y1 - y) / u1
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, errors.New("newton: diverged")
		}
	}
	return 0, fmt.Errorf("newton: failed to converge after %d iterations", maxIter)
}

// bisect finds a zero of f(x)-y, f being monotonically decreasing.
// [low, high] is widened when it does not contain the zero.
func bisect(y, low, high float64, f func(float64) float64) (float64, error) {
	const maxIter = 100
	const precision = 1e-9
	if low >= high {
		return 0, fmt.Errorf("bisect: low(%v) must be less than high(%v)", low, high)
	}
	k := 0
	step := high - low
	for ; k < maxIter && f(high)-y > 0; k++ {
		low = high
		high += step
		step *= 2
	}
	for ; k < maxIter; k++ {
		x := (low + high) / 2
		if high-low < precision {
			return x, nil
		}
		if f(x) > y {
			low = x
		} else {
			high = x
		}
	}
	return 0, fmt.Errorf("bisect: failed to converge after %d iterations", maxIter)
}

// cashFlow is a dated amount.
type cashFlow struct {
	On     date.Date
	Amount float64
}

// years returns the time between two dates in years (actual/365).
func years(from, to date.Date) float64 { return float64(to.Sub(from)) / 365 }

// xirr returns the yearly rate that zeroes the present value of flows at the
// date of the first flow. Flows must be sorted by date and contain at least
// one negative and one positive amount.
func xirr(flows []cashFlow) (float64, error) {
	if len(flows) < 2 {
		return 0, errors.New("xirr: too few cash flows")
	}
	var pos, neg bool
	for i, f := range flows {
		if i > 0 && flows[i-1].On.After(f.On) {
			return 0, errors.New("xirr: cash flows are not sorted")
		}
		pos = pos || f.Amount > 0
		neg = neg || f.Amount < 0
	}
	if !pos || !neg {
		return 0, errors.New("xirr: cash flows do not change sign")
	}
	start := flows[0].On
	npv := func(r float64) (v, dv float64) {
		for _, f := range flows {
			t := years(start, f.On)
			v += f.Amount / math.Pow(1+r, t)
			dv -= t * f.Amount / math.Pow(1+r, t+1)
		}
		return v, dv
	}
	r, err := newton(0, 0.05, npv)
	if err == nil && r > -1 {
		return r, nil
	}
	return bisect(0, -0.99, 1, func(r float64) float64 {
		v, _ := npv(r)
		return v
	})
}

// modifiedDuration returns the modified duration, in years, of flows
// discounted at rate ytm from date on. Flows before on are ignored.
func modifiedDuration(flows []cashFlow, on date.Date, ytm float64) float64 {
	var pv, weighted float64
	for _, f := range flows {
		if f.On.Before(on) || f.Amount <= 0 {
			continue
		}
		t := years(on, f.On)
		v := f.Amount / math.Pow(1+ytm, t)
		pv += v
		weighted += t * v
	}
	return div(div(weighted, pv), 1+ytm)
}

// factor returns the outstanding notional factor of i on d, 1 by default.
func (i *Instrument) factor(d date.Date) float64 {
	f := 1.0
	var last date.Date
	for _, s := range i.Factors {
		if !s.Effective.After(d) && !s.Effective.Before(last) {
			f, last = s.Factor, s.Effective
		}
	}
	return f
}

// findAccrual returns the accrual schedule running on d, or nil.
func (i *Instrument) findAccrual(d date.Date) *AccrualSchedule {
	for k := range i.Accruals {
		a := &i.Accruals[k]
		if !a.Start.After(d) && (a.End.IsZero() || d.Before(a.End)) {
			return a
		}
	}
	return nil
}

// periodMonths returns the months between two coupons, 12 when unset.
func (a *AccrualSchedule) periodMonths() int {
	if a.PeriodMonths <= 0 {
		return 12
	}
	return a.PeriodMonths
}

// lastPayment returns the last coupon date on or before d, or the start of
// the schedule when no coupon was paid yet.
func (a *AccrualSchedule) lastPayment(d date.Date) date.Date {
	last := a.Start
	first := a.FirstPayment
	if first.IsZero() {
		first = a.Start.AddMonth(a.periodMonths())
	}
	for p := first; !p.After(d); p = p.AddMonth(a.periodMonths()) {
		last = p
	}
	return last
}

// accruedPrice returns the accrued coupon on d, in price units (actual/365).
func (i *Instrument) accruedPrice(d date.Date) float64 {
	a := i.findAccrual(d)
	if a == nil {
		return 0
	}
	return a.Size * years(a.lastPayment(d), d) * i.factor(d)
}

// maturityPrice returns the redemption price, 100 when unset.
func (i *Instrument) maturityPrice() float64 {
	if i.MaturityPrice == 0 {
		return 100
	}
	return i.MaturityPrice
}

// futureFlows returns the coupons paid strictly after d and the redemption
// at maturity, in price units. It returns nil when the instrument has no
// maturity after d.
func (i *Instrument) futureFlows(d date.Date) []cashFlow {
	if i.Maturity.IsZero() || !i.Maturity.After(d) {
		return nil
	}
	var flows []cashFlow
	for k := range i.Accruals {
		a := &i.Accruals[k]
		first := a.FirstPayment
		if first.IsZero() {
			first = a.Start.AddMonth(a.periodMonths())
		}
		coupon := a.Size * float64(a.periodMonths()) / 12
		for p := first; !p.After(i.Maturity) && (a.End.IsZero() || !p.After(a.End)); p = p.AddMonth(a.periodMonths()) {
			if p.After(d) {
				flows = append(flows, cashFlow{p, coupon * i.factor(p)})
			}
		}
	}
	flows = append(flows, cashFlow{i.Maturity, i.maturityPrice() * i.factor(i.Maturity)})
	slices.SortStableFunc(flows, func(a, b cashFlow) int { return a.On.Compare(b.On) })
	return flows
}

// yieldToMaturity returns the yield of buying i on d at a clean price, or 0
// when it cannot be computed.
func (i *Instrument) yieldToMaturity(d date.Date, price float64) float64 {
	flows := i.futureFlows(d)
	if len(flows) == 0 || price <= 0 {
		return 0
	}
	flows = append([]cashFlow{{d, -(price + i.accruedPrice(d))}}, flows...)
	r, err := xirr(flows)
	if err != nil {
		return 0
	}
	return finite(r)
}

// duration returns the modified duration of i on d at a yield.
func (i *Instrument) duration(d date.Date, ytm float64) float64 {
	return modifiedDuration(i.futureFlows(d), d, ytm)
}
