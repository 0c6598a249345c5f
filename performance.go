package pnl

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/etnz/pnl/date"
)

// PerformanceOptions configures a performance build. The embedded Options
// set currencies, cost method, grouping modes and filters; their report
// type and date are ignored.
type PerformanceOptions struct {
	Options
	Begin, End date.Date
	// Period cuts [Begin, End] into calendar periods.
	Period date.Period
	// Periods, when set, replaces the calendar cut by explicit named periods.
	Periods []date.Segment
}

// segments returns the periods of the build, in chronological order.
func (o *PerformanceOptions) segments() ([]date.Segment, error) {
	if len(o.Periods) == 0 {
		if o.Begin.IsZero() || o.End.IsZero() || o.End.Before(o.Begin) {
			return nil, badInput("malformed date range [%s, %s]", o.Begin, o.End)
		}
		return date.Range{From: o.Begin, To: o.End}.Split(o.Period), nil
	}
	segments := slices.Clone(o.Periods)
	for _, s := range segments {
		if s.Begin.IsZero() || s.End.IsZero() || !s.End.After(s.Begin) {
			return nil, badInput("malformed period %q [%s, %s]", s.Name, s.Begin, s.End)
		}
	}
	slices.SortStableFunc(segments, func(a, b date.Segment) int { return strings.Compare(periodKey(a), periodKey(b)) })
	return segments, nil
}

// periodKey sorts periods by end date, begin date and name.
func periodKey(s date.Segment) string { return fmt.Sprintf("%s_%s_%s", s.End, s.Begin, s.Name) }

// PerformanceKey identifies the group a performance item measures.
type PerformanceKey struct {
	Portfolio string `json:"portfolio,omitempty"`
	Account   string `json:"account,omitempty"`
	Strategy1 string `json:"strategy1,omitempty"`
	Strategy2 string `json:"strategy2,omitempty"`
	Strategy3 string `json:"strategy3,omitempty"`
}

func (k PerformanceKey) compare(o PerformanceKey) int {
	return cmp.Or(
		strings.Compare(k.Portfolio, o.Portfolio),
		strings.Compare(k.Account, o.Account),
		strings.Compare(k.Strategy1, o.Strategy1),
		strings.Compare(k.Strategy2, o.Strategy2),
		strings.Compare(k.Strategy3, o.Strategy3),
	)
}

// PerformanceItem is the performance of a group over one period, in report currency.
type PerformanceItem struct {
	PerformanceKey
	NAVPeriodStart           float64 `json:"nav_period_start"`
	NAVPeriodEnd             float64 `json:"nav_period_end"`
	CashInflows              float64 `json:"cash_inflows"`
	CashOutflows             float64 `json:"cash_outflows"`
	TimeWeightedCashInflows  float64 `json:"time_weighted_cash_inflows"`
	TimeWeightedCashOutflows float64 `json:"time_weighted_cash_outflows"`
	AvgNAVInPeriod           float64 `json:"avg_nav_in_period"`
	NAVChange                float64 `json:"nav_change"`
	ReturnNAV                float64 `json:"return_nav"`
	CumulativeReturn         float64 `json:"cumulative_return"`
}

func (it *PerformanceItem) add(o *PerformanceItem) {
	it.NAVPeriodStart += o.NAVPeriodStart
	it.NAVPeriodEnd += o.NAVPeriodEnd
	it.CashInflows += o.CashInflows
	it.CashOutflows += o.CashOutflows
	it.TimeWeightedCashInflows += o.TimeWeightedCashInflows
	it.TimeWeightedCashOutflows += o.TimeWeightedCashOutflows
}

// close computes the derived figures of it, chaining the cumulative return
// after prev.
func (it *PerformanceItem) close(prev float64) {
	it.NAVChange = (it.NAVPeriodEnd - it.NAVPeriodStart) + (it.CashOutflows - it.CashInflows)
	it.AvgNAVInPeriod = it.NAVPeriodStart + (it.TimeWeightedCashInflows - it.TimeWeightedCashOutflows)
	it.ReturnNAV = div(it.NAVChange, it.AvgNAVInPeriod)
	it.CumulativeReturn = (1+prev)*(1+it.ReturnNAV) - 1
}

func (it *PerformanceItem) round() {
	for _, f := range []*float64{
		&it.NAVPeriodStart, &it.NAVPeriodEnd, &it.CashInflows, &it.CashOutflows,
		&it.TimeWeightedCashInflows, &it.TimeWeightedCashOutflows, &it.AvgNAVInPeriod,
		&it.NAVChange, &it.ReturnNAV, &it.CumulativeReturn,
	} {
		*f = round(*f)
	}
}

// PerformancePeriod holds the performance of every group over one period.
type PerformancePeriod struct {
	Key   string             `json:"period_key"`
	Begin date.Date          `json:"begin"`
	End   date.Date          `json:"end"`
	Name  string             `json:"name"`
	Items []*PerformanceItem `json:"items"`
	// Total is the performance of all groups together.
	Total *PerformanceItem `json:"total"`
}

// PerformanceReport is the result of a performance build.
type PerformanceReport struct {
	ID             string               `json:"id"`
	Begin          date.Date            `json:"begin"`
	End            date.Date            `json:"end"`
	ReportCurrency string               `json:"report_currency"`
	Periods        []*PerformancePeriod `json:"periods"`
}

// BuildPerformance computes the time-weighted performance of every group
// over consecutive periods.
func (b *Builder) BuildPerformance(ctx context.Context, po PerformanceOptions) (*PerformanceReport, error) {
	segments, err := po.segments()
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, badInput("no period in [%s, %s]", po.Begin, po.End)
	}
	o := po.Options
	o.Type = Balance
	o.PLFirstDate = date.Date{}
	o.ReportDate = segments[len(segments)-1].End

	ctx, cancel, bc, err := b.newContext(ctx, o)
	if err != nil {
		return nil, err
	}
	defer cancel()

	start := time.Now()
	bc.Log.Info("performance build started", "periods", len(segments), "begin", segments[0].Begin, "end", o.ReportDate)
	r, err := bc.performance(ctx, segments)
	if err != nil {
		bc.Log.Warn("performance build failed", "error", err, "elapsed", time.Since(start))
		return nil, err
	}
	bc.Log.Info("performance build finished", "periods", len(r.Periods), "elapsed", time.Since(start))
	return r, nil
}

// performanceKey returns the group of an item.
func performanceKey(k ItemKey) PerformanceKey {
	return PerformanceKey{k.Portfolio, k.Account, k.Strategy1, k.Strategy2, k.Strategy3}
}

// nav returns the net asset value of every group at d.
func (bc *BuildContext) nav(ctx context.Context, d date.Date) (map[PerformanceKey]float64, []*VirtualTransaction, error) {
	vts, err := bc.pipeline(ctx, d)
	if err != nil {
		return nil, nil, err
	}
	items, err := bc.aggregate(ctx, vts, d, false)
	if err != nil {
		return nil, nil, err
	}
	nav := make(map[PerformanceKey]float64)
	for key, it := range items {
		if it.Type == InstrumentItem || it.Type == CurrencyItem {
			nav[performanceKey(key)] += it.MarketValueRes
		}
	}
	return nav, vts, nil
}

func (bc *BuildContext) performance(ctx context.Context, segments []date.Segment) (*PerformanceReport, error) {
	o := &bc.Options
	navs := make(map[date.Date]map[PerformanceKey]float64)
	navAt := func(d date.Date) (map[PerformanceKey]float64, error) {
		if nav, ok := navs[d]; ok {
			return nav, nil
		}
		nav, _, err := bc.nav(ctx, d)
		navs[d] = nav
		return nav, err
	}
	// Cash flows of every period come from the last boundary.
	last := o.ReportDate
	endNAV, vts, err := bc.nav(ctx, last)
	if err != nil {
		return nil, err
	}
	navs[last] = endNAV

	r := &PerformanceReport{ID: bc.ID, Begin: segments[0].Begin, End: last, ReportCurrency: o.ReportCurrency}
	cumulative := make(map[PerformanceKey]float64)
	var cumulativeTotal float64
	for _, s := range segments {
		if err := ctx.Err(); err != nil {
			return nil, cancelled("performance", err)
		}
		startNAV, err := navAt(s.Begin)
		if err != nil {
			return nil, err
		}
		endNAV, err := navAt(s.End)
		if err != nil {
			return nil, err
		}

		items := make(map[PerformanceKey]*PerformanceItem)
		get := func(k PerformanceKey) *PerformanceItem {
			it, ok := items[k]
			if !ok {
				it = &PerformanceItem{PerformanceKey: k}
				items[k] = it
			}
			return it
		}
		for k, v := range startNAV {
			get(k).NAVPeriodStart += v
		}
		for k, v := range endNAV {
			get(k).NAVPeriodEnd += v
		}
		for _, v := range vts {
			if !v.Class.isCashFlow() || !v.AccountingDate.After(s.Begin) || v.AccountingDate.After(s.End) {
				continue
			}
			k := PerformanceKey{
				Portfolio: o.PortfolioMode.pick(v.Portfolio),
				Account:   o.AccountMode.pick(v.AccountCash),
				Strategy1: o.Strategy1Mode.pick(v.Strategy1Cash),
				Strategy2: o.Strategy2Mode.pick(v.Strategy2Cash),
				Strategy3: o.Strategy3Mode.pick(v.Strategy3Cash),
			}
			amount := math.Abs(v.Cash * v.StlAccHistFX)
			weighted := amount * timeWeight(s, v.AccountingDate)
			it := get(k)
			if v.Class == CashInflow {
				it.CashInflows += amount
				it.TimeWeightedCashInflows += weighted
			} else {
				it.CashOutflows += amount
				it.TimeWeightedCashOutflows += weighted
			}
		}

		p := &PerformancePeriod{Key: periodKey(s), Begin: s.Begin, End: s.End, Name: s.Name, Total: &PerformanceItem{}}
		for _, it := range items {
			p.Total.add(it)
			it.close(cumulative[it.PerformanceKey])
			cumulative[it.PerformanceKey] = it.CumulativeReturn
			it.round()
			p.Items = append(p.Items, it)
		}
		slices.SortFunc(p.Items, func(a, b *PerformanceItem) int { return a.compare(b.PerformanceKey) })
		p.Total.close(cumulativeTotal)
		cumulativeTotal = p.Total.CumulativeReturn
		p.Total.round()
		r.Periods = append(r.Periods, p)
	}
	return r, nil
}

// timeWeight returns the share of period s remaining after d, in [0,1].
func timeWeight(s date.Segment, d date.Date) float64 {
	w := div(float64(s.End.Sub(d)), float64(s.End.Sub(s.Begin)))
	return math.Min(1, math.Max(0, w))
}
