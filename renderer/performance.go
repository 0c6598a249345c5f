package renderer

import (
	"fmt"
	"strings"

	"github.com/etnz/pnl"
)

// PerformanceMarkdown renders a performance report, one table per period.
func PerformanceMarkdown(r *pnl.PerformanceReport) string {
	var b strings.Builder
	ccy := r.ReportCurrency
	fmt.Fprintf(&b, "# Performance from %s to %s\n\n", r.Begin, r.End)
	fmt.Fprintf(&b, "Currency: %s\n", ccy)

	for _, p := range r.Periods {
		fmt.Fprintf(&b, "\n## %s (%s to %s)\n\n", p.Name, p.Begin, p.End)
		fmt.Fprintln(&b, "| Group | NAV Start | NAV End | Inflows | Outflows | Average NAV | Return | Cumulative |")
		fmt.Fprintln(&b, "|:---|---:|---:|---:|---:|---:|---:|---:|")
		row := func(label string, it *pnl.PerformanceItem) {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s | %s |\n",
				label,
				amount(it.NAVPeriodStart, ccy), amount(it.NAVPeriodEnd, ccy),
				amount(it.CashInflows, ccy), amount(it.CashOutflows, ccy),
				amount(it.AvgNAVInPeriod, ccy),
				percent(it.ReturnNAV), percent(it.CumulativeReturn))
		}
		for _, it := range p.Items {
			k := it.PerformanceKey
			label := join(k.Portfolio, k.Account, k.Strategy1, k.Strategy2, k.Strategy3)
			if label == "" {
				label = "All"
			}
			row(label, it)
		}
		if len(p.Items) > 1 {
			row("**Total**", p.Total)
		}
	}
	return b.String()
}
