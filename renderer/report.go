package renderer

import (
	"fmt"
	"io"
	"strings"

	"github.com/etnz/pnl"
	"github.com/shopspring/decimal"
)

var groupTitles = []struct {
	group pnl.ItemGroup
	title string
}{
	{pnl.GroupOpened, "Open Positions"},
	{pnl.GroupClosed, "Closed Positions"},
	{pnl.GroupFXVariations, "Cash and FX Variations"},
	{pnl.GroupFXTrades, "FX Trades"},
	{pnl.GroupMismatches, "Mismatches"},
	{pnl.GroupOther, "Other P&L"},
	{pnl.GroupAllocations, "Allocations"},
}

// ReportMarkdown renders a balance or P&L report, one table per item group.
func ReportMarkdown(r *pnl.Report) string {
	var b strings.Builder
	ccy := r.ReportCurrency
	switch {
	case r.Type == pnl.Balance:
		fmt.Fprintf(&b, "# Balance on %s\n\n", r.ReportDate)
	case r.PLFirstDate.IsZero():
		fmt.Fprintf(&b, "# P&L up to %s\n\n", r.ReportDate)
	default:
		fmt.Fprintf(&b, "# P&L from %s to %s\n\n", r.PLFirstDate, r.ReportDate)
	}
	fmt.Fprintf(&b, "Currency: %s, method: %s\n\n", ccy, r.CostMethod)

	fields := customFieldNames(r.Items)
	for _, g := range groupTitles {
		ConditionalBlock(&b, func(w io.Writer) bool {
			return renderGroup(w, r, g.group, g.title, fields)
		})
	}

	fmt.Fprint(&b, "## Summary\n\n")
	fmt.Fprintln(&b, "| Market Value | Realised | Unrealised | Total P&L | Mismatch |")
	fmt.Fprintln(&b, "|---:|---:|---:|---:|---:|")
	s := r.Summary
	fmt.Fprintf(&b, "| **%s** | %s | %s | **%s** | %s |\n",
		amount(s.MarketValueRes, ccy),
		signed(s.PL.Closed.Full.Total, ccy),
		signed(s.PL.Opened.Full.Total, ccy),
		signed(s.PL.Total.Full.Total, ccy),
		signed(s.Mismatch, ccy))

	if r.Type == pnl.PL {
		ConditionalBlock(&b, func(w io.Writer) bool { return renderInvested(w, r) })
	}
	return b.String()
}

func renderGroup(w io.Writer, r *pnl.Report, group pnl.ItemGroup, title string, fields []string) bool {
	ccy := r.ReportCurrency
	header := Header(func(w io.Writer) {
		fmt.Fprintf(w, "\n## %s\n\n", title)
		cols := []string{"Item", "Position", "Price", "Market Value"}
		align := "|:---|---:|---:|---:|"
		if r.Type == pnl.PL {
			cols = append(cols, "Realised", "Unrealised", "Total P&L")
			align += "---:|---:|---:|"
		}
		cols = append(cols, fields...)
		align += strings.Repeat("---:|", len(fields))
		fmt.Fprintf(w, "| %s |\n%s\n", strings.Join(cols, " | "), align)
	})
	for _, it := range r.Items {
		if it.Group != group {
			continue
		}
		header.PrintHeader(w)
		price := "-"
		if it.Type == pnl.InstrumentItem && it.PrincipalPrice != 0 {
			price = decimal.NewFromFloat(it.PrincipalPrice).String()
		}
		cells := []string{Label(it.ItemKey), quantity(it.Position), price, amount(it.MarketValueRes, ccy)}
		if r.Type == pnl.PL {
			cells = append(cells,
				signed(it.PL.Closed.Full.Total, ccy),
				signed(it.PL.Opened.Full.Total, ccy),
				signed(it.PL.Total.Full.Total, ccy))
		}
		values := make(map[string]any, len(it.CustomFields))
		for _, v := range it.CustomFields {
			values[v.Field] = v.Value
		}
		for _, f := range fields {
			cells = append(cells, fieldValue(values[f]))
		}
		fmt.Fprintf(w, "| %s |\n", strings.Join(cells, " | "))
	}
	return header.Printed()
}

func renderInvested(w io.Writer, r *pnl.Report) bool {
	if len(r.InvestedItems) == 0 {
		return false
	}
	ccy := r.ReportCurrency
	fmt.Fprint(w, "\n## Invested Capital\n\n")
	fmt.Fprintln(w, "| Portfolio | Account | Currency | Amount | At Historical Rates | At Current Rates |")
	fmt.Fprintln(w, "|:---|:---|:---|---:|---:|---:|")
	for _, it := range r.InvestedItems {
		fmt.Fprintf(w, "| %s | %s | %s | %s | %s | %s |\n",
			orDash(it.Portfolio), orDash(it.Account), it.Currency,
			amount(it.Amount, it.Currency), amount(it.AmountHistRes, ccy), amount(it.AmountRes, ccy))
	}
	return true
}

// Label returns a short human name of an item key.
func Label(k pnl.ItemKey) string {
	var name string
	switch k.Type {
	case pnl.InstrumentItem:
		name = k.Instrument
		if k.Subtype != pnl.Whole {
			name += " (" + strings.ToLower(k.Subtype.String()) + ")"
		}
	case pnl.CurrencyItem:
		name = k.Currency
		if k.Detail != "" {
			name += " #" + k.Detail
		}
	case pnl.CashInOutItem:
		name = "Cash flows " + k.Currency
	case pnl.TransactionPLItem:
		name = "Transaction P&L"
		if k.Instrument != "" {
			name += " " + k.Instrument
		}
	case pnl.FXTradeItem:
		name = "FX " + k.Currency
	case pnl.MismatchItem:
		name = "Mismatch " + k.Instrument
		if path := join(k.MismatchPortfolio, k.MismatchAccount); path != "" {
			name += " (" + path + ")"
		}
	case pnl.AllocationItem:
		name = k.Allocation
		if name == "" {
			name = "Unallocated"
		}
		return name
	default:
		name = k.Type.String()
	}
	if k.Allocation != "" {
		name = k.Allocation + ": " + name
	}
	if path := join(k.Portfolio, k.Account, k.Strategy1, k.Strategy2, k.Strategy3); path != "" {
		name += " (" + path + ")"
	}
	return name
}

func join(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " / ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// customFieldNames lists the custom fields of items in definition order.
func customFieldNames(items []*pnl.ReportItem) []string {
	for _, it := range items {
		if len(it.CustomFields) > 0 {
			names := make([]string, len(it.CustomFields))
			for i, v := range it.CustomFields {
				names[i] = v.Field
			}
			return names
		}
	}
	return nil
}

func fieldValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "-"
	case float64:
		return decimal.NewFromFloat(v).Round(4).String()
	default:
		return fmt.Sprint(v)
	}
}
