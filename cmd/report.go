package cmd

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/etnz/pnl"
	"github.com/etnz/pnl/date"
	"github.com/etnz/pnl/renderer"
	"github.com/google/subcommands"
)

// balanceCmd holds the flags for the 'balance' subcommand.
type balanceCmd struct {
	reportFlags
	date string
}

func (*balanceCmd) Name() string     { return "balance" }
func (*balanceCmd) Synopsis() string { return "display positions, cash and market values on a date" }
func (*balanceCmd) Usage() string {
	return `pnl balance [-d <date>] [flags]

  Displays the positions, cash balances and market values of every group on a given date.
`
}

func (c *balanceCmd) SetFlags(f *flag.FlagSet) {
	c.reportFlags.SetFlags(f)
	f.StringVar(&c.date, "d", "0d", "Date of the balance. See the user manual for supported date formats.")
}

func (c *balanceCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	o, err := c.options(pnl.Balance)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	if o.ReportDate, err = date.Parse(c.date); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing date: %v\n", err)
		return subcommands.ExitUsageError
	}
	return runReport(ctx, o, c.json)
}

// plCmd holds the flags for the 'pl' subcommand.
type plCmd struct {
	reportFlags
	date, since    string
	split, addZero bool
}

func (*plCmd) Name() string     { return "pl" }
func (*plCmd) Synopsis() string { return "display realised and unrealised profit and loss" }
func (*plCmd) Usage() string {
	return `pnl pl [-d <date>] [-s <date>] [-split] [flags]

  Displays the profit and loss of every group up to a date, or between two
  dates with -s.

Usage Examples:
# P&L since the beginning of the year, closed and open parts on separate lines.
$ pnl pl -s 2025-01-01 -split
`
}

func (c *plCmd) SetFlags(f *flag.FlagSet) {
	c.reportFlags.SetFlags(f)
	f.StringVar(&c.date, "d", "0d", "Date of the report. See the user manual for supported date formats.")
	f.StringVar(&c.since, "s", "", "Report the P&L accumulated after that date only.")
	f.BoolVar(&c.split, "split", false, "Show closed and open parts of each position on separate lines")
	f.BoolVar(&c.addZero, "zero", false, "With -split, keep closed parts without P&L")
}

func (c *plCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	o, err := c.options(pnl.PL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	if o.ReportDate, err = date.Parse(c.date); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing date: %v\n", err)
		return subcommands.ExitUsageError
	}
	if c.since != "" {
		if o.PLFirstDate, err = date.Parse(c.since); err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing start date: %v\n", err)
			return subcommands.ExitUsageError
		}
	}
	o.SplitClosedOpened, o.PLIncludeZero = c.split, c.addZero
	return runReport(ctx, o, c.json)
}

// runReport builds and prints a balance or P&L report.
func runReport(ctx context.Context, o pnl.Options, asJSON bool) subcommands.ExitStatus {
	s, err := openStore()
	if err != nil {
		return exitStatus(err)
	}
	defer s.Close()

	b, err := newBuilder(ctx, s)
	if err != nil {
		return exitStatus(err)
	}
	report, err := b.Build(ctx, o)
	if err != nil {
		return exitStatus(err)
	}
	if asJSON {
		return printJSON(report)
	}
	printMarkdown(renderer.ReportMarkdown(report))
	return subcommands.ExitSuccess
}

func printJSON(v any) subcommands.ExitStatus {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding report: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
