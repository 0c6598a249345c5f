package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/etnz/pnl"
	"github.com/etnz/pnl/date"
	"github.com/etnz/pnl/renderer"
	"github.com/google/subcommands"
)

type performanceCmd struct {
	reportFlags
	begin, end, period string
}

func (*performanceCmd) Name() string { return "performance" }
func (*performanceCmd) Synopsis() string {
	return "display the time-weighted return of every group over periods"
}
func (*performanceCmd) Usage() string {
	return `pnl performance -s <date> [-d <date>] [-p <period>] [flags]

  Cuts the range into calendar periods and displays, for each period and
  group, the NAV at both ends, the cash flows, the average invested NAV and
  the return, chained into a cumulative return.

Usage Examples:
# Monthly returns of the current year.
$ pnl performance -s 2025-01-01 -p monthly
`
}

func (c *performanceCmd) SetFlags(f *flag.FlagSet) {
	c.reportFlags.SetFlags(f)
	f.StringVar(&c.begin, "s", "-1y", "Start date of the range.")
	f.StringVar(&c.end, "d", "0d", "End date of the range.")
	f.StringVar(&c.period, "p", "monthly", "Period length: daily, weekly, monthly, quarterly or yearly.")
}

func (c *performanceCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	o, err := c.options(pnl.Balance)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	po := pnl.PerformanceOptions{Options: o}
	if po.Begin, err = date.Parse(c.begin); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing start date: %v\n", err)
		return subcommands.ExitUsageError
	}
	if po.End, err = date.Parse(c.end); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing end date: %v\n", err)
		return subcommands.ExitUsageError
	}
	if po.Period, err = date.ParsePeriod(c.period); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}

	s, err := openStore()
	if err != nil {
		return exitStatus(err)
	}
	defer s.Close()

	b, err := newBuilder(ctx, s)
	if err != nil {
		return exitStatus(err)
	}
	report, err := b.BuildPerformance(ctx, po)
	if err != nil {
		return exitStatus(err)
	}
	if c.json {
		return printJSON(report)
	}
	printMarkdown(renderer.PerformanceMarkdown(report))
	return subcommands.ExitSuccess
}
