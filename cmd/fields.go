package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/etnz/pnl"
	"github.com/etnz/pnl/customfield"
	"github.com/google/subcommands"
)

type fieldsCmd struct {
	file       string
	attributes bool
}

func (*fieldsCmd) Name() string     { return "fields" }
func (*fieldsCmd) Synopsis() string { return "check custom field expressions" }
func (*fieldsCmd) Usage() string {
	return `pnl fields [-f <fields.json>] [-a] [<expression>...]

  Checks that custom field expressions only use the item attributes and
  functions available to report fields, and that they parse.

Usage Examples:
$ pnl fields 'item.market_value_res / 1000'
$ pnl fields -a
`
}

func (c *fieldsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.file, "f", "", "JSON file of custom fields to check")
	f.BoolVar(&c.attributes, "a", false, "List the item attributes available to expressions")
}

func (c *fieldsCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.attributes {
		fmt.Println(strings.Join(pnl.ItemAttributes(), "\n"))
		return subcommands.ExitSuccess
	}

	var fields []customfield.Field
	if c.file != "" {
		var err error
		if fields, err = readFields(c.file); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
	}
	for i, expr := range f.Args() {
		code := fmt.Sprintf("arg%d", i+1)
		fields = append(fields, customfield.Field{UserCode: code, Name: code, Expression: expr})
	}
	if len(fields) == 0 {
		fmt.Fprintln(os.Stderr, "Error: no expression to check")
		return subcommands.ExitUsageError
	}

	if invalid := checkFields(os.Stdout, fields); invalid > 0 {
		fmt.Fprintf(os.Stderr, "Error: %d invalid expressions\n", invalid)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// checkFields writes the status of every field to w and returns the number of invalid ones.
func checkFields(w io.Writer, fields []customfield.Field) (invalid int) {
	e := customfield.New(fields, pnl.ItemAttributes())
	for i, err := range e.Errors() {
		if err != nil {
			invalid++
			fmt.Fprintf(w, "❌ %s: %v\n", fields[i].UserCode, err)
			continue
		}
		fmt.Fprintf(w, "✅ %s: %s\n", fields[i].UserCode, fields[i].Expression)
	}
	return invalid
}
