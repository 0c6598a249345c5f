package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/etnz/pnl"
	"github.com/etnz/pnl/logger"
	"github.com/google/subcommands"
)

type importCmd struct {
	check bool
}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "import currencies, instruments, transactions and quotes" }
func (*importCmd) Usage() string {
	return `pnl import [-n] <file.jsonl>...

  Reads JSONL files, one record per line with a "kind" of currency,
  instrument, account, transaction, price or fx, and writes them into the
  database. Records replace existing records with the same keys. Use - to
  read standard input.

Usage Examples:
$ pnl import market.jsonl trades.jsonl
`
}

func (c *importCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.check, "n", false, "Decode the files only, without writing the database")
}

func (c *importCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: import requires at least one file")
		return subcommands.ExitUsageError
	}

	sources := make([]*pnl.Memory, 0, f.NArg())
	for _, name := range f.Args() {
		m, err := decodeFile(name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
		sources = append(sources, m)
	}
	if c.check {
		fmt.Fprintf(os.Stderr, "✅ %d files decoded.\n", len(sources))
		return subcommands.ExitSuccess
	}

	s, err := openStore()
	if err != nil {
		return exitStatus(err)
	}
	defer s.Close()

	ctx = logger.NewContext(ctx, logger.L)
	for i, m := range sources {
		if err := s.Import(ctx, m); err != nil {
			fmt.Fprintf(os.Stderr, "Error importing %q: %v\n", f.Arg(i), err)
			return subcommands.ExitFailure
		}
		fmt.Fprintf(os.Stderr, "Imported %q into %s\n", f.Arg(i), *dbPath)
	}
	return subcommands.ExitSuccess
}

func decodeFile(name string) (*pnl.Memory, error) {
	var r io.Reader = os.Stdin
	if name != "-" {
		file, err := os.Open(name)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		r = file
	}
	m, err := pnl.DecodeSources(r)
	if err != nil {
		return nil, fmt.Errorf("decoding %q: %w", name, err)
	}
	return m, nil
}
