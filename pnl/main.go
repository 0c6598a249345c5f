// Command pnl builds balance, P&L and performance reports from a portfolio database.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/etnz/pnl/cmd"
	"github.com/etnz/pnl/docs"
	"github.com/google/subcommands"
	"github.com/posener/complete/v2"
	"github.com/posener/complete/v2/predict"
)

func main() {
	cmd.LoadEnv(".env")
	cmd.SetFlags(flag.CommandLine)

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	for _, c := range cmd.Commands {
		commander.Register(c, "")
	}

	// Handles COMP_LINE when invoked by the shell, and returns otherwise.
	completion().Complete(path.Base(os.Args[0]))

	flag.Parse()
	cmd.InitLogger()

	if name := flag.Arg(0); name != "" && !registered(name) {
		if found, code := cmd.RunExtension(name, flag.Args()[1:]); found {
			os.Exit(code)
		}
	}
	os.Exit(int(commander.Execute(context.Background())))
}

func registered(name string) bool {
	if name == "help" || name == "flags" {
		return true
	}
	for _, c := range cmd.Commands {
		if c.Name() == name {
			return true
		}
	}
	return false
}

// completion describes the commands and their flags for shell completion.
func completion() *complete.Command {
	root := &complete.Command{
		Sub:   map[string]*complete.Command{"help": {}, "flags": {}},
		Flags: flags(flag.CommandLine),
	}
	root.Flags["db"] = predict.Files("*.db")
	for _, c := range cmd.Commands {
		fs := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
		c.SetFlags(fs)
		sub := &complete.Command{Flags: flags(fs)}
		switch c.Name() {
		case "import":
			sub.Args = predict.Files("*.jsonl")
		case "fields":
			sub.Flags["f"] = predict.Files("*.json")
		case "topic":
			topics, _ := docs.All()
			sub.Args = predict.Set(append(topics, "readme", "*"))
		}
		if _, ok := sub.Flags["fields"]; ok {
			sub.Flags["fields"] = predict.Files("*.json")
		}
		root.Sub[c.Name()] = sub
	}
	return root
}

func flags(fs *flag.FlagSet) map[string]complete.Predictor {
	m := make(map[string]complete.Predictor)
	fs.VisitAll(func(f *flag.Flag) {
		if b, ok := f.Value.(interface{ IsBoolFlag() bool }); ok && b.IsBoolFlag() {
			m[f.Name] = predict.Nothing
			return
		}
		m[f.Name] = predict.Something
	})
	return m
}
