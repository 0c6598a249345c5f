package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/etnz/pnl"
	"github.com/etnz/pnl/docs"
	"github.com/google/subcommands"
)

// topicCmd prints the embedded help topics.
type topicCmd struct {
	list bool
	raw  bool
}

func (*topicCmd) Name() string { return "topic" }
func (*topicCmd) Synopsis() string {
	return "print help on data sources, report columns and custom fields"
}
func (*topicCmd) Usage() string {
	return `pnl topic [-l] [-raw] [<topic>...]

  Prints the given help topics, the overview when none is given and every
  topic with '*'. Use -l to list the topics.
`
}

func (c *topicCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.list, "l", false, "List the available topics")
	f.BoolVar(&c.raw, "raw", false, "Print the markdown source instead of rendering it")
}

func (c *topicCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.list {
		if err := listTopics(os.Stdout); err != nil {
			return exitStatus(err)
		}
		return subcommands.ExitSuccess
	}
	topics := f.Args()
	if len(topics) == 0 {
		topics = []string{"readme"}
	}
	if err := checkTopics(topics); err != nil {
		return exitStatus(err)
	}
	doc, err := docs.Topics(topics...)
	if err != nil {
		return exitStatus(err)
	}
	if c.raw {
		fmt.Print(doc)
		return subcommands.ExitSuccess
	}
	printMarkdown(doc)
	return subcommands.ExitSuccess
}

// listTopics writes the name of every topic on its own line.
func listTopics(w io.Writer) error {
	all, err := docs.All()
	if err != nil {
		return err
	}
	for _, t := range append([]string{"readme"}, all...) {
		fmt.Fprintln(w, t)
	}
	return nil
}

// checkTopics returns a usage error for the first unknown topic.
func checkTopics(topics []string) error {
	all, err := docs.All()
	if err != nil {
		return err
	}
	for _, t := range topics {
		if t != "*" && t != "readme" && !slices.Contains(all, t) {
			return fmt.Errorf("%w: unknown topic %q, see pnl topic -l", pnl.ErrBadInput, t)
		}
	}
	return nil
}
