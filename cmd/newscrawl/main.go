// Command newscrawl crawls news sites on a schedule and serves the stored
// articles over HTTP.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// cfgFile holds the --config flag.
var cfgFile string

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "newscrawl",
		Short:         "News crawl-and-ingest pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is ~/.newscrawl/config.yaml)")

	root.AddCommand(
		newServeCommand(),
		newCrawlCommand(),
		newMigrateCommand(),
		newSweepCommand(),
		newSourcesCommand(),
	)

	return root
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
