package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/pevans/newscrawl/crawl"
	"github.com/pevans/newscrawl/sources"
	"github.com/spf13/cobra"
)

func newCrawlCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run one crawl cycle and print its summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			orch, err := a.orchestrator(ctx)
			if err != nil {
				return err
			}

			summary, err := orch.RunCycle(ctx)
			if err != nil {
				return fmt.Errorf("crawl failed: %w", err)
			}

			return printSummary(cmd.OutOrStdout(), summary, format)
		},
	}

	cmd.Flags().StringVar(&format, "format", "table", "output format (table or json)")

	return cmd
}

func newMigrateCommand() *cobra.Command {
	var batchSize int

	cmd := &cobra.Command{
		Use:   "migrate-content",
		Short: "Move inline article bodies into the content store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			migrated, err := crawl.NewMigrator(a.repo, a.store, a.log).Run(ctx, batchSize)
			fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d articles\n", migrated)
			if err != nil {
				return fmt.Errorf("migration stopped: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&batchSize, "batch", crawl.DefaultMigrationBatch, "articles per batch")

	return cmd
}

func newSweepCommand() *cobra.Command {
	var grace time.Duration

	cmd := &cobra.Command{
		Use:   "sweep-orphans",
		Short: "Delete stored bodies that no article references",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if !cmd.Flags().Changed("grace") {
				grace = a.cfg.Sweep.Grace
			}

			result, err := crawl.NewSweeper(a.repo, a.store, grace, a.log).Sweep(ctx)
			if err != nil {
				return fmt.Errorf("sweep failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Scanned %d objects, deleted %d, failed %d\n",
				result.Scanned, result.Deleted, result.Failed)
			return nil
		},
	}

	cmd.Flags().DurationVar(&grace, "grace", crawl.DefaultSweepGrace,
		"skip objects modified more recently than this")

	return cmd
}

func newSourcesCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List the configured news sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			sites, err := sources.Load(file)
			if err != nil {
				return err
			}
			printSources(cmd.OutOrStdout(), sites)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "sources YAML file (default: built-in sources)")

	return cmd
}
