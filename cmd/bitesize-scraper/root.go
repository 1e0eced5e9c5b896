package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bitesize-scraper",
		Short: "Crawl learning-content pages into a plain-text corpus",
		Long: `bitesize-scraper discovers, fetches, filters and extracts learning-content
pages from a structured educational website (BBC Bitesize National 5
Mathematics by default) and writes each one to the output directory as a
plain-text document headed by its source URL and title.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringP("config", "c", "", "Path to a YAML configuration file (optional)")
	cmd.PersistentFlags().StringP("loglevel", "l", "info", "Log level (trace, debug, info, warn, error)")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewValidateCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
