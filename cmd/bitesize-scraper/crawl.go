package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Sriram-PR/bitesize-scraper/pkg/config"
	"github.com/Sriram-PR/bitesize-scraper/pkg/crawler"
	"github.com/Sriram-PR/bitesize-scraper/pkg/log"
)

// shutdownGrace is how long a signalled crawl may take to wind down before the process exits.
const shutdownGrace = 30 * time.Second

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [start-url...]",
		Short: "Crawl the target site and write documents to the output directory",
		Long: `Crawl starts from the given URLs (or the configured start_urls, or the
default subject landing page) and follows in-scope links, revision guides
first, until the frontier is empty or --max-pages pages have been crawled.

Examples:
  # Crawl the default subject with the default budget of 200 pages
  bitesize-scraper crawl

  # Crawl 50 pages into ./corpus with four workers
  bitesize-scraper crawl -n 50 -o corpus -w 4

  # Use a configuration file and a custom start page
  bitesize-scraper crawl -c config.yaml https://www.bbc.co.uk/bitesize/subjects/ztrjmp3`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	cmd.Flags().IntP("max-pages", "n", 200, "Maximum number of pages to crawl")
	cmd.Flags().StringP("output", "o", "docs", "Output directory for saved documents")
	cmd.Flags().IntP("workers", "w", 1, "Number of concurrent crawl workers")
	cmd.Flags().Duration("timeout", 0, "Global crawl timeout (0 disables)")
	cmd.Flags().String("write-visited-log", "", "Write every visited URL and its status to this file after the crawl")

	return cmd
}

func runCrawlCmd(cmd *cobra.Command, args []string) error {
	appCfg, logger, err := loadCrawlConfig(cmd, args)
	if err != nil {
		return err
	}
	baseLog := logrus.NewEntry(logger)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go handleSignals(ctx, sigChan, cancel, baseLog)

	c, err := crawler.NewCrawler(appCfg, baseLog)
	if err != nil {
		return fmt.Errorf("initialize crawler: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Run %s\n", c.RunID())
	summary, err := c.Run(ctx)
	fmt.Fprintf(cmd.OutOrStdout(), "Crawled %d pages (%d failed), saved %d documents to %s in %v\n",
		summary.PagesCrawled, summary.PagesFailed, summary.PagesSaved, appCfg.OutputDir,
		summary.Duration.Round(time.Millisecond))

	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		baseLog.Warn("Global crawl timeout reached; output is partial.")
		return nil
	case errors.Is(err, context.Canceled):
		baseLog.Warn("Crawl interrupted; output is partial.")
		return nil
	default:
		return err
	}
}

// loadCrawlConfig loads the optional config file, applies flag and argument
// overrides, validates the result and builds the logger.
func loadCrawlConfig(cmd *cobra.Command, args []string) (*config.AppConfig, *logrus.Logger, error) {
	flags := cmd.Flags()

	level, _ := flags.GetString("loglevel")
	logger, err := log.New(level, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}

	path, _ := flags.GetString("config")
	appCfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if path != "" {
		logger.Infof("Loaded configuration from %s", path)
	}

	// Flags override the file only when given explicitly
	if flags.Changed("max-pages") {
		appCfg.MaxPages, _ = flags.GetInt("max-pages")
	}
	if flags.Changed("output") {
		appCfg.OutputDir, _ = flags.GetString("output")
	}
	if flags.Changed("workers") {
		appCfg.NumWorkers, _ = flags.GetInt("workers")
	}
	if flags.Changed("timeout") {
		appCfg.GlobalCrawlTimeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("write-visited-log") {
		appCfg.Report.VisitedLogPath, _ = flags.GetString("write-visited-log")
	}
	if len(args) > 0 {
		appCfg.StartURLs = args
	}

	for _, u := range appCfg.StartURLs {
		if err := config.ValidateStartURL(u); err != nil {
			return nil, nil, err
		}
	}

	warnings, err := appCfg.Validate()
	for _, w := range warnings {
		logger.Warnf("Config: %s", w)
	}
	if err != nil {
		return nil, nil, err
	}
	return appCfg, logger, nil
}

// handleSignals cancels the crawl on the first SIGINT/SIGTERM and exits the
// process on a second signal or when the grace period runs out.
func handleSignals(ctx context.Context, sigChan <-chan os.Signal, cancel context.CancelFunc, logger *logrus.Entry) {
	var sig os.Signal
	select {
	case sig = <-sigChan:
	case <-ctx.Done():
		return
	}
	logger.Warnf("Received signal: %v. Initiating graceful shutdown...", sig)
	cancel()

	select {
	case sig = <-sigChan:
		logger.Warnf("Received second signal: %v. Forcing exit.", sig)
		os.Exit(1)
	case <-time.After(shutdownGrace):
		logger.Warn("Graceful shutdown period exceeded after signal. Forcing exit.")
		os.Exit(1)
	}
}
