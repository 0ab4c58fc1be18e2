package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"albumgrab/pkg/config"
	"albumgrab/pkg/crawler"
	"albumgrab/pkg/logger"
	"albumgrab/pkg/ui"
)

var (
	// Crawl command flags
	baseURL           string
	outputDir         string
	startPage         int
	endPage           int
	pageWorkers       int
	downloadWorkers   int
	retries           int
	requestTimeout    time.Duration
	requestsPerMinute int
	noPacing          bool
)

// crawlCmd represents the crawl command
var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawl listing pages and download every album found",
	Long: `Crawl listing pages from --start to --end and download every album found.

An end page of 0 discovers the last page from the site's pagination widget.
Each album gets its own folder named after its sanitized title; images are
numbered by their position in the discovered sequence.`,
	Example: `  # Crawl the first listing page with defaults
  albumgrab crawl

  # Crawl pages 2 through 5 into a specific directory
  albumgrab crawl --start 2 --end 5 --output ./albums

  # Crawl every listing page, discovering the last one
  albumgrab crawl --end 0 --download-workers 5`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		runCrawl(cmd)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(crawlCmd)

	crawlCmd.Flags().StringVar(&baseURL, "base-url", "", "listing site base URL (default from config)")
	crawlCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory for downloads")
	crawlCmd.Flags().IntVar(&startPage, "start", 1, "first listing page to crawl")
	crawlCmd.Flags().IntVar(&endPage, "end", 1, "last listing page to crawl (0 = discover)")
	crawlCmd.Flags().IntVar(&pageWorkers, "page-workers", 1, "concurrent sub-page fetches per album")
	crawlCmd.Flags().IntVar(&downloadWorkers, "download-workers", 3, "concurrent image downloads")
	crawlCmd.Flags().IntVar(&retries, "retries", 3, "download attempts per image")
	crawlCmd.Flags().DurationVar(&requestTimeout, "timeout", 10*time.Second, "HTTP request timeout")
	crawlCmd.Flags().IntVar(&requestsPerMinute, "rate-limit", 0, "requests per minute (0 = unlimited)")
	crawlCmd.Flags().BoolVar(&noPacing, "no-pacing", false, "disable the randomized inter-request delay")
}

func runCrawl(cmd *cobra.Command) {
	// Build flags map from command line
	flags := make(map[string]interface{})
	if baseURL != "" {
		flags["base-url"] = baseURL
	}
	if outputDir != "" {
		flags["output"] = outputDir
	}
	if cmd.Flags().Changed("start") {
		flags["start"] = startPage
	}
	if cmd.Flags().Changed("end") {
		flags["end"] = endPage
	}
	if cmd.Flags().Changed("page-workers") {
		flags["page-workers"] = pageWorkers
	}
	if cmd.Flags().Changed("download-workers") {
		flags["download-workers"] = downloadWorkers
	}
	if cmd.Flags().Changed("retries") {
		flags["retries"] = retries
	}
	if cmd.Flags().Changed("timeout") {
		flags["timeout"] = requestTimeout
	}
	if cmd.Flags().Changed("rate-limit") {
		flags["requests-per-minute"] = requestsPerMinute
	}
	if noPacing {
		flags["no-pacing"] = true
	}
	if logLevel != "info" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		ui.PrintError("Failed to initialize logger", err.Error())
		os.Exit(1)
	}
	logger.WithField("version", version).Info("albumgrab starting")

	ui.PrintInfo("Target site", cfg.Site.BaseURL)
	ui.PrintInfo("Output", cfg.Output.BaseDirectory)

	c, err := crawler.New(cfg)
	if err != nil {
		ui.PrintError("Failed to initialize crawler", err.Error())
		os.Exit(1)
	}

	// SIGINT stops the run promptly; in-flight downloads are abandoned and
	// never leave a partial file under a final name.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			ui.PrintWarning("Interrupted")
			os.Exit(130)
		}
		logger.WithError(err).Error("Crawl failed")
		ui.PrintError("CRAWL FAILED", err.Error())
		os.Exit(1)
	}

	ui.PrintSuccess("Crawl completed")
}
