package crawler

import (
	"context"
	"errors"
	"fmt"

	"albumgrab/internal/downloader"
	"albumgrab/pkg/config"
	"albumgrab/pkg/fetch"
	"albumgrab/pkg/logger"
	"albumgrab/pkg/models"
	"albumgrab/pkg/pacing"
	"albumgrab/pkg/parser"
	"albumgrab/pkg/ratelimit"
	"albumgrab/pkg/storage"
	"albumgrab/pkg/ui"
)

// Crawler drives the top-level loop over listing pages and albums. Albums
// are processed one at a time; concurrency only fans out within an album,
// so no two albums' pools ever run at once.
type Crawler struct {
	client  *fetch.Client
	parser  parser.Parser
	store   *storage.Manager
	pacer   pacing.Pacer
	config  *config.Config
	logger  logger.Logger
	summary Summary
}

// Summary holds per-run counters
type Summary struct {
	Pages     int
	Albums    int
	Succeeded int
	Failed    int
}

// New creates a crawler from the configuration
func New(cfg *config.Config) (*Crawler, error) {
	log := logger.GetLogger()

	client := fetch.NewClient(cfg.Crawl.Timeout, log)
	client.SetHeader("User-Agent", cfg.Site.UserAgent)
	if cfg.Site.AcceptLanguage != "" {
		client.SetHeader("Accept-Language", cfg.Site.AcceptLanguage)
	}
	if cfg.Site.RequestsPerMinute > 0 {
		client.SetLimiter(ratelimit.NewTokenBucket(cfg.Site.RequestsPerMinute, minuteWindow))
	}

	siteParser, err := parser.NewSiteParser(cfg.Site.BaseURL, parser.Selectors{
		ListingCard:  cfg.Site.Selectors.ListingCard,
		ListingTitle: cfg.Site.Selectors.ListingTitle,
		Pagination:   cfg.Site.Selectors.Pagination,
		Image:        cfg.Site.Selectors.Image,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create site parser: %w", err)
	}

	store, err := storage.NewManager(cfg.Output.BaseDirectory, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage manager: %w", err)
	}

	return &Crawler{
		client: client,
		parser: siteParser,
		store:  store,
		pacer:  pacing.FromConfig(&cfg.Pacing),
		config: cfg,
		logger: log,
	}, nil
}

// Run crawls listing pages from the configured start page to the end page,
// discovering the end page when it is not set. Listing-page and album
// failures are logged and skipped; only cancellation aborts the run.
func (c *Crawler) Run(ctx context.Context) error {
	start := c.config.Crawl.StartPage
	end := c.config.Crawl.EndPage

	if end <= 0 {
		discovered, err := c.DiscoverLastPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to discover last listing page: %w", err)
		}
		end = discovered
		c.logger.InfoWithFields("discovered last listing page", map[string]interface{}{
			"last_page": end,
		})
	}

	for page := start; page <= end; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		entries, err := c.ListAlbums(ctx, page)
		if err != nil {
			c.logger.WarnWithFields("listing page failed, skipping", map[string]interface{}{
				"page":  page,
				"error": err.Error(),
			})
			continue
		}
		c.summary.Pages++

		c.logger.InfoWithFields("listing page fetched", map[string]interface{}{
			"page":   page,
			"albums": len(entries),
		})

		for _, entry := range entries {
			if err := ctx.Err(); err != nil {
				return err
			}

			ui.PrintHighlight(fmt.Sprintf(">>> album: %s", entry.Title))
			if err := c.processAlbum(ctx, entry); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				c.logger.ErrorWithFields("album failed", map[string]interface{}{
					"title": entry.Title,
					"error": err.Error(),
				})
			}
			c.summary.Albums++

			c.pacer.Pause(ctx)
		}

		c.pacer.Pause(ctx)
	}

	c.logger.InfoWithFields("crawl completed", map[string]interface{}{
		"pages":      c.summary.Pages,
		"albums":     c.summary.Albums,
		"downloaded": c.summary.Succeeded,
		"failed":     c.summary.Failed,
	})

	return nil
}

// processAlbum runs one album through the full pipeline: resolve its page
// set, extract image URLs, download them, record failures.
func (c *Crawler) processAlbum(ctx context.Context, entry models.ListingEntry) error {
	pages, err := c.ResolvePages(ctx, entry)
	if err != nil {
		return fmt.Errorf("failed to resolve album pages: %w", err)
	}

	photos := c.ExtractImages(ctx, entry, pages)

	dir, err := c.store.AlbumDir(entry.Title)
	if err != nil {
		return err
	}

	if len(photos) == 0 {
		c.logger.WarnWithFields("no images found for album", map[string]interface{}{
			"title": entry.Title,
			"pages": len(pages),
		})
		return nil
	}

	c.logger.InfoWithFields("downloading album", map[string]interface{}{
		"title":  entry.Title,
		"images": len(photos),
	})

	failures := c.downloadAlbum(ctx, entry, dir, photos)

	if err := c.store.WriteFailureLog(dir, failures); err != nil {
		// The sidecar is bookkeeping; a write failure must not fail the
		// album, but it must leave a trace.
		c.logger.WarnWithFields("failed to write failure log", map[string]interface{}{
			"title": entry.Title,
			"error": err.Error(),
		})
	}

	return nil
}

// downloadAlbum fans the album's image URLs out to the download pool.
// Destination indices come from the position in the photo sequence at
// submission time, so filenames are deterministic no matter which download
// finishes first.
func (c *Crawler) downloadAlbum(ctx context.Context, entry models.ListingEntry, dir string, photos []string) *models.FailureRecord {
	pool := downloader.NewPool(ctx, downloader.Options{
		Workers:    c.config.Download.Workers,
		Retries:    c.config.Download.Retries,
		RetryDelay: c.config.Download.RetryDelay,
		Overwrite:  c.config.Download.Overwrite,
	}, c.client, c.store, c.logger)
	pool.Start()

	failures := &models.FailureRecord{}
	progress := ui.NewProgress("downloading", len(photos))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for result := range pool.Results() {
			if result.Failed() {
				c.summary.Failed++
				failures.Add(result.Task.URL, result.Err)
				ui.PrintError("download failed", result.Err)
			} else {
				c.summary.Succeeded++
			}
			progress.Advance()
		}
	}()

	// The drain goroutine owns the record until done is closed; submit
	// failures are held locally and merged afterwards.
	type submitFailure struct {
		url string
		err error
	}
	var rejected []submitFailure

	for i, photo := range photos {
		err := pool.Submit(downloader.Task{
			URL:     photo,
			Index:   i,
			Dir:     dir,
			Referer: entry.URL,
		})
		if err != nil {
			rejected = append(rejected, submitFailure{url: photo, err: err})
		}
	}

	pool.Stop()
	<-done
	progress.Finish()

	for _, f := range rejected {
		c.summary.Failed++
		failures.Add(f.url, f.err)
	}

	return failures
}
