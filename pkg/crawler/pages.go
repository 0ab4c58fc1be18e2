package crawler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"albumgrab/pkg/models"
	"albumgrab/pkg/ui"
)

const minuteWindow = time.Minute

// listingURL builds the URL of the nth listing page. The first page is the
// site root; later pages live under /page/N/.
func (c *Crawler) listingURL(page int) string {
	base := strings.TrimSuffix(c.config.Site.BaseURL, "/")
	if page <= 1 {
		return base + "/"
	}
	return fmt.Sprintf("%s/page/%d/", base, page)
}

// ListAlbums fetches one listing page and returns its album entries. A
// fetch failure is page-fatal and propagated; a page with no recognizable
// cards yields an empty slice.
func (c *Crawler) ListAlbums(ctx context.Context, page int) ([]models.ListingEntry, error) {
	doc, err := c.client.Document(ctx, c.listingURL(page))
	if err != nil {
		return nil, err
	}

	return c.parser.Listing(doc), nil
}

// DiscoverLastPage fetches the first listing page and reads the highest
// page number from its pagination widget. Sites without a widget report 1.
func (c *Crawler) DiscoverLastPage(ctx context.Context) (int, error) {
	doc, err := c.client.Document(ctx, c.listingURL(c.config.Crawl.StartPage))
	if err != nil {
		return 0, err
	}

	return c.parser.PaginationMax(doc), nil
}

// ResolvePages determines the full set of sub-page URLs belonging to one
// album: the pagination anchors of its base page, unioned with the base URL
// itself. A failed base fetch is album-fatal; no partial set is returned.
func (c *Crawler) ResolvePages(ctx context.Context, entry models.ListingEntry) (models.PageSet, error) {
	base := strings.TrimSuffix(entry.URL, "/")

	doc, err := c.client.Document(ctx, base)
	if err != nil {
		return nil, err
	}

	pages := models.NewPageSet(base)
	for _, link := range c.parser.PaginationLinks(doc) {
		pages.Add(link)
	}

	return pages, nil
}

// ExtractImages concurrently fetches every page in the set and flattens
// their image URLs into one sequence. Page-level errors are logged and
// contribute nothing; they never abort the album. The sequence order is the
// completion order of the fetches, which is deliberately non-deterministic.
func (c *Crawler) ExtractImages(ctx context.Context, entry models.ListingEntry, pages models.PageSet) []string {
	urls := pages.URLs()

	jobs := make(chan string, len(urls))
	found := make(chan []string, len(urls))

	workers := c.config.Crawl.PageWorkers
	if workers > len(urls) {
		workers = len(urls)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pageURL := range jobs {
				found <- c.imagesFromPage(ctx, pageURL)
			}
		}()
	}

	for _, u := range urls {
		jobs <- u
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(found)
	}()

	progress := ui.NewProgress("extracting", len(urls))
	var photos []string
	for batch := range found {
		photos = append(photos, batch...)
		progress.Advance()
	}
	progress.Finish()

	c.logger.DebugWithFields("image extraction finished", map[string]interface{}{
		"title":  entry.Title,
		"pages":  len(urls),
		"images": len(photos),
	})

	return photos
}

// imagesFromPage fetches and parses a single sub-page. Any error is reduced
// to an empty result.
func (c *Crawler) imagesFromPage(ctx context.Context, pageURL string) []string {
	doc, err := c.client.Document(ctx, pageURL)
	if err != nil {
		c.logger.WarnWithFields("sub-page fetch failed", map[string]interface{}{
			"url":   pageURL,
			"error": err.Error(),
		})
		return nil
	}

	return c.parser.Images(doc)
}
