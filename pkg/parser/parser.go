package parser

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"albumgrab/pkg/models"
)

// Parser extracts structured facts from a fetched page. Implementations are
// site-specific; the crawler only depends on this contract.
type Parser interface {
	// Listing returns the album entries found on a listing page
	Listing(doc *goquery.Document) []models.ListingEntry
	// PaginationMax returns the highest page number visible in the
	// pagination widget, or 1 when none is found
	PaginationMax(doc *goquery.Document) int
	// PaginationLinks returns the absolute URLs of the pagination anchors
	PaginationLinks(doc *goquery.Document) []string
	// Images returns the absolute image URLs found on a photo page
	Images(doc *goquery.Document) []string
}

// Selectors holds the CSS selectors a SiteParser uses to locate listing
// cards, titles, pagination anchors and content images.
type Selectors struct {
	ListingCard  string
	ListingTitle string
	Pagination   string
	Image        string
}

// DefaultSelectors returns the selector set for the default target site
func DefaultSelectors() Selectors {
	return Selectors{
		ListingCard:  "li.i_list > a",
		ListingTitle: ".postlist-imagenum span",
		Pagination:   ".page a",
		Image:        ".content_left img",
	}
}

// SiteParser implements Parser with configurable selectors, resolving every
// extracted link against the site base URL.
type SiteParser struct {
	base *url.URL
	sel  Selectors
}

// NewSiteParser creates a parser for the site at baseURL
func NewSiteParser(baseURL string, sel Selectors) (*SiteParser, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	return &SiteParser{base: base, sel: sel}, nil
}

// Listing extracts album cards from a listing page. Cards missing either an
// href or a title are skipped.
func (p *SiteParser) Listing(doc *goquery.Document) []models.ListingEntry {
	var entries []models.ListingEntry

	doc.Find(p.sel.ListingCard).Each(func(i int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || href == "" {
			return
		}

		title := strings.TrimSpace(s.Find(p.sel.ListingTitle).Text())
		if title == "" {
			return
		}

		entries = append(entries, models.ListingEntry{
			Title: title,
			URL:   p.resolve(href),
		})
	})

	return entries
}

var pageNumberPattern = regexp.MustCompile(`\d+`)

// PaginationMax returns the highest page number among the pagination anchors.
// Sites with a single-page listing have no widget; the default is 1.
func (p *SiteParser) PaginationMax(doc *goquery.Document) int {
	max := 1

	doc.Find(p.sel.Pagination).Each(func(i int, s *goquery.Selection) {
		m := pageNumberPattern.FindString(strings.TrimSpace(s.Text()))
		if m == "" {
			return
		}
		if n, err := strconv.Atoi(m); err == nil && n > max {
			max = n
		}
	})

	return max
}

// PaginationLinks returns the resolved hrefs of the pagination anchors
func (p *SiteParser) PaginationLinks(doc *goquery.Document) []string {
	var links []string

	doc.Find(p.sel.Pagination).Each(func(i int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || href == "" {
			return
		}
		links = append(links, p.resolve(href))
	})

	return links
}

// Images returns the resolved src attributes of the content images
func (p *SiteParser) Images(doc *goquery.Document) []string {
	var images []string

	doc.Find(p.sel.Image).Each(func(i int, s *goquery.Selection) {
		src, ok := s.Attr("src")
		if !ok || src == "" {
			return
		}
		images = append(images, p.resolve(src))
	})

	return images
}

// resolve makes a possibly-relative href absolute against the site base
func (p *SiteParser) resolve(href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return p.base.ResolveReference(ref).String()
}
