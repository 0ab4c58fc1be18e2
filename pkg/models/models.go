package models

import "fmt"

// ListingEntry is one album card found on a listing page. Immutable once
// produced by the parser.
type ListingEntry struct {
	Title string
	URL   string
}

// PageSet is the deduplicated set of sub-page URLs belonging to one album.
// It always contains the album's own base URL. Insertion order is irrelevant;
// it is consumed as an unordered work set.
type PageSet map[string]struct{}

// NewPageSet creates a PageSet seeded with the given URLs
func NewPageSet(urls ...string) PageSet {
	ps := make(PageSet, len(urls))
	for _, u := range urls {
		ps.Add(u)
	}
	return ps
}

// Add inserts a URL into the set
func (ps PageSet) Add(url string) {
	ps[url] = struct{}{}
}

// Contains reports whether the URL is in the set
func (ps PageSet) Contains(url string) bool {
	_, ok := ps[url]
	return ok
}

// URLs returns the set contents as a slice in unspecified order
func (ps PageSet) URLs() []string {
	urls := make([]string, 0, len(ps))
	for u := range ps {
		urls = append(urls, u)
	}
	return urls
}

// FailureRecord accumulates download failure messages for one album.
// It is persisted to the album's sidecar file only when non-empty.
type FailureRecord struct {
	lines []string
}

// Add records a failed URL with its reason
func (fr *FailureRecord) Add(url string, err error) {
	fr.lines = append(fr.lines, fmt.Sprintf("%s | %v", url, err))
}

// Lines returns the recorded failure messages in insertion order
func (fr *FailureRecord) Lines() []string {
	return fr.lines
}

// Empty reports whether any failures were recorded
func (fr *FailureRecord) Empty() bool {
	return len(fr.lines) == 0
}
