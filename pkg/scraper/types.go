package scraper

import (
	"strconv"
	"strings"
)

// Category is one paginated listing to walk. URLTemplate contains a
// "{page}" placeholder that PageURL substitutes.
type Category struct {
	URLTemplate string `mapstructure:"url_template" yaml:"url_template"`
	MaxPages    int    `mapstructure:"max_pages" yaml:"max_pages"`
}

func (c Category) PageURL(page int) string {
	return strings.Replace(c.URLTemplate, "{page}", strconv.Itoa(page), 1)
}

// Slug returns the last path segment of the category URL, used only for
// log context.
func (c Category) Slug() string {
	s := c.URLTemplate
	if i := strings.IndexByte(s, '?'); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		s = s[i+1:]
	}
	return s
}

// Listing is the raw per-node extraction result, before the price string
// has been normalized. Every field except URL may be empty.
type Listing struct {
	SiteID   string
	URL      string
	Name     string
	RawPrice string
	ImageURL string
}

// Product is one row of the products table, keyed by URL. Name, price and
// image are nullable: a listing that failed to yield them is stored with
// NULLs rather than empty strings.
type Product struct {
	URL       string   `db:"url"`
	Name      *string  `db:"name"`
	PriceARS  *float64 `db:"price_ars"`
	ImageURL  *string  `db:"image_url"`
	ScrapedAt string   `db:"scraped_at"`
}

// PriceChange is one append-only change-trail record. Percentage is
// +Inf when the previous price was zero.
type PriceChange struct {
	Timestamp  string
	ProductID  string
	Name       string
	OldPrice   float64
	NewPrice   float64
	Percentage float64
	URL        string
}

// PageStatus classifies the outcome of fetching one listing page so the
// pipeline branches on data instead of errors.
type PageStatus int

const (
	// PageData means the page was fetched and contained listing nodes.
	PageData PageStatus = iota
	// PageEmpty means the page was fetched but matched no listing nodes;
	// the category has run out of pages.
	PageEmpty
	// PageNotFound means the server answered 404; the category has run
	// out of pages.
	PageNotFound
	// PageError means the fetch failed in a way worth retrying later
	// (network error, timeout, non-2xx other than 404).
	PageError
)

// PageResult is what came back from one page fetch. Listings is populated
// only for PageData; Err only for PageError.
type PageResult struct {
	Status   PageStatus
	Listings []Listing
	Err      error
}
