package scraper

import (
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// FetcherConfig controls the HTTP side of a Fetcher.
type FetcherConfig struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher fetches one listing page at a time and classifies the result.
// A single synchronous colly collector is reused across pages; the caller
// drives pagination, so there is never more than one request in flight.
type Fetcher struct {
	colly *colly.Collector
	log   *zap.Logger

	// per-visit capture, reset by Page
	nodes    []Listing
	status   int
	fetchErr error
}

func NewFetcher(cfg FetcherConfig, log *zap.Logger) *Fetcher {
	c := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)
	if cfg.Timeout > 0 {
		c.SetRequestTimeout(cfg.Timeout)
	}

	f := &Fetcher{colly: c, log: log}

	c.OnHTML(listingSelector, func(e *colly.HTMLElement) {
		f.nodes = append(f.nodes, listingFrom(e))
	})
	c.OnResponse(func(r *colly.Response) {
		f.status = r.StatusCode
	})
	c.OnError(func(r *colly.Response, err error) {
		f.status = r.StatusCode
		f.fetchErr = err
	})

	return f
}

// Page fetches url and reports what came back. Listings are returned in
// document order. A card without a product URL cannot be keyed and is
// dropped; a card without a site id is kept, its change-trail correlation
// degrades to "N/A".
func (f *Fetcher) Page(url string) PageResult {
	f.nodes = nil
	f.status = 0
	f.fetchErr = nil

	err := f.colly.Visit(url)

	if f.status == http.StatusNotFound {
		return PageResult{Status: PageNotFound}
	}
	if f.fetchErr != nil {
		return PageResult{Status: PageError, Err: f.fetchErr}
	}
	if err != nil {
		return PageResult{Status: PageError, Err: err}
	}
	if len(f.nodes) == 0 {
		return PageResult{Status: PageEmpty}
	}

	kept := make([]Listing, 0, len(f.nodes))
	for _, l := range f.nodes {
		if l.URL == "" {
			f.log.Warn("dropping listing without product URL",
				zap.String("page_url", url),
				zap.String("site_id", l.SiteID))
			continue
		}
		if l.SiteID == "" {
			f.log.Warn("listing has no site product id",
				zap.String("product_url", l.URL))
		}
		kept = append(kept, l)
	}
	return PageResult{Status: PageData, Listings: kept}
}
