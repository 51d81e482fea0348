package scraper

import (
	"strings"

	"github.com/gocolly/colly/v2"
)

// listingSelector matches one product card on a category page.
const listingSelector = "article.product-miniature"

// Sub-selectors for the fields of a single card.
const (
	siteIDAttr    = "data-id-product"
	urlSelector   = "a.product-thumbnail"
	nameSelector  = "h2.product-title a"
	priceSelector = "span.price"
	imageSelector = "a.product-thumbnail img"
)

// imageAttrs is the fallback chain for the image URL; the first attribute
// with a non-empty value wins.
var imageAttrs = []string{"data-full-size-image-url", "data-src", "src"}

// listingFrom maps one product card element to a raw Listing. URL and
// image are resolved against the page URL; a card with no link yields a
// Listing with an empty URL, which the fetcher drops.
func listingFrom(e *colly.HTMLElement) Listing {
	l := Listing{
		SiteID:   strings.TrimSpace(e.Attr(siteIDAttr)),
		Name:     strings.TrimSpace(e.ChildText(nameSelector)),
		RawPrice: strings.TrimSpace(e.ChildText(priceSelector)),
	}
	if href := strings.TrimSpace(e.ChildAttr(urlSelector, "href")); href != "" {
		l.URL = e.Request.AbsoluteURL(href)
	}
	for _, attr := range imageAttrs {
		if v := strings.TrimSpace(e.ChildAttr(imageSelector, attr)); v != "" {
			l.ImageURL = e.Request.AbsoluteURL(v)
			break
		}
	}
	return l
}
