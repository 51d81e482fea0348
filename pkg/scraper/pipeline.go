package scraper

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const scrapedAtLayout = "2006-01-02 15:04:05"

// ProductStore is the durable table the pipeline reconciles against and
// commits to.
type ProductStore interface {
	// Snapshot returns the current url→price map; a stored NULL price is
	// a nil value.
	Snapshot(ctx context.Context) (map[string]*float64, error)
	// UpsertAll inserts-or-replaces the whole batch in one transaction.
	UpsertAll(ctx context.Context, products []Product) error
}

// ChangeLog receives one record per detected price change.
type ChangeLog interface {
	Append(change PriceChange) error
}

// Config is the immutable per-run configuration of the pipeline.
type Config struct {
	Categories []Category
	// PageDelay is the courtesy pause between page fetches; a failed
	// fetch pauses for twice this before the next attempt.
	PageDelay time.Duration
}

// Pipeline walks the configured categories page by page, reconciles every
// extracted listing against the stored snapshot, records price changes
// and commits the new snapshot.
type Pipeline struct {
	fetcher *Fetcher
	store   ProductStore
	changes ChangeLog
	cfg     Config
	log     *zap.Logger
	loc     *time.Location
	now     func() time.Time
}

func NewPipeline(fetcher *Fetcher, store ProductStore, changes ChangeLog, cfg Config, log *zap.Logger) *Pipeline {
	loc, err := time.LoadLocation("America/Argentina/Buenos_Aires")
	if err != nil {
		loc = time.UTC
	}
	return &Pipeline{
		fetcher: fetcher,
		store:   store,
		changes: changes,
		cfg:     cfg,
		log:     log,
		loc:     loc,
		now:     time.Now,
	}
}

// Run executes one complete scrape across all categories and returns
// whether any price change was detected. Page-level and record-level
// failures are logged and skipped; only a cancelled context aborts the
// run.
func (p *Pipeline) Run(ctx context.Context) (bool, error) {
	snapshot, err := p.store.Snapshot(ctx)
	if err != nil {
		// first run against a fresh table, or a transient read failure:
		// proceed with an empty snapshot, nothing to compare against
		p.log.Warn("could not load old prices", zap.Error(err))
		snapshot = map[string]*float64{}
	}
	p.log.Info("loaded price snapshot", zap.Int("products", len(snapshot)))

	var batch []Product
	changesFound := false
	totalPages := 0

	for _, cat := range p.cfg.Categories {
		p.log.Info("starting category",
			zap.String("category", cat.Slug()),
			zap.Int("max_pages", cat.MaxPages))
		categoryListings := 0

	pages:
		for page := 1; page <= cat.MaxPages; page++ {
			if err := ctx.Err(); err != nil {
				return false, err
			}

			pageURL := cat.PageURL(page)
			res := p.fetcher.Page(pageURL)
			switch res.Status {
			case PageNotFound:
				p.log.Warn("page not found, stopping category",
					zap.String("url", pageURL))
				break pages
			case PageEmpty:
				p.log.Info("no listings on page, finishing category",
					zap.String("category", cat.Slug()),
					zap.Int("page", page))
				break pages
			case PageError:
				p.log.Error("error fetching page",
					zap.String("url", pageURL),
					zap.Error(res.Err))
				p.pause(ctx, 2*p.cfg.PageDelay)
				continue
			}

			totalPages++
			categoryListings += len(res.Listings)
			scrapedAt := p.now().In(p.loc).Format(scrapedAtLayout)

			for _, l := range res.Listings {
				product, change := p.reconcileListing(l, snapshot, scrapedAt)
				if change != nil {
					changesFound = true
					if err := p.changes.Append(*change); err != nil {
						p.log.Error("failed to record price change",
							zap.String("url", change.URL),
							zap.Error(err))
					}
					p.log.Info("price change",
						zap.String("url", change.URL),
						zap.String("site_id", change.ProductID),
						zap.Float64("old", change.OldPrice),
						zap.Float64("new", change.NewPrice),
						zap.Float64("percent", change.Percentage))
				}
				batch = append(batch, product)
			}

			p.log.Info("page scraped",
				zap.String("url", pageURL),
				zap.Int("listings", len(res.Listings)))
			p.pause(ctx, p.cfg.PageDelay)
		}

		p.log.Info("finished category",
			zap.String("category", cat.Slug()),
			zap.Int("listings", categoryListings))
	}

	if len(batch) == 0 {
		p.log.Info("no product data collected, skipping store update")
		return changesFound, nil
	}

	unique := collapseByURL(batch)
	if err := p.store.UpsertAll(ctx, unique); err != nil {
		// batch rolled back; the run still reports its summary
		p.log.Error("bulk upsert failed", zap.Error(err))
	} else {
		p.log.Info("store updated",
			zap.Int("products", len(unique)),
			zap.Int("pages", totalPages))
	}

	return changesFound, nil
}

// reconcileListing turns one raw listing into the product row to persist,
// plus the change record when the price moved.
func (p *Pipeline) reconcileListing(l Listing, snapshot map[string]*float64, scrapedAt string) (Product, *PriceChange) {
	newPrice := NormalizePrice(l.RawPrice)
	if newPrice == nil && l.RawPrice != "" {
		p.log.Warn("could not parse price",
			zap.String("raw_price", l.RawPrice),
			zap.String("url", l.URL))
	}
	oldPrice := snapshot[l.URL]

	product := Product{
		URL:       l.URL,
		Name:      strOrNil(l.Name),
		PriceARS:  newPrice,
		ImageURL:  strOrNil(l.ImageURL),
		ScrapedAt: scrapedAt,
	}

	changed, percentage := Reconcile(oldPrice, newPrice)
	switch {
	case changed:
		return product, &PriceChange{
			Timestamp:  scrapedAt,
			ProductID:  orNA(l.SiteID),
			Name:       orNA(l.Name),
			OldPrice:   *oldPrice,
			NewPrice:   *newPrice,
			Percentage: percentage,
			URL:        l.URL,
		}
	case newPrice != nil && oldPrice == nil:
		p.log.Debug("product appeared",
			zap.String("url", l.URL),
			zap.Float64("price", *newPrice))
	case newPrice == nil && oldPrice != nil:
		p.log.Debug("product price disappeared",
			zap.String("url", l.URL),
			zap.Float64("was", *oldPrice))
	}
	return product, nil
}

// collapseByURL keeps one record per URL, the last one encountered, so a
// product duplicated across overlapping pages is committed once.
func collapseByURL(batch []Product) []Product {
	byURL := make(map[string]int, len(batch))
	unique := make([]Product, 0, len(batch))
	for _, p := range batch {
		if i, ok := byURL[p.URL]; ok {
			unique[i] = p
			continue
		}
		byURL[p.URL] = len(unique)
		unique = append(unique, p)
	}
	return unique
}

// pause sleeps for d but wakes up early when the context is cancelled.
func (p *Pipeline) pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func strOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
