package scraper_test

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/avilaton/atomo-pricewatch/pkg/changelog"
	"github.com/avilaton/atomo-pricewatch/pkg/scraper"
	"github.com/avilaton/atomo-pricewatch/pkg/storage"
)

// card describes one product card in the generated listing markup. An
// empty path omits the thumbnail link entirely.
type card struct {
	id    string
	path  string
	name  string
	price string
	img   string // raw attributes of the img tag
}

func cardHTML(c card) string {
	var b strings.Builder
	b.WriteString(`<article class="product-miniature js-product-miniature"`)
	if c.id != "" {
		fmt.Fprintf(&b, ` data-id-product=%q`, c.id)
	}
	b.WriteString(`><div class="thumbnail-container">`)
	if c.path != "" {
		img := c.img
		if img == "" {
			img = fmt.Sprintf(`src=%q`, c.path+"/cover.jpg")
		}
		fmt.Fprintf(&b, `<a href=%q class="product-thumbnail"><img %s></a>`, c.path, img)
	}
	if c.name != "" {
		fmt.Fprintf(&b, `<h2 class="h3 product-title"><a href=%q>%s</a></h2>`, c.path, c.name)
	}
	if c.price != "" {
		fmt.Fprintf(&b, `<div class="product-price-and-shipping"><span class="price">%s</span></div>`, c.price)
	}
	b.WriteString(`</div></article>`)
	return b.String()
}

func listingPageHTML(cards []card) string {
	var b strings.Builder
	b.WriteString(`<!DOCTYPE html><html lang="es"><body><section id="products"><div class="products row">`)
	for _, c := range cards {
		b.WriteString(cardHTML(c))
	}
	b.WriteString(`</div></section></body></html>`)
	return b.String()
}

// pageDef is what the fake category serves for one page number. A zero
// status means 200 with the rendered cards; unset pages answer 404.
type pageDef struct {
	status int
	cards  []card
}

type fakeCategory struct {
	mu    sync.Mutex
	pages map[int]pageDef
}

func newFakeCategory() *fakeCategory {
	return &fakeCategory{pages: map[int]pageDef{}}
}

func (f *fakeCategory) set(page int, def pageDef) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[page] = def
}

func (f *fakeCategory) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		f.mu.Lock()
		def, ok := f.pages[page]
		f.mu.Unlock()

		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if def.status != 0 && def.status != http.StatusOK {
			w.WriteHeader(def.status)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(listingPageHTML(def.cards)))
	})
}

type fixture struct {
	server  *httptest.Server
	store   *storage.Store
	pipe    *scraper.Pipeline
	csvPath string
}

func newFixture(t *testing.T, cat *fakeCategory, maxPages int) *fixture {
	t.Helper()

	ts := httptest.NewServer(cat.handler())
	t.Cleanup(ts.Close)

	dir := t.TempDir()
	zl := zap.NewNop()

	store, err := storage.Open(filepath.Join(dir, "test.db"), zl)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	fetcher := scraper.NewFetcher(scraper.FetcherConfig{
		UserAgent: "pricewatch-test",
		Timeout:   5 * time.Second,
	}, zl)

	csvPath := filepath.Join(dir, "changes.csv")
	pipe := scraper.NewPipeline(fetcher, store, changelog.NewWriter(csvPath), scraper.Config{
		Categories: []scraper.Category{
			{URLTemplate: ts.URL + "/listing?page={page}", MaxPages: maxPages},
		},
		PageDelay: time.Millisecond,
	}, zl)

	return &fixture{server: ts, store: store, pipe: pipe, csvPath: csvPath}
}

func (f *fixture) changeRows(t *testing.T) [][]string {
	t.Helper()
	file, err := os.Open(f.csvPath)
	require.NoError(t, err)
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestPipelineEndToEnd(t *testing.T) {
	cat := newFakeCategory()
	cat.set(1, pageDef{cards: []card{
		{id: "1", path: "/producto-a", name: "Producto A", price: "$100"},
		{id: "2", path: "/producto-b", name: "Producto B", price: "$200"},
	}})
	// page 2 is unset and answers 404: pagination must stop cleanly

	f := newFixture(t, cat, 2)
	ctx := context.Background()

	// first run: empty prior snapshot, nothing to compare against
	changed, err := f.pipe.Run(ctx)
	require.NoError(t, err)
	assert.False(t, changed)

	n, err := f.store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	urlA := f.server.URL + "/producto-a"
	a, err := f.store.ByURL(ctx, urlA)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "Producto A", *a.Name)
	assert.Equal(t, 100.0, *a.PriceARS)
	assert.Equal(t, f.server.URL+"/producto-a/cover.jpg", *a.ImageURL)

	_, err = os.Stat(f.csvPath)
	assert.True(t, os.IsNotExist(err), "no change log expected on first run")

	// second run with identical content: fully idempotent
	changed, err = f.pipe.Run(ctx)
	require.NoError(t, err)
	assert.False(t, changed)

	// third run after A drops to 90: one change event
	cat.set(1, pageDef{cards: []card{
		{id: "1", path: "/producto-a", name: "Producto A", price: "$90"},
		{id: "2", path: "/producto-b", name: "Producto B", price: "$200"},
	}})
	changed, err = f.pipe.Run(ctx)
	require.NoError(t, err)
	assert.True(t, changed)

	rows := f.changeRows(t)
	require.Len(t, rows, 2)
	assert.Equal(t, "timestamp", rows[0][0])
	assert.Equal(t, []string{"1", "Producto A", "100", "90", "-10"}, rows[1][1:6])
	assert.Equal(t, urlA, rows[1][6])

	a, err = f.store.ByURL(ctx, urlA)
	require.NoError(t, err)
	assert.Equal(t, 90.0, *a.PriceARS)
}

func TestPipelineStopsOnEmptyFirstPage(t *testing.T) {
	cat := newFakeCategory()
	cat.set(1, pageDef{cards: nil})
	cat.set(2, pageDef{cards: []card{{id: "9", path: "/never", name: "Never", price: "$1"}}})

	f := newFixture(t, cat, 5)
	changed, err := f.pipe.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)

	n, err := f.store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n, "an empty page must end the category before page 2")
}

func TestPipelineSkipsFailedPage(t *testing.T) {
	cat := newFakeCategory()
	cat.set(1, pageDef{status: http.StatusInternalServerError})
	cat.set(2, pageDef{cards: []card{{id: "3", path: "/producto-c", name: "Producto C", price: "$300"}}})

	f := newFixture(t, cat, 2)
	changed, err := f.pipe.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)

	// the 500 on page 1 skips that page only; page 2 is still scraped
	p, err := f.store.ByURL(context.Background(), f.server.URL+"/producto-c")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 300.0, *p.PriceARS)
}

func TestPipelineDropsListingWithoutURL(t *testing.T) {
	cat := newFakeCategory()
	cat.set(1, pageDef{cards: []card{
		{id: "7", name: "Sin Link", price: "$50"},               // no URL: dropped
		{path: "/sin-id", name: "Sin ID", price: "$60"},         // no site id: kept
		{id: "8", path: "/sin-precio", name: "Sin Precio"},      // no price: kept with NULL
		{id: "9", path: "/raro", name: "Raro", price: "precio"}, // unparseable price
	}})

	f := newFixture(t, cat, 1)
	ctx := context.Background()
	changed, err := f.pipe.Run(ctx)
	require.NoError(t, err)
	assert.False(t, changed)

	n, err := f.store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	sinID, err := f.store.ByURL(ctx, f.server.URL+"/sin-id")
	require.NoError(t, err)
	require.NotNil(t, sinID)
	assert.Equal(t, 60.0, *sinID.PriceARS)

	sinPrecio, err := f.store.ByURL(ctx, f.server.URL+"/sin-precio")
	require.NoError(t, err)
	require.NotNil(t, sinPrecio)
	assert.Nil(t, sinPrecio.PriceARS)

	raro, err := f.store.ByURL(ctx, f.server.URL+"/raro")
	require.NoError(t, err)
	require.NotNil(t, raro)
	assert.Nil(t, raro.PriceARS)
}

func TestPipelineCollapsesDuplicateAcrossPages(t *testing.T) {
	cat := newFakeCategory()
	cat.set(1, pageDef{cards: []card{
		{id: "1", path: "/producto-a", name: "Producto A", price: "$100"},
	}})
	cat.set(2, pageDef{cards: []card{
		{id: "1", path: "/producto-a", name: "Producto A", price: "$120"},
		{id: "2", path: "/producto-b", name: "Producto B", price: "$50"},
	}})

	f := newFixture(t, cat, 2)
	ctx := context.Background()
	_, err := f.pipe.Run(ctx)
	require.NoError(t, err)

	n, err := f.store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	a, err := f.store.ByURL(ctx, f.server.URL+"/producto-a")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, 120.0, *a.PriceARS, "later occurrence must win")
}

func TestPipelineImageFallbackAttributes(t *testing.T) {
	cat := newFakeCategory()
	cat.set(1, pageDef{cards: []card{
		{id: "1", path: "/a", name: "A", price: "$1",
			img: `data-full-size-image-url="/img/a-full.jpg" data-src="/img/a-lazy.jpg" src="/img/a-small.jpg"`},
		{id: "2", path: "/b", name: "B", price: "$2",
			img: `data-src="/img/b-lazy.jpg" src="/img/b-small.jpg"`},
		{id: "3", path: "/c", name: "C", price: "$3",
			img: `src="/img/c-small.jpg"`},
	}})

	f := newFixture(t, cat, 1)
	ctx := context.Background()
	_, err := f.pipe.Run(ctx)
	require.NoError(t, err)

	for path, want := range map[string]string{
		"/a": "/img/a-full.jpg",
		"/b": "/img/b-lazy.jpg",
		"/c": "/img/c-small.jpg",
	} {
		p, err := f.store.ByURL(ctx, f.server.URL+path)
		require.NoError(t, err)
		require.NotNil(t, p, path)
		assert.Equal(t, f.server.URL+want, *p.ImageURL)
	}
}

func TestPipelineFirstSightingAndDisappearance(t *testing.T) {
	cat := newFakeCategory()
	cat.set(1, pageDef{cards: []card{
		{id: "1", path: "/a", name: "A", price: "$10"},
	}})

	f := newFixture(t, cat, 1)
	ctx := context.Background()

	changed, err := f.pipe.Run(ctx)
	require.NoError(t, err)
	assert.False(t, changed, "first sighting is not a change")

	// price disappears: still no change event, row keeps NULL price
	cat.set(1, pageDef{cards: []card{
		{id: "1", path: "/a", name: "A"},
	}})
	changed, err = f.pipe.Run(ctx)
	require.NoError(t, err)
	assert.False(t, changed, "disappeared price is not a change")

	p, err := f.store.ByURL(ctx, f.server.URL+"/a")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Nil(t, p.PriceARS)

	_, err = os.Stat(f.csvPath)
	assert.True(t, os.IsNotExist(err))
}

func TestPipelineCancelledContext(t *testing.T) {
	cat := newFakeCategory()
	cat.set(1, pageDef{cards: []card{{id: "1", path: "/a", name: "A", price: "$10"}}})

	f := newFixture(t, cat, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.pipe.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	n, err := f.store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n, "a cancelled run must not commit")
}
