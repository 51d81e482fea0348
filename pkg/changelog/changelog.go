// Package changelog appends detected price changes to a CSV file. The
// file is the durable audit trail of the scraper: rows are only ever
// appended, never rewritten.
package changelog

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/avilaton/atomo-pricewatch/pkg/scraper"
)

// header is written exactly once, when the file is new or empty.
var header = []string{
	"timestamp",
	"product_id",
	"product_name",
	"old_price_ars",
	"new_price_ars",
	"change_percentage",
	"product_url",
}

type Writer struct {
	path string
}

func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Append writes one change record. The file is opened per call so a
// failed run never holds the log open.
func (w *Writer) Append(change scraper.PriceChange) error {
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open change log %q: %w", w.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat change log %q: %w", w.path, err)
	}

	cw := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := cw.Write(header); err != nil {
			return fmt.Errorf("write change log header: %w", err)
		}
	}
	if err := cw.Write(record(change)); err != nil {
		return fmt.Errorf("write change log row: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush change log: %w", err)
	}
	return nil
}

func record(c scraper.PriceChange) []string {
	return []string{
		c.Timestamp,
		c.ProductID,
		c.Name,
		scraper.FormatPrice(c.OldPrice),
		scraper.FormatPrice(c.NewPrice),
		formatPercentage(c.Percentage),
		c.URL,
	}
}

// formatPercentage renders the previously-zero-price sentinel as "inf".
func formatPercentage(p float64) string {
	if math.IsInf(p, 1) {
		return "inf"
	}
	return strconv.FormatFloat(p, 'f', -1, 64)
}
