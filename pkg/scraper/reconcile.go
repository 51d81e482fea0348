package scraper

import "math"

// priceTolerance treats sub-centavo drift as floating point noise rather
// than a price change.
const priceTolerance = 0.01

// Reconcile compares the last persisted price with the newly observed
// one. A first sighting (old nil) and a disappeared price (new nil) are
// deliberately not changes; only callers log them. The percentage is
// rounded to two decimals, or +Inf when the old price was zero.
func Reconcile(oldPrice, newPrice *float64) (changed bool, percentage float64) {
	if oldPrice == nil || newPrice == nil {
		return false, 0
	}
	if math.Abs(*newPrice-*oldPrice) < priceTolerance {
		return false, 0
	}
	if *oldPrice > 0 {
		return true, math.Round((*newPrice-*oldPrice)/(*oldPrice)*100*100) / 100
	}
	return true, math.Inf(1)
}
