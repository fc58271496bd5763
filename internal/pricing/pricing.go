// Package pricing computes instance prices from a subscription's base price
// and optional adjustments. All amounts are in minor currency units.
package pricing

import "github.com/propflow/upkeep/internal/domain"

// Total returns basePrice plus all adjustments, treating absent adjustments
// as zero. A negative sum is always a caller data error (discount
// adjustments larger than the base price); the result is clamped to zero
// and clamped=true is returned so the caller can flag it.
func Total(basePrice int64, adj domain.PriceAdjustments) (total int64, clamped bool) {
	total = basePrice + adj.Seasonal + adj.Urgency + adj.Complexity
	if total < 0 {
		return 0, true
	}
	return total, false
}
