// Package pricing implements the single source of truth for line-item unit
// prices: tier band resolution and the priority rule deciding which discount
// mechanism applies. Both the synchronous request handlers and the cart
// reconciler call into this package, so the pricing rule exists exactly once.
package pricing

import (
	"sort"

	"github.com/go-faster/errors"

	"github.com/storelane/cartsync/internal/domain/catalog"
)

// ErrPriceUnavailable is returned when a variant has no resolvable price in
// the requested currency. Callers must treat this as fatal: an item without
// a price cannot be added to a cart.
var ErrPriceUnavailable = errors.New("no resolvable price for variant in this currency")

// Resolution is the outcome of resolving a quantity against a tier table.
// Band is non-nil only when a bulk band matched.
type Resolution struct {
	UnitPrice int64
	Band      *catalog.TierBand
}

// Resolve returns the applicable unit price for the given quantity.
//
// Bulk bands (min quantity >= 2) in the requested currency are sorted by
// min quantity descending and the first band containing the quantity wins.
// The descending order is the tie-break for overlapping bands: the tier with
// the highest satisfied minimum applies, so a more committed quantity never
// pays more than a lower tier would.
//
// When no bulk band matches, the base-price band (min quantity <= 1) is
// used, then the variant's default price if its currency matches. Otherwise
// ErrPriceUnavailable is returned.
func Resolve(quantity int, variant *catalog.Variant, table *catalog.TierTable, currency string) (Resolution, error) {
	var bulk []catalog.TierBand
	if table != nil {
		for _, b := range table.Bands {
			if b.Currency == currency && b.IsBulk() {
				bulk = append(bulk, b)
			}
		}
	}

	sort.Slice(bulk, func(i, j int) bool {
		return bulk[i].MinQuantity > bulk[j].MinQuantity
	})

	for i := range bulk {
		if bulk[i].Contains(quantity) {
			return Resolution{UnitPrice: bulk[i].UnitPrice, Band: &bulk[i]}, nil
		}
	}

	if table != nil {
		for _, b := range table.Bands {
			if b.Currency == currency && !b.IsBulk() {
				return Resolution{UnitPrice: b.UnitPrice}, nil
			}
		}
	}

	if variant != nil && variant.Currency == currency {
		return Resolution{UnitPrice: variant.BasePrice}, nil
	}

	return Resolution{}, ErrPriceUnavailable
}
