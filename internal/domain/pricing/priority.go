package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/storelane/cartsync/internal/domain/catalog"
)

var hundred = decimal.NewFromInt(100)

// ApplyPriority decides which single discount mechanism applies to an item
// and returns the effective unit price with its annotation.
//
// The rule, in order:
//  1. A matched bulk band wins outright; the variant discount is never
//     evaluated. Committed-quantity pricing always beats a standing catalog
//     discount.
//  2. Otherwise a variant discount with a positive amount is computed; it is
//     kept only when strictly cheaper than the base price.
//  3. Otherwise the item carries the base price with no annotation.
func ApplyPriority(basePrice int64, res Resolution, meta *catalog.DiscountMeta) (int64, Annotation) {
	if res.Band != nil {
		return res.UnitPrice, BulkTier{
			MinQuantity:   res.Band.MinQuantity,
			TierPrice:     res.Band.UnitPrice,
			OriginalPrice: basePrice,
		}
	}

	if meta != nil && meta.Amount.IsPositive() {
		discounted := discountedPrice(basePrice, meta)
		if discounted < basePrice {
			return discounted, VariantDiscount{
				DiscountType:  meta.Kind,
				Amount:        meta.Amount,
				OriginalPrice: basePrice,
			}
		}
	}

	return basePrice, None{}
}

// discountedPrice computes the variant-discounted unit price in minor units.
// Percentages are capped at 100 and rounded to the nearest minor unit; fixed
// amounts are floored at zero.
func discountedPrice(basePrice int64, meta *catalog.DiscountMeta) int64 {
	switch meta.Kind {
	case catalog.DiscountPercentage:
		pct := decimal.Min(meta.Amount, hundred)
		price := decimal.NewFromInt(basePrice).
			Mul(hundred.Sub(pct)).
			Div(hundred).
			Round(0)
		return price.IntPart()
	case catalog.DiscountFixed:
		price := basePrice - meta.Amount.Round(0).IntPart()
		if price < 0 {
			return 0
		}
		return price
	default:
		return basePrice
	}
}
