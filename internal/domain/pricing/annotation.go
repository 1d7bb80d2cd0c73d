package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/storelane/cartsync/internal/domain/catalog"
)

// Kind discriminates the discount annotation variants.
type Kind string

const (
	KindNone            Kind = "none"
	KindBulkTier        Kind = "bulk_tier"
	KindVariantDiscount Kind = "variant_discount"
	KindPWPBonus        Kind = "pwp_bonus"
)

// Annotation is the discount state attached to a line item. It is a closed
// union: exactly one of None, BulkTier, VariantDiscount, or PWPBonus, so the
// "at most one active discount" invariant holds by construction.
type Annotation interface {
	Kind() Kind

	// sealed prevents implementations outside this package.
	sealed()
}

// None marks an item priced at its resolved base price with no discount.
type None struct{}

func (None) Kind() Kind { return KindNone }
func (None) sealed()    {}

// BulkTier marks an item priced by a committed-quantity band. It always wins
// over a variant discount.
type BulkTier struct {
	MinQuantity   int
	TierPrice     int64
	OriginalPrice int64
}

func (BulkTier) Kind() Kind { return KindBulkTier }
func (BulkTier) sealed()    {}

// VariantDiscount marks an item priced by the variant's standing catalog
// discount. Amount is a percentage for DiscountPercentage and minor units
// for DiscountFixed.
type VariantDiscount struct {
	DiscountType  catalog.DiscountKind
	Amount        decimal.Decimal
	OriginalPrice int64
}

func (VariantDiscount) Kind() Kind { return KindVariantDiscount }
func (VariantDiscount) sealed()    {}

// PWPBonus marks a bonus item granted by a purchase-with-purchase rule. Its
// price is fixed by the grant, never by quantity, and reconciliation only
// ever removes it when the rest of the cart stops justifying it.
type PWPBonus struct {
	RuleID         string
	TriggerType    string
	TriggerValue   string
	OriginalPrice  int64
	DiscountAmount int64
}

func (PWPBonus) Kind() Kind { return KindPWPBonus }
func (PWPBonus) sealed()    {}

// Equal reports whether two annotations carry the same discount state.
// Used by the reconciler to decide whether an item needs an update.
func Equal(a, b Annotation) bool {
	if a == nil {
		a = None{}
	}
	if b == nil {
		b = None{}
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch av := a.(type) {
	case None:
		return true
	case BulkTier:
		return av == b.(BulkTier)
	case VariantDiscount:
		bv := b.(VariantDiscount)
		return av.DiscountType == bv.DiscountType &&
			av.Amount.Equal(bv.Amount) &&
			av.OriginalPrice == bv.OriginalPrice
	case PWPBonus:
		return av == b.(PWPBonus)
	}
	return false
}
