// Package catalog holds the read-only pricing configuration the cart engine
// consumes: product variants, their standing catalog discounts, and the bulk
// pricing bands authored by catalog management.
package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrVariantNotFound is returned when a requested variant does not exist.
var ErrVariantNotFound = errors.New("variant not found")

// DiscountKind enumerates the supported variant discount strategies.
type DiscountKind string

const (
	// DiscountPercentage reduces the base price by a percentage.
	DiscountPercentage DiscountKind = "percentage"
	// DiscountFixed subtracts a fixed amount of minor units, floored at zero.
	DiscountFixed DiscountKind = "fixed"
)

// DiscountMeta is a standing catalog discount attached to a variant,
// independent of purchase quantity. Amount is a percentage for
// DiscountPercentage and minor units for DiscountFixed.
type DiscountMeta struct {
	Kind   DiscountKind
	Amount decimal.Decimal
}

// Variant is a purchasable catalog entry. All prices are integer minor
// currency units.
type Variant struct {
	ID        string
	ProductID string
	SKU       string
	Name      string
	Currency  string
	BasePrice int64
	Discount  *DiscountMeta
}

// TierBand is a single bulk pricing band. MaxQuantity zero means the band is
// open-ended. Bands with MinQuantity <= 1 carry the base price for a
// currency rather than a bulk tier.
type TierBand struct {
	MinQuantity int
	MaxQuantity int
	UnitPrice   int64
	Currency    string
}

// Contains reports whether quantity falls inside the band's range.
func (b TierBand) Contains(quantity int) bool {
	if quantity < b.MinQuantity {
		return false
	}
	return b.MaxQuantity == 0 || quantity <= b.MaxQuantity
}

// IsBulk reports whether the band is a committed-quantity tier as opposed to
// a base-price band.
func (b TierBand) IsBulk() bool {
	return b.MinQuantity >= 2
}

// TierTable holds every band configured for one variant.
type TierTable struct {
	VariantID string
	Bands     []TierBand
}

// Repository defines read operations against the catalog. The reconciliation
// engine treats all of this data as an immutable snapshot for the duration
// of one pass.
type Repository interface {
	GetVariant(ctx context.Context, id string) (*Variant, error)
	GetVariants(ctx context.Context, ids []string) ([]Variant, error)
	GetTierTable(ctx context.Context, variantID string) (*TierTable, error)
}
