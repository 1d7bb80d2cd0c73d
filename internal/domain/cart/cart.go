// Package cart owns the mutable shared state of the system: carts and their
// line items. It exposes the fast-path mutation service used by the HTTP
// handlers and the reconciler that keeps prices and bonus items consistent
// with current rules.
package cart

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/storelane/cartsync/internal/domain/pricing"
)

var (
	// ErrNotFound is returned when a cart does not exist.
	ErrNotFound = errors.New("cart not found")
	// ErrItemNotFound is returned when a line item does not exist in the cart.
	ErrItemNotFound = errors.New("line item not found")
	// ErrInvalidQuantity is returned for non-positive quantities.
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
	// ErrMissingVariant is returned when a variant reference is absent.
	ErrMissingVariant = errors.New("variant id required")
)

// Item is a single cart line. UnitPrice is integer minor units; Annotation
// carries the applied discount mechanism, at most one per item.
type Item struct {
	ID         string
	VariantID  string
	ProductID  string
	Quantity   int
	UnitPrice  int64
	Annotation pricing.Annotation
}

// IsBonus reports whether the item is a purchase-with-purchase grant. Bonus
// items never carry any other annotation and their price is fixed by the
// grant.
func (it Item) IsBonus() bool {
	_, ok := it.Annotation.(pricing.PWPBonus)
	return ok
}

// Cart is a customer's cart. CustomerID is empty for guest carts.
type Cart struct {
	ID         string
	CustomerID string
	Currency   string
	Items      []Item
}

// ItemByID returns the line item with the given id, or nil.
func (c *Cart) ItemByID(itemID string) *Item {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			return &c.Items[i]
		}
	}
	return nil
}

// NonBonusItemForVariant returns the existing non-bonus line for a variant,
// or nil. Quantity merges on add only ever target non-bonus lines.
func (c *Cart) NonBonusItemForVariant(variantID string) *Item {
	for i := range c.Items {
		if c.Items[i].VariantID == variantID && !c.Items[i].IsBonus() {
			return &c.Items[i]
		}
	}
	return nil
}

// Removal marks a line item the reconciler decided must go, with the
// user-visible reason.
type Removal struct {
	ItemID string
	Reason string
}

// ItemUpdate is a staged price and annotation rewrite. Quantity is never
// touched by reconciliation, which keeps it idempotent with respect to
// quantity.
type ItemUpdate struct {
	ItemID        string
	NewPrice      int64
	NewAnnotation pricing.Annotation
}

// Repository defines persistence for carts and line items.
type Repository interface {
	Get(ctx context.Context, id string) (*Cart, error)

	// UpsertItem inserts the item or replaces the row with the same id.
	UpsertItem(ctx context.Context, cartID string, item Item) error

	// DeleteItem removes one line item. Returns ErrItemNotFound when absent.
	DeleteItem(ctx context.Context, cartID, itemID string) error

	// ApplyDiff applies removals then updates in one transaction.
	ApplyDiff(ctx context.Context, cartID string, removals []string, updates []ItemUpdate) error
}

// ChangePublisher receives cart-changed notifications. Implementations must
// never block the caller.
type ChangePublisher interface {
	CartChanged(cartID string)
}
