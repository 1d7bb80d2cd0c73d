package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storelane/cartsync/internal/domain/catalog"
	"github.com/storelane/cartsync/internal/domain/pricing"
)

// PriceFlags tells the caller which discount mechanism the fast path applied.
type PriceFlags struct {
	BulkPricingApplied     bool
	VariantDiscountApplied bool
}

// AddItemRequest is the input for adding a line item.
type AddItemRequest struct {
	VariantID string
	Quantity  int
}

// Service implements the synchronous fast path: every mutation computes a
// best-effort price inline, persists it, and emits a cart-changed event so
// the async reconciler can correct anything the fast path could not verify
// (bonus eligibility depends on the rest of the cart).
type Service struct {
	carts   Repository
	catalog catalog.Repository
	events  ChangePublisher
	lg      *zap.Logger
}

// NewService creates the cart mutation service.
func NewService(carts Repository, cat catalog.Repository, events ChangePublisher, lg *zap.Logger) *Service {
	return &Service{
		carts:   carts,
		catalog: cat,
		events:  events,
		lg:      lg.Named("cart"),
	}
}

// AddItem adds a variant to the cart, merging quantity into an existing
// non-bonus line for the same variant. The unit price is resolved inline
// against the variant's tier table and catalog discount.
func (s *Service) AddItem(ctx context.Context, cartID string, req AddItemRequest) (*Cart, PriceFlags, error) {
	if req.VariantID == "" {
		return nil, PriceFlags{}, ErrMissingVariant
	}
	if req.Quantity <= 0 {
		return nil, PriceFlags{}, ErrInvalidQuantity
	}

	c, err := s.carts.Get(ctx, cartID)
	if err != nil {
		return nil, PriceFlags{}, err
	}

	variant, err := s.catalog.GetVariant(ctx, req.VariantID)
	if err != nil {
		return nil, PriceFlags{}, err
	}

	item := Item{
		ID:        uuid.New().String(),
		VariantID: variant.ID,
		ProductID: variant.ProductID,
		Quantity:  req.Quantity,
	}
	if existing := c.NonBonusItemForVariant(variant.ID); existing != nil {
		item.ID = existing.ID
		item.Quantity = existing.Quantity + req.Quantity
	}

	price, ann, err := s.priceItem(ctx, variant, item.Quantity, c.Currency)
	if err != nil {
		return nil, PriceFlags{}, err
	}
	item.UnitPrice = price
	item.Annotation = ann

	if err := s.carts.UpsertItem(ctx, cartID, item); err != nil {
		return nil, PriceFlags{}, errors.Wrap(err, "upsert line item")
	}

	c.setItem(item)
	s.events.CartChanged(cartID)

	return c, flagsFor(ann), nil
}

// UpdateItem changes a line item's quantity. Quantity zero deletes the item.
// Bonus items keep their granted price; only their quantity changes. All
// other items are re-priced exactly as on add.
func (s *Service) UpdateItem(ctx context.Context, cartID, itemID string, quantity int) (*Cart, PriceFlags, error) {
	if quantity < 0 {
		return nil, PriceFlags{}, ErrInvalidQuantity
	}
	if quantity == 0 {
		c, err := s.RemoveItem(ctx, cartID, itemID)
		return c, PriceFlags{}, err
	}

	c, err := s.carts.Get(ctx, cartID)
	if err != nil {
		return nil, PriceFlags{}, err
	}

	existing := c.ItemByID(itemID)
	if existing == nil {
		return nil, PriceFlags{}, ErrItemNotFound
	}

	item := *existing
	item.Quantity = quantity

	if !item.IsBonus() {
		variant, err := s.catalog.GetVariant(ctx, item.VariantID)
		if err != nil {
			return nil, PriceFlags{}, err
		}
		price, ann, err := s.priceItem(ctx, variant, quantity, c.Currency)
		if err != nil {
			return nil, PriceFlags{}, err
		}
		item.UnitPrice = price
		item.Annotation = ann
	}

	if err := s.carts.UpsertItem(ctx, cartID, item); err != nil {
		return nil, PriceFlags{}, errors.Wrap(err, "upsert line item")
	}

	c.setItem(item)
	s.events.CartChanged(cartID)

	return c, flagsFor(item.Annotation), nil
}

// RemoveItem unconditionally deletes a line item.
func (s *Service) RemoveItem(ctx context.Context, cartID, itemID string) (*Cart, error) {
	c, err := s.carts.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if c.ItemByID(itemID) == nil {
		return nil, ErrItemNotFound
	}

	if err := s.carts.DeleteItem(ctx, cartID, itemID); err != nil {
		return nil, err
	}

	c.removeItem(itemID)
	s.events.CartChanged(cartID)

	return c, nil
}

// priceItem resolves the unit price and annotation for a quantity of a
// variant. A tier table fetch failure downgrades to base pricing instead of
// failing the request; the async reconciliation pass corrects it afterwards.
func (s *Service) priceItem(ctx context.Context, variant *catalog.Variant, quantity int, currency string) (int64, pricing.Annotation, error) {
	table, err := s.catalog.GetTierTable(ctx, variant.ID)
	if err != nil {
		s.lg.Warn("tier table lookup failed, pricing at base",
			zap.String("variant_id", variant.ID),
			zap.Error(err))
		table = nil
	}

	res, err := pricing.Resolve(quantity, variant, table, currency)
	if err != nil {
		return 0, nil, err
	}

	base := res.UnitPrice
	if baseRes, err := pricing.Resolve(1, variant, table, currency); err == nil {
		base = baseRes.UnitPrice
	}

	price, ann := pricing.ApplyPriority(base, res, variant.Discount)
	return price, ann, nil
}

func flagsFor(ann pricing.Annotation) PriceFlags {
	if ann == nil {
		return PriceFlags{}
	}
	return PriceFlags{
		BulkPricingApplied:     ann.Kind() == pricing.KindBulkTier,
		VariantDiscountApplied: ann.Kind() == pricing.KindVariantDiscount,
	}
}

// setItem replaces or appends an item on the in-memory cart copy.
func (c *Cart) setItem(item Item) {
	for i := range c.Items {
		if c.Items[i].ID == item.ID {
			c.Items[i] = item
			return
		}
	}
	c.Items = append(c.Items, item)
}

func (c *Cart) removeItem(itemID string) {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return
		}
	}
}
