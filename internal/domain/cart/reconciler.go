package cart

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/storelane/cartsync/internal/domain/catalog"
	"github.com/storelane/cartsync/internal/domain/loyalty"
	"github.com/storelane/cartsync/internal/domain/pricing"
	"github.com/storelane/cartsync/internal/domain/pwp"
)

// Totals summarizes a cart after reconciliation. All values are minor units.
// Subtotal counts bonus items at their pre-grant price; PWPDiscount carries
// the granted reduction; TierDiscount is computed net of PWPDiscount so the
// same currency unit is never discounted twice. Bulk and variant pricing are
// already baked into unit prices. VariantDiscount is informational.
type Totals struct {
	Subtotal        int64
	PWPDiscount     int64
	VariantDiscount int64
	TierDiscount    int64
	Total           int64
}

// Diff is the outcome of one reconciliation pass: what to remove, what to
// rewrite, and the totals computed over the post-diff cart. Callers apply
// removals then updates, never partially.
type Diff struct {
	CartID   string
	Removals []Removal
	Updates  []ItemUpdate
	Totals   Totals
	Tier     *loyalty.Tier
}

// Empty reports whether the pass found nothing to change.
func (d *Diff) Empty() bool {
	return len(d.Removals) == 0 && len(d.Updates) == 0
}

// Reconciler recomputes every line item's price and every bonus item's
// eligibility against current rules. It reads rule and tier configuration as
// an immutable snapshot and writes only to the cart.
type Reconciler struct {
	carts   Repository
	catalog catalog.Repository
	checker *pwp.Checker
	loyalty loyalty.Repository
	lg      *zap.Logger
	tracer  trace.Tracer
}

// NewReconciler creates a Reconciler. tp may be nil; a noop tracer is used.
func NewReconciler(
	carts Repository,
	cat catalog.Repository,
	checker *pwp.Checker,
	ladder loyalty.Repository,
	lg *zap.Logger,
	tp trace.TracerProvider,
) *Reconciler {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &Reconciler{
		carts:   carts,
		catalog: cat,
		checker: checker,
		loyalty: ladder,
		lg:      lg.Named("reconciler"),
		tracer:  tp.Tracer("cartsync/reconcile"),
	}
}

// Reconcile computes the diff that brings the cart's prices and bonus items
// in line with current rules. A missing cart aborts the pass with
// ErrNotFound. A single item's lookup failure is logged and that item is
// left unchanged; reconciliation is best-effort per item and idempotent
// overall.
func (r *Reconciler) Reconcile(ctx context.Context, cartID string) (*Diff, error) {
	ctx, span := r.tracer.Start(ctx, "cart.Reconcile",
		trace.WithAttributes(attribute.String("cart.id", cartID)))
	defer span.End()

	c, err := r.carts.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}

	diff := &Diff{CartID: cartID}

	// Bonus eligibility is judged against the cart value excluding every
	// bonus item: their price is not real spend.
	snap := snapshotOf(c)

	removed := make(map[string]struct{})
	for _, it := range c.Items {
		bonus, ok := it.Annotation.(pricing.PWPBonus)
		if !ok {
			continue
		}
		if eligible, reason := r.checker.Eligible(ctx, bonus.RuleID, snap); !eligible {
			diff.Removals = append(diff.Removals, Removal{ItemID: it.ID, Reason: reason})
			removed[it.ID] = struct{}{}
			r.lg.Info("bonus item no longer eligible",
				zap.String("cart_id", cartID),
				zap.String("item_id", it.ID),
				zap.String("rule_id", bonus.RuleID),
				zap.String("reason", reason))
		}
	}

	// Re-price every surviving non-bonus item with its current quantity.
	// Variants are fetched in one batch; an item whose variant is missing
	// from the result is left unchanged like any other lookup failure.
	variants := r.variantsOf(ctx, c, removed)

	staged := make(map[string]ItemUpdate)
	for _, it := range c.Items {
		if _, gone := removed[it.ID]; gone || it.IsBonus() {
			continue
		}

		variant, ok := variants[it.VariantID]
		if !ok {
			r.lg.Warn("leaving item unchanged",
				zap.String("cart_id", cartID),
				zap.String("item_id", it.ID),
				zap.String("variant_id", it.VariantID),
				zap.Error(catalog.ErrVariantNotFound))
			continue
		}

		price, ann, err := r.priceOf(ctx, it, variant, c.Currency)
		if err != nil {
			r.lg.Warn("leaving item unchanged",
				zap.String("cart_id", cartID),
				zap.String("item_id", it.ID),
				zap.String("variant_id", it.VariantID),
				zap.Error(err))
			continue
		}

		if price != it.UnitPrice || !pricing.Equal(ann, it.Annotation) {
			u := ItemUpdate{ItemID: it.ID, NewPrice: price, NewAnnotation: ann}
			diff.Updates = append(diff.Updates, u)
			staged[it.ID] = u
		}
	}

	diff.Totals = r.totalsOf(c, removed, staged)

	if c.CustomerID != "" {
		r.applyTierDiscount(ctx, c.CustomerID, diff)
	}

	diff.Totals.Total = diff.Totals.Subtotal - diff.Totals.PWPDiscount - diff.Totals.TierDiscount
	if diff.Totals.Total < 0 {
		diff.Totals.Total = 0
	}

	return diff, nil
}

// Apply persists the diff: removals first, then updates, in one transaction.
// Already-applied removals are not rolled back on a later failure; re-running
// reconciliation reaches the same end state.
func (r *Reconciler) Apply(ctx context.Context, diff *Diff) error {
	if diff.Empty() {
		return nil
	}

	ids := make([]string, len(diff.Removals))
	for i, rm := range diff.Removals {
		ids[i] = rm.ItemID
	}

	if err := r.carts.ApplyDiff(ctx, diff.CartID, ids, diff.Updates); err != nil {
		return errors.Wrap(err, "apply reconciliation diff")
	}
	return nil
}

// variantsOf fetches the variants of every surviving non-bonus item in one
// round trip. Missing ids are simply absent from the map; a failed batch
// lookup returns an empty map, degrading to leave-everything-unchanged.
func (r *Reconciler) variantsOf(ctx context.Context, c *Cart, removed map[string]struct{}) map[string]*catalog.Variant {
	seen := make(map[string]struct{})
	var ids []string
	for _, it := range c.Items {
		if _, gone := removed[it.ID]; gone || it.IsBonus() {
			continue
		}
		if _, dup := seen[it.VariantID]; dup {
			continue
		}
		seen[it.VariantID] = struct{}{}
		ids = append(ids, it.VariantID)
	}
	if len(ids) == 0 {
		return nil
	}

	fetched, err := r.catalog.GetVariants(ctx, ids)
	if err != nil {
		r.lg.Warn("variant batch lookup failed",
			zap.String("cart_id", c.ID),
			zap.Int("variants", len(ids)),
			zap.Error(err))
		return nil
	}

	byID := make(map[string]*catalog.Variant, len(fetched))
	for i := range fetched {
		byID[fetched[i].ID] = &fetched[i]
	}
	return byID
}

// priceOf runs the shared pricing pipeline for one item.
func (r *Reconciler) priceOf(ctx context.Context, it Item, variant *catalog.Variant, currency string) (int64, pricing.Annotation, error) {
	table, err := r.catalog.GetTierTable(ctx, it.VariantID)
	if err != nil {
		return 0, nil, errors.Wrap(err, "get tier table")
	}

	res, err := pricing.Resolve(it.Quantity, variant, table, currency)
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

// applyTierDiscount runs tier qualification for a member cart. Loyalty
// lookups are best-effort: a failure logs and the pass proceeds without a
// tier discount.
func (r *Reconciler) applyTierDiscount(ctx context.Context, customerID string, diff *Diff) {
	activity, err := r.loyalty.ActivityFor(ctx, customerID)
	if err != nil {
		r.lg.Warn("activity lookup failed, skipping tier discount",
			zap.String("customer_id", customerID), zap.Error(err))
		return
	}
	ladder, err := r.loyalty.Ladder(ctx)
	if err != nil {
		r.lg.Warn("ladder lookup failed, skipping tier discount",
			zap.String("customer_id", customerID), zap.Error(err))
		return
	}

	tier := loyalty.Qualify(activity.OrderCount, activity.SpendTotal, ladder)
	if tier == nil {
		return
	}

	net := diff.Totals.Subtotal - diff.Totals.PWPDiscount
	diff.Tier = tier
	diff.Totals.TierDiscount = loyalty.Discount(net, tier)
}

// totalsOf computes post-diff totals: surviving items at their staged (or
// current) prices, bonus items at pre-grant price with their reduction
// reported in PWPDiscount.
func (r *Reconciler) totalsOf(c *Cart, removed map[string]struct{}, staged map[string]ItemUpdate) Totals {
	var t Totals
	for _, it := range c.Items {
		if _, gone := removed[it.ID]; gone {
			continue
		}
		qty := int64(it.Quantity)

		if bonus, ok := it.Annotation.(pricing.PWPBonus); ok {
			t.Subtotal += bonus.OriginalPrice * qty
			t.PWPDiscount += bonus.DiscountAmount * qty
			continue
		}

		price, ann := it.UnitPrice, it.Annotation
		if u, ok := staged[it.ID]; ok {
			price, ann = u.NewPrice, u.NewAnnotation
		}
		t.Subtotal += price * qty

		if vd, ok := ann.(pricing.VariantDiscount); ok {
			t.VariantDiscount += (vd.OriginalPrice - price) * qty
		}
	}
	return t
}

// snapshotOf builds the eligibility view of a cart.
func snapshotOf(c *Cart) pwp.Snapshot {
	snap := pwp.Snapshot{ProductIDs: make(map[string]struct{})}
	for _, it := range c.Items {
		if it.IsBonus() {
			continue
		}
		snap.NonBonusValue += it.UnitPrice * int64(it.Quantity)
		snap.ProductIDs[it.ProductID] = struct{}{}
	}
	return snap
}
