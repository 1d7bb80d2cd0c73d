package handler

import (
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/storelane/cartsync/internal/domain/cart"
	"github.com/storelane/cartsync/internal/domain/loyalty"
	"github.com/storelane/cartsync/internal/domain/pricing"
)

type lineItemView struct {
	ID        string          `json:"id"`
	VariantID string          `json:"variant_id"`
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice int64           `json:"unit_price"`
	Discount  json.RawMessage `json:"discount"`
}

type cartView struct {
	ID         string         `json:"id"`
	CustomerID string         `json:"customer_id,omitempty"`
	Currency   string         `json:"currency"`
	Items      []lineItemView `json:"items"`
}

type flagsView struct {
	BulkPricingApplied     bool `json:"bulk_pricing_applied"`
	VariantDiscountApplied bool `json:"variant_discount_applied"`
}

type mutationResponse struct {
	Cart  cartView  `json:"cart"`
	Flags flagsView `json:"flags"`
}

type addLineItemRequest struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

type updateLineItemRequest struct {
	Quantity int `json:"quantity"`
}

func viewOf(c *cart.Cart) cartView {
	items := make([]lineItemView, len(c.Items))
	for i, it := range c.Items {
		items[i] = lineItemView{
			ID:        it.ID,
			VariantID: it.VariantID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Discount:  pricing.MarshalAnnotation(it.Annotation),
		}
	}
	return cartView{
		ID:         c.ID,
		CustomerID: c.CustomerID,
		Currency:   c.Currency,
		Items:      items,
	}
}

func mutationResponseOf(c *cart.Cart, flags cart.PriceFlags) mutationResponse {
	return mutationResponse{
		Cart: viewOf(c),
		Flags: flagsView{
			BulkPricingApplied:     flags.BulkPricingApplied,
			VariantDiscountApplied: flags.VariantDiscountApplied,
		},
	}
}

func (h *Handler) addLineItem(w http.ResponseWriter, r *http.Request) {
	var req addLineItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, flags, err := h.carts.AddItem(r.Context(), r.PathValue("id"), cart.AddItemRequest{
		VariantID: req.VariantID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, mutationResponseOf(c, flags))
}

func (h *Handler) updateLineItem(w http.ResponseWriter, r *http.Request) {
	var req updateLineItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, flags, err := h.carts.UpdateItem(r.Context(),
		r.PathValue("id"), r.PathValue("lineID"), req.Quantity)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, mutationResponseOf(c, flags))
}

func (h *Handler) deleteLineItem(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.RemoveItem(r.Context(), r.PathValue("id"), r.PathValue("lineID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, mutationResponseOf(c, cart.PriceFlags{}))
}

type syncChange struct {
	ItemID  string `json:"item_id"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type totalsView struct {
	Subtotal        int64 `json:"subtotal"`
	PWPDiscount     int64 `json:"pwp_discount"`
	VariantDiscount int64 `json:"variant_discount"`
	TierDiscount    int64 `json:"tier_discount"`
	Total           int64 `json:"total"`
}

type tierView struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	Rank               int             `json:"rank"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	PointsMultiplier   decimal.Decimal `json:"points_multiplier"`
}

type syncResponse struct {
	Changes  []syncChange `json:"changes"`
	Totals   totalsView   `json:"totals"`
	TierInfo *tierView    `json:"tier_info"`
}

// syncPrices runs a full reconciliation pass synchronously and applies the
// diff before answering, so the caller (typically a pre-checkout flow) sees
// fully verified prices.
func (h *Handler) syncPrices(w http.ResponseWriter, r *http.Request) {
	diff, err := h.reconciler.Reconcile(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	if err := h.reconciler.Apply(r.Context(), diff); err != nil {
		writeDomainError(w, r, err)
		return
	}

	changes := make([]syncChange, 0, len(diff.Removals)+len(diff.Updates))
	for _, rm := range diff.Removals {
		changes = append(changes, syncChange{ItemID: rm.ItemID, Type: "removed", Message: rm.Reason})
	}
	for _, u := range diff.Updates {
		changes = append(changes, syncChange{ItemID: u.ItemID, Type: "updated", Message: "price updated"})
	}

	writeJSON(w, http.StatusOK, syncResponse{
		Changes: changes,
		Totals: totalsView{
			Subtotal:        diff.Totals.Subtotal,
			PWPDiscount:     diff.Totals.PWPDiscount,
			VariantDiscount: diff.Totals.VariantDiscount,
			TierDiscount:    diff.Totals.TierDiscount,
			Total:           diff.Totals.Total,
		},
		TierInfo: tierViewOf(diff.Tier),
	})
}

func tierViewOf(t *loyalty.Tier) *tierView {
	if t == nil {
		return nil
	}
	return &tierView{
		ID:                 t.ID,
		Name:               t.Name,
		Rank:               t.Rank,
		DiscountPercentage: t.DiscountPercentage,
		PointsMultiplier:   t.PointsMultiplier,
	}
}
