package cart

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/storelane/cartsync/internal/domain/catalog"
	"github.com/storelane/cartsync/internal/domain/pricing"
)

type mockPublisher struct {
	changed []string
}

func (m *mockPublisher) CartChanged(cartID string) {
	m.changed = append(m.changed, cartID)
}

func newService(f *fixture, pub *mockPublisher) *Service {
	return NewService(f.carts, f.catalog, pub, zap.NewNop())
}

func TestAddItem_Validation(t *testing.T) {
	f := newFixture()
	svc := newService(f, &mockPublisher{})

	_, _, err := svc.AddItem(context.Background(), "c1", AddItemRequest{VariantID: "", Quantity: 1})
	require.ErrorIs(t, err, ErrMissingVariant)

	_, _, err = svc.AddItem(context.Background(), "c1", AddItemRequest{VariantID: "v1", Quantity: 0})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestAddItem_CartNotFound(t *testing.T) {
	f := newFixture()
	f.addVariant("v1", "p1", 1000)
	svc := newService(f, &mockPublisher{})

	_, _, err := svc.AddItem(context.Background(), "missing", AddItemRequest{VariantID: "v1", Quantity: 1})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAddItem_VariantNotFound(t *testing.T) {
	f := newFixture()
	f.carts.carts["c1"] = &Cart{ID: "c1", Currency: "USD"}
	svc := newService(f, &mockPublisher{})

	_, _, err := svc.AddItem(context.Background(), "c1", AddItemRequest{VariantID: "missing", Quantity: 1})
	require.ErrorIs(t, err, catalog.ErrVariantNotFound)
}

func TestAddItem_BasePrice(t *testing.T) {
	f := newFixture()
	f.addVariant("v1", "p1", 1000)
	f.carts.carts["c1"] = &Cart{ID: "c1", Currency: "USD"}
	pub := &mockPublisher{}
	svc := newService(f, pub)

	c, flags, err := svc.AddItem(context.Background(), "c1", AddItemRequest{VariantID: "v1", Quantity: 2})

	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.EqualValues(t, 1000, c.Items[0].UnitPrice)
	assert.Equal(t, 2, c.Items[0].Quantity)
	assert.Equal(t, pricing.KindNone, c.Items[0].Annotation.Kind())
	assert.False(t, flags.BulkPricingApplied)
	assert.Equal(t, []string{"c1"}, pub.changed)
}

func TestAddItem_MergeCrossesBulkThreshold(t *testing.T) {
	f := newFixture()
	f.addVariant("v1", "p1", 1000, band(1, 0, 1000), band(5, 10, 800))
	f.carts.carts["c1"] = &Cart{
		ID:       "c1",
		Currency: "USD",
		Items: []Item{
			{ID: "i1", VariantID: "v1", ProductID: "p1", Quantity: 3, UnitPrice: 1000, Annotation: pricing.None{}},
		},
	}
	svc := newService(f, &mockPublisher{})

	c, flags, err := svc.AddItem(context.Background(), "c1", AddItemRequest{VariantID: "v1", Quantity: 2})

	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, "i1", c.Items[0].ID)
	assert.Equal(t, 5, c.Items[0].Quantity)
	assert.EqualValues(t, 800, c.Items[0].UnitPrice)
	assert.True(t, flags.BulkPricingApplied)
}

func TestAddItem_DoesNotMergeIntoBonusLine(t *testing.T) {
	f := newFixture()
	f.addVariant("v1", "p1", 600)
	f.carts.carts["c1"] = &Cart{
		ID:       "c1",
		Currency: "USD",
		Items: []Item{
			{
				ID: "i-bonus", VariantID: "v1", ProductID: "p1", Quantity: 1, UnitPrice: 0,
				Annotation: pricing.PWPBonus{RuleID: "r1", OriginalPrice: 600, DiscountAmount: 600},
			},
		},
	}
	svc := newService(f, &mockPublisher{})

	c, _, err := svc.AddItem(context.Background(), "c1", AddItemRequest{VariantID: "v1", Quantity: 1})

	require.NoError(t, err)
	require.Len(t, c.Items, 2)
	// The bonus line is untouched; the paid line is a new item.
	bonus := c.ItemByID("i-bonus")
	require.NotNil(t, bonus)
	assert.Equal(t, 1, bonus.Quantity)
	assert.EqualValues(t, 0, bonus.UnitPrice)
}

func TestAddItem_VariantDiscountApplied(t *testing.T) {
	f := newFixture()
	f.addVariant("v1", "p1", 1000)
	f.catalog.variants["v1"].Discount = &catalog.DiscountMeta{
		Kind:   catalog.DiscountPercentage,
		Amount: decimal.NewFromInt(10),
	}
	f.carts.carts["c1"] = &Cart{ID: "c1", Currency: "USD"}
	svc := newService(f, &mockPublisher{})

	c, flags, err := svc.AddItem(context.Background(), "c1", AddItemRequest{VariantID: "v1", Quantity: 1})

	require.NoError(t, err)
	assert.EqualValues(t, 900, c.Items[0].UnitPrice)
	assert.True(t, flags.VariantDiscountApplied)
	assert.False(t, flags.BulkPricingApplied)
}

func TestAddItem_PriceUnavailable(t *testing.T) {
	f := newFixture()
	f.addVariant("v1", "p1", 1000)
	f.catalog.variants["v1"].Currency = "EUR"
	f.carts.carts["c1"] = &Cart{ID: "c1", Currency: "USD"}
	svc := newService(f, &mockPublisher{})

	_, _, err := svc.AddItem(context.Background(), "c1", AddItemRequest{VariantID: "v1", Quantity: 1})
	require.ErrorIs(t, err, pricing.ErrPriceUnavailable)
}

func TestUpdateItem_RepricesAtNewQuantity(t *testing.T) {
	f := newFixture()
	f.addVariant("v1", "p1", 1000, band(1, 0, 1000), band(5, 10, 800))
	f.carts.carts["c1"] = &Cart{
		ID:       "c1",
		Currency: "USD",
		Items: []Item{
			{
				ID: "i1", VariantID: "v1", ProductID: "p1", Quantity: 5, UnitPrice: 800,
				Annotation: pricing.BulkTier{MinQuantity: 5, TierPrice: 800, OriginalPrice: 1000},
			},
		},
	}
	svc := newService(f, &mockPublisher{})

	c, flags, err := svc.UpdateItem(context.Background(), "c1", "i1", 4)

	require.NoError(t, err)
	assert.Equal(t, 4, c.Items[0].Quantity)
	assert.EqualValues(t, 1000, c.Items[0].UnitPrice)
	assert.False(t, flags.BulkPricingApplied)
}

func TestUpdateItem_ZeroQuantityRemoves(t *testing.T) {
	f := newFixture()
	f.addVariant("v1", "p1", 1000)
	f.carts.carts["c1"] = &Cart{
		ID:       "c1",
		Currency: "USD",
		Items: []Item{
			{ID: "i1", VariantID: "v1", ProductID: "p1", Quantity: 2, UnitPrice: 1000, Annotation: pricing.None{}},
		},
	}
	svc := newService(f, &mockPublisher{})

	c, _, err := svc.UpdateItem(context.Background(), "c1", "i1", 0)

	require.NoError(t, err)
	assert.Empty(t, c.Items)
}

func TestUpdateItem_NegativeQuantityRejected(t *testing.T) {
	f := newFixture()
	svc := newService(f, &mockPublisher{})

	_, _, err := svc.UpdateItem(context.Background(), "c1", "i1", -1)
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestUpdateItem_BonusKeepsGrantedPrice(t *testing.T) {
	f := newFixture()
	f.addVariant("v1", "p1", 600)
	grant := pricing.PWPBonus{RuleID: "r1", OriginalPrice: 600, DiscountAmount: 600}
	f.carts.carts["c1"] = &Cart{
		ID:       "c1",
		Currency: "USD",
		Items: []Item{
			{ID: "i1", VariantID: "v1", ProductID: "p1", Quantity: 1, UnitPrice: 0, Annotation: grant},
		},
	}
	svc := newService(f, &mockPublisher{})

	c, _, err := svc.UpdateItem(context.Background(), "c1", "i1", 2)

	require.NoError(t, err)
	assert.Equal(t, 2, c.Items[0].Quantity)
	assert.EqualValues(t, 0, c.Items[0].UnitPrice)
	assert.True(t, pricing.Equal(grant, c.Items[0].Annotation))
}

func TestUpdateItem_NotFound(t *testing.T) {
	f := newFixture()
	f.carts.carts["c1"] = &Cart{ID: "c1", Currency: "USD"}
	svc := newService(f, &mockPublisher{})

	_, _, err := svc.UpdateItem(context.Background(), "c1", "missing", 1)
	require.ErrorIs(t, err, ErrItemNotFound)
}

func TestRemoveItem(t *testing.T) {
	f := newFixture()
	f.carts.carts["c1"] = &Cart{
		ID:       "c1",
		Currency: "USD",
		Items: []Item{
			{ID: "i1", VariantID: "v1", ProductID: "p1", Quantity: 1, UnitPrice: 1000, Annotation: pricing.None{}},
		},
	}
	pub := &mockPublisher{}
	svc := newService(f, pub)

	c, err := svc.RemoveItem(context.Background(), "c1", "i1")

	require.NoError(t, err)
	assert.Empty(t, c.Items)
	assert.Equal(t, []string{"c1"}, pub.changed)

	_, err = svc.RemoveItem(context.Background(), "c1", "i1")
	require.ErrorIs(t, err, ErrItemNotFound)
}
