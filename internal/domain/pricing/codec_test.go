package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storelane/cartsync/internal/domain/catalog"
)

func TestAnnotationCodec_RoundTrip(t *testing.T) {
	annotations := []Annotation{
		None{},
		BulkTier{MinQuantity: 5, TierPrice: 800, OriginalPrice: 1000},
		VariantDiscount{
			DiscountType:  catalog.DiscountPercentage,
			Amount:        decimal.RequireFromString("12.5"),
			OriginalPrice: 999,
		},
		PWPBonus{
			RuleID:         "pwp-free-filters",
			TriggerType:    "cart_value",
			TriggerValue:   "10000",
			OriginalPrice:  600,
			DiscountAmount: 600,
		},
	}

	for _, want := range annotations {
		data := MarshalAnnotation(want)

		got, err := UnmarshalAnnotation(data)
		require.NoError(t, err, "kind %s", want.Kind())
		assert.True(t, Equal(want, got), "kind %s: got %+v", want.Kind(), got)
	}
}

func TestUnmarshalAnnotation_EmptyPayload(t *testing.T) {
	got, err := UnmarshalAnnotation(nil)

	require.NoError(t, err)
	assert.Equal(t, KindNone, got.Kind())
}

func TestUnmarshalAnnotation_UnknownKind(t *testing.T) {
	got, err := UnmarshalAnnotation([]byte(`{"kind":"loyalty_points","weight":3}`))

	require.NoError(t, err)
	assert.Equal(t, KindNone, got.Kind())
}

func TestUnmarshalAnnotation_MalformedAmount(t *testing.T) {
	_, err := UnmarshalAnnotation([]byte(
		`{"kind":"variant_discount","discount_type":"percentage","amount":"not-a-number","original_price":5}`))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode amount")
}

func TestMarshalAnnotation_NilIsNone(t *testing.T) {
	assert.JSONEq(t, `{"kind":"none"}`, string(MarshalAnnotation(nil)))
}
