package pricing

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/storelane/cartsync/internal/domain/catalog"
)

// MarshalAnnotation encodes an annotation to the JSONB shape stored on a
// line item. Decimal amounts are encoded as strings to avoid float drift.
func MarshalAnnotation(a Annotation) []byte {
	if a == nil {
		a = None{}
	}

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("kind", func(e *jx.Encoder) { e.Str(string(a.Kind())) })

		switch v := a.(type) {
		case BulkTier:
			e.Field("min_quantity", func(e *jx.Encoder) { e.Int(v.MinQuantity) })
			e.Field("tier_price", func(e *jx.Encoder) { e.Int64(v.TierPrice) })
			e.Field("original_price", func(e *jx.Encoder) { e.Int64(v.OriginalPrice) })
		case VariantDiscount:
			e.Field("discount_type", func(e *jx.Encoder) { e.Str(string(v.DiscountType)) })
			e.Field("amount", func(e *jx.Encoder) { e.Str(v.Amount.String()) })
			e.Field("original_price", func(e *jx.Encoder) { e.Int64(v.OriginalPrice) })
		case PWPBonus:
			e.Field("rule_id", func(e *jx.Encoder) { e.Str(v.RuleID) })
			e.Field("trigger_type", func(e *jx.Encoder) { e.Str(v.TriggerType) })
			e.Field("trigger_value", func(e *jx.Encoder) { e.Str(v.TriggerValue) })
			e.Field("original_price", func(e *jx.Encoder) { e.Int64(v.OriginalPrice) })
			e.Field("discount_amount", func(e *jx.Encoder) { e.Int64(v.DiscountAmount) })
		}
	})

	return e.Bytes()
}

// UnmarshalAnnotation decodes the stored JSONB annotation. Unknown or empty
// payloads decode to None rather than failing, so a cart written by an older
// build still reconciles.
func UnmarshalAnnotation(data []byte) (Annotation, error) {
	if len(data) == 0 {
		return None{}, nil
	}

	var (
		kind    string
		bulk    BulkTier
		variant VariantDiscount
		pwp     PWPBonus
	)

	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "kind":
			v, err := d.Str()
			if err != nil {
				return err
			}
			kind = v
		case "min_quantity":
			v, err := d.Int()
			if err != nil {
				return err
			}
			bulk.MinQuantity = v
		case "tier_price":
			v, err := d.Int64()
			if err != nil {
				return err
			}
			bulk.TierPrice = v
		case "discount_type":
			v, err := d.Str()
			if err != nil {
				return err
			}
			variant.DiscountType = catalog.DiscountKind(v)
		case "amount":
			v, err := d.Str()
			if err != nil {
				return err
			}
			amount, err := decimal.NewFromString(v)
			if err != nil {
				return errors.Wrap(err, "decode amount")
			}
			variant.Amount = amount
		case "original_price":
			v, err := d.Int64()
			if err != nil {
				return err
			}
			bulk.OriginalPrice = v
			variant.OriginalPrice = v
			pwp.OriginalPrice = v
		case "rule_id":
			v, err := d.Str()
			if err != nil {
				return err
			}
			pwp.RuleID = v
		case "trigger_type":
			v, err := d.Str()
			if err != nil {
				return err
			}
			pwp.TriggerType = v
		case "trigger_value":
			v, err := d.Str()
			if err != nil {
				return err
			}
			pwp.TriggerValue = v
		case "discount_amount":
			v, err := d.Int64()
			if err != nil {
				return err
			}
			pwp.DiscountAmount = v
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode annotation")
	}

	switch Kind(kind) {
	case KindBulkTier:
		return bulk, nil
	case KindVariantDiscount:
		return variant, nil
	case KindPWPBonus:
		return pwp, nil
	default:
		return None{}, nil
	}
}
