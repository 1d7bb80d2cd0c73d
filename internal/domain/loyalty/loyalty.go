// Package loyalty determines the tier a customer qualifies for from their
// rolling 12-month activity, and the cart-wide discount that tier grants.
// Tier pricing is a separate axis from bulk/variant pricing: it applies to
// cart totals, never to individual line items.
package loyalty

import (
	"context"

	"github.com/shopspring/decimal"
)

// Tier is one rung of the loyalty ladder.
type Tier struct {
	ID                 string
	Name               string
	Rank               int
	OrderThreshold     int
	SpendThreshold     int64
	DiscountPercentage decimal.Decimal
	PointsMultiplier   decimal.Decimal
	IsDefault          bool
	Active             bool
}

// Activity is a customer's rolling order count and spend total, maintained
// by the order-placement service and read-only here.
type Activity struct {
	OrderCount int
	SpendTotal int64
}

// Repository provides the tier ladder and per-customer activity.
type Repository interface {
	// Ladder returns all tiers sorted ascending by rank.
	Ladder(ctx context.Context) ([]Tier, error)
	ActivityFor(ctx context.Context, customerID string) (Activity, error)
}

// Qualify returns the highest-ranked active tier whose order and spend
// thresholds are both met, falling back to the explicit default tier and
// then to the lowest-ranked active tier. The ladder must be sorted ascending
// by rank. Returns nil when the ladder has no active tiers.
//
// The rule is monotonic: it never considers tiers the customer previously
// held, so downgrades happen implicitly whenever activity drops.
func Qualify(orderCount int, spendTotal int64, ladder []Tier) *Tier {
	for i := len(ladder) - 1; i >= 0; i-- {
		t := ladder[i]
		if !t.Active {
			continue
		}
		if orderCount >= t.OrderThreshold && spendTotal >= t.SpendThreshold {
			return &ladder[i]
		}
	}

	var lowest *Tier
	for i := range ladder {
		if !ladder[i].Active {
			continue
		}
		if ladder[i].IsDefault {
			return &ladder[i]
		}
		if lowest == nil || ladder[i].Rank < lowest.Rank {
			lowest = &ladder[i]
		}
	}
	return lowest
}

var hundred = decimal.NewFromInt(100)

// Discount computes the cart-wide tier discount in minor units:
// round(netSubtotal * percentage / 100). It is always recomputed from
// scratch off current totals, never adjusted incrementally, so repeated
// reconciliation passes cannot compound it.
func Discount(netSubtotal int64, t *Tier) int64 {
	if t == nil || !t.DiscountPercentage.IsPositive() || netSubtotal <= 0 {
		return 0
	}
	d := decimal.NewFromInt(netSubtotal).
		Mul(t.DiscountPercentage).
		Div(hundred).
		Round(0)
	return d.IntPart()
}
