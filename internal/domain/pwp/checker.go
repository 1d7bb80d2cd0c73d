package pwp

import (
	"context"
	"time"
)

// Removal reasons surfaced to callers of the sync endpoint.
const (
	ReasonRuleLookupFailed = "bonus rule could not be verified"
	ReasonRuleInactive     = "bonus rule is no longer active"
	ReasonRuleNotStarted   = "bonus rule has not started"
	ReasonRuleExpired      = "bonus rule has expired"
	ReasonCartValueBelow   = "cart value below minimum"
	ReasonTriggerMissing   = "trigger product no longer in cart"
)

// Snapshot is the view of a cart the checker needs: the cart's value
// excluding all bonus items (their price is not real spend) and the parent
// products of every non-bonus item.
type Snapshot struct {
	NonBonusValue int64
	ProductIDs    map[string]struct{}
}

// HasProduct reports whether a non-bonus item for the product is in the cart.
func (s Snapshot) HasProduct(productID string) bool {
	_, ok := s.ProductIDs[productID]
	return ok
}

// Checker re-validates standing bonus items against their rules.
type Checker struct {
	rules Repository
	now   func() time.Time
}

// NewChecker creates a Checker backed by the given rule repository.
func NewChecker(rules Repository) *Checker {
	return &Checker{rules: rules, now: time.Now}
}

// Eligible decides whether a bonus item granted by ruleID may remain in the
// cart. When it may not, reason carries the user-visible removal message.
//
// Any failure fetching the rule is treated as ineligible: the engine fails
// closed and removes the bonus rather than risk retaining an unearned
// discount.
func (c *Checker) Eligible(ctx context.Context, ruleID string, snap Snapshot) (ok bool, reason string) {
	rule, err := c.rules.GetRule(ctx, ruleID)
	if err != nil {
		return false, ReasonRuleLookupFailed
	}

	now := c.now()

	if rule.Status != StatusActive {
		return false, ReasonRuleInactive
	}
	if rule.StartsAt != nil && now.Before(*rule.StartsAt) {
		return false, ReasonRuleNotStarted
	}
	if rule.EndsAt != nil && now.After(*rule.EndsAt) {
		return false, ReasonRuleExpired
	}

	switch rule.TriggerType {
	case TriggerCartValue:
		if snap.NonBonusValue < rule.TriggerCartValue {
			return false, ReasonCartValueBelow
		}
	case TriggerProduct:
		if !snap.HasProduct(rule.TriggerProductID) {
			return false, ReasonTriggerMissing
		}
	}

	return true, ""
}
