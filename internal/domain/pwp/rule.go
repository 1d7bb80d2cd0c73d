// Package pwp validates standing purchase-with-purchase bonus items against
// the rules that granted them.
package pwp

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// ErrRuleNotFound is returned when a referenced rule no longer exists.
var ErrRuleNotFound = errors.New("pwp rule not found")

// Status enumerates rule lifecycle states.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// TriggerType enumerates how a rule's eligibility is decided.
type TriggerType string

const (
	// TriggerCartValue requires the cart's non-bonus value to meet a minimum.
	TriggerCartValue TriggerType = "cart_value"
	// TriggerProduct requires a specific product elsewhere in the cart.
	TriggerProduct TriggerType = "product"
)

// Rule is a purchase-with-purchase grant authored by promotion management.
// The engine only reads rules to re-validate standing bonus items.
type Rule struct {
	ID               string
	Status           Status
	StartsAt         *time.Time
	EndsAt           *time.Time
	TriggerType      TriggerType
	TriggerCartValue int64
	TriggerProductID string
	RewardVariantID  string
	DiscountAmount   int64
}

// Repository provides rule lookup.
type Repository interface {
	GetRule(ctx context.Context, id string) (*Rule, error)
}
