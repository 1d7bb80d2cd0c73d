package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storelane/cartsync/internal/domain/pwp"
)

var _ pwp.Repository = (*PWPRepository)(nil)

// PWPRepository implements pwp.Repository backed by PostgreSQL.
type PWPRepository struct {
	pool *pgxpool.Pool
}

// NewPWPRepository returns a PWPRepository using the given pool.
func NewPWPRepository(pool *pgxpool.Pool) *PWPRepository {
	return &PWPRepository{pool: pool}
}

// GetRule fetches one rule. Returns pwp.ErrRuleNotFound when absent.
func (r *PWPRepository) GetRule(ctx context.Context, id string) (*pwp.Rule, error) {
	var rule pwp.Rule
	err := r.pool.QueryRow(ctx,
		`SELECT id, status, starts_at, ends_at, trigger_type,
		        trigger_cart_value, trigger_product_id, reward_variant_id, discount_amount
		   FROM pwp_rules WHERE id = $1`, id).
		Scan(&rule.ID, &rule.Status, &rule.StartsAt, &rule.EndsAt, &rule.TriggerType,
			&rule.TriggerCartValue, &rule.TriggerProductID, &rule.RewardVariantID, &rule.DiscountAmount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pwp.ErrRuleNotFound
		}
		return nil, errors.Wrapf(err, "get pwp rule %q", id)
	}
	return &rule, nil
}
