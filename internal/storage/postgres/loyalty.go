package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storelane/cartsync/internal/domain/loyalty"
)

var _ loyalty.Repository = (*LoyaltyRepository)(nil)

// LoyaltyRepository implements loyalty.Repository backed by PostgreSQL.
type LoyaltyRepository struct {
	pool *pgxpool.Pool
}

// NewLoyaltyRepository returns a LoyaltyRepository using the given pool.
func NewLoyaltyRepository(pool *pgxpool.Pool) *LoyaltyRepository {
	return &LoyaltyRepository{pool: pool}
}

// Ladder returns all tiers sorted ascending by rank.
func (r *LoyaltyRepository) Ladder(ctx context.Context) ([]loyalty.Tier, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, rank, order_threshold, spend_threshold,
		        discount_percentage, points_multiplier, is_default, active
		   FROM loyalty_tiers
		  ORDER BY rank`)
	if err != nil {
		return nil, errors.Wrap(err, "query loyalty tiers")
	}
	defer rows.Close()

	var ladder []loyalty.Tier
	for rows.Next() {
		var t loyalty.Tier
		if err := rows.Scan(&t.ID, &t.Name, &t.Rank, &t.OrderThreshold, &t.SpendThreshold,
			&t.DiscountPercentage, &t.PointsMultiplier, &t.IsDefault, &t.Active); err != nil {
			return nil, errors.Wrap(err, "scan loyalty tier")
		}
		ladder = append(ladder, t)
	}
	return ladder, rows.Err()
}

// ActivityFor returns the customer's rolling activity. A customer with no
// recorded activity yet qualifies with zeros.
func (r *LoyaltyRepository) ActivityFor(ctx context.Context, customerID string) (loyalty.Activity, error) {
	var a loyalty.Activity
	err := r.pool.QueryRow(ctx,
		`SELECT order_count, spend_total FROM customer_activity WHERE customer_id = $1`,
		customerID).
		Scan(&a.OrderCount, &a.SpendTotal)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return loyalty.Activity{}, nil
		}
		return loyalty.Activity{}, errors.Wrapf(err, "get activity for %q", customerID)
	}
	return a, nil
}
