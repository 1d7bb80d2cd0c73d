package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storelane/cartsync/internal/domain/cart"
	"github.com/storelane/cartsync/internal/domain/pricing"
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL. Discount
// annotations live in a JSONB column encoded by the pricing codec.
//
// Mutations lock the cart row FOR UPDATE; synchronous passes against the
// same cart serialize on that row lock rather than on the in-process guard.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository using the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Get loads a cart with all its line items. Returns cart.ErrNotFound when
// the cart does not exist.
func (r *CartRepository) Get(ctx context.Context, id string) (*cart.Cart, error) {
	var (
		c        cart.Cart
		customer *string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, customer_id, currency FROM carts WHERE id = $1`, id).
		Scan(&c.ID, &customer, &c.Currency)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get cart %q", id)
	}
	if customer != nil {
		c.CustomerID = *customer
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, variant_id, product_id, quantity, unit_price, annotation
		   FROM cart_items
		  WHERE cart_id = $1
		  ORDER BY updated_at`, id)
	if err != nil {
		return nil, errors.Wrap(err, "query cart items")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			it  cart.Item
			raw []byte
		)
		if err := rows.Scan(&it.ID, &it.VariantID, &it.ProductID,
			&it.Quantity, &it.UnitPrice, &raw); err != nil {
			return nil, errors.Wrap(err, "scan cart item")
		}
		ann, err := pricing.UnmarshalAnnotation(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "decode annotation for item %q", it.ID)
		}
		it.Annotation = ann
		c.Items = append(c.Items, it)
	}
	return &c, rows.Err()
}

// UpsertItem inserts or replaces a line item inside a transaction holding
// the cart row lock.
func (r *CartRepository) UpsertItem(ctx context.Context, cartID string, item cart.Item) error {
	return r.inCartTx(ctx, cartID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO cart_items (id, cart_id, variant_id, product_id, quantity, unit_price, annotation, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, now())
			 ON CONFLICT (id) DO UPDATE
			    SET quantity = EXCLUDED.quantity,
			        unit_price = EXCLUDED.unit_price,
			        annotation = EXCLUDED.annotation,
			        updated_at = now()`,
			item.ID, cartID, item.VariantID, item.ProductID,
			item.Quantity, item.UnitPrice, pricing.MarshalAnnotation(item.Annotation))
		if err != nil {
			return errors.Wrapf(err, "upsert item %q", item.ID)
		}
		return nil
	})
}

// DeleteItem removes one line item. Returns cart.ErrItemNotFound when no row
// was deleted.
func (r *CartRepository) DeleteItem(ctx context.Context, cartID, itemID string) error {
	return r.inCartTx(ctx, cartID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`DELETE FROM cart_items WHERE cart_id = $1 AND id = $2`, cartID, itemID)
		if err != nil {
			return errors.Wrapf(err, "delete item %q", itemID)
		}
		if tag.RowsAffected() == 0 {
			return cart.ErrItemNotFound
		}
		return nil
	})
}

// ApplyDiff applies reconciliation removals then updates in one transaction.
func (r *CartRepository) ApplyDiff(ctx context.Context, cartID string, removals []string, updates []cart.ItemUpdate) error {
	return r.inCartTx(ctx, cartID, func(tx pgx.Tx) error {
		if len(removals) > 0 {
			if _, err := tx.Exec(ctx,
				`DELETE FROM cart_items WHERE cart_id = $1 AND id = ANY($2)`,
				cartID, removals); err != nil {
				return errors.Wrap(err, "apply removals")
			}
		}
		for _, u := range updates {
			if _, err := tx.Exec(ctx,
				`UPDATE cart_items
				    SET unit_price = $3, annotation = $4, updated_at = now()
				  WHERE cart_id = $1 AND id = $2`,
				cartID, u.ItemID, u.NewPrice, pricing.MarshalAnnotation(u.NewAnnotation)); err != nil {
				return errors.Wrapf(err, "apply update for item %q", u.ItemID)
			}
		}
		return nil
	})
}

// inCartTx runs fn in a transaction that holds the cart's row lock, so
// concurrent synchronous mutations of the same cart serialize in the store.
func (r *CartRepository) inCartTx(ctx context.Context, cartID string, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id string
	err = tx.QueryRow(ctx,
		`SELECT id FROM carts WHERE id = $1 FOR UPDATE`, cartID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return cart.ErrNotFound
		}
		return errors.Wrapf(err, "lock cart %q", cartID)
	}

	if err := fn(tx); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE carts SET updated_at = now() WHERE id = $1`, cartID); err != nil {
		return errors.Wrap(err, "touch cart")
	}

	return tx.Commit(ctx)
}
