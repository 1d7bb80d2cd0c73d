package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/storelane/cartsync/internal/domain/catalog"
)

var _ catalog.Repository = (*CatalogRepository)(nil)

// CatalogRepository implements catalog.Repository backed by PostgreSQL.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository using the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

const variantColumns = `id, product_id, sku, name, currency, base_price, discount_kind, discount_amount`

// GetVariant fetches one variant. Returns catalog.ErrVariantNotFound when
// absent.
func (r *CatalogRepository) GetVariant(ctx context.Context, id string) (*catalog.Variant, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+variantColumns+` FROM variants WHERE id = $1`, id)

	v, err := scanVariant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrVariantNotFound
		}
		return nil, errors.Wrapf(err, "get variant %q", id)
	}
	return v, nil
}

// GetVariants fetches a batch of variants in one query. Missing ids are
// simply absent from the result.
func (r *CatalogRepository) GetVariants(ctx context.Context, ids []string) ([]catalog.Variant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+variantColumns+` FROM variants WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "query variants")
	}
	defer rows.Close()

	var variants []catalog.Variant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan variant")
		}
		variants = append(variants, *v)
	}
	return variants, rows.Err()
}

// GetTierTable fetches every pricing band for a variant. A variant without
// bands yields an empty table, not an error.
func (r *CatalogRepository) GetTierTable(ctx context.Context, variantID string) (*catalog.TierTable, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT currency, min_quantity, max_quantity, unit_price
		   FROM tier_bands
		  WHERE variant_id = $1
		  ORDER BY min_quantity`, variantID)
	if err != nil {
		return nil, errors.Wrapf(err, "query tier bands for %q", variantID)
	}
	defer rows.Close()

	table := &catalog.TierTable{VariantID: variantID}
	for rows.Next() {
		var (
			band catalog.TierBand
			max  *int
		)
		if err := rows.Scan(&band.Currency, &band.MinQuantity, &max, &band.UnitPrice); err != nil {
			return nil, errors.Wrap(err, "scan tier band")
		}
		if max != nil {
			band.MaxQuantity = *max
		}
		table.Bands = append(table.Bands, band)
	}
	return table, rows.Err()
}

func scanVariant(row pgx.Row) (*catalog.Variant, error) {
	var (
		v      catalog.Variant
		kind   *string
		amount *decimal.Decimal
	)
	if err := row.Scan(&v.ID, &v.ProductID, &v.SKU, &v.Name, &v.Currency,
		&v.BasePrice, &kind, &amount); err != nil {
		return nil, err
	}
	if kind != nil && amount != nil {
		v.Discount = &catalog.DiscountMeta{
			Kind:   catalog.DiscountKind(*kind),
			Amount: *amount,
		}
	}
	return &v, nil
}
