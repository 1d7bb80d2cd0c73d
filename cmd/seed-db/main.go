// Command seed-db loads a demo catalog, pricing rules and loyalty ladder into
// PostgreSQL for local development and integration tests.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/storelane/cartsync/internal/storage/postgres"
)

type variantJSON struct {
	ID             string           `json:"id"`
	ProductID      string           `json:"product_id"`
	SKU            string           `json:"sku"`
	Name           string           `json:"name"`
	Currency       string           `json:"currency"`
	BasePrice      int64            `json:"base_price"`
	DiscountKind   *string          `json:"discount_kind"`
	DiscountAmount *decimal.Decimal `json:"discount_amount"`
}

type tierBand struct {
	variantID   string
	currency    string
	minQuantity int
	maxQuantity *int
	unitPrice   int64
}

type loyaltyTier struct {
	id                 string
	name               string
	rank               int
	orderThreshold     int
	spendThreshold     int64
	discountPercentage decimal.Decimal
	pointsMultiplier   decimal.Decimal
	isDefault          bool
}

func main() {
	var (
		databaseURL  string
		variantsFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&variantsFile, "variants-file", "db/seed/variants.json", "path to variants JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, variantsFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, variantsFile string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedVariants(ctx, pool, variantsFile); err != nil {
		return errors.Wrap(err, "seed variants")
	}

	if err := seedTierBands(ctx, pool); err != nil {
		return errors.Wrap(err, "seed tier bands")
	}

	if err := seedPWPRules(ctx, pool); err != nil {
		return errors.Wrap(err, "seed pwp rules")
	}

	if err := seedLoyalty(ctx, pool); err != nil {
		return errors.Wrap(err, "seed loyalty")
	}

	if err := seedCarts(ctx, pool); err != nil {
		return errors.Wrap(err, "seed carts")
	}

	return nil
}

func seedVariants(ctx context.Context, pool *pgxpool.Pool, variantsFile string) error {
	slog.Info("reading variants file", slog.String("path", variantsFile))

	data, err := os.ReadFile(variantsFile)
	if err != nil {
		return errors.Wrap(err, "read variants file")
	}

	var variants []variantJSON
	if err := json.Unmarshal(data, &variants); err != nil {
		return errors.Wrap(err, "parse variants JSON")
	}

	slog.Info("upserting variants", slog.Int("count", len(variants)))

	for _, v := range variants {
		_, err := pool.Exec(ctx,
			`INSERT INTO variants (id, product_id, sku, name, currency, base_price, discount_kind, discount_amount)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (id) DO UPDATE
			    SET product_id = EXCLUDED.product_id,
			        sku = EXCLUDED.sku,
			        name = EXCLUDED.name,
			        currency = EXCLUDED.currency,
			        base_price = EXCLUDED.base_price,
			        discount_kind = EXCLUDED.discount_kind,
			        discount_amount = EXCLUDED.discount_amount`,
			v.ID, v.ProductID, v.SKU, v.Name, v.Currency, v.BasePrice, v.DiscountKind, v.DiscountAmount)
		if err != nil {
			return errors.Wrapf(err, "upsert variant %s", v.ID)
		}

		slog.Info("upserted variant", slog.String("id", v.ID), slog.String("sku", v.SKU))
	}

	return nil
}

func seedTierBands(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding tier bands")

	ten := 10
	bands := []tierBand{
		{variantID: "var-espresso", currency: "USD", minQuantity: 1, unitPrice: 1000},
		{variantID: "var-espresso", currency: "USD", minQuantity: 5, maxQuantity: &ten, unitPrice: 800},
		{variantID: "var-espresso", currency: "USD", minQuantity: 11, unitPrice: 700},
		{variantID: "var-grinder", currency: "USD", minQuantity: 1, unitPrice: 4500},
		{variantID: "var-grinder", currency: "USD", minQuantity: 3, unitPrice: 4000},
		{variantID: "var-filters", currency: "USD", minQuantity: 1, unitPrice: 600},
	}

	// Bands are replaced wholesale on each seed run.
	if _, err := pool.Exec(ctx, `DELETE FROM tier_bands`); err != nil {
		return errors.Wrap(err, "clear tier bands")
	}

	for _, b := range bands {
		_, err := pool.Exec(ctx,
			`INSERT INTO tier_bands (variant_id, currency, min_quantity, max_quantity, unit_price)
			 VALUES ($1, $2, $3, $4, $5)`,
			b.variantID, b.currency, b.minQuantity, b.maxQuantity, b.unitPrice)
		if err != nil {
			return errors.Wrapf(err, "insert tier band for %s", b.variantID)
		}
	}

	slog.Info("seeded tier bands", slog.Int("count", len(bands)))

	return nil
}

func seedPWPRules(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding pwp rules")

	rules := []struct {
		id               string
		triggerType      string
		triggerCartValue int64
		triggerProductID string
		rewardVariantID  string
		discountAmount   int64
	}{
		{
			id:               "pwp-free-filters",
			triggerType:      "cart_value",
			triggerCartValue: 10000,
			rewardVariantID:  "var-filters",
			discountAmount:   600,
		},
		{
			id:               "pwp-grinder-tamper",
			triggerType:      "product",
			triggerProductID: "prod-grinder",
			rewardVariantID:  "var-tamper",
			discountAmount:   500,
		},
	}

	for _, r := range rules {
		_, err := pool.Exec(ctx,
			`INSERT INTO pwp_rules
			   (id, status, trigger_type, trigger_cart_value, trigger_product_id, reward_variant_id, discount_amount)
			 VALUES ($1, 'active', $2, $3, $4, $5, $6)
			 ON CONFLICT (id) DO UPDATE
			    SET status = 'active',
			        trigger_type = EXCLUDED.trigger_type,
			        trigger_cart_value = EXCLUDED.trigger_cart_value,
			        trigger_product_id = EXCLUDED.trigger_product_id,
			        reward_variant_id = EXCLUDED.reward_variant_id,
			        discount_amount = EXCLUDED.discount_amount`,
			r.id, r.triggerType, r.triggerCartValue, r.triggerProductID, r.rewardVariantID, r.discountAmount)
		if err != nil {
			return errors.Wrapf(err, "upsert pwp rule %s", r.id)
		}

		slog.Info("upserted pwp rule", slog.String("id", r.id), slog.String("trigger", r.triggerType))
	}

	return nil
}

func seedLoyalty(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding loyalty ladder")

	tiers := []loyaltyTier{
		{
			id:               "tier-member",
			name:             "Member",
			rank:             0,
			pointsMultiplier: decimal.NewFromInt(1),
			isDefault:        true,
		},
		{
			id:                 "tier-silver",
			name:               "Silver",
			rank:               1,
			orderThreshold:     5,
			spendThreshold:     50000,
			discountPercentage: decimal.NewFromInt(3),
			pointsMultiplier:   decimal.RequireFromString("1.25"),
		},
		{
			id:                 "tier-gold",
			name:               "Gold",
			rank:               2,
			orderThreshold:     10,
			spendThreshold:     100000,
			discountPercentage: decimal.NewFromInt(5),
			pointsMultiplier:   decimal.RequireFromString("1.5"),
		},
	}

	for _, t := range tiers {
		_, err := pool.Exec(ctx,
			`INSERT INTO loyalty_tiers
			   (id, name, rank, order_threshold, spend_threshold, discount_percentage, points_multiplier, is_default, active)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE)
			 ON CONFLICT (id) DO UPDATE
			    SET name = EXCLUDED.name,
			        rank = EXCLUDED.rank,
			        order_threshold = EXCLUDED.order_threshold,
			        spend_threshold = EXCLUDED.spend_threshold,
			        discount_percentage = EXCLUDED.discount_percentage,
			        points_multiplier = EXCLUDED.points_multiplier,
			        is_default = EXCLUDED.is_default,
			        active = TRUE`,
			t.id, t.name, t.rank, t.orderThreshold, t.spendThreshold, t.discountPercentage, t.pointsMultiplier, t.isDefault)
		if err != nil {
			return errors.Wrapf(err, "upsert loyalty tier %s", t.id)
		}

		slog.Info("upserted loyalty tier", slog.String("id", t.id), slog.Int("rank", t.rank))
	}

	// Demo customer sitting comfortably in Gold.
	_, err := pool.Exec(ctx,
		`INSERT INTO customer_activity (customer_id, order_count, spend_total)
		 VALUES ('cust-demo', 12, 150000)
		 ON CONFLICT (customer_id) DO UPDATE
		    SET order_count = EXCLUDED.order_count,
		        spend_total = EXCLUDED.spend_total,
		        updated_at = now()`)
	if err != nil {
		return errors.Wrap(err, "upsert demo customer activity")
	}

	return nil
}

func seedCarts(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding demo carts")

	carts := []struct {
		id         string
		customerID *string
	}{
		{id: "cart-guest"},
		{id: "cart-demo", customerID: ptr("cust-demo")},
	}

	for _, c := range carts {
		_, err := pool.Exec(ctx,
			`INSERT INTO carts (id, customer_id, currency)
			 VALUES ($1, $2, 'USD')
			 ON CONFLICT (id) DO NOTHING`,
			c.id, c.customerID)
		if err != nil {
			return errors.Wrapf(err, "insert cart %s", c.id)
		}

		slog.Info("seeded cart", slog.String("id", c.id))
	}

	return nil
}

func ptr[T any](v T) *T { return &v }
