// Command rules-ingest bulk-loads pricing configuration exported by catalog
// management: gzipped JSONL files of tier bands and purchase-with-purchase
// rules. Files are processed in parallel and rows are written in batches.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/storelane/cartsync/internal/storage/postgres"
)

const batchSize = 1000

// tierBandRow is one line of a tierbands*.jsonl.gz export.
type tierBandRow struct {
	VariantID   string `json:"variant_id"`
	Currency    string `json:"currency"`
	MinQuantity int    `json:"min_quantity"`
	MaxQuantity *int   `json:"max_quantity"`
	UnitPrice   int64  `json:"unit_price"`
}

// pwpRuleRow is one line of a pwprules*.jsonl.gz export.
type pwpRuleRow struct {
	ID               string     `json:"id"`
	Status           string     `json:"status"`
	StartsAt         *time.Time `json:"starts_at"`
	EndsAt           *time.Time `json:"ends_at"`
	TriggerType      string     `json:"trigger_type"`
	TriggerCartValue int64      `json:"trigger_cart_value"`
	TriggerProductID string     `json:"trigger_product_id"`
	RewardVariantID  string     `json:"reward_variant_id"`
	DiscountAmount   int64      `json:"discount_amount"`
}

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing tierbands*.jsonl.gz and pwprules*.jsonl.gz files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("ingest failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	files, err := filepath.Glob(filepath.Join(dataDir, "*.jsonl.gz"))
	if err != nil {
		return errors.Wrap(err, "glob data dir")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.jsonl.gz files in %s", dataDir)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for _, file := range files {
		g.Go(func() error {
			start := time.Now()
			n, err := ingestFile(ctx, pool, file)
			if err != nil {
				return errors.Wrapf(err, "ingest %s", file)
			}
			slog.Info("file ingested", "file", filepath.Base(file), "rows", n, "took", time.Since(start))
			return nil
		})
	}

	return g.Wait()
}

func ingestFile(ctx context.Context, pool *pgxpool.Pool, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrap(err, "open")
	}
	defer f.Close()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return 0, errors.Wrap(err, "gzip reader")
	}
	defer gz.Close()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	base := filepath.Base(path)
	switch {
	case strings.HasPrefix(base, "tierbands"):
		return ingestTierBands(ctx, pool, scanner)
	case strings.HasPrefix(base, "pwprules"):
		return ingestPWPRules(ctx, pool, scanner)
	default:
		return 0, errors.Errorf("unrecognized file name %q (want tierbands* or pwprules*)", base)
	}
}

func ingestTierBands(ctx context.Context, pool *pgxpool.Pool, scanner *bufio.Scanner) (int, error) {
	total := 0
	batch := &pgx.Batch{}

	flush := func() error {
		if batch.Len() == 0 {
			return nil
		}
		if err := pool.SendBatch(ctx, batch).Close(); err != nil {
			return errors.Wrap(err, "send batch")
		}
		batch = &pgx.Batch{}
		return nil
	}

	for scanner.Scan() {
		var row tierBandRow
		if err := json.Unmarshal(scanner.Bytes(), &row); err != nil {
			return total, errors.Wrap(err, "decode tier band")
		}
		batch.Queue(
			`INSERT INTO tier_bands (variant_id, currency, min_quantity, max_quantity, unit_price)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (variant_id, currency, min_quantity) DO UPDATE
			    SET max_quantity = EXCLUDED.max_quantity,
			        unit_price = EXCLUDED.unit_price`,
			row.VariantID, row.Currency, row.MinQuantity, row.MaxQuantity, row.UnitPrice)
		total++

		if batch.Len() >= batchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return total, errors.Wrap(err, "scan")
	}
	return total, flush()
}

func ingestPWPRules(ctx context.Context, pool *pgxpool.Pool, scanner *bufio.Scanner) (int, error) {
	total := 0
	batch := &pgx.Batch{}

	flush := func() error {
		if batch.Len() == 0 {
			return nil
		}
		if err := pool.SendBatch(ctx, batch).Close(); err != nil {
			return errors.Wrap(err, "send batch")
		}
		batch = &pgx.Batch{}
		return nil
	}

	for scanner.Scan() {
		var row pwpRuleRow
		if err := json.Unmarshal(scanner.Bytes(), &row); err != nil {
			return total, errors.Wrap(err, "decode pwp rule")
		}
		batch.Queue(
			`INSERT INTO pwp_rules
			   (id, status, starts_at, ends_at, trigger_type, trigger_cart_value,
			    trigger_product_id, reward_variant_id, discount_amount)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (id) DO UPDATE
			    SET status = EXCLUDED.status,
			        starts_at = EXCLUDED.starts_at,
			        ends_at = EXCLUDED.ends_at,
			        trigger_type = EXCLUDED.trigger_type,
			        trigger_cart_value = EXCLUDED.trigger_cart_value,
			        trigger_product_id = EXCLUDED.trigger_product_id,
			        reward_variant_id = EXCLUDED.reward_variant_id,
			        discount_amount = EXCLUDED.discount_amount`,
			row.ID, row.Status, row.StartsAt, row.EndsAt, row.TriggerType,
			row.TriggerCartValue, row.TriggerProductID, row.RewardVariantID, row.DiscountAmount)
		total++

		if batch.Len() >= batchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return total, errors.Wrap(err, "scan")
	}
	return total, flush()
}
