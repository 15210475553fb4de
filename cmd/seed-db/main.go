// Command seed-db loads the catalog, customers, discounts, fiscal sequences
// and one operator key into the database.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/caja-pos/internal/domain/auth"
	"github.com/xenking/caja-pos/internal/storage/postgres"
)

const (
	upsertProductSQL = `INSERT INTO products (id, name, barcode, price, stock)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, barcode = EXCLUDED.barcode,
			price = EXCLUDED.price, stock = EXCLUDED.stock, active = TRUE`

	upsertCustomerSQL = `INSERT INTO customers (id, name, document_type, document, email, phone)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, document_type = EXCLUDED.document_type,
			document = EXCLUDED.document, email = EXCLUDED.email, phone = EXCLUDED.phone`

	upsertDiscountSQL = `INSERT INTO discounts (id, name, kind, value, min_purchase, max_discount)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, kind = EXCLUDED.kind, value = EXCLUDED.value,
			min_purchase = EXCLUDED.min_purchase, max_discount = EXCLUDED.max_discount, active = TRUE`

	// Re-seeding never rewinds last_number: issued NCFs must stay unique.
	upsertSequenceSQL = `INSERT INTO fiscal_sequences (document_type, prefix, range_from, range_to, alert_threshold)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (prefix, range_from) DO UPDATE SET range_to = EXCLUDED.range_to,
			alert_threshold = EXCLUDED.alert_threshold, active = TRUE`
)

type seedFile struct {
	Products []struct {
		ID      string          `json:"id"`
		Name    string          `json:"name"`
		Barcode string          `json:"barcode"`
		Price   decimal.Decimal `json:"price"`
		Stock   int             `json:"stock"`
	} `json:"products"`
	Customers []struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		DocumentType string `json:"document_type"`
		Document     string `json:"document"`
		Email        string `json:"email"`
		Phone        string `json:"phone"`
	} `json:"customers"`
	Discounts []struct {
		ID          string              `json:"id"`
		Name        string              `json:"name"`
		Kind        string              `json:"kind"`
		Value       decimal.Decimal     `json:"value"`
		MinPurchase decimal.NullDecimal `json:"min_purchase"`
		MaxDiscount decimal.NullDecimal `json:"max_discount"`
	} `json:"discounts"`
	Sequences []struct {
		DocumentType   string `json:"document_type"`
		Prefix         string `json:"prefix"`
		RangeFrom      int64  `json:"range_from"`
		RangeTo        int64  `json:"range_to"`
		AlertThreshold int64  `json:"alert_threshold"`
	} `json:"sequences"`
}

func main() {
	var (
		databaseURL  string
		seedPath     string
		apiKey       string
		operatorName string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedPath, "seed-file", "db/seed/store.json", "path to the store seed JSON file")
	flag.StringVar(&apiKey, "api-key", "", "operator API key to seed (or POS_SEED_API_KEY env)")
	flag.StringVar(&operatorName, "operator", "Caja 1", "name of the seeded operator")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or POS_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("POS_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or POS_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("POS_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, seedPath, operatorName, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, seedPath, operatorName, apiKey, pepper string) error {
	seed, err := readSeed(seedPath)
	if err != nil {
		return err
	}

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

	if err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		return seedStore(ctx, tx, seed)
	}); err != nil {
		return err
	}

	return seedOperator(ctx, pool, operatorName, apiKey, pepper)
}

func readSeed(path string) (*seedFile, error) {
	slog.Info("reading seed file", slog.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read seed file")
	}
	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, errors.Wrap(err, "parse seed JSON")
	}
	return &seed, nil
}

func seedStore(ctx context.Context, tx pgx.Tx, seed *seedFile) error {
	for _, p := range seed.Products {
		if _, err := tx.Exec(ctx, upsertProductSQL, p.ID, p.Name, p.Barcode, p.Price, p.Stock); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
	}
	slog.Info("upserted products", slog.Int("count", len(seed.Products)))

	for _, c := range seed.Customers {
		if _, err := tx.Exec(ctx, upsertCustomerSQL, c.ID, c.Name, c.DocumentType, c.Document, c.Email, c.Phone); err != nil {
			return errors.Wrapf(err, "upsert customer %s", c.ID)
		}
	}
	slog.Info("upserted customers", slog.Int("count", len(seed.Customers)))

	for _, d := range seed.Discounts {
		if _, err := tx.Exec(ctx, upsertDiscountSQL, d.ID, d.Name, d.Kind, d.Value, d.MinPurchase, d.MaxDiscount); err != nil {
			return errors.Wrapf(err, "upsert discount %s", d.ID)
		}
	}
	slog.Info("upserted discounts", slog.Int("count", len(seed.Discounts)))

	for _, s := range seed.Sequences {
		if _, err := tx.Exec(ctx, upsertSequenceSQL, s.DocumentType, s.Prefix, s.RangeFrom, s.RangeTo, s.AlertThreshold); err != nil {
			return errors.Wrapf(err, "upsert sequence %s", s.Prefix)
		}
		slog.Info("upserted fiscal sequence",
			slog.String("type", s.DocumentType),
			slog.String("prefix", s.Prefix),
			slog.Int64("range_to", s.RangeTo),
		)
	}
	return nil
}

func seedOperator(ctx context.Context, pool *pgxpool.Pool, name, apiKey, pepper string) error {
	id, err := postgres.NewOperatorRepository(pool).Upsert(ctx, auth.Operator{
		Name:    name,
		KeyHash: auth.HashKey([]byte(pepper), apiKey),
	})
	if err != nil {
		return errors.Wrap(err, "upsert operator")
	}
	slog.Info("upserted operator", slog.String("id", id), slog.String("name", name))
	return nil
}
