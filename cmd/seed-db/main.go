// Command seed-db loads a demo catalog, shipping settings, starter coupons,
// and a demo session into the database for local development.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/aurelia-jewels/checkout-api/internal/domain/coupon"
	"github.com/aurelia-jewels/checkout-api/internal/domain/identity"
	"github.com/aurelia-jewels/checkout-api/internal/domain/pricing"
	"github.com/aurelia-jewels/checkout-api/internal/domain/product"
	"github.com/aurelia-jewels/checkout-api/internal/postgres"
)

type productJSON struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	ImageURL    string          `json:"image_url"`
}

func main() {
	var (
		databaseURL   string
		productsFile  string
		sessionToken  string
		sessionPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&sessionToken, "session-token", "", "demo session token to seed (or AURELIA_SEED_SESSION_TOKEN env)")
	flag.StringVar(&sessionPepper, "session-pepper", "", "HMAC pepper for session token hashing (or AURELIA_SESSION_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if sessionToken == "" {
		sessionToken = os.Getenv("AURELIA_SEED_SESSION_TOKEN")
	}
	if sessionPepper == "" {
		sessionPepper = os.Getenv("AURELIA_SESSION_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, sessionToken, sessionPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, sessionToken, pepper string) error {
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

	if err := seedProducts(ctx, postgres.NewProductRepository(pool), productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedShippingSettings(ctx, postgres.NewSettingsRepository(pool)); err != nil {
		return errors.Wrap(err, "seed shipping settings")
	}
	if err := seedCoupons(ctx, postgres.NewCouponRepository(pool)); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	if sessionToken != "" {
		if err := seedSession(ctx, postgres.NewSessionRepository(pool), sessionToken, pepper); err != nil {
			return errors.Wrap(err, "seed session")
		}
	}

	return nil
}

func seedProducts(ctx context.Context, repo *postgres.ProductRepository, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if err := repo.Upsert(ctx, product.Product{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Category:    p.Category,
			Price:       p.Price,
			Stock:       p.Stock,
			ImageURL:    p.ImageURL,
		}); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

func seedShippingSettings(ctx context.Context, repo *postgres.SettingsRepository) error {
	slog.Info("seeding shipping settings")

	return repo.Put(ctx, pricing.ShippingSettings{
		DefaultFee:            decimal.NewFromInt(50),
		FreeShippingThreshold: decimal.NewFromInt(1000),
	})
}

func seedCoupons(ctx context.Context, repo *postgres.CouponRepository) error {
	slog.Info("seeding starter coupons")

	coupons := []coupon.Coupon{
		{
			Code:          "WELCOME10",
			DiscountType:  pricing.DiscountPercentage,
			DiscountValue: decimal.NewFromInt(10),
			ExpiryDate:    time.Now().AddDate(1, 0, 0),
			MinPurchase:   decimal.NewFromInt(500),
			IsActive:      true,
		},
		{
			Code:          "FESTIVE250",
			DiscountType:  pricing.DiscountFixed,
			DiscountValue: decimal.NewFromInt(250),
			ExpiryDate:    time.Now().AddDate(0, 3, 0),
			MinPurchase:   decimal.NewFromInt(2000),
			IsActive:      true,
		},
	}

	for _, c := range coupons {
		if err := repo.Upsert(ctx, c); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.Code)
		}

		slog.Info("upserted coupon", slog.String("code", c.Code))
	}

	return nil
}

func seedSession(ctx context.Context, repo *postgres.SessionRepository, token, pepper string) error {
	slog.Info("seeding demo session")

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(token))

	return repo.Put(ctx, identity.Session{
		TokenHash: hex.EncodeToString(mac.Sum(nil)),
		User: identity.User{
			ID:    "demo-user",
			Name:  "Demo Customer",
			Email: "demo@example.com",
		},
		ExpiresAt: time.Now().AddDate(0, 1, 0),
	})
}
