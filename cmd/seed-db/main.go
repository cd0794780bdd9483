package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/auth"
	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/domain/pricing"
	"github.com/xenking/kart-checkout/internal/domain/product"
	"github.com/xenking/kart-checkout/internal/storage/postgres"
)

type productJSON struct {
	ID        string              `json:"id"`
	Title     string              `json:"title"`
	Price     decimal.Decimal     `json:"price"`
	SalePrice decimal.NullDecimal `json:"sale_price"`
	Stock     int                 `json:"stock"`
	Category  string              `json:"category"`
}

type options struct {
	databaseURL  string
	productsFile string
	apiKey       string
	apiKeyPepper string
}

func main() {
	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&opts.apiKey, "api-key", "", "API key to seed (or KART_SEED_API_KEY env)")
	flag.StringVar(&opts.apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or KART_API_KEY_PEPPER env)")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.apiKey == "" {
		opts.apiKey = os.Getenv("KART_SEED_API_KEY")
	}
	if opts.apiKeyPepper == "" {
		opts.apiKeyPepper = os.Getenv("KART_API_KEY_PEPPER")
	}

	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		if opts.databaseURL == "" {
			return errors.New("database URL is required: set --database-url or DATABASE_URL")
		}
		if opts.apiKey == "" {
			return errors.New("API key is required: set --api-key or KART_SEED_API_KEY")
		}
		return run(ctx, lg, opts)
	})
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, lg, postgres.NewProductRepository(pool), opts.productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedSettings(ctx, lg, postgres.NewSettingsRepository(pool)); err != nil {
		return errors.Wrap(err, "seed settings")
	}
	if err := seedAPIKey(ctx, lg, postgres.NewAPIKeyRepository(pool), opts.apiKey, opts.apiKeyPepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	lg.Info("Seed completed")
	return nil
}

func seedProducts(ctx context.Context, lg *zap.Logger, repo *postgres.ProductRepository, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}
	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	for _, p := range products {
		if err := repo.Upsert(ctx, product.Product{
			ID:        p.ID,
			Title:     p.Title,
			Price:     p.Price,
			SalePrice: p.SalePrice,
			Stock:     p.Stock,
			Category:  p.Category,
		}); err != nil {
			return err
		}
	}
	catalog, err := repo.List(ctx)
	if err != nil {
		return err
	}
	lg.Info("Upserted products",
		zap.Int("count", len(products)),
		zap.Int("catalog_size", len(catalog)),
		zap.String("path", path),
	)
	return nil
}

func seedSettings(ctx context.Context, lg *zap.Logger, repo *postgres.SettingsRepository) error {
	coupons := []coupon.Coupon{
		{
			Code:        "HAPPYHOURS",
			Type:        coupon.DiscountPercentage,
			Amount:      decimal.NewFromInt(18),
			Description: "Happy Hours: 18% off entire order",
		},
		{
			Code:        "BIGSPENDER",
			Type:        coupon.DiscountFixed,
			Amount:      decimal.NewFromInt(10),
			MinAmount:   decimal.NewFromInt(50),
			Description: "10 off orders of 50 or more",
		},
	}
	if err := repo.UpsertCoupons(ctx, coupons); err != nil {
		return err
	}

	rules := []pricing.TaxRule{
		{Min: decimal.Zero, Max: decimal.NewNullDecimal(decimal.RequireFromString("99.99")), Rate: decimal.RequireFromString("0.05")},
		{Min: decimal.NewFromInt(100), Rate: decimal.RequireFromString("0.08")},
	}
	if err := repo.ReplaceTaxRules(ctx, rules); err != nil {
		return err
	}

	methods := []pricing.ShippingMethod{
		{Name: "Standard", Cost: decimal.RequireFromString("4.99")},
		{Name: "Express", Cost: decimal.RequireFromString("12.99")},
		{Name: pricing.FreeShippingName, MinFree: decimal.NewNullDecimal(decimal.NewFromInt(75))},
	}
	if err := repo.UpsertShippingMethods(ctx, methods); err != nil {
		return err
	}

	lg.Info("Upserted checkout settings",
		zap.Int("coupons", len(coupons)),
		zap.Int("tax_rules", len(rules)),
		zap.Int("shipping_methods", len(methods)),
	)
	return nil
}

func seedAPIKey(ctx context.Context, lg *zap.Logger, repo *postgres.APIKeyRepository, apiKey, pepper string) error {
	info := auth.APIKeyInfo{
		ID:      "default",
		KeyHash: auth.HashKey(pepper, apiKey),
		Name:    "Default storefront key",
		Scopes:  []string{auth.ScopeSubmitOrder},
	}
	if err := repo.Upsert(ctx, info); err != nil {
		return err
	}
	lg.Info("Upserted API key", zap.String("id", info.ID), zap.String("name", info.Name))
	return nil
}
