package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"slices"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/storage/postgres"
)

const batchSize = 1000

func main() {
	var (
		dataDir     string
		databaseURL string
		dryRun      bool
	)
	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.gz coupon dumps")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.BoolVar(&dryRun, "dry-run", false, "parse and deduplicate without writing")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}

	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		if databaseURL == "" && !dryRun {
			return errors.New("database URL is required: set --database-url or DATABASE_URL")
		}
		return run(ctx, lg, dataDir, databaseURL, dryRun)
	})
}

func run(ctx context.Context, lg *zap.Logger, dataDir, databaseURL string, dryRun bool) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.gz"))
	if err != nil {
		return errors.Wrap(err, "list dumps")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.gz files in %s", dataDir)
	}
	slices.Sort(files)

	res, err := Ingest(ctx, lg, files)
	if err != nil {
		return err
	}
	lg.Info("Coupons parsed",
		zap.Int("files", len(files)),
		zap.Int("unique", len(res.Coupons)),
		zap.Int("duplicates", res.Duplicates),
		zap.Int("invalid", res.Invalid),
	)
	if dryRun || len(res.Coupons) == 0 {
		return nil
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	repo := postgres.NewSettingsRepository(pool)
	for batch := range slices.Chunk(res.Coupons, batchSize) {
		if err := repo.UpsertCoupons(ctx, batch); err != nil {
			return errors.Wrap(err, "write coupons")
		}
	}
	lg.Info("Coupons written", zap.Int("count", len(res.Coupons)))
	return nil
}
