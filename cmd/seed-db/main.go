// Command seed-db loads shop sessions and funnels from a JSON seed file,
// optionally gzip-compressed, into the database.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/wonderwork/funnel-upsell/internal/domain/auth"
	"github.com/wonderwork/funnel-upsell/internal/domain/catalog"
	"github.com/wonderwork/funnel-upsell/internal/domain/funnel"
	"github.com/wonderwork/funnel-upsell/internal/storage/postgres"
)

type seedFile struct {
	Sessions []sessionJSON `json:"sessions"`
	Funnels  []funnelJSON  `json:"funnels"`
}

type sessionJSON struct {
	Shop        string `json:"shop"`
	AccessToken string `json:"accessToken"`
	Scope       string `json:"scope"`
}

type funnelJSON struct {
	Shop              string          `json:"shop"`
	Title             string          `json:"title"`
	TriggerProductID  string          `json:"triggerProductId"`
	OfferProductID    string          `json:"offerProductId"`
	OfferProductPrice decimal.Decimal `json:"offerProductPrice"`
	Discount          decimal.Decimal `json:"discount"`
}

func (f funnelJSON) funnel() *funnel.Funnel {
	return &funnel.Funnel{
		Shop:              f.Shop,
		Title:             strings.TrimSpace(f.Title),
		TriggerProductID:  catalog.ProductGID(f.TriggerProductID),
		OfferProductID:    catalog.ProductGID(f.OfferProductID),
		OfferProductPrice: f.OfferProductPrice,
		Discount:          f.Discount,
	}
}

func main() {
	var (
		databaseURL string
		seedPath    string
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedPath, "file", "db/seed/funnels.json", "path to the seed file, .json or .json.gz")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set -database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, seedPath); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, seedPath string) error {
	seed, err := loadSeed(seedPath)
	if err != nil {
		return errors.Wrap(err, "load seed file")
	}

	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	sessions := postgres.NewSessionRepository(pool)
	for _, s := range seed.Sessions {
		if err := sessions.Upsert(ctx, &auth.ShopSession{
			Shop:        s.Shop,
			AccessToken: s.AccessToken,
			Scope:       s.Scope,
		}); err != nil {
			return errors.Wrapf(err, "upsert session %s", s.Shop)
		}
		lg.Info("Upserted session", zap.String("shop", s.Shop))
	}

	return seedFunnels(ctx, lg, postgres.NewFunnelRepository(pool), seed.Funnels)
}

// seedFunnels creates each funnel, or updates the shop's funnel that already
// uses the same trigger product.
func seedFunnels(ctx context.Context, lg *zap.Logger, repo funnel.Repository, funnels []funnelJSON) error {
	for i, fj := range funnels {
		f := fj.funnel()
		if err := funnel.Validate(f); err != nil {
			return errors.Wrapf(err, "funnel %d", i)
		}

		existing, err := repo.FindByTriggerProduct(ctx, f.Shop, f.TriggerProductID)
		switch {
		case err == nil:
			f.ID = existing.ID
			if err := repo.Update(ctx, f); err != nil {
				return errors.Wrapf(err, "update funnel %d", f.ID)
			}
			lg.Info("Updated funnel", zap.Int64("id", f.ID), zap.String("shop", f.Shop))
		case errors.Is(err, funnel.ErrNotFound):
			if err := repo.Create(ctx, f); err != nil {
				return errors.Wrapf(err, "create funnel %q", f.Title)
			}
			lg.Info("Created funnel", zap.Int64("id", f.ID), zap.String("shop", f.Shop))
		default:
			return errors.Wrap(err, "find funnel")
		}
	}
	return nil
}

func loadSeed(path string) (*seedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()
	return decodeSeed(f, strings.HasSuffix(path, ".gz"))
}

func decodeSeed(r io.Reader, gzipped bool) (*seedFile, error) {
	if gzipped {
		gz, err := pgzip.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(err, "create gzip reader")
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	var seed seedFile
	if err := json.NewDecoder(r).Decode(&seed); err != nil {
		return nil, errors.Wrap(err, "decode")
	}
	return &seed, nil
}
