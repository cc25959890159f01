// Command seed-db loads a product catalog, coupons, store settings and a
// session token into the configured store.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teakspice/storefront/internal/app"
	"github.com/teakspice/storefront/internal/domain/auth"
	"github.com/teakspice/storefront/internal/domain/coupon"
	"github.com/teakspice/storefront/internal/domain/product"
	"github.com/teakspice/storefront/internal/handler"
)

// Config shares the STORE_ environment with the API server.
type Config struct {
	Storage       app.StorageConfig
	SessionPepper string `usage:"HMAC pepper for session token hashing" flag:"session-pepper"`
	Catalog       string `default:"db/seed/catalog.json" usage:"Path to the catalog JSON file"`
	Session       SessionConfig
}

// SessionConfig describes the session token to seed. Nothing is seeded
// when Token is empty.
type SessionConfig struct {
	Token  string   `usage:"Bearer token to seed (STORE_SESSION_TOKEN)"`
	UserID string   `default:"seed-user" usage:"User id bound to the token"`
	Email  string   `default:"seed@example.com" usage:"Email bound to the token"`
	Scopes []string `usage:"Scopes granted to the token, e.g. admin"`
}

type productWriter interface {
	Upsert(ctx context.Context, p *product.Product) error
}

type couponWriter interface {
	Upsert(ctx context.Context, c *coupon.Rule) error
}

func main() {
	lg, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STORE",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
		AllowUnknownFields: true,
		AllowUnknownEnvs:   true,
	})
	if err := loader.Load(); err != nil {
		lg.Fatal("Load config", zap.Error(err))
	}
	if cfg.Storage.DatabaseURL == "" {
		cfg.Storage.DatabaseURL = os.Getenv("DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, cfg); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, cfg Config) error {
	c, err := loadCatalog(cfg.Catalog)
	if err != nil {
		return err
	}

	lg.Info("Opening store", zap.String("driver", cfg.Storage.Driver))
	stores, err := app.OpenStores(ctx, cfg.Storage)
	if err != nil {
		return errors.Wrap(err, "open storage")
	}
	defer stores.Close()

	if err := seedProducts(ctx, lg, stores, c.Products); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedCoupons(ctx, lg, stores, c.Coupons); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	if c.Settings != nil {
		if err := stores.Settings.Save(ctx, c.Settings); err != nil {
			return errors.Wrap(err, "save settings")
		}
		lg.Info("Saved settings", zap.String("store", c.Settings.StoreName))
	}
	if cfg.Session.Token != "" {
		if err := seedSession(ctx, stores.Sessions, []byte(cfg.SessionPepper), cfg.Session); err != nil {
			return errors.Wrap(err, "seed session")
		}
		lg.Info("Seeded session",
			zap.String("user_id", cfg.Session.UserID),
			zap.Strings("scopes", cfg.Session.Scopes),
		)
	}
	return nil
}

func seedProducts(ctx context.Context, lg *zap.Logger, stores *app.Stores, items []productJSON) error {
	w, ok := stores.Products.(productWriter)
	if !ok {
		return errors.New("product store does not support upsert")
	}
	for _, it := range items {
		p, err := it.toProduct()
		if err != nil {
			return err
		}
		if err := w.Upsert(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
		lg.Debug("Upserted product", zap.String("id", p.ID), zap.Int("variants", len(p.Variants)))
	}
	lg.Info("Upserted products", zap.Int("count", len(items)))
	return nil
}

func seedCoupons(ctx context.Context, lg *zap.Logger, stores *app.Stores, items []couponJSON) error {
	w, ok := stores.Coupons.(couponWriter)
	if !ok {
		return errors.New("coupon store does not support upsert")
	}
	for _, it := range items {
		r, err := it.toRule()
		if err != nil {
			return err
		}
		if err := w.Upsert(ctx, r); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", r.Code)
		}
		lg.Debug("Upserted coupon", zap.String("code", r.Code))
	}
	lg.Info("Upserted coupons", zap.Int("count", len(items)))
	return nil
}

func seedSession(ctx context.Context, sessions auth.Repository, pepper []byte, cfg SessionConfig) error {
	if len(pepper) == 0 {
		return errors.New("session pepper is required to seed a token")
	}
	scopes := make([]string, 0, len(cfg.Scopes))
	for _, s := range cfg.Scopes {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, s)
		}
	}
	return sessions.Create(ctx, &auth.Session{
		ID:        uuid.NewString(),
		TokenHash: handler.HashToken(pepper, cfg.Token),
		Identity: auth.Identity{
			UserID: cfg.UserID,
			Email:  cfg.Email,
			Scopes: scopes,
		},
	})
}
