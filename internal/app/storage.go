package app

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/teakspice/storefront/internal/domain/address"
	"github.com/teakspice/storefront/internal/domain/auth"
	"github.com/teakspice/storefront/internal/domain/cart"
	"github.com/teakspice/storefront/internal/domain/coupon"
	"github.com/teakspice/storefront/internal/domain/order"
	"github.com/teakspice/storefront/internal/domain/product"
	"github.com/teakspice/storefront/internal/domain/settings"
	"github.com/teakspice/storefront/internal/storage/mongo"
	"github.com/teakspice/storefront/internal/storage/postgres"
)

// Stores is the repository set of one storage driver.
type Stores struct {
	Products  product.Repository
	Carts     cart.Repository
	Coupons   coupon.Repository
	Orders    order.Repository
	Addresses address.Repository
	Settings  settings.Repository
	Sessions  auth.Repository

	// Ping checks store connectivity for readiness.
	Ping func(ctx context.Context) error
	// Close releases connections.
	Close func()
}

// OpenStores connects to the configured driver and prepares its schema.
func OpenStores(ctx context.Context, cfg StorageConfig) (*Stores, error) {
	switch cfg.Driver {
	case DriverMongo:
		return openMongo(ctx, cfg)
	case DriverPostgres:
		return openPostgres(ctx, cfg)
	default:
		return nil, errors.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func openPostgres(ctx context.Context, cfg StorageConfig) (*Stores, error) {
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}
	return &Stores{
		Products:  postgres.NewProductRepository(pool),
		Carts:     postgres.NewCartRepository(pool),
		Coupons:   postgres.NewCouponRepository(pool),
		Orders:    postgres.NewOrderRepository(pool),
		Addresses: postgres.NewAddressRepository(pool),
		Settings:  postgres.NewSettingsRepository(pool),
		Sessions:  postgres.NewSessionRepository(pool),
		Ping:      pool.Ping,
		Close:     pool.Close,
	}, nil
}

func openMongo(ctx context.Context, cfg StorageConfig) (*Stores, error) {
	client, err := mongo.Connect(ctx, cfg.MongoURI)
	if err != nil {
		return nil, errors.Wrap(err, "connect mongo")
	}
	db := client.Database(cfg.MongoDatabase)
	if err := mongo.EnsureIndexes(ctx, db); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "ensure indexes")
	}
	return &Stores{
		Products:  mongo.NewProductRepository(db),
		Carts:     mongo.NewCartRepository(db),
		Coupons:   mongo.NewCouponRepository(db),
		Orders:    mongo.NewOrderRepository(db),
		Addresses: mongo.NewAddressRepository(db),
		Settings:  mongo.NewSettingsRepository(db),
		Sessions:  mongo.NewSessionRepository(db),
		Ping: func(ctx context.Context) error {
			return client.Ping(ctx, readpref.Primary())
		},
		Close: func() { _ = client.Disconnect(context.Background()) },
	}, nil
}

// quoteTimeoutSettings fills the realtime quote deadline from process
// configuration when the stored settings leave it unset.
type quoteTimeoutSettings struct {
	settings.Repository
	timeout time.Duration
}

func (s quoteTimeoutSettings) Get(ctx context.Context) (*settings.Settings, error) {
	st, err := s.Repository.Get(ctx)
	if err != nil {
		return nil, err
	}
	if st.Shipping.QuoteTimeout <= 0 {
		st.Shipping.QuoteTimeout = s.timeout
	}
	return st, nil
}
