package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teakspice/storefront/internal/domain/settings"
)

func validConfig() Config {
	return Config{
		Addr:          "0.0.0.0:8080",
		Storage:       StorageConfig{Driver: DriverPostgres, DatabaseURL: "postgres://localhost/store"},
		SessionPepper: "pepper",
		Carrier:       CarrierConfig{TokenStore: TokenStoreMemory},
	}
}

func TestConfig_Validate(t *testing.T) {
	for _, tt := range []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "postgres without url",
			mutate:  func(c *Config) { c.Storage.DatabaseURL = "" },
			wantErr: "database URL is required",
		},
		{
			name: "mongo",
			mutate: func(c *Config) {
				c.Storage = StorageConfig{Driver: DriverMongo, MongoURI: "mongodb://localhost", MongoDatabase: "store"}
			},
		},
		{
			name:    "mongo without uri",
			mutate:  func(c *Config) { c.Storage.Driver = DriverMongo },
			wantErr: "mongo URI is required",
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Storage.Driver = "sqlite" },
			wantErr: "unknown storage driver",
		},
		{
			name:    "redis token store without redis",
			mutate:  func(c *Config) { c.Carrier.TokenStore = TokenStoreRedis },
			wantErr: "requires STORE_REDIS_ADDR",
		},
		{
			name: "redis token store",
			mutate: func(c *Config) {
				c.Carrier.TokenStore = TokenStoreRedis
				c.Redis.Addr = "localhost:6379"
			},
		},
		{
			name:    "unknown token store",
			mutate:  func(c *Config) { c.Carrier.TokenStore = "disk" },
			wantErr: "unknown carrier token store",
		},
		{
			name:    "missing pepper",
			mutate:  func(c *Config) { c.SessionPepper = "" },
			wantErr: "session pepper is required",
		},
		{
			name:    "razorpay without secret",
			mutate:  func(c *Config) { c.Payments.Razorpay.KeyID = "rzp_test" },
			wantErr: "razorpay key secret",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ApplyPlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("PORT", "9000")

	cfg := Config{Addr: "0.0.0.0:8080"}
	cfg.applyPlatformDefaults()
	assert.Equal(t, "postgres://platform/db", cfg.Storage.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)

	explicit := Config{Addr: "127.0.0.1:7000", Storage: StorageConfig{DatabaseURL: "postgres://explicit/db"}}
	explicit.applyPlatformDefaults()
	assert.Equal(t, "postgres://explicit/db", explicit.Storage.DatabaseURL)
	assert.Equal(t, "127.0.0.1:7000", explicit.Addr)
}

type stubSettings struct{ st settings.Settings }

func (s stubSettings) Get(context.Context) (*settings.Settings, error) {
	st := s.st
	return &st, nil
}

func (stubSettings) Save(context.Context, *settings.Settings) error { return nil }

func TestQuoteTimeoutSettings(t *testing.T) {
	ctx := context.Background()

	repo := quoteTimeoutSettings{Repository: stubSettings{st: settings.Default()}, timeout: 4 * time.Second}
	st, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4*time.Second, st.Shipping.QuoteTimeout)

	stored := settings.Default()
	stored.Shipping.QuoteTimeout = time.Second
	repo.Repository = stubSettings{st: stored}
	st, err = repo.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, time.Second, st.Shipping.QuoteTimeout)
}
