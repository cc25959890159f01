// Command api-server runs the storefront checkout API.
package main

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	appkg "github.com/teakspice/storefront/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := appkg.LoadConfig()
		if err != nil {
			return errors.Wrap(err, "load config")
		}
		lg.Debug("Loaded config", zap.String("driver", cfg.Storage.Driver), zap.Bool("carrier", cfg.Carrier.Email != ""))
		return appkg.Run(ctx, lg, m, cfg)
	})
}
