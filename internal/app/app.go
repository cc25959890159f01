package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/teakspice/storefront/internal/carrier"
	"github.com/teakspice/storefront/internal/domain/cart"
	"github.com/teakspice/storefront/internal/domain/coupon"
	"github.com/teakspice/storefront/internal/domain/order"
	"github.com/teakspice/storefront/internal/domain/payment"
	"github.com/teakspice/storefront/internal/domain/shipping"
	"github.com/teakspice/storefront/internal/handler"
	"github.com/teakspice/storefront/internal/notify"
	"github.com/teakspice/storefront/internal/payment/razorpay"
	"github.com/teakspice/storefront/pkg/health"
	"github.com/teakspice/storefront/pkg/httpmiddleware"
)

const serviceName = "storefront-api"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage.Driver),
	)

	stores, err := OpenStores(ctx, cfg.Storage)
	if err != nil {
		return errors.Wrap(err, "open storage")
	}
	defer stores.Close()

	healthSvc := health.New(lg.Named("health"))
	healthSvc.Add(health.Readiness, cfg.Storage.Driver, 5*time.Second, stores.Ping)
	healthSvc.Add(health.Liveness, "goroutines", time.Second, health.GoroutineCountCheck(10000))

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		healthSvc.Add(health.Readiness, "redis", 2*time.Second, health.PingCheck(health.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})))
	}

	settingsRepo := quoteTimeoutSettings{Repository: stores.Settings, timeout: cfg.Carrier.QuoteTimeout}
	telemetry := []order.Option{
		order.WithTracerProvider(m.TracerProvider()),
		order.WithMeterProvider(m.MeterProvider()),
	}

	// Carrier. Without credentials quotes degrade to the flat rate and
	// shipment routes answer CARRIER_DISABLED.
	var (
		rates       shipping.RateSource
		fulfillment *order.Fulfillment
	)
	if cfg.Carrier.Email != "" {
		opts := []carrier.Option{carrier.WithTelemetry(m.TracerProvider(), m.MeterProvider())}
		if cfg.Carrier.TokenStore == TokenStoreRedis {
			opts = append(opts, carrier.WithTokenStore(carrier.NewRedisTokenStore(rdb, "")))
		}
		client := carrier.New(carrier.Config{
			BaseURL:  cfg.Carrier.BaseURL,
			Email:    cfg.Carrier.Email,
			Password: cfg.Carrier.Password,
			Timeout:  cfg.Carrier.RequestTimeout,
		}, opts...)
		rates = client

		fulfillment, err = order.NewFulfillment(stores.Orders, client, settingsRepo, telemetry...)
		if err != nil {
			return errors.Wrap(err, "create fulfillment")
		}
	} else {
		lg.Warn("Carrier disabled: no credentials configured")
	}
	calculator := shipping.NewCalculator(rates)

	var gateways []payment.Gateway
	if rp := cfg.Payments.Razorpay; rp.KeyID != "" {
		gateways = append(gateways, razorpay.New(razorpay.Config{
			KeyID:     rp.KeyID,
			KeySecret: rp.KeySecret,
			BaseURL:   rp.BaseURL,
		}, razorpay.WithTelemetry(m.TracerProvider(), m.MeterProvider())))
	}
	if cfg.Payments.PhonePe.Enabled {
		lg.Warn("PhonePe is enabled but has no gateway; it stays unavailable")
	}

	var notifier order.Notifier = notify.Log{}
	if len(cfg.Notify.Brokers) > 0 {
		k := notify.NewKafka(notify.NewKafkaWriter(cfg.Notify.Brokers, cfg.Notify.Topic))
		defer func() {
			if err := k.Close(); err != nil {
				lg.Error("Close notifier", zap.Error(err))
			}
		}()
		notifier = k
	}

	// Domain services.
	cartService := cart.NewService(stores.Carts, stores.Products)
	couponValidator := coupon.NewRepoValidator(stores.Coupons)
	orderService, err := order.NewService(order.Deps{
		Carts:       cartService,
		Coupons:     couponValidator,
		Redeemer:    stores.Coupons,
		Shipping:    calculator,
		Stock:       stores.Products,
		Settings:    settingsRepo,
		Addresses:   stores.Addresses,
		Orders:      stores.Orders,
		Payments:    payment.NewRegistry(gateways...),
		Notifier:    notifier,
		Fulfillment: fulfillment,
	}, append(telemetry, order.WithCurrency(cfg.Payments.Currency))...)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	// HTTP handlers.
	deps := handler.Deps{
		Carts:    cartService,
		Coupons:  couponValidator,
		Orders:   orderService,
		History:  stores.Orders,
		Shipping: calculator,
		Settings: settingsRepo,
	}
	if fulfillment != nil {
		deps.Fulfillment = fulfillment
	}
	router := handler.New(deps).Router(handler.NewSecurity(stores.Sessions, []byte(cfg.SessionPepper)))
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	routeFinder := httpmiddleware.MakeRouteFinder(router)
	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", httpmiddleware.HeaderRequestID},
				ExposeHeaders:    []string{httpmiddleware.HeaderRequestID},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument(serviceName, routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		// Confirmations may still be publishing events or creating shipments.
		if err := orderService.Drain(shutdownCtx); err != nil {
			lg.Warn("Background order work did not finish", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
