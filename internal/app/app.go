// Package app wires the point-of-sale server together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/caja-pos/internal/domain/auth"
	"github.com/xenking/caja-pos/internal/domain/discount"
	"github.com/xenking/caja-pos/internal/domain/fiscal"
	"github.com/xenking/caja-pos/internal/domain/register"
	"github.com/xenking/caja-pos/internal/domain/sale"
	"github.com/xenking/caja-pos/internal/handler"
	"github.com/xenking/caja-pos/internal/lock"
	"github.com/xenking/caja-pos/internal/storage/postgres"
	"github.com/xenking/caja-pos/internal/terminal"
	"github.com/xenking/caja-pos/pkg/health"
	"github.com/xenking/caja-pos/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	taxRate, err := cfg.POS.Rate()
	if err != nil {
		return err
	}

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.Add(health.Readiness, "postgres", health.PingCheck("postgres", pool), health.WithTimeout(5*time.Second))
	healthSvc.Add(health.Liveness, "goroutines", health.GoroutineCountCheck(10000))

	// Redis is optional: without it submissions are only serialized within
	// this process.
	var (
		saleLocker  sale.Locker
		registerOpt []register.Option
	)
	if cfg.RedisURL != "" {
		rdb, err := newRedis(ctx, cfg.RedisURL, m)
		if err != nil {
			return err
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				lg.Error("Close redis", zap.Error(err))
			}
		}()
		healthSvc.Add(health.Readiness, "redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})

		locker := lock.New(rdb)
		saleLocker = locker
		registerOpt = append(registerOpt, register.WithLocker(locker))
		lg.Info("Distributed submit lock enabled")
	}

	healthSvc.Start(ctx, 10*time.Second)

	// Repositories.
	products := postgres.NewProductRepository(pool)
	customers := postgres.NewCustomerRepository(pool)
	discounts := postgres.NewDiscountRepository(pool)
	sequences := postgres.NewFiscalRepository(pool)
	invoices := postgres.NewInvoiceRepository(pool)
	registers := postgres.NewRegisterRepository(pool)
	operators := postgres.NewOperatorRepository(pool)
	gateway := postgres.NewSaleGateway(pool)

	// Domain services.
	metrics, err := sale.NewMetrics(m.MeterProvider().Meter("caja-pos/sale"))
	if err != nil {
		return errors.Wrap(err, "sale metrics")
	}
	registerSvc := register.NewService(registers, invoices, registerOpt...)
	saleSvc := sale.NewService(gateway, invoices, registerSvc, sale.Config{
		Timeout: cfg.POS.SubmitTimeout,
		Locker:  saleLocker,
		LockTTL: cfg.POS.LockTTL,
		Metrics: metrics,
		Tracer:  m.TracerProvider().Tracer("caja-pos/sale"),
	})
	fiscalSel := fiscal.NewSelector(sequences)
	terminals := terminal.NewManager(terminal.Deps{
		Products:  products,
		Customers: customers,
		Discounts: discount.NewSelector(discounts),
		Fiscal:    fiscalSel,
		Sales:     saleSvc,
		Registers: registerSvc,
		TaxRate:   taxRate,
	})

	// HTTP handlers.
	h := handler.New(handler.Config{
		Auth:        auth.NewAuthenticator(operators, []byte(cfg.APIKeyPepper)),
		Terminals:   terminals,
		Products:    products,
		Invoices:    saleSvc,
		Registers:   registerSvc,
		Sequences:   fiscalSel,
		SearchLimit: cfg.POS.SearchLimit,
		Live:        healthSvc.LiveEndpoint,
		Ready:       healthSvc.ReadyEndpoint,
	})

	limiter := httpmiddleware.NewLimiter(cfg.RateLimit.Max, cfg.RateLimit.Window)
	go limiter.Run(ctx)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// Leaves room for a submit that runs to its own timeout.
		WriteTimeout:   cfg.POS.SubmitTimeout*2 + 5*time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		Handler: httpmiddleware.Wrap(h.Routes(),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.Recovery(),
			httpmiddleware.RequestID(),
			cors.Handler(cors.Options{
				AllowedOrigins:   cfg.CORS.Origins,
				AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
				AllowedHeaders:   []string{"Accept", "Content-Type", handler.APIKeyHeader, httpmiddleware.RequestIDHeader},
				ExposedHeaders:   []string{httpmiddleware.RequestIDHeader, "Retry-After"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWith(limiter, httpmiddleware.OperatorOrIP),
			httpmiddleware.Instrument("caja-pos", m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.LogRequests(),
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
		healthSvc.Stop()
		close(shutdownDone)
	}()

	healthSvc.SetReady(true)
	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

func newRedis(ctx context.Context, url string, m *app.Telemetry) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	rdb := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(rdb, redisotel.WithTracerProvider(m.TracerProvider())); err != nil {
		return nil, errors.Wrap(err, "instrument redis tracing")
	}
	if err := redisotel.InstrumentMetrics(rdb, redisotel.WithMeterProvider(m.MeterProvider())); err != nil {
		return nil, errors.Wrap(err, "instrument redis metrics")
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return rdb, nil
}
