package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/petcare-pricing/api/routes"
	"github.com/angelmondragon/petcare-pricing/internal/pricing"
	"github.com/angelmondragon/petcare-pricing/internal/promotions"
	"github.com/angelmondragon/petcare-pricing/internal/quotes"
	"github.com/angelmondragon/petcare-pricing/pkg/config"
	"github.com/angelmondragon/petcare-pricing/pkg/db"
	"github.com/angelmondragon/petcare-pricing/pkg/logger"
	"github.com/angelmondragon/petcare-pricing/pkg/metrics"
	"github.com/angelmondragon/petcare-pricing/pkg/migrate"
	"github.com/angelmondragon/petcare-pricing/pkg/outbox"
	"github.com/angelmondragon/petcare-pricing/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if path, found, err := config.LoadDotenv(); err != nil {
		logg.Error(context.Background(), "failed to read env file "+path, err)
		os.Exit(1)
	} else if !found {
		logg.Debug(context.Background(), "no env file, relying on process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := multierr.Combine(redisClient.Close(), dbClient.Close()); err != nil {
			logg.Error(context.Background(), "error closing connections", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	pricingMetrics := metrics.NewPricingMetrics(reg)

	deps, err := wire(cfg, logg, dbClient, pricingMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}
	deps.DB = dbClient
	deps.Redis = redisClient
	deps.Idempotency = redisClient
	deps.RateLimiter = redisClient
	deps.Gatherer = reg
	deps.HTTPMetrics = metrics.NewHTTPMetrics(reg)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logg.Info(ctx, "draining api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server stopped")
}

// wire builds the engine services on top of one database client. Every
// write path shares the same outbox emitter.
func wire(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, m *metrics.PricingMetrics) (routes.Dependencies, error) {
	events := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg, outbox.WithProducer(cfg.Service.Kind))

	priceRepo := pricing.NewRepository(dbClient.DB())
	resolver := pricing.NewResolver(priceRepo, m, logg)
	mutator, err := pricing.NewMutator(dbClient, priceRepo, events, cfg.Pricing, logg)
	if err != nil {
		return routes.Dependencies{}, err
	}
	prices, err := pricing.NewService(priceRepo, resolver, mutator)
	if err != nil {
		return routes.Dependencies{}, err
	}

	promoRepo := promotions.NewRepository(dbClient.DB())
	catalog, err := promotions.NewCatalog(dbClient, promoRepo, events, logg)
	if err != nil {
		return routes.Dependencies{}, err
	}
	guard := promotions.NewStockGuard(dbClient.DB(), m)
	evaluator, err := promotions.NewEvaluator(dbClient, promoRepo, guard, events, cfg.Pricing, m, logg)
	if err != nil {
		return routes.Dependencies{}, err
	}

	quoteService, err := quotes.NewService(prices, evaluator, logg)
	if err != nil {
		return routes.Dependencies{}, err
	}

	return routes.Dependencies{
		Prices:     prices,
		Quotes:     quoteService,
		Promotions: catalog,
		Evaluator:  evaluator,
	}, nil
}
