package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/petcare-pricing/api/controllers"
	"github.com/angelmondragon/petcare-pricing/api/controllers/pricetables"
	promotioncontrollers "github.com/angelmondragon/petcare-pricing/api/controllers/promotions"
	"github.com/angelmondragon/petcare-pricing/api/controllers/storefront"
	"github.com/angelmondragon/petcare-pricing/api/middleware"
	"github.com/angelmondragon/petcare-pricing/internal/pricing"
	"github.com/angelmondragon/petcare-pricing/internal/quotes"
	"github.com/angelmondragon/petcare-pricing/pkg/config"
	"github.com/angelmondragon/petcare-pricing/pkg/enums"
	"github.com/angelmondragon/petcare-pricing/pkg/logger"
	"github.com/angelmondragon/petcare-pricing/pkg/metrics"
	pkgredis "github.com/angelmondragon/petcare-pricing/pkg/redis"
)

// Dependencies carries everything the HTTP surface is wired to. Nil redis
// collaborators disable idempotency and rate limiting.
type Dependencies struct {
	DB          controllers.Pinger
	Redis       controllers.Pinger
	Idempotency pkgredis.IdempotencyStore
	RateLimiter pkgredis.RateLimiter
	Gatherer    prometheus.Gatherer
	HTTPMetrics *metrics.HTTPMetrics

	Prices     pricing.Service
	Quotes     quotes.Service
	Promotions promotioncontrollers.Catalog
	Evaluator  storefront.PromotionEvaluator
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(deps.HTTPMetrics),
	)

	storefrontPolicy := middleware.NewRateLimitPolicy(
		"storefront",
		cfg.Storefront.RateLimitWindow,
		cfg.Storefront.RateLimit,
	)
	idempotent := middleware.Idempotency(deps.Idempotency, cfg.Storefront.IdempotencyTTL, logg)

	readiness := map[string]controllers.Pinger{}
	if deps.DB != nil {
		readiness["db"] = deps.DB
	}
	if deps.Redis != nil {
		readiness["redis"] = deps.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})

	if cfg.FeatureFlags.Metrics && deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/storefront", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRoles(logg, enums.ActorRoleCustomer, enums.ActorRoleCheckout))
		r.Use(middleware.StorefrontRateLimit(storefrontPolicy, deps.RateLimiter, logg))

		r.Get("/products/{productId}/price", storefront.ProductPrice(deps.Prices, logg))
		r.Post("/quotes", storefront.Quote(deps.Quotes, logg))
		r.Post("/promotions/evaluate", storefront.EvaluatePromotions(deps.Evaluator, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRoles(logg, enums.ActorRoleCheckout))
			r.With(idempotent).Post("/promotions/redeem", storefront.RedeemPromotions(deps.Evaluator, logg))
			r.With(idempotent).Post("/redemptions/{redemptionId}/release", storefront.ReleaseRedemption(deps.Evaluator, logg))
		})
	})

	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRoles(logg, enums.ActorRoleAdmin, enums.ActorRolePricingManager))

		r.With(idempotent).Post("/price-tables", pricetables.Create(deps.Prices, logg))
		r.Get("/price-tables", pricetables.List(deps.Prices, logg))
		r.Get("/price-tables/{priceTableId}", pricetables.Get(deps.Prices, logg))
		r.Patch("/price-tables/{priceTableId}", pricetables.Update(deps.Prices, logg))
		r.Delete("/price-tables/{priceTableId}", pricetables.Delete(deps.Prices, logg))
		r.Get("/price-tables/{priceTableId}/history", pricetables.History(deps.Prices, logg))
		r.Get("/products/{productId}/price-candidates", pricetables.Candidates(deps.Prices, logg))

		r.With(idempotent).Post("/promotions", promotioncontrollers.Create(deps.Promotions, logg))
		r.Get("/promotions", promotioncontrollers.List(deps.Promotions, logg))
		r.Get("/promotions/{promotionId}", promotioncontrollers.Get(deps.Promotions, logg))
		r.Patch("/promotions/{promotionId}", promotioncontrollers.Update(deps.Promotions, logg))
		r.Delete("/promotions/{promotionId}", promotioncontrollers.Deactivate(deps.Promotions, logg))
	})

	return r
}
