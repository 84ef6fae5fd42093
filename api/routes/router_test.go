package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/petcare-pricing/internal/pricing"
	"github.com/angelmondragon/petcare-pricing/internal/promotions"
	"github.com/angelmondragon/petcare-pricing/internal/quotes"
	pkgauth "github.com/angelmondragon/petcare-pricing/pkg/auth"
	"github.com/angelmondragon/petcare-pricing/pkg/config"
	"github.com/angelmondragon/petcare-pricing/pkg/db/models"
	"github.com/angelmondragon/petcare-pricing/pkg/enums"
	"github.com/angelmondragon/petcare-pricing/pkg/logger"
	"github.com/angelmondragon/petcare-pricing/pkg/metrics"
	"github.com/angelmondragon/petcare-pricing/pkg/pagination"
	pkgredis "github.com/angelmondragon/petcare-pricing/pkg/redis"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubPrices struct{}

func (stubPrices) Resolve(_ context.Context, productID uuid.UUID, _ pricing.Context) (*models.PriceTable, error) {
	return &models.PriceTable{ID: uuid.New(), ProductID: productID}, nil
}

func (stubPrices) Candidates(context.Context, uuid.UUID, pricing.Context) ([]models.PriceTable, error) {
	return nil, nil
}

func (stubPrices) Create(_ context.Context, input pricing.CreateInput) (*models.PriceTable, error) {
	return &models.PriceTable{ID: uuid.New(), ProductID: input.ProductID}, nil
}

func (stubPrices) Update(_ context.Context, id uuid.UUID, _ pricing.UpdateInput) (*models.PriceTable, error) {
	return &models.PriceTable{ID: id}, nil
}

func (stubPrices) Delete(context.Context, uuid.UUID, pricing.Actor) error {
	return nil
}

func (stubPrices) Get(_ context.Context, id uuid.UUID) (*models.PriceTable, error) {
	return &models.PriceTable{ID: id}, nil
}

func (stubPrices) List(context.Context, pricing.ListFilter) ([]models.PriceTable, string, error) {
	return nil, "", nil
}

func (stubPrices) History(context.Context, uuid.UUID, pagination.Params) ([]models.PriceHistory, string, error) {
	return nil, "", nil
}

type stubQuotes struct{}

func (stubQuotes) Quote(context.Context, quotes.Request) (*quotes.Quote, error) {
	return &quotes.Quote{}, nil
}

type stubEvaluator struct{}

func (stubEvaluator) Preview(context.Context, promotions.Order) (*promotions.EvaluationResult, error) {
	return &promotions.EvaluationResult{}, nil
}

func (stubEvaluator) Evaluate(context.Context, promotions.Order) (*promotions.EvaluationResult, error) {
	return &promotions.EvaluationResult{}, nil
}

func (stubEvaluator) Release(_ context.Context, id uuid.UUID) (*models.PromotionRedemption, error) {
	return &models.PromotionRedemption{ID: id}, nil
}

type stubCatalog struct{}

func (stubCatalog) Create(context.Context, promotions.CreateInput) (*models.Promotion, error) {
	return &models.Promotion{ID: uuid.New()}, nil
}

func (stubCatalog) Update(_ context.Context, id uuid.UUID, _ promotions.UpdateInput) (*models.Promotion, error) {
	return &models.Promotion{ID: id}, nil
}

func (stubCatalog) Get(_ context.Context, id uuid.UUID) (*models.Promotion, error) {
	return &models.Promotion{ID: id}, nil
}

func (stubCatalog) List(context.Context, promotions.ListFilter) ([]models.Promotion, string, error) {
	return nil, "", nil
}

func (stubCatalog) Deactivate(context.Context, uuid.UUID, promotions.Actor) error {
	return nil
}

type memoryStore struct {
	values map[string]string
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := m.values[key]; ok {
		return v, nil
	}
	return "", goredis.Nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	switch v := value.(type) {
	case string:
		m.values[key] = v
	case []byte:
		m.values[key] = string(v)
	}
	return true, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	if v, ok := value.(string); ok {
		m.values[key] = v
	}
	return nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "idem:" + scope + ":" + id
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

type blockingLimiter struct{}

func (blockingLimiter) FixedWindowAllow(context.Context, string, int64, time.Duration) (pkgredis.Decision, error) {
	return pkgredis.Decision{Allowed: false, Count: 999, RetryAfter: 12 * time.Second}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App:          config.AppConfig{Env: "dev"},
		JWT:          config.JWTConfig{Secret: "router-secret", Issuer: "petcare-pricing", ExpirationMinutes: 5},
		FeatureFlags: config.FeatureFlagsConfig{Metrics: true},
		Storefront:   config.StorefrontConfig{RateLimitWindow: time.Minute, RateLimit: 100, IdempotencyTTL: 168 * time.Hour},
	}
}

func testDependencies() Dependencies {
	reg := prometheus.NewRegistry()
	return Dependencies{
		DB:          stubPinger{},
		Redis:       stubPinger{},
		Idempotency: &memoryStore{values: map[string]string{}},
		Gatherer:    reg,
		HTTPMetrics: metrics.NewHTTPMetrics(reg),
		Prices:      stubPrices{},
		Quotes:      stubQuotes{},
		Promotions:  stubCatalog{},
		Evaluator:   stubEvaluator{},
	}
}

func newTestRouter(cfg *config.Config, deps Dependencies) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	return NewRouter(cfg, logg, deps)
}

func buildToken(t *testing.T, cfg *config.Config, role enums.ActorRole) string {
	t.Helper()
	token, err := pkgauth.MintAccessToken(cfg.JWT, time.Now(), pkgauth.AccessTokenPayload{UserID: uuid.New(), Role: role})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestHealthRoutes(t *testing.T) {
	router := newTestRouter(testConfig(), testDependencies())

	if resp := serve(router, httptest.NewRequest(http.MethodGet, "/health/live", nil)); resp.Code != http.StatusOK {
		t.Fatalf("expected live 200 got %d", resp.Code)
	}
	if resp := serve(router, httptest.NewRequest(http.MethodGet, "/health/ready", nil)); resp.Code != http.StatusOK {
		t.Fatalf("expected ready 200 got %d", resp.Code)
	}
}

func TestMetricsEndpointExposesHTTPHistogram(t *testing.T) {
	router := newTestRouter(testConfig(), testDependencies())
	serve(router, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	resp := serve(router, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "http_request_duration_seconds") {
		t.Fatalf("expected http histogram in exposition")
	}
}

func TestStorefrontRejectsMissingJWT(t *testing.T) {
	router := newTestRouter(testConfig(), testDependencies())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/storefront/products/"+uuid.NewString()+"/price", nil)
	if resp := serve(router, req); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}
}

func TestStorefrontPriceForCustomer(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, testDependencies())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/storefront/products/"+uuid.NewString()+"/price?channel=web", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleCustomer))
	if resp := serve(router, req); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", resp.Code, resp.Body.String())
	}
}

func TestStorefrontRejectsAdminRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, testDependencies())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/storefront/quotes", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRolePricingManager))
	if resp := serve(router, req); resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}

func TestRedeemRequiresCheckoutRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, testDependencies())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/storefront/promotions/redeem", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleCustomer))
	req.Header.Set("Idempotency-Key", "k1")
	if resp := serve(router, req); resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer got %d", resp.Code)
	}
}

func TestRedeemRequiresIdempotencyKey(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, testDependencies())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/storefront/promotions/redeem", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleCheckout))
	resp := serve(router, req)
	if resp.Code != http.StatusBadRequest || !strings.Contains(resp.Body.String(), "Idempotency-Key") {
		t.Fatalf("expected missing key rejection got %d %s", resp.Code, resp.Body.String())
	}
}

func TestReleaseRequiresIdempotencyKey(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, testDependencies())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/storefront/redemptions/"+uuid.NewString()+"/release", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleCheckout))
	if resp := serve(router, req); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestStorefrontRateLimited(t *testing.T) {
	cfg := testConfig()
	deps := testDependencies()
	deps.RateLimiter = blockingLimiter{}
	router := newTestRouter(cfg, deps)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/storefront/products/"+uuid.NewString()+"/price", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleCustomer))
	resp := serve(router, req)
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", resp.Code)
	}
	if resp.Header().Get("Retry-After") != "12" {
		t.Fatalf("expected Retry-After from the limiter, got %q", resp.Header().Get("Retry-After"))
	}
}

func TestAdminRequiresPricingRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, testDependencies())

	customer := httptest.NewRequest(http.MethodGet, "/api/v1/admin/price-tables", nil)
	customer.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleCustomer))
	if resp := serve(router, customer); resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer got %d", resp.Code)
	}

	manager := httptest.NewRequest(http.MethodGet, "/api/v1/admin/price-tables", nil)
	manager.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRolePricingManager))
	if resp := serve(router, manager); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for pricing manager got %d", resp.Code)
	}

	admin := httptest.NewRequest(http.MethodGet, "/api/v1/admin/promotions", nil)
	admin.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleAdmin))
	if resp := serve(router, admin); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin got %d", resp.Code)
	}
}

func TestAdminCreateIsIdempotent(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, testDependencies())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/price-tables", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleAdmin))
	if resp := serve(router, req); resp.Code != http.StatusBadRequest || !strings.Contains(resp.Body.String(), "Idempotency-Key") {
		t.Fatalf("expected missing key rejection got %d %s", resp.Code, resp.Body.String())
	}
}
