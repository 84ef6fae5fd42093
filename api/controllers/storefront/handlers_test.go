package storefront

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/petcare-pricing/api/middleware"
	"github.com/angelmondragon/petcare-pricing/internal/pricing"
	"github.com/angelmondragon/petcare-pricing/internal/promotions"
	"github.com/angelmondragon/petcare-pricing/internal/quotes"
	"github.com/angelmondragon/petcare-pricing/pkg/db/models"
	"github.com/angelmondragon/petcare-pricing/pkg/enums"
	pkgerrors "github.com/angelmondragon/petcare-pricing/pkg/errors"
	"github.com/angelmondragon/petcare-pricing/pkg/types"
)

type stubResolver struct {
	table *models.PriceTable
	err   error
	got   pricing.Context
}

func (s *stubResolver) Resolve(_ context.Context, _ uuid.UUID, rc pricing.Context) (*models.PriceTable, error) {
	s.got = rc
	return s.table, s.err
}

type stubEvaluator struct {
	previewed  *promotions.Order
	evaluated  *promotions.Order
	released   uuid.UUID
	releaseErr error
}

func emptyResult() *promotions.EvaluationResult {
	return &promotions.EvaluationResult{
		AppliedPromotions: []promotions.AppliedPromotion{},
		Lines:             []promotions.LineResult{},
		Rejected:          []promotions.Rejection{},
	}
}

func (s *stubEvaluator) Preview(_ context.Context, order promotions.Order) (*promotions.EvaluationResult, error) {
	s.previewed = &order
	return emptyResult(), nil
}

func (s *stubEvaluator) Evaluate(_ context.Context, order promotions.Order) (*promotions.EvaluationResult, error) {
	s.evaluated = &order
	return emptyResult(), nil
}

func (s *stubEvaluator) Release(_ context.Context, id uuid.UUID) (*models.PromotionRedemption, error) {
	s.released = id
	if s.releaseErr != nil {
		return nil, s.releaseErr
	}
	return &models.PromotionRedemption{ID: id, Status: enums.RedemptionStatusReleased}, nil
}

type stubQuotes struct {
	got quotes.Request
}

func (s *stubQuotes) Quote(_ context.Context, req quotes.Request) (*quotes.Quote, error) {
	s.got = req
	return &quotes.Quote{Lines: []quotes.PricedLine{}, Unpriced: []uuid.UUID{}, Evaluation: emptyResult()}, nil
}

func asCustomer(req *http.Request, userID uuid.UUID, group string) *http.Request {
	ctx := middleware.WithUserID(req.Context(), userID.String())
	ctx = middleware.WithRole(ctx, string(enums.ActorRoleCustomer))
	if group != "" {
		ctx = middleware.WithCustomerGroup(ctx, group)
	}
	return req.WithContext(ctx)
}

func asCheckout(req *http.Request) *http.Request {
	ctx := middleware.WithUserID(req.Context(), uuid.NewString())
	ctx = middleware.WithRole(ctx, string(enums.ActorRoleCheckout))
	return req.WithContext(ctx)
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v body=%s", err, rec.Body.String())
	}
	if err := json.Unmarshal(envelope.Data, dest); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func TestProductPriceUsesTokenGroupForCustomers(t *testing.T) {
	productID := uuid.New()
	resolver := &stubResolver{table: &models.PriceTable{
		ID:           uuid.New(),
		ProductID:    productID,
		RegularPrice: decimal.RequireFromString("20.00"),
		SalePrice:    decimal.NewNullDecimal(decimal.RequireFromString("15.00")),
		VATRate:      decimal.NewFromInt(21),
	}}

	req := httptest.NewRequest(http.MethodGet, "/?channel=web&customer_group=wholesale&as_of=2026-03-01T00:00:00Z", nil)
	req = withURLParam(req, "productId", productID.String())
	req = asCustomer(req, uuid.New(), "vip")
	rec := httptest.NewRecorder()
	ProductPrice(resolver, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", rec.Code, rec.Body.String())
	}
	if got := resolver.got.CustomerGroup; got != types.ScopeOf("vip") {
		t.Fatalf("expected token group VIP, got %s", got)
	}
	if got := resolver.got.Channel; got != types.ScopeOf("WEB") {
		t.Fatalf("expected channel WEB, got %s", got)
	}
	if !resolver.got.AsOf.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected as_of %v", resolver.got.AsOf)
	}

	var body priceResponse
	decodeData(t, rec, &body)
	if !body.UnitPrice.Equal(decimal.RequireFromString("15")) || !body.OnSale {
		t.Fatalf("expected sale price applied, got %+v", body)
	}
}

func TestProductPriceNotFound(t *testing.T) {
	resolver := &stubResolver{err: pkgerrors.New(pkgerrors.CodeNotFound, "no applicable price")}
	req := withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "productId", uuid.NewString())
	req = asCheckout(req)
	rec := httptest.NewRecorder()
	ProductPrice(resolver, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

func TestProductPriceRejectsBadProductID(t *testing.T) {
	req := withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "productId", "not-a-uuid")
	rec := httptest.NewRecorder()
	ProductPrice(&stubResolver{}, nil).ServeHTTP(rec, asCheckout(req))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestQuoteCheckoutMustNameCustomer(t *testing.T) {
	svc := &stubQuotes{}
	body := `{"items":[{"product_id":"` + uuid.NewString() + `","quantity":2}]}`
	req := asCheckout(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	rec := httptest.NewRecorder()
	Quote(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}

	customerID := uuid.New()
	body = `{"items":[{"product_id":"` + uuid.NewString() + `","quantity":2}],"customer_id":"` + customerID.String() + `","customer_group":"vip","region":"es"}`
	req = asCheckout(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	rec = httptest.NewRecorder()
	Quote(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", rec.Code, rec.Body.String())
	}
	if svc.got.CustomerID != customerID || svc.got.CustomerGroup != types.ScopeOf("VIP") || svc.got.Region != types.ScopeOf("ES") {
		t.Fatalf("unexpected request %+v", svc.got)
	}
	if svc.got.Commit {
		t.Fatal("storefront quotes must not commit")
	}
}

func TestEvaluateUsesCustomerFromToken(t *testing.T) {
	svc := &stubEvaluator{}
	userID := uuid.New()
	body := `{"items":[{"product_id":"` + uuid.NewString() + `","quantity":1,"unit_price":"9.99"}],"customer_id":"` + uuid.NewString() + `","promo_code":" summer10 "}`
	req := asCustomer(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), userID, "")
	rec := httptest.NewRecorder()
	EvaluatePromotions(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", rec.Code, rec.Body.String())
	}
	if svc.previewed == nil || svc.previewed.CustomerID != userID {
		t.Fatalf("expected preview for token customer, got %+v", svc.previewed)
	}
	if svc.previewed.PromoCode != "summer10" {
		t.Fatalf("expected trimmed promo code, got %q", svc.previewed.PromoCode)
	}
	if !svc.previewed.Lines[0].UnitPrice.Equal(decimal.RequireFromString("9.99")) {
		t.Fatalf("unexpected unit price %s", svc.previewed.Lines[0].UnitPrice)
	}
	if svc.evaluated != nil {
		t.Fatal("preview must not commit")
	}
}

func TestRedeemRequiresOrderRef(t *testing.T) {
	svc := &stubEvaluator{}
	line := `{"product_id":"` + uuid.NewString() + `","quantity":1,"unit_price":10}`
	req := asCustomer(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"items":[`+line+`]}`)), uuid.New(), "")
	rec := httptest.NewRecorder()
	RedeemPromotions(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}

	req = asCustomer(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"items":[`+line+`],"order_ref":" ORD-1 "}`)), uuid.New(), "")
	rec = httptest.NewRecorder()
	RedeemPromotions(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", rec.Code, rec.Body.String())
	}
	if svc.evaluated == nil || svc.evaluated.OrderRef != "ORD-1" {
		t.Fatalf("expected committed order ORD-1, got %+v", svc.evaluated)
	}
}

func TestStorefrontRejectsAdminRole(t *testing.T) {
	body := `{"items":[{"product_id":"` + uuid.NewString() + `","quantity":1,"unit_price":1}]}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	ctx := middleware.WithUserID(req.Context(), uuid.NewString())
	ctx = middleware.WithRole(ctx, string(enums.ActorRoleAdmin))
	rec := httptest.NewRecorder()
	EvaluatePromotions(&stubEvaluator{}, nil).ServeHTTP(rec, req.WithContext(ctx))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rec.Code)
	}
}

func TestReleaseRedemption(t *testing.T) {
	svc := &stubEvaluator{}
	id := uuid.New()
	req := withURLParam(httptest.NewRequest(http.MethodPost, "/", nil), "redemptionId", id.String())
	rec := httptest.NewRecorder()
	ReleaseRedemption(svc, nil).ServeHTTP(rec, asCheckout(req))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.released != id {
		t.Fatalf("expected release of %s got %s", id, svc.released)
	}

	svc.releaseErr = pkgerrors.New(pkgerrors.CodeStateConflict, "redemption already released")
	rec = httptest.NewRecorder()
	ReleaseRedemption(svc, nil).ServeHTTP(rec, asCheckout(withURLParam(httptest.NewRequest(http.MethodPost, "/", nil), "redemptionId", id.String())))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", rec.Code)
	}
}
