package storefront

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/petcare-pricing/api/controllers/actorcontext"
	"github.com/angelmondragon/petcare-pricing/api/middleware"
	"github.com/angelmondragon/petcare-pricing/api/responses"
	"github.com/angelmondragon/petcare-pricing/api/validators"
	"github.com/angelmondragon/petcare-pricing/internal/pricing"
	"github.com/angelmondragon/petcare-pricing/internal/promotions"
	"github.com/angelmondragon/petcare-pricing/internal/quotes"
	"github.com/angelmondragon/petcare-pricing/pkg/db/models"
	"github.com/angelmondragon/petcare-pricing/pkg/enums"
	pkgerrors "github.com/angelmondragon/petcare-pricing/pkg/errors"
	"github.com/angelmondragon/petcare-pricing/pkg/logger"
	"github.com/angelmondragon/petcare-pricing/pkg/types"
)

// PriceResolver is the read side of pricing used by the storefront.
type PriceResolver interface {
	Resolve(ctx context.Context, productID uuid.UUID, rc pricing.Context) (*models.PriceTable, error)
}

// PromotionEvaluator previews, commits and releases promotions.
type PromotionEvaluator interface {
	Preview(ctx context.Context, order promotions.Order) (*promotions.EvaluationResult, error)
	Evaluate(ctx context.Context, order promotions.Order) (*promotions.EvaluationResult, error)
	Release(ctx context.Context, redemptionID uuid.UUID) (*models.PromotionRedemption, error)
}

type priceResponse struct {
	PriceTableID  uuid.UUID        `json:"price_table_id"`
	ProductID     uuid.UUID        `json:"product_id"`
	UnitPrice     decimal.Decimal  `json:"unit_price"`
	RegularPrice  decimal.Decimal  `json:"regular_price"`
	SalePrice     *decimal.Decimal `json:"sale_price,omitempty"`
	OnSale        bool             `json:"on_sale"`
	VATRate       decimal.Decimal  `json:"vat_rate"`
	VATAmount     decimal.Decimal  `json:"vat_amount"`
	Channel       types.Scope      `json:"channel"`
	Region        types.Scope      `json:"region"`
	CustomerGroup types.Scope      `json:"customer_group"`
	ValidUntil    *time.Time       `json:"valid_until,omitempty"`
}

func priceResponseFromModel(m *models.PriceTable) priceResponse {
	unit := m.EffectivePrice()
	resp := priceResponse{
		PriceTableID:  m.ID,
		ProductID:     m.ProductID,
		UnitPrice:     unit,
		RegularPrice:  m.RegularPrice,
		OnSale:        !unit.Equal(m.RegularPrice),
		VATRate:       m.VATRate,
		VATAmount:     m.VATAmount,
		Channel:       m.Channel,
		Region:        m.Region,
		CustomerGroup: m.CustomerGroup,
		ValidUntil:    m.EndDate,
	}
	if m.SalePrice.Valid {
		sale := m.SalePrice.Decimal
		resp.SalePrice = &sale
	}
	return resp
}

// ProductPrice resolves the winning price for a product in the caller's context.
func ProductPrice(svc PriceResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "pricing service unavailable"))
			return
		}

		productID, err := validators.ParseURLUUID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		asOf, err := validators.ParseQueryTime(r, "as_of")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		query := r.URL.Query()
		group := types.ScopeOf(query.Get("customer_group"))
		if middleware.RoleFromContext(r.Context()) == string(enums.ActorRoleCustomer) {
			group = types.ScopeOf(middleware.CustomerGroupFromContext(r.Context()))
		}
		rc := pricing.Context{
			Channel:       types.ScopeOf(query.Get("channel")),
			Region:        types.ScopeOf(query.Get("region")),
			CustomerGroup: group,
			AsOf:          asOf,
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithProductID(ctx, productID.String())
		}
		table, err := svc.Resolve(ctx, productID, rc)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, priceResponseFromModel(table))
	}
}

// Quote prices a cart and previews promotions against it.
func Quote(svc quotes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "quote service unavailable"))
			return
		}

		var payload quoteRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		customer, err := actorcontext.ResolveCustomer(r, payload.CustomerID, payload.CustomerGroup)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		quote, err := svc.Quote(r.Context(), payload.toRequest(customer))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, quote)
	}
}

// EvaluatePromotions previews the promotions an order qualifies for without
// consuming any limits.
func EvaluatePromotions(svc PromotionEvaluator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "promotion service unavailable"))
			return
		}

		var payload evaluateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		customer, err := actorcontext.ResolveCustomer(r, payload.CustomerID, payload.CustomerGroup)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Preview(r.Context(), payload.toOrder(customer))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// RedeemPromotions commits the promotions of a placed order.
func RedeemPromotions(svc PromotionEvaluator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "promotion service unavailable"))
			return
		}

		var payload redeemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		customer, err := actorcontext.ResolveCustomer(r, payload.CustomerID, payload.CustomerGroup)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order := payload.toOrder(customer)

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithField(ctx, "order_ref", order.OrderRef)
		}
		result, err := svc.Evaluate(ctx, order)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// ReleaseRedemption returns a redemption's usage and stock when its order is cancelled.
func ReleaseRedemption(svc PromotionEvaluator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "promotion service unavailable"))
			return
		}

		redemptionID, err := validators.ParseURLUUID(r, "redemptionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		redemption, err := svc.Release(r.Context(), redemptionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, redemption)
	}
}
