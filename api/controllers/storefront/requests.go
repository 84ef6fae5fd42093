package storefront

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/petcare-pricing/api/controllers/actorcontext"
	"github.com/angelmondragon/petcare-pricing/internal/promotions"
	"github.com/angelmondragon/petcare-pricing/internal/quotes"
	"github.com/angelmondragon/petcare-pricing/pkg/types"
)

type quoteItemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"gt=0"`
}

type quoteRequest struct {
	Items         []quoteItemRequest `json:"items" validate:"required,min=1,max=200,dive"`
	CustomerID    *string            `json:"customer_id"`
	CustomerGroup *string            `json:"customer_group" validate:"omitempty,max=64"`
	Channel       *string            `json:"channel" validate:"omitempty,max=64"`
	Region        *string            `json:"region" validate:"omitempty,max=64"`
	PromoCode     string             `json:"promo_code" validate:"max=64"`
	AsOf          *time.Time         `json:"as_of"`
}

func (r quoteRequest) toRequest(customer actorcontext.Customer) quotes.Request {
	req := quotes.Request{
		Items:         make([]quotes.Item, 0, len(r.Items)),
		CustomerID:    customer.ID,
		CustomerGroup: customer.Group,
		Channel:       types.ScopeFromPtr(r.Channel),
		Region:        types.ScopeFromPtr(r.Region),
		PromoCode:     strings.TrimSpace(r.PromoCode),
	}
	if r.AsOf != nil {
		req.AsOf = r.AsOf.UTC()
	}
	for _, item := range r.Items {
		req.Items = append(req.Items, quotes.Item{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return req
}

type orderLineRequest struct {
	ProductID uuid.UUID       `json:"product_id" validate:"required"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type evaluateRequest struct {
	Items         []orderLineRequest `json:"items" validate:"required,min=1,max=200,dive"`
	CustomerID    *string            `json:"customer_id"`
	CustomerGroup *string            `json:"customer_group" validate:"omitempty,max=64"`
	PromoCode     string             `json:"promo_code" validate:"max=64"`
	AsOf          *time.Time         `json:"as_of"`
}

type redeemRequest struct {
	Items         []orderLineRequest `json:"items" validate:"required,min=1,max=200,dive"`
	CustomerID    *string            `json:"customer_id"`
	CustomerGroup *string            `json:"customer_group" validate:"omitempty,max=64"`
	PromoCode     string             `json:"promo_code" validate:"max=64"`
	AsOf          *time.Time         `json:"as_of"`
	OrderRef      string             `json:"order_ref" validate:"required,max=128"`
}

func (r redeemRequest) toOrder(customer actorcontext.Customer) promotions.Order {
	order := evaluateRequest{
		Items:     r.Items,
		PromoCode: r.PromoCode,
		AsOf:      r.AsOf,
	}.toOrder(customer)
	order.OrderRef = strings.TrimSpace(r.OrderRef)
	return order
}

func (r evaluateRequest) toOrder(customer actorcontext.Customer) promotions.Order {
	order := promotions.Order{
		Lines:         make([]promotions.OrderLine, 0, len(r.Items)),
		CustomerID:    customer.ID,
		CustomerGroup: customer.Group,
		PromoCode:     strings.TrimSpace(r.PromoCode),
	}
	if r.AsOf != nil {
		order.AsOf = r.AsOf.UTC()
	}
	for _, item := range r.Items {
		order.Lines = append(order.Lines, promotions.OrderLine{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return order
}
