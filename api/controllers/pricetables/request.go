package pricetables

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/petcare-pricing/api/controllers/actorcontext"
	"github.com/angelmondragon/petcare-pricing/internal/pricing"
	"github.com/angelmondragon/petcare-pricing/pkg/types"
)

type createRequest struct {
	ProductID     uuid.UUID        `json:"product_id" validate:"required"`
	Channel       *string          `json:"channel" validate:"omitempty,max=64"`
	Region        *string          `json:"region" validate:"omitempty,max=64"`
	CustomerGroup *string          `json:"customer_group" validate:"omitempty,max=64"`
	CostPrice     *decimal.Decimal `json:"cost_price"`
	RegularPrice  *decimal.Decimal `json:"regular_price" validate:"required"`
	SalePrice     *decimal.Decimal `json:"sale_price"`
	VATRate       *decimal.Decimal `json:"vat_rate"`
	StartDate     *time.Time       `json:"start_date"`
	EndDate       *time.Time       `json:"end_date"`
	Priority      int              `json:"priority" validate:"gte=0"`
	IsActive      *bool            `json:"is_active"`
}

func (r createRequest) toInput(actor actorcontext.Actor) pricing.CreateInput {
	return pricing.CreateInput{
		ProductID:     r.ProductID,
		Channel:       types.ScopeFromPtr(r.Channel),
		Region:        types.ScopeFromPtr(r.Region),
		CustomerGroup: types.ScopeFromPtr(r.CustomerGroup),
		CostPrice:     r.CostPrice,
		RegularPrice:  r.RegularPrice,
		SalePrice:     r.SalePrice,
		VATRate:       r.VATRate,
		StartDate:     utcPtr(r.StartDate),
		EndDate:       utcPtr(r.EndDate),
		Priority:      r.Priority,
		IsActive:      r.IsActive,
		Actor:         pricing.Actor{UserID: &actor.UserID, Role: actor.Role},
	}
}

// updateRequest is a partial update. Scope fields distinguish absent from
// null: null widens the table to the wildcard.
type updateRequest struct {
	Channel        types.ScopePatch `json:"channel"`
	Region         types.ScopePatch `json:"region"`
	CustomerGroup  types.ScopePatch `json:"customer_group"`
	CostPrice      *decimal.Decimal `json:"cost_price"`
	RegularPrice   *decimal.Decimal `json:"regular_price"`
	SalePrice      *decimal.Decimal `json:"sale_price"`
	ClearSalePrice bool             `json:"clear_sale_price"`
	VATRate        *decimal.Decimal `json:"vat_rate"`
	StartDate      *time.Time       `json:"start_date"`
	EndDate        *time.Time       `json:"end_date"`
	ClearEndDate   bool             `json:"clear_end_date"`
	Priority       *int             `json:"priority" validate:"omitempty,gte=0"`
	IsActive       *bool            `json:"is_active"`
	Reason         string           `json:"reason" validate:"max=255"`
}

func (r updateRequest) toInput(actor actorcontext.Actor) pricing.UpdateInput {
	return pricing.UpdateInput{
		Channel:        r.Channel,
		Region:         r.Region,
		CustomerGroup:  r.CustomerGroup,
		CostPrice:      r.CostPrice,
		RegularPrice:   r.RegularPrice,
		SalePrice:      r.SalePrice,
		ClearSalePrice: r.ClearSalePrice,
		VATRate:        r.VATRate,
		StartDate:      utcPtr(r.StartDate),
		EndDate:        utcPtr(r.EndDate),
		ClearEndDate:   r.ClearEndDate,
		Priority:       r.Priority,
		IsActive:       r.IsActive,
		Reason:         strings.TrimSpace(r.Reason),
		Actor:          pricing.Actor{UserID: &actor.UserID, Role: actor.Role},
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
