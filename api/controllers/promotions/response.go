package promotions

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/petcare-pricing/pkg/db/models"
	"github.com/angelmondragon/petcare-pricing/pkg/enums"
	"github.com/angelmondragon/petcare-pricing/pkg/types"
)

type promotionResponse struct {
	ID                    uuid.UUID           `json:"id"`
	Name                  string              `json:"name"`
	Code                  *string             `json:"code,omitempty"`
	DiscountType          enums.DiscountType  `json:"discount_type"`
	DiscountValue         decimal.Decimal     `json:"discount_value"`
	MinQuantity           *int                `json:"min_quantity,omitempty"`
	MinOrderValue         decimal.NullDecimal `json:"min_order_value"`
	CustomerGroup         types.Scope         `json:"customer_group"`
	CustomerIDs           []uuid.UUID         `json:"customer_ids"`
	ProductIDs            []uuid.UUID         `json:"product_ids"`
	StartDate             time.Time           `json:"start_date"`
	EndDate               time.Time           `json:"end_date"`
	UsageLimit            *int                `json:"usage_limit,omitempty"`
	UsageCount            int                 `json:"usage_count"`
	PerCustomerLimit      *int                `json:"per_customer_limit,omitempty"`
	IsFlashSale           bool                `json:"is_flash_sale"`
	FlashSaleStock        *int                `json:"flash_sale_stock,omitempty"`
	FlashSaleInitialStock *int                `json:"flash_sale_initial_stock,omitempty"`
	CanStack              bool                `json:"can_stack"`
	Priority              int                 `json:"priority"`
	IsActive              bool                `json:"is_active"`
	CreatedAt             time.Time           `json:"created_at"`
	UpdatedAt             time.Time           `json:"updated_at"`
}

func promotionResponseFromModel(m *models.Promotion) promotionResponse {
	return promotionResponse{
		ID:                    m.ID,
		Name:                  m.Name,
		Code:                  m.Code,
		DiscountType:          m.DiscountType,
		DiscountValue:         m.DiscountValue,
		MinQuantity:           m.MinQuantity,
		MinOrderValue:         m.MinOrderValue,
		CustomerGroup:         m.CustomerGroup,
		CustomerIDs:           m.CustomerIDs(),
		ProductIDs:            m.ProductIDs(),
		StartDate:             m.StartDate,
		EndDate:               m.EndDate,
		UsageLimit:            m.UsageLimit,
		UsageCount:            m.UsageCount,
		PerCustomerLimit:      m.PerCustomerLimit,
		IsFlashSale:           m.IsFlashSale,
		FlashSaleStock:        m.FlashSaleStock,
		FlashSaleInitialStock: m.FlashSaleInitialStock,
		CanStack:              m.CanStack,
		Priority:              m.Priority,
		IsActive:              m.IsActive,
		CreatedAt:             m.CreatedAt,
		UpdatedAt:             m.UpdatedAt,
	}
}
