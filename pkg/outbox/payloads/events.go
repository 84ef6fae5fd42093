package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/petcare-pricing/pkg/enums"
)

// PriceTableChangedEvent is emitted for every price table write.
type PriceTableChangedEvent struct {
	PriceTableID  uuid.UUID              `json:"price_table_id"`
	ProductID     uuid.UUID              `json:"product_id"`
	Change        enums.PriceTableChange `json:"change"`
	Channel       *string                `json:"channel,omitempty"`
	Region        *string                `json:"region,omitempty"`
	CustomerGroup *string                `json:"customer_group,omitempty"`
	RegularPrice  decimal.Decimal        `json:"regular_price"`
	SalePrice     *decimal.Decimal       `json:"sale_price,omitempty"`
	Priority      int                    `json:"priority"`
	IsActive      bool                   `json:"is_active"`
}

// PromotionChangedEvent is emitted when the catalog creates, edits or deactivates a promotion.
type PromotionChangedEvent struct {
	PromotionID uuid.UUID `json:"promotion_id"`
	Name        string    `json:"name"`
	Code        *string   `json:"code,omitempty"`
	IsActive    bool      `json:"is_active"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
}

// PromotionRedeemedEvent records one committed redemption.
type PromotionRedeemedEvent struct {
	RedemptionID   uuid.UUID       `json:"redemption_id"`
	PromotionID    uuid.UUID       `json:"promotion_id"`
	CustomerID     uuid.UUID       `json:"customer_id"`
	OrderRef       string          `json:"order_ref"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Quantity       int             `json:"quantity"`
}

// PromotionReleasedEvent is emitted when a cancelled order gives a redemption back.
type PromotionReleasedEvent struct {
	RedemptionID uuid.UUID `json:"redemption_id"`
	PromotionID  uuid.UUID `json:"promotion_id"`
	CustomerID   uuid.UUID `json:"customer_id"`
	OrderRef     string    `json:"order_ref"`
	Quantity     int       `json:"quantity"`
}

// FlashSaleSoldOutEvent signals that a flash-sale pool reached zero.
type FlashSaleSoldOutEvent struct {
	PromotionID  uuid.UUID `json:"promotion_id"`
	InitialStock int       `json:"initial_stock"`
	SoldOutAt    time.Time `json:"sold_out_at"`
}
