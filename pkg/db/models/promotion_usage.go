package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/petcare-pricing/pkg/enums"
)

// PromotionCustomerUsage counts committed uses of a promotion per customer.
type PromotionCustomerUsage struct {
	PromotionID uuid.UUID `gorm:"column:promotion_id;type:uuid;primaryKey"`
	CustomerID  uuid.UUID `gorm:"column:customer_id;type:uuid;primaryKey"`
	UsageCount  int       `gorm:"column:usage_count;not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (PromotionCustomerUsage) TableName() string { return "promotion_customer_usages" }

// PromotionRedemption records one committed application of a promotion to an order.
type PromotionRedemption struct {
	ID             uuid.UUID              `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	PromotionID    uuid.UUID              `gorm:"column:promotion_id;type:uuid;not null;index" json:"promotion_id"`
	CustomerID     uuid.UUID              `gorm:"column:customer_id;type:uuid;not null" json:"customer_id"`
	OrderRef       string                 `gorm:"column:order_ref;type:text;not null;index" json:"order_ref"`
	Quantity       int                    `gorm:"column:quantity;not null" json:"quantity"`
	DiscountAmount decimal.Decimal        `gorm:"column:discount_amount;type:numeric(12,2);not null" json:"discount_amount"`
	Status         enums.RedemptionStatus `gorm:"column:status;type:text;not null" json:"status"`
	CreatedAt      time.Time              `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	ReleasedAt     *time.Time             `gorm:"column:released_at" json:"released_at,omitempty"`
}

func (PromotionRedemption) TableName() string { return "promotion_redemptions" }

func (r *PromotionRedemption) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
