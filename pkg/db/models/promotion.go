package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/petcare-pricing/pkg/enums"
	"github.com/angelmondragon/petcare-pricing/pkg/types"
)

// Promotion is a discount rule with targeting, limits and optional flash-sale stock.
type Promotion struct {
	ID                    uuid.UUID           `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Name                  string              `gorm:"column:name;type:text;not null" json:"name"`
	Code                  *string             `gorm:"column:code;type:text;uniqueIndex:ux_promotions_code" json:"code,omitempty"`
	DiscountType          enums.DiscountType  `gorm:"column:discount_type;type:text;not null" json:"discount_type"`
	DiscountValue         decimal.Decimal     `gorm:"column:discount_value;type:numeric(12,2);not null" json:"discount_value"`
	MinQuantity           *int                `gorm:"column:min_quantity" json:"min_quantity,omitempty"`
	MinOrderValue         decimal.NullDecimal `gorm:"column:min_order_value;type:numeric(12,2)" json:"min_order_value"`
	CustomerGroup         types.Scope         `gorm:"column:customer_group_code;type:text" json:"customer_group"`
	StartDate             time.Time           `gorm:"column:start_date;not null" json:"start_date"`
	EndDate               time.Time           `gorm:"column:end_date;not null" json:"end_date"`
	UsageLimit            *int                `gorm:"column:usage_limit" json:"usage_limit,omitempty"`
	UsageCount            int                 `gorm:"column:usage_count;not null" json:"usage_count"`
	PerCustomerLimit      *int                `gorm:"column:per_customer_limit" json:"per_customer_limit,omitempty"`
	IsFlashSale           bool                `gorm:"column:is_flash_sale;not null" json:"is_flash_sale"`
	FlashSaleStock        *int                `gorm:"column:flash_sale_stock" json:"flash_sale_stock,omitempty"`
	FlashSaleInitialStock *int                `gorm:"column:flash_sale_initial_stock" json:"flash_sale_initial_stock,omitempty"`
	CanStack              bool                `gorm:"column:can_stack;not null" json:"can_stack"`
	Priority              int                 `gorm:"column:priority;not null" json:"priority"`
	IsActive              bool                `gorm:"column:is_active;not null;index" json:"is_active"`
	CreatedAt             time.Time           `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`

	Products  []PromotionProduct  `gorm:"foreignKey:PromotionID;references:ID" json:"-"`
	Customers []PromotionCustomer `gorm:"foreignKey:PromotionID;references:ID" json:"-"`
}

func (Promotion) TableName() string { return "promotions" }

func (p *Promotion) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// ValidAt reports whether asOf is inside the inclusive validity window.
func (p Promotion) ValidAt(asOf time.Time) bool {
	return !asOf.Before(p.StartDate) && !asOf.After(p.EndDate)
}

// OrderWide reports whether the promotion targets every product.
func (p Promotion) OrderWide() bool {
	return len(p.Products) == 0
}

// ProductIDs returns the targeted product set.
func (p Promotion) ProductIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(p.Products))
	for _, row := range p.Products {
		ids = append(ids, row.ProductID)
	}
	return ids
}

// CustomerIDs returns the explicit allow-list, empty when unrestricted.
func (p Promotion) CustomerIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(p.Customers))
	for _, row := range p.Customers {
		ids = append(ids, row.CustomerID)
	}
	return ids
}

// PromotionProduct links a promotion to one targeted product.
type PromotionProduct struct {
	PromotionID uuid.UUID `gorm:"column:promotion_id;type:uuid;primaryKey"`
	ProductID   uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey;index"`
}

func (PromotionProduct) TableName() string { return "promotion_products" }

// PromotionCustomer is one entry of a promotion's customer allow-list.
type PromotionCustomer struct {
	PromotionID uuid.UUID `gorm:"column:promotion_id;type:uuid;primaryKey"`
	CustomerID  uuid.UUID `gorm:"column:customer_id;type:uuid;primaryKey"`
}

func (PromotionCustomer) TableName() string { return "promotion_customers" }
