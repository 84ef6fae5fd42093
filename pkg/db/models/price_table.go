package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/petcare-pricing/pkg/types"
)

// PriceTable is one pricing rule for a product, optionally narrowed to a
// channel, region and customer group.
type PriceTable struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ProductID     uuid.UUID           `gorm:"column:product_id;type:uuid;not null;index:idx_price_tables_product_active,priority:1" json:"product_id"`
	Channel       types.Scope         `gorm:"column:channel_code;type:text" json:"channel"`
	Region        types.Scope         `gorm:"column:region_code;type:text" json:"region"`
	CustomerGroup types.Scope         `gorm:"column:customer_group_code;type:text" json:"customer_group"`
	CostPrice     decimal.Decimal     `gorm:"column:cost_price;type:numeric(12,2);not null" json:"cost_price"`
	RegularPrice  decimal.Decimal     `gorm:"column:regular_price;type:numeric(12,2);not null" json:"regular_price"`
	SalePrice     decimal.NullDecimal `gorm:"column:sale_price;type:numeric(12,2)" json:"sale_price"`
	VATRate       decimal.Decimal     `gorm:"column:vat_rate;type:numeric(5,2);not null" json:"vat_rate"`
	Margin        decimal.Decimal     `gorm:"column:margin;type:numeric(12,2);not null" json:"margin"`
	VATAmount     decimal.Decimal     `gorm:"column:vat_amount;type:numeric(18,6);not null" json:"vat_amount"`
	StartDate     time.Time           `gorm:"column:start_date;not null" json:"start_date"`
	EndDate       *time.Time          `gorm:"column:end_date" json:"end_date,omitempty"`
	Priority      int                 `gorm:"column:priority;not null" json:"priority"`
	IsActive      bool                `gorm:"column:is_active;not null;index:idx_price_tables_product_active,priority:2" json:"is_active"`
	CreatedBy     *uuid.UUID          `gorm:"column:created_by;type:uuid" json:"created_by,omitempty"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (PriceTable) TableName() string { return "price_tables" }

func (p *PriceTable) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// ValidAt reports whether asOf falls inside the table's validity window.
// Both bounds are inclusive and a nil end date never expires.
func (p PriceTable) ValidAt(asOf time.Time) bool {
	if asOf.Before(p.StartDate) {
		return false
	}
	return p.EndDate == nil || !asOf.After(*p.EndDate)
}

// EffectivePrice is the unit price a storefront charges before promotions.
func (p PriceTable) EffectivePrice() decimal.Decimal {
	if p.SalePrice.Valid && p.SalePrice.Decimal.IsPositive() {
		return p.SalePrice.Decimal
	}
	return p.RegularPrice
}
