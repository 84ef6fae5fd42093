package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/petcare-pricing/pkg/enums"
)

// PriceHistory is an append-only audit row for a price change.
type PriceHistory struct {
	ID           uuid.UUID        `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	PriceTableID uuid.UUID        `gorm:"column:price_table_id;type:uuid;not null;index:idx_price_history_table_created,priority:1" json:"price_table_id"`
	Field        enums.PriceField `gorm:"column:field;type:text;not null" json:"field"`
	OldPrice     decimal.Decimal  `gorm:"column:old_price;type:numeric(12,2);not null" json:"old_price"`
	NewPrice     decimal.Decimal  `gorm:"column:new_price;type:numeric(12,2);not null" json:"new_price"`
	ActorID      *uuid.UUID       `gorm:"column:actor_id;type:uuid" json:"actor_id,omitempty"`
	Reason       string           `gorm:"column:reason;type:text;not null" json:"reason"`
	CreatedAt    time.Time        `gorm:"column:created_at;autoCreateTime;index:idx_price_history_table_created,priority:2" json:"created_at"`
}

func (PriceHistory) TableName() string { return "price_history" }

func (h *PriceHistory) BeforeCreate(*gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}
