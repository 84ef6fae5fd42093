package promotions

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/petcare-pricing/pkg/db/models"
	pkgerrors "github.com/angelmondragon/petcare-pricing/pkg/errors"
	"github.com/angelmondragon/petcare-pricing/pkg/metrics"
)

// StockGuard owns the flash-sale stock counter. Every change is a single
// conditional UPDATE, so concurrent callers across instances can never take
// the pool below zero or push it above its initial allocation.
type StockGuard struct {
	db      *gorm.DB
	metrics *metrics.PricingMetrics
}

func NewStockGuard(db *gorm.DB, m *metrics.PricingMetrics) *StockGuard {
	return &StockGuard{db: db, metrics: m}
}

// WithTx binds the guard to the caller's transaction.
func (g *StockGuard) WithTx(tx *gorm.DB) *StockGuard {
	return &StockGuard{db: tx, metrics: g.metrics}
}

// TryReserve takes quantity units from the pool. It returns false, without
// changing anything, when fewer than quantity units remain.
func (g *StockGuard) TryReserve(ctx context.Context, promotionID uuid.UUID, quantity int) (bool, error) {
	if quantity <= 0 {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "reservation quantity must be positive")
	}
	res := g.db.WithContext(ctx).
		Model(&models.Promotion{}).
		Where("id = ? AND is_flash_sale = ? AND flash_sale_stock >= ?", promotionID, true, quantity).
		Update("flash_sale_stock", gorm.Expr("flash_sale_stock - ?", quantity))
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected != 1 {
		g.metrics.IncReservation(metrics.ReservationRejected)
		return false, nil
	}
	g.metrics.IncReservation(metrics.ReservationGranted)
	return true, nil
}

// Release gives quantity units back, capped at the initial allocation.
func (g *StockGuard) Release(ctx context.Context, promotionID uuid.UUID, quantity int) error {
	if quantity <= 0 {
		return nil
	}
	res := g.db.WithContext(ctx).
		Model(&models.Promotion{}).
		Where("id = ? AND is_flash_sale = ?", promotionID, true).
		Update("flash_sale_stock", gorm.Expr(
			"CASE WHEN flash_sale_stock + ? > flash_sale_initial_stock THEN flash_sale_initial_stock ELSE flash_sale_stock + ? END",
			quantity, quantity,
		))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		g.metrics.IncReservation(metrics.ReservationReleased)
	}
	return nil
}

// Remaining reads the current pool size.
func (g *StockGuard) Remaining(ctx context.Context, promotionID uuid.UUID) (int, error) {
	var promo models.Promotion
	if err := g.db.WithContext(ctx).
		Select("id", "flash_sale_stock").
		First(&promo, "id = ?", promotionID).Error; err != nil {
		return 0, err
	}
	if promo.FlashSaleStock == nil {
		return 0, nil
	}
	return *promo.FlashSaleStock, nil
}
