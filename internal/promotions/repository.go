package promotions

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/petcare-pricing/pkg/db/models"
	"github.com/angelmondragon/petcare-pricing/pkg/enums"
	"github.com/angelmondragon/petcare-pricing/pkg/pagination"
)

// ListFilter narrows the admin promotion listing.
type ListFilter struct {
	ActiveOnly bool
	Page       pagination.Params
}

// Repository persists promotions, their targeting rows, usage counters and redemptions.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// NormalizeCode is the stored form of a redeemable code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (r *Repository) Create(ctx context.Context, promo *models.Promotion) error {
	tx := r.db.WithContext(ctx)
	if err := tx.Omit(clause.Associations).Create(promo).Error; err != nil {
		return err
	}
	return r.ReplaceTargets(ctx, promo)
}

// definitionColumns are the promotion columns an admin edit may write. Usage
// counters and flash-sale stock only move through the conditional updates
// below.
var definitionColumns = []string{
	"name", "code", "discount_type", "discount_value", "min_quantity", "min_order_value",
	"customer_group_code", "start_date", "end_date", "usage_limit", "per_customer_limit",
	"can_stack", "priority", "is_active", "updated_at",
}

// UpdateDefinition writes the editable columns of promo and refreshes the
// counters from the row so the caller sees committed usage.
func (r *Repository) UpdateDefinition(ctx context.Context, promo *models.Promotion) error {
	tx := r.db.WithContext(ctx)
	res := tx.Model(promo).
		Select(definitionColumns).
		Omit(clause.Associations).
		Updates(promo)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	var counters models.Promotion
	if err := tx.Select("usage_count", "flash_sale_stock", "flash_sale_initial_stock").
		First(&counters, "id = ?", promo.ID).Error; err != nil {
		return err
	}
	promo.UsageCount = counters.UsageCount
	promo.FlashSaleStock = counters.FlashSaleStock
	promo.FlashSaleInitialStock = counters.FlashSaleInitialStock
	return nil
}

// ReplaceTargets rewrites the product set and customer allow-list from promo.
func (r *Repository) ReplaceTargets(ctx context.Context, promo *models.Promotion) error {
	tx := r.db.WithContext(ctx)
	if err := tx.Where("promotion_id = ?", promo.ID).Delete(&models.PromotionProduct{}).Error; err != nil {
		return err
	}
	if err := tx.Where("promotion_id = ?", promo.ID).Delete(&models.PromotionCustomer{}).Error; err != nil {
		return err
	}
	for i := range promo.Products {
		promo.Products[i].PromotionID = promo.ID
	}
	for i := range promo.Customers {
		promo.Customers[i].PromotionID = promo.ID
	}
	if len(promo.Products) > 0 {
		if err := tx.Create(&promo.Products).Error; err != nil {
			return err
		}
	}
	if len(promo.Customers) > 0 {
		if err := tx.Create(&promo.Customers).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Promotion, error) {
	var promo models.Promotion
	if err := r.withTargets(ctx).First(&promo, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &promo, nil
}

// FindByCode looks a promotion up by its case-insensitive code.
func (r *Repository) FindByCode(ctx context.Context, code string) (*models.Promotion, error) {
	var promo models.Promotion
	if err := r.withTargets(ctx).First(&promo, "code = ?", NormalizeCode(code)).Error; err != nil {
		return nil, err
	}
	return &promo, nil
}

// ListActiveForProducts returns active promotions targeting any of productIDs
// plus every order-wide promotion. Date windows are checked by the caller.
func (r *Repository) ListActiveForProducts(ctx context.Context, productIDs []uuid.UUID) ([]models.Promotion, error) {
	query := r.withTargets(ctx).Where("is_active = ?", true)
	if len(productIDs) == 0 {
		query = query.Where("NOT EXISTS (SELECT 1 FROM promotion_products pp WHERE pp.promotion_id = promotions.id)")
	} else {
		query = query.Where(
			"(NOT EXISTS (SELECT 1 FROM promotion_products pp WHERE pp.promotion_id = promotions.id) OR EXISTS (SELECT 1 FROM promotion_products pp WHERE pp.promotion_id = promotions.id AND pp.product_id IN ?))",
			productIDs,
		)
	}
	var rows []models.Promotion
	err := query.Order("id ASC").Find(&rows).Error
	return rows, err
}

// List returns one page of promotions, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]models.Promotion, string, error) {
	cursor, err := pagination.ParseCursor(filter.Page.Cursor)
	if err != nil {
		return nil, "", err
	}
	query := r.withTargets(ctx)
	if filter.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}
	var rows []models.Promotion
	if err := pagination.Newest(query, cursor, filter.Page.Limit).Find(&rows).Error; err != nil {
		return nil, "", err
	}
	rows, next := pagination.Trim(rows, filter.Page.Limit, func(row models.Promotion) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return rows, next, nil
}

// CustomerUsage returns the committed use count of each promotion for one customer.
func (r *Repository) CustomerUsage(ctx context.Context, customerID uuid.UUID, promotionIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	usage := make(map[uuid.UUID]int, len(promotionIDs))
	if len(promotionIDs) == 0 {
		return usage, nil
	}
	var rows []models.PromotionCustomerUsage
	if err := r.db.WithContext(ctx).
		Where("customer_id = ? AND promotion_id IN ?", customerID, promotionIDs).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		usage[row.PromotionID] = row.UsageCount
	}
	return usage, nil
}

// IncrementUsage bumps the global counter unless the usage limit is reached.
func (r *Repository) IncrementUsage(ctx context.Context, promotionID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Promotion{}).
		Where("id = ? AND (usage_limit IS NULL OR usage_count < usage_limit)", promotionID).
		Update("usage_count", gorm.Expr("usage_count + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repository) DecrementUsage(ctx context.Context, promotionID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Promotion{}).
		Where("id = ? AND usage_count > 0", promotionID).
		Update("usage_count", gorm.Expr("usage_count - 1")).Error
}

// IncrementCustomerUsage bumps the per-customer counter unless limit is reached.
// A nil limit always succeeds.
func (r *Repository) IncrementCustomerUsage(ctx context.Context, promotionID, customerID uuid.UUID, limit *int) (bool, error) {
	tx := r.db.WithContext(ctx)
	seed := models.PromotionCustomerUsage{PromotionID: promotionID, CustomerID: customerID}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return false, err
	}
	query := tx.Model(&models.PromotionCustomerUsage{}).
		Where("promotion_id = ? AND customer_id = ?", promotionID, customerID)
	if limit != nil {
		query = query.Where("usage_count < ?", *limit)
	}
	res := query.Update("usage_count", gorm.Expr("usage_count + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repository) DecrementCustomerUsage(ctx context.Context, promotionID, customerID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.PromotionCustomerUsage{}).
		Where("promotion_id = ? AND customer_id = ? AND usage_count > 0", promotionID, customerID).
		Update("usage_count", gorm.Expr("usage_count - 1")).Error
}

func (r *Repository) CreateRedemption(ctx context.Context, redemption *models.PromotionRedemption) error {
	return r.db.WithContext(ctx).Create(redemption).Error
}

func (r *Repository) FindRedemption(ctx context.Context, id uuid.UUID) (*models.PromotionRedemption, error) {
	var redemption models.PromotionRedemption
	if err := r.db.WithContext(ctx).First(&redemption, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &redemption, nil
}

// MarkRedemptionReleased flips a redeemed row to released. It reports false
// when the row was already released.
func (r *Repository) MarkRedemptionReleased(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PromotionRedemption{}).
		Where("id = ? AND status = ?", id, enums.RedemptionStatusRedeemed).
		Updates(map[string]any{
			"status":      enums.RedemptionStatusReleased,
			"released_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repository) withTargets(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("Products").Preload("Customers")
}
