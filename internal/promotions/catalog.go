package promotions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/petcare-pricing/pkg/db"
	"github.com/angelmondragon/petcare-pricing/pkg/db/models"
	"github.com/angelmondragon/petcare-pricing/pkg/enums"
	pkgerrors "github.com/angelmondragon/petcare-pricing/pkg/errors"
	"github.com/angelmondragon/petcare-pricing/pkg/logger"
	"github.com/angelmondragon/petcare-pricing/pkg/outbox"
	"github.com/angelmondragon/petcare-pricing/pkg/outbox/payloads"
	"github.com/angelmondragon/petcare-pricing/pkg/pagination"
	"github.com/angelmondragon/petcare-pricing/pkg/types"
)

const codeUniqueIndex = "ux_promotions_code"

// Actor identifies who performed an administrative write.
type Actor struct {
	UserID *uuid.UUID
	Role   enums.ActorRole
}

func (a Actor) ref() *outbox.Actor {
	if a.UserID == nil {
		return nil
	}
	return &outbox.Actor{UserID: *a.UserID, Role: a.Role.String()}
}

// CreateInput holds the validated payload to create a promotion.
type CreateInput struct {
	Name             string
	Code             *string
	DiscountType     enums.DiscountType
	DiscountValue    decimal.Decimal
	MinQuantity      *int
	MinOrderValue    *decimal.Decimal
	CustomerGroup    types.Scope
	CustomerIDs      []uuid.UUID
	ProductIDs       []uuid.UUID
	StartDate        time.Time
	EndDate          time.Time
	UsageLimit       *int
	PerCustomerLimit *int
	IsFlashSale      bool
	FlashSaleStock   *int
	CanStack         bool
	Priority         int
	IsActive         *bool
	Actor            Actor
}

// UpdateInput holds optional mutation values. For the optional thresholds and
// limits a zero value clears the setting. Usage counters and flash-sale stock
// are owned by the evaluator and cannot be edited here.
type UpdateInput struct {
	Name             *string
	Code             *string
	ClearCode        bool
	DiscountType     *enums.DiscountType
	DiscountValue    *decimal.Decimal
	MinQuantity      *int
	MinOrderValue    *decimal.Decimal
	CustomerGroup    types.ScopePatch
	CustomerIDs      *[]uuid.UUID
	ProductIDs       *[]uuid.UUID
	StartDate        *time.Time
	EndDate          *time.Time
	UsageLimit       *int
	PerCustomerLimit *int
	CanStack         *bool
	Priority         *int
	IsActive         *bool
	Actor            Actor
}

// Catalog is the administrative surface over promotions.
type Catalog struct {
	tx     db.TxRunner
	repo   *Repository
	events outbox.Emitter
	logg   *logger.Logger
}

func NewCatalog(tx db.TxRunner, repo *Repository, events outbox.Emitter, logg *logger.Logger) (*Catalog, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("promotion repository required")
	}
	if events == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Catalog{tx: tx, repo: repo, events: events, logg: logg}, nil
}

func (c *Catalog) Create(ctx context.Context, input CreateInput) (*models.Promotion, error) {
	promo := &models.Promotion{
		Name:             strings.TrimSpace(input.Name),
		Code:             normalizeCodePtr(input.Code),
		DiscountType:     input.DiscountType,
		DiscountValue:    input.DiscountValue,
		MinQuantity:      input.MinQuantity,
		CustomerGroup:    input.CustomerGroup,
		StartDate:        input.StartDate,
		EndDate:          input.EndDate,
		UsageLimit:       input.UsageLimit,
		PerCustomerLimit: input.PerCustomerLimit,
		IsFlashSale:      input.IsFlashSale,
		CanStack:         input.CanStack,
		Priority:         input.Priority,
		IsActive:         true,
		Products:         productRows(input.ProductIDs),
		Customers:        customerRows(input.CustomerIDs),
	}
	if input.MinOrderValue != nil {
		promo.MinOrderValue = decimal.NewNullDecimal(*input.MinOrderValue)
	}
	if input.IsActive != nil {
		promo.IsActive = *input.IsActive
	}
	if input.IsFlashSale && input.FlashSaleStock != nil {
		stock := *input.FlashSaleStock
		initial := stock
		promo.FlashSaleStock = &stock
		promo.FlashSaleInitialStock = &initial
	}
	if err := validatePromotion(promo, input.IsFlashSale && input.FlashSaleStock == nil); err != nil {
		return nil, err
	}

	err := c.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := c.repo.WithTx(tx)
		if err := repo.Create(ctx, promo); err != nil {
			return err
		}
		return c.emit(ctx, tx, promo, input.Actor)
	})
	if err != nil {
		return nil, writeError(err, "create promotion")
	}
	return promo, nil
}

func (c *Catalog) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.Promotion, error) {
	var updated *models.Promotion
	err := c.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := c.repo.WithTx(tx)
		promo, err := repo.FindByID(ctx, id)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "promotion not found")
			}
			return err
		}
		targetsChanged := applyPromotionUpdate(promo, input)
		if err := validatePromotion(promo, false); err != nil {
			return err
		}
		if err := repo.UpdateDefinition(ctx, promo); err != nil {
			return err
		}
		if targetsChanged {
			if err := repo.ReplaceTargets(ctx, promo); err != nil {
				return err
			}
		}
		if err := c.emit(ctx, tx, promo, input.Actor); err != nil {
			return err
		}
		updated = promo
		return nil
	})
	if err != nil {
		return nil, writeError(err, "update promotion")
	}
	return updated, nil
}

func (c *Catalog) Get(ctx context.Context, id uuid.UUID) (*models.Promotion, error) {
	promo, err := c.repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "promotion not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load promotion")
	}
	return promo, nil
}

func (c *Catalog) List(ctx context.Context, filter ListFilter) ([]models.Promotion, string, error) {
	if _, err := pagination.ParseCursor(filter.Page.Cursor); err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, next, err := c.repo.List(ctx, filter)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list promotions")
	}
	return rows, next, nil
}

// Deactivate switches the promotion off; redemptions and counters are kept.
func (c *Catalog) Deactivate(ctx context.Context, id uuid.UUID, actor Actor) error {
	err := c.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := c.repo.WithTx(tx)
		promo, err := repo.FindByID(ctx, id)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "promotion not found")
			}
			return err
		}
		if !promo.IsActive {
			return nil
		}
		promo.IsActive = false
		if err := repo.UpdateDefinition(ctx, promo); err != nil {
			return err
		}
		return c.emit(ctx, tx, promo, actor)
	})
	return writeError(err, "deactivate promotion")
}

// ListForProducts returns the active promotions that may apply to an order
// containing productIDs, order-wide promotions included.
func (c *Catalog) ListForProducts(ctx context.Context, productIDs []uuid.UUID) ([]models.Promotion, error) {
	rows, err := c.repo.ListActiveForProducts(ctx, productIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list promotions for products")
	}
	return rows, nil
}

// FindByCode resolves a redeemable code. Inactive promotions are NOT_FOUND.
func (c *Catalog) FindByCode(ctx context.Context, code string) (*models.Promotion, error) {
	if NormalizeCode(code) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "promotion code not found")
	}
	promo, err := c.repo.FindByCode(ctx, code)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "promotion code not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find promotion by code")
	}
	if !promo.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "promotion code not found")
	}
	return promo, nil
}

func (c *Catalog) emit(ctx context.Context, tx *gorm.DB, promo *models.Promotion, actor Actor) error {
	return c.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPromotionChanged,
		AggregateType: enums.AggregatePromotion,
		AggregateID:   promo.ID,
		Actor:         actor.ref(),
		Data: payloads.PromotionChangedEvent{
			PromotionID: promo.ID,
			Name:        promo.Name,
			Code:        promo.Code,
			IsActive:    promo.IsActive,
			StartDate:   promo.StartDate,
			EndDate:     promo.EndDate,
		},
	})
}

func applyPromotionUpdate(promo *models.Promotion, input UpdateInput) bool {
	if input.Name != nil {
		promo.Name = strings.TrimSpace(*input.Name)
	}
	if input.ClearCode {
		promo.Code = nil
	} else if input.Code != nil {
		promo.Code = normalizeCodePtr(input.Code)
	}
	if input.DiscountType != nil {
		promo.DiscountType = *input.DiscountType
	}
	if input.DiscountValue != nil {
		promo.DiscountValue = *input.DiscountValue
	}
	if input.MinQuantity != nil {
		promo.MinQuantity = zeroClears(*input.MinQuantity)
	}
	if input.MinOrderValue != nil {
		if input.MinOrderValue.IsZero() {
			promo.MinOrderValue = decimal.NullDecimal{}
		} else {
			promo.MinOrderValue = decimal.NewNullDecimal(*input.MinOrderValue)
		}
	}
	promo.CustomerGroup = input.CustomerGroup.Apply(promo.CustomerGroup)
	if input.StartDate != nil {
		promo.StartDate = *input.StartDate
	}
	if input.EndDate != nil {
		promo.EndDate = *input.EndDate
	}
	if input.UsageLimit != nil {
		promo.UsageLimit = zeroClears(*input.UsageLimit)
	}
	if input.PerCustomerLimit != nil {
		promo.PerCustomerLimit = zeroClears(*input.PerCustomerLimit)
	}
	if input.CanStack != nil {
		promo.CanStack = *input.CanStack
	}
	if input.Priority != nil {
		promo.Priority = *input.Priority
	}
	if input.IsActive != nil {
		promo.IsActive = *input.IsActive
	}

	targetsChanged := false
	if input.ProductIDs != nil {
		promo.Products = productRows(*input.ProductIDs)
		targetsChanged = true
	}
	if input.CustomerIDs != nil {
		promo.Customers = customerRows(*input.CustomerIDs)
		targetsChanged = true
	}
	return targetsChanged
}

func validatePromotion(promo *models.Promotion, missingFlashStock bool) error {
	fields := map[string]string{}
	if promo.Name == "" {
		fields["name"] = "is required"
	}
	if promo.Code != nil && *promo.Code == "" {
		fields["code"] = "must not be blank"
	}
	if !promo.DiscountType.IsValid() {
		fields["discount_type"] = "must be PERCENTAGE or FIXED_AMOUNT"
	}
	if !promo.DiscountValue.IsPositive() {
		fields["discount_value"] = "must be greater than 0"
	} else if promo.DiscountType == enums.DiscountTypePercentage && promo.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
		fields["discount_value"] = "must not exceed 100 for PERCENTAGE"
	}
	if promo.MinQuantity != nil && *promo.MinQuantity <= 0 {
		fields["min_quantity"] = "must be positive"
	}
	if promo.MinOrderValue.Valid && promo.MinOrderValue.Decimal.IsNegative() {
		fields["min_order_value"] = "must not be negative"
	}
	if promo.StartDate.IsZero() {
		fields["start_date"] = "is required"
	}
	if promo.EndDate.IsZero() {
		fields["end_date"] = "is required"
	} else if promo.EndDate.Before(promo.StartDate) {
		fields["end_date"] = "must not be before start_date"
	}
	if promo.UsageLimit != nil && *promo.UsageLimit <= 0 {
		fields["usage_limit"] = "must be positive"
	}
	if promo.PerCustomerLimit != nil && *promo.PerCustomerLimit <= 0 {
		fields["per_customer_limit"] = "must be positive"
	}
	if promo.IsFlashSale {
		if missingFlashStock || promo.FlashSaleInitialStock == nil || *promo.FlashSaleInitialStock <= 0 {
			fields["flash_sale_stock"] = "must be positive for a flash sale"
		}
	}
	if len(fields) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid promotion").WithDetails(fields)
	}
	return nil
}

func normalizeCodePtr(code *string) *string {
	if code == nil {
		return nil
	}
	normalized := NormalizeCode(*code)
	return &normalized
}

func zeroClears(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}

func productRows(ids []uuid.UUID) []models.PromotionProduct {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	rows := make([]models.PromotionProduct, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup || id == uuid.Nil {
			continue
		}
		seen[id] = struct{}{}
		rows = append(rows, models.PromotionProduct{ProductID: id})
	}
	return rows
}

func customerRows(ids []uuid.UUID) []models.PromotionCustomer {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	rows := make([]models.PromotionCustomer, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup || id == uuid.Nil {
			continue
		}
		seen[id] = struct{}{}
		rows = append(rows, models.PromotionCustomer{CustomerID: id})
	}
	return rows
}

func writeError(err error, op string) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	if db.IsUniqueViolation(err, codeUniqueIndex) {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "promotion code already in use")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
