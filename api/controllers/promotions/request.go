package promotions

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/petcare-pricing/api/controllers/actorcontext"
	"github.com/angelmondragon/petcare-pricing/api/validators"
	internalpromotions "github.com/angelmondragon/petcare-pricing/internal/promotions"
	"github.com/angelmondragon/petcare-pricing/pkg/enums"
	pkgerrors "github.com/angelmondragon/petcare-pricing/pkg/errors"
	"github.com/angelmondragon/petcare-pricing/pkg/types"
)

const maxNameRunes = 200

type createRequest struct {
	Name             string           `json:"name" validate:"required,max=200"`
	Code             *string          `json:"code" validate:"omitempty,max=64"`
	DiscountType     string           `json:"discount_type" validate:"required"`
	DiscountValue    decimal.Decimal  `json:"discount_value"`
	MinQuantity      *int             `json:"min_quantity" validate:"omitempty,gt=0"`
	MinOrderValue    *decimal.Decimal `json:"min_order_value"`
	CustomerGroup    *string          `json:"customer_group" validate:"omitempty,max=64"`
	CustomerIDs      []uuid.UUID      `json:"customer_ids" validate:"omitempty,unique"`
	ProductIDs       []uuid.UUID      `json:"product_ids" validate:"omitempty,unique"`
	StartDate        time.Time        `json:"start_date" validate:"required"`
	EndDate          time.Time        `json:"end_date" validate:"required"`
	UsageLimit       *int             `json:"usage_limit" validate:"omitempty,gt=0"`
	PerCustomerLimit *int             `json:"per_customer_limit" validate:"omitempty,gt=0"`
	IsFlashSale      bool             `json:"is_flash_sale"`
	FlashSaleStock   *int             `json:"flash_sale_stock"`
	CanStack         bool             `json:"can_stack"`
	Priority         int              `json:"priority" validate:"gte=0"`
	IsActive         *bool            `json:"is_active"`
}

func (r createRequest) toInput(actor actorcontext.Actor) (internalpromotions.CreateInput, error) {
	discountType, err := parseDiscountType(r.DiscountType)
	if err != nil {
		return internalpromotions.CreateInput{}, err
	}
	return internalpromotions.CreateInput{
		Name:             validators.CleanText(r.Name, maxNameRunes),
		Code:             r.Code,
		DiscountType:     discountType,
		DiscountValue:    r.DiscountValue,
		MinQuantity:      r.MinQuantity,
		MinOrderValue:    r.MinOrderValue,
		CustomerGroup:    types.ScopeFromPtr(r.CustomerGroup),
		CustomerIDs:      r.CustomerIDs,
		ProductIDs:       r.ProductIDs,
		StartDate:        r.StartDate.UTC(),
		EndDate:          r.EndDate.UTC(),
		UsageLimit:       r.UsageLimit,
		PerCustomerLimit: r.PerCustomerLimit,
		IsFlashSale:      r.IsFlashSale,
		FlashSaleStock:   r.FlashSaleStock,
		CanStack:         r.CanStack,
		Priority:         r.Priority,
		IsActive:         r.IsActive,
		Actor:            internalpromotions.Actor{UserID: &actor.UserID, Role: actor.Role},
	}, nil
}

// updateRequest is a partial update. Zero clears the optional thresholds and
// limits; flash-sale stock and usage counters are not editable.
type updateRequest struct {
	Name             *string          `json:"name" validate:"omitempty,min=1,max=200"`
	Code             *string          `json:"code" validate:"omitempty,max=64"`
	ClearCode        bool             `json:"clear_code"`
	DiscountType     *string          `json:"discount_type"`
	DiscountValue    *decimal.Decimal `json:"discount_value"`
	MinQuantity      *int             `json:"min_quantity" validate:"omitempty,gte=0"`
	MinOrderValue    *decimal.Decimal `json:"min_order_value"`
	CustomerGroup    types.ScopePatch `json:"customer_group"`
	CustomerIDs      *[]uuid.UUID     `json:"customer_ids"`
	ProductIDs       *[]uuid.UUID     `json:"product_ids"`
	StartDate        *time.Time       `json:"start_date"`
	EndDate          *time.Time       `json:"end_date"`
	UsageLimit       *int             `json:"usage_limit" validate:"omitempty,gte=0"`
	PerCustomerLimit *int             `json:"per_customer_limit" validate:"omitempty,gte=0"`
	CanStack         *bool            `json:"can_stack"`
	Priority         *int             `json:"priority" validate:"omitempty,gte=0"`
	IsActive         *bool            `json:"is_active"`
}

func (r updateRequest) toInput(actor actorcontext.Actor) (internalpromotions.UpdateInput, error) {
	input := internalpromotions.UpdateInput{
		Name:             validators.CleanTextPtr(r.Name, maxNameRunes),
		Code:             r.Code,
		ClearCode:        r.ClearCode,
		DiscountValue:    r.DiscountValue,
		MinQuantity:      r.MinQuantity,
		MinOrderValue:    r.MinOrderValue,
		CustomerGroup:    r.CustomerGroup,
		CustomerIDs:      r.CustomerIDs,
		ProductIDs:       r.ProductIDs,
		StartDate:        utcPtr(r.StartDate),
		EndDate:          utcPtr(r.EndDate),
		UsageLimit:       r.UsageLimit,
		PerCustomerLimit: r.PerCustomerLimit,
		CanStack:         r.CanStack,
		Priority:         r.Priority,
		IsActive:         r.IsActive,
		Actor:            internalpromotions.Actor{UserID: &actor.UserID, Role: actor.Role},
	}
	if r.DiscountType != nil {
		discountType, err := parseDiscountType(*r.DiscountType)
		if err != nil {
			return internalpromotions.UpdateInput{}, err
		}
		input.DiscountType = &discountType
	}
	return input, nil
}

func parseDiscountType(raw string) (enums.DiscountType, error) {
	discountType, err := enums.ParseDiscountType(strings.TrimSpace(raw))
	if err != nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid discount type").
			WithDetails(map[string]string{"discount_type": "must be PERCENTAGE or FIXED_AMOUNT"})
	}
	return discountType, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
