package pricing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/petcare-pricing/pkg/config"
	"github.com/angelmondragon/petcare-pricing/pkg/db"
	"github.com/angelmondragon/petcare-pricing/pkg/db/models"
	"github.com/angelmondragon/petcare-pricing/pkg/enums"
	pkgerrors "github.com/angelmondragon/petcare-pricing/pkg/errors"
	"github.com/angelmondragon/petcare-pricing/pkg/logger"
	"github.com/angelmondragon/petcare-pricing/pkg/money"
	"github.com/angelmondragon/petcare-pricing/pkg/outbox"
	"github.com/angelmondragon/petcare-pricing/pkg/outbox/payloads"
	"github.com/angelmondragon/petcare-pricing/pkg/types"
)

const defaultChangeReason = "manual update"

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

// CreateInput holds the fields of a new price table. Nil pointers take defaults.
type CreateInput struct {
	ProductID     uuid.UUID
	Channel       types.Scope
	Region        types.Scope
	CustomerGroup types.Scope
	CostPrice     *decimal.Decimal
	RegularPrice  *decimal.Decimal
	SalePrice     *decimal.Decimal
	VATRate       *decimal.Decimal
	StartDate     *time.Time
	EndDate       *time.Time
	Priority      int
	IsActive      *bool
	Actor         Actor
}

// UpdateInput holds optional mutation values for a price table.
type UpdateInput struct {
	Channel        types.ScopePatch
	Region         types.ScopePatch
	CustomerGroup  types.ScopePatch
	CostPrice      *decimal.Decimal
	RegularPrice   *decimal.Decimal
	SalePrice      *decimal.Decimal
	ClearSalePrice bool
	VATRate        *decimal.Decimal
	StartDate      *time.Time
	EndDate        *time.Time
	ClearEndDate   bool
	Priority       *int
	IsActive       *bool
	Reason         string
	Actor          Actor
}

// Mutator is the only writer of price tables. Each write and its audit rows
// and change event share one transaction.
type Mutator struct {
	tx      db.TxRunner
	repo    *Repository
	events  outbox.Emitter
	pricing config.PricingConfig
	logg    *logger.Logger
	now     func() time.Time
}

func NewMutator(tx db.TxRunner, repo *Repository, events outbox.Emitter, pricing config.PricingConfig, logg *logger.Logger) (*Mutator, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("price table repository required")
	}
	if events == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Mutator{
		tx:      tx,
		repo:    repo,
		events:  events,
		pricing: pricing,
		logg:    logg,
		now:     time.Now,
	}, nil
}

func (m *Mutator) Create(ctx context.Context, input CreateInput) (*models.PriceTable, error) {
	if input.ProductID == uuid.Nil {
		return nil, validationError("product_id", "is required")
	}
	if input.RegularPrice == nil {
		return nil, validationError("regular_price", "is required")
	}

	table := &models.PriceTable{
		ProductID:     input.ProductID,
		Channel:       input.Channel,
		Region:        input.Region,
		CustomerGroup: input.CustomerGroup,
		CostPrice:     decimal.Zero,
		RegularPrice:  *input.RegularPrice,
		VATRate:       m.pricing.StandardVATRate,
		StartDate:     m.now().UTC(),
		EndDate:       input.EndDate,
		Priority:      input.Priority,
		IsActive:      true,
		CreatedBy:     input.Actor.UserID,
	}
	if input.CostPrice != nil {
		table.CostPrice = *input.CostPrice
	}
	if input.SalePrice != nil {
		table.SalePrice = decimal.NewNullDecimal(*input.SalePrice)
	}
	if input.VATRate != nil {
		table.VATRate = *input.VATRate
	}
	if input.StartDate != nil {
		table.StartDate = *input.StartDate
	}
	if input.IsActive != nil {
		table.IsActive = *input.IsActive
	}
	if err := m.validate(table); err != nil {
		return nil, err
	}
	derive(table)

	err := m.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := m.repo.WithTx(tx).Create(ctx, table); err != nil {
			return err
		}
		return m.emit(ctx, tx, table, enums.PriceTableCreated, input.Actor)
	})
	if err != nil {
		return nil, storageError(err, "create price table")
	}
	return table, nil
}

// Update merges input into the stored table, re-derives margin and VAT, and
// appends one history row per changed price column.
func (m *Mutator) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.PriceTable, error) {
	var updated *models.PriceTable
	err := m.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := m.repo.WithTx(tx)
		table, err := repo.FindByID(ctx, id)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "price table not found")
			}
			return err
		}
		oldCost, oldRegular := table.CostPrice, table.RegularPrice

		applyUpdate(table, input)
		if err := m.validate(table); err != nil {
			return err
		}
		derive(table)

		reason := strings.TrimSpace(input.Reason)
		if reason == "" {
			reason = defaultChangeReason
		}
		if !oldRegular.Equal(table.RegularPrice) {
			if err := repo.AppendHistory(ctx, &models.PriceHistory{
				PriceTableID: table.ID,
				Field:        enums.PriceFieldRegular,
				OldPrice:     oldRegular,
				NewPrice:     table.RegularPrice,
				ActorID:      input.Actor.UserID,
				Reason:       reason,
			}); err != nil {
				return err
			}
		}
		if !oldCost.Equal(table.CostPrice) {
			if err := repo.AppendHistory(ctx, &models.PriceHistory{
				PriceTableID: table.ID,
				Field:        enums.PriceFieldCost,
				OldPrice:     oldCost,
				NewPrice:     table.CostPrice,
				ActorID:      input.Actor.UserID,
				Reason:       reason,
			}); err != nil {
				return err
			}
		}
		if err := repo.Save(ctx, table); err != nil {
			return err
		}
		if err := m.emit(ctx, tx, table, enums.PriceTableUpdated, input.Actor); err != nil {
			return err
		}
		updated = table
		return nil
	})
	if err != nil {
		return nil, storageError(err, "update price table")
	}

	logCtx := m.logg.WithFields(ctx, map[string]any{
		"price_table_id": updated.ID.String(),
		"product_id":     updated.ProductID.String(),
		"regular_price":  updated.RegularPrice.String(),
	})
	m.logg.Info(logCtx, "price_table.updated")
	return updated, nil
}

// Delete deactivates the table. The row stays so historical orders and the
// audit trail keep resolving; deactivating twice is a no-op.
func (m *Mutator) Delete(ctx context.Context, id uuid.UUID, actor Actor) error {
	err := m.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := m.repo.WithTx(tx)
		table, err := repo.FindByID(ctx, id)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "price table not found")
			}
			return err
		}
		if !table.IsActive {
			return nil
		}
		table.IsActive = false
		if err := repo.Save(ctx, table); err != nil {
			return err
		}
		return m.emit(ctx, tx, table, enums.PriceTableDeactivated, actor)
	})
	return storageError(err, "deactivate price table")
}

func (m *Mutator) emit(ctx context.Context, tx *gorm.DB, table *models.PriceTable, change enums.PriceTableChange, actor Actor) error {
	event := payloads.PriceTableChangedEvent{
		PriceTableID:  table.ID,
		ProductID:     table.ProductID,
		Change:        change,
		Channel:       table.Channel.Ptr(),
		Region:        table.Region.Ptr(),
		CustomerGroup: table.CustomerGroup.Ptr(),
		RegularPrice:  table.RegularPrice,
		Priority:      table.Priority,
		IsActive:      table.IsActive,
	}
	if table.SalePrice.Valid {
		sale := table.SalePrice.Decimal
		event.SalePrice = &sale
	}
	return m.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPriceTableChanged,
		AggregateType: enums.AggregatePriceTable,
		AggregateID:   table.ID,
		Actor:         actor.ref(),
		Data:          event,
	})
}

func applyUpdate(table *models.PriceTable, input UpdateInput) {
	table.Channel = input.Channel.Apply(table.Channel)
	table.Region = input.Region.Apply(table.Region)
	table.CustomerGroup = input.CustomerGroup.Apply(table.CustomerGroup)
	if input.CostPrice != nil {
		table.CostPrice = *input.CostPrice
	}
	if input.RegularPrice != nil {
		table.RegularPrice = *input.RegularPrice
	}
	if input.ClearSalePrice {
		table.SalePrice = decimal.NullDecimal{}
	} else if input.SalePrice != nil {
		table.SalePrice = decimal.NewNullDecimal(*input.SalePrice)
	}
	if input.VATRate != nil {
		table.VATRate = *input.VATRate
	}
	if input.StartDate != nil {
		table.StartDate = *input.StartDate
	}
	if input.ClearEndDate {
		table.EndDate = nil
	} else if input.EndDate != nil {
		end := *input.EndDate
		table.EndDate = &end
	}
	if input.Priority != nil {
		table.Priority = *input.Priority
	}
	if input.IsActive != nil {
		table.IsActive = *input.IsActive
	}
}

// derive recomputes the reporting fields. The VAT amount is kept exact; only
// the inputs are constrained to minor units.
func derive(table *models.PriceTable) {
	table.Margin = table.RegularPrice.Sub(table.CostPrice)
	table.VATAmount = money.Percent(table.RegularPrice, table.VATRate)
}

func (m *Mutator) validate(table *models.PriceTable) error {
	fields := map[string]string{}
	minor := m.pricing.MinorUnits

	if !table.RegularPrice.IsPositive() {
		fields["regular_price"] = "must be greater than 0"
	} else if !fitsMinorUnits(table.RegularPrice, minor) {
		fields["regular_price"] = fmt.Sprintf("must have at most %d decimal places", minor)
	}
	if table.CostPrice.IsNegative() {
		fields["cost_price"] = "must be greater than or equal to 0"
	} else if !fitsMinorUnits(table.CostPrice, minor) {
		fields["cost_price"] = fmt.Sprintf("must have at most %d decimal places", minor)
	}
	if table.SalePrice.Valid {
		sale := table.SalePrice.Decimal
		switch {
		case !sale.IsPositive():
			fields["sale_price"] = "must be greater than 0"
		case !fitsMinorUnits(sale, minor):
			fields["sale_price"] = fmt.Sprintf("must have at most %d decimal places", minor)
		case table.RegularPrice.IsPositive() && sale.GreaterThan(table.RegularPrice):
			fields["sale_price"] = "must not exceed regular_price"
		}
	}
	if table.VATRate.IsNegative() || table.VATRate.GreaterThan(decimal.NewFromInt(100)) {
		fields["vat_rate"] = "must be between 0 and 100"
	} else if !fitsMinorUnits(table.VATRate, 2) {
		fields["vat_rate"] = "must have at most 2 decimal places"
	}
	if table.StartDate.IsZero() {
		fields["start_date"] = "is required"
	}
	if table.EndDate != nil && table.EndDate.Before(table.StartDate) {
		fields["end_date"] = "must not be before start_date"
	}
	if len(fields) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid price table").WithDetails(fields)
	}
	return nil
}

func fitsMinorUnits(amount decimal.Decimal, minorUnits int32) bool {
	return amount.Equal(amount.Round(minorUnits))
}

func validationError(field, msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid price table").WithDetails(map[string]string{field: msg})
}

// storageError keeps coded errors intact and marks everything else as a
// retryable storage failure: nothing from the failed unit was committed.
func storageError(err error, op string) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
