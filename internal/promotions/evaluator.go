package promotions

import (
	"context"
	"fmt"
	"sort"
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
	"github.com/angelmondragon/petcare-pricing/pkg/metrics"
	"github.com/angelmondragon/petcare-pricing/pkg/money"
	"github.com/angelmondragon/petcare-pricing/pkg/outbox"
	"github.com/angelmondragon/petcare-pricing/pkg/outbox/payloads"
	"github.com/angelmondragon/petcare-pricing/pkg/types"
)

const (
	modePreview = "preview"
	modeCommit  = "commit"
)

// OrderLine is one priced line of a candidate order.
type OrderLine struct {
	ProductID uuid.UUID
	Quantity  int
	UnitPrice decimal.Decimal
}

// Order is the input to an evaluation. OrderRef is required to commit.
type Order struct {
	Lines         []OrderLine
	CustomerID    uuid.UUID
	CustomerGroup types.Scope
	PromoCode     string
	OrderRef      string
	AsOf          time.Time
}

// AppliedPromotion is one promotion that contributed to the final total.
type AppliedPromotion struct {
	PromotionID       uuid.UUID          `json:"promotion_id"`
	Name              string             `json:"name"`
	Code              *string            `json:"code,omitempty"`
	DiscountType      enums.DiscountType `json:"discount_type"`
	Exclusive         bool               `json:"exclusive"`
	Discount          decimal.Decimal    `json:"discount"`
	FlashSaleQuantity int                `json:"flash_sale_quantity,omitempty"`
	RedemptionID      *uuid.UUID         `json:"redemption_id,omitempty"`
}

// LineResult carries the per-line allocation of the applied discounts.
type LineResult struct {
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Discount  decimal.Decimal `json:"discount"`
	Total     decimal.Decimal `json:"total"`
}

// Rejection explains why a promotion is absent from the result.
type Rejection struct {
	PromotionID *uuid.UUID            `json:"promotion_id,omitempty"`
	Code        string                `json:"code,omitempty"`
	Reason      enums.RejectionReason `json:"reason"`
}

// EvaluationResult is the outcome of Preview or Evaluate. After a commit the
// applied list is authoritative: promotions that lost a concurrent race are
// listed under Rejected instead.
type EvaluationResult struct {
	Subtotal          decimal.Decimal    `json:"subtotal"`
	TotalDiscount     decimal.Decimal    `json:"total_discount"`
	FinalTotal        decimal.Decimal    `json:"final_total"`
	AppliedPromotions []AppliedPromotion `json:"applied_promotions"`
	Lines             []LineResult       `json:"lines"`
	Rejected          []Rejection        `json:"rejected"`
}

// candidate is an eligible promotion together with the order lines it targets.
type candidate struct {
	promo       models.Promotion
	lineIdx    []int
	qualifyQty int
	exclusive  bool
}

type plan struct {
	order     Order
	subtotals []decimal.Decimal
	applied   []candidate
	rejected  []Rejection
}

// Evaluator applies promotions to orders and is the only writer of usage
// counters and flash-sale stock.
type Evaluator struct {
	tx      db.TxRunner
	repo    *Repository
	guard   *StockGuard
	events  outbox.Emitter
	pricing config.PricingConfig
	metrics *metrics.PricingMetrics
	logg    *logger.Logger
	now     func() time.Time
}

func NewEvaluator(tx db.TxRunner, repo *Repository, guard *StockGuard, events outbox.Emitter, pricing config.PricingConfig, m *metrics.PricingMetrics, logg *logger.Logger) (*Evaluator, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("promotion repository required")
	}
	if guard == nil {
		return nil, fmt.Errorf("stock guard required")
	}
	if events == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Evaluator{
		tx:      tx,
		repo:    repo,
		guard:   guard,
		events:  events,
		pricing: pricing,
		metrics: m,
		logg:    logg,
		now:     time.Now,
	}, nil
}

// Preview runs eligibility, stacking and discount computation without writing.
func (e *Evaluator) Preview(ctx context.Context, order Order) (*EvaluationResult, error) {
	started := e.now()
	p, err := e.plan(ctx, order)
	if err != nil {
		return nil, err
	}
	result := e.compute(p.order, p.subtotals, p.applied)
	result.Rejected = append(result.Rejected, p.rejected...)
	e.metrics.ObserveEvaluation(modePreview, e.now().Sub(started), len(result.AppliedPromotions))
	return result, nil
}

// Evaluate previews the order and then commits every applied promotion:
// usage counters, per-customer counters and flash-sale reservations. A
// promotion whose guarded write fails is dropped and the discounts are
// recomputed without it.
func (e *Evaluator) Evaluate(ctx context.Context, order Order) (*EvaluationResult, error) {
	started := e.now()
	if strings.TrimSpace(order.OrderRef) == "" {
		return nil, validationError("order_ref", "is required to redeem promotions")
	}
	p, err := e.plan(ctx, order)
	if err != nil {
		return nil, err
	}
	p.applied = effective(e.compute(p.order, p.subtotals, p.applied), p.applied)

	var result *EvaluationResult
	err = e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := e.repo.WithTx(tx)
		guard := e.guard.WithTx(tx)

		kept := make([]candidate, 0, len(p.applied))
		dropped := make([]Rejection, 0)
		for i, cand := range p.applied {
			reason, err := e.commitOne(ctx, tx, repo, guard, fmt.Sprintf("promo_%d", i), p.order.CustomerID, cand)
			if err != nil {
				return err
			}
			if reason != "" {
				id := cand.promo.ID
				dropped = append(dropped, Rejection{PromotionID: &id, Code: codeOf(cand.promo), Reason: reason})
				e.metrics.IncDropped(string(reason))
				logCtx := e.logg.WithPromotionID(ctx, id.String())
				logCtx = e.logg.WithField(logCtx, "reason", string(reason))
				e.logg.Warn(logCtx, "promotion.flash_sale.dropped")
				continue
			}
			kept = append(kept, cand)
		}

		result = e.compute(p.order, p.subtotals, kept)
		result.Rejected = append(append(result.Rejected, p.rejected...), dropped...)

		byID := make(map[uuid.UUID]models.Promotion, len(kept))
		for _, cand := range kept {
			byID[cand.promo.ID] = cand.promo
		}
		for i := range result.AppliedPromotions {
			applied := &result.AppliedPromotions[i]
			promo := byID[applied.PromotionID]
			redemption := &models.PromotionRedemption{
				PromotionID:    applied.PromotionID,
				CustomerID:     p.order.CustomerID,
				OrderRef:       strings.TrimSpace(p.order.OrderRef),
				Quantity:       applied.FlashSaleQuantity,
				DiscountAmount: applied.Discount,
				Status:         enums.RedemptionStatusRedeemed,
			}
			if err := repo.CreateRedemption(ctx, redemption); err != nil {
				return err
			}
			id := redemption.ID
			applied.RedemptionID = &id

			if err := e.events.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventPromotionRedeemed,
				AggregateType: enums.AggregatePromotion,
				AggregateID:   applied.PromotionID,
				Data: payloads.PromotionRedeemedEvent{
					RedemptionID:   redemption.ID,
					PromotionID:    redemption.PromotionID,
					CustomerID:     redemption.CustomerID,
					OrderRef:       redemption.OrderRef,
					DiscountAmount: redemption.DiscountAmount,
					Quantity:       redemption.Quantity,
				},
			}); err != nil {
				return err
			}
			if promo.IsFlashSale {
				if err := e.emitSoldOutIfEmpty(ctx, tx, guard, promo); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, commitError(err)
	}

	e.metrics.ObserveEvaluation(modeCommit, e.now().Sub(started), len(result.AppliedPromotions))
	logCtx := e.logg.WithFields(ctx, map[string]any{
		"order_ref":      order.OrderRef,
		"customer_id":    order.CustomerID.String(),
		"applied":        len(result.AppliedPromotions),
		"rejected":       len(result.Rejected),
		"total_discount": result.TotalDiscount.String(),
	})
	e.logg.Info(logCtx, "promotion.evaluate")
	return result, nil
}

// effective keeps the candidates that produced a positive discount, so zero
// discounts never consume usage or stock.
func effective(preview *EvaluationResult, ordered []candidate) []candidate {
	applied := make(map[uuid.UUID]struct{}, len(preview.AppliedPromotions))
	for _, a := range preview.AppliedPromotions {
		applied[a.PromotionID] = struct{}{}
	}
	out := make([]candidate, 0, len(applied))
	for _, cand := range ordered {
		if _, ok := applied[cand.promo.ID]; ok {
			out = append(out, cand)
		}
	}
	return out
}

// commitOne performs the guarded writes for one promotion under its own
// savepoint. A non-empty reason means the promotion lost a race and its
// writes were rolled back.
func (e *Evaluator) commitOne(ctx context.Context, tx *gorm.DB, repo *Repository, guard *StockGuard, savepoint string, customerID uuid.UUID, cand candidate) (enums.RejectionReason, error) {
	if err := tx.SavePoint(savepoint).Error; err != nil {
		return "", err
	}
	rollback := func(reason enums.RejectionReason) (enums.RejectionReason, error) {
		if err := tx.RollbackTo(savepoint).Error; err != nil {
			return "", err
		}
		return reason, nil
	}

	ok, err := repo.IncrementUsage(ctx, cand.promo.ID)
	if err != nil {
		return "", err
	}
	if !ok {
		return rollback(enums.RejectionUsageLimitReached)
	}
	ok, err = repo.IncrementCustomerUsage(ctx, cand.promo.ID, customerID, cand.promo.PerCustomerLimit)
	if err != nil {
		return "", err
	}
	if !ok {
		return rollback(enums.RejectionCustomerLimitReached)
	}
	if cand.promo.IsFlashSale {
		ok, err = guard.TryReserve(ctx, cand.promo.ID, cand.qualifyQty)
		if err != nil {
			return "", err
		}
		if !ok {
			return rollback(enums.RejectionFlashSaleExhausted)
		}
	}
	return "", nil
}

func (e *Evaluator) emitSoldOutIfEmpty(ctx context.Context, tx *gorm.DB, guard *StockGuard, promo models.Promotion) error {
	remaining, err := guard.Remaining(ctx, promo.ID)
	if err != nil {
		return err
	}
	if remaining > 0 {
		return nil
	}
	initial := 0
	if promo.FlashSaleInitialStock != nil {
		initial = *promo.FlashSaleInitialStock
	}
	return e.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventFlashSaleSoldOut,
		AggregateType: enums.AggregatePromotion,
		AggregateID:   promo.ID,
		Data: payloads.FlashSaleSoldOutEvent{
			PromotionID:  promo.ID,
			InitialStock: initial,
			SoldOutAt:    e.now().UTC(),
		},
	})
}

// Release undoes a committed redemption for order cancellation flows: the
// flash-sale units go back to the pool and both usage counters are decremented.
func (e *Evaluator) Release(ctx context.Context, redemptionID uuid.UUID) (*models.PromotionRedemption, error) {
	var released *models.PromotionRedemption
	err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := e.repo.WithTx(tx)
		redemption, err := repo.FindRedemption(ctx, redemptionID)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "redemption not found")
			}
			return err
		}
		at := e.now().UTC()
		ok, err := repo.MarkRedemptionReleased(ctx, redemption.ID, at)
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "redemption already released")
		}
		if err := repo.DecrementUsage(ctx, redemption.PromotionID); err != nil {
			return err
		}
		if err := repo.DecrementCustomerUsage(ctx, redemption.PromotionID, redemption.CustomerID); err != nil {
			return err
		}
		if redemption.Quantity > 0 {
			if err := e.guard.WithTx(tx).Release(ctx, redemption.PromotionID, redemption.Quantity); err != nil {
				return err
			}
		}
		redemption.Status = enums.RedemptionStatusReleased
		redemption.ReleasedAt = &at
		released = redemption
		return e.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPromotionReleased,
			AggregateType: enums.AggregatePromotion,
			AggregateID:   redemption.PromotionID,
			Data: payloads.PromotionReleasedEvent{
				RedemptionID: redemption.ID,
				PromotionID:  redemption.PromotionID,
				CustomerID:   redemption.CustomerID,
				OrderRef:     redemption.OrderRef,
				Quantity:     redemption.Quantity,
			},
		})
	})
	if err != nil {
		return nil, commitError(err)
	}
	return released, nil
}

// plan runs the read-only steps: candidate lookup, eligibility, limits and
// the exclusive/stackable partition.
func (e *Evaluator) plan(ctx context.Context, order Order) (*plan, error) {
	if err := validateOrder(order); err != nil {
		return nil, err
	}
	if order.AsOf.IsZero() {
		order.AsOf = e.now()
	}

	subtotals := make([]decimal.Decimal, len(order.Lines))
	productIDs := make([]uuid.UUID, 0, len(order.Lines))
	seen := map[uuid.UUID]struct{}{}
	for i, line := range order.Lines {
		subtotals[i] = line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		if _, ok := seen[line.ProductID]; !ok {
			seen[line.ProductID] = struct{}{}
			productIDs = append(productIDs, line.ProductID)
		}
	}

	promos, err := e.repo.ListActiveForProducts(ctx, productIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load promotions")
	}

	p := &plan{order: order, subtotals: subtotals}
	code := NormalizeCode(order.PromoCode)
	var codePromo *models.Promotion
	if code != "" {
		for i := range promos {
			if promos[i].Code != nil && *promos[i].Code == code {
				codePromo = &promos[i]
				break
			}
		}
		if codePromo == nil {
			found, err := e.repo.FindByCode(ctx, code)
			switch {
			case err == nil && found.IsActive:
				// Active but targeting none of the ordered products.
				id := found.ID
				p.rejected = append(p.rejected, Rejection{PromotionID: &id, Code: code, Reason: enums.RejectionNotEligible})
			case err == nil || db.IsNotFound(err):
				p.rejected = append(p.rejected, Rejection{Code: code, Reason: enums.RejectionCodeNotFound})
			default:
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find promotion by code")
			}
		}
	}

	ids := make([]uuid.UUID, 0, len(promos))
	for _, promo := range promos {
		ids = append(ids, promo.ID)
	}
	usage, err := e.repo.CustomerUsage(ctx, order.CustomerID, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer usage")
	}

	eligible := make([]candidate, 0, len(promos))
	for _, promo := range promos {
		if promo.Code != nil && *promo.Code != code {
			continue
		}
		cand, reason := e.check(order, subtotals, promo, usage[promo.ID])
		if reason != "" {
			if promo.Code != nil {
				id := promo.ID
				p.rejected = append(p.rejected, Rejection{PromotionID: &id, Code: code, Reason: reason})
			}
			continue
		}
		eligible = append(eligible, cand)
	}

	p.applied, p.rejected = e.arrange(subtotals, eligible, p.rejected)
	return p, nil
}

// check applies the eligibility, threshold and limit filters to one promotion.
func (e *Evaluator) check(order Order, subtotals []decimal.Decimal, promo models.Promotion, customerUses int) (candidate, enums.RejectionReason) {
	if !promo.IsActive || !promo.ValidAt(order.AsOf) {
		return candidate{}, enums.RejectionNotEligible
	}
	if !promo.CustomerGroup.Matches(order.CustomerGroup) {
		return candidate{}, enums.RejectionNotEligible
	}
	if len(promo.Customers) > 0 && !containsCustomer(promo.Customers, order.CustomerID) {
		return candidate{}, enums.RejectionNotEligible
	}

	targets := map[uuid.UUID]struct{}{}
	for _, row := range promo.Products {
		targets[row.ProductID] = struct{}{}
	}
	cand := candidate{promo: promo, exclusive: !promo.CanStack}
	value := decimal.Zero
	for i, line := range order.Lines {
		if len(targets) > 0 {
			if _, ok := targets[line.ProductID]; !ok {
				continue
			}
		}
		cand.lineIdx = append(cand.lineIdx, i)
		cand.qualifyQty += line.Quantity
		value = value.Add(subtotals[i])
	}
	if len(cand.lineIdx) == 0 {
		return candidate{}, enums.RejectionNotEligible
	}
	if promo.MinQuantity != nil && cand.qualifyQty < *promo.MinQuantity {
		return candidate{}, enums.RejectionThresholdNotMet
	}
	if promo.MinOrderValue.Valid && value.LessThan(promo.MinOrderValue.Decimal) {
		return candidate{}, enums.RejectionThresholdNotMet
	}
	if promo.UsageLimit != nil && promo.UsageCount >= *promo.UsageLimit {
		return candidate{}, enums.RejectionUsageLimitReached
	}
	if promo.PerCustomerLimit != nil && customerUses >= *promo.PerCustomerLimit {
		return candidate{}, enums.RejectionCustomerLimitReached
	}
	if promo.IsFlashSale && (promo.FlashSaleStock == nil || *promo.FlashSaleStock < cand.qualifyQty) {
		return candidate{}, enums.RejectionFlashSaleExhausted
	}
	return cand, ""
}

// arrange picks at most one exclusive promotion, the one with the largest
// discount on the undiscounted order (smallest id on ties), followed by the
// stackable ones in ascending priority then id.
func (e *Evaluator) arrange(subtotals []decimal.Decimal, eligible []candidate, rejected []Rejection) ([]candidate, []Rejection) {
	var (
		winner    *candidate
		best      decimal.Decimal
		stackable []candidate
		exclusive []candidate
	)
	for _, cand := range eligible {
		if cand.exclusive {
			exclusive = append(exclusive, cand)
		} else {
			stackable = append(stackable, cand)
		}
	}
	for i := range exclusive {
		cand := exclusive[i]
		amount := e.discountFor(cand, subtotals)
		if winner == nil || amount.GreaterThan(best) || (amount.Equal(best) && cand.promo.ID.String() < winner.promo.ID.String()) {
			winner = &exclusive[i]
			best = amount
		}
	}
	for _, cand := range exclusive {
		if winner != nil && cand.promo.ID != winner.promo.ID {
			id := cand.promo.ID
			rejected = append(rejected, Rejection{PromotionID: &id, Code: codeOf(cand.promo), Reason: enums.RejectionExclusiveOutranked})
		}
	}

	sort.SliceStable(stackable, func(i, j int) bool {
		a, b := stackable[i].promo, stackable[j].promo
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.ID.String() < b.ID.String()
	})

	ordered := make([]candidate, 0, len(stackable)+1)
	if winner != nil {
		ordered = append(ordered, *winner)
	}
	return append(ordered, stackable...), rejected
}

// compute applies the ordered promotions sequentially against the running
// per-line amounts and allocates each discount across its lines.
func (e *Evaluator) compute(order Order, subtotals []decimal.Decimal, ordered []candidate) *EvaluationResult {
	running := make([]decimal.Decimal, len(subtotals))
	copy(running, subtotals)

	result := &EvaluationResult{
		Subtotal:          money.Sum(subtotals...),
		AppliedPromotions: []AppliedPromotion{},
		Rejected:          []Rejection{},
	}
	for _, cand := range ordered {
		discount := e.discountFor(cand, running)
		if !discount.IsPositive() {
			continue
		}
		weights := make([]decimal.Decimal, len(cand.lineIdx))
		for i, idx := range cand.lineIdx {
			weights[i] = running[idx]
		}
		shares := money.Allocate(discount, weights, e.pricing.MinorUnits)
		for i, idx := range cand.lineIdx {
			running[idx] = running[idx].Sub(shares[i])
		}
		applied := AppliedPromotion{
			PromotionID:  cand.promo.ID,
			Name:         cand.promo.Name,
			Code:         cand.promo.Code,
			DiscountType: cand.promo.DiscountType,
			Exclusive:    cand.exclusive,
			Discount:     money.Sum(shares...),
		}
		if cand.promo.IsFlashSale {
			applied.FlashSaleQuantity = cand.qualifyQty
		}
		result.AppliedPromotions = append(result.AppliedPromotions, applied)
	}

	result.Lines = make([]LineResult, len(order.Lines))
	for i, line := range order.Lines {
		result.Lines[i] = LineResult{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Subtotal:  subtotals[i],
			Discount:  subtotals[i].Sub(running[i]),
			Total:     running[i],
		}
	}
	result.FinalTotal = money.Sum(running...)
	result.TotalDiscount = result.Subtotal.Sub(result.FinalTotal)
	return result
}

// discountFor computes a promotion's discount against the given line amounts.
func (e *Evaluator) discountFor(cand candidate, amounts []decimal.Decimal) decimal.Decimal {
	applicable := decimal.Zero
	for _, idx := range cand.lineIdx {
		applicable = applicable.Add(amounts[idx])
	}
	if !applicable.IsPositive() {
		return decimal.Zero
	}
	switch cand.promo.DiscountType {
	case enums.DiscountTypePercentage:
		return decimal.Min(money.Round(money.Percent(applicable, cand.promo.DiscountValue), e.pricing.MinorUnits), applicable)
	case enums.DiscountTypeFixedAmount:
		return decimal.Min(cand.promo.DiscountValue, applicable)
	}
	return decimal.Zero
}

func validateOrder(order Order) error {
	fields := map[string]string{}
	if len(order.Lines) == 0 {
		fields["items"] = "at least one item is required"
	}
	if order.CustomerID == uuid.Nil {
		fields["customer_id"] = "is required"
	}
	for i, line := range order.Lines {
		key := fmt.Sprintf("items[%d]", i)
		switch {
		case line.ProductID == uuid.Nil:
			fields[key] = "product_id is required"
		case line.Quantity <= 0:
			fields[key] = "quantity must be positive"
		case line.UnitPrice.IsNegative():
			fields[key] = "unit_price must not be negative"
		}
	}
	if len(fields) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid order").WithDetails(fields)
	}
	return nil
}

func containsCustomer(rows []models.PromotionCustomer, customerID uuid.UUID) bool {
	for _, row := range rows {
		if row.CustomerID == customerID {
			return true
		}
	}
	return false
}

func codeOf(promo models.Promotion) string {
	if promo.Code == nil {
		return ""
	}
	return *promo.Code
}

func validationError(field, msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid order").WithDetails(map[string]string{field: msg})
}

func commitError(err error) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "commit promotions")
}
