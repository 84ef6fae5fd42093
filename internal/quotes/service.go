package quotes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/petcare-pricing/internal/pricing"
	"github.com/angelmondragon/petcare-pricing/internal/promotions"
	"github.com/angelmondragon/petcare-pricing/pkg/db/models"
	pkgerrors "github.com/angelmondragon/petcare-pricing/pkg/errors"
	"github.com/angelmondragon/petcare-pricing/pkg/logger"
	"github.com/angelmondragon/petcare-pricing/pkg/types"
)

type priceResolver interface {
	Resolve(ctx context.Context, productID uuid.UUID, rc pricing.Context) (*models.PriceTable, error)
}

type promotionEvaluator interface {
	Preview(ctx context.Context, order promotions.Order) (*promotions.EvaluationResult, error)
	Evaluate(ctx context.Context, order promotions.Order) (*promotions.EvaluationResult, error)
}

// Service prices a storefront cart and applies promotions to it.
type Service interface {
	Quote(ctx context.Context, req Request) (*Quote, error)
}

// Item is one requested product and quantity.
type Item struct {
	ProductID uuid.UUID
	Quantity  int
}

// Request is a storefront quote. Commit turns the quote into a redemption
// and needs OrderRef.
type Request struct {
	Items         []Item
	CustomerID    uuid.UUID
	Channel       types.Scope
	Region        types.Scope
	CustomerGroup types.Scope
	PromoCode     string
	OrderRef      string
	AsOf          time.Time
	Commit        bool
}

// PricedLine is a line that resolved to a price table.
type PricedLine struct {
	ProductID    uuid.UUID       `json:"product_id"`
	Quantity     int             `json:"quantity"`
	PriceTableID uuid.UUID       `json:"price_table_id"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	RegularPrice decimal.Decimal `json:"regular_price"`
	OnSale       bool            `json:"on_sale"`
}

// Quote is the priced cart plus the promotion outcome for the priced lines.
type Quote struct {
	Lines      []PricedLine                 `json:"lines"`
	Unpriced   []uuid.UUID                  `json:"unpriced"`
	Evaluation *promotions.EvaluationResult `json:"evaluation"`
	Committed  bool                         `json:"committed"`
}

type service struct {
	prices     priceResolver
	promotions promotionEvaluator
	logg       *logger.Logger
	now        func() time.Time
}

// NewService wires the quote flow on top of the resolver and the evaluator.
func NewService(prices priceResolver, evaluator promotionEvaluator, logg *logger.Logger) (Service, error) {
	if prices == nil {
		return nil, fmt.Errorf("price resolver required")
	}
	if evaluator == nil {
		return nil, fmt.Errorf("promotion evaluator required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{prices: prices, promotions: evaluator, logg: logg, now: time.Now}, nil
}

func (s *service) Quote(ctx context.Context, req Request) (*Quote, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = s.now().UTC()
	}
	rc := pricing.Context{
		Channel:       req.Channel,
		Region:        req.Region,
		CustomerGroup: req.CustomerGroup,
		AsOf:          asOf,
	}

	quote := &Quote{Lines: []PricedLine{}, Unpriced: []uuid.UUID{}}
	order := promotions.Order{
		CustomerID:    req.CustomerID,
		CustomerGroup: req.CustomerGroup,
		PromoCode:     req.PromoCode,
		OrderRef:      req.OrderRef,
		AsOf:          asOf,
	}
	for _, item := range req.Items {
		table, err := s.prices.Resolve(ctx, item.ProductID, rc)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				quote.Unpriced = append(quote.Unpriced, item.ProductID)
				continue
			}
			return nil, err
		}
		unit := table.EffectivePrice()
		quote.Lines = append(quote.Lines, PricedLine{
			ProductID:    item.ProductID,
			Quantity:     item.Quantity,
			PriceTableID: table.ID,
			UnitPrice:    unit,
			RegularPrice: table.RegularPrice,
			OnSale:       !unit.Equal(table.RegularPrice),
		})
		order.Lines = append(order.Lines, promotions.OrderLine{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: unit,
		})
	}

	if len(order.Lines) == 0 {
		quote.Evaluation = &promotions.EvaluationResult{
			AppliedPromotions: []promotions.AppliedPromotion{},
			Lines:             []promotions.LineResult{},
			Rejected:          []promotions.Rejection{},
		}
		return quote, nil
	}

	var err error
	if req.Commit {
		quote.Evaluation, err = s.promotions.Evaluate(ctx, order)
		quote.Committed = err == nil
	} else {
		quote.Evaluation, err = s.promotions.Preview(ctx, order)
	}
	if err != nil {
		return nil, err
	}
	if len(quote.Unpriced) > 0 {
		logCtx := s.logg.WithField(ctx, "unpriced", len(quote.Unpriced))
		s.logg.Warn(logCtx, "quote.unpriced_lines")
	}
	return quote, nil
}

func validate(req Request) error {
	fields := map[string]string{}
	if len(req.Items) == 0 {
		fields["items"] = "at least one item is required"
	}
	if req.CustomerID == uuid.Nil {
		fields["customer_id"] = "is required"
	}
	if req.Commit && strings.TrimSpace(req.OrderRef) == "" {
		fields["order_ref"] = "is required to commit a quote"
	}
	for i, item := range req.Items {
		key := fmt.Sprintf("items[%d]", i)
		if item.ProductID == uuid.Nil {
			fields[key] = "product_id is required"
		} else if item.Quantity <= 0 {
			fields[key] = "quantity must be positive"
		}
	}
	if len(fields) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid quote").WithDetails(fields)
	}
	return nil
}
