package pricing

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/petcare-pricing/pkg/db/models"
	pkgerrors "github.com/angelmondragon/petcare-pricing/pkg/errors"
	"github.com/angelmondragon/petcare-pricing/pkg/logger"
	"github.com/angelmondragon/petcare-pricing/pkg/metrics"
	"github.com/angelmondragon/petcare-pricing/pkg/types"
)

// Context is the request side of a resolution. Unset scopes mean the caller
// has no value for that dimension; only wildcard tables can match them.
type Context struct {
	Channel       types.Scope
	Region        types.Scope
	CustomerGroup types.Scope
	AsOf          time.Time
}

type tableLister interface {
	ListActiveByProduct(ctx context.Context, productID uuid.UUID) ([]models.PriceTable, error)
}

// Resolver picks the single winning price table for a product in a context.
type Resolver struct {
	tables  tableLister
	metrics *metrics.PricingMetrics
	logg    *logger.Logger
	now     func() time.Time
}

func NewResolver(tables tableLister, m *metrics.PricingMetrics, logg *logger.Logger) *Resolver {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Resolver{
		tables:  tables,
		metrics: m,
		logg:    logg,
		now:     time.Now,
	}
}

// Resolve returns the winning table or a NOT_FOUND error meaning the product
// is not sellable in this context.
func (r *Resolver) Resolve(ctx context.Context, productID uuid.UUID, rc Context) (*models.PriceTable, error) {
	candidates, err := r.Candidates(ctx, productID, rc)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		r.metrics.IncResolution(metrics.OutcomeMiss)
		logCtx := r.logg.WithFields(r.logg.WithProductID(ctx, productID.String()), map[string]any{
			"channel":        rc.Channel.String(),
			"region":         rc.Region.String(),
			"customer_group": rc.CustomerGroup.String(),
		})
		r.logg.Info(logCtx, "price.resolve.miss")
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product is not priced in this context")
	}
	r.metrics.IncResolution(metrics.OutcomeHit)
	winner := candidates[0]
	return &winner, nil
}

// Candidates returns every matching table in winning order; the first entry is
// what Resolve returns.
func (r *Resolver) Candidates(ctx context.Context, productID uuid.UUID, rc Context) ([]models.PriceTable, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	asOf := rc.AsOf
	if asOf.IsZero() {
		asOf = r.now()
	}

	rows, err := r.tables.ListActiveByProduct(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load price tables")
	}

	matches := make([]models.PriceTable, 0, len(rows))
	for _, row := range rows {
		if row.ProductID != productID || !row.IsActive {
			continue
		}
		if !row.ValidAt(asOf) {
			continue
		}
		if !row.Channel.Matches(rc.Channel) || !row.Region.Matches(rc.Region) || !row.CustomerGroup.Matches(rc.CustomerGroup) {
			continue
		}
		matches = append(matches, row)
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return outranks(matches[i], matches[j])
	})
	return matches, nil
}

// outranks is a strict total order: priority, then latest start, then
// earliest creation, then id.
func outranks(a, b models.PriceTable) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.StartDate.Equal(b.StartDate) {
		return a.StartDate.After(b.StartDate)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}
