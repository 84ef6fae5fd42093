package pricing

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/petcare-pricing/pkg/db"
	"github.com/angelmondragon/petcare-pricing/pkg/db/models"
	pkgerrors "github.com/angelmondragon/petcare-pricing/pkg/errors"
	"github.com/angelmondragon/petcare-pricing/pkg/pagination"
)

// Service is the surface the HTTP layer consumes: storefront resolution plus
// the administrative price table operations.
type Service interface {
	Resolve(ctx context.Context, productID uuid.UUID, rc Context) (*models.PriceTable, error)
	Candidates(ctx context.Context, productID uuid.UUID, rc Context) ([]models.PriceTable, error)
	Create(ctx context.Context, input CreateInput) (*models.PriceTable, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.PriceTable, error)
	Delete(ctx context.Context, id uuid.UUID, actor Actor) error
	Get(ctx context.Context, id uuid.UUID) (*models.PriceTable, error)
	List(ctx context.Context, filter ListFilter) ([]models.PriceTable, string, error)
	History(ctx context.Context, id uuid.UUID, page pagination.Params) ([]models.PriceHistory, string, error)
}

type service struct {
	*Resolver
	*Mutator
	repo *Repository
}

// NewService constructs the pricing service.
func NewService(repo *Repository, resolver *Resolver, mutator *Mutator) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("price table repository required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("resolver required")
	}
	if mutator == nil {
		return nil, fmt.Errorf("mutator required")
	}
	return &service{Resolver: resolver, Mutator: mutator, repo: repo}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.PriceTable, error) {
	table, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "price table not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load price table")
	}
	return table, nil
}

func (s *service) List(ctx context.Context, filter ListFilter) ([]models.PriceTable, string, error) {
	if err := checkCursor(filter.Page.Cursor); err != nil {
		return nil, "", err
	}
	rows, next, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list price tables")
	}
	return rows, next, nil
}

// History returns the audit trail, most recent first. An unknown table is
// NOT_FOUND rather than an empty page.
func (s *service) History(ctx context.Context, id uuid.UUID, page pagination.Params) ([]models.PriceHistory, string, error) {
	if err := checkCursor(page.Cursor); err != nil {
		return nil, "", err
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, "", err
	}
	rows, next, err := s.repo.ListHistory(ctx, id, page)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list price history")
	}
	return rows, next, nil
}

func checkCursor(cursor string) error {
	if _, err := pagination.ParseCursor(cursor); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	return nil
}
