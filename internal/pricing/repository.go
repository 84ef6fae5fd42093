package pricing

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/petcare-pricing/pkg/db/models"
	"github.com/angelmondragon/petcare-pricing/pkg/pagination"
)

// ListFilter narrows the admin price table listing.
type ListFilter struct {
	ProductID  *uuid.UUID
	ActiveOnly bool
	Page       pagination.Params
}

// Repository is the price table store. Every method honours ctx and the
// handle it was built with, so WithTx binds the whole surface to a transaction.
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

func (r *Repository) Create(ctx context.Context, table *models.PriceTable) error {
	return r.db.WithContext(ctx).Create(table).Error
}

func (r *Repository) Save(ctx context.Context, table *models.PriceTable) error {
	return r.db.WithContext(ctx).Save(table).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PriceTable, error) {
	var table models.PriceTable
	if err := r.db.WithContext(ctx).First(&table, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &table, nil
}

// ListActiveByProduct returns every active table of the product. Window and
// scope checks happen in the resolver so the ordering rules live in one place.
func (r *Repository) ListActiveByProduct(ctx context.Context, productID uuid.UUID) ([]models.PriceTable, error) {
	var rows []models.PriceTable
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND is_active = ?", productID, true).
		Find(&rows).Error
	return rows, err
}

// List returns one page of tables, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]models.PriceTable, string, error) {
	cursor, err := pagination.ParseCursor(filter.Page.Cursor)
	if err != nil {
		return nil, "", err
	}
	query := r.db.WithContext(ctx).Model(&models.PriceTable{})
	if filter.ProductID != nil {
		query = query.Where("product_id = ?", *filter.ProductID)
	}
	if filter.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}

	var rows []models.PriceTable
	if err := pagination.Newest(query, cursor, filter.Page.Limit).Find(&rows).Error; err != nil {
		return nil, "", err
	}
	rows, next := pagination.Trim(rows, filter.Page.Limit, func(row models.PriceTable) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return rows, next, nil
}

// AppendHistory inserts an audit row. There is deliberately no update or delete counterpart.
func (r *Repository) AppendHistory(ctx context.Context, entry *models.PriceHistory) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListHistory returns the audit trail of one table, most recent first.
func (r *Repository) ListHistory(ctx context.Context, tableID uuid.UUID, page pagination.Params) ([]models.PriceHistory, string, error) {
	cursor, err := pagination.ParseCursor(page.Cursor)
	if err != nil {
		return nil, "", err
	}
	query := r.db.WithContext(ctx).Where("price_table_id = ?", tableID)

	var rows []models.PriceHistory
	if err := pagination.Newest(query, cursor, page.Limit).Find(&rows).Error; err != nil {
		return nil, "", err
	}
	rows, next := pagination.Trim(rows, page.Limit, func(row models.PriceHistory) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return rows, next, nil
}
