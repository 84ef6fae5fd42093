package promotions

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/petcare-pricing/pkg/config"
	"github.com/angelmondragon/petcare-pricing/pkg/db"
	"github.com/angelmondragon/petcare-pricing/pkg/db/models"
	"github.com/angelmondragon/petcare-pricing/pkg/enums"
	"github.com/angelmondragon/petcare-pricing/pkg/outbox"
)

type fixture struct {
	conn      *gorm.DB
	repo      *Repository
	guard     *StockGuard
	catalog   *Catalog
	evaluator *Evaluator
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:promotions_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// One connection serializes writers the way row locks do in postgres.
	sqlDB.SetMaxOpenConns(1)
	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := newTestDB(t)
	repo := NewRepository(conn)
	guard := NewStockGuard(conn, nil)
	events := outbox.NewService(outbox.NewRepository(conn), nil)
	catalog, err := NewCatalog(db.Wrap(conn), repo, events, nil)
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	evaluator, err := NewEvaluator(db.Wrap(conn), repo, guard, events, config.PricingConfig{
		StandardVATRate: decimal.NewFromInt(21),
		Currency:        "USD",
		MinorUnits:      2,
	}, nil, nil)
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}
	return &fixture{conn: conn, repo: repo, guard: guard, catalog: catalog, evaluator: evaluator}
}

// basePromotion is a running stackable 10% promotion on every product.
func basePromotion(name string) CreateInput {
	return CreateInput{
		Name:          name,
		DiscountType:  enums.DiscountTypePercentage,
		DiscountValue: decimal.NewFromInt(10),
		StartDate:     day(-1),
		EndDate:       day(1),
		CanStack:      true,
	}
}

// onPromotionRead runs fn once, on the same connection or transaction, right
// after the next query that reads the promotions table. It stands in for a
// concurrent writer landing between a read and the write that follows it.
func onPromotionRead(t *testing.T, conn *gorm.DB, fn func(tx *gorm.DB) error) {
	t.Helper()
	var fired atomic.Bool
	err := conn.Callback().Query().After("gorm:query").Register("test:on_promotion_read", func(d *gorm.DB) {
		if d.Error != nil || d.Statement.Table != "promotions" || !fired.CompareAndSwap(false, true) {
			return
		}
		if err := fn(d.Session(&gorm.Session{NewDB: true})); err != nil {
			_ = d.AddError(err)
		}
	})
	if err != nil {
		t.Fatalf("register query callback: %v", err)
	}
}

func (f *fixture) create(t *testing.T, input CreateInput) *models.Promotion {
	t.Helper()
	promo, err := f.catalog.Create(bg, input)
	if err != nil {
		t.Fatalf("create promotion %q: %v", input.Name, err)
	}
	return promo
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) *models.Promotion {
	t.Helper()
	promo, err := f.repo.FindByID(bg, id)
	if err != nil {
		t.Fatalf("reload promotion: %v", err)
	}
	return promo
}

func line(productID uuid.UUID, qty int, unit string) OrderLine {
	return OrderLine{ProductID: productID, Quantity: qty, UnitPrice: decimal.RequireFromString(unit)}
}

func order(lines ...OrderLine) Order {
	return Order{Lines: lines, CustomerID: uuid.New(), OrderRef: "ORD-" + uuid.NewString()[:8]}
}

func countRows(t *testing.T, conn *gorm.DB, model any, where string, args ...any) int64 {
	t.Helper()
	var count int64
	query := conn.Model(model)
	if where != "" {
		query = query.Where(where, args...)
	}
	if err := query.Count(&count).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return count
}

func amount(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func ptr[T any](v T) *T {
	return &v
}

func day(offset int) time.Time {
	return time.Now().UTC().Truncate(time.Second).AddDate(0, 0, offset)
}

var bg = context.Background()
