package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/petcare-pricing/pkg/config"
	"github.com/angelmondragon/petcare-pricing/pkg/db"
	"github.com/angelmondragon/petcare-pricing/pkg/db/models"
	"github.com/angelmondragon/petcare-pricing/pkg/outbox"
)

type fixture struct {
	conn     *gorm.DB
	repo     *Repository
	resolver *Resolver
	mutator  *Mutator
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:pricing_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func testPricingConfig() config.PricingConfig {
	return config.PricingConfig{
		StandardVATRate: decimal.NewFromInt(21),
		Currency:        "USD",
		MinorUnits:      2,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := newTestDB(t)
	repo := NewRepository(conn)
	events := outbox.NewService(outbox.NewRepository(conn), nil)
	mutator, err := NewMutator(db.Wrap(conn), repo, events, testPricingConfig(), nil)
	if err != nil {
		t.Fatalf("new mutator: %v", err)
	}
	return &fixture{
		conn:     conn,
		repo:     repo,
		resolver: NewResolver(repo, nil, nil),
		mutator:  mutator,
	}
}

func dec(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func ptr[T any](v T) *T {
	return &v
}

// seedTable inserts a table directly, bypassing the mutator, so tests can
// control created_at and other bookkeeping columns.
func seedTable(t *testing.T, conn *gorm.DB, table models.PriceTable) models.PriceTable {
	t.Helper()
	if table.VATRate.IsZero() {
		table.VATRate = decimal.NewFromInt(21)
	}
	if table.CostPrice.IsZero() {
		table.CostPrice = decimal.Zero
	}
	table.IsActive = true
	if err := conn.Create(&table).Error; err != nil {
		t.Fatalf("seed price table: %v", err)
	}
	return table
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

func day(offset int) time.Time {
	return time.Now().UTC().Truncate(time.Second).AddDate(0, 0, offset)
}

var bg = context.Background()
