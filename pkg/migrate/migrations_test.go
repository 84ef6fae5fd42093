package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/petcare-pricing/pkg/migrate"
)

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one migration for %s, found %d", pattern, len(matches))
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func assertContains(t *testing.T, content string, checks []string) {
	t.Helper()
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestPriceTablesMigration(t *testing.T) {
	assertContains(t, readMigration(t, "*_create_price_tables.sql"), []string{
		"CREATE TABLE IF NOT EXISTS price_tables",
		"vat_amount NUMERIC(18,6) NOT NULL",
		"CHECK (sale_price IS NULL OR (sale_price > 0 AND sale_price <= regular_price))",
		"CREATE TABLE IF NOT EXISTS price_history",
		"CHECK (field IN ('regular_price', 'cost_price'))",
		"DROP TABLE IF EXISTS price_tables",
	})
}

func TestPromotionsMigration(t *testing.T) {
	assertContains(t, readMigration(t, "*_create_promotions.sql"), []string{
		"CREATE TABLE IF NOT EXISTS promotions",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_promotions_code",
		"flash_sale_stock >= 0 AND flash_sale_stock <= flash_sale_initial_stock",
		"CREATE TABLE IF NOT EXISTS promotion_products",
		"CREATE TABLE IF NOT EXISTS promotion_customers",
		"DROP TABLE IF EXISTS promotions",
	})
}

func TestRedemptionsAndOutboxMigrations(t *testing.T) {
	assertContains(t, readMigration(t, "*_create_promotion_redemptions.sql"), []string{
		"CREATE TABLE IF NOT EXISTS promotion_customer_usages",
		"CREATE TABLE IF NOT EXISTS promotion_redemptions",
		"CHECK (status IN ('redeemed', 'released'))",
	})
	assertContains(t, readMigration(t, "*_create_outbox.sql"), []string{
		"CREATE TABLE IF NOT EXISTS outbox_events",
		"WHERE published_at IS NULL",
		"CREATE TABLE IF NOT EXISTS outbox_dlq",
	})
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)
	path, err := migrate.CreateSQLMigration(dir, "Add Promotion Notes!", at)
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "20260302103000_add_promotion_notes.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}
	if _, err := migrate.CreateSQLMigration(dir, "add promotion notes", at); err == nil {
		t.Fatal("expected duplicate migration to fail")
	}
	if _, err := migrate.CreateSQLMigration(dir, "!!!", at); err == nil {
		t.Fatal("expected sanitized-empty name to fail")
	}
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "create_things.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := migrate.ValidateDir(dir); err == nil {
		t.Fatal("expected invalid filename error")
	}
}

func TestValidateDirRejectsUnbalancedBlocks(t *testing.T) {
	dir := t.TempDir()
	body := "-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\nSELECT 2;\n"
	if err := os.WriteFile(filepath.Join(dir, "20260302103000_broken.sql"), []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := migrate.ValidateDir(dir); err == nil {
		t.Fatal("expected unterminated statement block error")
	}
}

func TestValidateDirRejectsDuplicateVersions(t *testing.T) {
	dir := t.TempDir()
	body := []byte("-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 2;\n")
	for _, name := range []string{"20260302103000_first.sql", "20260302103000_second.sql"} {
		if err := os.WriteFile(filepath.Join(dir, name), body, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	err := migrate.ValidateDir(dir)
	if err == nil || !strings.Contains(err.Error(), "used by") {
		t.Fatalf("expected duplicate version error, got %v", err)
	}
}

func TestEmbeddedMigrationsMatchDisk(t *testing.T) {
	if err := migrate.ValidateEmbedded(); err != nil {
		t.Fatalf("embedded migrations invalid: %v", err)
	}
}

func TestParseVersion(t *testing.T) {
	if v, err := migrate.ParseVersion("20260301090000"); err != nil || v != 20260301090000 {
		t.Fatalf("unexpected parse result %d %v", v, err)
	}
	for _, raw := range []string{"", "2026", "2026030109000x"} {
		if _, err := migrate.ParseVersion(raw); err == nil {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}
}
