package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestDumpExtractsPgxDetails(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_promotions_code", TableName: "promotions", Message: "duplicate key value"}
	err := Wrap(CodeConflict, fmt.Errorf("insert: %w", pgErr), "create promotion")

	d := Dump(err)
	if d.Code != CodeConflict {
		t.Fatalf("expected conflict code, got %s", d.Code)
	}
	if d.PG == nil || d.PG.Code != "23505" || d.PG.Constraint != "ux_promotions_code" || d.PG.Table != "promotions" {
		t.Fatalf("unexpected pg fields %+v", d.PG)
	}
	if len(d.Chain) != 3 {
		t.Fatalf("expected 3 chain entries, got %d", len(d.Chain))
	}
	fields := d.Fields()
	if fields["pg_constraint"] != "ux_promotions_code" {
		t.Fatalf("expected constraint in log fields, got %v", fields)
	}
	if _, ok := fields["pg_column"]; ok {
		t.Fatalf("empty pg fields should be omitted, got %v", fields)
	}
}

func TestDumpExtractsPqDetails(t *testing.T) {
	err := Wrap(CodeDependency, &pq.Error{Code: "40001", Message: "could not serialize access"}, "commit")
	d := Dump(err)
	if d.PG == nil || d.PG.Code != "40001" {
		t.Fatalf("expected serialization failure code, got %+v", d.PG)
	}
	if !d.Retryable {
		t.Fatalf("dependency errors should be flagged retryable")
	}
}

func TestDumpPlainErrorHasNoPGFields(t *testing.T) {
	d := Dump(stdErrors.New("boom"))
	if d.PG != nil || d.Code != CodeInternal {
		t.Fatalf("unexpected dump %+v", d)
	}
	if _, ok := d.Fields()["pg_code"]; ok {
		t.Fatal("pg_code should be absent for non-database errors")
	}
}

func TestDumpNil(t *testing.T) {
	if d := Dump(nil); d.TopMessage != "" || len(d.Chain) != 0 {
		t.Fatalf("expected empty dump, got %+v", d)
	}
}
