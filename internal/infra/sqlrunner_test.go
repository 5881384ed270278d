package infra

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

type recordingExec struct {
	queries []string
}

func (r *recordingExec) Exec(_ context.Context, query string, _ ...any) (int64, error) {
	r.queries = append(r.queries, query)
	return 1, nil
}

func (r *recordingExec) QueryRow(_ context.Context, query string, _ ...any) Row {
	r.queries = append(r.queries, query)
	return errorRow{err: errors.New("no row")}
}

func (r *recordingExec) Query(_ context.Context, query string, _ ...any) (Rows, error) {
	r.queries = append(r.queries, query)
	return nil, errors.New("no rows")
}

func TestSQLRunnerStripsMarker(t *testing.T) {
	rec := &recordingExec{}
	runner := NewSQLRunner(rec, zerolog.Nop())

	n, err := runner.Exec(context.Background(), "--sql 0b6f2f0e-8f57-4a57-9d0b-6c3e0b1d2a11\nupdate users set plan = $1;\n", "pro")
	if err != nil {
		t.Fatalf("Exec returned error: %v", err)
	}
	if n != 1 {
		t.Fatalf("rows affected = %d, want 1", n)
	}
	if len(rec.queries) != 1 || rec.queries[0] != "update users set plan = $1;" {
		t.Fatalf("unexpected query forwarded: %#v", rec.queries)
	}
}

func TestSQLRunnerRejectsMissingMarker(t *testing.T) {
	rec := &recordingExec{}
	runner := NewSQLRunner(rec, zerolog.Nop())

	if _, err := runner.Exec(context.Background(), "update users set plan = 'pro';"); err == nil {
		t.Fatal("expected error for unmarked query")
	}
	if err := runner.QueryRow(context.Background(), "--sql not-a-uuid\nselect 1;").Scan(); err == nil {
		t.Fatal("expected error for malformed marker")
	}
	if len(rec.queries) != 0 {
		t.Fatalf("unmarked queries must not reach the driver: %#v", rec.queries)
	}
}

func TestStripRowLocks(t *testing.T) {
	in := "select id from users\nwhere id = $1\nfor update;"
	want := "select id from users\nwhere id = $1"
	if got := stripRowLocks(in); got != want {
		t.Fatalf("stripRowLocks = %q, want %q", got, want)
	}
	if got := stripRowLocks("select 1"); got != "select 1" {
		t.Fatalf("stripRowLocks changed a lock-free query: %q", got)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !IsUniqueViolation(errors.New("constraint failed: UNIQUE constraint failed: purchases.external_order_id (2067)")) {
		t.Fatal("sqlite unique error not detected")
	}
	if IsUniqueViolation(errors.New("boom")) || IsUniqueViolation(nil) {
		t.Fatal("unexpected unique violation match")
	}
}
