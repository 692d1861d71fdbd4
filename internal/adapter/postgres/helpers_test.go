package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Strob0t/Conductor/internal/domain"
)

func TestDBErrClassifies(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", pgx.ErrNoRows, domain.ErrNotFound},
		{"unique", &pgconn.PgError{Code: pgUniqueViolation}, domain.ErrConflict},
		{"foreign key", fmt.Errorf("exec: %w", &pgconn.PgError{Code: pgForeignKeyViolation}), domain.ErrNotFound},
		{"check", &pgconn.PgError{Code: pgCheckViolation}, domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := dbErr(tt.err, "get thing %d", 7)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v in chain, got %v", tt.want, err)
			}
			if !errors.Is(err, tt.err) {
				t.Fatalf("original error lost: %v", err)
			}
		})
	}
}

func TestDBErrPassesThroughUnknown(t *testing.T) {
	base := errors.New("connection reset")
	err := dbErr(base, "list tasks")
	if !errors.Is(err, base) {
		t.Fatalf("expected base error, got %v", err)
	}
	for _, s := range []error{domain.ErrNotFound, domain.ErrConflict, domain.ErrValidation} {
		if errors.Is(err, s) {
			t.Fatalf("unexpected sentinel %v", s)
		}
	}
	if err.Error() != "list tasks: connection reset" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestExecExpectOne(t *testing.T) {
	if err := execExpectOne(pgconn.NewCommandTag("UPDATE 1"), nil, "update %s", "x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := execExpectOne(pgconn.NewCommandTag("UPDATE 0"), nil, "update %s", "x"); !isNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestValidID(t *testing.T) {
	if validID("not-a-uuid") {
		t.Fatal("malformed id accepted")
	}
	if !validID("0b7c2a4e-8c1f-4d6a-9f51-2f5b3c9e7a10") {
		t.Fatal("well-formed id rejected")
	}
}
