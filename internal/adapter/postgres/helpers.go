package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Strob0t/Conductor/internal/domain"
)

// SQLSTATE codes translated into domain errors.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

type scannable interface {
	Scan(dest ...any) error
}

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// validID reports whether id can be bound to a UUID column. Callers answer
// ErrNotFound for malformed ids rather than sending them to the server.
func validID(id string) bool {
	return uuid.Validate(id) == nil
}

// orEmpty keeps list results from serializing as null.
func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// classify maps driver errors onto domain sentinels. It returns nil when
// err carries no domain meaning.
func classify(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return nil
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		return domain.ErrConflict
	case pgForeignKeyViolation:
		return domain.ErrNotFound
	case pgCheckViolation:
		return domain.ErrValidation
	}
	return nil
}

// dbErr prefixes err with the formatted operation and, when classify finds
// a domain meaning, wraps that sentinel too so errors.Is works on both.
func dbErr(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if sentinel := classify(err); sentinel != nil {
		return fmt.Errorf("%s: %w: %w", msg, sentinel, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// execExpectOne turns an Exec that touched no rows into ErrNotFound.
func execExpectOne(tag pgconn.CommandTag, err error, format string, args ...any) error {
	if err != nil {
		return dbErr(err, format, args...)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), domain.ErrNotFound)
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
