package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
	pgErrSerialization       = "40001"
)

// Translate maps driver errors onto the shared error taxonomy. Business sentinels are
// returned untouched; every other failure is wrapped in shared.ErrPersistence so
// callers can tell storage failures apart from empty results.
func Translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, shared.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return fmt.Errorf("%s: %s: %w", op, pgErr.ConstraintName, shared.ErrConflict)
		case pgErrForeignKeyViolation:
			return fmt.Errorf("%s: %s: %w", op, pgErr.ConstraintName, shared.ErrNotFound)
		case pgErrSerialization:
			return fmt.Errorf("%s: concurrent update: %w", op, shared.ErrConflict)
		}
	}
	if shared.IsDomainError(err) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, shared.ErrPersistence, err)
}
