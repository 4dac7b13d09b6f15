package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	apperrors "github.com/davidleathers/coaching-backoffice/internal/domain/errors"
)

// Common repository errors
var (
	ErrNotFound     = errors.New("entity not found")
	ErrDuplicateKey = errors.New("duplicate key violation")
	ErrForeignKey   = errors.New("foreign key violation")
)

// IsForeignKeyViolation checks if the error is a foreign key constraint violation
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

// IsDuplicateKeyViolation checks if the error is a unique constraint violation
func IsDuplicateKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// IsNotFound checks if the error indicates a record was not found
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, pgx.ErrNoRows)
}

// WrapRepositoryError converts database errors into AppErrors. resource names
// the entity for not-found errors, operation describes the failed call.
func WrapRepositoryError(err error, resource, operation string) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}

	switch {
	case IsNotFound(err):
		return apperrors.NewNotFoundError(resource).WithCause(ErrNotFound)
	case IsDuplicateKeyViolation(err):
		return apperrors.NewConflictError(resource + " already exists").WithCause(errors.Join(ErrDuplicateKey, err))
	case IsForeignKeyViolation(err):
		return apperrors.NewValidationError("FOREIGN_KEY", resource+" references a missing row").WithCause(errors.Join(ErrForeignKey, err))
	default:
		return apperrors.NewPersistenceError(operation).WithCause(err)
	}
}
