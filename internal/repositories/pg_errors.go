package repositories

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"vendfleet-backend/internal/apperr"
)

// Postgres error codes that surface as typed workflow errors.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgUniqueViolation      = "23505"
	pgCheckViolation       = "23514"
	pgInvalidTextRepr      = "22P02"
	pgNumericOutOfRange    = "22003"
)

// mapError translates driver errors. what names the missing entity for
// pgx.ErrNoRows and malformed identifiers.
func mapError(err error, op, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("%s not found", what)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable, pgUniqueViolation:
			return apperr.Wrap(apperr.KindConflict, err, "concurrent modification of "+what)
		case pgCheckViolation:
			return apperr.Wrap(apperr.KindValidation, err, what+" violates "+pgErr.ConstraintName)
		case pgNumericOutOfRange:
			return apperr.Wrap(apperr.KindValidation, err, what+" has a value out of range")
		case pgInvalidTextRepr:
			return apperr.NotFound("%s not found", what)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
