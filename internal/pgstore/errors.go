package pgstore

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"barberbook/internal/domain"
)

const (
	overlapConstraint     = "bookings_no_overlap"
	idempotencyConstraint = "bookings_idempotency"

	codeExclusionViolation = "23P01"
	codeUniqueViolation    = "23505"
)

// mapWriteError turns constraint violations into domain errors.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case pgErr.Code == codeExclusionViolation:
		return domain.Errorf(domain.KindDoubleBooking, "worker already has a booking at this time")
	case pgErr.Code == codeUniqueViolation && pgErr.ConstraintName == idempotencyConstraint:
		return domain.ErrDuplicateKey
	}
	return err
}
