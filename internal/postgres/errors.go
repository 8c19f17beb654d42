package postgres

import (
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"

	"github.com/ariefcatur/go-marketplace-settlement/internal/orders"
)

const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeCheckViolation       = "23514"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// mapErr turns driver errors into the domain sentinels. The driver detail
// stays in the message for the server log.
func mapErr(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return errors.Wrap(orders.ErrNotFound, op)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeForeignKeyViolation:
			return errors.Wrapf(orders.ErrNotFound, "%s: %s", op, pgErr.Detail)
		case codeUniqueViolation, codeCheckViolation, codeSerializationFailure, codeDeadlockDetected:
			return errors.Wrapf(orders.ErrConflict, "%s: %s (%s)", op, pgErr.Message, pgErr.Code)
		}
	}
	return errors.Wrap(err, op)
}
