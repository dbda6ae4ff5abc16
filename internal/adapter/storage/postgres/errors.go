package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrDuplicate is returned when an insert hits a unique constraint:
	// a reused wallet address, transaction id or idempotency key.
	ErrDuplicate = errors.New("postgres: duplicate row")

	// ErrLockTimeout is returned when a row lock is not granted within the
	// transactor's lock_timeout.
	ErrLockTimeout = errors.New("postgres: lock timeout")
)

// mapError wraps err with op, translating the postgres codes callers act on
// into sentinel errors. The driver error stays in the chain.
func mapError(op string, err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return fmt.Errorf("%s: %w", op, err)
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return fmt.Errorf("%s: %w (%s): %w", op, ErrDuplicate, pgErr.ConstraintName, err)
	case pgerrcode.LockNotAvailable:
		return fmt.Errorf("%s: %w: %w", op, ErrLockTimeout, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
