package postgres

import (
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	plain := errors.New("conn reset")

	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"unique violation", &pgconn.PgError{Code: pgerrcode.UniqueViolation}, ErrDuplicate},
		{"lock timeout", &pgconn.PgError{Code: pgerrcode.LockNotAvailable}, ErrLockTimeout},
		{"other pg error", &pgconn.PgError{Code: pgerrcode.CheckViolation}, nil},
		{"non pg error", plain, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapError("op", tt.err)
			assert.ErrorIs(t, err, tt.err)
			assert.ErrorContains(t, err, "op: ")
			for _, s := range []error{ErrDuplicate, ErrLockTimeout} {
				assert.Equal(t, s == tt.sentinel, errors.Is(err, s), s.Error())
			}
		})
	}
}
