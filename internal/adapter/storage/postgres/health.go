package postgres

import (
	"context"
	"errors"
	"fmt"
)

// HealthCheck reports PostgreSQL as healthy only when it answers and the
// custody schema from migrations/ is in place.
type HealthCheck struct {
	pool Pool
}

func NewHealthCheck(pool Pool) *HealthCheck {
	return &HealthCheck{pool: pool}
}

func (h *HealthCheck) Name() string { return "postgresql" }

func (h *HealthCheck) Ping(ctx context.Context) error {
	const q = `SELECT to_regclass('wallets') IS NOT NULL AND to_regclass('transactions') IS NOT NULL`

	var migrated bool
	if err := h.pool.QueryRow(ctx, q).Scan(&migrated); err != nil {
		return fmt.Errorf("schema probe: %w", err)
	}
	if !migrated {
		return errors.New("schema not migrated")
	}
	return nil
}
