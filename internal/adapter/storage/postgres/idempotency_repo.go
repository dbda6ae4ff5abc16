package postgres

import (
	"context"
	"errors"

	"btc-custody/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// IdempotencyRepo stores completed send responses keyed by
// "<wallet_id>:<client_key>". It is the durable fallback behind the Redis
// cache; a key is written in the same transaction as the send it records.
type IdempotencyRepo struct {
	pool Pool
}

func NewIdempotencyRepo(pool Pool) *IdempotencyRepo {
	return &IdempotencyRepo{pool: pool}
}

// Create records the send result. A key that already exists fails with
// ErrDuplicate and rolls the send back with it.
func (r *IdempotencyRepo) Create(ctx context.Context, tx pgx.Tx, entry *domain.IdempotencyLog) error {
	const q = `INSERT INTO idempotency_logs (key, transaction_id, response_json, created_at)
		VALUES ($1, $2, $3, $4)`

	if _, err := tx.Exec(ctx, q, entry.Key, entry.TransactionID, entry.ResponseJSON, entry.CreatedAt); err != nil {
		return mapError("insert idempotency log", err)
	}
	return nil
}

// Get returns the stored result for key, or nil when the key is unused.
func (r *IdempotencyRepo) Get(ctx context.Context, key string) (*domain.IdempotencyLog, error) {
	const q = `SELECT key, transaction_id, response_json, created_at
		FROM idempotency_logs WHERE key = $1`

	var entry domain.IdempotencyLog
	err := r.pool.QueryRow(ctx, q, key).Scan(&entry.Key, &entry.TransactionID, &entry.ResponseJSON, &entry.CreatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, mapError("get idempotency log", err)
	}
	entry.CreatedAt = entry.CreatedAt.UTC()
	return &entry, nil
}
