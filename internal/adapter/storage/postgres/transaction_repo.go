package postgres

import (
	"context"
	"errors"
	"fmt"

	"btc-custody/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const txColumnList = `id, seq, wallet_id, type, amount, fee, from_address, to_address,
	balance_after, signature, previous_tx_hash, integrity_hash, status, created_at`

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// Create inserts a transaction within a database transaction and records
// the insertion sequence assigned by the database.
func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	var amounts [3]int64
	for i, v := range []uint64{t.Amount, t.Fee, t.BalanceAfter} {
		n, err := toBigint(v)
		if err != nil {
			return err
		}
		amounts[i] = n
	}

	query := `INSERT INTO transactions (id, wallet_id, type, amount, fee, from_address, to_address,
		balance_after, signature, previous_tx_hash, integrity_hash, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING seq`

	err := tx.QueryRow(ctx, query,
		t.ID, t.WalletID, string(t.Type), amounts[0], amounts[1], t.FromAddress, t.ToAddress,
		amounts[2], t.Signature, t.PreviousTxHash, t.IntegrityHash, string(t.Status), t.CreatedAt,
	).Scan(&t.Seq)
	if err != nil {
		return mapError("insert transaction", err)
	}
	return nil
}

// GetByID fetches a transaction by id.
func (r *TransactionRepo) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	query := `SELECT ` + txColumnList + ` FROM transactions WHERE id = $1`
	return scanTransaction(r.pool.QueryRow(ctx, query, id), "get transaction")
}

// LatestForWallet returns the chain head, read inside the caller's transaction.
func (r *TransactionRepo) LatestForWallet(ctx context.Context, tx pgx.Tx, walletID uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + txColumnList + ` FROM transactions WHERE wallet_id = $1
		ORDER BY created_at DESC, seq DESC LIMIT 1`
	return scanTransaction(tx.QueryRow(ctx, query, walletID), "get chain head")
}

// ListByWallet returns a wallet's transactions in chain order.
func (r *TransactionRepo) ListByWallet(ctx context.Context, walletID uuid.UUID) ([]domain.Transaction, error) {
	query := `SELECT ` + txColumnList + ` FROM transactions WHERE wallet_id = $1
		ORDER BY created_at, seq`

	rows, err := r.pool.Query(ctx, query, walletID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows, "scan transaction")
		if err != nil {
			return nil, err
		}
		txs = append(txs, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txs, nil
}

// UpdateStatus updates a transaction's status within a database transaction.
func (r *TransactionRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id string, status domain.TransactionStatus) error {
	query := `UPDATE transactions SET status = $1 WHERE id = $2`

	tag, err := tx.Exec(ctx, query, string(status), id)
	if err != nil {
		return mapError("update transaction status", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction not found: %s", id)
	}
	return nil
}

func scanTransaction(row pgx.Row, op string) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	var txType, status string
	var amount, fee, balanceAfter int64

	err := row.Scan(
		&t.ID, &t.Seq, &t.WalletID, &txType, &amount, &fee, &t.FromAddress, &t.ToAddress,
		&balanceAfter, &t.Signature, &t.PreviousTxHash, &t.IntegrityHash, &status, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, mapError(op, err)
	}

	for _, f := range []struct {
		dst *uint64
		src int64
	}{{&t.Amount, amount}, {&t.Fee, fee}, {&t.BalanceAfter, balanceAfter}} {
		if *f.dst, err = fromBigint(f.src); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	t.Type = domain.TransactionType(txType)
	t.Status = domain.TransactionStatus(status)
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}
