package postgres

import (
	"context"
	"errors"
	"fmt"

	"btc-custody/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const walletColumnList = `id, owner_id, address, public_key_hex, storage_type,
	encrypted_private_key, key_nonce, key_auth_tag, balance, status,
	transaction_count, integrity_hash, created_at, updated_at`

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// Create inserts a new wallet into the database.
func (r *WalletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	balance, err := toBigint(w.Balance)
	if err != nil {
		return err
	}

	query := `INSERT INTO wallets (` + walletColumnList + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err = r.pool.Exec(ctx, query,
		w.ID, w.OwnerID, w.Address, w.PublicKeyHex, string(w.StorageType),
		w.EncryptedPrivateKey, w.KeyNonce, w.KeyAuthTag, balance, string(w.Status),
		w.TransactionCount, w.IntegrityHash, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return mapError("insert wallet", err)
	}
	return nil
}

// GetByID fetches a wallet by its UUID (without locking).
func (r *WalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumnList + ` FROM wallets WHERE id = $1`
	return scanWallet(r.pool.QueryRow(ctx, query, id), "get wallet by id")
}

// GetByAddress fetches a wallet by its Bitcoin address.
func (r *WalletRepo) GetByAddress(ctx context.Context, address string) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumnList + ` FROM wallets WHERE address = $1`
	return scanWallet(r.pool.QueryRow(ctx, query, address), "get wallet by address")
}

// ListByOwner returns an owner's wallets, oldest first.
func (r *WalletRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Wallet, error) {
	query := `SELECT ` + walletColumnList + ` FROM wallets WHERE owner_id = $1 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	var wallets []domain.Wallet
	for rows.Next() {
		w, err := scanWallet(rows, "scan wallet")
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallets: %w", err)
	}
	return wallets, nil
}

// GetByIDForUpdate fetches a wallet by ID with pessimistic locking.
// This MUST be called within a transaction.
func (r *WalletRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumnList + ` FROM wallets WHERE id = $1 FOR UPDATE`
	return scanWallet(tx.QueryRow(ctx, query, id), "get wallet for update")
}

// Update rewrites a wallet's mutable columns within a transaction.
func (r *WalletRepo) Update(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error {
	balance, err := toBigint(w.Balance)
	if err != nil {
		return err
	}

	query := `UPDATE wallets SET balance = $1, status = $2, transaction_count = $3,
		integrity_hash = $4, updated_at = $5 WHERE id = $6`

	tag, err := tx.Exec(ctx, query, balance, string(w.Status), w.TransactionCount,
		w.IntegrityHash, w.UpdatedAt, w.ID)
	if err != nil {
		return mapError("update wallet", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", w.ID)
	}
	return nil
}

func scanWallet(row pgx.Row, op string) (*domain.Wallet, error) {
	w := &domain.Wallet{}
	var storageType, status string
	var balance int64

	err := row.Scan(
		&w.ID, &w.OwnerID, &w.Address, &w.PublicKeyHex, &storageType,
		&w.EncryptedPrivateKey, &w.KeyNonce, &w.KeyAuthTag, &balance, &status,
		&w.TransactionCount, &w.IntegrityHash, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, mapError(op, err)
	}

	if w.Balance, err = fromBigint(balance); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	w.StorageType = domain.StorageType(storageType)
	w.Status = domain.WalletStatus(status)
	w.CreatedAt = w.CreatedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	return w, nil
}
