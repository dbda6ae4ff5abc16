package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"btc-custody/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWallet(address string) *domain.Wallet {
	now := domain.NormalizeTime(time.Now())
	return &domain.Wallet{
		ID:            uuid.New(),
		OwnerID:       uuid.New(),
		Address:       address,
		PublicKeyHex:  "02aa",
		StorageType:   domain.StorageTypeCold,
		Status:        domain.WalletStatusActive,
		IntegrityHash: "h0",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func newTx(walletID uuid.UUID, id string, at time.Time) *domain.Transaction {
	return &domain.Transaction{
		ID:            id,
		WalletID:      walletID,
		Type:          domain.TransactionTypeSend,
		Amount:        1,
		FromAddress:   "a",
		ToAddress:     "b",
		Status:        domain.TransactionStatusPending,
		IntegrityHash: "hash-" + id,
		CreatedAt:     at,
	}
}

func TestWalletRepo_CreateAndGet(t *testing.T) {
	s := NewStore()
	repo := NewWalletRepo(s)
	ctx := context.Background()

	w := newWallet("addr1")
	require.NoError(t, repo.Create(ctx, w))

	got, err := repo.GetByID(ctx, w.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, w.Address, got.Address)

	got, err = repo.GetByAddress(ctx, "addr1")
	require.NoError(t, err)
	assert.Equal(t, w.ID, got.ID)

	missing, err := repo.GetByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	dup := newWallet("addr1")
	assert.ErrorIs(t, repo.Create(ctx, dup), ErrDuplicateAddress)
}

func TestWalletRepo_ReadsReturnCopies(t *testing.T) {
	s := NewStore()
	repo := NewWalletRepo(s)
	ctx := context.Background()

	w := newWallet("addr1")
	require.NoError(t, repo.Create(ctx, w))

	got, _ := repo.GetByID(ctx, w.ID)
	got.Balance = 999

	again, _ := repo.GetByID(ctx, w.ID)
	assert.Equal(t, uint64(0), again.Balance)
}

func TestWalletRepo_ListByOwner(t *testing.T) {
	s := NewStore()
	repo := NewWalletRepo(s)
	ctx := context.Background()

	owner := uuid.New()
	a, b := newWallet("a"), newWallet("b")
	a.OwnerID, b.OwnerID = owner, owner
	b.CreatedAt = a.CreatedAt.Add(time.Second)
	require.NoError(t, repo.Create(ctx, b))
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, newWallet("c")))

	list, err := repo.ListByOwner(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Address)
	assert.Equal(t, "b", list[1].Address)
}

func TestTx_CommitAppliesStagedWrites(t *testing.T) {
	s := NewStore()
	wallets, txs := NewWalletRepo(s), NewTransactionRepo(s)
	ctx := context.Background()

	w := newWallet("addr1")
	require.NoError(t, wallets.Create(ctx, w))

	tx, err := s.Begin(ctx)
	require.NoError(t, err)

	locked, err := wallets.GetByIDForUpdate(ctx, tx, w.ID)
	require.NoError(t, err)
	locked.Balance = 500
	locked.IntegrityHash = "h1"
	require.NoError(t, wallets.Update(ctx, tx, locked))

	entry := newTx(w.ID, "t1", w.CreatedAt)
	require.NoError(t, txs.Create(ctx, tx, entry))
	require.NoError(t, txs.UpdateStatus(ctx, tx, "t1", domain.TransactionStatusConfirmed))

	// Nothing is visible before commit.
	before, _ := wallets.GetByID(ctx, w.ID)
	assert.Equal(t, uint64(0), before.Balance)
	none, _ := txs.GetByID(ctx, "t1")
	assert.Nil(t, none)

	require.NoError(t, tx.Commit(ctx))
	assert.ErrorIs(t, tx.Rollback(ctx), pgx.ErrTxClosed)

	after, _ := wallets.GetByID(ctx, w.ID)
	assert.Equal(t, uint64(500), after.Balance)
	assert.Equal(t, "h1", after.IntegrityHash)

	stored, _ := txs.GetByID(ctx, "t1")
	require.NotNil(t, stored)
	assert.Equal(t, domain.TransactionStatusConfirmed, stored.Status)
	assert.Equal(t, int64(1), stored.Seq)
}

func TestTx_RollbackDiscards(t *testing.T) {
	s := NewStore()
	txs := NewTransactionRepo(s)
	ctx := context.Background()

	tx, _ := s.Begin(ctx)
	require.NoError(t, txs.Create(ctx, tx, newTx(uuid.New(), "t1", time.Now())))
	require.NoError(t, tx.Rollback(ctx))

	got, _ := txs.GetByID(ctx, "t1")
	assert.Nil(t, got)
	assert.ErrorIs(t, tx.Commit(ctx), pgx.ErrTxClosed)
	assert.ErrorIs(t, txs.Create(ctx, tx, newTx(uuid.New(), "t2", time.Now())), pgx.ErrTxClosed)
}

func TestTx_FailedCommitIsAtomic(t *testing.T) {
	s := NewStore()
	wallets, txs := NewWalletRepo(s), NewTransactionRepo(s)
	ctx := context.Background()

	w := newWallet("addr1")
	require.NoError(t, wallets.Create(ctx, w))

	tx, _ := s.Begin(ctx)
	w.Balance = 42
	require.NoError(t, wallets.Update(ctx, tx, w))
	require.NoError(t, txs.Create(ctx, tx, newTx(w.ID, "t1", time.Now())))
	require.NoError(t, txs.UpdateStatus(ctx, tx, "missing", domain.TransactionStatusFailed))

	assert.ErrorIs(t, tx.Commit(ctx), ErrNotFound)

	after, _ := wallets.GetByID(ctx, w.ID)
	assert.Equal(t, uint64(0), after.Balance)
	got, _ := txs.GetByID(ctx, "t1")
	assert.Nil(t, got)
}

func TestTransactionRepo_ChainOrder(t *testing.T) {
	s := NewStore()
	txs := NewTransactionRepo(s)
	ctx := context.Background()
	walletID := uuid.New()
	at := domain.NormalizeTime(time.Now())

	tx, _ := s.Begin(ctx)
	// Same timestamp: seq breaks the tie in insertion order.
	require.NoError(t, txs.Create(ctx, tx, newTx(walletID, "second", at.Add(time.Millisecond))))
	require.NoError(t, txs.Create(ctx, tx, newTx(walletID, "first-a", at)))
	require.NoError(t, txs.Create(ctx, tx, newTx(walletID, "first-b", at)))
	require.NoError(t, txs.Create(ctx, tx, newTx(uuid.New(), "other", at)))
	require.NoError(t, tx.Commit(ctx))

	list, err := txs.ListByWallet(ctx, walletID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "first-a", list[0].ID)
	assert.Equal(t, "first-b", list[1].ID)
	assert.Equal(t, "second", list[2].ID)

	tx2, _ := s.Begin(ctx)
	head, err := txs.LatestForWallet(ctx, tx2, walletID)
	require.NoError(t, err)
	assert.Equal(t, "second", head.ID)

	empty, err := txs.LatestForWallet(ctx, tx2, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestIdempotencyRepo_DuplicateKey(t *testing.T) {
	s := NewStore()
	repo := NewIdempotencyRepo(s)
	ctx := context.Background()

	log := &domain.IdempotencyLog{Key: "k", TransactionID: "t1", ResponseJSON: []byte(`{}`)}

	tx, _ := s.Begin(ctx)
	require.NoError(t, repo.Create(ctx, tx, log))
	require.NoError(t, tx.Commit(ctx))

	got, err := repo.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.TransactionID)

	tx2, _ := s.Begin(ctx)
	require.NoError(t, repo.Create(ctx, tx2, log))
	assert.ErrorIs(t, tx2.Commit(ctx), ErrDuplicateKey)
}

type foreignTx struct{ pgx.Tx }

func TestForeignTxRejected(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	err := NewWalletRepo(s).Update(ctx, &foreignTx{}, newWallet("a"))
	assert.True(t, errors.Is(err, ErrForeignTx))

	other, _ := NewStore().Begin(ctx)
	_, err = NewTransactionRepo(s).LatestForWallet(ctx, other, uuid.New())
	assert.ErrorIs(t, err, ErrForeignTx)
}

func TestRawUpdateAndAudit(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	w := newWallet("addr1")
	require.NoError(t, NewWalletRepo(s).Create(ctx, w))

	require.NoError(t, s.RawUpdateWallet(w.ID, func(w *domain.Wallet) { w.Balance = 7 }))
	got, _ := NewWalletRepo(s).GetByID(ctx, w.ID)
	assert.Equal(t, uint64(7), got.Balance)
	assert.Equal(t, "h0", got.IntegrityHash)

	assert.ErrorIs(t, s.RawUpdateTransaction("nope", func(*domain.Transaction) {}), ErrNotFound)

	require.NoError(t, NewAuditRepo(s).Create(ctx, &domain.AuditLog{Action: domain.AuditActionFund}))
	assert.Len(t, s.AuditLogs(), 1)
	assert.NoError(t, s.Ping(ctx))
	assert.Equal(t, "memory", s.Name())
}
