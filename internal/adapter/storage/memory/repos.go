package memory

import (
	"cmp"
	"context"
	"slices"

	"btc-custody/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// --- Wallets ---

type WalletRepo struct{ s *Store }

func NewWalletRepo(s *Store) *WalletRepo { return &WalletRepo{s: s} }

func (r *WalletRepo) Create(_ context.Context, w *domain.Wallet) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.wallets[w.ID]; ok {
		return ErrDuplicateWallet
	}
	for _, existing := range r.s.wallets {
		if existing.Address == w.Address {
			return ErrDuplicateAddress
		}
	}
	r.s.wallets[w.ID] = *w
	return nil
}

func (r *WalletRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Wallet, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	w, ok := r.s.wallets[id]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (r *WalletRepo) GetByAddress(_ context.Context, address string) (*domain.Wallet, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, w := range r.s.wallets {
		if w.Address == address {
			return &w, nil
		}
	}
	return nil, nil
}

func (r *WalletRepo) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]domain.Wallet, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Wallet
	for _, w := range r.s.wallets {
		if w.OwnerID == ownerID {
			out = append(out, w)
		}
	}
	slices.SortFunc(out, func(a, b domain.Wallet) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

// GetByIDForUpdate reads the committed row. The store has no row locks;
// callers serialize through a WalletLocker.
func (r *WalletRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error) {
	if _, err := r.s.own(tx); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *WalletRepo) Update(_ context.Context, tx pgx.Tx, w *domain.Wallet) error {
	mt, err := r.s.own(tx)
	if err != nil {
		return err
	}
	snapshot := *w
	return mt.stage(func(t *tables) error {
		cur, ok := t.wallets[snapshot.ID]
		if !ok {
			return notFound("wallet", snapshot.ID.String())
		}
		cur.Balance = snapshot.Balance
		cur.Status = snapshot.Status
		cur.TransactionCount = snapshot.TransactionCount
		cur.IntegrityHash = snapshot.IntegrityHash
		cur.UpdatedAt = snapshot.UpdatedAt
		t.wallets[snapshot.ID] = cur
		return nil
	})
}

// --- Transactions ---

type TransactionRepo struct{ s *Store }

func NewTransactionRepo(s *Store) *TransactionRepo { return &TransactionRepo{s: s} }

// Create stages the row; its Seq is assigned at commit.
func (r *TransactionRepo) Create(_ context.Context, tx pgx.Tx, txn *domain.Transaction) error {
	mt, err := r.s.own(tx)
	if err != nil {
		return err
	}
	snapshot := *txn
	return mt.stage(func(t *tables) error {
		if _, ok := t.txs[snapshot.ID]; ok {
			return ErrDuplicateTransaction
		}
		t.seq++
		snapshot.Seq = t.seq
		t.txs[snapshot.ID] = snapshot
		return nil
	})
}

func (r *TransactionRepo) GetByID(_ context.Context, id string) (*domain.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.txs[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r *TransactionRepo) LatestForWallet(_ context.Context, tx pgx.Tx, walletID uuid.UUID) (*domain.Transaction, error) {
	if _, err := r.s.own(tx); err != nil {
		return nil, err
	}
	chain := r.chain(walletID)
	if len(chain) == 0 {
		return nil, nil
	}
	return &chain[len(chain)-1], nil
}

func (r *TransactionRepo) ListByWallet(_ context.Context, walletID uuid.UUID) ([]domain.Transaction, error) {
	return r.chain(walletID), nil
}

func (r *TransactionRepo) UpdateStatus(_ context.Context, tx pgx.Tx, id string, status domain.TransactionStatus) error {
	mt, err := r.s.own(tx)
	if err != nil {
		return err
	}
	return mt.stage(func(t *tables) error {
		cur, ok := t.txs[id]
		if !ok {
			return notFound("transaction", id)
		}
		cur.Status = status
		t.txs[id] = cur
		return nil
	})
}

// chain returns walletID's transactions ordered by (created_at, seq).
func (r *TransactionRepo) chain(walletID uuid.UUID) []domain.Transaction {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Transaction
	for _, t := range r.s.txs {
		if t.WalletID == walletID {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b domain.Transaction) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Seq, b.Seq)
	})
	return out
}

// --- Idempotency ---

type IdempotencyRepo struct{ s *Store }

func NewIdempotencyRepo(s *Store) *IdempotencyRepo { return &IdempotencyRepo{s: s} }

func (r *IdempotencyRepo) Create(_ context.Context, tx pgx.Tx, log *domain.IdempotencyLog) error {
	mt, err := r.s.own(tx)
	if err != nil {
		return err
	}
	snapshot := *log
	snapshot.ResponseJSON = slices.Clone(log.ResponseJSON)
	return mt.stage(func(t *tables) error {
		if _, ok := t.idemp[snapshot.Key]; ok {
			return ErrDuplicateKey
		}
		t.idemp[snapshot.Key] = snapshot
		return nil
	})
}

func (r *IdempotencyRepo) Get(_ context.Context, key string) (*domain.IdempotencyLog, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	l, ok := r.s.idemp[key]
	if !ok {
		return nil, nil
	}
	l.ResponseJSON = slices.Clone(l.ResponseJSON)
	return &l, nil
}

// --- Audit ---

type AuditRepo struct{ s *Store }

func NewAuditRepo(s *Store) *AuditRepo { return &AuditRepo{s: s} }

func (r *AuditRepo) Create(_ context.Context, log *domain.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.audit = append(r.s.audit, *log)
	return nil
}
