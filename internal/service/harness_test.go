package service

import (
	"context"
	"sync"
	"testing"

	"btc-custody/internal/adapter/storage/memory"
	"btc-custody/internal/core/domain"
	"btc-custody/internal/core/ports"
	"btc-custody/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertAppError(t *testing.T, err error, expectedCode string) {
	t.Helper()
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, expectedCode, appErr.Code)
}

// mockTx implements pgx.Tx for testing
type mockTx struct{ pgx.Tx }

func (m *mockTx) Rollback(_ context.Context) error { return nil }
func (m *mockTx) Commit(_ context.Context) error   { return nil }

// recordingAudit captures audit entries synchronously.
type recordingAudit struct {
	mu      sync.Mutex
	entries []domain.AuditLog
}

func (r *recordingAudit) Log(_ context.Context, entry *domain.AuditLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
}

func (r *recordingAudit) actions() []domain.AuditAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AuditAction, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

func (r *recordingAudit) last() domain.AuditLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[len(r.entries)-1]
}

// custodyEnv wires real services over the memory store.
type custodyEnv struct {
	store     *memory.Store
	walletSvc *WalletServiceImpl
	ledger    *LedgerServiceImpl
	keys      *KeyServiceImpl
	enc       *AESEncryptionService
	integrity *SHA256IntegrityService
	signer    *ECDSASigningService
	audit     *recordingAudit
	owner     uuid.UUID
}

type envOption func(d *LedgerDeps)

func withTxRepo(wrap func(ports.TransactionRepository) ports.TransactionRepository) envOption {
	return func(d *LedgerDeps) { d.TxRepo = wrap(d.TxRepo) }
}

func withIdempotencyCache(c ports.IdempotencyCache) envOption {
	return func(d *LedgerDeps) { d.IdempotencyCache = c }
}

func newCustodyEnv(t *testing.T, opts ...envOption) *custodyEnv {
	t.Helper()

	env := &custodyEnv{
		store:     memory.NewStore(),
		keys:      newTestKeyService(),
		enc:       newTestEncryption(t),
		integrity: newTestIntegrity(t),
		signer:    NewSigningService(),
		audit:     &recordingAudit{},
		owner:     uuid.New(),
	}
	locker := NewWalletLocker()
	walletRepo := memory.NewWalletRepo(env.store)

	env.walletSvc = NewWalletService(walletRepo, env.store, env.keys, env.enc, env.integrity,
		locker, env.audit, domain.NetworkTestnet, newTestLogger())

	deps := LedgerDeps{
		WalletRepo:      walletRepo,
		TxRepo:          memory.NewTransactionRepo(env.store),
		IdempotencyRepo: memory.NewIdempotencyRepo(env.store),
		Transactor:      env.store,
		Keys:            env.keys,
		Encryption:      env.enc,
		Integrity:       env.integrity,
		Signer:          env.signer,
		Locker:          locker,
		Audit:           env.audit,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	env.ledger = NewLedgerService(deps, domain.NetworkTestnet, DefaultFeeSatoshis, newTestLogger())
	return env
}

// createWallet creates a wallet and funds it when balance > 0.
func (e *custodyEnv) createWallet(t *testing.T, storage domain.StorageType, balance uint64) *ports.CreateWalletResult {
	t.Helper()
	ctx := context.Background()

	res, err := e.walletSvc.Create(ctx, ports.CreateWalletRequest{OwnerID: e.owner, StorageType: storage})
	require.NoError(t, err)
	if balance > 0 {
		w, err := e.walletSvc.Fund(ctx, res.Wallet.ID, balance)
		require.NoError(t, err)
		res.Wallet = w
	}
	return res
}

func (e *custodyEnv) wallet(t *testing.T, id uuid.UUID) *domain.Wallet {
	t.Helper()
	w, err := memory.NewWalletRepo(e.store).GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, w)
	return w
}

func (e *custodyEnv) transactions(t *testing.T, id uuid.UUID) []domain.Transaction {
	t.Helper()
	txs, err := memory.NewTransactionRepo(e.store).ListByWallet(context.Background(), id)
	require.NoError(t, err)
	return txs
}
