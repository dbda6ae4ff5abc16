// Package memory is a process-local storage driver. It backs the "memory"
// storage driver and the service tests; state is lost on exit.
package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"btc-custody/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrDuplicateWallet      = errors.New("memory: wallet already exists")
	ErrDuplicateAddress     = errors.New("memory: address already exists")
	ErrDuplicateTransaction = errors.New("memory: transaction already exists")
	ErrDuplicateKey         = errors.New("memory: idempotency key already exists")
	ErrForeignTx            = errors.New("memory: transaction was not started by this store")
	ErrNotFound             = errors.New("memory: row not found")
)

// Store holds every table. Writes made through a transaction are staged
// and applied together at Commit.
type Store struct {
	mu      sync.RWMutex
	wallets map[uuid.UUID]domain.Wallet
	txs     map[string]domain.Transaction
	idemp   map[string]domain.IdempotencyLog
	audit   []domain.AuditLog
	seq     int64
}

func NewStore() *Store {
	return &Store{
		wallets: make(map[uuid.UUID]domain.Wallet),
		txs:     make(map[string]domain.Transaction),
		idemp:   make(map[string]domain.IdempotencyLog),
	}
}

// Ping implements ports.HealthChecker.
func (s *Store) Ping(_ context.Context) error { return nil }

// Name implements ports.HealthChecker.
func (s *Store) Name() string { return "memory" }

// RawUpdateWallet mutates a stored wallet without touching its integrity
// hash. It exists to simulate tampering.
func (s *Store) RawUpdateWallet(id uuid.UUID, fn func(w *domain.Wallet)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[id]
	if !ok {
		return ErrNotFound
	}
	fn(&w)
	s.wallets[id] = w
	return nil
}

// RawUpdateTransaction mutates a stored transaction in place. It exists to
// simulate tampering.
func (s *Store) RawUpdateTransaction(id string, fn func(t *domain.Transaction)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txs[id]
	if !ok {
		return ErrNotFound
	}
	fn(&t)
	s.txs[id] = t
	return nil
}

// AuditLogs returns a snapshot of persisted audit entries.
func (s *Store) AuditLogs() []domain.AuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.audit)
}

// tables is the mutable state a commit applies staged writes to.
type tables struct {
	wallets map[uuid.UUID]domain.Wallet
	txs     map[string]domain.Transaction
	idemp   map[string]domain.IdempotencyLog
	seq     int64
}

type stagedOp func(t *tables) error

// Begin implements ports.DBTransactor.
func (s *Store) Begin(_ context.Context) (pgx.Tx, error) {
	return &memTx{store: s}, nil
}

func (s *Store) commit(ops []stagedOp) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Apply to copies so a failing op leaves the store untouched.
	work := &tables{
		wallets: maps.Clone(s.wallets),
		txs:     maps.Clone(s.txs),
		idemp:   maps.Clone(s.idemp),
		seq:     s.seq,
	}
	for _, op := range ops {
		if err := op(work); err != nil {
			return err
		}
	}
	s.wallets, s.txs, s.idemp, s.seq = work.wallets, work.txs, work.idemp, work.seq
	return nil
}

// memTx stages writes for Store.commit. Only Commit and Rollback are
// meaningful; the remaining pgx.Tx methods exist to satisfy the interface.
type memTx struct {
	store  *Store
	mu     sync.Mutex
	ops    []stagedOp
	closed bool
}

func (t *memTx) stage(op stagedOp) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.ops = append(t.ops, op)
	return nil
}

func (t *memTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }

func (t *memTx) Commit(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return pgx.ErrTxClosed
	}
	t.closed = true
	ops := t.ops
	t.ops = nil
	t.mu.Unlock()

	return t.store.commit(ops)
}

func (t *memTx) Rollback(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true
	t.ops = nil
	return nil
}

func (t *memTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, errors.ErrUnsupported
}
func (t *memTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *memTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *memTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, errors.ErrUnsupported
}
func (t *memTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), errors.ErrUnsupported
}
func (t *memTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.ErrUnsupported
}
func (t *memTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (t *memTx) Conn() *pgx.Conn                                               { return nil }

func (s *Store) own(tx pgx.Tx) (*memTx, error) {
	mt, ok := tx.(*memTx)
	if !ok || mt.store != s {
		return nil, ErrForeignTx
	}
	return mt, nil
}

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
}
