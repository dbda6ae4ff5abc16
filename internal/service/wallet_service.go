package service

import (
	"context"
	"fmt"
	"math/bits"
	"time"

	"btc-custody/internal/core/domain"
	"btc-custody/internal/core/ports"
	"btc-custody/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// WalletServiceImpl implements ports.WalletService.
type WalletServiceImpl struct {
	walletRepo ports.WalletRepository
	transactor ports.DBTransactor
	keys       ports.KeyService
	enc        ports.EncryptionService
	integrity  ports.IntegrityService
	locker     ports.WalletLocker
	audit      ports.AuditService
	network    domain.Network
	log        zerolog.Logger
}

// NewWalletService creates a new WalletServiceImpl.
func NewWalletService(
	walletRepo ports.WalletRepository,
	transactor ports.DBTransactor,
	keys ports.KeyService,
	enc ports.EncryptionService,
	integrity ports.IntegrityService,
	locker ports.WalletLocker,
	audit ports.AuditService,
	network domain.Network,
	log zerolog.Logger,
) *WalletServiceImpl {
	return &WalletServiceImpl{
		walletRepo: walletRepo,
		transactor: transactor,
		keys:       keys,
		enc:        enc,
		integrity:  integrity,
		locker:     locker,
		audit:      audit,
		network:    network,
		log:        log,
	}
}

// Create generates a key pair and persists a new wallet. Hot wallets keep
// an encrypted copy of the key; cold wallets return the only copy to the caller.
func (s *WalletServiceImpl) Create(ctx context.Context, req ports.CreateWalletRequest) (*ports.CreateWalletResult, error) {
	if !req.StorageType.Valid() {
		return nil, apperror.Validation("storage_type must be hot or cold")
	}

	kp, err := s.keys.Generate(s.network)
	if err != nil {
		return nil, err
	}

	now := domain.NormalizeTime(time.Now())
	w := &domain.Wallet{
		ID:           uuid.New(),
		OwnerID:      req.OwnerID,
		Address:      kp.Address,
		PublicKeyHex: kp.PublicKeyHex,
		StorageType:  req.StorageType,
		Balance:      0,
		Status:       domain.WalletStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	returned := *kp
	if w.IsHot() {
		env, err := s.enc.Encrypt(kp.PrivateKeyHex)
		if err != nil {
			return nil, err
		}
		w.SetEncryptedKey(env)
		returned = kp.Redacted()
	}
	w.IntegrityHash = s.integrity.HashWallet(w)

	if err := s.walletRepo.Create(ctx, w); err != nil {
		return nil, apperror.ErrStorageFailure(fmt.Errorf("create wallet: %w", err))
	}

	s.audit.Log(ctx, &domain.AuditLog{
		OwnerID:      &w.OwnerID,
		Action:       domain.AuditActionWalletCreated,
		ResourceType: "wallet",
		ResourceID:   w.ID.String(),
		Details:      auditDetails(map[string]string{"address": w.Address, "storage_type": string(w.StorageType)}),
		IPAddress:    req.ClientIP,
	})

	s.log.Info().
		Str("wallet_id", w.ID.String()).
		Str("owner_id", w.OwnerID.String()).
		Str("storage_type", string(w.StorageType)).
		Str("address", w.Address).
		Msg("wallet created")

	return &ports.CreateWalletResult{Wallet: w, KeyPair: returned}, nil
}

// Get returns a wallet by id.
func (s *WalletServiceImpl) Get(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	w, err := s.walletRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.ErrStorageFailure(fmt.Errorf("get wallet: %w", err))
	}
	if w == nil {
		return nil, apperror.ErrWalletNotFound()
	}
	return w, nil
}

// GetByAddress returns the wallet owning address.
func (s *WalletServiceImpl) GetByAddress(ctx context.Context, address string) (*domain.Wallet, error) {
	w, err := s.walletRepo.GetByAddress(ctx, address)
	if err != nil {
		return nil, apperror.ErrStorageFailure(fmt.Errorf("get wallet by address: %w", err))
	}
	if w == nil {
		return nil, apperror.ErrWalletNotFound()
	}
	return w, nil
}

// ListByOwner returns every wallet of ownerID, archived ones included.
func (s *WalletServiceImpl) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Wallet, error) {
	wallets, err := s.walletRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, apperror.ErrStorageFailure(fmt.Errorf("list wallets: %w", err))
	}
	return wallets, nil
}

// Verify recomputes a wallet's integrity hash. A mismatch is a finding, not an error.
func (s *WalletServiceImpl) Verify(ctx context.Context, id uuid.UUID) (*ports.WalletReport, error) {
	w, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	report := &ports.WalletReport{
		WalletID:        w.ID,
		HashValid:       s.integrity.VerifyWallet(w),
		KeyStorageValid: keyStorageConsistent(w),
		StoredHash:      w.IntegrityHash,
		ComputedHash:    s.integrity.HashWallet(w),
	}
	report.Valid = report.HashValid && report.KeyStorageValid

	if !report.Valid {
		s.reportTamper(ctx, w, map[string]any{
			"hash_valid":        report.HashValid,
			"key_storage_valid": report.KeyStorageValid,
		})
	}
	return report, nil
}

// Fund credits a simulated deposit to a wallet.
func (s *WalletServiceImpl) Fund(ctx context.Context, id uuid.UUID, amount uint64) (*domain.Wallet, error) {
	if amount == 0 {
		return nil, apperror.ErrInvalidAmount()
	}

	unlock := s.locker.Lock(id)
	defer unlock()

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrStorageFailure(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	w, err := s.walletRepo.GetByIDForUpdate(ctx, dbTx, id)
	if err != nil {
		return nil, apperror.ErrStorageFailure(fmt.Errorf("lock wallet: %w", err))
	}
	if w == nil {
		return nil, apperror.ErrWalletNotFound()
	}
	if !s.integrity.VerifyWallet(w) {
		s.reportTamper(ctx, w, map[string]any{"operation": "fund"})
		return nil, apperror.ErrIntegrityViolation()
	}

	balance, carry := bits.Add64(w.Balance, amount, 0)
	if carry != 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	w.Balance = balance
	w.UpdatedAt = time.Now().UTC()
	w.IntegrityHash = s.integrity.HashWallet(w)

	if err := s.walletRepo.Update(ctx, dbTx, w); err != nil {
		return nil, apperror.ErrStorageFailure(fmt.Errorf("update wallet: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.ErrStorageFailure(fmt.Errorf("commit tx: %w", err))
	}

	s.audit.Log(ctx, &domain.AuditLog{
		OwnerID:      &w.OwnerID,
		Action:       domain.AuditActionFund,
		ResourceType: "wallet",
		ResourceID:   w.ID.String(),
		Details:      auditDetails(map[string]uint64{"amount": amount, "balance": w.Balance}),
	})

	s.log.Info().
		Str("wallet_id", w.ID.String()).
		Uint64("amount", amount).
		Uint64("balance", w.Balance).
		Msg("wallet funded")

	return w, nil
}

// SetStatus moves a wallet through its lifecycle. Archived is terminal.
func (s *WalletServiceImpl) SetStatus(ctx context.Context, id uuid.UUID, status domain.WalletStatus) (*domain.Wallet, error) {
	switch status {
	case domain.WalletStatusActive, domain.WalletStatusFrozen, domain.WalletStatusArchived:
	default:
		return nil, apperror.Validation("status must be active, frozen or archived")
	}

	unlock := s.locker.Lock(id)
	defer unlock()

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrStorageFailure(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	w, err := s.walletRepo.GetByIDForUpdate(ctx, dbTx, id)
	if err != nil {
		return nil, apperror.ErrStorageFailure(fmt.Errorf("lock wallet: %w", err))
	}
	if w == nil {
		return nil, apperror.ErrWalletNotFound()
	}

	from := w.Status
	if !from.CanTransitionTo(status) {
		return nil, apperror.ErrInvalidStatusTransition(string(from), string(status))
	}
	w.Status = status
	w.UpdatedAt = time.Now().UTC()

	if err := s.walletRepo.Update(ctx, dbTx, w); err != nil {
		return nil, apperror.ErrStorageFailure(fmt.Errorf("update wallet: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.ErrStorageFailure(fmt.Errorf("commit tx: %w", err))
	}

	s.audit.Log(ctx, &domain.AuditLog{
		OwnerID:      &w.OwnerID,
		Action:       domain.AuditActionStatusChange,
		ResourceType: "wallet",
		ResourceID:   w.ID.String(),
		Details:      auditDetails(map[string]string{"from": string(from), "to": string(status)}),
	})

	s.log.Info().
		Str("wallet_id", w.ID.String()).
		Str("from", string(from)).
		Str("to", string(status)).
		Msg("wallet status changed")

	return w, nil
}

// keyStorageConsistent reports whether encrypted key material is present
// exactly when the wallet is hot.
func keyStorageConsistent(w *domain.Wallet) bool {
	if w.IsHot() {
		return w.EncryptedKey() != nil
	}
	return !w.HasKeyMaterial()
}

func (s *WalletServiceImpl) reportTamper(ctx context.Context, w *domain.Wallet, details map[string]any) {
	s.log.Warn().
		Str("wallet_id", w.ID.String()).
		Str("address", w.Address).
		Msg("wallet integrity check failed")

	s.audit.Log(ctx, &domain.AuditLog{
		OwnerID:      &w.OwnerID,
		Action:       domain.AuditActionTamperDetected,
		ResourceType: "wallet",
		ResourceID:   w.ID.String(),
		Details:      auditDetails(details),
	})
}
