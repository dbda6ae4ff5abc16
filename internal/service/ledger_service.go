package service

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/bits"
	"slices"
	"time"

	"btc-custody/internal/core/domain"
	"btc-custody/internal/core/ports"
	"btc-custody/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const (
	idempotencyTTL = 24 * time.Hour
	txIDLen        = 32

	// DefaultFeeSatoshis is the simulated network fee charged per send.
	DefaultFeeSatoshis uint64 = 10000
)

// LedgerDeps groups the collaborators of LedgerServiceImpl.
// IdempotencyCache and Audit may be nil.
type LedgerDeps struct {
	WalletRepo       ports.WalletRepository
	TxRepo           ports.TransactionRepository
	IdempotencyRepo  ports.IdempotencyRepository
	IdempotencyCache ports.IdempotencyCache
	Transactor       ports.DBTransactor
	Keys             ports.KeyService
	Encryption       ports.EncryptionService
	Integrity        ports.IntegrityService
	Signer           ports.SigningService
	Locker           ports.WalletLocker
	Audit            ports.AuditService
}

// LedgerServiceImpl implements ports.LedgerService.
type LedgerServiceImpl struct {
	walletRepo ports.WalletRepository
	txRepo     ports.TransactionRepository
	idempRepo  ports.IdempotencyRepository
	idempCache ports.IdempotencyCache
	transactor ports.DBTransactor
	keys       ports.KeyService
	enc        ports.EncryptionService
	integrity  ports.IntegrityService
	signer     ports.SigningService
	locker     ports.WalletLocker
	audit      ports.AuditService
	network    domain.Network
	fee        uint64
	log        zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl.
func NewLedgerService(deps LedgerDeps, network domain.Network, fee uint64, log zerolog.Logger) *LedgerServiceImpl {
	return &LedgerServiceImpl{
		walletRepo: deps.WalletRepo,
		txRepo:     deps.TxRepo,
		idempRepo:  deps.IdempotencyRepo,
		idempCache: deps.IdempotencyCache,
		transactor: deps.Transactor,
		keys:       deps.Keys,
		enc:        deps.Encryption,
		integrity:  deps.Integrity,
		signer:     deps.Signer,
		locker:     deps.Locker,
		audit:      deps.Audit,
		network:    network,
		fee:        fee,
		log:        log,
	}
}

// Send transfers amount from a wallet to toAddress, charging the configured fee.
// Rejected sends persist nothing and leave an audit entry.
func (s *LedgerServiceImpl) Send(ctx context.Context, req ports.SendRequest) (*ports.SendResult, error) {
	result, err := s.send(ctx, req)
	if err != nil {
		s.logAudit(ctx, &domain.AuditLog{
			Action:       domain.AuditActionSendRejected,
			ResourceType: "wallet",
			ResourceID:   req.WalletID.String(),
			Details: auditDetails(map[string]any{
				"to_address": req.ToAddress,
				"amount":     req.Amount,
				"error_code": errorCode(err),
			}),
			IPAddress: req.ClientIP,
		})
		return nil, err
	}
	return result, nil
}

func (s *LedgerServiceImpl) send(ctx context.Context, req ports.SendRequest) (*ports.SendResult, error) {
	if req.Amount == 0 {
		return nil, apperror.ErrInvalidAmount()
	}

	var idempKey string
	if req.IdempotencyKey != "" {
		idempKey = domain.BuildIdempotencyKey(req.WalletID, req.IdempotencyKey)
		if res, err := s.replay(ctx, idempKey, req, true); res != nil || err != nil {
			return res, err
		}
	}

	// Unlocked reads: enough to validate the request and to learn which
	// wallets must be locked.
	sender, err := s.walletRepo.GetByID(ctx, req.WalletID)
	if err != nil {
		return nil, apperror.ErrStorageFailure(fmt.Errorf("get sender: %w", err))
	}
	if sender == nil || !sender.IsActive() {
		return nil, apperror.ErrWalletNotFound()
	}
	if err := s.keys.ValidateAddress(req.ToAddress, s.network); err != nil {
		return nil, err
	}
	if req.ToAddress == sender.Address {
		return nil, apperror.ErrSelfTransferRejected()
	}
	recipient, err := s.walletRepo.GetByAddress(ctx, req.ToAddress)
	if err != nil {
		return nil, apperror.ErrStorageFailure(fmt.Errorf("get recipient: %w", err))
	}

	lockIDs := []uuid.UUID{sender.ID}
	if recipient != nil {
		lockIDs = append(lockIDs, recipient.ID)
	}
	unlock := s.locker.Lock(lockIDs...)
	defer unlock()

	// A concurrent request with the same key may have finished while we waited.
	if idempKey != "" {
		if res, err := s.replay(ctx, idempKey, req, false); res != nil || err != nil {
			return res, err
		}
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrStorageFailure(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	locked, err := s.lockWallets(ctx, dbTx, lockIDs)
	if err != nil {
		return nil, err
	}

	sender = locked[sender.ID]
	if sender == nil || !sender.IsActive() {
		return nil, apperror.ErrWalletNotFound()
	}
	if !s.integrity.VerifyWallet(sender) {
		s.reportWalletTamper(ctx, sender, "send")
		return nil, apperror.ErrIntegrityViolation()
	}
	if recipient != nil {
		recipient = locked[recipient.ID]
		if recipient == nil {
			return nil, apperror.ErrStorageFailure(errors.New("recipient vanished while locked"))
		}
		if !s.integrity.VerifyWallet(recipient) {
			s.reportWalletTamper(ctx, recipient, "receive")
			return nil, apperror.ErrIntegrityViolation()
		}
	}

	total, carry := bits.Add64(req.Amount, s.fee, 0)
	if carry != 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if sender.Balance < total {
		return nil, apperror.ErrInsufficientBalance()
	}

	privateKeyHex, err := s.signingKey(sender, req.PrivateKey)
	if err != nil {
		return nil, err
	}

	senderHead, err := s.txRepo.LatestForWallet(ctx, dbTx, sender.ID)
	if err != nil {
		return nil, apperror.ErrStorageFailure(fmt.Errorf("sender chain head: %w", err))
	}
	var recipientHead *domain.Transaction
	if recipient != nil {
		recipientHead, err = s.txRepo.LatestForWallet(ctx, dbTx, recipient.ID)
		if err != nil {
			return nil, apperror.ErrStorageFailure(fmt.Errorf("recipient chain head: %w", err))
		}
	}

	createdAt := chainTime(time.Now(), senderHead, recipientHead)
	sig, err := s.signer.Sign(privateKeyHex, domain.SigningPayload(sender.Address, req.ToAddress, req.Amount, createdAt))
	if err != nil {
		if apperror.HasCode(err, apperror.CodeSigningFailure) {
			return nil, err
		}
		return nil, apperror.ErrSigningFailure(err)
	}

	sendTx, err := s.appendEntry(ctx, dbTx, &domain.Transaction{
		WalletID:     sender.ID,
		Type:         domain.TransactionTypeSend,
		Amount:       req.Amount,
		Fee:          s.fee,
		FromAddress:  sender.Address,
		ToAddress:    req.ToAddress,
		BalanceAfter: sender.Balance - total,
		Signature:    sig.Signature,
		CreatedAt:    createdAt,
	}, senderHead)
	if err != nil {
		return nil, err
	}
	if err := s.applyBalance(ctx, dbTx, sender, sendTx.BalanceAfter); err != nil {
		return nil, err
	}

	var receiveTx *domain.Transaction
	if recipient != nil {
		credited, carry := bits.Add64(recipient.Balance, req.Amount, 0)
		if carry != 0 {
			return nil, apperror.ErrInvalidAmount()
		}
		receiveTx, err = s.appendEntry(ctx, dbTx, &domain.Transaction{
			WalletID:     recipient.ID,
			Type:         domain.TransactionTypeReceive,
			Amount:       req.Amount,
			Fee:          0,
			FromAddress:  sender.Address,
			ToAddress:    req.ToAddress,
			BalanceAfter: credited,
			Signature:    sig.Signature,
			CreatedAt:    createdAt,
		}, recipientHead)
		if err != nil {
			return nil, err
		}
		if err := s.applyBalance(ctx, dbTx, recipient, credited); err != nil {
			return nil, err
		}
	}

	result := &ports.SendResult{
		Transaction:   *sendTx,
		Received:      receiveTx,
		SenderBalance: sender.Balance,
	}

	var respJSON []byte
	if idempKey != "" {
		respJSON, err = json.Marshal(result)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("marshal response: %w", err))
		}
		if err := s.idempRepo.Create(ctx, dbTx, &domain.IdempotencyLog{
			Key:           idempKey,
			TransactionID: sendTx.ID,
			ResponseJSON:  respJSON,
			CreatedAt:     createdAt,
		}); err != nil {
			return nil, apperror.ErrStorageFailure(fmt.Errorf("save idempotency log: %w", err))
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.ErrStorageFailure(fmt.Errorf("commit tx: %w", err))
	}

	// Post-process: cache in Redis (best-effort)
	if idempKey != "" && s.idempCache != nil {
		if err := s.idempCache.Set(ctx, idempKey, respJSON, idempotencyTTL); err != nil {
			s.log.Warn().Err(err).Str("key", idempKey).Msg("failed to cache idempotency in redis")
		}
	}

	s.logAudit(ctx, &domain.AuditLog{
		OwnerID:      &sender.OwnerID,
		Action:       domain.AuditActionSend,
		ResourceType: "transaction",
		ResourceID:   sendTx.ID,
		Details: auditDetails(map[string]any{
			"wallet_id":  sender.ID,
			"to_address": req.ToAddress,
			"amount":     req.Amount,
			"fee":        s.fee,
			"internal":   receiveTx != nil,
		}),
		IPAddress: req.ClientIP,
	})

	s.log.Info().
		Str("tx_id", sendTx.ID).
		Str("wallet_id", sender.ID.String()).
		Str("storage_type", string(sender.StorageType)).
		Uint64("amount", req.Amount).
		Uint64("fee", s.fee).
		Uint64("balance_after", sender.Balance).
		Bool("internal", receiveTx != nil).
		Msg("send processed")

	return result, nil
}

// replay returns a stored result for key, consulting Redis first when useCache is set.
// replay returns the stored result for key, or nil when the key is unused.
// A stored send to another address or for another amount is a conflict.
func (s *LedgerServiceImpl) replay(ctx context.Context, key string, req ports.SendRequest, useCache bool) (*ports.SendResult, error) {
	var stored []byte
	if useCache && s.idempCache != nil {
		cached, err := s.idempCache.Get(ctx, key)
		if err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("redis idempotency check failed, falling through to DB")
		}
		stored = cached
	}

	if stored == nil {
		idempLog, err := s.idempRepo.Get(ctx, key)
		if err != nil {
			return nil, apperror.ErrStorageFailure(fmt.Errorf("db idempotency check: %w", err))
		}
		if idempLog == nil {
			return nil, nil
		}
		stored = idempLog.ResponseJSON
	}

	res, err := decodeSendResult(stored)
	if err != nil {
		return nil, err
	}
	if res.Transaction.ToAddress != req.ToAddress || res.Transaction.Amount != req.Amount {
		s.log.Warn().Str("key", key).Msg("idempotency key reused for a different send")
		return nil, apperror.ErrIdempotencyConflict()
	}
	return res, nil
}

func decodeSendResult(data []byte) (*ports.SendResult, error) {
	var res ports.SendResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unmarshal cached send: %w", err))
	}
	return &res, nil
}

// lockWallets takes row locks in ascending id order, matching WalletLocker.
func (s *LedgerServiceImpl) lockWallets(ctx context.Context, dbTx pgx.Tx, ids []uuid.UUID) (map[uuid.UUID]*domain.Wallet, error) {
	ordered := slices.Clone(ids)
	slices.SortFunc(ordered, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })

	locked := make(map[uuid.UUID]*domain.Wallet, len(ordered))
	for _, id := range ordered {
		w, err := s.walletRepo.GetByIDForUpdate(ctx, dbTx, id)
		if err != nil {
			return nil, apperror.ErrStorageFailure(fmt.Errorf("lock wallet %s: %w", id, err))
		}
		locked[id] = w
	}
	return locked, nil
}

// signingKey resolves the private key that authorizes a send from w.
func (s *LedgerServiceImpl) signingKey(w *domain.Wallet, supplied string) (string, error) {
	if w.IsHot() {
		privateKeyHex, err := s.enc.Decrypt(w.EncryptedKey())
		if err != nil {
			return "", err
		}
		if !s.keys.ValidateAgainstAddress(privateKeyHex, w.Address) {
			return "", apperror.ErrSigningFailure(errors.New("stored key does not control wallet address"))
		}
		return privateKeyHex, nil
	}

	if supplied == "" {
		return "", apperror.ErrInvalidPrivateKey()
	}
	privateKeyHex, err := s.keys.ParsePrivateKey(supplied)
	if err != nil {
		return "", apperror.ErrInvalidPrivateKey()
	}
	if !s.keys.ValidateAgainstAddress(privateKeyHex, w.Address) {
		return "", apperror.ErrInvalidPrivateKey()
	}
	return privateKeyHex, nil
}

// appendEntry links t to head, hashes and stores it, then confirms it.
func (s *LedgerServiceImpl) appendEntry(ctx context.Context, dbTx pgx.Tx, t *domain.Transaction, head *domain.Transaction) (*domain.Transaction, error) {
	id, err := newTransactionID()
	if err != nil {
		return nil, err
	}
	t.ID = id
	t.Status = domain.TransactionStatusPending
	if head != nil {
		prev := head.IntegrityHash
		t.PreviousTxHash = &prev
	}
	t.IntegrityHash = s.integrity.HashTransaction(t)

	if err := s.txRepo.Create(ctx, dbTx, t); err != nil {
		return nil, apperror.ErrStorageFailure(fmt.Errorf("create %s transaction: %w", t.Type, err))
	}
	// Simulated instant confirmation.
	if err := s.txRepo.UpdateStatus(ctx, dbTx, t.ID, domain.TransactionStatusConfirmed); err != nil {
		return nil, apperror.ErrStorageFailure(fmt.Errorf("confirm %s transaction: %w", t.Type, err))
	}
	t.Status = domain.TransactionStatusConfirmed
	return t, nil
}

// applyBalance sets a locked wallet's balance, bumps its count and rehashes it.
func (s *LedgerServiceImpl) applyBalance(ctx context.Context, dbTx pgx.Tx, w *domain.Wallet, balance uint64) error {
	w.Balance = balance
	w.TransactionCount++
	w.UpdatedAt = time.Now().UTC()
	w.IntegrityHash = s.integrity.HashWallet(w)

	if err := s.walletRepo.Update(ctx, dbTx, w); err != nil {
		return apperror.ErrStorageFailure(fmt.Errorf("update wallet %s: %w", w.ID, err))
	}
	return nil
}

// VerifyChain walks a wallet's transactions in chain order. Findings are
// reported per entry; a broken entry taints every entry after it.
func (s *LedgerServiceImpl) VerifyChain(ctx context.Context, walletID uuid.UUID) (*ports.ChainReport, error) {
	w, err := s.getWallet(ctx, walletID)
	if err != nil {
		return nil, err
	}

	txs, err := s.txRepo.ListByWallet(ctx, w.ID)
	if err != nil {
		return nil, apperror.ErrStorageFailure(fmt.Errorf("list transactions: %w", err))
	}

	report := &ports.ChainReport{
		WalletID: w.ID,
		Valid:    true,
		Length:   len(txs),
		Entries:  make([]ports.ChainEntry, 0, len(txs)),
	}

	firstBroken := -1
	prevChainValid := true
	for i := range txs {
		t := &txs[i]

		var linkValid bool
		if i == 0 {
			linkValid = t.PreviousTxHash == nil
		} else {
			linkValid = t.PreviousTxHash != nil && *t.PreviousTxHash == txs[i-1].IntegrityHash
		}
		integrityValid := s.integrity.VerifyTransaction(t)
		chainValid := prevChainValid && integrityValid && linkValid

		report.Entries = append(report.Entries, ports.ChainEntry{
			Index:          i,
			TransactionID:  t.ID,
			IntegrityValid: integrityValid,
			LinkValid:      linkValid,
			ChainValid:     chainValid,
		})

		if !chainValid && firstBroken < 0 {
			firstBroken = i
			report.Valid = false
		}
		prevChainValid = chainValid
	}

	if !report.Valid {
		s.log.Warn().
			Str("wallet_id", w.ID.String()).
			Int("first_broken", firstBroken).
			Int("length", len(txs)).
			Msg("transaction chain verification failed")

		s.logAudit(ctx, &domain.AuditLog{
			OwnerID:      &w.OwnerID,
			Action:       domain.AuditActionTamperDetected,
			ResourceType: "chain",
			ResourceID:   w.ID.String(),
			Details:      auditDetails(map[string]int{"first_broken": firstBroken, "length": len(txs)}),
		})
	}

	return report, nil
}

// VerifyTransaction checks one transaction's integrity hash and signature.
// The signature is checked against the wallet owning FromAddress.
func (s *LedgerServiceImpl) VerifyTransaction(ctx context.Context, txID string) (*ports.TransactionReport, error) {
	t, err := s.GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}

	report := &ports.TransactionReport{
		TransactionID:  t.ID,
		IntegrityValid: s.integrity.VerifyTransaction(t),
	}

	signer, err := s.walletRepo.GetByAddress(ctx, t.FromAddress)
	if err != nil {
		return nil, apperror.ErrStorageFailure(fmt.Errorf("get signing wallet: %w", err))
	}
	if signer != nil {
		report.SignatureValid = s.signer.Verify(signer.PublicKeyHex, t.Signature, domain.TransactionSigningPayload(t))
	}

	if !report.IntegrityValid || !report.SignatureValid {
		s.logAudit(ctx, &domain.AuditLog{
			Action:       domain.AuditActionTamperDetected,
			ResourceType: "transaction",
			ResourceID:   t.ID,
			Details: auditDetails(map[string]bool{
				"integrity_valid": report.IntegrityValid,
				"signature_valid": report.SignatureValid,
			}),
		})
	}

	return report, nil
}

// ListTransactions returns a wallet's transactions in chain order.
func (s *LedgerServiceImpl) ListTransactions(ctx context.Context, walletID uuid.UUID) ([]domain.Transaction, error) {
	if _, err := s.getWallet(ctx, walletID); err != nil {
		return nil, err
	}
	txs, err := s.txRepo.ListByWallet(ctx, walletID)
	if err != nil {
		return nil, apperror.ErrStorageFailure(fmt.Errorf("list transactions: %w", err))
	}
	return txs, nil
}

// GetTransaction returns a transaction by id.
func (s *LedgerServiceImpl) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	t, err := s.txRepo.GetByID(ctx, txID)
	if err != nil {
		return nil, apperror.ErrStorageFailure(fmt.Errorf("get transaction: %w", err))
	}
	if t == nil {
		return nil, apperror.ErrTransactionNotFound()
	}
	return t, nil
}

// UpdateStatus moves a pending transaction to confirmed or failed.
func (s *LedgerServiceImpl) UpdateStatus(ctx context.Context, txID string, status domain.TransactionStatus) (*domain.Transaction, error) {
	t, err := s.GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}

	unlock := s.locker.Lock(t.WalletID)
	defer unlock()

	// Re-read under the lock; the status may have moved while we waited.
	t, err = s.GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	if !t.Status.CanTransitionTo(status) {
		return nil, apperror.ErrInvalidTransactionStatus(string(t.Status), string(status))
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrStorageFailure(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.txRepo.UpdateStatus(ctx, dbTx, t.ID, status); err != nil {
		return nil, apperror.ErrStorageFailure(fmt.Errorf("update status: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.ErrStorageFailure(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("tx_id", t.ID).
		Str("from", string(t.Status)).
		Str("to", string(status)).
		Msg("transaction status changed")

	t.Status = status
	return t, nil
}

func (s *LedgerServiceImpl) getWallet(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	w, err := s.walletRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.ErrStorageFailure(fmt.Errorf("get wallet: %w", err))
	}
	if w == nil {
		return nil, apperror.ErrWalletNotFound()
	}
	return w, nil
}

func (s *LedgerServiceImpl) reportWalletTamper(ctx context.Context, w *domain.Wallet, operation string) {
	s.log.Warn().
		Str("wallet_id", w.ID.String()).
		Str("operation", operation).
		Msg("wallet integrity check failed, refusing to mutate")

	s.logAudit(ctx, &domain.AuditLog{
		OwnerID:      &w.OwnerID,
		Action:       domain.AuditActionTamperDetected,
		ResourceType: "wallet",
		ResourceID:   w.ID.String(),
		Details:      auditDetails(map[string]string{"operation": operation}),
	})
}

func (s *LedgerServiceImpl) logAudit(ctx context.Context, entry *domain.AuditLog) {
	if s.audit != nil {
		s.audit.Log(ctx, entry)
	}
}

// chainTime returns now at canonical precision, never earlier than either head.
func chainTime(now time.Time, heads ...*domain.Transaction) time.Time {
	t := domain.NormalizeTime(now)
	for _, h := range heads {
		if h != nil && h.CreatedAt.After(t) {
			t = domain.NormalizeTime(h.CreatedAt)
		}
	}
	return t
}

func newTransactionID() (string, error) {
	b := make([]byte, txIDLen)
	if _, err := rand.Read(b); err != nil {
		return "", apperror.InternalError(fmt.Errorf("generating transaction id: %w", err))
	}
	return hex.EncodeToString(b), nil
}

func errorCode(err error) string {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return apperror.CodeInternal
}
