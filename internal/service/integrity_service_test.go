package service

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"btc-custody/internal/core/domain"
	"btc-custody/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIntegritySecret = "test-integrity-secret"

func newTestIntegrity(t *testing.T) *SHA256IntegrityService {
	t.Helper()
	svc, err := NewIntegrityService(testIntegritySecret)
	require.NoError(t, err)
	return svc
}

func TestIntegrityService_MissingSecret(t *testing.T) {
	_, err := NewIntegrityService("")
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeMissingSecret))
}

func TestIntegrityService_Hash(t *testing.T) {
	svc := newTestIntegrity(t)

	sum := sha256.Sum256([]byte("a|b|1" + testIntegritySecret))
	assert.Equal(t, hex.EncodeToString(sum[:]), svc.Hash("a|b|1"))
	assert.Equal(t, svc.Hash("a|b|1"), svc.Hash("a|b|1"), "hash must be pure")
	assert.NotEqual(t, svc.Hash("a|b|1"), svc.Hash("a|b|2"))

	other, err := NewIntegrityService("other-secret")
	require.NoError(t, err)
	assert.NotEqual(t, svc.Hash("a|b|1"), other.Hash("a|b|1"))
}

func TestIntegrityService_Verify_ExactMatch(t *testing.T) {
	svc := newTestIntegrity(t)
	digest := svc.Hash("payload")

	assert.True(t, svc.Verify("payload", digest))
	assert.False(t, svc.Verify("payload", digest[:32]), "prefix must not match")
	assert.False(t, svc.Verify("payload", digest+"00"))
	assert.False(t, svc.Verify("payload", strings.ToUpper(digest)))
	assert.False(t, svc.Verify("payload", ""))
}

func newHashedWallet(svc *SHA256IntegrityService) *domain.Wallet {
	w := &domain.Wallet{
		ID:           uuid.New(),
		Address:      keyOneTestAddr,
		PublicKeyHex: keyOnePubHex,
		StorageType:  domain.StorageTypeHot,
		Balance:      100000000,
		Status:       domain.WalletStatusActive,
		CreatedAt:    domain.NormalizeTime(time.Now()),
	}
	w.IntegrityHash = svc.HashWallet(w)
	return w
}

func TestIntegrityService_WalletBitFlip(t *testing.T) {
	svc := newTestIntegrity(t)
	w := newHashedWallet(svc)
	require.True(t, svc.VerifyWallet(w))

	for bit := 0; bit < 64; bit += 7 {
		original := w.Balance
		w.Balance ^= 1 << bit
		assert.False(t, svc.VerifyWallet(w), "flipping bit %d must be detected", bit)
		w.Balance = original
		assert.True(t, svc.VerifyWallet(w), "restoring bit %d must verify", bit)
	}
}

func TestIntegrityService_WalletIdentityFields(t *testing.T) {
	svc := newTestIntegrity(t)

	mutations := map[string]func(w *domain.Wallet){
		"address":      func(w *domain.Wallet) { w.Address = keyOneMainAddr },
		"public key":   func(w *domain.Wallet) { w.PublicKeyHex = "03" + w.PublicKeyHex[2:] },
		"storage type": func(w *domain.Wallet) { w.StorageType = domain.StorageTypeCold },
		"created at":   func(w *domain.Wallet) { w.CreatedAt = w.CreatedAt.Add(time.Millisecond) },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			w := newHashedWallet(svc)
			mutate(w)
			assert.False(t, svc.VerifyWallet(w))
		})
	}

	t.Run("status is not covered", func(t *testing.T) {
		w := newHashedWallet(svc)
		w.Status = domain.WalletStatusFrozen
		assert.True(t, svc.VerifyWallet(w))
	})
}

func TestIntegrityService_Transaction(t *testing.T) {
	svc := newTestIntegrity(t)
	prev := svc.Hash("previous")
	tx := &domain.Transaction{
		ID:             strings.Repeat("ab", 32),
		WalletID:       uuid.New(),
		Type:           domain.TransactionTypeSend,
		Amount:         50000,
		Fee:            10000,
		FromAddress:    keyOneTestAddr,
		ToAddress:      "mipcBbFg9gMiCh81Kj8tqqdgoZub1ZJRfn",
		BalanceAfter:   99940000,
		PreviousTxHash: &prev,
		Status:         domain.TransactionStatusPending,
		CreatedAt:      domain.NormalizeTime(time.Now()),
	}
	tx.IntegrityHash = svc.HashTransaction(tx)

	assert.True(t, svc.VerifyTransaction(tx))

	tx.Status = domain.TransactionStatusConfirmed
	assert.True(t, svc.VerifyTransaction(tx), "status transitions keep the hash valid")

	tx.Amount++
	assert.False(t, svc.VerifyTransaction(tx))
	tx.Amount--

	tx.PreviousTxHash = nil
	assert.False(t, svc.VerifyTransaction(tx))
}
