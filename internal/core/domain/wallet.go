package domain

import (
	"time"

	"github.com/google/uuid"
)

// StorageType selects who holds a wallet's private key.
type StorageType string

const (
	StorageTypeHot  StorageType = "hot"  // encrypted key held server-side
	StorageTypeCold StorageType = "cold" // key never stored, supplied per send
)

// Valid reports whether s is a known storage type.
func (s StorageType) Valid() bool {
	return s == StorageTypeHot || s == StorageTypeCold
}

// WalletStatus represents the lifecycle state of a wallet.
type WalletStatus string

const (
	WalletStatusActive   WalletStatus = "active"
	WalletStatusFrozen   WalletStatus = "frozen"
	WalletStatusArchived WalletStatus = "archived"
)

// CanTransitionTo reports whether a wallet may move from s to next.
// Archived is terminal.
func (s WalletStatus) CanTransitionTo(next WalletStatus) bool {
	switch s {
	case WalletStatusActive:
		return next == WalletStatusFrozen || next == WalletStatusArchived
	case WalletStatusFrozen:
		return next == WalletStatusActive || next == WalletStatusArchived
	default:
		return false
	}
}

// Wallet is a custodial wallet. Balance is kept in satoshis.
type Wallet struct {
	ID                  uuid.UUID    `json:"id"`
	OwnerID             uuid.UUID    `json:"owner_id"`
	Address             string       `json:"address"`
	PublicKeyHex        string       `json:"public_key"`
	StorageType         StorageType  `json:"storage_type"`
	EncryptedPrivateKey *string      `json:"-"` // hot only
	KeyNonce            *string      `json:"-"` // hot only
	KeyAuthTag          *string      `json:"-"` // hot only
	Balance             uint64       `json:"balance"`
	Status              WalletStatus `json:"status"`
	TransactionCount    int64        `json:"transaction_count"`
	IntegrityHash       string       `json:"integrity_hash"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

// IsActive returns true if the wallet can originate transactions.
func (w *Wallet) IsActive() bool {
	return w.Status == WalletStatusActive
}

// IsHot returns true if the server holds the wallet's encrypted key.
func (w *Wallet) IsHot() bool {
	return w.StorageType == StorageTypeHot
}

// HasKeyMaterial reports whether any encrypted key field is populated.
func (w *Wallet) HasKeyMaterial() bool {
	return w.EncryptedPrivateKey != nil || w.KeyNonce != nil || w.KeyAuthTag != nil
}

// EncryptedKey returns the stored key envelope, or nil when the wallet has none.
func (w *Wallet) EncryptedKey() *EncryptedKey {
	if w.EncryptedPrivateKey == nil || w.KeyNonce == nil || w.KeyAuthTag == nil {
		return nil
	}
	return &EncryptedKey{
		Ciphertext: *w.EncryptedPrivateKey,
		Nonce:      *w.KeyNonce,
		AuthTag:    *w.KeyAuthTag,
	}
}

// SetEncryptedKey stores the envelope fields on the wallet.
func (w *Wallet) SetEncryptedKey(k *EncryptedKey) {
	w.EncryptedPrivateKey = &k.Ciphertext
	w.KeyNonce = &k.Nonce
	w.KeyAuthTag = &k.AuthTag
}
