package ports

import (
	"context"
	"time"

	"btc-custody/internal/core/domain"

	"github.com/google/uuid"
)

// KeyService generates and validates secp256k1 key material.
type KeyService interface {
	Generate(network domain.Network) (*domain.KeyPair, error)
	// Derive returns the public key and address for a hex private key.
	// The returned pair carries no private material.
	Derive(privateKeyHex string, network domain.Network) (*domain.KeyPair, error)
	ValidateAgainstAddress(privateKeyHex string, address string) bool
	EncodeWIF(privateKeyHex string, network domain.Network) (string, error)
	DecodeWIF(wif string) (string, error)
	// ParsePrivateKey accepts 64-char hex or WIF and returns canonical hex.
	ParsePrivateKey(input string) (string, error)
	ValidateAddress(address string, network domain.Network) error
}

// EncryptionService protects hot-wallet keys with AES-256-GCM.
type EncryptionService interface {
	Encrypt(plaintextHex string) (*domain.EncryptedKey, error)
	Decrypt(key *domain.EncryptedKey) (string, error)
}

// IntegrityService computes keyed digests over canonical entity snapshots.
type IntegrityService interface {
	Hash(canonical string) string
	Verify(canonical string, stored string) bool
	HashWallet(w *domain.Wallet) string
	VerifyWallet(w *domain.Wallet) bool
	HashTransaction(t *domain.Transaction) string
	VerifyTransaction(t *domain.Transaction) bool
}

// SigningService signs and verifies transaction payloads.
type SigningService interface {
	Sign(privateKeyHex string, payload string) (*domain.Signature, error)
	Verify(publicKeyHex string, signatureHex string, payload string) bool
}

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(ownerID uuid.UUID) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	OwnerID uuid.UUID
}

// IdempotencyCache is the Redis-layer idempotency check (fast path).
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// AuditService records audit entries without blocking the caller.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}

// WalletLocker serializes in-process work on wallets.
// Lock acquires every id in ascending order and returns the release func.
type WalletLocker interface {
	Lock(ids ...uuid.UUID) (unlock func())
}

// --- Service Ports (Business Logic) ---

// WalletService manages wallet creation and lifecycle.
type WalletService interface {
	Create(ctx context.Context, req CreateWalletRequest) (*CreateWalletResult, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	GetByAddress(ctx context.Context, address string) (*domain.Wallet, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Wallet, error)
	Verify(ctx context.Context, id uuid.UUID) (*WalletReport, error)
	Fund(ctx context.Context, id uuid.UUID, amount uint64) (*domain.Wallet, error)
	SetStatus(ctx context.Context, id uuid.UUID, status domain.WalletStatus) (*domain.Wallet, error)
}

// CreateWalletRequest holds validated input for wallet creation.
type CreateWalletRequest struct {
	OwnerID     uuid.UUID
	StorageType domain.StorageType
	ClientIP    string
}

// CreateWalletResult is returned once at creation. For cold wallets KeyPair
// holds the only copy of the private key.
type CreateWalletResult struct {
	Wallet  *domain.Wallet `json:"wallet"`
	KeyPair domain.KeyPair `json:"key_pair"`
}

// WalletReport is the outcome of a wallet integrity check. KeyStorageValid
// is false when a cold wallet carries key material or a hot wallet lacks it.
type WalletReport struct {
	WalletID        uuid.UUID `json:"wallet_id"`
	Valid           bool      `json:"valid"`
	HashValid       bool      `json:"hash_valid"`
	KeyStorageValid bool      `json:"key_storage_valid"`
	StoredHash      string    `json:"stored_hash"`
	ComputedHash    string    `json:"computed_hash"`
}

// LedgerService moves value between wallets and audits their chains.
type LedgerService interface {
	Send(ctx context.Context, req SendRequest) (*SendResult, error)
	VerifyChain(ctx context.Context, walletID uuid.UUID) (*ChainReport, error)
	VerifyTransaction(ctx context.Context, txID string) (*TransactionReport, error)
	ListTransactions(ctx context.Context, walletID uuid.UUID) ([]domain.Transaction, error)
	GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error)
	UpdateStatus(ctx context.Context, txID string, status domain.TransactionStatus) (*domain.Transaction, error)
}

// SendRequest holds validated input for a transfer.
type SendRequest struct {
	WalletID       uuid.UUID
	ToAddress      string
	Amount         uint64
	PrivateKey     string // cold wallets only, hex or WIF
	IdempotencyKey string // optional
	ClientIP       string
}

// SendResult is the outcome of a transfer. Received is set when the
// destination is a wallet known to the system.
type SendResult struct {
	Transaction   domain.Transaction  `json:"transaction"`
	Received      *domain.Transaction `json:"received,omitempty"`
	SenderBalance uint64              `json:"sender_balance"`
}

// ChainReport is the per-entry outcome of a chain walk.
type ChainReport struct {
	WalletID uuid.UUID    `json:"wallet_id"`
	Valid    bool         `json:"valid"`
	Length   int          `json:"length"`
	Entries  []ChainEntry `json:"entries"`
}

// ChainEntry reports one transaction's standing in its chain.
// ChainValid is false once any earlier entry failed.
type ChainEntry struct {
	Index          int    `json:"index"`
	TransactionID  string `json:"transaction_id"`
	IntegrityValid bool   `json:"integrity_valid"`
	LinkValid      bool   `json:"link_valid"`
	ChainValid     bool   `json:"chain_valid"`
}

// TransactionReport is the outcome of checking a single transaction.
type TransactionReport struct {
	TransactionID  string `json:"transaction_id"`
	IntegrityValid bool   `json:"integrity_valid"`
	SignatureValid bool   `json:"signature_valid"`
}
