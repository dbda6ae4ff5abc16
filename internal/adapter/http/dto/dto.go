package dto

import (
	"time"

	"btc-custody/internal/core/domain"
	"btc-custody/internal/core/ports"
)

// CreateWalletRequest is the request body for wallet creation.
type CreateWalletRequest struct {
	StorageType string `json:"storage_type" binding:"required,oneof=hot cold"`
}

// SendRequest is the request body for a transfer. PrivateKey is required
// for cold wallets and ignored for hot ones.
type SendRequest struct {
	ToAddress      string `json:"to_address" binding:"required,alphanum,max=100"`
	Amount         uint64 `json:"amount" binding:"required,gt=0"`
	PrivateKey     string `json:"private_key,omitempty" binding:"omitempty,alphanum,max=128"`
	IdempotencyKey string `json:"idempotency_key,omitempty" binding:"omitempty,max=64,safe_id"`
}

// FundRequest is the request body for crediting a wallet.
type FundRequest struct {
	Amount uint64 `json:"amount" binding:"required,gt=0"`
}

// WalletStatusRequest is the request body for a wallet lifecycle change.
type WalletStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=active frozen archived"`
}

// TransactionStatusRequest is the request body for settling a transaction.
type TransactionStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=confirmed failed"`
}

// WalletResponse is the public view of a wallet.
type WalletResponse struct {
	ID               string `json:"id"`
	Address          string `json:"address"`
	PublicKey        string `json:"public_key"`
	StorageType      string `json:"storage_type"`
	Balance          uint64 `json:"balance"`
	Status           string `json:"status"`
	TransactionCount int64  `json:"transaction_count"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

// CreateWalletResponse carries the new wallet. Cold wallets also carry their
// private key, which is returned exactly once.
type CreateWalletResponse struct {
	Wallet        WalletResponse `json:"wallet"`
	PrivateKeyHex string         `json:"private_key_hex,omitempty"`
	PrivateKeyWIF string         `json:"private_key_wif,omitempty"`
}

// TransactionResponse is the public view of a ledger entry.
type TransactionResponse struct {
	ID             string  `json:"id"`
	WalletID       string  `json:"wallet_id"`
	Type           string  `json:"type"`
	Amount         uint64  `json:"amount"`
	Fee            uint64  `json:"fee"`
	FromAddress    string  `json:"from_address"`
	ToAddress      string  `json:"to_address"`
	BalanceAfter   uint64  `json:"balance_after"`
	Signature      string  `json:"signature"`
	PreviousTxHash *string `json:"previous_tx_hash"`
	IntegrityHash  string  `json:"integrity_hash"`
	Status         string  `json:"status"`
	CreatedAt      string  `json:"created_at"`
}

// SendResponse is the outcome of a transfer.
type SendResponse struct {
	Transaction   TransactionResponse  `json:"transaction"`
	Received      *TransactionResponse `json:"received,omitempty"`
	SenderBalance uint64               `json:"sender_balance"`
}

// NewWalletResponse maps a domain wallet to its public view.
func NewWalletResponse(w *domain.Wallet) WalletResponse {
	return WalletResponse{
		ID:               w.ID.String(),
		Address:          w.Address,
		PublicKey:        w.PublicKeyHex,
		StorageType:      string(w.StorageType),
		Balance:          w.Balance,
		Status:           string(w.Status),
		TransactionCount: w.TransactionCount,
		CreatedAt:        formatTime(w.CreatedAt),
		UpdatedAt:        formatTime(w.UpdatedAt),
	}
}

// NewCreateWalletResponse maps a creation result. Key material is only
// present when the service returned it.
func NewCreateWalletResponse(res *ports.CreateWalletResult) CreateWalletResponse {
	return CreateWalletResponse{
		Wallet:        NewWalletResponse(res.Wallet),
		PrivateKeyHex: res.KeyPair.PrivateKeyHex,
		PrivateKeyWIF: res.KeyPair.PrivateKeyWIF,
	}
}

// NewTransactionResponse maps a domain transaction to its public view.
func NewTransactionResponse(t *domain.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:             t.ID,
		WalletID:       t.WalletID.String(),
		Type:           string(t.Type),
		Amount:         t.Amount,
		Fee:            t.Fee,
		FromAddress:    t.FromAddress,
		ToAddress:      t.ToAddress,
		BalanceAfter:   t.BalanceAfter,
		Signature:      t.Signature,
		PreviousTxHash: t.PreviousTxHash,
		IntegrityHash:  t.IntegrityHash,
		Status:         string(t.Status),
		CreatedAt:      formatTime(t.CreatedAt),
	}
}

// NewSendResponse maps a send result.
func NewSendResponse(res *ports.SendResult) SendResponse {
	out := SendResponse{
		Transaction:   NewTransactionResponse(&res.Transaction),
		SenderBalance: res.SenderBalance,
	}
	if res.Received != nil {
		recv := NewTransactionResponse(res.Received)
		out.Received = &recv
	}
	return out
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
