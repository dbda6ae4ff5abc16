package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType represents the direction of a ledger entry.
type TransactionType string

const (
	TransactionTypeSend    TransactionType = "send"
	TransactionTypeReceive TransactionType = "receive"
)

// TransactionStatus represents the lifecycle state of a transaction.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusConfirmed TransactionStatus = "confirmed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// CanTransitionTo reports whether a transaction may move from s to next.
// Only pending transactions change state.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	return s == TransactionStatusPending &&
		(next == TransactionStatusConfirmed || next == TransactionStatusFailed)
}

// Transaction is an immutable entry on a wallet's hash chain.
// Status is the only field that changes after creation and is not hashed.
type Transaction struct {
	ID             string            `json:"id"` // 32 random bytes, hex
	Seq            int64             `json:"-"`  // insertion order, breaks CreatedAt ties
	WalletID       uuid.UUID         `json:"wallet_id"`
	Type           TransactionType   `json:"type"`
	Amount         uint64            `json:"amount"`
	Fee            uint64            `json:"fee"`
	FromAddress    string            `json:"from_address"`
	ToAddress      string            `json:"to_address"`
	BalanceAfter   uint64            `json:"balance_after"`
	Signature      string            `json:"signature"`
	PreviousTxHash *string           `json:"previous_tx_hash"`
	IntegrityHash  string            `json:"integrity_hash"`
	Status         TransactionStatus `json:"status"`
	CreatedAt      time.Time         `json:"created_at"`
}

// IsTerminal returns true if the transaction is in a final state.
func (t *Transaction) IsTerminal() bool {
	return t.Status == TransactionStatusConfirmed || t.Status == TransactionStatusFailed
}

// PrevHash returns PreviousTxHash or "" for the first entry of a chain.
func (t *Transaction) PrevHash() string {
	if t.PreviousTxHash == nil {
		return ""
	}
	return *t.PreviousTxHash
}
