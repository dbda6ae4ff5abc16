package domain

import (
	"time"

	"github.com/google/uuid"
)

// IdempotencyLog represents a stored send result to prevent double-processing.
type IdempotencyLog struct {
	Key           string    `json:"key"` // Format: "wallet_id:client_key"
	TransactionID string    `json:"transaction_id"`
	ResponseJSON  []byte    `json:"response_json"`
	CreatedAt     time.Time `json:"created_at"`
}

// BuildIdempotencyKey constructs the standard key format.
func BuildIdempotencyKey(walletID uuid.UUID, clientKey string) string {
	return walletID.String() + ":" + clientKey
}
