package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionWalletCreated  AuditAction = "WALLET_CREATED"
	AuditActionSend           AuditAction = "SEND"
	AuditActionSendRejected   AuditAction = "SEND_REJECTED"
	AuditActionFund           AuditAction = "FUND"
	AuditActionStatusChange   AuditAction = "STATUS_CHANGE"
	AuditActionTamperDetected AuditAction = "TAMPER_DETECTED"
	AuditActionAccessDenied   AuditAction = "ACCESS_DENIED"
)

// AuditLog records a single audited action in the system.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	OwnerID      *uuid.UUID  `json:"owner_id,omitempty"`
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	Details      string      `json:"details,omitempty"` // JSON string
	IPAddress    string      `json:"ip_address"`
	CreatedAt    time.Time   `json:"created_at"`
}
