package handler

import (
	"btc-custody/internal/adapter/http/dto"
	"btc-custody/internal/adapter/http/middleware"
	"btc-custody/internal/core/domain"
	"btc-custody/internal/core/ports"
	"btc-custody/pkg/apperror"
	"btc-custody/pkg/response"

	"github.com/gin-gonic/gin"
)

// TransactionHandler handles single-transaction endpoints.
type TransactionHandler struct {
	walletSvc ports.WalletService
	ledgerSvc ports.LedgerService
}

// NewTransactionHandler creates a new TransactionHandler.
func NewTransactionHandler(walletSvc ports.WalletService, ledgerSvc ports.LedgerService) *TransactionHandler {
	return &TransactionHandler{
		walletSvc: walletSvc,
		ledgerSvc: ledgerSvc,
	}
}

// Get handles GET /api/v1/transactions/:id.
func (h *TransactionHandler) Get(c *gin.Context) {
	tx, ok := h.ownedTransaction(c)
	if !ok {
		return
	}
	response.OK(c, dto.NewTransactionResponse(tx))
}

// Verify handles GET /api/v1/transactions/:id/verify.
func (h *TransactionHandler) Verify(c *gin.Context) {
	tx, ok := h.ownedTransaction(c)
	if !ok {
		return
	}

	report, err := h.ledgerSvc.VerifyTransaction(c.Request.Context(), tx.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, report)
}

// SetStatus handles PUT /api/v1/transactions/:id/status.
func (h *TransactionHandler) SetStatus(c *gin.Context) {
	tx, ok := h.ownedTransaction(c)
	if !ok {
		return
	}

	var req dto.TransactionStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	updated, err := h.ledgerSvc.UpdateStatus(c.Request.Context(), tx.ID, domain.TransactionStatus(req.Status))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewTransactionResponse(updated))
}

// ownedTransaction loads :id and checks the wallet it belongs to is the
// caller's. On failure the error response has already been written.
func (h *TransactionHandler) ownedTransaction(c *gin.Context) (*domain.Transaction, bool) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return nil, false
	}

	txID := c.Param("id")
	if !dto.ValidSafeID(txID) {
		response.Error(c, apperror.Validation("invalid transaction id"))
		return nil, false
	}

	tx, err := h.ledgerSvc.GetTransaction(c.Request.Context(), txID)
	if err != nil {
		response.Error(c, err)
		return nil, false
	}

	w, err := h.walletSvc.Get(c.Request.Context(), tx.WalletID)
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	if w.OwnerID != ownerID {
		response.Error(c, apperror.ErrForbidden())
		return nil, false
	}
	return tx, true
}
