package handler

import (
	"errors"
	"net/http"

	"btc-custody/internal/adapter/http/dto"
	"btc-custody/internal/adapter/http/middleware"
	"btc-custody/internal/core/domain"
	"btc-custody/internal/core/ports"
	"btc-custody/pkg/apperror"
	"btc-custody/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderIdempotencyKey overrides the idempotency_key body field when set.
const HeaderIdempotencyKey = "Idempotency-Key"

// WalletHandler handles wallet endpoints. Every route except Create and List
// acts on a single wallet that must belong to the caller.
type WalletHandler struct {
	walletSvc ports.WalletService
	ledgerSvc ports.LedgerService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(walletSvc ports.WalletService, ledgerSvc ports.LedgerService) *WalletHandler {
	return &WalletHandler{
		walletSvc: walletSvc,
		ledgerSvc: ledgerSvc,
	}
}

// Create handles POST /api/v1/wallets.
func (h *WalletHandler) Create(c *gin.Context) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.CreateWalletRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.walletSvc.Create(c.Request.Context(), ports.CreateWalletRequest{
		OwnerID:     ownerID,
		StorageType: domain.StorageType(req.StorageType),
		ClientIP:    c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.NewCreateWalletResponse(res))
}

// List handles GET /api/v1/wallets.
func (h *WalletHandler) List(c *gin.Context) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	wallets, err := h.walletSvc.ListByOwner(c.Request.Context(), ownerID)
	if err != nil {
		response.Error(c, err)
		return
	}

	out := make([]dto.WalletResponse, 0, len(wallets))
	for i := range wallets {
		out = append(out, dto.NewWalletResponse(&wallets[i]))
	}
	response.OK(c, out)
}

// Get handles GET /api/v1/wallets/:id.
func (h *WalletHandler) Get(c *gin.Context) {
	w, ok := h.ownedWallet(c)
	if !ok {
		return
	}
	response.OK(c, dto.NewWalletResponse(w))
}

// Verify handles GET /api/v1/wallets/:id/verify.
func (h *WalletHandler) Verify(c *gin.Context) {
	w, ok := h.ownedWallet(c)
	if !ok {
		return
	}

	report, err := h.walletSvc.Verify(c.Request.Context(), w.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, report)
}

// Fund handles POST /api/v1/wallets/:id/fund.
func (h *WalletHandler) Fund(c *gin.Context) {
	w, ok := h.ownedWallet(c)
	if !ok {
		return
	}

	var req dto.FundRequest
	if !bindJSON(c, &req) {
		return
	}

	updated, err := h.walletSvc.Fund(c.Request.Context(), w.ID, req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewWalletResponse(updated))
}

// SetStatus handles PUT /api/v1/wallets/:id/status.
func (h *WalletHandler) SetStatus(c *gin.Context) {
	w, ok := h.ownedWallet(c)
	if !ok {
		return
	}

	var req dto.WalletStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	updated, err := h.walletSvc.SetStatus(c.Request.Context(), w.ID, domain.WalletStatus(req.Status))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewWalletResponse(updated))
}

// Send handles POST /api/v1/wallets/:id/send.
func (h *WalletHandler) Send(c *gin.Context) {
	w, ok := h.ownedWallet(c)
	if !ok {
		return
	}

	var req dto.SendRequest
	if !bindJSON(c, &req) {
		return
	}
	dto.SanitizeStruct(&req)

	idemKey := req.IdempotencyKey
	if hdr := c.GetHeader(HeaderIdempotencyKey); hdr != "" {
		if !dto.ValidSafeID(hdr) {
			response.Error(c, apperror.Validation("invalid Idempotency-Key header"))
			return
		}
		idemKey = hdr
	}

	res, err := h.ledgerSvc.Send(c.Request.Context(), ports.SendRequest{
		WalletID:       w.ID,
		ToAddress:      req.ToAddress,
		Amount:         req.Amount,
		PrivateKey:     req.PrivateKey,
		IdempotencyKey: idemKey,
		ClientIP:       c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewSendResponse(res))
}

// ListTransactions handles GET /api/v1/wallets/:id/transactions.
func (h *WalletHandler) ListTransactions(c *gin.Context) {
	w, ok := h.ownedWallet(c)
	if !ok {
		return
	}

	txs, err := h.ledgerSvc.ListTransactions(c.Request.Context(), w.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	out := make([]dto.TransactionResponse, 0, len(txs))
	for i := range txs {
		out = append(out, dto.NewTransactionResponse(&txs[i]))
	}
	response.OK(c, out)
}

// VerifyChain handles GET /api/v1/wallets/:id/verify-chain.
func (h *WalletHandler) VerifyChain(c *gin.Context) {
	w, ok := h.ownedWallet(c)
	if !ok {
		return
	}

	report, err := h.ledgerSvc.VerifyChain(c.Request.Context(), w.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, report)
}

// ownedWallet resolves the :id wallet and checks it belongs to the caller.
// On failure the error response has already been written.
func (h *WalletHandler) ownedWallet(c *gin.Context) (*domain.Wallet, bool) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return nil, false
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid wallet id"))
		return nil, false
	}

	w, err := h.walletSvc.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	if w.OwnerID != ownerID {
		response.Error(c, apperror.ErrForbidden())
		return nil, false
	}
	return w, true
}

// bindJSON binds and validates the body, writing the error response on failure.
func bindJSON(c *gin.Context, dst any) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		response.Error(c, apperror.ErrPayloadTooLarge())
	} else {
		response.Error(c, apperror.Validation(err.Error()))
	}
	return false
}
