package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes. Callers outside this package should match on these via HasCode
// instead of comparing messages.
const (
	CodeInvalidKey               = "KEY_001"
	CodeInvalidPrivateKey        = "KEY_002"
	CodeAuthenticationFailure    = "SEC_001"
	CodeWalletNotFound           = "WAL_001"
	CodeInvalidStatusTransition  = "WAL_002"
	CodeIntegrityViolation       = "WAL_003"
	CodeInvalidAddress           = "TX_001"
	CodeSelfTransferRejected     = "TX_002"
	CodeInsufficientBalance      = "TX_003"
	CodeInvalidAmount            = "TX_004"
	CodeSigningFailure           = "TX_005"
	CodeTransactionNotFound      = "TX_006"
	CodeInvalidTransactionStatus = "TX_007"
	CodeIdempotencyConflict      = "TX_008"
	CodeStorageFailure           = "SYS_001"
	CodeInternal                 = "SYS_002"
	CodeMissingSecret            = "CFG_001"
	CodeKeyGenerationExhausted   = "CFG_002"
	CodeInvalidToken             = "AUTH_001"
	CodeForbidden                = "AUTH_002"
	CodeRateLimitExceeded        = "RATE_001"
	CodeValidation               = "REQ_001"
	CodePayloadTooLarge          = "REQ_002"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// HasCode reports whether err (or anything it wraps) is an AppError with the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Code == code
}

// ---- Keys (KEY) ----

func ErrInvalidKey(err error) *AppError {
	return Wrap(CodeInvalidKey, "Invalid private key", http.StatusBadRequest, err)
}

// ErrInvalidPrivateKey is returned when a cold-wallet key does not control the wallet address.
func ErrInvalidPrivateKey() *AppError {
	return New(CodeInvalidPrivateKey, "Private key does not match wallet address", http.StatusForbidden)
}

// ---- Security (SEC) ----

func ErrAuthenticationFailure(err error) *AppError {
	return Wrap(CodeAuthenticationFailure, "Encrypted key failed authentication", http.StatusInternalServerError, err)
}

// ---- Wallets (WAL) ----

func ErrWalletNotFound() *AppError {
	return New(CodeWalletNotFound, "Wallet not found", http.StatusNotFound)
}

func ErrInvalidStatusTransition(from, to string) *AppError {
	return New(CodeInvalidStatusTransition, fmt.Sprintf("Cannot change wallet status from %s to %s", from, to), http.StatusConflict)
}

// ErrIntegrityViolation is returned when a wallet's stored hash no longer
// matches its fields; mutating it would rehash over the tampered state.
func ErrIntegrityViolation() *AppError {
	return New(CodeIntegrityViolation, "Wallet failed integrity verification", http.StatusConflict)
}

// ---- Transactions (TX) ----

func ErrInvalidAddress() *AppError {
	return New(CodeInvalidAddress, "Invalid destination address", http.StatusBadRequest)
}

func ErrSelfTransferRejected() *AppError {
	return New(CodeSelfTransferRejected, "Cannot send to the wallet's own address", http.StatusBadRequest)
}

func ErrInsufficientBalance() *AppError {
	return New(CodeInsufficientBalance, "Insufficient balance in wallet", http.StatusPaymentRequired)
}

func ErrInvalidAmount() *AppError {
	return New(CodeInvalidAmount, "Invalid amount", http.StatusBadRequest)
}

func ErrSigningFailure(err error) *AppError {
	return Wrap(CodeSigningFailure, "Transaction signing failed", http.StatusInternalServerError, err)
}

func ErrTransactionNotFound() *AppError {
	return New(CodeTransactionNotFound, "Transaction not found", http.StatusNotFound)
}

func ErrInvalidTransactionStatus(from, to string) *AppError {
	return New(CodeInvalidTransactionStatus, fmt.Sprintf("Cannot change transaction status from %s to %s", from, to), http.StatusConflict)
}

// ErrIdempotencyConflict reports a reused idempotency key whose original
// send went elsewhere or moved a different amount.
func ErrIdempotencyConflict() *AppError {
	return New(CodeIdempotencyConflict, "Idempotency key was already used for a different send", http.StatusConflict)
}

// ---- System & Configuration (SYS, CFG) ----

func ErrStorageFailure(err error) *AppError {
	return Wrap(CodeStorageFailure, "Storage failure", http.StatusInternalServerError, err)
}

// InternalError wraps an unexpected internal error.
func InternalError(err error) *AppError {
	return Wrap(CodeInternal, "Internal server error", http.StatusInternalServerError, err)
}

// ErrMissingSecret is a startup configuration error; the process should not serve with it.
func ErrMissingSecret(name string) *AppError {
	return New(CodeMissingSecret, fmt.Sprintf("Missing required secret: %s", name), http.StatusInternalServerError)
}

func ErrKeyGenerationExhausted(attempts int) *AppError {
	return New(CodeKeyGenerationExhausted, fmt.Sprintf("No valid private key after %d attempts", attempts), http.StatusInternalServerError)
}

// ---- Caller authentication (AUTH, RATE, REQ) ----

func ErrInvalidToken() *AppError {
	return New(CodeInvalidToken, "Invalid or expired token", http.StatusUnauthorized)
}

func ErrForbidden() *AppError {
	return New(CodeForbidden, "Wallet does not belong to caller", http.StatusForbidden)
}

func ErrRateLimitExceeded() *AppError {
	return New(CodeRateLimitExceeded, "Rate limit exceeded", http.StatusTooManyRequests)
}

// Validation returns a request validation error.
func Validation(message string) *AppError {
	return New(CodeValidation, message, http.StatusBadRequest)
}

func ErrPayloadTooLarge() *AppError {
	return New(CodePayloadTooLarge, "Request body too large", http.StatusRequestEntityTooLarge)
}
