package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"btc-custody/internal/core/domain"
	"btc-custody/pkg/apperror"
)

// SHA256IntegrityService implements ports.IntegrityService.
// Digest = hex(SHA-256(canonical || secret)).
type SHA256IntegrityService struct {
	secret []byte
}

// NewIntegrityService creates an integrity service keyed by secret.
func NewIntegrityService(secret string) (*SHA256IntegrityService, error) {
	if secret == "" {
		return nil, apperror.ErrMissingSecret("crypto.integrity_secret")
	}
	return &SHA256IntegrityService{secret: []byte(secret)}, nil
}

// Hash returns the lowercase hex digest of canonical.
func (s *SHA256IntegrityService) Hash(canonical string) string {
	h := sha256.New()
	h.Write([]byte(canonical))
	h.Write(s.secret)
	return hex.EncodeToString(h.Sum(nil))
}

// Verify recomputes the digest and requires an exact match with stored.
func (s *SHA256IntegrityService) Verify(canonical string, stored string) bool {
	return hmac.Equal([]byte(s.Hash(canonical)), []byte(stored))
}

// HashWallet digests the wallet's canonical form.
func (s *SHA256IntegrityService) HashWallet(w *domain.Wallet) string {
	return s.Hash(domain.CanonicalWallet(w))
}

// VerifyWallet reports whether w still matches its stored IntegrityHash.
func (s *SHA256IntegrityService) VerifyWallet(w *domain.Wallet) bool {
	return s.Verify(domain.CanonicalWallet(w), w.IntegrityHash)
}

// HashTransaction digests the transaction's canonical form.
func (s *SHA256IntegrityService) HashTransaction(t *domain.Transaction) string {
	return s.Hash(domain.CanonicalTransaction(t))
}

// VerifyTransaction reports whether t still matches its stored IntegrityHash.
func (s *SHA256IntegrityService) VerifyTransaction(t *domain.Transaction) bool {
	return s.Verify(domain.CanonicalTransaction(t), t.IntegrityHash)
}
