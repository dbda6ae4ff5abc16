package service

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"btc-custody/internal/core/domain"
	"btc-custody/pkg/apperror"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// ECDSASigningService implements ports.SigningService with RFC6979
// deterministic ECDSA over SHA-256(payload).
type ECDSASigningService struct{}

// NewSigningService creates a new ECDSA signing service.
func NewSigningService() *ECDSASigningService {
	return &ECDSASigningService{}
}

// Sign signs payload with privateKeyHex and returns a DER signature.
func (s *ECDSASigningService) Sign(privateKeyHex string, payload string) (*domain.Signature, error) {
	priv, err := parsePrivateKeyHex(privateKeyHex)
	if err != nil {
		return nil, err
	}
	defer priv.Zero()

	hash := sha256.Sum256([]byte(payload))
	sig := ecdsa.Sign(priv, hash[:])

	pub := priv.PubKey()
	if !sig.Verify(hash[:], pub) {
		return nil, apperror.ErrSigningFailure(errors.New("signature failed self-verification"))
	}

	return &domain.Signature{
		Signature:    hex.EncodeToString(sig.Serialize()),
		PayloadHash:  hex.EncodeToString(hash[:]),
		PublicKeyHex: hex.EncodeToString(pub.SerializeCompressed()),
	}, nil
}

// Verify reports whether signatureHex is a valid signature of payload by
// publicKeyHex. Malformed input yields false.
func (s *ECDSASigningService) Verify(publicKeyHex string, signatureHex string, payload string) bool {
	pubBytes, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return false
	}
	pub, err := btcec.ParsePubKey(pubBytes)
	if err != nil {
		return false
	}
	sigBytes, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}
	sig, err := ecdsa.ParseDERSignature(sigBytes)
	if err != nil {
		return false
	}

	hash := sha256.Sum256([]byte(payload))
	return sig.Verify(hash[:], pub)
}
