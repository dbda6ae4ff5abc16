package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"btc-custody/internal/core/domain"
	"btc-custody/pkg/apperror"

	"golang.org/x/crypto/hkdf"
)

const (
	aesKeyLen   = 32
	gcmNonceLen = 12
	gcmTagLen   = 16

	hotWalletKeyInfo = "custody/hot-wallet-key/v1"
)

// AESEncryptionService implements ports.EncryptionService using AES-256-GCM.
// The AES key is derived from the master secret with HKDF-SHA256; the raw
// secret is never used as a key.
type AESEncryptionService struct {
	aead cipher.AEAD
}

// NewAESEncryptionService creates a new AES-256-GCM encryption service.
func NewAESEncryptionService(masterSecret string) (*AESEncryptionService, error) {
	if masterSecret == "" {
		return nil, apperror.ErrMissingSecret("crypto.master_secret")
	}

	key := make([]byte, aesKeyLen)
	defer clear(key)
	kdf := hkdf.New(sha256.New, []byte(masterSecret), nil, []byte(hotWalletKeyInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("deriving AES key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, gcmNonceLen)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	return &AESEncryptionService{aead: aead}, nil
}

// Encrypt seals plaintextHex under a fresh random nonce.
func (s *AESEncryptionService) Encrypt(plaintextHex string) (*domain.EncryptedKey, error) {
	nonce := make([]byte, gcmNonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generating nonce: %w", err))
	}

	sealed := s.aead.Seal(nil, nonce, []byte(plaintextHex), nil)
	ciphertext, tag := sealed[:len(sealed)-gcmTagLen], sealed[len(sealed)-gcmTagLen:]

	return &domain.EncryptedKey{
		Ciphertext: hex.EncodeToString(ciphertext),
		Nonce:      hex.EncodeToString(nonce),
		AuthTag:    hex.EncodeToString(tag),
	}, nil
}

// Decrypt opens an envelope. Any tampering, a wrong master secret or a
// malformed field fails with AuthenticationFailure.
func (s *AESEncryptionService) Decrypt(key *domain.EncryptedKey) (string, error) {
	if key == nil {
		return "", apperror.ErrAuthenticationFailure(errors.New("missing encrypted key"))
	}

	ciphertext, err := hex.DecodeString(key.Ciphertext)
	if err != nil {
		return "", apperror.ErrAuthenticationFailure(fmt.Errorf("decoding ciphertext: %w", err))
	}
	nonce, err := hex.DecodeString(key.Nonce)
	if err != nil || len(nonce) != gcmNonceLen {
		return "", apperror.ErrAuthenticationFailure(fmt.Errorf("invalid nonce"))
	}
	tag, err := hex.DecodeString(key.AuthTag)
	if err != nil || len(tag) != gcmTagLen {
		return "", apperror.ErrAuthenticationFailure(fmt.Errorf("invalid auth tag"))
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := s.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", apperror.ErrAuthenticationFailure(fmt.Errorf("decrypting: %w", err))
	}

	return string(plaintext), nil
}
