package service

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"btc-custody/internal/core/domain"
	"btc-custody/pkg/apperror"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/rs/zerolog"
)

const (
	privateKeyLen     = 32
	maxKeyGenAttempts = 16
)

var errScalarRange = errors.New("scalar is zero or not below the curve order")

// chainParams maps a network to its address and WIF parameters.
func chainParams(network domain.Network) (*chaincfg.Params, error) {
	switch network {
	case domain.NetworkMainnet:
		return &chaincfg.MainNetParams, nil
	case domain.NetworkTestnet:
		return &chaincfg.TestNet3Params, nil
	default:
		return nil, apperror.InternalError(fmt.Errorf("unsupported network %q", network))
	}
}

// KeyServiceImpl implements ports.KeyService on secp256k1 with P2PKH addresses.
type KeyServiceImpl struct {
	entropy io.Reader
	log     zerolog.Logger
}

// NewKeyService creates a key service backed by crypto/rand.
func NewKeyService(log zerolog.Logger) *KeyServiceImpl {
	return NewKeyServiceWithEntropy(rand.Reader, log)
}

// NewKeyServiceWithEntropy creates a key service reading scalars from r.
func NewKeyServiceWithEntropy(r io.Reader, log zerolog.Logger) *KeyServiceImpl {
	return &KeyServiceImpl{entropy: r, log: log}
}

// Generate draws random scalars until one is a valid private key.
func (s *KeyServiceImpl) Generate(network domain.Network) (*domain.KeyPair, error) {
	params, err := chainParams(network)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, privateKeyLen)
	defer clear(buf)

	for attempt := 1; attempt <= maxKeyGenAttempts; attempt++ {
		if _, err := io.ReadFull(s.entropy, buf); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("reading entropy: %w", err))
		}
		if !validScalar(buf) {
			s.log.Warn().Int("attempt", attempt).Msg("rejected out-of-range key scalar")
			continue
		}

		priv, _ := btcec.PrivKeyFromBytes(buf)
		return keyPairFor(priv, params, true)
	}

	return nil, apperror.ErrKeyGenerationExhausted(maxKeyGenAttempts)
}

// Derive computes the public key and address for privateKeyHex.
func (s *KeyServiceImpl) Derive(privateKeyHex string, network domain.Network) (*domain.KeyPair, error) {
	params, err := chainParams(network)
	if err != nil {
		return nil, err
	}
	priv, err := parsePrivateKeyHex(privateKeyHex)
	if err != nil {
		return nil, err
	}
	return keyPairFor(priv, params, false)
}

// ValidateAgainstAddress reports whether privateKeyHex controls address.
// The network is taken from the address; malformed input yields false.
func (s *KeyServiceImpl) ValidateAgainstAddress(privateKeyHex string, address string) bool {
	network, ok := addressNetwork(address)
	if !ok {
		return false
	}
	kp, err := s.Derive(privateKeyHex, network)
	if err != nil {
		return false
	}
	return kp.Address == address
}

// EncodeWIF encodes a hex private key as compressed-pubkey WIF.
func (s *KeyServiceImpl) EncodeWIF(privateKeyHex string, network domain.Network) (string, error) {
	params, err := chainParams(network)
	if err != nil {
		return "", err
	}
	priv, err := parsePrivateKeyHex(privateKeyHex)
	if err != nil {
		return "", err
	}
	wif, err := btcutil.NewWIF(priv, params, true)
	if err != nil {
		return "", apperror.ErrInvalidKey(fmt.Errorf("encode wif: %w", err))
	}
	return wif.String(), nil
}

// DecodeWIF returns the hex private key inside wif.
func (s *KeyServiceImpl) DecodeWIF(wif string) (string, error) {
	decoded, err := btcutil.DecodeWIF(wif)
	if err != nil {
		return "", apperror.ErrInvalidKey(fmt.Errorf("decode wif: %w", err))
	}
	raw := decoded.PrivKey.Serialize()
	defer clear(raw)
	if !validScalar(raw) {
		return "", apperror.ErrInvalidKey(errScalarRange)
	}
	return hex.EncodeToString(raw), nil
}

// ParsePrivateKey accepts hex or WIF and returns lowercase hex.
func (s *KeyServiceImpl) ParsePrivateKey(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", apperror.ErrInvalidKey(errors.New("empty private key"))
	}
	if len(input) == hex.EncodedLen(privateKeyLen) {
		if _, err := hex.DecodeString(input); err == nil {
			if _, err := parsePrivateKeyHex(input); err != nil {
				return "", err
			}
			return strings.ToLower(input), nil
		}
	}
	return s.DecodeWIF(input)
}

// ValidateAddress checks that address is a standard address encoding for
// network. Raw public keys decode under btcutil but are not addresses.
func (s *KeyServiceImpl) ValidateAddress(address string, network domain.Network) error {
	params, err := chainParams(network)
	if err != nil {
		return err
	}
	if _, ok := decodeAddress(address, params); !ok {
		return apperror.ErrInvalidAddress()
	}
	return nil
}

// addressNetwork reports which supported network a P2PKH address belongs to.
func addressNetwork(address string) (domain.Network, bool) {
	for _, n := range []domain.Network{domain.NetworkMainnet, domain.NetworkTestnet} {
		params, _ := chainParams(n)
		if _, ok := decodeAddress(address, params); ok {
			return n, true
		}
	}
	return "", false
}

// decodeAddress accepts only input that re-encodes to itself on params.
// Bech32 is compared case-insensitively.
func decodeAddress(address string, params *chaincfg.Params) (btcutil.Address, bool) {
	addr, err := btcutil.DecodeAddress(address, params)
	if err != nil || !addr.IsForNet(params) {
		return nil, false
	}
	if _, ok := addr.(*btcutil.AddressPubKey); ok {
		return nil, false
	}
	if !strings.EqualFold(addr.EncodeAddress(), address) {
		return nil, false
	}
	return addr, true
}

func parsePrivateKeyHex(privateKeyHex string) (*btcec.PrivateKey, error) {
	raw, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		return nil, apperror.ErrInvalidKey(fmt.Errorf("decode hex: %w", err))
	}
	defer clear(raw)
	if len(raw) != privateKeyLen {
		return nil, apperror.ErrInvalidKey(fmt.Errorf("want %d bytes, got %d", privateKeyLen, len(raw)))
	}
	if !validScalar(raw) {
		return nil, apperror.ErrInvalidKey(errScalarRange)
	}
	priv, _ := btcec.PrivKeyFromBytes(raw)
	return priv, nil
}

// validScalar reports whether b is in [1, n-1].
func validScalar(b []byte) bool {
	var k btcec.ModNScalar
	overflow := k.SetByteSlice(b)
	return !overflow && !k.IsZero()
}

func keyPairFor(priv *btcec.PrivateKey, params *chaincfg.Params, withPrivate bool) (*domain.KeyPair, error) {
	pub := priv.PubKey().SerializeCompressed()
	addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(pub), params)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("build address: %w", err))
	}

	kp := &domain.KeyPair{
		PublicKeyHex: hex.EncodeToString(pub),
		Address:      addr.EncodeAddress(),
	}
	if withPrivate {
		wif, err := btcutil.NewWIF(priv, params, true)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("encode wif: %w", err))
		}
		kp.PrivateKeyHex = hex.EncodeToString(priv.Serialize())
		kp.PrivateKeyWIF = wif.String()
	}
	return kp, nil
}
