package service

import (
	"bytes"
	"encoding/hex"
	"io"
	"strings"
	"testing"

	"btc-custody/internal/core/domain"
	"btc-custody/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	// secp256k1 private key 1 and its well-known encodings.
	keyOneHex        = "0000000000000000000000000000000000000000000000000000000000000001"
	keyOnePubHex     = "0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"
	keyOneMainAddr   = "1BgGZ9tcN4rm9KBzDn7KprQz87SZ26SAMH"
	keyOneTestAddr   = "mrCDrCybB6J1vRfbwM5hemdJz73FwDBC8r"
	keyOneMainnetWIF = "KwDiBf89QgGbjEhKnhXJuH7LrciVrZi3qYjgd9M7rFU73sVHnoWn"

	curveOrderHex = "fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141"
)

func newTestKeyService() *KeyServiceImpl {
	return NewKeyService(zerolog.Nop())
}

func TestKeyService_Generate(t *testing.T) {
	svc := newTestKeyService()

	for _, network := range []domain.Network{domain.NetworkMainnet, domain.NetworkTestnet} {
		t.Run(string(network), func(t *testing.T) {
			kp, err := svc.Generate(network)
			require.NoError(t, err)

			assert.Len(t, kp.PrivateKeyHex, 64)
			assert.Len(t, kp.PublicKeyHex, 66)
			assert.True(t, strings.HasPrefix(kp.PublicKeyHex, "02") || strings.HasPrefix(kp.PublicKeyHex, "03"))
			assert.NotEmpty(t, kp.PrivateKeyWIF)
			assert.NoError(t, svc.ValidateAddress(kp.Address, network))

			derived, err := svc.Derive(kp.PrivateKeyHex, network)
			require.NoError(t, err)
			assert.Equal(t, kp.Address, derived.Address)
			assert.Equal(t, kp.PublicKeyHex, derived.PublicKeyHex)
		})
	}
}

func TestKeyService_Generate_Unique(t *testing.T) {
	svc := newTestKeyService()
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		kp, err := svc.Generate(domain.NetworkTestnet)
		require.NoError(t, err)
		assert.False(t, seen[kp.PrivateKeyHex])
		seen[kp.PrivateKeyHex] = true
	}
}

func TestKeyService_Generate_RejectsOutOfRangeScalars(t *testing.T) {
	zero := make([]byte, 32)
	order, _ := hex.DecodeString(curveOrderHex)
	one, _ := hex.DecodeString(keyOneHex)

	entropy := bytes.NewReader(bytes.Join([][]byte{zero, order, one}, nil))
	svc := NewKeyServiceWithEntropy(entropy, zerolog.Nop())

	kp, err := svc.Generate(domain.NetworkMainnet)
	require.NoError(t, err)
	assert.Equal(t, keyOneHex, kp.PrivateKeyHex)
	assert.Equal(t, keyOneMainAddr, kp.Address)
}

func TestKeyService_Generate_Exhausted(t *testing.T) {
	entropy := bytes.NewReader(bytes.Repeat([]byte{0xff}, 32*maxKeyGenAttempts))
	svc := NewKeyServiceWithEntropy(entropy, zerolog.Nop())

	_, err := svc.Generate(domain.NetworkTestnet)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeKeyGenerationExhausted))
}

func TestKeyService_Generate_EntropyFailure(t *testing.T) {
	svc := NewKeyServiceWithEntropy(io.LimitReader(bytes.NewReader(nil), 0), zerolog.Nop())

	_, err := svc.Generate(domain.NetworkTestnet)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInternal))
}

func TestKeyService_Derive_KnownVector(t *testing.T) {
	svc := newTestKeyService()

	main, err := svc.Derive(keyOneHex, domain.NetworkMainnet)
	require.NoError(t, err)
	assert.Equal(t, keyOnePubHex, main.PublicKeyHex)
	assert.Equal(t, keyOneMainAddr, main.Address)
	assert.Empty(t, main.PrivateKeyHex)
	assert.Empty(t, main.PrivateKeyWIF)

	test, err := svc.Derive(keyOneHex, domain.NetworkTestnet)
	require.NoError(t, err)
	assert.Equal(t, keyOneTestAddr, test.Address)
}

func TestKeyService_Derive_InvalidKey(t *testing.T) {
	svc := newTestKeyService()

	tests := []struct {
		name string
		key  string
	}{
		{"not hex", strings.Repeat("zz", 32)},
		{"too short", "01"},
		{"too long", strings.Repeat("01", 33)},
		{"zero", strings.Repeat("00", 32)},
		{"curve order", curveOrderHex},
		{"above order", strings.Repeat("ff", 32)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Derive(tt.key, domain.NetworkMainnet)
			require.Error(t, err)
			assert.True(t, apperror.HasCode(err, apperror.CodeInvalidKey))
		})
	}
}

func TestKeyService_ValidateAgainstAddress(t *testing.T) {
	svc := newTestKeyService()
	other, err := svc.Generate(domain.NetworkTestnet)
	require.NoError(t, err)

	assert.True(t, svc.ValidateAgainstAddress(keyOneHex, keyOneMainAddr))
	assert.True(t, svc.ValidateAgainstAddress(keyOneHex, keyOneTestAddr))
	assert.False(t, svc.ValidateAgainstAddress(other.PrivateKeyHex, keyOneTestAddr))
	assert.False(t, svc.ValidateAgainstAddress("garbage", keyOneTestAddr))
	assert.False(t, svc.ValidateAgainstAddress(keyOneHex, "not-an-address"))
	assert.False(t, svc.ValidateAgainstAddress("", ""))
}

func TestKeyService_WIF_KnownVector(t *testing.T) {
	svc := newTestKeyService()

	wif, err := svc.EncodeWIF(keyOneHex, domain.NetworkMainnet)
	require.NoError(t, err)
	assert.Equal(t, keyOneMainnetWIF, wif)

	decoded, err := svc.DecodeWIF(keyOneMainnetWIF)
	require.NoError(t, err)
	assert.Equal(t, keyOneHex, decoded)
}

func TestKeyService_WIF_RoundTrip(t *testing.T) {
	svc := newTestKeyService()

	for i := 0; i < 25; i++ {
		network := domain.NetworkTestnet
		if i%2 == 0 {
			network = domain.NetworkMainnet
		}
		kp, err := svc.Generate(network)
		require.NoError(t, err)

		wif, err := svc.EncodeWIF(kp.PrivateKeyHex, network)
		require.NoError(t, err)
		assert.Equal(t, kp.PrivateKeyWIF, wif)

		back, err := svc.DecodeWIF(wif)
		require.NoError(t, err)
		assert.Equal(t, kp.PrivateKeyHex, back)
	}
}

func TestKeyService_DecodeWIF_Invalid(t *testing.T) {
	svc := newTestKeyService()

	_, err := svc.DecodeWIF("KwDiBf89QgGbjEhKnhXJuH7LrciVrZi3qYjgd9M7rFU73sVHnoWx")
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidKey))
}

func TestKeyService_ParsePrivateKey(t *testing.T) {
	svc := newTestKeyService()

	got, err := svc.ParsePrivateKey(strings.ToUpper(keyOneHex))
	require.NoError(t, err)
	assert.Equal(t, keyOneHex, got)

	got, err = svc.ParsePrivateKey("  " + keyOneMainnetWIF + "\n")
	require.NoError(t, err)
	assert.Equal(t, keyOneHex, got)

	_, err = svc.ParsePrivateKey("")
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidKey))

	_, err = svc.ParsePrivateKey(strings.Repeat("00", 32))
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidKey))
}

func TestKeyService_ValidateAddress(t *testing.T) {
	svc := newTestKeyService()

	assert.NoError(t, svc.ValidateAddress(keyOneMainAddr, domain.NetworkMainnet))
	assert.NoError(t, svc.ValidateAddress(keyOneTestAddr, domain.NetworkTestnet))

	tests := []struct {
		name    string
		address string
		network domain.Network
	}{
		{"mainnet address on testnet", keyOneMainAddr, domain.NetworkTestnet},
		{"testnet address on mainnet", keyOneTestAddr, domain.NetworkMainnet},
		{"bad checksum", keyOneMainAddr[:len(keyOneMainAddr)-1] + "J", domain.NetworkMainnet},
		{"empty", "", domain.NetworkMainnet},
		{"garbage", "hello world", domain.NetworkTestnet},
		{"compressed pubkey hex on mainnet", keyOnePubHex, domain.NetworkMainnet},
		{"compressed pubkey hex on testnet", keyOnePubHex, domain.NetworkTestnet},
		{"uncompressed pubkey hex", "04" + keyOnePubHex[2:] +
			"483ada7726a3c4655da4fbfc0e1108a8fd17b448a68554199c47d08ffb10d4b8", domain.NetworkTestnet},
		{"surrounding whitespace", " " + keyOneTestAddr, domain.NetworkTestnet},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.ValidateAddress(tt.address, tt.network)
			require.Error(t, err)
			assert.True(t, apperror.HasCode(err, apperror.CodeInvalidAddress))
		})
	}
}
