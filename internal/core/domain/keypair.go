package domain

// Network selects the address and WIF encoding parameters.
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkTestnet Network = "testnet"
)

// Valid reports whether n is a supported network.
func (n Network) Valid() bool {
	return n == NetworkMainnet || n == NetworkTestnet
}

// KeyPair is transient key material returned by key generation.
// It is never persisted as-is.
type KeyPair struct {
	PrivateKeyHex string `json:"private_key_hex,omitempty"`
	PrivateKeyWIF string `json:"private_key_wif,omitempty"`
	PublicKeyHex  string `json:"public_key"`
	Address       string `json:"address"`
}

// Redacted returns a copy without private material.
func (k KeyPair) Redacted() KeyPair {
	k.PrivateKeyHex = ""
	k.PrivateKeyWIF = ""
	return k
}

// EncryptedKey is an AES-GCM envelope. All fields are hex encoded.
type EncryptedKey struct {
	Ciphertext string `json:"ciphertext"`
	Nonce      string `json:"nonce"`
	AuthTag    string `json:"auth_tag"`
}

// Signature is the result of signing a transaction payload.
type Signature struct {
	Signature    string `json:"signature"`    // DER, hex
	PayloadHash  string `json:"payload_hash"` // SHA-256, hex
	PublicKeyHex string `json:"public_key"`
}
