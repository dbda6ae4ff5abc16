package domain

import (
	"strconv"
	"strings"
	"time"
)

const canonicalSep = "|"

// NormalizeTime truncates t to the millisecond precision used by the
// canonical encoding, in UTC.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

func millis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func u64(v uint64) string {
	return strconv.FormatUint(v, 10)
}

// CanonicalWallet renders the hashed wallet fields in fixed order:
// address, public key, balance, storage type, created at.
func CanonicalWallet(w *Wallet) string {
	return strings.Join([]string{
		w.Address,
		w.PublicKeyHex,
		u64(w.Balance),
		string(w.StorageType),
		millis(w.CreatedAt),
	}, canonicalSep)
}

// CanonicalTransaction renders the hashed transaction fields in fixed order.
// Status is deliberately absent.
func CanonicalTransaction(t *Transaction) string {
	return strings.Join([]string{
		t.ID,
		string(t.Type),
		u64(t.Amount),
		u64(t.Fee),
		t.FromAddress,
		t.ToAddress,
		u64(t.BalanceAfter),
		t.PrevHash(),
		millis(t.CreatedAt),
	}, canonicalSep)
}

// SigningPayload is the message a sender signs for a transfer. The fee is
// left out so the mirrored receive entry (fee 0) carries a verifiable copy
// of the same signature; it is still covered by the integrity hash.
func SigningPayload(fromAddress, toAddress string, amount uint64, createdAt time.Time) string {
	return strings.Join([]string{
		fromAddress,
		toAddress,
		u64(amount),
		millis(createdAt),
	}, canonicalSep)
}

// TransactionSigningPayload rebuilds the signed message for a stored transaction.
func TransactionSigningPayload(t *Transaction) string {
	return SigningPayload(t.FromAddress, t.ToAddress, t.Amount, t.CreatedAt)
}
