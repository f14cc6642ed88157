// Package auth covers who a request is: Discord OAuth login, session tokens,
// and the peppered identity hashes that keep erased identities out.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashIdentity returns hex(sha256(value || pepper)). Wallet addresses are
// lower-cased first so every spelling of an address hashes the same.
func HashIdentity(value, pepper string) string {
	h := sha256.New()
	h.Write([]byte(value))
	h.Write([]byte(pepper))
	return hex.EncodeToString(h.Sum(nil))
}

// HashWalletAddress hashes a wallet address in its stored form.
func HashWalletAddress(address, pepper string) string {
	return HashIdentity(strings.ToLower(strings.TrimSpace(address)), pepper)
}
