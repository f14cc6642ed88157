// Package sigtest produces wallet signatures the way browser wallets do, for
// tests that need to drive the link flow end to end.
package sigtest

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/tribegate/tribegate/internal/sigverify"
)

// Wallet signs personal messages and knows its own address.
type Wallet interface {
	Address() string
	Sign(t testing.TB, message string) string
}

// SuiEd25519 is an ed25519 Sui wallet.
type SuiEd25519 struct {
	priv ed25519.PrivateKey
}

// NewSuiEd25519 generates a fresh ed25519 Sui wallet.
func NewSuiEd25519(t testing.TB) *SuiEd25519 {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return &SuiEd25519{priv: priv}
}

func (w *SuiEd25519) publicKey() []byte {
	return w.priv.Public().(ed25519.PublicKey)
}

// Address returns the 0x-prefixed 32-byte address.
func (w *SuiEd25519) Address() string {
	return sigverify.SuiAddress(sigverify.SuiFlagEd25519, w.publicKey())
}

// Sign returns base64(flag || sig || pubkey).
func (w *SuiEd25519) Sign(t testing.TB, message string) string {
	digest := sigverify.SuiPersonalMessageDigest([]byte(message))
	sig := ed25519.Sign(w.priv, digest[:])
	return serializeSui(sigverify.SuiFlagEd25519, sig, w.publicKey())
}

// SuiSecp256k1 is a secp256k1 Sui wallet.
type SuiSecp256k1 struct {
	priv *ecdsa.PrivateKey
}

// NewSuiSecp256k1 generates a fresh secp256k1 Sui wallet.
func NewSuiSecp256k1(t testing.TB) *SuiSecp256k1 {
	t.Helper()
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &SuiSecp256k1{priv: priv}
}

// Address returns the 0x-prefixed 32-byte address.
func (w *SuiSecp256k1) Address() string {
	return sigverify.SuiAddress(sigverify.SuiFlagSecp256k1, crypto.CompressPubkey(&w.priv.PublicKey))
}

// Sign returns base64(flag || sig || pubkey).
func (w *SuiSecp256k1) Sign(t testing.TB, message string) string {
	t.Helper()
	digest := sigverify.SuiPersonalMessageDigest([]byte(message))
	hash := sha256.Sum256(digest[:])
	sig, err := crypto.Sign(hash[:], w.priv)
	require.NoError(t, err)
	return serializeSui(sigverify.SuiFlagSecp256k1, sig[:64], crypto.CompressPubkey(&w.priv.PublicKey))
}

// SuiSecp256r1 is a P-256 Sui wallet.
type SuiSecp256r1 struct {
	priv *ecdsa.PrivateKey
}

// NewSuiSecp256r1 generates a fresh P-256 Sui wallet.
func NewSuiSecp256r1(t testing.TB) *SuiSecp256r1 {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return &SuiSecp256r1{priv: priv}
}

func (w *SuiSecp256r1) publicKey() []byte {
	return elliptic.MarshalCompressed(elliptic.P256(), w.priv.X, w.priv.Y)
}

// Address returns the 0x-prefixed 32-byte address.
func (w *SuiSecp256r1) Address() string {
	return sigverify.SuiAddress(sigverify.SuiFlagSecp256r1, w.publicKey())
}

// Sign returns base64(flag || sig || pubkey).
func (w *SuiSecp256r1) Sign(t testing.TB, message string) string {
	t.Helper()
	digest := sigverify.SuiPersonalMessageDigest([]byte(message))
	hash := sha256.Sum256(digest[:])
	r, s, err := ecdsa.Sign(rand.Reader, w.priv, hash[:])
	require.NoError(t, err)

	sig := make([]byte, 64)
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:])
	return serializeSui(sigverify.SuiFlagSecp256r1, sig, w.publicKey())
}

// Ethereum is a personal_sign wallet.
type Ethereum struct {
	priv *ecdsa.PrivateKey
}

// NewEthereum generates a fresh Ethereum wallet.
func NewEthereum(t testing.TB) *Ethereum {
	t.Helper()
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &Ethereum{priv: priv}
}

// Address returns the lower-cased 0x-prefixed 20-byte address.
func (w *Ethereum) Address() string {
	return strings.ToLower(crypto.PubkeyToAddress(w.priv.PublicKey).Hex())
}

// Sign returns the 0x-hex r||s||v signature with v in {27, 28}.
func (w *Ethereum) Sign(t testing.TB, message string) string {
	t.Helper()
	sig, err := crypto.Sign(sigverify.EthereumPersonalMessageHash([]byte(message)), w.priv)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig)
}

func serializeSui(flag byte, sig, pub []byte) string {
	buf := make([]byte, 0, 1+len(sig)+len(pub))
	buf = append(buf, flag)
	buf = append(buf, sig...)
	buf = append(buf, pub...)
	return base64.StdEncoding.EncodeToString(buf)
}
