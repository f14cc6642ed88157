package sigverify

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/blake2b"
)

// Sui signature scheme flags.
const (
	SuiFlagEd25519   byte = 0x00
	SuiFlagSecp256k1 byte = 0x01
	SuiFlagSecp256r1 byte = 0x02
)

// personalMessageIntent is the intent prefix for a PersonalMessage signed by
// a Sui wallet: scope PersonalMessage, version 0, app id Sui.
var personalMessageIntent = []byte{3, 0, 0}

// SuiPersonalMessageDigest returns the 32-byte digest a Sui wallet signs for
// signPersonalMessage: blake2b-256 over the intent followed by the BCS
// encoding of the message bytes.
func SuiPersonalMessageDigest(message []byte) [32]byte {
	buf := make([]byte, 0, len(personalMessageIntent)+binaryUvarintLen(uint64(len(message)))+len(message))
	buf = append(buf, personalMessageIntent...)
	buf = appendULEB128(buf, uint64(len(message)))
	buf = append(buf, message...)
	return blake2b.Sum256(buf)
}

// SuiAddress derives the address for a public key under a scheme flag.
func SuiAddress(flag byte, publicKey []byte) string {
	buf := make([]byte, 0, 1+len(publicKey))
	buf = append(buf, flag)
	buf = append(buf, publicKey...)
	sum := blake2b.Sum256(buf)
	return "0x" + hex.EncodeToString(sum[:])
}

// SuiVerifier verifies serialized Sui signatures: base64(flag || sig || pubkey).
type SuiVerifier struct{}

// Verify implements Verifier.
func (SuiVerifier) Verify(address, message, signature string) error {
	addr, scheme, err := NormalizeAddress(address)
	if err != nil || scheme != SchemeSui {
		return ErrMalformedAddress
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(raw) < 1+64 {
		return ErrMalformedSignature
	}

	flag, sig, pub := raw[0], raw[1:65], raw[65:]
	digest := SuiPersonalMessageDigest([]byte(message))

	switch flag {
	case SuiFlagEd25519:
		if len(pub) != ed25519.PublicKeySize {
			return ErrMalformedSignature
		}
		if !ed25519.Verify(ed25519.PublicKey(pub), digest[:], sig) {
			return ErrSignatureMismatch
		}
	case SuiFlagSecp256k1:
		if len(pub) != 33 {
			return ErrMalformedSignature
		}
		hash := sha256.Sum256(digest[:])
		if !crypto.VerifySignature(pub, hash[:], sig) {
			return ErrSignatureMismatch
		}
	case SuiFlagSecp256r1:
		if len(pub) != 33 {
			return ErrMalformedSignature
		}
		x, y := elliptic.UnmarshalCompressed(elliptic.P256(), pub)
		if x == nil {
			return ErrMalformedSignature
		}
		key := &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}
		hash := sha256.Sum256(digest[:])
		r := new(big.Int).SetBytes(sig[:32])
		s := new(big.Int).SetBytes(sig[32:])
		if !ecdsa.Verify(key, hash[:], r, s) {
			return ErrSignatureMismatch
		}
	default:
		return ErrUnsupportedScheme
	}

	if SuiAddress(flag, pub) != addr {
		return ErrSignatureMismatch
	}
	return nil
}

func appendULEB128(buf []byte, v uint64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}

func binaryUvarintLen(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}
