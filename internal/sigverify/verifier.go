// Package sigverify checks that a personal-message signature over a challenge
// was produced by the key controlling a claimed wallet address. Verification
// is pure and fails closed: any decode error, malformed address or
// cryptographic mismatch is a rejection.
package sigverify

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrMalformedAddress is returned for addresses of no supported form.
	ErrMalformedAddress = errors.New("malformed address")
	// ErrMalformedSignature is returned when the signature cannot be decoded.
	ErrMalformedSignature = errors.New("malformed signature")
	// ErrUnsupportedScheme is returned for an unknown signature scheme flag.
	ErrUnsupportedScheme = errors.New("unsupported signature scheme")
	// ErrSignatureMismatch is returned when the signature does not verify
	// for the claimed address.
	ErrSignatureMismatch = errors.New("signature does not match address")
)

// Scheme names the chain family an address belongs to.
type Scheme string

const (
	SchemeSui      Scheme = "sui"
	SchemeEthereum Scheme = "ethereum"
)

var (
	suiAddressPattern      = regexp.MustCompile(`^0x[0-9a-f]{64}$`)
	ethereumAddressPattern = regexp.MustCompile(`^0x[0-9a-f]{40}$`)
)

// NormalizeAddress lower-cases and trims an address and checks its form.
func NormalizeAddress(address string) (string, Scheme, error) {
	addr := strings.ToLower(strings.TrimSpace(address))
	switch {
	case suiAddressPattern.MatchString(addr):
		return addr, SchemeSui, nil
	case ethereumAddressPattern.MatchString(addr):
		if addr == "0x0000000000000000000000000000000000000000" {
			return "", "", ErrMalformedAddress
		}
		return addr, SchemeEthereum, nil
	default:
		return "", "", ErrMalformedAddress
	}
}

// Verifier validates a signature over message for address.
type Verifier interface {
	Verify(address, message, signature string) error
}

// MultiVerifier dispatches on the address form.
type MultiVerifier struct {
	sui      SuiVerifier
	ethereum EthereumVerifier
}

// New returns a verifier for every supported scheme.
func New() *MultiVerifier {
	return &MultiVerifier{}
}

// Verify implements Verifier.
func (v *MultiVerifier) Verify(address, message, signature string) error {
	_, scheme, err := NormalizeAddress(address)
	if err != nil {
		return err
	}
	switch scheme {
	case SchemeSui:
		return v.sui.Verify(address, message, signature)
	case SchemeEthereum:
		return v.ethereum.Verify(address, message, signature)
	default:
		return ErrMalformedAddress
	}
}
