package sigverify

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// EthereumPersonalMessageHash returns the EIP-191 hash personal_sign produces.
func EthereumPersonalMessageHash(message []byte) []byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(message))
	return crypto.Keccak256([]byte(prefix), message)
}

// EthereumVerifier verifies personal_sign signatures (65-byte r||s||v) given
// as 0x-hex or base64.
type EthereumVerifier struct{}

// Verify implements Verifier.
func (EthereumVerifier) Verify(address, message, signature string) error {
	addr, scheme, err := NormalizeAddress(address)
	if err != nil || scheme != SchemeEthereum {
		return ErrMalformedAddress
	}

	sig, err := decodeEthereumSignature(signature)
	if err != nil {
		return err
	}

	// Wallets emit v as 27/28; recovery expects 0/1.
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	if sig[crypto.RecoveryIDOffset] > 1 {
		return ErrMalformedSignature
	}

	pub, err := crypto.SigToPub(EthereumPersonalMessageHash([]byte(message)), sig)
	if err != nil {
		return ErrSignatureMismatch
	}

	if !strings.EqualFold(crypto.PubkeyToAddress(*pub).Hex(), addr) {
		return ErrSignatureMismatch
	}
	return nil
}

func decodeEthereumSignature(signature string) ([]byte, error) {
	signature = strings.TrimSpace(signature)

	var (
		sig []byte
		err error
	)
	if strings.HasPrefix(signature, "0x") || strings.HasPrefix(signature, "0X") {
		sig, err = hexutil.Decode("0x" + signature[2:])
	} else {
		sig, err = base64.StdEncoding.DecodeString(signature)
	}
	if err != nil || len(sig) != crypto.SignatureLength {
		return nil, ErrMalformedSignature
	}
	return sig, nil
}
