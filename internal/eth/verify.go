// Package eth wraps the go-ethereum primitives used for wallet
// authentication: address canonicalization and EIP-191 personal-sign
// verification.
package eth

import (
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const signatureLength = 65

// CanonicalAddress validates a hex wallet address and returns its
// canonical lowercase form, the unique identity key.
func CanonicalAddress(address string) (string, bool) {
	if !common.IsHexAddress(address) {
		return "", false
	}
	return strings.ToLower(common.HexToAddress(address).Hex()), true
}

// VerifyPersonalSign reports whether signature is a valid EIP-191
// personal_sign over message by the key controlling address. Malformed
// input is a verification failure, never a panic or an error.
func VerifyPersonalSign(address, message, signature string) bool {
	sig, err := hexutil.Decode(signature)
	if err != nil || len(sig) != signatureLength {
		return false
	}

	// Wallets encode the recovery id as 27/28; SigToPub expects 0/1.
	if sig[signatureLength-1] >= 27 {
		sig = append([]byte(nil), sig...)
		sig[signatureLength-1] -= 27
	}

	pubKey, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return false
	}

	recovered := crypto.PubkeyToAddress(*pubKey)
	return recovered == common.HexToAddress(address)
}

// SignPersonal produces a wallet-style personal_sign signature
// (hex, recovery id 27/28) over message with key.
func SignPersonal(message string, key *ecdsa.PrivateKey) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	if err != nil {
		return "", err
	}
	sig[signatureLength-1] += 27
	return hexutil.Encode(sig), nil
}
