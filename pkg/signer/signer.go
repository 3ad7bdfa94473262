// Package signer holds the signature recovery capability plus client-side
// signing helpers used by tests and tooling.
package signer

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/grantmike/EIPs/pkg/types"
)

// RecoverFunc recovers a signer identity from a 32-byte digest and a
// 65-byte (r, s, v) signature. Implementations report malformed input
// as an error; identity comparison is the caller's job.
type RecoverFunc func(digest common.Hash, signature []byte) (common.Address, error)

// Recover is the production recovery implementation over secp256k1.
// It accepts both 0/1 and 27/28 recovery byte conventions.
func Recover(digest common.Hash, signature []byte) (common.Address, error) {
	if len(signature) != types.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length: expected %d bytes, got %d", types.SignatureLength, len(signature))
	}

	// Normalize the recovery byte without mutating the caller's slice.
	sig := make([]byte, types.SignatureLength)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pubKey, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}

	return crypto.PubkeyToAddress(*pubKey), nil
}

// SignDigest signs a 32-byte digest with the given key, producing a
// 65-byte (r, s, v) signature with v in {0, 1}.
func SignDigest(digest common.Hash, privateKey *ecdsa.PrivateKey) ([]byte, error) {
	if privateKey == nil {
		return nil, fmt.Errorf("private key is nil")
	}

	signature, err := crypto.Sign(digest.Bytes(), privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign digest: %w", err)
	}

	return signature, nil
}

// AddressOf returns the Ethereum address controlled by the given key.
func AddressOf(privateKey *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(privateKey.PublicKey)
}
