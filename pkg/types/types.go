package types

import (
	"encoding/hex"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// SignatureLength is the expected length of an (r, s, v) signature in bytes.
const SignatureLength = 65

// NonceLength is the length of an authorization nonce in bytes.
const NonceLength = 32

// Nonce is a caller-chosen random token, unique per authorizer. It exists
// only for replay prevention and carries no ordering semantics.
type Nonce [NonceLength]byte

// Hex returns the nonce as a 0x-prefixed hex string.
func (n Nonce) Hex() string {
	return common.Hash(n).Hex()
}

// NonceFromHex parses a 0x-prefixed 32-byte hex string into a Nonce.
func NonceFromHex(s string) (Nonce, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return Nonce{}, err
	}
	if len(b) != NonceLength {
		return Nonce{}, errors.New("nonce must be exactly 32 bytes")
	}
	var n Nonce
	copy(n[:], b)
	return n, nil
}

// Authorization is one signed transfer grant. It is supplied per call and
// never persisted; only the consumption flag for (From, Nonce) survives.
type Authorization struct {
	From         common.Address // authorizer, owns the funds
	To           common.Address // recipient of Value
	Value        *big.Int       // amount credited to To
	RelayerValue *big.Int       // amount credited to the submitting relayer
	ValidAfter   *big.Int       // unix seconds, exclusive lower bound
	ValidBefore  *big.Int       // unix seconds, exclusive upper bound
	Nonce        Nonce
}

// AuthorizationUsed is emitted exactly once per consumed authorization,
// for off-chain auditing and indexing.
type AuthorizationUsed struct {
	Authorizer common.Address
	Nonce      Nonce
}

// Rejection reasons. Every failed execution surfaces one of these (possibly
// wrapped with context); callers match with errors.Is. They are expected,
// data-dependent outcomes and are never retried by the engine itself.
var (
	// ErrNotYetValid means the current time is at or before ValidAfter.
	ErrNotYetValid = errors.New("authorization is not yet valid")

	// ErrExpired means the current time is at or after ValidBefore.
	ErrExpired = errors.New("authorization is expired")

	// ErrAlreadyUsed means the (authorizer, nonce) pair was consumed before.
	ErrAlreadyUsed = errors.New("authorization is used")

	// ErrInvalidSignature covers both malformed signature input and a
	// recovered signer that does not match the authorizer.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrInsufficientFunds means the combined debit exceeds the
	// authorizer's balance.
	ErrInsufficientFunds = errors.New("insufficient funds")
)
